// Package security implements the tamper detector: a fixed battery of
// best-effort probes polled for the whole process lifetime. A positive
// probe produces a fatal Verdict that a single top-level terminator acts on.
package security

import (
	"context"
	"os"
	"runtime"
	"time"

	log "github.com/sirupsen/logrus"
)

// DisableEnv turns the detector off entirely when set to "1". Read once.
const DisableEnv = "MF_DISABLE_INTEGRITY"

// DefaultInterval is the polling period between two batteries.
const DefaultInterval = time.Second

// Result is the outcome of one probe run.
type Result int

const (
	NoMatch Result = iota
	Match
	// Unavailable means the probe could not run (API missing, access denied).
	// It is folded into NoMatch when aggregating.
	Unavailable
)

func (r Result) String() string {
	switch r {
	case Match:
		return "match"
	case Unavailable:
		return "unavailable"
	}
	return "no-match"
}

// Finding is what a probe reports.
type Finding struct {
	Result Result
	Detail string
}

// Probe is one check of the battery.
type Probe interface {
	Name() string
	Run() Finding
}

type probeFunc struct {
	name string
	fn   func() Finding
}

func (p probeFunc) Name() string { return p.name }
func (p probeFunc) Run() Finding { return p.fn() }

// NewProbe adapts a function into a Probe.
func NewProbe(name string, fn func() Finding) Probe {
	return probeFunc{name: name, fn: fn}
}

// Verdict is the aggregated result of a battery. Only Fatal verdicts are
// acted on.
type Verdict struct {
	Fatal  bool
	Probe  string
	Detail string
}

// Detector runs its probes in order every Interval.
type Detector struct {
	probes   []Probe
	Interval time.Duration
}

// NewDetector creates a detector. A non-positive interval means DefaultInterval.
func NewDetector(interval time.Duration, probes ...Probe) *Detector {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Detector{probes: probes, Interval: interval}
}

// Check runs the battery once and stops at the first match.
func (d *Detector) Check() Verdict {
	for _, p := range d.probes {
		f := safeRun(p)
		if f.Result == Match {
			return Verdict{Fatal: true, Probe: p.Name(), Detail: f.Detail}
		}
	}
	return Verdict{}
}

// safeRun turns a panicking probe into Unavailable.
func safeRun(p Probe) (f Finding) {
	defer func() {
		if recover() != nil {
			f = Finding{Result: Unavailable}
		}
	}()
	return p.Run()
}

// Run polls until ctx is done or a probe matches. It hides the calling
// thread from debuggers once, so callers should run it on a locked thread.
func (d *Detector) Run(ctx context.Context) Verdict {
	hideThread()

	ticker := time.NewTicker(d.Interval)
	defer ticker.Stop()

	for {
		if v := d.Check(); v.Fatal {
			return v
		}
		select {
		case <-ctx.Done():
			return Verdict{}
		case <-ticker.C:
		}
	}
}

// hideThread is swapped in tests.
var hideThread = hideCurrentThread

// Start runs one synchronous battery, then keeps polling on a dedicated OS
// thread. Any fatal verdict is handed to terminate, which is expected not
// to return.
func Start(ctx context.Context, d *Detector, terminate func(Verdict)) {
	if v := d.Check(); v.Fatal {
		terminate(v)
		return
	}

	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()

		if v := d.Run(ctx); v.Fatal {
			terminate(v)
		}
	}()
	log.Debugf("Security: detector armed with %d probes, interval %s", len(d.probes), d.Interval)
}

// Terminate ends the process immediately and silently.
func Terminate(Verdict) {
	os.Exit(1)
}

// Disabled reports whether DisableEnv is set to "1".
func Disabled() bool {
	return os.Getenv(DisableEnv) == "1"
}
