package security

import (
	"path/filepath"
	"strings"
)

// ProcessInfo describes one running process as seen by the process scan.
type ProcessInfo struct {
	PID  uint32
	Exe  string   // executable file name
	Info []string // version-resource strings, may be empty
}

// FlagProbe wraps an OS query answering "is a debugger attached?".
// A query error is Unavailable.
func FlagProbe(name string, query func() (bool, error)) Probe {
	return NewProbe(name, func() Finding {
		on, err := query()
		if err != nil {
			return Finding{Result: Unavailable, Detail: err.Error()}
		}
		if on {
			return Finding{Result: Match, Detail: name}
		}
		return Finding{Result: NoMatch}
	})
}

// ProcessProbe matches every listed process's executable name and version
// strings against deny. Our own PID is skipped.
func ProcessProbe(list func() ([]ProcessInfo, error), self uint32, deny DenyList) Probe {
	return NewProbe("process-scan", func() Finding {
		procs, err := list()
		if err != nil {
			return Finding{Result: Unavailable, Detail: err.Error()}
		}
		for _, p := range procs {
			if p.PID == self && self != 0 {
				continue
			}
			exe := strings.TrimSuffix(filepath.Base(p.Exe), filepath.Ext(p.Exe))
			if e, ok := deny.MatchAny(append([]string{exe}, p.Info...)...); ok {
				return Finding{Result: Match, Detail: p.Exe + ": " + e}
			}
		}
		return Finding{Result: NoMatch}
	})
}

// TitleProbe matches top-level window titles against deny.
func TitleProbe(titles func() ([]string, error), deny DenyList) Probe {
	return NewProbe("window-scan", func() Finding {
		ts, err := titles()
		if err != nil {
			return Finding{Result: Unavailable, Detail: err.Error()}
		}
		for _, t := range ts {
			if e, ok := deny.Match(t); ok {
				return Finding{Result: Match, Detail: t + ": " + e}
			}
		}
		return Finding{Result: NoMatch}
	})
}

// ModuleProbe matches modules loaded into our own process against deny.
func ModuleProbe(modules func() ([]string, error), deny DenyList) Probe {
	return NewProbe("module-scan", func() Finding {
		mods, err := modules()
		if err != nil {
			return Finding{Result: Unavailable, Detail: err.Error()}
		}
		for _, m := range mods {
			if e, ok := deny.Match(filepath.Base(m)); ok {
				return Finding{Result: Match, Detail: m + ": " + e}
			}
		}
		return Finding{Result: NoMatch}
	})
}
