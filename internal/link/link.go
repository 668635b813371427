// Package link streams motion deltas to the attached board over a serial
// port, one 2-byte packet per sample.
package link

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"mousefwd/internal/protocol"
)

const (
	// DefaultBaud matches the board firmware.
	DefaultBaud = 1000000

	// QueueSize bounds the pending sample buffer.
	QueueSize = 4096

	pollInterval  = 10 * time.Millisecond
	statsInterval = time.Second
	joinTimeout   = 200 * time.Millisecond
)

// ErrNotOpen is returned by operations that need an open port.
var ErrNotOpen = errors.New("link: not connected")

// Port is the byte sink the sender writes to.
type Port = io.WriteCloser

// Opener opens a named port at the given baud rate.
type Opener func(name string, baud int) (Port, error)

// State is a snapshot of the link.
type State struct {
	Port string `json:"port"`
	Baud int    `json:"baud"`
	Open bool   `json:"open"`
}

// EventType names a link event.
type EventType string

const (
	EventConnected    EventType = "connected"
	EventDisconnected EventType = "disconnected"
	EventStats        EventType = "stats"
)

// Event is delivered to listeners registered with OnEvent.
type Event struct {
	Type             EventType
	Port             string
	Baud             int
	PacketsPerSecond float64
	Err              error
}

// conn is one open generation of the link.
type conn struct {
	port  Port
	name  string
	baud  int
	queue chan protocol.Delta
	stop  chan struct{}
	done  chan struct{}
}

// Link owns the serial port and its sender goroutine.
type Link struct {
	opener  Opener
	metrics *Metrics

	// openMu serializes Open so close, open and install happen as one step.
	openMu sync.Mutex

	mu     sync.Mutex
	cur    *conn
	active atomic.Pointer[conn]

	listenersMu sync.RWMutex
	listeners   []func(Event)

	dropped atomic.Uint64
}

// New creates a closed link. A nil metrics set records nothing externally.
func New(opener Opener, metrics *Metrics) *Link {
	if opener == nil {
		opener = SerialOpener
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Link{
		opener:  opener,
		metrics: metrics,
	}
}

// OnEvent registers a listener. Listeners run on the goroutine that caused
// the event and must not block.
func (l *Link) OnEvent(fn func(Event)) {
	l.listenersMu.Lock()
	defer l.listenersMu.Unlock()
	l.listeners = append(l.listeners, fn)
}

func (l *Link) emit(ev Event) {
	l.listenersMu.RLock()
	listeners := make([]func(Event), len(l.listeners))
	copy(listeners, l.listeners)
	l.listenersMu.RUnlock()

	for _, fn := range listeners {
		fn(ev)
	}
}

// Open closes any current port, then opens name at baud and starts the
// sender.
func (l *Link) Open(name string, baud int) error {
	if baud <= 0 {
		baud = DefaultBaud
	}

	l.openMu.Lock()
	defer l.openMu.Unlock()

	l.Close()

	port, err := l.opener(name, baud)
	if err != nil {
		return fmt.Errorf("link: open %s: %w", name, err)
	}

	c := &conn{
		port:  port,
		name:  name,
		baud:  baud,
		queue: make(chan protocol.Delta, QueueSize),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}

	l.mu.Lock()
	l.cur = c
	l.active.Store(c)
	l.mu.Unlock()

	l.metrics.Connected.Set(1)
	go l.sendLoop(c)

	log.WithFields(log.Fields{"port": name, "baud": baud}).Info("Link: connected")
	l.emit(Event{Type: EventConnected, Port: name, Baud: baud})
	return nil
}

// Close stops the sender and closes the port. Closing a closed link is a
// no-op and emits nothing.
func (l *Link) Close() error {
	l.mu.Lock()
	c := l.cur
	l.mu.Unlock()

	if c == nil {
		return nil
	}
	return l.shutdown(c, nil, true)
}

// shutdown tears down c if it is still the current generation.
func (l *Link) shutdown(c *conn, cause error, wait bool) error {
	l.mu.Lock()
	if l.cur != c {
		l.mu.Unlock()
		return nil
	}
	l.cur = nil
	l.active.Store(nil)
	l.mu.Unlock()

	close(c.stop)
	if wait {
		select {
		case <-c.done:
		case <-time.After(joinTimeout):
			log.WithField("port", c.name).Warn("Link: sender did not stop in time")
		}
	}

	err := c.port.Close()
	l.metrics.Connected.Set(0)

	entry := log.WithField("port", c.name)
	if cause != nil {
		entry.WithError(cause).Warn("Link: disconnected")
	} else {
		entry.Info("Link: disconnected")
	}
	l.emit(Event{Type: EventDisconnected, Port: c.name, Baud: c.baud, Err: cause})

	if err != nil {
		return fmt.Errorf("link: close %s: %w", c.name, err)
	}
	return nil
}

// Send clamps and queues one sample. It never blocks; samples are dropped
// when the link is closed or the queue is full.
func (l *Link) Send(dx, dy int) {
	c := l.active.Load()
	if c == nil {
		return
	}
	select {
	case c.queue <- protocol.Clamp(dx, dy):
	default:
		l.dropped.Add(1)
		l.metrics.Dropped.Inc()
	}
}

// State returns the current link state.
func (l *Link) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cur == nil {
		return State{}
	}
	return State{Port: l.cur.name, Baud: l.cur.baud, Open: true}
}

// Connected reports whether a port is open.
func (l *Link) Connected() bool {
	return l.active.Load() != nil
}

// Dropped returns the number of samples dropped on a full queue.
func (l *Link) Dropped() uint64 {
	return l.dropped.Load()
}

func (l *Link) sendLoop(c *conn) {
	defer close(c.done)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	sent := 0
	last := time.Now()

	for {
		select {
		case <-c.stop:
			return

		case d := <-c.queue:
			b := d.Bytes()
			n, err := c.port.Write(b[:])
			if err == nil && n != len(b) {
				err = io.ErrShortWrite
			}
			if err != nil {
				l.metrics.WriteErrors.Inc()
				l.shutdown(c, fmt.Errorf("link: write %s: %w", c.name, err), false)
				return
			}
			sent++
			l.metrics.Sent.Inc()

		case now := <-ticker.C:
			elapsed := now.Sub(last)
			if elapsed < statsInterval {
				continue
			}
			pps := float64(sent) / elapsed.Seconds()
			sent = 0
			last = now
			l.emit(Event{Type: EventStats, Port: c.name, Baud: c.baud, PacketsPerSecond: pps})
		}
	}
}
