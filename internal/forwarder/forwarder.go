// Package forwarder ties capture, blocking and the serial link together
// behind a single forwarding switch.
package forwarder

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	log "github.com/sirupsen/logrus"

	"mousefwd/internal/input"
	"mousefwd/internal/link"
)

// Authorizer gates turning forwarding on.
type Authorizer interface {
	RequireAuthorized() error
	Authorized() bool
}

// Component is a startable input component.
type Component interface {
	Start() error
	Stop() error
}

// Link is the delta sink.
type Link interface {
	Open(name string, baud int) error
	Close() error
	Send(dx, dy int)
	State() link.State
	OnEvent(fn func(link.Event))
}

// Status is a snapshot for the tray and the status API.
type Status struct {
	Authorized       bool       `json:"authorized"`
	Forwarding       bool       `json:"forwarding"`
	Link             link.State `json:"link"`
	PacketsPerSecond float64    `json:"pps"`
	Blocked          []string   `json:"blocked"`
	LastError        string     `json:"last_error,omitempty"`
}

// Controller owns the forwarding state.
type Controller struct {
	auth Authorizer
	link Link

	mu         sync.Mutex
	capture    Component
	blocker    Component
	escape     Component
	forwarding atomic.Bool
	pps        atomic.Uint64
	lastErr    atomic.Value // string

	listenersMu sync.RWMutex
	listeners   []func(Status)
}

// New creates a controller and subscribes to link events.
func New(auth Authorizer, l Link) *Controller {
	c := &Controller{
		auth: auth,
		link: l,
	}
	c.lastErr.Store("")
	l.OnEvent(c.handleLinkEvent)
	return c
}

// Attach sets the components started and stopped with forwarding. Any of
// them may be nil.
func (c *Controller) Attach(capture, blocker, escape Component) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.capture = capture
	c.blocker = blocker
	c.escape = escape
}

// OnChange registers a status listener. Listeners must not block.
func (c *Controller) OnChange(fn func(Status)) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	c.listeners = append(c.listeners, fn)
}

func (c *Controller) notify() {
	st := c.Status()

	c.listenersMu.RLock()
	listeners := make([]func(Status), len(c.listeners))
	copy(listeners, c.listeners)
	c.listenersMu.RUnlock()

	for _, fn := range listeners {
		fn(st)
	}
}

// Forwarding reports whether deltas are being forwarded.
func (c *Controller) Forwarding() bool {
	return c.forwarding.Load()
}

// SetForwarding turns forwarding on or off. Turning it on requires an
// authorized session and an open link; a component that fails to start
// rolls back the ones already started.
func (c *Controller) SetForwarding(on bool) error {
	c.mu.Lock()
	err := c.setForwardingLocked(on)
	c.mu.Unlock()

	if err != nil {
		c.lastErr.Store(err.Error())
	} else {
		c.lastErr.Store("")
	}
	c.notify()
	return err
}

func (c *Controller) setForwardingLocked(on bool) error {
	if on == c.forwarding.Load() {
		return nil
	}

	if !on {
		c.forwarding.Store(false)
		var errs []error
		for _, comp := range []Component{c.escape, c.blocker, c.capture} {
			if comp == nil {
				continue
			}
			if err := comp.Stop(); err != nil {
				errs = append(errs, err)
			}
		}
		log.Info("Forwarder: forwarding disabled")
		return errors.Join(errs...)
	}

	if err := c.auth.RequireAuthorized(); err != nil {
		return fmt.Errorf("forwarder: %w", err)
	}
	if !c.link.State().Open {
		return fmt.Errorf("forwarder: %w", link.ErrNotOpen)
	}

	var started []Component
	for _, comp := range []Component{c.capture, c.blocker, c.escape} {
		if comp == nil {
			continue
		}
		if err := comp.Start(); err != nil {
			for i := len(started) - 1; i >= 0; i-- {
				if stopErr := started[i].Stop(); stopErr != nil {
					log.WithError(stopErr).Warn("Forwarder: rollback stop failed")
				}
			}
			return err
		}
		started = append(started, comp)
	}

	c.forwarding.Store(true)
	log.Info("Forwarder: forwarding enabled")
	return nil
}

// Toggle flips forwarding.
func (c *Controller) Toggle() error {
	return c.SetForwarding(!c.Forwarding())
}

// HandleDelta forwards one motion sample while forwarding is on. It runs on
// the input thread.
func (c *Controller) HandleDelta(dx, dy int) {
	if c.forwarding.Load() {
		c.link.Send(dx, dy)
	}
}

// HandleEscape disables forwarding without blocking the caller.
func (c *Controller) HandleEscape() {
	go func() {
		if err := c.SetForwarding(false); err != nil {
			log.WithError(err).Warn("Forwarder: escape stop failed")
		}
	}()
}

// Connect opens the link.
func (c *Controller) Connect(port string, baud int) error {
	err := c.link.Open(port, baud)
	if err != nil {
		c.lastErr.Store(err.Error())
		c.notify()
	}
	return err
}

// Disconnect stops forwarding and closes the link.
func (c *Controller) Disconnect() error {
	stopErr := c.SetForwarding(false)
	return errors.Join(stopErr, c.link.Close())
}

func (c *Controller) handleLinkEvent(ev link.Event) {
	switch ev.Type {
	case link.EventStats:
		c.pps.Store(math.Float64bits(ev.PacketsPerSecond))
	case link.EventDisconnected:
		c.pps.Store(0)
		if ev.Err != nil {
			c.lastErr.Store(ev.Err.Error())
		}
		if c.forwarding.Load() {
			// Link events may arrive on the sender goroutine.
			go func() {
				if err := c.SetForwarding(false); err != nil {
					log.WithError(err).Warn("Forwarder: stop after disconnect failed")
				}
			}()
			return
		}
	}
	c.notify()
}

// Status returns the current snapshot.
func (c *Controller) Status() Status {
	st := Status{
		Authorized:       c.auth.Authorized(),
		Forwarding:       c.forwarding.Load(),
		Link:             c.link.State(),
		PacketsPerSecond: math.Float64frombits(c.pps.Load()),
		LastError:        c.lastErr.Load().(string),
	}

	c.mu.Lock()
	blocker := c.blocker
	c.mu.Unlock()

	if b, ok := blocker.(interface{ Blocked() input.Channels }); ok {
		st.Blocked = b.Blocked().Names()
	}
	return st
}
