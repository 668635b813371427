package input

import (
	"fmt"
	"sync"
	"sync/atomic"

	log "github.com/sirupsen/logrus"
)

// Blocker swallows pointer moves and the configured button/wheel channels
// system-wide while it is running.
type Blocker struct {
	auth    Authorizer
	hooks   Hooks
	blocked atomic.Uint32

	mu   sync.Mutex
	hook Hook
}

// NewBlocker creates a blocker with DefaultBlocked.
func NewBlocker(auth Authorizer, hooks Hooks) *Blocker {
	b := &Blocker{
		auth:  auth,
		hooks: hooks,
	}
	b.blocked.Store(uint32(DefaultBlocked))
	return b
}

// Start installs the low-level mouse hook.
func (b *Blocker) Start() error {
	if err := b.auth.RequireAuthorized(); err != nil {
		return fmt.Errorf("blocker: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.hook != nil {
		return nil
	}

	h, err := b.hooks.HookMouse(b.Filter)
	if err != nil {
		return fmt.Errorf("blocker: install mouse hook: %w", err)
	}
	b.hook = h
	log.WithField("blocked", b.Blocked().String()).Info("Blocker: mouse hook installed")
	return nil
}

// Stop removes the hook. Nothing is swallowed afterwards.
func (b *Blocker) Stop() error {
	b.mu.Lock()
	h := b.hook
	b.hook = nil
	b.mu.Unlock()

	if h == nil {
		return nil
	}
	if err := h.Release(); err != nil {
		return fmt.Errorf("blocker: remove mouse hook: %w", err)
	}
	log.Info("Blocker: mouse hook removed")
	return nil
}

// Running reports whether the hook is installed.
func (b *Blocker) Running() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hook != nil
}

// SetBlocked replaces the blocked set. It takes effect on the next event.
func (b *Blocker) SetBlocked(s Channels) {
	b.blocked.Store(uint32(s))
}

// Blocked returns the current blocked set.
func (b *Blocker) Blocked() Channels {
	return Channels(b.blocked.Load())
}

// Filter reports whether an event should be swallowed.
func (b *Blocker) Filter(msg uint32, mouseData uint32) bool {
	if msg == WM_MOUSEMOVE {
		return true
	}
	c, ok := Classify(msg, mouseData)
	if !ok {
		return false
	}
	return b.Blocked().Has(c)
}
