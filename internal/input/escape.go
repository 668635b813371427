package input

import (
	"fmt"
	"sync"
	"sync/atomic"

	log "github.com/sirupsen/logrus"
)

// Escape fires a callback when the designated key is pressed.
type Escape struct {
	auth     Authorizer
	hooks    Hooks
	vk       uint32
	onEscape func()

	held atomic.Bool

	mu   sync.Mutex
	hook Hook
}

// NewEscape creates an escape listener for vk; zero selects VK_ESCAPE.
// onEscape runs on the input thread and must not block.
func NewEscape(auth Authorizer, hooks Hooks, vk uint32, onEscape func()) *Escape {
	if vk == 0 {
		vk = VK_ESCAPE
	}
	return &Escape{
		auth:     auth,
		hooks:    hooks,
		vk:       vk,
		onEscape: onEscape,
	}
}

// Key returns the designated virtual key.
func (e *Escape) Key() uint32 {
	return e.vk
}

// Start installs the low-level keyboard hook.
func (e *Escape) Start() error {
	if err := e.auth.RequireAuthorized(); err != nil {
		return fmt.Errorf("escape: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.hook != nil {
		return nil
	}

	e.held.Store(false)
	h, err := e.hooks.HookKeyboard(e.HandleKey)
	if err != nil {
		return fmt.Errorf("escape: install keyboard hook: %w", err)
	}
	e.hook = h
	log.WithField("key", KeyName(e.vk)).Debug("Escape: keyboard hook installed")
	return nil
}

// Stop removes the hook.
func (e *Escape) Stop() error {
	e.mu.Lock()
	h := e.hook
	e.hook = nil
	e.mu.Unlock()

	if h == nil {
		return nil
	}
	if err := h.Release(); err != nil {
		return fmt.Errorf("escape: remove keyboard hook: %w", err)
	}
	log.Debug("Escape: keyboard hook removed")
	return nil
}

// HandleKey reports whether a keyboard event should be swallowed. Only the
// designated key is swallowed, and auto-repeat does not fire again.
func (e *Escape) HandleKey(msg uint32, vk uint32) bool {
	if vk != e.vk {
		return false
	}

	switch msg {
	case WM_KEYDOWN, WM_SYSKEYDOWN:
		if e.held.CompareAndSwap(false, true) {
			log.Info("Escape: key pressed")
			if e.onEscape != nil {
				e.onEscape()
			}
		}
		return true
	case WM_KEYUP, WM_SYSKEYUP:
		e.held.Store(false)
		return true
	}
	return false
}
