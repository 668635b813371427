package input

import (
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
)

// Capture turns raw pointer packets into relative motion deltas.
type Capture struct {
	auth    Authorizer
	hooks   Hooks
	onDelta func(dx, dy int)

	mu   sync.Mutex
	hook Hook
}

// NewCapture creates a capture component. onDelta runs on the input
// thread and must not block.
func NewCapture(auth Authorizer, hooks Hooks, onDelta func(dx, dy int)) *Capture {
	return &Capture{
		auth:    auth,
		hooks:   hooks,
		onDelta: onDelta,
	}
}

// Start registers for raw pointer input. Calling Start on a running
// capture is a no-op.
func (c *Capture) Start() error {
	if err := c.auth.RequireAuthorized(); err != nil {
		return fmt.Errorf("capture: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.hook != nil {
		return nil
	}

	h, err := c.hooks.RegisterRaw(c.HandlePacket)
	if err != nil {
		return fmt.Errorf("capture: register raw input: %w", err)
	}
	c.hook = h
	log.Debug("Capture: raw pointer input registered")
	return nil
}

// Stop removes the raw input registration.
func (c *Capture) Stop() error {
	c.mu.Lock()
	h := c.hook
	c.hook = nil
	c.mu.Unlock()

	if h == nil {
		return nil
	}
	if err := h.Release(); err != nil {
		return fmt.Errorf("capture: unregister raw input: %w", err)
	}
	log.Debug("Capture: raw pointer input removed")
	return nil
}

// Running reports whether the registration is held.
func (c *Capture) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hook != nil
}

// HandlePacket decodes one WM_INPUT payload. Packets from other device
// classes and zero motion are ignored.
func (c *Capture) HandlePacket(packet []byte) {
	dx, dy, ok := decodeRawMouse(packet)
	if !ok || (dx == 0 && dy == 0) {
		return
	}
	if c.onDelta != nil {
		c.onDelta(int(dx), int(dy))
	}
}
