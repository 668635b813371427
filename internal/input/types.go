// Package input provides the Windows input core: raw pointer capture, the
// system-wide button/wheel blocker and the escape-key listener, all driven
// by one platform input-event thread.
package input

import "errors"

var (
	// ErrUnsupported is returned by the input thread on non-Windows platforms.
	ErrUnsupported = errors.New("input: not supported on this platform")

	// ErrNotRunning is returned when the input thread has not been started.
	ErrNotRunning = errors.New("input: event thread not running")

	// ErrAlreadyHooked is returned when a second hook of the same kind is requested.
	ErrAlreadyHooked = errors.New("input: hook already installed")
)

// Authorizer gates the start of every privileged component.
type Authorizer interface {
	RequireAuthorized() error
}

// Window message codes seen by the low-level hooks.
const (
	WM_KEYDOWN       = 0x0100
	WM_KEYUP         = 0x0101
	WM_SYSKEYDOWN    = 0x0104
	WM_SYSKEYUP      = 0x0105
	WM_INPUT         = 0x00FF
	WM_MOUSEMOVE     = 0x0200
	WM_LBUTTONDOWN   = 0x0201
	WM_LBUTTONUP     = 0x0202
	WM_LBUTTONDBLCLK = 0x0203
	WM_RBUTTONDOWN   = 0x0204
	WM_RBUTTONUP     = 0x0205
	WM_RBUTTONDBLCLK = 0x0206
	WM_MBUTTONDOWN   = 0x0207
	WM_MBUTTONUP     = 0x0208
	WM_MBUTTONDBLCLK = 0x0209
	WM_MOUSEWHEEL    = 0x020A
	WM_XBUTTONDOWN   = 0x020B
	WM_XBUTTONUP     = 0x020C
	WM_XBUTTONDBLCLK = 0x020D
	WM_MOUSEHWHEEL   = 0x020E

	XBUTTON1 = 0x0001
	XBUTTON2 = 0x0002
)

// MouseProc decides whether a low-level mouse event is swallowed.
// mouseData is MSLLHOOKSTRUCT.mouseData.
type MouseProc func(msg uint32, mouseData uint32) bool

// KeyProc decides whether a low-level keyboard event is swallowed.
type KeyProc func(msg uint32, vk uint32) bool

// RawProc receives the payload fetched for one WM_INPUT notification.
type RawProc func(packet []byte)

// Hook is one installed OS registration.
type Hook interface {
	Release() error
}

// Hooks installs callbacks on the platform input-event thread. Every
// callback runs on that single thread, serialized, and must not block.
type Hooks interface {
	HookMouse(fn MouseProc) (Hook, error)
	HookKeyboard(fn KeyProc) (Hook, error)
	RegisterRaw(fn RawProc) (Hook, error)
}
