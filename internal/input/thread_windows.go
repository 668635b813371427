//go:build windows

package input

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"syscall"
	"unsafe"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/windows"
)

var (
	user32                      = windows.NewLazySystemDLL("user32.dll")
	kernel32                    = windows.NewLazySystemDLL("kernel32.dll")
	procRegisterRawInputDevices = user32.NewProc("RegisterRawInputDevices")
	procGetRawInputData         = user32.NewProc("GetRawInputData")
	procCreateWindowEx          = user32.NewProc("CreateWindowExW")
	procDestroyWindow           = user32.NewProc("DestroyWindow")
	procDefWindowProc           = user32.NewProc("DefWindowProcW")
	procRegisterClassEx         = user32.NewProc("RegisterClassExW")
	procGetMessage              = user32.NewProc("GetMessageW")
	procTranslateMessage        = user32.NewProc("TranslateMessage")
	procDispatchMessage         = user32.NewProc("DispatchMessageW")
	procPostThreadMessage       = user32.NewProc("PostThreadMessageW")
	procSetWindowsHookEx        = user32.NewProc("SetWindowsHookExW")
	procUnhookWindowsHookEx     = user32.NewProc("UnhookWindowsHookEx")
	procCallNextHookEx          = user32.NewProc("CallNextHookEx")
	procGetModuleHandle         = kernel32.NewProc("GetModuleHandleW")
)

const (
	WH_KEYBOARD_LL = 13
	WH_MOUSE_LL    = 14
	WM_QUIT        = 0x0012
	WM_APP         = 0x8000

	hwndMessage = ^uintptr(2) // HWND_MESSAGE (-3)

	errClassAlreadyExists = 1410
)

type wndClassEx struct {
	CbSize        uint32
	Style         uint32
	LpfnWndProc   uintptr
	CbClsExtra    int32
	CbWndExtra    int32
	HInstance     uintptr
	HIcon         uintptr
	HCursor       uintptr
	HbrBackground uintptr
	LpszMenuName  *uint16
	LpszClassName *uint16
	HIconSm       uintptr
}

type msg struct {
	Hwnd    uintptr
	Message uint32
	WParam  uintptr
	LParam  uintptr
	Time    uint32
	Pt      struct{ X, Y int32 }
}

type rawInputDevice struct {
	UsUsagePage uint16
	UsUsage     uint16
	DwFlags     uint32
	HwndTarget  uintptr
}

type msllHookStruct struct {
	Pt          struct{ X, Y int32 }
	MouseData   uint32
	Flags       uint32
	Time        uint32
	DwExtraInfo uintptr
}

type kbdllHookStruct struct {
	VkCode      uint32
	ScanCode    uint32
	Flags       uint32
	Time        uint32
	DwExtraInfo uintptr
}

// Callbacks are created once; Windows limits how many a process may hold.
var (
	active atomic.Pointer[Thread]

	wndProcCallback   = syscall.NewCallback(wndProc)
	mouseHookCallback = syscall.NewCallback(mouseHookProc)
	keyHookCallback   = syscall.NewCallback(keyHookProc)
)

var className = windows.StringToUTF16Ptr("MouseFwdInputSink")

// Thread is the platform input-event thread. It owns a message-only window
// for raw input and every low-level hook of the process.
type Thread struct {
	mu      sync.Mutex
	running bool
	tid     uint32
	hwnd    uintptr
	calls   chan func()
	done    chan struct{}

	// Owned by the locked OS thread.
	mouse     MouseProc
	keyboard  KeyProc
	raw       RawProc
	mouseHook uintptr
	keyHook   uintptr
}

// NewThread creates a stopped input thread.
func NewThread() *Thread {
	return &Thread{}
}

// Start launches the locked OS thread and waits until its window exists.
func (t *Thread) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running {
		return nil
	}
	if !active.CompareAndSwap(nil, t) {
		return fmt.Errorf("input: another event thread is active")
	}

	t.calls = make(chan func(), 16)
	t.done = make(chan struct{})
	ready := make(chan error, 1)

	go t.loop(ready)

	if err := <-ready; err != nil {
		active.CompareAndSwap(t, nil)
		return err
	}
	t.running = true
	log.Info("Input: event thread started")
	return nil
}

// Stop releases every hook and registration, then ends the thread.
func (t *Thread) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.running {
		return nil
	}
	t.running = false

	procPostThreadMessage.Call(uintptr(t.tid), WM_QUIT, 0, 0)
	<-t.done
	active.CompareAndSwap(t, nil)
	log.Info("Input: event thread stopped")
	return nil
}

// Do runs fn on the input thread and waits for it. Called from the thread
// itself, fn runs inline.
func (t *Thread) Do(fn func() error) error {
	t.mu.Lock()
	running, tid, calls, done := t.running, t.tid, t.calls, t.done
	t.mu.Unlock()

	if !running {
		return ErrNotRunning
	}
	if windows.GetCurrentThreadId() == tid {
		return fn()
	}

	result := make(chan error, 1)
	select {
	case calls <- func() { result <- fn() }:
	case <-done:
		return ErrNotRunning
	}

	ret, _, err := procPostThreadMessage.Call(uintptr(tid), WM_APP, 0, 0)
	if ret == 0 {
		return fmt.Errorf("input: PostThreadMessage failed: %w", err)
	}

	select {
	case err := <-result:
		return err
	case <-done:
		return ErrNotRunning
	}
}

func (t *Thread) loop(ready chan<- error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(t.done)

	t.tid = windows.GetCurrentThreadId()

	if err := t.createWindow(); err != nil {
		ready <- err
		return
	}
	ready <- nil

	var m msg
	for {
		ret, _, _ := procGetMessage.Call(uintptr(unsafe.Pointer(&m)), 0, 0, 0)
		if int32(ret) <= 0 {
			break
		}
		if m.Hwnd == 0 && m.Message == WM_APP {
			t.drainCalls()
			continue
		}
		procTranslateMessage.Call(uintptr(unsafe.Pointer(&m)))
		procDispatchMessage.Call(uintptr(unsafe.Pointer(&m)))
	}

	t.drainCalls()
	t.releaseAll()
	procDestroyWindow.Call(t.hwnd)
	t.hwnd = 0
}

func (t *Thread) drainCalls() {
	for {
		select {
		case fn := <-t.calls:
			fn()
		default:
			return
		}
	}
}

func (t *Thread) createWindow() error {
	hInstance, _, _ := procGetModuleHandle.Call(0)
	wc := wndClassEx{
		CbSize:        uint32(unsafe.Sizeof(wndClassEx{})),
		LpfnWndProc:   wndProcCallback,
		HInstance:     hInstance,
		LpszClassName: className,
	}
	ret, _, err := procRegisterClassEx.Call(uintptr(unsafe.Pointer(&wc)))
	if ret == 0 {
		if errno, ok := err.(syscall.Errno); !ok || errno != errClassAlreadyExists {
			return fmt.Errorf("input: RegisterClassEx failed: %w", err)
		}
	}

	hwnd, _, err := procCreateWindowEx.Call(
		0,
		uintptr(unsafe.Pointer(className)),
		0,
		0,
		0, 0, 0, 0,
		hwndMessage,
		0, hInstance, 0,
	)
	if hwnd == 0 {
		return fmt.Errorf("input: CreateWindowEx failed: %w", err)
	}
	t.hwnd = hwnd
	return nil
}

func (t *Thread) releaseAll() {
	if t.mouseHook != 0 {
		procUnhookWindowsHookEx.Call(t.mouseHook)
		t.mouseHook = 0
		t.mouse = nil
	}
	if t.keyHook != 0 {
		procUnhookWindowsHookEx.Call(t.keyHook)
		t.keyHook = 0
		t.keyboard = nil
	}
	if t.raw != nil {
		t.unregisterRaw()
	}
}

type threadHook struct {
	once    sync.Once
	release func() error
}

func (h *threadHook) Release() error {
	var err error
	h.once.Do(func() { err = h.release() })
	if errors.Is(err, ErrNotRunning) {
		// The thread already released everything on exit.
		return nil
	}
	return err
}

// HookMouse installs the process's low-level mouse hook.
func (t *Thread) HookMouse(fn MouseProc) (Hook, error) {
	err := t.Do(func() error {
		if t.mouseHook != 0 {
			return ErrAlreadyHooked
		}
		hMod, _, _ := procGetModuleHandle.Call(0)
		h, _, err := procSetWindowsHookEx.Call(WH_MOUSE_LL, mouseHookCallback, hMod, 0)
		if h == 0 {
			return fmt.Errorf("SetWindowsHookEx(WH_MOUSE_LL) failed: %w", err)
		}
		t.mouseHook = h
		t.mouse = fn
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &threadHook{release: func() error {
		return t.Do(func() error {
			if t.mouseHook == 0 {
				return nil
			}
			ret, _, err := procUnhookWindowsHookEx.Call(t.mouseHook)
			t.mouseHook = 0
			t.mouse = nil
			if ret == 0 {
				return fmt.Errorf("UnhookWindowsHookEx failed: %w", err)
			}
			return nil
		})
	}}, nil
}

// HookKeyboard installs the process's low-level keyboard hook.
func (t *Thread) HookKeyboard(fn KeyProc) (Hook, error) {
	err := t.Do(func() error {
		if t.keyHook != 0 {
			return ErrAlreadyHooked
		}
		hMod, _, _ := procGetModuleHandle.Call(0)
		h, _, err := procSetWindowsHookEx.Call(WH_KEYBOARD_LL, keyHookCallback, hMod, 0)
		if h == 0 {
			return fmt.Errorf("SetWindowsHookEx(WH_KEYBOARD_LL) failed: %w", err)
		}
		t.keyHook = h
		t.keyboard = fn
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &threadHook{release: func() error {
		return t.Do(func() error {
			if t.keyHook == 0 {
				return nil
			}
			ret, _, err := procUnhookWindowsHookEx.Call(t.keyHook)
			t.keyHook = 0
			t.keyboard = nil
			if ret == 0 {
				return fmt.Errorf("UnhookWindowsHookEx failed: %w", err)
			}
			return nil
		})
	}}, nil
}

// RegisterRaw registers the window for background raw pointer input.
func (t *Thread) RegisterRaw(fn RawProc) (Hook, error) {
	err := t.Do(func() error {
		if t.raw != nil {
			return ErrAlreadyHooked
		}
		rid := rawInputDevice{
			UsUsagePage: HID_USAGE_PAGE_GENERIC,
			UsUsage:     HID_USAGE_GENERIC_MOUSE,
			DwFlags:     RIDEV_INPUTSINK,
			HwndTarget:  t.hwnd,
		}
		ret, _, err := procRegisterRawInputDevices.Call(
			uintptr(unsafe.Pointer(&rid)), 1, unsafe.Sizeof(rid))
		if ret == 0 {
			return fmt.Errorf("RegisterRawInputDevices failed: %w", err)
		}
		t.raw = fn
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &threadHook{release: func() error {
		return t.Do(func() error {
			if t.raw == nil {
				return nil
			}
			return t.unregisterRaw()
		})
	}}, nil
}

func (t *Thread) unregisterRaw() error {
	t.raw = nil
	rid := rawInputDevice{
		UsUsagePage: HID_USAGE_PAGE_GENERIC,
		UsUsage:     HID_USAGE_GENERIC_MOUSE,
		DwFlags:     RIDEV_REMOVE,
	}
	ret, _, err := procRegisterRawInputDevices.Call(
		uintptr(unsafe.Pointer(&rid)), 1, unsafe.Sizeof(rid))
	if ret == 0 {
		return fmt.Errorf("RegisterRawInputDevices(RIDEV_REMOVE) failed: %w", err)
	}
	return nil
}

func (t *Thread) handleRawInput(lparam uintptr) {
	if t.raw == nil {
		return
	}

	headerSize := unsafe.Sizeof(RAWINPUTHEADER{})
	var size uint32
	ret, _, _ := procGetRawInputData.Call(lparam, RID_INPUT, 0,
		uintptr(unsafe.Pointer(&size)), headerSize)
	if uint32(ret) == 0xFFFFFFFF || size == 0 {
		return
	}

	buf := make([]byte, size)
	ret, _, _ = procGetRawInputData.Call(lparam, RID_INPUT,
		uintptr(unsafe.Pointer(&buf[0])), uintptr(unsafe.Pointer(&size)), headerSize)
	if ret == 0 || uint32(ret) == 0xFFFFFFFF {
		return
	}
	t.raw(buf[:ret])
}

func wndProc(hwnd, message, wparam, lparam uintptr) uintptr {
	if uint32(message) == WM_INPUT {
		if t := active.Load(); t != nil {
			t.handleRawInput(lparam)
		}
	}
	// WM_INPUT still needs DefWindowProc so the system can clean up.
	ret, _, _ := procDefWindowProc.Call(hwnd, message, wparam, lparam)
	return ret
}

func mouseHookProc(nCode, wParam, lParam uintptr) uintptr {
	if int32(nCode) >= 0 {
		if t := active.Load(); t != nil && t.mouse != nil {
			info := (*msllHookStruct)(unsafe.Pointer(lParam))
			if t.mouse(uint32(wParam), info.MouseData) {
				return 1
			}
		}
	}
	ret, _, _ := procCallNextHookEx.Call(0, nCode, wParam, lParam)
	return ret
}

func keyHookProc(nCode, wParam, lParam uintptr) uintptr {
	if int32(nCode) >= 0 {
		if t := active.Load(); t != nil && t.keyboard != nil {
			info := (*kbdllHookStruct)(unsafe.Pointer(lParam))
			if t.keyboard(uint32(wParam), info.VkCode) {
				return 1
			}
		}
	}
	ret, _, _ := procCallNextHookEx.Call(0, nCode, wParam, lParam)
	return ret
}
