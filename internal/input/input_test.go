package input

import (
	"errors"
	"testing"
	"unsafe"
)

type stubAuth struct{ err error }

func (a stubAuth) RequireAuthorized() error { return a.err }

var errDenied = errors.New("not authorized")

type fakeHook struct {
	released *int
}

func (h fakeHook) Release() error {
	*h.released++
	return nil
}

// fakeHooks records installed callbacks instead of touching the OS.
type fakeHooks struct {
	mouse    MouseProc
	keyboard KeyProc
	raw      RawProc
	installs int
	releases int
	fail     error
}

func (f *fakeHooks) HookMouse(fn MouseProc) (Hook, error) {
	if f.fail != nil {
		return nil, f.fail
	}
	f.mouse = fn
	f.installs++
	return fakeHook{&f.releases}, nil
}

func (f *fakeHooks) HookKeyboard(fn KeyProc) (Hook, error) {
	if f.fail != nil {
		return nil, f.fail
	}
	f.keyboard = fn
	f.installs++
	return fakeHook{&f.releases}, nil
}

func (f *fakeHooks) RegisterRaw(fn RawProc) (Hook, error) {
	if f.fail != nil {
		return nil, f.fail
	}
	f.raw = fn
	f.installs++
	return fakeHook{&f.releases}, nil
}

func rawPacket(typ uint32, dx, dy int32) []byte {
	ri := RAWINPUT{}
	ri.Header.DwType = typ
	ri.Header.DwSize = uint32(unsafe.Sizeof(ri))
	ri.Mouse.LLastX = dx
	ri.Mouse.LLastY = dy
	b := unsafe.Slice((*byte)(unsafe.Pointer(&ri)), unsafe.Sizeof(ri))
	return append([]byte(nil), b...)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		msg       uint32
		mouseData uint32
		want      Channel
		ok        bool
	}{
		{"left down", WM_LBUTTONDOWN, 0, Left, true},
		{"left dblclk", WM_LBUTTONDBLCLK, 0, Left, true},
		{"right up", WM_RBUTTONUP, 0, Right, true},
		{"middle down", WM_MBUTTONDOWN, 0, Middle, true},
		{"xbutton1", WM_XBUTTONDOWN, XBUTTON1 << 16, Back, true},
		{"xbutton2", WM_XBUTTONUP, XBUTTON2 << 16, Forward, true},
		{"xbutton2 low word ignored", WM_XBUTTONDOWN, XBUTTON2, Back, true},
		{"wheel", WM_MOUSEWHEEL, 120 << 16, Wheel, true},
		{"hwheel", WM_MOUSEHWHEEL, 0, Wheel, true},
		{"move", WM_MOUSEMOVE, 0, 0, false},
		{"unknown", 0x1234, 0, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Classify(tt.msg, tt.mouseData)
			if ok != tt.ok || got != tt.want {
				t.Errorf("Classify(%#x, %#x) = %v, %v; want %v, %v", tt.msg, tt.mouseData, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestParseChannels(t *testing.T) {
	s, err := ParseChannels([]string{"Left", " wheel ", ""})
	if err != nil {
		t.Fatalf("ParseChannels failed: %v", err)
	}
	if !s.Has(Left) || !s.Has(Wheel) || s.Has(Right) {
		t.Errorf("unexpected set %v", s)
	}
	if s.String() != "left,wheel" {
		t.Errorf("String() = %q", s.String())
	}

	if _, err := ParseChannels([]string{"left", "thumb"}); err == nil {
		t.Error("expected error for unknown channel")
	}
}

func TestBlockerFilter(t *testing.T) {
	b := NewBlocker(stubAuth{}, &fakeHooks{})

	if !b.Filter(WM_MOUSEMOVE, 0) {
		t.Error("moves must always be swallowed")
	}
	if !b.Filter(WM_LBUTTONDOWN, 0) || !b.Filter(WM_RBUTTONUP, 0) {
		t.Error("default set should swallow left and right")
	}
	if b.Filter(WM_MOUSEWHEEL, 0) || b.Filter(WM_MBUTTONDOWN, 0) {
		t.Error("wheel and middle should pass with the default set")
	}
	if b.Filter(0x1234, 0) {
		t.Error("unclassified events should pass")
	}

	b.SetBlocked(Channels(0).With(Wheel).With(Forward))
	if b.Filter(WM_LBUTTONDOWN, 0) {
		t.Error("left should pass after SetBlocked")
	}
	if !b.Filter(WM_MOUSEWHEEL, 0) || !b.Filter(WM_XBUTTONDOWN, XBUTTON2<<16) {
		t.Error("wheel and forward should be swallowed")
	}
	if b.Filter(WM_XBUTTONDOWN, XBUTTON1<<16) {
		t.Error("back should pass")
	}
}

func TestBlockerStartRequiresAuthorization(t *testing.T) {
	hooks := &fakeHooks{}
	b := NewBlocker(stubAuth{err: errDenied}, hooks)

	if err := b.Start(); !errors.Is(err, errDenied) {
		t.Fatalf("Start() = %v, want %v", err, errDenied)
	}
	if hooks.installs != 0 || b.Running() {
		t.Error("nothing should be installed without authorization")
	}
}

func TestBlockerStartStopIdempotent(t *testing.T) {
	hooks := &fakeHooks{}
	b := NewBlocker(stubAuth{}, hooks)

	for i := 0; i < 2; i++ {
		if err := b.Start(); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
	}
	if hooks.installs != 1 {
		t.Errorf("installs = %d, want 1", hooks.installs)
	}
	for i := 0; i < 2; i++ {
		if err := b.Stop(); err != nil {
			t.Fatalf("Stop failed: %v", err)
		}
	}
	if hooks.releases != 1 || b.Running() {
		t.Errorf("releases = %d, want 1", hooks.releases)
	}
}

func TestBlockerStartError(t *testing.T) {
	osErr := errors.New("SetWindowsHookEx(WH_MOUSE_LL) failed: Access is denied.")
	b := NewBlocker(stubAuth{}, &fakeHooks{fail: osErr})
	if err := b.Start(); !errors.Is(err, osErr) {
		t.Fatalf("Start() = %v, want wrapped %v", err, osErr)
	}
	if b.Running() {
		t.Error("blocker should not be running after a failed start")
	}
}

func TestCapturePackets(t *testing.T) {
	var got [][2]int
	hooks := &fakeHooks{}
	c := NewCapture(stubAuth{}, hooks, func(dx, dy int) {
		got = append(got, [2]int{dx, dy})
	})

	if err := c.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if hooks.raw == nil {
		t.Fatal("raw callback not registered")
	}

	hooks.raw(rawPacket(RIM_TYPEMOUSE, 5, -3))
	hooks.raw(rawPacket(RIM_TYPEMOUSE, 0, 0))
	hooks.raw(rawPacket(1, 9, 9))
	hooks.raw([]byte{1, 2, 3})
	hooks.raw(rawPacket(RIM_TYPEMOUSE, -300, 0))

	want := [][2]int{{5, -3}, {-300, 0}}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("delta %d = %v, want %v", i, got[i], want[i])
		}
	}

	if err := c.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if c.Running() {
		t.Error("capture still running after Stop")
	}
}

func TestCaptureRequiresAuthorization(t *testing.T) {
	hooks := &fakeHooks{}
	c := NewCapture(stubAuth{err: errDenied}, hooks, nil)
	if err := c.Start(); !errors.Is(err, errDenied) {
		t.Fatalf("Start() = %v, want %v", err, errDenied)
	}
	if hooks.installs != 0 {
		t.Error("raw input registered without authorization")
	}
}

func TestRawMouseLayout(t *testing.T) {
	// RAWMOUSE is 24 bytes; lLastX follows the 4-byte aligned button union.
	if unsafe.Sizeof(RAWMOUSE{}) != 24 {
		t.Errorf("RAWMOUSE size = %d, want 24", unsafe.Sizeof(RAWMOUSE{}))
	}
	if off := unsafe.Offsetof(RAWMOUSE{}.LLastX); off != 12 {
		t.Errorf("LLastX offset = %d, want 12", off)
	}
}

func TestEscapeOncePerPress(t *testing.T) {
	fired := 0
	e := NewEscape(stubAuth{}, &fakeHooks{}, 0, func() { fired++ })

	if e.Key() != VK_ESCAPE {
		t.Fatalf("default key = %#x", e.Key())
	}

	if !e.HandleKey(WM_KEYDOWN, VK_ESCAPE) {
		t.Error("escape down should be swallowed")
	}
	// Auto-repeat
	e.HandleKey(WM_KEYDOWN, VK_ESCAPE)
	e.HandleKey(WM_KEYDOWN, VK_ESCAPE)
	if fired != 1 {
		t.Errorf("fired = %d after repeat, want 1", fired)
	}
	if !e.HandleKey(WM_KEYUP, VK_ESCAPE) {
		t.Error("escape up should be swallowed")
	}

	e.HandleKey(WM_SYSKEYDOWN, VK_ESCAPE)
	if fired != 2 {
		t.Errorf("fired = %d after second press, want 2", fired)
	}

	if e.HandleKey(WM_KEYDOWN, 'A') {
		t.Error("other keys must pass")
	}
	if fired != 2 {
		t.Errorf("other keys should not fire, fired = %d", fired)
	}
}

func TestEscapeStartRequiresAuthorization(t *testing.T) {
	hooks := &fakeHooks{}
	e := NewEscape(stubAuth{err: errDenied}, hooks, 0, nil)
	if err := e.Start(); !errors.Is(err, errDenied) {
		t.Fatalf("Start() = %v", err)
	}
	if hooks.keyboard != nil {
		t.Error("keyboard hook installed without authorization")
	}
}

func TestKeyCode(t *testing.T) {
	tests := []struct {
		name string
		want uint32
		ok   bool
	}{
		{"Esc", VK_ESCAPE, true},
		{"escape", VK_ESCAPE, true},
		{"F12", 0x7B, true},
		{"f1", 0x70, true},
		{"Pause", 0x13, true},
		{"q", 'Q', true},
		{"0x1b", 0x1B, true},
		{"F25", 0, false},
		{"", 0, false},
		{"hyper", 0, false},
	}
	for _, tt := range tests {
		got, err := KeyCode(tt.name)
		if (err == nil) != tt.ok || got != tt.want {
			t.Errorf("KeyCode(%q) = %#x, %v; want %#x ok=%v", tt.name, got, err, tt.want, tt.ok)
		}
	}

	if KeyName(0x7B) != "F12" || KeyName(VK_ESCAPE) != "ESC" {
		t.Error("KeyName mismatch")
	}
}
