package forwarder

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"
	"unsafe"

	"mousefwd/internal/input"
	"mousefwd/internal/link"
	"mousefwd/internal/session"
)

type allowAll struct{}

func (allowAll) Check(ctx context.Context, username, password string) (bool, string, error) {
	return true, username, nil
}

type noMachine struct{}

func (noMachine) MachineGUID() string  { return "" }
func (noMachine) VolumeSerial() string { return "" }

type memPort struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (p *memPort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.Write(b)
}

func (p *memPort) Close() error { return nil }

func (p *memPort) Bytes() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]byte(nil), p.buf.Bytes()...)
}

type nopHook struct{}

func (nopHook) Release() error { return nil }

type fakeHooks struct {
	mu       sync.Mutex
	raw      input.RawProc
	keyboard input.KeyProc
	mouseErr error
}

func (f *fakeHooks) HookMouse(fn input.MouseProc) (input.Hook, error) {
	if f.mouseErr != nil {
		return nil, f.mouseErr
	}
	return nopHook{}, nil
}

func (f *fakeHooks) HookKeyboard(fn input.KeyProc) (input.Hook, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keyboard = fn
	return nopHook{}, nil
}

func (f *fakeHooks) RegisterRaw(fn input.RawProc) (input.Hook, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.raw = fn
	return nopHook{}, nil
}

func rawPacket(dx, dy int32) []byte {
	var ri input.RAWINPUT
	ri.Header.DwType = input.RIM_TYPEMOUSE
	ri.Mouse.LLastX = dx
	ri.Mouse.LLastY = dy
	b := unsafe.Slice((*byte)(unsafe.Pointer(&ri)), unsafe.Sizeof(ri))
	return append([]byte(nil), b...)
}

type rig struct {
	guard   *session.Guard
	link    *link.Link
	port    *memPort
	hooks   *fakeHooks
	ctrl    *Controller
	capture *input.Capture
	blocker *input.Blocker
	escape  *input.Escape
}

func newRig(t *testing.T) *rig {
	t.Helper()
	guard, err := session.NewGuard(allowAll{}, noMachine{})
	if err != nil {
		t.Fatalf("NewGuard failed: %v", err)
	}

	r := &rig{guard: guard, port: &memPort{}, hooks: &fakeHooks{}}
	r.link = link.New(func(string, int) (link.Port, error) { return r.port, nil }, nil)
	r.ctrl = New(guard, r.link)
	r.capture = input.NewCapture(guard, r.hooks, r.ctrl.HandleDelta)
	r.blocker = input.NewBlocker(guard, r.hooks)
	r.escape = input.NewEscape(guard, r.hooks, 0, r.ctrl.HandleEscape)
	r.ctrl.Attach(r.capture, r.blocker, r.escape)
	t.Cleanup(func() { r.ctrl.Disconnect() })
	return r
}

func (r *rig) login(t *testing.T) {
	t.Helper()
	if _, err := r.guard.Authenticate(context.Background(), session.Identity{Username: "user", Password: "pass"}); err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestForwardingRequiresAuthorization(t *testing.T) {
	r := newRig(t)
	if err := r.ctrl.Connect("COM3", link.DefaultBaud); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	err := r.ctrl.SetForwarding(true)
	if !errors.Is(err, session.ErrNotAuthorized) {
		t.Fatalf("SetForwarding(true) = %v, want ErrNotAuthorized", err)
	}
	if r.ctrl.Forwarding() || r.capture.Running() || r.blocker.Running() {
		t.Error("nothing should start without a session")
	}
}

func TestForwardingRequiresOpenLink(t *testing.T) {
	r := newRig(t)
	r.login(t)

	if err := r.ctrl.SetForwarding(true); !errors.Is(err, link.ErrNotOpen) {
		t.Fatalf("SetForwarding(true) = %v, want ErrNotOpen", err)
	}
	if st := r.ctrl.Status(); st.LastError == "" {
		t.Error("status should carry the last error")
	}
}

func TestEndToEndWireBytes(t *testing.T) {
	r := newRig(t)
	r.login(t)

	if err := r.ctrl.Connect("COM3", link.DefaultBaud); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if err := r.ctrl.SetForwarding(true); err != nil {
		t.Fatalf("SetForwarding(true) failed: %v", err)
	}

	r.hooks.raw(rawPacket(5, -3))
	r.hooks.raw(rawPacket(0, 0))
	r.hooks.raw(rawPacket(200, 0))

	want := []byte{0x05, 0xFD, 0x7F, 0x00}
	waitFor(t, "wire bytes", func() bool { return len(r.port.Bytes()) == len(want) })
	if got := r.port.Bytes(); !bytes.Equal(got, want) {
		t.Errorf("wire bytes = % X, want % X", got, want)
	}

	st := r.ctrl.Status()
	if !st.Authorized || !st.Forwarding || !st.Link.Open {
		t.Errorf("Status() = %+v", st)
	}
	if len(st.Blocked) != 2 || st.Blocked[0] != "left" || st.Blocked[1] != "right" {
		t.Errorf("Blocked = %v", st.Blocked)
	}
}

func TestDeltasIgnoredWhileNotForwarding(t *testing.T) {
	r := newRig(t)
	r.login(t)
	if err := r.ctrl.Connect("COM3", link.DefaultBaud); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	r.ctrl.HandleDelta(10, 10)
	time.Sleep(50 * time.Millisecond)
	if n := len(r.port.Bytes()); n != 0 {
		t.Errorf("wrote %d bytes while not forwarding", n)
	}
}

func TestEscapeStopsForwarding(t *testing.T) {
	r := newRig(t)
	r.login(t)
	if err := r.ctrl.Connect("COM3", link.DefaultBaud); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if err := r.ctrl.SetForwarding(true); err != nil {
		t.Fatalf("SetForwarding(true) failed: %v", err)
	}

	r.hooks.mu.Lock()
	key := r.hooks.keyboard
	r.hooks.mu.Unlock()
	if key == nil {
		t.Fatal("escape hook not installed")
	}
	if !key(input.WM_KEYDOWN, input.VK_ESCAPE) {
		t.Error("escape should be swallowed")
	}

	waitFor(t, "forwarding off", func() bool { return !r.ctrl.Forwarding() })
	if r.blocker.Running() || r.capture.Running() {
		t.Error("components still running after escape")
	}
	if !r.link.State().Open {
		t.Error("escape should leave the link open")
	}
}

func TestStartFailureRollsBack(t *testing.T) {
	r := newRig(t)
	r.login(t)
	r.hooks.mouseErr = errors.New("hook refused")
	if err := r.ctrl.Connect("COM3", link.DefaultBaud); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	if err := r.ctrl.SetForwarding(true); err == nil {
		t.Fatal("expected start failure")
	}
	if r.capture.Running() {
		t.Error("capture not rolled back")
	}
	if r.ctrl.Forwarding() {
		t.Error("forwarding on after failure")
	}
}

func TestDisconnectStopsForwarding(t *testing.T) {
	r := newRig(t)
	r.login(t)
	if err := r.ctrl.Connect("COM3", link.DefaultBaud); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if err := r.ctrl.SetForwarding(true); err != nil {
		t.Fatalf("SetForwarding(true) failed: %v", err)
	}

	r.link.Close()
	waitFor(t, "forwarding off", func() bool { return !r.ctrl.Forwarding() })
}

func TestOnChangeNotified(t *testing.T) {
	r := newRig(t)
	var mu sync.Mutex
	var seen []Status
	r.ctrl.OnChange(func(st Status) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, st)
	})

	if err := r.ctrl.Connect("COM3", link.DefaultBaud); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) == 0 || !seen[len(seen)-1].Link.Open {
		t.Errorf("expected a status with an open link, got %+v", seen)
	}
}
