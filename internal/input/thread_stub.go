//go:build !windows

package input

// Thread is unavailable off Windows; every operation reports ErrUnsupported.
type Thread struct{}

func NewThread() *Thread {
	return &Thread{}
}

func (t *Thread) Start() error { return ErrUnsupported }

func (t *Thread) Stop() error { return nil }

func (t *Thread) Do(fn func() error) error { return ErrUnsupported }

func (t *Thread) HookMouse(fn MouseProc) (Hook, error) { return nil, ErrUnsupported }

func (t *Thread) HookKeyboard(fn KeyProc) (Hook, error) { return nil, ErrUnsupported }

func (t *Thread) RegisterRaw(fn RawProc) (Hook, error) { return nil, ErrUnsupported }
