//go:build windows

package osutils

import (
	"errors"
	"fmt"

	"golang.org/x/sys/windows"
)

// IsElevated reports whether the process token is elevated. Low-level
// hooks do not see input aimed at elevated windows unless it is.
func IsElevated() bool {
	return windows.GetCurrentProcessToken().IsElevated()
}

// IsAdmin checks whether the process token is a member of Administrators.
func IsAdmin() bool {
	var sid *windows.SID
	err := windows.AllocateAndInitializeSid(
		&windows.SECURITY_NT_AUTHORITY,
		2,
		windows.SECURITY_BUILTIN_DOMAIN_RID,
		windows.DOMAIN_ALIAS_RID_ADMINS,
		0, 0, 0, 0, 0, 0,
		&sid,
	)
	if err != nil {
		return false
	}
	defer windows.FreeSid(sid)

	member, err := windows.Token(0).IsMember(sid)
	if err != nil {
		return false
	}
	return member
}

// Instance is a held single-instance lock.
type Instance struct {
	handle windows.Handle
}

// Release drops the lock.
func (i *Instance) Release() error {
	if i == nil || i.handle == 0 {
		return nil
	}
	err := windows.CloseHandle(i.handle)
	i.handle = 0
	return err
}

// AcquireSingleInstance takes a session-local named mutex. It returns
// ErrAlreadyRunning when another process holds it.
func AcquireSingleInstance(name string) (*Instance, error) {
	namePtr, err := windows.UTF16PtrFromString(`Local\` + name)
	if err != nil {
		return nil, err
	}
	h, err := windows.CreateMutex(nil, false, namePtr)
	if errors.Is(err, windows.ERROR_ALREADY_EXISTS) {
		if h != 0 {
			windows.CloseHandle(h)
		}
		return nil, ErrAlreadyRunning
	}
	if err != nil {
		return nil, fmt.Errorf("CreateMutex failed: %w", err)
	}
	return &Instance{handle: h}, nil
}
