//go:build !windows

package osutils

// IsElevated is a stub for non-Windows platforms
func IsElevated() bool {
	return false
}

// IsAdmin is a stub for non-Windows platforms
func IsAdmin() bool {
	return false
}

// Instance is a no-op lock off Windows.
type Instance struct{}

// Release is a no-op.
func (i *Instance) Release() error {
	return nil
}

// AcquireSingleInstance always succeeds off Windows.
func AcquireSingleInstance(name string) (*Instance, error) {
	return &Instance{}, nil
}
