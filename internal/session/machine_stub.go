//go:build !windows

package session

// LocalMachine is a stub for non-Windows platforms; the token is derived
// without machine material.
type LocalMachine struct{}

// MachineGUID returns "" (stub)
func (LocalMachine) MachineGUID() string { return "" }

// VolumeSerial returns "" (stub)
func (LocalMachine) VolumeSerial() string { return "" }
