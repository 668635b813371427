//go:build windows

package session

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/windows"
	"golang.org/x/sys/windows/registry"
)

// LocalMachine reads identity material from the registry and system volume.
type LocalMachine struct{}

// MachineGUID returns HKLM\SOFTWARE\Microsoft\Cryptography\MachineGuid.
func (LocalMachine) MachineGUID() string {
	k, err := registry.OpenKey(registry.LOCAL_MACHINE, `SOFTWARE\Microsoft\Cryptography`, registry.QUERY_VALUE|registry.WOW64_64KEY)
	if err != nil {
		log.Debugf("Session: MachineGuid unavailable: %v", err)
		return ""
	}
	defer k.Close()

	v, _, err := k.GetStringValue("MachineGuid")
	if err != nil {
		log.Debugf("Session: MachineGuid unavailable: %v", err)
		return ""
	}
	return v
}

// VolumeSerial returns the serial of the system drive as 8 hex digits.
func (LocalMachine) VolumeSerial() string {
	drive := os.Getenv("SystemDrive")
	if drive == "" {
		drive = "C:"
	}
	root, err := windows.UTF16PtrFromString(drive + `\`)
	if err != nil {
		return ""
	}

	var serial uint32
	if err := windows.GetVolumeInformation(root, nil, 0, &serial, nil, nil, nil, 0); err != nil {
		log.Debugf("Session: volume serial unavailable: %v", err)
		return ""
	}
	return fmt.Sprintf("%08X", serial)
}
