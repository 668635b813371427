package link

import (
	"sort"
	"strings"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// SerialOpener opens a serial port as 8N1.
func SerialOpener(name string, baud int) (Port, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	return serial.Open(name, mode)
}

// PortInfo describes one serial port for the picker.
type PortInfo struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	VID         string `json:"vid,omitempty"`
	PID         string `json:"pid,omitempty"`
	IsUSB       bool   `json:"is_usb"`
}

// Arduino reports whether the port looks like an Arduino board.
func (p PortInfo) Arduino() bool {
	return strings.Contains(strings.ToLower(p.Description), "arduino")
}

// ListPorts enumerates serial ports, boards first.
func ListPorts() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, err
	}

	ports := make([]PortInfo, 0, len(details))
	for _, d := range details {
		ports = append(ports, PortInfo{
			Name:        d.Name,
			Description: d.Product,
			VID:         d.VID,
			PID:         d.PID,
			IsUSB:       d.IsUSB,
		})
	}
	sortPorts(ports)
	return ports, nil
}

func sortPorts(ports []PortInfo) {
	sort.SliceStable(ports, func(i, j int) bool {
		ai, aj := ports[i].Arduino(), ports[j].Arduino()
		if ai != aj {
			return ai
		}
		return ports[i].Name < ports[j].Name
	})
}
