// Package board describes the boards the firmware runs on.
package board

import (
	"fmt"
	"sort"
	"strings"
)

// FlashMethod names the tool used to upload firmware.
type FlashMethod string

const (
	FlashBossac     FlashMethod = "bossac"
	FlashArduinoCLI FlashMethod = "arduino-cli"
)

// Board is one supported microcontroller board.
type Board struct {
	Name      string      `json:"name"`
	FQBN      string      `json:"fqbn"`
	Flash     FlashMethod `json:"flash"`
	Extension string      `json:"extension"`
}

var boards = map[string]Board{
	"due": {
		Name:      "Arduino Due",
		FQBN:      "arduino:sam:arduino_due_x",
		Flash:     FlashBossac,
		Extension: ".bin",
	},
	"leonardo": {
		Name:      "Arduino Leonardo",
		FQBN:      "arduino:avr:leonardo",
		Flash:     FlashArduinoCLI,
		Extension: ".hex",
	},
}

// Lookup finds a board by key ("due") or display name ("Arduino Due").
func Lookup(name string) (Board, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	if b, ok := boards[n]; ok {
		return b, nil
	}
	for _, b := range boards {
		if strings.ToLower(b.Name) == n {
			return b, nil
		}
	}
	return Board{}, fmt.Errorf("unknown board %q", name)
}

// Names returns the board keys in sorted order.
func Names() []string {
	names := make([]string, 0, len(boards))
	for k := range boards {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
