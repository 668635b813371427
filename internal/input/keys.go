package input

import (
	"fmt"
	"strconv"
	"strings"
)

// VK_ESCAPE is the default escape-hatch key.
const VK_ESCAPE = 0x1B

var namedKeys = map[uint32]string{
	0x1B: "ESC",
	0x13: "PAUSE",
	0x91: "SCROLLLOCK",
	0x2C: "PRINTSCREEN",
	0x2D: "INSERT",
	0x2E: "DELETE",
	0x24: "HOME",
	0x23: "END",
	0x21: "PAGEUP",
	0x22: "PAGEDOWN",
	0x08: "BACKSPACE",
	0x09: "TAB",
	0x0D: "ENTER",
	0x20: "SPACE",
	0x14: "CAPSLOCK",
}

var keyAliases = map[string]string{
	"ESCAPE": "ESC",
	"RETURN": "ENTER",
	"DEL":    "DELETE",
	"INS":    "INSERT",
	"BREAK":  "PAUSE",
}

// KeyName returns the display name of a virtual key, or "" if unnamed.
func KeyName(vk uint32) string {
	if n, ok := namedKeys[vk]; ok {
		return n
	}

	// Letters A-Z and digits 0-9
	if (vk >= 0x41 && vk <= 0x5A) || (vk >= 0x30 && vk <= 0x39) {
		return string(rune(vk))
	}

	// F1-F24
	if vk >= 0x70 && vk <= 0x87 {
		return fmt.Sprintf("F%d", vk-0x6F)
	}
	return ""
}

// KeyCode parses a key name ("Esc", "F12", "Pause", "0x1B") into a
// virtual key code.
func KeyCode(name string) (uint32, error) {
	n := strings.ToUpper(strings.TrimSpace(name))
	if a, ok := keyAliases[n]; ok {
		n = a
	}
	if n == "" {
		return 0, fmt.Errorf("empty key name")
	}

	if strings.HasPrefix(n, "0X") {
		v, err := strconv.ParseUint(n[2:], 16, 8)
		if err != nil || v == 0 {
			return 0, fmt.Errorf("invalid virtual key %q", name)
		}
		return uint32(v), nil
	}

	for vk, kn := range namedKeys {
		if kn == n {
			return vk, nil
		}
	}
	if len(n) == 1 && ((n[0] >= 'A' && n[0] <= 'Z') || (n[0] >= '0' && n[0] <= '9')) {
		return uint32(n[0]), nil
	}
	if strings.HasPrefix(n, "F") {
		if f, err := strconv.Atoi(n[1:]); err == nil && f >= 1 && f <= 24 {
			return uint32(0x6F + f), nil
		}
	}
	return 0, fmt.Errorf("unknown key %q", name)
}
