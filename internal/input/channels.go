package input

import (
	"fmt"
	"sort"
	"strings"
)

// Channel is one logical button/wheel category.
type Channel uint32

const (
	Left Channel = 1 << iota
	Right
	Middle
	Back
	Forward
	Wheel
)

var channelNames = map[Channel]string{
	Left:    "left",
	Right:   "right",
	Middle:  "middle",
	Back:    "back",
	Forward: "forward",
	Wheel:   "wheel",
}

// AllChannels lists the channels in display order.
var AllChannels = []Channel{Left, Right, Middle, Back, Forward, Wheel}

func (c Channel) String() string {
	if n, ok := channelNames[c]; ok {
		return n
	}
	return fmt.Sprintf("channel(%d)", uint32(c))
}

// Channels is a set of channels.
type Channels uint32

// DefaultBlocked is the blocked set used until configured otherwise.
const DefaultBlocked = Channels(Left | Right)

// Has reports whether c is in the set.
func (s Channels) Has(c Channel) bool {
	return uint32(s)&uint32(c) != 0
}

// With returns the set plus c.
func (s Channels) With(c Channel) Channels {
	return s | Channels(c)
}

// Names returns the channel names in display order.
func (s Channels) Names() []string {
	var names []string
	for _, c := range AllChannels {
		if s.Has(c) {
			names = append(names, c.String())
		}
	}
	return names
}

func (s Channels) String() string {
	return strings.Join(s.Names(), ",")
}

// ParseChannels parses names such as ["left", "wheel"]. Unknown names are
// an error; blanks are skipped.
func ParseChannels(names []string) (Channels, error) {
	var s Channels
	var unknown []string
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if n == "" {
			continue
		}
		found := false
		for c, name := range channelNames {
			if name == n {
				s = s.With(c)
				found = true
				break
			}
		}
		if !found {
			unknown = append(unknown, n)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return s, fmt.Errorf("unknown button channel(s): %s", strings.Join(unknown, ", "))
	}
	return s, nil
}

// Classify maps a low-level mouse message to its channel. The high word of
// mouseData tells the two side buttons apart. Moves and unknown messages are
// not classified.
func Classify(msg uint32, mouseData uint32) (Channel, bool) {
	switch msg {
	case WM_LBUTTONDOWN, WM_LBUTTONUP, WM_LBUTTONDBLCLK:
		return Left, true
	case WM_RBUTTONDOWN, WM_RBUTTONUP, WM_RBUTTONDBLCLK:
		return Right, true
	case WM_MBUTTONDOWN, WM_MBUTTONUP, WM_MBUTTONDBLCLK:
		return Middle, true
	case WM_XBUTTONDOWN, WM_XBUTTONUP, WM_XBUTTONDBLCLK:
		if (mouseData>>16)&0xFFFF == XBUTTON2 {
			return Forward, true
		}
		return Back, true
	case WM_MOUSEWHEEL, WM_MOUSEHWHEEL:
		return Wheel, true
	}
	return 0, false
}
