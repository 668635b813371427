// Package protocol holds the wire formats spoken by mousefwd: the 2-byte
// motion packet read by the HID firmware and the JSON status messages.
package protocol

import (
	"errors"
	"fmt"
)

// PacketSize is the length of one motion packet on the serial line.
//
// Wire format:
//
//	[dx int8] [dy int8]
//
// No framing and no checksum: the firmware reads exactly two bytes per
// HID report.
const PacketSize = 2

// Bounds of a signed byte.
const (
	MinAxis = -128
	MaxAxis = 127
)

// Delta is one relative motion sample, already clamped to the wire range.
type Delta struct {
	DX int8
	DY int8
}

// Clamp limits dx and dy to [-128, 127].
func Clamp(dx, dy int) Delta {
	return Delta{DX: clampAxis(dx), DY: clampAxis(dy)}
}

func clampAxis(v int) int8 {
	switch {
	case v > MaxAxis:
		return MaxAxis
	case v < MinAxis:
		return MinAxis
	}
	return int8(v)
}

// Bytes returns the packet for d.
func (d Delta) Bytes() [PacketSize]byte {
	return [PacketSize]byte{byte(d.DX), byte(d.DY)}
}

// String implements fmt.Stringer.
func (d Delta) String() string {
	return fmt.Sprintf("(%d,%d)", d.DX, d.DY)
}

// Encode clamps dx, dy and serializes them to wire format.
func Encode(dx, dy int) []byte {
	b := Clamp(dx, dy).Bytes()
	return b[:]
}

// Decode parses one packet. Extra trailing bytes are an error since the
// firmware never sees more than one packet per read.
func Decode(data []byte) (Delta, error) {
	if len(data) < PacketSize {
		return Delta{}, errors.New("protocol: packet too short")
	}
	if len(data) > PacketSize {
		return Delta{}, errors.New("protocol: packet too long")
	}
	return Delta{DX: int8(data[0]), DY: int8(data[1])}, nil
}
