package input

import "unsafe"

// Raw input constants
const (
	RIM_TYPEMOUSE   = 0
	RID_INPUT       = 0x10000003
	RIDEV_REMOVE    = 0x00000001
	RIDEV_INPUTSINK = 0x00000100

	HID_USAGE_PAGE_GENERIC  = 0x01
	HID_USAGE_GENERIC_MOUSE = 0x02
)

// RAWINPUTHEADER mirrors the C layout; handles are pointer sized.
type RAWINPUTHEADER struct {
	DwType  uint32
	DwSize  uint32
	HDevice uintptr
	WParam  uintptr
}

// RAWMOUSE mirrors the C layout. The button fields live in a union that is
// aligned to 4 bytes, hence the padding after UsFlags.
type RAWMOUSE struct {
	UsFlags            uint16
	_                  uint16
	UsButtonFlags      uint16
	UsButtonData       uint16
	UlRawButtons       uint32
	LLastX             int32
	LLastY             int32
	UlExtraInformation uint32
}

// RAWINPUT is the mouse variant of the C union.
type RAWINPUT struct {
	Header RAWINPUTHEADER
	Mouse  RAWMOUSE
}

// decodeRawMouse extracts the relative motion of a pointer-class packet.
// ok is false for short buffers and other device classes.
func decodeRawMouse(packet []byte) (dx, dy int32, ok bool) {
	if len(packet) < int(unsafe.Sizeof(RAWINPUT{})) {
		return 0, 0, false
	}
	ri := (*RAWINPUT)(unsafe.Pointer(&packet[0]))
	if ri.Header.DwType != RIM_TYPEMOUSE {
		return 0, 0, false
	}
	return ri.Mouse.LLastX, ri.Mouse.LLastY, true
}
