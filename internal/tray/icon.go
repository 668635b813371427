package tray

import "encoding/binary"

const iconSize = 16

var (
	idleColor   = [3]byte{0x80, 0x80, 0x80}
	activeColor = [3]byte{0x20, 0xC0, 0x40}
)

func stateIcon(active bool) []byte {
	if active {
		return makeIcon(activeColor)
	}
	return makeIcon(idleColor)
}

// makeIcon renders a filled circle as a 16x16 32-bit ICO.
func makeIcon(rgb [3]byte) []byte {
	const (
		headerSize = 6 + 16
		dibSize    = 40
		pixelSize  = iconSize * iconSize * 4
		maskSize   = iconSize * 4 // 1bpp rows padded to 32 bits
		imageSize  = dibSize + pixelSize + maskSize
	)

	icon := make([]byte, headerSize+imageSize)
	le := binary.LittleEndian

	// ICONDIR
	le.PutUint16(icon[2:], 1) // type: icon
	le.PutUint16(icon[4:], 1) // count

	// ICONDIRENTRY
	icon[6] = iconSize
	icon[7] = iconSize
	le.PutUint16(icon[10:], 1)  // planes
	le.PutUint16(icon[12:], 32) // bpp
	le.PutUint32(icon[14:], imageSize)
	le.PutUint32(icon[18:], headerSize)

	// BITMAPINFOHEADER; height covers pixels plus mask
	dib := icon[headerSize:]
	le.PutUint32(dib[0:], dibSize)
	le.PutUint32(dib[4:], iconSize)
	le.PutUint32(dib[8:], iconSize*2)
	le.PutUint16(dib[12:], 1)
	le.PutUint16(dib[14:], 32)
	le.PutUint32(dib[20:], pixelSize+maskSize)

	// BGRA rows, bottom-up
	px := dib[dibSize:]
	const r2 = 7 * 7
	for y := 0; y < iconSize; y++ {
		for x := 0; x < iconSize; x++ {
			dx, dy := 2*x-15, 2*y-15
			if dx*dx+dy*dy > 4*r2 {
				continue
			}
			o := (y*iconSize + x) * 4
			px[o] = rgb[2]
			px[o+1] = rgb[1]
			px[o+2] = rgb[0]
			px[o+3] = 0xFF
		}
	}
	return icon
}
