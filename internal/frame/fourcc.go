package frame

import "fmt"

// FourCC is a V4L2-style four character pixel format code.
type FourCC uint32

// MakeFourCC builds a code from its four characters.
func MakeFourCC(a, b, c, d byte) FourCC {
	return FourCC(uint32(a) | uint32(b)<<8 | uint32(c)<<16 | uint32(d)<<24)
}

// Pixel formats seen on the capture side of the pipeline.
var (
	FormatJPEG  = MakeFourCC('J', 'P', 'E', 'G')
	FormatMJPEG = MakeFourCC('M', 'J', 'P', 'G')
	FormatYUYV  = MakeFourCC('Y', 'U', 'Y', 'V')
	FormatUYVY  = MakeFourCC('U', 'Y', 'V', 'Y')
	FormatRGB24 = MakeFourCC('R', 'G', 'B', '3')
	FormatBGR24 = MakeFourCC('B', 'G', 'R', '3')
	FormatGrey  = MakeFourCC('G', 'R', 'E', 'Y')
)

// String renders the code as its four characters, escaping anything
// unprintable.
func (fcc FourCC) String() string {
	buf := make([]byte, 0, 4)
	v := uint32(fcc)
	for i := 0; i < 4; i++ {
		ch := byte(v >> (8 * i))
		if ch >= 0x20 && ch < 0x7f {
			buf = append(buf, ch)
		} else {
			buf = append(buf, fmt.Sprintf("\\x%02x", ch)...)
		}
	}
	return string(buf)
}
