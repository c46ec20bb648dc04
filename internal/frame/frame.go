// Package frame defines the reusable image buffer that flows through the
// sink and encoder pipeline. A Frame is allocated once per process and
// mutated in place on every read or compress; the data buffer grows on
// demand and is never shrunk, so a steady-state stream performs no
// per-frame allocations.
package frame

// Frame is one captured image plus format metadata and pipeline timestamps.
// Timestamps are monotonic seconds (see Now); GrabTS <= EncodeBeginTS <=
// EncodeEndTS whenever all three are set.
type Frame struct {
	Width  uint32
	Height uint32
	Format FourCC
	Stride uint32

	// Used is the number of valid bytes in Data. Used <= cap(Data) always.
	Used int
	Data []byte

	// Online reports producer liveness as of the last read, distinct from
	// a bare read timeout.
	Online bool

	GrabTS        float64
	EncodeBeginTS float64
	EncodeEndTS   float64
}

// New returns an empty frame with a small initial buffer.
func New() *Frame {
	return &Frame{Data: make([]byte, 0, 512)}
}

// Ensure grows the data buffer to hold at least n bytes and sets Used to n.
// Capacity is never reduced; existing bytes up to the new size are kept.
func (f *Frame) Ensure(n int) {
	if n > cap(f.Data) {
		grown := make([]byte, n)
		copy(grown, f.Data[:f.Used])
		f.Data = grown
	}
	f.Data = f.Data[:n]
	f.Used = n
}

// Payload returns the valid bytes of the frame.
func (f *Frame) Payload() []byte {
	return f.Data[:f.Used]
}

// SetPayload replaces the frame contents with b, growing the buffer as
// needed.
func (f *Frame) SetPayload(b []byte) {
	f.Ensure(len(b))
	copy(f.Data, b)
}

// CopyMetaFrom copies format metadata, liveness and timestamps from src,
// leaving the data buffer alone.
func (f *Frame) CopyMetaFrom(src *Frame) {
	f.Width = src.Width
	f.Height = src.Height
	f.Format = src.Format
	f.Stride = src.Stride
	f.Online = src.Online
	f.GrabTS = src.GrabTS
	f.EncodeBeginTS = src.EncodeBeginTS
	f.EncodeEndTS = src.EncodeEndTS
}
