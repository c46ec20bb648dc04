//go:build linux

package memsink

import (
	"math"
	"sync/atomic"
	"unsafe"
)

// Shared segment layout. A fixed header precedes the frame data area. The
// sequence field is a seqlock: the producer holds it odd for the duration
// of a write and even when the segment is stable. Consumers retry any read
// that observes an odd or changed sequence.
const (
	segmentMagic   uint64 = 0x31_4b_4e_53_4d_41_43 // "CAMSNK1"
	segmentVersion uint32 = 1

	offMagic     = 0
	offVersion   = 8
	offSeq       = 16
	offHeartbeat = 24
	offWidth     = 32
	offHeight    = 36
	offFormat    = 40
	offStride    = 44
	offOnline    = 48
	offUsed      = 56
	offGrabTS    = 64
	offEncBegin  = 72
	offEncEnd    = 80

	headerSize = 128
)

// segment wraps the raw mapping with typed, atomic accessors. All fields
// are 8-byte aligned inside a page-aligned mapping, so the atomics below
// are safe on every platform Go supports.
type segment struct {
	mem []byte
}

func (s segment) u64(off int) *uint64 {
	return (*uint64)(unsafe.Pointer(&s.mem[off]))
}

func (s segment) u32(off int) *uint32 {
	return (*uint32)(unsafe.Pointer(&s.mem[off]))
}

func (s segment) loadU64(off int) uint64     { return atomic.LoadUint64(s.u64(off)) }
func (s segment) storeU64(off int, v uint64) { atomic.StoreUint64(s.u64(off), v) }
func (s segment) loadU32(off int) uint32     { return atomic.LoadUint32(s.u32(off)) }
func (s segment) storeU32(off int, v uint32) { atomic.StoreUint32(s.u32(off), v) }

func (s segment) loadF64(off int) float64     { return math.Float64frombits(s.loadU64(off)) }
func (s segment) storeF64(off int, v float64) { s.storeU64(off, math.Float64bits(v)) }

func (s segment) data() []byte {
	return s.mem[headerSize:]
}

func (s segment) capacity() int {
	return len(s.mem) - headerSize
}
