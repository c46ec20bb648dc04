package dump

import "math"

// FPSMeter counts frames per wall second. The count for a completed second
// is published on the first frame observed in a later second, not at the
// boundary itself, so a stalled stream simply stops publishing.
type FPSMeter struct {
	accum  uint
	second int64
}

// Observe records one frame at the given monotonic timestamp (seconds).
// When the frame is the first of a new second it returns the frame count
// of the just-completed second, that second's marker, and published = true.
// The marker matters after a gap: frames in second 1 followed by a frame in
// second 5 publish second 1's count, not second 4's.
func (m *FPSMeter) Observe(ts float64) (fps uint, second int64, published bool) {
	sec := int64(math.Floor(ts))
	if sec != m.second {
		fps = m.accum
		second = m.second
		published = true
		m.accum = 0
		m.second = sec
	}
	m.accum++
	return fps, second, published
}
