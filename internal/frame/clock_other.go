//go:build !linux

package frame

import "time"

var epoch = time.Now()

// Now returns a monotonic timestamp in seconds. Without a shared kernel
// clock the zero point is process start, so cross-process comparison is
// only meaningful on linux.
func Now() float64 {
	return time.Since(epoch).Seconds()
}
