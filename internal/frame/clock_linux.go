//go:build linux

package frame

import "golang.org/x/sys/unix"

// Now returns CLOCK_MONOTONIC in seconds. Producer and consumers share the
// clock, so timestamps stamped in one process are comparable in another.
func Now() float64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		return 0
	}
	return float64(ts.Sec) + float64(ts.Nsec)/1e9
}
