package encoders

import "github.com/camkit/camsink/internal/frame"

// DeviceConfig is the capture geometry pushed to hardware instances. It
// changes across format renegotiations, so PrepareLive is callable
// repeatedly.
type DeviceConfig struct {
	Width  uint32
	Height uint32
	Format frame.FourCC
	Stride uint32
}

// Instance is one hardware encoder owned by a single worker slot. Calls on
// different instances may run concurrently; calls on one instance never do.
type Instance interface {
	// PrepareLive pushes the current capture geometry and quality.
	PrepareLive(cfg DeviceConfig, quality int) error

	// Compress encodes src into dst as JPEG.
	Compress(src, dst *frame.Frame) error

	// Close releases the instance.
	Close() error
}
