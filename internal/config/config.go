// Package config loads the encode pipeline configuration from TOML and
// watches it for live changes.
package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/camkit/camsink/internal/frame"
)

// EncodeConfig is the on-disk configuration of the encode pipeline.
type EncodeConfig struct {
	Sink    SinkConfig    `toml:"sink"`
	Encoder EncoderConfig `toml:"encoder"`
	Device  DeviceConfig  `toml:"device"`
	Logging LoggingTable  `toml:"logging"`
}

// SinkConfig names the input channel.
type SinkConfig struct {
	Name    string `toml:"name"`
	Timeout int    `toml:"timeout"` // whole seconds, 1..60
	Dir     string `toml:"dir"`     // segment directory, default /dev/shm
}

// EncoderConfig selects the backend and its tuning.
type EncoderConfig struct {
	Backend string `toml:"backend"`
	Quality int    `toml:"quality"`
	Workers int    `toml:"workers"`
}

// DeviceConfig is the capture geometry pushed to hardware instances.
type DeviceConfig struct {
	Width  uint32 `toml:"width"`
	Height uint32 `toml:"height"`
	Format string `toml:"format"` // four character code, e.g. "YUYV"
	Stride uint32 `toml:"stride"`
}

// LoggingTable mirrors the logging package config keys.
type LoggingTable struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Defaults returns the configuration used when keys are absent.
func Defaults() EncodeConfig {
	return EncodeConfig{
		Sink:    SinkConfig{Timeout: 1},
		Encoder: EncoderConfig{Backend: "software", Quality: 80, Workers: 1},
		Logging: LoggingTable{Level: "info", Format: "text"},
	}
}

// Load reads, defaults and validates the config at path.
func Load(path string) (EncodeConfig, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: can't read %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: can't parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks ranges the pipeline depends on.
func (c EncodeConfig) Validate() error {
	if c.Sink.Name == "" {
		return fmt.Errorf("config: sink.name is required")
	}
	if c.Sink.Timeout < 1 || c.Sink.Timeout > 60 {
		return fmt.Errorf("config: sink.timeout %d out of range 1..60", c.Sink.Timeout)
	}
	if c.Encoder.Quality < 1 || c.Encoder.Quality > 100 {
		return fmt.Errorf("config: encoder.quality %d out of range 1..100", c.Encoder.Quality)
	}
	if c.Encoder.Workers < 1 {
		return fmt.Errorf("config: encoder.workers must be at least 1")
	}
	if c.Device.Format != "" {
		if _, err := c.FourCC(); err != nil {
			return err
		}
	}
	return nil
}

// FourCC parses the device pixel format code.
func (c EncodeConfig) FourCC() (frame.FourCC, error) {
	s := c.Device.Format
	if len(s) != 4 {
		return 0, fmt.Errorf("config: device.format %q is not a four character code", s)
	}
	return frame.MakeFourCC(s[0], s[1], s[2], s[3]), nil
}
