// Package cmd builds the camsink subcommands.
package cmd

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/camkit/camsink/internal/logging"
)

// logFlags are the logging options shared by every subcommand.
type logFlags struct {
	level       string
	json        bool
	forceColors bool
	noColors    bool
}

func (f *logFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.level, "log-level", "info", "Log level (debug, info, warn, error)")
	cmd.Flags().BoolVar(&f.json, "log-json", false, "Use JSON log format")
	cmd.Flags().BoolVar(&f.forceColors, "force-log-colors", false, "Force colored log output")
	cmd.Flags().BoolVar(&f.noColors, "no-log-colors", false, "Disable colored log output")
}

// apply initializes the logging system from the flags. Diagnostics go to
// stderr; stdout stays free for frame output.
func (f *logFlags) apply() {
	cfg := logging.Config{Level: f.level, Format: "text"}
	if f.json {
		cfg.Format = "json"
	}
	cfg.Colors = f.colors()
	logging.Initialize(cfg)
}

func (f *logFlags) colors() *bool {
	switch {
	case f.forceColors:
		v := true
		return &v
	case f.noColors:
		v := false
		return &v
	}
	return nil
}

// openOutput resolves the --output flag. Empty means consume without
// emitting; "-" means stdout, which is never closed; anything else is
// created or truncated. The returned func closes the output when there is
// something to close.
func openOutput(path string) (io.Writer, func(), error) {
	switch path {
	case "":
		return nil, func() {}, nil
	case "-":
		return os.Stdout, func() {}, nil
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return file, func() { _ = file.Close() }, nil
}
