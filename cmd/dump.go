package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/camkit/camsink/internal/dump"
	"github.com/camkit/camsink/internal/events"
	"github.com/camkit/camsink/internal/logging"
	"github.com/camkit/camsink/internal/memsink"
)

// CreateDumpCmd creates the dump command.
func CreateDumpCmd() *cobra.Command {
	var (
		sinkName    string
		sinkDir     string
		sinkTimeout int
		output      string
		outputJSON  bool
		lf          logFlags
	)

	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Read frames from a shared-memory sink",
		Long: `Attaches to a named shared-memory sink as a consumer and writes every new frame ` +
			`to the output until interrupted. Raw mode concatenates frame payloads back to back; ` +
			`JSON mode writes one newline-terminated metadata record per frame with base64 data.`,
		Args: cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			lf.apply()
			logger := logging.GetLogger("dump")

			if sinkTimeout < 1 || sinkTimeout > 60 {
				logger.Error("Sink timeout out of range", "timeout", sinkTimeout, "min", 1, "max", 60)
				os.Exit(1)
			}
			if outputJSON && output == "" {
				logger.Error("--output-json requires --output")
				os.Exit(1)
			}

			out, closeOut, err := openOutput(output)
			if err != nil {
				logger.Error("Can't open output", "output", output, "error", err)
				os.Exit(1)
			}

			sink, err := memsink.Open(sinkName, memsink.RoleConsumer, memsink.Options{Dir: sinkDir})
			if err != nil {
				logger.Error("Can't attach sink", "sink", sinkName, "error", err)
				closeOut()
				os.Exit(1)
			}
			logger.Info("Attached to sink", "sink", sinkName, "timeout", sinkTimeout)

			format := dump.FormatRaw
			if outputJSON {
				format = dump.FormatJSON
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			runErr := dump.Run(ctx, sink, out, dump.Options{
				Timeout: time.Duration(sinkTimeout) * time.Second,
				Format:  format,
				Logger:  logger,
				Bus:     events.New(),
			})
			stop()

			if runErr != nil {
				logger.Error("Dump aborted", "error", runErr)
			}
			closeOut()
			_ = sink.Close()
			os.Exit(dump.ExitCode(runErr))
		},
	}

	cmd.Flags().StringVar(&sinkName, "sink", "", "Name of the shared-memory sink to read")
	cmd.Flags().StringVar(&sinkDir, "sink-dir", memsink.DefaultDir, "Directory holding sink segments")
	cmd.Flags().IntVar(&sinkTimeout, "sink-timeout", 1, "Seconds to wait for each frame (1-60)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file, or '-' for stdout (omit to consume without writing)")
	cmd.Flags().BoolVar(&outputJSON, "output-json", false, "Write JSON records instead of raw frame data")
	lf.register(cmd)
	_ = cmd.MarkFlagRequired("sink")

	return cmd
}
