package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/camkit/camsink/internal/frame"
	"github.com/camkit/camsink/internal/logging"
	"github.com/camkit/camsink/internal/memsink"
)

// CreateSourceCmd creates the source command, a synthetic producer for
// exercising sinks without a real capture device.
func CreateSourceCmd() *cobra.Command {
	var (
		sinkName string
		sinkDir  string
		width    int
		height   int
		fps      int
		lf       logFlags
	)

	cmd := &cobra.Command{
		Use:   "source",
		Short: "Publish synthetic test frames to a sink",
		Long: `Creates a shared-memory sink and publishes a moving greyscale gradient at a ` +
			`fixed rate until interrupted. Useful for testing dump and encode without a camera.`,
		Args: cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			lf.apply()
			logger := logging.GetLogger("source")

			if width < 1 || height < 1 {
				logger.Error("Frame geometry must be positive", "width", width, "height", height)
				os.Exit(1)
			}
			if fps < 1 || fps > 1000 {
				logger.Error("FPS out of range", "fps", fps, "min", 1, "max", 1000)
				os.Exit(1)
			}

			sink, err := memsink.Open(sinkName, memsink.RoleProducer, memsink.Options{
				Dir:      sinkDir,
				Capacity: width * height,
			})
			if err != nil {
				logger.Error("Can't create sink", "sink", sinkName, "error", err)
				os.Exit(1)
			}
			logger.Info("Publishing test frames", "sink", sinkName,
				"width", width, "height", height, "fps", fps)

			f := frame.New()
			f.Width = uint32(width)
			f.Height = uint32(height)
			f.Format = frame.FormatGrey
			f.Online = true
			f.Ensure(width * height)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			ticker := time.NewTicker(time.Second / time.Duration(fps))

			code := 0
			phase := byte(0)
		loop:
			for {
				select {
				case <-ctx.Done():
					break loop
				case <-ticker.C:
				}

				paintGradient(f.Data, width, phase)
				phase++
				f.GrabTS = frame.Now()
				if err := sink.Put(f); err != nil {
					logger.Error("Publish failed", "error", err)
					code = 1
					break
				}
			}

			ticker.Stop()
			stop()
			_ = sink.Close()
			os.Exit(code)
		},
	}

	cmd.Flags().StringVar(&sinkName, "sink", "", "Name of the shared-memory sink to create")
	cmd.Flags().StringVar(&sinkDir, "sink-dir", memsink.DefaultDir, "Directory holding sink segments")
	cmd.Flags().IntVar(&width, "width", 640, "Frame width in pixels")
	cmd.Flags().IntVar(&height, "height", 480, "Frame height in pixels")
	cmd.Flags().IntVar(&fps, "fps", 30, "Frames published per second (1-1000)")
	lf.register(cmd)
	_ = cmd.MarkFlagRequired("sink")

	return cmd
}

// paintGradient fills buf with a horizontal gradient shifted by phase, so
// consecutive frames differ visibly.
func paintGradient(buf []byte, width int, phase byte) {
	for i := range buf {
		buf[i] = byte(i%width) + phase
	}
}
