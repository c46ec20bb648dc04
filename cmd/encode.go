package cmd

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/camkit/camsink/internal/config"
	"github.com/camkit/camsink/internal/dump"
	"github.com/camkit/camsink/internal/encoders"
	"github.com/camkit/camsink/internal/events"
	"github.com/camkit/camsink/internal/logging"
	"github.com/camkit/camsink/internal/memsink"
	"github.com/camkit/camsink/internal/pipeline"
)

// CreateEncodeCmd creates the encode command.
func CreateEncodeCmd() *cobra.Command {
	var (
		configFile  string
		output      string
		outputJSON  bool
		metricsAddr string
		lf          logFlags
	)

	cmd := &cobra.Command{
		Use:   "encode",
		Short: "Re-encode frames from a sink as JPEG",
		Long: `Reads frames from a shared-memory sink, compresses them to JPEG through the ` +
			`configured backend and writes the results to the output. Hardware backends fall ` +
			`back to the software codec on any failure. The configuration file is watched and ` +
			`quality or device geometry changes apply without a restart.`,
		Args: cobra.NoArgs,
		Run: func(c *cobra.Command, _ []string) {
			cfg, err := config.Load(configFile)
			if err != nil {
				lf.apply()
				logging.GetLogger("encode").Error("Can't load config", "config", configFile, "error", err)
				os.Exit(1)
			}

			logCfg := logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format}
			if c.Flags().Changed("log-level") {
				logCfg.Level = lf.level
			}
			if lf.json {
				logCfg.Format = "json"
			}
			logCfg.Colors = lf.colors()
			logging.Initialize(logCfg)
			logger := logging.GetLogger("encode")

			out, closeOut, err := openOutput(output)
			if err != nil {
				logger.Error("Can't open output", "output", output, "error", err)
				os.Exit(1)
			}

			sink, err := memsink.Open(cfg.Sink.Name, memsink.RoleConsumer, memsink.Options{Dir: cfg.Sink.Dir})
			if err != nil {
				logger.Error("Can't attach sink", "sink", cfg.Sink.Name, "error", err)
				closeOut()
				os.Exit(1)
			}

			bus := events.New()
			bus.Subscribe(func(ev events.BackendFallbackEvent) {
				logger.Warn("Backend degraded", "from", ev.From, "reason", ev.Reason)
			})

			enc := encoders.New(logging.GetLogger("encoders"), bus)
			if err := enc.SelectBackend(cfg.Encoder.Backend); err != nil {
				logger.Error("Unknown encoder backend", "backend", cfg.Encoder.Backend, "error", err)
				closeOut()
				_ = sink.Close()
				os.Exit(1)
			}
			_ = enc.SetQuality(cfg.Encoder.Quality)
			workers := enc.Prepare(cfg.Encoder.Workers)
			if dc, ok := deviceGeometry(cfg); ok {
				enc.PrepareLive(dc)
			}
			logger.Info("Encoder ready", "backend", enc.Active(), "workers", workers)

			watcher := config.NewWatcher(configFile, config.Load, logger)
			watcher.OnReload(func(fresh config.EncodeConfig) {
				if err := enc.SetQuality(fresh.Encoder.Quality); err != nil {
					logger.Warn("Ignoring reloaded quality", "error", err)
				}
				if dc, ok := deviceGeometry(fresh); ok {
					enc.PrepareLive(dc)
				}
			})
			if err := watcher.Start(); err != nil {
				logger.Warn("Config watcher failed, hot-reload disabled", "error", err)
			}

			if metricsAddr != "" {
				go serveMetrics(metricsAddr, logger)
			}

			format := dump.FormatRaw
			if outputJSON {
				format = dump.FormatJSON
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			runErr := pipeline.Run(ctx, sink, enc, out, pipeline.Options{
				Timeout: time.Duration(cfg.Sink.Timeout) * time.Second,
				Workers: workers,
				Format:  format,
				Logger:  logger,
			})
			stop()

			if runErr != nil {
				logger.Error("Encode aborted", "error", runErr)
			}
			_ = watcher.Stop()
			enc.Destroy()
			closeOut()
			_ = sink.Close()
			os.Exit(dump.ExitCode(runErr))
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "camsink.toml", "Path to configuration file")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file, or '-' for stdout (omit to consume without writing)")
	cmd.Flags().BoolVar(&outputJSON, "output-json", false, "Write JSON records instead of raw JPEG data")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Expose Prometheus metrics on this address (e.g. :9100)")
	lf.register(cmd)

	return cmd
}

// deviceGeometry converts the config device table into the encoder form.
// Geometry is optional: hardware backends that probe it themselves run
// without one.
func deviceGeometry(cfg config.EncodeConfig) (encoders.DeviceConfig, bool) {
	if cfg.Device.Width == 0 || cfg.Device.Height == 0 || cfg.Device.Format == "" {
		return encoders.DeviceConfig{}, false
	}
	fcc, err := cfg.FourCC()
	if err != nil {
		return encoders.DeviceConfig{}, false
	}
	return encoders.DeviceConfig{
		Width:  cfg.Device.Width,
		Height: cfg.Device.Height,
		Format: fcc,
		Stride: cfg.Device.Stride,
	}, true
}

func serveMetrics(addr string, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	logger.Info("Metrics listening", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Warn("Metrics server stopped", "error", err)
	}
}
