// Package dump drives the sink consumer loop: bounded-wait reads from a
// memory sink, FPS accounting, and raw or JSON emission until a
// cooperative stop signal fires.
package dump

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/camkit/camsink/internal/events"
	"github.com/camkit/camsink/internal/frame"
	"github.com/camkit/camsink/internal/memsink"
	"github.com/camkit/camsink/internal/metrics"
)

// Source is the read side of a frame channel. *memsink.Sink satisfies it;
// tests substitute fakes.
type Source interface {
	Get(ctx context.Context, f *frame.Frame, timeout time.Duration) error
	Name() string
}

// ExitError carries the internal failure code of an aborted loop. The
// process exit status is the absolute value of Code.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("dump failed (code %d): %v", e.Code, e.Err)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// ExitCode maps a Run result to a process exit status: 0 on nil or
// cancellation, otherwise the absolute value of the internal code.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		if exitErr.Code < 0 {
			return -exitErr.Code
		}
		return exitErr.Code
	}
	return 1
}

// Internal failure codes, negated into exit statuses by ExitCode.
const (
	codeSinkError   = -1
	codeOutputError = -2
)

// Options tunes Run.
type Options struct {
	// Timeout bounds each sink read. Shutdown latency is at most one
	// timeout, since an in-flight bounded read is not force-cancelled.
	Timeout time.Duration

	// Format selects the emission encoding when an output is set.
	Format Format

	Logger *slog.Logger
	Bus    *events.Bus
}

// Run polls src until ctx is cancelled, emitting every new frame to out.
// A nil out consumes the sink without emitting. Read timeouts are retried
// silently; sink and output errors abort with an *ExitError.
func Run(ctx context.Context, src Source, out io.Writer, opts Options) error {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var emitter *Emitter
	if out != nil {
		emitter = NewEmitter(out, opts.Format)
	}

	f := frame.New()
	var meter FPSMeter
	online := false

	for {
		if ctx.Err() != nil {
			return nil
		}

		err := src.Get(ctx, f, opts.Timeout)
		switch {
		case err == nil:
			// Fall through to accounting and emission.
		case errors.Is(err, memsink.ErrNoData):
			metrics.IncTimeouts(src.Name())
			continue
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return nil
		default:
			return &ExitError{Code: codeSinkError, Err: err}
		}

		now := frame.Now()
		logger.Debug("Frame",
			"size", f.Used, "width", f.Width, "height", f.Height,
			"fourcc", f.Format.String(), "stride", f.Stride, "online", f.Online,
			"grab_ts", f.GrabTS, "encode_begin_ts", f.EncodeBeginTS,
			"encode_end_ts", f.EncodeEndTS, "latency", now-f.GrabTS)

		if f.Online != online {
			online = f.Online
			logger.Info("Producer state changed", "online", online)
			if opts.Bus != nil {
				opts.Bus.Publish(events.ProducerStateEvent{Sink: src.Name(), Online: online})
			}
		}

		if fps, second, published := meter.Observe(now); published {
			logger.Debug("A new second has come", "captured_fps", fps)
			metrics.SetFPS(src.Name(), fps)
			if opts.Bus != nil {
				opts.Bus.Publish(events.SecondElapsedEvent{
					Sink:   src.Name(),
					Second: second,
					FPS:    fps,
				})
			}
		}
		metrics.IncFrames(src.Name())

		if emitter != nil {
			if err := emitter.Emit(f); err != nil {
				return &ExitError{Code: codeOutputError, Err: err}
			}
		}
	}
}
