// Package pipeline pulls frames from a sink and compresses them across the
// encoder's worker slots, emitting results in arrival order.
package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/camkit/camsink/internal/dump"
	"github.com/camkit/camsink/internal/encoders"
	"github.com/camkit/camsink/internal/frame"
	"github.com/camkit/camsink/internal/memsink"
	"github.com/camkit/camsink/internal/metrics"
)

// Source is the read side of a frame channel.
type Source interface {
	Get(ctx context.Context, f *frame.Frame, timeout time.Duration) error
	Name() string
}

// Options tunes Run.
type Options struct {
	// Timeout bounds each sink read.
	Timeout time.Duration

	// Workers is the number of concurrent compression slots. Must match
	// the encoder's prepared slot count.
	Workers int

	// Format selects the emission encoding.
	Format dump.Format

	Logger *slog.Logger
}

// slot is one worker's private buffers plus its in-flight marker. Slots
// share no mutable per-call state; each worker only ever touches its own.
type slot struct {
	src      *frame.Frame
	dst      *frame.Frame
	done     chan error
	inFlight bool
}

// Run reads frames until ctx is cancelled, dispatching them round-robin to
// worker slots and emitting compressed frames in arrival order. Encoder
// failures drop the affected frame and the stream continues; sink and
// output errors abort.
func Run(ctx context.Context, src Source, enc *encoders.Encoder, out io.Writer, opts Options) error {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}

	var emitter *dump.Emitter
	if out != nil {
		emitter = dump.NewEmitter(out, opts.Format)
	}

	slots := make([]*slot, opts.Workers)
	for i := range slots {
		slots[i] = &slot{
			src:  frame.New(),
			dst:  frame.New(),
			done: make(chan error, 1),
		}
	}

	// drain completes slot s and emits its result, preserving order.
	drain := func(s *slot) error {
		if !s.inFlight {
			return nil
		}
		s.inFlight = false
		if err := <-s.done; err != nil {
			// Hardware fallback or an unsupported frame: this frame is
			// dropped, the next one takes the current backend path.
			logger.Warn("Frame compression failed, dropping frame", "error", err)
			return nil
		}
		if emitter != nil {
			if err := emitter.Emit(s.dst); err != nil {
				return &dump.ExitError{Code: -2, Err: err}
			}
		}
		return nil
	}

	finish := func(next int) error {
		for i := 0; i < opts.Workers; i++ {
			if err := drain(slots[(next+i)%opts.Workers]); err != nil {
				return err
			}
		}
		return nil
	}

	next := 0
	for {
		if ctx.Err() != nil {
			return finish(next)
		}

		s := slots[next]
		if err := drain(s); err != nil {
			finish(next)
			return err
		}

		err := src.Get(ctx, s.src, opts.Timeout)
		switch {
		case err == nil:
		case errors.Is(err, memsink.ErrNoData):
			metrics.IncTimeouts(src.Name())
			continue
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return finish(next)
		default:
			finish(next)
			return &dump.ExitError{Code: -1, Err: err}
		}
		metrics.IncFrames(src.Name())

		worker := next
		s.inFlight = true
		go func() {
			s.done <- enc.Compress(worker, s.src, s.dst)
		}()
		next = (next + 1) % opts.Workers
	}
}
