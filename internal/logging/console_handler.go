package logging

import (
	"context"
	"log/slog"
	"os"
	"sync"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// ConsoleOptions configures the console handler.
type ConsoleOptions struct {
	Level slog.Leveler
	// JSON switches to machine-readable output; Colors is ignored then.
	JSON bool
	// Colors forces color on or off; nil autodetects a terminal.
	Colors *bool
}

var (
	debugColor = color.New(color.FgHiBlack)
	warnColor  = color.New(color.FgYellow)
	errorColor = color.New(color.FgRed, color.Bold)
)

// NewConsoleHandler returns a handler writing human-readable (or JSON)
// records to stderr. Levels are colorized when stderr is a terminal unless
// overridden.
func NewConsoleHandler(opts ConsoleOptions) slog.Handler {
	handlerOpts := &slog.HandlerOptions{Level: opts.Level}
	if opts.JSON {
		return slog.NewJSONHandler(os.Stderr, handlerOpts)
	}

	colored := isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())
	if opts.Colors != nil {
		colored = *opts.Colors
	}
	return &consoleHandler{
		inner:   slog.NewTextHandler(&colorWriter{colored: colored}, handlerOpts),
		colored: colored,
	}
}

// consoleHandler colorizes text records by level. The coloring happens in
// the writer because slog's text handler owns the formatting.
type consoleHandler struct {
	inner   slog.Handler
	colored bool
}

func (h *consoleHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *consoleHandler) Handle(ctx context.Context, r slog.Record) error {
	setPendingLevel(r.Level)
	return h.inner.Handle(ctx, r)
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &consoleHandler{inner: h.inner.WithAttrs(attrs), colored: h.colored}
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	return &consoleHandler{inner: h.inner.WithGroup(name), colored: h.colored}
}

// colorWriter paints whole lines according to the level of the record
// being handled. slog serializes Handle calls per handler, and we guard
// the pending level for the tee case anyway.
type colorWriter struct {
	colored bool
}

var (
	pendingMu    sync.Mutex
	pendingLevel slog.Level
)

func setPendingLevel(l slog.Level) {
	pendingMu.Lock()
	pendingLevel = l
	pendingMu.Unlock()
}

func (w *colorWriter) Write(p []byte) (int, error) {
	if !w.colored {
		return os.Stderr.Write(p)
	}

	pendingMu.Lock()
	level := pendingLevel
	pendingMu.Unlock()

	var err error
	switch {
	case level >= slog.LevelError:
		_, err = errorColor.Fprint(os.Stderr, string(p))
	case level >= slog.LevelWarn:
		_, err = warnColor.Fprint(os.Stderr, string(p))
	case level < slog.LevelInfo:
		_, err = debugColor.Fprint(os.Stderr, string(p))
	default:
		_, err = os.Stderr.Write(p)
		return len(p), err
	}
	return len(p), err
}
