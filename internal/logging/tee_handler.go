package logging

import (
	"context"
	"errors"
	"log/slog"
)

// teeHandler duplicates records to several destinations, typically the
// console and the systemd journal. Each destination applies its own level;
// one failing destination does not stop delivery to the others.
type teeHandler struct {
	targets []slog.Handler
}

// Tee combines handlers into one. A single handler is returned unchanged.
func Tee(handlers ...slog.Handler) slog.Handler {
	if len(handlers) == 1 {
		return handlers[0]
	}
	return &teeHandler{targets: handlers}
}

func (t *teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range t.targets {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (t *teeHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range t.targets {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (t *teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return t.apply(func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) })
}

func (t *teeHandler) WithGroup(name string) slog.Handler {
	return t.apply(func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

func (t *teeHandler) apply(fn func(slog.Handler) slog.Handler) slog.Handler {
	out := make([]slog.Handler, len(t.targets))
	for i, h := range t.targets {
		out[i] = fn(h)
	}
	return &teeHandler{targets: out}
}
