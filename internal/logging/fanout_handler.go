package logging

import (
	"context"
	"log/slog"
)

// teeHandler writes each record to every handler that accepts its level.
// The daemon uses it to pair the console stream with keepsake.log.
type teeHandler []slog.Handler

func newTeeHandler(handlers ...slog.Handler) slog.Handler {
	var live teeHandler
	for _, h := range handlers {
		if h != nil {
			live = append(live, h)
		}
	}
	switch len(live) {
	case 0:
		return discardHandler{}
	case 1:
		return live[0]
	default:
		return live
	}
}

func (t teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range t {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (t teeHandler) Handle(ctx context.Context, record slog.Record) error {
	var first error
	last := len(t) - 1
	for i, h := range t {
		if !h.Enabled(ctx, record.Level) {
			continue
		}
		// Handlers may retain attrs, so every handler but the last sees a clone.
		rec := record
		if i != last {
			rec = record.Clone()
		}
		if err := h.Handle(ctx, rec); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (t teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return t.derive(func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) })
}

func (t teeHandler) WithGroup(name string) slog.Handler {
	return t.derive(func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

func (t teeHandler) derive(fn func(slog.Handler) slog.Handler) teeHandler {
	out := make(teeHandler, len(t))
	for i, h := range t {
		out[i] = fn(h)
	}
	return out
}

// TeeLogger returns a logger that writes to base and to each extra handler.
// A nil base is skipped.
func TeeLogger(base *slog.Logger, extra ...slog.Handler) *slog.Logger {
	handlers := extra
	if base != nil {
		handlers = append([]slog.Handler{base.Handler()}, extra...)
	}
	return slog.New(newTeeHandler(handlers...))
}
