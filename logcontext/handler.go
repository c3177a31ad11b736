package logcontext

import (
	"context"
	"log/slog"
)

// Handler decorates a slog.Handler with the live properties of the record's context
type Handler struct {
	next slog.Handler
}

// NewHandler wraps next
func NewHandler(next slog.Handler) *Handler {
	if next == nil {
		next = slog.Default().Handler()
	}
	return &Handler{next: next}
}

// NewLogger returns a logger whose records carry the pushed properties
func NewLogger(next slog.Handler) *slog.Logger {
	return slog.New(NewHandler(next))
}

// Enabled implements slog.Handler
func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

// Handle implements slog.Handler
func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	if props := Properties(ctx); len(props) > 0 {
		r = r.Clone()
		for _, p := range props {
			r.AddAttrs(slog.Any(p.Name, p.Value))
		}
	}
	return h.next.Handle(ctx, r)
}

// WithAttrs implements slog.Handler
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &Handler{next: h.next.WithAttrs(attrs)}
}

// WithGroup implements slog.Handler
func (h *Handler) WithGroup(name string) slog.Handler {
	return &Handler{next: h.next.WithGroup(name)}
}
