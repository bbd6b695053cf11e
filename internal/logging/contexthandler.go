// Package logging carries request scoped slog attributes through context.Context.
package logging

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
)

type contextKey struct{}

// ContextHandler adds the [slog.Attr] stored with [WithAttrs] to every record it handles.
type ContextHandler struct {
	handler slog.Handler
}

// NewContextHandler wraps h.
func NewContextHandler(h slog.Handler) *ContextHandler {
	return &ContextHandler{handler: h}
}

func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

// Handle enriches r with the context attributes before passing it on.
func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	r.AddAttrs(Attrs(ctx)...)
	if err := h.handler.Handle(ctx, r); err != nil {
		return fmt.Errorf("handle log record: %w", err)
	}
	return nil
}

func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{handler: h.handler.WithAttrs(attrs)}
}

func (h *ContextHandler) WithGroup(name string) slog.Handler {
	return &ContextHandler{handler: h.handler.WithGroup(name)}
}

// WithAttrs returns a context whose log records handled by [ContextHandler] carry attrs in addition to the
// attributes already stored in ctx.
func WithAttrs(ctx context.Context, attrs ...slog.Attr) context.Context {
	// Clip so that sibling contexts never share a backing array.
	existing := slices.Clip(Attrs(ctx))
	return context.WithValue(ctx, contextKey{}, append(existing, attrs...))
}

// Attrs returns the attributes stored in ctx with [WithAttrs].
func Attrs(ctx context.Context) []slog.Attr {
	attrs, _ := ctx.Value(contextKey{}).([]slog.Attr)
	return attrs
}
