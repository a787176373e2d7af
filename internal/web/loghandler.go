package web

import (
	"context"
	"log/slog"
)

// LogHandler forwards log records to the panel hub while delegating to the
// base handler, so the panel mirrors the assistant's console output.
type LogHandler struct {
	base  slog.Handler
	hub   *Hub
	attrs []slog.Attr
}

func NewLogHandler(base slog.Handler, hub *Hub) *LogHandler {
	return &LogHandler{base: base, hub: hub}
}

func (h *LogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.base.Enabled(ctx, level)
}

func (h *LogHandler) Handle(ctx context.Context, record slog.Record) error {
	fields := make(map[string]any, record.NumAttrs()+len(h.attrs))
	for _, a := range h.attrs {
		fields[a.Key] = a.Value.Any()
	}
	record.Attrs(func(a slog.Attr) bool {
		fields[a.Key] = a.Value.Any()
		return true
	})

	h.hub.Publish("log", map[string]any{
		"level":   record.Level.String(),
		"message": record.Message,
		"fields":  fields,
	})

	return h.base.Handle(ctx, record)
}

func (h *LogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &LogHandler{base: h.base.WithAttrs(attrs), hub: h.hub, attrs: merged}
}

func (h *LogHandler) WithGroup(name string) slog.Handler {
	return &LogHandler{base: h.base.WithGroup(name), hub: h.hub, attrs: h.attrs}
}
