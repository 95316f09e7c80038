package server

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// LogFunc receives one finished log line. The control panel prints it.
type LogFunc func(message string)

// NewLogger returns a logger that renders each record as
// `message key=value ...` and hands it to sink. Warnings and errors are
// prefixed with their level so a sink can highlight them.
func NewLogger(sink LogFunc, level slog.Leveler) *slog.Logger {
	if sink == nil {
		sink = func(string) {}
	}
	if level == nil {
		level = slog.LevelInfo
	}
	return slog.New(&sinkHandler{sink: sink, level: level, mu: &sync.Mutex{}})
}

type sinkHandler struct {
	sink   LogFunc
	level  slog.Leveler
	attrs  []slog.Attr
	prefix string
	mu     *sync.Mutex
}

func (h *sinkHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *sinkHandler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	if r.Level >= slog.LevelWarn {
		b.WriteString(r.Level.String())
		b.WriteString(": ")
	}
	b.WriteString(r.Message)

	write := func(a slog.Attr) {
		if a.Equal(slog.Attr{}) {
			return
		}
		fmt.Fprintf(&b, " %s%s=%v", h.prefix, a.Key, a.Value.Resolve())
	}
	for _, a := range h.attrs {
		write(a)
	}
	r.Attrs(func(a slog.Attr) bool {
		write(a)
		return true
	})

	h.mu.Lock()
	defer h.mu.Unlock()
	h.sink(b.String())
	return nil
}

func (h *sinkHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &next
}

func (h *sinkHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.prefix = h.prefix + name + "."
	return &next
}
