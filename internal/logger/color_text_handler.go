package logger

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"sync"
)

// ColorTextHandler formats records with slog.TextHandler and prefixes each
// line with an ANSI colored level name. The level attribute itself is dropped.
type ColorTextHandler struct {
	inner    slog.Handler
	showTime bool
	out      *colorOutput
}

// colorOutput is shared by a handler and the handlers derived from it.
type colorOutput struct {
	mu  sync.Mutex
	w   io.Writer
	buf bytes.Buffer
}

// NewColorTextHandler creates a new ColorTextHandler. When showTime is false the
// time attribute is dropped.
func NewColorTextHandler(w io.Writer, opts *slog.HandlerOptions, showTime bool) *ColorTextHandler {
	o := slog.HandlerOptions{}
	if opts != nil {
		o = *opts
	}
	prev := o.ReplaceAttr
	o.ReplaceAttr = func(groups []string, a slog.Attr) slog.Attr {
		if len(groups) == 0 {
			if a.Key == slog.LevelKey || (!showTime && a.Key == slog.TimeKey) {
				return slog.Attr{}
			}
		}
		if prev != nil {
			return prev(groups, a)
		}
		return a
	}
	out := &colorOutput{w: w}
	return &ColorTextHandler{
		inner:    slog.NewTextHandler(&out.buf, &o),
		showTime: showTime,
		out:      out,
	}
}

func (h *ColorTextHandler) Enabled(ctx context.Context, l slog.Level) bool {
	return h.inner.Enabled(ctx, l)
}

// Handle implements slog.Handler
func (h *ColorTextHandler) Handle(ctx context.Context, r slog.Record) error {
	h.out.mu.Lock()
	defer h.out.mu.Unlock()
	h.out.buf.Reset()
	if err := h.inner.Handle(ctx, r); err != nil {
		return err
	}
	line := make([]byte, 0, h.out.buf.Len()+24)
	line = append(line, levelColor(r.Level)...)
	line = append(line, r.Level.String()...)
	line = append(line, "\033[0m  "...)
	line = append(line, h.out.buf.Bytes()...)
	_, err := h.out.w.Write(line)
	return err
}

func (h *ColorTextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ColorTextHandler{inner: h.inner.WithAttrs(attrs), showTime: h.showTime, out: h.out}
}

func (h *ColorTextHandler) WithGroup(name string) slog.Handler {
	return &ColorTextHandler{inner: h.inner.WithGroup(name), showTime: h.showTime, out: h.out}
}

func levelColor(l slog.Level) string {
	switch {
	case l >= slog.LevelError:
		return "\033[31m" // Red
	case l >= slog.LevelWarn:
		return "\033[33m" // Yellow
	case l >= slog.LevelInfo:
		return "\033[32m" // Green
	default:
		return "\033[36m" // Cyan
	}
}
