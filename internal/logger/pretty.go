package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"
)

const (
	ansiReset  = "\033[0m"
	ansiRed    = "\033[31m"
	ansiYellow = "\033[33m"
	ansiBlue   = "\033[34m"
	ansiGray   = "\033[90m"
	ansiCyan   = "\033[36m"
	ansiBold   = "\033[1m"
)

// PrettyHandler is a slog.Handler producing colored single-line output
// for interactive terminals.
type PrettyHandler struct {
	level slog.Level
	attrs []slog.Attr

	mu sync.Mutex
	w  io.Writer
}

func NewPrettyHandler(w io.Writer, level slog.Level) *PrettyHandler {
	return &PrettyHandler{w: w, level: level}
}

func (h *PrettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

// Handle writes: [time] LEVEL message key=value ...
func (h *PrettyHandler) Handle(_ context.Context, r slog.Record) error {
	var sb strings.Builder
	sb.Grow(256)

	sb.WriteString(ansiGray)
	sb.WriteByte('[')
	sb.WriteString(r.Time.Format(time.TimeOnly))
	sb.WriteByte(']')
	sb.WriteString(ansiReset)
	sb.WriteByte(' ')

	sb.WriteString(levelColor(r.Level))
	sb.WriteString(ansiBold)
	fmt.Fprintf(&sb, "%-5s", r.Level.String())
	sb.WriteString(ansiReset)
	sb.WriteByte(' ')

	sb.WriteString(r.Message)

	write := func(a slog.Attr) {
		sb.WriteByte(' ')
		sb.WriteString(ansiCyan)
		sb.WriteString(a.Key)
		sb.WriteByte('=')
		v := a.Value.String()
		if strings.ContainsAny(v, " \t\"") {
			fmt.Fprintf(&sb, "%q", v)
		} else {
			sb.WriteString(v)
		}
		sb.WriteString(ansiReset)
	}
	for _, a := range h.attrs {
		write(a)
	}
	r.Attrs(func(a slog.Attr) bool {
		write(a)
		return true
	})
	sb.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, sb.String())
	return err
}

func (h *PrettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &PrettyHandler{w: h.w, level: h.level, attrs: merged}
}

// WithGroup flattens groups; pretty output is for humans, not parsers.
func (h *PrettyHandler) WithGroup(string) slog.Handler { return h }

func levelColor(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return ansiRed
	case level >= slog.LevelWarn:
		return ansiYellow
	case level >= slog.LevelInfo:
		return ansiBlue
	default:
		return ansiGray
	}
}
