package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
)

var (
	colorReset = "\x1b[0m"
	colorTime  = "\x1b[90m" // 时间：灰色
	colorDebug = "\x1b[36m"
	colorInfo  = "\x1b[32m"
	colorWarn  = "\x1b[33m"
	colorError = "\x1b[31m"
)

// tagColors maps module tags to console colors. Messages starting with one of
// these tags are printed without the level column.
var tagColors = map[string]string{
	"[BOOT]":          "\x1b[96m",
	"[CONFIG]":        "\x1b[93m",
	"[HTTP]":          "\x1b[95m",
	"[VECTORIZE]":     "\x1b[94m",
	"[UPSTREAM]":      "\x1b[35m",
	"[OBSERVABILITY]": "\x1b[90m",
}

// TextHandler is a console slog handler with colored level and module tags.
type TextHandler struct {
	writer io.Writer
	level  slog.Level
	attrs  []slog.Attr
	mu     *sync.Mutex
}

// NewTextHandler creates a console handler writing to w.
func NewTextHandler(w io.Writer, level slog.Level) *TextHandler {
	return &TextHandler{writer: w, level: level, mu: &sync.Mutex{}}
}

func (h *TextHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *TextHandler) Handle(_ context.Context, r slog.Record) error {
	timeStr := r.Time.Format("2006-01-02 15:04:05.000")
	msg := r.Message

	var b strings.Builder
	if color, ok := moduleColor(msg); ok {
		fmt.Fprintf(&b, "%s[%s]%s %s%s%s", colorTime, timeStr, colorReset, color, msg, colorReset)
	} else {
		fmt.Fprintf(&b, "%s[%s]%s %s[%s]%s %s",
			colorTime, timeStr, colorReset,
			levelColor(r.Level), r.Level.String(), colorReset,
			msg)
	}

	if len(h.attrs) > 0 || r.NumAttrs() > 0 {
		b.WriteString(" {")
		for _, a := range h.attrs {
			fmt.Fprintf(&b, " %s=%v", a.Key, a.Value)
		}
		r.Attrs(func(a slog.Attr) bool {
			fmt.Fprintf(&b, " %s=%v", a.Key, a.Value)
			return true
		})
		b.WriteString(" }")
	}
	b.WriteString("\n")

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.writer, b.String())
	return err
}

func (h *TextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &TextHandler{writer: h.writer, level: h.level, attrs: merged, mu: h.mu}
}

func (h *TextHandler) WithGroup(string) slog.Handler {
	return h // 简化实现
}

func moduleColor(msg string) (string, bool) {
	if !strings.HasPrefix(msg, "[") {
		return "", false
	}
	end := strings.Index(msg, "]")
	if end < 0 {
		return "", false
	}
	color, ok := tagColors[msg[:end+1]]
	return color, ok
}

func levelColor(level slog.Level) string {
	switch level {
	case slog.LevelDebug:
		return colorDebug
	case slog.LevelInfo:
		return colorInfo
	case slog.LevelWarn:
		return colorWarn
	case slog.LevelError:
		return colorError
	default:
		return colorReset
	}
}

// fanoutHandler forwards every record to each of its handlers.
type fanoutHandler []slog.Handler

func (f fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanoutHandler) Handle(ctx context.Context, r slog.Record) error {
	var firstErr error
	for _, h := range f {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (f fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanoutHandler, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanoutHandler) WithGroup(name string) slog.Handler {
	out := make(fanoutHandler, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}
