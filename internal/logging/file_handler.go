package logging

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"sync"
)

const fileTimestampLayout = "2006-01-02 15:04:05.000"

// FileHandler writes one line per record in the form
//
//	[2006-01-02 15:04:05.000] [module] [level] message {"key":"value"}
//
// to w, which is normally a rotating lumberjack.Logger.
type FileHandler struct {
	w     io.Writer
	mu    *sync.Mutex
	level slog.Leveler
	scope recordScope
}

// NewFileHandler creates a handler writing formatted lines to w.
func NewFileHandler(w io.Writer, level slog.Leveler) *FileHandler {
	return &FileHandler{
		w:     w,
		mu:    &sync.Mutex{},
		level: level,
	}
}

// Enabled implements slog.Handler.
func (h *FileHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle implements slog.Handler.
func (h *FileHandler) Handle(_ context.Context, r slog.Record) error {
	line := FormatFileLine(h.scope.entry(r))

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, line+"\n")
	return err
}

// WithAttrs implements slog.Handler.
func (h *FileHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *h
	c.scope = h.scope.withAttrs(attrs)
	return &c
}

// WithGroup implements slog.Handler.
func (h *FileHandler) WithGroup(name string) slog.Handler {
	c := *h
	c.scope = h.scope.withGroup(name)
	return &c
}

// FormatFileLine renders an entry in the log file format. Attributes are
// appended as a JSON object when present.
func FormatFileLine(entry LogEntry) string {
	var sb strings.Builder
	sb.WriteString("[")
	sb.WriteString(entry.Timestamp.Format(fileTimestampLayout))
	sb.WriteString("] [")
	sb.WriteString(entry.Module)
	sb.WriteString("] [")
	sb.WriteString(entry.Level)
	sb.WriteString("] ")
	sb.WriteString(entry.Message)

	if len(entry.Attributes) > 0 {
		// encoding/json sorts map keys
		if meta, err := json.Marshal(entry.Attributes); err == nil {
			sb.WriteString(" ")
			sb.Write(meta)
		}
	}

	return sb.String()
}
