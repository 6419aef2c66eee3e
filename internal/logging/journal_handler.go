package logging

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/coreos/go-systemd/v22/journal"
)

// SyslogIdentifier tags every journal entry.
var SyslogIdentifier = "appshell"

// JournalHandler is a slog.Handler sending records to the systemd journal.
// Attributes become journal fields, so `journalctl MODULE=updater` works.
type JournalHandler struct {
	level slog.Leveler
	scope recordScope
	send  func(message string, priority journal.Priority, fields map[string]string) error
}

// NewJournalHandler creates a journal handler.
func NewJournalHandler(level slog.Leveler) *JournalHandler {
	return &JournalHandler{level: level, send: journal.Send}
}

// Enabled implements slog.Handler.
func (h *JournalHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle implements slog.Handler.
func (h *JournalHandler) Handle(_ context.Context, r slog.Record) error {
	entry := h.scope.entry(r)
	if err := h.send(entry.Message, journalPriority(r.Level), journalFields(entry)); err != nil {
		return fmt.Errorf("failed to send to journal: %w", err)
	}
	return nil
}

// WithAttrs implements slog.Handler.
func (h *JournalHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *h
	c.scope = h.scope.withAttrs(attrs)
	return &c
}

// WithGroup implements slog.Handler.
func (h *JournalHandler) WithGroup(name string) slog.Handler {
	c := *h
	c.scope = h.scope.withGroup(name)
	return &c
}

func journalPriority(level slog.Level) journal.Priority {
	switch {
	case level >= slog.LevelError:
		return journal.PriErr
	case level >= slog.LevelWarn:
		return journal.PriWarning
	case level >= slog.LevelInfo:
		return journal.PriInfo
	default:
		return journal.PriDebug
	}
}

// journalFields maps an entry to journal fields. MESSAGE and PRIORITY are
// set by journal.Send.
func journalFields(entry LogEntry) map[string]string {
	fields := map[string]string{
		"SYSLOG_IDENTIFIER": SyslogIdentifier,
		"MODULE":            entry.Module,
	}
	for k, v := range entry.Attributes {
		name := journalFieldName(k)
		if name == "" {
			continue
		}
		fields[name] = fmt.Sprint(v)
	}
	return fields
}

// journalFieldName converts an attribute key to a valid journal field name:
// uppercase letters, digits and underscores, not starting with an
// underscore or digit.
func journalFieldName(key string) string {
	var sb strings.Builder
	for _, r := range strings.ToUpper(key) {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			sb.WriteRune(r)
		default:
			sb.WriteByte('_')
		}
	}
	name := strings.TrimLeft(sb.String(), "_0123456789")
	switch name {
	case "", "MESSAGE", "PRIORITY", "SYSLOG_IDENTIFIER", "MODULE":
		return ""
	}
	return name
}

// IsJournalAvailable reports whether the systemd journal socket exists.
func IsJournalAvailable() bool {
	return journal.Enabled()
}
