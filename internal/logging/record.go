package logging

import (
	"log/slog"
	"strings"
	"time"
)

// recordScope holds what a handler accumulated through WithAttrs and
// WithGroup. Every handler in this package turns records into a LogEntry
// through it, so the buffer, the file and the journal agree on keys.
type recordScope struct {
	attrs  []slog.Attr
	groups []string
}

func (s recordScope) withAttrs(attrs []slog.Attr) recordScope {
	if len(attrs) == 0 {
		return s
	}
	// Groups opened before these attrs apply to them, so resolve keys now
	merged := make([]slog.Attr, 0, len(s.attrs)+len(attrs))
	merged = append(merged, s.attrs...)
	for _, a := range attrs {
		if a.Key != "module" && len(s.groups) > 0 {
			a = slog.Group(strings.Join(s.groups, "."), a)
		}
		merged = append(merged, a)
	}
	return recordScope{attrs: merged, groups: s.groups}
}

func (s recordScope) withGroup(name string) recordScope {
	if name == "" {
		return s
	}
	groups := make([]string, len(s.groups)+1)
	copy(groups, s.groups)
	groups[len(s.groups)] = name
	return recordScope{attrs: s.attrs, groups: groups}
}

// entry converts r into a LogEntry. The "module" attribute becomes
// LogEntry.Module and group names are joined into dotted keys.
func (s recordScope) entry(r slog.Record) LogEntry {
	e := LogEntry{
		Timestamp:  r.Time,
		Level:      levelName(r.Level),
		Module:     "app",
		Message:    r.Message,
		Attributes: make(map[string]any),
	}

	add := func(prefix string, a slog.Attr) {
		if a.Key == "module" && prefix == "" {
			e.Module = a.Value.String()
			return
		}
		flatten(e.Attributes, prefix, a)
	}
	for _, a := range s.attrs {
		add("", a)
	}
	prefix := strings.Join(s.groups, ".")
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == "module" {
			e.Module = a.Value.String()
			return true
		}
		add(prefix, a)
		return true
	})

	if len(e.Attributes) == 0 {
		e.Attributes = nil
	}
	return e
}

func flatten(dst map[string]any, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}

	key := a.Key
	if prefix != "" {
		key = prefix + "." + key
	}

	switch a.Value.Kind() {
	case slog.KindGroup:
		for _, ga := range a.Value.Group() {
			flatten(dst, key, ga)
		}
	case slog.KindTime:
		dst[key] = a.Value.Time().Format(time.RFC3339Nano)
	case slog.KindDuration:
		dst[key] = a.Value.Duration().String()
	case slog.KindAny:
		if err, ok := a.Value.Any().(error); ok {
			dst[key] = err.Error()
		} else {
			dst[key] = a.Value.Any()
		}
	default:
		dst[key] = a.Value.Any()
	}
}

func levelName(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "error"
	case level >= slog.LevelWarn:
		return "warn"
	case level >= slog.LevelInfo:
		return "info"
	default:
		return "debug"
	}
}
