package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func resetState() {
	mutex.Lock()
	moduleLoggers = make(map[string]*slog.Logger)
	moduleLevelVars = make(map[string]*slog.LevelVar)
	isInitialized = false
	globalConfig = Config{}
	mutex.Unlock()
}

func TestModuleLevelOverride(t *testing.T) {
	resetState()

	Initialize(Config{
		Level:  "info",
		Format: "text",
		Modules: map[string]string{
			"updater": "debug",
			"api":     "warn",
		},
	})

	tests := []struct {
		module      string
		wantDebug   bool
		wantInfo    bool
		wantWarn    bool
		description string
	}{
		{"updater", true, true, true, "updater module should log debug (override to debug)"},
		{"api", false, false, true, "api module should only log warn (override to warn)"},
		{"other", false, true, true, "other module should log info (global default)"},
	}

	for _, tt := range tests {
		t.Run(tt.module, func(t *testing.T) {
			logger := GetLogger(tt.module)

			handler := logger.Handler()

			gotDebug := handler.Enabled(context.Background(), slog.LevelDebug)
			gotInfo := handler.Enabled(context.Background(), slog.LevelInfo)
			gotWarn := handler.Enabled(context.Background(), slog.LevelWarn)

			if gotDebug != tt.wantDebug {
				t.Errorf("module %q: Debug enabled = %v, want %v", tt.module, gotDebug, tt.wantDebug)
			}
			if gotInfo != tt.wantInfo {
				t.Errorf("module %q: Info enabled = %v, want %v", tt.module, gotInfo, tt.wantInfo)
			}
			if gotWarn != tt.wantWarn {
				t.Errorf("module %q: Warn enabled = %v, want %v", tt.module, gotWarn, tt.wantWarn)
			}
		})
	}
}

func TestModuleLevelAfterInitialize(t *testing.T) {
	resetState()

	Initialize(Config{
		Level:  "info",
		Format: "text",
		Modules: map[string]string{
			"window": "debug",
		},
	})

	logger := GetLogger("window")
	handler := logger.Handler()

	if !handler.Enabled(context.Background(), slog.LevelDebug) {
		t.Errorf("window module handler should accept Debug level, handler type: %T", handler)
	}

}

func TestGetLoggerBeforeInitialize(t *testing.T) {
	resetState()

	loggerBefore := GetLogger("window")
	handlerBefore := loggerBefore.Handler()

	if handlerBefore.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("Logger created before Initialize should NOT have debug enabled")
	}

	Initialize(Config{
		Level:  "info",
		Format: "text",
		Modules: map[string]string{
			"window": "debug",
		},
	})

	loggerAfter := GetLogger("window")

	if loggerBefore != loggerAfter {
		t.Error("Logger should be cached - same pointer before and after Initialize")
	}

	if !handlerBefore.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("Cached logger should have debug enabled after Initialize updates LevelVar")
	}
}

func TestParseLevelValues(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
		isNil bool
	}{
		{"debug", slog.LevelDebug, false},
		{"DEBUG", slog.LevelDebug, false},
		{"info", slog.LevelInfo, false},
		{"INFO", slog.LevelInfo, false},
		{"warn", slog.LevelWarn, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"invalid", 0, true},
		{"silly", slog.LevelDebug, false},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := parseLevel(tt.input)
			if tt.isNil {
				if got != nil {
					t.Errorf("parseLevel(%q) = %v, want nil", tt.input, *got)
				}
			} else {
				if got == nil {
					t.Errorf("parseLevel(%q) = nil, want %v", tt.input, tt.want)
				} else if *got != tt.want {
					t.Errorf("parseLevel(%q) = %v, want %v", tt.input, *got, tt.want)
				}
			}
		})
	}
}

func TestMatchesDebug(t *testing.T) {
	tests := []struct {
		pattern string
		module  string
		want    bool
	}{
		{"", "updater", false},
		{"updater", "updater", true},
		{"updater*", "updater-source", true},
		{"updater*,-updater-source", "updater-source", false},
		{"updater*,-updater-source", "updater", true},
		{"api, window", "window", true},
		{"*", "anything", true},
		{"api", "updater", false},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+"/"+tt.module, func(t *testing.T) {
			if got := matchesDebug(tt.pattern, tt.module); got != tt.want {
				t.Errorf("matchesDebug(%q, %q) = %v, want %v", tt.pattern, tt.module, got, tt.want)
			}
		})
	}
}

func TestDebugPatternOverridesModuleLevel(t *testing.T) {
	resetState()

	Initialize(Config{
		Level:   "info",
		Format:  "text",
		Modules: map[string]string{"updater": "error"},
		Debug:   "updater",
	})

	handler := GetLogger("updater").Handler()
	if !handler.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("updater module should log debug when matched by the debug pattern")
	}
}

func TestSetLevelsUpdatesExistingLoggers(t *testing.T) {
	resetState()

	Initialize(Config{Level: "info", Format: "text"})
	handler := GetLogger("api").Handler()

	if handler.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("api module should not log debug before reload")
	}

	SetLevels(Config{Level: "info", Modules: map[string]string{"api": "debug"}})

	if !handler.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("api module should log debug after SetLevels")
	}
}

func TestFileHandlerFormat(t *testing.T) {
	var buf bytes.Buffer

	logger := slog.New(NewFileHandler(&buf, slog.LevelInfo)).With("module", "updater")
	logger.Debug("hidden")
	logger.Info("Update downloaded", "version", "1.3.0")

	output := buf.String()
	if strings.Contains(output, "hidden") {
		t.Errorf("Debug record should be filtered, got %q", output)
	}
	if !strings.Contains(output, "] [updater] [info] Update downloaded {\"version\":\"1.3.0\"}") {
		t.Errorf("Unexpected file line: %q", output)
	}
	if !strings.HasPrefix(output, "[") || !strings.HasSuffix(output, "\n") {
		t.Errorf("File line should be bracketed and newline terminated: %q", output)
	}
}

func TestBufferCallbackReceivesEntries(t *testing.T) {
	resetState()
	Initialize(Config{Level: "info", Format: "text"})

	var got []LogEntry
	SetLogCallback(func(entry LogEntry) {
		got = append(got, entry)
	})
	defer SetLogCallback(nil)

	GetLogger("telemetry").Info("bumped", "group", "wpcom-desktop-update")

	if len(got) != 1 {
		t.Fatalf("Expected 1 callback entry, got %d", len(got))
	}
	if got[0].Module != "telemetry" {
		t.Errorf("Expected module telemetry, got %s", got[0].Module)
	}
	if got[0].Attributes["group"] != "wpcom-desktop-update" {
		t.Errorf("Expected group attribute, got %v", got[0].Attributes)
	}
	if got[0].Seq == 0 {
		t.Error("Expected the callback entry to carry its buffer sequence number")
	}
	if GetBuffer().Count() == 0 {
		t.Error("Expected entry in ring buffer")
	}
}
