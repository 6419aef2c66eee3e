package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/smazurov/appshell/internal/logging"
	"github.com/smazurov/appshell/internal/updater"
	"github.com/smazurov/appshell/internal/version"
)

func TestVersionCmdJSON(t *testing.T) {
	c := CreateVersionCmd()
	var out bytes.Buffer
	c.SetOut(&out)
	c.SetArgs([]string{"--json"})

	if err := c.Execute(); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	var info version.Info
	if err := json.Unmarshal(out.Bytes(), &info); err != nil {
		t.Fatalf("Invalid JSON %q: %v", out.String(), err)
	}
	if info.Version != version.Version || info.Platform == "" {
		t.Errorf("Unexpected info %+v", info)
	}
}

func TestVersionCmdText(t *testing.T) {
	c := CreateVersionCmd()
	var out bytes.Buffer
	c.SetOut(&out)
	c.SetArgs(nil)

	if err := c.Execute(); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !strings.HasPrefix(out.String(), "appshell "+version.Version) {
		t.Errorf("Unexpected output %q", out.String())
	}
}

func TestPrintConfigKeys(t *testing.T) {
	opts := struct {
		Config  string `default:"config.toml"`
		Port    string `toml:"server.port" env:"SERVER_PORT" default:":8090"`
		Verbose bool   `toml:"logging.verbose"`
	}{}

	var out bytes.Buffer
	PrintConfigKeys(&out, opts, "APPSHELL_")

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("Expected header and 2 keys, got %q", out.String())
	}
	if fields := strings.Fields(lines[1]); len(fields) != 3 || fields[0] != "server.port" || fields[1] != "APPSHELL_SERVER_PORT" || fields[2] != ":8090" {
		t.Errorf("Unexpected row %q", lines[1])
	}
	if fields := strings.Fields(lines[2]); fields[0] != "logging.verbose" {
		t.Errorf("Unexpected row %q", lines[2])
	}
}

func TestCheckCmdRequiresRepository(t *testing.T) {
	c := CreateCheckCmd()
	c.SetOut(&bytes.Buffer{})
	c.SetErr(&bytes.Buffer{})
	c.SetArgs([]string{"--config", filepath.Join(t.TempDir(), "missing.toml"), "--app-data-dir", t.TempDir()})

	err := c.Execute()
	if err == nil || !strings.Contains(err.Error(), "repository") {
		t.Errorf("Expected a missing repository error, got %v", err)
	}
}

func TestRollbackCmdWithoutBackup(t *testing.T) {
	dataDir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dataDir, "updates"), 0o755); err != nil {
		t.Fatal(err)
	}

	c := CreateRollbackCmd()
	c.SetOut(&bytes.Buffer{})
	c.SetErr(&bytes.Buffer{})
	c.SetArgs([]string{"--config", filepath.Join(dataDir, "missing.toml"), "--app-data-dir", dataDir})

	if err := c.Execute(); err == nil || !strings.Contains(err.Error(), "no backup") {
		t.Errorf("Expected a no backup error, got %v", err)
	}
}

func TestRollbackCmdRestoresBackup(t *testing.T) {
	dataDir := t.TempDir()
	exe := filepath.Join(t.TempDir(), "appshell")
	if err := os.WriteFile(exe, []byte("v1"), 0o755); err != nil {
		t.Fatal(err)
	}

	stager, err := updater.NewStager(filepath.Join(dataDir, "updates"), logging.GetLogger("test"))
	if err != nil {
		t.Fatal(err)
	}
	if err := stager.Stage("1.1.0", strings.NewReader("v2")); err != nil {
		t.Fatal(err)
	}
	if _, err := stager.Apply(exe, "1.0.0"); err != nil {
		t.Fatal(err)
	}

	c := CreateRollbackCmd()
	var out bytes.Buffer
	c.SetOut(&out)
	c.SetArgs([]string{"--config", filepath.Join(dataDir, "missing.toml"), "--app-data-dir", dataDir, "--app-name", "Notes"})

	if err := c.Execute(); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if got := out.String(); got != "Restored 1.0.0. Restart Notes to use it.\n" {
		t.Errorf("Unexpected output %q", got)
	}

	data, err := os.ReadFile(exe)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "v1" {
		t.Errorf("Expected the old binary back, got %q", data)
	}
}
