package telemetry

import "testing"

func TestPlatform(t *testing.T) {
	tests := []struct {
		goos string
		want string
	}{
		{"darwin", "osx"},
		{"windows", "windows"},
		{"linux", "linux"},
		{"freebsd", "linux"},
		{"", "linux"},
	}

	for _, tt := range tests {
		t.Run(tt.goos, func(t *testing.T) {
			if got := Platform(tt.goos); got != tt.want {
				t.Errorf("Platform(%q) = %q, want %q", tt.goos, got, tt.want)
			}
		})
	}
}

func TestSanitizeVersion(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"1.2.3", "1-2-3"},
		{"1.3.0-beta.1", "1-3-0-beta-1"},
		{"dev", "dev"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := SanitizeVersion(tt.in); got != tt.want {
			t.Errorf("SanitizeVersion(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPrefix(t *testing.T) {
	if got := Prefix("linux", true, "1.2.3"); got != "linux-b-1-2-3" {
		t.Errorf("Expected linux-b-1-2-3, got %s", got)
	}
	if got := Prefix("osx", false, "2.0.0"); got != "osx-2-0-0" {
		t.Errorf("Expected osx-2-0-0, got %s", got)
	}
}

func TestDownloadStats(t *testing.T) {
	stats := DownloadStats("windows", "1.2.3")

	want := map[string]string{
		"wpcom-desktop-download":          "windows-app",
		"wpcom-desktop-download-by-ver":   "windows-app-1-2-3",
		"wpcom-desktop-download-ref":      "update-windows-app",
		"wpcom-desktop-download-ref-only": "update",
	}

	if len(stats) != len(want) {
		t.Fatalf("Expected %d stats, got %d", len(want), len(stats))
	}
	for group, name := range want {
		if stats[group] != name {
			t.Errorf("stats[%q] = %q, want %q", group, stats[group], name)
		}
	}
}
