// Package telemetry records usage stats for the update lifecycle. Stats are
// counted in Prometheus, published on the event bus and, when a pixel URL
// is configured, reported to a remote stats endpoint. Every path is
// fire-and-forget.
package telemetry

import (
	"strings"
)

// Stat groups used by the update controller.
const (
	GroupUpdate            = "wpcom-desktop-update"
	GroupUpdateCheck       = "wpcom-desktop-update-check"
	GroupDownload          = "wpcom-desktop-download"
	GroupDownloadByVersion = "wpcom-desktop-download-by-ver"
	GroupDownloadRef       = "wpcom-desktop-download-ref"
	GroupDownloadRefOnly   = "wpcom-desktop-download-ref-only"
	downloadRefOnlyUpdate  = "update"
	platformMacOS          = "osx"
	platformWindows        = "windows"
	platformLinux          = "linux"
	betaMarker             = "-b"
)

// Platform maps a GOOS value to the stats platform name.
func Platform(goos string) string {
	switch goos {
	case "darwin":
		return platformMacOS
	case "windows":
		return platformWindows
	default:
		return platformLinux
	}
}

// SanitizeVersion makes a version usable inside a stat name.
func SanitizeVersion(version string) string {
	return strings.ReplaceAll(version, ".", "-")
}

// Prefix returns the "<platform>[-b]-<sanitizedVersion>" prefix shared by
// update stats.
func Prefix(platform string, beta bool, version string) string {
	var sb strings.Builder
	sb.WriteString(platform)
	if beta {
		sb.WriteString(betaMarker)
	}
	sb.WriteString("-")
	sb.WriteString(SanitizeVersion(version))
	return sb.String()
}

// DownloadStats returns the batch bumped when an update finishes
// downloading.
func DownloadStats(platform, version string) map[string]string {
	return map[string]string{
		GroupDownload:          platform + "-app",
		GroupDownloadByVersion: platform + "-app-" + SanitizeVersion(version),
		GroupDownloadRef:       "update-" + platform + "-app",
		GroupDownloadRefOnly:   downloadRefOnlyUpdate,
	}
}
