// Package version holds the build information stamped in with -ldflags:
//
//	go build -ldflags "-X github.com/smazurov/appshell/internal/version.Version=1.3.0"
package version

import (
	"fmt"
	"runtime"

	"github.com/Masterminds/semver/v3"
)

// Set at build time.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
	BuildID   = "unknown"
)

// Info is the build information reported by the version command and API.
type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	BuildID   string `json:"build_id"`
	GoVersion string `json:"go_version"`
	Compiler  string `json:"compiler"`
	Platform  string `json:"platform"`
	Release   bool   `json:"release"`
}

// Get returns the build information of the running binary.
func Get() Info {
	return Info{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		BuildID:   BuildID,
		GoVersion: runtime.Version(),
		Compiler:  runtime.Compiler,
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
		Release:   IsRelease(),
	}
}

// String returns the application version.
func String() string {
	return Version
}

// Semver parses the application version. A leading "v" is accepted.
func Semver() (*semver.Version, error) {
	v, err := semver.NewVersion(Version)
	if err != nil {
		return nil, fmt.Errorf("version %q is not a semantic version: %w", Version, err)
	}
	return v, nil
}

// IsRelease reports whether this binary carries a semantic version, which
// is what releases are compared against. Local builds report "dev".
func IsRelease() bool {
	_, err := Semver()
	return err == nil
}

// UserAgent identifies the application in outgoing HTTP requests.
func UserAgent() string {
	return fmt.Sprintf("appshell/%s (%s; %s)", Version, runtime.GOOS, runtime.GOARCH)
}
