package updater

import (
	"context"
	"time"
)

// Channel selects which releases are offered.
type Channel string

// Update channels.
const (
	ChannelStable Channel = "stable"
	ChannelBeta   Channel = "beta"
)

// Valid reports whether c is a known channel.
func (c Channel) Valid() bool {
	return c == ChannelStable || c == ChannelBeta
}

// State represents the current state of the update controller.
type State string

// Controller states.
const (
	StateIdle                 State = "idle"
	StateChecking             State = "checking"
	StateAvailable            State = "available"
	StateDownloaded           State = "downloaded"
	StateAwaitingConfirmation State = "awaiting-confirmation"
	// StateInstalling means the user confirmed and the process is quitting
	// to install. A failed install returns to StateIdle.
	StateInstalling State = "installing"
)

// DownloadState tracks payload retrieval for an UpdateRecord.
type DownloadState string

// Download states.
const (
	DownloadNotStarted  DownloadState = "not-started"
	DownloadDownloading DownloadState = "downloading"
	DownloadDownloaded  DownloadState = "downloaded"
)

// UpdateRecord is the metadata of a discovered update.
type UpdateRecord struct {
	Version       string        `json:"version"`
	DownloadState DownloadState `json:"download_state"`
	ReleaseNotes  string        `json:"release_notes,omitempty"`
	ReleaseURL    string        `json:"release_url,omitempty"`
	PublishedAt   time.Time     `json:"published_at,omitzero"`
}

// ReleaseInfo is the version metadata carried by source events.
type ReleaseInfo struct {
	Version      string
	ReleaseNotes string
	ReleaseURL   string
	PublishedAt  time.Time
}

// SourceEventKind identifies an update source lifecycle event.
type SourceEventKind string

// Source event kinds.
const (
	SourceError              SourceEventKind = "error"
	SourceUpdateAvailable    SourceEventKind = "update-available"
	SourceUpdateNotAvailable SourceEventKind = "update-not-available"
	SourceUpdateDownloaded   SourceEventKind = "update-downloaded"
)

// SourceEvent is delivered by an UpdateSource to its subscribers.
type SourceEvent struct {
	Kind SourceEventKind
	Info *ReleaseInfo // nil for error and not-available events
	Err  error        // set for error events
}

// SourceSettings configures how an UpdateSource selects and installs
// releases.
type SourceSettings struct {
	AutoInstallOnQuit bool
	AllowDowngrade    bool
	AllowPrerelease   bool
	Channel           Channel
}

// SettingsForChannel returns the source settings the controller applies
// for a channel. Auto-install on quit is always off; installation only
// happens after the user confirms.
func SettingsForChannel(ch Channel) SourceSettings {
	if ch == ChannelBeta {
		return SourceSettings{
			AutoInstallOnQuit: false,
			AllowDowngrade:    false,
			AllowPrerelease:   true,
			Channel:           ChannelBeta,
		}
	}
	return SourceSettings{
		AutoInstallOnQuit: false,
		AllowDowngrade:    true,
		AllowPrerelease:   false,
		Channel:           ChannelStable,
	}
}

// UpdateSource finds, downloads and installs updates. Lifecycle events are
// delivered asynchronously, in order, to subscribers.
type UpdateSource interface {
	Configure(settings SourceSettings)
	CheckForUpdates(ctx context.Context) error
	QuitAndInstall() error
	Subscribe(handler func(SourceEvent)) (unsubscribe func())
}

// Prompt is the confirmation dialog shown when an update is downloaded.
type Prompt struct {
	Version      string `json:"version"`
	Title        string `json:"title"`
	Message      string `json:"message"`
	Detail       string `json:"detail,omitempty"`
	ConfirmLabel string `json:"confirm_label"`
	CancelLabel  string `json:"cancel_label"`
}

// UpdateUI asks the user to confirm an update. RequestConfirmation must not
// block; respond is called exactly once with the decision and returns the
// error, if any, of acting on it.
type UpdateUI interface {
	RequestConfirmation(prompt Prompt, respond func(accepted bool) error)
	Notice(message string)
}

// AppLifecycle controls application shutdown. PreventQuit is held while a
// prompt is open.
type AppLifecycle interface {
	PreventQuit()
	AllowQuit()
	CloseAllWindows()
}

// Telemetry records stats. Calls are fire-and-forget; single stats are
// one-entry maps.
type Telemetry interface {
	BumpStats(stats map[string]string)
}

// Status is a snapshot of the controller.
type Status struct {
	State           State         `json:"state"`
	Channel         Channel       `json:"channel"`
	CurrentVersion  string        `json:"current_version"`
	Record          *UpdateRecord `json:"record,omitempty"`
	PromptedVersion string        `json:"prompted_version,omitempty"`
	LastChecked     *time.Time    `json:"last_checked,omitempty"`
	LastError       string        `json:"last_error,omitempty"`
}
