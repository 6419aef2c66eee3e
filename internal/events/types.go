package events

// Event type constants for kelindar/event.
const (
	TypeUpdateSource uint32 = iota + 1
	TypeUpdateStateChanged
	TypeUpdatePrompt
	TypeStatsBumped
	TypeWindowChanged
	TypeLogEntry
)

// Kinds carried by UpdateSourceEvent.
const (
	SourceError              = "error"
	SourceUpdateAvailable    = "update-available"
	SourceUpdateNotAvailable = "update-not-available"
	SourceUpdateDownloaded   = "update-downloaded"
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// UpdateSourceEvent is emitted by the release source. All lifecycle kinds
// share one type so a subscriber sees them in publish order.
type UpdateSourceEvent struct {
	Kind         string `json:"kind" example:"update-downloaded" doc:"error, update-available, update-not-available or update-downloaded"`
	Version      string `json:"version,omitempty" example:"1.3.0" doc:"Release version, when known"`
	ReleaseNotes string `json:"release_notes,omitempty" doc:"Release notes"`
	ReleaseURL   string `json:"release_url,omitempty" doc:"Release page URL"`
	PublishedAt  string `json:"published_at,omitempty" example:"2025-01-27T10:30:00Z" doc:"Release publish time"`
	Error        string `json:"error,omitempty" example:"network timeout" doc:"Error description for error events"`
	Timestamp    string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for UpdateSourceEvent.
func (e UpdateSourceEvent) Type() uint32 { return TypeUpdateSource }

// UpdateStateChangedEvent is published by the update controller on every
// state transition.
type UpdateStateChangedEvent struct {
	From      string `json:"from" example:"checking" doc:"Previous controller state"`
	To        string `json:"to" example:"available" doc:"New controller state"`
	Version   string `json:"version,omitempty" example:"1.3.0" doc:"Discovered version, if any"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for UpdateStateChangedEvent.
func (e UpdateStateChangedEvent) Type() uint32 { return TypeUpdateStateChanged }

// Prompt actions.
const (
	PromptShown    = "shown"
	PromptResolved = "resolved"
)

// UpdatePromptEvent is published when an update confirmation prompt is
// shown or answered.
type UpdatePromptEvent struct {
	Action       string `json:"action" example:"shown" doc:"shown or resolved"`
	Version      string `json:"version" example:"1.3.0" doc:"Version awaiting confirmation"`
	Title        string `json:"title,omitempty" doc:"Prompt title"`
	Message      string `json:"message,omitempty" doc:"Prompt message"`
	Detail       string `json:"detail,omitempty" doc:"Prompt detail text"`
	ConfirmLabel string `json:"confirm_label,omitempty" example:"Update & Restart" doc:"Confirm button label"`
	CancelLabel  string `json:"cancel_label,omitempty" example:"Cancel" doc:"Cancel button label"`
	Accepted     bool   `json:"accepted" doc:"User decision, only meaningful when resolved"`
	Timestamp    string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for UpdatePromptEvent.
func (e UpdatePromptEvent) Type() uint32 { return TypeUpdatePrompt }

// StatsBumpedEvent is published for every telemetry stat recorded.
type StatsBumpedEvent struct {
	Group     string `json:"group" example:"wpcom-desktop-update-check" doc:"Stat group"`
	Name      string `json:"name" example:"linux-1-2-3-no-update" doc:"Stat name"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for StatsBumpedEvent.
func (e StatsBumpedEvent) Type() uint32 { return TypeStatsBumped }

// WindowChangedEvent reports shell window lifecycle changes.
type WindowChangedEvent struct {
	WindowID  string `json:"window_id" example:"main" doc:"Window identifier"`
	Action    string `json:"action" example:"opened" doc:"opened, closed or exited"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for WindowChangedEvent.
func (e WindowChangedEvent) Type() uint32 { return TypeWindowChanged }

// LogEntryEvent represents a log entry for SSE streaming.
type LogEntryEvent struct {
	Seq        uint64         `json:"seq" example:"42" doc:"Monotonic sequence number for deduplication"`
	Timestamp  string         `json:"timestamp" example:"2025-01-09T10:30:00.123Z" doc:"Log timestamp"`
	Level      string         `json:"level" example:"info" doc:"Log level"`
	Module     string         `json:"module" example:"api" doc:"Source module"`
	Message    string         `json:"message" doc:"Log message"`
	Attributes map[string]any `json:"attributes,omitempty" doc:"Structured log attributes"`
}

// Type returns the event type identifier for LogEntryEvent.
func (e LogEntryEvent) Type() uint32 { return TypeLogEntry }
