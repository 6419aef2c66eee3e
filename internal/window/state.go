package window

import "time"

// State represents the state of a window process.
type State string

// Window states.
const (
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateClosing  State = "closing"
	StateClosed   State = "closed"
	StateError    State = "error" // exited with a non-zero code
)

// Info describes an open or recently closed window.
type Info struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	State     State     `json:"state"`
	StartedAt time.Time `json:"started_at"`
	ExitCode  int       `json:"exit_code,omitempty"`
}
