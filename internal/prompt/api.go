package prompt

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/smazurov/appshell/internal/events"
	"github.com/smazurov/appshell/internal/logging"
	"github.com/smazurov/appshell/internal/updater"
)

// Errors returned when answering a prompt.
var (
	ErrNoPrompt        = errors.New("no update prompt is pending")
	ErrVersionMismatch = errors.New("prompt is for a different version")
)

// EventPublisher publishes events to subscribers.
type EventPublisher interface {
	Publish(ev events.Event)
}

// Pending is a prompt waiting for an answer.
type Pending struct {
	Prompt  updater.Prompt `json:"prompt"`
	ShownAt time.Time      `json:"shown_at"`
}

// APIUI keeps the latest prompt until a client answers it.
type APIUI struct {
	bus EventPublisher

	mu      sync.Mutex
	pending *Pending
	respond func(bool) error
	notice  string

	logger *slog.Logger
}

// NewAPIUI creates an API-driven UI. bus may be nil.
func NewAPIUI(bus EventPublisher) *APIUI {
	return &APIUI{
		bus:    bus,
		logger: logging.GetLogger("prompt"),
	}
}

// RequestConfirmation implements updater.UpdateUI. A newer prompt replaces
// an unanswered one.
func (a *APIUI) RequestConfirmation(p updater.Prompt, respond func(accepted bool) error) {
	a.mu.Lock()
	a.pending = &Pending{Prompt: p, ShownAt: time.Now()}
	a.respond = respond
	a.mu.Unlock()

	a.logger.Info("Update prompt pending", "version", p.Version)
	a.publish(events.PromptShown, p, false)
}

// Pending returns the unanswered prompt.
func (a *APIUI) Pending() (Pending, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.pending == nil {
		return Pending{}, false
	}
	return *a.pending, true
}

// Answer resolves the pending prompt. An empty version matches any prompt.
// The error of acting on the answer, such as a failed install, is returned.
func (a *APIUI) Answer(version string, accepted bool) error {
	a.mu.Lock()
	if a.pending == nil {
		a.mu.Unlock()
		return ErrNoPrompt
	}
	p := a.pending.Prompt
	if version != "" && version != p.Version {
		a.mu.Unlock()
		return ErrVersionMismatch
	}
	respond := a.respond
	a.pending = nil
	a.respond = nil
	a.mu.Unlock()

	a.logger.Info("Update prompt answered", "version", p.Version, "accepted", accepted)
	a.publish(events.PromptResolved, p, accepted)
	return respond(accepted)
}

// Notice implements updater.UpdateUI.
func (a *APIUI) Notice(message string) {
	a.mu.Lock()
	a.notice = message
	a.mu.Unlock()
	a.logger.Info(message)
}

// LastNotice returns the most recent notice.
func (a *APIUI) LastNotice() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.notice
}

func (a *APIUI) publish(action string, p updater.Prompt, accepted bool) {
	if a.bus == nil {
		return
	}
	a.bus.Publish(events.UpdatePromptEvent{
		Action:       action,
		Version:      p.Version,
		Title:        p.Title,
		Message:      p.Message,
		Detail:       p.Detail,
		ConfirmLabel: p.ConfirmLabel,
		CancelLabel:  p.CancelLabel,
		Accepted:     accepted,
		Timestamp:    time.Now().Format(time.RFC3339),
	})
}
