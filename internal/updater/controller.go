// Package updater drives the application update lifecycle: checking a
// release source, tracking the discovered update, and asking the user to
// restart once it is downloaded.
package updater

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/smazurov/appshell/internal/events"
	"github.com/smazurov/appshell/internal/logging"
	"github.com/smazurov/appshell/internal/metrics"
	"github.com/smazurov/appshell/internal/telemetry"
)

// EventPublisher publishes events to subscribers.
type EventPublisher interface {
	Publish(ev events.Event)
}

// Config configures a Controller.
type Config struct {
	AppName        string
	CurrentVersion string
	Channel        Channel
	// GOOS defaults to runtime.GOOS. It selects the stats platform and
	// button label escaping.
	GOOS string
	// DebugNotices shows a UI notice every time a check starts.
	DebugNotices bool
	Texts        PromptTexts
}

// Deps are the collaborators of a Controller. EventBus is optional.
type Deps struct {
	Source    UpdateSource
	UI        UpdateUI
	Lifecycle AppLifecycle
	Telemetry Telemetry
	EventBus  EventPublisher
}

// Controller mediates between the update source's lifecycle events and the
// application's quit-and-install sequence. Collaborators are always called
// without the controller lock held.
type Controller struct {
	UpdaterState

	source    UpdateSource
	ui        UpdateUI
	lifecycle AppLifecycle
	telemetry Telemetry
	eventBus  EventPublisher

	statsPlatform string
	debugNotices  bool
	unsubscribe   func()

	mu          sync.Mutex
	state       State
	record      *UpdateRecord
	lastChecked *time.Time
	lastError   error

	logger *slog.Logger
}

// NewController binds a controller to its source, configures the source for
// the channel and subscribes to its events.
func NewController(cfg Config, deps Deps) (*Controller, error) {
	if deps.Source == nil || deps.UI == nil || deps.Lifecycle == nil || deps.Telemetry == nil {
		return nil, newError(ErrCodeInvalidConfig, "source, ui, lifecycle and telemetry are required", nil)
	}
	if !cfg.Channel.Valid() {
		return nil, newError(ErrCodeInvalidConfig, fmt.Sprintf("unknown channel %q", cfg.Channel), nil)
	}
	if cfg.GOOS == "" {
		cfg.GOOS = runtime.GOOS
	}

	c := &Controller{
		UpdaterState:  NewUpdaterState(cfg.AppName, cfg.CurrentVersion, cfg.Channel, cfg.GOOS, cfg.Texts),
		source:        deps.Source,
		ui:            deps.UI,
		lifecycle:     deps.Lifecycle,
		telemetry:     deps.Telemetry,
		eventBus:      deps.EventBus,
		statsPlatform: telemetry.Platform(cfg.GOOS),
		debugNotices:  cfg.DebugNotices,
		state:         StateIdle,
		logger:        logging.GetLogger("updater").With("channel", string(cfg.Channel)),
	}

	c.source.Configure(SettingsForChannel(cfg.Channel))
	c.unsubscribe = c.source.Subscribe(c.HandleSourceEvent)
	metrics.SetUpdateState(string(StateIdle))

	return c, nil
}

// Close detaches the controller from its source.
func (c *Controller) Close() {
	if c.unsubscribe != nil {
		c.unsubscribe()
	}
}

// CheckForUpdates asks the source to look for an update. It is a no-op while
// a check or download is already running, and fails once the user has
// been prompted.
func (c *Controller) CheckForUpdates(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateChecking, StateAvailable:
		state := c.state
		c.mu.Unlock()
		c.logger.Debug("Update check already in progress", "state", state)
		return nil
	case StateAwaitingConfirmation, StateInstalling:
		state := c.state
		c.mu.Unlock()
		return newError(ErrCodeInvalidState, fmt.Sprintf("cannot check for updates in state %s", state), nil)
	}
	from := c.setStateLocked(StateChecking)
	now := time.Now()
	c.lastChecked = &now
	c.mu.Unlock()

	c.publishTransition(from, StateChecking, "")
	c.dialogDebug("Checking for update")

	if err := c.source.CheckForUpdates(ctx); err != nil {
		c.onError(err)
		return newError(ErrCodeCheckFailed, "failed to start update check", err)
	}
	return nil
}

// HandleSourceEvent dispatches an update source event.
func (c *Controller) HandleSourceEvent(ev SourceEvent) {
	switch ev.Kind {
	case SourceError:
		err := ev.Err
		if err == nil {
			err = errors.New("unknown update error")
		}
		c.onError(err)
	case SourceUpdateAvailable:
		c.onAvailable(ev.Info)
	case SourceUpdateNotAvailable:
		c.onNotAvailable()
	case SourceUpdateDownloaded:
		c.onDownloaded(ev.Info)
	default:
		c.logger.Warn("Ignoring unknown source event", "kind", ev.Kind)
	}
}

func (c *Controller) onError(err error) {
	c.mu.Lock()
	c.lastError = err
	from := c.state
	// Once the user has been prompted the decision stands.
	changed := !slices.Contains([]State{StateAwaitingConfirmation, StateInstalling}, from)
	if changed {
		c.setStateLocked(StateIdle)
	}
	c.mu.Unlock()

	c.logger.Error("Update error", "error", err)
	c.bump(telemetry.GroupUpdate, "update-error")

	if changed {
		c.publishTransition(from, StateIdle, "")
	}
}

func (c *Controller) onAvailable(info *ReleaseInfo) {
	if info == nil {
		info = &ReleaseInfo{}
	}

	c.mu.Lock()
	if c.state == StateAvailable && c.record != nil && c.record.Version == info.Version {
		c.mu.Unlock()
		c.logger.Debug("Ignoring repeated update-available", "version", info.Version)
		return
	}
	if c.state == StateAwaitingConfirmation || c.state == StateInstalling {
		state := c.state
		c.mu.Unlock()
		c.logger.Debug("Ignoring update-available", "version", info.Version, "state", state)
		return
	}
	c.record = &UpdateRecord{
		Version:       info.Version,
		DownloadState: DownloadDownloading,
		ReleaseNotes:  info.ReleaseNotes,
		ReleaseURL:    info.ReleaseURL,
		PublishedAt:   info.PublishedAt,
	}
	c.lastError = nil
	from := c.setStateLocked(StateAvailable)
	c.mu.Unlock()

	c.logger.Info("New update is available", "version", info.Version)
	c.bump(telemetry.GroupUpdateCheck, "needs-update")
	c.publishTransition(from, StateAvailable, info.Version)
}

func (c *Controller) onNotAvailable() {
	c.mu.Lock()
	if c.state == StateAwaitingConfirmation || c.state == StateInstalling {
		c.mu.Unlock()
		return
	}
	c.lastError = nil
	from := c.setStateLocked(StateIdle)
	c.mu.Unlock()

	c.logger.Info("No update is available")
	c.bump(telemetry.GroupUpdateCheck, "no-update")
	c.publishTransition(from, StateIdle, "")
}

func (c *Controller) onDownloaded(info *ReleaseInfo) {
	if info == nil {
		info = &ReleaseInfo{}
	}

	c.mu.Lock()
	if c.state == StateInstalling {
		c.mu.Unlock()
		return
	}

	if c.record == nil || c.record.Version != info.Version {
		c.record = &UpdateRecord{
			Version:      info.Version,
			ReleaseNotes: info.ReleaseNotes,
			ReleaseURL:   info.ReleaseURL,
			PublishedAt:  info.PublishedAt,
		}
	}
	c.record.DownloadState = DownloadDownloaded
	c.lastError = nil

	if !c.markPrompted(info.Version) {
		// Already asked about this version: settle in downloaded unless the
		// prompt is still open.
		from := c.state
		if from != StateAwaitingConfirmation {
			c.setStateLocked(StateDownloaded)
		}
		c.mu.Unlock()

		c.logger.Debug("Update already prompted, not prompting again", "version", info.Version)
		metrics.RecordPrompt("skipped")
		if from != StateAwaitingConfirmation && from != StateDownloaded {
			c.publishTransition(from, StateDownloaded, info.Version)
		}
		return
	}

	c.setVersion(info.Version)
	prompt := c.Prompt(info.ReleaseNotes)
	from := c.setStateLocked(StateAwaitingConfirmation)
	c.mu.Unlock()

	c.logger.Info("Update downloaded", "version", info.Version)
	c.telemetry.BumpStats(telemetry.DownloadStats(c.statsPlatform, c.CurrentVersion()))
	c.publishTransition(from, StateAwaitingConfirmation, info.Version)

	// Held before the prompt exists so no answer can run ahead of it
	c.lifecycle.PreventQuit()
	metrics.RecordPrompt("shown")
	c.ui.RequestConfirmation(prompt, func(accepted bool) error {
		return c.resolvePrompt(info.Version, accepted)
	})
}

// resolvePrompt applies a prompt answer if it still refers to the pending
// version.
func (c *Controller) resolvePrompt(version string, accepted bool) error {
	c.mu.Lock()
	stale := c.state != StateAwaitingConfirmation || c.NewVersion() != version
	c.mu.Unlock()
	if stale {
		c.logger.Debug("Ignoring stale prompt answer", "version", version, "accepted", accepted)
		return newError(ErrCodeInvalidState, fmt.Sprintf("prompt for %s is no longer pending", version), nil)
	}

	var err error
	if accepted {
		err = c.Confirm()
	} else {
		err = c.Cancel()
	}
	if err != nil {
		c.logger.Warn("Failed to apply prompt answer", "accepted", accepted, "error", err)
	}
	return err
}

// Confirm accepts the pending update: quit prevention is released, every
// window is closed, and the source quits and installs. If installing fails
// the controller returns to StateIdle and the version may be offered again.
func (c *Controller) Confirm() error {
	c.mu.Lock()
	if c.state != StateAwaitingConfirmation {
		state := c.state
		c.mu.Unlock()
		return newError(ErrCodeInvalidState, fmt.Sprintf("cannot confirm update in state %s", state), nil)
	}
	from := c.setStateLocked(StateInstalling)
	version := c.NewVersion()
	c.mu.Unlock()

	c.logger.Info("Update confirmed, quitting to install", "version", version)
	metrics.RecordPrompt("accepted")
	c.publishTransition(from, StateInstalling, version)

	c.lifecycle.AllowQuit()
	c.lifecycle.CloseAllWindows()
	installErr := c.source.QuitAndInstall()

	c.bump(telemetry.GroupUpdate, "confirm")

	if installErr != nil {
		c.installFailed(version, installErr)
		return newError(ErrCodeApplyFailed, "quit and install failed", installErr)
	}
	return nil
}

// installFailed leaves StateInstalling after QuitAndInstall failed. The
// prompted marker is cleared so the next download of the version asks again.
func (c *Controller) installFailed(version string, err error) {
	c.mu.Lock()
	c.lastError = err
	if c.record != nil {
		c.record.DownloadState = DownloadNotStarted
	}
	c.clearPrompted()
	from := c.setStateLocked(StateIdle)
	c.mu.Unlock()

	c.logger.Error("Update install failed", "version", version, "error", err)
	c.bump(telemetry.GroupUpdate, "update-error")
	c.publishTransition(from, StateIdle, version)
}

// Cancel declines the pending update. The downloaded update is kept and
// the user is not asked again for the same version.
func (c *Controller) Cancel() error {
	c.mu.Lock()
	if c.state != StateAwaitingConfirmation {
		state := c.state
		c.mu.Unlock()
		return newError(ErrCodeInvalidState, fmt.Sprintf("cannot cancel update in state %s", state), nil)
	}
	from := c.setStateLocked(StateDownloaded)
	version := c.NewVersion()
	c.mu.Unlock()

	c.lifecycle.AllowQuit()
	c.logger.Info("Update declined", "version", version)
	metrics.RecordPrompt("declined")
	c.bump(telemetry.GroupUpdate, "update-cancel")
	c.publishTransition(from, StateDownloaded, version)
	return nil
}

// State returns the current controller state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Status returns a snapshot of the controller.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	status := Status{
		State:           c.state,
		Channel:         c.Channel(),
		CurrentVersion:  c.CurrentVersion(),
		PromptedVersion: c.PromptedVersion(),
	}
	if c.record != nil {
		rec := *c.record
		status.Record = &rec
	}
	if c.lastChecked != nil {
		t := *c.lastChecked
		status.LastChecked = &t
	}
	if c.lastError != nil {
		status.LastError = c.lastError.Error()
	}
	return status
}

// setStateLocked changes state and returns the previous one. Callers hold mu.
func (c *Controller) setStateLocked(newState State) State {
	from := c.state
	c.state = newState
	c.logger.Debug("State transition", "from", from, "to", newState)
	return from
}

func (c *Controller) publishTransition(from, to State, version string) {
	metrics.SetUpdateState(string(to))
	if c.eventBus == nil {
		return
	}
	c.eventBus.Publish(events.UpdateStateChangedEvent{
		From:      string(from),
		To:        string(to),
		Version:   version,
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

// bump records "<platform>[-b]-<version>-<suffix>" in group.
func (c *Controller) bump(group, suffix string) {
	prefix := telemetry.Prefix(c.statsPlatform, c.Beta(), c.CurrentVersion())
	c.telemetry.BumpStats(map[string]string{group: prefix + "-" + suffix})
}

func (c *Controller) dialogDebug(message string) {
	c.logger.Info(message)
	if c.debugNotices {
		c.ui.Notice(message)
	}
}
