// Package lifecycle controls application shutdown: the quit guard, the set
// of open windows, and restarting after an update is installed.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"github.com/smazurov/appshell/internal/events"
	"github.com/smazurov/appshell/internal/logging"
)

const defaultRestartDelay = 500 * time.Millisecond

// Window actions published as WindowChangedEvent.
const (
	WindowOpened = "opened"
	WindowClosed = "closed"
)

// Window is an open application window.
type Window interface {
	ID() string
	Close() error
}

// EventPublisher publishes events to subscribers.
type EventPublisher interface {
	Publish(ev events.Event)
}

// UnitRestarter restarts a systemd unit.
type UnitRestarter interface {
	RestartUnit(ctx context.Context, name string) error
}

// Options configures an App.
type Options struct {
	EventBus EventPublisher
	// Unit is the systemd unit restarted through Units. When empty, Restart
	// signals the process to exit and relies on the supervisor.
	Unit  string
	Units UnitRestarter
	// RestartDelay lets in-flight responses finish before exiting.
	RestartDelay time.Duration

	// Test hooks.
	notify func(state string) (bool, error)
	signal func() error
}

// App tracks whether the application may quit and which windows are open.
type App struct {
	preventQuit atomic.Bool

	mu        sync.Mutex
	windows   map[string]Window
	listeners map[int]func()
	nextID    int

	restartOnce    sync.Once
	restartPending atomic.Bool
	restartDone    chan struct{}

	eventBus     EventPublisher
	unit         string
	units        UnitRestarter
	restartDelay time.Duration
	notify       func(state string) (bool, error)
	signal       func() error

	logger *slog.Logger
}

// New creates an App. Quitting is allowed until PreventQuit is called.
func New(opts Options) *App {
	a := &App{
		windows:      make(map[string]Window),
		listeners:    make(map[int]func()),
		restartDone:  make(chan struct{}),
		eventBus:     opts.EventBus,
		unit:         opts.Unit,
		units:        opts.Units,
		restartDelay: opts.RestartDelay,
		notify:       opts.notify,
		signal:       opts.signal,
		logger:       logging.GetLogger("lifecycle"),
	}
	if a.restartDelay <= 0 {
		a.restartDelay = defaultRestartDelay
	}
	if a.notify == nil {
		a.notify = func(state string) (bool, error) {
			return daemon.SdNotify(false, state)
		}
	}
	if a.signal == nil {
		a.signal = signalSelf
	}
	return a
}

// PreventQuit keeps the application running when its last window closes.
func (a *App) PreventQuit() {
	a.preventQuit.Store(true)
}

// AllowQuit releases the quit guard.
func (a *App) AllowQuit() {
	if a.preventQuit.Swap(false) {
		a.logger.Debug("Quit allowed")
	}
}

// QuitAllowed reports whether the application may quit.
func (a *App) QuitAllowed() bool {
	return !a.preventQuit.Load()
}

// Quit asks the process to shut down, unless the quit guard is held. It
// reports whether the request was sent.
func (a *App) Quit() bool {
	if !a.QuitAllowed() {
		a.logger.Info("Quit prevented")
		return false
	}
	a.logger.Info("Quitting")
	if err := a.signal(); err != nil {
		a.logger.Error("Failed to send SIGTERM", "error", err)
		return false
	}
	return true
}

// Register adds an open window.
func (a *App) Register(w Window) {
	a.mu.Lock()
	a.windows[w.ID()] = w
	a.mu.Unlock()

	a.logger.Debug("Window registered", "window_id", w.ID())
	a.publish(w.ID(), WindowOpened)
}

// Unregister removes a window that closed on its own. When it was the last
// one, the all-windows-closed listeners run.
func (a *App) Unregister(id string) {
	a.mu.Lock()
	if _, ok := a.windows[id]; !ok {
		a.mu.Unlock()
		return
	}
	delete(a.windows, id)
	var listeners []func()
	if len(a.windows) == 0 {
		listeners = a.listenersLocked()
	}
	a.mu.Unlock()

	a.logger.Debug("Window closed", "window_id", id)
	a.publish(id, WindowClosed)

	for _, fn := range listeners {
		fn()
	}
}

// Windows returns the open windows ordered by ID.
func (a *App) Windows() []Window {
	a.mu.Lock()
	defer a.mu.Unlock()

	windows := make([]Window, 0, len(a.windows))
	for _, w := range a.windows {
		windows = append(windows, w)
	}
	slices.SortFunc(windows, func(x, y Window) int {
		return strings.Compare(x.ID(), y.ID())
	})
	return windows
}

// OnAllWindowsClosed registers fn to run when the last window closes. The
// returned function removes it.
func (a *App) OnAllWindowsClosed(fn func()) func() {
	a.mu.Lock()
	id := a.nextID
	a.nextID++
	a.listeners[id] = fn
	a.mu.Unlock()

	return func() {
		a.mu.Lock()
		delete(a.listeners, id)
		a.mu.Unlock()
	}
}

func (a *App) listenersLocked() []func() {
	ids := make([]int, 0, len(a.listeners))
	for id := range a.listeners {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	fns := make([]func(), len(ids))
	for i, id := range ids {
		fns[i] = a.listeners[id]
	}
	return fns
}

// CloseAllWindows closes every window. All-windows-closed listeners are
// removed first so the default quit path does not run.
func (a *App) CloseAllWindows() {
	a.mu.Lock()
	clear(a.listeners)
	windows := make([]Window, 0, len(a.windows))
	for _, w := range a.windows {
		windows = append(windows, w)
	}
	clear(a.windows)
	a.mu.Unlock()

	for _, w := range windows {
		if err := w.Close(); err != nil {
			a.logger.Warn("Failed to close window", "window_id", w.ID(), "error", err)
		}
		a.publish(w.ID(), WindowClosed)
	}
	a.logger.Info("All windows closed", "count", len(windows))
}

// Ready tells systemd that startup finished.
func (a *App) Ready() {
	if sent, err := a.notify(daemon.SdNotifyReady); err != nil {
		a.logger.Warn("Failed to notify systemd", "error", err)
	} else if sent {
		a.logger.Debug("Notified systemd", "state", "READY=1")
	}
}

// Restart asks the supervisor to start a fresh process, after a short
// delay. Only the first call has an effect.
func (a *App) Restart() {
	a.restartOnce.Do(func() {
		a.restartPending.Store(true)
		a.logger.Info("Restart requested", "delay", a.restartDelay)

		go func() {
			defer close(a.restartDone)
			time.Sleep(a.restartDelay)
			a.triggerRestart()
		}()
	})
}

// RestartPending reports whether Restart was called.
func (a *App) RestartPending() bool {
	return a.restartPending.Load()
}

func (a *App) triggerRestart() {
	if a.unit != "" && a.units != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := a.units.RestartUnit(ctx, a.unit)
		if err == nil {
			a.logger.Info("Restarting systemd unit", "unit", a.unit)
			return
		}
		a.logger.Warn("Failed to restart unit, exiting instead", "unit", a.unit, "error", err)
	}

	if _, err := a.notify(daemon.SdNotifyStopping); err != nil {
		a.logger.Warn("Failed to notify systemd", "error", err)
	}

	a.logger.Info("Sending SIGTERM to trigger restart")
	if err := a.signal(); err != nil {
		a.logger.Error("Failed to send SIGTERM", "error", err)
	}
}

func (a *App) publish(id, action string) {
	if a.eventBus == nil {
		return
	}
	a.eventBus.Publish(events.WindowChangedEvent{
		WindowID:  id,
		Action:    action,
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

func signalSelf() error {
	proc, err := os.FindProcess(os.Getpid())
	if err != nil {
		return fmt.Errorf("failed to find own process: %w", err)
	}
	return proc.Signal(syscall.SIGTERM)
}
