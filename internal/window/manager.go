// Package window opens application windows as browser processes pointing at
// the application URL and reports them to the lifecycle.
package window

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/smazurov/appshell/internal/lifecycle"
	"github.com/smazurov/appshell/internal/logging"
)

// DefaultCommand opens a chromeless browser window.
const DefaultCommand = "chromium --app={url} --new-window"

const closeTimeout = 10 * time.Second

// Registrar tracks open windows.
type Registrar interface {
	Register(w lifecycle.Window)
	Unregister(id string)
}

// Options configures a Manager.
type Options struct {
	// Command is the browser command line. {url} and {id} are expanded.
	Command   string
	URL       string
	Registrar Registrar
}

// Manager opens windows and tracks their processes.
type Manager struct {
	command   string
	url       string
	registrar Registrar

	mu      sync.Mutex
	windows map[string]*Window
	nextID  int
	wg      sync.WaitGroup

	logger *slog.Logger
}

// NewManager creates a window manager.
func NewManager(opts Options) (*Manager, error) {
	if opts.URL == "" {
		return nil, errors.New("window URL is required")
	}
	if opts.Command == "" {
		opts.Command = DefaultCommand
	}
	return &Manager{
		command:   opts.Command,
		url:       opts.URL,
		registrar: opts.Registrar,
		windows:   make(map[string]*Window),
		logger:    logging.GetLogger("window"),
	}, nil
}

// Open starts a new window and registers it.
func (m *Manager) Open() (*Window, error) {
	m.mu.Lock()
	m.nextID++
	id := fmt.Sprintf("window-%d", m.nextID)
	m.mu.Unlock()

	command := strings.NewReplacer("{url}", m.url, "{id}", id).Replace(m.command)
	if _, err := splitCommand(command); err != nil {
		return nil, fmt.Errorf("invalid window command: %w", err)
	}

	w := &Window{
		id:        id,
		url:       m.url,
		proc:      NewProcess(id, command, m.logger.With("window_id", id)),
		state:     StateStarting,
		startedAt: time.Now(),
		done:      make(chan struct{}),
	}

	m.mu.Lock()
	m.windows[id] = w
	m.mu.Unlock()

	if m.registrar != nil {
		m.registrar.Register(w)
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.run(w)
	}()

	m.logger.Info("Window opened", "window_id", id, "url", m.url)
	return w, nil
}

func (m *Manager) run(w *Window) {
	w.setState(StateRunning)
	exitCode := w.proc.Run()

	w.mu.Lock()
	w.exitCode = exitCode
	if exitCode != 0 && w.state != StateClosing {
		w.state = StateError
	} else {
		w.state = StateClosed
	}
	w.mu.Unlock()
	close(w.done)

	m.mu.Lock()
	delete(m.windows, w.id)
	m.mu.Unlock()

	// No-op when the lifecycle already dropped the window.
	if m.registrar != nil {
		m.registrar.Unregister(w.id)
	}
}

// Windows returns info about the open windows.
func (m *Manager) Windows() []Info {
	m.mu.Lock()
	windows := make([]*Window, 0, len(m.windows))
	for _, w := range m.windows {
		windows = append(windows, w)
	}
	m.mu.Unlock()

	infos := make([]Info, len(windows))
	for i, w := range windows {
		infos[i] = w.Info()
	}
	return infos
}

// CloseAll closes every window and waits for the processes to exit.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	windows := make([]*Window, 0, len(m.windows))
	for _, w := range m.windows {
		windows = append(windows, w)
	}
	m.mu.Unlock()

	for _, w := range windows {
		if err := w.Close(); err != nil {
			m.logger.Warn("Failed to close window", "window_id", w.id, "error", err)
		}
	}
	m.wg.Wait()
}

// Window is a browser process showing the application.
type Window struct {
	id        string
	url       string
	proc      *Process
	startedAt time.Time
	done      chan struct{}

	mu       sync.Mutex
	state    State
	exitCode int
}

// ID implements lifecycle.Window.
func (w *Window) ID() string {
	return w.id
}

// Close implements lifecycle.Window: it stops the browser process and waits
// for it to exit.
func (w *Window) Close() error {
	w.mu.Lock()
	if w.state == StateClosed || w.state == StateError {
		w.mu.Unlock()
		return nil
	}
	w.state = StateClosing
	w.mu.Unlock()

	w.proc.Shutdown()

	select {
	case <-w.done:
		return nil
	case <-time.After(closeTimeout):
		return fmt.Errorf("window %s did not close within %s", w.id, closeTimeout)
	}
}

// Done is closed when the window process has exited.
func (w *Window) Done() <-chan struct{} {
	return w.done
}

// Info returns a snapshot of the window.
func (w *Window) Info() Info {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Info{
		ID:        w.id,
		URL:       w.url,
		State:     w.state,
		StartedAt: w.startedAt,
		ExitCode:  w.exitCode,
	}
}

func (w *Window) setState(state State) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state == StateStarting {
		w.state = state
	}
}
