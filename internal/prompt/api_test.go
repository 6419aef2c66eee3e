package prompt

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/smazurov/appshell/internal/events"
	"github.com/smazurov/appshell/internal/lifecycle"
	"github.com/smazurov/appshell/internal/updater"
)

type recordingBus struct {
	mu     sync.Mutex
	events []events.UpdatePromptEvent
}

func (b *recordingBus) Publish(ev events.Event) {
	if e, ok := ev.(events.UpdatePromptEvent); ok {
		b.mu.Lock()
		b.events = append(b.events, e)
		b.mu.Unlock()
	}
}

func TestAPIUIAnswer(t *testing.T) {
	bus := &recordingBus{}
	ui := NewAPIUI(bus)

	var answers []bool
	ui.RequestConfirmation(testPrompt, func(accepted bool) error {
		answers = append(answers, accepted)
		return nil
	})

	pending, ok := ui.Pending()
	if !ok || pending.Prompt.Version != "2.0.0" {
		t.Fatalf("expected pending prompt for 2.0.0, got %+v", pending)
	}

	if err := ui.Answer("2.0.0", true); err != nil {
		t.Fatalf("Answer failed: %v", err)
	}
	if len(answers) != 1 || !answers[0] {
		t.Errorf("expected one accept, got %v", answers)
	}
	if _, ok := ui.Pending(); ok {
		t.Error("prompt should be cleared after an answer")
	}

	if err := ui.Answer("", false); !errors.Is(err, ErrNoPrompt) {
		t.Errorf("expected ErrNoPrompt, got %v", err)
	}

	bus.mu.Lock()
	defer bus.mu.Unlock()
	if len(bus.events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(bus.events))
	}
	if bus.events[0].Action != events.PromptShown || bus.events[1].Action != events.PromptResolved {
		t.Errorf("unexpected actions %s, %s", bus.events[0].Action, bus.events[1].Action)
	}
	if !bus.events[1].Accepted {
		t.Error("resolved event should carry the answer")
	}
}

func TestAPIUIVersionMismatch(t *testing.T) {
	ui := NewAPIUI(nil)
	called := false
	ui.RequestConfirmation(testPrompt, func(bool) error {
		called = true
		return nil
	})

	if err := ui.Answer("1.9.0", true); !errors.Is(err, ErrVersionMismatch) {
		t.Errorf("expected ErrVersionMismatch, got %v", err)
	}
	if called {
		t.Error("mismatched answer must not respond")
	}
	if _, ok := ui.Pending(); !ok {
		t.Error("prompt should still be pending")
	}

	if err := ui.Answer("", false); err != nil {
		t.Errorf("empty version should match, got %v", err)
	}
}

func TestAPIUINewerPromptReplaces(t *testing.T) {
	ui := NewAPIUI(nil)

	var first, second int
	ui.RequestConfirmation(testPrompt, func(bool) error {
		first++
		return nil
	})
	newer := testPrompt
	newer.Version = "2.1.0"
	ui.RequestConfirmation(newer, func(bool) error {
		second++
		return nil
	})

	if err := ui.Answer("2.1.0", false); err != nil {
		t.Fatalf("Answer failed: %v", err)
	}
	if first != 0 || second != 1 {
		t.Errorf("expected only the newer prompt answered, got %d/%d", first, second)
	}
}

func TestAPIUIAnswerReturnsResponderError(t *testing.T) {
	ui := NewAPIUI(nil)
	installErr := errors.New("permission denied")
	ui.RequestConfirmation(testPrompt, func(bool) error { return installErr })

	if err := ui.Answer("2.0.0", true); !errors.Is(err, installErr) {
		t.Errorf("expected the responder error, got %v", err)
	}
	if _, ok := ui.Pending(); ok {
		t.Error("prompt should be cleared even when acting on it fails")
	}
}

func TestAPIUINotice(t *testing.T) {
	ui := NewAPIUI(nil)
	ui.Notice("Checking for update")
	if ui.LastNotice() != "Checking for update" {
		t.Errorf("unexpected notice %q", ui.LastNotice())
	}
}

func TestHeadlessUI(t *testing.T) {
	for _, accept := range []bool{true, false} {
		ui := NewHeadlessUI(accept)
		answer := make(chan bool, 1)

		ui.RequestConfirmation(testPrompt, func(accepted bool) error {
			answer <- accepted
			return nil
		})
		ui.Notice("Checking for update")

		select {
		case got := <-answer:
			if got != accept {
				t.Errorf("expected %v, got %v", accept, got)
			}
		case <-time.After(time.Second):
			t.Fatal("headless UI did not respond")
		}
	}
}

func TestHeadlessUIDrivesController(t *testing.T) {
	src := &stubSource{}
	ctrl, err := updater.NewController(updater.Config{
		AppName:        "AppShell",
		CurrentVersion: "1.2.3",
		Channel:        updater.ChannelStable,
		GOOS:           "linux",
	}, updater.Deps{
		Source:    src,
		UI:        NewHeadlessUI(false),
		Lifecycle: stubLifecycle{},
		Telemetry: stubTelemetry{},
	})
	if err != nil {
		t.Fatalf("NewController failed: %v", err)
	}

	src.handler(updater.SourceEvent{Kind: updater.SourceUpdateDownloaded, Info: &updater.ReleaseInfo{Version: "2.0.0"}})

	deadline := time.Now().Add(time.Second)
	for ctrl.State() != updater.StateDownloaded {
		if time.Now().After(deadline) {
			t.Fatalf("expected decline to settle in downloaded, got %s", ctrl.State())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHeadlessAcceptReleasesQuitGuard(t *testing.T) {
	// The headless answer runs on its own goroutine; repeat to catch orderings
	for range 20 {
		src := &stubSource{}
		app := lifecycle.New(lifecycle.Options{})
		ctrl, err := updater.NewController(updater.Config{
			AppName:        "AppShell",
			CurrentVersion: "1.2.3",
			Channel:        updater.ChannelStable,
			GOOS:           "linux",
		}, updater.Deps{
			Source:    src,
			UI:        NewHeadlessUI(true),
			Lifecycle: app,
			Telemetry: stubTelemetry{},
		})
		if err != nil {
			t.Fatalf("NewController failed: %v", err)
		}

		src.handler(updater.SourceEvent{Kind: updater.SourceUpdateDownloaded, Info: &updater.ReleaseInfo{Version: "2.0.0"}})

		// QuitAndInstall runs after the guard is released
		deadline := time.Now().Add(time.Second)
		for src.installs.Load() == 0 {
			if time.Now().After(deadline) {
				t.Fatalf("expected accept to install, got %s", ctrl.State())
			}
			time.Sleep(time.Millisecond)
		}
		if !app.QuitAllowed() {
			t.Fatal("quit guard still held after the update was accepted")
		}
		ctrl.Close()
	}
}

type stubSource struct {
	handler  func(updater.SourceEvent)
	installs atomic.Int32
}

func (s *stubSource) Configure(updater.SourceSettings)        {}
func (s *stubSource) CheckForUpdates(_ context.Context) error { return nil }
func (s *stubSource) QuitAndInstall() error {
	s.installs.Add(1)
	return nil
}
func (s *stubSource) Subscribe(h func(updater.SourceEvent)) func() {
	s.handler = h
	return func() {}
}

type stubLifecycle struct{}

func (stubLifecycle) PreventQuit()     {}
func (stubLifecycle) AllowQuit()       {}
func (stubLifecycle) CloseAllWindows() {}

type stubTelemetry struct{}

func (stubTelemetry) BumpStats(map[string]string) {}
