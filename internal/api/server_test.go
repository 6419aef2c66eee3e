package api

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/appshell/internal/api/models"
	"github.com/smazurov/appshell/internal/events"
	"github.com/smazurov/appshell/internal/logging"
	"github.com/smazurov/appshell/internal/prompt"
	"github.com/smazurov/appshell/internal/updater"
	"github.com/smazurov/appshell/internal/window"
)

type fakeController struct {
	mu       sync.Mutex
	status   updater.Status
	checkErr error
	checks   int
	confirms int
	cancels  int
}

func newFakeController() *fakeController {
	return &fakeController{status: updater.Status{
		State:          updater.StateIdle,
		Channel:        updater.ChannelStable,
		CurrentVersion: "1.2.3",
	}}
}

func (f *fakeController) CheckForUpdates(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checks++
	if f.checkErr != nil {
		return f.checkErr
	}
	f.status.State = updater.StateChecking
	return nil
}

func (f *fakeController) Confirm() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.status.State != updater.StateAwaitingConfirmation {
		return &updater.Error{Code: updater.ErrCodeInvalidState, Message: "no update awaiting confirmation"}
	}
	f.confirms++
	f.status.State = updater.StateInstalling
	return nil
}

func (f *fakeController) Cancel() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.status.State != updater.StateAwaitingConfirmation {
		return &updater.Error{Code: updater.ErrCodeInvalidState, Message: "no update awaiting confirmation"}
	}
	f.cancels++
	f.status.State = updater.StateDownloaded
	return nil
}

func (f *fakeController) Status() updater.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeController) await(version string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status.State = updater.StateAwaitingConfirmation
	f.status.Record = &updater.UpdateRecord{
		Version:       version,
		DownloadState: updater.DownloadDownloaded,
		ReleaseNotes:  "fixes",
		PublishedAt:   time.Date(2025, 1, 27, 10, 30, 0, 0, time.UTC),
	}
	f.status.PromptedVersion = version
}

type fakeWindows []window.Info

func (f fakeWindows) Windows() []window.Info { return f }

func basicAuth(user, pass string) string {
	return base64.StdEncoding.EncodeToString([]byte(user + ":" + pass))
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("Failed to decode %q: %v", w.Body.String(), err)
	}
	return v
}

func TestHealthAndVersion(t *testing.T) {
	server := NewServer(&Options{})
	h := server.Handler()

	w := do(t, h, http.MethodGet, "/api/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if health := decode[models.HealthData](t, w); health.Status != "ok" {
		t.Errorf("Unexpected health %+v", health)
	}

	w = do(t, h, http.MethodGet, "/api/version", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if v := decode[models.VersionData](t, w); v.Version == "" || v.GoVersion == "" {
		t.Errorf("Unexpected version %+v", v)
	}
}

func TestUpdateStatus(t *testing.T) {
	ctrl := newFakeController()
	ctrl.await("2.0.0")
	h := NewServer(&Options{Updater: ctrl}).Handler()

	w := do(t, h, http.MethodGet, "/api/update/status", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	status := decode[models.UpdateStatusData](t, w)
	if !status.Enabled || status.State != "awaiting-confirmation" || status.Channel != "stable" {
		t.Errorf("Unexpected status %+v", status)
	}
	if status.Update == nil || status.Update.Version != "2.0.0" || status.Update.DownloadState != "downloaded" {
		t.Fatalf("Unexpected update record %+v", status.Update)
	}
	if status.Update.PublishedAt != "2025-01-27T10:30:00Z" {
		t.Errorf("Unexpected published_at %q", status.Update.PublishedAt)
	}
}

func TestUpdateCheck(t *testing.T) {
	ctrl := newFakeController()
	h := NewServer(&Options{Updater: ctrl}).Handler()

	w := do(t, h, http.MethodPost, "/api/update/check", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if ctrl.checks != 1 {
		t.Errorf("Expected 1 check, got %d", ctrl.checks)
	}

	resp := decode[struct {
		State string `json:"state"`
	}](t, w)
	if resp.State != "checking" {
		t.Errorf("Expected checking, got %q", resp.State)
	}
}

func TestUpdateCheckErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid state", &updater.Error{Code: updater.ErrCodeInvalidState, Message: "busy"}, http.StatusConflict},
		{"disabled", &updater.Error{Code: updater.ErrCodeDisabled, Message: "closed"}, http.StatusServiceUnavailable},
		{"check failed", &updater.Error{Code: updater.ErrCodeCheckFailed, Message: "boom"}, http.StatusInternalServerError},
		{"plain error", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := newFakeController()
			ctrl.checkErr = tt.err
			h := NewServer(&Options{Updater: ctrl}).Handler()

			w := do(t, h, http.MethodPost, "/api/update/check", "")
			if w.Code != tt.want {
				t.Errorf("Expected %d, got %d", tt.want, w.Code)
			}
		})
	}
}

func TestMapUpdateError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{prompt.ErrNoPrompt, http.StatusNotFound},
		{fmt.Errorf("answer: %w", prompt.ErrVersionMismatch), http.StatusConflict},
		{&updater.Error{Code: updater.ErrCodeNoBackup}, http.StatusNotFound},
		{&updater.Error{Code: updater.ErrCodeNoStagedUpdate}, http.StatusNotFound},
		{&updater.Error{Code: updater.ErrCodeApplyFailed}, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		var se huma.StatusError
		if !errors.As(mapUpdateError(tt.err), &se) {
			t.Fatalf("%v: expected a status error", tt.err)
		}
		if se.GetStatus() != tt.want {
			t.Errorf("%v: expected %d, got %d", tt.err, tt.want, se.GetStatus())
		}
	}
}

func TestPromptAnsweredThroughAPIUI(t *testing.T) {
	ctrl := newFakeController()
	ui := prompt.NewAPIUI(nil)
	h := NewServer(&Options{Updater: ctrl, Prompts: ui}).Handler()

	w := do(t, h, http.MethodGet, "/api/update/prompt", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("Expected 404 without a prompt, got %d", w.Code)
	}

	ctrl.await("2.0.0")
	answered := make(chan bool, 1)
	ui.RequestConfirmation(updater.Prompt{
		Version:      "2.0.0",
		Title:        "A new version of AppShell is available!",
		ConfirmLabel: "Update && Restart",
		CancelLabel:  "Cancel",
	}, func(accepted bool) error {
		answered <- accepted
		if accepted {
			return ctrl.Confirm()
		}
		return nil
	})

	w = do(t, h, http.MethodGet, "/api/update/prompt", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if p := decode[models.UpdatePromptData](t, w); p.Version != "2.0.0" || p.ConfirmLabel != "Update && Restart" {
		t.Errorf("Unexpected prompt %+v", p)
	}

	w = do(t, h, http.MethodPost, "/api/update/confirm", `{"version":"1.9.0"}`)
	if w.Code != http.StatusConflict {
		t.Fatalf("Expected 409 for a stale version, got %d", w.Code)
	}

	w = do(t, h, http.MethodPost, "/api/update/confirm", `{"version":"2.0.0"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if accepted := <-answered; !accepted {
		t.Error("Expected the prompt to be accepted")
	}
	if ctrl.confirms != 1 {
		t.Errorf("Expected 1 confirm, got %d", ctrl.confirms)
	}

	w = do(t, h, http.MethodPost, "/api/update/cancel", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 once answered, got %d", w.Code)
	}
}

func TestPromptConfirmReportsInstallFailure(t *testing.T) {
	ui := prompt.NewAPIUI(nil)
	h := NewServer(&Options{Updater: newFakeController(), Prompts: ui}).Handler()

	ui.RequestConfirmation(updater.Prompt{Version: "2.0.0"}, func(bool) error {
		return &updater.Error{Code: updater.ErrCodeApplyFailed, Message: "quit and install failed"}
	})

	w := do(t, h, http.MethodPost, "/api/update/confirm", `{"version":"2.0.0"}`)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("Expected 500 for a failed install, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "quit and install failed") {
		t.Errorf("Expected the failure in the body, got %s", w.Body.String())
	}
}

func TestCancelWithoutPromptUI(t *testing.T) {
	ctrl := newFakeController()
	h := NewServer(&Options{Updater: ctrl}).Handler()

	w := do(t, h, http.MethodPost, "/api/update/cancel", "")
	if w.Code != http.StatusConflict {
		t.Fatalf("Expected 409 while idle, got %d", w.Code)
	}

	ctrl.await("2.0.0")

	w = do(t, h, http.MethodGet, "/api/update/prompt", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if p := decode[models.UpdatePromptData](t, w); p.Version != "2.0.0" || p.Detail != "fixes" {
		t.Errorf("Unexpected prompt %+v", p)
	}

	w = do(t, h, http.MethodPost, "/api/update/cancel", `{"version":"3.0.0"}`)
	if w.Code != http.StatusConflict {
		t.Fatalf("Expected 409 for another version, got %d", w.Code)
	}

	w = do(t, h, http.MethodPost, "/api/update/cancel", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if ctrl.cancels != 1 || ctrl.Status().State != updater.StateDownloaded {
		t.Errorf("Expected one cancel into downloaded, got %d/%s", ctrl.cancels, ctrl.Status().State)
	}
}

func TestDisabledUpdateRoutes(t *testing.T) {
	h := NewServer(&Options{UpdateDisabledReason: "APPSHELL_AUTO_UPDATE_DISABLE is set"}).Handler()

	for _, route := range []struct{ method, path string }{
		{http.MethodGet, "/api/update/status"},
		{http.MethodPost, "/api/update/check"},
		{http.MethodGet, "/api/update/prompt"},
		{http.MethodPost, "/api/update/confirm"},
		{http.MethodPost, "/api/update/cancel"},
	} {
		w := do(t, h, route.method, route.path, "")
		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("%s %s: expected 503, got %d", route.method, route.path, w.Code)
		}
		if !strings.Contains(w.Body.String(), "APPSHELL_AUTO_UPDATE_DISABLE") {
			t.Errorf("%s %s: reason missing from %s", route.method, route.path, w.Body.String())
		}
	}
}

func TestBasicAuth(t *testing.T) {
	h := NewServer(&Options{
		AuthUsername: "admin",
		AuthPassword: "secret",
		Updater:      newFakeController(),
	}).Handler()

	tests := []struct {
		name   string
		header string
		query  string
		want   int
	}{
		{"missing", "", "", http.StatusUnauthorized},
		{"wrong type", "Bearer token", "", http.StatusUnauthorized},
		{"bad encoding", "Basic !!!", "", http.StatusUnauthorized},
		{"wrong password", "Basic " + basicAuth("admin", "nope"), "", http.StatusUnauthorized},
		{"valid header", "Basic " + basicAuth("admin", "secret"), "", http.StatusOK},
		{"valid query", "", basicAuth("admin", "secret"), http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := "/api/update/status"
			if tt.query != "" {
				path += "?auth=" + tt.query
			}
			req := httptest.NewRequest(http.MethodGet, path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			if w.Code != tt.want {
				t.Errorf("Expected %d, got %d", tt.want, w.Code)
			}
			if tt.want == http.StatusUnauthorized && w.Header().Get("WWW-Authenticate") != authRealm {
				t.Errorf("Missing WWW-Authenticate header")
			}
		})
	}

	// Health stays public
	if w := do(t, h, http.MethodGet, "/api/health", ""); w.Code != http.StatusOK {
		t.Errorf("Expected public health check, got %d", w.Code)
	}
}

func TestWindowsAndStats(t *testing.T) {
	started := time.Date(2025, 1, 27, 10, 30, 0, 0, time.UTC)
	h := NewServer(&Options{
		Windows: fakeWindows{{ID: "window-1", URL: "http://localhost:3000", State: window.StateRunning, StartedAt: started}},
	}).Handler()

	w := do(t, h, http.MethodGet, "/api/windows", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	list := decode[models.WindowListData](t, w)
	if list.Count != 1 || list.Windows[0].ID != "window-1" || list.Windows[0].State != "running" {
		t.Errorf("Unexpected windows %+v", list)
	}

	w = do(t, h, http.MethodGet, "/api/stats", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	h := NewServer(&Options{CORSOrigin: "http://localhost:3000"}).Handler()

	w := do(t, h, http.MethodOptions, "/api/update/status", "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("Expected 204, got %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("Unexpected allow origin %q", got)
	}
}

func TestPrometheusHandler(t *testing.T) {
	h := NewServer(&Options{
		AuthUsername: "admin",
		AuthPassword: "secret",
		PrometheusHandler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, "appshell_up 1\n")
		}),
	}).Handler()

	w := do(t, h, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "appshell_up") {
		t.Errorf("Unexpected metrics response %d %q", w.Code, w.Body.String())
	}
}

func readEvent(t *testing.T, scanner *bufio.Scanner) (name, data string) {
	t.Helper()
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == "" && data != "":
			return name, data
		}
	}
	t.Fatalf("Stream ended: %v", scanner.Err())
	return "", ""
}

func TestEventStream(t *testing.T) {
	bus := events.New()
	ctrl := newFakeController()
	server := NewServer(&Options{
		AuthUsername: "admin",
		AuthPassword: "secret",
		EventBus:     bus,
		Updater:      ctrl,
	})

	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/events?auth="+basicAuth("admin", "secret"), nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("Expected event stream, got %q", ct)
	}

	scanner := bufio.NewScanner(resp.Body)

	name, data := readEvent(t, scanner)
	if name != "update-status" || !strings.Contains(data, `"state":"idle"`) {
		t.Fatalf("Unexpected initial event %s %s", name, data)
	}

	bus.Publish(events.UpdateStateChangedEvent{From: "idle", To: "checking", Timestamp: time.Now().Format(time.RFC3339)})

	name, data = readEvent(t, scanner)
	if name != "update-state" || !strings.Contains(data, `"to":"checking"`) {
		t.Errorf("Unexpected event %s %s", name, data)
	}
}

func TestLogStreamResumesAndFilters(t *testing.T) {
	logging.Initialize(logging.Config{Level: "info", Format: "text"})
	logger := logging.GetLogger("updater")
	logger.Info("first")
	logging.GetLogger("window").Info("other module")
	logger.Info("second")

	var since uint64
	for _, entry := range logging.GetBuffer().ReadAll() {
		if entry.Message == "first" {
			since = entry.Seq
		}
	}
	if since == 0 {
		t.Fatal("first entry not buffered")
	}

	bus := events.New()
	server := NewServer(&Options{AuthUsername: "admin", AuthPassword: "secret", EventBus: bus})
	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := fmt.Sprintf("%s/api/logs/stream?module=updater&since=%d&auth=%s", ts.URL, since, basicAuth("admin", "secret"))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)

	_, data := readEvent(t, scanner)
	var entry events.LogEntryEvent
	if err := json.Unmarshal([]byte(data), &entry); err != nil {
		t.Fatal(err)
	}
	if entry.Message != "second" || entry.Seq <= since {
		t.Fatalf("Expected the entry after %d, got %+v", since, entry)
	}

	bus.Publish(events.LogEntryEvent{Seq: entry.Seq + 100, Module: "api", Message: "filtered"})
	bus.Publish(events.LogEntryEvent{Seq: entry.Seq + 101, Module: "updater", Message: "live"})

	_, data = readEvent(t, scanner)
	if !strings.Contains(data, `"message":"live"`) {
		t.Errorf("Expected the live updater entry, got %s", data)
	}
}
