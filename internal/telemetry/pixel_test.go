package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
)

func TestPixelURL(t *testing.T) {
	p, err := NewPixelReporter("https://pixel.example.com/b.gif")
	if err != nil {
		t.Fatalf("NewPixelReporter failed: %v", err)
	}

	raw, err := p.PixelURL(map[string]string{GroupUpdate: "linux-1-2-3-confirm"})
	if err != nil {
		t.Fatalf("PixelURL failed: %v", err)
	}

	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("invalid url %q: %v", raw, err)
	}
	q := u.Query()
	if q.Get("v") != "wpcom-no-pv" {
		t.Errorf("Expected v=wpcom-no-pv, got %q", q.Get("v"))
	}
	if q.Get("x_wpcom-desktop-update") != "linux-1-2-3-confirm" {
		t.Errorf("Expected stat parameter, got %q", raw)
	}
	if q.Get("t") == "" {
		t.Error("Expected cache buster parameter")
	}
	if u.Host != "pixel.example.com" || u.Path != "/b.gif" {
		t.Errorf("Unexpected base: %s", raw)
	}
}

func TestPixelReport(t *testing.T) {
	received := make(chan url.Values, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received <- r.URL.Query()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p, err := NewPixelReporter(srv.URL + "/b.gif")
	if err != nil {
		t.Fatalf("NewPixelReporter failed: %v", err)
	}

	if err := p.Report(context.Background(), DownloadStats("osx", "2.0.0")); err != nil {
		t.Fatalf("Report failed: %v", err)
	}

	q := <-received
	if q.Get("x_wpcom-desktop-download-by-ver") != "osx-app-2-0-0" {
		t.Errorf("Unexpected query: %v", q)
	}
}

func TestPixelReportClientError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	p, err := NewPixelReporter(srv.URL)
	if err != nil {
		t.Fatalf("NewPixelReporter failed: %v", err)
	}

	if err := p.Report(context.Background(), map[string]string{"g": "n"}); err == nil {
		t.Error("Expected error for 404 response")
	}
}
