package exporters

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/smazurov/appshell/internal/metrics"
)

func scrape(t *testing.T, h http.Handler) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	return w.Body.String()
}

func TestHTTPHandler(t *testing.T) {
	metrics.RecordStat("wpcom-desktop-update-check", "linux-dev-no-update")
	defer metrics.ResetStats()

	body := scrape(t, HTTPHandler())

	if !strings.Contains(body, "appshell_telemetry_stats_bumped_total") {
		t.Error("expected the stats counter in the response")
	}
	if !strings.Contains(body, `appshell_build_info{commit="unknown",goversion=`) {
		t.Errorf("expected build info in the response")
	}
}

func TestHTTPHandlerTwice(t *testing.T) {
	// A second handler must not register the build info gauge again
	first := scrape(t, HTTPHandler())
	second := scrape(t, HTTPHandler())

	if strings.Count(second, "appshell_build_info{") != 1 || strings.Count(first, "appshell_build_info{") != 1 {
		t.Error("expected exactly one build info series")
	}
}
