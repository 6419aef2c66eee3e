package telemetry

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/smazurov/appshell/internal/logging"
	"github.com/smazurov/appshell/internal/version"
)

// PixelReporter reports stats by requesting a tracking pixel, one query
// parameter per stat: ?v=wpcom-no-pv&x_<group>=<name>.
type PixelReporter struct {
	baseURL string
	client  *retryablehttp.Client
}

// NewPixelReporter creates a reporter for the pixel at baseURL.
func NewPixelReporter(baseURL string) (*PixelReporter, error) {
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid pixel url %q: %w", baseURL, err)
	}

	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.RetryWaitMin = 500 * time.Millisecond
	client.RetryWaitMax = 5 * time.Second
	client.HTTPClient.Timeout = 10 * time.Second
	client.Logger = logging.GetLogger("telemetry")

	return &PixelReporter{baseURL: baseURL, client: client}, nil
}

// PixelURL builds the pixel request URL for a batch of stats.
func (p *PixelReporter) PixelURL(stats map[string]string) (string, error) {
	u, err := url.Parse(p.baseURL)
	if err != nil {
		return "", err
	}

	q := u.Query()
	q.Set("v", "wpcom-no-pv")
	for group, name := range stats {
		q.Set("x_"+group, name)
	}
	// cache buster
	q.Set("t", strconv.FormatFloat(rand.Float64(), 'f', -1, 64))
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// Report implements Reporter.
func (p *PixelReporter) Report(ctx context.Context, stats map[string]string) error {
	target, err := p.PixelURL(stats)
	if err != nil {
		return err
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("failed to create pixel request: %w", err)
	}
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("pixel request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("pixel request returned %s", resp.Status)
	}
	return nil
}
