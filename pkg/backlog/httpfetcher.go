package backlog

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

// HTTPFetcher is the minimal JSON/HTTP Fetcher the spec calls for: the
// monitoring-API transport itself is out of scope, so this only commits to
// GET <base>?queue=<name> returning {"size": <float>, "oldest_age_s": <float>}.
type HTTPFetcher struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewHTTPFetcher builds an HTTPFetcher against baseURL with a bounded
// per-request timeout and TLS 1.2+ enforced, matching the teacher's
// transport hardening for outbound API calls.
func NewHTTPFetcher(baseURL string, timeout time.Duration, logger *zap.Logger) *HTTPFetcher {
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
	}
	return &HTTPFetcher{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		logger: logger.Named("backlog-fetcher"),
	}
}

type backlogResponse struct {
	Size       float64 `json:"size"`
	OldestAgeS float64 `json:"oldest_age_s"`
}

// Fetch satisfies Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, queue string) (float64, float64, error) {
	u, err := url.Parse(f.baseURL)
	if err != nil {
		return 0, 0, fmt.Errorf("backlog fetcher: invalid base URL: %w", err)
	}
	q := u.Query()
	q.Set("queue", queue)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return 0, 0, fmt.Errorf("backlog fetcher: building request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return 0, 0, fmt.Errorf("backlog fetcher: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, 0, fmt.Errorf("backlog fetcher: unexpected status %d", resp.StatusCode)
	}

	var body backlogResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, 0, fmt.Errorf("backlog fetcher: decoding response: %w", err)
	}

	return body.Size, body.OldestAgeS, nil
}
