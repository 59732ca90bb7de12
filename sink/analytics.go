package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/eddielth/machine-bridge/alert"
	"github.com/eddielth/machine-bridge/config"
	"github.com/eddielth/machine-bridge/logger"
	"github.com/eddielth/machine-bridge/telemetry"
)

// AnalyticsSink streams each reading to an external collector as a
// one-element JSON array. When disabled Deliver succeeds without any request.
type AnalyticsSink struct {
	client  *http.Client
	url     string
	enabled bool
}

func NewAnalyticsSink(cfg config.AnalyticsConfig, client *http.Client) *AnalyticsSink {
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}

	return &AnalyticsSink{
		client:  client,
		url:     cfg.URL,
		enabled: cfg.Enabled && strings.TrimSpace(cfg.URL) != "",
	}
}

func (s *AnalyticsSink) Name() string { return "analytics" }

// Enabled reports whether Deliver will issue requests.
func (s *AnalyticsSink) Enabled() bool { return s.enabled }

func (s *AnalyticsSink) Deliver(ctx context.Context, r telemetry.Reading, _ *alert.Verdict) error {
	if !s.enabled {
		return nil
	}

	body, err := json.Marshal([]telemetry.Reading{r})
	if err != nil {
		return fmt.Errorf("failed to encode reading: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build analytics request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("analytics request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		logger.Warn("analytics streaming rejected reading %s: %s", r.ID, resp.Status)
		return nil
	}

	logger.Debug("forwarded reading %s to analytics", r.ID)
	return nil
}
