package statsapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"boincwatch/internal/model"
	"boincwatch/pkg/config"
	"boincwatch/pkg/logger"
	"boincwatch/pkg/metrics"
)

// Endpoint paths on the downstream stats API.
const (
	statsPath       = "/api/stats"
	appRuntimesPath = "/api/appruntimes"
	efficiencyPath  = "/api/efficiency"
)

// functionKeyHeader authenticates requests to the downstream API.
const functionKeyHeader = "x-functions-key"

// Client ships rollup rows to the downstream stats API. Rows are sent
// one PUT per row; a failed row is logged and counted but never stops
// the remaining rows.
type Client struct {
	baseURL     string
	functionKey string
	enabled     bool
	httpClient  *http.Client
}

// NewClient creates a new downstream stats API client
func NewClient(cfg config.DownstreamConfig) *Client {
	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		functionKey: cfg.FunctionKey,
		enabled:     cfg.Enabled,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
	}
}

// Enabled reports whether publishing is configured on.
func (c *Client) Enabled() bool {
	return c.enabled
}

// PublishStats sends credit rollups. Returns true when every row was
// accepted.
func (c *Client) PublishStats(ctx context.Context, rows []model.StatsRollup) bool {
	ok := true
	for _, row := range rows {
		ok = c.putRow(ctx, "stats", statsPath, row) && ok
	}
	return ok
}

// PublishAppRuntimes sends app runtime rollups. Returns true when
// every row was accepted.
func (c *Client) PublishAppRuntimes(ctx context.Context, rows []model.AppRuntimeRollup) bool {
	ok := true
	for _, row := range rows {
		ok = c.putRow(ctx, "appruntimes", appRuntimesPath, row) && ok
	}
	return ok
}

// PublishEfficiency sends efficiency rollups. Returns true when every
// row was accepted.
func (c *Client) PublishEfficiency(ctx context.Context, rows []model.EfficiencyRollup) bool {
	ok := true
	for _, row := range rows {
		ok = c.putRow(ctx, "efficiency", efficiencyPath, row) && ok
	}
	return ok
}

func (c *Client) putRow(ctx context.Context, kind, path string, row interface{}) bool {
	if err := c.doPut(ctx, path, row); err != nil {
		logger.WarnCtx(ctx, "failed to publish %s row: %v", kind, err)
		metrics.RollupPublishFailures.WithLabelValues(kind).Inc()
		return false
	}
	metrics.RollupRowsPublished.WithLabelValues(kind).Inc()
	return true
}

func (c *Client) doPut(ctx context.Context, path string, row interface{}) error {
	body, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.functionKey != "" {
		req.Header.Set(functionKeyHeader, c.functionKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("downstream returned %s for %s", resp.Status, path)
	}
	return nil
}
