package usage

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/claudepulse/pulse/internal/config"
	errs "github.com/claudepulse/pulse/internal/errors"
)

// Client calls the usage endpoint. It does no retrying or scheduling of
// its own; it classifies responses into the error taxonomy and leaves
// policy to the poller.
type Client struct {
	httpClient *http.Client
	url        string
	betaHeader string
	nowTime    func() time.Time
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the HTTP client (primarily for testing).
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithURL overrides the usage endpoint URL (primarily for testing).
func WithURL(url string) ClientOption {
	return func(c *Client) {
		c.url = url
	}
}

// WithNowTime sets the clock used to stamp snapshots.
func WithNowTime(nowFunc func() time.Time) ClientOption {
	return func(c *Client) {
		c.nowTime = nowFunc
	}
}

// NewClient creates a usage client from the fixed endpoint config.
func NewClient(cfg config.PollerConfig, options ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: cfg.GetRequestTimeout()},
		url:        cfg.GetUsageURL(),
		betaHeader: cfg.GetUsageBetaHeader(),
		nowTime:    time.Now,
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// Fetch retrieves the current utilization windows using the given access
// token. Non-200 statuses map onto the error taxonomy:
//
//	401/403 -> ErrUnauthorized
//	429     -> ErrRateLimited
//	5xx     -> ErrServerUnavailable
func (c *Client) Fetch(ctx context.Context, accessToken string) (*Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build usage request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("anthropic-beta", c.betaHeader)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("usage request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		// parsed below
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, errs.Wrapf(errs.ErrUnauthorized, "usage endpoint returned %d", resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, errs.ErrRateLimited
	case resp.StatusCode >= 500:
		return nil, errs.Wrapf(errs.ErrServerUnavailable, "usage endpoint returned %d", resp.StatusCode)
	default:
		return nil, fmt.Errorf("usage endpoint returned %d", resp.StatusCode)
	}

	var snap Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decode usage response: %w", err)
	}
	snap.FiveHour = clampWindow(snap.FiveHour)
	snap.SevenDay = clampWindow(snap.SevenDay)
	snap.SevenDayOpus = clampWindow(snap.SevenDayOpus)
	snap.FetchedAt = c.nowTime()
	return &snap, nil
}
