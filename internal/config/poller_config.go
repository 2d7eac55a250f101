package config

import "time"

// PollerConfig exposes the usage endpoint and polling schedule.
type PollerConfig interface {
	GetUsageURL() string
	GetUsageBetaHeader() string
	GetRequestTimeout() time.Duration
	GetPollInterval() time.Duration
	GetRateLimitedInterval() time.Duration
	GetMaxBackoff() time.Duration
}

type Poller struct{}

var _ PollerConfig = Poller{}

func (Poller) GetUsageURL() string {
	return "https://api.anthropic.com/api/oauth/usage"
}

func (Poller) GetUsageBetaHeader() string {
	return "oauth-2025-04-20"
}

func (Poller) GetRequestTimeout() time.Duration {
	return 30 * time.Second
}

func (Poller) GetPollInterval() time.Duration {
	return 60 * time.Second
}

// GetRateLimitedInterval is the slow poll rate used after a 429 until the
// next successful fetch.
func (Poller) GetRateLimitedInterval() time.Duration {
	return 5 * time.Minute
}

// GetMaxBackoff caps the exponential backoff applied on server errors.
func (Poller) GetMaxBackoff() time.Duration {
	return 5 * time.Minute
}
