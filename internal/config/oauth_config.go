package config

import "time"

// OAuthConfig exposes the fixed OAuth constants for the Claude public
// client. These are protocol-level values, not deployment settings, so
// they are a static struct rather than env-var lookups.
type OAuthConfig interface {
	GetClientID() string
	GetAuthorizeURL() string
	GetTokenURL() string
	GetRedirectURL() string
	GetCallbackAddr() string
	GetScopes() []string
	GetRefreshBuffer() time.Duration
	GetCallbackTimeout() time.Duration
}

type OAuth struct{}

var _ OAuthConfig = OAuth{}

func (OAuth) GetClientID() string {
	return "9d1c250a-e61b-44d9-88ed-5944d1962f5e"
}

func (OAuth) GetAuthorizeURL() string {
	return "https://claude.ai/oauth/authorize"
}

func (OAuth) GetTokenURL() string {
	return "https://claude.ai/oauth/token"
}

func (OAuth) GetRedirectURL() string {
	return "http://localhost:19532/callback"
}

// GetCallbackAddr is the listen address for the transient callback
// endpoint. Loopback only; the port must match GetRedirectURL.
func (OAuth) GetCallbackAddr() string {
	return "127.0.0.1:19532"
}

func (OAuth) GetScopes() []string {
	return []string{"user:inference", "user:profile"}
}

// GetRefreshBuffer is how long before expiry a refresh is attempted.
func (OAuth) GetRefreshBuffer() time.Duration {
	return 5 * time.Minute
}

func (OAuth) GetCallbackTimeout() time.Duration {
	return 120 * time.Second
}
