// Package credentials persists the OAuth token record on disk.
package credentials

import (
	"strings"
	"time"
)

// Record is the persisted credential set. ExpiresAt is an absolute
// instant (not a lifetime) so the record survives process restarts.
type Record struct {
	// AccessToken is the bearer token presented to the usage API.
	// Security: never log or expose this value.
	AccessToken string `json:"access_token"`

	// RefreshToken obtains new access tokens without user interaction.
	// Security: never log or expose this value.
	RefreshToken string `json:"refresh_token"`

	// ExpiresAt is when the access token stops being usable.
	ExpiresAt time.Time `json:"expires_at"`

	// TokenType is how the token is presented (always "Bearer" here).
	TokenType string `json:"token_type"`

	// Scope is the space-separated granted scope set.
	Scope string `json:"scope"`
}

// NewRecord builds a record from a token response, converting the
// server-reported lifetime into an absolute expiry. Expiry is truncated
// to second precision so a save/load round trip is exact.
func NewRecord(accessToken, refreshToken, tokenType, scope string, expiresIn time.Duration, now time.Time) *Record {
	if tokenType == "" {
		tokenType = "Bearer"
	}
	return &Record{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    now.Add(expiresIn).UTC().Truncate(time.Second),
		TokenType:    tokenType,
		Scope:        scope,
	}
}

// Usable reports whether the access token is still valid at the given
// instant, with buffer subtracted from expiry to leave refresh headroom.
func (r *Record) Usable(now time.Time, buffer time.Duration) bool {
	if r == nil || r.AccessToken == "" {
		return false
	}
	return now.Before(r.ExpiresAt.Add(-buffer))
}

// Scopes splits the granted scope set.
func (r *Record) Scopes() []string {
	if r == nil || r.Scope == "" {
		return nil
	}
	return strings.Fields(r.Scope)
}
