package credentials

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

// claudeCodeFile mirrors the on-disk shape of Claude Code's
// ~/.claude/.credentials.json: camelCase fields, expiry in Unix
// milliseconds, scopes as an array.
type claudeCodeFile struct {
	ClaudeAiOauth claudeCodeOauth `json:"claudeAiOauth"`
}

type claudeCodeOauth struct {
	AccessToken      string   `json:"accessToken"`
	RefreshToken     string   `json:"refreshToken"`
	ExpiresAt        int64    `json:"expiresAt"`
	Scopes           []string `json:"scopes"`
	SubscriptionType string   `json:"subscriptionType,omitempty"`
	RateLimitTier    string   `json:"rateLimitTier,omitempty"`
}

// loadClaudeCode reads an existing Claude Code login, if any, and maps
// it to a Record. Missing or malformed files are treated as absent.
func (s *Store) loadClaudeCode() (*Record, error) {
	if s.claudeCodePath == "" {
		return nil, nil
	}

	data, err := os.ReadFile(s.claudeCodePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read claude code credentials: %w", err)
	}

	var file claudeCodeFile
	if err := json.Unmarshal(data, &file); err != nil {
		// Someone else's file in an unexpected shape; treat as absent.
		return nil, nil
	}
	oauth := file.ClaudeAiOauth
	if oauth.AccessToken == "" {
		return nil, nil
	}

	return &Record{
		AccessToken:  oauth.AccessToken,
		RefreshToken: oauth.RefreshToken,
		ExpiresAt:    time.UnixMilli(oauth.ExpiresAt).UTC(),
		TokenType:    "Bearer",
		Scope:        strings.Join(oauth.Scopes, " "),
	}, nil
}

// updateClaudeCode writes refreshed tokens back into the Claude Code
// file, preserving its shape and any fields we do not manage. Failures
// are swallowed: the store's own file is the source of truth.
func (s *Store) updateClaudeCode(rec *Record) {
	if s.claudeCodePath == "" {
		return
	}

	data, err := os.ReadFile(s.claudeCodePath)
	if err != nil {
		return
	}
	var file claudeCodeFile
	if err := json.Unmarshal(data, &file); err != nil {
		return
	}

	file.ClaudeAiOauth.AccessToken = rec.AccessToken
	if rec.RefreshToken != "" {
		file.ClaudeAiOauth.RefreshToken = rec.RefreshToken
	}
	file.ClaudeAiOauth.ExpiresAt = rec.ExpiresAt.UnixMilli()
	if scopes := rec.Scopes(); len(scopes) > 0 {
		file.ClaudeAiOauth.Scopes = scopes
	}

	out, err := json.Marshal(file)
	if err != nil {
		return
	}
	_ = os.WriteFile(s.claudeCodePath, out, 0o600)
}
