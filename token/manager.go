// Package token owns the "is the access token usable" decision: it hands
// out valid access tokens, refreshing ahead of expiry, and reports when
// only a full re-authorization can recover the session.
package token

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/claudepulse/pulse/credentials"
	"github.com/claudepulse/pulse/internal/config"
	errs "github.com/claudepulse/pulse/internal/errors"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

// Manager serializes all credential reads and writes. At most one
// refresh is ever in flight: concurrent callers past the refresh
// threshold share a single attempt (refresh tokens may be single-use, so
// a duplicate concurrent refresh risks invalidating the session).
type Manager struct {
	store         *credentials.Store
	conf          *oauth2.Config
	httpClient    *http.Client
	refreshBuffer time.Duration
	nowTime       func() time.Time
	logger        zerolog.Logger

	group singleflight.Group

	mu           sync.Mutex
	current      *credentials.Record
	forceRefresh bool
}

// ManagerOption defines a function type to modify the Manager instance.
type ManagerOption func(*Manager)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowTime = nowFunc
	}
}

// WithHTTPClient sets the HTTP client used for token endpoint requests.
func WithHTTPClient(hc *http.Client) ManagerOption {
	return func(m *Manager) {
		m.httpClient = hc
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a token lifecycle manager over the given store.
func NewManager(store *credentials.Store, cfg config.OAuthConfig, options ...ManagerOption) (*Manager, error) {
	if store == nil {
		return nil, fmt.Errorf("[NewManager] credential store is required")
	}
	if cfg == nil {
		return nil, fmt.Errorf("[NewManager] oauth config is required")
	}

	m := &Manager{
		store: store,
		conf: &oauth2.Config{
			ClientID:    cfg.GetClientID(),
			RedirectURL: cfg.GetRedirectURL(),
			Scopes:      cfg.GetScopes(),
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.GetAuthorizeURL(),
				TokenURL: cfg.GetTokenURL(),
				// Public client: client_id travels in the form body.
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		refreshBuffer: cfg.GetRefreshBuffer(),
		nowTime:       time.Now,
		logger:        zerolog.Nop(),
	}

	for _, opt := range options {
		opt(m)
	}
	return m, nil
}

// OAuthConfig exposes the shared oauth2 configuration so the
// authorization orchestrator builds its URLs and exchanges against the
// same endpoints and client identity.
func (m *Manager) OAuthConfig() *oauth2.Config {
	return m.conf
}

// GetValidToken returns a usable access token, refreshing it first when
// expiry is within the refresh buffer. It fails with
// ErrNeedsReauthorization when no credential exists or the refresh token
// has been rejected; any other error is transient.
func (m *Manager) GetValidToken(ctx context.Context) (string, error) {
	rec, err := m.currentRecord()
	if err != nil {
		return "", err
	}
	if rec == nil {
		return "", errs.ErrNeedsReauthorization
	}

	m.mu.Lock()
	force := m.forceRefresh
	m.mu.Unlock()

	if !force && rec.Usable(m.nowTime(), m.refreshBuffer) {
		return rec.AccessToken, nil
	}

	v, err, _ := m.group.Do("refresh", func() (any, error) {
		return m.refresh(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(*credentials.Record).AccessToken, nil
}

// Invalidate marks the cached access token as unusable so the next
// GetValidToken call refreshes even if expiry has not been reached. Used
// when the usage endpoint rejects a token the clock still trusts.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	m.forceRefresh = true
	m.mu.Unlock()
}

// Adopt persists a freshly exchanged credential record and makes it the
// current one. Called by the authorization orchestrator after a
// successful login.
func (m *Manager) Adopt(rec *credentials.Record) error {
	if rec == nil || rec.AccessToken == "" {
		return fmt.Errorf("[Manager.Adopt] record with an access token is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.store.Save(rec); err != nil {
		return errs.Wrapf(err, "persist credentials")
	}
	m.current = rec
	m.forceRefresh = false
	m.logger.Info().Time("expires_at", rec.ExpiresAt).Msg("credentials adopted")
	return nil
}

func (m *Manager) currentRecord() (*credentials.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil {
		return m.current, nil
	}
	rec, err := m.store.Load()
	if err != nil {
		return nil, errs.Wrapf(err, "load credentials")
	}
	m.current = rec
	return rec, nil
}

// refresh runs inside the singleflight group, so at most one instance
// executes at a time; late joiners share its outcome.
func (m *Manager) refresh(ctx context.Context) (*credentials.Record, error) {
	m.mu.Lock()
	rec := m.current
	force := m.forceRefresh
	m.mu.Unlock()

	if rec == nil {
		return nil, errs.ErrNeedsReauthorization
	}
	// Another caller may have completed the refresh while we waited.
	if !force && rec.Usable(m.nowTime(), m.refreshBuffer) {
		return rec, nil
	}
	if rec.RefreshToken == "" {
		m.discard()
		return nil, errs.Wrapf(errs.ErrNeedsReauthorization, "no refresh token stored")
	}

	if m.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
	}
	src := m.conf.TokenSource(ctx, &oauth2.Token{RefreshToken: rec.RefreshToken})
	tok, err := src.Token()
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) {
			// The server rejected the refresh token: expired or revoked.
			// Only a fresh authorization can recover from here.
			m.logger.Warn().Int("status", re.Response.StatusCode).Msg("token refresh rejected")
			m.discard()
			return nil, fmt.Errorf("refresh rejected with status %d: %w",
				re.Response.StatusCode,
				errors.Join(errs.ErrRefreshInvalid, errs.ErrNeedsReauthorization))
		}
		// Transient transport failure: keep the record and let the
		// caller retry later.
		return nil, errs.Wrapf(err, "refresh request")
	}

	next := m.recordFromToken(tok, rec)

	// All store writes happen under m.mu: the store itself assumes a
	// single writer at a time.
	m.mu.Lock()
	if err := m.store.Save(next); err != nil {
		m.mu.Unlock()
		return nil, errs.Wrapf(err, "persist refreshed credentials")
	}
	m.current = next
	m.forceRefresh = false
	m.mu.Unlock()

	m.logger.Info().Time("expires_at", next.ExpiresAt).Msg("access token refreshed")
	return next, nil
}

// recordFromToken converts an oauth2 token into a credential record,
// retaining the previous refresh token when the server did not rotate it
// and the previous scope when none was reported.
func (m *Manager) recordFromToken(tok *oauth2.Token, prev *credentials.Record) *credentials.Record {
	refreshToken := tok.RefreshToken
	if refreshToken == "" && prev != nil {
		refreshToken = prev.RefreshToken
	}

	scope := ""
	if s, ok := tok.Extra("scope").(string); ok {
		scope = s
	}
	if scope == "" && prev != nil {
		scope = prev.Scope
	}

	expiry := tok.Expiry
	if expiry.IsZero() {
		// Server gave no lifetime; assume an hour rather than treating
		// the token as immortal.
		expiry = m.nowTime().Add(time.Hour)
	}

	return &credentials.Record{
		AccessToken:  tok.AccessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    expiry.UTC().Truncate(time.Second),
		TokenType:    tok.Type(),
		Scope:        scope,
	}
}

func (m *Manager) discard() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.store.Clear(); err != nil {
		m.logger.Warn().Err(err).Msg("failed to clear credentials")
	}
	m.current = nil
	m.forceRefresh = false
}
