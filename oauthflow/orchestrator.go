// Package oauthflow drives the browser-redirect authorization flow end
// to end: PKCE session, transient callback listener, code exchange, and
// credential persistence.
package oauthflow

import (
	"context"
	"fmt"
	"time"

	"github.com/claudepulse/pulse/credentials"
	"github.com/claudepulse/pulse/internal/config"
	errs "github.com/claudepulse/pulse/internal/errors"
	"github.com/claudepulse/pulse/oauth"
	"github.com/claudepulse/pulse/pkce"
	"github.com/claudepulse/pulse/status"
	"github.com/google/uuid"
	"github.com/pkg/browser"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

// CredentialSink adopts the record produced by a successful exchange.
// Implemented by the token lifecycle manager, which persists it through
// the credential store under its own serialization guard.
type CredentialSink interface {
	Adopt(rec *credentials.Record) error
}

// Orchestrator produces a usable credential record from scratch by
// walking the user through a redirect-based login. It never retries on
// its own: every attempt is explicitly initiated.
type Orchestrator struct {
	conf        *oauth2.Config
	sink        CredentialSink
	events      status.Sink
	listenAddr  string
	timeout     time.Duration
	openBrowser func(url string) error
	nowTime     func() time.Time
	logger      zerolog.Logger
}

// OrchestratorOption defines a function type to modify the Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithListenAddr overrides the callback bind address (primarily for
// testing; production uses the fixed redirect port).
func WithListenAddr(addr string) OrchestratorOption {
	return func(o *Orchestrator) {
		o.listenAddr = addr
	}
}

// WithBrowserOpener overrides how the authorization URL is opened.
func WithBrowserOpener(open func(url string) error) OrchestratorOption {
	return func(o *Orchestrator) {
		o.openBrowser = open
	}
}

// WithTimeout overrides how long one attempt waits for the callback.
func WithTimeout(timeout time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		o.timeout = timeout
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) {
		o.nowTime = nowFunc
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithEvents sets the status event sink.
func WithEvents(events status.Sink) OrchestratorOption {
	return func(o *Orchestrator) {
		o.events = events
	}
}

// NewOrchestrator creates an authorization orchestrator. conf carries
// the client identity and endpoints (shared with the token manager);
// sink receives the exchanged credentials.
func NewOrchestrator(conf *oauth2.Config, cfg config.OAuthConfig, sink CredentialSink, options ...OrchestratorOption) (*Orchestrator, error) {
	if conf == nil {
		return nil, fmt.Errorf("[NewOrchestrator] oauth2 config is required")
	}
	if cfg == nil {
		return nil, fmt.Errorf("[NewOrchestrator] oauth config is required")
	}
	if sink == nil {
		return nil, fmt.Errorf("[NewOrchestrator] credential sink is required")
	}

	o := &Orchestrator{
		conf:        conf,
		sink:        sink,
		listenAddr:  cfg.GetCallbackAddr(),
		timeout:     cfg.GetCallbackTimeout(),
		openBrowser: browser.OpenURL,
		nowTime:     time.Now,
		logger:      zerolog.Nop(),
	}

	for _, opt := range options {
		opt(o)
	}
	return o, nil
}

// Authorize runs one full authorization attempt: generate a PKCE
// session and anti-CSRF state, bind the callback listener, send the user
// to the browser, wait for the redirect, exchange the code, and persist
// the result. On success the returned record has already been adopted by
// the sink.
func (o *Orchestrator) Authorize(ctx context.Context) (*credentials.Record, error) {
	session, err := pkce.Generate()
	if err != nil {
		return nil, err
	}
	state := uuid.NewString()

	authURL := o.conf.AuthCodeURL(state,
		oauth2.SetAuthURLParam("code_challenge", session.Challenge),
		oauth2.SetAuthURLParam("code_challenge_method", string(oauth.CodeMethodTypeS256)),
	)

	// Bind before opening the browser so the redirect cannot race the
	// listener.
	pending, err := NewListener(o.listenAddr, o.logger).Listen(state)
	if err != nil {
		return nil, err
	}
	defer pending.Close()

	if err := o.openBrowser(authURL); err != nil {
		// Not fatal: the user can paste the URL themselves.
		o.logger.Warn().Err(err).Msg("could not open browser, visit the authorization URL manually")
		o.logger.Info().Str("url", authURL).Msg("authorization URL")
	}

	code, err := pending.Wait(ctx, o.timeout)
	if err != nil {
		o.logger.Warn().Err(err).Msg("authorization attempt failed")
		return nil, err
	}

	tok, err := o.conf.Exchange(ctx, code, oauth2.VerifierOption(session.Verifier))
	if err != nil {
		return nil, errs.Wrapf(errs.ErrTokenExchange, "%v", err)
	}

	rec := o.recordFromToken(tok)
	if err := o.sink.Adopt(rec); err != nil {
		return nil, err
	}

	o.logger.Info().Time("expires_at", rec.ExpiresAt).Msg("authorization complete")
	o.events.Emit(status.Event{Kind: status.KindAuthorized})
	return rec, nil
}

func (o *Orchestrator) recordFromToken(tok *oauth2.Token) *credentials.Record {
	scope := ""
	if s, ok := tok.Extra("scope").(string); ok {
		scope = s
	}

	expiry := tok.Expiry
	if expiry.IsZero() {
		expiry = o.nowTime().Add(time.Hour)
	}

	return &credentials.Record{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    expiry.UTC().Truncate(time.Second),
		TokenType:    tok.Type(),
		Scope:        scope,
	}
}
