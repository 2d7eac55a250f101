package oauthflow_test

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"github.com/claudepulse/pulse/credentials"
	"github.com/claudepulse/pulse/internal/config"
	errs "github.com/claudepulse/pulse/internal/errors"
	"github.com/claudepulse/pulse/oauth"
	"github.com/claudepulse/pulse/oauthflow"
	"github.com/claudepulse/pulse/pkce"
	"github.com/claudepulse/pulse/status"
	"github.com/claudepulse/pulse/token"
	"github.com/stretchr/testify/require"
)

// testOAuthConfig points the token endpoint at a local server while
// keeping the remaining fixed constants.
type testOAuthConfig struct {
	config.OAuth
	tokenURL string
}

func (c testOAuthConfig) GetTokenURL() string {
	return c.tokenURL
}

// freeLoopbackAddr reserves an ephemeral port and releases it for the
// orchestrator's listener to claim.
func freeLoopbackAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

type orchestratorFixture struct {
	store        *credentials.Store
	manager      *token.Manager
	orchestrator *oauthflow.Orchestrator
	listenAddr   string
	events       []status.Event
	exchangeForm url.Values
	authURL      string
}

// newOrchestratorFixture wires a real store and token manager to an
// orchestrator whose token endpoint is a local test server and whose
// "browser" follows the redirect itself.
func newOrchestratorFixture(t *testing.T, exchangeStatus int) *orchestratorFixture {
	t.Helper()
	f := &orchestratorFixture{listenAddr: freeLoopbackAddr(t)}

	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		f.exchangeForm = r.PostForm

		if exchangeStatus != http.StatusOK {
			w.WriteHeader(exchangeStatus)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(oauth.TokenResponse{
			AccessToken:  "access-exchanged",
			RefreshToken: "refresh-exchanged",
			TokenType:    "Bearer",
			ExpiresIn:    3600,
			Scope:        "user:inference user:profile",
		})
	}))
	t.Cleanup(tokenSrv.Close)

	store, err := credentials.NewStore(filepath.Join(t.TempDir(), "creds"),
		credentials.WithClaudeCodePath(""))
	require.NoError(t, err)
	f.store = store

	f.manager, err = token.NewManager(store, testOAuthConfig{tokenURL: tokenSrv.URL})
	require.NoError(t, err)

	f.orchestrator, err = oauthflow.NewOrchestrator(
		f.manager.OAuthConfig(), config.OAuth{}, f.manager,
		oauthflow.WithListenAddr(f.listenAddr),
		oauthflow.WithTimeout(5*time.Second),
		oauthflow.WithEvents(func(e status.Event) { f.events = append(f.events, e) }),
		oauthflow.WithBrowserOpener(func(authURL string) error {
			f.authURL = authURL
			go f.followRedirect(t, authURL, "abc123")
			return nil
		}),
	)
	require.NoError(t, err)
	return f
}

// followRedirect plays the user's browser: it reads the state from the
// authorization URL and hits the local callback with a code.
func (f *orchestratorFixture) followRedirect(t *testing.T, authURL, code string) {
	parsed, err := url.Parse(authURL)
	if err != nil {
		t.Error(err)
		return
	}
	state := parsed.Query().Get("state")

	// The listener is already bound when the browser opens; the retry
	// loop just absorbs scheduling noise.
	for i := 0; i < 50; i++ {
		resp, err := http.Get("http://" + f.listenAddr + "/callback?code=" +
			url.QueryEscape(code) + "&state=" + url.QueryEscape(state))
		if err == nil {
			resp.Body.Close()
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Error("callback endpoint never became reachable")
}

func TestAuthorizeEndToEnd(t *testing.T) {
	f := newOrchestratorFixture(t, http.StatusOK)

	// No credential file: only re-authorization can help.
	_, err := f.manager.GetValidToken(context.Background())
	require.ErrorIs(t, err, errs.ErrNeedsReauthorization)

	before := time.Now()
	rec, err := f.orchestrator.Authorize(context.Background())
	require.NoError(t, err)
	after := time.Now()

	require.Equal(t, "access-exchanged", rec.AccessToken)
	require.Equal(t, "refresh-exchanged", rec.RefreshToken)

	// Expiry is capture time plus the server-reported lifetime.
	require.False(t, rec.ExpiresAt.Before(before.Add(3600*time.Second).Truncate(time.Second)))
	require.False(t, rec.ExpiresAt.After(after.Add(3600*time.Second)))

	// The record was persisted through the store.
	stored, err := f.store.Load()
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.Equal(t, "access-exchanged", stored.AccessToken)

	// And the manager serves it immediately.
	got, err := f.manager.GetValidToken(context.Background())
	require.NoError(t, err)
	require.Equal(t, "access-exchanged", got)

	require.Len(t, f.events, 1)
	require.Equal(t, status.KindAuthorized, f.events[0].Kind)
}

func TestAuthorizeRequestShapes(t *testing.T) {
	f := newOrchestratorFixture(t, http.StatusOK)

	_, err := f.orchestrator.Authorize(context.Background())
	require.NoError(t, err)

	// Authorization URL carries the full PKCE + state query.
	parsed, err := url.Parse(f.authURL)
	require.NoError(t, err)
	q := parsed.Query()
	require.Equal(t, string(oauth.CodeResponseType), q.Get("response_type"))
	require.Equal(t, config.OAuth{}.GetClientID(), q.Get("client_id"))
	require.Equal(t, config.OAuth{}.GetRedirectURL(), q.Get("redirect_uri"))
	require.Equal(t, "user:inference user:profile", q.Get("scope"))
	require.Equal(t, string(oauth.CodeMethodTypeS256), q.Get("code_challenge_method"))
	require.NotEmpty(t, q.Get("state"))

	// The exchange carries the verifier (never the challenge), and the
	// challenge sent earlier derives from that verifier.
	form := f.exchangeForm
	require.Equal(t, string(oauth.AuthorizationCodeGrant), form.Get("grant_type"))
	require.Equal(t, "abc123", form.Get("code"))
	require.Equal(t, config.OAuth{}.GetRedirectURL(), form.Get("redirect_uri"))
	verifier := form.Get("code_verifier")
	require.NotEmpty(t, verifier)
	require.Equal(t, pkce.Challenge(verifier), q.Get("code_challenge"))
	require.Empty(t, form.Get("code_challenge"))
}

func TestAuthorizeExchangeFailure(t *testing.T) {
	f := newOrchestratorFixture(t, http.StatusBadRequest)

	_, err := f.orchestrator.Authorize(context.Background())
	require.ErrorIs(t, err, errs.ErrTokenExchange)

	stored, err := f.store.Load()
	require.NoError(t, err)
	require.Nil(t, stored, "a failed exchange must not persist anything")
	require.Empty(t, f.events)
}

func TestAuthorizeBrowserFailureIsNonFatal(t *testing.T) {
	f := newOrchestratorFixture(t, http.StatusOK)

	var opened string
	orch, err := oauthflow.NewOrchestrator(
		f.manager.OAuthConfig(), config.OAuth{}, f.manager,
		oauthflow.WithListenAddr(f.listenAddr),
		oauthflow.WithTimeout(5*time.Second),
		oauthflow.WithBrowserOpener(func(authURL string) error {
			opened = authURL
			// Simulate a headless host: the open fails, but the user
			// pastes the URL and completes the flow anyway.
			go f.followRedirect(t, authURL, "abc123")
			return context.DeadlineExceeded
		}),
	)
	require.NoError(t, err)

	rec, err := orch.Authorize(context.Background())
	require.NoError(t, err)
	require.Equal(t, "access-exchanged", rec.AccessToken)
	require.NotEmpty(t, opened)
}

func TestAuthorizeTimesOutWithoutCallback(t *testing.T) {
	f := newOrchestratorFixture(t, http.StatusOK)

	orch, err := oauthflow.NewOrchestrator(
		f.manager.OAuthConfig(), config.OAuth{}, f.manager,
		oauthflow.WithListenAddr(f.listenAddr),
		oauthflow.WithTimeout(100*time.Millisecond),
		oauthflow.WithBrowserOpener(func(string) error { return nil }),
	)
	require.NoError(t, err)

	_, err = orch.Authorize(context.Background())
	require.ErrorIs(t, err, errs.ErrCallbackTimeout)
}
