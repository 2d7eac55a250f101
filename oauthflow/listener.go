package oauthflow

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	errs "github.com/claudepulse/pulse/internal/errors"
	"github.com/rs/zerolog"
)

const callbackPath = "/callback"

// Listener is the transient localhost endpoint that captures the
// authorization redirect. It binds, waits for exactly one well-formed
// request whose state matches, and shuts down unconditionally. It never
// outlives a single authorization attempt.
type Listener struct {
	addr   string
	logger zerolog.Logger
}

// NewListener creates a listener for the given loopback address
// (host:port, matching the registered redirect URI).
func NewListener(addr string, logger zerolog.Logger) *Listener {
	return &Listener{addr: addr, logger: logger}
}

type callbackResult struct {
	code string
	err  error
}

// Pending is a bound, serving listener awaiting its single callback.
type Pending struct {
	srv     *http.Server
	ln      net.Listener
	result  chan callbackResult
	resolve sync.Once
	logger  zerolog.Logger
}

// Listen binds the callback port and starts serving. The caller must
// invoke Wait (or Close) afterwards; the port is released either way.
func (l *Listener) Listen(expectedState string) (*Pending, error) {
	ln, err := net.Listen("tcp", l.addr)
	if err != nil {
		return nil, errs.Wrapf(errs.ErrListenerUnavailable, "bind %s: %v", l.addr, err)
	}

	p := &Pending{
		ln:     ln,
		result: make(chan callbackResult, 1),
		logger: l.logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc(callbackPath, p.handleCallback(expectedState))
	p.srv = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := p.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			p.deliver(callbackResult{err: errs.Wrapf(err, "callback listener")})
		}
	}()

	return p, nil
}

// Addr returns the bound address, useful when listening on port 0.
func (p *Pending) Addr() string {
	return p.ln.Addr().String()
}

// Wait blocks until the callback resolves, the timeout elapses, or the
// context is cancelled. The listener is torn down in every case.
func (p *Pending) Wait(ctx context.Context, timeout time.Duration) (string, error) {
	defer p.Close()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-p.result:
		return res.code, res.err
	case <-timer.C:
		return "", errs.ErrCallbackTimeout
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Close tears the listener down immediately, freeing the port.
func (p *Pending) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := p.srv.Shutdown(ctx); err != nil {
		_ = p.srv.Close()
	}
}

// handleCallback accepts the redirect. Only a well-formed request with a
// matching state resolves the wait; anything else gets an error page and
// the listener keeps waiting.
func (p *Pending) handleCallback(expectedState string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state := r.FormValue("state")
		code := r.FormValue("code")
		errorParam := r.FormValue("error")
		errorDesc := r.FormValue("error_description")

		if state != expectedState {
			// A mismatched state is not ours to act on, error parameter
			// or not: a genuine error redirect echoes our state, so
			// anything else could be a local process trying to abort
			// the attempt. Reject the request and keep waiting for the
			// real redirect.
			p.logger.Warn().Err(errs.ErrStateMismatch).Msg("callback state mismatch, ignoring request")
			writePage(w, http.StatusBadRequest, "Request rejected",
				"The sign-in response did not match this login attempt. You can close this tab.")
			return
		}

		if errorParam != "" {
			p.logger.Warn().Str("error", errorParam).Msg("authorization server returned an error")
			writePage(w, http.StatusBadRequest, "Authorization failed",
				fmt.Sprintf("The authorization server reported: %s. You can close this tab and retry from the app.", errorParam))
			p.deliver(callbackResult{err: errs.Wrapf(errs.ErrAuthorizationDenied, "%s: %s", errorParam, errorDesc)})
			return
		}

		if code == "" {
			writePage(w, http.StatusBadRequest, "Request rejected",
				"The sign-in response was missing its authorization code. You can close this tab.")
			return
		}

		writePage(w, http.StatusOK, "Signed in",
			"You are signed in. You can close this tab and return to Claude Pulse.")
		p.deliver(callbackResult{code: code})
	}
}

// deliver resolves the wait exactly once; later outcomes are dropped.
func (p *Pending) deliver(res callbackResult) {
	p.resolve.Do(func() {
		p.result <- res
	})
}

func writePage(w http.ResponseWriter, status int, title, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head><title>%s</title></head>
<body style="font-family: sans-serif; margin: 4em auto; max-width: 32em;">
<h1>%s</h1>
<p>%s</p>
</body>
</html>`, title, title, body)
}
