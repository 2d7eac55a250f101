// Package poller drives the periodic usage fetch and adapts its own
// schedule to what the API reports: healthy, rate limited, degraded, or
// unauthenticated.
package poller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/claudepulse/pulse/internal/config"
	errs "github.com/claudepulse/pulse/internal/errors"
	"github.com/claudepulse/pulse/status"
	"github.com/claudepulse/pulse/usage"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// TokenProvider hands out usable access tokens. Implemented by the
// token lifecycle manager.
type TokenProvider interface {
	GetValidToken(ctx context.Context) (string, error)
	Invalidate()
}

// UsageFetcher calls the usage endpoint. Implemented by usage.Client.
type UsageFetcher interface {
	Fetch(ctx context.Context, accessToken string) (*usage.Snapshot, error)
}

// State is the poller's current schedule and last outcome. Mutated only
// by the poller itself; consumers get copies.
type State struct {
	// Interval is the delay before the next scheduled poll.
	Interval time.Duration

	// ConsecutiveFailures counts server/network failures since the last
	// success. Rate limiting does not count.
	ConsecutiveFailures int

	// RateLimited is set after a 429 and cleared by the next success.
	RateLimited bool

	// Suspended is set when only re-authorization can make progress.
	Suspended bool

	// LastSnapshot is the most recent successful fetch, nil before the
	// first success.
	LastSnapshot *usage.Snapshot

	// LastError describes the most recent failure classification.
	LastError string
}

// Poller runs the fetch loop. Only one poll is ever in flight; manual
// triggers arriving mid-poll coalesce into the in-flight attempt.
type Poller struct {
	tokens     TokenProvider
	client     UsageFetcher
	events     status.Sink
	base       time.Duration
	slow       time.Duration
	maxBackoff time.Duration
	logger     zerolog.Logger

	group  singleflight.Group
	resume chan struct{}

	mu    sync.Mutex
	state State
}

// Option defines a function type to modify the Poller instance.
type Option func(*Poller)

// WithEvents sets the status event sink.
func WithEvents(events status.Sink) Option {
	return func(p *Poller) {
		p.events = events
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(p *Poller) {
		p.logger = logger
	}
}

// New creates a poller over the given token provider and usage client.
func New(tokens TokenProvider, client UsageFetcher, cfg config.PollerConfig, options ...Option) (*Poller, error) {
	if tokens == nil {
		return nil, fmt.Errorf("[poller.New] token provider is required")
	}
	if client == nil {
		return nil, fmt.Errorf("[poller.New] usage fetcher is required")
	}

	p := &Poller{
		tokens:     tokens,
		client:     client,
		base:       cfg.GetPollInterval(),
		slow:       cfg.GetRateLimitedInterval(),
		maxBackoff: cfg.GetMaxBackoff(),
		logger:     zerolog.Nop(),
		resume:     make(chan struct{}, 1),
	}
	p.state.Interval = p.base

	for _, opt := range options {
		opt(p)
	}
	return p, nil
}

// Run polls until the context is cancelled. While suspended it sits idle
// until Resume, then polls immediately at the base interval.
func (p *Poller) Run(ctx context.Context) {
	for {
		p.tick(ctx)

		p.mu.Lock()
		suspended := p.state.Suspended
		interval := p.state.Interval
		p.mu.Unlock()

		if suspended {
			select {
			case <-ctx.Done():
				return
			case <-p.resume:
			}
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}

// PollNow triggers a poll outside the schedule. It shares the in-flight
// poll if one is running, and it still goes through the full token and
// backoff logic. A manual trigger cannot skip the consequences.
func (p *Poller) PollNow(ctx context.Context) {
	p.tick(ctx)
}

// Resume clears the unauthenticated suspension after a successful
// re-authorization and restores the base schedule.
func (p *Poller) Resume() {
	p.mu.Lock()
	p.state.Suspended = false
	p.state.ConsecutiveFailures = 0
	p.state.RateLimited = false
	p.state.Interval = p.base
	p.state.LastError = ""
	p.mu.Unlock()

	select {
	case p.resume <- struct{}{}:
	default:
	}
}

// Snapshot returns a copy of the poller state.
func (p *Poller) Snapshot() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Poller) tick(ctx context.Context) {
	_, _, _ = p.group.Do("poll", func() (any, error) {
		p.poll(ctx)
		return nil, nil
	})
}

func (p *Poller) poll(ctx context.Context) {
	accessToken, err := p.tokens.GetValidToken(ctx)
	if err != nil {
		p.handleTokenFailure(err)
		return
	}

	snap, err := p.client.Fetch(ctx, accessToken)
	if errs.Is(err, errs.ErrUnauthorized) {
		// The endpoint distrusts a token the clock still trusts. Drop
		// it and retry once with a fresh token within this tick.
		p.tokens.Invalidate()
		accessToken, err = p.tokens.GetValidToken(ctx)
		if err != nil {
			p.handleTokenFailure(err)
			return
		}
		snap, err = p.client.Fetch(ctx, accessToken)
	}

	switch {
	case err == nil:
		p.recordSuccess(snap)
	case errs.Is(err, errs.ErrRateLimited):
		p.recordRateLimited()
	default:
		p.recordFailure(err)
	}
}

func (p *Poller) handleTokenFailure(err error) {
	if errs.Is(err, errs.ErrNeedsReauthorization) {
		p.mu.Lock()
		p.state.Suspended = true
		p.state.LastError = "unauthenticated"
		p.mu.Unlock()

		p.logger.Warn().Msg("no usable credential, polling suspended until re-authorization")
		p.events.Emit(status.Event{Kind: status.KindUnauthenticated})
		return
	}
	p.recordFailure(err)
}

func (p *Poller) recordSuccess(snap *usage.Snapshot) {
	p.mu.Lock()
	p.state.LastSnapshot = snap
	p.state.ConsecutiveFailures = 0
	p.state.RateLimited = false
	p.state.Interval = p.base
	p.state.LastError = ""
	p.mu.Unlock()

	p.logger.Debug().
		Float64("five_hour", snap.FiveHour.Utilization).
		Float64("seven_day", snap.SevenDay.Utilization).
		Msg("usage updated")
	p.events.Emit(status.Event{Kind: status.KindUsageUpdated, Snapshot: snap})
}

func (p *Poller) recordRateLimited() {
	p.mu.Lock()
	p.state.RateLimited = true
	p.state.Interval = p.slow
	p.state.LastError = "rate limited"
	p.mu.Unlock()

	p.logger.Warn().Dur("interval", p.slow).Msg("rate limited, slowing poll schedule")
	p.events.Emit(status.Event{Kind: status.KindRateLimited})
}

func (p *Poller) recordFailure(err error) {
	p.mu.Lock()
	p.state.ConsecutiveFailures++
	p.state.LastError = err.Error()
	p.state.Interval = p.backoff(p.state.ConsecutiveFailures)
	if p.state.RateLimited && p.state.Interval < p.slow {
		// Still rate limited until a success; do not speed back up.
		p.state.Interval = p.slow
	}
	failures := p.state.ConsecutiveFailures
	interval := p.state.Interval
	p.mu.Unlock()

	p.logger.Warn().Err(err).Int("consecutive_failures", failures).
		Dur("next_poll", interval).Msg("usage poll failed")
	p.events.Emit(status.Event{Kind: status.KindDegraded, Reason: err.Error()})
}

// backoff doubles the base interval per consecutive failure, capped:
// 60s, 120s, 240s, then 300s.
func (p *Poller) backoff(failures int) time.Duration {
	delay := p.base
	for i := 1; i < failures; i++ {
		delay *= 2
		if delay >= p.maxBackoff {
			return p.maxBackoff
		}
	}
	if delay > p.maxBackoff {
		return p.maxBackoff
	}
	return delay
}
