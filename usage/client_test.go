package usage_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/claudepulse/pulse/internal/config"
	errs "github.com/claudepulse/pulse/internal/errors"
	"github.com/claudepulse/pulse/usage"
	"github.com/stretchr/testify/require"
)

const usageBody = `{
	"five_hour":      {"utilization": 42.5, "resets_at": "2026-08-30T15:00:00Z"},
	"seven_day":      {"utilization": 71.0, "resets_at": "2026-09-03T08:00:00Z"},
	"seven_day_opus": {"utilization": 0, "resets_at": null}
}`

func newClient(t *testing.T, handler http.HandlerFunc) *usage.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return usage.NewClient(config.Poller{}, usage.WithURL(srv.URL))
}

func TestFetchParsesSnapshot(t *testing.T) {
	var gotAuth, gotBeta string
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotBeta = r.Header.Get("anthropic-beta")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(usageBody))
	})

	snap, err := client.Fetch(context.Background(), "token-123")
	require.NoError(t, err)

	require.Equal(t, "Bearer token-123", gotAuth)
	require.Equal(t, config.Poller{}.GetUsageBetaHeader(), gotBeta)

	require.InDelta(t, 42.5, snap.FiveHour.Utilization, 0.001)
	require.NotNil(t, snap.FiveHour.ResetsAt)
	require.Equal(t, time.Date(2026, 8, 30, 15, 0, 0, 0, time.UTC), snap.FiveHour.ResetsAt.UTC())

	require.InDelta(t, 71.0, snap.SevenDay.Utilization, 0.001)

	// Opus window never used: zero utilization, no reset instant.
	require.Zero(t, snap.SevenDayOpus.Utilization)
	require.Nil(t, snap.SevenDayOpus.ResetsAt)

	require.False(t, snap.FetchedAt.IsZero())
}

func TestFetchClampsUtilization(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"five_hour":{"utilization":120,"resets_at":null},"seven_day":{"utilization":-3,"resets_at":null},"seven_day_opus":{"utilization":50,"resets_at":null}}`))
	})

	snap, err := client.Fetch(context.Background(), "t")
	require.NoError(t, err)
	require.Equal(t, 100.0, snap.FiveHour.Utilization)
	require.Equal(t, 0.0, snap.SevenDay.Utilization)
	require.Equal(t, 50.0, snap.SevenDayOpus.Utilization)
}

func TestFetchClassifiesStatuses(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"unauthorized", http.StatusUnauthorized, errs.ErrUnauthorized},
		{"forbidden", http.StatusForbidden, errs.ErrUnauthorized},
		{"rate limited", http.StatusTooManyRequests, errs.ErrRateLimited},
		{"server error", http.StatusInternalServerError, errs.ErrServerUnavailable},
		{"bad gateway", http.StatusBadGateway, errs.ErrServerUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			})
			_, err := client.Fetch(context.Background(), "t")
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestFetchNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := usage.NewClient(config.Poller{}, usage.WithURL(url))
	_, err := client.Fetch(context.Background(), "t")
	require.Error(t, err)
	require.NotErrorIs(t, err, errs.ErrUnauthorized)
	require.NotErrorIs(t, err, errs.ErrRateLimited)
}
