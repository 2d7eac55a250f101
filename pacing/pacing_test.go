package pacing_test

import (
	"testing"
	"time"

	"github.com/claudepulse/pulse/internal/utils"
	"github.com/claudepulse/pulse/pacing"
	"github.com/stretchr/testify/require"
)

var weekReset = time.Date(2026, time.March, 12, 8, 0, 0, 0, time.UTC)

func TestWeekElapsedPercent(t *testing.T) {
	tests := []struct {
		name     string
		now      time.Time
		expected float64
	}{
		{"at week start", weekReset.Add(-7 * 24 * time.Hour), 0},
		{"halfway", weekReset.Add(-3*24*time.Hour - 12*time.Hour), 50},
		{"at reset", weekReset, 100},
		{"before week start clamps to zero", weekReset.Add(-8 * 24 * time.Hour), 0},
		{"past reset clamps to hundred", weekReset.Add(24 * time.Hour), 100},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.InDelta(t, tc.expected, pacing.WeekElapsedPercent(tc.now, weekReset), 1e-9)
		})
	}
}

func TestWeeklyPacingUnder(t *testing.T) {
	halfway := weekReset.Add(-3*24*time.Hour - 12*time.Hour)

	w := pacing.WeeklyPacing(halfway, 30, utils.Ptr(weekReset))

	require.Equal(t, pacing.BudgetUnder, w.Status)
	require.InDelta(t, 50, w.ElapsedPercent, 1e-9)
	require.InDelta(t, 0.6, w.Ratio, 1e-9)
}

func TestWeeklyPacingOver(t *testing.T) {
	halfway := weekReset.Add(-3*24*time.Hour - 12*time.Hour)

	w := pacing.WeeklyPacing(halfway, 75, utils.Ptr(weekReset))

	require.Equal(t, pacing.BudgetOver, w.Status)
	require.InDelta(t, 1.5, w.Ratio, 1e-9)
}

func TestWeeklyPacingUnknownWithoutReset(t *testing.T) {
	w := pacing.WeeklyPacing(time.Now(), 42, nil)

	require.Equal(t, pacing.BudgetUnknown, w.Status)
	require.Zero(t, w.Ratio)
}

func TestWeeklyPacingAtWeekStart(t *testing.T) {
	weekStart := weekReset.Add(-7 * 24 * time.Hour)

	w := pacing.WeeklyPacing(weekStart, 0.5, utils.Ptr(weekReset))
	require.Equal(t, pacing.BudgetOver, w.Status, "any usage with no elapsed time is ahead of budget")

	w = pacing.WeeklyPacing(weekStart, 0, utils.Ptr(weekReset))
	require.Equal(t, pacing.BudgetUnder, w.Status)
}

func TestProject(t *testing.T) {
	// One hour into a five-hour window at 30% burns out at 150%.
	now := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	resetsAt := now.Add(4 * time.Hour)

	p := pacing.Project(now, 30, resetsAt, pacing.FiveHourWindow)

	require.InDelta(t, 150, p.ProjectedPercent, 1e-9)
	require.False(t, p.OnTrack)
	require.Equal(t, "over limit", p.Indicator())
}

func TestProjectOnTrack(t *testing.T) {
	// Halfway through the window at 30% lands at 60%.
	now := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	resetsAt := now.Add(2*time.Hour + 30*time.Minute)

	p := pacing.Project(now, 30, resetsAt, pacing.FiveHourWindow)

	require.InDelta(t, 60, p.ProjectedPercent, 1e-9)
	require.True(t, p.OnTrack)
	require.Equal(t, "on track", p.Indicator())
}

func TestProjectNothingToExtrapolate(t *testing.T) {
	now := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)

	// Window has not started burning yet.
	p := pacing.Project(now, 20, now.Add(pacing.FiveHourWindow), pacing.FiveHourWindow)
	require.InDelta(t, 20, p.ProjectedPercent, 1e-9)
	require.True(t, p.OnTrack)

	// No usage at all.
	p = pacing.Project(now, 0, now.Add(time.Hour), pacing.FiveHourWindow)
	require.Zero(t, p.ProjectedPercent)
	require.True(t, p.OnTrack)
}

func TestIndicatorThresholds(t *testing.T) {
	require.Equal(t, "on track", pacing.Projection{ProjectedPercent: 89}.Indicator())
	require.Equal(t, "tight", pacing.Projection{ProjectedPercent: 90}.Indicator())
	require.Equal(t, "over limit", pacing.Projection{ProjectedPercent: 100}.Indicator())
}
