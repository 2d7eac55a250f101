// Package pacing holds the derived display calculations: how far into
// the weekly window we are, whether usage is running ahead of it, and
// where the current session is projected to land. All functions are
// pure; callers pass the clock in.
package pacing

import "time"

const (
	// FiveHourWindow is the length of the session usage window.
	FiveHourWindow = 5 * time.Hour

	// SevenDayWindow is the length of the weekly usage window.
	SevenDayWindow = 7 * 24 * time.Hour
)

// BudgetStatus classifies weekly usage against elapsed time.
type BudgetStatus string

const (
	BudgetUnder   BudgetStatus = "under"
	BudgetOver    BudgetStatus = "over"
	BudgetUnknown BudgetStatus = "unknown"
)

// WeekElapsedPercent returns how much of the weekly window has passed,
// in percent, clamped to [0,100]. The week starts seven days before the
// reset instant.
func WeekElapsedPercent(now, resetsAt time.Time) float64 {
	weekStart := resetsAt.Add(-SevenDayWindow)
	elapsed := now.Sub(weekStart)

	percent := elapsed.Seconds() / SevenDayWindow.Seconds() * 100
	if percent < 0 {
		return 0
	}
	if percent > 100 {
		return 100
	}
	return percent
}

// Weekly is the pacing verdict for the seven-day window.
type Weekly struct {
	// ElapsedPercent is how much of the week has passed, 0-100.
	ElapsedPercent float64

	// Ratio is utilization divided by elapsed percent. Above 1.0 means
	// usage is ahead of the calendar. Zero when Status is unknown.
	Ratio float64

	// Status is under, over, or unknown.
	Status BudgetStatus
}

// WeeklyPacing compares weekly utilization against how much of the week
// has passed. A nil reset instant means the window boundary is unknown
// and no verdict can be given. At the very start of a week any nonzero
// usage is already over budget.
func WeeklyPacing(now time.Time, utilization float64, resetsAt *time.Time) Weekly {
	if resetsAt == nil {
		return Weekly{Status: BudgetUnknown}
	}

	elapsed := WeekElapsedPercent(now, *resetsAt)
	if elapsed == 0 {
		status := BudgetUnder
		if utilization > 0 {
			status = BudgetOver
		}
		return Weekly{ElapsedPercent: 0, Status: status}
	}

	ratio := utilization / elapsed
	status := BudgetUnder
	if ratio >= 1.0 {
		status = BudgetOver
	}
	return Weekly{ElapsedPercent: elapsed, Ratio: ratio, Status: status}
}

// Projection estimates where utilization will be when the window resets.
type Projection struct {
	// ProjectedPercent is the estimated utilization at reset, which may
	// exceed 100.
	ProjectedPercent float64

	// OnTrack is true if projected usage stays under 100% at reset.
	OnTrack bool
}

// Project extrapolates the current burn rate to the end of the window.
// With no elapsed time or no usage there is nothing to extrapolate and
// the current value stands.
func Project(now time.Time, currentPercent float64, resetsAt time.Time, windowLen time.Duration) Projection {
	remaining := resetsAt.Sub(now)
	elapsed := windowLen - remaining

	if elapsed <= 0 || currentPercent <= 0 {
		return Projection{ProjectedPercent: currentPercent, OnTrack: currentPercent < 100}
	}

	rate := currentPercent / elapsed.Seconds()
	projected := rate * windowLen.Seconds()

	return Projection{
		ProjectedPercent: projected,
		OnTrack:          projected < 100,
	}
}

// Indicator returns a short status string for the projection.
func (p Projection) Indicator() string {
	switch {
	case p.ProjectedPercent >= 100:
		return "over limit"
	case p.ProjectedPercent >= 90:
		return "tight"
	default:
		return "on track"
	}
}
