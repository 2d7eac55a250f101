// Package usage fetches the utilization windows from the Claude usage
// endpoint.
package usage

import "time"

// Window is one rate-limit accounting period.
type Window struct {
	// Utilization is the percentage of the window consumed, in [0,100].
	Utilization float64 `json:"utilization"`

	// ResetsAt is when the window resets. Nil means not applicable or
	// never used.
	ResetsAt *time.Time `json:"resets_at"`
}

// Snapshot is the result of one successful poll: the five-hour session
// window and the two seven-day rolling windows. Snapshots are immutable
// values; each poll produces a new one that supersedes the previous
// snapshot atomically.
type Snapshot struct {
	FiveHour     Window `json:"five_hour"`
	SevenDay     Window `json:"seven_day"`
	SevenDayOpus Window `json:"seven_day_opus"`

	// FetchedAt is when this snapshot was captured (local clock).
	FetchedAt time.Time `json:"-"`
}

func clampWindow(w Window) Window {
	if w.Utilization < 0 {
		w.Utilization = 0
	}
	if w.Utilization > 100 {
		w.Utilization = 100
	}
	return w
}
