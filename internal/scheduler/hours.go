package scheduler

import (
	"time"

	"cseflow/config"
)

// SLST is Sri Lanka Standard Time, the fixed UTC+5:30 zone all market-hours
// arithmetic and artifact timestamps use.
var SLST = time.FixedZone("SLST", 5*3600+30*60)

// marketOpen reports whether t falls inside the trading window. Weekends
// are always closed regardless of the clock; within a weekday the window is
// half-open, [open, close).
func marketOpen(m config.MarketConfig, t time.Time) bool {
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	minutes := t.Hour()*60 + t.Minute()
	open := m.OpenHour*60 + m.OpenMinute
	close := m.CloseHour*60 + m.CloseMinute
	return minutes >= open && minutes < close
}

// inRefreshWindow reports whether t falls inside the daily symbol reference
// rebuild window, [refresh, refresh+window).
func inRefreshWindow(r config.RefreshConfig, t time.Time) bool {
	minutes := t.Hour()*60 + t.Minute()
	start := r.Hour*60 + r.Minute
	end := start + int(r.Window.Minutes())
	return minutes >= start && minutes < end
}
