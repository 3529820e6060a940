package models

import "time"

// WindowType identifies one of the three rate-limit windows tracked per
// workspace.
type WindowType string

const (
	WindowMinute WindowType = "minute"
	WindowHour   WindowType = "hour"
	WindowDay    WindowType = "day"
)

// Duration returns the wall-clock span of the window.
func (w WindowType) Duration() time.Duration {
	switch w {
	case WindowMinute:
		return time.Minute
	case WindowHour:
		return time.Hour
	case WindowDay:
		return 24 * time.Hour
	}
	return 0
}

// WindowTypes lists all tracked windows, shortest first.
var WindowTypes = []WindowType{WindowMinute, WindowHour, WindowDay}

// RateLimitWindow is the per-(workspace, window-type) counter state. The
// counter only applies to requests whose timestamp falls within
// [WindowStart, WindowStart + window duration); a request outside that
// range rolls the window forward and resets the counter.
type RateLimitWindow struct {
	WorkspaceID  string     `db:"workspace_id" json:"workspace_id"`
	Window       WindowType `db:"window_type" json:"window_type"`
	WindowStart  time.Time  `db:"window_start" json:"window_start"`
	RequestCount int        `db:"request_count" json:"request_count"`
}

// Expired reports whether the window no longer covers now.
func (r *RateLimitWindow) Expired(now time.Time) bool {
	return !now.Before(r.WindowStart.Add(r.Window.Duration()))
}
