// Package compliance derives document expiry status and filters vehicle rosters.
//
// Everything here is a pure function of its inputs: the current time and alert
// window are always passed in, never read from the wall clock.
package compliance

import (
	"strings"
	"time"
)

// Status is the derived compliance state of a single document.
type Status string

const (
	StatusNoDate       Status = "no_date"
	StatusExpired      Status = "expired"
	StatusExpiringSoon Status = "expiring_soon"
	StatusValid        Status = "valid"
)

// DefaultAlertDays is the expiring-soon window used when none is configured.
const DefaultAlertDays = 30

// DefaultWindow is DefaultAlertDays as a duration.
const DefaultWindow = DefaultAlertDays * 24 * time.Hour

// IsValidStatus reports whether s is one of the four derived statuses.
func IsValidStatus(s Status) bool {
	switch s {
	case StatusNoDate, StatusExpired, StatusExpiringSoon, StatusValid:
		return true
	default:
		return false
	}
}

// WindowForDays converts an alert threshold in days to a duration.
// Non-positive values fall back to DefaultWindow.
func WindowForDays(days int) time.Duration {
	if days <= 0 {
		return DefaultWindow
	}
	return time.Duration(days) * 24 * time.Hour
}

// Classifier maps expiry dates to statuses using a fixed alert window.
type Classifier struct {
	Window time.Duration
}

// NewClassifier returns a Classifier for the given alert threshold in days.
func NewClassifier(days int) Classifier {
	return Classifier{Window: WindowForDays(days)}
}

// Classify returns the status of a document expiring at expiry, as seen at now.
// A nil or zero expiry has no date.
func (c Classifier) Classify(expiry *time.Time, now time.Time) Status {
	if expiry == nil || expiry.IsZero() {
		return StatusNoDate
	}
	window := c.Window
	if window <= 0 {
		window = DefaultWindow
	}
	switch {
	case expiry.Before(now):
		return StatusExpired
	case !expiry.After(now.Add(window)):
		return StatusExpiringSoon
	default:
		return StatusValid
	}
}

// Classify uses the default 30 day window.
func Classify(expiry *time.Time, now time.Time) Status {
	return Classifier{Window: DefaultWindow}.Classify(expiry, now)
}

// ClassifyRaw classifies an unparsed date. Anything unparsable has no date.
func (c Classifier) ClassifyRaw(raw string, now time.Time) Status {
	t, ok := ParseDate(raw)
	if !ok {
		return StatusNoDate
	}
	return c.Classify(&t, now)
}

var dateLayouts = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"}

// ParseDate accepts RFC3339 timestamps and plain calendar dates.
// Calendar dates are interpreted as midnight UTC.
func ParseDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ParseRangeEnd parses the upper bound of an inclusive date range. A plain
// calendar date covers that whole day, so it resolves to its last instant.
func ParseRangeEnd(raw string) (time.Time, bool) {
	t, ok := ParseDate(raw)
	if !ok {
		return t, false
	}
	if _, err := time.Parse("2006-01-02", strings.TrimSpace(raw)); err == nil {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, true
}
