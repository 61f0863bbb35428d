package live

import "time"

// DefaultBatchCap bounds how many buffered events one sweep highlights.
const DefaultBatchCap = 5

// LogEntry is one received push message.
type LogEntry struct {
	Name       string
	Event      Event
	ReceivedAt time.Time
}

// EventLog is an append-only, time-pruned record of received events.
// It drives highlighting only and is never a source of vehicle data.
type EventLog struct {
	window  time.Duration
	entries []LogEntry
	pending int // entries at the tail not yet drained
}

// NewEventLog returns a log that keeps entries for window.
func NewEventLog(window time.Duration) *EventLog {
	if window <= 0 {
		window = DefaultDecay
	}
	return &EventLog{window: window}
}

// Append records ev.
func (l *EventLog) Append(ev Event) {
	l.entries = append(l.entries, LogEntry{Name: ev.Kind.String(), Event: ev, ReceivedAt: ev.ReceivedAt})
	l.pending++
}

// Drain returns at most limit of the most recent undrained entries, oldest first.
// Older undrained entries are skipped for good.
func (l *EventLog) Drain(limit int) []LogEntry {
	if limit <= 0 {
		limit = DefaultBatchCap
	}
	n := l.pending
	if n > limit {
		n = limit
	}
	l.pending = 0
	if n == 0 {
		return nil
	}
	out := make([]LogEntry, n)
	copy(out, l.entries[len(l.entries)-n:])
	return out
}

// Prune removes entries older than the window, keeping undrained ones.
func (l *EventLog) Prune(now time.Time) {
	drained := len(l.entries) - l.pending
	keep := l.entries[:0]
	for i, e := range l.entries {
		if i >= drained || now.Sub(e.ReceivedAt) <= l.window {
			keep = append(keep, e)
		}
	}
	for i := len(keep); i < len(l.entries); i++ {
		l.entries[i] = LogEntry{}
	}
	l.entries = keep
}

// Entries copies the retained log.
func (l *EventLog) Entries() []LogEntry {
	out := make([]LogEntry, len(l.entries))
	copy(out, l.entries)
	return out
}
