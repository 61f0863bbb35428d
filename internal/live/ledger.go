package live

import (
	"time"
)

// DefaultDecay is how long a row stays highlighted after an event.
const DefaultDecay = 5 * time.Second

// Highlight marks a row that recently changed.
type Highlight struct {
	IsNew      bool      `json:"isNew"`
	IsUpdated  bool      `json:"isUpdated"`
	ReceivedAt time.Time `json:"receivedAt"`
}

// Ledger tracks transient highlights per vehicle id. Not safe for concurrent
// use; Session serializes access.
type Ledger struct {
	decay   time.Duration
	entries map[string]Highlight
}

// NewLedger returns a ledger whose entries expire after decay.
func NewLedger(decay time.Duration) *Ledger {
	if decay <= 0 {
		decay = DefaultDecay
	}
	return &Ledger{decay: decay, entries: make(map[string]Highlight)}
}

func (l *Ledger) live(h Highlight, now time.Time) bool {
	return now.Sub(h.ReceivedAt) <= l.decay
}

// Mark records ev. A live "new" entry is not downgraded by a later update.
func (l *Ledger) Mark(ev Event) {
	key := ev.Vehicle.Key()
	if cur, ok := l.entries[key]; ok && cur.IsNew && ev.Kind == Updated && l.live(cur, ev.ReceivedAt) {
		return
	}
	l.entries[key] = Highlight{
		IsNew:      ev.Kind == Created,
		IsUpdated:  ev.Kind == Updated,
		ReceivedAt: ev.ReceivedAt,
	}
}

// Get returns the live highlight for key as of now.
func (l *Ledger) Get(key string, now time.Time) (Highlight, bool) {
	h, ok := l.entries[key]
	if !ok || !l.live(h, now) {
		return Highlight{}, false
	}
	return h, true
}

// Sweep drops every entry older than the decay window and returns how many went.
func (l *Ledger) Sweep(now time.Time) int {
	n := 0
	for k, h := range l.entries {
		if !l.live(h, now) {
			delete(l.entries, k)
			n++
		}
	}
	return n
}

// Snapshot copies the live entries as of now.
func (l *Ledger) Snapshot(now time.Time) map[string]Highlight {
	out := make(map[string]Highlight, len(l.entries))
	for k, h := range l.entries {
		if l.live(h, now) {
			out[k] = h
		}
	}
	return out
}

// Len is the number of stored entries, live or not.
func (l *Ledger) Len() int { return len(l.entries) }
