package live

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-registry/internal/clock"
	"github.com/ukydev/fleet-registry/internal/models"
)

// Handler receives reconciled vehicle events.
type Handler func(Event)

// Subscriber delivers push events until the returned cancel func is called
// or ctx ends.
type Subscriber interface {
	Subscribe(ctx context.Context, h Handler) (cancel func(), err error)
}

// Options configures a Session. Zero values take defaults.
type Options struct {
	Clock         clock.Clock
	Decay         time.Duration
	BatchCap      int
	SweepInterval time.Duration
}

// Session is the client-side state store for one logged-in user. It is
// created at login and closed at logout.
//
// Every mutation installs a new roster slice; snapshots are never changed
// after they are handed out.
type Session struct {
	mu         sync.Mutex
	clock      clock.Clock
	ledger     *Ledger
	events     *EventLog
	batchCap   int
	sweepEvery time.Duration

	vehicles   []models.Vehicle
	generation uint64
	closed     bool

	changes chan struct{}
}

// NewSession creates an empty session.
func NewSession(opts Options) *Session {
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.Decay <= 0 {
		opts.Decay = DefaultDecay
	}
	if opts.BatchCap <= 0 {
		opts.BatchCap = DefaultBatchCap
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = 500 * time.Millisecond
	}
	return &Session{
		clock:      opts.Clock,
		ledger:     NewLedger(opts.Decay),
		events:     NewEventLog(opts.Decay),
		batchCap:   opts.BatchCap,
		sweepEvery: opts.SweepInterval,
		vehicles:   []models.Vehicle{},
		changes:    make(chan struct{}, 1),
	}
}

func (s *Session) notify() {
	select {
	case s.changes <- struct{}{}:
	default:
	}
}

// Changes signals after any change to the roster or highlights. Signals coalesce.
func (s *Session) Changes() <-chan struct{} {
	return s.changes
}

// BeginFetch starts a roster fetch and returns its generation token.
// Issuing a new token makes every earlier one stale.
func (s *Session) BeginFetch() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	return s.generation
}

// CompleteFetch installs a fetched roster if token is still the newest one.
// Stale results are dropped and false is returned.
func (s *Session) CompleteFetch(token uint64, vehicles []models.Vehicle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || token != s.generation {
		log.WithFields(log.Fields{"token": token, "current": s.generation}).Debug("Dropping stale fetch result")
		return false
	}
	next := make([]models.Vehicle, len(vehicles))
	for i, v := range vehicles {
		next[i] = v.Clone()
	}
	s.vehicles = next
	s.notify()
	return true
}

// Apply reconciles ev into the roster immediately and queues it for highlighting.
func (s *Session) Apply(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if ev.ReceivedAt.IsZero() {
		ev.ReceivedAt = s.clock.Now()
	}
	if ev.Kind == Updated && !has(s.vehicles, ev.Vehicle.Key()) {
		return
	}
	s.vehicles = Reconcile(s.vehicles, ev)
	s.events.Append(ev)
	s.notify()
}

// Remove drops a vehicle locally ahead of the server confirming the delete.
func (s *Session) Remove(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.vehicles = Remove(s.vehicles, key)
	s.notify()
}

// Snapshot returns a copy of the current roster.
func (s *Session) Snapshot() []models.Vehicle {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Vehicle, len(s.vehicles))
	copy(out, s.vehicles)
	return out
}

// Highlight returns the live highlight for a vehicle.
func (s *Session) Highlight(key string) (Highlight, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.Get(key, s.clock.Now())
}

// Highlights returns all live highlights.
func (s *Session) Highlights() map[string]Highlight {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.Snapshot(s.clock.Now())
}

// Sweep highlights the newest buffered events, at most BatchCap of them, then
// prunes decayed highlights and log entries. It returns the events it highlighted.
func (s *Session) Sweep() []LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()

	batch := s.events.Drain(s.batchCap)
	for _, e := range batch {
		s.ledger.Mark(e.Event)
	}
	pruned := s.ledger.Sweep(now)
	s.events.Prune(now)

	if len(batch) > 0 || pruned > 0 {
		s.notify()
	}
	return batch
}

// Follow feeds events from sub into the session.
func (s *Session) Follow(ctx context.Context, sub Subscriber) (func(), error) {
	return sub.Subscribe(ctx, s.Apply)
}

// Run sweeps on an interval until ctx ends or the session is closed.
func (s *Session) Run(ctx context.Context) {
	ticker := time.NewTicker(s.sweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.isClosed() {
				return
			}
			s.Sweep()
		}
	}
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close tears the session down. Later mutations are ignored.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.vehicles = []models.Vehicle{}
	s.ledger = NewLedger(s.ledger.decay)
	s.events = NewEventLog(s.events.window)
}
