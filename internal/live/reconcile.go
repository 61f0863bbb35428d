// Package live keeps a client's vehicle roster in step with pushed change events.
package live

import (
	"fmt"
	"time"

	"github.com/ukydev/fleet-registry/internal/models"
)

// EventKind distinguishes creations from updates.
type EventKind int

const (
	Created EventKind = iota + 1
	Updated
)

func (k EventKind) String() string {
	switch k {
	case Created:
		return models.EventVehicleCreated
	case Updated:
		return models.EventVehicleUpdated
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// KindForEvent maps a push channel event name to its kind.
func KindForEvent(name string) (EventKind, bool) {
	switch name {
	case models.EventVehicleCreated:
		return Created, true
	case models.EventVehicleUpdated:
		return Updated, true
	default:
		return 0, false
	}
}

// Event is a vehicle change delivered by the push channel.
type Event struct {
	Kind       EventKind
	Vehicle    models.Vehicle
	CreatedBy  string
	ReceivedAt time.Time
}

// Reconcile merges ev into current and returns the resulting roster.
// current is never modified.
//
// Created upserts: an existing vehicle with the same id is replaced in place,
// otherwise the vehicle is prepended. Updated only replaces; an update for a
// vehicle the client never fetched is ignored.
func Reconcile(current []models.Vehicle, ev Event) []models.Vehicle {
	key := ev.Vehicle.Key()
	idx := -1
	for i, v := range current {
		if v.Key() == key {
			idx = i
			break
		}
	}

	switch {
	case idx >= 0 && (ev.Kind == Created || ev.Kind == Updated):
		out := make([]models.Vehicle, len(current))
		copy(out, current)
		out[idx] = ev.Vehicle.Clone()
		return out
	case ev.Kind == Created:
		out := make([]models.Vehicle, 0, len(current)+1)
		out = append(out, ev.Vehicle.Clone())
		return append(out, current...)
	default:
		return current
	}
}

func has(current []models.Vehicle, key string) bool {
	for _, v := range current {
		if v.Key() == key {
			return true
		}
	}
	return false
}

// Remove returns current without the vehicle identified by key.
func Remove(current []models.Vehicle, key string) []models.Vehicle {
	out := make([]models.Vehicle, 0, len(current))
	for _, v := range current {
		if v.Key() != key {
			out = append(out, v)
		}
	}
	return out
}
