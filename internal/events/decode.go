package events

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ukydev/fleet-registry/internal/live"
	"github.com/ukydev/fleet-registry/internal/models"
)

// ErrNotVehicleEvent is returned for well-formed envelopes that carry no vehicle change.
var ErrNotVehicleEvent = errors.New("not a vehicle event")

type wireEnvelope struct {
	Event  string          `json:"event"`
	Data   json.RawMessage `json:"data,omitempty"`
	SentAt time.Time       `json:"sent_at"`
}

// DecodeEvent parses one push message. It returns the envelope's event name
// and, for vehicle events, the reconciler input stamped with receivedAt.
// Unknown fields and events failing validation are rejected.
func DecodeEvent(msg []byte, receivedAt time.Time) (string, live.Event, error) {
	var env wireEnvelope
	if err := json.Unmarshal(msg, &env); err != nil {
		return "", live.Event{}, fmt.Errorf("malformed envelope: %w", err)
	}

	kind, ok := live.KindForEvent(env.Event)
	if !ok {
		return env.Event, live.Event{}, ErrNotVehicleEvent
	}

	dec := json.NewDecoder(bytes.NewReader(env.Data))
	dec.DisallowUnknownFields()
	var payload models.VehicleEvent
	if err := dec.Decode(&payload); err != nil {
		return env.Event, live.Event{}, fmt.Errorf("malformed %s payload: %w", env.Event, err)
	}
	if err := payload.Validate(); err != nil {
		return env.Event, live.Event{}, fmt.Errorf("invalid %s payload: %w", env.Event, err)
	}

	return env.Event, live.Event{
		Kind:       kind,
		Vehicle:    payload.Vehicle,
		CreatedBy:  payload.CreatedBy,
		ReceivedAt: receivedAt,
	}, nil
}
