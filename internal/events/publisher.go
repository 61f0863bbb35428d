// Package events carries vehicle change notifications from the API to
// connected clients over WebSocket and MQTT.
package events

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-registry/internal/models"
)

// Publisher delivers a vehicle event to subscribers.
type Publisher interface {
	Publish(ctx context.Context, event string, payload models.VehicleEvent) error
}

// encodeEnvelope frames payload for the wire.
func encodeEnvelope(event string, payload any, now time.Time) ([]byte, error) {
	return json.Marshal(models.Envelope{Event: event, Data: payload, SentAt: now.UTC()})
}

// Fanout publishes to every sink. A failing sink is logged and does not stop
// the others; the write that triggered the event has already succeeded.
type Fanout []Publisher

// Publish implements Publisher. It never returns an error.
func (f Fanout) Publish(ctx context.Context, event string, payload models.VehicleEvent) error {
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, event, payload); err != nil {
			log.WithError(err).WithFields(log.Fields{
				"event":   event,
				"vehicle": payload.Vehicle.Key(),
			}).Warn("Failed to publish vehicle event")
		}
	}
	return nil
}

// Topic maps an event name to its MQTT topic: "vehiculo:creado" becomes
// "<prefix>/vehiculo/creado".
func Topic(prefix, event string) string {
	t := strings.ReplaceAll(event, ":", "/")
	if prefix == "" {
		return t
	}
	return strings.TrimSuffix(prefix, "/") + "/" + t
}
