package models

import (
	"errors"
	"time"
)

// Push channel event names.
const (
	EventConnect        = "connect"
	EventDisconnect     = "disconnect"
	EventVehicleCreated = "vehiculo:creado"
	EventVehicleUpdated = "vehiculo:actualizado"
)

// VehicleEvent is the payload of vehicle push events.
type VehicleEvent struct {
	Vehicle   Vehicle `json:"vehiculo"`
	CreatedBy string  `json:"usuarioCreador,omitempty"`
}

// Validate rejects events that cannot be reconciled safely.
func (e VehicleEvent) Validate() error {
	if e.Vehicle.ID.IsZero() {
		return errors.New("event vehicle has no id")
	}
	if e.Vehicle.Plate == "" {
		return errors.New("event vehicle has no plate")
	}
	if e.Vehicle.Status != "" && !IsValidVehicleStatus(e.Vehicle.Status) {
		return errors.New("event vehicle has unknown status")
	}
	return nil
}

// Envelope frames every message on the push channel.
type Envelope struct {
	Event  string    `json:"event"`
	Data   any       `json:"data,omitempty"`
	SentAt time.Time `json:"sent_at"`
}
