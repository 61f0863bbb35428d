package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// VehicleStatus is the operational state of a vehicle.
type VehicleStatus string

const (
	VehicleInService      VehicleStatus = "in_service"
	VehicleAvailable      VehicleStatus = "available"
	VehicleMaintenance    VehicleStatus = "maintenance"
	VehicleDecommissioned VehicleStatus = "decommissioned"
)

// IsValidVehicleStatus reports whether s is one of the known vehicle states.
func IsValidVehicleStatus(s VehicleStatus) bool {
	switch s {
	case VehicleInService, VehicleAvailable, VehicleMaintenance, VehicleDecommissioned:
		return true
	default:
		return false
	}
}

// Vehicle represents a registered fleet vehicle and the documents it owns.
type Vehicle struct {
	ID               primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Plate            string             `bson:"plate" json:"plate"`
	Brand            string             `bson:"brand" json:"brand"`
	Line             string             `bson:"line" json:"line"`
	Model            int                `bson:"model" json:"model"` // model year
	Color            string             `bson:"color" json:"color"`
	Class            string             `bson:"class" json:"class"`
	BodyType         string             `bson:"body_type" json:"body_type"`
	FuelType         string             `bson:"fuel_type" json:"fuel_type"`
	EngineNumber     string             `bson:"engine_number" json:"engine_number"`
	ChassisNumber    string             `bson:"chassis_number" json:"chassis_number"`
	VIN              string             `bson:"vin" json:"vin"`
	Odometer         *float64           `bson:"odometer,omitempty" json:"odometer,omitempty"` // in kilometers
	Status           VehicleStatus      `bson:"status" json:"status"`
	OwnerName        string             `bson:"owner_name" json:"owner_name"`
	OwnerID          string             `bson:"owner_id" json:"owner_id"`
	RegistrationDate *time.Time         `bson:"registration_date,omitempty" json:"registration_date,omitempty"`
	Location         *Location          `bson:"location,omitempty" json:"location,omitempty"`
	Documents        []Document         `bson:"documents" json:"documents"`
	CreatedAt        time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt        time.Time          `bson:"updated_at" json:"updated_at"`
}

// Key returns the identity used to match vehicles across snapshots and events.
func (v Vehicle) Key() string {
	return v.ID.Hex()
}

// Document returns the document with the given id, if the vehicle owns it.
func (v Vehicle) Document(id primitive.ObjectID) (Document, bool) {
	for _, d := range v.Documents {
		if d.ID == id {
			return d, true
		}
	}
	return Document{}, false
}

// Clone returns a copy that shares no mutable state with v.
func (v Vehicle) Clone() Vehicle {
	out := v
	if v.Documents != nil {
		out.Documents = make([]Document, len(v.Documents))
		for i, d := range v.Documents {
			out.Documents[i] = d.Clone()
		}
	}
	if v.Odometer != nil {
		o := *v.Odometer
		out.Odometer = &o
	}
	if v.RegistrationDate != nil {
		t := *v.RegistrationDate
		out.RegistrationDate = &t
	}
	if v.Location != nil {
		l := *v.Location
		out.Location = &l
	}
	return out
}

// VehiclePage is the paginated list shape returned by the vehicles endpoint.
type VehiclePage struct {
	Data        []Vehicle `json:"data"`
	Count       int       `json:"count"`
	CurrentPage int       `json:"currentPage"`
}
