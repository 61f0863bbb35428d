package models

// Location is the last known position of a vehicle.
type Location struct {
	Lat float64 `bson:"lat" json:"lat" validate:"min=-90,max=90"`
	Lon float64 `bson:"lon" json:"lon" validate:"min=-180,max=180"`
}
