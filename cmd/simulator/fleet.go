package main

import (
	"bytes"
	"context"
	"math"
	"math/rand"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-registry/internal/client"
	"github.com/ukydev/fleet-registry/internal/compliance"
	"github.com/ukydev/fleet-registry/internal/models"
)

const missingDocChance = 0.1

// vehicleState is the simulator's view of one registered vehicle.
type vehicleState struct {
	ID       string
	Vehicle  models.Vehicle
	SpeedKmh float64
	Route    []models.Location
	Leg      int
	LegKm    float64 // km along the current leg
}

type simulator struct {
	api    *client.Client
	rng    *rand.Rand
	now    func() time.Time
	states []*vehicleState

	// per-tick probabilities
	statusChance float64
	renewChance  float64
}

func newSimulator(api *client.Client, rng *rand.Rand) *simulator {
	return &simulator{api: api, rng: rng, now: time.Now, statusChance: 0.03, renewChance: 0.25}
}

// newVehicle builds a random registration payload with document uploads.
// Each watched category gets an expiry between two months ago and a year
// ahead, so a fresh fleet shows every compliance status.
func (s *simulator) newVehicle() (models.VehiclePayload, []client.Upload) {
	spec := catalog[s.rng.Intn(len(catalog))]
	odometer := float64(5000 + s.rng.Intn(200000))
	start := jitterLocation(s.rng, cities[s.rng.Intn(len(cities))], 500)
	registered := truncateDay(s.now().AddDate(-s.rng.Intn(8), -s.rng.Intn(12), 0))

	p := models.VehiclePayload{
		Plate:            randomPlate(s.rng),
		Brand:            spec.brand,
		Line:             spec.line,
		Model:            registered.Year(),
		Color:            []string{"blanco", "gris", "rojo", "azul"}[s.rng.Intn(4)],
		Class:            spec.class,
		FuelType:         spec.fuel,
		Odometer:         &odometer,
		Status:           models.VehicleAvailable,
		OwnerName:        owners[s.rng.Intn(len(owners))],
		RegistrationDate: &registered,
		Location:         &start,
	}

	var uploads []client.Upload
	today := truncateDay(s.now())
	for _, cat := range compliance.WatchedCategories {
		if s.rng.Float64() < missingDocChance {
			continue
		}
		expiry := today.AddDate(0, 0, s.rng.Intn(425)-60)
		uploads = append(uploads, client.Upload{
			Category: cat,
			FileName: string(cat) + ".pdf",
			Content:  bytes.NewReader(fakePDF(cat, p.Plate)),
			Expiry:   &expiry,
		})
	}
	return p, uploads
}

// createFleet registers n vehicles and returns how many succeeded.
func (s *simulator) createFleet(ctx context.Context, n int) int {
	for i := 0; i < n; i++ {
		p, uploads := s.newVehicle()
		v, err := s.api.CreateVehicle(ctx, p, uploads...)
		if err != nil {
			log.WithError(err).WithField("plate", p.Plate).Error("Failed to create vehicle")
			continue
		}
		log.WithFields(log.Fields{
			"vehicle_id": v.ID.Hex(),
			"plate":      v.Plate,
			"class":      v.Class,
			"documents":  len(v.Documents),
		}).Info("Created vehicle")
		s.states = append(s.states, &vehicleState{
			ID:       v.ID.Hex(),
			Vehicle:  *v,
			SpeedKmh: 30 + s.rng.Float64()*30,
		})
	}
	return len(s.states)
}

// planRoute sends the vehicle towards a random point around its city.
func (s *simulator) planRoute(st *vehicleState) {
	start := *st.Vehicle.Location
	end := jitterLocation(s.rng, start, 5000)
	mid := jitterLocation(s.rng, lerp(start, end, 0.5), 800)
	st.Route = []models.Location{start, mid, end}
	st.Leg = 0
	st.LegKm = 0
}

// drive advances the vehicle along its route and returns the distance covered.
func (s *simulator) drive(st *vehicleState, elapsed time.Duration) float64 {
	if len(st.Route) < 2 || st.Leg >= len(st.Route)-1 {
		s.planRoute(st)
	}
	travelled := 0.0
	remKm := st.SpeedKmh * elapsed.Hours()
	pos := *st.Vehicle.Location
	for remKm > 0 && st.Leg < len(st.Route)-1 {
		a, b := st.Route[st.Leg], st.Route[st.Leg+1]
		legLen := haversineKm(a, b)
		left := legLen - st.LegKm
		if remKm >= left {
			pos = b
			st.Leg++
			st.LegKm = 0
			remKm -= left
			travelled += left
			continue
		}
		t := 1.0
		if legLen > 0 {
			t = (st.LegKm + remKm) / legLen
		}
		pos = lerp(a, b, t)
		st.LegKm += remKm
		travelled += remKm
		remKm = 0
	}
	st.Vehicle.Location = &pos
	return travelled
}

// nextStatus occasionally moves a vehicle between service states. Vehicles
// under maintenance stop moving.
func (s *simulator) nextStatus(current models.VehicleStatus) models.VehicleStatus {
	if s.rng.Float64() >= s.statusChance {
		return current
	}
	switch current {
	case models.VehicleInService:
		if s.rng.Intn(4) == 0 {
			return models.VehicleMaintenance
		}
		return models.VehicleAvailable
	default:
		return models.VehicleInService
	}
}

// renewal picks a lapsed or lapsing document to replace with a new file
// valid for a year.
func (s *simulator) renewal(v models.Vehicle) (client.Upload, bool) {
	now := s.now()
	summary := compliance.SummarizeVehicle(v, now, compliance.NewClassifier(compliance.DefaultAlertDays))
	due := append(append([]compliance.DocumentState{}, summary.Expired...), summary.NoDate...)
	if len(due) == 0 || s.rng.Float64() >= s.renewChance {
		return client.Upload{}, false
	}
	cat := due[s.rng.Intn(len(due))].Category
	expiry := truncateDay(now).AddDate(1, 0, 0)
	return client.Upload{
		Category: cat,
		FileName: string(cat) + "-renewed.pdf",
		Content:  bytes.NewReader(fakePDF(cat, v.Plate)),
		Expiry:   &expiry,
	}, true
}

// step simulates one tick for one vehicle and pushes the result to the API.
func (s *simulator) step(ctx context.Context, st *vehicleState, elapsed time.Duration) error {
	v := st.Vehicle.Clone()
	v.Status = s.nextStatus(v.Status)

	if v.Location == nil {
		start := jitterLocation(s.rng, cities[s.rng.Intn(len(cities))], 500)
		v.Location = &start
	}
	if v.Status == models.VehicleInService {
		st.SpeedKmh += (s.rng.Float64()*2 - 1) * 1.5
		st.SpeedKmh = math.Max(15, math.Min(90, st.SpeedKmh))
		st.Vehicle.Location = v.Location
		km := s.drive(st, elapsed)
		v.Location = st.Vehicle.Location
		odo := km
		if v.Odometer != nil {
			odo += *v.Odometer
		}
		odo = math.Round(odo*10) / 10
		v.Odometer = &odo
	}

	p := models.PayloadFrom(v)
	p.Documents = nil
	var uploads []client.Upload
	if up, ok := s.renewal(v); ok {
		uploads = append(uploads, up)
	}

	updated, err := s.api.UpdateVehicle(ctx, st.ID, p, uploads...)
	if err != nil {
		return err
	}
	fields := log.Fields{"vehicle_id": st.ID, "status": updated.Status}
	if updated.Odometer != nil {
		fields["odometer"] = *updated.Odometer
	}
	for _, up := range uploads {
		fields["renewed"] = up.Category
	}
	log.WithFields(fields).Debug("Sent vehicle update")
	st.Vehicle = *updated
	return nil
}

// run ticks every vehicle until ctx ends.
func (s *simulator) run(ctx context.Context, interval time.Duration) {
	tick := time.NewTicker(interval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			for _, st := range s.states {
				if err := s.step(ctx, st, interval); err != nil {
					if ctx.Err() != nil {
						return
					}
					log.WithError(err).WithField("vehicle_id", st.ID).Warn("Failed to update vehicle")
				}
			}
		}
	}
}
