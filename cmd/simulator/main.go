// Command simulator registers a fleet with a running fleetd and keeps it
// busy, moving vehicles and renewing their documents as they lapse.
package main

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-registry/internal/client"
	"github.com/ukydev/fleet-registry/internal/models"
)

// Cities for realistic routes
var cities = []models.Location{
	{Lat: 4.7110, Lon: -74.0721},  // Bogotá
	{Lat: 6.2442, Lon: -75.5812},  // Medellín
	{Lat: 3.4516, Lon: -76.5320},  // Cali
	{Lat: 10.9685, Lon: -74.7813}, // Barranquilla
	{Lat: 10.3910, Lon: -75.4794}, // Cartagena
	{Lat: 7.1193, Lon: -73.1227},  // Bucaramanga
	{Lat: 4.8133, Lon: -75.6961},  // Pereira
	{Lat: 5.0703, Lon: -75.5138},  // Manizales
	{Lat: 4.4389, Lon: -75.2322},  // Ibagué
	{Lat: 7.8939, Lon: -72.5078},  // Cúcuta
}

var catalog = []struct {
	brand, line, class, fuel string
}{
	{"Chevrolet", "NPR", "camion", "diesel"},
	{"Hino", "Dutro", "camion", "diesel"},
	{"Renault", "Kangoo", "furgon", "gasolina"},
	{"Toyota", "Hilux", "camioneta", "diesel"},
	{"Mercedes-Benz", "Sprinter", "microbus", "diesel"},
	{"BYD", "T3", "furgon", "electrico"},
	{"Kia", "K2700", "camion", "diesel"},
}

var owners = []string{"Transportes Andinos SAS", "Logística del Caribe", "Carga Express Ltda", "Flota Propia"}

// simConfig is read from the environment.
type simConfig struct {
	APIURL    string
	Token     string
	Username  string
	Password  string
	FleetSize int
	Tick      time.Duration
}

func loadConfig() simConfig {
	_ = godotenv.Load()

	cfg := simConfig{
		APIURL:    os.Getenv("API_BASE_URL"),
		Token:     os.Getenv("SIM_AUTH_TOKEN"),
		Username:  os.Getenv("SIM_USERNAME"),
		Password:  os.Getenv("SIM_PASSWORD"),
		FleetSize: 10,
		Tick:      5 * time.Second,
	}
	if cfg.APIURL == "" {
		cfg.APIURL = "http://localhost:8080"
	}
	if val := os.Getenv("FLEET_SIZE"); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			cfg.FleetSize = n
		}
	}
	if v := os.Getenv("SIM_TICK_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 1 {
			cfg.Tick = time.Duration(n) * time.Second
		}
	}
	return cfg
}

func jitterLocation(rng *rand.Rand, base models.Location, meters float64) models.Location {
	latMetersPerDeg := 111320.0
	lonMetersPerDeg := 111320.0 * math.Cos(base.Lat*math.Pi/180)
	dLat := (rng.Float64()*2 - 1) * (meters / latMetersPerDeg)
	dLon := (rng.Float64()*2 - 1) * (meters / lonMetersPerDeg)
	return models.Location{Lat: base.Lat + dLat, Lon: base.Lon + dLon}
}

func haversineKm(a, b models.Location) float64 {
	R := 6371.0
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	s := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(s), math.Sqrt(1-s))
	return R * c
}

func lerp(a, b models.Location, t float64) models.Location {
	return models.Location{Lat: a.Lat + (b.Lat-a.Lat)*t, Lon: a.Lon + (b.Lon-a.Lon)*t}
}

// randomPlate returns a plate in the ABC123 format.
func randomPlate(rng *rand.Rand) string {
	b := make([]byte, 6)
	for i := 0; i < 3; i++ {
		b[i] = byte('A' + rng.Intn(26))
	}
	for i := 3; i < 6; i++ {
		b[i] = byte('0' + rng.Intn(10))
	}
	return string(b)
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// fakePDF is a tiny stand-in file for an uploaded document.
func fakePDF(cat models.DocumentCategory, plate string) []byte {
	return []byte(fmt.Sprintf("%%PDF-1.4\n%% %s %s\n%%%%EOF\n", cat, plate))
}

func main() {
	cfg := loadConfig()
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	api := client.New(cfg.APIURL, cfg.Token)
	if cfg.Token == "" && cfg.Username != "" {
		if _, err := api.Login(ctx, cfg.Username, cfg.Password); err != nil {
			log.WithError(err).Fatal("Simulator login failed")
		}
	}

	log.WithFields(log.Fields{
		"fleet_size": cfg.FleetSize,
		"api_url":    cfg.APIURL,
		"interval":   cfg.Tick,
	}).Info("Starting fleet simulation")

	sim := newSimulator(api, rand.New(rand.NewSource(time.Now().UnixNano())))
	created := sim.createFleet(ctx, cfg.FleetSize)
	log.WithField("created_vehicles", created).Info("Vehicle creation completed")
	if created == 0 {
		log.Error("No vehicles created. Ensure SIM_AUTH_TOKEN or SIM_USERNAME is valid and the API is reachable. Exiting.")
		return
	}

	log.Info("Activity simulation started")
	sim.run(ctx, cfg.Tick)
	log.Info("Simulation stopped")
}
