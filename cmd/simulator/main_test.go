package main

import (
	"encoding/json"
	"io"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/fleet-registry/internal/client"
	"github.com/ukydev/fleet-registry/internal/compliance"
	"github.com/ukydev/fleet-registry/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var simNow = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

// fakeAPI keeps vehicles in memory and accepts the multipart writes the
// client sends.
type fakeAPI struct {
	mu       sync.Mutex
	vehicles map[string]models.Vehicle
	updates  int
	uploads  []string
}

func newFakeAPI(t *testing.T) (*fakeAPI, *client.Client) {
	t.Helper()
	api := &fakeAPI{vehicles: make(map[string]models.Vehicle)}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	return api, client.New(srv.URL, "tok")
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != "Bearer tok" {
		http.Error(w, `{"error":"Authorization header required"}`, http.StatusUnauthorized)
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	var v models.Vehicle
	status := http.StatusOK
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/api/vehicles":
		v = models.Vehicle{ID: primitive.NewObjectID(), CreatedAt: simNow}
		status = http.StatusCreated
	case r.Method == http.MethodPut && strings.HasPrefix(r.URL.Path, "/api/vehicles/"):
		existing, ok := f.vehicles[strings.TrimPrefix(r.URL.Path, "/api/vehicles/")]
		if !ok {
			http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
			return
		}
		v = existing.Clone()
		f.updates++
	default:
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
		return
	}

	var p models.VehiclePayload
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := json.Unmarshal([]byte(r.FormValue("vehicle")), &p); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		for field, files := range r.MultipartForm.File {
			cat := models.DocumentCategory(strings.TrimSuffix(strings.TrimPrefix(field, "documents["), "]"))
			doc := models.Document{ID: primitive.NewObjectID(), Category: cat, FileName: files[0].Filename, ObjectKey: "k", UploadedAt: simNow}
			if raw := r.FormValue("expiry[" + string(cat) + "]"); raw != "" {
				if t, ok := compliance.ParseDate(raw); ok {
					doc.ExpiryDate = &t
				}
			}
			v.Documents = append(v.Documents, doc)
			f.uploads = append(f.uploads, string(cat))
		}
	} else if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	p.ApplyTo(&v)
	f.vehicles[v.ID.Hex()] = v

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func testSimulator(api *client.Client) *simulator {
	s := newSimulator(api, rand.New(rand.NewSource(42)))
	s.now = func() time.Time { return simNow }
	return s
}

func TestHaversineKm(t *testing.T) {
	bogota, medellin := cities[0], cities[1]
	assert.InDelta(t, 240, haversineKm(bogota, medellin), 10)
	assert.Zero(t, haversineKm(bogota, bogota))
}

func TestJitterLocation(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	base := cities[0]
	for i := 0; i < 100; i++ {
		loc := jitterLocation(rng, base, 500)
		assert.LessOrEqual(t, haversineKm(base, loc), 0.75)
	}
}

func TestRandomPlate(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		assert.Regexp(t, `^[A-Z]{3}[0-9]{3}$`, randomPlate(rng))
	}
}

func TestNewVehicle_IsValidWithDocuments(t *testing.T) {
	s := testSimulator(nil)
	for i := 0; i < 20; i++ {
		p, uploads := s.newVehicle()
		require.NoError(t, p.Validate())
		assert.LessOrEqual(t, len(uploads), len(compliance.WatchedCategories))
		for _, u := range uploads {
			require.NotNil(t, u.Expiry)
			assert.False(t, u.Expiry.Before(simNow.AddDate(0, 0, -61)))
			assert.False(t, u.Expiry.After(simNow.AddDate(0, 0, 366)))
			body, err := io.ReadAll(u.Content)
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(string(body), "%PDF"))
		}
	}
}

func TestCreateFleet(t *testing.T) {
	fake, api := newFakeAPI(t)
	s := testSimulator(api)

	assert.Equal(t, 3, s.createFleet(t.Context(), 3))
	assert.Len(t, fake.vehicles, 3)
	for _, st := range s.states {
		v := fake.vehicles[st.ID]
		assert.Equal(t, v.Plate, st.Vehicle.Plate)
		assert.Len(t, st.Vehicle.Documents, len(v.Documents))
	}
}

func TestCreateFleet_Unauthorized(t *testing.T) {
	_, api := newFakeAPI(t)
	api.SetToken("wrong")
	assert.Zero(t, testSimulator(api).createFleet(t.Context(), 2))
}

func TestDrive(t *testing.T) {
	s := testSimulator(nil)
	start := cities[0]
	st := &vehicleState{Vehicle: models.Vehicle{Location: &start}, SpeedKmh: 60}
	s.planRoute(st)
	st.Route[1] = models.Location{Lat: start.Lat + 0.5, Lon: start.Lon}

	km := s.drive(st, time.Minute)
	assert.InDelta(t, 1.0, km, 1e-9)
	assert.InDelta(t, 1.0, haversineKm(start, *st.Vehicle.Location), 0.01)
	assert.Equal(t, 0, st.Leg)
}

func TestStep_MovesInServiceVehicle(t *testing.T) {
	fake, api := newFakeAPI(t)
	s := testSimulator(api)
	s.statusChance, s.renewChance = 0, 0
	require.Equal(t, 1, s.createFleet(t.Context(), 1))
	st := s.states[0]
	st.Vehicle.Status = models.VehicleInService
	before := *st.Vehicle.Odometer

	require.NoError(t, s.step(t.Context(), st, time.Minute))
	assert.Equal(t, 1, fake.updates)
	require.NotNil(t, st.Vehicle.Odometer)
	assert.Greater(t, *st.Vehicle.Odometer, before)
	assert.Equal(t, models.VehicleInService, fake.vehicles[st.ID].Status)
}

func TestStep_MaintenanceStaysPut(t *testing.T) {
	_, api := newFakeAPI(t)
	s := testSimulator(api)
	s.statusChance, s.renewChance = 0, 0
	require.Equal(t, 1, s.createFleet(t.Context(), 1))
	st := s.states[0]
	st.Vehicle.Status = models.VehicleMaintenance
	odo, loc := *st.Vehicle.Odometer, *st.Vehicle.Location

	require.NoError(t, s.step(t.Context(), st, time.Minute))
	assert.Equal(t, odo, *st.Vehicle.Odometer)
	assert.Equal(t, loc, *st.Vehicle.Location)
}

func TestStep_RenewsLapsedDocument(t *testing.T) {
	fake, api := newFakeAPI(t)
	s := testSimulator(api)
	s.statusChance, s.renewChance = 0, 1
	require.Equal(t, 1, s.createFleet(t.Context(), 1))
	st := s.states[0]

	lapsed := simNow.AddDate(0, 0, -10)
	for i := range st.Vehicle.Documents {
		st.Vehicle.Documents[i].ExpiryDate = &lapsed
	}
	fake.uploads = nil

	require.NoError(t, s.step(t.Context(), st, time.Minute))
	require.Len(t, fake.uploads, 1)
	renewed := models.DocumentCategory(fake.uploads[0])
	assert.Contains(t, compliance.WatchedCategories, renewed)

	var found bool
	for _, d := range st.Vehicle.Documents {
		if d.Category == renewed && d.ExpiryDate != nil && d.ExpiryDate.Equal(simNow.AddDate(1, 0, 0).Truncate(24*time.Hour)) {
			found = true
		}
	}
	assert.True(t, found)
}

func TestRenewal_NothingDue(t *testing.T) {
	s := testSimulator(nil)
	s.renewChance = 1
	v := models.Vehicle{}
	valid := simNow.AddDate(1, 0, 0)
	for _, cat := range compliance.WatchedCategories {
		v.Documents = append(v.Documents, models.Document{Category: cat, ExpiryDate: &valid})
	}
	_, ok := s.renewal(v)
	assert.False(t, ok)
}

func TestNextStatus(t *testing.T) {
	s := testSimulator(nil)
	s.statusChance = 0
	assert.Equal(t, models.VehicleAvailable, s.nextStatus(models.VehicleAvailable))

	s.statusChance = 1
	assert.Equal(t, models.VehicleInService, s.nextStatus(models.VehicleAvailable))
	assert.Equal(t, models.VehicleInService, s.nextStatus(models.VehicleMaintenance))
	assert.Contains(t, []models.VehicleStatus{models.VehicleAvailable, models.VehicleMaintenance}, s.nextStatus(models.VehicleInService))
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("API_BASE_URL", "http://fleet:8080")
	t.Setenv("SIM_AUTH_TOKEN", "abc")
	t.Setenv("FLEET_SIZE", "25")
	t.Setenv("SIM_TICK_SECONDS", "0")

	cfg := loadConfig()
	assert.Equal(t, "http://fleet:8080", cfg.APIURL)
	assert.Equal(t, "abc", cfg.Token)
	assert.Equal(t, 25, cfg.FleetSize)
	assert.Equal(t, 5*time.Second, cfg.Tick)
}
