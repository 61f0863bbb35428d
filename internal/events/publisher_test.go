package events

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/ukydev/fleet-registry/internal/models"
)

// recordingPublisher keeps every published event.
type recordingPublisher struct {
	mu     sync.Mutex
	events []string
	err    error
}

func (r *recordingPublisher) Publish(_ context.Context, event string, _ models.VehicleEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return r.err
}

func TestTopic(t *testing.T) {
	assert.Equal(t, "fleet/vehiculo/creado", Topic("fleet", models.EventVehicleCreated))
	assert.Equal(t, "fleet/vehiculo/actualizado", Topic("fleet/", models.EventVehicleUpdated))
	assert.Equal(t, "vehiculo/creado", Topic("", models.EventVehicleCreated))
}

func TestFanout_ContinuesPastFailures(t *testing.T) {
	failing := &recordingPublisher{err: errors.New("broker down")}
	ok := &recordingPublisher{}

	f := Fanout{failing, nil, ok}
	err := f.Publish(context.Background(), models.EventVehicleCreated, models.VehicleEvent{})

	assert.NoError(t, err)
	assert.Equal(t, []string{models.EventVehicleCreated}, failing.events)
	assert.Equal(t, []string{models.EventVehicleCreated}, ok.events)
}
