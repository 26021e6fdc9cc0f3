package main

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-booking/internal/appointment"
	"github.com/hackgods/clinic-booking/internal/flow"
)

// serialBackend confirms the first reservation of each slot, like the
// booking transaction does.
type serialBackend struct {
	mu     sync.Mutex
	booked map[string]bool
}

func (b *serialBackend) Reserve(_ context.Context, _, slotID string, details appointment.PatientDetails) (*appointment.Appointment, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.booked[slotID] {
		return nil, appointment.ErrSlotAlreadyBooked
	}
	b.booked[slotID] = true
	return &appointment.Appointment{ID: slotID, Status: appointment.StatusBooked, PatientIdentity: details.Identity}, nil
}

func (b *serialBackend) ListPatientAppointments(context.Context, string, string, string) ([]appointment.Appointment, error) {
	return []appointment.Appointment{{ID: "x"}}, nil
}

func (b *serialBackend) CancelPatientAppointment(context.Context, string, string, string, string) error {
	return nil
}

func (b *serialBackend) LoadAppointments(context.Context, string, string, string) ([]appointment.Appointment, error) {
	return nil, nil
}

func (b *serialBackend) SyncAppointments(context.Context, string, appointment.SyncRequest) (*appointment.SyncResult, error) {
	return &appointment.SyncResult{}, nil
}

func poolSlots(ids ...string) []PoolSlot {
	out := make([]PoolSlot, 0, len(ids))
	for _, id := range ids {
		out = append(out, PoolSlot{
			Role: "psychologist",
			Slot: appointment.Appointment{
				ID: id, ProfessionalID: "P1", Date: "2026-10-20", Time: "10:00",
				Status: appointment.StatusAvailable, Active: true,
			},
		})
	}
	return out
}

func TestSimulator_NoSlotConfirmedTwice(t *testing.T) {
	shared := &serialBackend{booked: map[string]bool{}}
	sim := &Simulator{
		config: SimConfig{CenterID: "c1", Duration: 2 * time.Second, Workers: 8, LookupRatio: 0.2},
		logger: zerolog.Nop(),
		pool:   NewSlotPool(poolSlots("S1", "S2", "S3", "S4")),
		newBackend: func(string) flow.Backend {
			return shared
		},
	}

	sim.Run(context.Background())

	assert.Empty(t, sim.Oversold())
	assert.Equal(t, 4, sim.pool.ConfirmedCount())
	assert.Equal(t, int64(4), sim.metrics.Reserve.Success)
	assert.Zero(t, sim.metrics.Reserve.Error)

	var out bytes.Buffer
	sim.PrintReport(&out)
	assert.Contains(t, out.String(), "Slots: 4, confirmed: 4, oversold: 0")
}

func TestSlotPool_Oversold(t *testing.T) {
	pool := NewSlotPool(poolSlots("S1", "S2"))
	pool.Confirm("S1", appointment.PatientDetails{Identity: "1-9"})
	pool.Confirm("S2", appointment.PatientDetails{Identity: "2-7"})
	pool.Confirm("S2", appointment.PatientDetails{Identity: "3-5"})
	assert.Equal(t, []string{"S2"}, pool.Oversold())
}

func TestOperationMetrics_Stats(t *testing.T) {
	var om OperationMetrics
	for i := 1; i <= 100; i++ {
		om.Record(time.Duration(i)*time.Millisecond, i%2 == 0, i%2 == 1)
	}
	avg, min, max, p50, p95 := om.Stats()
	assert.Equal(t, 50500*time.Microsecond, avg)
	assert.Equal(t, time.Millisecond, min)
	assert.Equal(t, 100*time.Millisecond, max)
	assert.Equal(t, 51*time.Millisecond, p50)
	assert.Equal(t, 96*time.Millisecond, p95)
	assert.Equal(t, int64(50), om.Conflict)
}

func TestFakePatientIsValid(t *testing.T) {
	faker := gofakeit.New(1)
	for i := 0; i < 50; i++ {
		_, err := appointment.ValidateDetails(fakePatient(faker))
		require.NoError(t, err)
	}
}
