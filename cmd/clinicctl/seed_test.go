package main

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/brianvoe/gofakeit/v7"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-booking/internal/appointment"
	"github.com/hackgods/clinic-booking/internal/observability/metrics"
	"github.com/hackgods/clinic-booking/internal/patient"
	redisclient "github.com/hackgods/clinic-booking/internal/redis"
	"github.com/hackgods/clinic-booking/internal/staff"
)

func TestWorkingDaysSkipsWeekends(t *testing.T) {
	// Friday
	from := time.Date(2026, 10, 16, 18, 0, 0, 0, time.UTC)
	assert.Equal(t, []string{"2026-10-19", "2026-10-20", "2026-10-21"}, workingDays(from, 3))
}

func TestFakePatientPassesValidation(t *testing.T) {
	faker := gofakeit.New(42)
	for i := 0; i < 50; i++ {
		_, err := appointment.ValidateDetails(fakePatient(faker))
		require.NoError(t, err)
	}
}

func TestSeederRun(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	store := redisclient.NewStore(client, 5)
	logger := zerolog.Nop()
	m := metrics.NewBookingMetrics(prometheus.NewRegistry())
	staffSvc := staff.NewService(store, logger)

	s := &seeder{
		staff:    staffSvc,
		sync:     appointment.NewSynchronizer(store, m, logger),
		reserve:  appointment.NewTransactor(store, patient.NewService(store, logger), m, logger),
		location: time.UTC,
		logger:   logger,
		now:      func() time.Time { return time.Now().AddDate(0, 0, 1) },
	}

	report, err := s.Run(context.Background(), seedOptions{
		CenterID:      "demo",
		Professionals: 2,
		Days:          2,
		Bookings:      3,
		Seed:          7,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Professionals)
	assert.Equal(t, 2*2*len(seedTimes), report.Slots)
	assert.Equal(t, 3, report.Bookings)

	pros, err := staffSvc.Professionals(context.Background(), "demo", "")
	require.NoError(t, err)
	assert.Len(t, pros, 2)

	booked, err := appointment.NewRepository(store).List(context.Background(), "demo",
		appointment.Query{Status: appointment.StatusBooked})
	require.NoError(t, err)
	assert.Len(t, booked, 3)
}
