package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-booking/internal/api"
	"github.com/hackgods/clinic-booking/internal/appointment"
	"github.com/hackgods/clinic-booking/internal/docstore"
	"github.com/hackgods/clinic-booking/internal/flow"
	"github.com/hackgods/clinic-booking/internal/functions"
	"github.com/hackgods/clinic-booking/internal/observability/metrics"
	"github.com/hackgods/clinic-booking/internal/patient"
	redisclient "github.com/hackgods/clinic-booking/internal/redis"
	"github.com/hackgods/clinic-booking/internal/staff"
)

const secret = "client-test-secret"

func newServer(t *testing.T) (*httptest.Server, docstore.Store) {
	t.Helper()
	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rc.Close() })

	store := redisclient.NewStore(rc, 5)
	logger := zerolog.Nop()
	reg := prometheus.NewRegistry()
	m := metrics.NewBookingMetrics(reg)
	patients := patient.NewService(store, logger)

	handler := api.NewRouter(api.RouterConfig{
		Transactor:   appointment.NewTransactor(store, patients, m, logger),
		Repository:   appointment.NewRepository(store),
		Synchronizer: appointment.NewSynchronizer(store, m, logger),
		Patients:     patients,
		Staff:        staff.NewService(store, logger),
		Functions:    functions.New(appointment.NewCancellationService(store, m, logger), logger),
		Guard:        redisclient.NewSubmissionGuard(rc, 5*time.Second),
		Dependencies: map[string]api.Pinger{"store": store},
		Gatherer:     reg,
		JWTSecret:    secret,
		LookupRPS:    100,
		LookupBurst:  100,
		Logger:       logger,
	})
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	for _, id := range []string{"S1", "S2"} {
		require.NoError(t, store.Set(context.Background(), docstore.AppointmentPath("c1", id), docstore.Fields{
			"professionalId": "P1",
			"date":           "2026-10-20",
			"time":           "10:00",
			"status":         "available",
			"active":         true,
		}))
	}
	require.NoError(t, store.Set(context.Background(), docstore.ProfessionalPath("c1", "P1"), docstore.Fields{
		"name": "Ana", "role": "psychologist", "active": true,
	}))
	return srv, store
}

func token(t *testing.T) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, api.StaffClaims{
		CenterID: "c1",
		Role:     "professional",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "P1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

var ana = appointment.PatientDetails{Name: "Ana", Identity: "11.111.111-1", Phone: "11112222"}

func TestClient_CatalogAndReserve(t *testing.T) {
	srv, _ := newServer(t)
	c := New(srv.URL, WithBookingSession("sess-1"))
	ctx := context.Background()

	roles, err := c.Roles(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, []string{"psychologist"}, roles)

	pros, err := c.Professionals(ctx, "c1", "psychologist")
	require.NoError(t, err)
	require.Len(t, pros, 1)

	slots, err := c.Slots(ctx, "c1", "P1", "2026-10")
	require.NoError(t, err)
	assert.Len(t, slots, 2)

	booked, err := c.Reserve(ctx, "c1", "S1", ana)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusBooked, booked.Status)

	_, err = c.Reserve(ctx, "c1", "S1", ana)
	assert.ErrorIs(t, err, appointment.ErrSlotAlreadyBooked)

	_, err = c.Reserve(ctx, "c1", "gone", ana)
	assert.ErrorIs(t, err, appointment.ErrSlotGone)

	_, err = c.Reserve(ctx, "c1", "S2", appointment.PatientDetails{Name: "Ana", Identity: "bad", Phone: "11112222"})
	var verr *appointment.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Fields, "identity")
}

func TestClient_PatientFunctions(t *testing.T) {
	srv, _ := newServer(t)
	c := New(srv.URL)
	ctx := context.Background()

	_, err := c.Reserve(ctx, "c1", "S1", ana)
	require.NoError(t, err)

	found, err := c.ListPatientAppointments(ctx, "c1", ana.Identity, ana.Phone)
	require.NoError(t, err)
	require.Len(t, found, 1)

	err = c.CancelPatientAppointment(ctx, "c1", "S1", ana.Identity, "99999999")
	assert.ErrorIs(t, err, appointment.ErrLookupMismatch)

	_, err = c.ListPatientAppointments(ctx, "c1", ana.Identity, "")
	var verr *appointment.ValidationError
	require.True(t, errors.As(err, &verr))

	require.NoError(t, c.CancelPatientAppointment(ctx, "c1", "S1", ana.Identity, ana.Phone))
}

func TestClient_StaffSchedule(t *testing.T) {
	srv, store := newServer(t)
	ctx := context.Background()

	_, err := New(srv.URL).LoadAppointments(ctx, "c1", "", "2026-10-20")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)

	c := New(srv.URL, WithStaffToken(token(t)))
	slots, err := c.LoadAppointments(ctx, "c1", "", "2026-10-20")
	require.NoError(t, err)
	require.Len(t, slots, 2)

	res, err := c.SyncAppointments(ctx, "c1", appointment.SyncRequest{KnownIDs: []string{"S1", "S2"}, Local: slots[:1]})
	require.NoError(t, err)
	assert.Equal(t, []string{"S2"}, res.Deactivated)

	doc, err := store.Get(ctx, docstore.AppointmentPath("c1", "S2"))
	require.NoError(t, err)
	active, _ := doc.Bool("active")
	assert.False(t, active)
}

func TestClient_DecodesPartialSyncFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"partial_sync_failure","applied":3,"total":5,"failed":["centers/c1/appointments/X"]}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL).SyncAppointments(context.Background(), "c1", appointment.SyncRequest{})
	var partial *appointment.PartialSyncFailure
	require.True(t, errors.As(err, &partial))
	assert.Equal(t, 3, partial.Applied)
	assert.Equal(t, 5, partial.Total)
	assert.ErrorIs(t, err, appointment.ErrStoreUnavailable)
}

func TestClient_UnreachableServerIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New(url).Reserve(context.Background(), "c1", "S1", ana)
	assert.ErrorIs(t, err, appointment.ErrStoreUnavailable)
}

func TestClient_DrivesBookingFlow(t *testing.T) {
	srv, _ := newServer(t)
	var notices []flow.Notice
	ctrl := flow.NewController(New(srv.URL), "c1", func(n flow.Notice) { notices = append(notices, n) }, zerolog.Nop())
	ctx := context.Background()

	slots, err := New(srv.URL).Slots(ctx, "c1", "P1", "2026-10")
	require.NoError(t, err)

	require.NoError(t, ctrl.SelectRole("psychologist"))
	require.NoError(t, ctrl.SelectProfessional("P1"))
	require.NoError(t, ctrl.SelectSlot(slots[0]))
	require.NoError(t, ctrl.UpdateContact(ana))
	ctrl.HandleBookingConfirm(ctx)

	require.Equal(t, flow.StepConfirmed, ctrl.State().Step)
	require.NotEmpty(t, notices)
	assert.Equal(t, flow.LevelSuccess, notices[len(notices)-1].Level)

	ctrl.HandleLookupAppointments(ctx, ana.Identity, ana.Phone)
	require.Len(t, ctrl.LookupResults(), 1)
	ctrl.CancelPatientAppointment(ctx, ctrl.LookupResults()[0])
	assert.Equal(t, "Your appointment was cancelled", notices[len(notices)-1].Message)
}
