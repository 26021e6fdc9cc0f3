package patient

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-booking/internal/appointment"
	"github.com/hackgods/clinic-booking/internal/docstore"
	redisclient "github.com/hackgods/clinic-booking/internal/redis"
)

func newTestService(t *testing.T) (*Service, docstore.Store) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	store := redisclient.NewStore(client, 5)
	return NewService(store, zerolog.Nop()), store
}

func booking(id, professional, name, phone string) appointment.Appointment {
	return appointment.Appointment{
		ID:              id,
		CenterID:        "c1",
		ProfessionalID:  professional,
		Status:          appointment.StatusBooked,
		Active:          true,
		PatientName:     name,
		PatientIdentity: "11111111-1",
		PatientPhone:    phone,
	}
}

func TestEnsureForBooking_CreatesThenUpdates(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.EnsureForBooking(ctx, booking("S1", "P1", "Ana", "11112222")))

	p, err := svc.Get(ctx, "c1", "11.111.111-1")
	require.NoError(t, err)
	assert.Equal(t, "11111111-1", p.ID)
	assert.Equal(t, "P1", p.OwnerUID)
	assert.Equal(t, []string{"P1"}, p.AllowedUIDs)
	assert.Equal(t, "S1", p.LastAppointmentID)
	require.NotNil(t, p.CreatedAt)

	// a later booking with another professional keeps ownership
	require.NoError(t, svc.EnsureForBooking(ctx, booking("S7", "P2", "Ana Rojas", "33334444")))

	p, err = svc.Get(ctx, "c1", "11111111-1")
	require.NoError(t, err)
	assert.Equal(t, "P1", p.OwnerUID)
	assert.Equal(t, []string{"P1"}, p.AllowedUIDs)
	assert.Equal(t, "Ana Rojas", p.Name)
	assert.Equal(t, "33334444", p.Phone)
	assert.Equal(t, "S7", p.LastAppointmentID)
}

func TestEnsureForBooking_RejectsMissingIdentity(t *testing.T) {
	svc, _ := newTestService(t)
	b := booking("S1", "P1", "Ana", "11112222")
	b.PatientIdentity = ""
	assert.Error(t, svc.EnsureForBooking(context.Background(), b))
}

func TestSubmitIntake_MergesIntoExistingRecord(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	require.NoError(t, svc.EnsureForBooking(ctx, booking("S1", "P1", "Ana", "11112222")))

	p, err := svc.SubmitIntake(ctx, "c1", Intake{
		Name:           "Ana Rojas",
		Identity:       "11.111.111-1",
		Phone:          "+56 9 1111 2222",
		Email:          "ana@example.com",
		Commune:        "Providencia",
		BirthDate:      "1990-04-02",
		ProfessionalID: "P9",
		MedicalHistory: MedicalHistory{
			Notes:      "none",
			Conditions: []string{"asthma", " asthma ", ""},
			Allergies:  []string{"penicillin"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "P1", p.OwnerUID)
	assert.Equal(t, "S1", p.LastAppointmentID)
	assert.Equal(t, "Providencia", p.Commune)
	assert.Equal(t, []string{"asthma"}, p.MedicalHistory.Conditions)
	assert.Equal(t, []string{"penicillin"}, p.MedicalHistory.Allergies)
	assert.Equal(t, "ana@example.com", p.Email)
}

func TestSubmitIntake_NewRecordOwnedByProfessional(t *testing.T) {
	svc, _ := newTestService(t)

	p, err := svc.SubmitIntake(context.Background(), "c1", Intake{
		Name:           "Luis",
		Identity:       "12.345.678-5",
		Phone:          "33334444",
		ProfessionalID: "P2",
	})
	require.NoError(t, err)
	assert.Equal(t, "12345678-5", p.ID)
	assert.Equal(t, "P2", p.OwnerUID)
	assert.Equal(t, []string{"P2"}, p.AllowedUIDs)
}

func TestSubmitIntake_Validation(t *testing.T) {
	svc, store := newTestService(t)

	_, err := svc.SubmitIntake(context.Background(), "c1", Intake{
		Name:      "Luis",
		Identity:  "12.345.678-5",
		Phone:     "33334444",
		BirthDate: "02/04/1990",
	})
	var verr *appointment.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "birthDate")

	_, err = store.Get(context.Background(), docstore.PatientPath("c1", "12345678-5"))
	assert.ErrorIs(t, err, docstore.ErrNotFound)
}

func TestGet_NotFound(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Get(context.Background(), "c1", "11.111.111-1")
	assert.ErrorIs(t, err, ErrPatientNotFound)
}
