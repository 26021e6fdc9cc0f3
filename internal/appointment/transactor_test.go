package appointment

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-booking/internal/docstore"
)

type recordingPatients struct {
	mu       sync.Mutex
	calls    []Appointment
	failWith error
}

func (r *recordingPatients) EnsureForBooking(_ context.Context, booked Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, booked)
	return r.failWith
}

func TestReserve_ConfirmsAvailableSlot(t *testing.T) {
	store, _ := setupStore(t)
	seedSlot(t, store, "S1", nil)
	patients := &recordingPatients{}
	tr := NewTransactor(store, patients, nil, nopLogger())

	booked, err := tr.Reserve(context.Background(), testCenter, "S1", ana())
	require.NoError(t, err)
	assert.Equal(t, StatusBooked, booked.Status)
	assert.Equal(t, "11111111-1", booked.PatientIdentity)
	assert.Equal(t, "P1", booked.ProfessionalID)
	require.NotNil(t, booked.BookedAt)

	doc := getDoc(t, store, "S1")
	assert.Equal(t, "booked", doc.Str(fieldStatus))
	assert.Equal(t, "Ana Rojas", doc.Str(fieldPatientName))
	assert.Equal(t, "11112222", doc.Str(fieldPatientPhone))
	assert.Equal(t, "11111111-1", doc.Str(fieldPatientID))
	assert.NotEmpty(t, doc.Str(fieldBookedAt))

	require.Len(t, patients.calls, 1)
	assert.Equal(t, "S1", patients.calls[0].ID)
}

func TestReserve_ValidationNeverTouchesStore(t *testing.T) {
	store, _ := setupStore(t)
	seedSlot(t, store, "S1", nil)
	tr := NewTransactor(store, nil, nil, nopLogger())

	_, err := tr.Reserve(context.Background(), testCenter, "S1", PatientDetails{
		Name:     "  ",
		Identity: "11.111.111-2",
		Phone:    "1234",
		Email:    "not-an-email",
	})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "name")
	assert.Contains(t, verr.Fields, "identity")
	assert.Contains(t, verr.Fields, "phone")
	assert.Contains(t, verr.Fields, "email")

	assert.Equal(t, "available", getDoc(t, store, "S1").Str(fieldStatus))
}

func TestReserve_Conflicts(t *testing.T) {
	store, _ := setupStore(t)
	seedSlot(t, store, "booked", docstore.Fields{fieldStatus: string(StatusBooked)})
	seedSlot(t, store, "retired", docstore.Fields{fieldActive: false})
	tr := NewTransactor(store, nil, nil, nopLogger())
	ctx := context.Background()

	_, err := tr.Reserve(ctx, testCenter, "missing", ana())
	assert.ErrorIs(t, err, ErrSlotGone)
	assert.True(t, IsBookingConflict(err))

	_, err = tr.Reserve(ctx, testCenter, "retired", ana())
	assert.ErrorIs(t, err, ErrSlotGone)

	_, err = tr.Reserve(ctx, testCenter, "booked", ana())
	assert.ErrorIs(t, err, ErrSlotAlreadyBooked)
	assert.True(t, IsBookingConflict(err))
}

func TestReserve_ConcurrentAttemptsHaveOneWinner(t *testing.T) {
	store, _ := setupStore(t)
	seedSlot(t, store, "S1", nil)
	tr := NewTransactor(store, nil, nil, nopLogger())

	const n = 10
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = tr.Reserve(context.Background(), testCenter, "S1", PatientDetails{
				Name:     "Patient",
				Identity: validIdentity(i),
				Phone:    "11112222",
			})
		}(i)
	}
	wg.Wait()

	confirmed, conflicts := 0, 0
	winner := -1
	for i, err := range errs {
		switch {
		case err == nil:
			confirmed++
			winner = i
		case errors.Is(err, ErrSlotAlreadyBooked):
			conflicts++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, confirmed)
	assert.Equal(t, n-1, conflicts)

	require.GreaterOrEqual(t, winner, 0)
	assert.Equal(t, validIdentity(winner), getDoc(t, store, "S1").Str(fieldPatientIdentity))
}

func TestReserve_PatientRecordFailureDoesNotFailBooking(t *testing.T) {
	store, _ := setupStore(t)
	seedSlot(t, store, "S1", nil)
	patients := &recordingPatients{failWith: errors.New("permission denied")}
	tr := NewTransactor(store, patients, nil, nopLogger())

	booked, err := tr.Reserve(context.Background(), testCenter, "S1", ana())
	require.NoError(t, err)
	assert.Equal(t, StatusBooked, booked.Status)
	assert.Len(t, patients.calls, 1)
}

func TestReserve_StoreUnavailable(t *testing.T) {
	store, mr := setupStore(t)
	seedSlot(t, store, "S1", nil)
	mr.Close()
	tr := NewTransactor(store, nil, nil, nopLogger())

	_, err := tr.Reserve(context.Background(), testCenter, "S1", ana())
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.False(t, IsBookingConflict(err))
}
