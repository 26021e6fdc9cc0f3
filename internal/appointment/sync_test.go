package appointment

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-booking/internal/docstore"
)

func ids(list []Appointment) []string {
	out := make([]string, len(list))
	for i, a := range list {
		out[i] = a.ID
	}
	return out
}

func TestSync_DeactivatesRemovedAndUpsertsLocal(t *testing.T) {
	store, _ := setupStore(t)
	seedSlot(t, store, "A", nil)
	seedSlot(t, store, "B", nil)
	seedSlot(t, store, "U", docstore.Fields{fieldProfessionalID: "P2"})
	bookAna(t, store, "B")
	unrelated := getDoc(t, store, "U")

	syncer := NewSynchronizer(store, nil, nopLogger())
	ctx := context.Background()

	loaded, err := syncer.Load(ctx, testCenter, "P1", "2026-10-20")
	require.NoError(t, err)
	require.Equal(t, []string{"A", "B"}, ids(loaded))

	modifiedA := loaded[0]
	modifiedA.Time = "11:30"
	newC := Appointment{ID: "C", ProfessionalID: "P1", Date: "2026-10-20", Time: "12:00"}

	res, err := syncer.Sync(ctx, testCenter, SyncRequest{
		KnownIDs: ids(loaded),
		Local:    []Appointment{modifiedA, newC},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "C"}, res.Upserted)
	assert.Equal(t, []string{"B"}, res.Deactivated)

	a := getDoc(t, store, "A")
	assert.Equal(t, "11:30", a.Str(fieldTime))
	assert.Equal(t, "available", a.Str(fieldStatus))
	assert.Equal(t, "P1", a.Str(fieldLegacyDoctorID))

	c := getDoc(t, store, "C")
	assert.Equal(t, "available", c.Str(fieldStatus))
	active, _ := c.Bool(fieldActive)
	assert.True(t, active)
	assert.NotEmpty(t, c.Str(fieldCreatedAt))

	b := getDoc(t, store, "B")
	active, _ = b.Bool(fieldActive)
	assert.False(t, active)
	assert.Equal(t, "booked", b.Str(fieldStatus))

	assert.Equal(t, unrelated.Fields, getDoc(t, store, "U").Fields)
}

func TestSync_NeverOverwritesBookingStatus(t *testing.T) {
	store, _ := setupStore(t)
	seedSlot(t, store, "A", nil)
	bookAna(t, store, "A")
	syncer := NewSynchronizer(store, nil, nopLogger())

	// a stale working copy still believes A is available
	stale := Appointment{ID: "A", ProfessionalID: "P1", Date: "2026-10-21", Time: "09:00", Status: StatusAvailable}
	_, err := syncer.Sync(context.Background(), testCenter, SyncRequest{KnownIDs: []string{"A"}, Local: []Appointment{stale}})
	require.NoError(t, err)

	a := getDoc(t, store, "A")
	assert.Equal(t, "booked", a.Str(fieldStatus))
	assert.Equal(t, "Ana Rojas", a.Str(fieldPatientName))
	assert.Equal(t, "2026-10-21", a.Str(fieldDate))
}

func TestSync_EmptyLocalSetDeactivatesKnown(t *testing.T) {
	store, _ := setupStore(t)
	seedSlot(t, store, "S2", nil)
	syncer := NewSynchronizer(store, nil, nopLogger())

	res, err := syncer.Sync(context.Background(), testCenter, SyncRequest{KnownIDs: []string{"S2"}})
	require.NoError(t, err)
	assert.Empty(t, res.Upserted)
	assert.Equal(t, []string{"S2"}, res.Deactivated)

	s2 := getDoc(t, store, "S2")
	active, _ := s2.Bool(fieldActive)
	assert.False(t, active)
	assert.Equal(t, "available", s2.Str(fieldStatus))

	visible, err := syncer.Load(context.Background(), testCenter, "P1", "")
	require.NoError(t, err)
	assert.Empty(t, visible)
}

func TestSync_AssignsIDsToNewSlots(t *testing.T) {
	store, _ := setupStore(t)
	syncer := NewSynchronizer(store, nil, nopLogger())

	res, err := syncer.Sync(context.Background(), testCenter, SyncRequest{
		Local: []Appointment{{ProfessionalID: "P1", Date: "2026-10-22", Time: "08:00"}},
	})
	require.NoError(t, err)
	require.Len(t, res.Upserted, 1)
	assert.NotEmpty(t, res.Upserted[0])

	doc := getDoc(t, store, res.Upserted[0])
	assert.Equal(t, testCenter, doc.Str(fieldCenterID))
}

func TestSync_RejectsInvalidWorkingCopy(t *testing.T) {
	store, _ := setupStore(t)
	seedSlot(t, store, "A", nil)
	syncer := NewSynchronizer(store, nil, nopLogger())

	_, err := syncer.Sync(context.Background(), testCenter, SyncRequest{
		KnownIDs: []string{"A"},
		Local: []Appointment{
			{ID: "X", ProfessionalID: "P1", Date: "2026-10-22", Time: "08:00"},
			{ID: "X", ProfessionalID: "P1", Date: "22/10/2026", Time: "8am"},
		},
	})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "duplicate", verr.Fields["appointments[1].id"])
	assert.Contains(t, verr.Fields, "appointments[1].date")
	assert.Contains(t, verr.Fields, "appointments[1].time")

	// nothing was written
	active, _ := getDoc(t, store, "A").Bool(fieldActive)
	assert.True(t, active)
	_, err = store.Get(context.Background(), docstore.AppointmentPath(testCenter, "X"))
	assert.ErrorIs(t, err, docstore.ErrNotFound)
}

func TestSync_ReportsPartialFailure(t *testing.T) {
	store, mr := setupStore(t)
	// a non-hash value under B's key makes its write fail
	require.NoError(t, mr.Set("doc:"+docstore.AppointmentPath(testCenter, "B"), "corrupt"))
	syncer := NewSynchronizer(store, nil, nopLogger())

	_, err := syncer.Sync(context.Background(), testCenter, SyncRequest{
		Local: []Appointment{
			{ID: "A", ProfessionalID: "P1", Date: "2026-10-22", Time: "08:00"},
			{ID: "B", ProfessionalID: "P1", Date: "2026-10-22", Time: "09:00"},
		},
	})
	var partial *PartialSyncFailure
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, 1, partial.Applied)
	assert.Equal(t, 2, partial.Total)
	assert.Equal(t, []string{docstore.AppointmentPath(testCenter, "B")}, partial.Failed)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.False(t, syncer.Syncing(testCenter))
}

type gatedStore struct {
	docstore.Store
	entered chan struct{}
	release chan struct{}
}

func (g *gatedStore) Batch() docstore.Batch {
	return &gatedBatch{Batch: g.Store.Batch(), gate: g}
}

type gatedBatch struct {
	docstore.Batch
	gate *gatedStore
}

func (b *gatedBatch) Commit(ctx context.Context) error {
	close(b.gate.entered)
	<-b.gate.release
	return b.Batch.Commit(ctx)
}

func TestSync_SyncingFlagBracketsTheRun(t *testing.T) {
	base, _ := setupStore(t)
	store := &gatedStore{Store: base, entered: make(chan struct{}), release: make(chan struct{})}
	syncer := NewSynchronizer(store, nil, nopLogger())
	assert.False(t, syncer.Syncing(testCenter))

	done := make(chan error, 1)
	go func() {
		_, err := syncer.Sync(context.Background(), testCenter, SyncRequest{
			Local: []Appointment{{ID: "A", ProfessionalID: "P1", Date: "2026-10-22", Time: "08:00"}},
		})
		done <- err
	}()

	select {
	case <-store.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("sync never reached commit")
	}
	assert.True(t, syncer.Syncing(testCenter))
	assert.False(t, syncer.Syncing("other"))

	close(store.release)
	require.NoError(t, <-done)
	assert.False(t, syncer.Syncing(testCenter))
}

func TestSync_KnownIDWithoutDocumentIsNotCreated(t *testing.T) {
	store, _ := setupStore(t)
	seedSlot(t, store, "S2", nil)
	syncer := NewSynchronizer(store, nil, nopLogger())
	ctx := context.Background()

	res, err := syncer.Sync(ctx, testCenter, SyncRequest{KnownIDs: []string{"ghost", "S2"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"S2"}, res.Deactivated)

	_, err = store.Get(ctx, docstore.AppointmentPath(testCenter, "ghost"))
	assert.ErrorIs(t, err, docstore.ErrNotFound)

	all, err := NewRepository(store).List(ctx, testCenter, Query{IncludeRetired: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"S2"}, ids(all))
}

func TestSync_RegistersCenter(t *testing.T) {
	store, _ := setupStore(t)
	syncer := NewSynchronizer(store, nil, nopLogger())
	ctx := context.Background()

	_, err := syncer.Sync(ctx, testCenter, SyncRequest{
		Local: []Appointment{{ID: "A", ProfessionalID: "P1", Date: "2026-10-22", Time: "08:00"}},
	})
	require.NoError(t, err)

	center, err := store.Get(ctx, docstore.CenterPath(testCenter))
	require.NoError(t, err)
	assert.NotEmpty(t, center.Str(fieldCreatedAt))
	assert.NotEmpty(t, center.Str(fieldUpdatedAt))
}
