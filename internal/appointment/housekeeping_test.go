package appointment

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-booking/internal/docstore"
)

func TestHousekeeper_DeactivatesPastAvailableSlots(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, docstore.CenterPath(testCenter), docstore.Fields{"name": "Centro Uno"}))

	seedSlot(t, store, "past", docstore.Fields{fieldDate: "2026-10-18"})
	seedSlot(t, store, "pastBooked", docstore.Fields{fieldDate: "2026-10-18"})
	seedSlot(t, store, "today", docstore.Fields{fieldDate: "2026-10-19"})
	bookAna(t, store, "pastBooked")

	santiago := time.FixedZone("CLT", -3*60*60)
	hk := NewHousekeeper(store, santiago, nil, nopLogger())
	// 02:00 UTC on the 20th is still the 19th in Santiago
	hk.now = func() time.Time { return time.Date(2026, 10, 20, 2, 0, 0, 0, time.UTC) }

	n, err := hk.DeactivatePastSlots(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	active, _ := getDoc(t, store, "past").Bool(fieldActive)
	assert.False(t, active)
	active, _ = getDoc(t, store, "pastBooked").Bool(fieldActive)
	assert.True(t, active)
	active, _ = getDoc(t, store, "today").Bool(fieldActive)
	assert.True(t, active)
}

func TestHousekeeper_NoCenters(t *testing.T) {
	store, _ := setupStore(t)
	hk := NewHousekeeper(store, nil, nil, nopLogger())

	n, err := hk.DeactivatePastSlots(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestHousekeeper_SweepsCentersCreatedBySync(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	_, err := NewSynchronizer(store, nil, nopLogger()).Sync(ctx, testCenter, SyncRequest{
		Local: []Appointment{{ID: "old", ProfessionalID: "P1", Date: "2020-01-01", Time: "09:00"}},
	})
	require.NoError(t, err)

	hk := NewHousekeeper(store, time.UTC, nil, nopLogger())
	n, err := hk.DeactivatePastSlots(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	active, _ := getDoc(t, store, "old").Bool(fieldActive)
	assert.False(t, active)
}
