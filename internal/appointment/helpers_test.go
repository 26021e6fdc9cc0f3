package appointment

import (
	"context"
	"strconv"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-booking/internal/docstore"
	redisclient "github.com/hackgods/clinic-booking/internal/redis"
	"github.com/hackgods/clinic-booking/internal/rut"
)

const testCenter = "c1"

func setupStore(t *testing.T) (docstore.Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return redisclient.NewStore(client, 5), mr
}

func seedSlot(t *testing.T, store docstore.Store, id string, fields docstore.Fields) {
	t.Helper()
	doc := docstore.Fields{
		fieldCenterID:       testCenter,
		fieldProfessionalID: "P1",
		fieldDate:           "2026-10-20",
		fieldTime:           "10:00",
		fieldStatus:         string(StatusAvailable),
		fieldActive:         true,
	}
	for k, v := range fields {
		doc[k] = v
	}
	require.NoError(t, store.Set(context.Background(), docstore.AppointmentPath(testCenter, id), doc))
}

func getDoc(t *testing.T, store docstore.Store, id string) *docstore.Document {
	t.Helper()
	doc, err := store.Get(context.Background(), docstore.AppointmentPath(testCenter, id))
	require.NoError(t, err)
	return doc
}

// validIdentity builds a distinct, checksum-valid RUT.
func validIdentity(n int) string {
	body := 10000000 + n
	return strconv.Itoa(body) + "-" + rut.CheckDigit(body)
}

func ana() PatientDetails {
	return PatientDetails{
		Name:     "Ana Rojas",
		Identity: "11.111.111-1",
		Phone:    "11112222",
		Email:    "ana@example.com",
	}
}

func nopLogger() zerolog.Logger { return zerolog.Nop() }
