package appointment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-booking/internal/docstore"
)

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"11112222", "11112222", true},
		{"1111 2222", "11112222", true},
		{"911112222", "11112222", true},
		{"+56 9 1111 2222", "11112222", true},
		{"56911112222", "11112222", true},
		{"1111222", "", false},
		{"811112222", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := NormalizePhone(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidateDetails_Normalizes(t *testing.T) {
	d, err := ValidateDetails(PatientDetails{
		Name:     "  Ana Rojas ",
		Identity: "11.111.111-1",
		Phone:    "+56 9 1111 2222",
	})
	require.NoError(t, err)
	assert.Equal(t, "Ana Rojas", d.Name)
	assert.Equal(t, "11111111-1", d.Identity)
	assert.Equal(t, "11112222", d.Phone)
	assert.Empty(t, d.Email)
}

func TestDecodeAppointment_FallsBackToLegacyField(t *testing.T) {
	doc := &docstore.Document{
		ID: "S9",
		Fields: docstore.Fields{
			fieldLegacyDoctorID: "D7",
			fieldDate:           "2026-10-20",
			fieldTime:           "09:00",
		},
	}
	a := decodeAppointment(testCenter, doc)
	assert.Equal(t, "D7", a.ProfessionalID)
	assert.Equal(t, testCenter, a.CenterID)
	assert.Equal(t, StatusAvailable, a.Status)
	assert.True(t, a.Active)

	doc.Fields[fieldProfessionalID] = "P1"
	assert.Equal(t, "P1", decodeAppointment(testCenter, doc).ProfessionalID)
}
