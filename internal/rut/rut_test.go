package rut

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"11.111.111-1", true},
		{"11111111-1", true},
		{"111111111", true},
		{"12.345.678-5", true},
		{"12345678-4", false},
		{"", false},
		{"-", false},
		{"abc-1", false},
		{"1-9", true},
		{"00000000-0", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Validate(tt.in))
		})
	}
}

func TestCheckDigit(t *testing.T) {
	assert.Equal(t, "1", CheckDigit(11111111))
	assert.Equal(t, "5", CheckDigit(12345678))
	// 6*2 = 12, 11 - 12%11 = 10
	assert.Equal(t, "K", CheckDigit(6))
	// 1*2 = 2, 11 - 2 = 9
	assert.Equal(t, "9", CheckDigit(1))
	// 1*2 + 1*3 = 5, 11 - 5 = 6
	assert.Equal(t, "6", CheckDigit(11))
}

func TestNormalizeAndFormat(t *testing.T) {
	norm, err := Normalize(" 11.111.111-1 ")
	require.NoError(t, err)
	assert.Equal(t, "11111111-1", norm)

	norm, err = Normalize("6-k")
	require.NoError(t, err)
	assert.Equal(t, "6-K", norm)

	formatted, err := Format("123456785")
	require.NoError(t, err)
	assert.Equal(t, "12.345.678-5", formatted)

	_, err = Format("12345678-0")
	assert.ErrorIs(t, err, ErrInvalid)
}
