package appointment

import (
	"regexp"
	"strings"

	"github.com/hackgods/clinic-booking/internal/rut"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// NormalizePhone strips formatting and the Chilean mobile prefix (+56 9),
// returning the 8 subscriber digits.
func NormalizePhone(phone string) (string, bool) {
	var b strings.Builder
	for _, c := range phone {
		if c >= '0' && c <= '9' {
			b.WriteRune(c)
		}
	}
	digits := b.String()
	switch {
	case len(digits) == 11 && strings.HasPrefix(digits, "569"):
		digits = digits[3:]
	case len(digits) == 9 && strings.HasPrefix(digits, "9"):
		digits = digits[1:]
	}
	if len(digits) != 8 {
		return "", false
	}
	return digits, true
}

// NormalizeIdentity returns the canonical RUT form used for matching.
func NormalizeIdentity(identity string) (string, bool) {
	norm, err := rut.Normalize(identity)
	if err != nil {
		return "", false
	}
	return norm, true
}

// ValidateDetails checks and normalizes contact details.
func ValidateDetails(d PatientDetails) (PatientDetails, error) {
	var verr ValidationError
	out := PatientDetails{
		Name:  strings.TrimSpace(d.Name),
		Email: strings.TrimSpace(d.Email),
	}

	if out.Name == "" {
		verr.add("name", "required")
	}
	if id, ok := NormalizeIdentity(d.Identity); ok {
		out.Identity = id
	} else {
		verr.add("identity", "invalid RUT")
	}
	if phone, ok := NormalizePhone(d.Phone); ok {
		out.Phone = phone
	} else {
		verr.add("phone", "must have 8 digits")
	}
	if out.Email != "" && !emailPattern.MatchString(out.Email) {
		verr.add("email", "invalid address")
	}

	if err := verr.orNil(); err != nil {
		return PatientDetails{}, err
	}
	return out, nil
}

// validateLookup normalizes the two factors every patient lookup requires.
func validateLookup(identity, phone string) (string, string, error) {
	var verr ValidationError
	id, ok := NormalizeIdentity(identity)
	if !ok {
		verr.add("identity", "invalid RUT")
	}
	ph, ok := NormalizePhone(phone)
	if !ok {
		verr.add("phone", "must have 8 digits")
	}
	if err := verr.orNil(); err != nil {
		return "", "", err
	}
	return id, ph, nil
}
