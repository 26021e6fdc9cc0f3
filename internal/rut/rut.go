// Package rut validates Chilean national identifiers (RUT).
package rut

import (
	"errors"
	"strconv"
	"strings"
)

var ErrInvalid = errors.New("rut: invalid identifier")

// Validate reports whether s is a well-formed RUT with a correct check digit.
// Dots, spaces and the dash are optional.
func Validate(s string) bool {
	_, err := Normalize(s)
	return err == nil
}

// Normalize returns the canonical "12345678-5" form of s, with an uppercase K.
func Normalize(s string) (string, error) {
	body, dv, ok := split(s)
	if !ok {
		return "", ErrInvalid
	}
	n, err := strconv.Atoi(body)
	if err != nil || n <= 0 {
		return "", ErrInvalid
	}
	if CheckDigit(n) != dv {
		return "", ErrInvalid
	}
	return strconv.Itoa(n) + "-" + dv, nil
}

// CheckDigit computes the modulo 11 verifier for body.
func CheckDigit(body int) string {
	sum, factor := 0, 2
	for n := body; n > 0; n /= 10 {
		sum += (n % 10) * factor
		factor++
		if factor > 7 {
			factor = 2
		}
	}
	switch r := 11 - sum%11; r {
	case 11:
		return "0"
	case 10:
		return "K"
	default:
		return strconv.Itoa(r)
	}
}

// Format renders a valid RUT with thousands dots, e.g. "11.111.111-1".
func Format(s string) (string, error) {
	norm, err := Normalize(s)
	if err != nil {
		return "", err
	}
	body, dv, _ := strings.Cut(norm, "-")

	var b strings.Builder
	for i, c := range body {
		if i > 0 && (len(body)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(c)
	}
	return b.String() + "-" + dv, nil
}

func split(s string) (body, dv string, ok bool) {
	clean := strings.NewReplacer(".", "", " ", "", "-", "").Replace(strings.TrimSpace(s))
	clean = strings.ToUpper(clean)
	if len(clean) < 2 || len(clean) > 10 {
		return "", "", false
	}
	body, dv = clean[:len(clean)-1], clean[len(clean)-1:]
	for _, c := range body {
		if c < '0' || c > '9' {
			return "", "", false
		}
	}
	if dv != "K" && (dv[0] < '0' || dv[0] > '9') {
		return "", "", false
	}
	return body, dv, true
}
