package appointment

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/hackgods/clinic-booking/internal/docstore"
)

var (
	ErrSlotGone          = errors.New("slot no longer exists")
	ErrSlotAlreadyBooked = errors.New("slot already booked")
	// ErrLookupMismatch covers wrong identity, wrong phone and missing
	// bookings alike.
	ErrLookupMismatch   = errors.New("cannot locate appointment")
	ErrStoreUnavailable = errors.New("appointment store unavailable")
	ErrSyncInProgress   = errors.New("sync already in progress for this center")
)

// IsBookingConflict reports whether err means the slot can no longer be
// booked and the patient should pick another one.
func IsBookingConflict(err error) bool {
	return errors.Is(err, ErrSlotGone) || errors.Is(err, ErrSlotAlreadyBooked)
}

// ValidationError lists field-level problems found before any store access.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ": " + e.Fields[k]
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = map[string]string{}
	}
	e.Fields[field] = msg
}

func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

// PartialSyncFailure reports a sync that applied only part of its writes.
// The caller must reload remote state before syncing again.
type PartialSyncFailure struct {
	Applied int
	Total   int
	Failed  []string
	Err     error
}

func (e *PartialSyncFailure) Error() string {
	return fmt.Sprintf("sync applied %d of %d writes: %v", e.Applied, e.Total, e.Err)
}

func (e *PartialSyncFailure) Unwrap() error { return e.Err }

// storeError maps backend failures onto the domain taxonomy.
func storeError(op string, err error) error {
	if errors.Is(err, docstore.ErrUnavailable) || errors.Is(err, docstore.ErrContention) {
		return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
