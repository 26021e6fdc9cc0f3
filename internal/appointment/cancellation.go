package appointment

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/hackgods/clinic-booking/internal/docstore"
	"github.com/hackgods/clinic-booking/internal/observability/metrics"
)

// CancellationService lets a patient find and free their own bookings.
// Every operation needs both identity and phone, and every kind of
// non-match returns the same ErrLookupMismatch.
type CancellationService struct {
	store   docstore.Store
	repo    *Repository
	metrics *metrics.BookingMetrics
	logger  zerolog.Logger
}

func NewCancellationService(store docstore.Store, m *metrics.BookingMetrics, logger zerolog.Logger) *CancellationService {
	return &CancellationService{
		store:   store,
		repo:    NewRepository(store),
		metrics: m,
		logger:  logger,
	}
}

// FindBookedSlots returns the active booked slots whose stored identity
// and phone both match.
func (s *CancellationService) FindBookedSlots(ctx context.Context, centerID, identity, phone string) ([]Appointment, error) {
	ctx, span := tracer.Start(ctx, "appointment.find_booked")
	defer span.End()
	span.SetAttributes(attribute.String("clinic.center_id", centerID))

	id, ph, err := validateLookup(identity, phone)
	if err != nil {
		return nil, err
	}

	booked, err := s.repo.List(ctx, centerID, Query{Status: StatusBooked})
	if err != nil {
		return nil, err
	}

	out := make([]Appointment, 0, len(booked))
	for _, a := range booked {
		if ownedBy(a, id, ph) {
			out = append(out, a)
		}
	}
	span.SetAttributes(attribute.Int("clinic.matches", len(out)))
	return out, nil
}

// Cancel frees slotID if it is booked under identity and phone, and
// returns the slot as it was before cancelling.
func (s *CancellationService) Cancel(ctx context.Context, centerID, slotID, identity, phone string) (*Appointment, error) {
	ctx, span := tracer.Start(ctx, "appointment.cancel")
	defer span.End()
	span.SetAttributes(
		attribute.String("clinic.center_id", centerID),
		attribute.String("clinic.slot_id", slotID),
	)

	prev, err := s.cancel(ctx, centerID, slotID, identity, phone)
	s.metrics.ObserveCancel(cancelOutcome(err))
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("center_id", centerID).
		Str("appointment_id", slotID).
		Msg("appointment cancelled by patient")
	return prev, nil
}

func (s *CancellationService) cancel(ctx context.Context, centerID, slotID, identity, phone string) (*Appointment, error) {
	id, ph, err := validateLookup(identity, phone)
	if err != nil {
		return nil, err
	}
	if !docstore.ValidID(centerID) || !docstore.ValidID(slotID) {
		return nil, ErrLookupMismatch
	}

	path := docstore.AppointmentPath(centerID, slotID)
	var prev Appointment
	err = s.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		doc, err := tx.Get(ctx, path)
		if errors.Is(err, docstore.ErrNotFound) {
			return ErrLookupMismatch
		}
		if err != nil {
			return err
		}

		prev = decodeAppointment(centerID, doc)
		if prev.Status != StatusBooked || !ownedBy(prev, id, ph) {
			return ErrLookupMismatch
		}

		tx.Set(path, releaseFields(), docstore.Merge())
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrLookupMismatch) {
			return nil, ErrLookupMismatch
		}
		return nil, storeError("cancel appointment", err)
	}
	return &prev, nil
}

// Reschedule cancels the booking and hands back a draft that re-enters the
// booking flow at date and time selection. It is not atomic: the old slot
// is free before a new one is chosen.
func (s *CancellationService) Reschedule(ctx context.Context, centerID, slotID, identity, phone string) (*BookingDraft, error) {
	prev, err := s.Cancel(ctx, centerID, slotID, identity, phone)
	if err != nil {
		return nil, err
	}
	return &BookingDraft{
		CenterID:       prev.CenterID,
		ProfessionalID: prev.ProfessionalID,
		Date:           prev.Date,
		FreedSlotID:    prev.ID,
		Contact: PatientDetails{
			Name:     prev.PatientName,
			Identity: prev.PatientIdentity,
			Phone:    prev.PatientPhone,
			Email:    prev.PatientEmail,
		},
	}, nil
}

// ownedBy compares normalized stored values with the normalized lookup.
func ownedBy(a Appointment, identity, phone string) bool {
	if !a.Active {
		return false
	}
	storedID, ok := NormalizeIdentity(a.PatientIdentity)
	if !ok || storedID != identity {
		return false
	}
	storedPhone, ok := NormalizePhone(a.PatientPhone)
	return ok && storedPhone == phone
}

func cancelOutcome(err error) string {
	var verr *ValidationError
	switch {
	case err == nil:
		return "cancelled"
	case errors.As(err, &verr):
		return "validation_failed"
	case errors.Is(err, ErrLookupMismatch):
		return "mismatch"
	default:
		return "error"
	}
}
