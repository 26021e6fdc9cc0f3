package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/hackgods/clinic-booking/internal/docstore"
	"github.com/hackgods/clinic-booking/internal/observability/metrics"
)

var tracer = otel.Tracer("clinic.internal.appointment")

// PatientRecorder keeps the patient registry in step with bookings.
type PatientRecorder interface {
	EnsureForBooking(ctx context.Context, booked Appointment) error
}

// Transactor reserves slots. The store transaction is the only thing that
// decides who gets a slot; there is no application-level lock.
type Transactor struct {
	store    docstore.Store
	repo     *Repository
	patients PatientRecorder
	metrics  *metrics.BookingMetrics
	logger   zerolog.Logger
}

func NewTransactor(store docstore.Store, patients PatientRecorder, m *metrics.BookingMetrics, logger zerolog.Logger) *Transactor {
	return &Transactor{
		store:    store,
		repo:     NewRepository(store),
		patients: patients,
		metrics:  m,
		logger:   logger,
	}
}

// Reserve books slotID for the patient. Conflicts come back as ErrSlotGone
// or ErrSlotAlreadyBooked and are never retried here.
func (t *Transactor) Reserve(ctx context.Context, centerID, slotID string, details PatientDetails) (*Appointment, error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "appointment.reserve")
	defer span.End()
	span.SetAttributes(
		attribute.String("clinic.center_id", centerID),
		attribute.String("clinic.slot_id", slotID),
	)

	booked, err := t.reserve(ctx, centerID, slotID, details)
	outcome := reserveOutcome(err)
	t.metrics.ObserveReserve(outcome, time.Since(start).Seconds())
	span.SetAttributes(attribute.String("clinic.outcome", outcome))
	if err != nil {
		if !IsBookingConflict(err) {
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
		}
		return nil, err
	}

	t.ensurePatient(ctx, *booked)
	return booked, nil
}

func (t *Transactor) reserve(ctx context.Context, centerID, slotID string, details PatientDetails) (*Appointment, error) {
	d, err := ValidateDetails(details)
	if err != nil {
		return nil, err
	}
	if !docstore.ValidID(centerID) || !docstore.ValidID(slotID) {
		return nil, ErrSlotGone
	}

	path := docstore.AppointmentPath(centerID, slotID)
	var slot Appointment
	err = t.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		doc, err := tx.Get(ctx, path)
		if errors.Is(err, docstore.ErrNotFound) {
			return ErrSlotGone
		}
		if err != nil {
			return err
		}

		slot = decodeAppointment(centerID, doc)
		if !slot.Active {
			return ErrSlotGone
		}
		if slot.Status != StatusAvailable {
			return ErrSlotAlreadyBooked
		}

		tx.Set(path, bookingFields(d, d.Identity), docstore.Merge())
		return nil
	})
	if err != nil {
		if IsBookingConflict(err) {
			return nil, err
		}
		return nil, storeError("reserve slot", err)
	}

	if fresh, err := t.repo.Get(ctx, centerID, slotID); err == nil {
		return fresh, nil
	}

	// the booking committed; report what was written even if the re-read failed
	now := time.Now().UTC()
	slot.Status = StatusBooked
	slot.PatientName = d.Name
	slot.PatientIdentity = d.Identity
	slot.PatientPhone = d.Phone
	slot.PatientEmail = d.Email
	slot.PatientID = d.Identity
	slot.BookedAt = &now
	return &slot, nil
}

// ensurePatient is best-effort: the booking already committed, so a failure
// is logged and counted but never reported to the patient.
func (t *Transactor) ensurePatient(ctx context.Context, booked Appointment) {
	if t.patients == nil {
		return
	}
	if err := t.patients.EnsureForBooking(ctx, booked); err != nil {
		t.metrics.PatientEnsureFailed()
		t.logger.Warn().
			Err(err).
			Str("center_id", booked.CenterID).
			Str("appointment_id", booked.ID).
			Msg("failed to record patient for booking")
	}
}

func reserveOutcome(err error) string {
	var verr *ValidationError
	switch {
	case err == nil:
		return "confirmed"
	case errors.As(err, &verr):
		return "validation_failed"
	case errors.Is(err, ErrSlotGone):
		return "slot_gone"
	case errors.Is(err, ErrSlotAlreadyBooked):
		return "slot_already_booked"
	case errors.Is(err, ErrStoreUnavailable):
		return "store_unavailable"
	default:
		return "error"
	}
}
