package api

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-booking/internal/appointment"
	"github.com/hackgods/clinic-booking/internal/docstore"
	"github.com/hackgods/clinic-booking/internal/functions"
	"github.com/hackgods/clinic-booking/internal/patient"
	redisclient "github.com/hackgods/clinic-booking/internal/redis"
	"github.com/hackgods/clinic-booking/internal/staff"
)

// handleError maps domain errors to responses. Anything unknown is logged
// and answered with a generic 500.
func handleError(w http.ResponseWriter, logger zerolog.Logger, err error) {
	var verr *appointment.ValidationError
	var partial *appointment.PartialSyncFailure
	var ferr *functions.Error

	switch {
	case errors.As(err, &ferr):
		writeJSON(w, ferr.HTTPStatus(), map[string]*functions.Error{"error": ferr})
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Error: "validation_failed", Fields: verr.Fields})
	case errors.As(err, &partial):
		logger.Error().Err(err).Int("applied", partial.Applied).Int("total", partial.Total).Msg("partial sync")
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{
			Error:   "partial_sync_failure",
			Details: "some changes were saved; reload before syncing again",
			Applied: partial.Applied,
			Total:   partial.Total,
			Failed:  partial.Failed,
		})
	case errors.Is(err, appointment.ErrSlotGone):
		writeError(w, http.StatusConflict, "slot_gone", err.Error())
	case errors.Is(err, appointment.ErrSlotAlreadyBooked):
		writeError(w, http.StatusConflict, "slot_already_booked", err.Error())
	case errors.Is(err, redisclient.ErrSubmissionInFlight):
		writeError(w, http.StatusConflict, "submission_in_progress", "this booking is already being submitted")
	case errors.Is(err, appointment.ErrLookupMismatch):
		writeError(w, http.StatusNotFound, "appointment_not_found", appointment.ErrLookupMismatch.Error())
	case errors.Is(err, appointment.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, patient.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
	case errors.Is(err, staff.ErrProfessionalNotFound):
		writeError(w, http.StatusNotFound, "professional_not_found", err.Error())
	case errors.Is(err, staff.ErrInviteNotFound):
		writeError(w, http.StatusNotFound, "invite_not_found", err.Error())
	case errors.Is(err, staff.ErrInviteUsed):
		writeError(w, http.StatusConflict, "invite_used", err.Error())
	case errors.Is(err, staff.ErrInviteExpired):
		writeError(w, http.StatusGone, "invite_expired", err.Error())
	case errors.Is(err, docstore.ErrInvalidPath):
		writeError(w, http.StatusBadRequest, "invalid_path", err.Error())
	case errors.Is(err, appointment.ErrStoreUnavailable),
		errors.Is(err, docstore.ErrUnavailable),
		errors.Is(err, docstore.ErrContention):
		logger.Warn().Err(err).Msg("store unavailable")
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", "service temporarily unavailable, try again")
	default:
		logger.Error().Err(err).Msg("unhandled error")
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}
