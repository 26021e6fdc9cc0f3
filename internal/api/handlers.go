package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-booking/internal/appointment"
	"github.com/hackgods/clinic-booking/internal/functions"
	"github.com/hackgods/clinic-booking/internal/patient"
	redisclient "github.com/hackgods/clinic-booking/internal/redis"
	"github.com/hackgods/clinic-booking/internal/staff"
)

// BookingSessionHeader identifies one patient's booking session so that a
// double click does not submit the same reservation twice.
const BookingSessionHeader = "X-Booking-Session"

func listRolesHandler(svc *staff.Service, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roles, err := svc.Roles(r.Context(), chi.URLParam(r, "centerID"))
		if err != nil {
			handleError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, RolesResponse{Roles: roles})
	}
}

func listProfessionalsHandler(svc *staff.Service, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pros, err := svc.Professionals(r.Context(), chi.URLParam(r, "centerID"), r.URL.Query().Get("role"))
		if err != nil {
			handleError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, ProfessionalsResponse{Professionals: pros})
	}
}

func listSlotsHandler(repo *appointment.Repository, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		month := r.URL.Query().Get("month")
		if _, err := time.Parse("2006-01", month); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_month", "month must be YYYY-MM")
			return
		}

		slots, err := repo.AvailableForMonth(r.Context(), chi.URLParam(r, "centerID"), chi.URLParam(r, "professionalID"), month)
		if err != nil {
			handleError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, SlotsResponse{Slots: slots})
	}
}

func reserveHandler(tr *appointment.Transactor, guard *redisclient.SubmissionGuard, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var details appointment.PatientDetails
		if err := decodeJSON(w, r, &details); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		centerID := chi.URLParam(r, "centerID")
		slotID := chi.URLParam(r, "appointmentID")

		var booked *appointment.Appointment
		reserve := func(ctx context.Context) error {
			var err error
			booked, err = tr.Reserve(ctx, centerID, slotID, details)
			return err
		}

		var err error
		session := strings.TrimSpace(r.Header.Get(BookingSessionHeader))
		if guard != nil && session != "" {
			ran := false
			err = guard.Hold(r.Context(), session+":"+centerID+":"+slotID, func(ctx context.Context) error {
				ran = true
				return reserve(ctx)
			})
			if err != nil && !ran && !errors.Is(err, redisclient.ErrSubmissionInFlight) {
				// the guard is only a duplicate filter; book without it
				logger.Warn().Err(err).Msg("submission guard unavailable")
				err = reserve(r.Context())
			}
		} else {
			err = reserve(r.Context())
		}
		if err != nil {
			handleError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, AppointmentResponse{Appointment: booked})
	}
}

func intakeHandler(svc *patient.Service, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in patient.Intake
		if err := decodeJSON(w, r, &in); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		p, err := svc.SubmitIntake(r.Context(), chi.URLParam(r, "centerID"), in)
		if err != nil {
			handleError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func acceptInviteHandler(svc *staff.Service, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var acc staff.Acceptance
		if err := decodeJSON(w, r, &acc); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		pro, err := svc.AcceptInvite(r.Context(), chi.URLParam(r, "centerID"), chi.URLParam(r, "token"), acc)
		if err != nil {
			handleError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, pro)
	}
}

func listPatientAppointmentsHandler(fns *functions.Functions, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req functions.ListRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		resp, err := fns.ListPatientAppointments(r.Context(), req)
		if err != nil {
			handleError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func cancelPatientAppointmentHandler(fns *functions.Functions, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req functions.CancelRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		resp, err := fns.CancelPatientAppointment(r.Context(), req)
		if err != nil {
			handleError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
