package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-booking/internal/appointment"
	"github.com/hackgods/clinic-booking/internal/staff"
)

func scheduleHandler(syncer *appointment.Synchronizer, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims := StaffFromContext(r.Context())
		q := r.URL.Query()
		professionalID := q.Get("professionalId")
		if professionalID == "" {
			professionalID = claims.Subject
		}

		slots, err := syncer.Load(r.Context(), claims.CenterID, professionalID, q.Get("date"))
		if err != nil {
			handleError(w, logger, err)
			return
		}
		ids := make([]string, len(slots))
		for i, a := range slots {
			ids[i] = a.ID
		}
		writeJSON(w, http.StatusOK, ScheduleResponse{
			Appointments: slots,
			KnownIDs:     ids,
			Syncing:      syncer.Syncing(claims.CenterID),
		})
	}
}

func syncHandler(syncer *appointment.Synchronizer, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims := StaffFromContext(r.Context())
		var req appointment.SyncRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		res, err := syncer.Sync(r.Context(), claims.CenterID, req)
		if err != nil {
			handleError(w, logger, err)
			return
		}
		logger.Info().
			Str("center_id", claims.CenterID).
			Str("staff_uid", claims.Subject).
			Int("upserted", len(res.Upserted)).
			Int("deactivated", len(res.Deactivated)).
			Msg("schedule synced")
		writeJSON(w, http.StatusOK, res)
	}
}

func createInviteHandler(svc *staff.Service, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims := StaffFromContext(r.Context())
		var req staff.InviteRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		req.CreatedBy = claims.Subject

		inv, err := svc.CreateInvite(r.Context(), claims.CenterID, req)
		if err != nil {
			handleError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, inv)
	}
}

func deactivateProfessionalHandler(svc *staff.Service, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims := StaffFromContext(r.Context())
		if err := svc.Deactivate(r.Context(), claims.CenterID, chi.URLParam(r, "uid"), claims.Subject); err != nil {
			handleError(w, logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
