package api

import (
	"encoding/json"
	"net/http"

	"github.com/hackgods/clinic-booking/internal/appointment"
	"github.com/hackgods/clinic-booking/internal/staff"
)

type ErrorResponse struct {
	Error   string            `json:"error"`
	Details string            `json:"details,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`

	// set on partial_sync_failure
	Applied int      `json:"applied,omitempty"`
	Total   int      `json:"total,omitempty"`
	Failed  []string `json:"failed,omitempty"`
}

type AppointmentResponse struct {
	Appointment *appointment.Appointment `json:"appointment"`
}

type SlotsResponse struct {
	Slots []appointment.Appointment `json:"slots"`
}

type RolesResponse struct {
	Roles []string `json:"roles"`
}

type ProfessionalsResponse struct {
	Professionals []staff.Professional `json:"professionals"`
}

// ScheduleResponse is a staff working copy. KnownIDs go back unchanged in
// the next sync request.
type ScheduleResponse struct {
	Appointments []appointment.Appointment `json:"appointments"`
	KnownIDs     []string                  `json:"knownIds"`
	Syncing      bool                      `json:"syncing"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	return dec.Decode(v)
}
