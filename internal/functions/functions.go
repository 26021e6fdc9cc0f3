// Package functions holds the privileged operations patients reach without
// signing in. They are the only way a patient reads or frees a booking.
package functions

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-booking/internal/appointment"
	"github.com/hackgods/clinic-booking/internal/docstore"
)

const (
	NameListPatientAppointments  = "listPatientAppointments"
	NameCancelPatientAppointment = "cancelPatientAppointment"
)

type Code string

const (
	CodeInvalidArgument Code = "invalid-argument"
	CodeNotFound        Code = "not-found"
	CodeUnavailable     Code = "unavailable"
	CodeInternal        Code = "internal"
)

// Error is returned to callers as-is. Message is safe to display.
type Error struct {
	Code    Code              `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
	err     error
}

func (e *Error) Error() string { return string(e.Code) + ": " + e.Message }

func (e *Error) Unwrap() error { return e.err }

func (e *Error) HTTPStatus() int {
	switch e.Code {
	case CodeInvalidArgument:
		return http.StatusUnprocessableEntity
	case CodeNotFound:
		return http.StatusNotFound
	case CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

type ListRequest struct {
	CenterID string `json:"centerId"`
	Identity string `json:"identity"`
	Phone    string `json:"phone"`
}

type ListResponse struct {
	Appointments []appointment.Appointment `json:"appointments"`
}

type CancelRequest struct {
	CenterID      string `json:"centerId"`
	AppointmentID string `json:"appointmentId"`
	Identity      string `json:"identity"`
	Phone         string `json:"phone"`
}

type CancelResponse struct {
	OK bool `json:"ok"`
}

type Functions struct {
	cancellations *appointment.CancellationService
	logger        zerolog.Logger
}

func New(cancellations *appointment.CancellationService, logger zerolog.Logger) *Functions {
	return &Functions{cancellations: cancellations, logger: logger}
}

func (f *Functions) ListPatientAppointments(ctx context.Context, req ListRequest) (*ListResponse, error) {
	if !docstore.ValidID(req.CenterID) {
		return nil, invalidCenter()
	}
	found, err := f.cancellations.FindBookedSlots(ctx, req.CenterID, req.Identity, req.Phone)
	if err != nil {
		return nil, f.toError(NameListPatientAppointments, err)
	}
	if found == nil {
		found = []appointment.Appointment{}
	}
	return &ListResponse{Appointments: found}, nil
}

func (f *Functions) CancelPatientAppointment(ctx context.Context, req CancelRequest) (*CancelResponse, error) {
	if !docstore.ValidID(req.CenterID) {
		return nil, invalidCenter()
	}
	if _, err := f.cancellations.Cancel(ctx, req.CenterID, req.AppointmentID, req.Identity, req.Phone); err != nil {
		return nil, f.toError(NameCancelPatientAppointment, err)
	}
	return &CancelResponse{OK: true}, nil
}

func invalidCenter() *Error {
	return &Error{Code: CodeInvalidArgument, Message: "invalid request", Fields: map[string]string{"centerId": "required"}}
}

// toError never says whether identity, phone or the booking itself was
// the reason a lookup failed.
func (f *Functions) toError(name string, err error) *Error {
	var verr *appointment.ValidationError
	switch {
	case errors.As(err, &verr):
		return &Error{Code: CodeInvalidArgument, Message: "invalid request", Fields: verr.Fields, err: err}
	case errors.Is(err, appointment.ErrLookupMismatch):
		return &Error{Code: CodeNotFound, Message: appointment.ErrLookupMismatch.Error(), err: err}
	case errors.Is(err, appointment.ErrStoreUnavailable):
		f.logger.Warn().Err(err).Str("function", name).Msg("store unavailable")
		return &Error{Code: CodeUnavailable, Message: "service temporarily unavailable, try again", err: err}
	default:
		f.logger.Error().Err(err).Str("function", name).Msg("function failed")
		return &Error{Code: CodeInternal, Message: "internal error", err: err}
	}
}
