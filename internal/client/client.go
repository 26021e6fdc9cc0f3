// Package client talks to the clinic API over HTTP and turns error
// responses back into the domain errors the server started from.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hackgods/clinic-booking/internal/appointment"
	"github.com/hackgods/clinic-booking/internal/flow"
	"github.com/hackgods/clinic-booking/internal/functions"
	redisclient "github.com/hackgods/clinic-booking/internal/redis"
	"github.com/hackgods/clinic-booking/internal/staff"
)

// APIError is an error response with no domain equivalent.
type APIError struct {
	Status  int
	Code    string
	Details string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d %s: %s", e.Status, e.Code, e.Details)
}

type Client struct {
	baseURL string
	http    *http.Client
	token   string
	session string
}

var _ flow.Backend = (*Client)(nil)

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithStaffToken sets the bearer token sent on /staff routes.
func WithStaffToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithBookingSession tags reservations so that duplicates are refused
// while the first is in flight.
func WithBookingSession(session string) Option {
	return func(c *Client) { c.session = session }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Roles(ctx context.Context, centerID string) ([]string, error) {
	var resp struct {
		Roles []string `json:"roles"`
	}
	err := c.do(ctx, http.MethodGet, "/centers/"+url.PathEscape(centerID)+"/roles", nil, &resp)
	return resp.Roles, err
}

func (c *Client) Professionals(ctx context.Context, centerID, role string) ([]staff.Professional, error) {
	var resp struct {
		Professionals []staff.Professional `json:"professionals"`
	}
	path := "/centers/" + url.PathEscape(centerID) + "/professionals"
	if role != "" {
		path += "?role=" + url.QueryEscape(role)
	}
	err := c.do(ctx, http.MethodGet, path, nil, &resp)
	return resp.Professionals, err
}

func (c *Client) Slots(ctx context.Context, centerID, professionalID, month string) ([]appointment.Appointment, error) {
	var resp struct {
		Slots []appointment.Appointment `json:"slots"`
	}
	path := fmt.Sprintf("/centers/%s/professionals/%s/slots?month=%s",
		url.PathEscape(centerID), url.PathEscape(professionalID), url.QueryEscape(month))
	err := c.do(ctx, http.MethodGet, path, nil, &resp)
	return resp.Slots, err
}

func (c *Client) Reserve(ctx context.Context, centerID, slotID string, details appointment.PatientDetails) (*appointment.Appointment, error) {
	var resp struct {
		Appointment *appointment.Appointment `json:"appointment"`
	}
	path := fmt.Sprintf("/centers/%s/appointments/%s/reserve", url.PathEscape(centerID), url.PathEscape(slotID))
	if err := c.do(ctx, http.MethodPost, path, details, &resp); err != nil {
		return nil, err
	}
	return resp.Appointment, nil
}

func (c *Client) ListPatientAppointments(ctx context.Context, centerID, identity, phone string) ([]appointment.Appointment, error) {
	var resp functions.ListResponse
	req := functions.ListRequest{CenterID: centerID, Identity: identity, Phone: phone}
	if err := c.do(ctx, http.MethodPost, "/functions/"+functions.NameListPatientAppointments, req, &resp); err != nil {
		return nil, err
	}
	return resp.Appointments, nil
}

func (c *Client) CancelPatientAppointment(ctx context.Context, centerID, appointmentID, identity, phone string) error {
	var resp functions.CancelResponse
	req := functions.CancelRequest{CenterID: centerID, AppointmentID: appointmentID, Identity: identity, Phone: phone}
	return c.do(ctx, http.MethodPost, "/functions/"+functions.NameCancelPatientAppointment, req, &resp)
}

// LoadAppointments reads the staff working copy. The center comes from the
// staff token, so centerID is not sent.
func (c *Client) LoadAppointments(ctx context.Context, _ string, professionalID, date string) ([]appointment.Appointment, error) {
	var resp struct {
		Appointments []appointment.Appointment `json:"appointments"`
	}
	q := url.Values{}
	if professionalID != "" {
		q.Set("professionalId", professionalID)
	}
	if date != "" {
		q.Set("date", date)
	}
	path := "/staff/appointments"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	err := c.do(ctx, http.MethodGet, path, nil, &resp)
	return resp.Appointments, err
}

func (c *Client) SyncAppointments(ctx context.Context, _ string, req appointment.SyncRequest) (*appointment.SyncResult, error) {
	var resp appointment.SyncResult
	if err := c.do(ctx, http.MethodPut, "/staff/appointments/sync", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" && strings.HasPrefix(path, "/staff/") {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.session != "" && strings.HasSuffix(path, "/reserve") {
		req.Header.Set("X-Booking-Session", c.session)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %w", appointment.ErrStoreUnavailable, method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return decodeError(resp.StatusCode, raw)
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

type errorBody struct {
	Error   json.RawMessage   `json:"error"`
	Details string            `json:"details"`
	Fields  map[string]string `json:"fields"`
	Applied int               `json:"applied"`
	Total   int               `json:"total"`
	Failed  []string          `json:"failed"`
}

func decodeError(status int, raw []byte) error {
	var body errorBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return &APIError{Status: status, Code: http.StatusText(status), Details: strings.TrimSpace(string(raw))}
	}

	var code string
	if err := json.Unmarshal(body.Error, &code); err != nil {
		// remote functions nest the error object
		var ferr functions.Error
		if err := json.Unmarshal(body.Error, &ferr); err != nil {
			return &APIError{Status: status, Details: string(raw)}
		}
		return functionError(status, &ferr)
	}

	switch code {
	case "validation_failed":
		return &appointment.ValidationError{Fields: body.Fields}
	case "slot_gone":
		return appointment.ErrSlotGone
	case "slot_already_booked":
		return appointment.ErrSlotAlreadyBooked
	case "submission_in_progress":
		return redisclient.ErrSubmissionInFlight
	case "appointment_not_found":
		return appointment.ErrLookupMismatch
	case "partial_sync_failure":
		return &appointment.PartialSyncFailure{
			Applied: body.Applied,
			Total:   body.Total,
			Failed:  body.Failed,
			Err:     appointment.ErrStoreUnavailable,
		}
	case "store_unavailable":
		return appointment.ErrStoreUnavailable
	default:
		return &APIError{Status: status, Code: code, Details: body.Details}
	}
}

func functionError(status int, ferr *functions.Error) error {
	switch ferr.Code {
	case functions.CodeInvalidArgument:
		return &appointment.ValidationError{Fields: ferr.Fields}
	case functions.CodeNotFound:
		return appointment.ErrLookupMismatch
	case functions.CodeUnavailable:
		return appointment.ErrStoreUnavailable
	default:
		return &APIError{Status: status, Code: string(ferr.Code), Details: ferr.Message}
	}
}
