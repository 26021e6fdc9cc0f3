package flow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-booking/internal/appointment"
)

// Backend is what the controller needs from the booking services, either
// in process or over HTTP.
type Backend interface {
	Reserve(ctx context.Context, centerID, slotID string, details appointment.PatientDetails) (*appointment.Appointment, error)
	ListPatientAppointments(ctx context.Context, centerID, identity, phone string) ([]appointment.Appointment, error)
	CancelPatientAppointment(ctx context.Context, centerID, appointmentID, identity, phone string) error
	LoadAppointments(ctx context.Context, centerID, professionalID, date string) ([]appointment.Appointment, error)
	SyncAppointments(ctx context.Context, centerID string, req appointment.SyncRequest) (*appointment.SyncResult, error)
}

type Level string

const (
	LevelSuccess Level = "success"
	LevelInfo    Level = "info"
	LevelError   Level = "error"
)

type Notice struct {
	Level   Level
	Message string
	Err     error
}

// Notifier receives every outcome of a controller action.
type Notifier func(Notice)

var ErrReloadRequired = errors.New("schedule must be reloaded before syncing again")

// Controller drives one session: the booking flow, the patient's own
// appointment lookup and a staff member's schedule working copy. Its
// actions report through the Notifier and never return errors.
type Controller struct {
	backend  Backend
	centerID string
	notify   Notifier
	logger   zerolog.Logger

	mu      sync.Mutex
	state   State
	lookup  lookup
	known   []string
	syncing bool
	stale   bool
}

type lookup struct {
	identity string
	phone    string
	results  []appointment.Appointment
}

func NewController(backend Backend, centerID string, notify Notifier, logger zerolog.Logger) *Controller {
	if notify == nil {
		notify = func(Notice) {}
	}
	return &Controller{
		backend:  backend,
		centerID: centerID,
		notify:   notify,
		logger:   logger,
		state:    Initial(),
	}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// apply runs a transition and stores the result when it is valid.
func (c *Controller) apply(fn func(State) (State, error)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	next, err := fn(c.state)
	if err != nil {
		return err
	}
	c.state = next
	return nil
}

func (c *Controller) SelectRole(role string) error {
	return c.apply(func(s State) (State, error) { return s.SelectRole(role) })
}

func (c *Controller) SelectProfessional(id string) error {
	return c.apply(func(s State) (State, error) { return s.SelectProfessional(id) })
}

func (c *Controller) BrowseMonth(month string) error {
	return c.apply(func(s State) (State, error) { return s.BrowseMonth(month) })
}

func (c *Controller) SelectDay(day string) error {
	return c.apply(func(s State) (State, error) { return s.SelectDay(day) })
}

func (c *Controller) SelectSlot(slot appointment.Appointment) error {
	return c.apply(func(s State) (State, error) { return s.SelectSlot(slot) })
}

func (c *Controller) UpdateContact(details appointment.PatientDetails) error {
	return c.apply(func(s State) (State, error) { return s.UpdateContact(details) })
}

func (c *Controller) Back() {
	_ = c.apply(func(s State) (State, error) { return s.Back(), nil })
}

func (c *Controller) ResetBooking() {
	_ = c.apply(func(s State) (State, error) { return s.Reset(), nil })
}

// HandleBookingConfirm reserves the selected slot with the entered contact
// details. While the call is in flight the state is Submitting and further
// confirmations are refused.
func (c *Controller) HandleBookingConfirm(ctx context.Context) {
	defer c.guard("booking confirm")

	c.mu.Lock()
	next, err := c.state.BeginSubmit()
	if err != nil {
		c.mu.Unlock()
		c.fail(err)
		return
	}
	c.state = next
	slotID := next.Draft.Calendar.SlotID
	details := next.Draft.Contact
	c.mu.Unlock()

	booked, err := c.backend.Reserve(ctx, c.centerID, slotID, details)

	c.mu.Lock()
	if !c.state.Submitting || c.state.Draft.Calendar.SlotID != slotID {
		// reset while in flight
		c.mu.Unlock()
		return
	}
	if err != nil {
		c.state = c.state.Fail(err)
		c.mu.Unlock()
		c.fail(err)
		return
	}
	c.state = c.state.Confirm(booked)
	c.mu.Unlock()

	c.notify(Notice{Level: LevelSuccess, Message: fmt.Sprintf("Appointment confirmed for %s at %s", booked.Date, booked.Time)})
}

// HandleLookupAppointments finds the caller's booked slots. Both identity
// and phone are required.
func (c *Controller) HandleLookupAppointments(ctx context.Context, identity, phone string) {
	defer c.guard("lookup")

	found, err := c.backend.ListPatientAppointments(ctx, c.centerID, identity, phone)
	if err != nil {
		c.fail(err)
		return
	}

	c.mu.Lock()
	c.lookup = lookup{identity: identity, phone: phone, results: found}
	c.mu.Unlock()

	if len(found) == 0 {
		c.notify(Notice{Level: LevelInfo, Message: "No upcoming appointments were found"})
		return
	}
	c.notify(Notice{Level: LevelSuccess, Message: fmt.Sprintf("%d appointment(s) found", len(found))})
}

// LookupResults returns the appointments of the last successful lookup.
func (c *Controller) LookupResults() []appointment.Appointment {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]appointment.Appointment(nil), c.lookup.results...)
}

func (c *Controller) CancelPatientAppointment(ctx context.Context, appt appointment.Appointment) {
	defer c.guard("cancel")

	if err := c.cancel(ctx, appt); err != nil {
		c.fail(err)
		return
	}
	c.notify(Notice{Level: LevelSuccess, Message: "Your appointment was cancelled"})
}

// HandleReschedule cancels the appointment and restarts the booking flow
// at date selection with the same professional and contact details.
func (c *Controller) HandleReschedule(ctx context.Context, appt appointment.Appointment) {
	defer c.guard("reschedule")

	if err := c.cancel(ctx, appt); err != nil {
		c.fail(err)
		return
	}

	c.mu.Lock()
	draft := appointment.BookingDraft{
		CenterID:       c.centerID,
		ProfessionalID: appt.ProfessionalID,
		Date:           appt.Date,
		FreedSlotID:    appt.ID,
		Contact: appointment.PatientDetails{
			Name:     appt.PatientName,
			Identity: c.lookup.identity,
			Phone:    c.lookup.phone,
			Email:    appt.PatientEmail,
		},
	}
	c.state = Rescheduling(draft)
	c.mu.Unlock()

	c.notify(Notice{Level: LevelInfo, Message: "Your previous appointment was released. Choose a new date and time"})
}

func (c *Controller) cancel(ctx context.Context, appt appointment.Appointment) error {
	c.mu.Lock()
	identity, phone := c.lookup.identity, c.lookup.phone
	c.mu.Unlock()
	if identity == "" || phone == "" {
		return appointment.ErrLookupMismatch
	}

	if err := c.backend.CancelPatientAppointment(ctx, c.centerID, appt.ID, identity, phone); err != nil {
		return err
	}

	c.mu.Lock()
	kept := c.lookup.results[:0:0]
	for _, a := range c.lookup.results {
		if a.ID != appt.ID {
			kept = append(kept, a)
		}
	}
	c.lookup.results = kept
	c.mu.Unlock()
	return nil
}

// LoadSchedule fetches a staff working copy and remembers its ids for the
// next sync.
func (c *Controller) LoadSchedule(ctx context.Context, professionalID, date string) []appointment.Appointment {
	defer c.guard("load schedule")

	slots, err := c.backend.LoadAppointments(ctx, c.centerID, professionalID, date)
	if err != nil {
		c.fail(err)
		return nil
	}

	ids := make([]string, len(slots))
	for i, a := range slots {
		ids[i] = a.ID
	}
	c.mu.Lock()
	c.known = ids
	c.stale = false
	c.mu.Unlock()
	return slots
}

// SyncAppointments writes the edited working copy. After a partial
// failure the schedule must be loaded again before the next sync.
func (c *Controller) SyncAppointments(ctx context.Context, next []appointment.Appointment) {
	defer c.guard("sync")

	c.mu.Lock()
	switch {
	case c.syncing:
		c.mu.Unlock()
		c.fail(appointment.ErrSyncInProgress)
		return
	case c.stale:
		c.mu.Unlock()
		c.fail(ErrReloadRequired)
		return
	}
	c.syncing = true
	req := appointment.SyncRequest{KnownIDs: append([]string(nil), c.known...), Local: next}
	c.mu.Unlock()

	res, err := c.backend.SyncAppointments(ctx, c.centerID, req)

	c.mu.Lock()
	c.syncing = false
	var partial *appointment.PartialSyncFailure
	switch {
	case errors.As(err, &partial):
		c.stale = true
	case err == nil:
		c.known = append([]string(nil), res.Upserted...)
		sort.Strings(c.known)
	}
	c.mu.Unlock()

	if err != nil {
		c.fail(err)
		return
	}
	c.notify(Notice{
		Level:   LevelSuccess,
		Message: fmt.Sprintf("Schedule saved: %d slot(s) written, %d removed", len(res.Upserted), len(res.Deactivated)),
	})
}

// Syncing mirrors the sync flag for disabling conflicting actions.
func (c *Controller) Syncing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.syncing
}

func (c *Controller) fail(err error) {
	c.logger.Debug().Err(err).Str("center_id", c.centerID).Msg("flow action failed")
	c.notify(Notice{Level: LevelError, Message: UserMessage(err), Err: err})
}

func (c *Controller) guard(action string) {
	r := recover()
	if r == nil {
		return
	}
	c.mu.Lock()
	c.syncing = false
	c.state.Submitting = false
	c.mu.Unlock()

	c.logger.Error().Str("action", action).Interface("panic", r).Msg("flow action panicked")
	c.notify(Notice{Level: LevelError, Message: UserMessage(nil), Err: fmt.Errorf("%s: %v", action, r)})
}

// UserMessage turns an error into text safe to show to the person at the
// screen. Lookup failures never say which factor did not match.
func UserMessage(err error) string {
	var verr *appointment.ValidationError
	var partial *appointment.PartialSyncFailure
	switch {
	case errors.As(err, &verr):
		fields := make([]string, 0, len(verr.Fields))
		for f := range verr.Fields {
			fields = append(fields, f)
		}
		sort.Strings(fields)
		return "Please check: " + strings.Join(fields, ", ")
	case appointment.IsBookingConflict(err):
		return "This slot is no longer available, please choose another"
	case errors.Is(err, appointment.ErrLookupMismatch):
		return "We could not locate that appointment"
	case errors.As(err, &partial):
		return "Only some changes were saved. Reload the schedule before trying again"
	case errors.Is(err, appointment.ErrSyncInProgress):
		return "A save is already in progress"
	case errors.Is(err, ErrReloadRequired):
		return "Reload the schedule before saving again"
	case errors.Is(err, ErrSubmitting):
		return "Your booking is being submitted"
	case errors.Is(err, ErrWrongStep):
		return "Complete the previous steps first"
	default:
		return "Something went wrong, please try again"
	}
}
