package flow

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/hackgods/clinic-booking/internal/appointment"
)

type Step int

const (
	StepSelectRole Step = iota
	StepSelectProfessional
	StepSelectDateTime
	StepEnterContactDetails
	StepConfirmed
)

func (s Step) String() string {
	switch s {
	case StepSelectRole:
		return "select_role"
	case StepSelectProfessional:
		return "select_professional"
	case StepSelectDateTime:
		return "select_date_time"
	case StepEnterContactDetails:
		return "enter_contact_details"
	case StepConfirmed:
		return "confirmed"
	default:
		return fmt.Sprintf("step(%d)", int(s))
	}
}

var (
	ErrWrongStep   = errors.New("action not allowed at this step")
	ErrEmptyValue  = errors.New("a selection is required")
	ErrBadDate     = errors.New("invalid date")
	ErrNotBookable = errors.New("slot is not bookable")
	ErrSubmitting  = errors.New("booking already being submitted")
)

const (
	monthLayout = "2006-01"
	dayLayout   = time.DateOnly
)

// Calendar is the date and time sub-state. Month is what is being browsed;
// Day and SlotID survive browsing other months.
type Calendar struct {
	Month    string
	Day      string
	SlotID   string
	SlotTime string
	// Excluded lists slots that lost a booking race in this session.
	Excluded []string
}

type CalendarPhase int

const (
	PhaseBrowsing CalendarPhase = iota
	PhaseDaySelected
	PhaseSlotSelected
)

// Phase derives the sub-state from what is visible in the browsed month.
func (c Calendar) Phase() CalendarPhase {
	if c.Day == "" || !c.DayInView() {
		return PhaseBrowsing
	}
	if c.SlotID == "" {
		return PhaseDaySelected
	}
	return PhaseSlotSelected
}

func (c Calendar) DayInView() bool {
	return c.Day != "" && len(c.Day) >= len(monthLayout) && c.Day[:len(monthLayout)] == c.Month
}

type Draft struct {
	Role           string
	ProfessionalID string
	Calendar       Calendar
	Contact        appointment.PatientDetails
}

// State is the whole booking flow as one value. Transitions return a new
// State and leave the receiver untouched.
type State struct {
	Step       Step
	Draft      Draft
	Submitting bool
	Err        error
	Confirmed  *appointment.Appointment
}

func Initial() State {
	return State{Step: StepSelectRole}
}

func (s State) SelectRole(role string) (State, error) {
	if s.Step != StepSelectRole {
		return s, ErrWrongStep
	}
	if role == "" {
		return s, ErrEmptyValue
	}
	if role != s.Draft.Role {
		s.Draft.ProfessionalID = ""
		s.Draft.Calendar = Calendar{}
	}
	s.Draft.Role = role
	s.Step = StepSelectProfessional
	s.Err = nil
	return s, nil
}

func (s State) SelectProfessional(professionalID string) (State, error) {
	if s.Step != StepSelectProfessional {
		return s, ErrWrongStep
	}
	if professionalID == "" {
		return s, ErrEmptyValue
	}
	if professionalID != s.Draft.ProfessionalID {
		s.Draft.Calendar = Calendar{}
	}
	s.Draft.ProfessionalID = professionalID
	s.Step = StepSelectDateTime
	s.Err = nil
	return s, nil
}

// BrowseMonth changes the visible month without dropping the selected day.
func (s State) BrowseMonth(month string) (State, error) {
	if s.Step != StepSelectDateTime {
		return s, ErrWrongStep
	}
	if _, err := time.Parse(monthLayout, month); err != nil {
		return s, ErrBadDate
	}
	s.Draft.Calendar.Month = month
	return s, nil
}

func (s State) SelectDay(day string) (State, error) {
	if s.Step != StepSelectDateTime {
		return s, ErrWrongStep
	}
	if _, err := time.Parse(dayLayout, day); err != nil {
		return s, ErrBadDate
	}
	cal := &s.Draft.Calendar
	if day != cal.Day {
		cal.SlotID = ""
		cal.SlotTime = ""
	}
	cal.Day = day
	cal.Month = day[:len(monthLayout)]
	return s, nil
}

// SelectSlot picks a slot of the selected professional and moves on to
// contact details.
func (s State) SelectSlot(slot appointment.Appointment) (State, error) {
	if s.Step != StepSelectDateTime {
		return s, ErrWrongStep
	}
	if !slot.Bookable() || slot.ProfessionalID != s.Draft.ProfessionalID || slices.Contains(s.Draft.Calendar.Excluded, slot.ID) {
		return s, ErrNotBookable
	}
	next, err := s.SelectDay(slot.Date)
	if err != nil {
		return s, err
	}
	next.Draft.Calendar.SlotID = slot.ID
	next.Draft.Calendar.SlotTime = slot.Time
	next.Step = StepEnterContactDetails
	next.Err = nil
	return next, nil
}

func (s State) UpdateContact(details appointment.PatientDetails) (State, error) {
	if s.Step != StepEnterContactDetails || s.Submitting {
		return s, ErrWrongStep
	}
	s.Draft.Contact = details
	return s, nil
}

// Back goes to the previous step and keeps everything entered so far. A
// slot that lost a booking race is dropped on the way back.
func (s State) Back() State {
	if s.Submitting || s.Step == StepSelectRole || s.Step == StepConfirmed {
		return s
	}
	if s.Step == StepEnterContactDetails && slices.Contains(s.Draft.Calendar.Excluded, s.Draft.Calendar.SlotID) {
		s.Draft.Calendar.SlotID = ""
		s.Draft.Calendar.SlotTime = ""
	}
	s.Step--
	s.Err = nil
	return s
}

func (s State) Reset() State {
	return Initial()
}

func (s State) BeginSubmit() (State, error) {
	if s.Submitting {
		return s, ErrSubmitting
	}
	if s.Step != StepEnterContactDetails || s.Draft.Calendar.SlotID == "" {
		return s, ErrWrongStep
	}
	s.Submitting = true
	s.Err = nil
	return s, nil
}

func (s State) Confirm(booked *appointment.Appointment) State {
	s.Submitting = false
	s.Err = nil
	s.Confirmed = booked
	s.Step = StepConfirmed
	return s
}

// Fail keeps the flow on the contact step. A lost race marks the slot so it
// is no longer offered.
func (s State) Fail(err error) State {
	s.Submitting = false
	s.Err = err
	if appointment.IsBookingConflict(err) {
		cal := &s.Draft.Calendar
		if !slices.Contains(cal.Excluded, cal.SlotID) {
			cal.Excluded = append(slices.Clone(cal.Excluded), cal.SlotID)
		}
	}
	return s
}

// Offerable filters slots down to what the date step may show for the
// selected day.
func (s State) Offerable(slots []appointment.Appointment) []appointment.Appointment {
	cal := s.Draft.Calendar
	out := make([]appointment.Appointment, 0, len(slots))
	for _, a := range slots {
		if !a.Bookable() || a.ProfessionalID != s.Draft.ProfessionalID {
			continue
		}
		if cal.Day != "" && a.Date != cal.Day {
			continue
		}
		if slices.Contains(cal.Excluded, a.ID) {
			continue
		}
		out = append(out, a)
	}
	return out
}

// Rescheduling starts a flow at date selection with the contact details of
// a freed booking.
func Rescheduling(d appointment.BookingDraft) State {
	s := Initial()
	s.Step = StepSelectDateTime
	s.Draft.ProfessionalID = d.ProfessionalID
	s.Draft.Contact = d.Contact
	if len(d.Date) == len(dayLayout) {
		s.Draft.Calendar.Day = d.Date
		s.Draft.Calendar.Month = d.Date[:len(monthLayout)]
	}
	return s
}
