package appointment

import (
	"time"
)

type SlotStatus string

const (
	StatusAvailable SlotStatus = "available"
	StatusBooked    SlotStatus = "booked"
)

// Appointment is one bookable slot on a professional's calendar.
type Appointment struct {
	ID             string     `json:"id"`
	CenterID       string     `json:"centerId"`
	ProfessionalID string     `json:"professionalId"`
	Date           string     `json:"date"`
	Time           string     `json:"time"`
	Status         SlotStatus `json:"status"`
	Active         bool       `json:"active"`

	PatientName     string `json:"patientName,omitempty"`
	PatientIdentity string `json:"patientIdentity,omitempty"`
	PatientPhone    string `json:"patientPhone,omitempty"`
	PatientEmail    string `json:"patientEmail,omitempty"`
	PatientID       string `json:"patientId,omitempty"`

	BookedAt  *time.Time `json:"bookedAt,omitempty"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

// Bookable reports whether a patient may reserve the slot.
func (a Appointment) Bookable() bool {
	return a.Active && a.Status == StatusAvailable
}

// PatientDetails is what a patient enters on the contact step.
type PatientDetails struct {
	Name     string `json:"name"`
	Identity string `json:"identity"`
	Phone    string `json:"phone"`
	Email    string `json:"email,omitempty"`
}

// BookingDraft carries contact details back into the booking flow after a
// reschedule freed the patient's previous slot.
type BookingDraft struct {
	CenterID       string         `json:"centerId"`
	ProfessionalID string         `json:"professionalId"`
	Date           string         `json:"date"`
	FreedSlotID    string         `json:"freedSlotId"`
	Contact        PatientDetails `json:"contact"`
}
