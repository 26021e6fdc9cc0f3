package patient

import "time"

type Patient struct {
	ID       string `json:"id"`
	CenterID string `json:"centerId"`
	Name     string `json:"name"`
	Identity string `json:"identity"`
	Phone    string `json:"phone"`
	Email    string `json:"email,omitempty"`

	Commune        string         `json:"commune,omitempty"`
	BirthDate      string         `json:"birthDate,omitempty"`
	MedicalHistory MedicalHistory `json:"medicalHistory"`

	OwnerUID          string   `json:"ownerUid,omitempty"`
	AllowedUIDs       []string `json:"allowedUids,omitempty"`
	LastAppointmentID string   `json:"lastAppointmentId,omitempty"`

	CreatedAt *time.Time `json:"createdAt,omitempty"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

// MedicalHistory holds free text plus option lists picked on the intake form.
type MedicalHistory struct {
	Notes       string   `json:"notes,omitempty"`
	Medications string   `json:"medications,omitempty"`
	Conditions  []string `json:"conditions,omitempty"`
	Allergies   []string `json:"allergies,omitempty"`
}

// Intake is the patient-submitted form.
type Intake struct {
	Name      string `json:"name"`
	Identity  string `json:"identity"`
	Phone     string `json:"phone"`
	Email     string `json:"email,omitempty"`
	Commune   string `json:"commune,omitempty"`
	BirthDate string `json:"birthDate,omitempty"`
	// ProfessionalID becomes the owner when the record is new.
	ProfessionalID string         `json:"professionalId,omitempty"`
	MedicalHistory MedicalHistory `json:"medicalHistory"`
}
