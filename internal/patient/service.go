package patient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-booking/internal/appointment"
	"github.com/hackgods/clinic-booking/internal/docstore"
)

var ErrPatientNotFound = errors.New("patient not found")

const (
	fieldCenterID          = "centerId"
	fieldName              = "name"
	fieldIdentity          = "identity"
	fieldPhone             = "phone"
	fieldEmail             = "email"
	fieldCommune           = "commune"
	fieldBirthDate         = "birthDate"
	fieldNotes             = "medicalNotes"
	fieldMedications       = "medications"
	fieldConditions        = "conditions"
	fieldAllergies         = "allergies"
	fieldOwnerUID          = "ownerUid"
	fieldAccessControl     = "accessControl"
	fieldAllowedUIDs       = "allowedUids"
	fieldLastAppointmentID = "lastAppointmentId"
	fieldCreatedAt         = "createdAt"
	fieldUpdatedAt         = "updatedAt"
)

// Service maintains patient records. Records are keyed by normalized RUT
// and are never deleted here.
type Service struct {
	store  docstore.Store
	logger zerolog.Logger
}

var _ appointment.PatientRecorder = (*Service)(nil)

func NewService(store docstore.Store, logger zerolog.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// EnsureForBooking creates the patient on their first booking, owned by the
// slot's professional. Later bookings refresh contact details only.
func (s *Service) EnsureForBooking(ctx context.Context, booked appointment.Appointment) error {
	id, ok := appointment.NormalizeIdentity(booked.PatientIdentity)
	if !ok {
		return fmt.Errorf("booking %s has no valid patient identity", booked.ID)
	}
	path := docstore.PatientPath(booked.CenterID, id)

	return s.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		_, err := tx.Get(ctx, path)
		switch {
		case errors.Is(err, docstore.ErrNotFound):
			fields := contactFields(booked.CenterID, booked.PatientName, id, booked.PatientPhone, booked.PatientEmail)
			fields[fieldLastAppointmentID] = booked.ID
			fields[fieldOwnerUID] = booked.ProfessionalID
			fields[fieldAccessControl] = map[string]any{fieldAllowedUIDs: []string{booked.ProfessionalID}}
			fields[fieldCreatedAt] = docstore.ServerTimestamp
			tx.Set(path, fields)
			return nil
		case err != nil:
			return err
		}

		fields := contactFields(booked.CenterID, booked.PatientName, id, booked.PatientPhone, booked.PatientEmail)
		fields[fieldLastAppointmentID] = booked.ID
		tx.Set(path, fields, docstore.Merge())
		return nil
	})
}

// SubmitIntake validates the form and merges it into the patient record.
func (s *Service) SubmitIntake(ctx context.Context, centerID string, in Intake) (*Patient, error) {
	d, err := appointment.ValidateDetails(appointment.PatientDetails{
		Name:     in.Name,
		Identity: in.Identity,
		Phone:    in.Phone,
		Email:    in.Email,
	})
	if err != nil {
		return nil, err
	}
	verr := &appointment.ValidationError{}
	if in.BirthDate != "" {
		if _, perr := time.Parse(time.DateOnly, in.BirthDate); perr != nil {
			verr.Fields = map[string]string{"birthDate": "must be YYYY-MM-DD"}
		}
	}
	if !docstore.ValidID(centerID) {
		if verr.Fields == nil {
			verr.Fields = map[string]string{}
		}
		verr.Fields["centerId"] = "invalid"
	}
	if len(verr.Fields) > 0 {
		return nil, verr
	}

	fields := contactFields(centerID, d.Name, d.Identity, d.Phone, d.Email)
	setOptional(fields, fieldCommune, in.Commune)
	setOptional(fields, fieldBirthDate, in.BirthDate)
	setOptional(fields, fieldNotes, in.MedicalHistory.Notes)
	setOptional(fields, fieldMedications, in.MedicalHistory.Medications)
	fields[fieldConditions] = cleanOptions(in.MedicalHistory.Conditions)
	fields[fieldAllergies] = cleanOptions(in.MedicalHistory.Allergies)

	defaults := docstore.Fields{fieldCreatedAt: docstore.ServerTimestamp}
	if owner := strings.TrimSpace(in.ProfessionalID); owner != "" {
		defaults[fieldOwnerUID] = owner
		defaults[fieldAccessControl] = map[string]any{fieldAllowedUIDs: []string{owner}}
	}

	path := docstore.PatientPath(centerID, d.Identity)
	if err := s.store.Set(ctx, path, fields, docstore.Merge(), docstore.WithDefaults(defaults)); err != nil {
		return nil, fmt.Errorf("save intake: %w", err)
	}

	s.logger.Info().
		Str("center_id", centerID).
		Str("patient_id", d.Identity).
		Msg("patient intake saved")
	return s.Get(ctx, centerID, d.Identity)
}

func (s *Service) Get(ctx context.Context, centerID, identity string) (*Patient, error) {
	id, ok := appointment.NormalizeIdentity(identity)
	if !ok || !docstore.ValidID(centerID) {
		return nil, ErrPatientNotFound
	}
	doc, err := s.store.Get(ctx, docstore.PatientPath(centerID, id))
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, ErrPatientNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get patient: %w", err)
	}
	return decodePatient(centerID, doc), nil
}

func contactFields(centerID, name, identity, phone, email string) docstore.Fields {
	f := docstore.Fields{
		fieldCenterID:  centerID,
		fieldName:      name,
		fieldIdentity:  identity,
		fieldPhone:     phone,
		fieldUpdatedAt: docstore.ServerTimestamp,
	}
	if email != "" {
		f[fieldEmail] = email
	}
	return f
}

func setOptional(fields docstore.Fields, key, value string) {
	if v := strings.TrimSpace(value); v != "" {
		fields[key] = v
	}
}

func cleanOptions(options []string) []string {
	out := make([]string, 0, len(options))
	seen := map[string]bool{}
	for _, o := range options {
		o = strings.TrimSpace(o)
		if o == "" || seen[o] {
			continue
		}
		seen[o] = true
		out = append(out, o)
	}
	return out
}

func decodePatient(centerID string, doc *docstore.Document) *Patient {
	p := &Patient{
		ID:                doc.ID,
		CenterID:          doc.Str(fieldCenterID),
		Name:              doc.Str(fieldName),
		Identity:          doc.Str(fieldIdentity),
		Phone:             doc.Str(fieldPhone),
		Email:             doc.Str(fieldEmail),
		Commune:           doc.Str(fieldCommune),
		BirthDate:         doc.Str(fieldBirthDate),
		OwnerUID:          doc.Str(fieldOwnerUID),
		LastAppointmentID: doc.Str(fieldLastAppointmentID),
		MedicalHistory: MedicalHistory{
			Notes:       doc.Str(fieldNotes),
			Medications: doc.Str(fieldMedications),
			Conditions:  doc.Strings(fieldConditions),
			Allergies:   doc.Strings(fieldAllergies),
		},
	}
	if p.CenterID == "" {
		p.CenterID = centerID
	}
	if acl, ok := doc.Fields[fieldAccessControl].(map[string]any); ok {
		sub := docstore.Document{Fields: acl}
		p.AllowedUIDs = sub.Strings(fieldAllowedUIDs)
	}
	if t, ok := docstore.ParseTime(doc.Str(fieldCreatedAt)); ok {
		p.CreatedAt = &t
	}
	if t, ok := docstore.ParseTime(doc.Str(fieldUpdatedAt)); ok {
		p.UpdatedAt = &t
	}
	return p
}
