package appointment

import (
	"time"

	"github.com/hackgods/clinic-booking/internal/docstore"
)

const (
	fieldCenterID        = "centerId"
	fieldProfessionalID  = "professionalId"
	fieldLegacyDoctorID  = "doctorId"
	fieldDate            = "date"
	fieldTime            = "time"
	fieldStatus          = "status"
	fieldActive          = "active"
	fieldPatientName     = "patientName"
	fieldPatientIdentity = "patientIdentity"
	fieldPatientPhone    = "patientPhone"
	fieldPatientEmail    = "patientEmail"
	fieldPatientID       = "patientId"
	fieldBookedAt        = "bookedAt"
	fieldCreatedAt       = "createdAt"
	fieldUpdatedAt       = "updatedAt"
)

func decodeAppointment(centerID string, doc *docstore.Document) Appointment {
	a := Appointment{
		ID:              doc.ID,
		CenterID:        doc.Str(fieldCenterID),
		ProfessionalID:  doc.Str(fieldProfessionalID),
		Date:            doc.Str(fieldDate),
		Time:            doc.Str(fieldTime),
		Status:          SlotStatus(doc.Str(fieldStatus)),
		PatientName:     doc.Str(fieldPatientName),
		PatientIdentity: doc.Str(fieldPatientIdentity),
		PatientPhone:    doc.Str(fieldPatientPhone),
		PatientEmail:    doc.Str(fieldPatientEmail),
		PatientID:       doc.Str(fieldPatientID),
		BookedAt:        timeField(doc, fieldBookedAt),
		CreatedAt:       timeField(doc, fieldCreatedAt),
		UpdatedAt:       timeField(doc, fieldUpdatedAt),
	}
	// older documents only carry doctorId
	if a.ProfessionalID == "" {
		a.ProfessionalID = doc.Str(fieldLegacyDoctorID)
	}
	if a.CenterID == "" {
		a.CenterID = centerID
	}
	if a.Status == "" {
		a.Status = StatusAvailable
	}
	// slots written before the soft-delete flag existed are active
	if active, ok := doc.Bool(fieldActive); ok {
		a.Active = active
	} else {
		a.Active = true
	}
	return a
}

func timeField(doc *docstore.Document, key string) *time.Time {
	t, ok := docstore.ParseTime(doc.Str(key))
	if !ok {
		return nil
	}
	return &t
}

// scheduleFields are the calendar fields staff edits own. They never include
// status or patient data.
func scheduleFields(a Appointment) docstore.Fields {
	return docstore.Fields{
		fieldCenterID:       a.CenterID,
		fieldProfessionalID: a.ProfessionalID,
		fieldLegacyDoctorID: a.ProfessionalID,
		fieldDate:           a.Date,
		fieldTime:           a.Time,
		fieldActive:         true,
		fieldUpdatedAt:      docstore.ServerTimestamp,
	}
}

func newSlotDefaults() docstore.Fields {
	return docstore.Fields{
		fieldStatus:    string(StatusAvailable),
		fieldCreatedAt: docstore.ServerTimestamp,
	}
}

func bookingFields(d PatientDetails, patientID string) docstore.Fields {
	f := docstore.Fields{
		fieldStatus:          string(StatusBooked),
		fieldPatientName:     d.Name,
		fieldPatientIdentity: d.Identity,
		fieldPatientPhone:    d.Phone,
		fieldPatientID:       patientID,
		fieldBookedAt:        docstore.ServerTimestamp,
		fieldUpdatedAt:       docstore.ServerTimestamp,
	}
	if d.Email != "" {
		f[fieldPatientEmail] = d.Email
	} else {
		f[fieldPatientEmail] = nil
	}
	return f
}

func releaseFields() docstore.Fields {
	return docstore.Fields{
		fieldStatus:          string(StatusAvailable),
		fieldPatientName:     nil,
		fieldPatientIdentity: nil,
		fieldPatientPhone:    nil,
		fieldPatientEmail:    nil,
		fieldPatientID:       nil,
		fieldBookedAt:        nil,
		fieldUpdatedAt:       docstore.ServerTimestamp,
	}
}

func deactivateFields() docstore.Fields {
	return docstore.Fields{
		fieldActive:    false,
		fieldUpdatedAt: docstore.ServerTimestamp,
	}
}
