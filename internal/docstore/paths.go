package docstore

import "strings"

// Tenant data is namespaced by path: centers/{centerId}/{collection}/{id}.
const (
	CentersCollection = "centers"

	appointments  = "appointments"
	patients      = "patients"
	professionals = "professionals"
	invites       = "invites"
)

func CenterPath(centerID string) string {
	return joinPath(CentersCollection, centerID)
}

func AppointmentsCollection(centerID string) string {
	return joinPath(CentersCollection, centerID, appointments)
}

func AppointmentPath(centerID, id string) string {
	return joinPath(AppointmentsCollection(centerID), id)
}

func PatientsCollection(centerID string) string {
	return joinPath(CentersCollection, centerID, patients)
}

func PatientPath(centerID, id string) string {
	return joinPath(PatientsCollection(centerID), id)
}

func ProfessionalsCollection(centerID string) string {
	return joinPath(CentersCollection, centerID, professionals)
}

func ProfessionalPath(centerID, uid string) string {
	return joinPath(ProfessionalsCollection(centerID), uid)
}

func InvitePath(centerID, token string) string {
	return joinPath(CentersCollection, centerID, invites, token)
}

// ValidID reports whether s can be used as a single path segment.
func ValidID(s string) bool {
	return s != "" && !strings.ContainsAny(s, "/ \t\n")
}

// Split breaks a document path into its collection and id. Collections
// have an odd number of segments, documents an even number.
func Split(path string) (collection, id string, err error) {
	segments := strings.Split(path, "/")
	if len(segments) < 2 || len(segments)%2 != 0 {
		return "", "", ErrInvalidPath
	}
	for _, s := range segments {
		if !ValidID(s) {
			return "", "", ErrInvalidPath
		}
	}
	last := len(segments) - 1
	return strings.Join(segments[:last], "/"), segments[last], nil
}

// ValidCollection reports whether path names a collection.
func ValidCollection(path string) bool {
	segments := strings.Split(path, "/")
	if len(segments)%2 != 1 {
		return false
	}
	for _, s := range segments {
		if !ValidID(s) {
			return false
		}
	}
	return true
}
