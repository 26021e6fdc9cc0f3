package appointment

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/hackgods/clinic-booking/internal/docstore"
)

var ErrAppointmentNotFound = errors.New("appointment not found")

// Repository reads appointment documents. Status changes never go through
// it; they belong to the Transactor and the CancellationService.
type Repository struct {
	store docstore.Store
}

func NewRepository(store docstore.Store) *Repository {
	return &Repository{store: store}
}

func (r *Repository) Get(ctx context.Context, centerID, id string) (*Appointment, error) {
	if !docstore.ValidID(centerID) || !docstore.ValidID(id) {
		return nil, ErrAppointmentNotFound
	}
	doc, err := r.store.Get(ctx, docstore.AppointmentPath(centerID, id))
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, ErrAppointmentNotFound
	}
	if err != nil {
		return nil, storeError("get appointment", err)
	}
	a := decodeAppointment(centerID, doc)
	return &a, nil
}

// Query narrows a listing. Empty fields match everything.
type Query struct {
	ProfessionalID string
	Date           string
	// Month is YYYY-MM and is ignored when Date is set.
	Month          string
	Status         SlotStatus
	IncludeRetired bool
}

// List returns the center's appointments that satisfy q, ordered by date
// and time. Professional matching goes through the decoded model so legacy
// doctorId documents are found too.
func (r *Repository) List(ctx context.Context, centerID string, q Query) ([]Appointment, error) {
	if !docstore.ValidID(centerID) {
		return nil, docstore.ErrInvalidPath
	}
	var filters []docstore.Filter
	if q.Status != "" {
		filters = append(filters, docstore.Where(fieldStatus, string(q.Status)))
	}
	if q.Date != "" {
		filters = append(filters, docstore.Where(fieldDate, q.Date))
	}

	docs, err := r.store.List(ctx, docstore.AppointmentsCollection(centerID), filters...)
	if err != nil {
		return nil, storeError("list appointments", err)
	}

	out := make([]Appointment, 0, len(docs))
	for i := range docs {
		a := decodeAppointment(centerID, &docs[i])
		if !q.IncludeRetired && !a.Active {
			continue
		}
		if q.ProfessionalID != "" && a.ProfessionalID != q.ProfessionalID {
			continue
		}
		if q.Date == "" && q.Month != "" && !strings.HasPrefix(a.Date, q.Month+"-") {
			continue
		}
		out = append(out, a)
	}
	sortAppointments(out)
	return out, nil
}

// AvailableForMonth lists the slots a patient can still pick.
func (r *Repository) AvailableForMonth(ctx context.Context, centerID, professionalID, month string) ([]Appointment, error) {
	return r.List(ctx, centerID, Query{
		ProfessionalID: professionalID,
		Month:          month,
		Status:         StatusAvailable,
	})
}

func sortAppointments(list []Appointment) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].Date != list[j].Date {
			return list[i].Date < list[j].Date
		}
		if list[i].Time != list[j].Time {
			return list[i].Time < list[j].Time
		}
		return list[i].ID < list[j].ID
	})
}
