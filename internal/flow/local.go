package flow

import (
	"context"

	"github.com/hackgods/clinic-booking/internal/appointment"
)

// Services is a Backend that calls the booking services in process.
type Services struct {
	Transactor    *appointment.Transactor
	Cancellations *appointment.CancellationService
	Synchronizer  *appointment.Synchronizer
}

var _ Backend = Services{}

func (s Services) Reserve(ctx context.Context, centerID, slotID string, details appointment.PatientDetails) (*appointment.Appointment, error) {
	return s.Transactor.Reserve(ctx, centerID, slotID, details)
}

func (s Services) ListPatientAppointments(ctx context.Context, centerID, identity, phone string) ([]appointment.Appointment, error) {
	return s.Cancellations.FindBookedSlots(ctx, centerID, identity, phone)
}

func (s Services) CancelPatientAppointment(ctx context.Context, centerID, appointmentID, identity, phone string) error {
	_, err := s.Cancellations.Cancel(ctx, centerID, appointmentID, identity, phone)
	return err
}

func (s Services) LoadAppointments(ctx context.Context, centerID, professionalID, date string) ([]appointment.Appointment, error) {
	return s.Synchronizer.Load(ctx, centerID, professionalID, date)
}

func (s Services) SyncAppointments(ctx context.Context, centerID string, req appointment.SyncRequest) (*appointment.SyncResult, error) {
	return s.Synchronizer.Sync(ctx, centerID, req)
}
