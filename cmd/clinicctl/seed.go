package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-booking/internal/appointment"
	"github.com/hackgods/clinic-booking/internal/rut"
	"github.com/hackgods/clinic-booking/internal/staff"
)

var seedRoles = []string{
	"psychologist",
	"kinesiologist",
	"nutritionist",
	"speech therapist",
	"occupational therapist",
}

var seedTimes = []string{"09:00", "09:45", "10:30", "11:15", "12:00", "15:00", "15:45", "16:30"}

type seedOptions struct {
	CenterID      string
	Professionals int
	Days          int
	Bookings      int
	Seed          uint64
}

type seedReport struct {
	Professionals int
	Slots         int
	Bookings      int
}

type onboarder interface {
	CreateInvite(ctx context.Context, centerID string, req staff.InviteRequest) (*staff.Invite, error)
	AcceptInvite(ctx context.Context, centerID, token string, acc staff.Acceptance) (*staff.Professional, error)
}

type scheduleSyncer interface {
	Sync(ctx context.Context, centerID string, req appointment.SyncRequest) (*appointment.SyncResult, error)
}

type reserver interface {
	Reserve(ctx context.Context, centerID, slotID string, details appointment.PatientDetails) (*appointment.Appointment, error)
}

// seeder drives the same services the API uses, so seeded data goes
// through invite onboarding, delta sync and the booking transaction.
type seeder struct {
	staff    onboarder
	sync     scheduleSyncer
	reserve  reserver
	location *time.Location
	logger   zerolog.Logger
	now      func() time.Time
}

func (s *seeder) Run(ctx context.Context, opts seedOptions) (*seedReport, error) {
	faker := gofakeit.New(opts.Seed)
	now := time.Now
	if s.now != nil {
		now = s.now
	}
	report := &seedReport{}

	pros := make([]string, 0, opts.Professionals)
	for i := 0; i < opts.Professionals; i++ {
		role := seedRoles[i%len(seedRoles)]
		inv, err := s.staff.CreateInvite(ctx, opts.CenterID, staff.InviteRequest{
			Email:     faker.Email(),
			Role:      role,
			CreatedBy: "clinicctl",
		})
		if err != nil {
			return nil, fmt.Errorf("invite professional: %w", err)
		}
		pro, err := s.staff.AcceptInvite(ctx, opts.CenterID, inv.Token, staff.Acceptance{
			UID:  faker.UUID(),
			Name: faker.FirstName() + " " + faker.LastName(),
		})
		if err != nil {
			return nil, fmt.Errorf("accept invite: %w", err)
		}
		pros = append(pros, pro.UID)
	}
	report.Professionals = len(pros)

	dates := workingDays(now().In(s.location), opts.Days)
	local := make([]appointment.Appointment, 0, len(pros)*len(dates)*len(seedTimes))
	for _, uid := range pros {
		for _, date := range dates {
			for _, t := range seedTimes {
				local = append(local, appointment.Appointment{ProfessionalID: uid, Date: date, Time: t})
			}
		}
	}
	if len(local) == 0 {
		return report, nil
	}

	result, err := s.sync.Sync(ctx, opts.CenterID, appointment.SyncRequest{Local: local})
	if err != nil {
		return nil, fmt.Errorf("create slots: %w", err)
	}
	report.Slots = len(result.Upserted)

	slots := result.Upserted
	for i := 0; i < opts.Bookings && len(slots) > 0; i++ {
		idx := faker.Number(0, len(slots)-1)
		slotID := slots[idx]
		slots = append(slots[:idx], slots[idx+1:]...)

		_, err := s.reserve.Reserve(ctx, opts.CenterID, slotID, fakePatient(faker))
		if appointment.IsBookingConflict(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("book slot %s: %w", slotID, err)
		}
		report.Bookings++
	}

	s.logger.Info().
		Str("center_id", opts.CenterID).
		Int("professionals", report.Professionals).
		Int("slots", report.Slots).
		Int("bookings", report.Bookings).
		Msg("seed complete")
	return report, nil
}

// workingDays returns the next n weekdays after from, as YYYY-MM-DD.
func workingDays(from time.Time, n int) []string {
	out := make([]string, 0, n)
	day := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, from.Location())
	for len(out) < n {
		day = day.AddDate(0, 0, 1)
		if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		out = append(out, day.Format(time.DateOnly))
	}
	return out
}

func fakePatient(faker *gofakeit.Faker) appointment.PatientDetails {
	body := faker.Number(5_000_000, 25_000_000)
	return appointment.PatientDetails{
		Name:     faker.FirstName() + " " + faker.LastName(),
		Identity: strconv.Itoa(body) + "-" + rut.CheckDigit(body),
		Phone:    "+569" + strconv.Itoa(faker.Number(10_000_000, 99_999_999)),
		Email:    faker.Email(),
	}
}
