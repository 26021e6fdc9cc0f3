package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-booking/internal/appointment"
	"github.com/hackgods/clinic-booking/internal/client"
	"github.com/hackgods/clinic-booking/internal/flow"
	redisclient "github.com/hackgods/clinic-booking/internal/redis"
	"github.com/hackgods/clinic-booking/internal/rut"
)

type SimConfig struct {
	APIBaseURL  string
	CenterID    string
	Duration    time.Duration
	Workers     int
	LookupRatio float64
	SlotLimit   int
	Months      int
}

// PoolSlot is a bookable slot together with the role its professional
// is listed under, which is where the booking flow starts.
type PoolSlot struct {
	Role string
	Slot appointment.Appointment
}

// SlotPool is the set of slots workers compete for, plus the patients
// each confirmed booking went to.
type SlotPool struct {
	Slots []PoolSlot

	mu        sync.Mutex
	confirmed map[string][]appointment.PatientDetails
	patients  []appointment.PatientDetails
}

func NewSlotPool(slots []PoolSlot) *SlotPool {
	return &SlotPool{Slots: slots, confirmed: map[string][]appointment.PatientDetails{}}
}

func (sp *SlotPool) Confirm(slotID string, p appointment.PatientDetails) {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	sp.confirmed[slotID] = append(sp.confirmed[slotID], p)
	sp.patients = append(sp.patients, p)
}

func (sp *SlotPool) RandomPatient(faker *gofakeit.Faker) (appointment.PatientDetails, bool) {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	if len(sp.patients) == 0 {
		return appointment.PatientDetails{}, false
	}
	return sp.patients[faker.Number(0, len(sp.patients)-1)], true
}

// Oversold lists slots that more than one reservation reported as confirmed.
func (sp *SlotPool) Oversold() []string {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	var out []string
	for id, ps := range sp.confirmed {
		if len(ps) > 1 {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

func (sp *SlotPool) ConfirmedCount() int {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	return len(sp.confirmed)
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success bool, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	if success {
		atomic.AddInt64(&om.Success, 1)
	} else if conflict {
		atomic.AddInt64(&om.Conflict, 1)
	} else {
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	sort.Slice(latencies, func(i, j int) bool {
		return latencies[i] < latencies[j]
	})

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]
	p50 = latencies[percentileIndex(len(latencies), 50)]
	p95 = latencies[percentileIndex(len(latencies), 95)]
	return avg, min, max, p50, p95
}

func percentileIndex(n, p int) int {
	idx := n * p / 100
	if idx >= n {
		idx = n - 1
	}
	return idx
}

type Metrics struct {
	Reserve OperationMetrics
	Lookup  OperationMetrics
}

type Simulator struct {
	config  SimConfig
	logger  zerolog.Logger
	pool    *SlotPool
	metrics Metrics

	// newBackend returns the client for one worker; each worker is its own
	// booking session.
	newBackend func(session string) flow.Backend
	catalog    *client.Client
}

func NewSimulator(cfg SimConfig, logger zerolog.Logger) *Simulator {
	return &Simulator{
		config:  cfg,
		logger:  logger,
		catalog: client.New(cfg.APIBaseURL),
		newBackend: func(session string) flow.Backend {
			return client.New(cfg.APIBaseURL, client.WithBookingSession(session))
		},
	}
}

// LoadSlots collects bookable slots across every professional for the
// configured number of months, starting with the current one.
func (s *Simulator) LoadSlots(ctx context.Context) (int, error) {
	pros, err := s.catalog.Professionals(ctx, s.config.CenterID, "")
	if err != nil {
		return 0, fmt.Errorf("list professionals: %w", err)
	}

	var slots []PoolSlot
	month := time.Now()
	for m := 0; m < s.config.Months; m++ {
		key := month.AddDate(0, m, 0).Format("2006-01")
		for _, p := range pros {
			list, err := s.catalog.Slots(ctx, s.config.CenterID, p.UID, key)
			if err != nil {
				return 0, fmt.Errorf("list slots for %s: %w", p.UID, err)
			}
			for _, a := range list {
				slots = append(slots, PoolSlot{Role: p.Role, Slot: a})
			}
		}
	}
	if s.config.SlotLimit > 0 && len(slots) > s.config.SlotLimit {
		slots = slots[:s.config.SlotLimit]
	}
	if len(slots) == 0 {
		return 0, errors.New("no bookable slots, run clinicctl seed first")
	}
	s.pool = NewSlotPool(slots)
	return len(slots), nil
}

func (s *Simulator) Run(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, s.config.Duration)
	defer cancel()

	s.logger.Info().
		Dur("duration", s.config.Duration).
		Int("workers", s.config.Workers).
		Msg("starting simulation")

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.logger.Info().Msg("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	faker := gofakeit.New(uint64(time.Now().UnixNano()) + uint64(workerID))
	backend := s.newBackend(uuid.NewString())
	logger := s.logger.With().Int("worker", workerID).Logger()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if faker.Float64() < s.config.LookupRatio {
			s.doLookup(ctx, backend, faker, logger)
			continue
		}
		if !s.doReserve(ctx, backend, faker, logger) {
			return
		}
	}
}

// doReserve walks one patient through the booking flow for a random slot.
// It reports false once every slot in the pool has been confirmed.
func (s *Simulator) doReserve(ctx context.Context, backend flow.Backend, faker *gofakeit.Faker, logger zerolog.Logger) bool {
	if s.pool.ConfirmedCount() >= len(s.pool.Slots) {
		return false
	}
	target := s.pool.Slots[faker.Number(0, len(s.pool.Slots)-1)]
	patient := fakePatient(faker)
	slot := target.Slot

	ctrl := flow.NewController(backend, s.config.CenterID, nil, logger)
	steps := []func() error{
		func() error { return ctrl.SelectRole(target.Role) },
		func() error { return ctrl.SelectProfessional(slot.ProfessionalID) },
		func() error { return ctrl.BrowseMonth(slot.Date[:len("2006-01")]) },
		func() error { return ctrl.SelectDay(slot.Date) },
		func() error { return ctrl.SelectSlot(slot) },
		func() error { return ctrl.UpdateContact(patient) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			logger.Warn().Err(err).Str("slot_id", slot.ID).Msg("booking flow refused a step")
			s.metrics.Reserve.Record(0, false, false)
			return true
		}
	}

	start := time.Now()
	ctrl.HandleBookingConfirm(ctx)
	latency := time.Since(start)
	if ctx.Err() != nil {
		return false
	}

	state := ctrl.State()
	booked := state.Step == flow.StepConfirmed
	conflict := appointment.IsBookingConflict(state.Err) || errors.Is(state.Err, redisclient.ErrSubmissionInFlight)
	if booked {
		s.pool.Confirm(slot.ID, patient)
	} else if !conflict {
		logger.Debug().Err(state.Err).Str("slot_id", slot.ID).Msg("reserve failed")
	}
	s.metrics.Reserve.Record(latency, booked, conflict)
	return true
}

func (s *Simulator) doLookup(ctx context.Context, backend flow.Backend, faker *gofakeit.Faker, logger zerolog.Logger) {
	p, ok := s.pool.RandomPatient(faker)
	if !ok {
		return
	}

	var failed bool
	ctrl := flow.NewController(backend, s.config.CenterID, func(n flow.Notice) {
		failed = n.Level == flow.LevelError
	}, logger)

	start := time.Now()
	ctrl.HandleLookupAppointments(ctx, p.Identity, p.Phone)
	latency := time.Since(start)
	if ctx.Err() != nil {
		return
	}
	s.metrics.Lookup.Record(latency, !failed && len(ctrl.LookupResults()) > 0, false)
}

func (s *Simulator) Oversold() []string {
	if s.pool == nil {
		return nil
	}
	return s.pool.Oversold()
}

func (s *Simulator) PrintReport(w io.Writer) {
	fmt.Fprintln(w, "\n"+strings.Repeat("=", 80))
	fmt.Fprintln(w, "SIMULATION REPORT")
	fmt.Fprintln(w, strings.Repeat("=", 80))
	fmt.Fprintf(w, "Duration: %s\n", s.config.Duration)
	fmt.Fprintf(w, "Workers: %d\n", s.config.Workers)
	if s.pool != nil {
		fmt.Fprintf(w, "Slots: %d, confirmed: %d, oversold: %d\n",
			len(s.pool.Slots), s.pool.ConfirmedCount(), len(s.pool.Oversold()))
	}
	fmt.Fprintln(w)

	printOperationReport(w, "Reserve", &s.metrics.Reserve)
	printOperationReport(w, "Patient lookup", &s.metrics.Lookup)
}

func printOperationReport(w io.Writer, name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95 := om.Stats()

	fmt.Fprintf(w, "%s:\n", name)
	fmt.Fprintf(w, "  Total: %d\n", total)
	fmt.Fprintf(w, "  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Fprintf(w, "  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Fprintf(w, "  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Fprintf(w, "  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Fprintln(w)
}

func fakePatient(faker *gofakeit.Faker) appointment.PatientDetails {
	body := faker.Number(5_000_000, 25_000_000)
	return appointment.PatientDetails{
		Name:     faker.Name(),
		Identity: strconv.Itoa(body) + "-" + rut.CheckDigit(body),
		Phone:    "9" + strconv.Itoa(faker.Number(10_000_000, 99_999_999)),
	}
}
