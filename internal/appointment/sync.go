package appointment

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/hackgods/clinic-booking/internal/docstore"
	"github.com/hackgods/clinic-booking/internal/observability/metrics"
)

// SyncRequest is a staff member's edited working copy. KnownIDs are the
// ids that were loaded from the store when editing started.
type SyncRequest struct {
	KnownIDs []string      `json:"knownIds"`
	Local    []Appointment `json:"appointments"`
}

type SyncResult struct {
	Upserted    []string `json:"upserted"`
	Deactivated []string `json:"deactivated"`
}

// Synchronizer reconciles a working copy of slots against the store.
// Removals are soft: a slot missing from the working copy is deactivated.
type Synchronizer struct {
	store   docstore.Store
	repo    *Repository
	metrics *metrics.BookingMetrics
	logger  zerolog.Logger

	mu      sync.Mutex
	running map[string]int
}

func NewSynchronizer(store docstore.Store, m *metrics.BookingMetrics, logger zerolog.Logger) *Synchronizer {
	return &Synchronizer{
		store:   store,
		repo:    NewRepository(store),
		metrics: m,
		logger:  logger,
		running: map[string]int{},
	}
}

// Load returns the active slots for one professional, optionally limited
// to one date. Their ids are the KnownIDs of the next sync.
func (s *Synchronizer) Load(ctx context.Context, centerID, professionalID, date string) ([]Appointment, error) {
	return s.repo.List(ctx, centerID, Query{ProfessionalID: professionalID, Date: date})
}

// Syncing reports whether a sync for centerID is in flight.
func (s *Synchronizer) Syncing(centerID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running[centerID] > 0
}

func (s *Synchronizer) begin(centerID string) {
	s.mu.Lock()
	s.running[centerID]++
	s.mu.Unlock()
}

func (s *Synchronizer) end(centerID string) {
	s.mu.Lock()
	if s.running[centerID]--; s.running[centerID] <= 0 {
		delete(s.running, centerID)
	}
	s.mu.Unlock()
}

// Sync upserts every slot in the working copy and deactivates known slots
// that are no longer in it. Upserts only carry schedule fields and write
// status when the document is new, so a booking is never overwritten.
// The batch is not atomic; a failure part way returns *PartialSyncFailure.
func (s *Synchronizer) Sync(ctx context.Context, centerID string, req SyncRequest) (*SyncResult, error) {
	s.begin(centerID)
	defer s.end(centerID)

	ctx, span := tracer.Start(ctx, "appointment.sync")
	defer span.End()
	span.SetAttributes(attribute.String("clinic.center_id", centerID))

	local, err := normalizeLocal(centerID, req.Local)
	if err != nil {
		return nil, err
	}
	toRemove, err := removals(req.KnownIDs, local)
	if err != nil {
		return nil, err
	}
	if toRemove, err = s.existing(ctx, centerID, toRemove); err != nil {
		return nil, err
	}

	result := &SyncResult{
		Upserted:    make([]string, 0, len(local)),
		Deactivated: toRemove,
	}
	batch := s.store.Batch()
	for _, a := range local {
		batch.Set(docstore.AppointmentPath(centerID, a.ID), scheduleFields(a),
			docstore.Merge(), docstore.WithDefaults(newSlotDefaults()))
		result.Upserted = append(result.Upserted, a.ID)
	}
	for _, id := range toRemove {
		batch.Set(docstore.AppointmentPath(centerID, id), deactivateFields(), docstore.Merge())
	}
	span.SetAttributes(
		attribute.Int("clinic.upserts", len(result.Upserted)),
		attribute.Int("clinic.deactivations", len(toRemove)),
	)

	if batch.Len() == 0 {
		return result, nil
	}

	// housekeeping discovers tenants through the center document
	if err := s.store.Set(ctx, docstore.CenterPath(centerID),
		docstore.Fields{fieldUpdatedAt: docstore.ServerTimestamp},
		docstore.Merge(), docstore.WithDefaults(docstore.Fields{fieldCreatedAt: docstore.ServerTimestamp})); err != nil {
		return nil, storeError("register center", err)
	}

	total := batch.Len()
	if err := batch.Commit(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "sync failed")
		s.metrics.ObserveSync(0, 0, true)

		var batchErr *docstore.BatchError
		if errors.As(err, &batchErr) {
			s.logger.Error().
				Err(err).
				Str("center_id", centerID).
				Int("applied", batchErr.Applied).
				Int("total", total).
				Msg("delta sync stopped part way")
			return nil, &PartialSyncFailure{
				Applied: batchErr.Applied,
				Total:   total,
				Failed:  batchErr.Failed,
				Err:     storeError("sync appointments", batchErr.Err),
			}
		}
		return nil, storeError("sync appointments", err)
	}

	s.metrics.ObserveSync(len(result.Upserted), len(toRemove), false)
	s.logger.Info().
		Str("center_id", centerID).
		Int("upserted", len(result.Upserted)).
		Int("deactivated", len(toRemove)).
		Msg("delta sync applied")
	return result, nil
}

// existing keeps the ids that have a stored document, retired or not. A
// known id with no document is dropped so that deactivation never creates
// one.
func (s *Synchronizer) existing(ctx context.Context, centerID string, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return ids, nil
	}
	stored, err := s.repo.List(ctx, centerID, Query{IncludeRetired: true})
	if err != nil {
		return nil, err
	}
	present := make(map[string]bool, len(stored))
	for _, a := range stored {
		present[a.ID] = true
	}
	out := ids[:0]
	for _, id := range ids {
		if present[id] {
			out = append(out, id)
		} else {
			s.logger.Warn().
				Str("center_id", centerID).
				Str("appointment_id", id).
				Msg("known slot has no stored document, skipping deactivation")
		}
	}
	return out, nil
}

// normalizeLocal validates the working copy and assigns ids to new slots.
func normalizeLocal(centerID string, local []Appointment) ([]Appointment, error) {
	var verr ValidationError
	if !docstore.ValidID(centerID) {
		verr.add("centerId", "invalid")
		return nil, &verr
	}

	out := make([]Appointment, 0, len(local))
	seen := make(map[string]bool, len(local))
	for i, a := range local {
		field := "appointments[" + strconv.Itoa(i) + "]"
		if a.ID == "" {
			a.ID = uuid.NewString()
		}
		switch {
		case !docstore.ValidID(a.ID):
			verr.add(field+".id", "invalid")
		case seen[a.ID]:
			verr.add(field+".id", "duplicate")
		}
		seen[a.ID] = true

		if !docstore.ValidID(a.ProfessionalID) {
			verr.add(field+".professionalId", "required")
		}
		if _, err := time.Parse(time.DateOnly, a.Date); err != nil {
			verr.add(field+".date", "must be YYYY-MM-DD")
		}
		if _, err := time.Parse("15:04", a.Time); err != nil {
			verr.add(field+".time", "must be HH:MM")
		}
		a.CenterID = centerID
		out = append(out, a)
	}
	if err := verr.orNil(); err != nil {
		return nil, err
	}
	return out, nil
}

// removals is known minus local, deduplicated and sorted.
func removals(known []string, local []Appointment) ([]string, error) {
	present := make(map[string]bool, len(local))
	for _, a := range local {
		present[a.ID] = true
	}

	var verr ValidationError
	set := map[string]bool{}
	for _, id := range known {
		if !docstore.ValidID(id) {
			verr.add("knownIds", "invalid id "+id)
			continue
		}
		if !present[id] {
			set[id] = true
		}
	}
	if err := verr.orNil(); err != nil {
		return nil, err
	}

	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}
