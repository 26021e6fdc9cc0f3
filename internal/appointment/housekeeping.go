package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-booking/internal/docstore"
	"github.com/hackgods/clinic-booking/internal/observability/metrics"
)

// Housekeeper retires available slots whose date has passed in the
// center's timezone. Booked slots are kept as they are.
type Housekeeper struct {
	store   docstore.Store
	repo    *Repository
	loc     *time.Location
	now     func() time.Time
	metrics *metrics.BookingMetrics
	logger  zerolog.Logger
}

func NewHousekeeper(store docstore.Store, loc *time.Location, m *metrics.BookingMetrics, logger zerolog.Logger) *Housekeeper {
	if loc == nil {
		loc = time.UTC
	}
	return &Housekeeper{
		store:   store,
		repo:    NewRepository(store),
		loc:     loc,
		now:     time.Now,
		metrics: m,
		logger:  logger,
	}
}

// DeactivatePastSlots is intended to be called by the worker periodically.
// A failing center is logged and skipped.
func (h *Housekeeper) DeactivatePastSlots(ctx context.Context) (int, error) {
	centers, err := h.store.List(ctx, docstore.CentersCollection)
	if err != nil {
		return 0, storeError("list centers", err)
	}

	today := h.now().In(h.loc).Format(time.DateOnly)
	total := 0
	for _, center := range centers {
		n, err := h.deactivateCenter(ctx, center.ID, today)
		total += n
		if err != nil {
			h.logger.Error().
				Err(err).
				Str("center_id", center.ID).
				Int("deactivated", n).
				Msg("failed to deactivate past slots")
			continue
		}
		if n > 0 {
			h.logger.Info().
				Str("center_id", center.ID).
				Int("deactivated", n).
				Msg("deactivated past slots")
		}
	}

	h.metrics.ObserveHousekeeping(total)
	return total, nil
}

func (h *Housekeeper) deactivateCenter(ctx context.Context, centerID, today string) (int, error) {
	available, err := h.repo.List(ctx, centerID, Query{Status: StatusAvailable})
	if err != nil {
		return 0, err
	}

	batch := h.store.Batch()
	for _, a := range available {
		if a.Date != "" && a.Date < today {
			batch.Set(docstore.AppointmentPath(centerID, a.ID), deactivateFields(), docstore.Merge())
		}
	}
	if batch.Len() == 0 {
		return 0, nil
	}

	n := batch.Len()
	if err := batch.Commit(ctx); err != nil {
		var batchErr *docstore.BatchError
		if errors.As(err, &batchErr) {
			return batchErr.Applied, fmt.Errorf("deactivate past slots: %w", err)
		}
		return 0, fmt.Errorf("deactivate past slots: %w", err)
	}
	return n, nil
}
