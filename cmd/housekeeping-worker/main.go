package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-booking/internal/appointment"
	"github.com/hackgods/clinic-booking/internal/backend"
	"github.com/hackgods/clinic-booking/internal/config"
	"github.com/hackgods/clinic-booking/internal/observability/metrics"
	"github.com/hackgods/clinic-booking/pkg/logging"
)

func main() {
	boot := logging.Default()

	cfg, err := config.Load()
	if err != nil {
		boot.Fatal().Err(err).Msg("config load error")
	}
	logger := logging.New(cfg.LogLevel, cfg.Env)
	logger.Info().
		Str("env", cfg.Env).
		Dur("interval", cfg.WorkerInterval).
		Str("timezone", cfg.CenterTimezone).
		Msg("housekeeping-worker starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	be, err := backend.Open(rootCtx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("store connection error")
	}
	defer be.Close()

	m := metrics.NewBookingMetrics(prometheus.DefaultRegisterer)
	hk := appointment.NewHousekeeper(be.Store, cfg.Location(), m, logger)

	// Run once at startup
	runOnce(rootCtx, hk, logger)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info().Msg("shutdown signal received, stopping housekeeping worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, hk, logger)
		}
	}
}

func runOnce(ctx context.Context, hk *appointment.Housekeeper, logger zerolog.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	start := time.Now()
	n, err := hk.DeactivatePastSlots(runCtx)
	if err != nil {
		logger.Error().Err(err).Msg("housekeeping run error")
		return
	}
	logger.Info().
		Int("deactivated", n).
		Dur("took", time.Since(start)).
		Msg("housekeeping run complete")
}
