package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hackgods/clinic-booking/internal/api"
	"github.com/hackgods/clinic-booking/internal/appointment"
	"github.com/hackgods/clinic-booking/internal/backend"
	"github.com/hackgods/clinic-booking/internal/config"
	"github.com/hackgods/clinic-booking/internal/functions"
	"github.com/hackgods/clinic-booking/internal/observability/metrics"
	"github.com/hackgods/clinic-booking/internal/patient"
	"github.com/hackgods/clinic-booking/internal/staff"
	"github.com/hackgods/clinic-booking/pkg/logging"
)

var version = "dev"

func main() {
	boot := logging.Default()

	cfg, err := config.Load()
	if err != nil {
		boot.Fatal().Err(err).Msg("config load error")
	}
	logger := logging.New(cfg.LogLevel, cfg.Env)
	logger.Info().
		Str("env", cfg.Env).
		Str("http_port", cfg.HTTPPort).
		Str("backend", cfg.StoreBackend).
		Msg("api-server starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	be, err := backend.Open(rootCtx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("store connection error")
	}
	defer be.Close()

	m := metrics.NewBookingMetrics(prometheus.DefaultRegisterer)
	patients := patient.NewService(be.Store, logger)
	cancellations := appointment.NewCancellationService(be.Store, m, logger)

	deps := map[string]api.Pinger{"store": be.Store}
	if be.Redis != nil {
		deps["redis"] = api.PingFunc(func(ctx context.Context) error { return be.Redis.Ping(ctx).Err() })
	}
	if cfg.StaffJWTSecret == "" {
		logger.Warn().Msg("STAFF_JWT_SECRET not set, staff routes will reject every request")
	}

	handler := api.NewRouter(api.RouterConfig{
		Transactor:     appointment.NewTransactor(be.Store, patients, m, logger),
		Repository:     appointment.NewRepository(be.Store),
		Synchronizer:   appointment.NewSynchronizer(be.Store, m, logger),
		Patients:       patients,
		Staff:          staff.NewService(be.Store, logger),
		Functions:      functions.New(cancellations, logger),
		Guard:          be.Guard(cfg.SubmitGuardTTL),
		Dependencies:   deps,
		Gatherer:       prometheus.DefaultGatherer,
		JWTSecret:      cfg.StaffJWTSecret,
		LookupRPS:      cfg.LookupRateRPS,
		LookupBurst:    cfg.LookupRateBurst,
		TrustedProxies: cfg.TrustedProxies,
		Logger:         logger,
		Env:            cfg.Env,
		Version:        version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-rootCtx.Done():
	case err := <-errCh:
		logger.Error().Err(err).Msg("http server error")
		be.Close()
		os.Exit(1)
	}

	logger.Info().Msg("shutting down api-server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
}
