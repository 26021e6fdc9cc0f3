package main

import (
	"context"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hackgods/clinic-booking/internal/appointment"
	"github.com/hackgods/clinic-booking/internal/backend"
	"github.com/hackgods/clinic-booking/internal/config"
	"github.com/hackgods/clinic-booking/internal/functions"
	"github.com/hackgods/clinic-booking/internal/observability/metrics"
	"github.com/hackgods/clinic-booking/pkg/logging"
)

func main() {
	boot := logging.Default()

	cfg, err := config.Load()
	if err != nil {
		boot.Fatal().Err(err).Msg("config load error")
	}
	logger := logging.New(cfg.LogLevel, cfg.Env).With().Str("component", "functions-lambda").Logger()

	// the backend lives for the whole execution environment
	be, err := backend.Open(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("store connection error")
	}

	m := metrics.NewBookingMetrics(prometheus.NewRegistry())
	fns := functions.New(appointment.NewCancellationService(be.Store, m, logger), logger)

	lambda.Start(fns.HandleEvent)
}
