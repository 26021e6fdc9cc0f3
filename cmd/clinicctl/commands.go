package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/hackgods/clinic-booking/internal/appointment"
	"github.com/hackgods/clinic-booking/internal/backend"
	"github.com/hackgods/clinic-booking/internal/config"
	"github.com/hackgods/clinic-booking/internal/db"
	"github.com/hackgods/clinic-booking/internal/observability/metrics"
	"github.com/hackgods/clinic-booking/internal/patient"
	"github.com/hackgods/clinic-booking/internal/staff"
	"github.com/hackgods/clinic-booking/pkg/logging"
)

// env carries what every store-backed command needs.
type env struct {
	cfg     config.Config
	logger  zerolog.Logger
	backend *backend.Backend
	metrics *metrics.BookingMetrics
}

func openEnv(ctx context.Context) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := logging.New(cfg.LogLevel, cfg.Env)
	be, err := backend.Open(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return &env{
		cfg:     cfg,
		logger:  logger,
		backend: be,
		metrics: metrics.NewBookingMetrics(prometheus.NewRegistry()),
	}, nil
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the Postgres document schema",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dsn, _ := cmd.Flags().GetString("dsn")
			if dsn == "" {
				dsn = os.Getenv("POSTGRES_DSN")
			}
			if dsn == "" {
				return errors.New("POSTGRES_DSN or --dsn is required")
			}
			version, err := db.Migrate(dsn)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema at version %d\n", version)
			return nil
		},
	}
	upCmd.Flags().String("dsn", "", "Postgres connection string (defaults to POSTGRES_DSN)")
	cmd.AddCommand(upCmd)

	return cmd
}

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Populate a center with fake professionals, slots and bookings",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := seedOptions{}
			opts.CenterID, _ = cmd.Flags().GetString("center")
			opts.Professionals, _ = cmd.Flags().GetInt("professionals")
			opts.Days, _ = cmd.Flags().GetInt("days")
			opts.Bookings, _ = cmd.Flags().GetInt("bookings")
			opts.Seed, _ = cmd.Flags().GetUint64("seed")

			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
			defer cancel()

			e, err := openEnv(ctx)
			if err != nil {
				return err
			}
			defer e.backend.Close()

			store := e.backend.Store
			s := &seeder{
				staff:    staff.NewService(store, e.logger),
				sync:     appointment.NewSynchronizer(store, e.metrics, e.logger),
				reserve:  appointment.NewTransactor(store, patient.NewService(store, e.logger), e.metrics, e.logger),
				location: e.cfg.Location(),
				logger:   e.logger,
			}
			report, err := s.Run(ctx, opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded center %s: %d professionals, %d slots, %d bookings\n",
				opts.CenterID, report.Professionals, report.Slots, report.Bookings)
			return nil
		},
	}
	cmd.Flags().String("center", "demo", "Center id to seed")
	cmd.Flags().Int("professionals", 6, "Number of professionals to onboard")
	cmd.Flags().Int("days", 14, "Number of working days of slots to create")
	cmd.Flags().Int("bookings", 20, "Number of slots to book with fake patients")
	cmd.Flags().Uint64("seed", 0, "Faker seed, 0 for random")
	return cmd
}

func syncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Apply a schedule working copy from a JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			centerID, _ := cmd.Flags().GetString("center")
			file, _ := cmd.Flags().GetString("file")
			if centerID == "" || file == "" {
				return errors.New("--center and --file are required")
			}

			raw, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("read working copy: %w", err)
			}
			var req appointment.SyncRequest
			if err := json.Unmarshal(raw, &req); err != nil {
				return fmt.Errorf("decode working copy: %w", err)
			}

			e, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.backend.Close()

			result, err := appointment.NewSynchronizer(e.backend.Store, e.metrics, e.logger).Sync(cmd.Context(), centerID, req)
			var partial *appointment.PartialSyncFailure
			if errors.As(err, &partial) {
				return fmt.Errorf("%d of %d writes applied before failure, reload the schedule and retry: %w",
					partial.Applied, partial.Total, err)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "upserted %d, deactivated %d\n", len(result.Upserted), len(result.Deactivated))
			return nil
		},
	}
	cmd.Flags().String("center", "", "Center id")
	cmd.Flags().String("file", "", `Path to a {"knownIds": [...], "appointments": [...]} file`)
	return cmd
}
