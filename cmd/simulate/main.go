package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/hackgods/clinic-booking/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	logger := logging.New(getEnv("LOG_LEVEL", "info"), getEnv("APP_ENV", "dev"))

	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}
	logger.Info().
		Str("api", cfg.APIBaseURL).
		Str("center_id", cfg.CenterID).
		Dur("duration", cfg.Duration).
		Int("workers", cfg.Workers).
		Float64("lookup_ratio", cfg.LookupRatio).
		Msg("simulator starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sim := NewSimulator(cfg, logger)

	loadCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	n, err := sim.LoadSlots(loadCtx)
	cancel()
	if err != nil {
		logger.Fatal().Err(err).Msg("load slots")
	}
	logger.Info().Int("slots", n).Msg("slot pool loaded")

	sim.Run(ctx)
	sim.PrintReport(os.Stdout)

	if oversold := sim.Oversold(); len(oversold) > 0 {
		logger.Error().Strs("slots", oversold).Msg("slots confirmed more than once")
		os.Exit(2)
	}
}

func loadConfig() SimConfig {
	return SimConfig{
		APIBaseURL:  getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		CenterID:    getEnv("SIM_CENTER_ID", "demo"),
		Duration:    getDuration("SIM_DURATION", 30*time.Second),
		Workers:     getInt("SIM_WORKERS", 10),
		LookupRatio: getFloat("SIM_LOOKUP_RATIO", 0.3),
		SlotLimit:   getInt("SIM_SLOT_LIMIT", 200),
		Months:      getInt("SIM_MONTHS", 2),
	}
}

func validateConfig(cfg SimConfig) error {
	if cfg.CenterID == "" {
		return fmt.Errorf("SIM_CENTER_ID is required")
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	if cfg.LookupRatio < 0 || cfg.LookupRatio > 1 {
		return fmt.Errorf("SIM_LOOKUP_RATIO must be within [0, 1]")
	}
	return nil
}

// Helper functions

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
