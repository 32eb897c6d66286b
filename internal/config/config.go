// Package config loads and validates environment variables at startup.
// Fail-fast: if a required variable is missing, the process exits with an error.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all runtime configuration for the matching service.
type Config struct {
	Port                 string
	DatabaseURL          string
	RedisURL             string
	SweepIntervalMinutes int           // How often the assignment sweeper fires
	SweepStaleAge        time.Duration // How long a job may sit in PENDING
}

// Load reads environment variables and returns a validated Config.
func Load() (*Config, error) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}

	port := os.Getenv("MATCHING_PORT")
	if port == "" {
		port = "8083"
	}

	interval := 15
	if s := os.Getenv("SWEEP_INTERVAL_MINUTES"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 1 {
			return nil, fmt.Errorf("SWEEP_INTERVAL_MINUTES must be a positive integer, got %q", s)
		}
		interval = v
	}

	staleAge := time.Hour
	if s := os.Getenv("SWEEP_STALE_AGE"); s != "" {
		v, err := time.ParseDuration(s)
		if err != nil || v <= 0 {
			return nil, fmt.Errorf("SWEEP_STALE_AGE must be a positive duration, got %q", s)
		}
		staleAge = v
	}

	return &Config{
		Port:                 port,
		DatabaseURL:          dbURL,
		RedisURL:             redisURL,
		SweepIntervalMinutes: interval,
		SweepStaleAge:        staleAge,
	}, nil
}
