package config

import (
	"os"
	"time"
)

// Server captures process-level configuration. Policy limits live in
// internal/admission/config; this covers wiring concerns only.
type Server struct {
	Addr              string
	PostgresDSN       string
	RedisURL          string
	RateLimitDisabled bool
	SweepInterval     time.Duration
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	addr := os.Getenv("SPENDGATE_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	sweep := time.Minute
	if raw := os.Getenv("SPENDGATE_SWEEP_INTERVAL"); raw != "" {
		if parsed, err := time.ParseDuration(raw); err == nil && parsed > 0 {
			sweep = parsed
		}
	}

	return Server{
		Addr:              addr,
		PostgresDSN:       os.Getenv("SPENDGATE_POSTGRES_DSN"),
		RedisURL:          os.Getenv("SPENDGATE_REDIS_URL"),
		RateLimitDisabled: os.Getenv("SPENDGATE_RATELIMIT_DISABLED") == "true",
		SweepInterval:     sweep,
	}
}
