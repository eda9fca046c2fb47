package httpapi

import (
	"fmt"
	"strings"
	"time"
)

const (
	defaultListenAddr      = ":8080"
	defaultAllowedOrigin   = "http://localhost:8000"
	defaultJWTIssuer       = "tablebook"
	defaultRequestTimeout  = 5 * time.Second
	defaultRateLimitPrefix = "tablebook:ratelimit"
	defaultNotifyPageSize  = 50
	shutdownTimeout        = 5 * time.Second
)

// Config aggregates runtime settings for the HTTP facade.
type Config struct {
	ListenAddr         string
	AllowedOrigins     []string
	JWTSigningKey      string
	JWTIssuer          string
	RequestTimeout     time.Duration
	VenueLocation      *time.Location
	RateLimitPerMinute int
	RateLimitPrefix    string
}

// Validate fills defaults and ensures the configuration contains sane values.
func (cfg *Config) Validate() error {
	cfg.ListenAddr = defaultIfEmpty(cfg.ListenAddr, defaultListenAddr)
	cfg.JWTIssuer = defaultIfEmpty(cfg.JWTIssuer, defaultJWTIssuer)
	cfg.RateLimitPrefix = defaultIfEmpty(cfg.RateLimitPrefix, defaultRateLimitPrefix)
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{defaultAllowedOrigin}
	}
	if cfg.VenueLocation == nil {
		cfg.VenueLocation = time.UTC
	}
	if len(cfg.JWTSigningKey) == 0 {
		return fmt.Errorf("jwt signing key is required")
	}
	if cfg.RateLimitPerMinute < 0 {
		return fmt.Errorf("rate limit per minute must be >= 0, got %d", cfg.RateLimitPerMinute)
	}
	return nil
}

func defaultIfEmpty(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

// ParseAllowedOrigins splits comma-delimited origins into a slice.
func ParseAllowedOrigins(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	normalized := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			normalized = append(normalized, trimmed)
		}
	}
	return normalized
}
