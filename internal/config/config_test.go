package config

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ENV", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("STORE_BACKEND", "")
	t.Setenv("HOLD_TTL", "")
	t.Setenv("CORS_ALLOWED_ORIGINS", "")
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	if cfg.StoreBackend != BackendMemory {
		t.Fatalf("expected memory backend by default, got %s", cfg.StoreBackend)
	}
	if cfg.HoldTTL != 10*time.Minute {
		t.Fatalf("expected default hold ttl, got %s", cfg.HoldTTL)
	}
	if cfg.CORSAllowedOrigins != nil {
		t.Fatalf("expected no CORS origins, got %v", cfg.CORSAllowedOrigins)
	}
	if cfg.EmailProvider != "stub" {
		t.Fatalf("expected stub email provider, got %s", cfg.EmailProvider)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "production")
	t.Setenv("STORE_BACKEND", " Postgres ")
	t.Setenv("DATABASE_URL", "postgres://user@host/db")
	t.Setenv("HOLD_TTL", "5m")
	t.Setenv("HOLD_RATE_LIMIT_PER_MIN", "12")
	t.Setenv("REDIS_TLS", "true")
	t.Setenv("CLINIC_TIMEZONE", "America/New_York")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("EMAIL_PROVIDER", "SES")
	cfg := Load()
	if cfg.Port != "9090" {
		t.Fatalf("expected override port, got %s", cfg.Port)
	}
	if cfg.StoreBackend != BackendPostgres {
		t.Fatalf("expected postgres backend, got %q", cfg.StoreBackend)
	}
	if cfg.DatabaseURL != "postgres://user@host/db" {
		t.Fatalf("expected db override, got %s", cfg.DatabaseURL)
	}
	if cfg.HoldTTL != 5*time.Minute {
		t.Fatalf("expected hold ttl override, got %s", cfg.HoldTTL)
	}
	if cfg.HoldRateLimitPerMin != 12 {
		t.Fatalf("expected rate limit override, got %d", cfg.HoldRateLimitPerMin)
	}
	if !cfg.RedisTLS {
		t.Fatalf("expected redis tls enabled")
	}
	if cfg.ClinicTimezone != "America/New_York" {
		t.Fatalf("expected timezone override, got %s", cfg.ClinicTimezone)
	}
	if diff := cmp.Diff([]string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins); diff != "" {
		t.Fatalf("unexpected CORS origins (-want +got):\n%s", diff)
	}
	if cfg.EmailProvider != "ses" {
		t.Fatalf("expected ses provider, got %s", cfg.EmailProvider)
	}
}

func TestLoadIgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("HOLD_RATE_LIMIT_PER_MIN", "lots")
	t.Setenv("HOLD_TTL", "ten minutes")
	cfg := Load()
	if cfg.HoldRateLimitPerMin != 30 {
		t.Fatalf("expected default rate limit, got %d", cfg.HoldRateLimitPerMin)
	}
	if cfg.HoldTTL != 10*time.Minute {
		t.Fatalf("expected default hold ttl, got %s", cfg.HoldTTL)
	}
}
