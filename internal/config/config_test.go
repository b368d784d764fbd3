package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"APP_ENV", "HTTP_PORT", "DATABASE_URL", "REDIS_ADDR",
		"JWT_ISSUER", "JWT_SIGNING_KEY", "QUEUE_BACKEND",
		"RATE_LIMIT_PER_MIN", "SWEEP_INTERVAL",
	} {
		t.Setenv(key, "")
	}

	cfg := Load()

	if cfg.Env != "dev" {
		t.Errorf("Env = %q, want %q", cfg.Env, "dev")
	}
	if cfg.HTTPPort != "8082" {
		t.Errorf("HTTPPort = %q, want %q", cfg.HTTPPort, "8082")
	}
	if cfg.JWTSigningKey != DevSigningKey {
		t.Error("unset signing key should fall back to the development default outside production")
	}
	if cfg.RateLimitPerMin != 120 {
		t.Errorf("RateLimitPerMin = %d, want 120", cfg.RateLimitPerMin)
	}
	if cfg.SweepInterval != time.Minute {
		t.Errorf("SweepInterval = %s, want 1m", cfg.SweepInterval)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("JWT_SIGNING_KEY", "test-secret")
	t.Setenv("SWEEP_INTERVAL", "30s")
	t.Setenv("RATE_LIMIT_PER_MIN", "10")

	cfg := Load()

	if cfg.HTTPPort != "9090" {
		t.Errorf("HTTPPort = %q, want %q", cfg.HTTPPort, "9090")
	}
	if cfg.JWTSigningKey != "test-secret" {
		t.Errorf("JWTSigningKey = %q, want %q", cfg.JWTSigningKey, "test-secret")
	}
	if cfg.SweepInterval != 30*time.Second {
		t.Errorf("SweepInterval = %s, want 30s", cfg.SweepInterval)
	}
	if cfg.RateLimitPerMin != 10 {
		t.Errorf("RateLimitPerMin = %d, want 10", cfg.RateLimitPerMin)
	}
}
