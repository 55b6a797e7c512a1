package utils

import (
	"testing"
	"time"
)

func TestPostgresPoolConfig_Defaults(t *testing.T) {
	cfg := PostgresPoolConfig{}.withDefaults()

	if cfg.MaxOpenConns != 25 || cfg.MaxIdleConns != 25 {
		t.Fatalf("unexpected pool sizes: %d/%d", cfg.MaxOpenConns, cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime != 30*time.Minute {
		t.Fatalf("unexpected conn lifetime: %v", cfg.ConnMaxLifetime)
	}
	if cfg.PingTimeout != 5*time.Second {
		t.Fatalf("unexpected ping timeout: %v", cfg.PingTimeout)
	}
}

func TestPostgresPoolConfig_ExplicitValuesKept(t *testing.T) {
	cfg := PostgresPoolConfig{MaxOpenConns: 5, PingTimeout: time.Second}.withDefaults()

	if cfg.MaxOpenConns != 5 {
		t.Fatalf("expected 5 open conns, got %d", cfg.MaxOpenConns)
	}
	if cfg.PingTimeout != time.Second {
		t.Fatalf("expected 1s ping timeout, got %v", cfg.PingTimeout)
	}
}
