package utils

import (
	"testing"
	"time"
)

func TestRedisConfig_Defaults(t *testing.T) {
	cfg := RedisConfig{Addr: "localhost:6379"}.withDefaults()

	if cfg.DialTimeout != 3*time.Second {
		t.Fatalf("unexpected dial timeout: %v", cfg.DialTimeout)
	}
	if cfg.PoolSize != 20 {
		t.Fatalf("unexpected pool size: %d", cfg.PoolSize)
	}
	if cfg.PingTimeout != 2*time.Second {
		t.Fatalf("unexpected ping timeout: %v", cfg.PingTimeout)
	}
}

func TestRedisConfig_ExplicitValuesKept(t *testing.T) {
	cfg := RedisConfig{Addr: "localhost:6379", PoolSize: 5, ReadTimeout: time.Second}.withDefaults()

	if cfg.PoolSize != 5 {
		t.Fatalf("expected pool size 5, got %d", cfg.PoolSize)
	}
	if cfg.ReadTimeout != time.Second {
		t.Fatalf("expected read timeout 1s, got %v", cfg.ReadTimeout)
	}
}
