package config

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func setEnv(t *testing.T, kv map[string]string) {
	t.Helper()
	for k, v := range kv {
		t.Setenv(k, v)
	}
}

func TestLoadDefaultsWithMemoryBackend(t *testing.T) {
	setEnv(t, map[string]string{"STORE_BACKEND": "memory", "JWT_SECRET": "s"})
	cfg, err := load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	qr := cfg.QR
	if qr.StoreTimeout != 3*time.Second || qr.DefaultExpiration != 24*time.Hour || qr.DynamicExpiration != 2*time.Hour {
		t.Fatalf("unexpected defaults %+v", qr)
	}
	if qr.EnforceRotation || qr.RotationTolerance != 1 || qr.CleanupInterval != 10*time.Minute {
		t.Fatalf("unexpected rotation defaults %+v", qr)
	}
	if cfg.Port != "8080" {
		t.Fatalf("port = %q", cfg.Port)
	}
}

func TestLoadOverrides(t *testing.T) {
	setEnv(t, map[string]string{
		"STORE_BACKEND":               "Redis",
		"JWT_SECRET":                  "s",
		"STORE_TIMEOUT":               "750ms",
		"ENFORCE_ROTATION":            "yes",
		"ROTATION_TOLERANCE":          "0",
		"QR_DYNAMIC_EXPIRATION_HOURS": "6",
		"QUEUE_ENABLED":               "1",
	})
	cfg, err := load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	qr := cfg.QR
	if qr.StoreBackend != BackendRedis || qr.StoreTimeout != 750*time.Millisecond || !qr.EnforceRotation ||
		qr.RotationTolerance != 0 || qr.DynamicExpiration != 6*time.Hour || !qr.QueueEnabled {
		t.Fatalf("overrides not applied: %+v", qr)
	}
}

func TestLoadErrors(t *testing.T) {
	cases := map[string]map[string]string{
		"missing secret":   {"STORE_BACKEND": "memory", "JWT_SECRET": ""},
		"unknown backend":  {"STORE_BACKEND": "mongo", "JWT_SECRET": "s"},
		"mysql without db": {"STORE_BACKEND": "mysql", "JWT_SECRET": "s", "DB_USER": "", "DB_NAME": ""},
		"negative tol":     {"STORE_BACKEND": "memory", "JWT_SECRET": "s", "ROTATION_TOLERANCE": "-2"},
		"zero expiration":  {"STORE_BACKEND": "memory", "JWT_SECRET": "s", "QR_DEFAULT_EXPIRATION_HOURS": "0"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			setEnv(t, env)
			if _, err := load(); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestRateLimitAndCacheConfig(t *testing.T) {
	setEnv(t, map[string]string{"RATE_LIMIT_BURST": "5", "RATE_LIMIT_REFILL_INTERVAL": "1m", "RATE_LIMIT_TTL": "1s"})
	rl := LoadRateLimitConfig()
	if rl.Capacity != 5 || rl.RefillInterval != time.Minute || rl.TTL != 5*time.Minute {
		t.Fatalf("rate limit config %+v", rl)
	}
	setEnv(t, map[string]string{"CACHE_METHODS": "get, head"})
	cc := LoadCacheConfig()
	if !cc.Methods["GET"] || !cc.Methods["HEAD"] || cc.Prefix != "qrcache" {
		t.Fatalf("cache config %+v", cc)
	}
}

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)
	host, port, _ := strings.Cut(mr.Addr(), ":")
	setEnv(t, map[string]string{"REDIS_HOST": host, "REDIS_PORT": port})
	rdb := NewRedisClient(LoadRedisConfig())
	if rdb == nil {
		t.Fatal("expected client for reachable server")
	}
	defer rdb.Close()
	if err := rdb.Set(context.Background(), "k", "v", 0).Err(); err != nil {
		t.Fatalf("set: %v", err)
	}
	if NewRedisClient(RedisConfig{Addr: "127.0.0.1:1"}) != nil {
		t.Fatal("expected nil client for unreachable server")
	}
}
