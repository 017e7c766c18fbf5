package config // package config loads application configuration from environment variables

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store backends accepted by STORE_BACKEND.
const (
	BackendMySQL  = "mysql"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.
type Config struct {
	Env        string // application environment (dev, prod)
	Port       string // HTTP port to listen on
	DBUser     string
	DBPass     string // optional
	DBHost     string
	DBPort     string
	DBName     string
	JWTSecret  string // verifies organizer tokens
	BcryptCost int    // device fingerprint hashing cost
	QR         QRConfig
}

// QRConfig groups the check-in core settings.
type QRConfig struct {
	StoreBackend      string        // mysql, redis or memory
	StoreTimeout      time.Duration // bound on every store call
	RedisPrefix       string        // key namespace for the redis store
	PayloadBaseURL    string
	ImageSize         int // PNG edge length in pixels
	DefaultExpiration time.Duration
	DynamicExpiration time.Duration
	EnforceRotation   bool
	RotationTolerance int
	CleanupInterval   time.Duration // 0 disables the expiry sweeper
	QueueEnabled      bool
	AuditLogFile      string // consumer output for checkin.scanned events
	LogLevel          string
	LogFile           string // empty logs to stdout only
}

// Load reads the configuration and exits the process when a required
// variable is missing or malformed.
func Load() Config {
	cfg, err := load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	return cfg
}

func load() (Config, error) {
	qr := QRConfig{
		StoreBackend:      strings.ToLower(envStr("STORE_BACKEND", BackendMySQL)),
		StoreTimeout:      envDur("STORE_TIMEOUT", 3*time.Second),
		RedisPrefix:       envStr("QR_REDIS_PREFIX", "qr"),
		PayloadBaseURL:    envStr("QR_PAYLOAD_BASE_URL", "https://checkin.local/scan"),
		ImageSize:         envInt("QR_IMAGE_SIZE", 256),
		DefaultExpiration: time.Duration(envInt("QR_DEFAULT_EXPIRATION_HOURS", 24)) * time.Hour,
		DynamicExpiration: time.Duration(envInt("QR_DYNAMIC_EXPIRATION_HOURS", 2)) * time.Hour,
		EnforceRotation:   envBool("ENFORCE_ROTATION", false),
		RotationTolerance: envInt("ROTATION_TOLERANCE", 1),
		CleanupInterval:   envDur("CLEANUP_INTERVAL", 10*time.Minute),
		QueueEnabled:      envBool("QUEUE_ENABLED", false),
		AuditLogFile:      envStr("CHECKIN_AUDIT_LOG", "logs/checkin.log"),
		LogLevel:          envStr("LOG_LEVEL", "info"),
		LogFile:           os.Getenv("LOG_FILE"),
	}

	switch qr.StoreBackend {
	case BackendMySQL, BackendRedis, BackendMemory:
	default:
		return Config{}, fmt.Errorf("invalid STORE_BACKEND %q (want mysql, redis or memory)", qr.StoreBackend)
	}
	if qr.DefaultExpiration <= 0 || qr.DynamicExpiration <= 0 {
		return Config{}, fmt.Errorf("expiration hours must be positive")
	}
	if qr.RotationTolerance < 0 {
		return Config{}, fmt.Errorf("ROTATION_TOLERANCE must not be negative")
	}

	cfg := Config{
		Env:        envStr("APP_ENV", "dev"),
		Port:       envStr("APP_PORT", "8080"),
		DBUser:     os.Getenv("DB_USER"),
		DBPass:     os.Getenv("DB_PASS"),
		DBHost:     envStr("DB_HOST", "localhost"),
		DBPort:     envStr("DB_PORT", "3306"),
		DBName:     os.Getenv("DB_NAME"),
		BcryptCost: envInt("BCRYPT_COST", 10),
		QR:         qr,
	}

	var err error
	if cfg.JWTSecret, err = require("JWT_SECRET"); err != nil {
		return Config{}, err
	}
	if qr.StoreBackend == BackendMySQL {
		if cfg.DBUser, err = require("DB_USER"); err != nil {
			return Config{}, err
		}
		if cfg.DBName, err = require("DB_NAME"); err != nil {
			return Config{}, err
		}
	}
	return cfg, nil
}

func require(key string) (string, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return "", fmt.Errorf("missing required env var: %s", key)
	}
	return v, nil
}

func envStr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func envBool(k string, d bool) bool {
	switch strings.ToLower(os.Getenv(k)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return d
}

func envInt(k string, d int) int {
	if n, err := strconv.Atoi(os.Getenv(k)); err == nil {
		return n
	}
	return d
}

func envDur(k string, d time.Duration) time.Duration {
	if dur, err := time.ParseDuration(os.Getenv(k)); err == nil {
		return dur
	}
	return d
}
