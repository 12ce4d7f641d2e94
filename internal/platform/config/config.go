package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	pstrings "circulation/pkg/platform/strings"
)

// Server captures process level configuration.
type Server struct {
	Addr     string
	LogLevel string

	JWTSigningKey string
	JWTIssuer     string
	TokenTTL      time.Duration
	// TRLFailureMode is "fail" or "warn": whether logout reports an
	// unreachable revocation list to the caller.
	TRLFailureMode string

	DatabaseURL string
	Redis       RedisConfig
	Audit       AuditConfig

	// DebtLimit blocks new loans for members owing more than this amount.
	// Nil disables the check.
	DebtLimit *decimal.Decimal

	Bootstrap BootstrapLibrarian

	LoginLockout LoginLockoutConfig
}

// LoginLockoutConfig locks an email and client address pair out after
// MaxFailures failed logins within Window.
type LoginLockoutConfig struct {
	MaxFailures  int
	Window       time.Duration
	LockDuration time.Duration
}

// RedisConfig configures the token revocation list backend.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// AuditConfig selects the audit sink. Without brokers events stay in memory.
type AuditConfig struct {
	KafkaBrokers []string
	Topic        string
}

// BootstrapLibrarian is the first librarian account created on start when the
// directory has no account with that email yet.
type BootstrapLibrarian struct {
	Name     string
	Email    string
	Password string
}

func (b BootstrapLibrarian) Enabled() bool {
	return b.Email != "" && b.Password != ""
}

const (
	defaultAddr      = ":8080"
	defaultTokenTTL  = 24 * time.Hour
	defaultDebtLimit = "500"
	defaultTopic     = "circulation.audit"

	defaultLoginMaxFailures = 5
	defaultLockoutWindow    = 15 * time.Minute
)

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() (Server, error) {
	cfg := Server{
		Addr:           getEnv("CIRCULATION_ADDR", defaultAddr),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		JWTSigningKey:  os.Getenv("JWT_SIGNING_KEY"),
		JWTIssuer:      getEnv("JWT_ISSUER", "circulation"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		TRLFailureMode: strings.ToLower(getEnv("TRL_FAILURE_MODE", "fail")),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Audit: AuditConfig{
			KafkaBrokers: splitList(os.Getenv("KAFKA_BROKERS")),
			Topic:        getEnv("AUDIT_TOPIC", defaultTopic),
		},
		Bootstrap: BootstrapLibrarian{
			Name:     getEnv("BOOTSTRAP_LIBRARIAN_NAME", "Main Librarian"),
			Email:    os.Getenv("BOOTSTRAP_LIBRARIAN_EMAIL"),
			Password: os.Getenv("BOOTSTRAP_LIBRARIAN_PASSWORD"),
		},
	}

	if cfg.JWTSigningKey == "" {
		// Use a default for development - should be overridden in production
		cfg.JWTSigningKey = "dev-secret-key-change-in-production"
	}

	ttl, err := parseDuration("TOKEN_TTL", defaultTokenTTL)
	if err != nil {
		return Server{}, err
	}
	cfg.TokenTTL = ttl

	if cfg.TRLFailureMode != "fail" && cfg.TRLFailureMode != "warn" {
		return Server{}, fmt.Errorf("TRL_FAILURE_MODE must be fail or warn, got %q", cfg.TRLFailureMode)
	}

	if v := os.Getenv("REDIS_POOL_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Server{}, fmt.Errorf("REDIS_POOL_SIZE must be a positive integer, got %q", v)
		}
		cfg.Redis.PoolSize = n
	}

	cfg.LoginLockout.MaxFailures = defaultLoginMaxFailures
	if v := os.Getenv("LOGIN_MAX_FAILURES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Server{}, fmt.Errorf("LOGIN_MAX_FAILURES must be a positive integer, got %q", v)
		}
		cfg.LoginLockout.MaxFailures = n
	}
	if cfg.LoginLockout.Window, err = parseDuration("LOGIN_LOCKOUT_WINDOW", defaultLockoutWindow); err != nil {
		return Server{}, err
	}
	if cfg.LoginLockout.LockDuration, err = parseDuration("LOGIN_LOCKOUT_DURATION", defaultLockoutWindow); err != nil {
		return Server{}, err
	}

	limit, err := parseDebtLimit(getEnv("DEBT_LIMIT", defaultDebtLimit))
	if err != nil {
		return Server{}, err
	}
	cfg.DebtLimit = limit

	return cfg, nil
}

func parseDebtLimit(v string) (*decimal.Decimal, error) {
	if strings.EqualFold(v, "off") {
		return nil, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return nil, fmt.Errorf("DEBT_LIMIT must be a decimal or \"off\", got %q", v)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("DEBT_LIMIT must not be negative, got %q", v)
	}
	return &d, nil
}

func parseDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%s must be a positive duration, got %q", key, v)
	}
	return d, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	return pstrings.DedupeAndTrim(strings.Split(v, ","))
}
