package auth

import (
	"os"
	"strconv"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Config holds every tunable of the subsystem. It is passed explicitly to
// constructors so tests can vary thresholds per case; there is no ambient
// global state.
type Config struct {
	Issuer    string
	JWTSecret []byte

	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	MaxFailedLogins int
	LockoutWindow   time.Duration

	// TxTimeout bounds the transactional part of login and refresh.
	// Hashing runs outside it; the transaction boundary keeps a timed-out
	// request all-or-nothing.
	TxTimeout time.Duration

	BcryptCost        int
	HashWorkers       int
	MinPasswordLength int
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Issuer:            "shuushuu-api",
		JWTSecret:         []byte("dev-secret-change-me"),
		AccessTokenTTL:    15 * time.Minute,
		RefreshTokenTTL:   30 * 24 * time.Hour,
		MaxFailedLogins:   5,
		LockoutWindow:     15 * time.Minute,
		TxTimeout:         5 * time.Second,
		BcryptCost:        bcrypt.DefaultCost,
		HashWorkers:       4,
		MinPasswordLength: 8,
	}
}

// ConfigFromEnv builds a Config from environment variables, falling back to
// defaults for anything unset. godotenv is loaded once in cmd.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()
	if v := os.Getenv("AUTH_ISSUER"); v != "" {
		cfg.Issuer = v
	}
	if v := os.Getenv("AUTH_JWT_SECRET"); v != "" {
		cfg.JWTSecret = []byte(v)
	}
	if d := envDuration("AUTH_ACCESS_TTL"); d > 0 {
		cfg.AccessTokenTTL = d
	}
	if d := envDuration("AUTH_REFRESH_TTL"); d > 0 {
		cfg.RefreshTokenTTL = d
	}
	if n := envInt("AUTH_MAX_FAILED_LOGINS"); n > 0 {
		cfg.MaxFailedLogins = n
	}
	if d := envDuration("AUTH_LOCKOUT_WINDOW"); d > 0 {
		cfg.LockoutWindow = d
	}
	if d := envDuration("AUTH_TX_TIMEOUT"); d > 0 {
		cfg.TxTimeout = d
	}
	if n := envInt("AUTH_BCRYPT_COST"); n > 0 {
		cfg.BcryptCost = n
	}
	if n := envInt("AUTH_HASH_WORKERS"); n > 0 {
		cfg.HashWorkers = n
	}
	if n := envInt("AUTH_MIN_PASSWORD_LENGTH"); n > 0 {
		cfg.MinPasswordLength = n
	}
	return cfg
}

func envDuration(key string) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}

func envInt(key string) int {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}
