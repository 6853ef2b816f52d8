package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Lockout  LockoutConfig
	Session  SessionConfig
	Alerts   AlertConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	TrustedProxies []string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
}

// LockoutPolicy configures the brute-force guard for one subject kind.
// AttemptWindow=0 means the failure counter never self-decays and resets
// only on success or admin unlock.
type LockoutPolicy struct {
	MaxAttempts     int
	LockoutDuration time.Duration
	AttemptWindow   time.Duration
}

type LockoutConfig struct {
	Account LockoutPolicy
	IP      LockoutPolicy
}

type SessionConfig struct {
	IdleTimeout   time.Duration // sliding expiry
	AbsoluteTTL   time.Duration // hard cap regardless of activity
	SweepInterval time.Duration // how often expired sessions are stamped
	Retention     time.Duration // how long terminated sessions are kept
}

type AlertConfig struct {
	Enabled     bool
	AWSRegion   string
	FromAddress string
	OpsAddress  string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	env := getEnv("ENV", "development")

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "authcore"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            env,
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			TrustedProxies: parseTrustedProxies(),
			ReadTimeout:    getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:    getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
		},
		Lockout: LockoutConfig{
			Account: LockoutPolicy{
				MaxAttempts:     getEnvAsInt("LOCKOUT_ACCOUNT_MAX_ATTEMPTS", 5),
				LockoutDuration: getEnvAsDuration("LOCKOUT_ACCOUNT_DURATION", 15*time.Minute),
				AttemptWindow:   getEnvAsDuration("LOCKOUT_ACCOUNT_WINDOW", 0),
			},
			IP: LockoutPolicy{
				MaxAttempts:     getEnvAsInt("LOCKOUT_IP_MAX_ATTEMPTS", 20),
				LockoutDuration: getEnvAsDuration("LOCKOUT_IP_DURATION", 15*time.Minute),
				AttemptWindow:   getEnvAsDuration("LOCKOUT_IP_WINDOW", 1*time.Hour),
			},
		},
		Session: SessionConfig{
			IdleTimeout:   getEnvAsDuration("SESSION_IDLE_TIMEOUT", 30*time.Minute),
			AbsoluteTTL:   getEnvAsDuration("SESSION_ABSOLUTE_TTL", 8*time.Hour),
			SweepInterval: getEnvAsDuration("SESSION_SWEEP_INTERVAL", 5*time.Minute),
			Retention:     getEnvAsDuration("SESSION_RETENTION", 30*24*time.Hour),
		},
		Alerts: AlertConfig{
			Enabled:     getEnvAsBool("ALERTS_ENABLED", false),
			AWSRegion:   getEnv("ALERTS_AWS_REGION", "us-east-1"),
			FromAddress: getEnv("ALERTS_FROM_ADDRESS", ""),
			OpsAddress:  getEnv("ALERTS_OPS_ADDRESS", ""),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	if err := validateLockout(&cfg.Lockout); err != nil {
		return nil, err
	}

	if cfg.Session.IdleTimeout <= 0 || cfg.Session.AbsoluteTTL <= 0 {
		return nil, fmt.Errorf("session timeouts must be positive")
	}

	if cfg.Alerts.Enabled && (cfg.Alerts.FromAddress == "" || cfg.Alerts.OpsAddress == "") {
		return nil, fmt.Errorf("ALERTS_FROM_ADDRESS and ALERTS_OPS_ADDRESS are required when alerts are enabled")
	}

	return cfg, nil
}

func validateLockout(cfg *LockoutConfig) error {
	for _, p := range []struct {
		name   string
		policy LockoutPolicy
	}{
		{"account", cfg.Account},
		{"ip", cfg.IP},
	} {
		if p.policy.MaxAttempts < 1 {
			return fmt.Errorf("lockout %s max attempts must be at least 1", p.name)
		}
		if p.policy.LockoutDuration <= 0 {
			return fmt.Errorf("lockout %s duration must be positive", p.name)
		}
		if p.policy.AttemptWindow < 0 {
			return fmt.Errorf("lockout %s attempt window cannot be negative", p.name)
		}
	}
	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func parseTrustedProxies() []string {
	raw := getEnv("TRUSTED_PROXIES", "")
	if raw == "" {
		return nil
	}
	proxies := strings.Split(raw, ",")
	for i, p := range proxies {
		proxies[i] = strings.TrimSpace(p)
	}
	return proxies
}
