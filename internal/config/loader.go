package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config captures environment driven configuration values for the matcher service.
type Config struct {
	Environment   string
	SQLiteDSN     string
	SweepInterval time.Duration
	LogLevel      string
}

// IsProduction reports whether the service runs with production settings.
func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// Load parses configuration values from the current process environment.
//
// Outside production a .env file in the working directory is loaded first, so
// local development does not need exported variables. The loader applies
// sensible defaults for optional fields and reports every invalid entry at once.
func Load() (Config, error) {
	environment := strings.TrimSpace(os.Getenv("MATCHER_ENV"))
	if environment == "" {
		environment = "development"
	}
	if !strings.EqualFold(environment, "production") {
		// Missing .env is fine; exported variables still apply.
		_ = godotenv.Load()
	}

	cfg := Config{
		Environment:   environment,
		SQLiteDSN:     "file:matcher.db",
		SweepInterval: time.Minute,
		LogLevel:      "info",
	}

	invalid := make([]string, 0, 1)

	if dsn := strings.TrimSpace(os.Getenv("MATCHER_SQLITE_DSN")); dsn != "" {
		cfg.SQLiteDSN = dsn
	}

	if intervalValue := strings.TrimSpace(os.Getenv("MATCHER_SWEEP_INTERVAL")); intervalValue != "" {
		interval, err := time.ParseDuration(intervalValue)
		if err != nil || interval <= 0 {
			invalid = append(invalid, "MATCHER_SWEEP_INTERVAL")
		} else {
			cfg.SweepInterval = interval
		}
	}

	if level := strings.TrimSpace(os.Getenv("MATCHER_LOG_LEVEL")); level != "" {
		switch strings.ToLower(level) {
		case "debug", "info", "warn", "warning", "error":
			cfg.LogLevel = strings.ToLower(level)
		default:
			invalid = append(invalid, "MATCHER_LOG_LEVEL")
		}
	}

	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("invalid environment variable values: %s", strings.Join(invalid, ", "))
	}

	return cfg, nil
}
