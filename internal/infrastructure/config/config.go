// Package config provides centralized configuration management.
//
// Bootstrap configuration can be loaded from:
//  1. YAML file (config.yaml)
//  2. Environment variables (fallback)
//
// Runtime tunables for the reconciliation engine (IMAP credentials, fuzzy
// threshold, folder names) live in the settings table instead and are
// re-read at the start of every poll tick. See
// internal/infrastructure/settings.
//
// Example usage:
//
//	cfg := config.LoadOrEnv()
//	dbPath := cfg.Storage.DatabasePath
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the entire application configuration
type Config struct {
	Storage       StorageConfig       `yaml:"storage"`
	HTTP          HTTPConfig          `yaml:"http"`
	SMTP          SMTPConfig          `yaml:"smtp"`
	Reconcile     ReconcileConfig     `yaml:"reconcile"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// StorageConfig holds database configuration
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// HTTPConfig holds admin API server configuration
type HTTPConfig struct {
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// SMTPConfig holds outbound mail configuration for the notification hook.
// Credentials come from the MAIL_USERNAME/MAIL_PASSWORD settings, shared
// with the IMAP side.
type SMTPConfig struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	FromAddress string `yaml:"from_address"`
	FromName    string `yaml:"from_name"`
}

// ReconcileConfig holds scheduler intervals for the long-running service
type ReconcileConfig struct {
	PollIntervalMinutes     int `yaml:"poll_interval_minutes"`
	ReminderIntervalMinutes int `yaml:"reminder_interval_minutes"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads and parses the config file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables (e.g., ${MAIL_PASSWORD})
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()

	return &cfg, nil
}

// LoadFromEnv loads configuration from environment variables only
func LoadFromEnv() *Config {
	cfg := &Config{
		Storage: StorageConfig{
			DatabasePath: getEnv("PASSTRACK_DB_PATH", "passtrack.db"),
		},
		HTTP: HTTPConfig{
			Port: getEnvInt("PASSTRACK_HTTP_PORT", 8080),
		},
		SMTP: SMTPConfig{
			Host:        getEnv("MAIL_SERVER", ""),
			Port:        getEnvInt("MAIL_PORT", 587),
			FromAddress: getEnv("MAIL_DEFAULT_SENDER", ""),
			FromName:    getEnv("MAIL_SENDER_NAME", "Passtrack"),
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", "info"),
				Format: getEnv("LOG_FORMAT", "maven"),
			},
		},
	}

	cfg.applyDefaults()

	return cfg
}

// LoadOrEnv tries config.yaml first, then falls back to environment variables
func LoadOrEnv() *Config {
	for _, path := range []string{"config.yaml", "config.yml"} {
		if _, err := os.Stat(path); err == nil {
			cfg, err := Load(path)
			if err == nil {
				return cfg
			}
			fmt.Fprintf(os.Stderr, "warning: failed to parse %s: %v\n", path, err)
		}
	}
	return LoadFromEnv()
}

func (c *Config) applyDefaults() {
	if c.Storage.DatabasePath == "" {
		c.Storage.DatabasePath = "passtrack.db"
	}
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8080
	}
	if len(c.HTTP.AllowedOrigins) == 0 {
		c.HTTP.AllowedOrigins = []string{"http://localhost:3000", "http://localhost:5173"}
	}
	if c.SMTP.Port == 0 {
		c.SMTP.Port = 587
	}
	if c.Reconcile.PollIntervalMinutes == 0 {
		c.Reconcile.PollIntervalMinutes = 5
	}
	if c.Reconcile.ReminderIntervalMinutes == 0 {
		// Twice a day is plenty for late-payment reminders
		c.Reconcile.ReminderIntervalMinutes = 720
	}
	if c.Observability.Logging.Level == "" {
		c.Observability.Logging.Level = "info"
	}
}

// getEnv retrieves an environment variable with a fallback default
func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

// getEnvInt retrieves an integer environment variable with a fallback default
func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		var result int
		if _, err := fmt.Sscanf(val, "%d", &result); err == nil {
			return result
		}
	}
	return fallback
}
