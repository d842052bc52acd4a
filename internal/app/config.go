package app

import (
	"errors"
	"fmt"
)

// Config holds the process-level settings of an App. Everything about where
// data lives comes from the job file.
type Config struct {
	// JobFile is the HCL job file; empty uses config.Default.
	JobFile string

	LogFormat       string
	LogLevel        string
	HealthcheckPort int

	// Writer identifies this process in committed versions; empty generates one.
	Writer string
	// MaxAttempts and Concurrency override the job file when positive.
	MaxAttempts int
	Concurrency int
}

func NewConfig(cfg Config) (*Config, error) {
	switch cfg.LogFormat {
	case "":
		cfg.LogFormat = "text"
	case "text", "json":
	default:
		return nil, fmt.Errorf("invalid log format %q: must be 'text' or 'json'", cfg.LogFormat)
	}
	switch cfg.LogLevel {
	case "":
		cfg.LogLevel = "info"
	case "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("invalid log level %q: must be 'debug', 'info', 'warn', or 'error'", cfg.LogLevel)
	}
	if cfg.HealthcheckPort < 0 || cfg.HealthcheckPort > 65535 {
		return nil, fmt.Errorf("invalid healthcheck port %d", cfg.HealthcheckPort)
	}
	if cfg.MaxAttempts < 0 || cfg.Concurrency < 0 {
		return nil, errors.New("max attempts and concurrency cannot be negative")
	}
	return &cfg, nil
}
