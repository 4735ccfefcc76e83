package graflow

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the layered configuration surface spec.md §6 names: struct
// defaults -> JSON settings file -> environment variable overrides, in
// that precedence order. Grounded on rendis-opcode's cmd/opcode/config.go.
type Config struct {
	EventsEnabled         bool          `json:"workflow.events.enabled"`
	EventsLogLevel        string        `json:"workflow.events.log-level"`
	ThreadPoolSize        int           `json:"workflow.task.execution.thread-pool-size"`
	RetryMaxAttempts      int           `json:"workflow.retry.max-attempts"`
	RetryInitialInterval  time.Duration `json:"workflow.retry.initial-interval"`
	RetryMultiplier       float64       `json:"workflow.retry.multiplier"`
	RetryMaxInterval      time.Duration `json:"workflow.retry.max-interval"`
	SchedulerTickSeconds  int           `json:"workflow.scheduler.tick-seconds"`
	RetentionTerminalDays int           `json:"workflow.retention.terminal-days"`
}

// DefaultConfig matches every default spec.md §2/§4.2/§4.8/§6 documents.
func DefaultConfig() Config {
	return Config{
		EventsEnabled:         true,
		EventsLogLevel:        "INFO",
		ThreadPoolSize:        10,
		RetryMaxAttempts:      3,
		RetryInitialInterval:  1 * time.Second,
		RetryMultiplier:       2.0,
		RetryMaxInterval:      60 * time.Second,
		SchedulerTickSeconds:  30,
		RetentionTerminalDays: 30,
	}
}

// RetryPolicy derives a RetryPolicy from the loaded config.
func (c Config) RetryPolicy() RetryPolicy {
	return RetryPolicy{
		InitialInterval: c.RetryInitialInterval,
		Multiplier:      c.RetryMultiplier,
		MaxInterval:     c.RetryMaxInterval,
		MaxAttempts:     c.RetryMaxAttempts,
	}
}

// settingsPath returns the JSON settings file path, honoring
// GRAFLOW_CONFIG_PATH, else ./graflow.settings.json.
func settingsPath() string {
	if p := os.Getenv("GRAFLOW_CONFIG_PATH"); p != "" {
		return p
	}
	return "graflow.settings.json"
}

// LoadConfig layers DefaultConfig() -> the JSON settings file (missing
// file is not an error) -> GRAFLOW_* environment variable overrides.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()

	if data, err := os.ReadFile(settingsPath()); err == nil {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", settingsPath(), err)
		}
	} else if !os.IsNotExist(err) {
		return cfg, fmt.Errorf("read %s: %w", settingsPath(), err)
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v, ok := os.LookupEnv("GRAFLOW_EVENTS_ENABLED"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.EventsEnabled = b
		}
	}
	if v, ok := os.LookupEnv("GRAFLOW_EVENTS_LOG_LEVEL"); ok {
		cfg.EventsLogLevel = v
	}
	if v, ok := os.LookupEnv("GRAFLOW_THREAD_POOL_SIZE"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ThreadPoolSize = n
		}
	}
	if v, ok := os.LookupEnv("GRAFLOW_RETRY_MAX_ATTEMPTS"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RetryMaxAttempts = n
		}
	}
	if v, ok := os.LookupEnv("GRAFLOW_RETRY_INITIAL_INTERVAL_MS"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RetryInitialInterval = time.Duration(n) * time.Millisecond
		}
	}
	if v, ok := os.LookupEnv("GRAFLOW_RETRY_MULTIPLIER"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.RetryMultiplier = f
		}
	}
	if v, ok := os.LookupEnv("GRAFLOW_RETRY_MAX_INTERVAL_MS"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RetryMaxInterval = time.Duration(n) * time.Millisecond
		}
	}
	if v, ok := os.LookupEnv("GRAFLOW_SCHEDULER_TICK_SECONDS"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.SchedulerTickSeconds = n
		}
	}
	if v, ok := os.LookupEnv("GRAFLOW_RETENTION_TERMINAL_DAYS"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RetentionTerminalDays = n
		}
	}
}
