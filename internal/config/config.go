package config

import (
	"fmt"
	"time"
)

// Config holds server configuration
type Config struct {
	// Server settings
	Port int
	Host string

	// Storage settings
	DatabasePath string

	// Ruleset settings
	RulesetPath string
	SchemaPath  string

	// Detection settings
	ThresholdSigma float64
	CriticalSigma  float64
	BaselineDays   int
	LookbackHours  int

	// Cycle settings
	AlertTTL           time.Duration
	DetectionInterval  time.Duration
	EvaluationInterval time.Duration

	// Synthetic feed settings
	SimulatePorts bool
	SimulateSeed  int64
	SignalFixture string

	// Operational settings
	GracefulShutdownTimeout time.Duration
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}

	if c.DatabasePath == "" {
		return fmt.Errorf("database path is required")
	}

	if c.ThresholdSigma <= 0 {
		return fmt.Errorf("threshold sigma must be positive, got %.2f", c.ThresholdSigma)
	}

	if c.CriticalSigma < c.ThresholdSigma {
		return fmt.Errorf("critical sigma %.2f must be at least threshold sigma %.2f", c.CriticalSigma, c.ThresholdSigma)
	}

	if c.BaselineDays <= 0 {
		return fmt.Errorf("baseline window must be positive, got %d days", c.BaselineDays)
	}

	if c.LookbackHours <= 0 {
		return fmt.Errorf("lookback must be positive, got %d hours", c.LookbackHours)
	}

	if c.AlertTTL <= 0 {
		return fmt.Errorf("alert TTL must be positive, got %s", c.AlertTTL)
	}

	if c.DetectionInterval <= 0 || c.EvaluationInterval <= 0 {
		return fmt.Errorf("cycle intervals must be positive")
	}

	return nil
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		Port:                    8080,
		Host:                    "0.0.0.0",
		DatabasePath:            "linkedfate.db",
		RulesetPath:             "rules/default.yaml",
		SchemaPath:              "schemas/ruleset_v1.json",
		ThresholdSigma:          2.0,
		CriticalSigma:           3.0,
		BaselineDays:            30,
		LookbackHours:           6,
		AlertTTL:                time.Hour,
		DetectionInterval:       time.Hour,
		EvaluationInterval:      5 * time.Minute,
		SimulatePorts:           false,
		GracefulShutdownTimeout: 30 * time.Second,
	}
}
