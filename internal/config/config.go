// Package config reads engine settings from the environment, with an
// optional .env file for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything the engine needs at startup.
type Config struct {
	// GCP project and dataset backing the code cache.
	ProjectID string
	Dataset   string

	// ModelName drives config and code generation; SummaryModelName is the
	// cheaper model used for validation-summary extraction.
	ModelName        string
	SummaryModelName string

	// StepBudget bounds the generate/repair loop.
	StepBudget int

	// CategorizeBatchSize bounds transactions per categorization call.
	CategorizeBatchSize int

	// SandboxTimeout bounds one generated-code execution.
	SandboxTimeout time.Duration

	// ValidationTolerance in absolute currency units.
	ValidationTolerance float64
}

// Load reads configuration. A missing .env file is not an error; explicit
// environment always wins over file values.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		ProjectID:           os.Getenv("ENGINE_PROJECT_ID"),
		Dataset:             getEnv("ENGINE_DATASET", "finance"),
		ModelName:           getEnv("ENGINE_MODEL", "gemini-2.5-flash"),
		SummaryModelName:    getEnv("ENGINE_SUMMARY_MODEL", "gemini-2.5-flash-lite"),
		StepBudget:          8,
		CategorizeBatchSize: 50,
		SandboxTimeout:      10 * time.Second,
		ValidationTolerance: 100,
	}

	var err error
	if cfg.StepBudget, err = getIntEnv("ENGINE_STEP_BUDGET", cfg.StepBudget); err != nil {
		return nil, err
	}
	if cfg.CategorizeBatchSize, err = getIntEnv("ENGINE_CATEGORIZE_BATCH", cfg.CategorizeBatchSize); err != nil {
		return nil, err
	}
	if v := os.Getenv("ENGINE_SANDBOX_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("config: ENGINE_SANDBOX_TIMEOUT: %w", err)
		}
		cfg.SandboxTimeout = d
	}
	if v := os.Getenv("ENGINE_VALIDATION_TOLERANCE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("config: ENGINE_VALIDATION_TOLERANCE: %w", err)
		}
		cfg.ValidationTolerance = f
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getIntEnv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return n, nil
}
