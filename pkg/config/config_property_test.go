// Package config provides property-based tests for configuration fallback functionality.
// These tests verify universal properties that should hold across all valid inputs.
package config

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestProperty_InvalidKnobsFallBackToDefaults tests that non-positive
// knob values fall back to defaults.
//
// Property: For any non-positive configuration value (polling timeout,
// concurrency, job intervals), the system SHALL use the default value,
// ensuring the collector remains operational with a sparse config file.
func TestProperty_InvalidKnobsFallBackToDefaults(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("non-positive polling knobs fall back to defaults", prop.ForAll(
		func(timeout, concurrency int) bool {
			cfg := &Config{}
			cfg.Polling.TimeoutSeconds = timeout
			cfg.Polling.Concurrency = concurrency

			validateAndApplyDefaults(cfg)

			return cfg.Polling.TimeoutSeconds == DefaultPollTimeoutSeconds &&
				cfg.Polling.Concurrency == DefaultPollConcurrency
		},
		gen.IntRange(-1000, 0),
		gen.IntRange(-1000, 0),
	))

	properties.Property("non-positive scheduling knobs fall back to defaults", prop.ForAll(
		func(stats, tasks, retentionDays, retentionHours int) bool {
			cfg := &Config{}
			cfg.Scheduling.StatsIntervalMinutes = stats
			cfg.Scheduling.TaskIntervalMinutes = tasks
			cfg.Scheduling.RetentionDays = retentionDays
			cfg.Scheduling.RetentionIntervalHours = retentionHours

			validateAndApplyDefaults(cfg)

			return cfg.Scheduling.StatsIntervalMinutes == DefaultStatsIntervalMinutes &&
				cfg.Scheduling.TaskIntervalMinutes == DefaultTaskIntervalMinutes &&
				cfg.Scheduling.RetentionDays == DefaultRetentionDays &&
				cfg.Scheduling.RetentionIntervalHours == DefaultRetentionIntervalHours
		},
		gen.IntRange(-1000, 0),
		gen.IntRange(-1000, 0),
		gen.IntRange(-1000, 0),
		gen.IntRange(-1000, 0),
	))

	properties.TestingRun(t)
}

// TestProperty_ValidValuesArePreserved tests that valid configuration
// values are not overwritten.
//
// Property: For any positive configuration value, the system SHALL
// preserve the value and NOT overwrite it with the default.
func TestProperty_ValidValuesArePreserved(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("positive knob values are preserved", prop.ForAll(
		func(port, timeout, concurrency, stats int) bool {
			cfg := &Config{}
			cfg.Server.Port = port
			cfg.Polling.TimeoutSeconds = timeout
			cfg.Polling.Concurrency = concurrency
			cfg.Scheduling.StatsIntervalMinutes = stats

			validateAndApplyDefaults(cfg)

			return cfg.Server.Port == port &&
				cfg.Polling.TimeoutSeconds == timeout &&
				cfg.Polling.Concurrency == concurrency &&
				cfg.Scheduling.StatsIntervalMinutes == stats
		},
		gen.IntRange(1, 65535),
		gen.IntRange(1, 300),
		gen.IntRange(1, 64),
		gen.IntRange(1, 1440),
	))

	properties.TestingRun(t)
}

// TestProperty_ValidationIsIdempotent tests that applying defaults
// twice produces the same result as applying them once.
func TestProperty_ValidationIsIdempotent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("applying defaults is idempotent", prop.ForAll(
		func(timeout, concurrency, stats, tasks int) bool {
			cfg := &Config{}
			cfg.Polling.TimeoutSeconds = timeout
			cfg.Polling.Concurrency = concurrency
			cfg.Scheduling.StatsIntervalMinutes = stats
			cfg.Scheduling.TaskIntervalMinutes = tasks

			validateAndApplyDefaults(cfg)
			firstPolling := cfg.Polling
			firstScheduling := cfg.Scheduling
			validateAndApplyDefaults(cfg)

			return cfg.Polling == firstPolling && cfg.Scheduling == firstScheduling
		},
		gen.IntRange(-100, 100),
		gen.IntRange(-100, 100),
		gen.IntRange(-100, 100),
		gen.IntRange(-100, 100),
	))

	properties.TestingRun(t)
}
