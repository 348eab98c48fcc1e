// Package config loads and validates the configuration surface spec.md §6
// names: the ExpertConfig options of §4.4, the global solver K, the list of
// Expert configurations, and the Gateway's per-model rate limits and
// process-wide time/timeout budgets.
package config

import (
	"fmt"
	"time"
)

// Config is the complete arcsolver configuration.
type Config struct {
	Solver  SolverConfig   `yaml:"solver" koanf:"solver"`
	Gateway GatewayConfig  `yaml:"gateway" koanf:"gateway"`
	Experts []ExpertConfig `yaml:"experts" koanf:"experts"`
}

// SolverConfig configures the Solver Facade (spec.md §4.8).
type SolverConfig struct {
	// K is the number of final ranked attempts the Voter emits.
	K int `yaml:"k" koanf:"k" validate:"gte=1"`
}

// ModelRouteConfig binds a model_id an Expert names to a registered Gateway
// backend and its per-model rate limit (spec.md §4.5, §6).
type ModelRouteConfig struct {
	ID                string         `yaml:"id" koanf:"id" validate:"required"`
	Backend           string         `yaml:"backend" koanf:"backend" validate:"required"`
	BackendConfig     map[string]any `yaml:"backend_config,omitempty" koanf:"backend_config"`
	RequestsPerSecond float64        `yaml:"requests_per_second" koanf:"requests_per_second" validate:"gt=0"`
	Burst             float64        `yaml:"burst,omitempty" koanf:"burst" validate:"gte=0"`
}

// GatewayConfig configures the LLM Gateway: its model routes and the two
// process-wide budgets spec.md §4.5 requires it to track.
type GatewayConfig struct {
	Models []ModelRouteConfig `yaml:"models" koanf:"models"`

	// TotalTime is a duration string (e.g. "10m"); the Gateway's remaining
	// wall-clock time budget. Empty or zero means unbudgeted.
	TotalTime string `yaml:"total_time,omitempty" koanf:"total_time"`
	// TotalTimeouts bounds the number of per-call timeouts the Gateway will
	// tolerate before failing fast. Zero means unbudgeted.
	TotalTimeouts int `yaml:"total_timeouts,omitempty" koanf:"total_timeouts" validate:"gte=0"`

	RetryMaxAttempts int `yaml:"retry_max_attempts,omitempty" koanf:"retry_max_attempts" validate:"gte=0"`
	FatalRetryBudget int `yaml:"fatal_retry_budget,omitempty" koanf:"fatal_retry_budget" validate:"gte=0"`
	// PerCallTimeout is a duration string bounding each individual call.
	PerCallTimeout string `yaml:"per_call_timeout,omitempty" koanf:"per_call_timeout"`
}

// ExpertConfig is the per-expert configuration surface spec.md §4.4 enumerates.
type ExpertConfig struct {
	// ID identifies this expert configuration; expert_id is derived from it
	// as "ID#k" by the Coordinator (spec.md §4.6).
	ID      string `yaml:"id" koanf:"id" validate:"required"`
	ModelID string `yaml:"model_id" koanf:"model_id" validate:"required"`

	MaxIterations        int            `yaml:"max_iterations" koanf:"max_iterations" validate:"gte=1"`
	MaxSolutions         int            `yaml:"max_solutions" koanf:"max_solutions" validate:"gte=0"`
	SelectionProbability float64        `yaml:"selection_probability" koanf:"selection_probability" validate:"gte=0,lte=1"`
	ImprovingOrder       bool           `yaml:"improving_order" koanf:"improving_order"`
	ShuffleExamples      bool           `yaml:"shuffle_examples" koanf:"shuffle_examples"`
	ReturnBestResult     bool           `yaml:"return_best_result" koanf:"return_best_result"`
	Temperature          float64        `yaml:"temperature" koanf:"temperature" validate:"gte=0,lte=2"`
	ModelExtras          map[string]any `yaml:"model_extras,omitempty" koanf:"model_extras"`
	CountFailedMatches   bool           `yaml:"count_failed_matches" koanf:"count_failed_matches"`

	// PreferLaterOnTie resolves the Open Question spec.md §9 leaves implicit:
	// spec.md §4.4's edge policy ("an Attempt with aggregate_score equal to
	// the current best replaces the best") is the true-by-default behavior;
	// set false to keep the earliest-seen best on ties instead.
	PreferLaterOnTie bool `yaml:"prefer_later_on_tie" koanf:"prefer_later_on_tie"`
}

// DefaultExpertConfig returns the defaults spec.md §4.4's option table names.
func DefaultExpertConfig() ExpertConfig {
	return ExpertConfig{
		MaxIterations:        10,
		MaxSolutions:         5,
		SelectionProbability: 1.0,
		ReturnBestResult:     true,
		PreferLaterOnTie:     true,
	}
}

// DefaultGatewayConfig returns sensible Gateway defaults matching pkg/gateway's
// own option defaults, so a config omitting these fields still behaves the
// way gateway.New's zero-value Options would.
func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{
		RetryMaxAttempts: 3,
		FatalRetryBudget: 2,
		PerCallTimeout:   "60s",
	}
}

// Validate checks the configuration against the bounds spec.md calls out
// beyond what validator struct tags already enforce: duration parseability,
// expert model_id references resolving to a configured route, and uniqueness
// of expert and model IDs.
func (c *Config) Validate() error {
	if c.Solver.K < 1 {
		return fmt.Errorf("solver.k must be at least 1, got %d", c.Solver.K)
	}

	if c.Gateway.TotalTime != "" {
		if _, err := time.ParseDuration(c.Gateway.TotalTime); err != nil {
			return fmt.Errorf("invalid gateway.total_time: %w", err)
		}
	}
	if c.Gateway.PerCallTimeout != "" {
		if _, err := time.ParseDuration(c.Gateway.PerCallTimeout); err != nil {
			return fmt.Errorf("invalid gateway.per_call_timeout: %w", err)
		}
	}

	models := make(map[string]bool, len(c.Gateway.Models))
	for _, m := range c.Gateway.Models {
		if m.ID == "" {
			return fmt.Errorf("gateway.models: entry missing id")
		}
		if models[m.ID] {
			return fmt.Errorf("gateway.models: duplicate model id %q", m.ID)
		}
		models[m.ID] = true
		if m.RequestsPerSecond <= 0 {
			return fmt.Errorf("gateway.models.%s.requests_per_second must be positive", m.ID)
		}
	}

	if len(c.Experts) == 0 {
		return fmt.Errorf("experts: at least one expert configuration is required")
	}
	experts := make(map[string]bool, len(c.Experts))
	for _, e := range c.Experts {
		if e.ID == "" {
			return fmt.Errorf("experts: entry missing id")
		}
		if experts[e.ID] {
			return fmt.Errorf("experts: duplicate expert id %q", e.ID)
		}
		experts[e.ID] = true

		if !models[e.ModelID] {
			return fmt.Errorf("experts.%s: model_id %q is not configured in gateway.models", e.ID, e.ModelID)
		}
		if e.MaxIterations < 1 {
			return fmt.Errorf("experts.%s.max_iterations must be at least 1", e.ID)
		}
		if e.SelectionProbability < 0 || e.SelectionProbability > 1 {
			return fmt.Errorf("experts.%s.selection_probability must be between 0 and 1", e.ID)
		}
		if e.Temperature < 0 || e.Temperature > 2 {
			return fmt.Errorf("experts.%s.temperature must be between 0 and 2", e.ID)
		}
	}

	return nil
}
