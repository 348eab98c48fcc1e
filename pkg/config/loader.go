package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads and merges configuration files in hierarchical order.
// Later files override earlier ones (base → site → run → CLI).
func LoadConfig(paths ...string) (*Config, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("no configuration files provided")
	}

	var result *Config
	for _, path := range paths {
		cfg, err := loadSingleConfig(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
		}
		if result == nil {
			result = cfg
		} else {
			result.Merge(cfg)
		}
	}

	if err := interpolateConfigEnvVars(result); err != nil {
		return nil, fmt.Errorf("failed to interpolate environment variables: %w", err)
	}
	if err := result.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return result, nil
}

// loadSingleConfig loads a single YAML configuration file.
func loadSingleConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse yaml: %w", err)
	}
	return &cfg, nil
}

// Merge merges other into c, with other taking precedence on any field it
// sets explicitly (non-zero/non-empty).
func (c *Config) Merge(other *Config) {
	if other.Solver.K != 0 {
		c.Solver.K = other.Solver.K
	}

	if other.Gateway.TotalTime != "" {
		c.Gateway.TotalTime = other.Gateway.TotalTime
	}
	if other.Gateway.TotalTimeouts != 0 {
		c.Gateway.TotalTimeouts = other.Gateway.TotalTimeouts
	}
	if other.Gateway.RetryMaxAttempts != 0 {
		c.Gateway.RetryMaxAttempts = other.Gateway.RetryMaxAttempts
	}
	if other.Gateway.FatalRetryBudget != 0 {
		c.Gateway.FatalRetryBudget = other.Gateway.FatalRetryBudget
	}
	if other.Gateway.PerCallTimeout != "" {
		c.Gateway.PerCallTimeout = other.Gateway.PerCallTimeout
	}
	if len(other.Gateway.Models) > 0 {
		c.Gateway.Models = mergeModelRoutes(c.Gateway.Models, other.Gateway.Models)
	}

	if len(other.Experts) > 0 {
		c.Experts = mergeExperts(c.Experts, other.Experts)
	}
}

func mergeModelRoutes(base, overlay []ModelRouteConfig) []ModelRouteConfig {
	byID := make(map[string]ModelRouteConfig, len(base))
	order := make([]string, 0, len(base))
	for _, m := range base {
		byID[m.ID] = m
		order = append(order, m.ID)
	}
	for _, m := range overlay {
		if _, exists := byID[m.ID]; !exists {
			order = append(order, m.ID)
		}
		byID[m.ID] = m
	}
	merged := make([]ModelRouteConfig, len(order))
	for i, id := range order {
		merged[i] = byID[id]
	}
	return merged
}

func mergeExperts(base, overlay []ExpertConfig) []ExpertConfig {
	byID := make(map[string]ExpertConfig, len(base))
	order := make([]string, 0, len(base))
	for _, e := range base {
		byID[e.ID] = e
		order = append(order, e.ID)
	}
	for _, e := range overlay {
		if _, exists := byID[e.ID]; !exists {
			order = append(order, e.ID)
		}
		byID[e.ID] = e
	}
	merged := make([]ExpertConfig, len(order))
	for i, id := range order {
		merged[i] = byID[id]
	}
	return merged
}

// interpolateEnvVars replaces ${VAR} with environment variable values.
func interpolateEnvVars(s string, getenv func(string) (string, bool)) (string, error) {
	result := s
	start := 0
	for {
		idx := strings.Index(result[start:], "${")
		if idx == -1 {
			break
		}
		idx += start

		endIdx := strings.Index(result[idx:], "}")
		if endIdx == -1 {
			return "", fmt.Errorf("unclosed environment variable reference at position %d", idx)
		}
		endIdx += idx

		varName := result[idx+2 : endIdx]
		value, ok := getenv(varName)
		if !ok {
			return "", fmt.Errorf("environment variable %q is not set", varName)
		}

		result = result[:idx] + value + result[endIdx+1:]
		start = idx + len(value)
	}
	return result, nil
}

// interpolateConfigEnvVars expands ${VAR} references in backend_config string
// values, the only place secrets (API keys, tokens) typically live.
func interpolateConfigEnvVars(cfg *Config) error {
	getenv := func(key string) (string, bool) {
		val := os.Getenv(key)
		if val == "" {
			return "", false
		}
		return val, true
	}

	for i, m := range cfg.Gateway.Models {
		for k, v := range m.BackendConfig {
			s, ok := v.(string)
			if !ok {
				continue
			}
			expanded, err := interpolateEnvVars(s, getenv)
			if err != nil {
				return err
			}
			cfg.Gateway.Models[i].BackendConfig[k] = expanded
		}
	}
	return nil
}
