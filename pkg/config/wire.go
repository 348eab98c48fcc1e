package config

import (
	"fmt"
	"time"

	"github.com/praetorian-inc/arcsolver/pkg/gateway"
)

// BuildGateway constructs the *gateway.Gateway spec.md §4.5 names from this
// Config's GatewayConfig: one ModelRoute per configured model, and a Budget
// seeded from TotalTime/TotalTimeouts (zero/empty means unbudgeted).
func (c *Config) BuildGateway() (*gateway.Gateway, error) {
	var totalTime time.Duration
	if c.Gateway.TotalTime != "" {
		d, err := time.ParseDuration(c.Gateway.TotalTime)
		if err != nil {
			return nil, fmt.Errorf("config: invalid gateway.total_time: %w", err)
		}
		totalTime = d
	}
	budget := gateway.NewBudget(totalTime, c.Gateway.TotalTimeouts)

	routes := make([]gateway.ModelRoute, len(c.Gateway.Models))
	for i, m := range c.Gateway.Models {
		routes[i] = gateway.ModelRoute{
			ID:                m.ID,
			Backend:           m.Backend,
			BackendConfig:     m.BackendConfig,
			RequestsPerSecond: m.RequestsPerSecond,
			Burst:             m.Burst,
		}
	}

	var opts []gateway.Option
	if c.Gateway.RetryMaxAttempts > 0 {
		opts = append(opts, gateway.WithRetryMaxAttempts(c.Gateway.RetryMaxAttempts))
	}
	if c.Gateway.FatalRetryBudget > 0 {
		opts = append(opts, gateway.WithFatalRetryBudget(c.Gateway.FatalRetryBudget))
	}
	if c.Gateway.PerCallTimeout != "" {
		d, err := time.ParseDuration(c.Gateway.PerCallTimeout)
		if err != nil {
			return nil, fmt.Errorf("config: invalid gateway.per_call_timeout: %w", err)
		}
		opts = append(opts, gateway.WithPerCallTimeout(d))
	}

	return gateway.New(routes, budget, opts...)
}
