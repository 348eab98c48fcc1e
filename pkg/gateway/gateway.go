// Package gateway implements the LLM Gateway: the single async call surface
// the core depends on (spec.md §4.5). It resolves a model_id to a registered
// Backend, enforces a per-model token-bucket rate limit, retries transient
// failures without charging the Expert's retry budget, and tracks the two
// process-wide budgets (remaining wall-clock time, remaining timeouts) that
// let Experts terminate cleanly once a puzzle's allowance is spent.
//
// Grounded on internal/generators/*.go's registry-based backend wiring,
// generalized from the teacher's per-conversation Generate(conv, n) contract
// to the single-prompt, single-response contract spec.md §4.5 specifies.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/praetorian-inc/arcsolver/internal/gateway/openaicompat"
	"github.com/praetorian-inc/arcsolver/pkg/ratelimit"
	"github.com/praetorian-inc/arcsolver/pkg/registry"
	"github.com/praetorian-inc/arcsolver/pkg/retry"
)

// Request is the single-prompt call a Backend executes.
type Request struct {
	Model       string
	Prompt      string
	Temperature float64
	Seed        int64
	Extras      map[string]any
}

// Backend is implemented by each model-provider adapter
// (internal/gateway/openai, bedrock, replicate, test).
type Backend interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Registry is the global backend registry; provider packages self-register
// from init().
var Registry = registry.New[Backend]("gateway backends")

// Register adds a backend factory under name (e.g. "openai.OpenAI").
func Register(name string, factory func(registry.Config) (Backend, error)) {
	Registry.Register(name, factory)
}

// ErrorKind classifies a GatewayError for the Expert's disposition logic
// (spec.md §7).
type ErrorKind string

const (
	// ErrFatal is a non-retryable failure the Expert should record as an
	// empty Attempt and continue from, budgets permitting.
	ErrFatal ErrorKind = "gateway_fatal"
	// ErrBudgetExhausted means one of the process-wide budgets hit zero;
	// the Expert must terminate its loop cleanly.
	ErrBudgetExhausted ErrorKind = "budget_exhausted"
)

// maxDiagnosticBytes bounds GatewayError.Diagnostic, matching the sandbox's
// bounded-stderr convention (spec.md §4.1).
const maxDiagnosticBytes = 2048

// GatewayError is the typed error spec.md §4.5 promises on fatal failure.
type GatewayError struct {
	Kind       ErrorKind
	Diagnostic string
	Err        error
}

func (e *GatewayError) Error() string {
	if e.Diagnostic != "" {
		return fmt.Sprintf("gateway: %s: %s", e.Kind, e.Diagnostic)
	}
	return fmt.Sprintf("gateway: %s", e.Kind)
}

func (e *GatewayError) Unwrap() error { return e.Err }

func truncate(s string) string {
	if len(s) <= maxDiagnosticBytes {
		return s
	}
	return s[len(s)-maxDiagnosticBytes:]
}

// ModelRoute binds a model_id an Expert names to a registered backend
// instance and its own rate limit, per spec.md §4.6 ("per-model rate
// limiters are shared across all Experts using that model").
type ModelRoute struct {
	// ID is the model_id ExpertConfig.ModelID names.
	ID string
	// Backend is the registered backend name (e.g. "openai.OpenAI").
	Backend string
	// BackendConfig is passed to the backend's factory unmodified.
	BackendConfig registry.Config
	// RequestsPerSecond is the steady-state rate cap for this model.
	RequestsPerSecond float64
	// Burst is the token bucket capacity (defaults to RequestsPerSecond
	// when zero, i.e. no burst allowance beyond steady state).
	Burst float64
}

type route struct {
	backend Backend
	limiter *ratelimit.Limiter
}

// Gateway is the process-wide LLM call surface. Safe for concurrent use by
// any number of Experts.
type Gateway struct {
	routes map[string]*route
	budget *Budget

	retryMaxAttempts int
	fatalRetries     int // bounded extra attempts for non-transient errors
	perCallTimeout   time.Duration

	mu sync.Mutex // guards fatalRetries decrements across concurrent experts
}

// Option configures a Gateway at construction time.
type Option func(*Gateway)

// WithRetryMaxAttempts bounds total attempts (including the first) per call
// for transient errors. Default 3.
func WithRetryMaxAttempts(n int) Option {
	return func(g *Gateway) { g.retryMaxAttempts = n }
}

// WithFatalRetryBudget bounds how many non-transient errors may still be
// retried process-wide before they are surfaced immediately (spec.md §4.5:
// "other errors consume it (bounded)"). Default 2.
func WithFatalRetryBudget(n int) Option {
	return func(g *Gateway) { g.fatalRetries = n }
}

// WithPerCallTimeout bounds each individual call's wall-clock cost,
// independent of the remaining time budget (the smaller of the two wins).
// Default 60s.
func WithPerCallTimeout(d time.Duration) Option {
	return func(g *Gateway) { g.perCallTimeout = d }
}

// New builds a Gateway from a set of model routes and the shared Budget.
func New(routes []ModelRoute, budget *Budget, opts ...Option) (*Gateway, error) {
	g := &Gateway{
		routes:           make(map[string]*route, len(routes)),
		budget:           budget,
		retryMaxAttempts: 3,
		fatalRetries:     2,
		perCallTimeout:   60 * time.Second,
	}
	for _, opt := range opts {
		opt(g)
	}

	for _, r := range routes {
		backend, err := Registry.Create(r.Backend, r.BackendConfig)
		if err != nil {
			return nil, fmt.Errorf("gateway: model %q: %w", r.ID, err)
		}
		burst := r.Burst
		if burst <= 0 {
			burst = r.RequestsPerSecond
		}
		if burst <= 0 {
			burst = 1
		}
		g.routes[r.ID] = &route{
			backend: backend,
			limiter: ratelimit.NewLimiter(burst, r.RequestsPerSecond),
		}
	}
	return g, nil
}

// Budget returns the Gateway's shared budget tracker, so a Facade or
// Coordinator can report remaining allowance without routing through a call.
func (g *Gateway) Budget() *Budget { return g.budget }

// Generate is the Gateway's sole public operation: spec.md §4.5's
// `generate(model_id, prompt, temperature, seed, extras) → text |
// GatewayError`. Fails fast with ErrBudgetExhausted if either process-wide
// budget has hit zero, without making a call or touching the rate limiter.
func (g *Gateway) Generate(ctx context.Context, modelID, prompt string, temperature float64, seed int64, extras map[string]any) (string, error) {
	if g.budget.Exhausted() {
		return "", &GatewayError{Kind: ErrBudgetExhausted, Diagnostic: "gateway budget exhausted"}
	}

	r, ok := g.routes[modelID]
	if !ok {
		return "", &GatewayError{Kind: ErrFatal, Diagnostic: fmt.Sprintf("unknown model_id %q", modelID)}
	}

	// Suspension point 1: the rate-limiter acquire (spec.md §5).
	if err := r.limiter.Wait(ctx); err != nil {
		return "", err
	}

	timeout := g.perCallTimeout
	if remaining, _ := g.budget.Remaining(); remaining < timeout {
		timeout = remaining
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req := Request{Model: modelID, Prompt: prompt, Temperature: temperature, Seed: seed, Extras: extras}

	start := time.Now()
	var text string
	// Suspension point 2: the network await inside Backend.Generate,
	// reached once per retry.Do attempt (spec.md §5).
	err := retry.Do(callCtx, retry.Config{
		MaxAttempts:   g.retryMaxAttempts,
		InitialDelay:  200 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		Multiplier:    2.0,
		Jitter:        0.2,
		RetryableFunc: func(err error) bool {
			if isTransient(err) {
				return true
			}
			g.mu.Lock()
			defer g.mu.Unlock()
			if g.fatalRetries > 0 {
				g.fatalRetries--
				return true
			}
			return false
		},
	}, func() error {
		out, callErr := r.backend.Generate(callCtx, req)
		if callErr != nil {
			return callErr
		}
		text = out
		return nil
	})
	elapsed := time.Since(start)
	timedOut := errors.Is(callCtx.Err(), context.DeadlineExceeded)
	g.budget.Consume(elapsed, timedOut)

	if err != nil {
		return "", &GatewayError{Kind: ErrFatal, Diagnostic: truncate(err.Error()), Err: err}
	}
	return text, nil
}

// isTransient reports whether err is the kind of failure spec.md §4.5 says
// the Gateway retries "without consuming the caller's retry budget": rate
// limit signals, transient server errors, and connection drops.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if openaicompat.IsRateLimitError(err) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout() || netErr.Temporary()
	}
	return errors.Is(err, context.DeadlineExceeded)
}
