// Package test provides scripted gateway.Backend implementations for testing
// the Expert, Coordinator, Voter, and Solver without a live LLM provider.
package test

import (
	"context"
	"fmt"
	"sync"

	"github.com/praetorian-inc/arcsolver/pkg/gateway"
	"github.com/praetorian-inc/arcsolver/pkg/registry"
)

func init() {
	gateway.Register("test.Scripted", NewScripted)
	gateway.Register("test.Single", NewSingle)
}

// Single is a backend that always returns a fixed string. Useful as a
// minimal stand-in when a test only cares that a call happened.
type Single struct {
	response string
}

// NewSingle creates a Single backend from registry configuration. The
// "response" key sets the fixed string; it defaults to "ELIM".
func NewSingle(m registry.Config) (gateway.Backend, error) {
	return &Single{response: registry.GetString(m, "response", "ELIM")}, nil
}

// Generate implements gateway.Backend.
func (s *Single) Generate(_ context.Context, _ gateway.Request) (string, error) {
	return s.response, nil
}

// Scripted is a backend that replays a fixed sequence of responses or
// errors, one per call, in order. Once the sequence is exhausted it repeats
// the last entry. It records every request it receives so tests can assert
// on prompts, temperatures, and seeds observed by the Expert's PTR loop.
type Scripted struct {
	mu        sync.Mutex
	responses []ScriptedStep
	calls     []gateway.Request
}

// ScriptedStep is one entry in a Scripted backend's response sequence.
type ScriptedStep struct {
	Response string
	Err      error
}

// NewScriptedBackend builds a Scripted backend directly from a slice of
// steps. This is the entry point expert/coordinator/voter/solver tests use;
// the registry-config constructor below only supports string responses.
func NewScriptedBackend(steps ...ScriptedStep) *Scripted {
	return &Scripted{responses: steps}
}

// NewScripted creates a Scripted backend from registry configuration. The
// "responses" key holds a list of plain-string responses; use
// NewScriptedBackend directly for scripted errors.
func NewScripted(m registry.Config) (gateway.Backend, error) {
	raw, err := registry.RequireStringSlice(m, "responses")
	if err != nil {
		return nil, fmt.Errorf("test.Scripted requires 'responses' configuration: %w", err)
	}
	steps := make([]ScriptedStep, len(raw))
	for i, r := range raw {
		steps[i] = ScriptedStep{Response: r}
	}
	return &Scripted{responses: steps}, nil
}

// Generate implements gateway.Backend, returning the next scripted step and
// recording the request.
func (s *Scripted) Generate(_ context.Context, req gateway.Request) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, req)
	if len(s.responses) == 0 {
		return "", fmt.Errorf("test.Scripted: no responses configured")
	}

	idx := len(s.calls) - 1
	if idx >= len(s.responses) {
		idx = len(s.responses) - 1
	}
	step := s.responses[idx]
	if step.Err != nil {
		return "", step.Err
	}
	return step.Response, nil
}

// Calls returns the requests observed so far, in order.
func (s *Scripted) Calls() []gateway.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]gateway.Request, len(s.calls))
	copy(out, s.calls)
	return out
}

// CallCount returns the number of Generate calls observed so far.
func (s *Scripted) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}
