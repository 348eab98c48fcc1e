// Package testutil provides shared test doubles for exercising the Expert,
// Coordinator, Voter, and Solver without a live LLM provider.
package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/praetorian-inc/arcsolver/pkg/gateway"
	"github.com/praetorian-inc/arcsolver/pkg/registry"
)

// MockBackend is a gateway.Backend that replays pre-configured responses in
// order, repeating the last one once exhausted, and records every request it
// receives. Construct with NewMockBackend and wire into a *gateway.Gateway
// via NewMockGateway for Expert/Coordinator/Voter/Solver tests.
type MockBackend struct {
	mu        sync.Mutex
	Responses []string
	Errors    map[int]error // call index (0-based) -> error to return instead
	calls     []gateway.Request
}

// NewMockBackend creates a MockBackend that returns the given responses.
func NewMockBackend(responses ...string) *MockBackend {
	return &MockBackend{Responses: responses}
}

// Generate implements gateway.Backend.
func (m *MockBackend) Generate(_ context.Context, req gateway.Request) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := len(m.calls)
	m.calls = append(m.calls, req)

	if err, ok := m.Errors[idx]; ok {
		return "", err
	}
	if len(m.Responses) == 0 {
		return "", fmt.Errorf("testutil: MockBackend has no responses configured")
	}
	if idx >= len(m.Responses) {
		idx = len(m.Responses) - 1
	}
	return m.Responses[idx], nil
}

// Calls returns every request observed so far, in order.
func (m *MockBackend) Calls() []gateway.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]gateway.Request, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns how many times Generate has been called.
func (m *MockBackend) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// NewMockGateway builds a *gateway.Gateway wired to a single route named
// modelID backed by the given MockBackend, with an effectively unbounded
// budget unless budget is provided. Registers the backend under a unique,
// test-only registry name so repeated calls across test cases don't collide.
func NewMockGateway(modelID string, backend *MockBackend, budget *gateway.Budget) (*gateway.Gateway, error) {
	if budget == nil {
		budget = gateway.NewBudget(0, 0)
	}
	return gateway.New([]gateway.ModelRoute{
		{
			ID:                modelID,
			Backend:           registerOnce(backend),
			RequestsPerSecond: 1000,
			Burst:             1000,
		},
	}, budget)
}

var registerSeq int
var registerMu sync.Mutex

// registerOnce registers backend under a fresh unique name and returns it,
// so each call to NewMockGateway gets an independent registry entry.
func registerOnce(backend *MockBackend) string {
	registerMu.Lock()
	defer registerMu.Unlock()
	registerSeq++
	name := fmt.Sprintf("testutil.Mock#%d", registerSeq)
	gateway.Register(name, func(_ registry.Config) (gateway.Backend, error) {
		return backend, nil
	})
	return name
}
