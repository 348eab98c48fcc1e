package test

import (
	"context"
	"errors"
	"testing"

	"github.com/praetorian-inc/arcsolver/pkg/gateway"
	"github.com/praetorian-inc/arcsolver/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSingle_FixedResponse(t *testing.T) {
	b, err := NewSingle(registry.Config{})
	require.NoError(t, err)

	text, err := b.Generate(context.Background(), gateway.Request{Prompt: "anything"})
	require.NoError(t, err)
	assert.Equal(t, "ELIM", text)
}

func TestSingle_CustomResponse(t *testing.T) {
	b, err := NewSingle(registry.Config{"response": "def transform(g):\n    return g"})
	require.NoError(t, err)

	text, err := b.Generate(context.Background(), gateway.Request{})
	require.NoError(t, err)
	assert.Equal(t, "def transform(g):\n    return g", text)
}

func TestScripted_ReplaysInOrder(t *testing.T) {
	b := NewScriptedBackend(
		ScriptedStep{Response: "attempt one"},
		ScriptedStep{Response: "attempt two"},
	)

	first, err := b.Generate(context.Background(), gateway.Request{Prompt: "p1"})
	require.NoError(t, err)
	assert.Equal(t, "attempt one", first)

	second, err := b.Generate(context.Background(), gateway.Request{Prompt: "p2"})
	require.NoError(t, err)
	assert.Equal(t, "attempt two", second)
}

func TestScripted_RepeatsLastAfterExhausted(t *testing.T) {
	b := NewScriptedBackend(ScriptedStep{Response: "only one"})

	_, _ = b.Generate(context.Background(), gateway.Request{})
	third, err := b.Generate(context.Background(), gateway.Request{})
	require.NoError(t, err)
	assert.Equal(t, "only one", third)
}

func TestScripted_ReplaysErrors(t *testing.T) {
	boom := errors.New("boom")
	b := NewScriptedBackend(
		ScriptedStep{Err: boom},
		ScriptedStep{Response: "recovered"},
	)

	_, err := b.Generate(context.Background(), gateway.Request{})
	assert.ErrorIs(t, err, boom)

	text, err := b.Generate(context.Background(), gateway.Request{})
	require.NoError(t, err)
	assert.Equal(t, "recovered", text)
}

func TestScripted_RecordsCalls(t *testing.T) {
	b := NewScriptedBackend(ScriptedStep{Response: "ok"})

	_, _ = b.Generate(context.Background(), gateway.Request{Prompt: "solve", Temperature: 0.3, Seed: 42})

	calls := b.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "solve", calls[0].Prompt)
	assert.Equal(t, 0.3, calls[0].Temperature)
	assert.Equal(t, int64(42), calls[0].Seed)
	assert.Equal(t, 1, b.CallCount())
}

func TestNewScripted_RequiresResponses(t *testing.T) {
	_, err := NewScripted(registry.Config{})
	assert.Error(t, err)
}

func TestRegistration(t *testing.T) {
	_, ok := gateway.Registry.Get("test.Single")
	assert.True(t, ok)
	_, ok = gateway.Registry.Get("test.Scripted")
	assert.True(t, ok)
}
