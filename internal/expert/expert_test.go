package expert

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/praetorian-inc/arcsolver/internal/testutil"
	"github.com/praetorian-inc/arcsolver/pkg/attempt"
	"github.com/praetorian-inc/arcsolver/pkg/config"
	"github.com/praetorian-inc/arcsolver/pkg/gateway"
	"github.com/praetorian-inc/arcsolver/pkg/grid"
	"github.com/praetorian-inc/arcsolver/pkg/sandbox"
)

type fakeRunner func(program string, input grid.Grid) sandbox.Result

func (f fakeRunner) Run(_ context.Context, program string, input grid.Grid) sandbox.Result {
	return f(program, input)
}

func cellGrid(v int) grid.Grid { return grid.MustNew([][]int{{v}}) }

func simplePuzzle() grid.Puzzle {
	return grid.Puzzle{
		ID: "p1",
		Train: []grid.Example{
			{Input: cellGrid(1), Output: cellGrid(2)},
		},
		Test: []grid.Example{
			{Input: cellGrid(3)},
		},
	}
}

func baseExpertConfig() config.ExpertConfig {
	return config.ExpertConfig{
		ID:                   "expert-a",
		ModelID:              "m",
		MaxIterations:        5,
		MaxSolutions:         5,
		SelectionProbability: 1.0,
		ReturnBestResult:     true,
		Temperature:          0.5,
	}
}

func passingRunner() sandbox.Runner {
	return fakeRunner(func(_ string, input grid.Grid) sandbox.Result {
		switch {
		case input.Equal(cellGrid(1)):
			return sandbox.Result{Predicted: cellGrid(2), HasOutput: true, ExitReason: sandbox.ExitOK}
		case input.Equal(cellGrid(3)):
			return sandbox.Result{Predicted: cellGrid(4), HasOutput: true, ExitReason: sandbox.ExitOK}
		default:
			return sandbox.Result{ExitReason: sandbox.ExitNonZero}
		}
	})
}

func TestRun_SolvesOnFirstIteration(t *testing.T) {
	backend := testutil.NewMockBackend("```python\ndef transform(g):\n    return [[2]]\n```")
	gw, err := testutil.NewMockGateway("m", backend, nil)
	require.NoError(t, err)

	history := Run(context.Background(), gw, passingRunner(), simplePuzzle(), baseExpertConfig(), "expert-a#0", 1)

	require.Len(t, history.Attempts, 1)
	a := history.Attempts[0]
	assert.True(t, a.AllPass)
	assert.Equal(t, 1.0, a.AggregateScore)
	require.Len(t, a.TestPredictions, 1)
	assert.True(t, a.TestPredictions[0].Equal(cellGrid(4)))
	assert.Equal(t, 1, backend.CallCount())
}

func TestRun_GatewayErrorRecordsRuntimeErrorAttempt(t *testing.T) {
	backend := testutil.NewMockBackend()
	backend.Errors = map[int]error{0: errors.New("boom")}
	gw, err := testutil.NewMockGateway("m", backend, nil)
	require.NoError(t, err)

	cfg := baseExpertConfig()
	cfg.MaxIterations = 1

	history := Run(context.Background(), gw, passingRunner(), simplePuzzle(), cfg, "expert-a#0", 1)

	require.Len(t, history.Attempts, 1)
	a := history.Attempts[0]
	assert.False(t, a.AllPass)
	assert.Equal(t, "", a.Program)
	require.Len(t, a.TrainResults, 1)
	assert.Equal(t, attempt.FailureRuntimeError, a.TrainResults[0].FailureKind)
	assert.Equal(t, 0.0, a.AggregateScore)
}

func TestRun_NoCodeExtractedRecordsNoCodeFailure(t *testing.T) {
	backend := testutil.NewMockBackend("   \n\t  ")
	gw, err := testutil.NewMockGateway("m", backend, nil)
	require.NoError(t, err)

	cfg := baseExpertConfig()
	cfg.MaxIterations = 1

	history := Run(context.Background(), gw, passingRunner(), simplePuzzle(), cfg, "expert-a#0", 1)

	require.Len(t, history.Attempts, 1)
	a := history.Attempts[0]
	assert.Equal(t, "", a.Program)
	require.Len(t, a.TrainResults, 1)
	assert.Equal(t, attempt.FailureNoCode, a.TrainResults[0].FailureKind)
	assert.Equal(t, 0.0, a.AggregateScore)
}

func TestRun_BudgetExhaustedTerminatesLoop(t *testing.T) {
	backend := testutil.NewMockBackend("```python\ndef transform(g):\n    return [[9]]\n```")
	budget := gateway.NewBudget(time.Minute, 1)
	budget.Consume(0, true) // the only timeout slot is used up: exhausted before the first call
	gw, err := testutil.NewMockGateway("m", backend, budget)
	require.NoError(t, err)

	failingRunner := fakeRunner(func(_ string, _ grid.Grid) sandbox.Result {
		return sandbox.Result{Predicted: cellGrid(9), HasOutput: true, ExitReason: sandbox.ExitOK}
	})

	cfg := baseExpertConfig()
	cfg.MaxIterations = 10

	history := Run(context.Background(), gw, failingRunner, simplePuzzle(), cfg, "expert-a#0", 1)

	// budget.Exhausted() is true from the start, so Generate fails fast
	// without reaching the backend; the loop records that one failing
	// attempt and the self-audit's budget check then ends the loop well
	// before MaxIterations.
	assert.Len(t, history.Attempts, 1)
	assert.Equal(t, 0, backend.CallCount())
	for _, a := range history.Attempts {
		assert.False(t, a.AllPass)
	}
}

func TestRun_ReturnBestResultFalseWithNoPasserReturnsEmptyHistory(t *testing.T) {
	backend := testutil.NewMockBackend("```python\ndef transform(g):\n    return [[9]]\n```")
	gw, err := testutil.NewMockGateway("m", backend, nil)
	require.NoError(t, err)

	failingRunner := fakeRunner(func(_ string, _ grid.Grid) sandbox.Result {
		return sandbox.Result{Predicted: cellGrid(9), HasOutput: true, ExitReason: sandbox.ExitOK}
	})

	cfg := baseExpertConfig()
	cfg.MaxIterations = 2
	cfg.ReturnBestResult = false

	history := Run(context.Background(), gw, failingRunner, simplePuzzle(), cfg, "expert-a#0", 1)

	assert.Empty(t, history.Attempts)
	assert.Equal(t, "expert-a#0", history.ExpertID)
}

func TestRun_TerminatesAtMaxIterations(t *testing.T) {
	backend := testutil.NewMockBackend("```python\ndef transform(g):\n    return [[9]]\n```")
	gw, err := testutil.NewMockGateway("m", backend, nil)
	require.NoError(t, err)

	failingRunner := fakeRunner(func(_ string, _ grid.Grid) sandbox.Result {
		return sandbox.Result{Predicted: cellGrid(9), HasOutput: true, ExitReason: sandbox.ExitOK}
	})

	cfg := baseExpertConfig()
	cfg.MaxIterations = 3
	cfg.ReturnBestResult = true

	history := Run(context.Background(), gw, failingRunner, simplePuzzle(), cfg, "expert-a#0", 1)

	assert.Len(t, history.Attempts, 3)
	assert.Equal(t, 3, backend.CallCount())
}

func TestRun_CancelledContextStopsLoop(t *testing.T) {
	backend := testutil.NewMockBackend("```python\ndef transform(g):\n    return [[9]]\n```")
	gw, err := testutil.NewMockGateway("m", backend, nil)
	require.NoError(t, err)

	failingRunner := fakeRunner(func(_ string, _ grid.Grid) sandbox.Result {
		return sandbox.Result{Predicted: cellGrid(9), HasOutput: true, ExitReason: sandbox.ExitOK}
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := baseExpertConfig()
	history := Run(ctx, gw, failingRunner, simplePuzzle(), cfg, "expert-a#0", 1)

	assert.Empty(t, history.Attempts)
}

func TestExtractCode_LastFencedBlockWins(t *testing.T) {
	text := "first try:\n```python\ndef transform(g):\n    return g\n```\n" +
		"revised:\n```python\ndef transform(g):\n    return [[1]]\n```"
	assert.Equal(t, "def transform(g):\n    return [[1]]", extractCode(text))
}

func TestExtractCode_NoFenceUsesWholeResponse(t *testing.T) {
	assert.Equal(t, "def transform(g):\n    return g", extractCode("def transform(g):\n    return g"))
}

func TestExtractCode_EmptyResponse(t *testing.T) {
	assert.Equal(t, "", extractCode("   \n  "))
}

func TestSelectPastAttempts_RespectsMaxSolutionsAndOrder(t *testing.T) {
	history := []*attempt.Attempt{
		{IterationIndex: 0, AggregateScore: 0.2},
		{IterationIndex: 1, AggregateScore: 0.8},
		{IterationIndex: 2, AggregateScore: 0.5},
	}
	cfg := config.ExpertConfig{MaxSolutions: 2, SelectionProbability: 1.0, ImprovingOrder: true}

	selected := selectPastAttempts(cfg, history, 42)
	require.Len(t, selected, 2)
	// worst->best ordering among the last 2 candidates (iter 1 and iter 2)
	assert.LessOrEqual(t, selected[0].AggregateScore, selected[1].AggregateScore)
}

func TestSelectPastAttempts_EmptyHistory(t *testing.T) {
	cfg := config.ExpertConfig{MaxSolutions: 5, SelectionProbability: 1.0}
	assert.Nil(t, selectPastAttempts(cfg, nil, 1))
}

func TestSelectPastAttempts_ZeroMaxSolutions(t *testing.T) {
	history := []*attempt.Attempt{{IterationIndex: 0, AggregateScore: 0.5}}
	cfg := config.ExpertConfig{MaxSolutions: 0, SelectionProbability: 1.0}
	assert.Nil(t, selectPastAttempts(cfg, history, 1))
}

func TestBuildPrompt_IncludesInstructionsAndProblem(t *testing.T) {
	prompt := buildPrompt(simplePuzzle(), baseExpertConfig(), nil, 1)
	assert.Contains(t, prompt, "transform")
	assert.Contains(t, prompt, "<Problem>")
	assert.Contains(t, prompt, "</Problem>")
}

func TestRun_PropagatesModelExtrasAndTemperature(t *testing.T) {
	backend := testutil.NewMockBackend("```python\ndef transform(g):\n    return [[2]]\n```")
	gw, err := testutil.NewMockGateway("m", backend, nil)
	require.NoError(t, err)

	cfg := baseExpertConfig()
	cfg.Temperature = 0.33
	cfg.ModelExtras = map[string]any{"thinking_budget": 1024}

	_ = Run(context.Background(), gw, passingRunner(), simplePuzzle(), cfg, "expert-a#0", 7)

	calls := backend.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, 0.33, calls[0].Temperature)
	assert.Equal(t, int64(7), calls[0].Seed)
	assert.Equal(t, 1024, calls[0].Extras["thinking_budget"])
}
