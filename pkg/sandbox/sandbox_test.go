package sandbox

import (
	"context"
	"testing"
	"time"

	"github.com/praetorian-inc/arcsolver/pkg/grid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_Timeout(t *testing.T) {
	r := &ExecRunner{Interpreter: []string{"sh", "-c", "sleep 5"}, Timeout: 50 * time.Millisecond}
	res := r.Run(context.Background(), "irrelevant", grid.MustNew([][]int{{1}}))
	assert.Equal(t, ExitKilledTimeout, res.ExitReason)
	assert.False(t, res.HasOutput)
}

func TestRun_NonZeroExit(t *testing.T) {
	r := &ExecRunner{Interpreter: []string{"sh", "-c", "exit 1"}, Timeout: time.Second}
	res := r.Run(context.Background(), "x", grid.MustNew([][]int{{1}}))
	assert.Equal(t, ExitNonZero, res.ExitReason)
}

func TestRun_UnparseableOutput(t *testing.T) {
	r := &ExecRunner{Interpreter: []string{"sh", "-c", "echo not-json"}, Timeout: time.Second}
	res := r.Run(context.Background(), "x", grid.MustNew([][]int{{1}}))
	assert.Equal(t, ExitUnparseableOut, res.ExitReason)
}

func TestRun_ValidOutput(t *testing.T) {
	r := &ExecRunner{Interpreter: []string{"sh", "-c", `echo '{"output":[[1,2],[3,4]]}'`}, Timeout: time.Second}
	res := r.Run(context.Background(), "x", grid.MustNew([][]int{{1}}))
	require.True(t, res.HasOutput)
	assert.Equal(t, ExitOK, res.ExitReason)
	assert.Equal(t, 2, res.Predicted.Height())
}

func TestToAttemptFailure_Mapping(t *testing.T) {
	assert.Equal(t, "timeout", string(Result{ExitReason: ExitKilledTimeout}.ToAttemptFailure()))
	assert.Equal(t, "invalid_output", string(Result{ExitReason: ExitUnparseableOut}.ToAttemptFailure()))
	assert.Equal(t, "runtime_error", string(Result{ExitReason: ExitNonZero}.ToAttemptFailure()))
}

func TestHarnessScript_EmbedsProgramAndInput(t *testing.T) {
	script := harnessScript("def transform(g):\n    return g", `[[1,2]]`)
	assert.Contains(t, script, "def transform(g):")
	assert.Contains(t, script, `[[1,2]]`)
}
