// Package sandbox executes untrusted candidate programs against a single
// input grid in an isolated child process, enforcing a wall-clock timeout
// and validating the shape and value range of whatever the child prints.
//
// Grounded on haricheung-agentic-shell's internal/tools.RunShell: a child
// process started via exec.CommandContext, with stdout/stderr captured into
// buffers and the context providing both cancellation and the timeout.
package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"time"

	"github.com/praetorian-inc/arcsolver/pkg/attempt"
	"github.com/praetorian-inc/arcsolver/pkg/grid"
)

// DefaultTimeout is the per-call wall-clock budget from spec.md §4.1.
const DefaultTimeout = 1500 * time.Millisecond

// maxDiagnosticBytes bounds the stderr tail surfaced in feedback, per
// spec.md §4.1 ("bounded length, e.g., last 2 KB").
const maxDiagnosticBytes = 2048

// ExitReason classifies how the child process ended.
type ExitReason string

const (
	ExitOK             ExitReason = "ok"
	ExitNonZero        ExitReason = "nonzero"
	ExitKilledTimeout  ExitReason = "killed_timeout"
	ExitUnparseableOut ExitReason = "unparseable_output"
)

// Result is the sandbox's raw answer for one (program, input) execution,
// before the Scorer compares it against an expected grid.
type Result struct {
	Predicted  grid.Grid
	HasOutput  bool
	StderrTail string
	ExitReason ExitReason
}

// Runner executes a candidate program against one input grid.
type Runner interface {
	Run(ctx context.Context, program string, input grid.Grid) Result
}

// childResponse is the JSON the child writes to stdout on success.
type childResponse struct {
	Output [][]int `json:"output"`
}

// ExecRunner runs each call as a separate OS process via the configured
// interpreter command (default: "python3 -u -"), feeding a small harness
// script that defines the sandboxed transform entry point and the JSON
// request/response framing. The child runs with PYTHONHASHSEED=0 for
// deterministic hash seeding.
type ExecRunner struct {
	// Interpreter is the command used to execute the harness (e.g.
	// []string{"python3", "-u", "-"} to read the script from stdin).
	Interpreter []string

	// Timeout bounds each call's wall-clock cost. Defaults to
	// DefaultTimeout when zero.
	Timeout time.Duration
}

// NewExecRunner creates an ExecRunner with the default Python interpreter
// and timeout.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{
		Interpreter: []string{"python3", "-u", "-"},
		Timeout:     DefaultTimeout,
	}
}

// Run executes program against input in an isolated child process.
func (r *ExecRunner) Run(ctx context.Context, program string, input grid.Grid) Result {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	inputJSON, err := json.Marshal(input.Rows())
	if err != nil {
		return Result{ExitReason: ExitUnparseableOut, StderrTail: err.Error()}
	}

	interpreter := r.Interpreter
	if len(interpreter) == 0 {
		interpreter = []string{"python3", "-u", "-"}
	}

	c := exec.CommandContext(ctx, interpreter[0], interpreter[1:]...)
	c.Env = append(c.Environ(), "PYTHONHASHSEED=0")

	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr
	c.Stdin = bytes.NewReader([]byte(harnessScript(program, string(inputJSON))))

	if err := c.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return Result{ExitReason: ExitKilledTimeout, StderrTail: tail(stderr.Bytes())}
		}
		return Result{ExitReason: ExitNonZero, StderrTail: tail(stderr.Bytes())}
	}

	var resp childResponse
	if err := json.Unmarshal(bytes.TrimSpace(stdout.Bytes()), &resp); err != nil {
		return Result{ExitReason: ExitUnparseableOut, StderrTail: tail(stderr.Bytes())}
	}

	g, err := grid.New(resp.Output)
	if err != nil {
		return Result{ExitReason: ExitUnparseableOut, StderrTail: err.Error()}
	}

	return Result{Predicted: g, HasOutput: true, ExitReason: ExitOK, StderrTail: tail(stderr.Bytes())}
}

// harnessScript wraps the candidate program with a fixed entry point that
// embeds the input grid as a JSON literal, calls transform(grid), and
// writes the result as JSON to stdout. The input is embedded directly
// (rather than read from stdin at runtime) because the interpreter itself
// consumes stdin to receive the script text.
func harnessScript(program, inputJSON string) string {
	return fmt.Sprintf(`
import json
%s
_input = json.loads(%q)
_out = transform(_input)
print(json.dumps({"output": _out}))
`, program, inputJSON)
}

func tail(b []byte) string {
	if len(b) <= maxDiagnosticBytes {
		return string(b)
	}
	return string(b[len(b)-maxDiagnosticBytes:])
}

// ToAttemptFailure maps an ExitReason to the spec.md §3 FailureKind taxonomy
// for an execution that did not produce usable output.
func (r Result) ToAttemptFailure() attempt.FailureKind {
	switch r.ExitReason {
	case ExitKilledTimeout:
		return attempt.FailureTimeout
	case ExitUnparseableOut:
		return attempt.FailureInvalidOutput
	default:
		return attempt.FailureRuntimeError
	}
}
