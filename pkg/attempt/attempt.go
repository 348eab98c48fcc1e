// Package attempt provides the core data types produced by the Expert's
// Propose-Test-Refine loop: per-example results, scored attempts, and the
// chronological history of attempts one expert accumulates for a puzzle.
package attempt

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/praetorian-inc/arcsolver/pkg/grid"
)

// FailureKind classifies why an example did not produce a passing result.
type FailureKind string

const (
	// FailureNone indicates the example passed.
	FailureNone FailureKind = "ok"
	// FailureShapeMismatch indicates the predicted grid's shape differs
	// from the expected grid's shape.
	FailureShapeMismatch FailureKind = "shape_mismatch"
	// FailureRuntimeError indicates the sandboxed program raised an
	// uncaught error.
	FailureRuntimeError FailureKind = "runtime_error"
	// FailureTimeout indicates the sandbox killed the child for exceeding
	// its wall-clock budget.
	FailureTimeout FailureKind = "timeout"
	// FailureInvalidOutput indicates the program's output was not a
	// rectangular integer matrix with values in [0,9].
	FailureInvalidOutput FailureKind = "invalid_output"
	// FailureNoCode indicates code extraction found no program text.
	FailureNoCode FailureKind = "no_code"
)

// ExampleResult is the outcome of running one candidate program against one
// training example.
//
// Invariant: Success ⇔ (FailureKind == FailureNone && SoftScore == 1.0 &&
// Predicted equals the expected grid).
type ExampleResult struct {
	Success     bool
	SoftScore   float64
	Predicted   grid.Grid // zero value when absent
	FailureKind FailureKind
	Diagnostic  string // bounded-length text for runtime_error/timeout/invalid_output
}

// Attempt is one expert iteration's proposed program and its scored results.
//
// Invariant: AllPass ⇔ every TrainResults[i].Success.
// Invariant: AggregateScore == mean(TrainResults[i].SoftScore).
type Attempt struct {
	// ID uniquely identifies this attempt (for logging/correlation only;
	// voter grouping uses the test-prediction fingerprint, not this ID).
	ID string

	// Program is the extracted candidate program text. Empty string means
	// no code was extracted from the model's response.
	Program string

	// ExpertID identifies the expert that produced this attempt.
	ExpertID string

	// IterationIndex is the 0-indexed PTR turn that produced this attempt.
	IterationIndex int

	// TrainResults is ordered, aligned to the puzzle's training examples.
	TrainResults []ExampleResult

	// TestPredictions is ordered, aligned to the puzzle's test inputs.
	// A nil Grid (IsZero()) at index i means the program failed on that
	// test input.
	TestPredictions []grid.Grid

	// AggregateScore is the mean soft score across TrainResults.
	AggregateScore float64

	// AllPass is true iff every training example succeeded.
	AllPass bool
}

// New creates an Attempt with a fresh correlation ID.
func New(expertID string, iteration int, program string) *Attempt {
	return &Attempt{
		ID:             uuid.NewString(),
		Program:        program,
		ExpertID:       expertID,
		IterationIndex: iteration,
	}
}

// Finalize computes AggregateScore and AllPass from TrainResults. Call once
// TrainResults has been fully populated for this attempt.
func (a *Attempt) Finalize() {
	if len(a.TrainResults) == 0 {
		a.AggregateScore = 0
		a.AllPass = false
		return
	}
	sum := 0.0
	allPass := true
	for _, r := range a.TrainResults {
		sum += r.SoftScore
		if !r.Success {
			allPass = false
		}
	}
	a.AggregateScore = sum / float64(len(a.TrainResults))
	a.AllPass = allPass
}

// Copy creates a shallow copy of the attempt with independent slices,
// matching the teacher's Attempt.Copy pattern for immutable-once-stored
// value semantics.
func (a *Attempt) Copy() *Attempt {
	copied := *a
	if a.TrainResults != nil {
		copied.TrainResults = append([]ExampleResult(nil), a.TrainResults...)
	}
	if a.TestPredictions != nil {
		copied.TestPredictions = append([]grid.Grid(nil), a.TestPredictions...)
	}
	return &copied
}

// String renders a short human-readable summary, useful in log fields.
func (a *Attempt) String() string {
	return fmt.Sprintf("attempt[expert=%s iter=%d all_pass=%v score=%.2f]",
		a.ExpertID, a.IterationIndex, a.AllPass, a.AggregateScore)
}

// ExpertHistory is the chronological sequence of Attempts one expert
// produced for a puzzle.
type ExpertHistory struct {
	ExpertID string
	Attempts []*Attempt
}

// Best returns the attempt with the highest AggregateScore. On ties, it
// prefers the later attempt when preferLater is true (the documented
// tiebreak, see DESIGN.md Open Question 2), else the earlier one.
func (h *ExpertHistory) Best(preferLater bool) *Attempt {
	if len(h.Attempts) == 0 {
		return nil
	}
	best := h.Attempts[0]
	for _, a := range h.Attempts[1:] {
		if a.AggregateScore > best.AggregateScore {
			best = a
		} else if a.AggregateScore == best.AggregateScore && preferLater {
			best = a
		}
	}
	return best
}

// HasPasser reports whether any attempt in the history is an all-pass
// attempt.
func (h *ExpertHistory) HasPasser() bool {
	for _, a := range h.Attempts {
		if a.AllPass {
			return true
		}
	}
	return false
}
