// Package scorer computes pass/fail and soft-score diagnostics for a
// predicted grid against an expected grid.
package scorer

import (
	"github.com/praetorian-inc/arcsolver/pkg/attempt"
	"github.com/praetorian-inc/arcsolver/pkg/grid"
)

// Score compares predicted against expected and returns the program-side
// fields of an ExampleResult. predictedOK is false when the sandbox did not
// produce a predicted grid at all (failureKind names why).
//
// Shape mismatch denies partial credit: a cell-by-cell comparison across
// differently shaped grids would reward incidental alignment, so a shape
// mismatch always scores 0 regardless of any overlapping cells.
func Score(predicted grid.Grid, predictedOK bool, failureKind attempt.FailureKind, expected grid.Grid) attempt.ExampleResult {
	if !predictedOK {
		return attempt.ExampleResult{
			Success:     false,
			SoftScore:   0.0,
			FailureKind: failureKind,
		}
	}

	if !predicted.SameShape(expected) {
		return attempt.ExampleResult{
			Success:     false,
			SoftScore:   0.0,
			Predicted:   predicted,
			FailureKind: attempt.FailureShapeMismatch,
		}
	}

	total := expected.Height() * expected.Width()
	matching := 0
	for r := 0; r < expected.Height(); r++ {
		for c := 0; c < expected.Width(); c++ {
			if predicted.At(r, c) == expected.At(r, c) {
				matching++
			}
		}
	}

	soft := float64(matching) / float64(total)
	return attempt.ExampleResult{
		Success:     soft == 1.0,
		SoftScore:   soft,
		Predicted:   predicted,
		FailureKind: attempt.FailureNone,
	}
}
