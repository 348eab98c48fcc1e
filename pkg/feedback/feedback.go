// Package feedback renders puzzles and scored attempts into the prose that
// seeds each PTR turn's prompt. Rendering is deterministic given its
// inputs, which matters for reproducibility testing (spec.md §4.3).
package feedback

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/praetorian-inc/arcsolver/pkg/attempt"
	"github.com/praetorian-inc/arcsolver/pkg/grid"
)

// maxRenderedDim caps grid rendering size in prompt text; grids larger than
// this are rendered with a truncation note instead of every row (spec.md
// §9 Open Question on unbounded grid dimensions).
const maxRenderedDim = 50

// RenderProblem renders the <Problem>...</Problem> section of the prompt:
// numbered training examples (input then output) followed by numbered test
// inputs without outputs, per spec.md §6's bit-exact contract.
func RenderProblem(train []grid.Example, test []grid.Example) string {
	var b strings.Builder
	b.WriteString("<Problem>\n")

	for i, ex := range train {
		fmt.Fprintf(&b, "Example %d\n", i+1)
		b.WriteString("Input:\n")
		b.WriteString(renderGrid(ex.Input))
		b.WriteString("\nOutput:\n")
		b.WriteString(renderGrid(ex.Output))
		b.WriteString("\n\n")
	}

	for i, ex := range test {
		fmt.Fprintf(&b, "Test %d\n", i+1)
		b.WriteString("Input:\n")
		b.WriteString(renderGrid(ex.Input))
		b.WriteString("\n\n")
	}

	b.WriteString("</Problem>")
	return b.String()
}

func renderGrid(g grid.Grid) string {
	if g.IsZero() {
		return ""
	}
	if g.Height() > maxRenderedDim || g.Width() > maxRenderedDim {
		return fmt.Sprintf("[grid %dx%d, too large to render in full]", g.Height(), g.Width())
	}
	return g.Render()
}

// FeedbackBlock renders the per-attempt diagnostics for one prior Attempt,
// used when the program did not solve all training examples. One block per
// training example, per spec.md §4.3.
func FeedbackBlock(a *attempt.Attempt, train []grid.Example) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Attempt (iteration %d, score %.2f):\n", a.IterationIndex, a.AggregateScore)
	b.WriteString("```\n")
	b.WriteString(a.Program)
	b.WriteString("\n```\n")

	for i, result := range a.TrainResults {
		fmt.Fprintf(&b, "Example %d: ", i+1)
		if result.Success {
			b.WriteString("solved correctly.\n")
			continue
		}

		switch result.FailureKind {
		case attempt.FailureShapeMismatch:
			expected := train[i].Output
			fmt.Fprintf(&b, "shape mismatch: expected %dx%d, got %dx%d\n",
				expected.Height(), expected.Width(), result.Predicted.Height(), result.Predicted.Width())
		case attempt.FailureRuntimeError:
			fmt.Fprintf(&b, "runtime_error: %s\n", result.Diagnostic)
		case attempt.FailureTimeout:
			fmt.Fprintf(&b, "timeout: %s\n", result.Diagnostic)
		case attempt.FailureInvalidOutput:
			fmt.Fprintf(&b, "invalid_output: %s\n", result.Diagnostic)
		case attempt.FailureNoCode:
			b.WriteString("no code\n")
		default:
			b.WriteString(diffGrid(result.Predicted, train[i].Output))
			b.WriteByte('\n')
		}

		fmt.Fprintf(&b, "soft score: %s\n", strconv.FormatFloat(result.SoftScore, 'f', 2, 64))
	}

	return b.String()
}

// diffGrid renders a same-shape comparison: matching cells show the value,
// mismatching cells show "predicted/expected".
func diffGrid(predicted, expected grid.Grid) string {
	var b strings.Builder
	for r := 0; r < expected.Height(); r++ {
		if r > 0 {
			b.WriteByte('\n')
		}
		for c := 0; c < expected.Width(); c++ {
			if c > 0 {
				b.WriteByte(' ')
			}
			p, e := predicted.At(r, c), expected.At(r, c)
			if p == e {
				fmt.Fprintf(&b, "%d", e)
			} else {
				fmt.Fprintf(&b, "%d/%d", p, e)
			}
		}
	}
	return b.String()
}

// BuildFeedbackSection assembles the feedback section appended after the
// instructions section, enumerating the selected past attempts in the
// caller-supplied order (selection and ordering are the Expert's
// responsibility per spec.md §4.4).
func BuildFeedbackSection(attempts []*attempt.Attempt, train []grid.Example) string {
	if len(attempts) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Feedback from prior attempts:\n\n")
	for _, a := range attempts {
		b.WriteString(FeedbackBlock(a, train))
		b.WriteByte('\n')
	}
	return b.String()
}
