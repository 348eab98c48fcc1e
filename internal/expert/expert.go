// Package expert implements the Propose-Test-Refine loop: one expert
// proposing, testing, and refining candidate programs against a puzzle
// across bounded iterations, self-auditing against the gateway's shared
// budgets until it finds an all-pass program or its allowance runs out.
//
// Grounded on internal/attackengine.Engine's single-conversation attack
// loop (propose a turn, await a target response, score it, decide whether
// to continue), generalized from jailbreak scoring to the sandboxed
// program scoring spec.md §4.2 defines.
package expert

import (
	"context"
	"math/rand"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/praetorian-inc/arcsolver/pkg/attempt"
	"github.com/praetorian-inc/arcsolver/pkg/config"
	"github.com/praetorian-inc/arcsolver/pkg/feedback"
	"github.com/praetorian-inc/arcsolver/pkg/gateway"
	"github.com/praetorian-inc/arcsolver/pkg/grid"
	"github.com/praetorian-inc/arcsolver/pkg/sandbox"
	"github.com/praetorian-inc/arcsolver/pkg/scorer"
)

// instructions is the fixed portion of every prompt: the transform contract
// the sandbox harness expects (spec.md §6, "Code extraction contract").
const instructions = "Write a Python function named `transform` that takes one grid " +
	"(a list of lists of integers 0-9) and returns the transformed grid in the " +
	"same representation. Respond with exactly one function, inside a single " +
	"fenced code block."

// codeBlock matches fenced code blocks; the last match in a response is the
// candidate program (spec.md §6's code extraction contract).
var codeBlock = regexp.MustCompile("(?s)```[a-zA-Z]*\\n?(.*?)```")

// Run executes the Propose-Test-Refine loop for one expert against one
// puzzle and returns its complete iteration history (spec.md §4.4). It
// never returns an error: a gateway failure or sandbox failure is recorded
// as a failing Attempt, not surfaced to the caller, matching the Attempt's
// per-iteration failure taxonomy.
func Run(ctx context.Context, gw *gateway.Gateway, runner sandbox.Runner, puzzle grid.Puzzle, cfg config.ExpertConfig, expertID string, seed int64) *attempt.ExpertHistory {
	history := &attempt.ExpertHistory{ExpertID: expertID}

	for i := 0; i < cfg.MaxIterations; i++ {
		if ctx.Err() != nil {
			break
		}

		iterSeed := seed + int64(i)
		prompt := buildPrompt(puzzle, cfg, history.Attempts, iterSeed)

		text, err := gw.Generate(ctx, cfg.ModelID, prompt, cfg.Temperature, iterSeed, cfg.ModelExtras)

		var a *attempt.Attempt
		if err != nil {
			a = gatewayFailureAttempt(expertID, i, puzzle, err)
		} else {
			a = testAttempt(ctx, runner, expertID, i, puzzle, extractCode(text))
		}

		history.Attempts = append(history.Attempts, a)

		if a.AllPass {
			return history
		}
		if gw.Budget().Exhausted() {
			break
		}
	}

	if !cfg.ReturnBestResult && !history.HasPasser() {
		return &attempt.ExpertHistory{ExpertID: expertID}
	}
	return history
}

// extractCode implements spec.md §6's code extraction contract: the last
// fenced code block, or the whole response if none, or empty on a blank
// response.
func extractCode(text string) string {
	matches := codeBlock.FindAllStringSubmatch(text, -1)
	if len(matches) > 0 {
		return strings.TrimSpace(matches[len(matches)-1][1])
	}
	return strings.TrimSpace(text)
}

// gatewayFailureAttempt records the empty-program attempt spec.md §4.4 step
// 2 requires on a gateway error: every training example scored as a
// runtime_error, no test predictions.
func gatewayFailureAttempt(expertID string, iteration int, puzzle grid.Puzzle, err error) *attempt.Attempt {
	a := attempt.New(expertID, iteration, "")
	a.TrainResults = make([]attempt.ExampleResult, len(puzzle.Train))
	for i := range a.TrainResults {
		a.TrainResults[i] = attempt.ExampleResult{
			FailureKind: attempt.FailureRuntimeError,
			Diagnostic:  err.Error(),
		}
	}
	a.TestPredictions = make([]grid.Grid, len(puzzle.Test))
	a.Finalize()
	return a
}

// testAttempt implements spec.md §4.4 step 4: run the candidate program
// against every training example (scored) and every test input (recorded
// unconditionally), then finalize the attempt's aggregate score.
func testAttempt(ctx context.Context, runner sandbox.Runner, expertID string, iteration int, puzzle grid.Puzzle, program string) *attempt.Attempt {
	a := attempt.New(expertID, iteration, program)
	a.TrainResults = make([]attempt.ExampleResult, len(puzzle.Train))
	a.TestPredictions = make([]grid.Grid, len(puzzle.Test))

	if program == "" {
		for i := range a.TrainResults {
			a.TrainResults[i] = attempt.ExampleResult{FailureKind: attempt.FailureNoCode}
		}
		a.Finalize()
		return a
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, ex := range puzzle.Train {
		i, ex := i, ex
		g.Go(func() error {
			res := runner.Run(gctx, program, ex.Input)
			a.TrainResults[i] = scorer.Score(res.Predicted, res.HasOutput, res.ToAttemptFailure(), ex.Output)
			if res.StderrTail != "" && a.TrainResults[i].Diagnostic == "" {
				a.TrainResults[i].Diagnostic = res.StderrTail
			}
			return nil
		})
	}
	for i, ex := range puzzle.Test {
		i, ex := i, ex
		g.Go(func() error {
			res := runner.Run(gctx, program, ex.Input)
			if res.HasOutput {
				a.TestPredictions[i] = res.Predicted
			}
			return nil
		})
	}
	// Errors are never returned by the Run closures above; they record
	// results directly. Wait only synchronizes completion.
	_ = g.Wait()

	a.Finalize()
	return a
}

// buildPrompt assembles the prompt text spec.md §6 specifies: the
// instructions, the rendered problem (examples shuffled per-iteration when
// configured), and an optional feedback section built from selected past
// attempts.
func buildPrompt(puzzle grid.Puzzle, cfg config.ExpertConfig, history []*attempt.Attempt, iterSeed int64) string {
	train := puzzle.Train
	if cfg.ShuffleExamples {
		train = shuffleExamples(train, iterSeed)
	}

	var b strings.Builder
	b.WriteString(instructions)
	b.WriteString("\n\n")
	b.WriteString(feedback.RenderProblem(train, puzzle.Test))

	if section := feedback.BuildFeedbackSection(selectPastAttempts(cfg, history, iterSeed), puzzle.Train); section != "" {
		b.WriteString("\n\n")
		b.WriteString(section)
	}

	return b.String()
}

// shuffleExamples returns a shuffled copy of train using the rendered
// sequence from a seed derived per spec.md §4.4 ("examples possibly
// shuffled using a per-iteration seed derived from seed + i").
func shuffleExamples(train []grid.Example, seed int64) []grid.Example {
	shuffled := append([]grid.Example(nil), train...)
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
	return shuffled
}

// selectPastAttempts implements spec.md §4.4's feedback selection: up to
// max_solutions previous attempts, each retained independently with
// probability selection_probability, ordered per improving_order.
func selectPastAttempts(cfg config.ExpertConfig, history []*attempt.Attempt, iterSeed int64) []*attempt.Attempt {
	if len(history) == 0 || cfg.MaxSolutions == 0 {
		return nil
	}

	candidates := history
	if len(candidates) > cfg.MaxSolutions {
		candidates = candidates[len(candidates)-cfg.MaxSolutions:]
	}

	rng := rand.New(rand.NewSource(iterSeed))
	selected := make([]*attempt.Attempt, 0, len(candidates))
	for _, a := range candidates {
		if rng.Float64() < cfg.SelectionProbability {
			selected = append(selected, a)
		}
	}

	sort.SliceStable(selected, func(i, j int) bool {
		if cfg.ImprovingOrder {
			return selected[i].AggregateScore < selected[j].AggregateScore
		}
		return selected[i].AggregateScore > selected[j].AggregateScore
	})
	return selected
}
