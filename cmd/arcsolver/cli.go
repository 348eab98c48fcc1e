package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/praetorian-inc/arcsolver/pkg/attempt"
	"github.com/praetorian-inc/arcsolver/pkg/config"
	"github.com/praetorian-inc/arcsolver/pkg/grid"
	"github.com/praetorian-inc/arcsolver/pkg/logging"
	"github.com/praetorian-inc/arcsolver/pkg/sandbox"
	"github.com/praetorian-inc/arcsolver/pkg/solver"
)

// CLI is the arcsolver command-line interface, grounded on
// cmd/augustus/cli.go's Kong struct-of-commands shape.
var CLI struct {
	Debug   bool       `help:"Enable debug logging." short:"d" env:"ARCSOLVER_DEBUG"`
	Version VersionCmd `cmd:"" help:"Print version information."`
	Solve   SolveCmd   `cmd:"" help:"Solve a puzzle file with the configured ensemble." default:"1"`
}

// VersionCmd prints version information.
type VersionCmd struct{}

func (v *VersionCmd) Run() error {
	fmt.Printf("arcsolver %s\n", version)
	return nil
}

// SolveCmd drives the Solver Facade against one puzzle file. Puzzle-dataset
// iteration (looping over many puzzle files, scoring against a held-out
// answer key) is explicit Non-goal territory; this command demonstrates the
// Facade's contract for a single puzzle.
type SolveCmd struct {
	ConfigFile string        `arg:"" help:"YAML configuration file (solver/gateway/experts)." type:"existingfile" name:"config-file"`
	PuzzleFile string        `arg:"" help:"JSON puzzle file ({train, test})." type:"existingfile" name:"puzzle-file"`
	BaseSeed   int64         `help:"Base seed for the ensemble's per-expert seed streams." default:"1"`
	Timeout    time.Duration `help:"Overall solve timeout." default:"10m"`
	Format     string        `help:"Output format." enum:"text,json" default:"text" short:"f"`
}

func (s *SolveCmd) Run() error {
	logging.Configure(logging.ParseLevel(logLevel()), "text", os.Stderr)

	cfg, err := config.LoadConfig(s.ConfigFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	puzzle, err := loadPuzzle(s.PuzzleFile)
	if err != nil {
		return fmt.Errorf("load puzzle: %w", err)
	}

	gw, err := cfg.BuildGateway()
	if err != nil {
		return fmt.Errorf("build gateway: %w", err)
	}

	baseCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(baseCtx, s.Timeout)
	defer cancel()

	attempts := solver.Solve(ctx, gw, sandbox.NewExecRunner(), puzzle, cfg, s.BaseSeed)

	return emit(s.Format, puzzle, attempts)
}

func logLevel() string {
	if CLI.Debug {
		return "debug"
	}
	return "info"
}

// emit renders the Voter's ranked attempts, each a list of predicted Grids
// aligned to the puzzle's test inputs (nulls permitted), per spec.md §6's
// "Result emission to caller" contract.
func emit(format string, puzzle grid.Puzzle, attempts []*attempt.Attempt) error {
	switch format {
	case "json":
		return emitJSON(puzzle, attempts)
	default:
		emitText(puzzle, attempts)
		return nil
	}
}

func emitText(puzzle grid.Puzzle, attempts []*attempt.Attempt) {
	fmt.Printf("Puzzle %s: %d attempt(s)\n", puzzle.ID, len(attempts))
	for i, a := range attempts {
		if a == nil {
			fmt.Printf("\nAttempt %d: <none>\n", i+1)
			continue
		}
		fmt.Printf("\nAttempt %d (expert=%s iteration=%d all_pass=%t score=%.2f):\n",
			i+1, a.ExpertID, a.IterationIndex, a.AllPass, a.AggregateScore)
		for j, pred := range a.TestPredictions {
			if pred.IsZero() {
				fmt.Printf("  test[%d]: <no prediction>\n", j)
				continue
			}
			fmt.Printf("  test[%d]:\n", j)
			for _, line := range splitLines(pred.Render()) {
				fmt.Printf("    %s\n", line)
			}
		}
	}
}

func emitJSON(puzzle grid.Puzzle, attempts []*attempt.Attempt) error {
	type testPrediction struct {
		Predicted [][]int `json:"predicted"`
		Present   bool    `json:"present"`
	}
	type attemptOut struct {
		ExpertID        string           `json:"expert_id"`
		IterationIndex  int              `json:"iteration_index"`
		AllPass         bool             `json:"all_pass"`
		AggregateScore  float64          `json:"aggregate_score"`
		TestPredictions []testPrediction `json:"test_predictions"`
	}

	out := make([]*attemptOut, len(attempts))
	for i, a := range attempts {
		if a == nil {
			continue
		}
		ao := &attemptOut{
			ExpertID:       a.ExpertID,
			IterationIndex: a.IterationIndex,
			AllPass:        a.AllPass,
			AggregateScore: a.AggregateScore,
		}
		for _, pred := range a.TestPredictions {
			if pred.IsZero() {
				ao.TestPredictions = append(ao.TestPredictions, testPrediction{Present: false})
				continue
			}
			ao.TestPredictions = append(ao.TestPredictions, testPrediction{Predicted: pred.Rows(), Present: true})
		}
		out[i] = ao
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(map[string]any{
		"puzzle_id": puzzle.ID,
		"attempts":  out,
	})
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	lines = append(lines, s[start:])
	return lines
}
