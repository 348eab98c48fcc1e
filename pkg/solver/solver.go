// Package solver is the Solver Facade: the single public entry point that
// composes the Ensemble Coordinator and Voter into one `solve(puzzle,
// config) → ranked attempts` operation (spec.md §4.8). It contains no
// policy beyond wiring K from configuration.
package solver

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/praetorian-inc/arcsolver/pkg/attempt"
	"github.com/praetorian-inc/arcsolver/pkg/config"
	"github.com/praetorian-inc/arcsolver/pkg/coordinator"
	"github.com/praetorian-inc/arcsolver/pkg/gateway"
	"github.com/praetorian-inc/arcsolver/pkg/grid"
	"github.com/praetorian-inc/arcsolver/pkg/sandbox"
	"github.com/praetorian-inc/arcsolver/pkg/voter"
)

// Solve runs the Ensemble Coordinator over puzzle with cfg.Experts, then
// the Voter, returning up to cfg.Solver.K ranked attempts. baseSeed seeds
// each expert's disjoint per-iteration seed stream (spec.md §4.6).
func Solve(ctx context.Context, gw *gateway.Gateway, runner sandbox.Runner, puzzle grid.Puzzle, cfg *config.Config, baseSeed int64) []*attempt.Attempt {
	solveID := uuid.NewString()
	log := slog.With("solve_id", solveID, "puzzle_id", puzzle.ID)

	log.Info("solve started", "expert_count", len(cfg.Experts), "k", cfg.Solver.K)

	histories := coordinator.Run(ctx, gw, runner, puzzle, cfg.Experts, baseSeed)

	var inputs []voter.Input
	for i, h := range histories {
		// cfg.Experts[i] is the base config the i-th coordinator task was
		// launched from; expert_id itself carries a "#k" suffix not present
		// in cfg.Experts[i].ID.
		base := cfg.Experts[i]
		for _, a := range h.Attempts {
			inputs = append(inputs, voter.Input{Attempt: a, CountFailedMatches: base.CountFailedMatches})
		}
	}

	result := voter.Vote(inputs, cfg.Solver.K)

	passed := 0
	for _, a := range result {
		if a != nil && a.AllPass {
			passed++
		}
	}
	log.Info("solve finished", "attempts_emitted", len(result), "passers", passed)

	return result
}
