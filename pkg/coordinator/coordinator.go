// Package coordinator runs an Expert per configured ensemble member
// concurrently against one puzzle and collects their histories (spec.md
// §4.6).
//
// Grounded on pkg/scanner.Scanner.Run's errgroup-based worker fan-out,
// adapted from N probe goroutines writing to a shared findings channel to N
// expert goroutines each producing one ExpertHistory.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/praetorian-inc/arcsolver/internal/expert"
	"github.com/praetorian-inc/arcsolver/pkg/attempt"
	"github.com/praetorian-inc/arcsolver/pkg/config"
	"github.com/praetorian-inc/arcsolver/pkg/gateway"
	"github.com/praetorian-inc/arcsolver/pkg/grid"
	"github.com/praetorian-inc/arcsolver/pkg/sandbox"
)

// Run launches one task per expertConfigs entry against puzzle and returns
// their histories in the same order as expertConfigs (spec.md §4.6).
// expert_id is derived as config.id + "#" + k, and each expert's seed is
// base_seed + k*max_iterations, guaranteeing disjoint per-iteration seed
// streams. A panic or error inside one expert's task is captured as an
// empty history with a logged diagnostic; it never aborts the others.
func Run(ctx context.Context, gw *gateway.Gateway, runner sandbox.Runner, puzzle grid.Puzzle, expertConfigs []config.ExpertConfig, baseSeed int64) []*attempt.ExpertHistory {
	histories := make([]*attempt.ExpertHistory, len(expertConfigs))

	g, gctx := errgroup.WithContext(ctx)
	for k, cfg := range expertConfigs {
		k, cfg := k, cfg
		expertID := fmt.Sprintf("%s#%d", cfg.ID, k)
		seed := baseSeed + int64(k)*int64(cfg.MaxIterations)

		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("expert task panicked",
						"expert_id", expertID, "puzzle_id", puzzle.ID, "panic", r)
					histories[k] = &attempt.ExpertHistory{ExpertID: expertID}
				}
			}()
			histories[k] = expert.Run(gctx, gw, runner, puzzle, cfg, expertID, seed)
			return nil
		})
	}

	// errgroup.Wait's error is always nil here: the per-expert closures
	// never return an error themselves, they only recover from panics.
	// Coordinator-level budget enforcement is deliberately absent (spec.md
	// §4.6: "does not itself enforce budgets").
	_ = g.Wait()

	return histories
}
