// Package voter aggregates Attempts across an ensemble's ExpertHistories
// into ranked, diversity-first final predictions (spec.md §4.7).
//
// Grounded on pkg/scorer's pure-function style: no I/O, no shared state,
// deterministic given its inputs.
package voter

import (
	"sort"
	"strconv"
	"strings"

	"github.com/praetorian-inc/arcsolver/pkg/attempt"
	"github.com/praetorian-inc/arcsolver/pkg/grid"
)

// nullSentinel renders a null test prediction in a fingerprint string. It
// uses control bytes that never appear in grid.Grid.Fingerprint's decimal
// output, so it cannot collide with a real grid's rendering.
const nullSentinel = "\x00null\x00"

const fieldSep = "\x1f"

// Input pairs an Attempt with the count_failed_matches setting of the
// expert configuration that produced it (spec.md §4.4, §4.7: "if
// count_failed_matches is true for those configs").
type Input struct {
	Attempt            *attempt.Attempt
	CountFailedMatches bool
}

// SolutionGroup is the set of Attempts sharing an identical test-prediction
// fingerprint (spec.md §4.7).
type SolutionGroup struct {
	Fingerprint        string
	Members            []*attempt.Attempt
	VoteCount          int
	BestAggregateScore float64
	ContainsPasser     bool

	// votedKeys tracks the (ExpertID, IterationIndex) pairs already counted
	// toward VoteCount, so a duplicated Attempt (spec.md §8 testable
	// property 6, voter idempotence) never votes twice.
	votedKeys map[string]bool
}

// attemptKey identifies an Attempt for vote-dedup purposes: the same
// expert_id + iteration_index is the same underlying attempt even if it
// appears more than once in the input list.
func attemptKey(a *attempt.Attempt) string {
	return a.ExpertID + "#" + strconv.Itoa(a.IterationIndex)
}

// fingerprint renders the canonical string form of an ordered sequence of
// test predictions, with nulls rendered as a distinct sentinel.
func fingerprint(predictions []grid.Grid) string {
	parts := make([]string, len(predictions))
	for i, g := range predictions {
		if g.IsZero() {
			parts[i] = nullSentinel
		} else {
			parts[i] = g.Fingerprint()
		}
	}
	return strings.Join(parts, fieldSep)
}

func allNull(predictions []grid.Grid) bool {
	for _, g := range predictions {
		if !g.IsZero() {
			return false
		}
	}
	return true
}

// Group builds SolutionGroups from the flattened list of Inputs across all
// ExpertHistories. Attempts whose test predictions are all-null are
// dropped before grouping.
func Group(inputs []Input) []*SolutionGroup {
	passerFP := make(map[string]bool)
	for _, in := range inputs {
		a := in.Attempt
		if a.AllPass && !allNull(a.TestPredictions) {
			passerFP[fingerprint(a.TestPredictions)] = true
		}
	}

	byFP := make(map[string]*SolutionGroup)
	order := make([]string, 0, len(inputs))

	for _, in := range inputs {
		a := in.Attempt
		if allNull(a.TestPredictions) {
			continue
		}
		fp := fingerprint(a.TestPredictions)
		g, ok := byFP[fp]
		if !ok {
			g = &SolutionGroup{Fingerprint: fp, votedKeys: make(map[string]bool)}
			byFP[fp] = g
			order = append(order, fp)
		}
		g.Members = append(g.Members, a)

		key := attemptKey(a)
		alreadyVoted := g.votedKeys[key]

		if a.AllPass {
			g.ContainsPasser = true
			if !alreadyVoted {
				g.VoteCount++
			}
		} else if in.CountFailedMatches && passerFP[fp] && !alreadyVoted {
			g.VoteCount++
		}
		g.votedKeys[key] = true

		if a.AggregateScore > g.BestAggregateScore {
			g.BestAggregateScore = a.AggregateScore
		}
	}

	groups := make([]*SolutionGroup, 0, len(order))
	for _, fp := range order {
		groups = append(groups, byFP[fp])
	}
	return groups
}

// minIteration returns the lowest IterationIndex among a group's members.
func minIteration(g *SolutionGroup) int {
	min := g.Members[0].IterationIndex
	for _, m := range g.Members[1:] {
		if m.IterationIndex < min {
			min = m.IterationIndex
		}
	}
	return min
}

// Rank orders groups per spec.md §4.7: contains_passer descending,
// vote_count descending, best_aggregate_score descending, minimum
// iteration_index ascending.
func Rank(groups []*SolutionGroup) []*SolutionGroup {
	ranked := append([]*SolutionGroup(nil), groups...)
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.ContainsPasser != b.ContainsPasser {
			return a.ContainsPasser
		}
		if a.VoteCount != b.VoteCount {
			return a.VoteCount > b.VoteCount
		}
		if a.BestAggregateScore != b.BestAggregateScore {
			return a.BestAggregateScore > b.BestAggregateScore
		}
		return minIteration(a) < minIteration(b)
	})
	return ranked
}

// representativeOrder sorts a group's members into the order its
// representatives are drawn from during emission: highest aggregate_score
// first, ties broken by lowest iteration_index then lexicographically
// smallest expert_id.
func representativeOrder(members []*attempt.Attempt) []*attempt.Attempt {
	sorted := append([]*attempt.Attempt(nil), members...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.AggregateScore != b.AggregateScore {
			return a.AggregateScore > b.AggregateScore
		}
		if a.IterationIndex != b.IterationIndex {
			return a.IterationIndex < b.IterationIndex
		}
		return a.ExpertID < b.ExpertID
	})
	return sorted
}

// Emit produces up to k final attempts, diversity-first across ranked
// groups: the top group's representative, then the next group's, cycling
// back to the top group for its next-best representative once every group
// has contributed once (spec.md §4.7's final emission policy). If groups
// is empty, it returns k nil entries representing null attempts. Otherwise
// it stops as soon as k attempts are emitted or every group is exhausted,
// whichever comes first; the result may be shorter than k.
func Emit(groups []*SolutionGroup, k int) []*attempt.Attempt {
	if len(groups) == 0 {
		return make([]*attempt.Attempt, k)
	}

	ranked := Rank(groups)
	queues := make([][]*attempt.Attempt, len(ranked))
	for i, g := range ranked {
		queues[i] = representativeOrder(g.Members)
	}

	out := make([]*attempt.Attempt, 0, k)
	for len(out) < k {
		emittedThisRound := false
		for i := range queues {
			if len(out) >= k {
				break
			}
			if len(queues[i]) == 0 {
				continue
			}
			out = append(out, queues[i][0])
			queues[i] = queues[i][1:]
			emittedThisRound = true
		}
		if !emittedThisRound {
			break
		}
	}
	return out
}

// Vote computes the final up-to-k ranked attempts from the flattened list
// of Inputs across an ensemble's ExpertHistories (spec.md §4.7).
func Vote(inputs []Input, k int) []*attempt.Attempt {
	return Emit(Group(inputs), k)
}
