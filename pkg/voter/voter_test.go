package voter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/praetorian-inc/arcsolver/pkg/attempt"
	"github.com/praetorian-inc/arcsolver/pkg/grid"
)

func cellGrid(v int) grid.Grid { return grid.MustNew([][]int{{v}}) }

func nullPredictions(n int) []grid.Grid { return make([]grid.Grid, n) }

func attemptWith(expertID string, iter int, allPass bool, score float64, predictions []grid.Grid) *attempt.Attempt {
	return &attempt.Attempt{
		ExpertID:        expertID,
		IterationIndex:  iter,
		AllPass:         allPass,
		AggregateScore:  score,
		TestPredictions: predictions,
	}
}

// TestVote_ThreeExpertsTwoAgree mirrors the ensemble voting walkthrough:
// three experts produce test predictions [G1, G1, G2] with
// all_pass=[true, true, false]. The voter must emit G1 first
// (contains_passer, vote_count=2).
func TestVote_ThreeExpertsTwoAgree(t *testing.T) {
	g1 := []grid.Grid{cellGrid(1)}
	g2 := []grid.Grid{cellGrid(2)}

	inputs := []Input{
		{Attempt: attemptWith("e1#0", 0, true, 1.0, g1)},
		{Attempt: attemptWith("e2#0", 0, true, 1.0, g1)},
		{Attempt: attemptWith("e3#0", 0, false, 0.5, g2)},
	}

	groups := Group(inputs)
	require.Len(t, groups, 2)

	ranked := Rank(groups)
	assert.True(t, ranked[0].ContainsPasser)
	assert.Equal(t, 2, ranked[0].VoteCount)

	result := Vote(inputs, 1)
	require.Len(t, result, 1)
	assert.True(t, result[0].TestPredictions[0].Equal(cellGrid(1)))
}

// TestVote_CountFailedMatchesAddsThirdVote extends the above: the third
// expert produces G1 too but fails training; with count_failed_matches
// true for its config, vote_count for G1 becomes 3.
func TestVote_CountFailedMatchesAddsThirdVote(t *testing.T) {
	g1 := []grid.Grid{cellGrid(1)}

	inputs := []Input{
		{Attempt: attemptWith("e1#0", 0, true, 1.0, g1)},
		{Attempt: attemptWith("e2#0", 0, true, 1.0, g1)},
		{Attempt: attemptWith("e3#0", 0, false, 0.5, g1), CountFailedMatches: true},
	}

	groups := Group(inputs)
	require.Len(t, groups, 1)
	assert.Equal(t, 3, groups[0].VoteCount)
}

func TestGroup_CountFailedMatchesFalseDoesNotAddVote(t *testing.T) {
	g1 := []grid.Grid{cellGrid(1)}

	inputs := []Input{
		{Attempt: attemptWith("e1#0", 0, true, 1.0, g1)},
		{Attempt: attemptWith("e2#0", 0, false, 0.5, g1), CountFailedMatches: false},
	}

	groups := Group(inputs)
	require.Len(t, groups, 1)
	assert.Equal(t, 1, groups[0].VoteCount)
	assert.Len(t, groups[0].Members, 2)
}

func TestGroup_DropsAllNullAttempts(t *testing.T) {
	inputs := []Input{
		{Attempt: attemptWith("e1#0", 0, false, 0.0, nullPredictions(2))},
		{Attempt: attemptWith("e2#0", 0, true, 1.0, []grid.Grid{cellGrid(1), cellGrid(2)})},
	}

	groups := Group(inputs)
	require.Len(t, groups, 1)
	assert.Len(t, groups[0].Members, 1)
}

func TestEmit_NoGroupsReturnsKNulls(t *testing.T) {
	result := Emit(nil, 2)
	require.Len(t, result, 2)
	assert.Nil(t, result[0])
	assert.Nil(t, result[1])
}

func TestEmit_DiversityFirstRoundRobin(t *testing.T) {
	gA := []grid.Grid{cellGrid(1)}
	gB := []grid.Grid{cellGrid(2)}
	gC := []grid.Grid{cellGrid(3)}

	inputs := []Input{
		// group A: two passers (highest rank)
		{Attempt: attemptWith("e1#0", 0, true, 1.0, gA)},
		{Attempt: attemptWith("e2#0", 1, true, 1.0, gA)},
		// group B: one passer
		{Attempt: attemptWith("e3#0", 0, true, 1.0, gB)},
		// group C: a failure only, never a passer
		{Attempt: attemptWith("e4#0", 0, false, 0.3, gC)},
	}

	result := Vote(inputs, 3)
	require.Len(t, result, 3)

	// first two picks are one representative from each of the two passer
	// groups (A then B, by rank); group C has no passer and ranks last, but
	// a round visits every group before cycling back to A, so with k=3 the
	// third slot is group C's (non-passer) member.
	gotFingerprints := []string{
		result[0].TestPredictions[0].Fingerprint(),
		result[1].TestPredictions[0].Fingerprint(),
		result[2].TestPredictions[0].Fingerprint(),
	}
	assert.Equal(t, cellGrid(1).Fingerprint(), gotFingerprints[0])
	assert.Equal(t, cellGrid(2).Fingerprint(), gotFingerprints[1])
	assert.Equal(t, cellGrid(3).Fingerprint(), gotFingerprints[2])
}

func TestEmit_CyclesBackToTopGroupWhenOthersExhausted(t *testing.T) {
	gA := []grid.Grid{cellGrid(1)}
	gB := []grid.Grid{cellGrid(2)}

	inputs := []Input{
		{Attempt: attemptWith("e1#0", 0, true, 1.0, gA)},
		{Attempt: attemptWith("e2#0", 1, true, 0.9, gA)},
		{Attempt: attemptWith("e3#0", 0, true, 1.0, gB)},
	}

	result := Vote(inputs, 3)
	require.Len(t, result, 3)
	assert.Equal(t, cellGrid(1).Fingerprint(), result[0].TestPredictions[0].Fingerprint())
	assert.Equal(t, cellGrid(2).Fingerprint(), result[1].TestPredictions[0].Fingerprint())
	// third slot cycles back to group A's next-best representative
	assert.Equal(t, cellGrid(1).Fingerprint(), result[2].TestPredictions[0].Fingerprint())
	assert.Equal(t, 0.9, result[2].AggregateScore)
}

func TestEmit_StopsShortWhenCandidatesExhausted(t *testing.T) {
	gA := []grid.Grid{cellGrid(1)}
	inputs := []Input{{Attempt: attemptWith("e1#0", 0, true, 1.0, gA)}}

	result := Vote(inputs, 5)
	assert.Len(t, result, 1)
}

func TestRank_ContainsPasserBeatsVoteCount(t *testing.T) {
	gA := []grid.Grid{cellGrid(1)}
	gB := []grid.Grid{cellGrid(2)}

	groups := Group([]Input{
		{Attempt: attemptWith("e1#0", 0, false, 0.8, gA)},
		{Attempt: attemptWith("e2#0", 0, false, 0.8, gA)},
		{Attempt: attemptWith("e2#0", 0, false, 0.8, gA)},
		{Attempt: attemptWith("e3#0", 0, true, 1.0, gB)},
	})

	ranked := Rank(groups)
	assert.True(t, ranked[0].ContainsPasser)
	assert.True(t, ranked[0].Members[0].TestPredictions[0].Equal(cellGrid(2)))
}

// TestGroup_DuplicateAttemptDoesNotInflateVoteCount covers spec.md §8
// testable property 6 (voter idempotence): duplicating an Attempt in the
// input (same expert_id, same iteration) must not increase its group's vote
// count above what distinct Attempts would produce.
func TestGroup_DuplicateAttemptDoesNotInflateVoteCount(t *testing.T) {
	g1 := []grid.Grid{cellGrid(1)}

	duplicated := Group([]Input{
		{Attempt: attemptWith("e1#0", 0, true, 1.0, g1)},
		{Attempt: attemptWith("e1#0", 0, true, 1.0, g1)},
	})
	require.Len(t, duplicated, 1)
	assert.Equal(t, 1, duplicated[0].VoteCount)
	assert.Len(t, duplicated[0].Members, 2)

	distinct := Group([]Input{
		{Attempt: attemptWith("e1#0", 0, true, 1.0, g1)},
		{Attempt: attemptWith("e2#0", 0, true, 1.0, g1)},
	})
	require.Len(t, distinct, 1)
	assert.Equal(t, 2, distinct[0].VoteCount)
}

// TestGroup_DuplicateFailedMatchDoesNotInflateVoteCount covers the same
// idempotence property on the count_failed_matches path: a duplicated
// failing attempt that matches a passer's fingerprint votes at most once.
func TestGroup_DuplicateFailedMatchDoesNotInflateVoteCount(t *testing.T) {
	g1 := []grid.Grid{cellGrid(1)}

	groups := Group([]Input{
		{Attempt: attemptWith("e1#0", 0, true, 1.0, g1)},
		{Attempt: attemptWith("e2#0", 0, false, 0.5, g1), CountFailedMatches: true},
		{Attempt: attemptWith("e2#0", 0, false, 0.5, g1), CountFailedMatches: true},
	})
	require.Len(t, groups, 1)
	assert.Equal(t, 2, groups[0].VoteCount)
	assert.Len(t, groups[0].Members, 3)
}

func TestRepresentativeOrder_TieBreaksByIterationThenExpertID(t *testing.T) {
	gA := []grid.Grid{cellGrid(1)}
	members := []*attempt.Attempt{
		attemptWith("zeta#0", 2, true, 1.0, gA),
		attemptWith("alpha#0", 2, true, 1.0, gA),
		attemptWith("beta#0", 1, true, 1.0, gA),
	}
	ordered := representativeOrder(members)
	require.Len(t, ordered, 3)
	assert.Equal(t, "beta#0", ordered[0].ExpertID) // lowest iteration wins
	assert.Equal(t, "alpha#0", ordered[1].ExpertID) // then lexicographic expert_id
	assert.Equal(t, "zeta#0", ordered[2].ExpertID)
}
