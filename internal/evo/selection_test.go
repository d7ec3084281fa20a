package evo

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scoredIDs(items []ScoredProgram) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.ID)
	}
	return out
}

func TestRankOrdersByFitnessAndKeepsTieOrder(t *testing.T) {
	scored := []ScoredProgram{
		{ID: "a", Fitness: 0.2},
		{ID: "b", Fitness: 0.9},
		{ID: "c", Fitness: 0.5},
		{ID: "d", Fitness: 0.9},
		{ID: "e", Fitness: 0.1},
	}
	ranked := Rank(scored)
	assert.Equal(t, []string{"b", "d", "c", "a", "e"}, scoredIDs(ranked))
	assert.Equal(t, "a", scored[0].ID, "input must not be reordered")
}

func TestSurvivorCount(t *testing.T) {
	cases := []struct {
		size     int
		fraction float64
		want     int
	}{
		{200, 0.1, 20},
		{100, 0.1, 10},
		{10, 0.1, 1},
		{25, 0.1, 2},
		{5, 0.1, 1},
		{7, 1, 7},
		{30, 0.3, 9},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, SurvivorCount(tc.size, tc.fraction), "size=%d fraction=%v", tc.size, tc.fraction)
	}
}

func TestKeepBestAndKeepWorst(t *testing.T) {
	ranked := Rank([]ScoredProgram{
		{ID: "a", Fitness: 0.1},
		{ID: "b", Fitness: 0.4},
		{ID: "c", Fitness: 0.3},
		{ID: "d", Fitness: 0.2},
	})

	best, err := KeepBestSelector{}.Survivors(ranked, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, scoredIDs(best))

	worst, err := KeepWorstSelector{}.Survivors(ranked, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"d", "a"}, scoredIDs(worst))

	_, err = KeepBestSelector{}.Survivors(ranked, 0)
	require.Error(t, err)
	_, err = KeepWorstSelector{}.Survivors(ranked, 5)
	require.Error(t, err)
}

func TestSelectorFromName(t *testing.T) {
	selector, err := SelectorFromName("")
	require.NoError(t, err)
	assert.Equal(t, SelectionKeepBest, selector.Name())

	selector, err = SelectorFromName(SelectionKeepWorst)
	require.NoError(t, err)
	assert.Equal(t, SelectionKeepWorst, selector.Name())

	for _, alias := range []string{"Keep-Best", " keep best ", "best"} {
		selector, err = SelectorFromName(alias)
		require.NoError(t, err, alias)
		assert.Equal(t, SelectionKeepBest, selector.Name(), alias)
	}
	selector, err = SelectorFromName("WORST")
	require.NoError(t, err)
	assert.Equal(t, SelectionKeepWorst, selector.Name())

	_, err = SelectorFromName("roulette")
	require.Error(t, err)
}

func TestPickParentDrawsWithReplacement(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	survivors := []ScoredProgram{{ID: "a"}, {ID: "b"}}
	seen := map[string]int{}
	for i := 0; i < 100; i++ {
		parent, err := pickParent(rng, survivors)
		require.NoError(t, err)
		seen[parent.ID]++
	}
	assert.Len(t, seen, 2)

	_, err := pickParent(rng, nil)
	require.Error(t, err)
	_, err = pickParent(nil, survivors)
	require.Error(t, err)
}
