package evo

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strings"
)

const (
	SelectionKeepBest  = "keep_best"
	SelectionKeepWorst = "keep_worst"

	DefaultSurvivalFraction = 0.1
)

// Selector truncates a ranked population (best first) to its survivors.
type Selector interface {
	Name() string
	Survivors(ranked []ScoredProgram, count int) ([]ScoredProgram, error)
}

// KeepBestSelector keeps the count fittest programs.
type KeepBestSelector struct{}

func (KeepBestSelector) Name() string {
	return SelectionKeepBest
}

func (KeepBestSelector) Survivors(ranked []ScoredProgram, count int) ([]ScoredProgram, error) {
	if err := checkSurvivorCount(ranked, count); err != nil {
		return nil, err
	}
	return append([]ScoredProgram(nil), ranked[:count]...), nil
}

// KeepWorstSelector keeps the count least fit programs. It mirrors a
// truncation that discards the fittest first and exists for comparison runs
// only.
type KeepWorstSelector struct{}

func (KeepWorstSelector) Name() string {
	return SelectionKeepWorst
}

func (KeepWorstSelector) Survivors(ranked []ScoredProgram, count int) ([]ScoredProgram, error) {
	if err := checkSurvivorCount(ranked, count); err != nil {
		return nil, err
	}
	return append([]ScoredProgram(nil), ranked[len(ranked)-count:]...), nil
}

// SelectorFromName accepts the canonical names plus case, dash and short
// aliases ("Keep-Best", "best").
func SelectorFromName(name string) (Selector, error) {
	switch NormalizeSelectionName(name) {
	case "", SelectionKeepBest:
		return KeepBestSelector{}, nil
	case SelectionKeepWorst:
		return KeepWorstSelector{}, nil
	default:
		return nil, fmt.Errorf("unsupported selection: %s", name)
	}
}

func NormalizeSelectionName(name string) string {
	normalized := strings.TrimSpace(strings.ToLower(name))
	normalized = strings.ReplaceAll(normalized, "-", "_")
	normalized = strings.ReplaceAll(normalized, " ", "_")
	normalized = strings.Trim(normalized, "_")
	switch normalized {
	case "best":
		return SelectionKeepBest
	case "worst":
		return SelectionKeepWorst
	}
	return normalized
}

// SurvivorCount is the largest n <= fraction*populationSize, at least 1.
func SurvivorCount(populationSize int, fraction float64) int {
	n := int(math.Floor(fraction*float64(populationSize) + 1e-9))
	if n < 1 {
		n = 1
	}
	if n > populationSize {
		n = populationSize
	}
	return n
}

// Rank orders programs by descending fitness. Ties keep population order.
func Rank(scored []ScoredProgram) []ScoredProgram {
	ranked := append([]ScoredProgram(nil), scored...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Fitness > ranked[j].Fitness
	})
	return ranked
}

// pickParent draws uniformly, with replacement, from the survivors.
func pickParent(rng *rand.Rand, survivors []ScoredProgram) (ScoredProgram, error) {
	if rng == nil {
		return ScoredProgram{}, fmt.Errorf("random source is required")
	}
	if len(survivors) == 0 {
		return ScoredProgram{}, fmt.Errorf("no survivors to pick from")
	}
	return survivors[rng.Intn(len(survivors))], nil
}

func checkSurvivorCount(ranked []ScoredProgram, count int) error {
	if count <= 0 || count > len(ranked) {
		return fmt.Errorf("invalid survivor count: %d", count)
	}
	return nil
}
