package genotype

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
)

var (
	ErrUnknownRule       = errors.New("unknown rule")
	ErrIllegalRule       = errors.New("illegal rule")
	ErrNoAlternativeRule = errors.New("no alternative rule")
)

// DefaultNumStates is the controller memory size used by the reference setup.
const DefaultNumStates = 5

// Key addresses one entry of a rule table.
type Key struct {
	State       int
	Observation Observation
}

// Rule is the action taken for a key: move one cell and switch state.
type Rule struct {
	Direction Direction
	Next      int
}

func (r Rule) String() string {
	return fmt.Sprintf("%s %d", r.Direction, r.Next)
}

type Entry struct {
	Key
	Rule
}

// MutationRecord describes the single entry rewritten by a mutation.
type MutationRecord struct {
	Key    Key
	Before Rule
	After  Rule
}

// Program is a complete rule table covering every (state, observation) pair.
// Values are immutable: mutation and crossover return new programs.
type Program struct {
	numStates int
	rules     []Rule
}

// NewRandomProgram draws a legal direction and a next state uniformly for
// every entry.
func NewRandomProgram(rng *rand.Rand, numStates int) (Program, error) {
	if rng == nil {
		return Program{}, fmt.Errorf("random source is required")
	}
	if numStates <= 0 {
		return Program{}, fmt.Errorf("state count must be > 0, got %d", numStates)
	}

	rules := make([]Rule, numStates*len(Observations))
	for state := 0; state < numStates; state++ {
		for i, obs := range Observations {
			legal := obs.LegalDirections()
			rules[state*len(Observations)+i] = Rule{
				Direction: legal[rng.Intn(len(legal))],
				Next:      rng.Intn(numStates),
			}
		}
	}
	return Program{numStates: numStates, rules: rules}, nil
}

// NewProgram builds a program from an explicit table. The table must cover
// every key exactly once with legal rules.
func NewProgram(numStates int, table map[Key]Rule) (Program, error) {
	if numStates <= 0 {
		return Program{}, fmt.Errorf("state count must be > 0, got %d", numStates)
	}
	want := numStates * len(Observations)
	if len(table) != want {
		return Program{}, fmt.Errorf("rule table has %d entries, want %d", len(table), want)
	}

	rules := make([]Rule, want)
	filled := make([]bool, want)
	for key, rule := range table {
		idx, err := index(numStates, key)
		if err != nil {
			return Program{}, err
		}
		if err := checkRule(numStates, key, rule); err != nil {
			return Program{}, err
		}
		rules[idx] = rule
		filled[idx] = true
	}
	for idx, ok := range filled {
		if !ok {
			return Program{}, fmt.Errorf("%w: missing state=%d observation=%s", ErrUnknownRule, idx/len(Observations), Observations[idx%len(Observations)])
		}
	}
	return Program{numStates: numStates, rules: rules}, nil
}

func (p Program) NumStates() int {
	return p.numStates
}

// Len reports the number of entries, always NumStates()*len(Observations).
func (p Program) Len() int {
	return len(p.rules)
}

// Move looks up the rule for the given state and observation.
func (p Program) Move(state int, obs Observation) (Rule, error) {
	idx, err := index(p.numStates, Key{State: state, Observation: obs})
	if err != nil {
		return Rule{}, err
	}
	return p.rules[idx], nil
}

// Rules returns every entry sorted by state, then by observation.
func (p Program) Rules() []Entry {
	order := canonicalObservationOrder()
	out := make([]Entry, 0, len(p.rules))
	for state := 0; state < p.numStates; state++ {
		for _, i := range order {
			out = append(out, Entry{
				Key:  Key{State: state, Observation: Observations[i]},
				Rule: p.rules[state*len(Observations)+i],
			})
		}
	}
	return out
}

func (p Program) Equal(other Program) bool {
	if p.numStates != other.numStates || len(p.rules) != len(other.rules) {
		return false
	}
	for i := range p.rules {
		if p.rules[i] != other.rules[i] {
			return false
		}
	}
	return true
}

// Mutate rewrites one uniformly chosen entry with a different legal rule.
func (p Program) Mutate(rng *rand.Rand) (Program, MutationRecord, error) {
	if rng == nil {
		return Program{}, MutationRecord{}, fmt.Errorf("random source is required")
	}
	if len(p.rules) == 0 {
		return Program{}, MutationRecord{}, fmt.Errorf("%w: empty program", ErrUnknownRule)
	}

	idx := rng.Intn(len(p.rules))
	key := Key{State: idx / len(Observations), Observation: Observations[idx%len(Observations)]}
	current := p.rules[idx]
	legal := key.Observation.LegalDirections()

	// Pairs are enumerated direction-major; skipping the current pair keeps
	// the draw uniform over the alternatives and bounded.
	total := len(legal) * p.numStates
	if total <= 1 {
		return Program{}, MutationRecord{}, fmt.Errorf("%w: state=%d observation=%s", ErrNoAlternativeRule, key.State, key.Observation)
	}
	currentPair := -1
	for i, d := range legal {
		if d == current.Direction {
			currentPair = i*p.numStates + current.Next
			break
		}
	}
	pick := rng.Intn(total - 1)
	if currentPair >= 0 && pick >= currentPair {
		pick++
	}
	replacement := Rule{Direction: legal[pick/p.numStates], Next: pick % p.numStates}

	child, err := p.MutateAt(key, replacement)
	if err != nil {
		return Program{}, MutationRecord{}, err
	}
	return child, MutationRecord{Key: key, Before: current, After: replacement}, nil
}

// MutateAt returns a copy of p with the entry at key replaced by rule.
func (p Program) MutateAt(key Key, rule Rule) (Program, error) {
	idx, err := index(p.numStates, key)
	if err != nil {
		return Program{}, err
	}
	if err := checkRule(p.numStates, key, rule); err != nil {
		return Program{}, err
	}
	child := p.clone()
	child.rules[idx] = rule
	return child, nil
}

// Crossover draws a split state k in [1, NumStates()-1] and returns the
// offspring of CrossoverAt along with k. A single-state program has no such
// split; the offspring is then a copy of other and k is 0.
func (p Program) Crossover(rng *rand.Rand, other Program) (Program, int, error) {
	if rng == nil {
		return Program{}, 0, fmt.Errorf("random source is required")
	}
	if p.numStates != other.numStates {
		return Program{}, 0, fmt.Errorf("crossover state count mismatch: %d != %d", p.numStates, other.numStates)
	}
	split := 0
	if p.numStates > 1 {
		split = 1 + rng.Intn(p.numStates-1)
	}
	child, err := p.CrossoverAt(other, split)
	if err != nil {
		return Program{}, 0, err
	}
	return child, split, nil
}

// CrossoverAt copies other, then takes every entry with state < split from p.
func (p Program) CrossoverAt(other Program, split int) (Program, error) {
	if p.numStates != other.numStates {
		return Program{}, fmt.Errorf("crossover state count mismatch: %d != %d", p.numStates, other.numStates)
	}
	if split < 0 || split > p.numStates {
		return Program{}, fmt.Errorf("crossover split %d out of range [0, %d]", split, p.numStates)
	}
	child := other.clone()
	copy(child.rules[:split*len(Observations)], p.rules[:split*len(Observations)])
	return child, nil
}

func (p Program) clone() Program {
	return Program{
		numStates: p.numStates,
		rules:     append([]Rule(nil), p.rules...),
	}
}

func index(numStates int, key Key) (int, error) {
	obsIdx, ok := observationIndex[key.Observation]
	if !ok || key.State < 0 || key.State >= numStates {
		return 0, fmt.Errorf("%w: state=%d observation=%q", ErrUnknownRule, key.State, key.Observation)
	}
	return key.State*len(Observations) + obsIdx, nil
}

func checkRule(numStates int, key Key, rule Rule) error {
	if !rule.Direction.Valid() {
		return fmt.Errorf("%w: invalid direction %q for state=%d observation=%s", ErrIllegalRule, rule.Direction, key.State, key.Observation)
	}
	if key.Observation.Blocked(rule.Direction) {
		return fmt.Errorf("%w: direction %s blocked by observation %s", ErrIllegalRule, rule.Direction, key.Observation)
	}
	if rule.Next < 0 || rule.Next >= numStates {
		return fmt.Errorf("%w: next state %d out of range [0, %d)", ErrIllegalRule, rule.Next, numStates)
	}
	return nil
}

// canonicalObservationOrder returns indexes into Observations sorted by the
// observation text.
func canonicalObservationOrder() []int {
	order := make([]int, len(Observations))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(i, j int) bool {
		return Observations[order[i]] < Observations[order[j]]
	})
	return order
}
