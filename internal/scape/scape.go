package scape

import (
	"context"
	"math/rand"

	"picoevo/internal/genotype"
)

type Fitness float64

type Trace map[string]any

// RuleSource is the read-only view of a program that a world steps through.
type RuleSource interface {
	Move(state int, obs genotype.Observation) (genotype.Rule, error)
}

// Scape scores a program. Randomness is drawn only from rng.
type Scape interface {
	Name() string
	Evaluate(ctx context.Context, rng *rand.Rand, program genotype.Program) (Fitness, Trace, error)
}
