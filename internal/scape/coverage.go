package scape

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"picoevo/internal/genotype"
)

const (
	DefaultRoomHeight = 25
	DefaultRoomWidth  = 25
	DefaultTrials     = 20
	DefaultSteps      = 800
	DefaultPrecision  = 4
	MaxPrecision      = 10
)

// CoverageScape scores a program by the mean fraction of an empty room its
// walker visits from random starting cells.
type CoverageScape struct {
	Height    int
	Width     int
	Trials    int
	Steps     int
	Precision int
}

// NewCoverageScape validates cfg. Zero Height, Width, Trials and Steps take
// the package defaults; Precision is used as given.
func NewCoverageScape(cfg CoverageScape) (CoverageScape, error) {
	if cfg.Height == 0 {
		cfg.Height = DefaultRoomHeight
	}
	if cfg.Width == 0 {
		cfg.Width = DefaultRoomWidth
	}
	if cfg.Trials == 0 {
		cfg.Trials = DefaultTrials
	}
	if cfg.Steps == 0 {
		cfg.Steps = DefaultSteps
	}
	if cfg.Height < MinRoomSize || cfg.Width < MinRoomSize {
		return CoverageScape{}, fmt.Errorf("room must be at least %dx%d, got %dx%d", MinRoomSize, MinRoomSize, cfg.Height, cfg.Width)
	}
	if cfg.Trials < 0 {
		return CoverageScape{}, fmt.Errorf("trials must be > 0")
	}
	if cfg.Steps < 0 {
		return CoverageScape{}, fmt.Errorf("steps must be > 0")
	}
	if cfg.Precision < 0 || cfg.Precision > MaxPrecision {
		return CoverageScape{}, fmt.Errorf("precision must be in [0, %d]", MaxPrecision)
	}
	return cfg, nil
}

func (CoverageScape) Name() string {
	return "coverage"
}

func (s CoverageScape) Evaluate(ctx context.Context, rng *rand.Rand, program genotype.Program) (Fitness, Trace, error) {
	if rng == nil {
		return 0, nil, fmt.Errorf("random source is required")
	}
	if s.Trials <= 0 {
		return 0, nil, fmt.Errorf("trials must be > 0")
	}
	if s.Height < MinRoomSize || s.Width < MinRoomSize {
		return 0, nil, fmt.Errorf("room must be at least %dx%d, got %dx%d", MinRoomSize, MinRoomSize, s.Height, s.Width)
	}

	coverage := make([]float64, 0, s.Trials)
	total := 0.0
	minCoverage, maxCoverage := math.Inf(1), math.Inf(-1)
	for i := 0; i < s.Trials; i++ {
		if err := ctx.Err(); err != nil {
			return 0, nil, err
		}
		col := 1 + rng.Intn(s.Width-2)
		row := 1 + rng.Intn(s.Height-2)
		fraction, err := s.RunTrial(program, row, col)
		if err != nil {
			return 0, nil, fmt.Errorf("trial %d: %w", i, err)
		}
		coverage = append(coverage, fraction)
		total += fraction
		minCoverage = math.Min(minCoverage, fraction)
		maxCoverage = math.Max(maxCoverage, fraction)
	}

	mean := total / float64(s.Trials)
	return Fitness(Round(mean, s.Precision)), Trace{
		"trial_coverage": coverage,
		"mean_coverage":  mean,
		"min_coverage":   minCoverage,
		"max_coverage":   maxCoverage,
		"precision":      s.Precision,
	}, nil
}

// RunTrial runs one simulation from a fixed start cell and returns its
// coverage fraction.
func (s CoverageScape) RunTrial(program genotype.Program, row, col int) (float64, error) {
	world, err := NewWorld(s.Height, s.Width, row, col, program)
	if err != nil {
		return 0, err
	}
	if err := world.Run(s.Steps); err != nil {
		return 0, err
	}
	return world.FractionVisited(), nil
}

// Round rounds v half away from zero to the given number of decimals.
func Round(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}
