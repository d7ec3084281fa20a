package picoevo

import (
	"context"
	"fmt"
	"math/rand"

	"picoevo/internal/genotype"
	"picoevo/internal/scape"
)

type EvaluateRequest struct {
	// Program is rule table text in the format produced by Program.String.
	Program   string
	Trials    int
	Steps     int
	Height    int
	Width     int
	Precision *int
	Seed      int64
	// Row and Col pin a single trial to a start cell when both are > 0.
	Row    int
	Col    int
	Render bool
}

type EvaluateSummary struct {
	Fitness float64
	Trials  int
	// TrialCoverage holds the unrounded coverage of each trial.
	TrialCoverage []float64
	// Room is the final room of a fixed-start trial when Render is set.
	Room string
}

// Evaluate scores one program without touching the store.
func (c *Client) Evaluate(ctx context.Context, req EvaluateRequest) (EvaluateSummary, error) {
	program, err := genotype.ParseProgram(req.Program)
	if err != nil {
		return EvaluateSummary{}, fmt.Errorf("parse program: %w", err)
	}

	precision := scape.DefaultPrecision
	if req.Precision != nil {
		precision = *req.Precision
	}
	coverage, err := scape.NewCoverageScape(scape.CoverageScape{
		Height:    req.Height,
		Width:     req.Width,
		Trials:    req.Trials,
		Steps:     req.Steps,
		Precision: precision,
	})
	if err != nil {
		return EvaluateSummary{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if req.Row > 0 && req.Col > 0 {
		world, err := scape.NewWorld(coverage.Height, coverage.Width, req.Row, req.Col, program)
		if err != nil {
			return EvaluateSummary{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		if err := world.Run(coverage.Steps); err != nil {
			return EvaluateSummary{}, err
		}
		fraction := world.FractionVisited()
		summary := EvaluateSummary{
			Fitness:       scape.Round(fraction, coverage.Precision),
			Trials:        1,
			TrialCoverage: []float64{fraction},
		}
		if req.Render {
			summary.Room = world.String()
		}
		c.log.WithField("fitness", summary.Fitness).Debug("fixed start program evaluated")
		return summary, nil
	}
	if req.Render {
		return EvaluateSummary{}, fmt.Errorf("%w: render requires a fixed start row and col", ErrInvalidConfig)
	}

	fitness, trace, err := coverage.Evaluate(ctx, rand.New(rand.NewSource(req.Seed)), program)
	if err != nil {
		return EvaluateSummary{}, err
	}
	trials, _ := trace["trial_coverage"].([]float64)
	c.log.WithField("fitness", float64(fitness)).Debug("program evaluated")
	return EvaluateSummary{
		Fitness:       float64(fitness),
		Trials:        coverage.Trials,
		TrialCoverage: trials,
	}, nil
}
