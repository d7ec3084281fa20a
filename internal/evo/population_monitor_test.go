package evo

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"picoevo/internal/genotype"
	"picoevo/internal/scape"
)

// northScape rewards programs for the share of rules that move north.
type northScape struct {
	calls int
}

func (*northScape) Name() string { return "north" }

func (s *northScape) Evaluate(_ context.Context, _ *rand.Rand, program genotype.Program) (scape.Fitness, scape.Trace, error) {
	s.calls++
	north := 0
	for _, entry := range program.Rules() {
		if entry.Direction == genotype.North {
			north++
		}
	}
	return scape.Fitness(float64(north) / float64(program.Len())), scape.Trace{"north": north}, nil
}

func newMonitor(t *testing.T, cfg MonitorConfig) *PopulationMonitor {
	t.Helper()
	if cfg.Scape == nil {
		cfg.Scape = &northScape{}
	}
	monitor, err := NewPopulationMonitor(cfg)
	require.NoError(t, err)
	return monitor
}

func TestNewPopulationMonitorValidatesConfig(t *testing.T) {
	cases := []MonitorConfig{
		{PopulationSize: 10, Generations: 1},
		{Scape: &northScape{}, PopulationSize: 0, Generations: 1},
		{Scape: &northScape{}, PopulationSize: 10, Generations: 0},
		{Scape: &northScape{}, PopulationSize: 10, Generations: 1, SurvivalFraction: 1.5},
		{Scape: &northScape{}, PopulationSize: 10, Generations: 1, SurvivalFraction: -0.1},
		{Scape: &northScape{}, PopulationSize: 10, Generations: 1, NumStates: -1},
	}
	for _, cfg := range cases {
		_, err := NewPopulationMonitor(cfg)
		assert.Error(t, err, "config %+v", cfg)
	}
}

func TestRunProducesOneReportPerGeneration(t *testing.T) {
	var reports []GenerationDiagnostics
	s := &northScape{}
	monitor := newMonitor(t, MonitorConfig{
		Scape:          s,
		PopulationSize: 12,
		Generations:    4,
		NumStates:      3,
		Seed:           1,
		Reporter: ReporterFunc(func(diag GenerationDiagnostics) {
			reports = append(reports, diag)
		}),
	})

	result, err := monitor.Run(context.Background(), nil)
	require.NoError(t, err)

	require.Len(t, reports, 4)
	for i, diag := range reports {
		assert.Equal(t, i, diag.Generation)
		assert.GreaterOrEqual(t, diag.BestFitness, diag.MeanFitness)
		assert.GreaterOrEqual(t, diag.MeanFitness, diag.MinFitness)
		assert.Equal(t, 1, diag.Survivors)
	}
	assert.Equal(t, reports, result.GenerationDiagnostics)
	assert.Len(t, result.BestByGeneration, 4)
	assert.Equal(t, 48, result.Evaluations)
	assert.Equal(t, 48, s.calls)
	assert.Len(t, result.FinalPopulation, 12)
	assert.Len(t, result.Lineage, 48)

	assert.Equal(t, result.FinalPopulation[0].ID, result.Best.ID)
	assert.Equal(t, reports[3].BestFitness, result.Best.Fitness)
	for _, item := range result.FinalPopulation {
		assert.LessOrEqual(t, item.Fitness, result.Best.Fitness)
		assert.Equal(t, 3, item.Program.NumStates())
		assert.Equal(t, 3*len(genotype.Observations), item.Program.Len())
	}
}

func TestRunIsSeedDeterministic(t *testing.T) {
	cfg := MonitorConfig{PopulationSize: 20, Generations: 5, Seed: 77}

	first, err := newMonitor(t, cfg).Run(context.Background(), nil)
	require.NoError(t, err)
	second, err := newMonitor(t, cfg).Run(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, first.BestByGeneration, second.BestByGeneration)
	assert.Equal(t, first.Lineage, second.Lineage)
	assert.True(t, first.Best.Program.Equal(second.Best.Program))
}

func TestKeepBestSelectionImprovesFitness(t *testing.T) {
	cfg := MonitorConfig{PopulationSize: 40, Generations: 15, Seed: 3}

	best, err := newMonitor(t, cfg).Run(context.Background(), nil)
	require.NoError(t, err)
	first := best.GenerationDiagnostics[0]
	last := best.GenerationDiagnostics[len(best.GenerationDiagnostics)-1]
	assert.Greater(t, last.MeanFitness, first.MeanFitness)

	cfg.Selector = KeepWorstSelector{}
	worst, err := newMonitor(t, cfg).Run(context.Background(), nil)
	require.NoError(t, err)
	worstLast := worst.GenerationDiagnostics[len(worst.GenerationDiagnostics)-1]
	assert.Greater(t, last.MeanFitness, worstLast.MeanFitness)
}

func TestRunLineageLinksSurvivingParents(t *testing.T) {
	result, err := newMonitor(t, MonitorConfig{PopulationSize: 10, Generations: 3, SurvivalFraction: 0.2, Seed: 9}).Run(context.Background(), nil)
	require.NoError(t, err)

	idsByGeneration := map[int]map[string]bool{}
	for _, record := range result.Lineage {
		if idsByGeneration[record.Generation] == nil {
			idsByGeneration[record.Generation] = map[string]bool{}
		}
		idsByGeneration[record.Generation][record.ProgramID] = true
	}
	for _, record := range result.Lineage {
		if record.Generation == 0 {
			assert.Equal(t, "seed", record.Operation)
			continue
		}
		assert.Equal(t, "crossover+mutate", record.Operation)
		assert.True(t, idsByGeneration[record.Generation-1][record.ParentA], "parent %s", record.ParentA)
		assert.True(t, idsByGeneration[record.Generation-1][record.ParentB], "parent %s", record.ParentB)
		assert.GreaterOrEqual(t, record.CrossoverSplit, 1)
		assert.LessOrEqual(t, record.CrossoverSplit, genotype.DefaultNumStates-1)
		assert.NotEmpty(t, record.Mutation)
	}
}

func TestRunWithInitialPopulation(t *testing.T) {
	rng := rand.New(rand.NewSource(8))
	initial := make([]genotype.Program, 0, 5)
	for i := 0; i < 5; i++ {
		program, err := genotype.NewRandomProgram(rng, 2)
		require.NoError(t, err)
		initial = append(initial, program)
	}

	monitor := newMonitor(t, MonitorConfig{PopulationSize: 5, Generations: 1, NumStates: 2})
	result, err := monitor.Run(context.Background(), initial)
	require.NoError(t, err)
	for _, item := range result.FinalPopulation {
		found := false
		for _, program := range initial {
			found = found || program.Equal(item.Program)
		}
		assert.True(t, found, "single generation must evaluate the initial programs")
	}

	_, err = monitor.Run(context.Background(), initial[:3])
	require.Error(t, err)

	wrongStates := newMonitor(t, MonitorConfig{PopulationSize: 5, Generations: 1, NumStates: 3})
	_, err = wrongStates.Run(context.Background(), initial)
	require.Error(t, err)
}

func TestRunHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newMonitor(t, MonitorConfig{PopulationSize: 4, Generations: 2}).Run(ctx, nil)
	require.ErrorIs(t, err, context.Canceled)
}

func TestRunWithCoverageScape(t *testing.T) {
	coverage, err := scape.NewCoverageScape(scape.CoverageScape{Height: 6, Width: 6, Trials: 2, Steps: 30, Precision: scape.DefaultPrecision})
	require.NoError(t, err)

	result, err := newMonitor(t, MonitorConfig{Scape: coverage, PopulationSize: 8, Generations: 3, Seed: 5}).Run(context.Background(), nil)
	require.NoError(t, err)
	for _, item := range result.FinalPopulation {
		assert.GreaterOrEqual(t, item.Fitness, 0.0)
		assert.LessOrEqual(t, item.Fitness, 1.0)
	}
	assert.Greater(t, result.Best.Fitness, 0.0)
	assert.NotEmpty(t, result.Best.Program.String())
}
