package picoevo

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"picoevo/internal/evo"
	"picoevo/internal/genotype"
	"picoevo/internal/storage"
)

func newTestClient(t *testing.T) (*Client, string) {
	t.Helper()
	base := t.TempDir()
	client, err := New(Options{
		StoreKind:     storage.KindMemory,
		BenchmarksDir: filepath.Join(base, "benchmarks"),
		ExportsDir:    filepath.Join(base, "exports"),
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = client.Close()
	})
	return client, base
}

func smallRequest(seed int64) RunRequest {
	return RunRequest{
		Population:  8,
		Generations: 3,
		Trials:      2,
		Steps:       30,
		Height:      6,
		Width:       6,
		Seed:        seed,
	}
}

// columnProgram walks north to the wall, then south to the wall, forever.
// From any start it covers exactly its own column.
func columnProgram(t *testing.T) string {
	t.Helper()
	table := make(map[genotype.Key]genotype.Rule, 2*len(genotype.Observations))
	for _, obs := range genotype.Observations {
		north := genotype.Rule{Direction: genotype.North, Next: 0}
		if obs.Blocked(genotype.North) {
			north = genotype.Rule{Direction: genotype.South, Next: 1}
		}
		south := genotype.Rule{Direction: genotype.South, Next: 1}
		if obs.Blocked(genotype.South) {
			south = genotype.Rule{Direction: genotype.North, Next: 0}
		}
		table[genotype.Key{State: 0, Observation: obs}] = north
		table[genotype.Key{State: 1, Observation: obs}] = south
	}
	program, err := genotype.NewProgram(2, table)
	require.NoError(t, err)
	return program.String()
}

func TestClientRunPersistsAndListsRuns(t *testing.T) {
	ctx := context.Background()
	client, base := newTestClient(t)

	var reported []evo.GenerationDiagnostics
	req := smallRequest(11)
	req.RunID = "run-a"
	req.Reporter = evo.ReporterFunc(func(diag evo.GenerationDiagnostics) {
		reported = append(reported, diag)
	})
	summary, err := client.Run(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, "run-a", summary.RunID)
	assert.Len(t, reported, 3)
	assert.Len(t, summary.BestByGeneration, 3)
	assert.Len(t, summary.MeanByGeneration, 3)
	assert.Equal(t, 24, summary.Evaluations)
	assert.Equal(t, summary.BestByGeneration[2], summary.FinalBestFitness)
	assert.Equal(t, genotype.DefaultNumStates, summary.BestProgram.NumStates())
	assert.Equal(t, filepath.Join(base, "benchmarks", "run-a"), summary.ArtifactsDir)

	history, err := client.FitnessHistory(ctx, HistoryRequest{RunRef: RunRef{RunID: "run-a"}})
	require.NoError(t, err)
	assert.Equal(t, summary.BestByGeneration, history)

	diagnostics, err := client.Diagnostics(ctx, HistoryRequest{RunRef: RunRef{Latest: true}, Limit: 2})
	require.NoError(t, err)
	require.Len(t, diagnostics, 2)
	assert.Equal(t, 2, diagnostics[1].Generation)

	lineage, err := client.Lineage(ctx, HistoryRequest{RunRef: RunRef{RunID: "run-a"}, Limit: 5})
	require.NoError(t, err)
	require.Len(t, lineage, 5)
	assert.Equal(t, "seed", lineage[0].Operation)

	best, err := client.BestProgram(ctx, RunRef{RunID: "run-a"})
	require.NoError(t, err)
	assert.Equal(t, summary.BestProgram.String(), best.Program)
	assert.Equal(t, summary.BestProgramID, best.ProgramID)
	assert.Equal(t, 2, best.Generation)

	second := smallRequest(12)
	secondSummary, err := client.Run(ctx, second)
	require.NoError(t, err)
	assert.NotEmpty(t, secondSummary.RunID)

	runs, err := client.Runs(ctx, RunsRequest{})
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, secondSummary.RunID, runs[0].RunID)
	assert.Equal(t, "coverage", runs[0].Scape)
	assert.Equal(t, evo.SelectionKeepBest, runs[0].Selection)

	runs, err = client.Runs(ctx, RunsRequest{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestClientRunIsSeedDeterministic(t *testing.T) {
	ctx := context.Background()
	client, _ := newTestClient(t)

	first, err := client.Run(ctx, smallRequest(5))
	require.NoError(t, err)
	second, err := client.Run(ctx, smallRequest(5))
	require.NoError(t, err)

	assert.NotEqual(t, first.RunID, second.RunID)
	assert.Equal(t, first.BestByGeneration, second.BestByGeneration)
	assert.True(t, first.BestProgram.Equal(second.BestProgram))
}

func TestClientRunRejectsInvalidConfig(t *testing.T) {
	client, _ := newTestClient(t)
	negative := -1
	tooPrecise := 11

	cases := map[string]func(*RunRequest){
		"population":  func(r *RunRequest) { r.Population = -1 },
		"generations": func(r *RunRequest) { r.Generations = -3 },
		"trials":      func(r *RunRequest) { r.Trials = -1 },
		"steps":       func(r *RunRequest) { r.Steps = -1 },
		"height":      func(r *RunRequest) { r.Height = 3 },
		"width":       func(r *RunRequest) { r.Width = 2 },
		"states":      func(r *RunRequest) { r.NumStates = -2 },
		"survival":    func(r *RunRequest) { r.SurvivalFraction = 1.5 },
		"selection":   func(r *RunRequest) { r.Selection = "roulette" },
		"precision":   func(r *RunRequest) { r.Precision = &negative },
		"precision10": func(r *RunRequest) { r.Precision = &tooPrecise },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := smallRequest(1)
			mutate(&req)
			_, err := client.Run(context.Background(), req)
			require.ErrorIs(t, err, ErrInvalidConfig)
		})
	}

	runs, err := client.Runs(context.Background(), RunsRequest{})
	require.NoError(t, err)
	assert.Empty(t, runs, "rejected requests must not reach the run index")
}

func TestRunRequestDefaults(t *testing.T) {
	req := RunRequest{}.WithDefaults()
	assert.Equal(t, DefaultPopulation, req.Population)
	assert.Equal(t, DefaultGenerations, req.Generations)
	assert.Equal(t, 20, req.Trials)
	assert.Equal(t, 800, req.Steps)
	assert.Equal(t, 25, req.Height)
	assert.Equal(t, 25, req.Width)
	assert.Equal(t, 5, req.NumStates)
	assert.Equal(t, 0.1, req.SurvivalFraction)
	assert.Equal(t, evo.SelectionKeepBest, req.Selection)
	require.NotNil(t, req.Precision)
	assert.Equal(t, 4, *req.Precision)
	assert.NoError(t, req.Validate())

	zero := 0
	req = RunRequest{Precision: &zero}.WithDefaults()
	assert.Equal(t, 0, *req.Precision)
}

func TestClientQueriesFallBackToArtifacts(t *testing.T) {
	ctx := context.Background()
	client, base := newTestClient(t)

	req := smallRequest(3)
	req.RunID = "run-disk"
	summary, err := client.Run(ctx, req)
	require.NoError(t, err)

	// A fresh client has an empty memory store but shares the artifacts dir.
	fresh, err := New(Options{
		StoreKind:     storage.KindMemory,
		BenchmarksDir: filepath.Join(base, "benchmarks"),
	})
	require.NoError(t, err)

	history, err := fresh.FitnessHistory(ctx, HistoryRequest{RunRef: RunRef{Latest: true}})
	require.NoError(t, err)
	assert.Equal(t, summary.BestByGeneration, history)

	best, err := fresh.BestProgram(ctx, RunRef{RunID: "run-disk"})
	require.NoError(t, err)
	assert.Equal(t, summary.BestProgram.String(), best.Program)
	assert.Equal(t, summary.FinalBestFitness, best.Fitness)

	lineage, err := fresh.Lineage(ctx, HistoryRequest{RunRef: RunRef{RunID: "run-disk"}})
	require.NoError(t, err)
	assert.Len(t, lineage, 24)

	_, err = fresh.Diagnostics(ctx, HistoryRequest{RunRef: RunRef{RunID: "missing"}})
	require.Error(t, err)
}

func TestClientRunsReadStoreWithoutArtifacts(t *testing.T) {
	ctx := context.Background()
	client, base := newTestClient(t)

	first := smallRequest(6)
	first.RunID = "run-old"
	_, err := client.Run(ctx, first)
	require.NoError(t, err)
	second := smallRequest(7)
	second.RunID = "run-new"
	summary, err := client.Run(ctx, second)
	require.NoError(t, err)

	require.NoError(t, os.RemoveAll(filepath.Join(base, "benchmarks")))

	runs, err := client.Runs(ctx, RunsRequest{})
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-new", runs[0].RunID)
	assert.Equal(t, "run-old", runs[1].RunID)
	assert.Equal(t, "coverage", runs[0].Scape)
	assert.Equal(t, 2, runs[0].Trials)
	assert.Equal(t, 30, runs[0].Steps)
	assert.Equal(t, genotype.DefaultNumStates, runs[0].NumStates)
	assert.Equal(t, summary.FinalBestFitness, runs[0].FinalBestFitness)

	history, err := client.FitnessHistory(ctx, HistoryRequest{RunRef: RunRef{Latest: true}})
	require.NoError(t, err)
	assert.Equal(t, summary.BestByGeneration, history)
}

func TestClientRunsMergesIndexForUnstoredRuns(t *testing.T) {
	ctx := context.Background()
	client, base := newTestClient(t)

	req := smallRequest(8)
	req.RunID = "run-indexed"
	_, err := client.Run(ctx, req)
	require.NoError(t, err)

	fresh, err := New(Options{
		StoreKind:     storage.KindMemory,
		BenchmarksDir: filepath.Join(base, "benchmarks"),
	})
	require.NoError(t, err)
	local := smallRequest(9)
	local.RunID = "run-local"
	_, err = fresh.Run(ctx, local)
	require.NoError(t, err)

	runs, err := fresh.Runs(ctx, RunsRequest{})
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-local", runs[0].RunID)
	assert.Equal(t, "run-indexed", runs[1].RunID)
	assert.Equal(t, 2, runs[1].Trials, "index entries are completed from config.json")
	assert.Equal(t, 30, runs[1].Steps)
}

func TestClientRunRefValidation(t *testing.T) {
	ctx := context.Background()
	client, _ := newTestClient(t)

	_, err := client.FitnessHistory(ctx, HistoryRequest{RunRef: RunRef{RunID: "a", Latest: true}})
	require.Error(t, err)
	_, err = client.FitnessHistory(ctx, HistoryRequest{})
	require.Error(t, err)
	_, err = client.Lineage(ctx, HistoryRequest{RunRef: RunRef{RunID: "a"}, Limit: -1})
	require.Error(t, err)
	_, err = client.BestProgram(ctx, RunRef{Latest: true})
	require.Error(t, err)
}

func TestClientExport(t *testing.T) {
	ctx := context.Background()
	client, base := newTestClient(t)

	req := smallRequest(2)
	req.RunID = "run-x"
	_, err := client.Run(ctx, req)
	require.NoError(t, err)

	exported, err := client.Export(ctx, ExportRequest{RunRef: RunRef{Latest: true}})
	require.NoError(t, err)
	assert.Equal(t, "run-x", exported.RunID)
	assert.Equal(t, filepath.Join(base, "exports", "run-x"), exported.Directory)

	data, err := os.ReadFile(filepath.Join(exported.Directory, "best_program.txt"))
	require.NoError(t, err)
	_, err = genotype.ParseProgram(string(data))
	require.NoError(t, err)
}

func TestClientEvaluateFixedStart(t *testing.T) {
	client, _ := newTestClient(t)

	summary, err := client.Evaluate(context.Background(), EvaluateRequest{
		Program: columnProgram(t),
		Height:  6,
		Width:   6,
		Steps:   20,
		Row:     2,
		Col:     2,
		Render:  true,
	})
	require.NoError(t, err)
	assert.Equal(t, 0.25, summary.Fitness)
	assert.Equal(t, 1, summary.Trials)
	assert.Contains(t, summary.Room, "P")
	assert.Equal(t, 6, strings.Count(summary.Room, "\n"))
}

func TestClientEvaluateRandomStarts(t *testing.T) {
	client, _ := newTestClient(t)
	req := EvaluateRequest{
		Program: columnProgram(t),
		Height:  6,
		Width:   6,
		Trials:  5,
		Steps:   20,
		Seed:    9,
	}

	summary, err := client.Evaluate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 0.25, summary.Fitness)
	assert.Equal(t, 5, summary.Trials)
	assert.Len(t, summary.TrialCoverage, 5)

	req.Render = true
	_, err = client.Evaluate(context.Background(), req)
	require.ErrorIs(t, err, ErrInvalidConfig)

	_, err = client.Evaluate(context.Background(), EvaluateRequest{Program: "0 QQQQ -> N 0"})
	require.Error(t, err)
}
