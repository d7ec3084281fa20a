package picoevo

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"picoevo/internal/model"
	"picoevo/internal/scape"
	"picoevo/internal/stats"
)

type RunsRequest struct {
	Limit int
}

type RunItem struct {
	RunID            string
	CreatedAtUTC     string
	Scape            string
	Seed             int64
	Population       int
	Generations      int
	Trials           int
	Steps            int
	NumStates        int
	Selection        string
	FinalBestFitness float64
}

// RunRef names a run either by id or as the most recent one.
type RunRef struct {
	RunID  string
	Latest bool
}

type HistoryRequest struct {
	RunRef
	Limit int
}

type ExportRequest struct {
	RunRef
	OutDir string
}

type ExportSummary struct {
	RunID     string
	Directory string
}

type LineageItem struct {
	ProgramID      string
	ParentA        string
	ParentB        string
	Generation     int
	Operation      string
	CrossoverSplit int
	Mutation       string
}

type BestProgramItem struct {
	RunID      string
	ProgramID  string
	Generation int
	Fitness    float64
	// Program is the canonical rule table text.
	Program string
}

// Runs lists runs newest first. The store is read first; the artifacts
// index adds runs the store does not hold.
func (c *Client) Runs(ctx context.Context, req RunsRequest) ([]RunItem, error) {
	if req.Limit <= 0 {
		req.Limit = 20
	}
	if err := c.ensureStore(ctx); err != nil {
		return nil, err
	}

	stored, err := c.store.ListRuns(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]RunItem, 0, len(stored))
	seen := make(map[string]bool, len(stored))
	for _, run := range stored {
		seen[run.ID] = true
		out = append(out, RunItem{
			RunID:            run.ID,
			CreatedAtUTC:     run.CreatedAtUTC,
			Scape:            scape.CoverageScape{}.Name(),
			Seed:             run.Config.Seed,
			Population:       run.Config.PopulationSize,
			Generations:      run.Config.Generations,
			Trials:           run.Config.Trials,
			Steps:            run.Config.Steps,
			NumStates:        run.Config.NumStates,
			Selection:        run.Config.Selection,
			FinalBestFitness: run.FinalBestFitness,
		})
	}

	entries, err := stats.ListRunIndex(c.benchmarksDir)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if seen[e.RunID] {
			continue
		}
		item := RunItem{
			RunID:            e.RunID,
			CreatedAtUTC:     e.CreatedAtUTC,
			Scape:            e.Scape,
			Seed:             e.Seed,
			Population:       e.PopulationSize,
			Generations:      e.Generations,
			Selection:        e.Selection,
			FinalBestFitness: e.FinalBestFitness,
		}
		cfg, ok, err := stats.ReadRunConfig(c.benchmarksDir, e.RunID)
		if err != nil {
			return nil, err
		}
		if ok {
			item.Trials = cfg.Trials
			item.Steps = cfg.Steps
			item.NumStates = cfg.NumStates
		}
		out = append(out, item)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return createdAfter(out[i].CreatedAtUTC, out[j].CreatedAtUTC)
	})
	if len(out) > req.Limit {
		out = out[:req.Limit]
	}
	return out, nil
}

// FitnessHistory returns the best fitness of each generation. The store is
// consulted first; runs from an earlier process fall back to the artifacts
// directory.
func (c *Client) FitnessHistory(ctx context.Context, req HistoryRequest) ([]float64, error) {
	runID, err := c.resolveRunID(ctx, req.RunRef, req.Limit)
	if err != nil {
		return nil, err
	}
	if err := c.ensureStore(ctx); err != nil {
		return nil, err
	}

	history, ok, err := c.store.GetFitnessHistory(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		history, ok, err = stats.ReadFitnessHistory(c.benchmarksDir, runID)
		if err != nil {
			return nil, err
		}
	}
	if !ok {
		return nil, fmt.Errorf("fitness history not found for run id: %s", runID)
	}
	return limitTail(history, req.Limit), nil
}

func (c *Client) Diagnostics(ctx context.Context, req HistoryRequest) ([]model.GenerationDiagnostics, error) {
	runID, err := c.resolveRunID(ctx, req.RunRef, req.Limit)
	if err != nil {
		return nil, err
	}
	if err := c.ensureStore(ctx); err != nil {
		return nil, err
	}

	diagnostics, ok, err := c.store.GetGenerationDiagnostics(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		diagnostics, ok, err = stats.ReadGenerationDiagnostics(c.benchmarksDir, runID)
		if err != nil {
			return nil, err
		}
	}
	if !ok {
		return nil, fmt.Errorf("generation diagnostics not found for run id: %s", runID)
	}
	return limitTail(diagnostics, req.Limit), nil
}

// Lineage returns the first Limit lineage records of a run, seeds first.
func (c *Client) Lineage(ctx context.Context, req HistoryRequest) ([]LineageItem, error) {
	runID, err := c.resolveRunID(ctx, req.RunRef, req.Limit)
	if err != nil {
		return nil, err
	}
	if err := c.ensureStore(ctx); err != nil {
		return nil, err
	}

	lineage, ok, err := c.store.GetLineage(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		lineage, ok, err = stats.ReadLineage(c.benchmarksDir, runID)
		if err != nil {
			return nil, err
		}
	}
	if !ok {
		return nil, fmt.Errorf("lineage not found for run id: %s", runID)
	}
	if req.Limit > 0 && len(lineage) > req.Limit {
		lineage = lineage[:req.Limit]
	}

	out := make([]LineageItem, 0, len(lineage))
	for _, rec := range lineage {
		out = append(out, LineageItem{
			ProgramID:      rec.ProgramID,
			ParentA:        rec.ParentA,
			ParentB:        rec.ParentB,
			Generation:     rec.Generation,
			Operation:      rec.Operation,
			CrossoverSplit: rec.CrossoverSplit,
			Mutation:       rec.Mutation,
		})
	}
	return out, nil
}

func (c *Client) BestProgram(ctx context.Context, ref RunRef) (BestProgramItem, error) {
	runID, err := c.resolveRunID(ctx, ref, 0)
	if err != nil {
		return BestProgramItem{}, err
	}
	if err := c.ensureStore(ctx); err != nil {
		return BestProgramItem{}, err
	}

	program, ok, err := c.store.GetBestProgram(ctx, runID)
	if err != nil {
		return BestProgramItem{}, err
	}
	if ok {
		return BestProgramItem{
			RunID:      runID,
			ProgramID:  program.ID,
			Generation: program.Generation,
			Fitness:    program.Fitness,
			Program:    program.Rules,
		}, nil
	}

	text, ok, err := stats.ReadBestProgram(c.benchmarksDir, runID)
	if err != nil {
		return BestProgramItem{}, err
	}
	if !ok {
		return BestProgramItem{}, fmt.Errorf("best program not found for run id: %s", runID)
	}
	item := BestProgramItem{RunID: runID, Program: text}
	diagnostics, ok, err := stats.ReadGenerationDiagnostics(c.benchmarksDir, runID)
	if err != nil {
		return BestProgramItem{}, err
	}
	if ok && len(diagnostics) > 0 {
		last := diagnostics[len(diagnostics)-1]
		item.ProgramID = last.BestProgramID
		item.Generation = last.Generation
		item.Fitness = last.BestFitness
	}
	return item, nil
}

func (c *Client) Export(ctx context.Context, req ExportRequest) (ExportSummary, error) {
	runID, err := c.resolveRunID(ctx, req.RunRef, 0)
	if err != nil {
		return ExportSummary{}, err
	}
	if req.OutDir == "" {
		req.OutDir = c.exportsDir
	}

	exportedDir, err := stats.ExportRunArtifacts(c.benchmarksDir, runID, req.OutDir)
	if err != nil {
		return ExportSummary{}, err
	}
	return ExportSummary{RunID: runID, Directory: filepath.Clean(exportedDir)}, nil
}

func (c *Client) resolveRunID(ctx context.Context, ref RunRef, limit int) (string, error) {
	if ref.RunID != "" && ref.Latest {
		return "", errors.New("use either run id or latest")
	}
	if limit < 0 {
		return "", errors.New("limit must be >= 0")
	}
	if !ref.Latest {
		if ref.RunID == "" {
			return "", errors.New("run id or latest is required")
		}
		return ref.RunID, nil
	}

	runs, err := c.Runs(ctx, RunsRequest{Limit: 1})
	if err != nil {
		return "", err
	}
	if len(runs) == 0 {
		return "", errors.New("no runs available")
	}
	return runs[0].RunID, nil
}

// createdAfter orders RFC3339 timestamps newest first. Unparseable values
// compare as strings.
func createdAfter(a, b string) bool {
	ta, errA := time.Parse(time.RFC3339Nano, a)
	tb, errB := time.Parse(time.RFC3339Nano, b)
	if errA != nil || errB != nil {
		return a > b
	}
	return ta.After(tb)
}

// limitTail keeps the last limit items; zero keeps all.
func limitTail[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[len(items)-limit:]
	}
	return items
}
