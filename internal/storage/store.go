package storage

import (
	"context"

	"picoevo/internal/model"
)

// Store persists finished runs and their per-generation history.
type Store interface {
	Init(ctx context.Context) error
	SaveRun(ctx context.Context, run model.Run) error
	// ListRuns returns runs newest first.
	ListRuns(ctx context.Context) ([]model.Run, error)
	SaveBestProgram(ctx context.Context, program model.Program) error
	GetBestProgram(ctx context.Context, runID string) (model.Program, bool, error)
	SaveFitnessHistory(ctx context.Context, runID string, history []float64) error
	GetFitnessHistory(ctx context.Context, runID string) ([]float64, bool, error)
	SaveGenerationDiagnostics(ctx context.Context, runID string, diagnostics []model.GenerationDiagnostics) error
	GetGenerationDiagnostics(ctx context.Context, runID string) ([]model.GenerationDiagnostics, bool, error)
	SaveLineage(ctx context.Context, runID string, lineage []model.LineageRecord) error
	GetLineage(ctx context.Context, runID string) ([]model.LineageRecord, bool, error)
}
