// Package picoevo is the public entry point for evolving Picobot rule
// programs, persisting runs and inspecting their results.
package picoevo

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"picoevo/internal/evo"
	"picoevo/internal/genotype"
	"picoevo/internal/logging"
	"picoevo/internal/model"
	"picoevo/internal/scape"
	"picoevo/internal/stats"
	"picoevo/internal/storage"
)

const (
	defaultBenchmarksDir = "benchmarks"
	defaultExportsDir    = "exports"
	defaultDBPath        = "picoevo.db"

	DefaultPopulation  = 200
	DefaultGenerations = 20
)

var ErrInvalidConfig = errors.New("invalid run configuration")

type Options struct {
	StoreKind     string
	DBPath        string
	BenchmarksDir string
	ExportsDir    string
	Logger        logrus.FieldLogger
}

type Client struct {
	store storage.Store
	log   logrus.FieldLogger

	initMu      sync.Mutex
	initialized bool

	benchmarksDir string
	exportsDir    string
}

type RunRequest struct {
	// RunID is generated when empty.
	RunID            string
	Population       int
	Generations      int
	Trials           int
	Steps            int
	Height           int
	Width            int
	NumStates        int
	SurvivalFraction float64
	Selection        string
	// Precision defaults to scape.DefaultPrecision when nil; zero is valid.
	Precision *int
	Seed      int64
	Reporter  evo.Reporter
}

type RunSummary struct {
	RunID            string
	CreatedAtUTC     string
	ArtifactsDir     string
	BestByGeneration []float64
	MeanByGeneration []float64
	FinalBestFitness float64
	BestProgramID    string
	BestProgram      genotype.Program
	Evaluations      int
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind()
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	benchmarksDir := opts.BenchmarksDir
	if benchmarksDir == "" {
		benchmarksDir = defaultBenchmarksDir
	}
	exportsDir := opts.ExportsDir
	if exportsDir == "" {
		exportsDir = defaultExportsDir
	}
	log := opts.Logger
	if log == nil {
		log = logging.Discard()
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}

	return &Client{
		store:         store,
		log:           log,
		benchmarksDir: benchmarksDir,
		exportsDir:    exportsDir,
	}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	return c.ensureStore(ctx)
}

func (c *Client) ensureStore(ctx context.Context) error {
	c.initMu.Lock()
	defer c.initMu.Unlock()

	if c.initialized {
		return nil
	}
	if err := c.store.Init(ctx); err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	c.initialized = true
	return nil
}

// DefaultRunRequest returns a request with every field set to its default.
// Callers that must tell an explicit zero apart from an unset field start
// from it and overlay only what the user provided.
func DefaultRunRequest() RunRequest {
	return RunRequest{}.WithDefaults()
}

// WithDefaults fills every zero field with the package default.
func (r RunRequest) WithDefaults() RunRequest {
	if r.Population == 0 {
		r.Population = DefaultPopulation
	}
	if r.Generations == 0 {
		r.Generations = DefaultGenerations
	}
	if r.Trials == 0 {
		r.Trials = scape.DefaultTrials
	}
	if r.Steps == 0 {
		r.Steps = scape.DefaultSteps
	}
	if r.Height == 0 {
		r.Height = scape.DefaultRoomHeight
	}
	if r.Width == 0 {
		r.Width = scape.DefaultRoomWidth
	}
	if r.NumStates == 0 {
		r.NumStates = genotype.DefaultNumStates
	}
	if r.SurvivalFraction == 0 {
		r.SurvivalFraction = evo.DefaultSurvivalFraction
	}
	if r.Selection == "" {
		r.Selection = evo.SelectionKeepBest
	}
	if r.Precision == nil {
		precision := scape.DefaultPrecision
		r.Precision = &precision
	}
	return r
}

// Validate reports the first out-of-range field. Call it on a request that
// already went through WithDefaults.
func (r RunRequest) Validate() error {
	switch {
	case r.Population <= 0:
		return fmt.Errorf("%w: population must be > 0", ErrInvalidConfig)
	case r.Generations <= 0:
		return fmt.Errorf("%w: generations must be > 0", ErrInvalidConfig)
	case r.Trials <= 0:
		return fmt.Errorf("%w: trials must be > 0", ErrInvalidConfig)
	case r.Steps <= 0:
		return fmt.Errorf("%w: steps must be > 0", ErrInvalidConfig)
	case r.Height < scape.MinRoomSize || r.Width < scape.MinRoomSize:
		return fmt.Errorf("%w: room must be at least %dx%d", ErrInvalidConfig, scape.MinRoomSize, scape.MinRoomSize)
	case r.NumStates < 1:
		return fmt.Errorf("%w: num states must be >= 1", ErrInvalidConfig)
	case r.SurvivalFraction <= 0 || r.SurvivalFraction > 1:
		return fmt.Errorf("%w: survival fraction must be in (0, 1]", ErrInvalidConfig)
	case r.Precision == nil || *r.Precision < 0 || *r.Precision > scape.MaxPrecision:
		return fmt.Errorf("%w: precision must be in [0, %d]", ErrInvalidConfig, scape.MaxPrecision)
	}
	if _, err := evo.SelectorFromName(r.Selection); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

func (c *Client) Run(ctx context.Context, req RunRequest) (RunSummary, error) {
	req = req.WithDefaults()
	if err := req.Validate(); err != nil {
		return RunSummary{}, err
	}
	if err := c.ensureStore(ctx); err != nil {
		return RunSummary{}, err
	}

	runID := req.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	log := c.log.WithField("run_id", runID)

	coverage, err := scape.NewCoverageScape(scape.CoverageScape{
		Height:    req.Height,
		Width:     req.Width,
		Trials:    req.Trials,
		Steps:     req.Steps,
		Precision: *req.Precision,
	})
	if err != nil {
		return RunSummary{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	selector, err := evo.SelectorFromName(req.Selection)
	if err != nil {
		return RunSummary{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	monitor, err := evo.NewPopulationMonitor(evo.MonitorConfig{
		Scape:            coverage,
		Selector:         selector,
		PopulationSize:   req.Population,
		Generations:      req.Generations,
		NumStates:        req.NumStates,
		SurvivalFraction: req.SurvivalFraction,
		Seed:             req.Seed,
		Reporter:         req.Reporter,
		Logger:           log,
	})
	if err != nil {
		return RunSummary{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	result, err := monitor.Run(ctx, nil)
	if err != nil {
		return RunSummary{}, err
	}

	createdAt := time.Now().UTC().Format(time.RFC3339Nano)
	cfg := model.RunConfig{
		PopulationSize:   req.Population,
		Generations:      req.Generations,
		Trials:           req.Trials,
		Steps:            req.Steps,
		Height:           req.Height,
		Width:            req.Width,
		NumStates:        req.NumStates,
		SurvivalFraction: req.SurvivalFraction,
		Selection:        selector.Name(),
		Precision:        *req.Precision,
		Seed:             req.Seed,
	}
	diagnostics := toModelDiagnostics(result.GenerationDiagnostics)
	lineage := toModelLineage(result.Lineage)
	bestText := result.Best.Program.String()

	if err := c.persistRun(ctx, runID, createdAt, cfg, result, diagnostics, lineage); err != nil {
		return RunSummary{}, err
	}
	log.Debug("run persisted to store")

	runDir, err := stats.WriteRunArtifacts(c.benchmarksDir, stats.RunArtifacts{
		Config: stats.RunConfig{
			RunID:            runID,
			Scape:            coverage.Name(),
			PopulationSize:   cfg.PopulationSize,
			Generations:      cfg.Generations,
			Trials:           cfg.Trials,
			Steps:            cfg.Steps,
			Height:           cfg.Height,
			Width:            cfg.Width,
			NumStates:        cfg.NumStates,
			SurvivalFraction: cfg.SurvivalFraction,
			Selection:        cfg.Selection,
			Precision:        cfg.Precision,
			Seed:             cfg.Seed,
		},
		BestByGeneration:      result.BestByGeneration,
		GenerationDiagnostics: diagnostics,
		FinalBestFitness:      result.Best.Fitness,
		BestProgramID:         result.Best.ID,
		BestProgram:           bestText,
		Lineage:               lineage,
	})
	if err != nil {
		return RunSummary{}, fmt.Errorf("write run artifacts: %w", err)
	}
	if err := stats.AppendRunIndex(c.benchmarksDir, stats.RunIndexEntry{
		RunID:            runID,
		Scape:            coverage.Name(),
		PopulationSize:   cfg.PopulationSize,
		Generations:      cfg.Generations,
		Seed:             cfg.Seed,
		Selection:        cfg.Selection,
		FinalBestFitness: result.Best.Fitness,
		CreatedAtUTC:     createdAt,
	}); err != nil {
		return RunSummary{}, fmt.Errorf("append run index: %w", err)
	}
	log.WithField("dir", runDir).Debug("run artifacts written")

	means := make([]float64, 0, len(result.GenerationDiagnostics))
	for _, diag := range result.GenerationDiagnostics {
		means = append(means, diag.MeanFitness)
	}

	return RunSummary{
		RunID:            runID,
		CreatedAtUTC:     createdAt,
		ArtifactsDir:     filepath.Clean(runDir),
		BestByGeneration: append([]float64(nil), result.BestByGeneration...),
		MeanByGeneration: means,
		FinalBestFitness: result.Best.Fitness,
		BestProgramID:    result.Best.ID,
		BestProgram:      result.Best.Program,
		Evaluations:      result.Evaluations,
	}, nil
}

func (c *Client) persistRun(
	ctx context.Context,
	runID, createdAt string,
	cfg model.RunConfig,
	result evo.RunResult,
	diagnostics []model.GenerationDiagnostics,
	lineage []model.LineageRecord,
) error {
	bestGeneration := 0
	if n := len(result.GenerationDiagnostics); n > 0 {
		bestGeneration = result.GenerationDiagnostics[n-1].Generation
	}

	if err := c.store.SaveRun(ctx, model.Run{
		VersionedRecord:  storage.Versioned(),
		ID:               runID,
		CreatedAtUTC:     createdAt,
		Config:           cfg,
		FinalBestFitness: result.Best.Fitness,
		BestProgramID:    result.Best.ID,
		Evaluations:      result.Evaluations,
	}); err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	if err := c.store.SaveBestProgram(ctx, model.Program{
		VersionedRecord: storage.Versioned(),
		ID:              result.Best.ID,
		RunID:           runID,
		Generation:      bestGeneration,
		Fitness:         result.Best.Fitness,
		NumStates:       result.Best.Program.NumStates(),
		Rules:           result.Best.Program.String(),
	}); err != nil {
		return fmt.Errorf("save best program: %w", err)
	}
	if err := c.store.SaveFitnessHistory(ctx, runID, result.BestByGeneration); err != nil {
		return fmt.Errorf("save fitness history: %w", err)
	}
	if err := c.store.SaveGenerationDiagnostics(ctx, runID, diagnostics); err != nil {
		return fmt.Errorf("save generation diagnostics: %w", err)
	}
	if err := c.store.SaveLineage(ctx, runID, lineage); err != nil {
		return fmt.Errorf("save lineage: %w", err)
	}
	return nil
}

func toModelDiagnostics(in []evo.GenerationDiagnostics) []model.GenerationDiagnostics {
	out := make([]model.GenerationDiagnostics, 0, len(in))
	for _, diag := range in {
		out = append(out, model.GenerationDiagnostics{
			Generation:    diag.Generation,
			BestFitness:   diag.BestFitness,
			MeanFitness:   diag.MeanFitness,
			MinFitness:    diag.MinFitness,
			BestProgramID: diag.BestProgramID,
			Survivors:     diag.Survivors,
			Diversity:     diag.Diversity,
		})
	}
	return out
}

func toModelLineage(in []evo.LineageRecord) []model.LineageRecord {
	out := make([]model.LineageRecord, 0, len(in))
	for _, record := range in {
		out = append(out, model.LineageRecord{
			VersionedRecord: storage.Versioned(),
			ProgramID:       record.ProgramID,
			ParentA:         record.ParentA,
			ParentB:         record.ParentB,
			Generation:      record.Generation,
			Operation:       record.Operation,
			CrossoverSplit:  record.CrossoverSplit,
			Mutation:        record.Mutation,
		})
	}
	return out
}
