package evo

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/sirupsen/logrus"

	"picoevo/internal/genotype"
	"picoevo/internal/logging"
	"picoevo/internal/scape"
)

type ScoredProgram struct {
	ID      string
	Program genotype.Program
	Fitness float64
	Trace   scape.Trace
}

type GenerationDiagnostics struct {
	Generation    int     `json:"generation"`
	BestFitness   float64 `json:"best_fitness"`
	MeanFitness   float64 `json:"mean_fitness"`
	MinFitness    float64 `json:"min_fitness"`
	BestProgramID string  `json:"best_program_id"`
	Survivors     int     `json:"survivors"`
	// Diversity counts distinct rule tables in the generation.
	Diversity int `json:"diversity"`
}

type LineageRecord struct {
	ProgramID      string `json:"program_id"`
	ParentA        string `json:"parent_a,omitempty"`
	ParentB        string `json:"parent_b,omitempty"`
	Generation     int    `json:"generation"`
	Operation      string `json:"operation"`
	CrossoverSplit int    `json:"crossover_split,omitempty"`
	Mutation       string `json:"mutation,omitempty"`
}

type RunResult struct {
	BestByGeneration      []float64
	GenerationDiagnostics []GenerationDiagnostics
	// Best is the fittest program of the last completed generation.
	Best            ScoredProgram
	FinalPopulation []ScoredProgram
	Lineage         []LineageRecord
	Evaluations     int
}

// Reporter receives a summary after each generation is evaluated.
type Reporter interface {
	ReportGeneration(diag GenerationDiagnostics)
}

type ReporterFunc func(diag GenerationDiagnostics)

func (f ReporterFunc) ReportGeneration(diag GenerationDiagnostics) {
	f(diag)
}

type MonitorConfig struct {
	Scape            scape.Scape
	Selector         Selector
	PopulationSize   int
	Generations      int
	NumStates        int
	SurvivalFraction float64
	Seed             int64
	Reporter         Reporter
	Logger           logrus.FieldLogger
}

// PopulationMonitor runs the generational loop: evaluate, truncate,
// recombine, mutate.
type PopulationMonitor struct {
	cfg MonitorConfig
	rng *rand.Rand
}

func NewPopulationMonitor(cfg MonitorConfig) (*PopulationMonitor, error) {
	if cfg.Scape == nil {
		return nil, fmt.Errorf("scape is required")
	}
	if cfg.PopulationSize <= 0 {
		return nil, fmt.Errorf("population size must be > 0")
	}
	if cfg.Generations <= 0 {
		return nil, fmt.Errorf("generations must be > 0")
	}
	if cfg.NumStates == 0 {
		cfg.NumStates = genotype.DefaultNumStates
	}
	if cfg.NumStates < 0 {
		return nil, fmt.Errorf("num states must be >= 1")
	}
	if cfg.SurvivalFraction == 0 {
		cfg.SurvivalFraction = DefaultSurvivalFraction
	}
	if cfg.SurvivalFraction < 0 || cfg.SurvivalFraction > 1 {
		return nil, fmt.Errorf("survival fraction must be in (0, 1]")
	}
	if cfg.Selector == nil {
		cfg.Selector = KeepBestSelector{}
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}

	return &PopulationMonitor{
		cfg: cfg,
		rng: rand.New(rand.NewSource(cfg.Seed)),
	}, nil
}

// Run evolves initial, or a random population when initial is nil, for
// exactly cfg.Generations generations.
func (m *PopulationMonitor) Run(ctx context.Context, initial []genotype.Program) (RunResult, error) {
	population, lineage, err := m.seedPopulation(initial)
	if err != nil {
		return RunResult{}, err
	}

	log := m.cfg.Logger.WithFields(logrus.Fields{
		"scape":      m.cfg.Scape.Name(),
		"population": m.cfg.PopulationSize,
		"selection":  m.cfg.Selector.Name(),
	})
	log.WithField("generations", m.cfg.Generations).Info("evolution started")

	bestHistory := make([]float64, 0, m.cfg.Generations)
	diagnostics := make([]GenerationDiagnostics, 0, m.cfg.Generations)
	survivorCount := SurvivorCount(m.cfg.PopulationSize, m.cfg.SurvivalFraction)
	evaluations := 0
	var ranked []ScoredProgram

	for gen := 0; gen < m.cfg.Generations; gen++ {
		if err := ctx.Err(); err != nil {
			return RunResult{}, err
		}

		scored, err := m.evaluatePopulation(ctx, population)
		if err != nil {
			return RunResult{}, fmt.Errorf("generation %d: %w", gen, err)
		}
		evaluations += len(scored)
		ranked = Rank(scored)

		diag := summarizeGeneration(scored, ranked, gen, survivorCount)
		bestHistory = append(bestHistory, diag.BestFitness)
		diagnostics = append(diagnostics, diag)
		if m.cfg.Reporter != nil {
			m.cfg.Reporter.ReportGeneration(diag)
		}
		log.WithFields(logrus.Fields{
			"generation":   diag.Generation,
			"mean_fitness": diag.MeanFitness,
			"best_fitness": diag.BestFitness,
			"best_id":      diag.BestProgramID,
		}).Info("generation evaluated")

		if gen == m.cfg.Generations-1 {
			break
		}

		var generationLineage []LineageRecord
		population, generationLineage, err = m.nextGeneration(ctx, ranked, survivorCount, gen)
		if err != nil {
			return RunResult{}, fmt.Errorf("generation %d: %w", gen, err)
		}
		lineage = append(lineage, generationLineage...)
	}

	log.WithFields(logrus.Fields{
		"best_fitness": ranked[0].Fitness,
		"best_id":      ranked[0].ID,
		"evaluations":  evaluations,
	}).Info("evolution finished")

	return RunResult{
		BestByGeneration:      bestHistory,
		GenerationDiagnostics: diagnostics,
		Best:                  ranked[0],
		FinalPopulation:       ranked,
		Lineage:               lineage,
		Evaluations:           evaluations,
	}, nil
}

type member struct {
	id      string
	program genotype.Program
}

func (m *PopulationMonitor) seedPopulation(initial []genotype.Program) ([]member, []LineageRecord, error) {
	if initial != nil && len(initial) != m.cfg.PopulationSize {
		return nil, nil, fmt.Errorf("initial population mismatch: got=%d want=%d", len(initial), m.cfg.PopulationSize)
	}

	population := make([]member, 0, m.cfg.PopulationSize)
	lineage := make([]LineageRecord, 0, m.cfg.PopulationSize*m.cfg.Generations)
	for i := 0; i < m.cfg.PopulationSize; i++ {
		var program genotype.Program
		if initial != nil {
			program = initial[i]
			if program.NumStates() != m.cfg.NumStates {
				return nil, nil, fmt.Errorf("initial program %d has %d states, want %d", i, program.NumStates(), m.cfg.NumStates)
			}
		} else {
			var err error
			program, err = genotype.NewRandomProgram(m.rng, m.cfg.NumStates)
			if err != nil {
				return nil, nil, err
			}
		}
		id := programID(0, i)
		population = append(population, member{id: id, program: program})
		lineage = append(lineage, LineageRecord{
			ProgramID:  id,
			Generation: 0,
			Operation:  "seed",
		})
	}
	return population, lineage, nil
}

func (m *PopulationMonitor) evaluatePopulation(ctx context.Context, population []member) ([]ScoredProgram, error) {
	scored := make([]ScoredProgram, 0, len(population))
	for _, item := range population {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		fitness, trace, err := m.cfg.Scape.Evaluate(ctx, m.rng, item.program)
		if err != nil {
			return nil, fmt.Errorf("evaluate %s: %w", item.id, err)
		}
		scored = append(scored, ScoredProgram{
			ID:      item.id,
			Program: item.program,
			Fitness: float64(fitness),
			Trace:   trace,
		})
	}
	return scored, nil
}

func (m *PopulationMonitor) nextGeneration(ctx context.Context, ranked []ScoredProgram, survivorCount, generation int) ([]member, []LineageRecord, error) {
	survivors, err := m.cfg.Selector.Survivors(ranked, survivorCount)
	if err != nil {
		return nil, nil, err
	}

	next := make([]member, 0, m.cfg.PopulationSize)
	lineage := make([]LineageRecord, 0, m.cfg.PopulationSize)
	for len(next) < m.cfg.PopulationSize {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		parentA, err := pickParent(m.rng, survivors)
		if err != nil {
			return nil, nil, err
		}
		parentB, err := pickParent(m.rng, survivors)
		if err != nil {
			return nil, nil, err
		}
		crossed, split, err := parentA.Program.Crossover(m.rng, parentB.Program)
		if err != nil {
			return nil, nil, fmt.Errorf("crossover %s x %s: %w", parentA.ID, parentB.ID, err)
		}
		child, mutation, err := crossed.Mutate(m.rng)
		if err != nil {
			return nil, nil, fmt.Errorf("mutate offspring of %s x %s: %w", parentA.ID, parentB.ID, err)
		}

		id := programID(generation+1, len(next))
		next = append(next, member{id: id, program: child})
		lineage = append(lineage, LineageRecord{
			ProgramID:      id,
			ParentA:        parentA.ID,
			ParentB:        parentB.ID,
			Generation:     generation + 1,
			Operation:      "crossover+mutate",
			CrossoverSplit: split,
			Mutation:       describeMutation(mutation),
		})
	}
	return next, lineage, nil
}

func summarizeGeneration(scored, ranked []ScoredProgram, generation, survivors int) GenerationDiagnostics {
	if len(scored) == 0 {
		return GenerationDiagnostics{Generation: generation}
	}

	total := 0.0
	minFitness := scored[0].Fitness
	distinct := make(map[string]struct{}, len(scored))
	for _, item := range scored {
		total += item.Fitness
		if item.Fitness < minFitness {
			minFitness = item.Fitness
		}
		distinct[item.Program.String()] = struct{}{}
	}

	return GenerationDiagnostics{
		Generation:    generation,
		BestFitness:   ranked[0].Fitness,
		MeanFitness:   total / float64(len(scored)),
		MinFitness:    minFitness,
		BestProgramID: ranked[0].ID,
		Survivors:     survivors,
		Diversity:     len(distinct),
	}
}

func describeMutation(record genotype.MutationRecord) string {
	return fmt.Sprintf("%d %s: %s -> %s", record.Key.State, record.Key.Observation, record.Before, record.After)
}

func programID(generation, index int) string {
	return fmt.Sprintf("g%d-i%d", generation, index)
}
