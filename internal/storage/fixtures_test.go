package storage

import "picoevo/internal/model"

func sampleRun(id, createdAt string) model.Run {
	return model.Run{
		VersionedRecord: Versioned(),
		ID:              id,
		CreatedAtUTC:    createdAt,
		Config: model.RunConfig{
			PopulationSize:   20,
			Generations:      3,
			Trials:           2,
			Steps:            50,
			Height:           8,
			Width:            8,
			NumStates:        5,
			SurvivalFraction: 0.1,
			Selection:        "keep_best",
			Precision:        4,
			Seed:             7,
		},
		FinalBestFitness: 0.4375,
		BestProgramID:    "g2-i3",
		Evaluations:      60,
	}
}

func sampleProgram(runID string) model.Program {
	return model.Program{
		VersionedRecord: Versioned(),
		ID:              "g2-i3",
		RunID:           runID,
		Generation:      2,
		Fitness:         0.4375,
		NumStates:       1,
		Rules:           "0 NExx -> S 0\n",
	}
}

func sampleDiagnostics() []model.GenerationDiagnostics {
	return []model.GenerationDiagnostics{
		{Generation: 0, BestFitness: 0.2, MeanFitness: 0.1, MinFitness: 0.01, BestProgramID: "g0-i4", Survivors: 2, Diversity: 20},
		{Generation: 1, BestFitness: 0.3, MeanFitness: 0.15, MinFitness: 0.02, BestProgramID: "g1-i0", Survivors: 2, Diversity: 19},
	}
}

func sampleLineage() []model.LineageRecord {
	return []model.LineageRecord{
		{VersionedRecord: Versioned(), ProgramID: "g0-i0", Generation: 0, Operation: "seed"},
		{VersionedRecord: Versioned(), ProgramID: "g1-i0", ParentA: "g0-i0", ParentB: "g0-i0", Generation: 1, Operation: "crossover+mutate", CrossoverSplit: 2, Mutation: "3 xxxS: N 1 -> E 4"},
	}
}
