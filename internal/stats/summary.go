package stats

import (
	"encoding/csv"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"picoevo/internal/model"
)

// RunSummary condenses the best-per-generation series of one run.
type RunSummary struct {
	Generations int     `json:"generations"`
	InitialBest float64 `json:"initial_best"`
	FinalBest   float64 `json:"final_best"`
	BestMean    float64 `json:"best_mean"`
	BestStd     float64 `json:"best_std"`
	BestMax     float64 `json:"best_max"`
	BestMin     float64 `json:"best_min"`
	Improvement float64 `json:"improvement"`
}

func Summarize(bestByGeneration []float64) RunSummary {
	if len(bestByGeneration) == 0 {
		return RunSummary{}
	}

	summary := RunSummary{
		Generations: len(bestByGeneration),
		InitialBest: bestByGeneration[0],
		FinalBest:   bestByGeneration[len(bestByGeneration)-1],
		BestMax:     bestByGeneration[0],
		BestMin:     bestByGeneration[0],
	}
	total := 0.0
	for _, v := range bestByGeneration {
		total += v
		summary.BestMax = math.Max(summary.BestMax, v)
		summary.BestMin = math.Min(summary.BestMin, v)
	}
	summary.BestMean = total / float64(len(bestByGeneration))

	variance := 0.0
	for _, v := range bestByGeneration {
		d := v - summary.BestMean
		variance += d * d
	}
	summary.BestStd = math.Sqrt(variance / float64(len(bestByGeneration)))
	summary.Improvement = summary.FinalBest - summary.InitialBest
	return summary
}

// WriteFitnessSeries writes one csv row per generation: generation, best,
// mean, min.
func WriteFitnessSeries(runDir string, diagnostics []model.GenerationDiagnostics) error {
	file, err := os.Create(filepath.Join(runDir, fitnessSeriesFile))
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"generation", "best_fitness", "mean_fitness", "min_fitness"}); err != nil {
		return err
	}
	for _, diag := range diagnostics {
		if err := writer.Write([]string{
			strconv.Itoa(diag.Generation),
			strconv.FormatFloat(diag.BestFitness, 'f', -1, 64),
			strconv.FormatFloat(diag.MeanFitness, 'f', -1, 64),
			strconv.FormatFloat(diag.MinFitness, 'f', -1, 64),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
