package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"picoevo/internal/evo"
	"picoevo/internal/genotype"
	"picoevo/internal/logging"
	"picoevo/internal/scape"
	"picoevo/internal/storage"
	"picoevo/pkg/picoevo"
)

var stdout io.Writer = os.Stdout

func main() {
	if err := loadEnv(defaultEnvFile); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "run":
		return runRun(ctx, args[1:])
	case "runs":
		return runRuns(ctx, args[1:])
	case "fitness":
		return runFitness(ctx, args[1:])
	case "diagnostics":
		return runDiagnostics(ctx, args[1:])
	case "lineage":
		return runLineage(ctx, args[1:])
	case "best":
		return runBest(ctx, args[1:])
	case "evaluate":
		return runEvaluate(ctx, args[1:])
	case "export":
		return runExport(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

// clientFlags are shared by every command that opens a client.
type clientFlags struct {
	storeKind *string
	dbPath    *string
	logLevel  *string
	logFormat *string
}

func addClientFlags(fs *flag.FlagSet) clientFlags {
	return clientFlags{
		storeKind: fs.String("store", envOr(envStore, storage.DefaultStoreKind()), "store backend: memory|sqlite"),
		dbPath:    fs.String("db-path", envOr(envDBPath, "picoevo.db"), "sqlite database path"),
		logLevel:  fs.String("log-level", "", "log level (defaults to LOG_LEVEL, then info)"),
		logFormat: fs.String("log-format", "", "log format: text|json (defaults to LOG_FORMAT)"),
	}
}

func (f clientFlags) open() (*picoevo.Client, error) {
	return picoevo.New(picoevo.Options{
		StoreKind:     *f.storeKind,
		DBPath:        *f.dbPath,
		BenchmarksDir: benchmarksDir(),
		ExportsDir:    exportsDir(),
		Logger:        logging.New(logging.Options{Level: *f.logLevel, Format: *f.logFormat}),
	})
}

func runRun(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	configPath := fs.String("config", "", "optional run config JSON path")
	runID := fs.String("run-id", "", "explicit run id (optional)")
	population := fs.Int("pop", picoevo.DefaultPopulation, "population size")
	generations := fs.Int("gens", picoevo.DefaultGenerations, "generation count")
	trials := fs.Int("trials", scape.DefaultTrials, "random starts per fitness evaluation")
	steps := fs.Int("steps", scape.DefaultSteps, "steps per trial")
	height := fs.Int("height", scape.DefaultRoomHeight, "room height including walls")
	width := fs.Int("width", scape.DefaultRoomWidth, "room width including walls")
	numStates := fs.Int("states", genotype.DefaultNumStates, "program state count")
	survival := fs.Float64("survival", evo.DefaultSurvivalFraction, "fraction of each generation kept as parents")
	selection := fs.String("selection", evo.SelectionKeepBest, "survivor policy: keep_best|keep_worst")
	precision := fs.Int("precision", scape.DefaultPrecision, "decimal places kept in fitness")
	seed := fs.Int64("seed", 1, "rng seed")
	quiet := fs.Bool("quiet", false, "suppress the per-generation report")
	cf := addClientFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	setFlags := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		setFlags[f.Name] = true
	})

	req, err := loadOrDefaultRunRequest(*configPath)
	if err != nil {
		return err
	}
	flagValues := map[string]any{
		"run-id":    *runID,
		"pop":       *population,
		"gens":      *generations,
		"trials":    *trials,
		"steps":     *steps,
		"height":    *height,
		"width":     *width,
		"states":    *numStates,
		"survival":  *survival,
		"selection": *selection,
		"precision": *precision,
		"seed":      *seed,
	}
	if *configPath == "" {
		for name := range flagValues {
			setFlags[name] = true
		}
	}
	overrideFromFlags(&req, setFlags, flagValues)

	if err := req.Validate(); err != nil {
		return err
	}
	if !*quiet {
		req.Reporter = evo.ReporterFunc(func(diag evo.GenerationDiagnostics) {
			fmt.Fprintln(stdout)
			fmt.Fprintf(stdout, "Generation %d\n", diag.Generation)
			fmt.Fprintf(stdout, " Average Fitness: %v\n", diag.MeanFitness)
			fmt.Fprintf(stdout, " Best Fitness: %v\n", diag.BestFitness)
		})
	}

	client, err := cf.open()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	fmt.Fprintln(stdout)
	fmt.Fprintf(stdout, "Fitness is measured using %d random trials and running for %s steps per trial:\n", req.Trials, humanize.Comma(int64(req.Steps)))
	started := time.Now()
	summary, err := client.Run(ctx, req)
	if err != nil {
		return err
	}

	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, "Best Picobot program:")
	fmt.Fprint(stdout, summary.BestProgram.String())
	fmt.Fprintln(stdout)
	fmt.Fprintf(stdout, "run_id=%s final_best_fitness=%v evaluations=%s elapsed=%s\n",
		summary.RunID,
		summary.FinalBestFitness,
		humanize.Comma(int64(summary.Evaluations)),
		time.Since(started).Round(time.Millisecond),
	)
	fmt.Fprintf(stdout, "artifacts_dir=%s\n", filepath.Clean(summary.ArtifactsDir))
	return nil
}

func runRuns(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	limit := fs.Int("limit", 20, "max runs to list")
	jsonOut := fs.Bool("json", false, "emit runs list as JSON")
	cf := addClientFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *limit <= 0 {
		return errors.New("limit must be > 0")
	}

	client, err := cf.open()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	runs, err := client.Runs(ctx, picoevo.RunsRequest{Limit: *limit})
	if err != nil {
		return err
	}
	if *jsonOut {
		return writeJSON(runs)
	}
	if len(runs) == 0 {
		fmt.Fprintln(stdout, "no runs found")
		return nil
	}
	for _, item := range runs {
		fmt.Fprintf(stdout, "run_id=%s created=%s pop=%s gens=%d selection=%s seed=%d final_best_fitness=%v\n",
			item.RunID,
			relativeTime(item.CreatedAtUTC),
			humanize.Comma(int64(item.Population)),
			item.Generations,
			item.Selection,
			item.Seed,
			item.FinalBestFitness,
		)
	}
	return nil
}

func runFitness(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("fitness", flag.ContinueOnError)
	ref := addRunRefFlags(fs)
	limit := fs.Int("limit", 50, "max generations to print, most recent last (0 for all)")
	jsonOut := fs.Bool("json", false, "emit fitness history as JSON")
	cf := addClientFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := cf.open()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	history, err := client.FitnessHistory(ctx, picoevo.HistoryRequest{RunRef: ref.value(), Limit: *limit})
	if err != nil {
		return err
	}
	if *jsonOut {
		return writeJSON(history)
	}
	if len(history) == 0 {
		fmt.Fprintln(stdout, "no fitness history")
		return nil
	}
	for i, best := range history {
		fmt.Fprintf(stdout, "position=%d best_fitness=%v\n", i, best)
	}
	return nil
}

func runDiagnostics(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("diagnostics", flag.ContinueOnError)
	ref := addRunRefFlags(fs)
	limit := fs.Int("limit", 50, "max generations to print, most recent last (0 for all)")
	jsonOut := fs.Bool("json", false, "emit diagnostics as JSON")
	cf := addClientFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := cf.open()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	diagnostics, err := client.Diagnostics(ctx, picoevo.HistoryRequest{RunRef: ref.value(), Limit: *limit})
	if err != nil {
		return err
	}
	if *jsonOut {
		return writeJSON(diagnostics)
	}
	if len(diagnostics) == 0 {
		fmt.Fprintln(stdout, "no diagnostics")
		return nil
	}
	for _, diag := range diagnostics {
		fmt.Fprintf(stdout, "generation=%d best=%v mean=%.6f min=%v best_id=%s survivors=%d diversity=%d\n",
			diag.Generation,
			diag.BestFitness,
			diag.MeanFitness,
			diag.MinFitness,
			diag.BestProgramID,
			diag.Survivors,
			diag.Diversity,
		)
	}
	return nil
}

func runLineage(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("lineage", flag.ContinueOnError)
	ref := addRunRefFlags(fs)
	limit := fs.Int("limit", 50, "max lineage records to print (0 for all)")
	jsonOut := fs.Bool("json", false, "emit lineage as JSON")
	cf := addClientFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := cf.open()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	lineage, err := client.Lineage(ctx, picoevo.HistoryRequest{RunRef: ref.value(), Limit: *limit})
	if err != nil {
		return err
	}
	if *jsonOut {
		return writeJSON(lineage)
	}
	if len(lineage) == 0 {
		fmt.Fprintln(stdout, "no lineage")
		return nil
	}
	for _, item := range lineage {
		if item.Operation == "seed" {
			fmt.Fprintf(stdout, "program_id=%s generation=%d operation=%s\n", item.ProgramID, item.Generation, item.Operation)
			continue
		}
		fmt.Fprintf(stdout, "program_id=%s generation=%d operation=%s parents=%s,%s split=%d mutation=%q\n",
			item.ProgramID,
			item.Generation,
			item.Operation,
			item.ParentA,
			item.ParentB,
			item.CrossoverSplit,
			item.Mutation,
		)
	}
	return nil
}

func runBest(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("best", flag.ContinueOnError)
	ref := addRunRefFlags(fs)
	jsonOut := fs.Bool("json", false, "emit best program as JSON")
	cf := addClientFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := cf.open()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	best, err := client.BestProgram(ctx, ref.value())
	if err != nil {
		return err
	}
	if *jsonOut {
		return writeJSON(best)
	}
	fmt.Fprintf(stdout, "# run_id=%s program_id=%s generation=%d fitness=%v\n", best.RunID, best.ProgramID, best.Generation, best.Fitness)
	fmt.Fprint(stdout, best.Program)
	return nil
}

func runEvaluate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("evaluate", flag.ContinueOnError)
	programPath := fs.String("program", "", "path to a program file (as printed by run or best)")
	trials := fs.Int("trials", scape.DefaultTrials, "random starts")
	steps := fs.Int("steps", scape.DefaultSteps, "steps per trial")
	height := fs.Int("height", scape.DefaultRoomHeight, "room height including walls")
	width := fs.Int("width", scape.DefaultRoomWidth, "room width including walls")
	precision := fs.Int("precision", scape.DefaultPrecision, "decimal places kept in fitness")
	seed := fs.Int64("seed", 1, "rng seed for random starts")
	row := fs.Int("row", 0, "fixed start row (with -col)")
	col := fs.Int("col", 0, "fixed start column (with -row)")
	render := fs.Bool("render", false, "print the final room of a fixed-start trial")
	jsonOut := fs.Bool("json", false, "emit evaluation as JSON")
	cf := addClientFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *programPath == "" {
		return errors.New("evaluate requires --program")
	}
	text, err := os.ReadFile(*programPath)
	if err != nil {
		return err
	}

	client, err := cf.open()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.Evaluate(ctx, picoevo.EvaluateRequest{
		Program:   string(text),
		Trials:    *trials,
		Steps:     *steps,
		Height:    *height,
		Width:     *width,
		Precision: precision,
		Seed:      *seed,
		Row:       *row,
		Col:       *col,
		Render:    *render,
	})
	if err != nil {
		return err
	}
	if *jsonOut {
		return writeJSON(summary)
	}
	fmt.Fprintf(stdout, "fitness=%v trials=%d steps=%s\n", summary.Fitness, summary.Trials, humanize.Comma(int64(*steps)))
	if summary.Room != "" {
		fmt.Fprint(stdout, summary.Room)
	}
	return nil
}

func runExport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	ref := addRunRefFlags(fs)
	outDir := fs.String("out", exportsDir(), "export output directory")
	cf := addClientFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := cf.open()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	exported, err := client.Export(ctx, picoevo.ExportRequest{RunRef: ref.value(), OutDir: *outDir})
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "exported run_id=%s dir=%s\n", exported.RunID, exported.Directory)
	return nil
}

type runRefFlags struct {
	runID  *string
	latest *bool
}

func addRunRefFlags(fs *flag.FlagSet) runRefFlags {
	return runRefFlags{
		runID:  fs.String("run-id", "", "run id"),
		latest: fs.Bool("latest", false, "use the most recent run from the run index"),
	}
}

func (f runRefFlags) value() picoevo.RunRef {
	return picoevo.RunRef{RunID: *f.runID, Latest: *f.latest}
}

func relativeTime(createdAtUTC string) string {
	t, err := time.Parse(time.RFC3339Nano, createdAtUTC)
	if err != nil {
		return createdAtUTC
	}
	return humanize.Time(t)
}

func writeJSON(v any) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: picoevoctl <run|runs|fitness|diagnostics|lineage|best|evaluate|export> [flags]", msg)
}
