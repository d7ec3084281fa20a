package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"

	"picoevo/pkg/picoevo"
)

const (
	defaultEnvFile = ".env"

	envStore         = "PICOEVO_STORE"
	envDBPath        = "PICOEVO_DB_PATH"
	envBenchmarksDir = "PICOEVO_BENCHMARKS_DIR"
	envExportsDir    = "PICOEVO_EXPORTS_DIR"
)

// loadEnv merges path into the process environment without overriding
// variables that are already set. A missing file is not an error.
func loadEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func benchmarksDir() string {
	return envOr(envBenchmarksDir, "benchmarks")
}

func exportsDir() string {
	return envOr(envExportsDir, "exports")
}

func loadRunRequestFromConfig(path string) (picoevo.RunRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return picoevo.RunRequest{}, err
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return picoevo.RunRequest{}, err
	}

	req := picoevo.DefaultRunRequest()
	if v, ok := asString(raw["run_id"]); ok {
		req.RunID = v
	}
	if v, ok := asInt(raw["population"]); ok {
		req.Population = v
	}
	if v, ok := asInt(raw["generations"]); ok {
		req.Generations = v
	}
	if v, ok := asInt(raw["trials"]); ok {
		req.Trials = v
	}
	if v, ok := asInt(raw["steps"]); ok {
		req.Steps = v
	}
	if v, ok := asInt(raw["height"]); ok {
		req.Height = v
	}
	if v, ok := asInt(raw["width"]); ok {
		req.Width = v
	}
	if v, ok := asInt(raw["num_states"]); ok {
		req.NumStates = v
	}
	if v, ok := asFloat64(raw["survival_fraction"]); ok {
		req.SurvivalFraction = v
	}
	if v, ok := asString(raw["selection"]); ok {
		req.Selection = v
	}
	if v, ok := asInt(raw["precision"]); ok {
		req.Precision = &v
	}
	if v, ok := asInt64(raw["seed"]); ok {
		req.Seed = v
	}
	return req, nil
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func asInt(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case float64:
		return int(x), true
	default:
		return 0, false
	}
}

func asInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int:
		return int64(x), true
	case float64:
		return int64(x), true
	default:
		return 0, false
	}
}

func asFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	default:
		return 0, false
	}
}

// overrideFromFlags copies every explicitly set flag onto req.
func overrideFromFlags(req *picoevo.RunRequest, set map[string]bool, flagValue map[string]any) {
	for name := range set {
		v, ok := flagValue[name]
		if !ok {
			continue
		}
		switch name {
		case "run-id":
			req.RunID = v.(string)
		case "pop":
			req.Population = v.(int)
		case "gens":
			req.Generations = v.(int)
		case "trials":
			req.Trials = v.(int)
		case "steps":
			req.Steps = v.(int)
		case "height":
			req.Height = v.(int)
		case "width":
			req.Width = v.(int)
		case "states":
			req.NumStates = v.(int)
		case "survival":
			req.SurvivalFraction = v.(float64)
		case "selection":
			req.Selection = v.(string)
		case "precision":
			precision := v.(int)
			req.Precision = &precision
		case "seed":
			req.Seed = v.(int64)
		}
	}
}

func loadOrDefaultRunRequest(configPath string) (picoevo.RunRequest, error) {
	if configPath == "" {
		return picoevo.DefaultRunRequest(), nil
	}
	req, err := loadRunRequestFromConfig(configPath)
	if err != nil {
		return picoevo.RunRequest{}, fmt.Errorf("load config: %w", err)
	}
	return req, nil
}
