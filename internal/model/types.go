package model

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

type RunConfig struct {
	PopulationSize   int     `json:"population_size"`
	Generations      int     `json:"generations"`
	Trials           int     `json:"trials"`
	Steps            int     `json:"steps"`
	Height           int     `json:"height"`
	Width            int     `json:"width"`
	NumStates        int     `json:"num_states"`
	SurvivalFraction float64 `json:"survival_fraction"`
	Selection        string  `json:"selection"`
	Precision        int     `json:"precision"`
	Seed             int64   `json:"seed"`
}

type Run struct {
	VersionedRecord
	ID               string    `json:"id"`
	CreatedAtUTC     string    `json:"created_at_utc"`
	Config           RunConfig `json:"config"`
	FinalBestFitness float64   `json:"final_best_fitness"`
	BestProgramID    string    `json:"best_program_id"`
	Evaluations      int       `json:"evaluations"`
}

// Program stores a rule table in its canonical text form.
type Program struct {
	VersionedRecord
	ID         string  `json:"id"`
	RunID      string  `json:"run_id"`
	Generation int     `json:"generation"`
	Fitness    float64 `json:"fitness"`
	NumStates  int     `json:"num_states"`
	Rules      string  `json:"rules"`
}

type GenerationDiagnostics struct {
	Generation    int     `json:"generation"`
	BestFitness   float64 `json:"best_fitness"`
	MeanFitness   float64 `json:"mean_fitness"`
	MinFitness    float64 `json:"min_fitness"`
	BestProgramID string  `json:"best_program_id"`
	Survivors     int     `json:"survivors"`
	Diversity     int     `json:"diversity"`
}

type LineageRecord struct {
	VersionedRecord
	ProgramID      string `json:"program_id"`
	ParentA        string `json:"parent_a,omitempty"`
	ParentB        string `json:"parent_b,omitempty"`
	Generation     int    `json:"generation"`
	Operation      string `json:"operation"`
	CrossoverSplit int    `json:"crossover_split,omitempty"`
	Mutation       string `json:"mutation,omitempty"`
}
