package harness

import (
	"fmt"
	"strings"
	"time"

	"overlaysearch/internal/config"
	"overlaysearch/internal/configloader"
	"overlaysearch/internal/logger"
)

// SimulationConfig controls the overall run duration.
type SimulationConfig struct {
	Duration time.Duration `yaml:"duration"`
}

// ParallelismConfig bounds how many concurrent workers one wave spawns.
type ParallelismConfig struct {
	MinWorkers int `yaml:"min"`
	MaxWorkers int `yaml:"max"`
}

// QueryConfig controls how search/publish load is generated.
type QueryConfig struct {
	Rate        float64           `yaml:"rate"` // waves per second
	Timeout     time.Duration     `yaml:"timeout"`
	Parallelism ParallelismConfig `yaml:"parallelism"`
	// PublishRatio is the fraction, in [0,1], of operations that are
	// publishes rather than searches.
	PublishRatio float64 `yaml:"publishRatio"`
}

// CSVConfig controls result export.
type CSVConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Config is the root configuration for the load-generation harness: it
// drives one node's already-running Search Layer, so it shares that node's
// logger and search settings rather than duplicating a bootstrap section.
type Config struct {
	Logger     config.LoggerConfig `yaml:"logger"`
	Simulation SimulationConfig    `yaml:"simulation"`
	Query      QueryConfig         `yaml:"query"`
	CSV        CSVConfig           `yaml:"csv"`
	// Corpus is the term pool sampled for search/publish load, independent
	// of the node's own ingested documents.
	Corpus []string `yaml:"corpus"`
}

// Load reads the harness configuration file and applies environment
// overrides, mirroring the teacher's tester config loader.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := configloader.LoadYAML(path, cfg); err != nil {
		return nil, err
	}
	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides lets every tunable field be overridden without editing
// the YAML file, for quick repeated runs against a running ring.
func (c *Config) applyEnvOverrides() {
	configloader.OverrideDuration(&c.Simulation.Duration, "HARNESS_SIM_DURATION")
	configloader.OverrideFloat(&c.Query.Rate, "HARNESS_QUERY_RATE")
	configloader.OverrideDuration(&c.Query.Timeout, "HARNESS_QUERY_TIMEOUT")
	configloader.OverrideInt(&c.Query.Parallelism.MinWorkers, "HARNESS_PARALLELISM_MIN")
	configloader.OverrideInt(&c.Query.Parallelism.MaxWorkers, "HARNESS_PARALLELISM_MAX")
	configloader.OverrideFloat(&c.Query.PublishRatio, "HARNESS_PUBLISH_RATIO")
	configloader.OverrideBool(&c.CSV.Enabled, "HARNESS_CSV_ENABLED")
	configloader.OverrideString(&c.CSV.Path, "HARNESS_CSV_PATH")
	configloader.OverrideStringSlice(&c.Corpus, "HARNESS_CORPUS")
}

// Validate checks the harness configuration for structural errors.
func (c *Config) Validate() error {
	var errs []string

	if c.Simulation.Duration <= 0 {
		errs = append(errs, fmt.Sprintf("simulation.duration must be > 0 (got %v)", c.Simulation.Duration))
	}
	if c.Query.Rate <= 0 {
		errs = append(errs, fmt.Sprintf("query.rate must be > 0 (got %f)", c.Query.Rate))
	}
	if c.Query.Parallelism.MinWorkers <= 0 {
		errs = append(errs, fmt.Sprintf("query.parallelism.min must be > 0 (got %d)", c.Query.Parallelism.MinWorkers))
	}
	if c.Query.Parallelism.MaxWorkers < c.Query.Parallelism.MinWorkers {
		errs = append(errs, fmt.Sprintf("query.parallelism.max must be >= min (got %d < %d)",
			c.Query.Parallelism.MaxWorkers, c.Query.Parallelism.MinWorkers))
	}
	if c.Query.PublishRatio < 0 || c.Query.PublishRatio > 1 {
		errs = append(errs, fmt.Sprintf("query.publishRatio must be in [0,1] (got %f)", c.Query.PublishRatio))
	}
	if c.CSV.Enabled && c.CSV.Path == "" {
		errs = append(errs, "csv.path must be set when csv.enabled = true")
	}
	if len(c.Corpus) == 0 {
		errs = append(errs, "corpus must contain at least one term")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// LogConfig emits the loaded configuration.
func (c *Config) LogConfig(lgr logger.Logger) {
	lgr.Info("loaded harness configuration",
		logger.F("simulation.duration", c.Simulation.Duration.String()),
		logger.F("query.rate", c.Query.Rate),
		logger.F("query.parallelism.min", c.Query.Parallelism.MinWorkers),
		logger.F("query.parallelism.max", c.Query.Parallelism.MaxWorkers),
		logger.F("query.publishRatio", c.Query.PublishRatio),
		logger.F("csv.enabled", c.CSV.Enabled),
		logger.F("csv.path", c.CSV.Path),
		logger.F("corpus.size", len(c.Corpus)),
	)
}
