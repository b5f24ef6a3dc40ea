package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Port int `json:"port" yaml:"port"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// DatasetConfig describes where the patient roster and the zip gazetteer
// come from. Source is "csv", "xlsx", or "sqlite".
type DatasetConfig struct {
	Name          string `json:"name" yaml:"name"`
	Source        string `json:"source" yaml:"source"`
	RosterPath    string `json:"roster_path" yaml:"roster_path"`
	GazetteerPath string `json:"gazetteer_path" yaml:"gazetteer_path"`
	SQLiteDSN     string `json:"sqlite_dsn" yaml:"sqlite_dsn"`

	// ScreeningRules names the screening funnel used to resolve activity
	// events during ingestion. Empty uses the built-in funnel.
	ScreeningRules string `json:"screening_rules" yaml:"screening_rules"`

	// DataDir is where built snapshots are persisted for fast restart.
	// Empty disables persistence.
	DataDir string `json:"data_dir" yaml:"data_dir"`
}

// MatchConfig holds query-level defaults.
type MatchConfig struct {
	DefaultTopK int `json:"default_top_k" yaml:"default_top_k"`
	TopKCeiling int `json:"top_k_ceiling" yaml:"top_k_ceiling"`

	// WorkerPoolSize bounds parallel candidate scoring; 0 picks a size from
	// the machine's CPU count.
	WorkerPoolSize int `json:"worker_pool_size" yaml:"worker_pool_size"`
}

// Config is the full engine configuration. Precedence: environment variables
// override the YAML file, which overrides the compiled defaults.
type Config struct {
	Server   ServerConfig   `json:"server" yaml:"server"`
	Log      LogConfig      `json:"log" yaml:"log"`
	Dataset  DatasetConfig  `json:"dataset" yaml:"dataset"`
	Match    MatchConfig    `json:"match" yaml:"match"`
	Scoring  ScoringConfig  `json:"scoring" yaml:"scoring"`
	Taxonomy TaxonomyConfig `json:"taxonomy" yaml:"taxonomy"`
}

// Default returns the compiled defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Port: 8080},
		Log:    LogConfig{Level: "info", Format: "json"},
		Dataset: DatasetConfig{
			Name:          "patients",
			Source:        "csv",
			RosterPath:    "data/patients.csv",
			GazetteerPath: "data/zip_gazetteer.csv",
			DataDir:       "",
		},
		Match: MatchConfig{
			DefaultTopK:    50,
			TopKCeiling:    500,
			WorkerPoolSize: 0,
		},
		Scoring:  DefaultScoring(),
		Taxonomy: DefaultTaxonomy(),
	}
}

// Load reads the optional YAML file at path, layers environment overrides on
// top, fills defaults, and validates. An empty path skips the file step.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.ApplyDefaults()

	if conflicts := cfg.Validate(); len(conflicts) > 0 {
		return nil, fmt.Errorf("invalid configuration: %s", strings.Join(conflicts, "; "))
	}
	return cfg, nil
}

// applyEnv layers environment variables over the current values. The names
// match the ones the ops runbooks already use.
func (c *Config) applyEnv() {
	c.Server.Port = getEnvInt("PORT", c.Server.Port)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)

	c.Dataset.Name = getEnv("DATASET_NAME", c.Dataset.Name)
	c.Dataset.Source = getEnv("DATASET_SOURCE", c.Dataset.Source)
	c.Dataset.RosterPath = getEnv("ROSTER_PATH", c.Dataset.RosterPath)
	c.Dataset.GazetteerPath = getEnv("GAZETTEER_PATH", c.Dataset.GazetteerPath)
	c.Dataset.SQLiteDSN = getEnv("SQLITE_DSN", c.Dataset.SQLiteDSN)
	c.Dataset.ScreeningRules = getEnv("SCREENING_RULES", c.Dataset.ScreeningRules)
	c.Dataset.DataDir = getEnv("DATA_DIR", c.Dataset.DataDir)

	c.Match.DefaultTopK = getEnvInt("DEFAULT_TOP_K", c.Match.DefaultTopK)
	c.Match.TopKCeiling = getEnvInt("TOP_K_CEILING", c.Match.TopKCeiling)
	c.Match.WorkerPoolSize = getEnvInt("WORKER_POOL_SIZE", c.Match.WorkerPoolSize)

	c.Scoring.MaxDistanceKm = getEnvFloat("MAX_DISTANCE_KM", c.Scoring.MaxDistanceKm)
	c.Taxonomy.SimilarityThreshold = getEnvRatio("FUZZY_MATCH_THRESHOLD", c.Taxonomy.SimilarityThreshold)
	c.Taxonomy.FallbackThreshold = getEnvRatio("FUZZY_MATCH_FALLBACK", c.Taxonomy.FallbackThreshold)
}

// ApplyDefaults fills zero-valued settings with the defaults
func (c *Config) ApplyDefaults() {
	def := Default()
	if c.Server.Port == 0 {
		c.Server.Port = def.Server.Port
	}
	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = def.Log.Format
	}
	if c.Dataset.Name == "" {
		c.Dataset.Name = def.Dataset.Name
	}
	if c.Dataset.Source == "" {
		c.Dataset.Source = def.Dataset.Source
	}
	if c.Match.DefaultTopK == 0 {
		c.Match.DefaultTopK = def.Match.DefaultTopK
	}
	if c.Match.TopKCeiling == 0 {
		c.Match.TopKCeiling = def.Match.TopKCeiling
	}
	c.Scoring.ApplyDefaults()
	c.Taxonomy.ApplyDefaults()
}

// Validate checks the whole configuration and returns a list of conflicts,
// empty when the config is usable.
func (c *Config) Validate() []string {
	var conflicts []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		conflicts = append(conflicts, fmt.Sprintf("server.port %d out of range", c.Server.Port))
	}

	switch c.Dataset.Source {
	case "csv", "xlsx":
		if c.Dataset.RosterPath == "" {
			conflicts = append(conflicts, "dataset.roster_path required for source "+c.Dataset.Source)
		}
	case "sqlite":
		if c.Dataset.SQLiteDSN == "" {
			conflicts = append(conflicts, "dataset.sqlite_dsn required for source sqlite")
		}
	default:
		conflicts = append(conflicts, fmt.Sprintf("dataset.source '%s' is not one of csv, xlsx, sqlite", c.Dataset.Source))
	}

	if c.Match.DefaultTopK <= 0 {
		conflicts = append(conflicts, "match.default_top_k must be positive")
	}
	if c.Match.TopKCeiling < c.Match.DefaultTopK {
		conflicts = append(conflicts, "match.top_k_ceiling must be at least default_top_k")
	}
	if c.Match.WorkerPoolSize < 0 {
		conflicts = append(conflicts, "match.worker_pool_size must not be negative")
	}

	conflicts = append(conflicts, c.Scoring.Validate()...)
	conflicts = append(conflicts, c.Taxonomy.Validate()...)

	return conflicts
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

// getEnvRatio accepts either a 0-1 ratio or a 0-100 percentage, the scale the
// older deployment used for fuzzy thresholds.
func getEnvRatio(key string, fallback float64) float64 {
	f := getEnvFloat(key, fallback)
	if f > 1 {
		return f / 100
	}
	return f
}
