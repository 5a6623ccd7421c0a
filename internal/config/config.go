// Package config loads and defaults sunwell's configuration: a nested
// Config struct loaded from YAML with a DefaultConfig constructor
// supplying safe values, plus environment-variable overrides applied
// after load.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all sunwell configuration.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	Core      CoreConfig     `yaml:"core"`
	Cache     CacheConfig    `yaml:"cache"`
	Planner   PlannerConfig  `yaml:"planner"`
	Reasoner  ReasonerConfig `yaml:"reasoner"`
	Memory    MemoryConfig   `yaml:"memory"`
	Logging   LoggingConfig  `yaml:"logging"`
	Workspace WorkspaceConfig `yaml:"workspace"`
}

// CoreConfig governs the subagent registry and spawn limits
type CoreConfig struct {
	MaxConcurrentSubagents   int `yaml:"max_concurrent_subagents"`
	MaxSubagentDepth         int `yaml:"max_subagent_depth"`
	HeartbeatIntervalSeconds int `yaml:"heartbeat_interval_seconds"`
	AwaitPollIntervalMS      int `yaml:"await_poll_interval_ms"`
}

// CacheConfig governs the SQLite-backed execution cache.
type CacheConfig struct {
	Path          string `yaml:"path"`
	RetryCooldown string `yaml:"retry_cooldown"`
	WALMode       bool   `yaml:"wal_mode"`
}

// PlannerConfig governs the Harmonic Planner
type PlannerConfig struct {
	Candidates       int    `yaml:"candidates"`
	VarianceStrategy string `yaml:"variance_strategy"`
	ScoreVersion     string `yaml:"score_version"`
	RefinementRounds int    `yaml:"refinement_rounds"`
	MaxArtifacts     int    `yaml:"max_artifacts"`
}

// ReasonerConfig governs the typed-decision Reasoner
// The model itself is an external collaborator; this only names which one to ask for.
type ReasonerConfig struct {
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
	FastPathThreshold   float64 `yaml:"fast_path_threshold"`
	Model               string  `yaml:"model"`
}

// MemoryConfig governs the Persistent Memory journal+cache
type MemoryConfig struct {
	JournalPath string  `yaml:"journal_path"`
	CachePath   string  `yaml:"cache_path"`
	BM25K1      float64 `yaml:"bm25_k1"`
	BM25B       float64 `yaml:"bm25_b"`
}

// LoggingConfig governs internal/obslog.
type LoggingConfig struct {
	DebugMode bool   `yaml:"debug_mode"`
	Level     string `yaml:"level"`
	LogsDir   string `yaml:"logs_dir"`
}

// WorkspaceConfig names the root directory and app-dir sunwell writes under.
type WorkspaceConfig struct {
	Root   string `yaml:"root"`
	AppDir string `yaml:"app_dir"`
}

// DefaultConfig returns sunwell's default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "sunwell",
		Version: "0.1.0",

		Core: CoreConfig{
			MaxConcurrentSubagents:   8,
			MaxSubagentDepth:         4,
			HeartbeatIntervalSeconds: 30,
			AwaitPollIntervalMS:      500,
		},
		Cache: CacheConfig{
			Path:          "data/sunwell-cache.db",
			RetryCooldown: "1h",
			WALMode:       true,
		},
		Planner: PlannerConfig{
			Candidates:       3,
			VarianceStrategy: "temperature",
			ScoreVersion:     "auto",
			RefinementRounds: 1,
			MaxArtifacts:     200,
		},
		Reasoner: ReasonerConfig{
			ConfidenceThreshold: 0.7,
			FastPathThreshold:   0.90,
			Model:               "",
		},
		Memory: MemoryConfig{
			JournalPath: "data/sunwell-journal.jsonl",
			CachePath:   "data/sunwell-memory.db",
			BM25K1:      1.2,
			BM25B:       0.75,
		},
		Logging: LoggingConfig{
			DebugMode: false,
			Level:     "info",
			LogsDir:   ".sunwell/logs",
		},
		Workspace: WorkspaceConfig{
			Root:   ".",
			AppDir: ".sunwell",
		},
	}
}

// Load reads configuration from a YAML file, falling back to defaults
// for a missing file, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes configuration to a YAML file, creating parent directories.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// applyEnvOverrides layers environment variables over file/default values.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("SUNWELL_MODEL"); v != "" {
		c.Reasoner.Model = v
	}
	if v := os.Getenv("SUNWELL_CACHE_PATH"); v != "" {
		c.Cache.Path = v
	}
	if v := os.Getenv("SUNWELL_MEMORY_JOURNAL"); v != "" {
		c.Memory.JournalPath = v
	}
	if v := os.Getenv("SUNWELL_WORKSPACE"); v != "" {
		c.Workspace.Root = v
	}
	if v := os.Getenv("SUNWELL_DEBUG"); v == "1" || v == "true" {
		c.Logging.DebugMode = true
	}
}

// RetryCooldownDuration parses Cache.RetryCooldown, falling back to 1
// hour on a malformed value rather than failing config load.
func (c *Config) RetryCooldownDuration() time.Duration {
	d, err := time.ParseDuration(c.Cache.RetryCooldown)
	if err != nil {
		return time.Hour
	}
	return d
}

// AppPath joins the workspace root and app-dir name with the given
// relative segments, e.g. AppPath("logs") -> "<root>/.sunwell/logs".
func (c *Config) AppPath(segments ...string) string {
	parts := append([]string{c.Workspace.Root, c.Workspace.AppDir}, segments...)
	return filepath.Join(parts...)
}
