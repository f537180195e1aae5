// Package config loads and validates the orchestrator's configuration
// (§6), following the teacher's pattern of layering viper over a YAML
// file for operator-facing settings.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config is the root configuration document.
type Config struct {
	Database   DatabaseConfig   `mapstructure:"database"`
	Indexing   IndexingConfig   `mapstructure:"indexing"`
	Watcher    WatcherConfig    `mapstructure:"watcher"`
	Consensus  ConsensusConfig  `mapstructure:"consensus"`
	Server     ServerConfig     `mapstructure:"server"`
	Agents     []AgentConfig    `mapstructure:"agents"`
}

// AgentConfig seeds the Agent Registry at process start, the YAML
// analogue of the teacher's TeamsConfig agent roster.
type AgentConfig struct {
	ID           string   `mapstructure:"id"`
	Type         string   `mapstructure:"type"`
	DisplayName  string   `mapstructure:"display_name"`
	Capabilities []string `mapstructure:"capabilities"`
}

type DatabaseConfig struct {
	Path     string `mapstructure:"path"`
	PoolSize int    `mapstructure:"pool_size"`
}

type IndexingConfig struct {
	AllowedExtensions []string `mapstructure:"allowed_extensions"`
	MaxFileSizeMB     int      `mapstructure:"max_file_size_mb"`
	WatchPaths        []string `mapstructure:"watch_paths"`
}

type WatcherConfig struct {
	DebounceMS        int `mapstructure:"debounce_ms"`
	BatchSize         int `mapstructure:"batch_size"`
	MaxFileSizeFactor int `mapstructure:"max_file_size_factor"`
}

type ReasoningQualityWeights struct {
	Correctness float64 `mapstructure:"correctness"`
	Clarity     float64 `mapstructure:"clarity"`
	Evidence    float64 `mapstructure:"evidence"`
}

type VotingConfig struct {
	Threshold float64 `mapstructure:"threshold"`
}

type ReasoningQualityConfig struct {
	Weights ReasoningQualityWeights `mapstructure:"weights"`
}

type ConsensusConfig struct {
	Voting           VotingConfig           `mapstructure:"voting"`
	ReasoningQuality ReasoningQualityConfig `mapstructure:"reasoning_quality"`
}

type ServerConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

// Load reads config from path (YAML) via viper, applies defaults, and
// validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.path", "./data/orchestrator.db")
	v.SetDefault("database.pool_size", 10)
	v.SetDefault("indexing.allowed_extensions", []string{".go", ".md", ".yaml", ".yml", ".json"})
	v.SetDefault("indexing.max_file_size_mb", 5)
	v.SetDefault("indexing.watch_paths", []string{"."})
	v.SetDefault("watcher.debounce_ms", 500)
	v.SetDefault("watcher.batch_size", 50)
	v.SetDefault("watcher.max_file_size_factor", 2)
	v.SetDefault("consensus.voting.threshold", 0.75)
	v.SetDefault("consensus.reasoning_quality.weights.correctness", 0.5)
	v.SetDefault("consensus.reasoning_quality.weights.clarity", 0.25)
	v.SetDefault("consensus.reasoning_quality.weights.evidence", 0.25)
	v.SetDefault("server.listen_addr", "127.0.0.1:8765")
}

// Validate enforces the §6 configuration invariants: no blank allowed
// extensions, every extension carries a leading dot, maxFileSizeMb is
// positive and bounded, watch paths exist and contain no traversal
// segments, the watcher's per-event size ceiling (maxFileSizeMb *
// max_file_size_factor) is never smaller than the indexer's own ceiling,
// and consensus.voting.threshold is in (0,1].
func (c *Config) Validate() error {
	if len(c.Indexing.AllowedExtensions) == 0 {
		return fmt.Errorf("indexing.allowed_extensions must not be empty")
	}
	for _, ext := range c.Indexing.AllowedExtensions {
		if ext == "" {
			return fmt.Errorf("indexing.allowed_extensions must not contain a blank entry")
		}
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("indexing.allowed_extensions entry %q must start with a leading dot", ext)
		}
	}
	if c.Indexing.MaxFileSizeMB <= 0 {
		return fmt.Errorf("indexing.max_file_size_mb must be > 0, got %d", c.Indexing.MaxFileSizeMB)
	}
	if c.Indexing.MaxFileSizeMB > 500 {
		return fmt.Errorf("indexing.max_file_size_mb must be <= 500, got %d", c.Indexing.MaxFileSizeMB)
	}
	if len(c.Indexing.WatchPaths) == 0 {
		return fmt.Errorf("indexing.watch_paths must not be empty")
	}
	for _, p := range c.Indexing.WatchPaths {
		if strings.Contains(p, "..") {
			return fmt.Errorf("indexing.watch_paths entry %q must not contain a parent-directory traversal segment", p)
		}
		abs, err := filepath.Abs(p)
		if err != nil {
			return fmt.Errorf("indexing.watch_paths entry %q: %w", p, err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return fmt.Errorf("indexing.watch_paths entry %q does not exist: %w", p, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("indexing.watch_paths entry %q is not a directory", p)
		}
	}
	if c.Watcher.MaxFileSizeFactor < 1 {
		return fmt.Errorf("watcher.max_file_size_factor must be >= 1, got %d", c.Watcher.MaxFileSizeFactor)
	}
	watcherCeilingMB := c.Indexing.MaxFileSizeMB * c.Watcher.MaxFileSizeFactor
	if watcherCeilingMB < c.Indexing.MaxFileSizeMB {
		return fmt.Errorf("watcher file-size ceiling (%d MB) must not be smaller than indexing.max_file_size_mb (%d MB)",
			watcherCeilingMB, c.Indexing.MaxFileSizeMB)
	}
	if c.Watcher.DebounceMS < 0 {
		return fmt.Errorf("watcher.debounce_ms must be >= 0, got %d", c.Watcher.DebounceMS)
	}
	if c.Watcher.BatchSize <= 0 {
		return fmt.Errorf("watcher.batch_size must be > 0, got %d", c.Watcher.BatchSize)
	}
	if c.Consensus.Voting.Threshold <= 0 || c.Consensus.Voting.Threshold > 1 {
		return fmt.Errorf("consensus.voting.threshold must be in (0,1], got %f", c.Consensus.Voting.Threshold)
	}
	return nil
}
