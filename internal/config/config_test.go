package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "missing.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "./data/orchestrator.db", cfg.Database.Path)
	assert.Equal(t, 10, cfg.Database.PoolSize)
	assert.Equal(t, 5, cfg.Indexing.MaxFileSizeMB)
	assert.Equal(t, 500, cfg.Watcher.DebounceMS)
	assert.Equal(t, "127.0.0.1:8765", cfg.Server.ListenAddr)
	assert.Equal(t, 0.75, cfg.Consensus.Voting.Threshold)
}

func TestLoad_OverridesAndAgents(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
database:
  path: /tmp/test.db
  pool_size: 4
indexing:
  watch_paths: ["`+dir+`"]
agents:
  - id: agent-1
    type: claude
    display_name: Agent One
    capabilities: ["code", "review"]
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/test.db", cfg.Database.Path)
	assert.Equal(t, 4, cfg.Database.PoolSize)
	require.Len(t, cfg.Agents, 1)
	assert.Equal(t, "agent-1", cfg.Agents[0].ID)
	assert.Equal(t, []string{"code", "review"}, cfg.Agents[0].Capabilities)
}

func TestValidate_RejectsBlankExtension(t *testing.T) {
	cfg := validConfig(t)
	cfg.Indexing.AllowedExtensions = []string{".go", ""}
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsExtensionWithoutDot(t *testing.T) {
	cfg := validConfig(t)
	cfg.Indexing.AllowedExtensions = []string{"go"}
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsOutOfRangeMaxFileSize(t *testing.T) {
	cfg := validConfig(t)
	cfg.Indexing.MaxFileSizeMB = 0
	assert.Error(t, cfg.Validate())

	cfg = validConfig(t)
	cfg.Indexing.MaxFileSizeMB = 501
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsTraversalWatchPath(t *testing.T) {
	cfg := validConfig(t)
	cfg.Indexing.WatchPaths = []string{"../escape"}
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsNonexistentWatchPath(t *testing.T) {
	cfg := validConfig(t)
	cfg.Indexing.WatchPaths = []string{filepath.Join(t.TempDir(), "nope")}
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsShrunkWatcherCeiling(t *testing.T) {
	cfg := validConfig(t)
	cfg.Watcher.MaxFileSizeFactor = 0
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsVotingThresholdOutOfRange(t *testing.T) {
	cfg := validConfig(t)
	cfg.Consensus.Voting.Threshold = 0
	assert.Error(t, cfg.Validate())

	cfg = validConfig(t)
	cfg.Consensus.Voting.Threshold = 1.5
	assert.Error(t, cfg.Validate())
}

func TestValidate_AcceptsWellFormedConfig(t *testing.T) {
	cfg := validConfig(t)
	assert.NoError(t, cfg.Validate())
}

func validConfig(t *testing.T) *Config {
	t.Helper()
	return &Config{
		Database: DatabaseConfig{Path: "./data/orchestrator.db", PoolSize: 10},
		Indexing: IndexingConfig{
			AllowedExtensions: []string{".go", ".md"},
			MaxFileSizeMB:     5,
			WatchPaths:        []string{t.TempDir()},
		},
		Watcher:   WatcherConfig{DebounceMS: 500, BatchSize: 50, MaxFileSizeFactor: 2},
		Consensus: ConsensusConfig{Voting: VotingConfig{Threshold: 0.75}},
	}
}
