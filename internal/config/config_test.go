package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigSaneDefaults(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 8, cfg.Core.MaxConcurrentSubagents)
	assert.Equal(t, 4, cfg.Core.MaxSubagentDepth)
	assert.Equal(t, "1h", cfg.Cache.RetryCooldown)
	assert.Equal(t, "auto", cfg.Planner.ScoreVersion)
	assert.Equal(t, ".sunwell", cfg.Workspace.AppDir)
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Core, cfg.Core)
}

func TestLoadAndSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sunwell.yaml")

	cfg := DefaultConfig()
	cfg.Planner.Candidates = 5
	cfg.Core.MaxSubagentDepth = 2
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5, loaded.Planner.Candidates)
	assert.Equal(t, 2, loaded.Core.MaxSubagentDepth)
}

func TestRetryCooldownDurationFallsBackOnBadValue(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Cache.RetryCooldown = "not-a-duration"
	assert.Equal(t, time.Hour, cfg.RetryCooldownDuration())
}

func TestEnvOverrides(t *testing.T) {
	t.Run("model override", func(t *testing.T) {
		t.Setenv("SUNWELL_MODEL", "gpt-test")
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		assert.Equal(t, "gpt-test", cfg.Reasoner.Model)
	})

	t.Run("debug flag override", func(t *testing.T) {
		t.Setenv("SUNWELL_DEBUG", "true")
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		assert.True(t, cfg.Logging.DebugMode)
	})
}

func TestAppPathJoinsWorkspaceAndAppDir(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Workspace.Root = "/tmp/ws"
	assert.Equal(t, filepath.Join("/tmp/ws", ".sunwell", "logs"), cfg.AppPath("logs"))
}

