package config_test

import (
	"os"
	"testing"

	"github.com/cogmem/engram/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	_ = os.Unsetenv("MEMENTO_STORAGE_ENGINE")
	_ = os.Unsetenv("MEMENTO_EMBEDDING_DIMENSION")

	cfg, err := config.LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Storage.StorageEngine)
	assert.Equal(t, "./data", cfg.Storage.DataPath)
	assert.Equal(t, 384, cfg.Embedding.Dimension)
	assert.Equal(t, 3, cfg.Activation.MaxHops)
	assert.Equal(t, 50, cfg.Activation.MaxActivations)
	assert.InDelta(t, 0.6, cfg.Activation.StrengthFloor, 1e-9)
	assert.InDelta(t, 0.6, cfg.Bridge.NoveltyWeight, 1e-9)
	assert.InDelta(t, 0.4, cfg.Bridge.ConnectionPotentialWeight, 1e-9)
	assert.InDelta(t, 0.5, cfg.Bridge.MinBridgeScore, 1e-9)
	assert.InDelta(t, 0.1, cfg.Decay.EpisodicBaseRate, 1e-9)
	assert.InDelta(t, 0.01, cfg.Decay.SemanticBaseRate, 1e-9)
	assert.Equal(t, "per_chunk", cfg.Ingestion.Atomicity)
}

func TestLoadConfig_OverridesFromEnv(t *testing.T) {
	t.Setenv("MEMENTO_STORAGE_ENGINE", "postgres")
	t.Setenv("MEMENTO_EMBEDDING_DIMENSION", "768")
	t.Setenv("MEMENTO_ACTIVATION_MAX_HOPS", "5")
	t.Setenv("MEMENTO_INGEST_ATOMICITY", "per_file")

	cfg, err := config.LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Storage.StorageEngine)
	assert.Equal(t, 768, cfg.Embedding.Dimension)
	assert.Equal(t, 5, cfg.Activation.MaxHops)
	assert.Equal(t, "per_file", cfg.Ingestion.Atomicity)
}

func TestLoadConfig_InvalidIntFallsBackToDefault(t *testing.T) {
	t.Setenv("MEMENTO_ACTIVATION_MAX_HOPS", "not-a-number")

	cfg, err := config.LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Activation.MaxHops)
}

func TestLoadConfig_BoolParsing(t *testing.T) {
	t.Setenv("MEMENTO_BACKUP_ENABLED", "yes")
	cfg, err := config.LoadConfig()
	require.NoError(t, err)
	assert.True(t, cfg.Backup.Enabled)

	t.Setenv("MEMENTO_BACKUP_ENABLED", "no")
	cfg, err = config.LoadConfig()
	require.NoError(t, err)
	assert.False(t, cfg.Backup.Enabled)
}
