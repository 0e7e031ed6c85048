package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("API_KEY", "test-key")
	t.Setenv("EMBEDDER_URL", "http://localhost:9000")
}

func TestLoad(t *testing.T) {
	t.Run("missing API_KEY fails", func(t *testing.T) {
		t.Setenv("API_KEY", "")
		t.Setenv("EMBEDDER_URL", "http://localhost:9000")

		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("missing EMBEDDER_URL fails", func(t *testing.T) {
		t.Setenv("API_KEY", "test-key")
		t.Setenv("EMBEDDER_URL", "")

		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("defaults preserve the pipeline tunables", func(t *testing.T) {
		setRequired(t)

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, 5, cfg.MatchTopK)
		assert.InDelta(t, 0.05, cfg.MatchTextBoost, 1e-9)
		assert.InDelta(t, 0.6, cfg.VisualThreshold, 1e-9)
		assert.Equal(t, 512, cfg.EmbeddingDim)
		assert.True(t, cfg.RiverEnabled)
	})

	t.Run("tunables are overridable", func(t *testing.T) {
		setRequired(t)
		t.Setenv("MATCH_TOP_K", "10")
		t.Setenv("MATCH_TEXT_BOOST", "0.1")
		t.Setenv("VISUAL_CONFIDENCE_THRESHOLD", "0.75")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, 10, cfg.MatchTopK)
		assert.InDelta(t, 0.1, cfg.MatchTextBoost, 1e-9)
		assert.InDelta(t, 0.75, cfg.VisualThreshold, 1e-9)
	})

	t.Run("negative text boost disables boosting", func(t *testing.T) {
		setRequired(t)
		t.Setenv("MATCH_TEXT_BOOST", "-1")

		cfg, err := Load()
		require.NoError(t, err)
		assert.InDelta(t, -1, cfg.MatchTextBoost, 1e-9)
	})

	t.Run("out-of-range threshold fails", func(t *testing.T) {
		setRequired(t)
		t.Setenv("VISUAL_CONFIDENCE_THRESHOLD", "1.5")

		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("invalid numeric values fall back to defaults", func(t *testing.T) {
		setRequired(t)
		t.Setenv("MATCH_TOP_K", "not-a-number")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, 5, cfg.MatchTopK)
	})
}
