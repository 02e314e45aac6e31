package strategy

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *ConfigStore {
	t.Helper()
	reg := NewRegistry(zerolog.Nop())
	store, err := NewConfigStore(filepath.Join(t.TempDir(), "configs.json"), reg, zerolog.Nop())
	require.NoError(t, err)
	return store
}

func TestConfigStoreSeedsDefaults(t *testing.T) {
	store := newTestStore(t)

	for _, name := range []string{"conservative", "aggressive", "balanced", "volume_focus", "technical_full"} {
		cfg, err := store.Get(name)
		assert.NoError(t, err, name)
		assert.Equal(t, len(cfg.Strategies), len(cfg.Weights), name)
	}

	_, err := store.Get("missing")
	assert.Error(t, err)
}

func TestDefaultConfigsValidate(t *testing.T) {
	reg := NewRegistry(zerolog.Nop())
	for _, cfg := range defaultConfigs {
		assert.NoError(t, cfg.Validate(reg), cfg.Name)
	}
}

func TestConfigValidate(t *testing.T) {
	reg := NewRegistry(zerolog.Nop())

	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{
			"empty name",
			Config{Strategies: []string{"RSI"}, Weights: []float64{1}},
			"name cannot be empty",
		},
		{
			"no strategies",
			Config{Name: "x"},
			"at least one strategy",
		},
		{
			"length mismatch",
			Config{Name: "x", Strategies: []string{"RSI", "MACD"}, Weights: []float64{1}},
			"2 strategies but 1 weights",
		},
		{
			"unknown strategy",
			Config{Name: "x", Strategies: []string{"Astrology"}, Weights: []float64{1}},
			"unknown strategy",
		},
		{
			"duplicate strategy",
			Config{Name: "x", Strategies: []string{"RSI", "RSI"}, Weights: []float64{0.5, 0.5}},
			"duplicate",
		},
		{
			"negative weight",
			Config{Name: "x", Strategies: []string{"RSI"}, Weights: []float64{-1}},
			"non-negative",
		},
		{
			"zero weights",
			Config{Name: "x", Strategies: []string{"RSI"}, Weights: []float64{0}},
			"positive value",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate(reg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNormalizedWeights(t *testing.T) {
	cfg := Config{
		Name:       "x",
		Strategies: []string{"RSI", "MACD"},
		Weights:    []float64{3, 1},
	}

	normalized := cfg.NormalizedWeights()
	assert.InDelta(t, 0.75, normalized[0], 1e-9)
	assert.InDelta(t, 0.25, normalized[1], 1e-9)
}

func TestConfigStoreCreateAndDelete(t *testing.T) {
	store := newTestStore(t)

	custom := Config{
		Name:       "my_mix",
		Strategies: []string{"RSI", "VolumeConfirmation"},
		Weights:    []float64{0.7, 0.3},
	}
	require.NoError(t, store.Create(custom))

	got, err := store.Get("my_mix")
	require.NoError(t, err)
	assert.Equal(t, custom.Strategies, got.Strategies)

	// Duplicates are rejected
	assert.Error(t, store.Create(custom))

	require.NoError(t, store.Delete("my_mix"))
	_, err = store.Get("my_mix")
	assert.Error(t, err)
}

func TestConfigStoreProtectsDefaults(t *testing.T) {
	store := newTestStore(t)

	err := store.Delete("balanced")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "default")
}

func TestConfigStorePersists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "configs.json")
	reg := NewRegistry(zerolog.Nop())

	store, err := NewConfigStore(path, reg, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, store.Create(Config{
		Name:       "persisted",
		Strategies: []string{"MACD"},
		Weights:    []float64{1},
	}))

	// A fresh store over the same file sees the saved config
	reopened, err := NewConfigStore(path, reg, zerolog.Nop())
	require.NoError(t, err)

	cfg, err := reopened.Get("persisted")
	require.NoError(t, err)
	assert.Equal(t, []string{"MACD"}, cfg.Strategies)
}
