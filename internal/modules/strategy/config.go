package strategy

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

// Config is a named strategy combination: which strategies run and how
// their signals are weighted during fusion. Loaded once per session and
// immutable during a run.
type Config struct {
	Name        string    `json:"name"`
	Strategies  []string  `json:"strategies"`
	Weights     []float64 `json:"weights"`
	Description string    `json:"description,omitempty"`
}

// Validate checks structural invariants and that every strategy name
// resolves in the registry
func (c Config) Validate(reg *Registry) error {
	if c.Name == "" {
		return fmt.Errorf("config name cannot be empty")
	}
	if len(c.Strategies) == 0 {
		return fmt.Errorf("config %q must name at least one strategy", c.Name)
	}
	if len(c.Strategies) != len(c.Weights) {
		return fmt.Errorf("config %q: %d strategies but %d weights",
			c.Name, len(c.Strategies), len(c.Weights))
	}

	seen := make(map[string]bool, len(c.Strategies))
	for _, name := range c.Strategies {
		if seen[name] {
			return fmt.Errorf("config %q: duplicate strategy %q", c.Name, name)
		}
		seen[name] = true
		if _, err := reg.Get(name); err != nil {
			return fmt.Errorf("config %q: %w", c.Name, err)
		}
	}

	sum := 0.0
	for _, w := range c.Weights {
		if w < 0 {
			return fmt.Errorf("config %q: weights must be non-negative", c.Name)
		}
		sum += w
	}
	if sum <= 0 {
		return fmt.Errorf("config %q: weights must sum to a positive value", c.Name)
	}

	return nil
}

// NormalizedWeights returns the weight list scaled to sum to 1
func (c Config) NormalizedWeights() []float64 {
	sum := 0.0
	for _, w := range c.Weights {
		sum += w
	}
	out := make([]float64, len(c.Weights))
	if sum <= 0 || math.IsNaN(sum) {
		return out
	}
	for i, w := range c.Weights {
		out[i] = w / sum
	}
	return out
}

// DefaultConfigName is the config used when none is requested
const DefaultConfigName = "balanced"

var defaultConfigs = []Config{
	{
		Name:        "conservative",
		Strategies:  []string{"MeanReversion", "RSI", "BollingerBands"},
		Weights:     []float64{0.4, 0.4, 0.2},
		Description: "Risk-averse mix for range-bound markets",
	},
	{
		Name:        "aggressive",
		Strategies:  []string{"MomentumBreakout", "SMACross", "MACD"},
		Weights:     []float64{0.5, 0.3, 0.2},
		Description: "Trend-following mix chasing breakouts",
	},
	{
		Name:        "balanced",
		Strategies:  []string{"MomentumBreakout", "MeanReversion", "RSI", "VolumeConfirmation"},
		Weights:     []float64{0.3, 0.3, 0.25, 0.15},
		Description: "Blend of trend and reversal signals for most markets",
	},
	{
		Name:        "volume_focus",
		Strategies:  []string{"VolumeConfirmation", "MomentumBreakout", "MACD"},
		Weights:     []float64{0.5, 0.3, 0.2},
		Description: "Volume-led mix tracking money flow",
	},
	{
		Name:       "technical_full",
		Strategies: []string{"MomentumBreakout", "MeanReversion", "VolumeConfirmation", "RSI", "MACD", "SMACross", "BollingerBands"},
		Weights:    []float64{0.2, 0.15, 0.15, 0.15, 0.15, 0.1, 0.1},
		Description: "Every registered strategy, lightly weighted",
	},
}

// ConfigStore owns the strategy config file. The engine core never reads
// the file directly; it asks the store once at session start.
type ConfigStore struct {
	path string
	reg  *Registry
	log  zerolog.Logger

	mu      sync.Mutex
	configs map[string]Config
}

// NewConfigStore loads (or creates) the config file and ensures the
// default configs exist
func NewConfigStore(path string, reg *Registry, log zerolog.Logger) (*ConfigStore, error) {
	s := &ConfigStore{
		path:    path,
		reg:     reg,
		log:     log.With().Str("component", "strategy_configs").Logger(),
		configs: make(map[string]Config),
	}

	if err := s.load(); err != nil {
		return nil, err
	}
	if err := s.ensureDefaults(); err != nil {
		return nil, err
	}

	return s, nil
}

// Get returns a named config
func (s *ConfigStore) Get(name string) (Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, ok := s.configs[name]
	if !ok {
		return Config{}, fmt.Errorf("unknown strategy config: %q", name)
	}
	return cfg, nil
}

// List returns all configs sorted by name
func (s *ConfigStore) List() []Config {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Config, 0, len(s.configs))
	for _, cfg := range s.configs {
		out = append(out, cfg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Create validates and persists a new config
func (s *ConfigStore) Create(cfg Config) error {
	if err := cfg.Validate(s.reg); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.configs[cfg.Name]; exists {
		return fmt.Errorf("strategy config %q already exists", cfg.Name)
	}
	s.configs[cfg.Name] = cfg
	return s.save()
}

// Delete removes a user config. Default configs cannot be deleted.
func (s *ConfigStore) Delete(name string) error {
	for _, d := range defaultConfigs {
		if d.Name == name {
			return fmt.Errorf("cannot delete default config %q", name)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.configs[name]; !ok {
		return fmt.Errorf("unknown strategy config: %q", name)
	}
	delete(s.configs, name)
	return s.save()
}

func (s *ConfigStore) load() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read strategy configs: %w", err)
	}

	var raw map[string]Config
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to parse strategy configs: %w", err)
	}

	for name, cfg := range raw {
		cfg.Name = name
		if err := cfg.Validate(s.reg); err != nil {
			return fmt.Errorf("invalid strategy config on disk: %w", err)
		}
		s.configs[name] = cfg
	}

	s.log.Info().Int("count", len(s.configs)).Msg("Loaded strategy configs")
	return nil
}

func (s *ConfigStore) ensureDefaults() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	added := false
	for _, cfg := range defaultConfigs {
		if _, ok := s.configs[cfg.Name]; !ok {
			s.configs[cfg.Name] = cfg
			added = true
		}
	}
	if !added {
		return nil
	}
	return s.save()
}

// save writes the config map atomically (tmp file + rename).
// Callers must hold s.mu.
func (s *ConfigStore) save() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(s.configs, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal strategy configs: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write strategy configs: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace strategy configs: %w", err)
	}

	return nil
}
