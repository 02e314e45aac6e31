package risk

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultLimitsAreValid(t *testing.T) {
	assert.NoError(t, DefaultLimits().Validate())
}

func TestLimitsValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Limits)
		wantErr string
	}{
		{"negative pct", func(l *Limits) { l.MaxPositionPct = -0.1 }, "max_position_pct"},
		{"pct over one", func(l *Limits) { l.StopLossPct = 1.5 }, "stop_loss_pct"},
		{"zero position pct", func(l *Limits) { l.MaxPositionPct = 0 }, "must be positive"},
		{"zero consecutive losses", func(l *Limits) { l.MaxConsecutiveLosses = 0 }, "max_consecutive_losses"},
		{"reserve plus exposure over one", func(l *Limits) {
			l.MinCashReservePct = 0.5
			l.MaxExposurePct = 0.6
		}, "cannot exceed 1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limits := DefaultLimits()
			tt.mutate(&limits)
			err := limits.Validate()
			assert.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadLimitsMissingFileUsesDefaults(t *testing.T) {
	limits, err := LoadLimits(filepath.Join(t.TempDir(), "nope.json"))
	assert.NoError(t, err)
	assert.Equal(t, DefaultLimits(), limits)
}

func TestLoadLimitsFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "limits.json")
	err := os.WriteFile(path, []byte(`{"max_position_pct": 0.05, "max_consecutive_losses": 5}`), 0644)
	assert.NoError(t, err)

	limits, err := LoadLimits(path)
	assert.NoError(t, err)
	assert.Equal(t, 0.05, limits.MaxPositionPct)
	assert.Equal(t, 5, limits.MaxConsecutiveLosses)
	// Unspecified fields keep defaults
	assert.Equal(t, DefaultLimits().StopLossPct, limits.StopLossPct)
}

func TestLoadLimitsRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "limits.json")
	err := os.WriteFile(path, []byte(`{"max_position_pct": 2.0}`), 0644)
	assert.NoError(t, err)

	_, err = LoadLimits(path)
	assert.Error(t, err)
}
