package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, bool(cfg.ConsciousIngest))
	assert.True(t, bool(cfg.AutoIngest))
	assert.Equal(t, DefaultSTMCapacity, cfg.STMCapacity)
	assert.Equal(t, DefaultPromotionThreshold, cfg.PromotionThreshold)
	assert.Equal(t, DefaultSchedulerInterval, cfg.SchedulerInterval)
	assert.Contains(t, cfg.Namespace, "code:")
	assert.NotEmpty(t, cfg.DBPath)
	assert.Zero(t, cfg.TTL())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("APOGEEMIND_NAMESPACE", "proj")
	t.Setenv("APOGEEMIND_CONSCIOUS", "off")
	t.Setenv("APOGEEMIND_AUTO", "yes")
	t.Setenv("APOGEEMIND_STM_CAPACITY", "5")
	t.Setenv("APOGEEMIND_PROMOTION_THRESHOLD", "0.5")
	t.Setenv("APOGEEMIND_SCHEDULER_INTERVAL", "90s")
	t.Setenv("APOGEEMIND_STM_TTL", "7d")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "proj", cfg.Namespace)
	assert.False(t, bool(cfg.ConsciousIngest))
	assert.True(t, bool(cfg.AutoIngest))
	assert.Equal(t, 5, cfg.STMCapacity)
	assert.Equal(t, 0.5, cfg.PromotionThreshold)
	assert.Equal(t, 90*time.Second, cfg.SchedulerInterval)
	assert.Equal(t, 7*24*time.Hour, cfg.TTL())
}

func TestLoad_FailsFast(t *testing.T) {
	t.Chdir(t.TempDir())

	t.Setenv("APOGEEMIND_STM_CAPACITY", "0")
	_, err := Load()
	require.ErrorIs(t, err, ErrInvalidCapacity)

	t.Setenv("APOGEEMIND_STM_CAPACITY", "3")
	t.Setenv("APOGEEMIND_PROMOTION_THRESHOLD", "1.5")
	_, err = Load()
	require.ErrorIs(t, err, ErrInvalidThreshold)

	t.Setenv("APOGEEMIND_PROMOTION_THRESHOLD", "0.7")
	t.Setenv("APOGEEMIND_STM_TTL", "soon")
	_, err = Load()
	require.Error(t, err)
}

func TestToggle(t *testing.T) {
	var tg Toggle
	for _, s := range []string{"1", "TRUE", "yes", "on"} {
		require.NoError(t, tg.UnmarshalText([]byte(s)))
		assert.True(t, bool(tg), s)
	}
	for _, s := range []string{"0", "false", "no", "off"} {
		require.NoError(t, tg.UnmarshalText([]byte(s)))
		assert.False(t, bool(tg), s)
	}
	assert.Error(t, tg.UnmarshalText([]byte("maybe")))
}

func TestParseTTL(t *testing.T) {
	tests := []struct {
		input string
		ok    bool
	}{
		{"7d", true},
		{"24h", true},
		{"30m", true},
		{"60s", true},
		{"invalid", false},
		{"", false},
		{"7x", false},
	}
	for _, tt := range tests {
		_, err := ParseTTL(tt.input)
		if tt.ok && err != nil {
			t.Errorf("ParseTTL(%q) unexpected error: %v", tt.input, err)
		}
		if !tt.ok && err == nil {
			t.Errorf("ParseTTL(%q) expected error", tt.input)
		}
	}
}
