package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vention.dev/cellrt/internal/broker"
)

func TestLoadAppliesDefaults(t *testing.T) {
	app, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "cellrt", app.Name)
	assert.Equal(t, 1000, app.HistorySize)
	assert.True(t, app.EnableLastStateRecovery)
	assert.Equal(t, 1, app.StreamDefault.QueueMaxSize)
	assert.Equal(t, broker.PolicyLatest, app.StreamDefault.Policy)
}

func TestLoadHonorsEnvOverrides(t *testing.T) {
	t.Setenv("CELLRT_NAME", "picker-cell")
	t.Setenv("CELLRT_HISTORY_SIZE", "50")
	t.Setenv("CELLRT_STREAM_POLICY", "fifo")

	app, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "picker-cell", app.Name)
	assert.Equal(t, 50, app.HistorySize)
	assert.Equal(t, broker.PolicyFIFO, app.StreamDefault.Policy)
}

func TestLoadRejectsInvalidPolicy(t *testing.T) {
	t.Setenv("CELLRT_STREAM_POLICY", "nonsense")
	_, err := Load()
	require.Error(t, err)
}

func TestStreamConfigPrefersOverride(t *testing.T) {
	app, err := Load()
	require.NoError(t, err)
	app.StreamOverrides["fast"] = StreamDefaults{Policy: broker.PolicyFIFO, QueueMaxSize: 1}

	cfg := app.StreamConfig("fast")
	assert.Equal(t, broker.PolicyFIFO, cfg.Policy)

	fallback := app.StreamConfig("unconfigured")
	assert.Equal(t, app.StreamDefault.Policy, fallback.Policy)
}
