package safetylimits

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/99souls/wellflow/internal/detect"
)

func writeTable(t *testing.T, dir, yamlBody string) string {
	t.Helper()
	path := filepath.Join(dir, "safety_limits.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yamlBody), 0o644))
	return path
}

const sampleTable = `
version: "1"
default_method: fft
default_window_size: 32
default_threshold: 0.4
channels:
  давление_на_входе:
    base_weights: [0.5, 0.2, 0.3]
    threshold: 0.9
    max_change_rate: 10
    requires_consensus: true
    inertia_class: high
    safety_limit:
      min: 0
      max: 400
      critical: 450
`

func TestNewLoaderReadsInitialTable(t *testing.T) {
	path := writeTable(t, t.TempDir(), sampleTable)
	l, err := NewLoader(path)
	require.NoError(t, err)

	cfg := l.Config("давление_на_входе")
	assert.Equal(t, [3]float64{0.5, 0.2, 0.3}, cfg.BaseWeights)
	assert.True(t, cfg.RequiresConsensus)

	limit, ok := l.SafetyLimit("давление_на_входе")
	require.True(t, ok)
	assert.Equal(t, 400.0, limit.Max)
}

func TestConfigFallsBackToDefaultForUnknownChannel(t *testing.T) {
	path := writeTable(t, t.TempDir(), sampleTable)
	l, err := NewLoader(path)
	require.NoError(t, err)

	cfg := l.Config("unknown_channel")
	assert.Equal(t, detect.DefaultChannelConfig, cfg)

	_, ok := l.SafetyLimit("unknown_channel")
	assert.False(t, ok)
}

func TestMissingFileYieldsEmptyTableNotError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does_not_exist.yaml")
	l, err := NewLoader(path)
	require.NoError(t, err)
	assert.Equal(t, detect.DefaultChannelConfig, l.Config("anything"))
}

func TestDefaultAnalysisConfigReadsTopLevelDefaults(t *testing.T) {
	path := writeTable(t, t.TempDir(), sampleTable)
	l, err := NewLoader(path)
	require.NoError(t, err)

	cfg := l.DefaultAnalysisConfig()
	assert.Equal(t, "fft", cfg.Method)
	assert.Equal(t, 32, cfg.WindowSize)
	assert.Equal(t, 0.4, cfg.Threshold)
}

func TestValidateRejectsInvertedSafetyLimit(t *testing.T) {
	bad := `
channels:
  pressure:
    safety_limit:
      min: 500
      max: 10
`
	path := writeTable(t, t.TempDir(), bad)
	_, err := NewLoader(path)
	assert.Error(t, err)
}

func TestWatchReloadsOnFileWrite(t *testing.T) {
	dir := t.TempDir()
	path := writeTable(t, dir, sampleTable)
	l, err := NewLoader(path)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, l.Watch(ctx))
	defer l.Stop()

	updated := `
version: "2"
default_method: fft
default_window_size: 32
default_threshold: 0.4
channels:
  давление_на_входе:
    base_weights: [0.1, 0.1, 0.8]
    threshold: 0.9
    safety_limit:
      min: 0
      max: 999
`
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if l.Version() == "2" {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	assert.Equal(t, "2", l.Version())
	limit, ok := l.SafetyLimit("давление_на_входе")
	require.True(t, ok)
	assert.Equal(t, 999.0, limit.Max)
}

func TestLastLoadedUpdatesOnReload(t *testing.T) {
	path := writeTable(t, t.TempDir(), sampleTable)
	l, err := NewLoader(path)
	require.NoError(t, err)
	first := l.LastLoaded()
	assert.False(t, first.IsZero())

	require.NoError(t, os.WriteFile(path, []byte(sampleTable+"\n# changed\n"), 0o644))
	require.NoError(t, l.reload())
	assert.True(t, l.LastLoaded().After(first))
}
