package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/virtualtestset/vpac/pkg/sv"
)

func TestDefaultConfigIsInvalidWithoutStreams(t *testing.T) {
	cfg := DefaultConfig()
	assert.Error(t, cfg.Validate())
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Framework.LogLevel)
}

func TestLoadOverlaysYAMLOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vpac.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
framework:
  log_level: debug
worker_pool:
  num_workers: 8
trip_rules:
  trip51: "I-A > 500"
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Framework.LogLevel)
	assert.Equal(t, 8, cfg.WorkerPool.NumWorkers)
	assert.Equal(t, "I-A > 500", cfg.TripRules["trip51"])
}

func TestLoadAppliesMetricsAddrEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vpac.yaml")
	require.NoError(t, os.WriteFile(path, []byte("framework:\n  log_level: info\n"), 0644))

	t.Setenv("VPAC_METRICS_ADDR", ":9999")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.Telemetry.MetricsAddr)
}

func TestValidateRejectsDuplicateStreamIDs(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Streams = []sv.StreamConfig{
		{StreamID: "s1", SvID: "A", MACDst: []byte{1, 2, 3, 4, 5, 6}, SmpRate: 4800, NASDU: 1, NChannels: 8, NominalFreq: 60},
		{StreamID: "s1", SvID: "B", MACDst: []byte{1, 2, 3, 4, 5, 6}, SmpRate: 4800, NASDU: 1, NChannels: 8, NominalFreq: 60},
	}
	assert.Error(t, cfg.Validate())
}
