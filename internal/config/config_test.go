package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), c)
	assert.Equal(t, "models/ggml-tiny.bin", c.Models.Paths[len(c.Models.Paths)-1])
	assert.Equal(t, 30*time.Second, c.Models.WindowSize)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log_level: debug
server:
  http_address: ":9000"
models:
  paths: [a.bin, b.bin]
  window_size: 15s
noise:
  enabled: false
pipeline:
  max_concurrency: 4
kafka:
  enabled: true
  brokers: [kafka:9092]
`), 0o644))

	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", c.Server.HTTPAddress)
	assert.Equal(t, ":50051", c.Server.GRPCAddress)
	assert.Equal(t, []string{"a.bin", "b.bin"}, c.Models.Paths)
	assert.Equal(t, 15*time.Second, c.Models.WindowSize)
	assert.False(t, c.Noise.Enabled)
	assert.Equal(t, 150.0, c.Noise.BandHighHz)
	assert.Equal(t, int64(4), c.Pipeline.MaxConcurrency)
	assert.True(t, c.Kafka.Enabled)
	assert.Equal(t, slog.LevelDebug, c.SlogLevel())
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [oops"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("HF_TOKEN", "hf_secret")
	t.Setenv("COURT_MODEL_PATHS", "x.bin, y.bin,")
	t.Setenv("COURT_KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("COURT_NOISE_ENABLED", "false")
	t.Setenv("COURT_MAX_CONCURRENCY", "8")
	t.Setenv("COURT_WAIT_FOR_SLOT", "true")
	t.Setenv("COURT_STORAGE_PATH", "/data/court.db")

	c, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "hf_secret", c.Diarization.HFToken)
	assert.Equal(t, []string{"x.bin", "y.bin"}, c.Models.Paths)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.Kafka.Brokers)
	assert.True(t, c.Kafka.Enabled)
	assert.False(t, c.Noise.Enabled)
	assert.Equal(t, int64(8), c.Pipeline.MaxConcurrency)
	assert.True(t, c.Pipeline.WaitForSlot)
	assert.Equal(t, "/data/court.db", c.Storage.Path)
}

func TestEnvOverrideErrors(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"COURT_NOISE_ENABLED", "maybe"},
		{"COURT_DIARIZATION_ENABLED", "2x"},
		{"COURT_MAX_CONCURRENCY", "many"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
			assert.ErrorContains(t, err, tt.key)
		})
	}
}

func TestSlogLevelFallback(t *testing.T) {
	c := Default()
	c.LogLevel = "loud"
	assert.Equal(t, slog.LevelInfo, c.SlogLevel())
}
