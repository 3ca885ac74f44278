package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `entitygraph:
  input:
    mode: redis
    redis:
      addr: redis:6379
      prefix: sensors
  pipeline:
    workers: 2
    bucket_width: 5m
    tie_break: first_seen
    sentinels: ["na", "unknown"]
    max_depth: 32
  output:
    mode: sqlite
    sqlite:
      path: /tmp/out.db
  ledger:
    enabled: true
  metrics:
    enabled: true
    addr: ":9100"
`

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	ApplyDefaults(cfg)

	c := cfg.EntityGraph
	assert.Equal(t, "redis", c.Input.Mode)
	assert.Equal(t, "sensors", c.Input.Redis.Prefix)
	assert.Equal(t, 2, c.Pipeline.Workers)
	assert.Equal(t, 5*time.Minute, c.Pipeline.BucketWidth)
	assert.Equal(t, "first_seen", c.Pipeline.TieBreak)
	assert.Equal(t, []string{"na", "unknown"}, c.Pipeline.Sentinels)
	assert.Equal(t, 32, c.Pipeline.MaxDepth)
	assert.Equal(t, "/tmp/out.db", c.Output.SQLite.Path)
	assert.Equal(t, "redis:6379", c.Ledger.Redis.Addr, "ledger reuses the input redis")
	assert.Equal(t, ":9100", c.Metrics.Addr)
	assert.Equal(t, "info", c.Logging.Level)
}

func TestApplyDefaults(t *testing.T) {
	var cfg Config
	ApplyDefaults(&cfg)
	c := cfg.EntityGraph
	assert.Equal(t, "jsonl", c.Input.Mode)
	assert.Equal(t, "file", c.Output.Mode)
	assert.Equal(t, "output", c.Output.File.Root)
	assert.Equal(t, time.Minute, c.Pipeline.BucketWidth)
	assert.Equal(t, []string{"na"}, c.Pipeline.Sentinels)
	assert.Equal(t, "smallest", c.Pipeline.TieBreak)
	assert.Equal(t, "entitygraph:ledger", c.Ledger.KeyPrefix)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yml")
	require.NoError(t, os.WriteFile(path, []byte("entitygraph: ["), 0o644))
	_, err = LoadConfig(path)
	assert.Error(t, err)
}
