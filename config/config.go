package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	EntityGraph EntityGraphConfig `yaml:"entitygraph"`
}

// EntityGraphConfig is the project configuration.
type EntityGraphConfig struct {
	Input    InputConfig    `yaml:"input"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Rules    RulesConfig    `yaml:"rules"`
	Graph    GraphConfig    `yaml:"graph"`
	Output   OutputConfig   `yaml:"output"`
	Ledger   LedgerConfig   `yaml:"ledger"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// InputConfig selects the partition source.
type InputConfig struct {
	Mode  string           `yaml:"mode"` // jsonl|redis
	JSONL JSONLInputConfig `yaml:"jsonl"`
	Redis RedisConfig      `yaml:"redis"`
}

// JSONLInputConfig points at a dataset directory.
type JSONLInputConfig struct {
	Dataset      string `yaml:"dataset"`
	MaxLineBytes int    `yaml:"max_line_bytes"`
}

// RedisConfig controls Redis access.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
	PageSize int64  `yaml:"page_size"`
}

// PipelineConfig controls entity construction.
type PipelineConfig struct {
	Workers            int           `yaml:"workers"`
	BucketWidth        time.Duration `yaml:"bucket_width"`
	TieBreak           string        `yaml:"tie_break"`
	Sentinels          []string      `yaml:"sentinels"`
	CountEmptyDistinct bool          `yaml:"count_empty_distinct"`
	MaxDepth           int           `yaml:"max_depth"`
	AncestryWorkers    int           `yaml:"ancestry_workers"`
}

// RulesConfig controls Sigma labelling.
type RulesConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// GraphConfig controls the process_graph table.
type GraphConfig struct {
	Enabled         bool `yaml:"enabled"`
	WriteVertexRows bool `yaml:"write_vertex_rows"`
	IncludeEdgeData bool `yaml:"include_edge_data"`
}

// OutputConfig selects the table sink.
type OutputConfig struct {
	Mode       string                 `yaml:"mode"` // file|sqlite|clickhouse|http
	File       FileOutputConfig       `yaml:"file"`
	SQLite     SQLiteOutputConfig     `yaml:"sqlite"`
	ClickHouse ClickHouseOutputConfig `yaml:"clickhouse"`
	HTTP       HTTPOutputConfig       `yaml:"http"`
}

// FileOutputConfig config for local JSONL tables.
type FileOutputConfig struct {
	Root string `yaml:"root"`
}

// SQLiteOutputConfig config for the SQLite sink.
type SQLiteOutputConfig struct {
	Path string `yaml:"path"`
}

// ClickHouseOutputConfig config for ClickHouse HTTP JSONEachRow writes.
type ClickHouseOutputConfig struct {
	URL         string            `yaml:"url"`
	Database    string            `yaml:"database"`
	TablePrefix string            `yaml:"table_prefix"`
	Username    string            `yaml:"username"`
	Password    string            `yaml:"password"`
	Replace     bool              `yaml:"replace"`
	Timeout     time.Duration     `yaml:"timeout"`
	Headers     map[string]string `yaml:"headers"`
}

// HTTPOutputConfig config for remote output.
type HTTPOutputConfig struct {
	URL     string            `yaml:"url"`
	Timeout time.Duration     `yaml:"timeout"`
	Headers map[string]string `yaml:"headers"`
}

// LedgerConfig controls the completed-partition ledger.
type LedgerConfig struct {
	Enabled   bool        `yaml:"enabled"`
	KeyPrefix string      `yaml:"key_prefix"`
	Redis     RedisConfig `yaml:"redis"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// LoggingConfig controls logging output.
type LoggingConfig struct {
	Enabled bool   `yaml:"enabled"`
	Level   string `yaml:"level"`
	File    string `yaml:"file"`
	Console bool   `yaml:"console"`
}

// LoadConfig reads and parses a YAML config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	return &cfg, nil
}

// ApplyDefaults fills zero values.
func ApplyDefaults(cfg *Config) {
	c := &cfg.EntityGraph

	if c.Input.Mode == "" {
		c.Input.Mode = "jsonl"
	}
	if c.Input.Redis.Addr == "" {
		c.Input.Redis.Addr = "127.0.0.1:6379"
	}
	if c.Input.Redis.Prefix == "" {
		c.Input.Redis.Prefix = "wintap"
	}

	if c.Pipeline.Workers <= 0 {
		c.Pipeline.Workers = 4
	}
	if c.Pipeline.BucketWidth <= 0 {
		c.Pipeline.BucketWidth = time.Minute
	}
	if c.Pipeline.TieBreak == "" {
		c.Pipeline.TieBreak = "smallest"
	}
	if c.Pipeline.Sentinels == nil {
		c.Pipeline.Sentinels = []string{"na"}
	}
	if c.Pipeline.AncestryWorkers <= 0 {
		c.Pipeline.AncestryWorkers = 1
	}

	if c.Output.Mode == "" {
		c.Output.Mode = "file"
	}
	if c.Output.File.Root == "" {
		c.Output.File.Root = "output"
	}
	if c.Output.SQLite.Path == "" {
		c.Output.SQLite.Path = "output/entitygraph.db"
	}
	if c.Output.ClickHouse.Database == "" {
		c.Output.ClickHouse.Database = "entitygraph"
	}

	if c.Ledger.KeyPrefix == "" {
		c.Ledger.KeyPrefix = "entitygraph:ledger"
	}
	if c.Ledger.Redis.Addr == "" {
		c.Ledger.Redis.Addr = c.Input.Redis.Addr
	}

	if c.Metrics.Addr == "" {
		c.Metrics.Addr = "127.0.0.1:9464"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}
