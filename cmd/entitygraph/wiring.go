package main

import (
	"fmt"
	"strings"

	"entitygraph/config"
	"entitygraph/internal/graph/adjacency"
	"entitygraph/internal/graph/ancestry"
	inputjsonl "entitygraph/internal/input/jsonl"
	inputredis "entitygraph/internal/input/redis"
	"entitygraph/internal/ledger"
	"entitygraph/internal/logger"
	"entitygraph/internal/output/tableclickhouse"
	"entitygraph/internal/output/tablehttp"
	"entitygraph/internal/output/tablejson"
	"entitygraph/internal/output/tablesqlite"
	"entitygraph/internal/pipeline"
	"entitygraph/internal/reduce"
	"entitygraph/internal/rules"
	"entitygraph/pkg/models"
)

func newSource(c config.InputConfig) (pipeline.Source, func(), error) {
	switch c.Mode {
	case "jsonl":
		s, err := inputjsonl.NewSource(inputjsonl.Config{
			Dataset:      c.JSONL.Dataset,
			MaxLineBytes: c.JSONL.MaxLineBytes,
		})
		if err != nil {
			return nil, nil, err
		}
		logger.Infof("Input mode: jsonl (%s)", c.JSONL.Dataset)
		return s, func() {}, nil
	case "redis":
		s, err := inputredis.NewSource(inputredis.Config{
			Addr:     c.Redis.Addr,
			Password: c.Redis.Password,
			DB:       c.Redis.DB,
			Prefix:   c.Redis.Prefix,
			PageSize: c.Redis.PageSize,
		})
		if err != nil {
			return nil, nil, err
		}
		logger.Infof("Input mode: redis (%s, prefix=%s)", c.Redis.Addr, c.Redis.Prefix)
		return s, func() {
			if err := s.Close(); err != nil {
				logger.Warnf("Error closing redis source: %v", err)
			}
		}, nil
	}
	return nil, nil, fmt.Errorf("unknown input mode: %s", c.Mode)
}

func newWriter(c config.OutputConfig) (pipeline.TableWriter, error) {
	switch c.Mode {
	case "file":
		logger.Infof("Output mode: file (%s)", c.File.Root)
		return tablejson.NewWriter(c.File.Root)
	case "sqlite":
		logger.Infof("Output mode: sqlite (%s)", c.SQLite.Path)
		return tablesqlite.NewWriter(c.SQLite.Path)
	case "clickhouse":
		logger.Infof("Output mode: clickhouse (%s/%s)", c.ClickHouse.URL, c.ClickHouse.Database)
		return tableclickhouse.NewWriter(tableclickhouse.Config{
			URL:         c.ClickHouse.URL,
			Database:    c.ClickHouse.Database,
			TablePrefix: c.ClickHouse.TablePrefix,
			Username:    c.ClickHouse.Username,
			Password:    c.ClickHouse.Password,
			Replace:     c.ClickHouse.Replace,
			Timeout:     c.ClickHouse.Timeout,
			Headers:     c.ClickHouse.Headers,
		})
	case "http":
		logger.Infof("Output mode: http (%s)", c.HTTP.URL)
		return tablehttp.NewWriter(tablehttp.Config{
			URL:     c.HTTP.URL,
			Timeout: c.HTTP.Timeout,
			Headers: c.HTTP.Headers,
		})
	}
	return nil, fmt.Errorf("unknown output mode: %s", c.Mode)
}

func newLedger(c config.LedgerConfig) (*ledger.RedisStore, error) {
	return ledger.NewRedisStore(ledger.RedisConfig{
		Addr:      c.Redis.Addr,
		Password:  c.Redis.Password,
		DB:        c.Redis.DB,
		KeyPrefix: c.KeyPrefix,
	})
}

func buildOptions(c config.EntityGraphConfig) (pipeline.Options, error) {
	opts := pipeline.DefaultOptions()

	tie, err := reduce.ParseTieBreak(c.Pipeline.TieBreak)
	if err != nil {
		return opts, err
	}
	opts.Reduce = reduce.Options{
		Sentinels:            c.Pipeline.Sentinels,
		CountEmptyAsDistinct: c.Pipeline.CountEmptyDistinct,
		TieBreak:             tie,
	}
	opts.BucketWidth = c.Pipeline.BucketWidth
	opts.Ancestry = ancestry.Options{
		MaxDepth: c.Pipeline.MaxDepth,
		Workers:  c.Pipeline.AncestryWorkers,
	}

	opts.Graph = c.Graph.Enabled
	opts.GraphOptions = adjacency.MapperOptions{
		WriteVertexRows: c.Graph.WriteVertexRows,
		IncludeEdgeData: c.Graph.IncludeEdgeData,
	}

	if c.Rules.Enabled {
		if strings.TrimSpace(c.Rules.Path) == "" {
			logger.Warnf("Rules enabled but rules.path is empty; sigma labels disabled")
			return opts, nil
		}
		engine, stats, err := rules.NewSigmaEngine(c.Rules.Path)
		if err != nil {
			return opts, fmt.Errorf("load sigma rules from %s: %w", c.Rules.Path, err)
		}
		logger.Infof("Sigma rules loaded: loaded=%d skipped_complex=%d skipped_datasource=%d skipped_invalid=%d files=%d",
			stats.Loaded, stats.SkippedComplex, stats.SkippedDatasource, stats.SkippedInvalid, stats.TotalFiles)
		if stats.Loaded == 0 {
			logger.Warnf("No compatible Sigma rules loaded; sigma labels are effectively disabled")
		}
		opts.Rules = engine
	}
	return opts, nil
}

// selectPartitions keeps the partitions named by filters. A day filter
// matches that day and all of its hours.
func selectPartitions(parts []models.Partition, filters []string) ([]models.Partition, error) {
	if len(filters) == 0 {
		return parts, nil
	}
	wanted := make([]models.Partition, 0, len(filters))
	for _, f := range filters {
		p, err := models.ParsePartition(f)
		if err != nil {
			return nil, fmt.Errorf("invalid --day %q: %w", f, err)
		}
		wanted = append(wanted, p)
	}

	var out []models.Partition
	for _, p := range parts {
		for _, w := range wanted {
			if p.DayPK == w.DayPK && (w.Hour == "" || p.Hour == w.Hour) {
				out = append(out, p)
				break
			}
		}
	}
	return out, nil
}
