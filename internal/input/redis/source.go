// Package redis reads raw sensor partitions from Redis lists keyed
// <prefix>:<domain>:<dayPK>[:<hour>].
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"

	"entitygraph/internal/logger"
	"entitygraph/internal/transform/wintap"
	"entitygraph/pkg/models"
)

const (
	labelsDomain    = "labels"
	defaultPageSize = 5000
	scanCount       = 1000
)

// Config configures the Redis source.
type Config struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	PageSize int64
}

// Source pages raw records out of Redis lists. Lists are read, never popped,
// so a partition can be rebuilt.
type Source struct {
	client   *redis.Client
	prefix   string
	pageSize int64
}

// NewSource creates a Redis source.
func NewSource(cfg Config) (*Source, error) {
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:6379"
	}
	if cfg.Prefix == "" {
		return nil, fmt.Errorf("redis key prefix is required")
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &Source{
		client:   client,
		prefix:   cfg.Prefix,
		pageSize: cfg.PageSize,
	}, nil
}

// ListKey names the list holding one domain of one partition.
func ListKey(prefix, domain string, p models.Partition) string {
	key := fmt.Sprintf("%s:%s:%s", prefix, domain, p.DayPK)
	if p.Hour != "" {
		key += ":" + p.Hour
	}
	return key
}

// ParseListKey splits a list key back into its domain and partition.
func ParseListKey(prefix, key string) (string, models.Partition, bool) {
	rest, ok := strings.CutPrefix(key, prefix+":")
	if !ok {
		return "", models.Partition{}, false
	}
	parts := strings.Split(rest, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return "", models.Partition{}, false
	}
	spec := parts[1]
	if len(parts) == 3 {
		spec += "/hour=" + parts[2]
	}
	p, err := models.ParsePartition(spec)
	if err != nil {
		return "", models.Partition{}, false
	}
	return parts[0], p, true
}

// Partitions scans for list keys under the prefix.
func (s *Source) Partitions(ctx context.Context) ([]models.Partition, error) {
	seen := make(map[models.Partition]struct{})
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, s.prefix+":*", scanCount).Result()
		if err != nil {
			return nil, fmt.Errorf("scan %s:*: %w", s.prefix, err)
		}
		for _, key := range keys {
			domain, p, ok := ParseListKey(s.prefix, key)
			if !ok {
				continue
			}
			if _, known := models.ParseDomain(domain); !known {
				continue
			}
			seen[p] = struct{}{}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}

	out := make([]models.Partition, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	models.SortPartitions(out)
	return out, nil
}

// Load pages every domain list of p and its labels list.
func (s *Source) Load(ctx context.Context, p models.Partition) (*models.Batch, error) {
	batch := models.NewBatch(p)
	for _, domain := range models.Domains {
		key := ListKey(s.prefix, string(domain), p)
		err := s.each(ctx, key, func(payload []byte) error {
			ev, err := wintap.Parse(domain, p, payload)
			if err != nil {
				return err
			}
			batch.Add(ev)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	err := s.each(ctx, ListKey(s.prefix, labelsDomain, p), func(payload []byte) error {
		var l models.DetectionLabel
		if err := json.Unmarshal(payload, &l); err != nil {
			return err
		}
		if l.Source == "" {
			l.Source = models.LabelSourceExternal
		}
		batch.Labels = append(batch.Labels, l)
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Infof("Loaded %s from redis: %d events, %d labels", p, batch.Len(), len(batch.Labels))
	return batch, nil
}

func (s *Source) each(ctx context.Context, key string, fn func([]byte) error) error {
	for start := int64(0); ; start += s.pageSize {
		page, err := s.client.LRange(ctx, key, start, start+s.pageSize-1).Result()
		if err != nil && err != redis.Nil {
			return fmt.Errorf("lrange %s: %w", key, err)
		}
		for i, payload := range page {
			if err := fn([]byte(payload)); err != nil {
				return fmt.Errorf("%s[%d]: %w", key, start+int64(i), err)
			}
		}
		if int64(len(page)) < s.pageSize {
			return nil
		}
	}
}

// Close closes the client.
func (s *Source) Close() error {
	return s.client.Close()
}
