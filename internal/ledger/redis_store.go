// Package ledger records completed partitions so reruns can skip them.
package ledger

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"

	"entitygraph/pkg/models"
)

// RedisConfig configures Redis access for the ledger.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// Entry is the record of one completed partition.
type Entry struct {
	Partition   models.Partition `json:"partition"`
	RunID       string           `json:"run_id"`
	Rows        int64            `json:"rows"`
	CompletedAt time.Time        `json:"completed_at"`
}

// RedisStore keeps one hash per completed partition plus a sorted set of
// completion times.
type RedisStore struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// NewRedisStore constructs a Redis-backed ledger and checks connectivity.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = "127.0.0.1:6379"
	}
	if strings.TrimSpace(cfg.KeyPrefix) == "" {
		cfg.KeyPrefix = "entitygraph:ledger"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis ledger: %w", err)
	}

	return &RedisStore{client: client, prefix: strings.TrimSpace(cfg.KeyPrefix), now: time.Now}, nil
}

// Completed reports whether p was recorded by any run.
func (s *RedisStore) Completed(ctx context.Context, p models.Partition) (bool, error) {
	_, err := s.client.ZScore(ctx, s.completedSetKey(), p.String()).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read ledger for %s: %w", p, err)
	}
	return true, nil
}

// MarkCompleted records p as written by runID.
func (s *RedisStore) MarkCompleted(ctx context.Context, p models.Partition, runID string, rows int) error {
	now := s.now().UTC()
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, s.partitionKey(p),
		"partition", p.String(),
		"run_id", runID,
		"rows", strconv.Itoa(rows),
		"completed_at", strconv.FormatInt(now.Unix(), 10),
	)
	pipe.ZAdd(ctx, s.completedSetKey(), redis.Z{Score: float64(now.Unix()), Member: p.String()})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("update ledger for %s: %w", p, err)
	}
	return nil
}

// Forget drops the record of p.
func (s *RedisStore) Forget(ctx context.Context, p models.Partition) error {
	pipe := s.client.TxPipeline()
	pipe.ZRem(ctx, s.completedSetKey(), p.String())
	pipe.Del(ctx, s.partitionKey(p))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("forget %s: %w", p, err)
	}
	return nil
}

// Recent returns up to limit entries, most recently completed first.
func (s *RedisStore) Recent(ctx context.Context, limit int64) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	members, err := s.client.ZRevRangeWithScores(ctx, s.completedSetKey(), 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}

	out := make([]Entry, 0, len(members))
	for _, z := range members {
		member, ok := z.Member.(string)
		if !ok || member == "" {
			continue
		}
		p, err := models.ParsePartition(member)
		if err != nil {
			continue
		}
		hash, err := s.client.HGetAll(ctx, s.partitionKey(p)).Result()
		if err != nil {
			return nil, fmt.Errorf("read ledger entry %s: %w", member, err)
		}
		out = append(out, entryFromHash(p, hash, z.Score))
	}
	return out, nil
}

// Close closes Redis resources.
func (s *RedisStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func entryFromHash(p models.Partition, hash map[string]string, score float64) Entry {
	rows, _ := strconv.ParseInt(hash["rows"], 10, 64)
	completed, _ := strconv.ParseInt(hash["completed_at"], 10, 64)
	if completed == 0 {
		completed = int64(score)
	}
	e := Entry{Partition: p, RunID: hash["run_id"], Rows: rows}
	if completed > 0 {
		e.CompletedAt = time.Unix(completed, 0).UTC()
	}
	return e
}

func (s *RedisStore) partitionKey(p models.Partition) string {
	return s.prefix + ":partition:" + p.String()
}

func (s *RedisStore) completedSetKey() string {
	return s.prefix + ":completed"
}
