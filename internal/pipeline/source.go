package pipeline

import (
	"context"
	"errors"
	"fmt"

	"entitygraph/pkg/models"
)

// Source lists and loads raw partitions.
type Source interface {
	Partitions(ctx context.Context) ([]models.Partition, error)
	Load(ctx context.Context, p models.Partition) (*models.Batch, error)
}

// TableWriter persists entity tables. Writing a table replaces whatever a
// previous run wrote for the same table and partition. Implementations are
// called from several partitions at once.
type TableWriter interface {
	WriteTable(ctx context.Context, p models.Partition, t *models.Table) error
	Close() error
}

// Ledger records which partitions a previous run completed.
type Ledger interface {
	Completed(ctx context.Context, p models.Partition) (bool, error)
	MarkCompleted(ctx context.Context, p models.Partition, runID string, rows int) error
}

// ErrPartition matches every PartitionError with errors.Is.
var ErrPartition = errors.New("partition failed")

// PartitionError is a fatal failure scoped to one partition.
type PartitionError struct {
	Partition models.Partition
	Err       error
}

func (e *PartitionError) Error() string {
	return fmt.Sprintf("%s: %v", e.Partition, e.Err)
}

func (e *PartitionError) Unwrap() error { return e.Err }

func (e *PartitionError) Is(target error) bool { return target == ErrPartition }

// MultiWriter fans every table out to several writers.
type MultiWriter []TableWriter

// WriteTable writes t to every writer, stopping at the first failure.
func (m MultiWriter) WriteTable(ctx context.Context, p models.Partition, t *models.Table) error {
	for _, w := range m {
		if err := w.WriteTable(ctx, p, t); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every writer and returns the first error.
func (m MultiWriter) Close() error {
	var first error
	for _, w := range m {
		if err := w.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
