package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/hashicorp/go-multierror"

	"entitygraph/internal/graph/ancestry"
	"entitygraph/internal/logger"
	"entitygraph/internal/metrics"
	"entitygraph/pkg/models"
)

// PartitionReport is the outcome of one partition.
type PartitionReport struct {
	Partition models.Partition
	Status    string
	RawEvents int
	Rows      map[string]int
	Ancestry  ancestry.Stats
	Duration  time.Duration
	Err       error
}

// Report is the outcome of one run.
type Report struct {
	RunID      string
	Partitions []PartitionReport
	err        *multierror.Error
}

// Err returns every partition failure, or nil.
func (r *Report) Err() error {
	return r.err.ErrorOrNil()
}

// Count returns how many partitions ended with status.
func (r *Report) Count(status string) int {
	n := 0
	for _, p := range r.Partitions {
		if p.Status == status {
			n++
		}
	}
	return n
}

// Runner builds and writes partitions on a worker pool.
type Runner struct {
	Source  Source
	Writer  TableWriter
	Options Options
	Workers int
	// Ledger, when set, skips partitions a previous run completed.
	Ledger Ledger
	// Force rebuilds partitions the ledger marks completed.
	Force bool
	RunID string
}

// Run processes parts concurrently. A failing partition does not stop the
// others; completed partitions stay written when ctx is cancelled. The
// returned error aggregates every partition failure.
func (r *Runner) Run(ctx context.Context, parts []models.Partition) (*Report, error) {
	if r.Source == nil || r.Writer == nil {
		return nil, errors.New("runner needs a source and a writer")
	}
	workers := r.Workers
	if workers <= 0 {
		workers = 1
	}

	parts = append([]models.Partition(nil), parts...)
	models.SortPartitions(parts)
	reports := make([]PartitionReport, len(parts))

	pool := pond.NewPool(workers)
	for i, p := range parts {
		i, p := i, p
		pool.Submit(func() {
			reports[i] = r.runPartition(ctx, p)
		})
	}
	pool.StopAndWait()

	report := &Report{RunID: r.RunID, Partitions: reports}
	for _, pr := range reports {
		metrics.Partitions.WithLabelValues(pr.Status).Inc()
		if pr.Err != nil {
			report.err = multierror.Append(report.err, pr.Err)
		}
	}
	return report, report.Err()
}

func (r *Runner) runPartition(ctx context.Context, p models.Partition) PartitionReport {
	start := time.Now()
	rep := PartitionReport{Partition: p}
	log := logger.WithFields(map[string]interface{}{"run_id": r.RunID, "partition": p.String()})

	fail := func(err error) PartitionReport {
		rep.Status = metrics.StatusFailed
		rep.Err = &PartitionError{Partition: p, Err: err}
		rep.Duration = time.Since(start)
		log.Errorf("Partition failed: %v", err)
		return rep
	}

	if err := ctx.Err(); err != nil {
		rep.Status = metrics.StatusCancelled
		log.Warnf("Partition skipped: %v", err)
		return rep
	}

	if r.Ledger != nil && !r.Force {
		done, err := r.Ledger.Completed(ctx, p)
		if err != nil {
			log.Warnf("Ledger lookup failed, rebuilding: %v", err)
		} else if done {
			rep.Status = metrics.StatusSkipped
			log.Infof("Partition already completed")
			return rep
		}
	}

	batch, err := r.Source.Load(ctx, p)
	if err != nil {
		return fail(fmt.Errorf("load: %w", err))
	}
	for domain, events := range batch.Events {
		metrics.RawEvents.WithLabelValues(string(domain)).Add(float64(len(events)))
	}
	rep.RawEvents = batch.Len()

	res, err := Build(ctx, batch, r.Options)
	if err != nil {
		return fail(err)
	}
	rep.Ancestry = res.Ancestry
	metrics.AncestryCycles.Add(float64(res.Ancestry.Cycles))

	rep.Rows = make(map[string]int, len(res.Tables))
	for _, t := range res.Tables {
		if err := r.Writer.WriteTable(ctx, p, t); err != nil {
			return fail(fmt.Errorf("write %s: %w", t.Name, err))
		}
		rep.Rows[t.Name] = t.Len()
		metrics.RowsWritten.WithLabelValues(t.Name).Add(float64(t.Len()))
	}

	if r.Ledger != nil {
		if err := r.Ledger.MarkCompleted(ctx, p, r.RunID, res.Rows()); err != nil {
			log.Warnf("Failed to record completed partition: %v", err)
		}
	}

	rep.Status = metrics.StatusCompleted
	rep.Duration = time.Since(start)
	log.Infof("Partition completed: raw=%d rows=%d cycles=%d missing_parent=%d",
		rep.RawEvents, res.Rows(), res.Ancestry.Cycles, res.Ancestry.MissingParent)
	return rep
}
