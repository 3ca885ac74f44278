package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"entitygraph/internal/entity"
	"entitygraph/internal/graph/adjacency"
	"entitygraph/internal/graph/ancestry"
	"entitygraph/internal/netagg"
	"entitygraph/internal/reduce"
	"entitygraph/internal/rules"
	"entitygraph/internal/summary"
	"entitygraph/pkg/models"
)

// Table names.
const (
	TableProcess       = "process"
	TableProcessStop   = "process_stop"
	TableConnIncrement = "process_conn_incr"
	TableConnection    = "process_net_conn"
	TableNetSummary    = "process_net_summary"
	TableFile          = "file"
	TableProcessFile   = "process_file"
	TableRegistry      = "process_registry"
	TableImageLoad     = "process_image_load"
	TableLabel         = "process_label"
	TableAncestry      = "process_ancestry"
	TableSummary       = summary.TableName
	TableGraph         = adjacency.TableName
)

// TableSpec names a table and its schema.
type TableSpec struct {
	Name    string
	Columns []models.Column
}

// Schemas lists every table Build can emit, in write order.
func Schemas() []TableSpec {
	return []TableSpec{
		{TableProcess, models.ProcessColumns},
		{TableProcessStop, models.ProcessStopTableColumns},
		{TableConnIncrement, models.ConnIncrementColumns},
		{TableConnection, models.ConnectionColumns},
		{TableNetSummary, models.NetworkSummaryColumns},
		{TableFile, models.FileColumns},
		{TableProcessFile, models.ProcessFileColumns},
		{TableRegistry, models.ProcessRegistryColumns},
		{TableImageLoad, models.ProcessImageLoadColumns},
		{TableLabel, models.DetectionLabelColumns},
		{TableAncestry, models.AncestryColumns},
		{TableSummary, summary.Columns()},
		{TableGraph, models.AdjacencyColumns},
	}
}

// Options configure entity construction.
type Options struct {
	Reduce      reduce.Options
	BucketWidth time.Duration
	Ancestry    ancestry.Options
	// Rules labels processes; nil disables rule labels.
	Rules rules.Engine
	// Graph adds the process_graph table.
	Graph        bool
	GraphOptions adjacency.MapperOptions
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		Reduce:      reduce.DefaultOptions(),
		BucketWidth: netagg.DefaultBucketWidth,
		Ancestry:    ancestry.Options{Workers: 1},
	}
}

// Result holds every table built from one partition.
type Result struct {
	Partition models.Partition
	Tables    []*models.Table
	Ancestry  ancestry.Stats
}

// Table returns the named table or nil.
func (r *Result) Table(name string) *models.Table {
	for _, t := range r.Tables {
		if t.Name == name {
			return t
		}
	}
	return nil
}

// Rows returns the total row count across tables.
func (r *Result) Rows() int {
	n := 0
	for _, t := range r.Tables {
		n += t.Len()
	}
	return n
}

// Build resolves one partition into its entity tables. It shares no state
// between calls, so partitions can be built concurrently.
func Build(ctx context.Context, batch *models.Batch, opts Options) (*Result, error) {
	if batch == nil {
		return nil, errors.New("nil batch")
	}
	ro := opts.Reduce

	starts, stopRows := entity.SplitLifecycle(batch.Domain(models.DomainProcess), batch.Domain(models.DomainProcessStop))
	stops := entity.BuildStops(stopRows, ro)
	procs := entity.Merge(entity.BuildProcesses(starts, ro), stops)

	incs, conns, netSums := netagg.Aggregate(batch.Domain(models.DomainConnIncr), opts.BucketWidth)

	fileRows := batch.Domain(models.DomainFile)
	files := entity.BuildFiles(fileRows, ro)
	procFiles := entity.BuildProcessFiles(fileRows, ro)
	registry := entity.BuildProcessRegistry(batch.Domain(models.DomainRegistry), ro)
	images := entity.BuildProcessImageLoads(batch.Domain(models.DomainImageLoad), ro)

	labels := mergeLabels(rules.ApplyAll(opts.Rules, procs), batch.Labels)

	paths, err := ancestry.Build(ctx, procs, opts.Ancestry)
	if err != nil {
		return nil, fmt.Errorf("build ancestry: %w", err)
	}

	composed := summary.Compose(procs, summary.Inputs{
		Registry: summary.Registry(registry),
		Files:    summary.Files(procFiles),
		Network:  netSums,
		Images:   summary.Images(images),
		Labels:   summary.Labels(labels),
	})

	res := &Result{
		Partition: batch.Partition,
		Ancestry:  ancestry.Summarize(paths),
		Tables: []*models.Table{
			models.ToTable(TableProcess, models.ProcessColumns, procs),
			models.ToTable(TableProcessStop, models.ProcessStopTableColumns, stops),
			models.ToTable(TableConnIncrement, models.ConnIncrementColumns, incs),
			models.ToTable(TableConnection, models.ConnectionColumns, conns),
			models.ToTable(TableNetSummary, models.NetworkSummaryColumns, netSums),
			models.ToTable(TableFile, models.FileColumns, files),
			models.ToTable(TableProcessFile, models.ProcessFileColumns, procFiles),
			models.ToTable(TableRegistry, models.ProcessRegistryColumns, registry),
			models.ToTable(TableImageLoad, models.ProcessImageLoadColumns, images),
			models.ToTable(TableLabel, models.DetectionLabelColumns, labels),
			models.ToTable(TableAncestry, models.AncestryColumns, paths),
			composed,
		},
	}

	if opts.Graph {
		rows := adjacency.NewMapper(opts.GraphOptions).Map(adjacency.Bundle{
			Processes:   procs,
			Files:       procFiles,
			Connections: conns,
			Registry:    registry,
			Images:      images,
			Labels:      labels,
		})
		res.Tables = append(res.Tables, models.ToTable(TableGraph, models.AdjacencyColumns, rows))
	}
	return res, nil
}

// mergeLabels keeps one label per (pid_hash, source, rule_id), sorted by that
// key. External labels without a source are tagged as external.
func mergeLabels(sets ...[]models.DetectionLabel) []models.DetectionLabel {
	var all []models.DetectionLabel
	for _, set := range sets {
		for _, l := range set {
			if l.Source == "" {
				l.Source = models.LabelSourceExternal
			}
			all = append(all, l)
		}
	}
	return reduce.Fold(all,
		func(l models.DetectionLabel) string { return reduce.Key(l.PidHash, l.Source, l.RuleID) },
		func(l models.DetectionLabel) models.DetectionLabel { return l },
		func(cur, _ models.DetectionLabel) models.DetectionLabel { return cur })
}
