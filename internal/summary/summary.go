// Package summary rolls per-process activity tables up to one row per
// process and joins them onto the process table.
package summary

import (
	"github.com/Velocidex/ordereddict"

	"entitygraph/internal/join"
	"entitygraph/internal/reduce"
	"entitygraph/pkg/models"
)

// TableName is the name of the composed table.
const TableName = "process_summary"

// Registry rolls process_registry rows up per pid_hash.
func Registry(rows []models.ProcessRegistry) []models.RegistrySummary {
	return reduce.Fold(rows,
		func(r models.ProcessRegistry) string { return r.PidHash },
		func(r models.ProcessRegistry) models.RegistrySummary {
			return models.RegistrySummary{
				PidHash:        r.PidHash,
				RegKeyCount:    1,
				RegReadCount:   r.ReadCount,
				RegWriteCount:  r.WriteCount,
				RegDeleteCount: r.DeleteCount,
			}
		},
		func(s models.RegistrySummary, r models.ProcessRegistry) models.RegistrySummary {
			s.RegKeyCount++
			s.RegReadCount += r.ReadCount
			s.RegWriteCount += r.WriteCount
			s.RegDeleteCount += r.DeleteCount
			return s
		})
}

// Files rolls process_file rows up per pid_hash.
func Files(rows []models.ProcessFile) []models.FileSummary {
	return reduce.Fold(rows,
		func(f models.ProcessFile) string { return f.PidHash },
		func(f models.ProcessFile) models.FileSummary {
			return models.FileSummary{
				PidHash:         f.PidHash,
				FileCount:       1,
				FileReadCount:   f.ReadCount,
				FileWriteCount:  f.WriteCount,
				FileReadBytes:   f.ReadBytes,
				FileWriteBytes:  f.WriteBytes,
				FileDeleteCount: f.DeleteCount,
			}
		},
		func(s models.FileSummary, f models.ProcessFile) models.FileSummary {
			s.FileCount++
			s.FileReadCount += f.ReadCount
			s.FileWriteCount += f.WriteCount
			s.FileReadBytes += f.ReadBytes
			s.FileWriteBytes += f.WriteBytes
			s.FileDeleteCount += f.DeleteCount
			return s
		})
}

// Images rolls process_image_load rows up per pid_hash.
func Images(rows []models.ProcessImageLoad) []models.ImageSummary {
	return reduce.Fold(rows,
		func(i models.ProcessImageLoad) string { return i.PidHash },
		func(i models.ProcessImageLoad) models.ImageSummary {
			return models.ImageSummary{
				PidHash:          i.PidHash,
				ImageCount:       1,
				ImageLoadCount:   i.LoadCount,
				ImageUnloadCount: i.UnloadCount,
			}
		},
		func(s models.ImageSummary, i models.ProcessImageLoad) models.ImageSummary {
			s.ImageCount++
			s.ImageLoadCount += i.LoadCount
			s.ImageUnloadCount += i.UnloadCount
			return s
		})
}

// Inputs carries every per-process summary joined by Compose.
type Inputs struct {
	Registry []models.RegistrySummary
	Files    []models.FileSummary
	Network  []models.NetworkSummary
	Images   []models.ImageSummary
	Labels   []models.LabelSummary
}

type part struct {
	columns []models.Column
	rows    join.Index[string, *ordereddict.Dict]
}

func index[T interface{ Row() *ordereddict.Dict }](columns []models.Column, rows []T, key func(T) string) part {
	idx := make(join.Index[string, *ordereddict.Dict], len(rows))
	for _, r := range rows {
		if _, ok := idx[key(r)]; !ok {
			idx[key(r)] = r.Row()
		}
	}
	return part{columns: nonKey(columns), rows: idx}
}

func nonKey(columns []models.Column) []models.Column {
	out := make([]models.Column, 0, len(columns))
	for _, c := range columns {
		if c.Name != "pid_hash" {
			out = append(out, c)
		}
	}
	return out
}

func (in Inputs) parts() []part {
	return []part{
		index(models.RegistrySummaryColumns, in.Registry, func(s models.RegistrySummary) string { return s.PidHash }),
		index(models.FileSummaryColumns, in.Files, func(s models.FileSummary) string { return s.PidHash }),
		index(models.NetworkSummaryColumns, in.Network, func(s models.NetworkSummary) string { return s.PidHash }),
		index(models.ImageSummaryColumns, in.Images, func(s models.ImageSummary) string { return s.PidHash }),
		index(models.LabelSummaryColumns, in.Labels, func(s models.LabelSummary) string { return s.PidHash }),
	}
}

// Columns is the schema of process_summary: process columns followed by the
// non-key columns of each summary.
func Columns() []models.Column {
	cols := append([]models.Column(nil), models.ProcessColumns...)
	for _, group := range [][]models.Column{
		models.RegistrySummaryColumns,
		models.FileSummaryColumns,
		models.NetworkSummaryColumns,
		models.ImageSummaryColumns,
		models.LabelSummaryColumns,
	} {
		cols = append(cols, nonKey(group)...)
	}
	return cols
}

// Compose left-joins every summary onto the process rows. Each process yields
// exactly one row; domains without activity for a process leave null columns.
func Compose(procs []models.Process, in Inputs) *models.Table {
	parts := in.parts()
	table := models.NewTable(TableName, Columns())
	for _, p := range procs {
		row := p.Row()
		for _, pt := range parts {
			matched := pt.rows.Lookup(p.PidHash)
			for _, c := range pt.columns {
				if matched == nil {
					row.Set(c.Name, nil)
					continue
				}
				v, _ := (*matched).Get(c.Name)
				row.Set(c.Name, v)
			}
		}
		table.Append(row)
	}
	return table
}
