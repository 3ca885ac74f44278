package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"

	"entitygraph/internal/ledger"
	"entitygraph/internal/metrics"
	"entitygraph/internal/pipeline"
)

func printReport(out io.Writer, report *pipeline.Report, elapsed time.Duration) {
	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Partition", "Status", "Raw", "Rows", "Cycles", "Missing parent", "Duration", "Error"})
	table.SetAutoWrapText(false)

	for _, pr := range report.Partitions {
		rows := 0
		for _, n := range pr.Rows {
			rows += n
		}
		errText := ""
		if pr.Err != nil {
			errText = pr.Err.Error()
		}
		table.Append([]string{
			pr.Partition.String(),
			pr.Status,
			humanize.Comma(int64(pr.RawEvents)),
			humanize.Comma(int64(rows)),
			strconv.Itoa(pr.Ancestry.Cycles),
			strconv.Itoa(pr.Ancestry.MissingParent),
			pr.Duration.Round(time.Millisecond).String(),
			errText,
		})
	}
	table.SetFooter([]string{
		"run " + shortID(report.RunID),
		fmt.Sprintf("%d ok / %d failed", report.Count(metrics.StatusCompleted), report.Count(metrics.StatusFailed)),
		"", "", "", "",
		elapsed.Round(time.Millisecond).String(),
		fmt.Sprintf("%d skipped", report.Count(metrics.StatusSkipped)+report.Count(metrics.StatusCancelled)),
	})
	table.Render()

	printTableCounts(out, report)
}

// printTableCounts sums rows per table across partitions.
func printTableCounts(out io.Writer, report *pipeline.Report) {
	totals := make(map[string]int)
	for _, pr := range report.Partitions {
		for name, n := range pr.Rows {
			totals[name] += n
		}
	}
	if len(totals) == 0 {
		return
	}
	names := make([]string, 0, len(totals))
	for name := range totals {
		names = append(names, name)
	}
	sort.Strings(names)

	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Table", "Rows"})
	for _, name := range names {
		table.Append([]string{name, humanize.Comma(int64(totals[name]))})
	}
	table.Render()
}

func printSchemas(out io.Writer, specs []pipeline.TableSpec) {
	for _, spec := range specs {
		fmt.Fprintf(out, "%s (%d columns)\n", spec.Name, len(spec.Columns))
		table := tablewriter.NewWriter(out)
		table.SetHeader([]string{"Column", "Type"})
		for _, c := range spec.Columns {
			table.Append([]string{c.Name, string(c.Type)})
		}
		table.Render()
		fmt.Fprintln(out)
	}
}

func printLedger(out io.Writer, entries []ledger.Entry) {
	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Partition", "Run", "Rows", "Completed"})
	for _, e := range entries {
		table.Append([]string{
			e.Partition.String(),
			shortID(e.RunID),
			humanize.Comma(e.Rows),
			humanize.Time(e.CompletedAt),
		})
	}
	table.Render()
}

func shortID(id string) string {
	if i := strings.IndexByte(id, '-'); i > 0 {
		return id[:i]
	}
	return id
}
