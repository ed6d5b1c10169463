// Package report prints the end-of-run summary.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/JakeFAU/articlescraper/internal/dispatcher"
	"github.com/JakeFAU/articlescraper/internal/tabular"
)

// Run is everything the summary shows about one invocation.
type Run struct {
	Input    string
	Output   string
	Prepared tabular.PrepareReport
	Summary  dispatcher.Summary
	// DroppedEvents is how many progress events the hub discarded.
	DroppedEvents int64
	// Elapsed is the wall time of the whole command, load to write.
	Elapsed time.Duration
}

// Render writes the per-span table, the totals and the elapsed time to w.
func Render(w io.Writer, run Run) {
	s := run.Summary

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Span", "Range", "Succeeded", "Failed", "Skipped"})
	for i, res := range s.Spans {
		rng := res.Span.String()
		if res.Crashed {
			rng += " crashed"
		}
		t.AppendRow(table.Row{i, rng, res.Succeeded, res.Failed, res.Skipped})
	}
	t.AppendFooter(table.Row{"Total", fmt.Sprintf("%d rows", s.Rows), s.Succeeded, s.Failed, s.Pending})
	t.Render()

	fmt.Fprintf(w, "Input:  %s\n", run.Input)
	if run.Output != "" {
		fmt.Fprintf(w, "Output: %s\n", run.Output)
	}
	if run.Prepared.Blank > 0 || run.Prepared.Duplicates > 0 {
		fmt.Fprintf(w, "Dropped %d blank and %d duplicate URLs before scraping\n",
			run.Prepared.Blank, run.Prepared.Duplicates)
	}
	if run.DroppedEvents > 0 {
		fmt.Fprintf(w, "Progress events dropped: %d\n", run.DroppedEvents)
	}
	if s.RunID != uuid.Nil {
		fmt.Fprintf(w, "Run ID: %s\n", s.RunID)
	}
	fmt.Fprintf(w, "Time taken: %.2f seconds\n", run.Elapsed.Seconds())
}
