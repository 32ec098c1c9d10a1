// Package report renders a run's outcome for the terminal and maps it
// to a process exit code.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"

	"lookout/internal/run"
)

// Mode controls the output format.
type Mode int

const (
	ASCII    Mode = iota // fixed-width terminal table
	Markdown             // GitHub-flavoured Markdown table
)

// Summary renders the counter table for one run outcome.
func Summary(out *run.Outcome, mode Mode) string {
	w := table.NewWriter()
	if mode == ASCII {
		w.SetStyle(table.StyleLight)
	}

	w.AppendHeader(table.Row{"Counter", "Value"})
	w.AppendRows([]table.Row{
		{"records processed", out.Processed},
		{"matched", out.Matched},
		{"unmatched", out.Unmatched},
		{"ignored", out.Ignored},
		{"issues created", out.Created},
		{"recurrence comments", out.Commented},
		{"artifacts skipped", out.SkippedArtifacts},
		{"errored", out.Errored},
	})
	w.AppendFooter(table.Row{"duration", out.Duration.Round(10 * time.Millisecond)})

	if mode == Markdown {
		return w.RenderMarkdown()
	}
	return w.Render()
}

// StatusLine returns the one-line colored verdict printed after the table.
func StatusLine(out *run.Outcome) string {
	job := out.JobName
	if out.BuildID != "" {
		job += "/" + out.BuildID
	}
	switch {
	case out.State == run.StateFailed:
		return color.RedString("run failed: %s", job)
	case out.Errored > 0:
		return color.YellowString("run completed with %d error(s): %s", out.Errored, job)
	default:
		return color.GreenString("run completed: %s", job)
	}
}

// Itemized renders the per-record error list, empty string when clean.
func Itemized(out *run.Outcome) string {
	if len(out.RecordErrors) == 0 && len(out.Warnings) == 0 {
		return ""
	}
	var b strings.Builder
	for _, w := range out.Warnings {
		fmt.Fprintf(&b, "warning: %s\n", w)
	}
	for _, e := range out.RecordErrors {
		fmt.Fprintf(&b, "error: %s\n", e)
	}
	return b.String()
}

// ExitCode maps an outcome to the process exit code: 0 for a clean
// completed run, 1 when any record errored. Precondition failures never
// produce an Outcome and exit 2 at the CLI layer.
func ExitCode(out *run.Outcome) int {
	if out.Errored > 0 {
		return 1
	}
	return 0
}
