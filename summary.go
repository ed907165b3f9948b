package reportsmith

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/reportsmith/reportsmith/events"
)

// SummaryFormatter renders a run summary for display
type SummaryFormatter interface {
	Format(summary *events.Summary, duration time.Duration) string
}

// ConsoleSummaryFormatter renders the run summary as a console table
type ConsoleSummaryFormatter struct{}

func NewConsoleSummaryFormatter() *ConsoleSummaryFormatter {
	return &ConsoleSummaryFormatter{}
}

func (f *ConsoleSummaryFormatter) Format(summary *events.Summary, duration time.Duration) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleColoredDark)
	t.SetTitle("Report Summary (%s)", formatDuration(duration))

	t.AppendHeader(table.Row{"Metric", "Count"})
	t.AppendRows([]table.Row{
		{"Files", summary.Files},
		{"Suites", summary.Suites},
		{"Tests", summary.Tests},
		{"Passed", summary.Passed},
		{"Failed", summary.Failed},
		{"Skipped", summary.Skipped},
	})
	if summary.HookFailures > 0 {
		t.AppendRow(table.Row{"Hook failures", summary.HookFailures})
	}
	if summary.UnknownEvents > 0 {
		t.AppendRow(table.Row{"Unknown events", summary.UnknownEvents})
	}
	if summary.MalformedLines > 0 {
		t.AppendRow(table.Row{"Malformed lines", summary.MalformedLines})
	}
	t.AppendFooter(table.Row{"Result", resultString(summary)})

	return t.Render()
}

func resultString(summary *events.Summary) string {
	if summary.HasFailures() {
		return text.FgRed.Sprint("✗ fail")
	}
	if summary.Tests > 0 && summary.Tests == summary.Skipped {
		return text.FgYellow.Sprint("- skip")
	}
	return text.FgGreen.Sprint("✓ pass")
}

// formatDuration rounds to a sensible precision for display
func formatDuration(d time.Duration) string {
	switch {
	case d < time.Millisecond:
		return fmt.Sprintf("%dµs", d.Microseconds())
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	default:
		return d.Round(10 * time.Millisecond).String()
	}
}
