// Package observability provides formatted output utilities for the CLI.
package observability

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/jonathan/job-monitor/internal/ingest"
	"github.com/jonathan/job-monitor/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
)

// Printer handles formatted output for CLI commands
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	lines := strings.Split(strings.TrimRight(content, "\n"), "\n")
	for _, line := range lines {
		// Truncate long lines
		if r := []rune(line); len(r) > boxWidth-4 {
			line = string(r[:boxWidth-7]) + "..."
		}
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, line)
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// PrintStatistics outputs the aggregate store view.
func (p *Printer) PrintStatistics(stats types.Statistics) {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Total postings:   %d\n", stats.Total))
	sb.WriteString(fmt.Sprintf("New postings:     %d\n", stats.NovelCount))
	sb.WriteString(fmt.Sprintf("Runs (last 24h):  %d\n", stats.RunsLast24h))

	if len(stats.BySource) > 0 {
		sb.WriteString("\nBy source:\n")
		sources := make([]string, 0, len(stats.BySource))
		for s := range stats.BySource {
			sources = append(sources, s)
		}
		sort.Strings(sources)
		for _, s := range sources {
			sb.WriteString(fmt.Sprintf("  • %-14s %d\n", s, stats.BySource[s]))
		}
	}

	p.printBox("JOB MONITOR STATISTICS", sb.String())
}

// PrintPostings lists stored postings, one block per posting.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) PrintPostings(title string, postings []types.PersistedPosting) {
	if len(postings) == 0 {
		p.printBox(title, "No postings.")
		return
	}

	var sb strings.Builder
	for i, posting := range postings {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(fmt.Sprintf("%d. %s\n", i+1, posting.Title))
		sb.WriteString(fmt.Sprintf("   %s · %s\n", posting.Company, posting.Location))
		sb.WriteString(fmt.Sprintf("   [%s] first seen %s\n", posting.Source, posting.FirstSeen.Local().Format(time.DateTime)))
	}
	p.printBox(fmt.Sprintf("%s (%d)", title, len(postings)), sb.String())

	// Links are printed outside the box so they are never truncated.
	for i, posting := range postings {
		if posting.URL != "" {
			fmt.Fprintf(p.out, "  %d. %s\n", i+1, posting.URL)
		}
	}
}

// PrintCycleReport outputs a summary of one ingestion cycle.
func (p *Printer) PrintCycleReport(report *ingest.CycleReport) {
	if report == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Cycle:    %s\n", report.ID))
	sb.WriteString(fmt.Sprintf("Status:   %s\n", report.Status))
	sb.WriteString(fmt.Sprintf("Duration: %s\n", report.Duration().Round(time.Millisecond)))
	sb.WriteString(fmt.Sprintf("Found:    %d\n", report.Found()))
	sb.WriteString(fmt.Sprintf("New:      %d\n", len(report.Novel)))
	if report.Cancelled {
		sb.WriteString("Cancelled before all queries ran\n")
	}

	for _, q := range report.Queries {
		sb.WriteString(fmt.Sprintf("\n%q in %q\n", q.Query.SearchTerm, q.Query.Location))
		sb.WriteString(fmt.Sprintf("  found %d, new %d", q.Found, q.Novel))
		if q.Filtered > 0 {
			sb.WriteString(fmt.Sprintf(", filtered %d", q.Filtered))
		}
		if q.Failed > 0 {
			sb.WriteString(fmt.Sprintf(", not stored %d", q.Failed))
		}
		sb.WriteString("\n")

		failed := make([]string, 0, len(q.SourceErrors))
		for s := range q.SourceErrors {
			failed = append(failed, s)
		}
		sort.Strings(failed)
		for _, s := range failed {
			sb.WriteString(fmt.Sprintf("  ✗ %s: %s\n", s, q.SourceErrors[s]))
		}
	}

	if len(report.Novel) > 0 {
		sb.WriteString("\nNew postings:\n")
		count := min(len(report.Novel), maxItemsToShow)
		for i := 0; i < count; i++ {
			n := report.Novel[i]
			sb.WriteString(fmt.Sprintf("  • %s (%s)\n", n.Title, n.Company))
		}
		if len(report.Novel) > maxItemsToShow {
			sb.WriteString(fmt.Sprintf("  ... and %d more\n", len(report.Novel)-maxItemsToShow))
		}
	}

	if report.Notification.Attempted() {
		sb.WriteString("\nNotified: " + strings.Join(report.Notification.Delivered, ", ") + "\n")
		p.appendFailures(&sb, report.Notification.Failed)
	}

	p.printBox("INGESTION CYCLE", sb.String())
}

// PrintNotifyReport outputs the per-sink outcome of a test notification.
func (p *Printer) PrintNotifyReport(delivered []string, failed map[string]string) {
	var sb strings.Builder
	for _, name := range delivered {
		sb.WriteString(fmt.Sprintf("✓ %s\n", name))
	}
	p.appendFailures(&sb, failed)
	if sb.Len() == 0 {
		sb.WriteString("No sinks configured.")
	}
	p.printBox("NOTIFICATION TEST", sb.String())
}

func (p *Printer) appendFailures(sb *strings.Builder, failed map[string]string) {
	names := make([]string, 0, len(failed))
	for name := range failed {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		sb.WriteString(fmt.Sprintf("✗ %s: %s\n", name, failed[name]))
	}
}
