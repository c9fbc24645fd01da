package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/jonathan/job-monitor/internal/types"
)

const consoleRule = 70

// Console prints each batch as a numbered list.
type Console struct {
	w        io.Writer
	header   lipgloss.Style
	title    lipgloss.Style
	label    lipgloss.Style
	link     lipgloss.Style
	ruleLine string
}

// NewConsole creates a console sink writing to w (os.Stdout when nil).
// Colours are only emitted when w is a terminal.
func NewConsole(w io.Writer) *Console {
	if w == nil {
		w = os.Stdout
	}
	r := lipgloss.NewRenderer(w)
	return &Console{
		w:        w,
		header:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("#f5c2e7")),
		title:    r.NewStyle().Bold(true).Foreground(lipgloss.Color("#89dceb")),
		label:    r.NewStyle().Foreground(lipgloss.Color("240")),
		link:     r.NewStyle().Underline(true),
		ruleLine: strings.Repeat("=", consoleRule),
	}
}

// Name implements Sink.
func (c *Console) Name() string { return "console" }

// Notify implements Sink.
func (c *Console) Notify(_ context.Context, postings []types.Posting) error {
	var sb strings.Builder
	sb.WriteString("\n" + c.ruleLine + "\n")
	sb.WriteString(c.header.Render(fmt.Sprintf("NEW JOB LISTINGS FOUND: %d", len(postings))) + "\n")
	sb.WriteString(c.ruleLine + "\n\n")

	for i, p := range postings {
		sb.WriteString(fmt.Sprintf("%d. %s\n", i+1, c.title.Render(p.Title)))
		sb.WriteString(fmt.Sprintf("   %s %s\n", c.label.Render("Company:"), p.Company))
		sb.WriteString(fmt.Sprintf("   %s %s\n", c.label.Render("Location:"), p.Location))
		sb.WriteString(fmt.Sprintf("   %s %s\n", c.label.Render("Source:"), p.Source))
		if p.URL != "" {
			sb.WriteString(fmt.Sprintf("   %s %s\n", c.label.Render("URL:"), c.link.Render(p.URL)))
		}
		sb.WriteString("\n")
	}
	sb.WriteString(c.ruleLine + "\n")

	_, err := io.WriteString(c.w, sb.String())
	return err
}
