// Package observability provides log setup and formatted output for the CLI.
package observability

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/jonathan/bulk-plasmid-seq/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 10
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

	for _, line := range strings.Split(content, "\n") {
		if len([]rune(line)) > boxWidth-4 {
			line = string([]rune(line)[:boxWidth-7]) + "..."
		}
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, line)
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// PrintRenameMap outputs the stored-name to original-name mapping.
func (p *Printer) PrintRenameMap(renamed types.RenameMap) {
	if len(renamed) == 0 {
		p.printBox("RENAMED FILES", "No files were renamed")
		return
	}

	stored := make([]string, 0, len(renamed))
	for name := range renamed {
		stored = append(stored, name)
	}
	sort.Strings(stored)

	var sb strings.Builder
	for _, name := range stored {
		sb.WriteString(fmt.Sprintf("%s <- %s\n", name, renamed[name]))
	}
	p.printBox("RENAMED FILES", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintRunSummary outputs where a run's results live and how each reference scored.
func (p *Printer) PrintRunSummary(result *types.RunResult) {
	if result == nil || result.Data == nil {
		return
	}
	data := result.Data

	var sb strings.Builder
	if data.Name != "" {
		sb.WriteString(fmt.Sprintf("Run:        %s\n", data.Name))
	}
	if data.Date != "" {
		sb.WriteString(fmt.Sprintf("Date:       %s\n", data.Date))
	}
	sb.WriteString(fmt.Sprintf("Results:    %s\n", data.ResServerID))
	sb.WriteString(fmt.Sprintf("References: %s\n", data.RefServerID))
	if data.AlignmentFile != "" {
		sb.WriteString(fmt.Sprintf("Alignment:  %s\n", data.AlignmentFile))
	}

	if len(result.Summary) > 0 {
		sb.WriteString("\n")
		count := min(len(result.Summary), maxItemsToShow)
		for i := 0; i < count; i++ {
			s := result.Summary[i]
			sb.WriteString(fmt.Sprintf("%s %-28s depth %-6.0f errors %d\n",
				qualityMark(s.Quality), s.Reference, s.Depth, s.Errors))
		}
		if len(result.Summary) > maxItemsToShow {
			sb.WriteString(fmt.Sprintf("... and %d more references\n", len(result.Summary)-maxItemsToShow))
		}
	}

	p.printBox("RUN SUMMARY", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintJob outputs a job's status and stage timeline.
func (p *Printer) PrintJob(job *types.Job) {
	if job == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Job:    %s\n", job.ID))
	sb.WriteString(fmt.Sprintf("Status: %s\n", job.StatusString()))
	if job.ErrorMessage != "" {
		sb.WriteString(fmt.Sprintf("Error:  %s\n", job.ErrorMessage))
	}
	sb.WriteString("\n")
	for _, st := range job.Stages {
		line := fmt.Sprintf("  %-18s %s", st.Name, st.Status)
		if st.DurationMs != nil {
			line += fmt.Sprintf(" (%dms)", *st.DurationMs)
		}
		sb.WriteString(line + "\n")
	}

	p.printBox("JOB", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintArchive outputs the location of a packaged result archive.
func (p *Printer) PrintArchive(serverID, fileName string, size int64) {
	p.printBox("RESULT ARCHIVE", fmt.Sprintf("Session: %s\nFile:    %s\nSize:    %d bytes", serverID, fileName, size))
}

func qualityMark(q types.Quality) string {
	switch q {
	case types.QualityGood:
		return "✓"
	case types.QualityFair:
		return "~"
	default:
		return "✗"
	}
}
