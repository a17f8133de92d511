// Package observability provides progress, warning and report output for the CLI.
package observability

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
)

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)
)

// Printer writes user-visible progress. Its methods are safe for
// concurrent use so fan-out workers can report through the same printer.
type Printer struct {
	mu      sync.Mutex
	out     io.Writer
	verbose bool
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer, verbose bool) *Printer {
	if out == nil {
		out = os.Stdout
	}
	return &Printer{out: out, verbose: verbose}
}

// Writer returns the underlying writer
func (p *Printer) Writer() io.Writer {
	return p.out
}

// Step prints a numbered progress line for a job
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) Step(jobID string, n, total int, format string, a ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cyan.Fprintf(p.out, "[%s]", jobID)
	fmt.Fprintf(p.out, " Step %d/%d: %s\n", n, total, fmt.Sprintf(format, a...))
}

// Info prints an informational line
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) Info(format string, a ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, format+"\n", a...)
}

// Detail prints a line only in verbose mode
func (p *Printer) Detail(format string, a ...any) {
	if !p.verbose {
		return
	}
	p.Info(format, a...)
}

// Success prints a green completion line
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) Success(format string, a ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	green.Fprintf(p.out, "✓ %s\n", fmt.Sprintf(format, a...))
}

// Warning prints a yellow warning line carrying the job identifier.
// An empty jobID prints a run-level warning.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) Warning(jobID string, format string, a ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	msg := fmt.Sprintf(format, a...)
	if jobID != "" {
		yellow.Fprintf(p.out, "Warning: [%s] %s\n", jobID, msg)
		return
	}
	yellow.Fprintf(p.out, "Warning: %s\n", msg)
}

// Error prints a red error line
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) Error(format string, a ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	red.Fprintf(p.out, "Error: %s\n", fmt.Sprintf(format, a...))
}

// StageRow is one line of a job's stage report
type StageRow struct {
	Stage    string
	Outcome  string
	Detail   string
	Duration time.Duration
}

// PrintStageReport renders the outcome of every stage of one job as a table
func (p *Printer) PrintStageReport(jobID string, rows []StageRow) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.out, "\nStage report for %s\n", jobID)
	table := tablewriter.NewWriter(p.out)
	table.Header("#", "Stage", "Outcome", "Duration", "Detail")
	for i, r := range rows {
		if err := table.Append([]string{
			fmt.Sprintf("%d", i+1),
			r.Stage,
			r.Outcome,
			formatDuration(r.Duration),
			truncate(r.Detail, 60),
		}); err != nil {
			return err
		}
	}
	return table.Render()
}

// PrintTable renders a header and rows, used for the summary ledger
func (p *Printer) PrintTable(header []string, rows [][]string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	table := tablewriter.NewWriter(p.out)
	cells := make([]any, len(header))
	for i, h := range header {
		cells[i] = h
	}
	table.Header(cells...)
	for _, r := range rows {
		if err := table.Append(r); err != nil {
			return err
		}
	}
	return table.Render()
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(100 * time.Millisecond).String()
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
