// Package ui renders conversion progress for the pdf2cbz CLI.
package ui

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"

	"github.com/spherical/pdf2cbz/internal/domain"
)

// UI provides user-facing output. In JSON mode only machine-readable output
// reaches stdout and all decoration is suppressed.
type UI struct {
	mu       sync.Mutex
	out      io.Writer
	errOut   io.Writer
	jsonMode bool
	spinner  *spinner.Spinner
	bar      *progressbar.ProgressBar
}

// New creates a UI writing to stdout and stderr.
func New(jsonMode, noColor bool) *UI {
	if noColor || !IsTerminal() {
		color.NoColor = true
	}
	return &UI{out: os.Stdout, errOut: os.Stderr, jsonMode: jsonMode}
}

// Success prints a success message.
func (u *UI) Success(format string, args ...interface{}) {
	u.line(u.out, color.New(color.FgGreen), "✓", format, args...)
}

// Error prints an error message to stderr.
func (u *UI) Error(format string, args ...interface{}) {
	u.line(u.errOut, color.New(color.FgRed), "✗", format, args...)
}

// Warning prints a warning message.
func (u *UI) Warning(format string, args ...interface{}) {
	u.line(u.out, color.New(color.FgYellow), "⚠", format, args...)
}

// Info prints an informational message.
func (u *UI) Info(format string, args ...interface{}) {
	u.line(u.out, color.New(color.FgCyan), "ℹ", format, args...)
}

func (u *UI) line(w io.Writer, c *color.Color, mark, format string, args ...interface{}) {
	if u.jsonMode {
		return
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	c.Fprintf(w, "%s %s\n", mark, fmt.Sprintf(format, args...))
}

// Emit implements domain.EventSink. A spinner follows the current document
// unless a batch bar is already drawing on the terminal.
func (u *UI) Emit(_ context.Context, event domain.StageEvent) {
	u.mu.Lock()
	defer u.mu.Unlock()

	terminal := event.Stage == domain.StageDone || event.Stage == domain.StageFailed
	if terminal {
		if u.spinner != nil {
			u.spinner.Stop()
			u.spinner = nil
		}
		if u.bar != nil {
			_ = u.bar.Add(1)
		}
		return
	}

	if u.jsonMode || u.bar != nil || !IsTerminal() {
		return
	}
	suffix := fmt.Sprintf(" %s  %s", filepath.Base(event.Source), stageLabel(event))
	if u.spinner == nil {
		u.spinner = spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
		u.spinner.Suffix = suffix
		u.spinner.Start()
		return
	}
	u.spinner.Lock()
	u.spinner.Suffix = suffix
	u.spinner.Unlock()
}

// FinishJob prints the outcome of one document.
func (u *UI) FinishJob(res *domain.Result) {
	if u.jsonMode {
		u.JSON(res)
		return
	}
	if res.Succeeded() {
		u.Success("%s -> %s (%d pages, %s)", filepath.Base(res.Source), res.Destination,
			res.Pages, res.Duration.Round(time.Millisecond))
		return
	}
	u.Error("%s: %s", filepath.Base(res.Source), res.Reason)
}

// StartBatch shows a progress bar across several documents.
func (u *UI) StartBatch(total int) {
	if u.jsonMode || total < 2 {
		return
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	u.bar = progressbar.NewOptions(total,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription("documents"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "│",
			BarEnd:        "│",
		}),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(os.Stderr, "\n")
		}),
	)
}

// FinishBatch completes the batch bar.
func (u *UI) FinishBatch() {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.bar != nil {
		_ = u.bar.Finish()
		u.bar = nil
	}
}

// JSON writes v as one line of JSON to stdout.
func (u *UI) JSON(v interface{}) {
	u.mu.Lock()
	defer u.mu.Unlock()
	enc := json.NewEncoder(u.out)
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(u.errOut, "encode output: %v\n", err)
	}
}

// Table prints rows under headers.
func (u *UI) Table(headers []string, rows [][]string) {
	if u.jsonMode {
		return
	}
	u.mu.Lock()
	defer u.mu.Unlock()

	w := tabwriter.NewWriter(u.out, 0, 0, 2, ' ', 0)
	bold := color.New(color.Bold)
	bold.Fprintln(w, strings.Join(headers, "\t"))

	sep := make([]string, len(headers))
	for i := range sep {
		sep[i] = strings.Repeat("-", len(headers[i]))
	}
	fmt.Fprintln(w, strings.Join(sep, "\t"))

	for _, row := range rows {
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	_ = w.Flush()
}

func stageLabel(event domain.StageEvent) string {
	switch event.Stage {
	case domain.StageDone:
		return color.GreenString(event.String())
	case domain.StageFailed:
		return color.RedString(event.String())
	default:
		return color.CyanString(event.String())
	}
}

// FormatBytes formats bytes in a human-readable way.
func FormatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := uint64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// IsTerminal checks if stdout is a terminal.
func IsTerminal() bool {
	fileInfo, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return (fileInfo.Mode() & os.ModeCharDevice) != 0
}
