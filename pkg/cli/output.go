package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/devicelab-dev/visual-diff/pkg/report"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorGreen  = "\033[32m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
)

// colorsEnabled determines if ANSI colors should be used
var colorsEnabled = true

func init() {
	// Respect NO_COLOR environment variable
	if os.Getenv("NO_COLOR") != "" {
		colorsEnabled = false
		return
	}
	// Check if stdout is a terminal
	if fileInfo, err := os.Stdout.Stat(); err == nil {
		if (fileInfo.Mode() & os.ModeCharDevice) == 0 {
			colorsEnabled = false
		}
	}
}

// color returns the color code if colors are enabled, empty string otherwise
func color(c string) string {
	if colorsEnabled {
		return c
	}
	return ""
}

// printSpecResult prints one spec with its screenshots as they finish.
func printSpecResult(w io.Writer, spec *report.Spec, threshold float64) {
	switch spec.Status {
	case report.StatusPassed:
		fmt.Fprintf(w, "  %s✓%s %s\n", color(colorGreen), color(colorReset), spec.Description)
	case report.StatusPending, report.StatusDisabled:
		fmt.Fprintf(w, "  %s-%s %s\n", color(colorCyan), color(colorReset), spec.Description)
	default:
		fmt.Fprintf(w, "  %s✗%s %s\n", color(colorRed), color(colorReset), spec.Description)
	}

	for _, s := range spec.Screenshots {
		fmt.Fprintf(w, "    %s▸%s %s %s\n", color(colorCyan), color(colorReset), s.Name, describeScreenshot(s, threshold))
	}
	for _, e := range spec.FailedExpectations {
		fmt.Fprintf(w, "    %s╰─%s %s\n", color(colorGray), color(colorReset), firstLine(e.Message))
	}
}

func describeScreenshot(s report.Screenshot, threshold float64) string {
	if !s.HasComparison() {
		return color(colorGray) + "(base saved)" + color(colorReset)
	}

	c := color(colorGreen)
	if s.Mismatch() > threshold {
		c = color(colorRed)
	} else if s.Mismatch() > 0 {
		c = color(colorYellow)
	}
	text := fmt.Sprintf("%s%.2f%% mismatch%s", c, s.Mismatch(), color(colorReset))
	if s.IsSameDimensions != nil && !*s.IsSameDimensions && s.DimensionDifference != nil {
		text += fmt.Sprintf(" %s(size %+d x %+d px)%s",
			color(colorGray), s.DimensionDifference.Width, s.DimensionDifference.Height, color(colorReset))
	}
	return text
}

// printSummary prints the totals table for a finished run.
func printSummary(w io.Writer, run *report.Run, reportDir string) {
	sum := run.Summary()

	fmt.Fprintln(w)
	if sum.Passed > 0 {
		fmt.Fprintf(w, "  %s%d specs passing%s (%s)\n", color(colorGreen), sum.Passed, color(colorReset), formatDuration(run.Duration()))
	}
	if sum.Failed > 0 {
		fmt.Fprintf(w, "  %s%d specs failing%s\n", color(colorRed), sum.Failed, color(colorReset))
	}
	if skipped := sum.Pending + sum.Disabled; skipped > 0 {
		fmt.Fprintf(w, "  %s%d specs skipped%s\n", color(colorCyan), skipped, color(colorReset))
	}
	fmt.Fprintln(w)

	tableWidth := 72
	fmt.Fprintln(w, strings.Repeat("═", tableWidth))
	fmt.Fprintf(w, "  %-38s %6s %6s %8s %10s\n", "Spec", "Status", "Shots", "Mismatch", "Duration")
	fmt.Fprintln(w, strings.Repeat("─", tableWidth))

	run.WalkSpecs(func(_ *report.Suite, spec *report.Spec) {
		status, statusColor := statusLabel(spec.Status)
		name := spec.FullName
		if name == "" {
			name = spec.Description
		}
		if len(name) > 38 {
			name = name[:35] + "..."
		}
		fmt.Fprintf(w, "  %-38s %s%6s%s %6d %8s %10s\n",
			name, statusColor, status, color(colorReset),
			len(spec.Screenshots), worstMismatch(spec), formatDuration(spec.Duration()))
	})

	fmt.Fprintln(w, strings.Repeat("─", tableWidth))
	statusColor := color(colorGreen)
	if sum.Failed > 0 {
		statusColor = color(colorRed)
	}
	fmt.Fprintf(w, "  %s%-38s%s %s%6s%s %6d %8s %10s\n",
		color(colorBold), "TOTAL", color(colorReset),
		statusColor, fmt.Sprintf("%d/%d", sum.Passed, sum.Specs), color(colorReset),
		sum.Screenshots, fmt.Sprintf("%d over", sum.Mismatches), formatDuration(run.Duration()))
	fmt.Fprintln(w, strings.Repeat("═", tableWidth))

	if reportDir != "" {
		fmt.Fprintf(w, "\n  Report: %s\n", reportDir)
	}
}

func statusLabel(s report.Status) (string, string) {
	switch s {
	case report.StatusFailed:
		return "✗ FAIL", color(colorRed)
	case report.StatusPending, report.StatusDisabled:
		return "- SKIP", color(colorCyan)
	default:
		return "✓ PASS", color(colorGreen)
	}
}

func worstMismatch(spec *report.Spec) string {
	worst := -1.0
	for _, s := range spec.Screenshots {
		if s.HasComparison() && s.Mismatch() > worst {
			worst = s.Mismatch()
		}
	}
	if worst < 0 {
		return "-"
	}
	return fmt.Sprintf("%.2f%%", worst)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// formatDuration shows milliseconds below one second, seconds below a
// minute, and minutes with seconds otherwise.
func formatDuration(d time.Duration) string {
	ms := d.Milliseconds()
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	if ms < 60000 {
		return fmt.Sprintf("%.1fs", float64(ms)/1000)
	}
	mins := ms / 60000
	secs := (ms % 60000) / 1000
	return fmt.Sprintf("%dm %ds", mins, secs)
}
