package report

import (
	"bytes"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/devicelab-dev/visual-diff/pkg/core"
)

// HTMLFile is the name of the rendered report.
const HTMLFile = "report.html"

// HTMLConfig contains configuration for HTML report generation.
type HTMLConfig struct {
	OutputPath string // Path to write the HTML file (default: <dir>/report.html)
	Title      string // Overrides the run title
}

// GenerateHTML renders report.html from the report.json in reportDir. Images
// are loaded from the stored paths.
func GenerateHTML(reportDir string, cfg HTMLConfig) error {
	run, err := ReadJSON(reportDir)
	if err != nil {
		return fmt.Errorf("read report: %w", err)
	}
	return WriteHTML(reportDir, run, cfg)
}

// WriteHTML renders run to <dir>/report.html with every image inlined as a
// data URL, so the file can be moved or attached on its own.
func WriteHTML(dir string, run *Run, cfg HTMLConfig) error {
	if cfg.OutputPath == "" {
		cfg.OutputPath = filepath.Join(dir, HTMLFile)
	}
	if cfg.Title == "" {
		cfg.Title = run.Title
	}

	html, err := renderHTML(buildHTMLData(run, cfg))
	if err != nil {
		return fmt.Errorf("render html: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.OutputPath), 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}
	if err := os.WriteFile(cfg.OutputPath, []byte(html), 0o644); err != nil {
		return fmt.Errorf("write html: %w", err)
	}
	return nil
}

// HTMLData contains all data needed for the HTML template.
type HTMLData struct {
	Title       string
	GeneratedAt string
	Duration    string
	Mode        string
	Threshold   string
	Summary     Summary
	PassRate    float64
	PieStyle    template.CSS
	Suites      []SuiteHTMLData
}

// SuiteHTMLData contains suite data formatted for HTML.
type SuiteHTMLData struct {
	*Suite
	StatusClass string
	DurationStr string
	Specs       []SpecHTMLData
	Suites      []SuiteHTMLData
}

// SpecHTMLData contains spec data formatted for HTML.
type SpecHTMLData struct {
	*Spec
	StatusClass string
	DurationStr string
	Screenshots []ScreenshotHTMLData
}

// ScreenshotHTMLData contains screenshot data formatted for HTML.
type ScreenshotHTMLData struct {
	Name           string
	Images         []ImageHTMLData
	Compared       bool
	Passed         bool
	Mismatch       string
	SameDimensions bool
	DimensionDelta string
	AnalysisTime   string
}

// ImageHTMLData is one inlined image.
type ImageHTMLData struct {
	Label string
	Kind  core.ImageKind
	URL   template.URL
}

func buildHTMLData(run *Run, cfg HTMLConfig) HTMLData {
	sum := run.Summary()

	var passRate float64
	if sum.Specs > 0 {
		passRate = float64(sum.Passed) / float64(sum.Specs) * 100
	}

	suites := make([]SuiteHTMLData, 0, len(run.Suites))
	for _, s := range run.Suites {
		suites = append(suites, buildSuiteHTML(s, run.MismatchThreshold))
	}

	return HTMLData{
		Title:       cfg.Title,
		GeneratedAt: time.Now().Format("2006-01-02 15:04:05"),
		Duration:    formatDuration(run.Duration()),
		Mode:        run.Mode,
		Threshold:   fmt.Sprintf("%.2f%%", run.MismatchThreshold),
		Summary:     sum,
		PassRate:    passRate,
		PieStyle:    pieStyle(sum),
		Suites:      suites,
	}
}

func buildSuiteHTML(s *Suite, threshold float64) SuiteHTMLData {
	data := SuiteHTMLData{
		Suite:       s,
		StatusClass: "passed",
		DurationStr: formatDuration(s.Duration()),
	}
	if s.Failures > 0 {
		data.StatusClass = "failed"
	}

	for _, sp := range s.Specs {
		data.Specs = append(data.Specs, buildSpecHTML(sp, threshold))
	}
	for _, child := range s.Suites {
		childData := buildSuiteHTML(child, threshold)
		if childData.StatusClass == "failed" {
			data.StatusClass = "failed"
		}
		data.Suites = append(data.Suites, childData)
	}
	return data
}

func buildSpecHTML(sp *Spec, threshold float64) SpecHTMLData {
	data := SpecHTMLData{
		Spec:        sp,
		StatusClass: string(sp.Status),
		DurationStr: formatDuration(sp.Duration()),
	}
	for _, shot := range sp.Screenshots {
		data.Screenshots = append(data.Screenshots, buildScreenshotHTML(shot, threshold))
	}
	return data
}

func buildScreenshotHTML(s Screenshot, threshold float64) ScreenshotHTMLData {
	data := ScreenshotHTMLData{
		Name:     s.Name,
		Compared: s.HasComparison(),
		Passed:   true,
	}

	for _, a := range s.Attachments() {
		url := a.DataURL()
		if url == "" {
			url = loadAsBase64(a.Path)
		}
		if url == "" {
			continue
		}
		data.Images = append(data.Images, ImageHTMLData{
			Label: imageLabel(a.Kind),
			Kind:  a.Kind,
			// Data URLs built here are trusted; html/template would otherwise replace them
			URL: template.URL(url),
		})
	}

	if data.Compared {
		data.Passed = s.Mismatch() <= threshold
		data.Mismatch = fmt.Sprintf("%.2f%%", s.Mismatch())
		data.SameDimensions = s.IsSameDimensions == nil || *s.IsSameDimensions
		if s.DimensionDifference != nil && !s.DimensionDifference.IsZero() {
			data.DimensionDelta = fmt.Sprintf("%+d x %+d px", s.DimensionDifference.Width, s.DimensionDifference.Height)
		}
		if s.AnalysisTime != nil {
			data.AnalysisTime = formatDuration(*s.AnalysisTime)
		}
	}
	return data
}

func imageLabel(kind core.ImageKind) string {
	switch kind {
	case core.KindBase:
		return "Base"
	case core.KindCurrent:
		return "Current"
	case core.KindDiff:
		return "Diff"
	}
	return string(kind)
}

// pieStyle draws the pass/fail/pending split as a conic gradient.
func pieStyle(sum Summary) template.CSS {
	if sum.Specs == 0 {
		return template.CSS("background: var(--bg-tertiary);")
	}
	total := float64(sum.Specs)
	passed := float64(sum.Passed) / total * 100
	failed := passed + float64(sum.Failed)/total*100
	return template.CSS(fmt.Sprintf(
		"background: conic-gradient(var(--passed) 0 %.1f%%, var(--failed) %.1f%% %.1f%%, var(--skipped) %.1f%% 100%%);",
		passed, passed, failed, failed))
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
}

func loadAsBase64(path string) string {
	if path == "" {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	ext := strings.ToLower(filepath.Ext(path))
	mimeType := core.ContentTypePNG
	if ext == ".jpg" || ext == ".jpeg" {
		mimeType = core.ContentTypeJPEG
	}
	return core.DataURL(mimeType, data)
}

func renderHTML(data HTMLData) (string, error) {
	tmpl, err := template.New("report").Parse(htmlTemplate)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}

	return buf.String(), nil
}

const htmlTemplate = `{{define "suite"}}
<section class="suite {{.StatusClass}}">
    <details open>
        <summary class="suite-header">
            <span class="status-dot {{.StatusClass}}"></span>
            <span class="suite-name">{{.Description}}</span>
            <span class="suite-meta">
                {{if .Failures}}<span class="count failed">{{.Failures}} failed</span>{{end}}
                {{if .Skipped}}<span class="count skipped">{{.Skipped}} skipped</span>{{end}}
                {{if .Disabled}}<span class="count disabled">{{.Disabled}} disabled</span>{{end}}
                {{if .HasScreenshots}}<span class="count">screenshots</span>{{end}}
                <span>{{.DurationStr}}</span>
            </span>
        </summary>
        <div class="suite-body">
            {{range .Specs}}
            <article class="spec {{.StatusClass}}">
                <div class="spec-header">
                    <span class="status-dot {{.StatusClass}}"></span>
                    <span class="spec-name">{{.Description}}</span>
                    <span class="spec-status">{{.Status}}</span>
                    <span class="spec-duration">{{.DurationStr}}</span>
                </div>
                {{if .PendingReason}}<div class="pending-reason">{{.PendingReason}}</div>{{end}}
                {{if .FailedExpectations}}
                <ul class="expectations">
                    {{range .FailedExpectations}}<li>{{.Message}}</li>{{end}}
                </ul>
                {{end}}
                {{range .Screenshots}}
                <div class="screenshot {{if .Passed}}passed{{else}}failed{{end}}">
                    <div class="screenshot-header">
                        <span class="screenshot-name">{{.Name}}</span>
                        {{if .Compared}}
                        <span class="mismatch">mismatch {{.Mismatch}}</span>
                        {{if not .SameDimensions}}<span class="dimensions">size changed {{.DimensionDelta}}</span>{{end}}
                        {{if .AnalysisTime}}<span class="analysis">analysed in {{.AnalysisTime}}</span>{{end}}
                        {{else}}
                        <span class="mismatch">base image</span>
                        {{end}}
                    </div>
                    <div class="images">
                        {{range .Images}}
                        <figure class="image {{.Kind}}">
                            <figcaption>{{.Label}}</figcaption>
                            <a href="{{.URL}}" target="_blank"><img src="{{.URL}}" alt="{{.Label}}"></a>
                        </figure>
                        {{end}}
                    </div>
                </div>
                {{end}}
            </article>
            {{end}}
            {{range .Suites}}{{template "suite" .}}{{end}}
        </div>
    </details>
</section>
{{end}}<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Title}}</title>
    <style>
        :root {
            --bg-primary: #ffffff;
            --bg-secondary: #f9fafb;
            --bg-tertiary: #f3f4f6;
            --text-primary: #000000;
            --text-secondary: rgb(75, 85, 99);
            --text-muted: rgb(107, 114, 128);
            --border-color: #e5e7eb;
            --passed: #22c55e;
            --passed-bg: rgba(34, 197, 94, 0.1);
            --failed: #ef4444;
            --failed-bg: rgba(239, 68, 68, 0.08);
            --skipped: #eab308;
            --pending: #6b7280;
            --accent: #06b6d4;
        }

        * {
            box-sizing: border-box;
            margin: 0;
            padding: 0;
        }

        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
            background: var(--bg-primary);
            color: var(--text-primary);
            line-height: 1.5;
        }

        .header {
            background: var(--bg-secondary);
            border-bottom: 1px solid var(--border-color);
            padding: 16px 24px;
            display: flex;
            gap: 24px;
            align-items: center;
            flex-wrap: wrap;
        }

        .header-title-main {
            font-size: 18px;
            font-weight: 600;
        }

        .header-title-sub {
            font-size: 12px;
            color: var(--text-secondary);
        }

        .pie-chart {
            width: 80px;
            height: 80px;
            border-radius: 50%;
            position: relative;
        }

        .pie-center {
            position: absolute;
            top: 50%;
            left: 50%;
            transform: translate(-50%, -50%);
            background: var(--bg-secondary);
            width: 50px;
            height: 50px;
            border-radius: 50%;
            display: flex;
            align-items: center;
            justify-content: center;
            font-size: 14px;
            font-weight: 600;
        }

        .env-card {
            background: var(--bg-primary);
            border: 1px solid var(--border-color);
            border-radius: 8px;
            padding: 12px 16px;
            display: grid;
            grid-template-columns: repeat(2, 1fr);
            gap: 4px 24px;
            font-size: 13px;
        }

        .env-label {
            color: var(--text-muted);
            margin-right: 8px;
        }

        main {
            padding: 24px;
        }

        .suite {
            border: 1px solid var(--border-color);
            border-radius: 8px;
            margin-bottom: 12px;
            background: var(--bg-primary);
        }

        .suite.failed {
            background: linear-gradient(90deg, var(--failed-bg) 0%, var(--bg-primary) 50%);
        }

        .suite-header {
            display: flex;
            align-items: center;
            gap: 8px;
            padding: 10px 14px;
            cursor: pointer;
        }

        .suite-name {
            font-weight: 600;
            flex: 1;
        }

        .suite-meta {
            display: flex;
            gap: 12px;
            font-size: 12px;
            color: var(--text-muted);
        }

        .count.failed { color: var(--failed); }
        .count.skipped { color: var(--skipped); }

        .suite-body {
            padding: 0 14px 12px 30px;
        }

        .spec {
            border-top: 1px solid var(--border-color);
            padding: 10px 0;
        }

        .spec-header {
            display: flex;
            align-items: center;
            gap: 8px;
        }

        .spec-name {
            flex: 1;
        }

        .spec-status, .spec-duration {
            font-size: 12px;
            color: var(--text-muted);
        }

        .status-dot {
            width: 10px;
            height: 10px;
            border-radius: 50%;
            flex-shrink: 0;
        }

        .status-dot.passed { background: var(--passed); }
        .status-dot.failed { background: var(--failed); }
        .status-dot.pending { background: var(--skipped); }
        .status-dot.disabled { background: var(--pending); }
        .status-dot.running { background: var(--accent); }

        .expectations {
            margin: 8px 0 0 18px;
            font-size: 13px;
            color: var(--failed);
            font-family: ui-monospace, monospace;
        }

        .pending-reason {
            font-size: 13px;
            color: var(--text-secondary);
        }

        .screenshot {
            margin-top: 10px;
            padding: 10px;
            background: var(--bg-secondary);
            border-radius: 6px;
            border-left: 3px solid var(--passed);
        }

        .screenshot.failed {
            border-left-color: var(--failed);
        }

        .screenshot-header {
            display: flex;
            gap: 12px;
            font-size: 13px;
            margin-bottom: 8px;
        }

        .screenshot-name {
            font-weight: 500;
        }

        .mismatch, .dimensions, .analysis {
            color: var(--text-muted);
        }

        .images {
            display: flex;
            gap: 12px;
            flex-wrap: wrap;
        }

        .image figcaption {
            font-size: 11px;
            color: var(--text-muted);
        }

        .image img {
            max-width: 360px;
            border: 1px solid var(--border-color);
            background: repeating-conic-gradient(var(--bg-tertiary) 0 25%, var(--bg-primary) 0 50%) 50% / 16px 16px;
        }

        .empty-state {
            color: var(--text-muted);
            text-align: center;
            padding: 48px;
        }
    </style>
</head>
<body>
    <div class="header">
        <div class="header-title">
            <div class="header-title-main">{{.Title}}</div>
            <div class="header-title-sub">Generated {{.GeneratedAt}} &middot; {{.Duration}}</div>
        </div>
        <div class="pie-chart" style="{{.PieStyle}}">
            <div class="pie-center">{{printf "%.0f" .PassRate}}%</div>
        </div>
        <div class="env-card">
            <div><span class="env-label">Specs</span>{{.Summary.Specs}}</div>
            <div><span class="env-label">Passed</span>{{.Summary.Passed}}</div>
            <div><span class="env-label">Failed</span>{{.Summary.Failed}}</div>
            <div><span class="env-label">Pending</span>{{.Summary.Pending}}</div>
            <div><span class="env-label">Screenshots</span>{{.Summary.Screenshots}}</div>
            <div><span class="env-label">Mismatches</span>{{.Summary.Mismatches}}</div>
            {{if .Mode}}<div><span class="env-label">Mode</span>{{.Mode}}</div>{{end}}
            <div><span class="env-label">Threshold</span>{{.Threshold}}</div>
        </div>
    </div>
    <main>
        {{range .Suites}}{{template "suite" .}}{{else}}<div class="empty-state">No specs were run</div>{{end}}
    </main>
</body>
</html>
`
