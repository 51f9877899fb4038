// Package report aggregates suite/spec lifecycle events and screenshot
// outcomes into a report tree, and renders it.
//
// Output (in the report directory):
//   - report.html: self-contained page with base/current/diff images inlined
//   - report.json: the same tree with image paths instead of image bytes
//   - allure-results/: optional Allure results, one per spec
package report

import (
	"time"

	"github.com/devicelab-dev/visual-diff/pkg/compare"
	"github.com/devicelab-dev/visual-diff/pkg/core"
)

// Version is the report.json schema version.
const Version = "1.0.0"

// Status is the execution status of a spec.
type Status string

// Status values.
const (
	StatusPending  Status = "pending"
	StatusRunning  Status = "running"
	StatusPassed   Status = "passed"
	StatusFailed   Status = "failed"
	StatusDisabled Status = "disabled"
)

// IsTerminal returns true if the status is a final state.
func (s Status) IsTerminal() bool {
	return s == StatusPassed || s == StatusFailed || s == StatusPending || s == StatusDisabled
}

// ============================================================================
// LIFECYCLE EVENTS
// ============================================================================

// RunInfo describes a run when it starts.
type RunInfo struct {
	Title             string
	Mode              string
	MismatchThreshold float64
	TotalSpecsDefined int
}

// SuiteInfo identifies a suite in lifecycle events.
type SuiteInfo struct {
	ID          string
	Description string
	FullName    string
}

// SpecInfo identifies a spec in lifecycle events. Status, FailedExpectations
// and PendingReason are only meaningful in SpecDone.
type SpecInfo struct {
	ID                 string
	Description        string
	FullName           string
	Status             Status
	FailedExpectations []Expectation
	PendingReason      string
}

// Expectation is a failed assertion reported by the host runner.
type Expectation struct {
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
}

// Lifecycle receives suite/spec boundaries from a host test runner.
type Lifecycle interface {
	RunStarted(info RunInfo)
	SuiteStarted(info SuiteInfo)
	SpecStarted(info SpecInfo)
	SpecDone(info SpecInfo)
	SuiteDone(info SuiteInfo)
	RunDone()
}

// ============================================================================
// REPORT TREE
// ============================================================================

// Run is the root of the report tree.
type Run struct {
	Version            string     `json:"version"`
	Title              string     `json:"title"`
	Mode               string     `json:"mode,omitempty"`
	MismatchThreshold  float64    `json:"mismatchThreshold"`
	StartTime          time.Time  `json:"startTime"`
	EndTime            *time.Time `json:"endTime,omitempty"`
	TotalSpecsDefined  int        `json:"totalSpecsDefined"`
	TotalSpecsExecuted int        `json:"totalSpecsExecuted"`
	Suites             []*Suite   `json:"suites"`
}

// Finished reports whether RunDone was called.
func (r *Run) Finished() bool {
	return r.EndTime != nil
}

// Duration returns the run duration, or 0 while running.
func (r *Run) Duration() time.Duration {
	if r.EndTime == nil {
		return 0
	}
	return r.EndTime.Sub(r.StartTime)
}

// Suite is a group of specs and nested suites.
type Suite struct {
	ID             string     `json:"id"`
	Description    string     `json:"description"`
	FullName       string     `json:"fullName"`
	StartTime      *time.Time `json:"startTime,omitempty"`
	EndTime        *time.Time `json:"endTime,omitempty"`
	Failures       int        `json:"failures"`
	Skipped        int        `json:"skipped"`
	Disabled       int        `json:"disabled"`
	HasScreenshots bool       `json:"hasScreenshots"`
	Specs          []*Spec    `json:"specs"`
	Suites         []*Suite   `json:"suites"`

	parent  *Suite
	started bool
	done    bool
}

// Parent returns the enclosing suite, or nil for a top-level suite.
func (s *Suite) Parent() *Suite {
	return s.parent
}

// Duration returns the suite duration, or 0 if it has not finished.
func (s *Suite) Duration() time.Duration {
	return between(s.StartTime, s.EndTime)
}

// Spec is a single test case.
type Spec struct {
	ID                 string        `json:"id"`
	Description        string        `json:"description"`
	FullName           string        `json:"fullName"`
	Status             Status        `json:"status"`
	FailedExpectations []Expectation `json:"failedExpectations,omitempty"`
	PendingReason      string        `json:"pendingReason,omitempty"`
	StartTime          *time.Time    `json:"startTime,omitempty"`
	EndTime            *time.Time    `json:"endTime,omitempty"`
	HasScreenshots     bool          `json:"hasScreenshots"`
	Screenshots        []Screenshot  `json:"screenshots"`

	suite *Suite
	done  bool
}

// Suite returns the owning suite.
func (s *Spec) Suite() *Suite {
	return s.suite
}

// Duration returns the spec duration, or 0 if it has not finished.
func (s *Spec) Duration() time.Duration {
	return between(s.StartTime, s.EndTime)
}

// Screenshot is the outcome of one captured screenshot. Comparison fields are
// nil in rebase mode. Image bytes are kept in memory for the HTML report and
// are never serialized; the paths point at the stored files.
type Screenshot struct {
	Name string `json:"name"`

	Base    []byte `json:"-"`
	Current []byte `json:"-"`
	Diff    []byte `json:"-"`

	BasePath    string `json:"basePath,omitempty"`
	CurrentPath string `json:"currentPath,omitempty"`
	DiffPath    string `json:"diffPath,omitempty"`

	MismatchPercentage  *float64           `json:"mismatchPercentage,omitempty"`
	IsSameDimensions    *bool              `json:"isSameDimensions,omitempty"`
	DimensionDifference *compare.Dimension `json:"dimensionDifference,omitempty"`
	AnalysisTime        *time.Duration     `json:"analysisTime,omitempty"` // nanoseconds
}

// NewComparedScreenshot builds a test-mode record from a comparison result.
func NewComparedScreenshot(name string, base, current []byte, result *compare.Result) Screenshot {
	s := Screenshot{
		Name:    name,
		Base:    base,
		Current: current,
	}
	if result == nil {
		return s
	}
	mismatch := result.MismatchPercentage
	same := result.IsSameDimensions
	delta := result.DimensionDifference
	elapsed := result.AnalysisTime
	s.Diff = result.DiffImage
	s.MismatchPercentage = &mismatch
	s.IsSameDimensions = &same
	s.DimensionDifference = &delta
	s.AnalysisTime = &elapsed
	return s
}

// HasComparison reports whether the screenshot was compared against a base.
func (s Screenshot) HasComparison() bool {
	return s.MismatchPercentage != nil
}

// Mismatch returns the mismatch percentage, or 0 when not compared.
func (s Screenshot) Mismatch() float64 {
	if s.MismatchPercentage == nil {
		return 0
	}
	return *s.MismatchPercentage
}

// Attachments returns the base, current and diff images that are present,
// either in memory or on disk, in that order.
func (s Screenshot) Attachments() []core.Attachment {
	var out []core.Attachment
	for _, a := range []struct {
		kind core.ImageKind
		path string
		data []byte
	}{
		{core.KindBase, s.BasePath, s.Base},
		{core.KindCurrent, s.CurrentPath, s.Current},
		{core.KindDiff, s.DiffPath, s.Diff},
	} {
		if a.path == "" && len(a.data) == 0 {
			continue
		}
		out = append(out, core.NewImageAttachment(s.Name, a.kind, a.path, a.data))
	}
	return out
}

// Summary contains aggregated counts over a report tree.
type Summary struct {
	Suites      int `json:"suites"`
	Specs       int `json:"specs"`
	Passed      int `json:"passed"`
	Failed      int `json:"failed"`
	Pending     int `json:"pending"`
	Disabled    int `json:"disabled"`
	Screenshots int `json:"screenshots"`
	Mismatches  int `json:"mismatches"` // Screenshots above the run's threshold
}

func between(start, end *time.Time) time.Duration {
	if start == nil || end == nil {
		return 0
	}
	return end.Sub(*start)
}
