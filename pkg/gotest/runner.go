// Package gotest drives the screenshot report lifecycle from Go tests.
//
// Describe and It wrap t.Run: each Describe is a suite, each It a spec.
// Screenshot assertions go through testify on the running spec's *testing.T,
// so a mismatch fails the Go test and the spec in the report alike.
//
//	func TestHome(t *testing.T) {
//		r, _ := gotest.NewRunner(config.Config{})
//		r.Start(1)
//		defer r.Finish()
//		r.Describe(t, "home", func(t *testing.T) {
//			r.It(t, "renders", func(t *testing.T) {
//				r.Screenshot(context.Background(), "home", png)
//			})
//		})
//	}
//
// Specs must not call t.Parallel: the report tracks one running spec.
package gotest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/devicelab-dev/visual-diff/pkg/capture"
	"github.com/devicelab-dev/visual-diff/pkg/config"
	"github.com/devicelab-dev/visual-diff/pkg/logger"
	"github.com/devicelab-dev/visual-diff/pkg/report"
	"github.com/devicelab-dev/visual-diff/pkg/tester"
	"github.com/stretchr/testify/assert"
)

// Runner connects Go subtests to a report.Aggregator and a tester.Tester.
type Runner struct {
	agg    *report.Aggregator
	tester *tester.Tester

	mu      sync.Mutex
	current *specT
	depth   int // open Describe calls
}

// NewRunner creates a runner for cfg. opts are passed to tester.New.
func NewRunner(cfg config.Config, opts ...tester.Option) (*Runner, error) {
	r := &Runner{agg: report.NewAggregator()}
	t, err := tester.New(cfg, r.agg, r, opts...)
	if err != nil {
		return nil, err
	}
	r.tester = t
	return r, nil
}

// Tester returns the underlying tester.
func (r *Runner) Tester() *tester.Tester {
	return r.tester
}

// Aggregator returns the report aggregator.
func (r *Runner) Aggregator() *report.Aggregator {
	return r.agg
}

// Start prepares the image directories and opens the run.
func (r *Runner) Start(totalSpecs int) error {
	if err := r.tester.InitDirectories(); err != nil {
		return err
	}
	r.agg.RunStarted(r.tester.RunInfo(totalSpecs))
	return nil
}

// Finish closes the run and writes the reports.
func (r *Runner) Finish() error {
	return r.tester.Done()
}

// Describe runs fn as a subtest reported as a suite.
func (r *Runner) Describe(t *testing.T, name string, fn func(t *testing.T)) bool {
	t.Helper()
	return t.Run(name, func(t *testing.T) {
		info := report.SuiteInfo{ID: t.Name(), Description: name, FullName: fullName(t.Name())}
		r.enter(1)
		r.agg.SuiteStarted(info)
		defer func() {
			r.agg.SuiteDone(info)
			r.enter(-1)
		}()
		fn(t)
	})
}

// It runs fn as a subtest reported as a spec. The spec fails when the subtest
// fails and is pending when it is skipped. Outside any Describe the spec is
// reported under report.FocusedSuite, which is closed again once it is done.
func (r *Runner) It(t *testing.T, name string, fn func(t *testing.T)) bool {
	t.Helper()
	return t.Run(name, func(t *testing.T) {
		info := report.SpecInfo{ID: t.Name(), Description: name, FullName: fullName(t.Name())}
		st := newSpecT(t)

		topLevel := r.enter(0) == 0
		if topLevel {
			r.agg.SuiteStarted(report.FocusedSuite)
		}
		r.agg.SpecStarted(info)
		r.setCurrent(st)
		defer func() {
			r.setCurrent(nil)
			r.agg.SpecDone(st.result(info))
			if topLevel {
				r.agg.SuiteDone(report.FocusedSuite)
			}
		}()

		fn(t)
	})
}

// Screenshot hands data to the tester for the running spec.
func (r *Runner) Screenshot(ctx context.Context, name string, data interface{}) *report.Screenshot {
	return r.tester.ImageTaken(ctx, name, data)
}

// Element captures el and hands the image to the tester.
func (r *Runner) Element(ctx context.Context, el capture.Element, name string, scrollIntoView bool) *report.Screenshot {
	return r.tester.TakeScreenshot(ctx, el, name, scrollIntoView)
}

// LessOrEqual implements tester.Asserter on the running spec.
func (r *Runner) LessOrEqual(actual, threshold float64, msgAndArgs ...interface{}) bool {
	return assert.LessOrEqual(r.assertT(), actual, threshold, msgAndArgs...)
}

// NoError implements tester.Asserter on the running spec.
func (r *Runner) NoError(err error, msgAndArgs ...interface{}) bool {
	return assert.NoError(r.assertT(), err, msgAndArgs...)
}

// enter adjusts the Describe depth by delta and returns the new depth.
func (r *Runner) enter(delta int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.depth += delta
	return r.depth
}

func (r *Runner) setCurrent(st *specT) {
	r.mu.Lock()
	r.current = st
	r.mu.Unlock()
}

func (r *Runner) assertT() assert.TestingT {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return orphanT{}
	}
	return r.current
}

// fullName turns "TestHome/home/renders" into "home renders".
func fullName(testName string) string {
	parts := strings.Split(testName, "/")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	return strings.ReplaceAll(strings.Join(parts, " "), "_", " ")
}

// specT forwards assertion failures to the spec's test and keeps them for
// the report.
type specT struct {
	tb testing.TB

	mu       sync.Mutex
	failures []report.Expectation
}

func newSpecT(tb testing.TB) *specT {
	return &specT{tb: tb}
}

func (s *specT) Helper() {
	s.tb.Helper()
}

func (s *specT) Errorf(format string, args ...interface{}) {
	s.tb.Helper()
	msg := fmt.Sprintf(format, args...)

	s.mu.Lock()
	s.failures = append(s.failures, parseFailure(msg))
	s.mu.Unlock()

	s.tb.Errorf(format, args...)
}

// result builds the SpecDone info from the finished subtest.
func (s *specT) result(info report.SpecInfo) report.SpecInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.tb.Skipped():
		info.Status = report.StatusPending
		info.PendingReason = "skipped"
	case s.tb.Failed():
		info.Status = report.StatusFailed
		info.FailedExpectations = append([]report.Expectation(nil), s.failures...)
		if len(info.FailedExpectations) == 0 {
			info.FailedExpectations = []report.Expectation{{Message: "test failed"}}
		}
	default:
		info.Status = report.StatusPassed
	}
	return info
}

// parseFailure splits testify's failure block into the error text and the
// trace lines.
func parseFailure(msg string) report.Expectation {
	var message, trace []string
	section := ""
	for _, line := range strings.Split(msg, "\n") {
		trimmed := strings.TrimSpace(line)
		if key, rest, ok := strings.Cut(trimmed, ":"); ok && isTestifyKey(key) {
			section = key
			trimmed = strings.TrimSpace(rest)
		}
		if trimmed == "" {
			continue
		}
		switch section {
		case "Error Trace":
			trace = append(trace, trimmed)
		case "Error", "Messages":
			message = append(message, trimmed)
		case "":
			message = append(message, trimmed)
		}
	}
	return report.Expectation{
		Message: strings.Join(message, "\n"),
		Stack:   strings.Join(trace, "\n"),
	}
}

func isTestifyKey(key string) bool {
	switch key {
	case "Error Trace", "Error", "Test", "Messages":
		return true
	}
	return false
}

// orphanT receives assertions made outside a running spec.
type orphanT struct{}

func (orphanT) Errorf(format string, args ...interface{}) {
	logger.Error("Assertion outside of a spec: %s", strings.TrimSpace(fmt.Sprintf(format, args...)))
}

var _ tester.Asserter = (*Runner)(nil)
