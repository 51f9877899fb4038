// Package tester runs the capture-and-compare flow for named screenshots and
// feeds the outcomes to a reporter.
package tester

import (
	"errors"
	"fmt"
	"sync"

	"github.com/devicelab-dev/visual-diff/pkg/capture"
	"github.com/devicelab-dev/visual-diff/pkg/compare"
	"github.com/devicelab-dev/visual-diff/pkg/config"
	"github.com/devicelab-dev/visual-diff/pkg/logger"
	"github.com/devicelab-dev/visual-diff/pkg/report"
	"github.com/devicelab-dev/visual-diff/pkg/store"
)

// Reporter records screenshot outcomes for the running spec and exposes the
// report tree once the run is done. *report.Aggregator implements it.
type Reporter interface {
	AddScreenshot(s report.Screenshot) error
	RunDone()
	Run() *report.Run
}

// Asserter is the host runner's assertion surface. A failed assertion marks
// the running spec failed without stopping it.
type Asserter interface {
	LessOrEqual(actual, threshold float64, msgAndArgs ...interface{}) bool
	NoError(err error, msgAndArgs ...interface{}) bool
}

// Comparator compares encoded images. *compare.Comparator implements it.
type Comparator interface {
	Compare(base, current []byte) (*compare.Result, error)
}

// Option configures a Tester.
type Option func(*Tester)

// WithCapturer sets the element capture adapter used by TakeScreenshot.
func WithCapturer(c capture.Capturer) Option {
	return func(t *Tester) {
		t.capturer = c
	}
}

// WithComparator replaces the default comparator.
func WithComparator(c Comparator) Option {
	return func(t *Tester) {
		t.comparator = c
	}
}

// Tester captures, stores and compares screenshots for one run.
type Tester struct {
	cfg        config.Config
	store      *store.Store
	reporter   Reporter
	asserter   Asserter
	capturer   capture.Capturer
	comparator Comparator

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New validates cfg, applying defaults, and creates a Tester. Configuration
// errors are returned here and are fatal to the run.
func New(cfg config.Config, reporter Reporter, asserter Asserter, opts ...Option) (*Tester, error) {
	cfg, err := config.New(cfg)
	if err != nil {
		return nil, err
	}
	if reporter == nil {
		return nil, errors.New("tester: reporter is required")
	}
	if asserter == nil {
		return nil, errors.New("tester: asserter is required")
	}

	t := &Tester{
		cfg:        cfg,
		store:      store.New(cfg),
		reporter:   reporter,
		asserter:   asserter,
		comparator: compare.Default(),
		locks:      make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Config returns the effective configuration.
func (t *Tester) Config() config.Config {
	return t.cfg
}

// Store returns the image store.
func (t *Tester) Store() *store.Store {
	return t.store
}

// RunInfo describes this run for report.Lifecycle.RunStarted.
func (t *Tester) RunInfo(totalSpecs int) report.RunInfo {
	return report.RunInfo{
		Title:             t.cfg.Report.Title,
		Mode:              string(t.cfg.Mode),
		MismatchThreshold: t.cfg.MismatchThreshold,
		TotalSpecsDefined: totalSpecs,
	}
}

// InitDirectories resets the image directories for a new run.
func (t *Tester) InitDirectories() error {
	if err := t.store.InitDirectories(); err != nil {
		return err
	}
	logger.Info("Initialized screenshot directories (mode=%s)", t.cfg.Mode)
	return nil
}

// Done closes the run and writes the report documents to the report
// directory: report.html always, report.json and allure-results/ when enabled.
func (t *Tester) Done() error {
	t.reporter.RunDone()
	run := t.reporter.Run()
	dir := t.store.ReportDir()

	if err := report.WriteHTML(dir, run, report.HTMLConfig{Title: t.cfg.Report.Title}); err != nil {
		return fmt.Errorf("write html report: %w", err)
	}
	if t.cfg.Report.WriteJSON() {
		if err := report.WriteJSON(dir, run); err != nil {
			return fmt.Errorf("write json report: %w", err)
		}
	}
	if t.cfg.Report.Allure {
		if err := report.GenerateAllure(dir, run); err != nil {
			return fmt.Errorf("write allure results: %w", err)
		}
	}

	logger.Info("Report written to %s", dir)
	return nil
}

// lockName serializes the write-then-compare sequence per screenshot name.
func (t *Tester) lockName(name string) func() {
	t.mu.Lock()
	l, ok := t.locks[name]
	if !ok {
		l = &sync.Mutex{}
		t.locks[name] = l
	}
	t.mu.Unlock()

	l.Lock()
	return l.Unlock
}
