package report

import (
	"sync"
	"time"

	"github.com/devicelab-dev/visual-diff/pkg/core"
	"github.com/devicelab-dev/visual-diff/pkg/logger"
)

// FocusedSuite stands in for the enclosing suite when a spec starts without
// any suite having started, which happens when a runner executes focused specs.
var FocusedSuite = SuiteInfo{
	ID:          "focused",
	Description: "focused specs",
	FullName:    "focused specs",
}

// Aggregator builds the report tree from lifecycle events and screenshot
// outcomes. It is safe for concurrent use.
type Aggregator struct {
	mu sync.Mutex

	run          *Run
	suites       map[string]*Suite
	specs        map[string]*Spec
	currentSuite *Suite
	currentSpec  *Spec
	now          func() time.Time
}

// NewAggregator creates an Aggregator with an empty, started run.
func NewAggregator() *Aggregator {
	a := &Aggregator{now: time.Now}
	a.reset(RunInfo{})
	return a
}

func (a *Aggregator) reset(info RunInfo) {
	title := info.Title
	if title == "" {
		title = "Screenshots Report"
	}
	a.run = &Run{
		Version:           Version,
		Title:             title,
		Mode:              info.Mode,
		MismatchThreshold: info.MismatchThreshold,
		StartTime:         a.now(),
		TotalSpecsDefined: info.TotalSpecsDefined,
		Suites:            []*Suite{},
	}
	a.suites = make(map[string]*Suite)
	a.specs = make(map[string]*Spec)
	a.currentSuite = nil
	a.currentSpec = nil
}

// RunStarted resets the aggregator for a new run.
func (a *Aggregator) RunStarted(info RunInfo) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.reset(info)
	logger.Debug("Run started: %s", a.run.Title)
}

// SuiteStarted opens a suite under the current suite, or at the top level.
func (a *Aggregator) SuiteStarted(info SuiteInfo) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.startSuiteLocked(info)
}

func (a *Aggregator) startSuiteLocked(info SuiteInfo) *Suite {
	s := a.suiteLocked(info)
	if s.started {
		// Same identity started again: fields merged, node not duplicated.
		// A finished suite reopens so its flags are recomputed on close.
		s.done = false
		a.currentSuite = s
		return s
	}

	now := a.now()
	s.StartTime = &now
	s.started = true
	a.attachSuiteLocked(s, a.currentSuite)
	a.currentSuite = s
	return s
}

func (a *Aggregator) attachSuiteLocked(s, parent *Suite) {
	s.parent = parent
	if parent == nil {
		a.run.Suites = append(a.run.Suites, s)
	} else {
		parent.Suites = append(parent.Suites, s)
	}
}

// suiteLocked returns the node for info.ID, merging non-empty fields into an
// existing node or creating a detached one.
func (a *Aggregator) suiteLocked(info SuiteInfo) *Suite {
	s, ok := a.suites[info.ID]
	if !ok {
		s = &Suite{ID: info.ID, Specs: []*Spec{}, Suites: []*Suite{}}
		a.suites[info.ID] = s
	}
	if info.Description != "" {
		s.Description = info.Description
	}
	if info.FullName != "" {
		s.FullName = info.FullName
	}
	return s
}

// SpecStarted opens a spec in the current suite. Without an open suite the
// spec goes into FocusedSuite.
func (a *Aggregator) SpecStarted(info SpecInfo) {
	a.mu.Lock()
	defer a.mu.Unlock()

	sp := a.specLocked(info)
	if sp.suite == nil {
		a.attachSpecLocked(sp)
	}
	if !sp.done {
		sp.Status = StatusRunning
	}
	a.currentSpec = sp
}

func (a *Aggregator) attachSpecLocked(sp *Spec) {
	if a.currentSuite == nil {
		a.startSuiteLocked(FocusedSuite)
	}
	now := a.now()
	sp.StartTime = &now
	sp.suite = a.currentSuite
	a.currentSuite.Specs = append(a.currentSuite.Specs, sp)
}

func (a *Aggregator) specLocked(info SpecInfo) *Spec {
	sp, ok := a.specs[info.ID]
	if !ok {
		sp = &Spec{ID: info.ID, Status: StatusPending, Screenshots: []Screenshot{}}
		a.specs[info.ID] = sp
	}
	if info.Description != "" {
		sp.Description = info.Description
	}
	if info.FullName != "" {
		sp.FullName = info.FullName
	}
	return sp
}

// SpecDone closes a spec and updates its suite's counters.
func (a *Aggregator) SpecDone(info SpecInfo) {
	a.mu.Lock()
	defer a.mu.Unlock()

	sp := a.specLocked(info)
	if sp.suite == nil {
		// Done without start
		a.attachSpecLocked(sp)
	}
	if a.currentSpec == sp {
		a.currentSpec = nil
	}
	if sp.done {
		logger.Debug("Spec %q reported done twice; ignoring", sp.ID)
		return
	}

	sp.Status = resolveStatus(info)
	sp.FailedExpectations = info.FailedExpectations
	sp.PendingReason = info.PendingReason
	now := a.now()
	sp.EndTime = &now
	sp.HasScreenshots = len(sp.Screenshots) > 0
	sp.done = true

	switch sp.Status {
	case StatusFailed:
		sp.suite.Failures += max(1, len(sp.FailedExpectations))
	case StatusPending:
		sp.suite.Skipped++
	case StatusDisabled:
		sp.suite.Disabled++
	}
	a.run.TotalSpecsExecuted++
}

func resolveStatus(info SpecInfo) Status {
	if info.Status != "" && info.Status != StatusRunning {
		return info.Status
	}
	if len(info.FailedExpectations) > 0 {
		return StatusFailed
	}
	return StatusPassed
}

// SuiteDone closes a suite. A suite that never started (e.g. a disabled one)
// is added as a top-level suite and the currently open suite stays open.
func (a *Aggregator) SuiteDone(info SuiteInfo) {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := a.suiteLocked(info)
	if !s.started {
		now := a.now()
		s.StartTime = &now
		s.started = true
		a.attachSuiteLocked(s, nil)
		a.finishSuiteLocked(s)
		return
	}

	// Close s and anything still open inside it
	for open := a.currentSuite; open != nil; open = open.parent {
		if open == s {
			for a.currentSuite != s {
				a.finishSuiteLocked(a.currentSuite)
				a.currentSuite = a.currentSuite.parent
			}
			a.currentSuite = s.parent
			break
		}
	}
	a.finishSuiteLocked(s)
}

func (a *Aggregator) finishSuiteLocked(s *Suite) {
	if s.done {
		return
	}
	now := a.now()
	s.EndTime = &now
	s.done = true

	s.HasScreenshots = false
	for _, child := range s.Suites {
		if child.HasScreenshots {
			s.HasScreenshots = true
			break
		}
	}
	if !s.HasScreenshots {
		for _, sp := range s.Specs {
			if sp.HasScreenshots {
				s.HasScreenshots = true
				break
			}
		}
	}
}

// RunDone closes every suite still open and marks the run finished.
func (a *Aggregator) RunDone() {
	a.mu.Lock()
	defer a.mu.Unlock()

	for a.currentSuite != nil {
		a.finishSuiteLocked(a.currentSuite)
		a.currentSuite = a.currentSuite.parent
	}
	now := a.now()
	a.run.EndTime = &now
	logger.Debug("Run done: %d of %d specs executed", a.run.TotalSpecsExecuted, a.run.TotalSpecsDefined)
}

// AddScreenshot appends a screenshot to the running spec.
func (a *Aggregator) AddScreenshot(s Screenshot) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.currentSpec == nil {
		return core.ErrNoActiveSpec.WithMessagef("screenshot %q taken outside of a running spec", s.Name)
	}
	a.currentSpec.Screenshots = append(a.currentSpec.Screenshots, s)
	return nil
}

// Run returns the report tree. Callers must not read it while events are
// still being delivered.
func (a *Aggregator) Run() *Run {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.run
}

// CurrentSpec returns the running spec, or nil.
func (a *Aggregator) CurrentSpec() *Spec {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.currentSpec
}

// CurrentSuite returns the innermost open suite, or nil.
func (a *Aggregator) CurrentSuite() *Suite {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.currentSuite
}

var _ Lifecycle = (*Aggregator)(nil)
