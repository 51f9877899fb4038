package cli

import (
	"io"

	"github.com/devicelab-dev/visual-diff/pkg/config"
	"github.com/devicelab-dev/visual-diff/pkg/report"
	"github.com/devicelab-dev/visual-diff/pkg/tester"
)

// session runs screenshots as specs of one suite, outside of a Go test.
// Assertion failures are collected by tester.Expectations and become the
// failed expectations of the running spec.
type session struct {
	out    io.Writer
	agg    *report.Aggregator
	exp    *tester.Expectations
	tester *tester.Tester
	suite  report.SuiteInfo
}

func newSession(out io.Writer, cfg config.Config, opts ...tester.Option) (*session, error) {
	agg := report.NewAggregator()
	exp := &tester.Expectations{}
	t, err := tester.New(cfg, agg, exp, opts...)
	if err != nil {
		return nil, err
	}
	return &session{out: out, agg: agg, exp: exp, tester: t}, nil
}

// begin resets the image directories and opens the run and the suite.
func (s *session) begin(suite string, totalSpecs int) error {
	if err := s.tester.InitDirectories(); err != nil {
		return err
	}
	s.agg.RunStarted(s.tester.RunInfo(totalSpecs))
	s.suite = report.SuiteInfo{ID: suite, Description: suite, FullName: suite}
	s.agg.SuiteStarted(s.suite)
	return nil
}

// spec runs fn as a spec named name and prints its outcome.
func (s *session) spec(name string, fn func()) *report.Spec {
	info := report.SpecInfo{ID: name, Description: name, FullName: s.suite.FullName + " " + name}
	s.agg.SpecStarted(info)
	spec := s.agg.CurrentSpec()

	fn()

	info.FailedExpectations = s.exp.Take()
	s.agg.SpecDone(info)
	printSpecResult(s.out, spec, s.tester.Config().MismatchThreshold)
	return spec
}

// end closes the suite, writes the reports and prints the summary. It
// reports whether every spec passed.
func (s *session) end() (bool, error) {
	s.agg.SuiteDone(s.suite)
	if err := s.tester.Done(); err != nil {
		return false, err
	}
	run := s.agg.Run()
	printSummary(s.out, run, s.tester.Store().ReportDir())
	return run.Summary().Failed == 0, nil
}
