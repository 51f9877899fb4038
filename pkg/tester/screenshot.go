package tester

import (
	"context"

	"github.com/devicelab-dev/visual-diff/pkg/capture"
	"github.com/devicelab-dev/visual-diff/pkg/config"
	"github.com/devicelab-dev/visual-diff/pkg/core"
	"github.com/devicelab-dev/visual-diff/pkg/imagedata"
	"github.com/devicelab-dev/visual-diff/pkg/logger"
	"github.com/devicelab-dev/visual-diff/pkg/report"
)

// ImageTaken stores a screenshot and, in test mode, compares it against the
// base image. data may be []byte, an io.Reader or an imagedata.Producer.
//
// It never panics or returns an error: failures are logged and reported as a
// failing NoError assertion, so the spec fails but keeps running. The
// returned record is nil when the screenshot could not be handled.
func (t *Tester) ImageTaken(ctx context.Context, name string, data interface{}) *report.Screenshot {
	buf, err := imagedata.ToBuffer(ctx, data)
	if err != nil {
		t.fail(name, err)
		return nil
	}

	unlock := t.lockName(name)
	defer unlock()

	var rec *report.Screenshot
	if t.cfg.Mode == config.ModeRebase {
		rec, err = t.rebase(name, buf)
	} else {
		rec, err = t.compare(name, buf)
	}
	if err != nil {
		t.fail(name, err)
		return nil
	}
	return rec
}

func (t *Tester) rebase(name string, data []byte) (*report.Screenshot, error) {
	if err := t.store.Save(name, core.KindBase, data); err != nil {
		return nil, err
	}
	path, _ := t.store.Path(name, core.KindBase)
	logger.Info("Saved base image %q", name)

	rec := report.Screenshot{Name: name, Base: data, BasePath: path}
	t.record(rec)
	return &rec, nil
}

func (t *Tester) compare(name string, data []byte) (*report.Screenshot, error) {
	if err := t.store.Save(name, core.KindCurrent, data); err != nil {
		return nil, err
	}

	base, err := t.store.Load(name, core.KindBase)
	if err != nil {
		return nil, err
	}
	current, err := t.store.Load(name, core.KindCurrent)
	if err != nil {
		return nil, err
	}

	result, err := t.comparator.Compare(base, current)
	if err != nil {
		return nil, err
	}

	rec := report.NewComparedScreenshot(name, base, current, result)
	rec.BasePath, _ = t.store.Path(name, core.KindBase)
	rec.CurrentPath, _ = t.store.Path(name, core.KindCurrent)

	if result.MismatchPercentage != 0 {
		if len(result.DiffImage) > 0 {
			if err := t.store.Save(name, core.KindDiff, result.DiffImage); err != nil {
				return nil, err
			}
			rec.DiffPath, _ = t.store.Path(name, core.KindDiff)
		}
		logger.Warn("Screenshot %q mismatch of %.2f%%", name, result.MismatchPercentage)
	} else {
		logger.Debug("Screenshot %q matches base (%s)", name, result.AnalysisTime)
	}

	t.record(rec)
	t.EvaluateThreshold(rec)
	return &rec, nil
}

// record hands rec to the reporter; a screenshot outside a spec fails the
// current expectation but does not abort the flow.
func (t *Tester) record(rec report.Screenshot) {
	if err := t.reporter.AddScreenshot(rec); err != nil {
		logger.Error("Could not record screenshot %q: %v", rec.Name, err)
		t.asserter.NoError(err, "record screenshot %q", rec.Name)
	}
}

// EvaluateThreshold asserts that the mismatch is at most the configured
// threshold. Equality passes.
func (t *Tester) EvaluateThreshold(rec report.Screenshot) bool {
	threshold := t.cfg.MismatchThreshold
	return t.asserter.LessOrEqual(rec.Mismatch(), threshold,
		"screenshot %q mismatch of %.2f%% is above the threshold of %.2f%%", rec.Name, rec.Mismatch(), threshold)
}

// TakeScreenshot captures el with the configured capturer and passes the
// result to ImageTaken.
func (t *Tester) TakeScreenshot(ctx context.Context, el capture.Element, name string, scrollIntoView bool) *report.Screenshot {
	if t.capturer == nil {
		t.fail(name, core.ErrNoCapturer)
		return nil
	}

	data, err := t.capturer.Capture(ctx, el, scrollIntoView)
	if err != nil {
		t.fail(name, err)
		return nil
	}
	return t.ImageTaken(ctx, name, data)
}

func (t *Tester) fail(name string, err error) {
	logger.Error("Could not handle screenshot %q: %v", name, err)
	t.asserter.NoError(err, "screenshot %q", name)
}
