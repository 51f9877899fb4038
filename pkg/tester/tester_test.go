package tester

import (
	"bytes"
	"context"
	"errors"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/devicelab-dev/visual-diff/pkg/capture"
	"github.com/devicelab-dev/visual-diff/pkg/compare"
	"github.com/devicelab-dev/visual-diff/pkg/config"
	"github.com/devicelab-dev/visual-diff/pkg/core"
	"github.com/devicelab-dev/visual-diff/pkg/driver/mock"
	"github.com/devicelab-dev/visual-diff/pkg/logger"
	"github.com/devicelab-dev/visual-diff/pkg/report"
)

var (
	white = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	red   = color.RGBA{R: 255, A: 255}
	blue  = color.RGBA{B: 255, A: 255}
)

// recorder is an Asserter that keeps the errors it was handed.
type recorder struct {
	Expectations
	mu   sync.Mutex
	errs []error
}

func (r *recorder) NoError(err error, msgAndArgs ...interface{}) bool {
	if err != nil {
		r.mu.Lock()
		r.errs = append(r.errs, err)
		r.mu.Unlock()
	}
	return r.Expectations.NoError(err, msgAndArgs...)
}

func (r *recorder) hasError(target error) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, err := range r.errs {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func testConfig(t *testing.T, mode config.Mode, threshold float64) config.Config {
	t.Helper()
	dir := t.TempDir()
	return config.Config{
		Mode:              mode,
		BaseDir:           filepath.Join(dir, "base"),
		CurrentDir:        filepath.Join(dir, "current"),
		DiffDir:           filepath.Join(dir, "diff"),
		MismatchThreshold: threshold,
	}
}

// startSpec opens a run with a single running spec.
func startSpec(tr *Tester, agg *report.Aggregator) {
	agg.RunStarted(tr.RunInfo(1))
	agg.SuiteStarted(report.SuiteInfo{ID: "suite1", Description: "home", FullName: "home"})
	agg.SpecStarted(report.SpecInfo{ID: "spec1", Description: "renders", FullName: "home renders"})
}

func newTester(t *testing.T, cfg config.Config, opts ...Option) (*Tester, *report.Aggregator, *recorder) {
	t.Helper()
	logger.SetConsole(io.Discard)
	agg := report.NewAggregator()
	rec := &recorder{}
	tr, err := New(cfg, agg, rec, opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := tr.InitDirectories(); err != nil {
		t.Fatalf("InitDirectories() error = %v", err)
	}
	return tr, agg, rec
}

func twoRedPixels() []byte {
	img := mock.SolidImage(10, 10, white)
	img.Set(2, 2, red)
	img.Set(7, 5, red)
	return mock.EncodePNG(img)
}

func TestNew_InvalidConfig(t *testing.T) {
	_, err := New(config.Config{MismatchThreshold: 150}, report.NewAggregator(), &Expectations{})
	if !errors.Is(err, core.ErrInvalidConfig) {
		t.Errorf("New() error = %v, want ErrInvalidConfig", err)
	}
}

func TestNew_RequiresCollaborators(t *testing.T) {
	if _, err := New(config.Config{}, nil, &Expectations{}); err == nil {
		t.Error("expected error without reporter")
	}
	if _, err := New(config.Config{}, report.NewAggregator(), nil); err == nil {
		t.Error("expected error without asserter")
	}
}

func TestNew_AppliesDefaults(t *testing.T) {
	tr, err := New(config.Config{}, report.NewAggregator(), &Expectations{})
	if err != nil {
		t.Fatal(err)
	}
	cfg := tr.Config()
	if cfg.Mode != config.ModeTest || cfg.BaseDir != config.DefaultBaseDir {
		t.Errorf("config = %+v", cfg)
	}
	if tr.RunInfo(3).Title != config.DefaultReportTitle {
		t.Errorf("RunInfo title = %q", tr.RunInfo(3).Title)
	}
}

func TestImageTaken_Rebase(t *testing.T) {
	cfg := testConfig(t, config.ModeRebase, 0)
	tr, agg, rec := newTester(t, cfg)
	startSpec(tr, agg)

	data := mock.EncodePNG(mock.SolidImage(10, 10, white))
	shot := tr.ImageTaken(context.Background(), "home/header", data)
	if shot == nil {
		t.Fatalf("ImageTaken() = nil, failures = %+v", rec.Take())
	}
	if shot.HasComparison() {
		t.Error("rebase screenshot should carry no comparison")
	}
	if shot.Current != nil || shot.Diff != nil {
		t.Error("rebase screenshot should only have a base image")
	}

	stored, err := os.ReadFile(filepath.Join(cfg.BaseDir, "home", "header.png"))
	if err != nil {
		t.Fatalf("base image not written: %v", err)
	}
	if !bytes.Equal(stored, data) {
		t.Error("stored base differs from input")
	}
	if _, err := os.Stat(filepath.Join(cfg.CurrentDir, "home", "header.png")); !os.IsNotExist(err) {
		t.Error("rebase should not write a current image")
	}
	if rec.Failed() {
		t.Errorf("unexpected failures: %+v", rec.Take())
	}

	spec := agg.CurrentSpec()
	if len(spec.Screenshots) != 1 || spec.Screenshots[0].Name != "home/header" {
		t.Errorf("spec screenshots = %+v", spec.Screenshots)
	}
}

func TestImageTaken_IdenticalPasses(t *testing.T) {
	cfg := testConfig(t, config.ModeTest, 5)
	tr, agg, rec := newTester(t, cfg)
	data := mock.EncodePNG(mock.SolidImage(10, 10, white))
	if err := tr.Store().Save("home", core.KindBase, data); err != nil {
		t.Fatal(err)
	}
	startSpec(tr, agg)

	shot := tr.ImageTaken(context.Background(), "home", data)
	if shot == nil {
		t.Fatalf("ImageTaken() = nil, failures = %+v", rec.Take())
	}
	if shot.Mismatch() != 0 || !*shot.IsSameDimensions {
		t.Errorf("shot = %+v", shot)
	}
	if shot.Diff != nil || shot.DiffPath != "" {
		t.Error("no diff expected for identical images")
	}
	if _, err := os.Stat(filepath.Join(cfg.DiffDir, "home.png")); !os.IsNotExist(err) {
		t.Error("diff image written for zero mismatch")
	}
	if _, err := os.Stat(filepath.Join(cfg.CurrentDir, "home.png")); err != nil {
		t.Errorf("current image not written: %v", err)
	}
	if rec.Failed() {
		t.Errorf("unexpected failures: %+v", rec.Take())
	}
	if rec.Checks() != 1 {
		t.Errorf("checks = %d, want one threshold assertion", rec.Checks())
	}
}

func TestImageTaken_MismatchAboveThreshold(t *testing.T) {
	cfg := testConfig(t, config.ModeTest, 0)
	tr, agg, rec := newTester(t, cfg)
	if err := tr.Store().Save("cart", core.KindBase, mock.EncodePNG(mock.SolidImage(10, 10, white))); err != nil {
		t.Fatal(err)
	}
	startSpec(tr, agg)

	shot := tr.ImageTaken(context.Background(), "cart", twoRedPixels())
	if shot == nil {
		t.Fatal("ImageTaken() = nil")
	}
	if shot.Mismatch() != 2 {
		t.Errorf("mismatch = %v, want 2", shot.Mismatch())
	}
	if len(shot.Diff) == 0 || shot.DiffPath == "" {
		t.Fatal("expected a diff image")
	}
	if _, err := os.Stat(shot.DiffPath); err != nil {
		t.Errorf("diff image not written: %v", err)
	}

	failures := rec.Take()
	if len(failures) != 1 {
		t.Fatalf("failures = %+v, want one", failures)
	}
	if !strings.Contains(failures[0].Message, `"cart"`) || !strings.Contains(failures[0].Message, "less than or equal") {
		t.Errorf("failure message = %q", failures[0].Message)
	}
}

func TestImageTaken_ThresholdEqualityPasses(t *testing.T) {
	cfg := testConfig(t, config.ModeTest, 2)
	tr, agg, rec := newTester(t, cfg)
	if err := tr.Store().Save("cart", core.KindBase, mock.EncodePNG(mock.SolidImage(10, 10, white))); err != nil {
		t.Fatal(err)
	}
	startSpec(tr, agg)

	shot := tr.ImageTaken(context.Background(), "cart", twoRedPixels())
	if shot == nil || shot.Mismatch() != 2 {
		t.Fatalf("shot = %+v", shot)
	}
	if shot.DiffPath == "" {
		t.Error("diff should be written for any non-zero mismatch")
	}
	if rec.Failed() {
		t.Errorf("mismatch equal to threshold should pass: %+v", rec.Take())
	}
}

func TestImageTaken_InvalidDataDoesNotStopSpec(t *testing.T) {
	cfg := testConfig(t, config.ModeRebase, 0)
	tr, agg, rec := newTester(t, cfg)
	startSpec(tr, agg)

	if shot := tr.ImageTaken(context.Background(), "bad", 42); shot != nil {
		t.Errorf("ImageTaken(int) = %+v, want nil", shot)
	}
	if !rec.hasError(core.ErrInvalidImageData) {
		t.Errorf("errors = %v, want ErrInvalidImageData", rec.errs)
	}

	if shot := tr.ImageTaken(context.Background(), "good", mock.EncodePNG(mock.SolidImage(4, 4, blue))); shot == nil {
		t.Error("later screenshot should still be handled")
	}
	if !tr.Store().Exists("good", core.KindBase) {
		t.Error("later screenshot not stored")
	}
	if tr.Store().Exists("bad", core.KindBase) {
		t.Error("invalid data should not be stored")
	}
	if len(agg.CurrentSpec().Screenshots) != 1 {
		t.Errorf("screenshots = %d, want 1", len(agg.CurrentSpec().Screenshots))
	}
}

func TestImageTaken_Sources(t *testing.T) {
	data := mock.EncodePNG(mock.SolidImage(4, 4, blue))
	tests := []struct {
		name string
		src  interface{}
	}{
		{"bytes", data},
		{"reader", bytes.NewReader(data)},
		{"producer", func(ctx context.Context) ([]byte, error) { return data, nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t, config.ModeRebase, 0)
			tr, agg, rec := newTester(t, cfg)
			startSpec(tr, agg)

			if shot := tr.ImageTaken(context.Background(), "shot", tt.src); shot == nil {
				t.Fatalf("ImageTaken() = nil, failures = %+v", rec.Take())
			}
			stored, err := tr.Store().Load("shot", core.KindBase)
			if err != nil || !bytes.Equal(stored, data) {
				t.Errorf("stored = %d bytes, err = %v", len(stored), err)
			}
		})
	}
}

func TestImageTaken_MissingBase(t *testing.T) {
	cfg := testConfig(t, config.ModeTest, 0)
	tr, agg, rec := newTester(t, cfg)
	startSpec(tr, agg)

	if shot := tr.ImageTaken(context.Background(), "new", twoRedPixels()); shot != nil {
		t.Errorf("shot = %+v, want nil", shot)
	}
	if !rec.hasError(core.ErrNotFound) {
		t.Errorf("errors = %v, want ErrNotFound", rec.errs)
	}
	if !tr.Store().Exists("new", core.KindCurrent) {
		t.Error("current image should be kept even without a base")
	}
}

func TestImageTaken_InvalidName(t *testing.T) {
	cfg := testConfig(t, config.ModeRebase, 0)
	tr, agg, rec := newTester(t, cfg)
	startSpec(tr, agg)

	if shot := tr.ImageTaken(context.Background(), "../escape", twoRedPixels()); shot != nil {
		t.Error("invalid name should not produce a screenshot")
	}
	if !rec.hasError(core.ErrInvalidName) {
		t.Errorf("errors = %v, want ErrInvalidName", rec.errs)
	}
}

func TestImageTaken_OutsideSpec(t *testing.T) {
	cfg := testConfig(t, config.ModeRebase, 0)
	tr, _, rec := newTester(t, cfg)

	shot := tr.ImageTaken(context.Background(), "orphan", twoRedPixels())
	if shot == nil {
		t.Fatal("the image should still be stored and returned")
	}
	if !rec.hasError(core.ErrNoActiveSpec) {
		t.Errorf("errors = %v, want ErrNoActiveSpec", rec.errs)
	}
}

func TestImageTaken_ComparatorError(t *testing.T) {
	cfg := testConfig(t, config.ModeTest, 0)
	tr, agg, rec := newTester(t, cfg)
	if err := tr.Store().Save("broken", core.KindBase, []byte("not an image")); err != nil {
		t.Fatal(err)
	}
	startSpec(tr, agg)

	if shot := tr.ImageTaken(context.Background(), "broken", twoRedPixels()); shot != nil {
		t.Error("undecodable base should not produce a screenshot")
	}
	if !rec.hasError(core.ErrComparison) {
		t.Errorf("errors = %v, want ErrComparison", rec.errs)
	}
}

// fixedComparator returns the same result for every comparison.
type fixedComparator struct {
	result compare.Result
}

func (f fixedComparator) Compare(base, current []byte) (*compare.Result, error) {
	r := f.result
	return &r, nil
}

func TestImageTaken_MismatchWithoutDiffImage(t *testing.T) {
	cfg := testConfig(t, config.ModeTest, 5)
	tr, agg, rec := newTester(t, cfg, WithComparator(fixedComparator{
		result: compare.Result{MismatchPercentage: 3, IsSameDimensions: true},
	}))
	png := mock.EncodePNG(mock.SolidImage(10, 10, white))
	if err := tr.Store().Save("header", core.KindBase, png); err != nil {
		t.Fatal(err)
	}
	startSpec(tr, agg)

	shot := tr.ImageTaken(context.Background(), "header", png)
	if shot == nil {
		t.Fatalf("ImageTaken() = nil, errors = %v", rec.errs)
	}
	if shot.DiffPath != "" {
		t.Errorf("DiffPath = %q, want empty without a diff image", shot.DiffPath)
	}
	if _, err := os.Stat(filepath.Join(cfg.DiffDir, "header.png")); !os.IsNotExist(err) {
		t.Errorf("no diff file expected, stat error = %v", err)
	}
	if shot.Mismatch() != 3 || rec.Failed() {
		t.Errorf("mismatch = %v, failed = %v", shot.Mismatch(), rec.Failed())
	}
}

func TestImageTaken_ConcurrentSameName(t *testing.T) {
	cfg := testConfig(t, config.ModeTest, 100)
	tr, agg, rec := newTester(t, cfg)
	if err := tr.Store().Save("same", core.KindBase, mock.EncodePNG(mock.SolidImage(10, 10, white))); err != nil {
		t.Fatal(err)
	}
	startSpec(tr, agg)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.ImageTaken(context.Background(), "same", twoRedPixels())
		}()
	}
	wg.Wait()

	if rec.Failed() {
		t.Errorf("unexpected failures: %+v", rec.Take())
	}
	for _, s := range agg.CurrentSpec().Screenshots {
		if s.Mismatch() != 2 {
			t.Errorf("mismatch = %v, want 2 for every comparison", s.Mismatch())
		}
	}
}

func TestTakeScreenshot_NoCapturer(t *testing.T) {
	cfg := testConfig(t, config.ModeRebase, 0)
	tr, agg, rec := newTester(t, cfg)
	startSpec(tr, agg)

	if shot := tr.TakeScreenshot(context.Background(), mock.NewElement(0, 0, 5, 5), "box", false); shot != nil {
		t.Error("expected nil without a capturer")
	}
	if !rec.hasError(core.ErrNoCapturer) {
		t.Errorf("errors = %v, want ErrNoCapturer", rec.errs)
	}
}

func TestTakeScreenshot_CapturesElement(t *testing.T) {
	page := mock.SolidImage(200, 400, white)
	for y := 300; y < 320; y++ {
		for x := 10; x < 60; x++ {
			page.Set(x, y, blue)
		}
	}
	browser := mock.New(mock.Config{Page: page, ViewportHeight: 100})

	cfg := testConfig(t, config.ModeRebase, 0)
	tr, agg, rec := newTester(t, cfg, WithCapturer(capture.NewElementCapturer(browser)))
	startSpec(tr, agg)

	shot := tr.TakeScreenshot(context.Background(), mock.NewElement(10, 300, 50, 20), "banner", true)
	if shot == nil {
		t.Fatalf("TakeScreenshot() = nil, failures = %+v", rec.Take())
	}
	if calls := browser.ScrollCalls(); len(calls) != 1 || calls[0] != 298 {
		t.Errorf("scroll calls = %v, want [298]", calls)
	}
	if !tr.Store().Exists("banner", core.KindBase) {
		t.Error("captured image not stored")
	}
}

func TestTakeScreenshot_CaptureError(t *testing.T) {
	browser := mock.New(mock.Config{FailOnScreenshot: 1})
	cfg := testConfig(t, config.ModeRebase, 0)
	tr, agg, rec := newTester(t, cfg, WithCapturer(capture.NewElementCapturer(browser)))
	startSpec(tr, agg)

	if shot := tr.TakeScreenshot(context.Background(), mock.NewElement(0, 0, 5, 5), "box", false); shot != nil {
		t.Error("expected nil on capture failure")
	}
	if !rec.hasError(core.ErrCapture) {
		t.Errorf("errors = %v, want ErrCapture", rec.errs)
	}
}

func TestDone_WritesReports(t *testing.T) {
	cfg := testConfig(t, config.ModeTest, 0)
	cfg.Report.Allure = true
	tr, agg, rec := newTester(t, cfg)
	if err := tr.Store().Save("cart", core.KindBase, mock.EncodePNG(mock.SolidImage(10, 10, white))); err != nil {
		t.Fatal(err)
	}
	startSpec(tr, agg)
	tr.ImageTaken(context.Background(), "cart", twoRedPixels())
	agg.SpecDone(report.SpecInfo{ID: "spec1", FailedExpectations: rec.Take()})
	agg.SuiteDone(report.SuiteInfo{ID: "suite1"})

	if err := tr.Done(); err != nil {
		t.Fatalf("Done() error = %v", err)
	}
	for _, name := range []string{report.HTMLFile, report.JSONFile, report.AllureDir} {
		if _, err := os.Stat(filepath.Join(cfg.CurrentDir, name)); err != nil {
			t.Errorf("%s not written: %v", name, err)
		}
	}

	run, err := report.ReadJSON(cfg.CurrentDir)
	if err != nil {
		t.Fatal(err)
	}
	sum := run.Summary()
	if sum.Failed != 1 || sum.Mismatches != 1 {
		t.Errorf("summary = %+v", sum)
	}
}

func TestDone_RebaseReportsInBaseDir(t *testing.T) {
	cfg := testConfig(t, config.ModeRebase, 0)
	off := false
	cfg.Report.JSON = &off
	tr, agg, _ := newTester(t, cfg)
	startSpec(tr, agg)
	tr.ImageTaken(context.Background(), "home", twoRedPixels())

	if err := tr.Done(); err != nil {
		t.Fatalf("Done() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(cfg.BaseDir, report.HTMLFile)); err != nil {
		t.Errorf("report.html not in base dir: %v", err)
	}
	if _, err := os.Stat(filepath.Join(cfg.BaseDir, report.JSONFile)); !os.IsNotExist(err) {
		t.Error("report.json written although disabled")
	}
	if !agg.Run().Finished() {
		t.Error("Done should finish the run")
	}
}

func TestExpectations(t *testing.T) {
	var e Expectations
	if !e.LessOrEqual(1, 1) || !e.NoError(nil) {
		t.Error("passing assertions reported failure")
	}
	if e.LessOrEqual(3.5, 1, "shot %q", "x") {
		t.Error("3.5 <= 1 should fail")
	}
	if e.NoError(errors.New("boom"), "saving") {
		t.Error("NoError(err) should fail")
	}
	if !e.Failed() || e.Checks() != 4 {
		t.Errorf("failed = %v checks = %d", e.Failed(), e.Checks())
	}

	failures := e.Take()
	if len(failures) != 2 {
		t.Fatalf("failures = %+v", failures)
	}
	if failures[0].Message != `shot "x": 3.5 is not less than or equal to 1` {
		t.Errorf("message = %q", failures[0].Message)
	}
	if failures[1].Message != "saving: Received unexpected error: boom" {
		t.Errorf("message = %q", failures[1].Message)
	}
	if e.Failed() || e.Checks() != 0 {
		t.Error("Take should reset")
	}
}
