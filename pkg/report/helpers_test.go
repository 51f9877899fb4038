package report

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/devicelab-dev/visual-diff/pkg/compare"
)

func tinyPNG(t *testing.T, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// sampleRun builds a finished run:
//
//	checkout (suite)
//	  pays (passed, screenshot "cart" 0%)
//	  totals (failed, screenshot "total" 12.5% with diff on disk only)
//	  later (pending)
//	  address (suite)
//	    fills (passed, rebase-style screenshot)
func sampleRun(t *testing.T) *Run {
	t.Helper()
	dir := t.TempDir()

	diffPath := filepath.Join(dir, "diff", "total.png")
	if err := os.MkdirAll(filepath.Dir(diffPath), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(diffPath, tinyPNG(t, color.RGBA{R: 255, B: 255, A: 255}), 0o644); err != nil {
		t.Fatal(err)
	}

	white := tinyPNG(t, color.White)
	black := tinyPNG(t, color.Black)

	a := newTestAggregator()
	a.RunStarted(RunInfo{Title: "Checkout visuals", Mode: "test", MismatchThreshold: 1, TotalSpecsDefined: 4})
	a.SuiteStarted(SuiteInfo{ID: "suite1", Description: "checkout", FullName: "checkout"})

	a.SpecStarted(SpecInfo{ID: "spec1", Description: "pays", FullName: "checkout pays"})
	mustAdd(t, a, NewComparedScreenshot("cart", white, white, &compare.Result{
		IsSameDimensions: true,
		AnalysisTime:     3 * time.Millisecond,
	}))
	a.SpecDone(SpecInfo{ID: "spec1", Status: StatusPassed})

	a.SpecStarted(SpecInfo{ID: "spec2", Description: "totals", FullName: "checkout totals"})
	failed := NewComparedScreenshot("total", white, black, &compare.Result{
		MismatchPercentage:  12.5,
		IsSameDimensions:    false,
		DimensionDifference: compare.Dimension{Width: 0, Height: 2},
		AnalysisTime:        4 * time.Millisecond,
	})
	failed.DiffPath = diffPath
	mustAdd(t, a, failed)
	a.SpecDone(SpecInfo{ID: "spec2", Status: StatusFailed, FailedExpectations: []Expectation{
		{Message: "Expected 12.5 to be less than or equal to 1", Stack: "at totals_test.go:42"},
	}})

	a.SpecDone(SpecInfo{ID: "spec3", Description: "later", Status: StatusPending, PendingReason: "not ready"})

	a.SuiteStarted(SuiteInfo{ID: "suite2", Description: "address", FullName: "checkout address"})
	a.SpecStarted(SpecInfo{ID: "spec4", Description: "fills", FullName: "checkout address fills"})
	mustAdd(t, a, Screenshot{Name: "address/form", Base: white, BasePath: filepath.Join(dir, "base", "address", "form.png")})
	a.SpecDone(SpecInfo{ID: "spec4", Status: StatusPassed})
	a.SuiteDone(SuiteInfo{ID: "suite2"})

	a.SuiteDone(SuiteInfo{ID: "suite1"})
	a.RunDone()
	return a.Run()
}

func mustAdd(t *testing.T, a *Aggregator, s Screenshot) {
	t.Helper()
	if err := a.AddScreenshot(s); err != nil {
		t.Fatalf("AddScreenshot(%s) error = %v", s.Name, err)
	}
}
