package gotest

import (
	"context"
	"errors"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/devicelab-dev/visual-diff/pkg/config"
	"github.com/devicelab-dev/visual-diff/pkg/core"
	"github.com/devicelab-dev/visual-diff/pkg/driver/mock"
	"github.com/devicelab-dev/visual-diff/pkg/logger"
	"github.com/devicelab-dev/visual-diff/pkg/report"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var white = color.RGBA{R: 255, G: 255, B: 255, A: 255}

// fakeTB captures Errorf instead of failing the enclosing test.
type fakeTB struct {
	testing.TB
	errs []string
}

func (f *fakeTB) Helper() {}

func (f *fakeTB) Errorf(format string, args ...interface{}) {
	f.errs = append(f.errs, format)
}

func (f *fakeTB) Failed() bool {
	return len(f.errs) > 0
}

func newRunner(t *testing.T, threshold float64) (*Runner, config.Config) {
	t.Helper()
	logger.SetConsole(io.Discard)
	dir := t.TempDir()
	cfg := config.Config{
		BaseDir:           filepath.Join(dir, "base"),
		CurrentDir:        filepath.Join(dir, "current"),
		DiffDir:           filepath.Join(dir, "diff"),
		MismatchThreshold: threshold,
	}
	r, err := NewRunner(cfg)
	require.NoError(t, err)
	require.NoError(t, r.Start(2))
	return r, cfg
}

func redDot() []byte {
	img := mock.SolidImage(10, 10, white)
	img.Set(4, 4, color.RGBA{R: 255, A: 255})
	return mock.EncodePNG(img)
}

func TestRunner_SuitesAndSpecs(t *testing.T) {
	r, cfg := newRunner(t, 5)
	base := mock.EncodePNG(mock.SolidImage(10, 10, white))
	require.NoError(t, r.Tester().Store().Save("home", core.KindBase, base))

	r.Describe(t, "home page", func(t *testing.T) {
		r.It(t, "renders", func(t *testing.T) {
			shot := r.Screenshot(context.Background(), "home", base)
			require.NotNil(t, shot)
			assert.Zero(t, shot.Mismatch())
		})
		r.It(t, "waits", func(t *testing.T) {
			t.Skip("not ready")
		})
	})
	require.NoError(t, r.Finish())

	run := r.Aggregator().Run()
	require.Len(t, run.Suites, 1)
	suite := run.Suites[0]
	assert.Equal(t, "home page", suite.Description)
	assert.Equal(t, "home page", suite.FullName)
	assert.True(t, suite.HasScreenshots)
	require.Len(t, suite.Specs, 2)

	renders := suite.Specs[0]
	assert.Equal(t, report.StatusPassed, renders.Status)
	assert.Equal(t, "home page renders", renders.FullName)
	assert.Len(t, renders.Screenshots, 1)

	waits := suite.Specs[1]
	assert.Equal(t, report.StatusPending, waits.Status)
	assert.Equal(t, 1, suite.Skipped)

	assert.Equal(t, 2, run.TotalSpecsExecuted)
	assert.FileExists(t, filepath.Join(cfg.CurrentDir, report.HTMLFile))
	assert.FileExists(t, filepath.Join(cfg.CurrentDir, report.JSONFile))
}

func TestRunner_TopLevelSpecsBesideSuites(t *testing.T) {
	r, _ := newRunner(t, 0)
	base := mock.EncodePNG(mock.SolidImage(10, 10, white))
	require.NoError(t, r.Tester().Store().Save("logo", core.KindBase, base))

	r.It(t, "standalone", func(t *testing.T) {})
	r.Describe(t, "checkout", func(t *testing.T) {
		r.It(t, "pays", func(t *testing.T) {})
	})
	r.It(t, "logo", func(t *testing.T) {
		r.Screenshot(context.Background(), "logo", base)
	})
	require.NoError(t, r.Finish())

	run := r.Aggregator().Run()
	require.Len(t, run.Suites, 2)

	focused := run.Suites[0]
	assert.Equal(t, report.FocusedSuite.ID, focused.ID)
	assert.Empty(t, focused.Suites)
	require.Len(t, focused.Specs, 2)
	assert.Equal(t, "standalone", focused.Specs[0].Description)
	assert.Equal(t, "logo", focused.Specs[1].Description)
	assert.True(t, focused.HasScreenshots)

	checkout := run.Suites[1]
	assert.Equal(t, "checkout", checkout.Description)
	assert.Nil(t, checkout.Parent())
	require.Len(t, checkout.Specs, 1)
	assert.Equal(t, "pays", checkout.Specs[0].Description)
	assert.Nil(t, r.Aggregator().CurrentSuite())
}

func TestRunner_MismatchFailsSpec(t *testing.T) {
	r, cfg := newRunner(t, 0)
	require.NoError(t, r.Tester().Store().Save("cart", core.KindBase, mock.EncodePNG(mock.SolidImage(10, 10, white))))

	info := report.SpecInfo{ID: "cart", Description: "cart"}
	fake := &fakeTB{TB: t}
	st := newSpecT(fake)
	r.Aggregator().SpecStarted(info)
	r.setCurrent(st)

	shot := r.Screenshot(context.Background(), "cart", redDot())
	require.NotNil(t, shot)
	assert.Equal(t, 1.0, shot.Mismatch())

	r.setCurrent(nil)
	r.Aggregator().SpecDone(st.result(info))

	require.Len(t, fake.errs, 1)
	spec := r.Aggregator().Run().Suites[0].Specs[0]
	assert.Equal(t, report.StatusFailed, spec.Status)
	require.Len(t, spec.FailedExpectations, 1)
	assert.Contains(t, spec.FailedExpectations[0].Message, "is not less than or equal to")
	assert.Contains(t, spec.FailedExpectations[0].Message, `"cart"`)
	assert.Contains(t, spec.FailedExpectations[0].Stack, "runner_test.go")

	_, err := os.Stat(filepath.Join(cfg.DiffDir, "cart.png"))
	assert.NoError(t, err)
}

func TestRunner_ErrorFailsSpec(t *testing.T) {
	r, _ := newRunner(t, 0)

	fake := &fakeTB{TB: t}
	st := newSpecT(fake)
	r.setCurrent(st)
	assert.Nil(t, r.Screenshot(context.Background(), "bad", "not an image"))
	r.setCurrent(nil)

	res := st.result(report.SpecInfo{ID: "bad"})
	assert.Equal(t, report.StatusFailed, res.Status)
	require.Len(t, res.FailedExpectations, 1)
	assert.Contains(t, res.FailedExpectations[0].Message, "Received unexpected error")
}

func TestRunner_AssertOutsideSpec(t *testing.T) {
	r, _ := newRunner(t, 0)
	assert.False(t, r.NoError(errors.New("boom")))
	assert.True(t, r.LessOrEqual(1, 2))
}

func TestSpecT_FailedWithoutAssertion(t *testing.T) {
	fake := &fakeTB{TB: t, errs: []string{"t.Errorf"}}
	st := newSpecT(fake)
	res := st.result(report.SpecInfo{ID: "x"})
	assert.Equal(t, report.StatusFailed, res.Status)
	assert.Equal(t, []report.Expectation{{Message: "test failed"}}, res.FailedExpectations)
}

func TestParseFailure(t *testing.T) {
	msg := "\n\tError Trace:\t/src/home_test.go:12\n" +
		"\t            \t/src/helpers_test.go:30\n" +
		"\tError:      \t\"3\" is not less than or equal to \"1\"\n" +
		"\tTest:       \tTestHome/renders\n" +
		"\tMessages:   \tscreenshot \"home\"\n"

	got := parseFailure(msg)
	assert.Equal(t, "\"3\" is not less than or equal to \"1\"\nscreenshot \"home\"", got.Message)
	assert.Equal(t, "/src/home_test.go:12\n/src/helpers_test.go:30", got.Stack)

	plain := parseFailure("something broke")
	assert.Equal(t, "something broke", plain.Message)
	assert.Empty(t, plain.Stack)
}

func TestFullName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"TestHome", "TestHome"},
		{"TestHome/home_page", "home page"},
		{"TestHome/home_page/renders", "home page renders"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, fullName(tt.in), tt.in)
	}
}

func TestNewRunner_InvalidConfig(t *testing.T) {
	_, err := NewRunner(config.Config{Mode: "replay"})
	assert.True(t, errors.Is(err, core.ErrInvalidConfig))
	assert.True(t, strings.Contains(err.Error(), "mode"))
}
