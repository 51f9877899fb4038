package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/devicelab-dev/visual-diff/pkg/compare"
	"github.com/devicelab-dev/visual-diff/pkg/config"
	"github.com/devicelab-dev/visual-diff/pkg/core"
	"github.com/devicelab-dev/visual-diff/pkg/imagedata"
	"github.com/devicelab-dev/visual-diff/pkg/logger"
	"github.com/devicelab-dev/visual-diff/pkg/store"
	"github.com/urfave/cli/v2"
)

func compareCommand() *cli.Command {
	return &cli.Command{
		Name:      "compare",
		Usage:     "Compare current screenshots against their base images",
		ArgsUsage: "<name>...",
		Description: `Compare stored screenshots by name, or two image files directly.

By name, each <name> is read from the current directory and compared against
the base directory. Diff images and the report are written as in a test run.

With --base and --current, the two files are compared and the diff is written
to --diff when given.

The command exits non-zero when any mismatch is above the threshold.

Examples:
  visual-diff compare home checkout/total
  visual-diff --threshold 0.5 compare home
  visual-diff compare --base old.png --current new.png --diff diff.png`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "base",
				Usage: "Base image file",
			},
			&cli.StringFlag{
				Name:  "current",
				Usage: "Current image file",
			},
			&cli.StringFlag{
				Name:  "diff",
				Usage: "Where to write the diff image (with --base/--current)",
			},
			&cli.StringFlag{
				Name:  "suite",
				Usage: "Suite name used in the report",
				Value: "compare",
			},
		},
		Action: runCompare,
	}
}

func runCompare(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	if c.IsSet("base") || c.IsSet("current") {
		if c.NArg() > 0 {
			return fmt.Errorf("names cannot be combined with --base/--current")
		}
		return compareFiles(c, cfg)
	}

	if c.NArg() < 1 {
		return fmt.Errorf("at least one screenshot name is required")
	}
	if cfg.Mode != config.ModeTest {
		return fmt.Errorf("compare requires test mode (got %s)", cfg.Mode)
	}
	return compareStored(c, cfg, c.Args().Slice())
}

// compareStored runs each stored current image through the full test-mode
// flow, so diffs and reports match a regular run.
func compareStored(c *cli.Context, cfg config.Config, names []string) error {
	// Init clears the current directory, so read the captures first.
	st := store.New(cfg)
	captures := make(map[string][]byte, len(names))
	for _, name := range names {
		data, err := st.Load(name, core.KindCurrent)
		if err != nil {
			return err
		}
		captures[name] = data
	}

	sess, err := newSession(c.App.Writer, cfg)
	if err != nil {
		return err
	}
	if err := sess.begin(c.String("suite"), len(names)); err != nil {
		return err
	}

	for _, name := range names {
		data := captures[name]
		sess.spec(name, func() {
			sess.tester.ImageTaken(c.Context, name, data)
		})
	}

	passed, err := sess.end()
	if err != nil {
		return err
	}
	if !passed {
		return cli.Exit("screenshot mismatch above threshold", 1)
	}
	return nil
}

// compareFiles compares two image files without touching the store.
func compareFiles(c *cli.Context, cfg config.Config) error {
	basePath, currentPath := c.String("base"), c.String("current")
	if basePath == "" || currentPath == "" {
		return fmt.Errorf("--base and --current are both required")
	}

	base, err := readImageFile(c.Context, basePath)
	if err != nil {
		return err
	}
	current, err := readImageFile(c.Context, currentPath)
	if err != nil {
		return err
	}

	result, err := compare.Default().Compare(base, current)
	if err != nil {
		return err
	}

	w := c.App.Writer
	mismatchColor := color(colorGreen)
	if result.MismatchPercentage > cfg.MismatchThreshold {
		mismatchColor = color(colorRed)
	} else if result.MismatchPercentage > 0 {
		mismatchColor = color(colorYellow)
	}
	fmt.Fprintf(w, "  %s%.2f%% mismatch%s (%d of %d pixels, %s)\n",
		mismatchColor, result.MismatchPercentage, color(colorReset),
		result.DiffPixels, result.TotalPixels, formatDuration(result.AnalysisTime))
	if !result.IsSameDimensions {
		fmt.Fprintf(w, "  %ssize changed by %+d x %+d px%s\n",
			color(colorGray), result.DimensionDifference.Width, result.DimensionDifference.Height, color(colorReset))
	}

	if diffPath := c.String("diff"); diffPath != "" && result.DiffImage != nil {
		if err := os.MkdirAll(filepath.Dir(diffPath), 0o755); err != nil {
			return fmt.Errorf("failed to create diff directory: %w", err)
		}
		if err := os.WriteFile(diffPath, result.DiffImage, 0o644); err != nil {
			return fmt.Errorf("failed to write diff: %w", err)
		}
		fmt.Fprintf(w, "  Diff: %s\n", diffPath)
	}

	if result.MismatchPercentage > cfg.MismatchThreshold {
		logger.Warn("Mismatch of %.2f%% between %s and %s", result.MismatchPercentage, basePath, currentPath)
		return cli.Exit(fmt.Sprintf("mismatch of %.2f%% is above the threshold of %.2f%%",
			result.MismatchPercentage, cfg.MismatchThreshold), 1)
	}
	return nil
}

func readImageFile(ctx context.Context, path string) ([]byte, error) {
	f, err := os.Open(path) //#nosec G304 -- user-provided image path
	if err != nil {
		return nil, core.ErrIO.WithMessagef("open %s", path).WithCause(err)
	}
	// ToBuffer closes the file once drained.
	return imagedata.ToBuffer(ctx, f)
}
