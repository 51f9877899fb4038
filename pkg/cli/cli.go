// Package cli provides the command-line interface for visual-diff.
package cli

import (
	"fmt"
	"os"

	"github.com/devicelab-dev/visual-diff/pkg/config"
	"github.com/devicelab-dev/visual-diff/pkg/logger"
	"github.com/urfave/cli/v2"
)

// Version is set at build time.
var Version = "dev"

// globalFlags returns the flags available to all commands. They override
// values from the config file. urfave/cli records parsed state on the flag
// values, so every app gets its own set.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to visual-diff.yaml (default: nearest visual-diff.yaml up from the working directory)",
			EnvVars: []string{"VISUAL_DIFF_CONFIG"},
		},
		&cli.StringFlag{
			Name:    "mode",
			Aliases: []string{"m"},
			Usage:   "Run mode (test, rebase)",
			EnvVars: []string{"VISUAL_DIFF_MODE"},
		},
		&cli.StringFlag{
			Name:    "base-dir",
			Usage:   "Directory of accepted base images",
			EnvVars: []string{"VISUAL_DIFF_BASE_DIR"},
		},
		&cli.StringFlag{
			Name:    "current-dir",
			Usage:   "Directory of images captured in this run",
			EnvVars: []string{"VISUAL_DIFF_CURRENT_DIR"},
		},
		&cli.StringFlag{
			Name:    "diff-dir",
			Usage:   "Directory of diff images",
			EnvVars: []string{"VISUAL_DIFF_DIFF_DIR"},
		},
		&cli.Float64Flag{
			Name:    "threshold",
			Aliases: []string{"t"},
			Usage:   "Mismatch percentage (0-100) above which a screenshot fails",
			EnvVars: []string{"VISUAL_DIFF_THRESHOLD"},
		},
		&cli.StringFlag{
			Name:    "log-file",
			Usage:   "Write the run log to this file",
			EnvVars: []string{"VISUAL_DIFF_LOG_FILE"},
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Usage:   "Enable verbose logging",
			EnvVars: []string{"VISUAL_DIFF_VERBOSE"},
		},
		&cli.BoolFlag{
			Name:  "no-ansi",
			Usage: "Disable ANSI colors",
		},
	}
}

// NewApp builds the visual-diff application.
func NewApp() *cli.App {
	return &cli.App{
		Name:    "visual-diff",
		Usage:   "Screenshot comparison for visual regression tests",
		Version: Version,
		Description: `visual-diff captures screenshots, compares them against accepted base
images and writes a diff image and an HTML report for every mismatch.

Examples:
  visual-diff init
  visual-diff compare home header
  visual-diff compare --base old.png --current new.png --diff diff.png
  visual-diff --mode rebase capture --url https://example.com --target header=#header
  visual-diff report --allure`,
		Flags:  globalFlags(),
		Before: setup,
		After: func(c *cli.Context) error {
			logger.Close()
			return nil
		},
		Commands: []*cli.Command{
			initCommand(),
			compareCommand(),
			captureCommand(),
			reportCommand(),
		},
	}
}

// Execute runs the CLI.
func Execute() {
	if err := NewApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func setup(c *cli.Context) error {
	if c.Bool("no-ansi") {
		colorsEnabled = false
	}
	if path := c.String("log-file"); path != "" {
		if err := logger.Init(path); err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
	}
	logger.SetVerbose(c.Bool("verbose"))
	return nil
}

// loadConfig reads the config file and applies flag overrides on top.
func loadConfig(c *cli.Context) (config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path := c.String("config"); path != "" {
		cfg, err = config.Load(path)
		if err != nil {
			return config.Config{}, fmt.Errorf("failed to load config: %w", err)
		}
	} else {
		var found string
		cfg, found, err = config.Discover(".")
		if err != nil {
			return config.Config{}, fmt.Errorf("failed to load config %s: %w", found, err)
		}
		if found != "" {
			logger.Debug("Using config %s", found)
		}
	}

	if c.IsSet("mode") {
		cfg.Mode = config.Mode(c.String("mode"))
	}
	if c.IsSet("base-dir") {
		cfg.BaseDir = c.String("base-dir")
	}
	if c.IsSet("current-dir") {
		cfg.CurrentDir = c.String("current-dir")
	}
	if c.IsSet("diff-dir") {
		cfg.DiffDir = c.String("diff-dir")
	}
	if c.IsSet("threshold") {
		cfg.MismatchThreshold = c.Float64("threshold")
	}

	return config.New(*cfg)
}
