package cli

import (
	"fmt"
	"os"

	"github.com/devicelab-dev/visual-diff/pkg/config"
	"github.com/devicelab-dev/visual-diff/pkg/core"
	"github.com/devicelab-dev/visual-diff/pkg/store"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"
)

func initCommand() *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "Reset the screenshot directories for a new run",
		Description: `Clears the current and diff directories (and the base directory in
rebase mode), then recreates all three.

Examples:
  visual-diff init
  visual-diff --mode rebase init
  visual-diff init --write-config`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "write-config",
				Usage: "Write the effective configuration to visual-diff.yaml",
			},
		},
		Action: runInit,
	}
}

func runInit(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	s := store.New(cfg)
	if err := s.InitDirectories(); err != nil {
		return err
	}

	w := c.App.Writer
	fmt.Fprintf(w, "  %sMode:%s %s\n", color(colorBold), color(colorReset), cfg.Mode)
	for _, kind := range core.Kinds {
		fmt.Fprintf(w, "  %s✓%s %-8s %s\n", color(colorGreen), color(colorReset), kind, s.Dir(kind))
	}

	if c.Bool("write-config") {
		path := config.FileNames[0]
		if err := writeConfig(path, cfg); err != nil {
			return err
		}
		fmt.Fprintf(w, "  %s✓%s config   %s\n", color(colorGreen), color(colorReset), path)
	}
	return nil
}

// writeConfig saves cfg as YAML, refusing to overwrite an existing file.
func writeConfig(path string, cfg config.Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
