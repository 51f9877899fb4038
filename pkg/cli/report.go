package cli

import (
	"fmt"
	"path/filepath"

	"github.com/devicelab-dev/visual-diff/pkg/report"
	"github.com/urfave/cli/v2"
)

func reportCommand() *cli.Command {
	return &cli.Command{
		Name:      "report",
		Usage:     "Regenerate the HTML report from report.json",
		ArgsUsage: "[report-dir]",
		Description: `Render report.html again from a run's report.json. The report directory
defaults to the current directory in test mode and the base directory in
rebase mode.

Examples:
  visual-diff report
  visual-diff report screenshots/current --allure
  visual-diff report --output visual.html --title "Nightly visuals"`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "output",
				Usage: "Where to write the HTML report (default: <report-dir>/report.html)",
			},
			&cli.StringFlag{
				Name:  "title",
				Usage: "Report title (default: the run's title)",
			},
			&cli.BoolFlag{
				Name:  "allure",
				Usage: "Also write allure-results/",
			},
		},
		Action: runReport,
	}
}

func runReport(c *cli.Context) error {
	dir := c.Args().First()
	if dir == "" {
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		dir = cfg.ReportDir()
	}

	run, err := report.ReadJSON(dir)
	if err != nil {
		return fmt.Errorf("failed to read report: %w", err)
	}

	htmlCfg := report.HTMLConfig{OutputPath: c.String("output"), Title: c.String("title")}
	if err := report.WriteHTML(dir, run, htmlCfg); err != nil {
		return fmt.Errorf("failed to write HTML report: %w", err)
	}
	out := htmlCfg.OutputPath
	if out == "" {
		out = filepath.Join(dir, report.HTMLFile)
	}
	fmt.Fprintf(c.App.Writer, "  %s✓%s %s\n", color(colorGreen), color(colorReset), out)

	if c.Bool("allure") {
		if err := report.GenerateAllure(dir, run); err != nil {
			return fmt.Errorf("failed to write Allure results: %w", err)
		}
		fmt.Fprintf(c.App.Writer, "  %s✓%s %s\n", color(colorGreen), color(colorReset), filepath.Join(dir, report.AllureDir))
	}

	printSummary(c.App.Writer, run, "")
	return nil
}
