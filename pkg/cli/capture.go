package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/devicelab-dev/visual-diff/pkg/capture"
	"github.com/devicelab-dev/visual-diff/pkg/logger"
	"github.com/devicelab-dev/visual-diff/pkg/store"
	"github.com/devicelab-dev/visual-diff/pkg/tester"
	"github.com/urfave/cli/v2"
)

func captureCommand() *cli.Command {
	return &cli.Command{
		Name:  "capture",
		Usage: "Capture page elements in Chrome and compare them",
		Description: `Open a page in Chrome and screenshot one element per --target.

In test mode each capture is compared against its base image; in rebase mode
it replaces the base image. Each target is reported as a spec in a suite named
after the URL.

Examples:
  visual-diff capture --url https://example.com --target header=#header
  visual-diff --mode rebase capture --url http://localhost:8080 \
    --target nav=nav --target footer=footer --scroll`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "url",
				Usage:    "Page to open",
				Required: true,
			},
			&cli.StringSliceFlag{
				Name:     "target",
				Usage:    "Screenshot to take as name=css-selector (repeatable)",
				Required: true,
			},
			&cli.BoolFlag{
				Name:  "scroll",
				Usage: "Scroll each element into view before capturing",
			},
			&cli.BoolFlag{
				Name:  "headless",
				Usage: "Run Chrome headless",
				Value: true,
			},
			&cli.IntFlag{
				Name:  "width",
				Usage: "Window width in pixels",
				Value: 1280,
			},
			&cli.IntFlag{
				Name:  "height",
				Usage: "Window height in pixels",
				Value: 800,
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Overall timeout for the browser session",
				Value: 2 * time.Minute,
			},
		},
		Action: runCapture,
	}
}

// target is one screenshot requested with --target.
type target struct {
	Name     string
	Selector string
}

// parseTargets splits name=selector pairs. The selector may itself contain '='.
func parseTargets(values []string) ([]target, error) {
	targets := make([]target, 0, len(values))
	seen := make(map[string]bool, len(values))
	for _, v := range values {
		name, selector, ok := strings.Cut(v, "=")
		name, selector = strings.TrimSpace(name), strings.TrimSpace(selector)
		if !ok || name == "" || selector == "" {
			return nil, fmt.Errorf("invalid target %q: expected name=selector", v)
		}
		if err := store.ValidateName(name); err != nil {
			return nil, err
		}
		if seen[name] {
			return nil, fmt.Errorf("duplicate target name %q", name)
		}
		seen[name] = true
		targets = append(targets, target{Name: name, Selector: selector})
	}
	return targets, nil
}

func runCapture(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	targets, err := parseTargets(c.StringSlice("target"))
	if err != nil {
		return err
	}
	url := c.String("url")

	sess, err := newSession(c.App.Writer, cfg, tester.WithCapturer(capture.NewElementCapturer(capture.NewChrome())))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
	defer cancel()
	browserCtx, closeBrowser := capture.NewChromeContext(ctx, c.Bool("headless"), c.Int("width"), c.Int("height"))
	defer closeBrowser()

	logger.Info("Opening %s", url)
	if err := capture.Open(browserCtx, url); err != nil {
		return err
	}

	if err := sess.begin(url, len(targets)); err != nil {
		return err
	}
	scroll := c.Bool("scroll")
	for _, t := range targets {
		t := t
		sess.spec(t.Name, func() {
			sess.tester.TakeScreenshot(browserCtx, capture.Selector{Query: t.Selector}, t.Name, scroll)
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
