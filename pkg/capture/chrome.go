package capture

import (
	"context"
	"fmt"
	"math"

	"github.com/chromedp/chromedp"
)

// Chrome is a Browser backed by chromedp. The ctx passed to its methods must
// be a chromedp context bound to the page's target.
type Chrome struct{}

// NewChrome creates a Chrome browser binding.
func NewChrome() *Chrome {
	return &Chrome{}
}

// ScrollTo scrolls the window and returns the resulting scrollY.
func (c *Chrome) ScrollTo(ctx context.Context, y int) (int, error) {
	var scrollY float64
	js := fmt.Sprintf(`window.scrollTo(0, %d); window.scrollY`, y)
	if err := chromedp.Run(ctx, chromedp.Evaluate(js, &scrollY)); err != nil {
		return 0, fmt.Errorf("scroll to %d: %w", y, err)
	}
	return int(math.Round(scrollY)), nil
}

// Screenshot captures the viewport as PNG.
func (c *Chrome) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := chromedp.Run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, fmt.Errorf("screenshot: %w", err)
	}
	return buf, nil
}

// Selector is an Element located by a CSS selector.
type Selector struct {
	Query string
}

// selectorRectJS resolves a selector to its page-relative bounding box.
const selectorRectJS = `(() => {
	const el = document.querySelector(%q);
	if (!el) return {found: false};
	const r = el.getBoundingClientRect();
	return {
		found: true,
		x: r.left + window.scrollX,
		y: r.top + window.scrollY,
		width: r.width,
		height: r.height
	};
})()`

type selectorRect struct {
	Found  bool    `json:"found"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Rect returns the element's bounding box in page coordinates.
func (s Selector) Rect(ctx context.Context) (Rect, error) {
	var res selectorRect
	if err := chromedp.Run(ctx, chromedp.Evaluate(fmt.Sprintf(selectorRectJS, s.Query), &res)); err != nil {
		return Rect{}, fmt.Errorf("locate %q: %w", s.Query, err)
	}
	if !res.Found {
		return Rect{}, fmt.Errorf("no element matches %q", s.Query)
	}
	return Rect{
		X:      int(math.Round(res.X)),
		Y:      int(math.Round(res.Y)),
		Width:  int(math.Round(res.Width)),
		Height: int(math.Round(res.Height)),
	}, nil
}

// Open navigates to url and waits until the body is visible.
func Open(ctx context.Context, url string) error {
	if err := chromedp.Run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitVisible("body", chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("open %s: %w", url, err)
	}
	return nil
}

// NewChromeContext starts a browser and returns a chromedp context for a new
// tab. Cancel releases the tab and the browser process.
func NewChromeContext(parent context.Context, headless bool, width, height int) (context.Context, context.CancelFunc) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", headless),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(width, height),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(parent, opts...)
	ctx, cancel := chromedp.NewContext(allocCtx)
	return ctx, func() {
		cancel()
		allocCancel()
	}
}

var (
	_ Browser  = (*Chrome)(nil)
	_ Element  = Selector{}
	_ Capturer = (*ElementCapturer)(nil)
)
