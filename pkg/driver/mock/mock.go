// Package mock provides an in-memory browser and elements for testing without
// a real browser.
package mock

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"sync"
	"time"

	"github.com/devicelab-dev/visual-diff/pkg/capture"
)

// Browser is a mock implementation of capture.Browser. It renders a viewport
// of Page starting at the current scroll offset.
type Browser struct {
	// Configuration
	Config Config

	mu              sync.Mutex
	scrollY         int
	screenshotCount int
	scrollCalls     []int
}

// Config configures mock browser behavior.
type Config struct {
	// Page is the full page. Defaults to a 200x400 white page.
	Page image.Image
	// ViewportWidth/ViewportHeight default to the page size.
	ViewportWidth  int
	ViewportHeight int
	// FailOnScreenshot makes screenshot N fail (1-indexed). 0 = never fail.
	FailOnScreenshot int
	// ScrollErr is returned by every ScrollTo call when set.
	ScrollErr error
	// Delay adds artificial latency to each call
	Delay time.Duration
}

// New creates a new mock browser.
func New(cfg Config) *Browser {
	if cfg.Page == nil {
		cfg.Page = SolidImage(200, 400, color.White)
	}
	bounds := cfg.Page.Bounds()
	if cfg.ViewportWidth == 0 {
		cfg.ViewportWidth = bounds.Dx()
	}
	if cfg.ViewportHeight == 0 {
		cfg.ViewportHeight = bounds.Dy()
	}
	return &Browser{Config: cfg}
}

// ScrollTo clamps y to the scrollable range like a real window does.
func (b *Browser) ScrollTo(ctx context.Context, y int) (int, error) {
	if err := b.wait(ctx); err != nil {
		return 0, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.scrollCalls = append(b.scrollCalls, y)
	if b.Config.ScrollErr != nil {
		return 0, b.Config.ScrollErr
	}

	maxScroll := b.Config.Page.Bounds().Dy() - b.Config.ViewportHeight
	if maxScroll < 0 {
		maxScroll = 0
	}
	b.scrollY = min(max(y, 0), maxScroll)
	return b.scrollY, nil
}

// Screenshot returns the current viewport as PNG.
func (b *Browser) Screenshot(ctx context.Context) ([]byte, error) {
	if err := b.wait(ctx); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.screenshotCount++
	if b.Config.FailOnScreenshot > 0 && b.screenshotCount == b.Config.FailOnScreenshot {
		return nil, fmt.Errorf("mock failure on screenshot %d", b.screenshotCount)
	}

	page := b.Config.Page
	viewport := image.NewRGBA(image.Rect(0, 0, b.Config.ViewportWidth, b.Config.ViewportHeight))
	draw.Draw(viewport, viewport.Bounds(), page, page.Bounds().Min.Add(image.Pt(0, b.scrollY)), draw.Src)

	var buf bytes.Buffer
	if err := png.Encode(&buf, viewport); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ScrollY returns the current scroll offset.
func (b *Browser) ScrollY() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.scrollY
}

// ScrollCalls returns the y values passed to ScrollTo, in order.
func (b *Browser) ScrollCalls() []int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]int(nil), b.scrollCalls...)
}

// ScreenshotCount returns how many screenshots were requested.
func (b *Browser) ScreenshotCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.screenshotCount
}

func (b *Browser) wait(ctx context.Context) error {
	if b.Config.Delay <= 0 {
		return ctx.Err()
	}
	select {
	case <-time.After(b.Config.Delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Element is a mock capture.Element with a fixed position.
type Element struct {
	Bounds capture.Rect
	Err    error
}

// NewElement creates an element at the given page position.
func NewElement(x, y, width, height int) *Element {
	return &Element{Bounds: capture.Rect{X: x, Y: y, Width: width, Height: height}}
}

// Rect returns the configured bounds or error.
func (e *Element) Rect(ctx context.Context) (capture.Rect, error) {
	if err := ctx.Err(); err != nil {
		return capture.Rect{}, err
	}
	if e.Err != nil {
		return capture.Rect{}, e.Err
	}
	return e.Bounds, nil
}

// SolidImage returns a w x h image filled with c.
func SolidImage(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: c}, image.Point{}, draw.Src)
	return img
}

// EncodePNG encodes img, panicking on failure. Intended for test fixtures.
func EncodePNG(img image.Image) []byte {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(fmt.Sprintf("mock: encode png: %v", err))
	}
	return buf.Bytes()
}

var (
	_ capture.Browser = (*Browser)(nil)
	_ capture.Element = (*Element)(nil)
)
