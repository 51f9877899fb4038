// Package capture takes element screenshots by cropping a viewport screenshot
// to the element's bounding box.
package capture

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	"image/png"

	"github.com/devicelab-dev/visual-diff/pkg/core"
	"github.com/devicelab-dev/visual-diff/pkg/logger"
)

// Rect is an element's bounding box in page coordinates, in CSS pixels.
type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Element is something on the page that can report where it is.
type Element interface {
	Rect(ctx context.Context) (Rect, error)
}

// Browser is the page-level surface needed to capture an element.
type Browser interface {
	// ScrollTo scrolls the window vertically and returns the resulting scrollY,
	// which may differ from y near the end of the page.
	ScrollTo(ctx context.Context, y int) (int, error)
	// Screenshot returns the visible viewport as PNG.
	Screenshot(ctx context.Context) ([]byte, error)
}

// Capturer produces encoded image bytes for an element.
type Capturer interface {
	Capture(ctx context.Context, el Element, scrollIntoView bool) ([]byte, error)
}

// ElementCapturer implements Capturer on top of a Browser.
type ElementCapturer struct {
	browser Browser
}

// NewElementCapturer creates an ElementCapturer.
func NewElementCapturer(browser Browser) *ElementCapturer {
	return &ElementCapturer{browser: browser}
}

// Capture crops the viewport screenshot to el. The crop box is one pixel larger
// than the element on the top and left, one on the right and zero at the bottom,
// which keeps borders drawn on the element's edge.
func (c *ElementCapturer) Capture(ctx context.Context, el Element, scrollIntoView bool) ([]byte, error) {
	if el == nil {
		return nil, core.ErrCapture.WithMessage("no element given")
	}

	rect, err := el.Rect(ctx)
	if err != nil {
		return nil, core.ErrCapture.WithMessage("locate element").WithCause(err)
	}

	region := CropRegion(rect)
	if scrollIntoView {
		scrollY, err := c.browser.ScrollTo(ctx, region.Min.Y-1)
		if err != nil {
			return nil, core.ErrCapture.WithMessage("scroll element into view").WithCause(err)
		}
		region = region.Sub(image.Pt(0, scrollY))
		logger.Debug("Scrolled to %d for element at %+v", scrollY, rect)
	}

	screenshot, err := c.browser.Screenshot(ctx)
	if err != nil {
		return nil, core.ErrCapture.WithMessage("take screenshot").WithCause(err)
	}

	return Crop(screenshot, region)
}

// CropRegion returns the crop box for an element rectangle.
func CropRegion(r Rect) image.Rectangle {
	top := r.Y - 1
	left := r.X - 1
	return image.Rect(left, top, left+r.Width+2, top+r.Height+1)
}

// Crop cuts region out of a PNG and returns it as PNG. The region is clamped
// to the image bounds; a region entirely outside the image is an error.
func Crop(data []byte, region image.Rectangle) ([]byte, error) {
	src, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, core.ErrCapture.WithMessage("decode screenshot").WithCause(err)
	}

	clamped := region.Intersect(src.Bounds())
	if clamped.Empty() {
		return nil, core.ErrCapture.WithMessage(
			fmt.Sprintf("element region %v is outside the screenshot %v", region, src.Bounds()))
	}
	if clamped != region {
		logger.Debug("Clamped crop region %v to %v", region, clamped)
	}

	dst := image.NewRGBA(image.Rect(0, 0, clamped.Dx(), clamped.Dy()))
	draw.Draw(dst, dst.Bounds(), src, clamped.Min, draw.Src)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, core.ErrCapture.WithMessage("encode cropped screenshot").WithCause(err)
	}
	return buf.Bytes(), nil
}
