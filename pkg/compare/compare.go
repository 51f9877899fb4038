// Package compare computes the pixel difference between a base and a current
// screenshot.
//
// Pixels are compared channel by channel with a tolerance. When a pair of
// pixels differs and either pixel looks like part of an anti-aliased edge, the
// pair only counts as a mismatch if the brightness also differs noticeably, so
// font smoothing and edge blending do not fail a comparison.
package compare

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"math"
	"time"

	_ "image/jpeg" // register JPEG decoder for captures that are not PNG

	"github.com/devicelab-dev/visual-diff/pkg/core"
)

// Tolerance holds the per-channel and brightness limits, on a 0..255 scale.
type Tolerance struct {
	Red, Green, Blue, Alpha float64
	MinBrightness           float64 // Max brightness delta for an anti-aliased pair to still match
	MaxBrightness           float64 // Brightness delta above which neighbours count as contrasting
}

// Preset tolerances
var (
	// ToleranceDefault is used when anti-aliasing is not ignored.
	ToleranceDefault = Tolerance{Red: 16, Green: 16, Blue: 16, Alpha: 16, MinBrightness: 16, MaxBrightness: 240}

	// ToleranceAntialiasing is used when anti-aliasing is ignored.
	ToleranceAntialiasing = Tolerance{Red: 32, Green: 32, Blue: 32, Alpha: 32, MinBrightness: 64, MaxBrightness: 96}
)

// hueTolerance is the hue distance (0..1) above which neighbours count as a different colour.
const hueTolerance = 0.3

// Options configures a Comparator.
type Options struct {
	IgnoreAntialiasing bool
	Tolerance          *Tolerance // Overrides the preset selected by IgnoreAntialiasing
	ErrorColor         color.RGBA // Colour of mismatching pixels in the diff image
	Transparency       float64    // Opacity (0..1) of matching pixels in the diff image
}

// DefaultOptions returns the options used by the capture flow.
func DefaultOptions() Options {
	return Options{
		IgnoreAntialiasing: true,
		ErrorColor:         color.RGBA{R: 255, G: 0, B: 255, A: 255},
		Transparency:       0.3,
	}
}

// Dimension is a width/height pair. For DimensionDifference it holds
// current minus base.
type Dimension struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// IsZero reports whether both components are zero.
func (d Dimension) IsZero() bool {
	return d.Width == 0 && d.Height == 0
}

// Result is the outcome of comparing two images.
type Result struct {
	MismatchPercentage  float64       // 0..100, rounded to two decimals
	IsSameDimensions    bool          // Base and current share width and height
	DimensionDifference Dimension     // Current minus base
	AnalysisTime        time.Duration // Time spent decoding and comparing
	DiffPixels          int           // Mismatching pixels
	TotalPixels         int           // Pixels on the compared canvas
	DiffImage           []byte        // PNG; nil when MismatchPercentage is zero
}

// Comparator compares images. It holds no mutable state and is safe for
// concurrent use.
type Comparator struct {
	opts      Options
	tolerance Tolerance
}

// New creates a Comparator.
func New(opts Options) *Comparator {
	tol := ToleranceDefault
	if opts.IgnoreAntialiasing {
		tol = ToleranceAntialiasing
	}
	if opts.Tolerance != nil {
		tol = *opts.Tolerance
	}
	if opts.ErrorColor == (color.RGBA{}) {
		opts.ErrorColor = DefaultOptions().ErrorColor
	}
	return &Comparator{opts: opts, tolerance: tol}
}

// Default creates a Comparator with DefaultOptions.
func Default() *Comparator {
	return New(DefaultOptions())
}

// Compare decodes two encoded images and compares them.
func (c *Comparator) Compare(base, current []byte) (*Result, error) {
	start := time.Now()

	baseImg, err := decode(base, "base")
	if err != nil {
		return nil, err
	}
	currentImg, err := decode(current, "current")
	if err != nil {
		return nil, err
	}

	result, err := c.CompareImages(baseImg, currentImg)
	if err != nil {
		return nil, err
	}
	result.AnalysisTime = time.Since(start)
	return result, nil
}

// CompareImages compares two decoded images.
func (c *Comparator) CompareImages(base, current image.Image) (*Result, error) {
	start := time.Now()

	a := newPixelBuffer(current)
	b := newPixelBuffer(base)

	width := max(a.width, b.width)
	height := max(a.height, b.height)
	total := width * height

	result := &Result{
		IsSameDimensions: a.width == b.width && a.height == b.height,
		DimensionDifference: Dimension{
			Width:  a.width - b.width,
			Height: a.height - b.height,
		},
		TotalPixels: total,
	}
	if total == 0 {
		result.AnalysisTime = time.Since(start)
		return result, nil
	}

	diff := image.NewRGBA(image.Rect(0, 0, width, height))

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			p1, ok1 := a.at(x, y)
			p2, ok2 := b.at(x, y)

			switch {
			case !ok1 || !ok2:
				// Outside one of the images
				result.DiffPixels++
				diff.SetRGBA(x, y, c.opts.ErrorColor)
			case c.isSimilar(p1, p2):
				diff.SetRGBA(x, y, c.faded(p1))
			case c.opts.IgnoreAntialiasing && (c.isAntialiased(a, x, y) || c.isAntialiased(b, x, y)):
				if c.isBrightnessSimilar(p1, p2) {
					diff.SetRGBA(x, y, c.grayscale(p1))
				} else {
					result.DiffPixels++
					diff.SetRGBA(x, y, c.opts.ErrorColor)
				}
			default:
				result.DiffPixels++
				diff.SetRGBA(x, y, c.opts.ErrorColor)
			}
		}
	}

	result.MismatchPercentage = roundPercent(float64(result.DiffPixels) / float64(total) * 100)

	if result.MismatchPercentage != 0 {
		var buf bytes.Buffer
		if err := png.Encode(&buf, diff); err != nil {
			return nil, core.ErrComparison.WithMessage("encode diff image").WithCause(err)
		}
		result.DiffImage = buf.Bytes()
	}

	result.AnalysisTime = time.Since(start)
	return result, nil
}

func decode(data []byte, label string) (image.Image, error) {
	if len(data) == 0 {
		return nil, core.ErrComparison.WithMessagef("decode %s image: empty data", label)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, core.ErrComparison.WithMessagef("decode %s image", label).WithCause(err)
	}
	return img, nil
}

// roundPercent rounds to two decimals but never reports a real difference as 0.
func roundPercent(p float64) float64 {
	if p == 0 {
		return 0
	}
	r := math.Round(p*100) / 100
	if r == 0 {
		return 0.01
	}
	return r
}

// pixel is a non-premultiplied colour on a 0..255 scale with derived values.
type pixel struct {
	r, g, b, a float64
	brightness float64
	hue        float64
}

func (p pixel) sameRGBA(o pixel) bool {
	return p.r == o.r && p.g == o.g && p.b == o.b && p.a == o.a
}

// pixelBuffer caches an image as non-premultiplied pixels so neighbour
// lookups during anti-aliasing detection do not re-convert colours.
type pixelBuffer struct {
	width, height int
	pixels        []pixel
}

func newPixelBuffer(img image.Image) *pixelBuffer {
	bounds := img.Bounds()
	buf := &pixelBuffer{
		width:  bounds.Dx(),
		height: bounds.Dy(),
		pixels: make([]pixel, bounds.Dx()*bounds.Dy()),
	}
	for y := 0; y < buf.height; y++ {
		for x := 0; x < buf.width; x++ {
			c := color.NRGBAModel.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.NRGBA)
			p := pixel{r: float64(c.R), g: float64(c.G), b: float64(c.B), a: float64(c.A)}
			p.brightness = 0.3*p.r + 0.59*p.g + 0.11*p.b
			p.hue = hue(p)
			buf.pixels[y*buf.width+x] = p
		}
	}
	return buf
}

func (b *pixelBuffer) at(x, y int) (pixel, bool) {
	if x < 0 || y < 0 || x >= b.width || y >= b.height {
		return pixel{}, false
	}
	return b.pixels[y*b.width+x], true
}

// hue returns the HSL hue of p on a 0..1 scale.
func hue(p pixel) float64 {
	r, g, b := p.r/255, p.g/255, p.b/255
	hi := math.Max(r, math.Max(g, b))
	lo := math.Min(r, math.Min(g, b))
	if hi == lo {
		return 0
	}
	d := hi - lo
	var h float64
	switch hi {
	case r:
		h = (g - b) / d
		if g < b {
			h += 6
		}
	case g:
		h = (b-r)/d + 2
	default:
		h = (r-g)/d + 4
	}
	return h / 6
}

func within(a, b, tolerance float64) bool {
	return math.Abs(a-b) <= tolerance
}

func (c *Comparator) isSimilar(p1, p2 pixel) bool {
	t := c.tolerance
	return within(p1.r, p2.r, t.Red) &&
		within(p1.g, p2.g, t.Green) &&
		within(p1.b, p2.b, t.Blue) &&
		within(p1.a, p2.a, t.Alpha)
}

func (c *Comparator) isBrightnessSimilar(p1, p2 pixel) bool {
	return within(p1.a, p2.a, c.tolerance.Alpha) &&
		within(p1.brightness, p2.brightness, c.tolerance.MinBrightness)
}

func (c *Comparator) isContrasting(p1, p2 pixel) bool {
	return math.Abs(p1.brightness-p2.brightness) > c.tolerance.MaxBrightness
}

// isAntialiased reports whether the pixel at (x, y) looks like part of a
// smoothed edge: at least two high-contrast or different-hue neighbours, or
// fewer than two identical neighbours.
func (c *Comparator) isAntialiased(buf *pixelBuffer, x, y int) bool {
	source, ok := buf.at(x, y)
	if !ok {
		return false
	}

	var highContrast, differentHue, equivalent int
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			target, ok := buf.at(x+dx, y+dy)
			if !ok {
				continue
			}
			if c.isContrasting(source, target) {
				highContrast++
			}
			if source.sameRGBA(target) {
				equivalent++
			}
			if math.Abs(target.hue-source.hue) > hueTolerance {
				differentHue++
			}
			if differentHue > 1 || highContrast > 1 {
				return true
			}
		}
	}
	return equivalent < 2
}

func (c *Comparator) faded(p pixel) color.RGBA {
	gray := c.grayscale(p)
	return blendWhite(gray, c.opts.Transparency)
}

func (c *Comparator) grayscale(p pixel) color.RGBA {
	v := uint8(math.Round(p.brightness))
	return color.RGBA{R: v, G: v, B: v, A: 255}
}

// blendWhite mixes c over white with the given opacity.
func blendWhite(c color.RGBA, opacity float64) color.RGBA {
	if opacity <= 0 || opacity > 1 {
		opacity = 1
	}
	mix := func(v uint8) uint8 {
		return uint8(math.Round(float64(v)*opacity + 255*(1-opacity)))
	}
	return color.RGBA{R: mix(c.R), G: mix(c.G), B: mix(c.B), A: 255}
}
