package viewer

import (
	"image"
	"image/color"
	"math"
	"sync"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/f64"
	"golang.org/x/image/math/fixed"
)

// DefaultWatermarkText is stamped on every rendered page.
const DefaultWatermarkText = "CONFIDENTIAL - DO NOT PRINT"

const (
	watermarkSize  = 48
	watermarkAngle = -math.Pi / 4
)

// watermarkColor is red at 10% opacity.
var watermarkColor = color.NRGBA{R: 0xff, A: 0x1a}

// Watermark draws a line of text centered on a frame, rotated and at low
// opacity. It is safe for concurrent use.
type Watermark struct {
	text  string
	glyph *image.RGBA
}

var (
	defaultWatermark     *Watermark
	defaultWatermarkOnce sync.Once
)

// DefaultWatermark returns the shared watermark with DefaultWatermarkText.
func DefaultWatermark() *Watermark {
	defaultWatermarkOnce.Do(func() {
		defaultWatermark = NewWatermark(DefaultWatermarkText)
	})
	return defaultWatermark
}

// NewWatermark prepares text for stamping.
func NewWatermark(text string) *Watermark {
	face := watermarkFace()
	defer face.Close()

	m := face.Metrics()
	width := font.MeasureString(face, text).Ceil()
	height := (m.Ascent + m.Descent).Ceil()
	glyph := image.NewRGBA(image.Rect(0, 0, max(width, 1), max(height, 1)))
	d := &font.Drawer{
		Dst:  glyph,
		Src:  image.NewUniform(watermarkColor),
		Face: face,
		Dot:  fixed.Point26_6{X: 0, Y: m.Ascent},
	}
	d.DrawString(text)
	return &Watermark{text: text, glyph: glyph}
}

// Text returns the stamped text.
func (w *Watermark) Text() string {
	return w.text
}

// Apply stamps the watermark onto the center of img.
func (w *Watermark) Apply(img draw.Image) {
	b := img.Bounds()
	if b.Empty() || w.text == "" {
		return
	}
	gb := w.glyph.Bounds()
	sx, sy := float64(gb.Dx())/2, float64(gb.Dy())/2
	cx := float64(b.Min.X) + float64(b.Dx())/2
	cy := float64(b.Min.Y) + float64(b.Dy())/2
	cos, sin := math.Cos(watermarkAngle), math.Sin(watermarkAngle)

	// Rotate the glyph about its center and move that center onto the
	// image center.
	s2d := f64.Aff3{
		cos, -sin, cx - (cos*sx - sin*sy),
		sin, cos, cy - (sin*sx + cos*sy),
	}
	draw.BiLinear.Transform(img, s2d, w.glyph, gb, draw.Over, nil)
}

// watermarkFace returns Go Regular at the watermark size, falling back to
// the fixed bitmap face.
func watermarkFace() font.Face {
	f, err := opentype.Parse(goregular.TTF)
	if err != nil {
		return basicfont.Face7x13
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    watermarkSize,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return basicfont.Face7x13
	}
	return face
}
