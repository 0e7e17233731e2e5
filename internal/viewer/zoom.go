package viewer

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Zoom limits for numeric scales.
const (
	MinScale  = 0.25
	MaxScale  = 3.0
	ZoomStep  = 0.25
	pageInset = 40
)

// ZoomMode selects how the render scale is chosen.
type ZoomMode string

const (
	// Numeric renders at Zoom.Scale.
	Numeric ZoomMode = "numeric"
	// Fit scales the page width to the viewport width.
	Fit ZoomMode = "fit"
	// Auto scales the whole page into the viewport.
	Auto ZoomMode = "auto"
)

// Zoom is either a numeric scale or one of the symbolic modes.
type Zoom struct {
	Mode  ZoomMode
	Scale float64
}

// Scale returns a numeric zoom clamped to [MinScale, MaxScale].
func Scale(s float64) Zoom {
	return Zoom{Mode: Numeric, Scale: clampScale(s)}
}

// Symbolic reports whether the scale depends on the viewport.
func (z Zoom) Symbolic() bool {
	return z.Mode == Fit || z.Mode == Auto
}

func (z Zoom) String() string {
	if z.Symbolic() {
		return string(z.Mode)
	}
	return strconv.FormatFloat(z.Scale, 'f', 2, 64)
}

// ParseZoom accepts "fit", "auto" or a positive number such as "1.25".
func ParseZoom(s string) (Zoom, error) {
	switch v := strings.ToLower(strings.TrimSpace(s)); v {
	case string(Fit):
		return Zoom{Mode: Fit}, nil
	case string(Auto):
		return Zoom{Mode: Auto}, nil
	default:
		f, err := strconv.ParseFloat(strings.TrimSuffix(v, "%"), 64)
		if err != nil || f <= 0 || math.IsNaN(f) || math.IsInf(f, 0) {
			return Zoom{}, fmt.Errorf("invalid zoom %q", s)
		}
		if strings.HasSuffix(v, "%") {
			f /= 100
		}
		return Scale(f), nil
	}
}

// resolve returns the render scale of a page of pageW x pageH points shown
// in a viewport of viewW x viewH pixels. Without a viewport the symbolic
// modes render at 1.
func (z Zoom) resolve(pageW, pageH float64, viewW, viewH int) float64 {
	if !z.Symbolic() {
		return z.Scale
	}
	if viewW <= 0 || pageW <= 0 {
		return 1
	}
	width := math.Max(float64(viewW-pageInset), 1) / pageW
	if z.Mode == Fit {
		return width
	}
	if viewH <= 0 || pageH <= 0 {
		return width
	}
	height := math.Max(float64(viewH-pageInset), 1) / pageH
	return math.Min(width, height)
}

func clampScale(s float64) float64 {
	return math.Min(MaxScale, math.Max(MinScale, s))
}
