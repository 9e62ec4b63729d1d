package imaging

import (
	"fmt"
	"image"
	"math"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// RGBColor represents an RGB color with 8-bit components.
type RGBColor struct {
	R uint8 `json:"r"` // Red component (0-255)
	G uint8 `json:"g"` // Green component (0-255)
	B uint8 `json:"b"` // Blue component (0-255)
}

// HSLColor represents a color in HSL (Hue, Saturation, Lightness) color space.
type HSLColor struct {
	H int `json:"h"` // Hue: 0-360 degrees (0=red, 120=green, 240=blue)
	S int `json:"s"` // Saturation: 0-100 percent (0=gray, 100=vivid)
	L int `json:"l"` // Lightness: 0-100 percent (0=black, 50=normal, 100=white)
}

// LabColor represents a color in CIE L*a*b* space (D65 white point).
type LabColor struct {
	L float64 `json:"l"` // Lightness: 0-1
	A float64 `json:"a"` // Green-red axis, roughly -1..1
	B float64 `json:"b"` // Blue-yellow axis, roughly -1..1
}

// ColorResult contains a color value in multiple representations.
//
// This struct provides the same color in four formats to suit different use cases:
//   - Hex: Compact string format for CSS/web usage
//   - RGB: Standard 8-bit components
//   - HSL: Perceptual color space for intuitive color operations
//   - Lab: Perceptually uniform space used by the convert stage
type ColorResult struct {
	Hex string   `json:"hex"` // Hex format "#RRGGBB"
	RGB RGBColor `json:"rgb"` // RGB components
	HSL HSLColor `json:"hsl"` // HSL representation
	Lab LabColor `json:"lab"` // L*a*b* representation
}

// SampleColor extracts the color value at a specific pixel coordinate of a
// rendered tile or source image.
//
// Parameters:
//   - img: The image to sample from.
//   - x: X coordinate (0-based, 0 = leftmost pixel).
//   - y: Y coordinate (0-based, 0 = topmost pixel).
//
// Returns:
//   - *ColorResult: The color at (x, y) in multiple formats.
//   - error: Non-nil if coordinates are outside the image bounds.
func SampleColor(img image.Image, x, y int) (*ColorResult, error) {
	bounds := img.Bounds()
	if x < bounds.Min.X || x >= bounds.Max.X || y < bounds.Min.Y || y >= bounds.Max.Y {
		return nil, fmt.Errorf("coordinates (%d,%d) outside image bounds", x, y)
	}

	// fully transparent pixels sample as black
	c, _ := colorful.MakeColor(img.At(x, y))
	r8, g8, b8 := c.RGB255()
	h, s, l := c.Hsl()
	labL, labA, labB := c.Lab()

	return &ColorResult{
		Hex: fmt.Sprintf("#%02X%02X%02X", r8, g8, b8),
		RGB: RGBColor{R: r8, G: g8, B: b8},
		HSL: HSLColor{
			H: int(math.Round(h)) % 360,
			S: int(math.Round(s * 100)),
			L: int(math.Round(l * 100)),
		},
		Lab: LabColor{L: labL, A: labA, B: labB},
	}, nil
}

// Space names the color model a converted sample triple is encoded in.
type Space int

// Target spaces of ConvertSamples.
const (
	SpaceRGB Space = iota
	SpaceLAB
	SpaceXYZ
)

// ConvertSamples converts one RGB sample triple (full 16-bit range) into the
// target space and re-encodes the components into the 16-bit range:
//   - SpaceLAB: L in 0-1, a and b offset from -1..1 to 0-1
//   - SpaceXYZ: X, Y and Z in 0-1 (clamped)
//
// SpaceRGB returns the input unchanged.
func ConvertSamples(space Space, r, g, b uint16) (uint16, uint16, uint16) {
	if space == SpaceRGB {
		return r, g, b
	}
	c := colorful.Color{R: float64(r) / 0xffff, G: float64(g) / 0xffff, B: float64(b) / 0xffff}

	var x, y, z float64
	switch space {
	case SpaceLAB:
		l, a, bb := c.Lab()
		x, y, z = l, (a+1)/2, (bb+1)/2
	case SpaceXYZ:
		x, y, z = c.Xyz()
	}
	return unit16(x), unit16(y), unit16(z)
}

func unit16(v float64) uint16 {
	switch {
	case v <= 0 || math.IsNaN(v):
		return 0
	case v >= 1:
		return 0xffff
	}
	return uint16(math.Round(v * 0xffff))
}
