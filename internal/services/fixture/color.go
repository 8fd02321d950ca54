// Package fixture implements the head units driven by the frame engine:
// power switches, dimmers and RGBW pin spots.
package fixture

import (
	"fmt"
	"math"

	"github.com/lucasb-eyer/go-colorful"
)

// Channel indexes into a Color.
const (
	Red = iota
	Green
	Blue
	White
)

// MaxLevel is the largest value a channel can carry on the wire.
const MaxLevel = 255

// Color is an RGBW value. Channels are kept as float64 so a fade can move
// by less than one step per frame.
type Color [4]float64

// Black is all channels off.
var Black = Color{}

// RGBW builds a Color from byte values.
func RGBW(r, g, b, w byte) Color {
	return Color{float64(r), float64(g), float64(b), float64(w)}
}

// ParseHex parses "#rrggbb" (or "#rgb") into a Color with the given white level.
func ParseHex(hex string, white float64) (Color, error) {
	c, err := colorful.Hex(hex)
	if err != nil {
		return Black, fmt.Errorf("parse color %q: %w", hex, err)
	}
	return FromColorful(c, white), nil
}

// FromColorful converts a go-colorful color, clamped to sRGB.
func FromColorful(c colorful.Color, white float64) Color {
	r, g, b := c.Clamped().RGB255()
	return Color{float64(r), float64(g), float64(b), white}.Clamp()
}

// Difference returns the per-channel magnitude of b-a and its direction
// (-1, 0 or +1 per channel).
func Difference(a, b Color) (magnitude Color, direction Color) {
	for i := range a {
		d := b[i] - a[i]
		switch {
		case d > 0:
			direction[i] = 1
		case d < 0:
			direction[i] = -1
		}
		magnitude[i] = math.Abs(d)
	}
	return magnitude, direction
}

// Scale multiplies every channel by f.
func (c Color) Scale(f float64) Color {
	for i := range c {
		c[i] *= f
	}
	return c
}

// Clamp limits every channel to 0..MaxLevel. NaN becomes 0.
func (c Color) Clamp() Color {
	for i := range c {
		if math.IsNaN(c[i]) {
			c[i] = 0
			continue
		}
		c[i] = math.Max(0, math.Min(MaxLevel, c[i]))
	}
	return c
}

// IsBlack reports whether every channel rounds to zero.
func (c Color) IsBlack() bool {
	return c.Bytes() == [4]byte{}
}

// Bytes rounds and clamps the channels for the wire.
func (c Color) Bytes() [4]byte {
	var out [4]byte
	for i, v := range c.Clamp() {
		out[i] = byte(math.Round(v))
	}
	return out
}

// Brightest returns the largest channel value.
func (c Color) Brightest() float64 {
	return math.Max(math.Max(c[Red], c[Green]), math.Max(c[Blue], c[White]))
}

func (c Color) String() string {
	b := c.Bytes()
	return fmt.Sprintf("rgbw(%d,%d,%d,%d)", b[Red], b[Green], b[Blue], b[White])
}
