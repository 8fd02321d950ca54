// Package command decodes fixture commands and applies them to head units
// through the capabilities each unit supports.
package command

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/bbernstein/lacylights-dmx/internal/services/dmx"
	"github.com/bbernstein/lacylights-dmx/internal/services/fixture"
)

// Op names a fixture operation.
type Op string

const (
	OpSetColor  Op = "setColor"
	OpFadeTo    Op = "fadeTo"
	OpFadeIn    Op = "fadeIn"
	OpSetPower  Op = "setPower"
	OpRunEffect Op = "runEffect"
	OpGoDark    Op = "goDark"
)

var (
	ErrUnknownOp   = errors.New("unknown op")
	ErrUnsupported = errors.New("operation not supported by fixture")
	ErrMalformed   = errors.New("malformed command")
)

// Capabilities a head unit may implement.
type (
	Colorer interface {
		SetColor(c fixture.Color, strobe int)
	}
	ColorFader interface {
		FadeTo(c fixture.Color, seconds, acceleration float64)
	}
	OptionFader interface {
		Fade(opts fixture.FaderOptions)
	}
	FadeInner interface {
		FadeIn(c fixture.Color, seconds float64)
	}
	Switch interface {
		SetPower(on bool)
	}
	EffectRunner interface {
		RunEffect(id int)
	}
)

// Color accepts "#rrggbb", {"r":..,"g":..,"b":..,"w":..} or [r,g,b,w] in JSON.
type Color struct {
	fixture.Color
}

type rgbwObject struct {
	R float64 `json:"r"`
	G float64 `json:"g"`
	B float64 `json:"b"`
	W float64 `json:"w"`
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *Color) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	switch data[0] {
	case '"':
		var hex string
		if err := json.Unmarshal(data, &hex); err != nil {
			return err
		}
		parsed, err := fixture.ParseHex(hex, 0)
		if err != nil {
			return err
		}
		c.Color = parsed
	case '[':
		var vals []float64
		if err := json.Unmarshal(data, &vals); err != nil {
			return err
		}
		if len(vals) < 3 || len(vals) > 4 {
			return fmt.Errorf("color array needs 3 or 4 values, got %d", len(vals))
		}
		c.Color = fixture.Black
		copy(c.Color[:], vals)
	default:
		var obj rgbwObject
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		c.Color = fixture.Color{obj.R, obj.G, obj.B, obj.W}
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (c Color) MarshalJSON() ([]byte, error) {
	b := c.Bytes()
	return json.Marshal(rgbwObject{R: float64(b[0]), G: float64(b[1]), B: float64(b[2]), W: float64(b[3])})
}

// Command is one fixture operation. Only the fields used by Op are read.
type Command struct {
	Op           Op      `json:"op"`
	Color        Color   `json:"color,omitempty"`
	Strobe       int     `json:"strobe,omitempty"`
	Seconds      float64 `json:"seconds,omitempty"`
	Acceleration float64 `json:"acceleration,omitempty"`
	Layover      float64 `json:"layover,omitempty"`
	Power        bool    `json:"power,omitempty"`
	Effect       int     `json:"effect,omitempty"`
}

// Decode parses a JSON command and normalizes it.
func Decode(data []byte) (Command, error) {
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		return Command{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return cmd.Normalize()
}

// Normalize checks the op and clamps values into range.
func (c Command) Normalize() (Command, error) {
	switch c.Op {
	case OpSetColor, OpFadeTo, OpFadeIn, OpSetPower, OpRunEffect, OpGoDark:
	default:
		return c, fmt.Errorf("%w: %q", ErrUnknownOp, c.Op)
	}

	c.Color.Color = c.Color.Clamp()
	c.Strobe = clamp(c.Strobe, 0, fixture.MaxStrobe)
	c.Seconds = math.Min(nonNegative(c.Seconds), fixture.MaxFadeSeconds)
	c.Acceleration = nonNegative(c.Acceleration)
	c.Layover = math.Min(nonNegative(c.Layover), fixture.MaxFadeSeconds)
	c.Effect = clamp(c.Effect, 0, len(fixture.Effects())-1)
	return c, nil
}

// Apply runs cmd against unit.
func Apply(unit dmx.HeadUnit, cmd Command) error {
	switch cmd.Op {
	case OpGoDark:
		unit.Darken()

	case OpSetColor:
		u, ok := unit.(Colorer)
		if !ok {
			return unsupported(unit, cmd)
		}
		u.SetColor(cmd.Color.Color, cmd.Strobe)

	case OpFadeTo:
		if u, ok := unit.(OptionFader); ok && cmd.Layover > 0 {
			u.Fade(fixture.FaderOptions{
				Destination:   cmd.Color.Color,
				TravelSeconds: cmd.Seconds,
				Acceleration:  cmd.Acceleration,
				Layover:       cmd.Layover,
			})
			return nil
		}
		u, ok := unit.(ColorFader)
		if !ok {
			return unsupported(unit, cmd)
		}
		u.FadeTo(cmd.Color.Color, cmd.Seconds, cmd.Acceleration)

	case OpFadeIn:
		u, ok := unit.(FadeInner)
		if !ok {
			return unsupported(unit, cmd)
		}
		u.FadeIn(cmd.Color.Color, cmd.Seconds)

	case OpSetPower:
		u, ok := unit.(Switch)
		if !ok {
			return unsupported(unit, cmd)
		}
		u.SetPower(cmd.Power)

	case OpRunEffect:
		u, ok := unit.(EffectRunner)
		if !ok {
			return unsupported(unit, cmd)
		}
		u.RunEffect(cmd.Effect)

	default:
		return fmt.Errorf("%w: %q", ErrUnknownOp, cmd.Op)
	}
	return nil
}

func unsupported(unit dmx.HeadUnit, cmd Command) error {
	return fmt.Errorf("%w: %s on %s", ErrUnsupported, cmd.Op, unit.Kind())
}

func clamp(v, lo, hi int) int {
	return max(lo, min(hi, v))
}

func nonNegative(v float64) float64 {
	if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
