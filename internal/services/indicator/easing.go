package indicator

import (
	"fmt"
	"math"
	"strings"
)

// EasingType selects the curve the lamp breathes along.
type EasingType string

const (
	// EasingLinear provides constant rate of change.
	EasingLinear EasingType = "LINEAR"
	// EasingInOutCubic provides smooth acceleration and deceleration.
	EasingInOutCubic EasingType = "EASE_IN_OUT_CUBIC"
	// EasingInOutSine provides gentle sine wave easing.
	EasingInOutSine EasingType = "EASE_IN_OUT_SINE"
	// EasingOutExponential provides sharp start, smooth end.
	EasingOutExponential EasingType = "EASE_OUT_EXPONENTIAL"
	// EasingBezier provides bezier curve easing.
	EasingBezier EasingType = "BEZIER"
	// EasingSCurve provides sigmoid function easing.
	EasingSCurve EasingType = "S_CURVE"
)

var easingTypes = []EasingType{
	EasingLinear, EasingInOutCubic, EasingInOutSine,
	EasingOutExponential, EasingBezier, EasingSCurve,
}

// ParseEasing accepts any of the easing names, case-insensitively. An empty
// name selects EasingInOutSine.
func ParseEasing(name string) (EasingType, error) {
	if name == "" {
		return EasingInOutSine, nil
	}
	for _, e := range easingTypes {
		if strings.EqualFold(name, string(e)) {
			return e, nil
		}
	}
	return "", fmt.Errorf("unknown easing %q", name)
}

// ApplyEasing maps progress (0-1) onto the easing curve.
func ApplyEasing(progress float64, easingType EasingType) float64 {
	switch easingType {
	case EasingLinear:
		return progress

	case EasingInOutCubic:
		if progress < 0.5 {
			return 4 * progress * progress * progress
		}
		temp := -2*progress + 2
		return 1 - temp*temp*temp/2

	case EasingInOutSine:
		return -(math.Cos(math.Pi*progress) - 1) / 2

	case EasingOutExponential:
		if progress == 1 {
			return 1
		}
		return 1 - math.Pow(2, -10*progress)

	case EasingBezier:
		// ease-in-out control points (0.42, 0, 0.58, 1), y only
		return cubicBezierY(0, 1, progress)

	case EasingSCurve:
		k := 10.0 // steepness
		return 1 / (1 + math.Exp(-k*(progress-0.5)))

	default:
		return progress
	}
}

func cubicBezierY(p1y, p2y, t float64) float64 {
	cy := 3 * p1y
	by := 3*(p2y-p1y) - cy
	ay := 1 - cy - by
	return ((ay*t+by)*t + cy) * t
}

// Interpolate eases between start and end.
func Interpolate(start, end, progress float64, easingType EasingType) float64 {
	if easingType == "" {
		easingType = EasingInOutSine
	}
	return start + (end-start)*ApplyEasing(progress, easingType)
}
