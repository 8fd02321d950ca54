package fixture

import "math"

// MaxFadeSeconds is the longest fade or layover a fixture accepts.
const MaxFadeSeconds = 3600

// arrivalEpsilon absorbs float error when velocity*steps lands a hair short.
const arrivalEpsilon = 1e-9

// FaderOptions describes one fade.
type FaderOptions struct {
	Origin      Color
	Destination Color
	// TravelSeconds is the fade duration, at most MaxFadeSeconds. Zero or
	// less jumps straight to the destination.
	TravelSeconds float64
	// UseOrigin makes Origin authoritative. Otherwise the fixture's current
	// color at fade start is used.
	UseOrigin bool
	// Acceleration grows the per-frame velocity by this fraction every frame.
	// Negative values are treated as zero.
	Acceleration float64
	// Layover keeps the fixture in its fade for this many seconds after arrival.
	Layover float64
}

// Fader interpolates a Color from origin to destination, one Travel per frame.
// The zero value is idle and finished.
type Fader struct {
	opts     FaderOptions
	location Color
	velocity [4]float64
	traveled bool
	finished bool
}

// NewFader returns an idle fader.
func NewFader() *Fader {
	return &Fader{finished: true}
}

// Prepare resets the fader for opts at the given frame rate.
func (f *Fader) Prepare(opts FaderOptions, frameRate float64) {
	opts.Origin = opts.Origin.Clamp()
	opts.Destination = opts.Destination.Clamp()
	opts.TravelSeconds = clampSeconds(opts.TravelSeconds)
	opts.Layover = clampSeconds(opts.Layover)
	if opts.Acceleration < 0 || math.IsNaN(opts.Acceleration) {
		opts.Acceleration = 0
	}

	f.opts = opts
	f.location = opts.Origin
	f.traveled = false
	f.finished = false

	steps := opts.TravelSeconds * frameRate
	if steps <= 0 || frameRate <= 0 {
		f.location = opts.Destination
		f.velocity = [4]float64{}
		f.finished = true
		return
	}

	magnitude, _ := Difference(opts.Origin, opts.Destination)
	for i := range magnitude {
		f.velocity[i] = magnitude[i] / steps
	}
	f.finished = f.arrived()
}

// Travel advances one frame. Channels that would pass their destination stop
// on it. It returns true once every channel has arrived.
func (f *Fader) Travel() bool {
	if f.finished {
		return true
	}
	f.traveled = true

	for i := range f.location {
		remaining := f.opts.Destination[i] - f.location[i]
		step := f.velocity[i]
		if math.Abs(remaining) <= step+arrivalEpsilon*math.Max(1, step) {
			f.location[i] = f.opts.Destination[i]
			continue
		}
		if remaining > 0 {
			f.location[i] += step
		} else {
			f.location[i] -= step
		}
	}

	if f.opts.Acceleration > 0 {
		for i := range f.velocity {
			f.velocity[i] *= 1 + f.opts.Acceleration
		}
	}

	f.finished = f.arrived()
	return f.finished
}

// clampSeconds limits a duration to 0..MaxFadeSeconds. NaN becomes 0.
func clampSeconds(s float64) float64 {
	if math.IsNaN(s) || s < 0 {
		return 0
	}
	return math.Min(s, MaxFadeSeconds)
}

func (f *Fader) arrived() bool {
	return f.location == f.opts.Destination
}

// Location returns the current interpolated color.
func (f *Fader) Location() Color {
	return f.location
}

// Velocity returns the per-channel step size for the next Travel.
func (f *Fader) Velocity() [4]float64 {
	return f.velocity
}

// Finished reports whether the destination has been reached.
func (f *Fader) Finished() bool {
	return f.finished
}

// Traveled reports whether Travel has moved the fader since Prepare.
func (f *Fader) Traveled() bool {
	return f.traveled
}

// Options returns the options of the current fade.
func (f *Fader) Options() FaderOptions {
	return f.opts
}
