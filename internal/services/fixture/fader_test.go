package fixture

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFaderIdle(t *testing.T) {
	f := NewFader()
	assert.True(t, f.Finished())
	assert.True(t, f.Travel())
	assert.False(t, f.Traveled())
}

func TestFaderConvergence(t *testing.T) {
	tests := []struct {
		name      string
		origin    Color
		dest      Color
		seconds   float64
		frameRate float64
	}{
		{"black to red", Black, Color{255, 0, 0, 0}, 1, 44},
		{"mixed directions", Color{255, 10, 0, 128}, Color{0, 200, 77, 128}, 2.5, 44},
		{"fractional steps", Black, Color{255, 255, 255, 255}, 0.33, 30},
		{"tiny move", Color{100, 100, 100, 100}, Color{101, 99, 100, 100}, 3, 44},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewFader()
			f.Prepare(FaderOptions{Origin: tt.origin, Destination: tt.dest, TravelSeconds: tt.seconds, UseOrigin: true}, tt.frameRate)
			assert.False(t, f.Finished())
			assert.Equal(t, tt.origin, f.Location())

			steps := int(math.Ceil(tt.seconds * tt.frameRate))
			_, dir := Difference(tt.origin, tt.dest)
			prev := f.Location()
			for i := 0; i < steps; i++ {
				done := f.Travel()
				loc := f.Location()
				for ch := range loc {
					// never moves against the direction of travel
					assert.GreaterOrEqual(t, (loc[ch]-prev[ch])*dir[ch], 0.0)
				}
				prev = loc
				if i < steps-1 {
					assert.False(t, done, "finished early at step %d", i+1)
				}
			}
			assert.True(t, f.Finished())
			assert.True(t, f.Traveled())
			assert.Equal(t, tt.dest, f.Location())
		})
	}
}

func TestFaderVelocity(t *testing.T) {
	f := NewFader()
	f.Prepare(FaderOptions{Origin: Color{0, 100, 0, 0}, Destination: Color{88, 12, 0, 0}, TravelSeconds: 2, UseOrigin: true}, 44)
	v := f.Velocity()
	assert.InDelta(t, 1.0, v[Red], 1e-12)
	assert.InDelta(t, 1.0, v[Green], 1e-12)
	assert.Zero(t, v[Blue])
}

func TestFaderZeroDuration(t *testing.T) {
	for _, seconds := range []float64{0, -1, math.NaN()} {
		f := NewFader()
		f.Prepare(FaderOptions{Destination: Color{1, 2, 3, 4}, TravelSeconds: seconds}, 44)
		assert.True(t, f.Finished())
		assert.Equal(t, Color{1, 2, 3, 4}, f.Location())
	}
}

func TestFaderSameOriginAndDestination(t *testing.T) {
	f := NewFader()
	f.Prepare(FaderOptions{Origin: Color{5, 5, 5, 5}, Destination: Color{5, 5, 5, 5}, TravelSeconds: 1}, 44)
	assert.True(t, f.Finished())
}

func TestFaderAcceleration(t *testing.T) {
	linear := NewFader()
	fast := NewFader()
	opts := FaderOptions{Destination: Color{255, 0, 0, 0}, TravelSeconds: 1}
	linear.Prepare(opts, 44)
	opts.Acceleration = 0.1
	fast.Prepare(opts, 44)

	linearSteps, fastSteps := 0, 0
	for !linear.Travel() {
		linearSteps++
	}
	for !fast.Travel() {
		fastSteps++
	}
	assert.Less(t, fastSteps, linearSteps)
	assert.Equal(t, Color{255, 0, 0, 0}, fast.Location())
}

func TestFaderClampsOptions(t *testing.T) {
	f := NewFader()
	f.Prepare(FaderOptions{Origin: Color{-10, 0, 0, 0}, Destination: Color{999, 0, 0, 0}, TravelSeconds: 1, Acceleration: -2, Layover: -1}, 10)
	opts := f.Options()
	assert.Equal(t, Color{0, 0, 0, 0}, opts.Origin)
	assert.Equal(t, Color{255, 0, 0, 0}, opts.Destination)
	assert.Zero(t, opts.Acceleration)
	assert.Zero(t, opts.Layover)
}

func TestFaderClampsDuration(t *testing.T) {
	tests := []struct {
		name    string
		seconds float64
		want    float64
	}{
		{"in range", 12.5, 12.5},
		{"at limit", MaxFadeSeconds, MaxFadeSeconds},
		{"huge", 1e307, MaxFadeSeconds},
		{"infinite", math.Inf(1), MaxFadeSeconds},
		{"nan", math.NaN(), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewFader()
			f.Prepare(FaderOptions{Destination: Color{255, 0, 0, 0}, TravelSeconds: tt.seconds, Layover: tt.seconds}, 44)
			assert.Equal(t, tt.want, f.Options().TravelSeconds)
			assert.Equal(t, tt.want, f.Options().Layover)
			if tt.want > 0 {
				assert.Greater(t, f.Velocity()[Red], 0.0)
			}
		})
	}
}
