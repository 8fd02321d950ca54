package fixture

import (
	"math"
	"sync"
	"time"

	"github.com/bbernstein/lacylights-dmx/internal/services/dmx"
)

// DimmableChannels is the slot length of a dimmer.
const DimmableChannels = 1

// Ramp parameters for RampTo.
const (
	RampStep  = 5
	RampDelay = 20 * time.Millisecond
)

// Dimmable is a single intensity channel.
type Dimmable struct {
	mu        sync.Mutex
	level     int
	changed   bool
	cancel    chan struct{} // closed to stop the running ramp
	stepDelay time.Duration
}

// NewDimmable creates a dimmer at zero.
func NewDimmable() *Dimmable {
	return &Dimmable{changed: true, stepDelay: RampDelay}
}

// Kind implements dmx.HeadUnit.
func (d *Dimmable) Kind() dmx.Kind { return dmx.KindDimmable }

// Darken implements dmx.HeadUnit. A running ramp is cancelled.
func (d *Dimmable) Darken() {
	d.SetLevel(0)
}

// GoDark is the command form of Darken.
func (d *Dimmable) GoDark() {
	d.Darken()
}

// SetLevel sets the intensity, clamped to 0..255, and cancels any ramp.
func (d *Dimmable) SetLevel(level int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cancelRampLocked()
	d.setLevelLocked(clampInt(level, 0, MaxLevel))
}

// SetPower switches between full and off.
func (d *Dimmable) SetPower(on bool) {
	if on {
		d.SetLevel(MaxLevel)
		return
	}
	d.SetLevel(0)
}

// SetColor uses the brightest channel as the intensity. Strobe is not supported.
func (d *Dimmable) SetColor(c Color, _ int) {
	d.SetLevel(int(math.Round(c.Brightest())))
}

// FadeTo ramps towards the brightest channel of c. Dimmers ramp at a fixed
// rate, so seconds and acceleration are ignored.
func (d *Dimmable) FadeTo(c Color, _, _ float64) {
	d.RampTo(int(math.Round(c.Clamp().Brightest())))
}

// RampTo moves the level towards target by RampStep every step delay on its
// own goroutine. The returned channel is closed when the ramp arrives or is
// superseded by another command.
func (d *Dimmable) RampTo(target int) <-chan struct{} {
	target = clampInt(target, 0, MaxLevel)
	done := make(chan struct{})

	d.mu.Lock()
	d.cancelRampLocked()
	cancel := make(chan struct{})
	d.cancel = cancel
	delay := d.stepDelay
	d.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(delay)
		defer ticker.Stop()
		for d.rampStep(cancel, target) {
			select {
			case <-cancel:
				return
			case <-ticker.C:
			}
		}
	}()
	return done
}

// rampStep moves one step and reports whether the ramp should continue.
func (d *Dimmable) rampStep(cancel chan struct{}, target int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cancel != cancel {
		return false
	}
	switch {
	case d.level < target:
		d.setLevelLocked(min(d.level+RampStep, target))
	case d.level > target:
		d.setLevelLocked(max(d.level-RampStep, target))
	}
	if d.level == target {
		d.cancel = nil
		return false
	}
	return true
}

func (d *Dimmable) cancelRampLocked() {
	if d.cancel != nil {
		close(d.cancel)
		d.cancel = nil
	}
}

func (d *Dimmable) setLevelLocked(level int) {
	if level != d.level {
		d.level = level
		d.changed = true
	}
}

// ContributeFrame implements dmx.HeadUnit.
func (d *Dimmable) ContributeFrame(dst []byte) bool {
	if !d.mu.TryLock() {
		return false
	}
	defer d.mu.Unlock()

	if !d.changed || len(dst) == 0 {
		return false
	}
	dst[0] = byte(d.level)
	d.changed = false
	return true
}

// Level returns the current intensity.
func (d *Dimmable) Level() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.level
}
