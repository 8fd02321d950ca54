// Package indicator drives a status lamp from idle events: a steady glow
// while frames are flowing, a slow breath while the rig sits idle.
package indicator

import (
	"math"
	"sync"
	"time"

	"github.com/bbernstein/lacylights-dmx/internal/logger"
	"github.com/bbernstein/lacylights-dmx/internal/services/idlewatch"
	"github.com/bbernstein/lacylights-dmx/internal/services/pubsub"
)

// Defaults.
const (
	BreathPeriod       = 4 * time.Second
	DefaultUpdateRate  = 50 * time.Millisecond
	DefaultActiveLevel = 16
	DefaultPeakLevel   = 255
)

// Output is a lamp with a 0-255 level. *fixture.Dimmable satisfies it.
type Output interface {
	SetLevel(level int)
}

// Outputs fans one level out to several lamps.
type Outputs []Output

// SetLevel implements Output.
func (o Outputs) SetLevel(level int) {
	for _, out := range o {
		out.SetLevel(level)
	}
}

// Config configures an Indicator.
type Config struct {
	Easing      EasingType
	Period      time.Duration
	UpdateRate  time.Duration
	ActiveLevel int
	PeakLevel   int
}

func (c Config) withDefaults() Config {
	if c.Easing == "" {
		c.Easing = EasingInOutSine
	}
	if c.Period <= 0 {
		c.Period = BreathPeriod
	}
	if c.UpdateRate <= 0 {
		c.UpdateRate = DefaultUpdateRate
	}
	if c.ActiveLevel <= 0 {
		c.ActiveLevel = DefaultActiveLevel
	}
	if c.PeakLevel <= 0 {
		c.PeakLevel = DefaultPeakLevel
	}
	return c
}

// Indicator reacts to idlewatch events published on the bus.
type Indicator struct {
	mu        sync.Mutex
	out       Output
	bus       *pubsub.PubSub
	cfg       Config
	log       *logger.Log
	idle      bool
	idleSince time.Time
	lastLevel int

	running  bool
	stopChan chan struct{}
	done     chan struct{}
}

// New creates a stopped indicator.
func New(out Output, bus *pubsub.PubSub, cfg Config, log *logger.Log) *Indicator {
	if log == nil {
		log = logger.Discard()
	}
	return &Indicator{
		out:       out,
		bus:       bus,
		cfg:       cfg.withDefaults(),
		log:       log.Module("indicator"),
		lastLevel: -1,
	}
}

// Start subscribes to idle events and starts updating the lamp.
func (i *Indicator) Start() {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.running {
		return
	}
	i.running = true
	i.stopChan = make(chan struct{})
	i.done = make(chan struct{})

	sub := i.bus.Subscribe(pubsub.TopicIdleState, "", 8)
	go i.updateLoop(sub, i.stopChan, i.done)
	i.log.WithField("easing", i.cfg.Easing).Debug("Indicator started")
}

// Stop stops the update loop.
func (i *Indicator) Stop() {
	i.mu.Lock()
	if !i.running {
		i.mu.Unlock()
		return
	}
	i.running = false
	close(i.stopChan)
	done := i.done
	i.mu.Unlock()
	<-done
}

func (i *Indicator) updateLoop(sub *pubsub.Subscriber, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer i.bus.Unsubscribe(sub)

	ticker := time.NewTicker(i.cfg.UpdateRate)
	defer ticker.Stop()

	i.update(time.Now())
	for {
		select {
		case <-stop:
			return
		case msg, ok := <-sub.Channel:
			if !ok {
				return
			}
			if ev, ok := msg.(idlewatch.Event); ok {
				i.SetIdle(ev.Idle, time.Now())
				i.update(time.Now())
			}
		case now := <-ticker.C:
			i.update(now)
		}
	}
}

// SetIdle switches between the steady and the breathing pattern.
func (i *Indicator) SetIdle(idle bool, at time.Time) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if idle && !i.idle {
		i.idleSince = at
	}
	i.idle = idle
}

// Level returns the lamp level at the given time.
func (i *Indicator) Level(at time.Time) int {
	i.mu.Lock()
	defer i.mu.Unlock()
	if !i.idle {
		return i.cfg.ActiveLevel
	}

	elapsed := at.Sub(i.idleSince)
	if elapsed < 0 {
		elapsed = 0
	}
	phase := float64(elapsed%i.cfg.Period) / float64(i.cfg.Period)
	// up for the first half of the period, down for the second
	progress := 2 * phase
	if phase >= 0.5 {
		progress = 2 - 2*phase
	}
	return int(math.Round(Interpolate(0, float64(i.cfg.PeakLevel), progress, i.cfg.Easing)))
}

func (i *Indicator) update(now time.Time) {
	level := i.Level(now)
	i.mu.Lock()
	if level == i.lastLevel {
		i.mu.Unlock()
		return
	}
	i.lastLevel = level
	i.mu.Unlock()
	i.out.SetLevel(level)
}
