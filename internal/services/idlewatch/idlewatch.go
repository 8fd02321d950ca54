// Package idlewatch darkens every fixture once the engine has sent no frames
// for a configured period.
package idlewatch

import (
	"sync"
	"time"

	"github.com/bbernstein/lacylights-dmx/internal/logger"
	"github.com/bbernstein/lacylights-dmx/internal/services/pubsub"
)

// Defaults.
const (
	DefaultDuration      = 10 * time.Minute
	DefaultCheckInterval = time.Second
)

// FPSSource reports the current frame rate. *dmx.Engine satisfies it.
type FPSSource interface {
	FPS() float64
}

// Darkener darkens every fixture. *dmx.Engine satisfies it.
type Darkener interface {
	Darken()
}

// Event is published on pubsub.TopicIdleState when the idle state flips.
type Event struct {
	Idle  bool      `json:"idle"`
	Since time.Time `json:"since"`
}

// Config configures a Watch.
type Config struct {
	// Duration of continuous zero FPS before darkening. Zero disables the watch.
	Duration time.Duration
	// CheckInterval is the polling period.
	CheckInterval time.Duration
}

// Watch polls an FPSSource and darkens once per idle period.
type Watch struct {
	source   FPSSource
	target   Darkener
	bus      *pubsub.PubSub
	log      *logger.Log
	interval time.Duration

	mu        sync.Mutex
	duration  time.Duration
	zeroSince time.Time
	idle      bool

	running  bool
	stopChan chan struct{}
	done     chan struct{}
}

// New creates a stopped watch. bus may be nil.
func New(source FPSSource, target Darkener, bus *pubsub.PubSub, cfg Config, log *logger.Log) *Watch {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = DefaultCheckInterval
	}
	if cfg.Duration < 0 {
		cfg.Duration = 0
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Watch{
		source:   source,
		target:   target,
		bus:      bus,
		log:      log.Module("idlewatch"),
		interval: cfg.CheckInterval,
		duration: cfg.Duration,
	}
}

// Start starts polling.
func (w *Watch) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return
	}
	w.running = true
	w.stopChan = make(chan struct{})
	w.done = make(chan struct{})
	go w.loop(w.stopChan, w.done)
}

// Stop stops polling and waits for the goroutine to exit. Idle tracking
// restarts from scratch on the next Start.
func (w *Watch) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.stopChan)
	done := w.done
	w.mu.Unlock()

	<-done

	w.mu.Lock()
	w.zeroSince = time.Time{}
	w.idle = false
	w.mu.Unlock()
}

func (w *Watch) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			w.Check(now)
		}
	}
}

// Check samples the frame rate at now and reports whether it darkened the
// fixtures on this call.
func (w *Watch) Check(now time.Time) bool {
	fps := w.source.FPS()

	w.mu.Lock()
	if fps > 0 {
		w.zeroSince = time.Time{}
		wasIdle := w.idle
		w.idle = false
		w.mu.Unlock()
		if wasIdle {
			w.log.WithField("fps", fps).Info("🔆 Output resumed")
			w.publish(Event{Idle: false, Since: now})
		}
		return false
	}

	if w.zeroSince.IsZero() {
		w.zeroSince = now
	}
	if w.idle || w.duration == 0 || now.Sub(w.zeroSince) < w.duration {
		w.mu.Unlock()
		return false
	}
	w.idle = true
	since := w.zeroSince
	w.mu.Unlock()

	w.log.WithField("since", since.Format(time.RFC3339)).Info("🌙 No frames sent, darkening fixtures")
	w.target.Darken()
	w.publish(Event{Idle: true, Since: since})
	return true
}

func (w *Watch) publish(ev Event) {
	if w.bus != nil {
		w.bus.PublishAll(pubsub.TopicIdleState, ev)
	}
}

// SetDuration changes the idle period. Zero disables the watch.
func (w *Watch) SetDuration(d time.Duration) {
	if d < 0 {
		d = 0
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.duration = d
}

// Duration returns the idle period.
func (w *Watch) Duration() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.duration
}

// Idle reports whether the fixtures have been darkened for the current idle period.
func (w *Watch) Idle() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.idle
}
