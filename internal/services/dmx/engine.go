package dmx

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bbernstein/lacylights-dmx/internal/logger"
)

// Engine owns the universe buffer, the fixture registry and the goroutine
// that composes and transmits one frame per interval.
type Engine struct {
	cfg    Config
	opener Opener
	log    *logger.Log

	// lifecycle serializes Start, Stop and Shutdown.
	lifecycle sync.Mutex
	state     atomic.Int32
	port      Port
	stop      chan struct{}
	done      chan struct{}
	statsStop chan struct{}
	statsDone chan struct{}
	failed    chan error
	// handoff is claimed first by whichever of the loop's exit and a stop
	// timeout happens first. The loser closes the port.
	handoff atomic.Bool

	// Registry, copy-on-write so the transmit loop never takes regMu.
	regMu sync.Mutex
	units atomic.Pointer[[]Registration]

	// universe is written only by the transmit loop. Index 0 is the start code.
	universe [UniverseSize + 1]byte

	snapMu   sync.Mutex
	snapshot [UniverseSize + 1]byte

	framesSent  atomic.Uint64
	framesShort atomic.Uint64
	busyWait    atomic.Uint64
	fpsBits     atomic.Uint64

	// sleep waits out the mark-after-break.
	sleep func(time.Duration)
}

// NewEngine creates a stopped engine. opener is called by Start to acquire
// the serial peripheral.
func NewEngine(cfg Config, opener Opener, log *logger.Log) (*Engine, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Discard()
	}

	e := &Engine{
		cfg:    cfg,
		opener: opener,
		log:    log.Module("dmx"),
		failed: make(chan error, 1),
		sleep:  time.Sleep,
	}
	empty := []Registration{}
	e.units.Store(&empty)
	e.universe[0] = StartCode
	return e, nil
}

// Config returns the effective configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	return State(e.state.Load())
}

// Failed delivers ErrTransmitFailed when the transmit loop gives up.
func (e *Engine) Failed() <-chan error {
	return e.failed
}

// Start opens the serial peripheral and begins streaming frames.
func (e *Engine) Start() error {
	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()

	switch e.State() {
	case StateStreaming:
		return nil
	case StateShutdown:
		return ErrShutdown
	}
	if e.opener == nil {
		return ErrNoOpener
	}

	port, err := e.opener()
	if err != nil {
		return fmt.Errorf("dmx: open serial port: %w", err)
	}

	e.clearUnclaimed()
	e.handoff.Store(false)
	e.port = port
	e.stop = make(chan struct{})
	e.done = make(chan struct{})
	e.statsStop = make(chan struct{})
	e.statsDone = make(chan struct{})
	e.state.Store(int32(StateStreaming))

	go e.run(port, e.stop, e.done)
	go e.statsLoop(e.statsStop, e.statsDone)

	e.log.Infof("🎭 streaming %d channels at %d fps (break %v, mab %v)",
		e.cfg.Channels, e.cfg.FrameRate, e.cfg.Break, e.cfg.MarkAfterBreak)
	return nil
}

// Stop finishes the in-flight frame, waits one more interval and releases
// the serial peripheral. A loop that does not exit within StopTimeout leaves
// the engine shut down and returns ErrStopTimeout.
func (e *Engine) Stop() error {
	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()

	if e.State() != StateStreaming {
		return nil
	}
	return e.stopLocked()
}

// Shutdown stops the engine if needed and makes it terminal.
func (e *Engine) Shutdown() error {
	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()

	var err error
	if e.State() == StateStreaming {
		err = e.stopLocked()
	}
	if e.port != nil {
		_ = e.port.Close()
		e.port = nil
	}
	e.state.Store(int32(StateShutdown))
	e.log.Info("🎭 engine shut down")
	return err
}

func (e *Engine) stopLocked() error {
	close(e.stop)
	close(e.statsStop)

	select {
	case <-e.done:
	case <-time.After(e.cfg.StopTimeout):
		e.state.Store(int32(StateShutdown))
		if e.handoff.CompareAndSwap(false, true) {
			e.log.Errorf("transmit loop still running after %v, it will close the serial port on exit", e.cfg.StopTimeout)
		} else {
			_ = e.port.Close()
		}
		e.port = nil
		return ErrStopTimeout
	}
	<-e.statsDone

	// Give any frame already handed to the UART a full interval to leave.
	time.Sleep(e.cfg.Interval())
	_ = e.port.Drain()
	if err := e.port.Close(); err != nil {
		e.log.WithError(err).Warn("closing serial port")
	}
	e.port = nil

	e.resetStats()
	e.state.Store(int32(StateStopped))
	e.log.Info("🎭 streaming stopped")
	return nil
}

// run is the real-time loop. It must not allocate, log or touch the network
// in its steady state.
func (e *Engine) run(port Port, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer e.releasePort(port)

	interval := e.cfg.Interval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	failures := 0
	var backoff time.Duration

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		err := e.cycle(port)
		if err == nil {
			failures, backoff = 0, 0
			continue
		}

		failures++
		if failures >= e.cfg.MaxTransmitFailures {
			e.fail(fmt.Errorf("%w after %d frames: %v", ErrTransmitFailed, failures, err))
			return
		}
		backoff = nextBackoff(backoff, interval, e.cfg.MaxBackoff)
		select {
		case <-stop:
			return
		case <-time.After(backoff):
		}
	}
}

// cycle advances animations, composes changed slots and transmits the frame.
func (e *Engine) cycle(port Port) error {
	regs := *e.units.Load()

	for i := range regs {
		if a, ok := regs[i].Unit.(Animator); ok {
			a.Advance()
		}
	}
	for i := range regs {
		lo := regs[i].Slot.Address
		hi := lo + regs[i].Slot.Length
		regs[i].Unit.ContributeFrame(e.universe[lo:hi:hi])
	}
	e.universe[0] = StartCode

	if e.snapMu.TryLock() {
		e.snapshot = e.universe
		e.snapMu.Unlock()
	}

	return e.transmit(port)
}

// transmit sends BREAK, MAB, start code and data. The only wait on the
// peripheral is for the previous frame to finish.
func (e *Engine) transmit(port Port) error {
	waitStart := time.Now()
	if err := port.Drain(); err != nil {
		e.framesShort.Add(1)
		return err
	}
	e.busyWait.Add(uint64(time.Since(waitStart) / time.Microsecond))

	if err := port.Break(e.cfg.Break); err != nil {
		e.framesShort.Add(1)
		return err
	}
	e.sleep(e.cfg.MarkAfterBreak)

	frame := e.universe[:e.cfg.Channels+1]
	n, err := port.Write(frame)
	if n < len(frame) {
		e.framesShort.Add(1)
	} else {
		e.framesSent.Add(1)
	}
	return err
}

// releasePort closes port if Stop already gave up waiting for the loop.
func (e *Engine) releasePort(port Port) {
	if e.handoff.CompareAndSwap(false, true) {
		return
	}
	if err := port.Close(); err != nil {
		e.log.WithError(err).Warn("closing serial port after late loop exit")
	}
	e.log.Warn("transmit loop exited after stop timeout, serial port closed")
}

func (e *Engine) fail(err error) {
	select {
	case e.failed <- err:
	default:
	}
}

// Snapshot copies the channel data of the most recently composed frame into
// dst (channel 1 at dst[0]) and returns the number of bytes copied.
func (e *Engine) Snapshot(dst []byte) int {
	e.snapMu.Lock()
	defer e.snapMu.Unlock()
	return copy(dst, e.snapshot[1:])
}

func nextBackoff(current, base, max time.Duration) time.Duration {
	if current == 0 {
		return base
	}
	next := current * 2
	if next > max {
		return max
	}
	return next
}
