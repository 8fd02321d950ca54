// Package dmx provides the DMX-512 frame engine: the universe buffer, the
// fixture registry and the real-time transmit loop.
package dmx

import (
	"errors"
	"io"
	"time"
)

const (
	// UniverseSize is the number of channels per DMX universe.
	UniverseSize = 512
	// StartCode is the value of the start byte preceding the channel data.
	StartCode byte = 0x00

	// BaudRate is the fixed DMX-512 line rate.
	BaudRate = 250000
	// BitPeriod is the duration of one bit at BaudRate (4µs).
	BitPeriod = time.Second / BaudRate
	// ByteTime is the on-wire time of one 8N2 slot: start bit, 8 data bits, 2 stop bits.
	ByteTime = 11 * BitPeriod

	// MinBreakBits and MinMarkAfterBreakBits are the receiver minimums.
	MinBreakBits          = 22
	MinMarkAfterBreakBits = 12

	// DefaultBreak is the BREAK we assert (92µs).
	DefaultBreak = 23 * BitPeriod
	// DefaultMarkAfterBreak is the MAB we hold before the start code (48µs).
	DefaultMarkAfterBreak = MinMarkAfterBreakBits * BitPeriod

	// DefaultFrameRate yields a full 512 channel universe back to back.
	DefaultFrameRate = 44
)

var (
	ErrSlotOverlap      = errors.New("dmx: slot overlaps a registered fixture")
	ErrSlotRange        = errors.New("dmx: slot outside universe")
	ErrDuplicateName    = errors.New("dmx: fixture name already registered")
	ErrUnknownFixture   = errors.New("dmx: fixture not registered")
	ErrIntervalTooShort = errors.New("dmx: frame interval shorter than frame transmit time")
	ErrTimingTooShort   = errors.New("dmx: break or mark-after-break below DMX-512 minimum")
	ErrStopTimeout      = errors.New("dmx: transmit loop did not stop in time")
	ErrTransmitFailed   = errors.New("dmx: serial transmit failed repeatedly")
	ErrShutdown         = errors.New("dmx: engine shut down")
	ErrNoOpener         = errors.New("dmx: no serial port opener configured")
)

// Port is the serial transmit peripheral. go.bug.st/serial ports satisfy it.
type Port interface {
	io.WriteCloser
	// Break holds the line low for d, returning once the line is released.
	Break(d time.Duration) error
	// Drain blocks until everything written so far has left the UART.
	Drain() error
}

// Opener acquires the serial peripheral when the engine starts.
type Opener func() (Port, error)

// State is the engine lifecycle state.
type State int32

const (
	StateInit State = iota
	StateStreaming
	StateStopped
	StateShutdown
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateStreaming:
		return "streaming"
	case StateStopped:
		return "stopped"
	case StateShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// Config holds frame engine configuration.
type Config struct {
	Channels       int           // data bytes per frame, 1..512
	FrameRate      int           // frames per second
	Break          time.Duration // BREAK length
	MarkAfterBreak time.Duration // MAB length
	StatsInterval  time.Duration // fps measurement window
	StopTimeout    time.Duration // bounded wait for the loop to exit

	// MaxTransmitFailures consecutive failed frames make the loop give up.
	MaxTransmitFailures int
	// MaxBackoff caps the delay between failed frames.
	MaxBackoff time.Duration

	// OnStats, if set, receives every statistics snapshot from the stats goroutine.
	OnStats func(Stats)
}

// DefaultConfig returns a configuration for a full universe at 44 fps.
func DefaultConfig() Config {
	return Config{
		Channels:            UniverseSize,
		FrameRate:           DefaultFrameRate,
		Break:               DefaultBreak,
		MarkAfterBreak:      DefaultMarkAfterBreak,
		StatsInterval:       2 * time.Second,
		StopTimeout:         time.Second,
		MaxTransmitFailures: 50,
		MaxBackoff:          500 * time.Millisecond,
	}
}

// Interval returns the frame period for the configured rate.
func (c Config) Interval() time.Duration {
	return time.Second / time.Duration(c.FrameRate)
}

// MinFrameInterval is the time needed to send the mark-after-break, the start
// code and the given number of data bytes.
func MinFrameInterval(mab time.Duration, channels int) time.Duration {
	return mab + time.Duration(channels+1)*ByteTime
}

// withDefaults fills zero values and validates timing.
func (c Config) withDefaults() (Config, error) {
	def := DefaultConfig()
	if c.Channels <= 0 || c.Channels > UniverseSize {
		c.Channels = def.Channels
	}
	if c.FrameRate <= 0 {
		c.FrameRate = def.FrameRate
	}
	if c.Break == 0 {
		c.Break = def.Break
	}
	if c.MarkAfterBreak == 0 {
		c.MarkAfterBreak = def.MarkAfterBreak
	}
	if c.StatsInterval <= 0 {
		c.StatsInterval = def.StatsInterval
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = def.StopTimeout
	}
	if c.MaxTransmitFailures <= 0 {
		c.MaxTransmitFailures = def.MaxTransmitFailures
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = def.MaxBackoff
	}

	if c.Break < MinBreakBits*BitPeriod || c.MarkAfterBreak < MinMarkAfterBreakBits*BitPeriod {
		return c, ErrTimingTooShort
	}
	if c.Interval() < MinFrameInterval(c.MarkAfterBreak, c.Channels) {
		return c, ErrIntervalTooShort
	}
	return c, nil
}
