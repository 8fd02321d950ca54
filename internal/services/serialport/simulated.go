package serialport

import (
	"errors"
	"sync"
	"time"

	"github.com/bbernstein/lacylights-dmx/internal/services/dmx"
)

// ErrClosed is returned by a simulated port after Close.
var ErrClosed = errors.New("serialport: port closed")

// Simulated is a dmx.Port that keeps the last frame and paces Drain by the
// time the frame would spend on the wire.
type Simulated struct {
	mu        sync.Mutex
	closed    bool
	busyUntil time.Time
	last      []byte
	frames    uint64
	breaks    uint64

	now   func() time.Time
	sleep func(time.Duration)
}

// NewSimulated creates an open simulated port.
func NewSimulated() *Simulated {
	return &Simulated{now: time.Now, sleep: time.Sleep}
}

// Write implements dmx.Port.
func (s *Simulated) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	s.last = append(s.last[:0], p...)
	s.frames++
	s.busyUntil = s.now().Add(time.Duration(len(p)) * dmx.ByteTime)
	return len(p), nil
}

// Break implements dmx.Port.
func (s *Simulated) Break(d time.Duration) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.breaks++
	s.mu.Unlock()
	s.sleep(d)
	return nil
}

// Drain implements dmx.Port.
func (s *Simulated) Drain() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	wait := s.busyUntil.Sub(s.now())
	s.mu.Unlock()
	if wait > 0 {
		s.sleep(wait)
	}
	return nil
}

// Close implements dmx.Port.
func (s *Simulated) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Last returns a copy of the last frame written, start code included.
func (s *Simulated) Last() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.last...)
}

// Frames returns the number of frames written.
func (s *Simulated) Frames() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

// Breaks returns the number of breaks asserted.
func (s *Simulated) Breaks() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.breaks
}
