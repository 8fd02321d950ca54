// Package mirror copies the composed universe to the network as Art-Net so
// visualizers and network nodes can follow the serial output.
package mirror

import (
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/bbernstein/lacylights-dmx/internal/logger"
	"github.com/bbernstein/lacylights-dmx/internal/services/dmx"
	"github.com/bbernstein/lacylights-dmx/pkg/artnet"
)

// Source provides the last composed universe. *dmx.Engine satisfies it.
type Source interface {
	Snapshot(dst []byte) int
}

// Config configures a Mirror.
type Config struct {
	Broadcast string // destination address, usually a broadcast address
	Port      int
	Universe  uint16 // Art-Net port-address
	Channels  int

	// RefreshRateHz is the send rate while the universe is changing.
	RefreshRateHz int
	// IdleRateHz is the keep-alive rate once it has settled.
	IdleRateHz int
	// HighRateDuration is how long after the last change to keep the refresh rate.
	HighRateDuration time.Duration
}

// DefaultConfig matches the serial frame rate while active and sends a 1Hz keep-alive.
func DefaultConfig() Config {
	return Config{
		Broadcast:        "255.255.255.255",
		Port:             artnet.DefaultPort,
		Channels:         dmx.UniverseSize,
		RefreshRateHz:    dmx.DefaultFrameRate,
		IdleRateHz:       1,
		HighRateDuration: 2 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Broadcast == "" {
		c.Broadcast = def.Broadcast
	}
	if c.Port <= 0 {
		c.Port = def.Port
	}
	if c.Channels <= 0 || c.Channels > dmx.UniverseSize {
		c.Channels = def.Channels
	}
	if c.RefreshRateHz <= 0 {
		c.RefreshRateHz = def.RefreshRateHz
	}
	if c.IdleRateHz <= 0 {
		c.IdleRateHz = def.IdleRateHz
	}
	if c.HighRateDuration <= 0 {
		c.HighRateDuration = def.HighRateDuration
	}
	return c
}

// Mirror polls a Source at the refresh rate and sends what it finds.
type Mirror struct {
	cfg Config
	src Source
	log *logger.Log

	mu         sync.Mutex
	conn       io.WriteCloser
	sequence   byte
	current    [dmx.UniverseSize]byte
	last       [dmx.UniverseSize]byte
	primed     bool
	highRate   bool
	lastChange time.Time
	lastSent   time.Time
	sent       uint64

	running  bool
	stopChan chan struct{}
	done     chan struct{}
}

// New creates a stopped mirror.
func New(src Source, cfg Config, log *logger.Log) *Mirror {
	if log == nil {
		log = logger.Discard()
	}
	return &Mirror{cfg: cfg.withDefaults(), src: src, log: log.Module("artnet")}
}

// Config returns the effective configuration.
func (m *Mirror) Config() Config {
	return m.cfg
}

// Start opens the UDP socket and starts the send loop.
func (m *Mirror) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return nil
	}

	addr, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(m.cfg.Broadcast, strconv.Itoa(m.cfg.Port)))
	if err != nil {
		return fmt.Errorf("resolve art-net address: %w", err)
	}
	conn, err := net.DialUDP("udp4", nil, addr)
	if err != nil {
		return fmt.Errorf("open art-net socket: %w", err)
	}
	m.startLocked(conn)

	m.log.Infof("📡 Art-Net mirror broadcasting to %s, %dHz active / %dHz idle", addr, m.cfg.RefreshRateHz, m.cfg.IdleRateHz)
	return nil
}

func (m *Mirror) startLocked(conn io.WriteCloser) {
	m.conn = conn
	m.running = true
	m.stopChan = make(chan struct{})
	m.done = make(chan struct{})
	go m.transmitLoop(m.stopChan, m.done)
}

// Stop stops the send loop and closes the socket.
func (m *Mirror) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stopChan)
	done := m.done
	m.mu.Unlock()

	<-done

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
}

// Sent returns the number of packets sent.
func (m *Mirror) Sent() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sent
}

func (m *Mirror) transmitLoop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(time.Second / time.Duration(m.cfg.RefreshRateHz))
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			if _, err := m.tick(now); err != nil {
				m.log.WithError(err).Warn("Art-Net send failed")
			}
		}
	}
}

// tick samples the source and sends when the universe changed, while in
// high-rate mode, or when the keep-alive is due. It reports whether a
// packet was sent.
func (m *Mirror) tick(now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.src.Snapshot(m.current[:])
	if !m.primed || m.current != m.last {
		m.primed = true
		m.last = m.current
		m.lastChange = now
		if !m.highRate {
			m.highRate = true
			m.log.Debugf("switching to high rate (%dHz), changes detected", m.cfg.RefreshRateHz)
		}
	} else if m.highRate && now.Sub(m.lastChange) > m.cfg.HighRateDuration {
		m.highRate = false
		m.log.Debugf("switching to idle rate (%dHz), no changes for %v", m.cfg.IdleRateHz, now.Sub(m.lastChange))
	}

	keepAlive := time.Second / time.Duration(m.cfg.IdleRateHz)
	if !m.highRate && now.Sub(m.lastSent) < keepAlive {
		return false, nil
	}
	if m.conn == nil {
		return false, nil
	}

	m.sequence++
	if m.sequence == 0 {
		m.sequence = 1
	}
	packet := artnet.BuildDMXPacket(m.cfg.Universe, m.last[:m.cfg.Channels], m.sequence)
	m.lastSent = now
	if _, err := m.conn.Write(packet); err != nil {
		return false, err
	}
	m.sent++
	return true, nil
}
