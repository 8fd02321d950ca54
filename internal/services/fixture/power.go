package fixture

import (
	"sync"

	"github.com/bbernstein/lacylights-dmx/internal/services/dmx"
)

// PowerSwitchChannels is the slot length of a power switch.
const PowerSwitchChannels = 1

// PowerSwitch is a relay channel: full or nothing.
type PowerSwitch struct {
	mu      sync.Mutex
	on      bool
	changed bool
}

// NewPowerSwitch creates a switch in the off position.
func NewPowerSwitch() *PowerSwitch {
	return &PowerSwitch{changed: true}
}

// Kind implements dmx.HeadUnit.
func (s *PowerSwitch) Kind() dmx.Kind { return dmx.KindPowerSwitch }

// Darken implements dmx.HeadUnit.
func (s *PowerSwitch) Darken() {
	s.SetPower(false)
}

// GoDark is the command form of Darken.
func (s *PowerSwitch) GoDark() {
	s.Darken()
}

// SetPower switches the channel.
func (s *PowerSwitch) SetPower(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.on != on {
		s.on = on
		s.changed = true
	}
}

// On reports the switch position.
func (s *PowerSwitch) On() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.on
}

// ContributeFrame implements dmx.HeadUnit.
func (s *PowerSwitch) ContributeFrame(dst []byte) bool {
	if !s.mu.TryLock() {
		return false
	}
	defer s.mu.Unlock()

	if !s.changed || len(dst) == 0 {
		return false
	}
	dst[0] = 0
	if s.on {
		dst[0] = MaxLevel
	}
	s.changed = false
	return true
}
