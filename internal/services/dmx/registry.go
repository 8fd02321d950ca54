package dmx

import (
	"fmt"
	"sort"
)

// Kind is the closed set of fixture variants the engine drives.
type Kind int

const (
	KindPowerSwitch Kind = iota
	KindDimmable
	KindPinSpot
)

func (k Kind) String() string {
	switch k {
	case KindPowerSwitch:
		return "power"
	case KindDimmable:
		return "dimmable"
	case KindPinSpot:
		return "pinspot"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// HeadUnit is a fixture contributing bytes to the shared frame.
type HeadUnit interface {
	Kind() Kind
	// Darken forces the fixture output to its off state regardless of mode.
	Darken()
	// ContributeFrame writes the fixture's state into dst if it changed since
	// the last write, clears its changed flag and reports whether it wrote.
	// dst is exactly the fixture's slot; it must not be retained.
	ContributeFrame(dst []byte) bool
}

// Animator is implemented by head units that advance once per frame.
type Animator interface {
	Advance()
}

// Slot is the byte range a fixture owns. Address is the 1-based DMX channel
// of the first byte.
type Slot struct {
	Address int `json:"address"`
	Length  int `json:"length"`
}

// End returns the last channel in the slot.
func (s Slot) End() int {
	return s.Address + s.Length - 1
}

// Overlaps reports whether two slots share a channel.
func (s Slot) Overlaps(o Slot) bool {
	return s.Address <= o.End() && o.Address <= s.End()
}

// Valid reports whether the slot lies inside channels 1..UniverseSize.
func (s Slot) Valid() bool {
	return s.Length > 0 && s.Address >= 1 && s.End() <= UniverseSize
}

func (s Slot) String() string {
	return fmt.Sprintf("%d-%d", s.Address, s.End())
}

// Registration is a registered head unit with its slot.
type Registration struct {
	Name string
	Unit HeadUnit
	Slot Slot
}

// Register adds a head unit at the given slot. Overlapping slots and slots
// past the configured channel count are rejected and leave the registry
// untouched.
func (e *Engine) Register(name string, unit HeadUnit, slot Slot) error {
	if !slot.Valid() {
		return fmt.Errorf("%w: %s at %s", ErrSlotRange, name, slot)
	}
	if slot.End() > e.cfg.Channels {
		return fmt.Errorf("%w: %s at %s exceeds %d channels", ErrSlotRange, name, slot, e.cfg.Channels)
	}

	e.regMu.Lock()
	defer e.regMu.Unlock()

	current := *e.units.Load()
	for _, r := range current {
		if r.Name == name {
			return fmt.Errorf("%w: %s", ErrDuplicateName, name)
		}
		if r.Slot.Overlaps(slot) {
			return fmt.Errorf("%w: %s at %s conflicts with %s at %s", ErrSlotOverlap, name, slot, r.Name, r.Slot)
		}
	}

	next := make([]Registration, len(current), len(current)+1)
	copy(next, current)
	next = append(next, Registration{Name: name, Unit: unit, Slot: slot})
	sort.Slice(next, func(i, j int) bool { return next[i].Slot.Address < next[j].Slot.Address })
	e.units.Store(&next)

	e.log.WithField("fixture", name).Debugf("registered %s at %s", unit.Kind(), slot)
	return nil
}

// Unregister removes a head unit. Its channels keep their last value until
// another fixture claims them or the engine restarts.
func (e *Engine) Unregister(name string) error {
	e.regMu.Lock()
	defer e.regMu.Unlock()

	current := *e.units.Load()
	next := make([]Registration, 0, len(current))
	found := false
	for _, r := range current {
		if r.Name == name {
			found = true
			continue
		}
		next = append(next, r)
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrUnknownFixture, name)
	}
	e.units.Store(&next)
	return nil
}

// Registrations returns the registered fixtures in address order.
func (e *Engine) Registrations() []Registration {
	current := *e.units.Load()
	out := make([]Registration, len(current))
	copy(out, current)
	return out
}

// Units returns the registered head units in address order.
func (e *Engine) Units() []HeadUnit {
	current := *e.units.Load()
	out := make([]HeadUnit, len(current))
	for i, r := range current {
		out[i] = r.Unit
	}
	return out
}

// clearUnclaimed zeroes every channel no registration covers. Only called
// while the transmit loop is not running.
func (e *Engine) clearUnclaimed() {
	regs := *e.units.Load()
	next := 1
	for _, r := range regs {
		clear(e.universe[next:r.Slot.Address])
		next = r.Slot.End() + 1
	}
	clear(e.universe[next:])
}

// Darken calls Darken on every registered head unit.
func (e *Engine) Darken() {
	for _, r := range *e.units.Load() {
		r.Unit.Darken()
	}
}

// Lookup returns the registration for name.
func (e *Engine) Lookup(name string) (Registration, bool) {
	for _, r := range *e.units.Load() {
		if r.Name == name {
			return r, true
		}
	}
	return Registration{}, false
}
