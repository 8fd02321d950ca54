package patch

import (
	"context"
	"fmt"

	"github.com/bbernstein/lacylights-dmx/internal/database/models"
	"github.com/bbernstein/lacylights-dmx/internal/services/dmx"
	"github.com/bbernstein/lacylights-dmx/internal/services/fixture"
)

// Registrar is where built fixtures are registered. *dmx.Engine satisfies it.
type Registrar interface {
	Register(name string, unit dmx.HeadUnit, slot dmx.Slot) error
}

// Patched is a fixture built from the patch.
type Patched struct {
	Entry
	Unit dmx.HeadUnit
}

// Patch is the set of fixtures built from the stored patch.
type Patch struct {
	Fixtures []Patched
}

// NewUnit constructs the head unit for a fixture kind. frameRate drives pin
// spot fades.
func NewUnit(kind string, frameRate float64) (dmx.HeadUnit, error) {
	switch kind {
	case models.KindPowerSwitch:
		return fixture.NewPowerSwitch(), nil
	case models.KindDimmable:
		return fixture.NewDimmable(), nil
	case models.KindPinSpot:
		return fixture.NewPinSpot(frameRate), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

// Build loads the stored patch, creates a head unit per fixture and
// registers each with reg. The first registration error aborts the build.
func Build(ctx context.Context, store Store, reg Registrar, frameRate float64) (*Patch, error) {
	f, err := Export(ctx, store)
	if err != nil {
		return nil, err
	}
	if err := f.Normalize(); err != nil {
		return nil, err
	}

	p := &Patch{Fixtures: make([]Patched, 0, len(f.Fixtures))}
	for _, e := range f.Fixtures {
		unit, err := NewUnit(e.Kind, frameRate)
		if err != nil {
			return nil, err
		}
		if err := reg.Register(e.Name, unit, e.slot()); err != nil {
			return nil, fmt.Errorf("patch: register %s: %w", e.Name, err)
		}
		p.Fixtures = append(p.Fixtures, Patched{Entry: e, Unit: unit})
	}
	return p, nil
}

// Indicators returns the dimmers flagged as idle indicators.
func (p *Patch) Indicators() []*fixture.Dimmable {
	var out []*fixture.Dimmable
	for _, f := range p.Fixtures {
		if !f.Indicator {
			continue
		}
		if d, ok := f.Unit.(*fixture.Dimmable); ok {
			out = append(out, d)
		}
	}
	return out
}
