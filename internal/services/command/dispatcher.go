package command

import (
	"errors"
	"fmt"

	"github.com/bbernstein/lacylights-dmx/internal/logger"
	"github.com/bbernstein/lacylights-dmx/internal/services/dmx"
	"github.com/bbernstein/lacylights-dmx/internal/services/pubsub"
)

// ErrUnknownFixture is returned for a fixture name that is not registered.
var ErrUnknownFixture = dmx.ErrUnknownFixture

// Registry resolves fixture names. *dmx.Engine satisfies it.
type Registry interface {
	Lookup(name string) (dmx.Registration, bool)
	Registrations() []dmx.Registration
}

// Applied is published on pubsub.TopicFixtureCommand for every applied command.
type Applied struct {
	Fixture string  `json:"fixture"`
	Command Command `json:"command"`
}

// Dispatcher routes commands to fixtures by name.
type Dispatcher struct {
	registry Registry
	bus      *pubsub.PubSub
	log      *logger.Log
}

// NewDispatcher creates a dispatcher. bus may be nil.
func NewDispatcher(registry Registry, bus *pubsub.PubSub, log *logger.Log) *Dispatcher {
	if log == nil {
		log = logger.Discard()
	}
	return &Dispatcher{registry: registry, bus: bus, log: log.Module("command")}
}

// Dispatch applies cmd to the named fixture.
func (d *Dispatcher) Dispatch(name string, cmd Command) error {
	cmd, err := cmd.Normalize()
	if err != nil {
		return err
	}
	reg, ok := d.registry.Lookup(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownFixture, name)
	}
	if err := Apply(reg.Unit, cmd); err != nil {
		return err
	}
	d.applied(name, cmd)
	return nil
}

// Broadcast applies cmd to every fixture that supports it and returns the
// names it was applied to.
func (d *Dispatcher) Broadcast(cmd Command) ([]string, error) {
	cmd, err := cmd.Normalize()
	if err != nil {
		return nil, err
	}

	var names []string
	for _, reg := range d.registry.Registrations() {
		err := Apply(reg.Unit, cmd)
		if errors.Is(err, ErrUnsupported) {
			continue
		}
		if err != nil {
			return names, err
		}
		d.applied(reg.Name, cmd)
		names = append(names, reg.Name)
	}
	return names, nil
}

func (d *Dispatcher) applied(name string, cmd Command) {
	d.log.WithField("fixture", name).Debugf("applied %s", cmd.Op)
	if d.bus != nil {
		d.bus.Publish(pubsub.TopicFixtureCommand, name, Applied{Fixture: name, Command: cmd})
	}
}
