package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bbernstein/lacylights-dmx/internal/services/dmx"
	"github.com/bbernstein/lacylights-dmx/internal/services/fixture"
	"github.com/bbernstein/lacylights-dmx/internal/services/pubsub"
)

func newRig(t *testing.T) (*dmx.Engine, *fixture.PinSpot, *fixture.PowerSwitch) {
	t.Helper()
	engine, err := dmx.NewEngine(dmx.DefaultConfig(), nil, nil)
	require.NoError(t, err)

	spot := fixture.NewPinSpot(44)
	power := fixture.NewPowerSwitch()
	require.NoError(t, engine.Register("spot", spot, dmx.Slot{Address: 10, Length: fixture.PinSpotChannels}))
	require.NoError(t, engine.Register("fog", power, dmx.Slot{Address: 1, Length: fixture.PowerSwitchChannels}))
	return engine, spot, power
}

func TestDispatch(t *testing.T) {
	engine, spot, _ := newRig(t)
	bus := pubsub.New()
	sub := bus.Subscribe(pubsub.TopicFixtureCommand, "spot", 4)
	d := NewDispatcher(engine, bus, nil)

	cmd := Command{Op: OpSetColor, Color: Color{fixture.Color{255, 0, 0, 0}}, Strobe: 500}
	require.NoError(t, d.Dispatch("spot", cmd))
	assert.Equal(t, fixture.Color{255, 0, 0, 0}, spot.Color())

	msg := (<-sub.Channel).(Applied)
	assert.Equal(t, "spot", msg.Fixture)
	assert.Equal(t, fixture.MaxStrobe, msg.Command.Strobe)

	assert.ErrorIs(t, d.Dispatch("ghost", cmd), ErrUnknownFixture)
	assert.ErrorIs(t, d.Dispatch("fog", cmd), ErrUnsupported)
	assert.ErrorIs(t, d.Dispatch("spot", Command{Op: "bogus"}), ErrUnknownOp)
	assert.Empty(t, sub.Channel)
}

func TestBroadcast(t *testing.T) {
	engine, spot, power := newRig(t)
	d := NewDispatcher(engine, nil, nil)

	names, err := d.Broadcast(Command{Op: OpSetPower, Power: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"fog"}, names)
	assert.True(t, power.On())

	names, err = d.Broadcast(Command{Op: OpGoDark})
	require.NoError(t, err)
	assert.Equal(t, []string{"fog", "spot"}, names)
	assert.False(t, power.On())
	assert.Equal(t, fixture.ModeDark, spot.Mode())

	_, err = d.Broadcast(Command{Op: "bogus"})
	assert.ErrorIs(t, err, ErrUnknownOp)
}
