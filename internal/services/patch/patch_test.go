package patch

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bbernstein/lacylights-dmx/internal/database/models"
	"github.com/bbernstein/lacylights-dmx/internal/services/dmx"
	"github.com/bbernstein/lacylights-dmx/internal/services/fixture"
	"github.com/bbernstein/lacylights-dmx/internal/services/testutil"
)

const samplePatch = `
[[fixture]]
name = "relay"
kind = "power"
address = 1

[[fixture]]
name = "status"
kind = "dimmable"
address = 2
indicator = true

[[fixture]]
name = "spot-1"
kind = "PinSpot"
address = 10
notes = "stage left"
`

func TestParse_FillsLengths(t *testing.T) {
	f, err := Parse(samplePatch)
	require.NoError(t, err)
	require.Len(t, f.Fixtures, 3)

	assert.Equal(t, 1, f.Fixtures[0].Length)
	assert.Equal(t, 1, f.Fixtures[1].Length)
	assert.Equal(t, "pinspot", f.Fixtures[2].Kind)
	assert.Equal(t, fixture.PinSpotChannels, f.Fixtures[2].Length)
	assert.Equal(t, "stage left", f.Fixtures[2].Notes)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		toml string
		want error
	}{
		{
			name: "unknown kind",
			toml: "[[fixture]]\nname = \"x\"\nkind = \"laser\"\naddress = 1\n",
			want: ErrUnknownKind,
		},
		{
			name: "missing name",
			toml: "[[fixture]]\nkind = \"power\"\naddress = 1\n",
			want: ErrInvalid,
		},
		{
			name: "duplicate name",
			toml: "[[fixture]]\nname = \"x\"\nkind = \"power\"\naddress = 1\n[[fixture]]\nname = \"x\"\nkind = \"power\"\naddress = 2\n",
			want: ErrInvalid,
		},
		{
			name: "wrong length",
			toml: "[[fixture]]\nname = \"x\"\nkind = \"pinspot\"\naddress = 1\nlength = 4\n",
			want: ErrInvalid,
		},
		{
			name: "outside universe",
			toml: "[[fixture]]\nname = \"x\"\nkind = \"pinspot\"\naddress = 510\n",
			want: ErrInvalid,
		},
		{
			name: "overlap",
			toml: "[[fixture]]\nname = \"a\"\nkind = \"pinspot\"\naddress = 10\n[[fixture]]\nname = \"b\"\nkind = \"power\"\naddress = 15\n",
			want: ErrInvalid,
		},
		{
			name: "indicator on pinspot",
			toml: "[[fixture]]\nname = \"a\"\nkind = \"pinspot\"\naddress = 10\nindicator = true\n",
			want: ErrInvalid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.toml)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestParse_BadTOML(t *testing.T) {
	_, err := Parse("[[fixture]\nname =")
	assert.Error(t, err)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "patch.toml")
	require.NoError(t, os.WriteFile(path, []byte(samplePatch), 0o644))

	f, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, f.Fixtures, 3)

	_, err = Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestEncode_RoundTrip(t *testing.T) {
	f, err := Parse(samplePatch)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, f))

	again, err := Parse(buf.String())
	require.NoError(t, err)
	assert.Equal(t, f.Fixtures, again.Fixtures)
}

func TestImportExport(t *testing.T) {
	testDB, cleanup := testutil.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	f, err := Parse(samplePatch)
	require.NoError(t, err)
	require.NoError(t, Import(ctx, testDB.FixtureRepo, f))

	stored, err := testDB.FixtureRepo.FindByName(ctx, "spot-1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, models.KindPinSpot, stored.Kind)
	assert.Equal(t, 10, stored.Address)
	require.NotNil(t, stored.Notes)
	assert.Equal(t, "stage left", *stored.Notes)

	out, err := Export(ctx, testDB.FixtureRepo)
	require.NoError(t, err)
	require.Len(t, out.Fixtures, 3)
	assert.Equal(t, "relay", out.Fixtures[0].Name)
	assert.Equal(t, "spot-1", out.Fixtures[2].Name)
}

func TestBuild_RegistersWithEngine(t *testing.T) {
	testDB, cleanup := testutil.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	f, err := Parse(samplePatch)
	require.NoError(t, err)
	require.NoError(t, Import(ctx, testDB.FixtureRepo, f))

	engine, err := dmx.NewEngine(dmx.DefaultConfig(), nil, nil)
	require.NoError(t, err)

	p, err := Build(ctx, testDB.FixtureRepo, engine, dmx.DefaultFrameRate)
	require.NoError(t, err)
	require.Len(t, p.Fixtures, 3)

	reg, ok := engine.Lookup("spot-1")
	require.True(t, ok)
	assert.Equal(t, dmx.Slot{Address: 10, Length: 6}, reg.Slot)
	assert.Equal(t, dmx.KindPinSpot, reg.Unit.Kind())

	indicators := p.Indicators()
	require.Len(t, indicators, 1)
	r, _ := engine.Lookup("status")
	assert.Same(t, r.Unit, dmx.HeadUnit(indicators[0]))
}

func TestBuild_RegistrationConflict(t *testing.T) {
	testDB, cleanup := testutil.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	f, err := Parse(samplePatch)
	require.NoError(t, err)
	require.NoError(t, Import(ctx, testDB.FixtureRepo, f))

	engine, err := dmx.NewEngine(dmx.DefaultConfig(), nil, nil)
	require.NoError(t, err)
	require.NoError(t, engine.Register("squatter", fixture.NewPowerSwitch(), dmx.Slot{Address: 12, Length: 1}))

	_, err = Build(ctx, testDB.FixtureRepo, engine, dmx.DefaultFrameRate)
	assert.ErrorIs(t, err, dmx.ErrSlotOverlap)
}

func TestBuild_PastChannelCount(t *testing.T) {
	testDB, cleanup := testutil.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	f, err := Parse(samplePatch)
	require.NoError(t, err)
	require.NoError(t, Import(ctx, testDB.FixtureRepo, f))

	engine, err := dmx.NewEngine(dmx.Config{Channels: 12}, nil, nil)
	require.NoError(t, err)

	_, err = Build(ctx, testDB.FixtureRepo, engine, dmx.DefaultFrameRate)
	assert.ErrorIs(t, err, dmx.ErrSlotRange)
}

func TestNewUnit(t *testing.T) {
	tests := []struct {
		kind string
		want dmx.Kind
	}{
		{models.KindPowerSwitch, dmx.KindPowerSwitch},
		{models.KindDimmable, dmx.KindDimmable},
		{models.KindPinSpot, dmx.KindPinSpot},
	}
	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			u, err := NewUnit(tt.kind, dmx.DefaultFrameRate)
			require.NoError(t, err)
			assert.Equal(t, tt.want, u.Kind())
		})
	}

	_, err := NewUnit("fog", dmx.DefaultFrameRate)
	assert.ErrorIs(t, err, ErrUnknownKind)
}
