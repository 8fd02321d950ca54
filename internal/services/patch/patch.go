// Package patch loads the fixture patch: which fixture sits at which DMX
// address. The patch is authored as a TOML file, stored in the database and
// turned into registered head units at startup.
package patch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/bbernstein/lacylights-dmx/internal/database/models"
	"github.com/bbernstein/lacylights-dmx/internal/services/dmx"
	"github.com/bbernstein/lacylights-dmx/internal/services/fixture"
)

var (
	ErrInvalid     = errors.New("patch: invalid fixture")
	ErrUnknownKind = errors.New("patch: unknown fixture kind")
)

// Entry is one [[fixture]] table in the patch file.
type Entry struct {
	Name      string `toml:"name"`
	Kind      string `toml:"kind"`
	Address   int    `toml:"address"`
	Length    int    `toml:"length,omitempty"`
	Indicator bool   `toml:"indicator,omitempty"`
	Notes     string `toml:"notes,omitempty"`
}

// File is the patch file.
type File struct {
	Fixtures []Entry `toml:"fixture"`
}

// Load reads and validates a patch file.
func Load(path string) (*File, error) {
	var f File
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return nil, fmt.Errorf("patch: read %s: %w", path, err)
	}
	if err := f.Normalize(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Parse decodes and validates a patch from TOML text.
func Parse(data string) (*File, error) {
	var f File
	if _, err := toml.Decode(data, &f); err != nil {
		return nil, fmt.Errorf("patch: decode: %w", err)
	}
	if err := f.Normalize(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Encode writes f as TOML.
func Encode(w io.Writer, f *File) error {
	return toml.NewEncoder(w).Encode(f)
}

// Channels returns the slot length of a fixture kind.
func Channels(kind string) (int, error) {
	switch kind {
	case models.KindPowerSwitch:
		return fixture.PowerSwitchChannels, nil
	case models.KindDimmable:
		return fixture.DimmableChannels, nil
	case models.KindPinSpot:
		return fixture.PinSpotChannels, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

// Normalize fills default lengths and rejects entries the engine would
// refuse: unknown kinds, bad lengths, duplicate names and overlapping slots.
func (f *File) Normalize() error {
	names := make(map[string]bool, len(f.Fixtures))
	for i := range f.Fixtures {
		e := &f.Fixtures[i]
		e.Name = strings.TrimSpace(e.Name)
		e.Kind = strings.ToLower(strings.TrimSpace(e.Kind))

		if e.Name == "" {
			return fmt.Errorf("%w: fixture %d has no name", ErrInvalid, i+1)
		}
		if names[e.Name] {
			return fmt.Errorf("%w: duplicate name %q", ErrInvalid, e.Name)
		}
		names[e.Name] = true

		n, err := Channels(e.Kind)
		if err != nil {
			return fmt.Errorf("%s: %w", e.Name, err)
		}
		if e.Length == 0 {
			e.Length = n
		}
		if e.Length != n {
			return fmt.Errorf("%w: %s is a %s with %d channels, not %d", ErrInvalid, e.Name, e.Kind, n, e.Length)
		}
		if !e.slot().Valid() {
			return fmt.Errorf("%w: %s at %s is outside the universe", ErrInvalid, e.Name, e.slot())
		}
		if e.Indicator && e.Kind != models.KindDimmable {
			return fmt.Errorf("%w: indicator %s must be a dimmable", ErrInvalid, e.Name)
		}
	}

	sorted := make([]Entry, len(f.Fixtures))
	copy(sorted, f.Fixtures)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Address < sorted[j].Address })
	for i := 1; i < len(sorted); i++ {
		if sorted[i-1].slot().Overlaps(sorted[i].slot()) {
			return fmt.Errorf("%w: %s and %s overlap", ErrInvalid, sorted[i-1].Name, sorted[i].Name)
		}
	}
	return nil
}

func (e Entry) slot() dmx.Slot {
	return dmx.Slot{Address: e.Address, Length: e.Length}
}

// Models converts the file to database rows.
func (f *File) Models() []models.PatchFixture {
	rows := make([]models.PatchFixture, 0, len(f.Fixtures))
	for _, e := range f.Fixtures {
		row := models.PatchFixture{
			Name:      e.Name,
			Kind:      e.Kind,
			Address:   e.Address,
			Length:    e.Length,
			Indicator: e.Indicator,
		}
		if e.Notes != "" {
			notes := e.Notes
			row.Notes = &notes
		}
		rows = append(rows, row)
	}
	return rows
}

// FromModels converts database rows back to a patch file.
func FromModels(rows []models.PatchFixture) *File {
	f := &File{Fixtures: make([]Entry, 0, len(rows))}
	for _, r := range rows {
		e := Entry{
			Name:      r.Name,
			Kind:      r.Kind,
			Address:   r.Address,
			Length:    r.Length,
			Indicator: r.Indicator,
		}
		if r.Notes != nil {
			e.Notes = *r.Notes
		}
		f.Fixtures = append(f.Fixtures, e)
	}
	return f
}

// Store is the persistence the patch needs.
type Store interface {
	FindAll(ctx context.Context) ([]models.PatchFixture, error)
	ReplaceAll(ctx context.Context, fixtures []models.PatchFixture) error
}

// Import replaces the stored patch with f.
func Import(ctx context.Context, store Store, f *File) error {
	if err := f.Normalize(); err != nil {
		return err
	}
	if err := store.ReplaceAll(ctx, f.Models()); err != nil {
		return fmt.Errorf("patch: store: %w", err)
	}
	return nil
}

// Export reads the stored patch.
func Export(ctx context.Context, store Store) (*File, error) {
	rows, err := store.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("patch: load: %w", err)
	}
	return FromModels(rows), nil
}
