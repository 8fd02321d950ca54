package fixture

import (
	"math"
	"sync"

	"github.com/bbernstein/lacylights-dmx/internal/services/dmx"
)

// PinSpotChannels is the slot length of a pin spot:
// control, red, green, blue, white, auto-run.
const PinSpotChannels = 6

// Control byte values.
const (
	// ControlSolid is full output with no strobe.
	ControlSolid byte = 255
	// controlStrobeSlow..controlStrobeFast is the strobe rate range.
	controlStrobeSlow byte = 135
	controlStrobeFast byte = 239
	// MaxStrobe is the fastest strobe a command can ask for.
	MaxStrobe = 100
)

// Mode is the pin spot state.
type Mode int

const (
	ModeDark Mode = iota
	ModeColor
	ModeFader
	ModeAutoRun
	// ModeHold means the last write is still current and nothing needs recomputing.
	ModeHold
)

func (m Mode) String() string {
	switch m {
	case ModeDark:
		return "dark"
	case ModeColor:
		return "color"
	case ModeFader:
		return "fader"
	case ModeAutoRun:
		return "autorun"
	case ModeHold:
		return "hold"
	default:
		return "unknown"
	}
}

// autoRunProgram maps an effect to the fixture's built-in program.
type autoRunProgram struct {
	name    string
	control byte
	code    byte
}

var autoRunPrograms = []autoRunProgram{
	{name: "jump3", control: ControlSolid, code: 61},
	{name: "jump7", control: ControlSolid, code: 86},
	{name: "fade3", control: ControlSolid, code: 111},
	{name: "fade7", control: ControlSolid, code: 136},
	{name: "pulse3", control: ControlSolid, code: 161},
	{name: "pulse7", control: ControlSolid, code: 186},
	{name: "sound", control: ControlSolid, code: 231},
}

// Effects lists the auto-run effect names; the index is the effect id.
func Effects() []string {
	names := make([]string, len(autoRunPrograms))
	for i, p := range autoRunPrograms {
		names[i] = p.name
	}
	return names
}

// PinSpot is an RGBW spot with strobe, fades and built-in programs.
type PinSpot struct {
	mu        sync.Mutex
	frameRate float64
	mode      Mode
	color     Color
	strobe    int
	effect    int
	fader     *Fader
	layover   int // frames left to linger after a fade arrives
	changed   bool
}

// NewPinSpot creates a dark pin spot advanced at frameRate frames per second.
func NewPinSpot(frameRate float64) *PinSpot {
	return &PinSpot{
		frameRate: frameRate,
		mode:      ModeDark,
		fader:     NewFader(),
		changed:   true,
	}
}

// Kind implements dmx.HeadUnit.
func (p *PinSpot) Kind() dmx.Kind { return dmx.KindPinSpot }

// Darken implements dmx.HeadUnit.
func (p *PinSpot) Darken() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mode = ModeDark
	p.color = Black
	p.strobe = 0
	p.changed = true
}

// GoDark is the command form of Darken.
func (p *PinSpot) GoDark() {
	p.Darken()
}

// SetColor shows a static color. strobe 1..MaxStrobe flashes it, 0 is solid.
func (p *PinSpot) SetColor(c Color, strobe int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mode = ModeColor
	p.color = c.Clamp()
	p.strobe = clampInt(strobe, 0, MaxStrobe)
	p.changed = true
}

// Fade starts a fade described by opts.
func (p *PinSpot) Fade(opts FaderOptions) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !opts.UseOrigin {
		opts.Origin = p.color
	}
	p.fader.Prepare(opts, p.frameRate)
	p.layover = int(math.Round(p.fader.Options().Layover * p.frameRate))
	p.color = p.fader.Location()
	p.strobe = 0
	p.mode = ModeFader
	p.changed = true
}

// FadeTo fades from the current color to c over seconds.
func (p *PinSpot) FadeTo(c Color, seconds, acceleration float64) {
	p.Fade(FaderOptions{Destination: c, TravelSeconds: seconds, Acceleration: acceleration})
}

// FadeIn fades from black to c over seconds, whatever is showing now.
func (p *PinSpot) FadeIn(c Color, seconds float64) {
	p.Fade(FaderOptions{Origin: Black, Destination: c, TravelSeconds: seconds, UseOrigin: true})
}

// RunEffect hands control to a built-in program. Unknown ids are clamped
// into the program table.
func (p *PinSpot) RunEffect(id int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mode = ModeAutoRun
	p.effect = clampInt(id, 0, len(autoRunPrograms)-1)
	p.strobe = 0
	p.changed = true
}

// Advance implements dmx.Animator. A fixture busy with a command is skipped
// for this frame.
func (p *PinSpot) Advance() {
	if !p.mu.TryLock() {
		return
	}
	defer p.mu.Unlock()

	switch p.mode {
	case ModeFader:
		if !p.fader.Finished() {
			p.fader.Travel()
			p.color = p.fader.Location()
			p.changed = true
		}
		if p.fader.Finished() {
			if p.layover > 0 {
				p.layover--
			} else {
				p.mode = ModeHold
			}
		}
	case ModeAutoRun:
		p.changed = true
	}
}

// ContributeFrame implements dmx.HeadUnit.
func (p *PinSpot) ContributeFrame(dst []byte) bool {
	if !p.mu.TryLock() {
		return false
	}
	defer p.mu.Unlock()

	if !p.changed {
		return false
	}

	var control, program byte
	if p.mode == ModeAutoRun {
		prog := autoRunPrograms[p.effect]
		control, program = prog.control, prog.code
	} else {
		control = strobeControl(p.strobe)
	}
	rgbw := p.color.Bytes()
	frame := [PinSpotChannels]byte{control, rgbw[Red], rgbw[Green], rgbw[Blue], rgbw[White], program}
	copy(dst, frame[:])

	p.changed = false
	if p.mode == ModeDark || p.mode == ModeColor {
		p.mode = ModeHold
	}
	return true
}

// Mode returns the current mode.
func (p *PinSpot) Mode() Mode {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mode
}

// Color returns the color currently being shown.
func (p *PinSpot) Color() Color {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.color
}

// FadeFinished reports whether the last fade has arrived.
func (p *PinSpot) FadeFinished() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fader.Finished()
}

// Changed reports whether a write is pending.
func (p *PinSpot) Changed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.changed
}

func strobeControl(strobe int) byte {
	if strobe <= 0 {
		return ControlSolid
	}
	span := int(controlStrobeFast - controlStrobeSlow)
	return controlStrobeSlow + byte((strobe-1)*span/(MaxStrobe-1))
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
