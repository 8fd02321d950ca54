// Package serialport opens the DMX-512 serial line, or a simulated one when
// no adapter is attached.
package serialport

import (
	"fmt"

	"go.bug.st/serial"

	"github.com/bbernstein/lacylights-dmx/internal/logger"
	"github.com/bbernstein/lacylights-dmx/internal/services/dmx"
)

// Simulate is the device name that selects the simulated port.
const Simulate = "simulate"

// Mode is the DMX-512 line setting: 250000 baud, 8N2.
func Mode() *serial.Mode {
	return &serial.Mode{
		BaudRate: dmx.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.TwoStopBits,
	}
}

// Open opens device in DMX-512 mode.
func Open(device string) (dmx.Port, error) {
	p, err := serial.Open(device, Mode())
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", device, err)
	}
	return p, nil
}

// Opener returns a dmx.Opener for device. An empty device or Simulate opens
// a simulated port.
func Opener(device string, log *logger.Log) dmx.Opener {
	if log == nil {
		log = logger.Discard()
	}
	log = log.Module("serial")

	if device == "" || device == Simulate {
		return func() (dmx.Port, error) {
			log.Warn("⚠️  No serial device configured, simulating the DMX line")
			return NewSimulated(), nil
		}
	}
	return func() (dmx.Port, error) {
		p, err := Open(device)
		if err != nil {
			return nil, err
		}
		log.WithField("device", device).Infof("🔌 Serial port opened at %d baud 8N2", dmx.BaudRate)
		return p, nil
	}
}

// Ports lists the serial devices present on this host.
func Ports() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("list serial ports: %w", err)
	}
	if ports == nil {
		ports = []string{}
	}
	return ports, nil
}
