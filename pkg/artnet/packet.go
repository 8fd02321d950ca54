// Package artnet builds and parses Art-Net ArtDmx packets.
package artnet

import (
	"bytes"
	"encoding/binary"
	"errors"
)

const (
	// OpCodeDMX is the Art-Net operation code for DMX data.
	OpCodeDMX uint16 = 0x5000
	// ProtocolVersion is the Art-Net protocol version.
	ProtocolVersion uint16 = 14
	// HeaderSize is the ArtDmx header length preceding the channel data.
	HeaderSize = 18
	// MaxDataLength is the number of DMX channels per universe.
	MaxDataLength = 512
	// MinDataLength is the shortest payload a receiver must accept.
	MinDataLength = 2
	// DefaultPort is the standard Art-Net UDP port.
	DefaultPort = 6454
)

// ID is the Art-Net packet identifier.
var ID = []byte{'A', 'r', 't', '-', 'N', 'e', 't', 0x00}

var (
	ErrShortPacket = errors.New("artnet: packet too short")
	ErrNotArtNet   = errors.New("artnet: missing Art-Net id")
	ErrNotDMX      = errors.New("artnet: not an ArtDmx packet")
	ErrBadLength   = errors.New("artnet: data length out of range")
)

// DMXPacket is a decoded ArtDmx packet.
type DMXPacket struct {
	Sequence byte
	Physical byte
	// Universe is the 15-bit port-address.
	Universe uint16
	Data     []byte
}

// dataLength rounds n up to the even length ArtDmx requires.
func dataLength(n int) int {
	switch {
	case n < MinDataLength:
		return MinDataLength
	case n > MaxDataLength:
		return MaxDataLength
	case n%2 == 1:
		return n + 1
	default:
		return n
	}
}

// BuildDMXPacket creates an ArtDmx packet for the port-address universe.
// channels holds DMX channels 1..n without the start code; it is truncated
// to 512 and zero padded to an even length of at least 2. Sequence should
// increment for each packet (1-255, 0 disables reordering on receivers).
func BuildDMXPacket(universe uint16, channels []byte, sequence byte) []byte {
	n := dataLength(len(channels))
	packet := make([]byte, HeaderSize+n)

	copy(packet[0:8], ID)
	binary.LittleEndian.PutUint16(packet[8:10], OpCodeDMX)
	binary.BigEndian.PutUint16(packet[10:12], ProtocolVersion)
	packet[12] = sequence
	packet[13] = 0 // physical input port
	binary.LittleEndian.PutUint16(packet[14:16], universe&0x7fff)
	binary.BigEndian.PutUint16(packet[16:18], uint16(n))
	copy(packet[HeaderSize:], channels)

	return packet
}

// ParseDMXPacket decodes an ArtDmx packet. Data aliases b.
func ParseDMXPacket(b []byte) (DMXPacket, error) {
	if len(b) < HeaderSize {
		return DMXPacket{}, ErrShortPacket
	}
	if !bytes.Equal(b[0:8], ID) {
		return DMXPacket{}, ErrNotArtNet
	}
	if binary.LittleEndian.Uint16(b[8:10]) != OpCodeDMX {
		return DMXPacket{}, ErrNotDMX
	}
	n := int(binary.BigEndian.Uint16(b[16:18]))
	if n < MinDataLength || n > MaxDataLength {
		return DMXPacket{}, ErrBadLength
	}
	if len(b) < HeaderSize+n {
		return DMXPacket{}, ErrShortPacket
	}
	return DMXPacket{
		Sequence: b[12],
		Physical: b[13],
		Universe: binary.LittleEndian.Uint16(b[14:16]) & 0x7fff,
		Data:     b[HeaderSize : HeaderSize+n],
	}, nil
}
