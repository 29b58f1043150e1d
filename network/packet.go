package network

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/jxsl13/udprtt/protocol"
)

var (
	// ErrMalformedPacket is returned when a datagram does not have the exact packet layout.
	ErrMalformedPacket = errors.New("malformed packet")

	// ErrFieldTooLong is returned when a text field does not fit into its fixed width.
	ErrFieldTooLong = errors.New("field too long")
)

// Packet is the only entity that is exchanged between client and server.
//
// Byte layout:
//
//	 0   1   2   3 ... 10  11 ... 202
//	+---+---+---+-------+-----------+
//	|  Seq  |Ver| Time  |  Payload  |
//	+---+---+---+-------+-----------+
type Packet struct {
	Sequence  uint16
	Version   byte
	Timestamp string
	Payload   string
}

// Timestamp formats t as the wall clock text that is put into the timestamp field.
func Timestamp(t time.Time) string {
	return t.Local().Format(protocol.TimestampLayout)
}

// NewControlPacket creates a control packet, which always carries the reserved sequence.
func NewControlPacket(msg protocol.ControlMsg, timestamp string) Packet {
	return Packet{
		Sequence:  protocol.ControlSequence,
		Version:   protocol.PacketVersion,
		Timestamp: timestamp,
		Payload:   string(msg),
	}
}

// NewDataPacket creates a data request or data reply packet.
func NewDataPacket(sequence uint16, payload, timestamp string) Packet {
	return Packet{
		Sequence:  sequence,
		Version:   protocol.PacketVersion,
		Timestamp: timestamp,
		Payload:   payload,
	}
}

// IsControl returns true if the payload is one of the control literals.
// The sequence number is not taken into account.
func (p *Packet) IsControl() bool {
	return protocol.IsControlMsg(p.Payload)
}

// ControlMsg returns the payload as control message.
func (p *Packet) ControlMsg() protocol.ControlMsg {
	return protocol.ControlMsg(p.Payload)
}

func (p *Packet) String() string {
	return fmt.Sprintf("Packet{Seq=%d, Version=%d, Time=%q, Payload=%q}", p.Sequence, p.Version, p.Timestamp, truncate(p.Payload, 16))
}

// MarshalBinary returns the fixed size wire representation of the packet.
func (p *Packet) MarshalBinary() ([]byte, error) {
	if len(p.Timestamp) > protocol.PacketTimestampSize {
		return nil, fmt.Errorf("%w: timestamp has %d bytes, at most %d allowed", ErrFieldTooLong, len(p.Timestamp), protocol.PacketTimestampSize)
	}
	if len(p.Payload) > protocol.PacketPayloadSize {
		return nil, fmt.Errorf("%w: payload has %d bytes, at most %d allowed", ErrFieldTooLong, len(p.Payload), protocol.PacketPayloadSize)
	}

	// zero initialized, which is the padding of both text fields
	buf := make([]byte, protocol.PacketSize)

	binary.BigEndian.PutUint16(buf[0:2], p.Sequence)
	buf[2] = p.Version

	data := buf[protocol.PacketSequenceSize+protocol.PacketVersionSize:]
	copy(data[:protocol.PacketTimestampSize], p.Timestamp)
	copy(data[protocol.PacketTimestampSize:], p.Payload)

	return buf, nil
}

// UnmarshalBinary parses the wire representation of a packet.
// Trailing zero padding is removed from both text fields.
func (p *Packet) UnmarshalBinary(data []byte) error {
	if len(data) != protocol.PacketSize {
		return fmt.Errorf("%w: invalid length %d, expected %d", ErrMalformedPacket, len(data), protocol.PacketSize)
	}

	sequence := binary.BigEndian.Uint16(data[0:2])
	version := data[2]

	data = data[protocol.PacketSequenceSize+protocol.PacketVersionSize:]
	timestamp, err := unpackText(data[:protocol.PacketTimestampSize])
	if err != nil {
		return fmt.Errorf("%w: timestamp: %v", ErrMalformedPacket, err)
	}
	payload, err := unpackText(data[protocol.PacketTimestampSize:])
	if err != nil {
		return fmt.Errorf("%w: payload: %v", ErrMalformedPacket, err)
	}

	*p = Packet{
		Sequence:  sequence,
		Version:   version,
		Timestamp: timestamp,
		Payload:   payload,
	}
	return nil
}

// Encode is a shorthand for Packet.MarshalBinary
func Encode(p Packet) ([]byte, error) {
	return p.MarshalBinary()
}

// Decode is a shorthand for Packet.UnmarshalBinary
func Decode(data []byte) (Packet, error) {
	var p Packet
	err := p.UnmarshalBinary(data)
	return p, err
}

func unpackText(field []byte) (string, error) {
	field = bytes.TrimRight(field, "\x00")
	if !utf8.Valid(field) {
		return "", errors.New("invalid utf-8 text")
	}
	return string(field), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
