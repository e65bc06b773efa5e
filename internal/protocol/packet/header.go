package packet

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Magic marks every protocol datagram.
const Magic uint32 = 0xDCC1AB1E

// ProtocolVersion is the HELLO protocol version this broker speaks.
const ProtocolVersion uint16 = 6

// Header sizes.
const (
	// HeaderSize is magic plus message type.
	HeaderSize = 5

	// DeviceHeaderSize adds the session and config tokens.
	DeviceHeaderSize = HeaderSize + 2*GuidSize
)

// MsgType identifies the message carried by a packet.
type MsgType uint8

// Message types in wire order.
const (
	MsgDiscovery MsgType = iota
	MsgHello
	MsgAccepted
	MsgConfigStart
	MsgConfigDev
	MsgConfigFinished
	MsgConfigAck
	MsgPing
	MsgPong
	MsgState
	MsgSync
	MsgDisconnect
	MsgTaskRequest
	MsgTaskData

	msgTypeCount
)

var msgTypeNames = [...]string{
	MsgDiscovery:      "DISCOVERY",
	MsgHello:          "HELLO",
	MsgAccepted:       "ACCEPTED",
	MsgConfigStart:    "CONFIG_START",
	MsgConfigDev:      "CONFIG_DEV",
	MsgConfigFinished: "CONFIG_FINISHED",
	MsgConfigAck:      "CONFIG_ACK",
	MsgPing:           "MSG_PING",
	MsgPong:           "MSG_PONG",
	MsgState:          "STATE",
	MsgSync:           "SYNC",
	MsgDisconnect:     "DISCONNECT",
	MsgTaskRequest:    "TASK_REQUEST",
	MsgTaskData:       "TASK_DATA",
}

// String returns the protocol name of the message type.
func (t MsgType) String() string {
	if t.Valid() {
		return msgTypeNames[t]
	}
	return fmt.Sprintf("MsgType(%d)", uint8(t))
}

// ParseMsgType accepts a protocol name such as "HELLO" or "hello".
func ParseMsgType(s string) (MsgType, error) {
	for i, n := range msgTypeNames {
		if strings.EqualFold(n, s) {
			return MsgType(i), nil
		}
	}
	return 0, fmt.Errorf("unknown message type %q", s)
}

// Valid reports whether t is a known message type.
func (t MsgType) Valid() bool {
	return t < msgTypeCount
}

// DeviceScoped reports whether the message carries session and config
// tokens. Only DISCOVERY is stateless.
func (t MsgType) DeviceScoped() bool {
	return t != MsgDiscovery
}

// Header is the decoded packet header.
type Header struct {
	Type         MsgType
	SessionToken uuid.UUID
	ConfigToken  uuid.UUID
}

// ParseHeader reads and validates the header from the start of p, leaving
// the read cursor on the first payload byte.
//
// Returns an error wrapping ErrBadMagic, ErrUnknownType or ErrInvalidPacket.
func ParseHeader(p *Packet) (Header, error) {
	var h Header

	p.Rewind()
	magic, err := p.Read32()
	if err != nil {
		return h, err
	}
	if magic != Magic {
		return h, fmt.Errorf("%w: %#08x", ErrBadMagic, magic)
	}

	t, err := p.Read8()
	if err != nil {
		return h, err
	}
	h.Type = MsgType(t)
	if !h.Type.Valid() {
		return h, fmt.Errorf("%w: %d", ErrUnknownType, t)
	}
	if !h.Type.DeviceScoped() {
		return h, nil
	}

	if h.SessionToken, err = p.ReadGuid(); err != nil {
		return h, err
	}
	if h.ConfigToken, err = p.ReadGuid(); err != nil {
		return h, err
	}
	return h, nil
}

// PeekType validates the magic of a raw datagram and returns its message
// type without decoding the tokens.
func PeekType(data []byte) (MsgType, error) {
	if len(data) < HeaderSize {
		return 0, fmt.Errorf("%w: %d byte datagram", ErrInvalidPacket, len(data))
	}
	if magic := binary.LittleEndian.Uint32(data); magic != Magic {
		return 0, fmt.Errorf("%w: %#08x", ErrBadMagic, magic)
	}
	t := MsgType(data[4])
	if !t.Valid() {
		return t, fmt.Errorf("%w: %d", ErrUnknownType, data[4])
	}
	return t, nil
}

// NewMessage starts a device-scoped packet of type t.
func NewMessage(t MsgType, session, config uuid.UUID) *Packet {
	p := New()
	p.Write32(Magic)
	p.Write8(uint8(t))
	if t.DeviceScoped() {
		p.WriteGuid(session)
		p.WriteGuid(config)
	}
	return p
}

// NewDiscoveryReply builds the blank reply sent for a DISCOVERY request.
func NewDiscoveryReply() *Packet {
	return NewMessage(MsgDiscovery, uuid.Nil, uuid.Nil)
}

// NewHello builds a HELLO packet. Devices send it; the broker uses it in
// tests and simulators.
func NewHello(session, config uuid.UUID, name string, version uint16) *Packet {
	p := NewMessage(MsgHello, session, config)
	p.WriteString(name)
	p.Write16(version)
	return p
}
