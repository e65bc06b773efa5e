package packet

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

// MaxSize is the largest packet the protocol allows. Datagrams longer than
// this are truncated by the receiver.
const MaxSize = 128

// GuidSize is the encoded size of a session or config token.
const GuidSize = 16

// Packet is a fixed-capacity buffer with a write cursor and an independent
// read cursor.
//
// The zero value is an empty packet ready for writing.
type Packet struct {
	buf [MaxSize]byte
	n   int   // bytes written
	rd  int   // read cursor
	err error // sticky write error
}

// New returns an empty packet.
func New() *Packet {
	return &Packet{}
}

// FromBytes copies data into a packet for reading.
//
// Only the first MaxSize bytes are kept. The second return value reports
// whether data had to be truncated.
func FromBytes(data []byte) (*Packet, bool) {
	p := &Packet{}
	truncated := len(data) > MaxSize
	p.n = copy(p.buf[:], data)
	return p, truncated
}

// Bytes returns the written portion of the packet. The slice aliases the
// packet buffer.
func (p *Packet) Bytes() []byte {
	return p.buf[:p.n]
}

// Len returns the number of bytes written.
func (p *Packet) Len() int {
	return p.n
}

// Remaining returns the number of unread bytes.
func (p *Packet) Remaining() int {
	return p.n - p.rd
}

// ReadPos returns the read cursor position.
func (p *Packet) ReadPos() int {
	return p.rd
}

// Err returns ErrOverflow if any write exceeded capacity.
func (p *Packet) Err() error {
	return p.err
}

// Reset empties the packet for reuse.
func (p *Packet) Reset() {
	p.n = 0
	p.rd = 0
	p.err = nil
}

// Rewind moves the read cursor back to the start.
func (p *Packet) Rewind() {
	p.rd = 0
}

func (p *Packet) reserve(size int) []byte {
	if p.err != nil {
		return nil
	}
	if p.n+size > MaxSize {
		p.err = fmt.Errorf("%w: need %d bytes at offset %d", ErrOverflow, size, p.n)
		return nil
	}
	b := p.buf[p.n : p.n+size]
	p.n += size
	return b
}

func (p *Packet) take(size int, field string) ([]byte, error) {
	if size < 0 || p.rd+size > p.n {
		return nil, fmt.Errorf("%w: %s needs %d bytes at offset %d, have %d", ErrInvalidPacket, field, size, p.rd, p.n-p.rd)
	}
	b := p.buf[p.rd : p.rd+size]
	p.rd += size
	return b, nil
}

// Write8 appends a byte.
func (p *Packet) Write8(v uint8) {
	if b := p.reserve(1); b != nil {
		b[0] = v
	}
}

// Write16 appends a little-endian u16.
func (p *Packet) Write16(v uint16) {
	if b := p.reserve(2); b != nil {
		binary.LittleEndian.PutUint16(b, v)
	}
}

// Write32 appends a little-endian u32.
func (p *Packet) Write32(v uint32) {
	if b := p.reserve(4); b != nil {
		binary.LittleEndian.PutUint32(b, v)
	}
}

// Write64 appends a little-endian u64.
func (p *Packet) Write64(v uint64) {
	if b := p.reserve(8); b != nil {
		binary.LittleEndian.PutUint64(b, v)
	}
}

// WriteGuid appends a 16-byte token.
func (p *Packet) WriteGuid(g uuid.UUID) {
	if b := p.reserve(GuidSize); b != nil {
		copy(b, g[:])
	}
}

// WriteBytes appends raw bytes.
func (p *Packet) WriteBytes(data []byte) {
	if b := p.reserve(len(data)); b != nil {
		copy(b, data)
	}
}

// WriteString appends a string prefixed with its u8 length. Strings longer
// than 255 bytes are recorded as an overflow.
func (p *Packet) WriteString(s string) {
	if len(s) > 0xFF {
		if p.err == nil {
			p.err = fmt.Errorf("%w: string of %d bytes", ErrOverflow, len(s))
		}
		return
	}
	if b := p.reserve(1 + len(s)); b != nil {
		b[0] = uint8(len(s))
		copy(b[1:], s)
	}
}

// WriteStates appends a state vector.
func (p *Packet) WriteStates(v StateVector) {
	p.Write64(uint64(v))
}

// Read8 reads a byte.
func (p *Packet) Read8() (uint8, error) {
	b, err := p.take(1, "u8")
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// Read16 reads a little-endian u16.
func (p *Packet) Read16() (uint16, error) {
	b, err := p.take(2, "u16")
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

// Read32 reads a little-endian u32.
func (p *Packet) Read32() (uint32, error) {
	b, err := p.take(4, "u32")
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// Read64 reads a little-endian u64.
func (p *Packet) Read64() (uint64, error) {
	b, err := p.take(8, "u64")
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// ReadGuid reads a 16-byte token.
func (p *Packet) ReadGuid() (uuid.UUID, error) {
	var g uuid.UUID
	b, err := p.take(GuidSize, "guid")
	if err != nil {
		return g, err
	}
	copy(g[:], b)
	return g, nil
}

// ReadBytes reads n raw bytes. The result is a copy.
func (p *Packet) ReadBytes(n int) ([]byte, error) {
	b, err := p.take(n, "bytes")
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, b)
	return out, nil
}

// ReadString reads a u8 length-prefixed string.
func (p *Packet) ReadString() (string, error) {
	n, err := p.Read8()
	if err != nil {
		return "", err
	}
	b, err := p.take(int(n), "string")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ReadStates reads a state vector.
func (p *Packet) ReadStates() (StateVector, error) {
	v, err := p.Read64()
	return StateVector(v), err
}
