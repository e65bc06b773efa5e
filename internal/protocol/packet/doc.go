// Package packet implements the binary wire format spoken between the broker
// and DCCLite devices.
//
// Every datagram carries exactly one packet of at most MaxSize bytes. A packet
// starts with a fixed header:
//
//	Byte 0-3:   Magic (little-endian u32)
//	Byte 4:     Message type
//	Byte 5-20:  Session token (device-scoped messages only)
//	Byte 21-36: Config token (device-scoped messages only)
//
// Fields after the header are message specific and must be read in the same
// order they were written. The Packet type provides a typed cursor over the
// fixed buffer:
//
//	p := packet.NewMessage(packet.MsgState, session, config)
//	p.Write64(seq)
//	p.WriteStates(changed)
//	p.WriteStates(values)
//
// Writes never grow past MaxSize. The first write that would overflow marks
// the packet with ErrOverflow and every later write is ignored, so building a
// packet never corrupts memory and the caller checks Err once before sending.
// Reads past the written length return an error wrapping ErrInvalidPacket.
package packet
