// Package network owns the broker's UDP socket.
//
// A Dispatcher runs one read goroutine that blocks on the socket, validates
// the magic and message type of every datagram and posts the survivors as
// Events on a bounded channel drained by the domain goroutine. It never
// touches device state: DISCOVERY is the only message it answers itself,
// with a blank reply, because that needs no session.
//
// # Backpressure
//
// Posting never blocks the read goroutine. When the Events channel is full
// the datagram is dropped and counted; the protocol's resend-until-acked
// design recovers.
//
// # Writes
//
// SendTo writes one packet as one datagram and may be called from the
// domain goroutine while the read goroutine is blocked in a receive; a UDP
// write is a single atomic sendto.
//
// # Thread Safety
//
// All exported methods are safe for concurrent use.
package network
