// Package trace records every datagram the broker sends or receives to a
// CBOR file and reads it back for offline protocol debugging.
//
// A Recorder is attached to the network dispatcher as its Tracer. Records
// are appended as a stream of CBOR items using integer keys; a Reader
// iterates them with an optional Filter, and Dump prints them one per line
// with the decoded header.
//
//	dccbroker trace dump ./data/packets.trace
package trace
