// Package device implements the broker side of the DCCLite session
// protocol and the registry of devices and their decoders.
//
// # Session lifecycle
//
//	           HELLO (config token differs)
//	Offline ─────────────────────────────▶ Configuring
//	   │                                        │ all CONFIG_ACKs +
//	   │ HELLO (config token matches)           │ CONFIG_FINISHED echo
//	   │      ACCEPTED                          ▼
//	   └──────────────────────────────────▶ Syncing ──SYNC reply──▶ Online
//
//	any state ── timeout / DISCONNECT / new HELLO / protocol error ──▶ Offline
//
// Every inbound packet except DISCOVERY and HELLO is routed by its session
// token and must carry the configuration token of the current session.
// Online sessions exchange STATE packets carrying a sequence number and two
// 64-bit vectors: which decoders changed and their values. The broker
// acknowledges a sensor change by replying with a refresh of every sensor.
//
// # Concurrency
//
// Registry, Device and every timer callback run on the broker's single
// domain goroutine. Nothing here locks. Collaborators (timer queue, packet
// sender, observer, logger, persistent store) are passed in an Env that the
// registry hands to each session call.
//
// # Persistence
//
// SQLiteStore keeps the last requested state of outputs and servo
// calibrations. Writes are queued to a background goroutine so the domain
// loop never waits on disk.
package device
