// Package decoder models the addressable I/O endpoints hosted by DCCLite
// devices.
//
// A decoder is one of a closed set of kinds (outputs, sensors, servo
// turnouts, quad inverters). Every kind implements the Decoder capability
// interface; kinds the broker can drive also implement Output. The broker
// never type-switches on concrete kinds outside this package: it asks a
// decoder whether it IsOutput or IsInput and lets it serialise its own
// configuration with WriteConfig.
//
// # Addresses
//
// Each decoder has a 16-bit Address that is unique across the broker. The
// address has a decimal form ("100") and a hex form ("0x0064"); both are
// accepted wherever an address is parsed.
//
// # Construction
//
// Decoders are built from a Config by New, which dispatches through a static
// kind -> constructor table. Invalid configuration is reported as an error
// wrapping ErrInvalidConfig and must abort the owning device's load.
package decoder
