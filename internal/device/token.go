package device

import (
	"github.com/google/uuid"

	"github.com/bcsanches/DCCLite-sub001/internal/decoder"
	"github.com/bcsanches/DCCLite-sub001/internal/protocol/packet"
)

// configNamespace seeds the name-based UUIDs used as config tokens.
var configNamespace = uuid.MustParse("3c1f5f7e-8d2a-4c41-9b57-dcc11ab1e000")

// ConfigToken hashes the CONFIG_DEV payloads of decoders, in wire order,
// into the token the device stores after a successful configuration. Any
// change to the decoder list or to a decoder's settings yields a new token.
func ConfigToken(decoders []decoder.Decoder) uuid.UUID {
	buf := make([]byte, 0, len(decoders)*16)
	for i, d := range decoders {
		p := packet.New()
		p.Write8(uint8(i))
		d.WriteConfig(p)
		buf = append(buf, p.Bytes()...)
	}
	return uuid.NewSHA1(configNamespace, buf)
}
