package decoder

import "fmt"

type constructor func(cfg Config, device string) (Decoder, error)

// constructors is the static kind dispatch table.
var constructors = map[Kind]constructor{
	KindOutput:       newOutput,
	KindSensor:       newSensor,
	KindServoTurnout: newServoTurnout,
	KindQuadInverter: newQuadInverter,
}

// New validates cfg and builds the decoder for its kind, owned by device.
//
// Parameters:
//   - cfg: Decoder configuration
//   - device: Name of the owning device
//
// Returns:
//   - Decoder: The constructed decoder
//   - error: ErrUnknownKind or ErrInvalidConfig
func New(cfg Config, device string) (Decoder, error) {
	ctor, ok := constructors[cfg.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, uint8(cfg.Kind))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return ctor(cfg, device)
}

// Kinds returns the kinds New can build.
func Kinds() []Kind {
	return []Kind{KindOutput, KindSensor, KindServoTurnout, KindQuadInverter}
}
