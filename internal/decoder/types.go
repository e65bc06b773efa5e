package decoder

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Address is a broker-wide unique decoder address.
type Address uint16

// String returns the decimal form.
func (a Address) String() string {
	return strconv.FormatUint(uint64(a), 10)
}

// Hex returns the hex form, for example "0x0064".
func (a Address) Hex() string {
	return fmt.Sprintf("0x%04X", uint16(a))
}

// ParseAddress accepts the decimal or 0x-prefixed hex form.
func ParseAddress(s string) (Address, error) {
	digits := strings.TrimSpace(s)
	base := 10
	if strings.HasPrefix(digits, "0x") || strings.HasPrefix(digits, "0X") {
		digits = digits[2:]
		base = 16
	}
	v, err := strconv.ParseUint(digits, base, 16)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	return Address(v), nil
}

// UnmarshalYAML accepts integer and string scalars.
func (a *Address) UnmarshalYAML(node *yaml.Node) error {
	v, err := ParseAddress(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*a = v
	return nil
}

// MarshalText renders the decimal form.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// State is the binary state of a decoder.
type State uint8

// Decoder states.
const (
	StateInactive State = iota
	StateActive
)

// String returns "INACTIVE" or "ACTIVE".
func (s State) String() string {
	if s == StateActive {
		return "ACTIVE"
	}
	return "INACTIVE"
}

// Toggle returns the opposite state.
func (s State) Toggle() State {
	if s == StateActive {
		return StateInactive
	}
	return StateActive
}

// FromBool maps true to StateActive.
func FromBool(on bool) State {
	if on {
		return StateActive
	}
	return StateInactive
}

// ParseState accepts active/inactive, on/off, thrown/closed and 1/0 in any
// case.
func ParseState(s string) (State, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "active", "on", "thrown", "1", "true":
		return StateActive, nil
	case "inactive", "off", "closed", "0", "false":
		return StateInactive, nil
	}
	return StateInactive, fmt.Errorf("%w: %q", ErrInvalidState, s)
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(b []byte) error {
	v, err := ParseState(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Kind is the decoder type. The numeric value is sent on the wire in
// CONFIG_DEV.
type Kind uint8

// Decoder kinds.
const (
	KindOutput       Kind = 1
	KindSensor       Kind = 2
	KindServoTurnout Kind = 3
	KindQuadInverter Kind = 4
)

var kindNames = map[Kind]string{
	KindOutput:       "output",
	KindSensor:       "sensor",
	KindServoTurnout: "servo_turnout",
	KindQuadInverter: "quad_inverter",
}

// String returns the configuration name of the kind.
func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// ParseKind parses a configuration name.
func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for k, n := range kindNames {
		if n == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(b []byte) error {
	v, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}
