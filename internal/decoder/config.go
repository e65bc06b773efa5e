package decoder

import (
	"fmt"
	"strings"
	"time"
)

// NullPin marks an unused optional pin on the wire.
const NullPin uint8 = 0xFF

const maxNameLength = 64

// Config is the static configuration of one decoder as read from the
// devices file. Fields that do not apply to a kind are ignored.
type Config struct {
	Name     string  `yaml:"name"`
	Kind     Kind    `yaml:"kind"`
	Address  Address `yaml:"address"`
	Location string  `yaml:"location,omitempty"`

	// Pin is the primary pin for outputs, sensors and servos.
	Pin *uint8 `yaml:"pin,omitempty"`

	// Output and servo flags.
	Inverted          bool `yaml:"inverted,omitempty"`
	IgnoreSavedState  bool `yaml:"ignore_saved_state,omitempty"`
	ActivateOnPowerUp bool `yaml:"activate_on_power_up,omitempty"`

	// Sensor settings.
	PullUp          bool          `yaml:"pull_up,omitempty"`
	ActivateDelay   time.Duration `yaml:"activate_delay,omitempty"`
	DeactivateDelay time.Duration `yaml:"deactivate_delay,omitempty"`

	// Servo turnout settings.
	PowerPin      *uint8        `yaml:"power_pin,omitempty"`
	FrogPin       *uint8        `yaml:"frog_pin,omitempty"`
	InvertedPower bool          `yaml:"inverted_power,omitempty"`
	InvertedFrog  bool          `yaml:"inverted_frog,omitempty"`
	StartPos      uint8         `yaml:"start_pos,omitempty"`
	EndPos        uint8         `yaml:"end_pos,omitempty"`
	OperationTime time.Duration `yaml:"operation_time,omitempty"`

	// Quad inverter settings.
	Pins         []uint8       `yaml:"pins,omitempty"`
	FlipInterval time.Duration `yaml:"flip_interval,omitempty"`
}

// Defaults applied when a servo or inverter leaves a timing unset.
const (
	DefaultServoEndPos        = 180
	DefaultServoOperationTime = time.Second
	DefaultFlipInterval       = 5 * time.Millisecond
)

// Validate checks the fields required by the configured kind.
//
// Returns:
//   - error: wrapping ErrInvalidConfig listing every problem, or nil
func (c *Config) Validate() error {
	var errs []string

	if c.Name == "" {
		errs = append(errs, "name is required")
	} else if len(c.Name) > maxNameLength {
		errs = append(errs, fmt.Sprintf("name exceeds %d characters", maxNameLength))
	}

	requirePin := func(field string, pin *uint8) {
		if pin == nil {
			errs = append(errs, field+" is required")
		} else if *pin == NullPin {
			errs = append(errs, fmt.Sprintf("%s %d is reserved", field, NullPin))
		}
	}

	switch c.Kind {
	case KindOutput:
		requirePin("pin", c.Pin)
	case KindSensor:
		requirePin("pin", c.Pin)
		if c.ActivateDelay < 0 || c.DeactivateDelay < 0 {
			errs = append(errs, "sensor delays must not be negative")
		}
	case KindServoTurnout:
		requirePin("pin", c.Pin)
		if c.StartPos > c.EndPos && c.EndPos != 0 {
			errs = append(errs, "start_pos must not exceed end_pos")
		}
		if c.OperationTime < 0 {
			errs = append(errs, "operation_time must not be negative")
		}
	case KindQuadInverter:
		if len(c.Pins) != 4 {
			errs = append(errs, "quad_inverter needs exactly 4 pins")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown kind %d", uint8(c.Kind)))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s: %s", ErrInvalidConfig, c.Name, strings.Join(errs, "; "))
	}
	return nil
}

func pinOrNull(p *uint8) uint8 {
	if p == nil {
		return NullPin
	}
	return *p
}
