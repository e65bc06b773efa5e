package device

import (
	"fmt"
	"strings"
	"time"

	"github.com/bcsanches/DCCLite-sub001/internal/decoder"
	"github.com/bcsanches/DCCLite-sub001/internal/protocol/packet"
	"github.com/bcsanches/DCCLite-sub001/internal/task"
)

// Status is the protocol state of a device session.
type Status uint8

// Session statuses. A device without a session is Offline.
const (
	StatusOffline Status = iota
	StatusConfiguring
	StatusSyncing
	StatusOnline
)

func (s Status) String() string {
	switch s {
	case StatusConfiguring:
		return "configuring"
	case StatusSyncing:
		return "syncing"
	case StatusOnline:
		return "online"
	default:
		return "offline"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Timing holds the protocol retry and timeout policy.
type Timing struct {
	// ConfigRetry is the resend period while Configuring.
	ConfigRetry time.Duration

	// SyncRetry is the SYNC resend period while Syncing.
	SyncRetry time.Duration

	// StateTick is how often an Online session evaluates outbound state.
	StateTick time.Duration

	// StateMinInterval is the minimum gap between two identical STATE
	// transmissions.
	StateMinInterval time.Duration

	// PingInterval is the inbound silence after which the broker pings.
	PingInterval time.Duration

	// Timeout is the inbound silence after which the session drops.
	Timeout time.Duration
}

// DefaultTiming returns the protocol defaults.
func DefaultTiming() Timing {
	return Timing{
		ConfigRetry:      100 * time.Millisecond,
		SyncRetry:        100 * time.Millisecond,
		StateTick:        20 * time.Millisecond,
		StateMinInterval: 250 * time.Millisecond,
		PingInterval:     2 * time.Second,
		Timeout:          10 * time.Second,
	}
}

// MaxConfigResends caps the CONFIG_DEV packets resent per retry tick.
const MaxConfigResends = 3

// Config is the static configuration of one device.
type Config struct {
	Name     string           `yaml:"name"`
	Location string           `yaml:"location,omitempty"`
	Decoders []decoder.Config `yaml:"decoders"`
}

// Validate checks the device level fields. Decoder configs are validated
// when the decoders are built.
func (c *Config) Validate() error {
	var errs []string
	if c.Name == "" {
		errs = append(errs, "name is required")
	} else if len(c.Name) > 31 {
		errs = append(errs, "name exceeds 31 characters")
	}
	if len(c.Decoders) > packet.MaxDecodersPerPacket {
		errs = append(errs, fmt.Sprintf("at most %d decoders per device", packet.MaxDecodersPerPacket))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %s: %s", ErrInvalidDevice, c.Name, strings.Join(errs, "; "))
	}
	return nil
}

// DecoderInfo is a plain-data snapshot of a decoder.
type DecoderInfo struct {
	Index     int             `json:"index"`
	Name      string          `json:"name"`
	Address   decoder.Address `json:"address"`
	Kind      decoder.Kind    `json:"kind"`
	Location  string          `json:"location,omitempty"`
	Output    bool            `json:"output"`
	State     decoder.State   `json:"state"`
	Requested *decoder.State  `json:"requested,omitempty"`
}

// Info is a plain-data snapshot of a device.
type Info struct {
	Name            string        `json:"name"`
	Location        string        `json:"location,omitempty"`
	Registered      bool          `json:"registered"`
	Status          Status        `json:"status"`
	Remote          string        `json:"remote,omitempty"`
	SessionToken    string        `json:"session_token,omitempty"`
	ConfigToken     string        `json:"config_token"`
	ProtocolVersion uint16        `json:"protocol_version,omitempty"`
	LastSeen        time.Time     `json:"last_seen,omitzero"`
	Decoders        []DecoderInfo `json:"decoders"`
	Tasks           []task.Info   `json:"tasks,omitempty"`
}

// TaskRequest asks an Online device to start a task.
type TaskRequest struct {
	Kind task.Kind `json:"kind"`

	// NewName is the rename target.
	NewName string `json:"new_name,omitempty"`

	// Decoder names the servo turnout for the servo programmer.
	Decoder string `json:"decoder,omitempty"`

	// Interval and Duration tune the network test.
	Interval time.Duration `json:"interval,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
}

// ServoOp is an operator command for a running servo programmer.
type ServoOp string

// Servo programmer commands.
const (
	ServoMove   ServoOp = "move"
	ServoDeploy ServoOp = "deploy"
	ServoStop   ServoOp = "stop"
)

// ServoCommand is routed to a servo programmer task.
type ServoCommand struct {
	Op          ServoOp             `json:"op"`
	Position    uint8               `json:"position,omitempty"`
	Calibration decoder.Calibration `json:"calibration"`
}
