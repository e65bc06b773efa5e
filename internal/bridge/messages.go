package bridge

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/bcsanches/DCCLite-sub001/internal/decoder"
	"github.com/bcsanches/DCCLite-sub001/internal/device"
	"github.com/bcsanches/DCCLite-sub001/internal/task"
)

// DeviceStatusMessage is the retained payload on a device status topic.
type DeviceStatusMessage struct {
	Device     string    `json:"device"`
	Status     string    `json:"status"`
	Remote     string    `json:"remote,omitempty"`
	Registered bool      `json:"registered"`
	Timestamp  time.Time `json:"timestamp"`
}

// DecoderStateMessage is the retained payload on a decoder state topic.
type DecoderStateMessage struct {
	Device    string          `json:"device"`
	Decoder   string          `json:"decoder"`
	Address   decoder.Address `json:"address"`
	Kind      decoder.Kind    `json:"kind"`
	State     decoder.State   `json:"state"`
	Requested *decoder.State  `json:"requested,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// CommandMessage is the JSON form of a state command.
type CommandMessage struct {
	State string `json:"state"`
}

// AckMessage answers a state command.
type AckMessage struct {
	Device    string    `json:"device"`
	Decoder   string    `json:"decoder"`
	State     string    `json:"state,omitempty"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// TaskMessage reports task progress.
type TaskMessage struct {
	task.Info
	Timestamp time.Time `json:"timestamp"`
}

// HealthStatus is the broker's overall state in a health report.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthStarting HealthStatus = "starting"
	HealthStopping HealthStatus = "stopping"
)

// Statistics is the operational part of a health report.
type Statistics struct {
	DevicesTotal   int    `json:"devices_total"`
	DevicesOnline  int    `json:"devices_online"`
	PacketsRx      uint64 `json:"packets_rx"`
	PacketsTx      uint64 `json:"packets_tx"`
	PacketsDropped uint64 `json:"packets_dropped"`
	PacketsInvalid uint64 `json:"packets_invalid"`
}

// HealthMessage is the retained payload on the broker health topic.
type HealthMessage struct {
	Broker        string       `json:"broker"`
	Timestamp     time.Time    `json:"timestamp"`
	Status        HealthStatus `json:"status"`
	Reason        string       `json:"reason,omitempty"`
	Version       string       `json:"version"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	Statistics    *Statistics  `json:"statistics,omitempty"`
}

func newDeviceStatusMessage(ev device.DeviceEvent) DeviceStatusMessage {
	return DeviceStatusMessage{
		Device:     ev.Device,
		Status:     ev.Status.String(),
		Remote:     ev.Remote,
		Registered: ev.Registered,
		Timestamp:  ev.Time.UTC(),
	}
}

func newDecoderStateMessage(ev device.DecoderEvent) DecoderStateMessage {
	msg := DecoderStateMessage{
		Device:    ev.Device,
		Decoder:   ev.Decoder,
		Address:   ev.Address,
		Kind:      ev.Kind,
		State:     ev.State,
		Timestamp: ev.Time.UTC(),
	}
	if ev.Output {
		requested := ev.Requested
		msg.Requested = &requested
	}
	return msg
}

// ParseCommand decodes a command payload.
func ParseCommand(payload []byte) (decoder.State, error) {
	text := strings.TrimSpace(string(payload))
	if strings.HasPrefix(text, "{") {
		var cmd CommandMessage
		if err := json.Unmarshal(payload, &cmd); err != nil {
			return decoder.StateInactive, fmt.Errorf("%w: %w", ErrInvalidCommand, err)
		}
		text = cmd.State
	}
	st, err := decoder.ParseState(text)
	if err != nil {
		return decoder.StateInactive, fmt.Errorf("%w: %w", ErrInvalidCommand, err)
	}
	return st, nil
}
