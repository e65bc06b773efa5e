package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bcsanches/DCCLite-sub001/internal/audit"
	"github.com/bcsanches/DCCLite-sub001/internal/decoder"
	"github.com/bcsanches/DCCLite-sub001/internal/device"
	"github.com/bcsanches/DCCLite-sub001/internal/infrastructure/mqtt"
	"github.com/bcsanches/DCCLite-sub001/internal/task"
)

// defaultCommandTimeout bounds how long a command waits for the domain
// goroutine.
const defaultCommandTimeout = 2 * time.Second

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Publisher sends MQTT messages. *mqtt.Client implements it.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// Subscriber registers MQTT handlers. *mqtt.Client implements it.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// Commander executes decoder state commands. *broker.Service implements
// it.
type Commander interface {
	SetDecoderStateByName(ctx context.Context, deviceName, decoderName string, st decoder.State) error
}

// MQTTConfig configures an MQTTBridge.
type MQTTConfig struct {
	Topics    mqtt.Topics
	QoS       byte
	Publisher Publisher
	Commander Commander
	Logger    Logger

	// Audit records every command received. Optional.
	Audit audit.Repository

	// CommandTimeout bounds each command.
	// Default: 2 seconds.
	CommandTimeout time.Duration
}

// MQTTBridge mirrors domain state to MQTT and turns MQTT commands into
// decoder state requests.
type MQTTBridge struct {
	topics    mqtt.Topics
	qos       byte
	publisher Publisher
	commander Commander
	logger    Logger
	audit     audit.Repository
	timeout   time.Duration
}

var _ device.Observer = (*MQTTBridge)(nil)

// NewMQTTBridge creates a bridge. Commands are handled only after
// Subscribe.
func NewMQTTBridge(cfg MQTTConfig) *MQTTBridge {
	if cfg.Logger == nil {
		cfg.Logger = noopLogger{}
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = defaultCommandTimeout
	}
	return &MQTTBridge{
		topics:    cfg.Topics,
		qos:       cfg.QoS,
		publisher: cfg.Publisher,
		commander: cfg.Commander,
		logger:    cfg.Logger,
		audit:     cfg.Audit,
		timeout:   cfg.CommandTimeout,
	}
}

// Subscribe starts accepting decoder commands.
func (b *MQTTBridge) Subscribe(sub Subscriber) error {
	if err := sub.Subscribe(b.topics.AllDecoderCommands(), b.qos, b.HandleCommand); err != nil {
		return fmt.Errorf("subscribing to decoder commands: %w", err)
	}
	b.logger.Info("accepting decoder commands", "topic", b.topics.AllDecoderCommands())
	return nil
}

// HandleCommand executes one command message and publishes its ack. It is
// the MQTT message handler.
func (b *MQTTBridge) HandleCommand(topic string, payload []byte) error {
	deviceName, decoderName, ok := b.topics.ParseDecoderCommand(topic)
	if !ok {
		return fmt.Errorf("%w: %s", ErrInvalidTopic, topic)
	}

	ack := AckMessage{Device: deviceName, Decoder: decoderName}
	st, err := ParseCommand(payload)
	if err == nil {
		ack.State = st.String()
		ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
		err = b.commander.SetDecoderStateByName(ctx, deviceName, decoderName, st)
		cancel()
	}
	ack.Success = err == nil
	if err != nil {
		ack.Error = err.Error()
		b.logger.Warn("decoder command failed", "device", deviceName, "decoder", decoderName, "error", err)
	}
	ack.Timestamp = time.Now().UTC()
	b.record(deviceName, decoderName, payload, err)

	if pubErr := b.publishJSON(b.topics.DecoderAck(deviceName, decoderName), ack, false); pubErr != nil {
		b.logger.Warn("failed to publish command ack", "device", deviceName, "decoder", decoderName, "error", pubErr)
	}
	return err
}

func (b *MQTTBridge) record(deviceName, decoderName string, payload []byte, cmdErr error) {
	if b.audit == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()
	e := &audit.Entry{
		Action:  audit.ActionSetState,
		Device:  deviceName,
		Target:  decoderName,
		Source:  audit.SourceMQTT,
		Result:  audit.Result(cmdErr),
		Details: map[string]any{"payload": string(payload)},
	}
	if err := b.audit.Create(ctx, e); err != nil {
		b.logger.Warn("failed to record command", "device", deviceName, "decoder", decoderName, "error", err)
	}
}

// OnDeviceEvent publishes the retained device status. A destroyed device
// has its retained status cleared.
func (b *MQTTBridge) OnDeviceEvent(ev device.DeviceEvent) {
	topic := b.topics.DeviceStatus(ev.Device)
	if ev.Type == device.EventDestroyed {
		b.clear(topic)
		return
	}
	if err := b.publishJSON(topic, newDeviceStatusMessage(ev), true); err != nil {
		b.logger.Debug("device status not published", "device", ev.Device, "error", err)
	}
}

// OnDecoderEvent publishes the retained decoder state.
func (b *MQTTBridge) OnDecoderEvent(ev device.DecoderEvent) {
	topic := b.topics.DecoderState(ev.Device, ev.Decoder)
	if ev.Type == device.EventDestroyed {
		b.clear(topic)
		return
	}
	if err := b.publishJSON(topic, newDecoderStateMessage(ev), true); err != nil {
		b.logger.Debug("decoder state not published", "device", ev.Device, "decoder", ev.Decoder, "error", err)
	}
}

// OnTaskChanged publishes task progress.
func (b *MQTTBridge) OnTaskChanged(info task.Info) {
	msg := TaskMessage{Info: info, Timestamp: time.Now().UTC()}
	if err := b.publishJSON(b.topics.Task(info.Device, uint32(info.ID)), msg, false); err != nil {
		b.logger.Debug("task progress not published", "device", info.Device, "task", info.ID, "error", err)
	}
}

func (b *MQTTBridge) clear(topic string) {
	if !b.publisher.IsConnected() {
		return
	}
	if err := b.publisher.Publish(topic, nil, b.qos, true); err != nil {
		b.logger.Debug("retained topic not cleared", "topic", topic, "error", err)
	}
}

func (b *MQTTBridge) publishJSON(topic string, v any, retained bool) error {
	if !b.publisher.IsConnected() {
		return mqtt.ErrNotConnected
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.publisher.Publish(topic, payload, b.qos, retained)
}

// CommanderFunc adapts a function to Commander.
type CommanderFunc func(ctx context.Context, deviceName, decoderName string, st decoder.State) error

func (f CommanderFunc) SetDecoderStateByName(ctx context.Context, deviceName, decoderName string, st decoder.State) error {
	return f(ctx, deviceName, decoderName, st)
}
