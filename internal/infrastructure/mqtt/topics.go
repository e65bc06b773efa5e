package mqtt

import (
	"fmt"
	"strings"
)

// DefaultTopicPrefix is used when the configuration leaves topic_prefix
// empty.
const DefaultTopicPrefix = "dcclite"

// Topics builds the broker's MQTT topic tree under a prefix:
//
//	{prefix}/broker/status                       retained broker status, LWT
//	{prefix}/broker/health                       retained periodic health report
//	{prefix}/device/{device}/status              retained session status
//	{prefix}/decoder/{device}/{decoder}/state    retained decoder state
//	{prefix}/decoder/{device}/{decoder}/set      inbound state command
//	{prefix}/decoder/{device}/{decoder}/ack      command result
//	{prefix}/task/{device}/{id}                  task progress
//
// Names are sanitised so a device or decoder name containing '/', '+' or
// '#' cannot escape its level.
type Topics struct {
	Prefix string
}

func (t Topics) prefix() string {
	if t.Prefix == "" {
		return DefaultTopicPrefix
	}
	return t.Prefix
}

// BrokerStatus returns the retained broker status topic, also used as LWT.
func (t Topics) BrokerStatus() string {
	return t.prefix() + "/broker/status"
}

// BrokerHealth returns the retained health report topic.
func (t Topics) BrokerHealth() string {
	return t.prefix() + "/broker/health"
}

// DeviceStatus returns the retained status topic of a device.
func (t Topics) DeviceStatus(device string) string {
	return fmt.Sprintf("%s/device/%s/status", t.prefix(), Level(device))
}

// DecoderState returns the retained state topic of a decoder.
func (t Topics) DecoderState(device, decoder string) string {
	return fmt.Sprintf("%s/decoder/%s/%s/state", t.prefix(), Level(device), Level(decoder))
}

// DecoderCommand returns the topic clients publish state requests to.
func (t Topics) DecoderCommand(device, decoder string) string {
	return fmt.Sprintf("%s/decoder/%s/%s/set", t.prefix(), Level(device), Level(decoder))
}

// DecoderAck returns the topic carrying the result of a state request.
func (t Topics) DecoderAck(device, decoder string) string {
	return fmt.Sprintf("%s/decoder/%s/%s/ack", t.prefix(), Level(device), Level(decoder))
}

// Task returns the progress topic of a task.
func (t Topics) Task(device string, id uint32) string {
	return fmt.Sprintf("%s/task/%s/%d", t.prefix(), Level(device), id)
}

// AllDecoderCommands matches every decoder command topic.
func (t Topics) AllDecoderCommands() string {
	return t.prefix() + "/decoder/+/+/set"
}

// ParseDecoderCommand extracts device and decoder from a command topic.
func (t Topics) ParseDecoderCommand(topic string) (device, decoder string, ok bool) {
	rest, found := strings.CutPrefix(topic, t.prefix()+"/decoder/")
	if !found {
		return "", "", false
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 3 || parts[2] != "set" || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// Level makes a name safe to use as a single topic level.
func Level(name string) string {
	return strings.NewReplacer("/", "_", "+", "_", "#", "_").Replace(name)
}
