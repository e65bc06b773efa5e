package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementDecoderState = "decoder_state"
	MeasurementDeviceStatus = "device_status"
	MeasurementNetworkTest  = "network_test"
	MeasurementTask         = "task"
)

// NetworkTestResult is one finished network test.
type NetworkTestResult struct {
	Sent     int
	Received int
	Lost     int
	MinRTT   time.Duration
	AvgRTT   time.Duration
	MaxRTT   time.Duration
}

// WriteDecoderState records a decoder state reported by its device. Address
// and kind are tags so queries can group by either.
func (c *Client) WriteDecoderState(device, decoder, address, kind string, active bool, at time.Time) {
	c.writePoint(decoderStatePoint(device, decoder, address, kind, active, at))
}

// WriteDeviceStatus records a session status transition.
func (c *Client) WriteDeviceStatus(device, status string, at time.Time) {
	c.writePoint(deviceStatusPoint(device, status, at))
}

// WriteNetworkTest records the outcome of a network test task.
func (c *Client) WriteNetworkTest(device string, r NetworkTestResult, at time.Time) {
	c.writePoint(networkTestPoint(device, r, at))
}

// WriteTask records a task reaching a terminal status.
func (c *Client) WriteTask(device, kind, status string, at time.Time) {
	c.writePoint(write.NewPoint(
		MeasurementTask,
		map[string]string{"device": device, "kind": kind},
		map[string]interface{}{"status": status},
		at,
	))
}

// WritePoint writes a custom point stamped now.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	c.writePoint(write.NewPoint(measurement, tags, fields, time.Now()))
}

func (c *Client) writePoint(p *write.Point) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(p)
}

func decoderStatePoint(device, decoder, address, kind string, active bool, at time.Time) *write.Point {
	value := 0
	if active {
		value = 1
	}
	return write.NewPoint(
		MeasurementDecoderState,
		map[string]string{
			"device":  device,
			"decoder": decoder,
			"address": address,
			"kind":    kind,
		},
		map[string]interface{}{
			"active": active,
			"value":  value,
		},
		at,
	)
}

func deviceStatusPoint(device, status string, at time.Time) *write.Point {
	online := 0
	if status == "online" {
		online = 1
	}
	return write.NewPoint(
		MeasurementDeviceStatus,
		map[string]string{"device": device},
		map[string]interface{}{
			"status": status,
			"online": online,
		},
		at,
	)
}

func networkTestPoint(device string, r NetworkTestResult, at time.Time) *write.Point {
	loss := 0.0
	if r.Sent > 0 {
		loss = float64(r.Lost) / float64(r.Sent)
	}
	return write.NewPoint(
		MeasurementNetworkTest,
		map[string]string{"device": device},
		map[string]interface{}{
			"sent":       r.Sent,
			"received":   r.Received,
			"lost":       r.Lost,
			"loss_ratio": loss,
			"min_rtt_ms": float64(r.MinRTT) / float64(time.Millisecond),
			"avg_rtt_ms": float64(r.AvgRTT) / float64(time.Millisecond),
			"max_rtt_ms": float64(r.MaxRTT) / float64(time.Millisecond),
		},
		at,
	)
}
