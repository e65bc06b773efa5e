package bridge

import (
	"time"

	"github.com/bcsanches/DCCLite-sub001/internal/decoder"
	"github.com/bcsanches/DCCLite-sub001/internal/device"
	"github.com/bcsanches/DCCLite-sub001/internal/infrastructure/influxdb"
	"github.com/bcsanches/DCCLite-sub001/internal/task"
)

// TelemetryWriter stores time-series points. *influxdb.Client implements
// it.
type TelemetryWriter interface {
	WriteDecoderState(device, decoder, address, kind string, active bool, at time.Time)
	WriteDeviceStatus(device, status string, at time.Time)
	WriteNetworkTest(device string, r influxdb.NetworkTestResult, at time.Time)
	WriteTask(device, kind, status string, at time.Time)
}

// TelemetryObserver records reported decoder states, session status
// transitions and finished tasks.
type TelemetryObserver struct {
	w TelemetryWriter
}

var _ device.Observer = (*TelemetryObserver)(nil)

// NewTelemetryObserver wraps w.
func NewTelemetryObserver(w TelemetryWriter) *TelemetryObserver {
	return &TelemetryObserver{w: w}
}

func (o *TelemetryObserver) OnDeviceEvent(ev device.DeviceEvent) {
	if ev.Type == device.EventStatusChanged {
		o.w.WriteDeviceStatus(ev.Device, ev.Status.String(), ev.Time)
	}
}

// OnDecoderEvent records only states reported by devices; operator
// requests are not history.
func (o *TelemetryObserver) OnDecoderEvent(ev device.DecoderEvent) {
	if ev.Type != device.EventStateChanged {
		return
	}
	o.w.WriteDecoderState(ev.Device, ev.Decoder, ev.Address.String(), ev.Kind.String(), ev.State == decoder.StateActive, ev.Time)
}

func (o *TelemetryObserver) OnTaskChanged(info task.Info) {
	if info.Status == task.StatusRunning.String() {
		return
	}
	now := time.Now()
	o.w.WriteTask(info.Device, info.Kind, info.Status, now)
	if r, ok := info.Result.(task.NetworkResults); ok {
		o.w.WriteNetworkTest(info.Device, influxdb.NetworkTestResult{
			Sent:     r.Sent,
			Received: r.Received,
			Lost:     r.Lost,
			MinRTT:   r.MinRTT,
			AvgRTT:   r.AvgRTT,
			MaxRTT:   r.MaxRTT,
		}, now)
	}
}
