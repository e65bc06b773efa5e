package bridge

import (
	"github.com/bcsanches/DCCLite-sub001/internal/device"
	"github.com/bcsanches/DCCLite-sub001/internal/task"
)

// MetricsRecorder receives domain counters. *metrics.Metrics implements
// it.
type MetricsRecorder interface {
	DeviceStatus(device, status string)
	DecoderStateChanged(kind string)
	TaskFinished(kind, status string)
}

// MetricsObserver keeps Prometheus gauges in step with the registry. Its
// calls are cheap and never block, so it runs synchronously on the domain
// goroutine.
type MetricsObserver struct {
	m MetricsRecorder
}

var _ device.Observer = (*MetricsObserver)(nil)

// NewMetricsObserver wraps m.
func NewMetricsObserver(m MetricsRecorder) *MetricsObserver {
	return &MetricsObserver{m: m}
}

func (o *MetricsObserver) OnDeviceEvent(ev device.DeviceEvent) {
	switch ev.Type {
	case device.EventCreated, device.EventStatusChanged:
		o.m.DeviceStatus(ev.Device, ev.Status.String())
	case device.EventDestroyed:
		o.m.DeviceStatus(ev.Device, "")
	}
}

func (o *MetricsObserver) OnDecoderEvent(ev device.DecoderEvent) {
	if ev.Type == device.EventStateChanged {
		o.m.DecoderStateChanged(ev.Kind.String())
	}
}

func (o *MetricsObserver) OnTaskChanged(info task.Info) {
	if info.Status != task.StatusRunning.String() {
		o.m.TaskFinished(info.Kind, info.Status)
	}
}
