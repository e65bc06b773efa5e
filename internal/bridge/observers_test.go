package bridge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bcsanches/DCCLite-sub001/internal/decoder"
	"github.com/bcsanches/DCCLite-sub001/internal/device"
	"github.com/bcsanches/DCCLite-sub001/internal/infrastructure/influxdb"
	"github.com/bcsanches/DCCLite-sub001/internal/task"
)

type fakeWriter struct {
	states   []string
	statuses []string
	tests    []influxdb.NetworkTestResult
	tasks    []string
}

func (f *fakeWriter) WriteDecoderState(dev, dec, address, kind string, active bool, _ time.Time) {
	s := dev + "/" + dec + "@" + address + ":" + kind
	if active {
		s += "=1"
	} else {
		s += "=0"
	}
	f.states = append(f.states, s)
}

func (f *fakeWriter) WriteDeviceStatus(dev, status string, _ time.Time) {
	f.statuses = append(f.statuses, dev+"="+status)
}

func (f *fakeWriter) WriteNetworkTest(_ string, r influxdb.NetworkTestResult, _ time.Time) {
	f.tests = append(f.tests, r)
}

func (f *fakeWriter) WriteTask(dev, kind, status string, _ time.Time) {
	f.tasks = append(f.tasks, dev+"/"+kind+"="+status)
}

func TestTelemetryObserver(t *testing.T) {
	w := &fakeWriter{}
	o := NewTelemetryObserver(w)

	o.OnDeviceEvent(device.DeviceEvent{Type: device.EventCreated, Device: "Bench"})
	o.OnDeviceEvent(device.DeviceEvent{Type: device.EventStatusChanged, Device: "Bench", Status: device.StatusOnline})
	assert.Equal(t, []string{"Bench=online"}, w.statuses)

	o.OnDecoderEvent(device.DecoderEvent{
		Type: device.EventRequestChanged, Device: "Bench", Decoder: "T1",
		Address: 5, Kind: decoder.KindOutput, Requested: decoder.StateActive,
	})
	o.OnDecoderEvent(device.DecoderEvent{
		Type: device.EventStateChanged, Device: "Bench", Decoder: "S1",
		Address: 30, Kind: decoder.KindSensor, State: decoder.StateActive,
	})
	assert.Equal(t, []string{"Bench/S1@30:sensor=1"}, w.states)

	o.OnTaskChanged(task.Info{Device: "Bench", Kind: "network_test", Status: "running"})
	assert.Empty(t, w.tasks)

	o.OnTaskChanged(task.Info{
		Device: "Bench", Kind: "network_test", Status: "finished",
		Result: task.NetworkResults{Sent: 10, Received: 9, Lost: 1, MinRTT: time.Millisecond},
	})
	assert.Equal(t, []string{"Bench/network_test=finished"}, w.tasks)
	require.Len(t, w.tests, 1)
	assert.Equal(t, 9, w.tests[0].Received)
	assert.Equal(t, time.Millisecond, w.tests[0].MinRTT)
}

type fakeRecorder struct {
	devices  map[string]string
	changes  []string
	finished []string
}

func (f *fakeRecorder) DeviceStatus(dev, status string) {
	if status == "" {
		delete(f.devices, dev)
		return
	}
	f.devices[dev] = status
}

func (f *fakeRecorder) DecoderStateChanged(kind string) { f.changes = append(f.changes, kind) }

func (f *fakeRecorder) TaskFinished(kind, status string) {
	f.finished = append(f.finished, kind+"="+status)
}

func TestMetricsObserver(t *testing.T) {
	r := &fakeRecorder{devices: map[string]string{}}
	o := NewMetricsObserver(r)

	o.OnDeviceEvent(device.DeviceEvent{Type: device.EventCreated, Device: "Bench", Status: device.StatusOffline})
	assert.Equal(t, "offline", r.devices["Bench"])
	o.OnDeviceEvent(device.DeviceEvent{Type: device.EventStatusChanged, Device: "Bench", Status: device.StatusOnline})
	assert.Equal(t, "online", r.devices["Bench"])
	o.OnDeviceEvent(device.DeviceEvent{Type: device.EventDestroyed, Device: "Bench"})
	assert.NotContains(t, r.devices, "Bench")

	o.OnDecoderEvent(device.DecoderEvent{Type: device.EventStateChanged, Kind: decoder.KindServoTurnout})
	o.OnDecoderEvent(device.DecoderEvent{Type: device.EventRequestChanged, Kind: decoder.KindOutput})
	assert.Equal(t, []string{"servo_turnout"}, r.changes)

	o.OnTaskChanged(task.Info{Kind: "servo_programmer", Status: "running"})
	o.OnTaskChanged(task.Info{Kind: "servo_programmer", Status: "failed"})
	assert.Equal(t, []string{"servo_programmer=failed"}, r.finished)
}
