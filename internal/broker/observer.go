package broker

import (
	"sync"
	"sync/atomic"

	"github.com/bcsanches/DCCLite-sub001/internal/device"
	"github.com/bcsanches/DCCLite-sub001/internal/task"
)

// DefaultObserverQueueSize is the AsyncObserver buffer used when the size
// given is zero.
const DefaultObserverQueueSize = 1024

type notification struct {
	device  *device.DeviceEvent
	decoder *device.DecoderEvent
	task    *task.Info
}

// AsyncObserver hands notifications to a slow observer (MQTT, InfluxDB) on
// its own goroutine. The domain goroutine never waits: when the buffer is
// full the notification is dropped and counted.
type AsyncObserver struct {
	target device.Observer
	queue  chan notification
	logger Logger

	dropped atomic.Uint64
	closed  atomic.Bool
	once    sync.Once
	wg      sync.WaitGroup
}

// NewAsyncObserver starts the delivery goroutine for target.
func NewAsyncObserver(target device.Observer, size int, logger Logger) *AsyncObserver {
	if size <= 0 {
		size = DefaultObserverQueueSize
	}
	if logger == nil {
		logger = noopLogger{}
	}
	o := &AsyncObserver{
		target: target,
		queue:  make(chan notification, size),
		logger: logger,
	}
	o.wg.Add(1)
	go o.deliver()
	return o
}

func (o *AsyncObserver) deliver() {
	defer o.wg.Done()
	for n := range o.queue {
		switch {
		case n.device != nil:
			o.target.OnDeviceEvent(*n.device)
		case n.decoder != nil:
			o.target.OnDecoderEvent(*n.decoder)
		case n.task != nil:
			o.target.OnTaskChanged(*n.task)
		}
	}
}

func (o *AsyncObserver) post(n notification) {
	if o.closed.Load() {
		return
	}
	select {
	case o.queue <- n:
	default:
		if o.dropped.Add(1)%100 == 1 {
			o.logger.Warn("observer queue full, dropping notifications", "dropped", o.dropped.Load())
		}
	}
}

func (o *AsyncObserver) OnDeviceEvent(ev device.DeviceEvent)   { o.post(notification{device: &ev}) }
func (o *AsyncObserver) OnDecoderEvent(ev device.DecoderEvent) { o.post(notification{decoder: &ev}) }
func (o *AsyncObserver) OnTaskChanged(info task.Info)          { o.post(notification{task: &info}) }

// Dropped returns how many notifications were discarded.
func (o *AsyncObserver) Dropped() uint64 {
	return o.dropped.Load()
}

// Close delivers what is queued and stops the goroutine. Notifications
// posted afterwards are ignored. Close must not race with posts from the
// domain goroutine; call it after Run returns.
func (o *AsyncObserver) Close() {
	o.once.Do(func() {
		o.closed.Store(true)
		close(o.queue)
		o.wg.Wait()
	})
}
