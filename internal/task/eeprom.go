package task

import (
	"fmt"
	"time"

	"github.com/bcsanches/DCCLite-sub001/internal/protocol/packet"
)

// Download EEPROM operations.
const (
	// Broker to device.
	eepromOpStart        uint8 = 0x01
	eepromOpRequestSlice uint8 = 0x02
	eepromOpFinished     uint8 = 0x03

	// Device to broker. OpAck is not used; slices are the acknowledgement.
	eepromOpSlice uint8 = 0x10
)

// Largest slice a device may send: MaxSize minus device header, task header,
// op byte and the slice header.
const maxSliceSize = packet.MaxSize - packet.DeviceHeaderSize - 5 - 1 - 5

// DownloadEEPROM reads the device's persistent storage. The device answers
// START by streaming every slice; each slice carries the slice count, slice
// size, its index and the total length. When RetryInterval passes without
// progress the task re-requests only the missing slices.
type DownloadEEPROM struct {
	core

	data       []byte
	received   []bool
	missing    int
	sliceSize  int
	retries    int
	lastChange time.Time
}

// NewDownloadEEPROM creates a download task.
func NewDownloadEEPROM(link Link, observer Observer) *DownloadEEPROM {
	t := &DownloadEEPROM{core: newCore(KindDownloadEEPROM, link, observer)}
	t.self = t
	return t
}

// Start implements Task.
func (t *DownloadEEPROM) Start(now time.Time) {
	t.sendOp(eepromOpStart)
	t.lastChange = now
	t.arm(now.Add(RetryInterval), t.onRetry)
}

func (t *DownloadEEPROM) sendOp(op uint8) {
	p := t.request()
	p.Write8(op)
	t.link.Send(p)
}

func (t *DownloadEEPROM) requestSlice(index int) {
	p := t.request()
	p.Write8(eepromOpRequestSlice)
	p.Write8(uint8(index))
	t.link.Send(p)
}

func (t *DownloadEEPROM) onRetry(now time.Time) {
	t.timer = 0
	if now.Sub(t.lastChange) < RetryInterval {
		t.arm(t.lastChange.Add(RetryInterval), t.onRetry)
		return
	}

	t.retries++
	if t.retries >= MaxRetries {
		t.fail(ErrTimeout)
		return
	}

	if t.received == nil {
		t.sendOp(eepromOpStart)
	} else {
		for i, ok := range t.received {
			if !ok {
				t.requestSlice(i)
			}
		}
	}
	t.lastChange = now
	t.arm(now.Add(RetryInterval), t.onRetry)
}

// HandleData implements Task.
func (t *DownloadEEPROM) HandleData(p *packet.Packet, now time.Time) error {
	if t.done() {
		return nil
	}

	op, err := p.Read8()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	switch op {
	case OpFailure:
		t.fail(readFailure(p))
		return nil
	case eepromOpSlice:
	default:
		return fmt.Errorf("%w: op %d", ErrInvalidData, op)
	}

	var hdr [3]uint8
	for i := range hdr {
		if hdr[i], err = p.Read8(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidData, err)
		}
	}
	total, err := p.Read16()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	count, size, index := int(hdr[0]), int(hdr[1]), int(hdr[2])

	if count == 0 || size == 0 || size > maxSliceSize || index >= count ||
		int(total) > count*size || int(total) <= (count-1)*size {
		return fmt.Errorf("%w: slice %d/%d size %d total %d", ErrInvalidData, index, count, size, total)
	}

	if t.received == nil {
		t.data = make([]byte, total)
		t.received = make([]bool, count)
		t.missing = count
		t.sliceSize = size
	} else if count != len(t.received) || size != t.sliceSize || int(total) != len(t.data) {
		return fmt.Errorf("%w: slice layout changed mid download", ErrInvalidData)
	}

	start := index * size
	end := min(start+size, len(t.data))
	chunk, err := p.ReadBytes(end - start)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidData, err)
	}

	if !t.received[index] {
		copy(t.data[start:end], chunk)
		t.received[index] = true
		t.missing--
		t.retries = 0
		t.lastChange = now
	}

	if t.missing == 0 {
		t.sendOp(eepromOpFinished)
		t.finish()
	}
	return nil
}

// EEPROMResult is the Info.Result of a finished download. Data encodes as
// base64 in JSON.
type EEPROMResult struct {
	Bytes int    `json:"bytes"`
	Data  []byte `json:"data"`
}

// Data returns the downloaded bytes once the task finished.
func (t *DownloadEEPROM) Data() []byte {
	if !t.Finished() {
		return nil
	}
	return t.data
}

// Info implements Task.
func (t *DownloadEEPROM) Info() Info {
	progress := 0.0
	if n := len(t.received); n > 0 {
		progress = float64(n-t.missing) / float64(n)
	}
	var result any
	if t.Finished() {
		result = EEPROMResult{Bytes: len(t.data), Data: append([]byte(nil), t.data...)}
	}
	return t.info(progress, result)
}
