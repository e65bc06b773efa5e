package trace

import (
	"bufio"
	"net/netip"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Recorder appends records to a trace file. It is safe for concurrent use;
// the dispatcher calls it from both the read goroutine and the domain
// goroutine.
type Recorder struct {
	mu      sync.Mutex
	file    *os.File
	buf     *bufio.Writer
	encoder *cbor.Encoder
	closed  bool
	count   uint64
}

// NewRecorder opens path for appending, creating it and its directory.
func NewRecorder(path string) (*Recorder, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640) //nolint:gosec // operator-supplied path
	if err != nil {
		return nil, err
	}
	buf := bufio.NewWriter(f)
	return &Recorder{
		file:    f,
		buf:     buf,
		encoder: NewEncoder(buf),
	}, nil
}

// Trace records one datagram. Encoding errors are ignored; tracing must
// not disturb the broker.
func (r *Recorder) Trace(inbound bool, addr netip.AddrPort, data []byte, at time.Time) {
	dir := DirectionOut
	if inbound {
		dir = DirectionIn
	}
	r.Record(Record{
		Time:      at,
		Direction: dir,
		Remote:    addr.String(),
		Data:      data,
	})
}

// Record appends rec.
func (r *Recorder) Record(rec Record) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	if err := r.encoder.Encode(rec); err == nil {
		r.count++
	}
}

// Count returns the number of records written.
func (r *Recorder) Count() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Flush writes buffered records to the file.
func (r *Recorder) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	return r.buf.Flush()
}

// Close flushes and closes the file. Later calls to Trace are ignored.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	if err := r.buf.Flush(); err != nil {
		r.file.Close()
		return err
	}
	return r.file.Close()
}
