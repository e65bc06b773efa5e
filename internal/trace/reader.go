package trace

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/bcsanches/DCCLite-sub001/internal/protocol/packet"
)

// Filter selects records. Zero fields match everything.
type Filter struct {
	Remote    string
	Direction *Direction
	Type      *packet.MsgType
	Since     time.Time
}

func (f *Filter) matches(rec Record) bool {
	if f.Remote != "" && rec.Remote != f.Remote {
		return false
	}
	if f.Direction != nil && rec.Direction != *f.Direction {
		return false
	}
	if f.Type != nil {
		t, err := packet.PeekType(rec.Data)
		if err != nil || t != *f.Type {
			return false
		}
	}
	if !f.Since.IsZero() && rec.Time.Before(f.Since) {
		return false
	}
	return true
}

// Reader iterates the records of a trace file.
type Reader struct {
	file    *os.File
	decoder *cbor.Decoder
	filter  Filter
}

// Open opens a trace file for reading every record.
func Open(path string) (*Reader, error) {
	return OpenFiltered(path, Filter{})
}

// OpenFiltered opens a trace file returning only records matching filter.
func OpenFiltered(path string, filter Filter) (*Reader, error) {
	f, err := os.Open(path) //nolint:gosec // operator-supplied path
	if err != nil {
		return nil, err
	}
	return &Reader{file: f, decoder: NewDecoder(f), filter: filter}, nil
}

// Next returns the next matching record, or io.EOF.
func (r *Reader) Next() (Record, error) {
	for {
		var rec Record
		if err := r.decoder.Decode(&rec); err != nil {
			return Record{}, err
		}
		if r.filter.matches(rec) {
			return rec, nil
		}
	}
}

// Close closes the file.
func (r *Reader) Close() error {
	return r.file.Close()
}

// Dump writes every remaining record of r to w, one line each, and returns
// how many were written.
func Dump(w io.Writer, r *Reader) (int, error) {
	n := 0
	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("record %d: %w", n+1, err)
		}
		if _, err := fmt.Fprintln(w, Format(rec)); err != nil {
			return n, err
		}
		n++
	}
}

// Format renders rec with its decoded header.
func Format(rec Record) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %-3s %-21s %3dB ", rec.Time.Format("15:04:05.000000"), rec.Direction, rec.Remote, len(rec.Data))

	p, _ := packet.FromBytes(rec.Data)
	hdr, err := packet.ParseHeader(p)
	if err != nil {
		fmt.Fprintf(&b, "invalid: %v", err)
		return b.String()
	}
	b.WriteString(hdr.Type.String())
	if hdr.Type.DeviceScoped() {
		fmt.Fprintf(&b, " session=%s config=%s", hdr.SessionToken, hdr.ConfigToken)
	}
	if hdr.Type == packet.MsgHello {
		if name, err := p.ReadString(); err == nil {
			fmt.Fprintf(&b, " name=%q", name)
		}
	}
	return b.String()
}
