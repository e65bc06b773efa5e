package trace

import (
	"bytes"
	"errors"
	"io"
	"net/netip"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bcsanches/DCCLite-sub001/internal/protocol/packet"
)

var remote = netip.MustParseAddrPort("192.168.1.50:40000")

func writeTrace(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sub", "packets.trace")

	rec, err := NewRecorder(path)
	require.NoError(t, err)

	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	rec.Trace(true, remote, packet.NewHello(uuid.Nil, uuid.Nil, "Bench", packet.ProtocolVersion).Bytes(), at)
	rec.Trace(false, remote, packet.NewMessage(packet.MsgAccepted, uuid.New(), uuid.New()).Bytes(), at.Add(time.Millisecond))
	rec.Trace(true, netip.MustParseAddrPort("10.0.0.2:1"), []byte{1, 2, 3}, at.Add(2*time.Millisecond))
	assert.Equal(t, uint64(3), rec.Count())

	require.NoError(t, rec.Close())
	require.NoError(t, rec.Close())
	rec.Trace(true, remote, []byte{1}, at)
	assert.Equal(t, uint64(3), rec.Count())
	return path
}

func TestRecorder_RoundTrip(t *testing.T) {
	path := writeTrace(t)

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	first, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, DirectionIn, first.Direction)
	assert.Equal(t, remote.String(), first.Remote)
	typ, err := packet.PeekType(first.Data)
	require.NoError(t, err)
	assert.Equal(t, packet.MsgHello, typ)

	second, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, DirectionOut, second.Direction)
	assert.True(t, second.Time.After(first.Time))

	_, err = r.Next()
	require.NoError(t, err)
	_, err = r.Next()
	assert.True(t, errors.Is(err, io.EOF))
}

func TestReader_Filter(t *testing.T) {
	path := writeTrace(t)

	out := DirectionOut
	r, err := OpenFiltered(path, Filter{Direction: &out})
	require.NoError(t, err)
	rec, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, DirectionOut, rec.Direction)
	_, err = r.Next()
	assert.ErrorIs(t, err, io.EOF)
	r.Close()

	hello := packet.MsgHello
	r, err = OpenFiltered(path, Filter{Type: &hello, Remote: remote.String()})
	require.NoError(t, err)
	defer r.Close()
	_, err = r.Next()
	require.NoError(t, err)
	_, err = r.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestDump(t *testing.T) {
	path := writeTrace(t)

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	var buf bytes.Buffer
	n, err := Dump(&buf, r)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "HELLO")
	assert.Contains(t, lines[0], `name="Bench"`)
	assert.Contains(t, lines[1], "OUT")
	assert.Contains(t, lines[1], "session=")
	assert.Contains(t, lines[2], "invalid")
}

func TestOpen_Missing(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "nope.trace"))
	assert.Error(t, err)
}
