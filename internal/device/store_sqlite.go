package device

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/bcsanches/DCCLite-sub001/internal/decoder"
)

const (
	storeQueueSize    = 256
	storeWriteTimeout = 5 * time.Second
)

// SQLiteStore implements Store on the decoder_state and servo_calibration
// tables.
//
// Loads are synchronous; they only run while a device is being created.
// Saves are called from the domain loop, so they are queued and written by
// a single background goroutine. When the queue is full the write is
// dropped and logged.
type SQLiteStore struct {
	db     *sql.DB
	logger Logger

	// mu orders enqueue against Close; writes is closed only with mu held.
	mu     sync.Mutex
	closed bool
	writes chan func(context.Context) error
	done   chan struct{}
}

// NewSQLiteStore creates a store and starts its writer goroutine. Close
// must be called to flush pending writes.
//
// Parameters:
//   - db: Migrated SQLite connection
//   - logger: Receives write failures; nil discards them
//
// Returns:
//   - *SQLiteStore: Store ready for use
func NewSQLiteStore(db *sql.DB, logger Logger) *SQLiteStore {
	if logger == nil {
		logger = noopLogger{}
	}
	s := &SQLiteStore{
		db:     db,
		logger: logger,
		writes: make(chan func(context.Context) error, storeQueueSize),
		done:   make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *SQLiteStore) run() {
	defer close(s.done)
	for write := range s.writes {
		ctx, cancel := context.WithTimeout(context.Background(), storeWriteTimeout)
		if err := write(ctx); err != nil {
			s.logger.Error("store write failed", "error", err)
		}
		cancel()
	}
}

// Close stops accepting writes and waits for queued ones to finish.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.writes)
	}
	s.mu.Unlock()
	<-s.done
	return nil
}

// enqueue never blocks the domain loop. Saves after Close are dropped.
func (s *SQLiteStore) enqueue(what string, write func(context.Context) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		s.logger.Warn("store closed, write dropped", "write", what)
		return
	}
	select {
	case s.writes <- write:
	default:
		s.logger.Warn("store queue full, write dropped", "write", what)
	}
}

// LoadOutputStates returns the saved requested state of every output
// decoder of a device.
func (s *SQLiteStore) LoadOutputStates(device string) (map[string]decoder.State, error) {
	ctx, cancel := context.WithTimeout(context.Background(), storeWriteTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx,
		"SELECT decoder, state FROM decoder_state WHERE device = ?", device)
	if err != nil {
		return nil, fmt.Errorf("querying decoder states: %w", err)
	}
	defer rows.Close()

	states := make(map[string]decoder.State)
	for rows.Next() {
		var name string
		var st int
		if err := rows.Scan(&name, &st); err != nil {
			return nil, fmt.Errorf("scanning decoder state: %w", err)
		}
		states[name] = decoder.FromBool(st != 0)
	}
	return states, rows.Err()
}

// SaveOutputState queues an upsert of one output's requested state.
func (s *SQLiteStore) SaveOutputState(device, decoderName string, state decoder.State) {
	v := 0
	if state == decoder.StateActive {
		v = 1
	}
	at := time.Now().UTC().Format(time.RFC3339)
	s.enqueue("decoder_state", func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO decoder_state (device, decoder, state, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (device, decoder) DO UPDATE SET
				state = excluded.state,
				updated_at = excluded.updated_at`,
			device, decoderName, v, at)
		if err != nil {
			return fmt.Errorf("saving state of %s/%s: %w", device, decoderName, err)
		}
		return nil
	})
}

// LoadCalibrations returns the stored servo calibrations of a device.
func (s *SQLiteStore) LoadCalibrations(device string) (map[string]decoder.Calibration, error) {
	ctx, cancel := context.WithTimeout(context.Background(), storeWriteTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT decoder, flags, start_pos, end_pos, operation_ms
		FROM servo_calibration WHERE device = ?`, device)
	if err != nil {
		return nil, fmt.Errorf("querying servo calibrations: %w", err)
	}
	defer rows.Close()

	cals := make(map[string]decoder.Calibration)
	for rows.Next() {
		var (
			name              string
			flags, start, end int
			opMillis          int64
		)
		if err := rows.Scan(&name, &flags, &start, &end, &opMillis); err != nil {
			return nil, fmt.Errorf("scanning servo calibration: %w", err)
		}
		cals[name] = decoder.Calibration{
			Flags:         uint8(flags),
			StartPos:      uint8(start),
			EndPos:        uint8(end),
			OperationTime: time.Duration(opMillis) * time.Millisecond,
		}
	}
	return cals, rows.Err()
}

// SaveCalibration queues an upsert of a servo calibration.
func (s *SQLiteStore) SaveCalibration(device, decoderName string, cal decoder.Calibration) {
	at := time.Now().UTC().Format(time.RFC3339)
	s.enqueue("servo_calibration", func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO servo_calibration (device, decoder, flags, start_pos, end_pos, operation_ms, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (device, decoder) DO UPDATE SET
				flags = excluded.flags,
				start_pos = excluded.start_pos,
				end_pos = excluded.end_pos,
				operation_ms = excluded.operation_ms,
				updated_at = excluded.updated_at`,
			device, decoderName, int(cal.Flags), int(cal.StartPos), int(cal.EndPos),
			cal.OperationTime.Milliseconds(), at)
		if err != nil {
			return fmt.Errorf("saving calibration of %s/%s: %w", device, decoderName, err)
		}
		return nil
	})
}
