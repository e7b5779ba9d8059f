// Package sqlitesnapshot persists holding-register values to a SQLite
// database so a server's in-memory WordStore survives a process restart.
// It is opt-in: a server with no configured snapshot path behaves exactly
// as a plain in-memory server. It is wired as an ordinary write-handler
// side effect and is never consulted by the validation/execution scans
// themselves.
// Ref: SPEC_FULL.md §4.4.1
package sqlitesnapshot

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/kestrel-automation/modbus/common"
	"github.com/kestrel-automation/modbus/wordstore"
)

// defaultBusyTimeout bounds how long a writer waits on SQLITE_BUSY when no
// WithBusyTimeout option is given; Open applies it via PRAGMA busy_timeout. SaveOnWrite
// runs on the server's dispatch path, so a write racing a concurrent Load
// should block briefly rather than fail the Modbus request outright.
const defaultBusyTimeout = 5 * time.Second

// Store wraps a SQLite database holding a single registers(addr, value) table.
type Store struct {
	db          *sql.DB
	busyTimeout time.Duration
}

// Option configures a Store at construction time.
type Option func(*Store)

// WithBusyTimeout overrides how long SQLite blocks a writer against
// SQLITE_BUSY instead of failing immediately. Applied via PRAGMA busy_timeout
// once the database handle is open.
func WithBusyTimeout(d time.Duration) Option {
	return func(s *Store) { s.busyTimeout = d }
}

// Open opens (creating if necessary) the SQLite database at path and ensures
// the registers table exists.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("sqlitesnapshot: open %s: %w", path, err)
	}
	s := &Store{db: db, busyTimeout: defaultBusyTimeout}
	for _, opt := range opts {
		opt(s)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", s.busyTimeout.Milliseconds())); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlitesnapshot: set busy_timeout: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS registers (addr INTEGER PRIMARY KEY, value INTEGER NOT NULL)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlitesnapshot: create table: %w", err)
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Load seeds direct-pointer-backed HoldingRegister Words in store from the
// persisted table. Handler-backed Words are left untouched: the snapshot
// only speaks to the memory a direct pointer addresses.
func (s *Store) Load(ctx context.Context, store *wordstore.Store) error {
	rows, err := s.db.QueryContext(ctx, `SELECT addr, value FROM registers`)
	if err != nil {
		return fmt.Errorf("sqlitesnapshot: load: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var addr int
		var value int
		if err := rows.Scan(&addr, &value); err != nil {
			return fmt.Errorf("sqlitesnapshot: scan: %w", err)
		}
		w, ok := store.FindExact(wordstore.HoldingRegister, common.Address(addr))
		if !ok || w.DirectPtr == nil {
			continue
		}
		*w.DirectPtr = uint16(value)
	}
	return rows.Err()
}

// SaveOne persists a single holding register value. Intended to be called
// from inside a WriteHandler wired to a HoldingRegister Word.
func (s *Store) SaveOne(ctx context.Context, addr common.Address, value uint16) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO registers (addr, value) VALUES (?, ?)
		 ON CONFLICT(addr) DO UPDATE SET value = excluded.value`,
		int(addr), int(value))
	if err != nil {
		return fmt.Errorf("sqlitesnapshot: save addr=%d: %w", addr, err)
	}
	return nil
}

// SaveOnWrite returns a wordstore.WriteHandler that persists every write to
// the given Word's StartAddr (a single-register HoldingRegister Word) before
// applying dst, and then writes through to dst. Wire it as the Word's
// WriteHandler to get durable holding registers without touching the
// validation/execution scans.
func SaveOnWrite(ctx context.Context, s *Store, dst *uint16) wordstore.WriteHandler {
	return func(values []uint16, w *wordstore.Word, userCtx any) common.ExceptionCode {
		if len(values) != 1 {
			return common.ExceptionIllegalDataValue
		}
		if err := s.SaveOne(ctx, w.StartAddr, values[0]); err != nil {
			return common.ExceptionSlaveDeviceFailure
		}
		*dst = values[0]
		return common.ExceptionNone
	}
}
