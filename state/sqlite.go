package state

import (
	"database/sql"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

const schema = `CREATE TABLE IF NOT EXISTS kv (
	key   TEXT PRIMARY KEY,
	value BLOB NOT NULL
)`

// SQLiteMedium stores values in a single-table SQLite database file.
type SQLiteMedium struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(path string) (*SQLiteMedium, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "OpenSQLite - sql.Open")
	}
	// One connection keeps ":memory:" databases coherent.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "OpenSQLite - create schema")
	}

	return &SQLiteMedium{db: db}, nil
}

// Load implements Medium.
func (m *SQLiteMedium) Load(key string) ([]byte, bool, error) {
	var value []byte
	err := m.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "SQLiteMedium.Load - QueryRow")
	}
	return value, true, nil
}

// Store implements Medium.
func (m *SQLiteMedium) Store(key string, value []byte) error {
	_, err := m.db.Exec(
		`INSERT INTO kv (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	if err != nil {
		return errors.Wrap(err, "SQLiteMedium.Store - Exec")
	}
	return nil
}

// Close releases the database.
func (m *SQLiteMedium) Close() error {
	return m.db.Close()
}
