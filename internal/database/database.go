// Package database opens the embedded SQLite database backing credential storage.
package database

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Open opens (creating if necessary) the SQLite database at the given path
// and verifies the connection. Schema migration belongs to the stores that
// own their tables.
func Open(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// A single writer keeps whole-record replacement atomic without
	// cross-connection lock contention.
	db.SetMaxOpenConns(1)

	return db, nil
}
