package database

import (
	"database/sql"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// Manager owns the SQLite connection backing the settings and local_storage
// tables. Callers only see the methods below, never the raw *sql.DB.
type Manager struct {
	conn *sql.DB
	path string
	mu   sync.RWMutex
}

// Open creates a database connection, applies migrations and seeds default
// settings.
func Open(path string) (*Manager, error) {
	d, err := open(path)
	if err != nil {
		return nil, err
	}
	if err := d.migrate(); err != nil {
		d.conn.Close()
		return nil, err
	}
	if err := d.InitializeDefaults(); err != nil {
		d.conn.Close()
		return nil, err
	}
	return d, nil
}

func open(path string) (*Manager, error) {
	// SQLite connection with WAL mode for better concurrency
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", path)

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(4)
	conn.SetMaxIdleConns(2)

	log.Debug().Str("path", path).Msg("Database connection established")

	return &Manager{
		conn: conn,
		path: path,
	}, nil
}

// Path returns the database file path
func (db *Manager) Path() string {
	return db.path
}

// Close refreshes planner statistics and closes the connection pool.
func (db *Manager) Close() error {
	db.mu.Lock()
	if _, err := db.conn.Exec("PRAGMA optimize"); err != nil {
		log.Debug().Err(err).Msg("Failed to optimize database before close")
	}
	db.mu.Unlock()

	return db.conn.Close()
}

// transaction wraps a function in a database transaction
func (db *Manager) transaction(fn func(*sql.Tx) error) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Error().Err(rbErr).Msg("Failed to rollback transaction")
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}
