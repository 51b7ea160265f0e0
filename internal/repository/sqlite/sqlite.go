package sqlite

import (
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

// SchemaVersion is stored in PRAGMA user_version after a successful migration.
const SchemaVersion = 1

const schema = `
CREATE TABLE IF NOT EXISTS inferences (
	id TEXT PRIMARY KEY,
	filename TEXT NOT NULL,
	model_path TEXT NOT NULL,
	detection_count INTEGER DEFAULT 0,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS detections (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	inference_id TEXT NOT NULL,
	class_id INTEGER NOT NULL,
	class_name TEXT NOT NULL,
	confidence REAL DEFAULT 0,
	x INTEGER DEFAULT 0,
	y INTEGER DEFAULT 0,
	width INTEGER DEFAULT 0,
	height INTEGER DEFAULT 0,
	FOREIGN KEY (inference_id) REFERENCES inferences(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_inferences_created_at ON inferences(created_at);
CREATE INDEX IF NOT EXISTS idx_detections_class_name ON detections(class_name);
CREATE INDEX IF NOT EXISTS idx_detections_inference_id ON detections(inference_id);
`

// DB wraps the history database connection. Writes are serialized; SQLite
// allows a single writer anyway.
type DB struct {
	conn *sql.DB
	mu   sync.RWMutex
}

// New opens the history database at dbPath and brings its schema up to date.
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	db := &DB{conn: conn}
	if err := db.Migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return db, nil
}

// Migrate applies the schema when the stored version is behind.
func (db *DB) Migrate() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	version, err := db.version()
	if err != nil {
		return err
	}
	if version >= SchemaVersion {
		return nil
	}

	if _, err := db.conn.Exec(schema); err != nil {
		return err
	}
	_, err = db.conn.Exec(fmt.Sprintf("PRAGMA user_version = %d", SchemaVersion))
	return err
}

// Version returns the schema version recorded in the database.
func (db *DB) Version() (int, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.version()
}

func (db *DB) version() (int, error) {
	var version int
	if err := db.conn.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return version, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
