package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Database manages the SQLite metadata store lifecycle: directory creation,
// migration, connection, and graceful close.
//
// Usage:
//
//	database, err := NewDatabase(DatabaseConfig{Path: "data/imageforge.db"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer database.Close()
//
//	repo := NewImageRepository(database)
type Database struct {
	conn *sql.DB
	path string
	mu   sync.RWMutex
}

// DatabaseConfig holds configuration for the Database.
type DatabaseConfig struct {
	// Path is the database file path
	Path string
	// MigrationsPath is the migrations source (file:// URL format).
	// Default: "file://db/migrations". Empty string with SkipMigrations
	// unset still runs the default path.
	MigrationsPath string
	// SkipMigrations disables the automatic migration run (used by tests
	// that create schema directly)
	SkipMigrations bool
	// ConnectionConfig allows customizing the SQLite connection
	ConnectionConfig *ConnectionConfig
}

// NewDatabase opens (creating if needed) the metadata database and runs any
// pending migrations.
func NewDatabase(config DatabaseConfig) (*Database, error) {
	if config.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	// Ensure parent directory exists
	dir := filepath.Dir(config.Path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
		}
	}

	if !config.SkipMigrations {
		migrationsPath := config.MigrationsPath
		if migrationsPath == "" {
			migrationsPath = "file://db/migrations"
		}
		// The migrator owns and closes its connection, so migrate first
		// and open the long-lived connection afterwards.
		if err := MigrateUpFromPath(config.Path, migrationsPath); err != nil {
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	connConfig := DefaultConnectionConfig(config.Path)
	if config.ConnectionConfig != nil {
		connConfig = *config.ConnectionConfig
		connConfig.Path = config.Path
	}

	conn, err := NewSQLiteConnection(connConfig)
	if err != nil {
		return nil, err
	}

	return &Database{
		conn: conn,
		path: config.Path,
	}, nil
}

// DB returns the underlying connection for repositories.
func (d *Database) DB() *sql.DB {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.conn
}

// Path returns the database file path.
func (d *Database) Path() string {
	return d.path
}

// Close closes the database connection.
func (d *Database) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn == nil {
		return nil
	}
	err := d.conn.Close()
	d.conn = nil
	return err
}
