package database

import (
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/mattn/go-sqlite3"
)

var db *sql.DB

// Open opens a SQLite database and enables foreign key constraints
func Open(dataSourceName string) (*sql.DB, error) {
	conn, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test the connection
	if err = conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Enable foreign key constraints
	if _, err = conn.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return conn, nil
}

// OpenAndMigrate opens the database and runs pending migrations
func OpenAndMigrate(dataSourceName string) (*sql.DB, error) {
	conn, err := Open(dataSourceName)
	if err != nil {
		return nil, err
	}

	if err := RunMigrations(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return conn, nil
}

// InitializeDatabase opens the process-wide database connection and runs migrations
func InitializeDatabase(dataSourceName string) error {
	conn, err := OpenAndMigrate(dataSourceName)
	if err != nil {
		return err
	}
	db = conn

	slog.Info("database initialized", "path", dataSourceName)
	return nil
}

// GetDB returns the database connection
func GetDB() *sql.DB {
	return db
}

// CloseDB closes the database connection
func CloseDB() error {
	if db != nil {
		return db.Close()
	}
	return nil
}
