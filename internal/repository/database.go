package repository

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

var (
	db   *sql.DB
	once sync.Once
)

// InitDB opens the sqlite database and creates the results table.
func InitDB(dbPath string) error {
	dbDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}

	var initErr error
	once.Do(func() {
		db, initErr = sql.Open("sqlite3", dbPath)
		if initErr != nil {
			return
		}

		if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
			initErr = fmt.Errorf("failed to enable foreign keys: %w", err)
			return
		}

		initErr = createTables()
	})
	if initErr != nil {
		return initErr
	}

	zap.L().Info("database initialized",
		zap.String("component", "repository"),
		zap.String("path", dbPath))
	return nil
}

func createTables() error {
	schema := `
		CREATE TABLE IF NOT EXISTS task_results (
			task_id      TEXT PRIMARY KEY,
			success      INTEGER NOT NULL,
			content_type TEXT NOT NULL,
			node_type    TEXT NOT NULL DEFAULT '',
			data         TEXT,
			metadata     TEXT,
			errors       TEXT,
			warnings     TEXT,
			created_at   TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_task_results_node_type ON task_results(node_type);
		CREATE INDEX IF NOT EXISTS idx_task_results_created_at ON task_results(created_at);
	`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	return nil
}

// Close closes the database connection
func Close() error {
	if db != nil {
		return db.Close()
	}
	return nil
}
