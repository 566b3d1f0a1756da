package database

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Connect opens the database for the given driver ("sqlite3" or "postgres")
// and creates the schema if needed
func Connect(driver, dsn string) (*sqlx.DB, error) {
	if driver == "sqlite3" && dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
		// Create data directory if it doesn't exist
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create data directory: %w", err)
			}
		}
	}

	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if driver == "sqlite3" {
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
		}
		// SQLite doesn't support multiple writers
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	if err := initializeSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// initializeSchema creates necessary tables if they don't exist
func initializeSchema(db *sqlx.DB) error {
	idColumn := "INTEGER PRIMARY KEY AUTOINCREMENT"
	timeType := "TIMESTAMP"
	if db.DriverName() == "postgres" {
		idColumn = "BIGSERIAL PRIMARY KEY"
		timeType = "TIMESTAMPTZ"
	}

	statements := []struct {
		name string
		sql  string
	}{
		{"users", fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS users (
				id BIGINT PRIMARY KEY,
				quiz_day INTEGER NOT NULL DEFAULT 0,
				quiz_time INTEGER NOT NULL DEFAULT 18,
				daily_goal INTEGER,
				settings TEXT NOT NULL DEFAULT '{}',
				joined_at %[1]s NOT NULL,
				last_active_at %[1]s NOT NULL
			)`, timeType)},
		{"entries", fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS entries (
				id %[1]s,
				user_id BIGINT NOT NULL REFERENCES users(id),
				content TEXT NOT NULL,
				category TEXT,
				difficulty INTEGER,
				confidence INTEGER,
				tags TEXT NOT NULL DEFAULT '[]',
				source TEXT NOT NULL DEFAULT 'chat',
				is_ai_generated BOOLEAN NOT NULL DEFAULT FALSE,
				created_at %[2]s NOT NULL
			)`, idColumn, timeType)},
		{"entries index", `CREATE INDEX IF NOT EXISTS idx_entries_user_created ON entries (user_id, created_at)`},
		{"work_logs", fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS work_logs (
				id %[1]s,
				user_id BIGINT NOT NULL REFERENCES users(id),
				work TEXT NOT NULL,
				learned TEXT NOT NULL,
				blockers TEXT NOT NULL,
				created_at %[2]s NOT NULL
			)`, idColumn, timeType)},
		{"work_logs index", `CREATE INDEX IF NOT EXISTS idx_work_logs_user_created ON work_logs (user_id, created_at)`},
	}

	for _, stmt := range statements {
		if _, err := db.Exec(stmt.sql); err != nil {
			return fmt.Errorf("failed to create %s: %w", stmt.name, err)
		}
	}
	return nil
}
