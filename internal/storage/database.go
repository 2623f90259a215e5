package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// New opens a SQLite database connection at the given path.
// Foreign keys, WAL journaling and a busy timeout are set in the DSN so every pooled
// connection gets them, not just the first one.
func New(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}

	// Set connection pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Verify connection
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// PathFor returns the database file for a repository slug under baseDir, creating the directory.
func PathFor(baseDir, slug string) (string, error) {
	dir := filepath.Join(baseDir, "sqlite")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create database directory: %w", err)
	}
	return filepath.Join(dir, slug+".db"), nil
}

// Migrate runs database migrations to create the required tables.
// It is idempotent and can be run multiple times safely.
func Migrate(db *sql.DB) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS repositories (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE,
			created_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS issues (
			id INTEGER PRIMARY KEY,
			repository_id INTEGER NOT NULL,
			number INTEGER NOT NULL,
			title TEXT NOT NULL,
			body TEXT NOT NULL DEFAULT '',
			state TEXT NOT NULL,
			author TEXT,
			url TEXT NOT NULL DEFAULT '',
			comments_count INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			closed_at TEXT,
			added_at TEXT NOT NULL,
			FOREIGN KEY (repository_id) REFERENCES repositories(id),
			UNIQUE (repository_id, number)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_issues_repo_updated ON issues(repository_id, updated_at);`,
		`CREATE TABLE IF NOT EXISTS labels (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE
		);`,
		`CREATE TABLE IF NOT EXISTS issue_labels (
			issue_id INTEGER NOT NULL,
			label_id INTEGER NOT NULL,
			PRIMARY KEY (issue_id, label_id),
			FOREIGN KEY (issue_id) REFERENCES issues(id) ON DELETE CASCADE,
			FOREIGN KEY (label_id) REFERENCES labels(id)
		);`,
		`CREATE TABLE IF NOT EXISTS comments (
			id INTEGER PRIMARY KEY,
			issue_id INTEGER NOT NULL,
			author TEXT,
			body TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			FOREIGN KEY (issue_id) REFERENCES issues(id) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_comments_issue ON comments(issue_id);`,
		`CREATE TABLE IF NOT EXISTS sync_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			repository_id INTEGER NOT NULL,
			timestamp TEXT NOT NULL,
			new_count INTEGER NOT NULL DEFAULT 0,
			updated_count INTEGER NOT NULL DEFAULT 0,
			redundant_count INTEGER NOT NULL DEFAULT 0,
			before_count INTEGER NOT NULL DEFAULT 0,
			after_count INTEGER NOT NULL DEFAULT 0,
			rate_remaining INTEGER,
			rate_limit INTEGER,
			rate_reset TEXT,
			duration_seconds REAL NOT NULL DEFAULT 0,
			reconciled_count INTEGER NOT NULL DEFAULT 0,
			reconcile_failed_count INTEGER NOT NULL DEFAULT 0,
			debt_repaired_count INTEGER NOT NULL DEFAULT 0,
			FOREIGN KEY (repository_id) REFERENCES repositories(id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_sync_log_repo_ts ON sync_log(repository_id, timestamp);`,
	}

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}

	return nil
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}
