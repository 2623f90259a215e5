package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"issuesync/internal/models"
)

// ErrNotFound is returned when a record is not found.
var ErrNotFound = errors.New("record not found")

// RepositoryRepo provides methods for repository operations.
type RepositoryRepo struct {
	db *sql.DB
}

// NewRepositoryRepo creates a new RepositoryRepo.
func NewRepositoryRepo(db *sql.DB) *RepositoryRepo {
	return &RepositoryRepo{db: db}
}

// GetOrCreateByName gets an existing repository by name, or creates it if it doesn't exist.
func (r *RepositoryRepo) GetOrCreateByName(ctx context.Context, name string) (Repository, error) {
	repo, err := r.GetByName(ctx, name)
	if err == nil {
		return repo, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Repository{}, err
	}

	// INSERT OR IGNORE keeps this safe against a second process creating the row first
	_, err = r.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO repositories (name, created_at) VALUES (?, ?)",
		name, models.FormatTimestamp(time.Now()),
	)
	if err != nil {
		return Repository{}, fmt.Errorf("failed to create repository: %w", err)
	}

	return r.GetByName(ctx, name)
}

// GetByName gets a repository by its owner/name. Returns ErrNotFound if not found.
func (r *RepositoryRepo) GetByName(ctx context.Context, name string) (Repository, error) {
	var repo Repository
	var createdAt string
	err := r.db.QueryRowContext(ctx,
		"SELECT id, name, created_at FROM repositories WHERE name = ?",
		name,
	).Scan(&repo.ID, &repo.Name, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Repository{}, ErrNotFound
	}
	if err != nil {
		return Repository{}, fmt.Errorf("failed to query repository: %w", err)
	}

	repo.CreatedAt, err = models.ParseTimestamp(createdAt)
	if err != nil {
		return Repository{}, fmt.Errorf("failed to parse created_at: %w", err)
	}
	return repo, nil
}
