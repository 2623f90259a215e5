package storage

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_sync_log_store.go -package=mocks issuesync/internal/storage SyncLogStore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"issuesync/internal/models"
)

// SyncLogStore defines the interface for the append-only sync log.
type SyncLogStore interface {
	// Append records one synchronization run.
	Append(ctx context.Context, entry *SyncLogEntry) error
	// Latest returns the most recent entry. Returns ErrNotFound if the log is empty.
	Latest(ctx context.Context, repoID int64) (*SyncLogEntry, error)
	// List returns up to limit entries, newest first.
	List(ctx context.Context, repoID int64, limit int) ([]SyncLogEntry, error)
	// LatestWatermark returns the latest log timestamp, falling back to the most recent
	// issue updated_at, or nil when neither exists.
	LatestWatermark(ctx context.Context, repoID int64) (*time.Time, error)
}

// SyncLogRepo provides methods for sync log operations.
// It implements the SyncLogStore interface.
type SyncLogRepo struct {
	db *sql.DB
}

// NewSyncLogRepo creates a new SyncLogRepo.
func NewSyncLogRepo(db *sql.DB) *SyncLogRepo {
	return &SyncLogRepo{db: db}
}

const syncLogColumns = `id, repository_id, timestamp, new_count, updated_count, redundant_count,
	before_count, after_count, rate_remaining, rate_limit, rate_reset, duration_seconds,
	reconciled_count, reconcile_failed_count, debt_repaired_count`

// Append records one synchronization run and sets entry.ID.
func (r *SyncLogRepo) Append(ctx context.Context, entry *SyncLogEntry) error {
	var rateReset *string
	if entry.RateReset != nil {
		s := models.FormatTimestamp(*entry.RateReset)
		rateReset = &s
	}

	result, err := r.db.ExecContext(ctx,
		`INSERT INTO sync_log (repository_id, timestamp, new_count, updated_count, redundant_count,
			before_count, after_count, rate_remaining, rate_limit, rate_reset, duration_seconds,
			reconciled_count, reconcile_failed_count, debt_repaired_count)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.RepositoryID, models.FormatTimestamp(entry.Timestamp),
		entry.NewCount, entry.UpdatedCount, entry.RedundantCount,
		entry.BeforeCount, entry.AfterCount,
		entry.RateRemaining, entry.RateLimit, rateReset,
		entry.Duration.Seconds(),
		entry.Reconciled, entry.ReconcileFailed, entry.DebtRepaired,
	)
	if err != nil {
		return fmt.Errorf("failed to append sync log: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read sync log id: %w", err)
	}
	entry.ID = id
	return nil
}

// Latest returns the most recent entry. Returns ErrNotFound if the log is empty.
func (r *SyncLogRepo) Latest(ctx context.Context, repoID int64) (*SyncLogEntry, error) {
	entries, err := r.List(ctx, repoID, 1)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, ErrNotFound
	}
	return &entries[0], nil
}

// List returns up to limit entries, newest first.
func (r *SyncLogRepo) List(ctx context.Context, repoID int64, limit int) ([]SyncLogEntry, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT "+syncLogColumns+" FROM sync_log WHERE repository_id = ? ORDER BY timestamp DESC, id DESC LIMIT ?",
		repoID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync log: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var entries []SyncLogEntry
	for rows.Next() {
		entry, err := scanSyncLog(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return entries, nil
}

// LatestWatermark returns the latest log timestamp, falling back to the most recent
// issue updated_at, or nil when neither exists.
func (r *SyncLogRepo) LatestWatermark(ctx context.Context, repoID int64) (*time.Time, error) {
	latest, err := r.Latest(ctx, repoID)
	if err == nil {
		ts := latest.Timestamp
		return &ts, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return maxUpdatedAt(ctx, r.db, repoID)
}

func scanSyncLog(rows *sql.Rows) (SyncLogEntry, error) {
	var (
		entry                    SyncLogEntry
		timestamp                string
		rateRemaining, rateLimit sql.NullInt64
		rateReset                sql.NullString
		seconds                  float64
	)
	err := rows.Scan(&entry.ID, &entry.RepositoryID, &timestamp,
		&entry.NewCount, &entry.UpdatedCount, &entry.RedundantCount,
		&entry.BeforeCount, &entry.AfterCount,
		&rateRemaining, &rateLimit, &rateReset, &seconds,
		&entry.Reconciled, &entry.ReconcileFailed, &entry.DebtRepaired,
	)
	if err != nil {
		return SyncLogEntry{}, fmt.Errorf("failed to scan sync log: %w", err)
	}

	if entry.Timestamp, err = models.ParseTimestamp(timestamp); err != nil {
		return SyncLogEntry{}, fmt.Errorf("sync log %d: %w", entry.ID, err)
	}
	if rateRemaining.Valid {
		v := int(rateRemaining.Int64)
		entry.RateRemaining = &v
	}
	if rateLimit.Valid {
		v := int(rateLimit.Int64)
		entry.RateLimit = &v
	}
	if rateReset.Valid {
		t, err := models.ParseTimestamp(rateReset.String)
		if err != nil {
			return SyncLogEntry{}, fmt.Errorf("sync log %d: %w", entry.ID, err)
		}
		entry.RateReset = &t
	}
	entry.Duration = time.Duration(seconds * float64(time.Second))
	return entry, nil
}
