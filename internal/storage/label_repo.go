package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
)

// LabelRepo resolves label names to ids.
type LabelRepo struct {
	db *sql.DB
}

// NewLabelRepo creates a new LabelRepo.
func NewLabelRepo(db *sql.DB) *LabelRepo {
	return &LabelRepo{db: db}
}

// Resolve returns an id for every distinct name, creating missing labels.
// Each name is looked up exactly once regardless of how often it appears.
func (r *LabelRepo) Resolve(ctx context.Context, names []string) (map[string]int64, error) {
	ids := make(map[string]int64)
	if len(names) == 0 {
		return ids, nil
	}

	distinct := make([]string, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		distinct = append(distinct, name)
	}
	sort.Strings(distinct)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, name := range distinct {
		if _, err := tx.ExecContext(ctx, "INSERT OR IGNORE INTO labels (name) VALUES (?)", name); err != nil {
			return nil, fmt.Errorf("failed to create label %q: %w", name, err)
		}
		var id int64
		if err := tx.QueryRowContext(ctx, "SELECT id FROM labels WHERE name = ?", name).Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to resolve label %q: %w", name, err)
		}
		ids[name] = id
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit labels: %w", err)
	}
	return ids, nil
}

// ListByIssue returns the label names of an issue, sorted.
func (r *LabelRepo) ListByIssue(ctx context.Context, issueID int64) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT l.name FROM labels l
		 JOIN issue_labels il ON il.label_id = l.id
		 WHERE il.issue_id = ?
		 ORDER BY l.name`,
		issueID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query issue labels: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan label: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return names, nil
}
