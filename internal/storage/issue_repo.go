package storage

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_issue_store.go -package=mocks issuesync/internal/storage IssueStore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"issuesync/internal/contextutil"
	"issuesync/internal/models"
	"issuesync/internal/syncerr"
)

// IssueStore defines the interface for issue storage operations.
type IssueStore interface {
	// UpsertBatch classifies each issue against local state and writes the new and updated ones.
	// Redundant issues are counted but not written.
	UpsertBatch(ctx context.Context, repoID int64, issues []models.Issue, watermark *time.Time) (BatchResult, error)
	// KnownNumbers returns every issue number stored for the repository.
	KnownNumbers(ctx context.Context, repoID int64) (map[int]struct{}, error)
	// KnownFingerprints returns the number_updated_at fingerprint of every stored issue.
	KnownFingerprints(ctx context.Context, repoID int64) (map[string]struct{}, error)
	// Count returns the number of issues stored for the repository.
	Count(ctx context.Context, repoID int64) (int, error)
	// Versions returns id, number and updated_at for every stored issue, ordered by number.
	Versions(ctx context.Context, repoID int64) ([]IssueVersion, error)
	// Get returns an issue with its labels and comments. Returns ErrNotFound if not found.
	Get(ctx context.Context, issueID int64) (*models.Issue, error)
}

// IssueRepo provides methods for issue operations.
// It implements the IssueStore interface.
type IssueRepo struct {
	db       *sql.DB
	labels   *LabelRepo
	comments *CommentRepo
	now      func() time.Time
}

// NewIssueRepo creates a new IssueRepo.
func NewIssueRepo(db *sql.DB) *IssueRepo {
	return &IssueRepo{
		db:       db,
		labels:   NewLabelRepo(db),
		comments: NewCommentRepo(db),
		now:      time.Now,
	}
}

// UpsertBatch classifies and commits one page of issues.
//
// Classification per issue, against local state:
//  1. number unseen locally: new
//  2. watermark set and updated_at after it: updated
//  3. no watermark at all: updated
//  4. otherwise: redundant, not written
//
// Each written issue is its own transaction covering the issue row, its label
// associations and its comments. The first failure aborts the rest of the batch;
// issues already committed stay committed.
func (r *IssueRepo) UpsertBatch(ctx context.Context, repoID int64, issues []models.Issue, watermark *time.Time) (BatchResult, error) {
	logger := contextutil.LoggerFromContext(ctx)

	var result BatchResult

	before, err := r.Count(ctx, repoID)
	if err != nil {
		return result, syncerr.Store("count issues", err)
	}
	result.BeforeCount = before

	known, err := r.KnownNumbers(ctx, repoID)
	if err != nil {
		return result, syncerr.Store("load known numbers", err)
	}

	toWrite := make([]models.Issue, 0, len(issues))
	labelNames := make([]string, 0)
	for _, issue := range issues {
		_, seen := known[issue.Number]
		switch {
		case !seen:
			result.New++
		case watermark != nil && models.NormalizeTime(issue.UpdatedAt).After(*watermark):
			result.Updated++
		case watermark == nil:
			result.Updated++
		default:
			result.Redundant++
			logger.DebugContext(ctx, "skipping redundant issue", "number", issue.Number, "updated_at", models.FormatTimestamp(issue.UpdatedAt))
			continue
		}
		toWrite = append(toWrite, issue)
		labelNames = append(labelNames, issue.Labels...)
		// A page can repeat a number if the issue moved between pages; later copies are updates.
		known[issue.Number] = struct{}{}
	}

	// Resolve every label once before the per-issue loop
	labelIDs, err := r.labels.Resolve(ctx, labelNames)
	if err != nil {
		return result, syncerr.Store("resolve labels", err)
	}

	addedAt := models.FormatTimestamp(r.now())
	for _, issue := range toWrite {
		if err := r.upsertOne(ctx, repoID, issue, labelIDs, addedAt); err != nil {
			return result, syncerr.Store(fmt.Sprintf("upsert issue #%d", issue.Number), err)
		}
		result.Changed = append(result.Changed, issue.ID)
	}

	after, err := r.Count(ctx, repoID)
	if err != nil {
		return result, syncerr.Store("count issues", err)
	}
	result.AfterCount = after

	logger.InfoContext(ctx, "committed issue batch",
		"new", result.New,
		"updated", result.Updated,
		"redundant", result.Redundant,
		"before", result.BeforeCount,
		"after", result.AfterCount,
	)
	return result, nil
}

// upsertOne replaces an issue row, its labels and its comments in a single transaction.
func (r *IssueRepo) upsertOne(ctx context.Context, repoID int64, issue models.Issue, labelIDs map[string]int64, addedAt string) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var closedAt *string
	if issue.ClosedAt != nil {
		s := models.FormatTimestamp(*issue.ClosedAt)
		closedAt = &s
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO issues (id, repository_id, number, title, body, state, author, url, comments_count,
			created_at, updated_at, closed_at, added_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
			number = excluded.number, title = excluded.title, body = excluded.body, state = excluded.state,
			author = excluded.author, url = excluded.url, comments_count = excluded.comments_count,
			created_at = excluded.created_at, updated_at = excluded.updated_at, closed_at = excluded.closed_at`,
		issue.ID, repoID, issue.Number, issue.Title, issue.Body, issue.State, issue.Author, issue.URL, issue.CommentsCount,
		models.FormatTimestamp(issue.CreatedAt), models.FormatTimestamp(issue.UpdatedAt), closedAt, addedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert issue: %w", err)
	}

	if _, err = tx.ExecContext(ctx, "DELETE FROM issue_labels WHERE issue_id = ?", issue.ID); err != nil {
		return fmt.Errorf("failed to clear issue labels: %w", err)
	}
	for _, name := range issue.Labels {
		labelID, ok := labelIDs[name]
		if !ok {
			return fmt.Errorf("label %q was not resolved", name)
		}
		if _, err = tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO issue_labels (issue_id, label_id) VALUES (?, ?)",
			issue.ID, labelID,
		); err != nil {
			return fmt.Errorf("failed to insert issue label: %w", err)
		}
	}

	if err = r.comments.replace(ctx, tx, issue.ID, issue.Comments); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit issue: %w", err)
	}
	return nil
}

// KnownNumbers returns every issue number stored for the repository.
func (r *IssueRepo) KnownNumbers(ctx context.Context, repoID int64) (map[int]struct{}, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT number FROM issues WHERE repository_id = ?", repoID)
	if err != nil {
		return nil, fmt.Errorf("failed to query issue numbers: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	numbers := make(map[int]struct{})
	for rows.Next() {
		var n int
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("failed to scan issue number: %w", err)
		}
		numbers[n] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return numbers, nil
}

// KnownFingerprints returns the number_updated_at fingerprint of every stored issue.
func (r *IssueRepo) KnownFingerprints(ctx context.Context, repoID int64) (map[string]struct{}, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT number || '_' || updated_at FROM issues WHERE repository_id = ?",
		repoID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query fingerprints: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	fingerprints := make(map[string]struct{})
	for rows.Next() {
		var fp string
		if err := rows.Scan(&fp); err != nil {
			return nil, fmt.Errorf("failed to scan fingerprint: %w", err)
		}
		fingerprints[fp] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return fingerprints, nil
}

// Count returns the number of issues stored for the repository.
func (r *IssueRepo) Count(ctx context.Context, repoID int64) (int, error) {
	return countWith(ctx, r.db, "SELECT COUNT(*) FROM issues WHERE repository_id = ?", repoID)
}

// Versions returns id, number and updated_at for every stored issue, ordered by number.
func (r *IssueRepo) Versions(ctx context.Context, repoID int64) ([]IssueVersion, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, number, updated_at FROM issues WHERE repository_id = ? ORDER BY number",
		repoID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query issue versions: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var versions []IssueVersion
	for rows.Next() {
		var v IssueVersion
		var updatedAt string
		if err := rows.Scan(&v.ID, &v.Number, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan issue version: %w", err)
		}
		if v.UpdatedAt, err = models.ParseTimestamp(updatedAt); err != nil {
			return nil, fmt.Errorf("issue %d: %w", v.ID, err)
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return versions, nil
}

// Get returns an issue with its labels and comments. Returns ErrNotFound if not found.
func (r *IssueRepo) Get(ctx context.Context, issueID int64) (*models.Issue, error) {
	var (
		issue                models.Issue
		author, closedAt     sql.NullString
		createdAt, updatedAt string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, number, title, body, state, author, url, comments_count, created_at, updated_at, closed_at
		 FROM issues WHERE id = ?`,
		issueID,
	).Scan(&issue.ID, &issue.Number, &issue.Title, &issue.Body, &issue.State, &author, &issue.URL,
		&issue.CommentsCount, &createdAt, &updatedAt, &closedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query issue: %w", err)
	}

	if author.Valid {
		issue.Author = models.StringPtr(author.String)
	}
	if issue.CreatedAt, err = models.ParseTimestamp(createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if issue.UpdatedAt, err = models.ParseTimestamp(updatedAt); err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	if closedAt.Valid {
		t, err := models.ParseTimestamp(closedAt.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse closed_at: %w", err)
		}
		issue.ClosedAt = &t
	}

	if issue.Labels, err = r.labels.ListByIssue(ctx, issueID); err != nil {
		return nil, err
	}
	if issue.Comments, err = r.comments.ListByIssue(ctx, issueID); err != nil {
		return nil, err
	}

	return &issue, nil
}

// MostCommented returns the issues with the most stored comments.
func (r *IssueRepo) MostCommented(ctx context.Context, repoID int64, limit int) ([]CommentStat, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT i.number, i.title, COUNT(c.id) AS n
		 FROM issues i LEFT JOIN comments c ON c.issue_id = i.id
		 WHERE i.repository_id = ?
		 GROUP BY i.id
		 ORDER BY n DESC, i.number ASC
		 LIMIT ?`,
		repoID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query most commented issues: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var stats []CommentStat
	for rows.Next() {
		var s CommentStat
		if err := rows.Scan(&s.Number, &s.Title, &s.Comments); err != nil {
			return nil, fmt.Errorf("failed to scan comment stat: %w", err)
		}
		stats = append(stats, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return stats, nil
}

// CommentCount returns the number of comments stored for the repository.
func (r *IssueRepo) CommentCount(ctx context.Context, repoID int64) (int, error) {
	return r.comments.CountByRepository(ctx, repoID)
}

// MaxUpdatedAt returns the most recent issue updated_at, or nil when the repository has no issues.
func (r *IssueRepo) MaxUpdatedAt(ctx context.Context, repoID int64) (*time.Time, error) {
	return maxUpdatedAt(ctx, r.db, repoID)
}

func maxUpdatedAt(ctx context.Context, q querier, repoID int64) (*time.Time, error) {
	var latest sql.NullString
	err := q.QueryRowContext(ctx, "SELECT MAX(updated_at) FROM issues WHERE repository_id = ?", repoID).Scan(&latest)
	if err != nil {
		return nil, fmt.Errorf("failed to query max updated_at: %w", err)
	}
	if !latest.Valid {
		return nil, nil
	}
	t, err := models.ParseTimestamp(latest.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func countWith(ctx context.Context, q querier, query string, args ...any) (int, error) {
	var n int
	if err := q.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count: %w", err)
	}
	return n, nil
}
