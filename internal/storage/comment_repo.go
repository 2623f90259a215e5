package storage

import (
	"context"
	"database/sql"
	"fmt"

	"issuesync/internal/models"
)

// CommentRepo provides methods for comment operations.
type CommentRepo struct {
	db *sql.DB
}

// NewCommentRepo creates a new CommentRepo.
func NewCommentRepo(db *sql.DB) *CommentRepo {
	return &CommentRepo{db: db}
}

// replace deletes every comment of an issue and inserts the given set, inside the caller's transaction.
// Comments have no watermark of their own, so edits and deletions only show up this way.
func (r *CommentRepo) replace(ctx context.Context, q querier, issueID int64, comments []models.Comment) error {
	if _, err := q.ExecContext(ctx, "DELETE FROM comments WHERE issue_id = ?", issueID); err != nil {
		return fmt.Errorf("failed to delete comments: %w", err)
	}

	for _, c := range comments {
		_, err := q.ExecContext(ctx,
			`INSERT INTO comments (id, issue_id, author, body, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT (id) DO UPDATE SET issue_id = excluded.issue_id, author = excluded.author,
				body = excluded.body, created_at = excluded.created_at, updated_at = excluded.updated_at`,
			c.ID, issueID, c.Author, c.Body, models.FormatTimestamp(c.CreatedAt), models.FormatTimestamp(c.UpdatedAt),
		)
		if err != nil {
			return fmt.Errorf("failed to insert comment %d: %w", c.ID, err)
		}
	}
	return nil
}

// ListByIssue returns all comments of an issue ordered by creation time.
// Returns an empty slice if the issue has no comments (not an error).
func (r *CommentRepo) ListByIssue(ctx context.Context, issueID int64) ([]models.Comment, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, author, body, created_at, updated_at FROM comments WHERE issue_id = ? ORDER BY created_at, id",
		issueID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query comments: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	comments := []models.Comment{}
	for rows.Next() {
		var (
			c                    models.Comment
			author               sql.NullString
			createdAt, updatedAt string
		)
		if err := rows.Scan(&c.ID, &author, &c.Body, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}
		if author.Valid {
			c.Author = models.StringPtr(author.String)
		}
		if c.CreatedAt, err = models.ParseTimestamp(createdAt); err != nil {
			return nil, fmt.Errorf("comment %d: %w", c.ID, err)
		}
		if c.UpdatedAt, err = models.ParseTimestamp(updatedAt); err != nil {
			return nil, fmt.Errorf("comment %d: %w", c.ID, err)
		}
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return comments, nil
}

// CountByRepository returns the number of comments across all issues of a repository.
func (r *CommentRepo) CountByRepository(ctx context.Context, repoID int64) (int, error) {
	return countWith(ctx, r.db,
		"SELECT COUNT(*) FROM comments c JOIN issues i ON i.id = c.issue_id WHERE i.repository_id = ?",
		repoID,
	)
}
