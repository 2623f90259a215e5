package storage

import "time"

// Repository represents a tracked repository in the database.
type Repository struct {
	ID        int64
	Name      string // owner/name
	CreatedAt time.Time
}

// BatchResult is the outcome of one UpsertBatch call.
// New/Updated/Redundant count classification; BeforeCount/AfterCount bracket the call.
type BatchResult struct {
	New         int
	Updated     int
	Redundant   int
	BeforeCount int
	AfterCount  int
	Changed     []int64 // ids of issues written as new or updated
}

// IssueVersion is the relational side of the index reconciliation check.
type IssueVersion struct {
	ID        int64
	Number    int
	UpdatedAt time.Time
}

// CommentStat is an issue ranked by comment count.
type CommentStat struct {
	Number   int    `json:"number" yaml:"number"`
	Title    string `json:"title" yaml:"title"`
	Comments int    `json:"comments" yaml:"comments"`
}

// SyncLogEntry is one immutable row per synchronization run.
// Timestamp is the watermark the next run filters on.
type SyncLogEntry struct {
	ID              int64
	RepositoryID    int64
	Timestamp       time.Time
	NewCount        int
	UpdatedCount    int
	RedundantCount  int
	BeforeCount     int
	AfterCount      int
	RateRemaining   *int
	RateLimit       *int
	RateReset       *time.Time
	Duration        time.Duration
	Reconciled      int
	ReconcileFailed int
	DebtRepaired    int
}
