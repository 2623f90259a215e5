package indexer

import "time"

// ChunkKind tells whether a chunk came from the issue itself or from one of its comments.
type ChunkKind string

const (
	KindIssue   ChunkKind = "issue"
	KindComment ChunkKind = "comment"
)

// Chunk is one embeddable segment of an issue or comment.
type Chunk struct {
	ID          string // "{issue_id}_issue_{i}" or "{comment_id}_comment_{i}"
	IssueID     int64
	IssueNumber int
	Kind        ChunkKind
	SourceID    int64 // Issue or comment id
	Index       int   // Position within its source, starts at 0
	Total       int   // Number of chunks cut from the same source
	Text        string

	Title     string
	URL       string
	State     string
	Author    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IndexState records which version of an issue the index holds.
type IndexState struct {
	IssueID    int64
	UpdatedAt  time.Time
	ChunkCount int
	Version    string
}

// Matches reports whether the state covers the given issue version under the given index version.
func (s IndexState) Matches(updatedAt time.Time, version string) bool {
	return s.UpdatedAt.Equal(updatedAt) && s.Version == version
}
