package models

import (
	"fmt"
	"strings"
	"time"
)

// TimestampLayout is the storage format for every timestamp: UTC, second precision, no zone suffix.
const TimestampLayout = "2006-01-02 15:04:05"

// Issue is a single issue together with the comments fetched for it.
type Issue struct {
	ID            int64 // Remote id
	Number        int
	Title         string
	Body          string
	State         string
	Author        *string
	URL           string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	ClosedAt      *time.Time
	Labels        []string
	CommentsCount int
	Comments      []Comment
}

// Comment is a comment on an issue.
type Comment struct {
	ID        int64
	Author    *string
	Body      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Fingerprint returns number + "_" + updated_at, the cheap change-detection key.
func (i Issue) Fingerprint() string {
	return Fingerprint(i.Number, i.UpdatedAt)
}

// AuthorOr returns the author login, or fallback when it is unknown.
func (i Issue) AuthorOr(fallback string) string {
	return derefOr(i.Author, fallback)
}

// AuthorOr returns the author login, or fallback when it is unknown.
func (c Comment) AuthorOr(fallback string) string {
	return derefOr(c.Author, fallback)
}

// Fingerprint builds the fingerprint for an issue number and update time.
func Fingerprint(number int, updatedAt time.Time) string {
	return fmt.Sprintf("%d_%s", number, FormatTimestamp(updatedAt))
}

// NormalizeTime converts t to UTC with second precision.
func NormalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

// FormatTimestamp formats t in the storage layout.
func FormatTimestamp(t time.Time) string {
	return NormalizeTime(t).Format(TimestampLayout)
}

// ParseTimestamp parses a stored or remote timestamp and returns it in UTC.
// Accepts the storage layout, RFC3339 (with Z or an offset) and SQLite's "T" separated form.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	layouts := []string{
		TimestampLayout,
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05Z07:00",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return NormalizeTime(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

func derefOr(s *string, fallback string) string {
	if s == nil || *s == "" {
		return fallback
	}
	return *s
}

// StringPtr returns nil for an empty string, otherwise a pointer to s.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
