package indexer

import (
	"fmt"
	"strings"

	"issuesync/internal/models"
)

// DefaultIssueContextChars is how much of the issue body is repeated in front of each comment.
const DefaultIssueContextChars = 100

const unknownAuthor = "unknown"

// IssueChunker turns an issue and its comments into chunks.
type IssueChunker struct {
	splitter     *Splitter
	contextChars int
}

// NewIssueChunker creates an IssueChunker. contextChars below zero is treated as zero.
func NewIssueChunker(splitter *Splitter, contextChars int) *IssueChunker {
	if contextChars < 0 {
		contextChars = 0
	}
	return &IssueChunker{
		splitter:     splitter,
		contextChars: contextChars,
	}
}

// Chunk returns the issue chunks followed by the chunks of every comment, in comment order.
func (c *IssueChunker) Chunk(issue models.Issue) []Chunk {
	chunks := c.chunkIssue(issue)
	if len(issue.Comments) == 0 {
		return chunks
	}

	prefix := c.issueContext(issue)
	for _, comment := range issue.Comments {
		author := comment.AuthorOr(unknownAuthor)
		texts := c.splitter.Split(fmt.Sprintf("%sComment by %s:\n%s", prefix, author, comment.Body))
		for i, text := range texts {
			chunks = append(chunks, Chunk{
				ID:          fmt.Sprintf("%d_comment_%d", comment.ID, i),
				IssueID:     issue.ID,
				IssueNumber: issue.Number,
				Kind:        KindComment,
				SourceID:    comment.ID,
				Index:       i,
				Total:       len(texts),
				Text:        text,
				Title:       issue.Title,
				URL:         issue.URL,
				State:       issue.State,
				Author:      author,
				CreatedAt:   comment.CreatedAt,
				UpdatedAt:   comment.UpdatedAt,
			})
		}
	}
	return chunks
}

func (c *IssueChunker) chunkIssue(issue models.Issue) []Chunk {
	texts := c.splitter.Split(fmt.Sprintf("Issue #%d: %s\n\n%s", issue.Number, issue.Title, issue.Body))

	chunks := make([]Chunk, 0, len(texts))
	for i, text := range texts {
		chunks = append(chunks, Chunk{
			ID:          fmt.Sprintf("%d_issue_%d", issue.ID, i),
			IssueID:     issue.ID,
			IssueNumber: issue.Number,
			Kind:        KindIssue,
			SourceID:    issue.ID,
			Index:       i,
			Total:       len(texts),
			Text:        text,
			Title:       issue.Title,
			URL:         issue.URL,
			State:       issue.State,
			Author:      issue.AuthorOr(unknownAuthor),
			CreatedAt:   issue.CreatedAt,
			UpdatedAt:   issue.UpdatedAt,
		})
	}
	return chunks
}

// issueContext is the issue header plus the start of its body, ending in a blank line.
func (c *IssueChunker) issueContext(issue models.Issue) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Issue #%d: %s\n\n", issue.Number, issue.Title)
	if issue.Body == "" {
		return b.String()
	}

	body := []rune(issue.Body)
	if len(body) > c.contextChars {
		b.WriteString(string(body[:c.contextChars]))
		b.WriteString("...")
	} else {
		b.WriteString(issue.Body)
	}
	b.WriteString("\n\n")
	return b.String()
}
