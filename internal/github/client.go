// Package github fetches issues and comments from the GitHub REST API, page by page,
// waiting out rate limits instead of failing on them.
package github

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	gh "github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"

	"issuesync/internal/models"
)

// NewClient creates a GitHub API client.
// An empty token gives an unauthenticated client; an empty baseURL keeps api.github.com.
func NewClient(token, baseURL string) (*gh.Client, error) {
	var tc *http.Client
	if token != "" {
		ts := oauth2.StaticTokenSource(
			&oauth2.Token{AccessToken: token},
		)
		tc = oauth2.NewClient(context.Background(), ts)
	}

	client := gh.NewClient(tc)
	if baseURL == "" {
		return client, nil
	}

	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid GitHub API URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid GitHub API URL %q: scheme and host are required", baseURL)
	}
	// go-github resolves relative paths, so the base must end in a slash
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	client.BaseURL = u
	return client, nil
}

// convertIssue converts a GitHub issue to our model.
func convertIssue(issue *gh.Issue) models.Issue {
	var closedAt *time.Time
	if issue.ClosedAt != nil {
		t := models.NormalizeTime(issue.ClosedAt.Time)
		closedAt = &t
	}

	labels := make([]string, 0, len(issue.Labels))
	for _, label := range issue.Labels {
		if name := label.GetName(); name != "" {
			labels = append(labels, name)
		}
	}

	return models.Issue{
		ID:            issue.GetID(),
		Number:        issue.GetNumber(),
		Title:         issue.GetTitle(),
		Body:          issue.GetBody(),
		State:         issue.GetState(),
		Author:        models.StringPtr(issue.GetUser().GetLogin()),
		URL:           issue.GetHTMLURL(),
		CreatedAt:     models.NormalizeTime(issue.GetCreatedAt().Time),
		UpdatedAt:     models.NormalizeTime(issue.GetUpdatedAt().Time),
		ClosedAt:      closedAt,
		Labels:        labels,
		CommentsCount: issue.GetComments(),
	}
}

// convertComment converts a GitHub comment to our model.
func convertComment(comment *gh.IssueComment) models.Comment {
	return models.Comment{
		ID:        comment.GetID(),
		Author:    models.StringPtr(comment.GetUser().GetLogin()),
		Body:      comment.GetBody(),
		CreatedAt: models.NormalizeTime(comment.GetCreatedAt().Time),
		UpdatedAt: models.NormalizeTime(comment.GetUpdatedAt().Time),
	}
}
