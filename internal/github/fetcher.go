package github

import (
	"context"
	"fmt"
	"sync"
	"time"

	gh "github.com/google/go-github/v57/github"
	"golang.org/x/time/rate"

	"issuesync/internal/contextutil"
	"issuesync/internal/models"
)

const (
	// DefaultPageSize is the GitHub maximum.
	DefaultPageSize = 100
	// commentsPageSize is always the maximum; comment pages are never streamed.
	commentsPageSize = 100
)

// FetchRequest describes one incremental fetch.
type FetchRequest struct {
	Repo models.RepoName
	// State filters issues: open, closed or all. Empty means all.
	State string
	// Since limits the fetch to issues updated at or after it. Nil fetches everything.
	Since *time.Time
	// KnownNumbers only feeds the per-page new/updated statistics.
	KnownNumbers map[int]struct{}
	// KnownFingerprints short-circuits issues already stored at this exact version.
	KnownFingerprints map[string]struct{}
	PageSize          int
	IncludeComments   bool
}

// Page is one complete page of forwarded issues, comments included.
type Page struct {
	Number  int
	Issues  []models.Issue
	New     int
	Updated int
	Skipped int
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithRequestsPerSecond paces outbound requests. Zero or less disables pacing.
func WithRequestsPerSecond(rps float64) Option {
	return func(f *Fetcher) {
		if rps > 0 {
			f.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// WithClock replaces time.Now for reset computations.
func WithClock(now func() time.Time) Option {
	return func(f *Fetcher) { f.now = now }
}

// WithSleeper replaces the cancellable sleep used while waiting for a reset.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(f *Fetcher) { f.sleep = sleep }
}

// WithMaxRetries bounds rate-limit retries per request.
func WithMaxRetries(n int) Option {
	return func(f *Fetcher) { f.maxRetries = n }
}

// Fetcher streams a repository's issues newest-updated first.
type Fetcher struct {
	client  *gh.Client
	limiter *rate.Limiter

	now        func() time.Time
	sleep      func(ctx context.Context, d time.Duration) error
	maxRetries int
	maxWait    time.Duration
	margin     time.Duration

	mu       sync.Mutex
	lastRate *RateSnapshot
}

// NewFetcher creates a Fetcher over an authenticated client.
func NewFetcher(client *gh.Client, opts ...Option) *Fetcher {
	f := &Fetcher{
		client:     client,
		limiter:    rate.NewLimiter(rate.Inf, 1),
		now:        time.Now,
		sleep:      sleepContext,
		maxRetries: DefaultMaxRetries,
		maxWait:    DefaultMaxWait,
		margin:     DefaultResetMargin,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch walks every page of issues changed since req.Since and sends each one on pages.
//
// A page is sent only once all of its issues and their comments are fetched, so an error
// never leaves a partial page behind. Issues whose fingerprint is already known are counted
// as skipped and neither forwarded nor have their comments fetched. Fetch closes pages when it
// returns; sending blocks until the consumer is ready, which bounds memory to the channel buffer.
func (f *Fetcher) Fetch(ctx context.Context, req FetchRequest, pages chan<- Page) error {
	defer close(pages)
	logger := contextutil.LoggerFromContext(ctx)

	pageSize := req.PageSize
	if pageSize <= 0 || pageSize > DefaultPageSize {
		pageSize = DefaultPageSize
	}
	state := req.State
	if state == "" {
		state = "all"
	}

	opts := &gh.IssueListByRepoOptions{
		State:     state,
		Sort:      "updated",
		Direction: "desc",
		ListOptions: gh.ListOptions{
			PerPage: pageSize,
		},
	}
	if req.Since != nil {
		opts.Since = req.Since.UTC()
	}

	logger.InfoContext(ctx, "fetching issues",
		"repo", req.Repo.FullName(),
		"state", state,
		"since", sinceString(req.Since),
		"page_size", pageSize,
	)

	for number := 1; ; number++ {
		var (
			issues []*gh.Issue
			resp   *gh.Response
		)
		err := f.do(ctx, fmt.Sprintf("list issues page %d", number), func(ctx context.Context) (*gh.Response, error) {
			var err error
			issues, resp, err = f.client.Issues.ListByRepo(ctx, req.Repo.Owner, req.Repo.Name, opts)
			return resp, err
		})
		if err != nil {
			return err
		}

		page := Page{Number: number, Issues: make([]models.Issue, 0, len(issues))}
		for _, ghIssue := range issues {
			issue := convertIssue(ghIssue)
			if _, ok := req.KnownFingerprints[issue.Fingerprint()]; ok {
				page.Skipped++
				continue
			}
			if _, ok := req.KnownNumbers[issue.Number]; ok {
				page.Updated++
			} else {
				page.New++
			}

			if req.IncludeComments && issue.CommentsCount > 0 {
				comments, err := f.listComments(ctx, req.Repo, issue.Number)
				if err != nil {
					return err
				}
				issue.Comments = comments
			}
			page.Issues = append(page.Issues, issue)
		}

		logger.InfoContext(ctx, "fetched page",
			"page", number,
			"issues", len(issues),
			"forwarded", len(page.Issues),
			"new", page.New,
			"updated", page.Updated,
			"skipped", page.Skipped,
		)

		select {
		case pages <- page:
		case <-ctx.Done():
			return ctx.Err()
		}

		if resp == nil || resp.NextPage == 0 {
			return nil
		}
		opts.Page = resp.NextPage
	}
}

// listComments returns every comment of an issue, oldest first.
func (f *Fetcher) listComments(ctx context.Context, repo models.RepoName, number int) ([]models.Comment, error) {
	opts := &gh.IssueListCommentsOptions{
		ListOptions: gh.ListOptions{
			PerPage: commentsPageSize,
		},
	}

	var all []models.Comment
	for {
		var (
			comments []*gh.IssueComment
			resp     *gh.Response
		)
		err := f.do(ctx, fmt.Sprintf("list comments of #%d", number), func(ctx context.Context) (*gh.Response, error) {
			var err error
			comments, resp, err = f.client.Issues.ListComments(ctx, repo.Owner, repo.Name, number, opts)
			return resp, err
		})
		if err != nil {
			return nil, err
		}

		for _, c := range comments {
			all = append(all, convertComment(c))
		}

		if resp == nil || resp.NextPage == 0 {
			return all, nil
		}
		opts.Page = resp.NextPage
	}
}

func sinceString(since *time.Time) string {
	if since == nil {
		return "beginning"
	}
	return models.FormatTimestamp(*since)
}
