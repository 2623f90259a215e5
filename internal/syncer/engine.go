// Package syncer keeps the relational store and the vector index of one repository in step with GitHub.
//
// A run walks LOAD_WATERMARK, FETCH_AND_CLASSIFY, COMMIT_RELATIONAL_BATCHES, SELECT_CHANGED_ISSUES,
// RECONCILE_VECTOR_INDEX and LOG_WATERMARK in that order. Only a run that reaches the last state
// logs a watermark, so an interrupted run is resumed by simply running again.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"issuesync/internal/contextutil"
	"issuesync/internal/github"
	"issuesync/internal/indexer"
	"issuesync/internal/models"
	"issuesync/internal/storage"
	"issuesync/internal/syncerr"
)

// DefaultPageBuffer is how many fetched pages may wait while the engine commits one.
const DefaultPageBuffer = 2

// Source streams pages of changed issues.
type Source interface {
	Fetch(ctx context.Context, req github.FetchRequest, pages chan<- github.Page) error
	LastRate() *github.RateSnapshot
}

// Index is the part of the vector index the engine reconciles against.
type Index interface {
	Version() string
	IndexedVersions(ctx context.Context, issueIDs []int64) (map[int64]indexer.IndexState, error)
	DeleteIssue(ctx context.Context, issueID int64) error
	Insert(ctx context.Context, chunks []indexer.Chunk) error
	MarkIndexed(ctx context.Context, issueID int64, updatedAt time.Time, chunkCount int) error
}

// Repo is the repository a run synchronizes.
type Repo struct {
	ID   int64
	Name models.RepoName
}

// Config holds the fetch parameters shared by every run of an engine.
type Config struct {
	State           string
	PageSize        int
	IncludeComments bool
	// WatermarkBuffer is subtracted from the watermark before it is used as the fetch filter.
	WatermarkBuffer time.Duration
	PageBuffer      int
}

// RunOptions adjust a single run.
type RunOptions struct {
	// Since replaces the buffered watermark as the fetch filter.
	Since *time.Time
}

// Result summarizes one run.
type Result struct {
	New       int `json:"new" yaml:"new"`
	Updated   int `json:"updated" yaml:"updated"`
	Redundant int `json:"redundant" yaml:"redundant"`
	// Skipped counts the issues the fetcher short-circuited. They are included in Redundant.
	Skipped int `json:"skipped" yaml:"skipped"`

	BeforeCount int `json:"before_count" yaml:"before_count"`
	AfterCount  int `json:"after_count" yaml:"after_count"`

	Pages           int `json:"pages" yaml:"pages"`
	Reconciled      int `json:"reconciled" yaml:"reconciled"`
	ReconcileFailed int `json:"reconcile_failed" yaml:"reconcile_failed"`
	DebtRepaired    int `json:"debt_repaired" yaml:"debt_repaired"`

	Since     *time.Time    `json:"since,omitempty" yaml:"since,omitempty"`
	Watermark time.Time     `json:"watermark" yaml:"watermark"`
	Duration  time.Duration `json:"duration" yaml:"duration"`

	Chunks indexer.ChunkTokenStats `json:"chunks" yaml:"chunks"`
	Rate   *github.RateSnapshot    `json:"rate,omitempty" yaml:"rate,omitempty"`
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// Engine runs synchronizations for repositories whose issues live in one store.
type Engine struct {
	issues  storage.IssueStore
	logs    storage.SyncLogStore
	source  Source
	index   Index
	chunker *indexer.IssueChunker
	cfg     Config
	now     func() time.Time
}

// NewEngine creates an Engine.
func NewEngine(issues storage.IssueStore, logs storage.SyncLogStore, source Source, index Index, chunker *indexer.IssueChunker, cfg Config, opts ...Option) *Engine {
	if cfg.PageBuffer <= 0 {
		cfg.PageBuffer = DefaultPageBuffer
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = github.DefaultPageSize
	}
	e := &Engine{
		issues:  issues,
		logs:    logs,
		source:  source,
		index:   index,
		chunker: chunker,
		cfg:     cfg,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run fetches every issue changed since the last watermark, commits it, brings the vector index
// in line with the relational store and logs a new watermark.
//
// A fetch or store error returns after the pages already committed, without a watermark.
// Reconciliation failures of single issues are counted and do not fail the run.
func (e *Engine) Run(ctx context.Context, repo Repo, opts RunOptions) (Result, error) {
	logger := contextutil.LoggerFromContext(ctx).With("repo", repo.Name.FullName())
	ctx = contextutil.WithLogger(ctx, logger)

	start := e.now()
	startedAt := models.NormalizeTime(start)
	var result Result

	// LOAD_WATERMARK
	watermark, err := e.logs.LatestWatermark(ctx, repo.ID)
	if err != nil {
		return result, syncerr.Store("load watermark", err)
	}
	// Only a logged watermark bounds the fetch. The max(updated_at) fallback may come from an
	// interrupted first run whose older pages were never committed.
	logged := watermark
	if _, err := e.logs.Latest(ctx, repo.ID); errors.Is(err, storage.ErrNotFound) {
		logged = nil
	} else if err != nil {
		return result, syncerr.Store("load latest sync", err)
	}
	result.Since = e.fetchSince(logged, opts.Since)

	known, err := e.issues.KnownNumbers(ctx, repo.ID)
	if err != nil {
		return result, syncerr.Store("load known numbers", err)
	}
	fingerprints, err := e.issues.KnownFingerprints(ctx, repo.ID)
	if err != nil {
		return result, syncerr.Store("load known fingerprints", err)
	}
	result.BeforeCount = len(known)
	result.AfterCount = len(known)

	logger.InfoContext(ctx, "starting sync",
		"watermark", formatOptional(watermark),
		"since", formatOptional(result.Since),
		"known_issues", len(known),
	)

	// FETCH_AND_CLASSIFY, COMMIT_RELATIONAL_BATCHES
	req := github.FetchRequest{
		Repo:              repo.Name,
		State:             e.cfg.State,
		Since:             result.Since,
		KnownNumbers:      known,
		KnownFingerprints: fingerprints,
		PageSize:          e.cfg.PageSize,
		IncludeComments:   e.cfg.IncludeComments,
	}
	changed, err := e.fetchAndCommit(ctx, repo.ID, req, watermark, &result)
	result.Rate = e.source.LastRate()
	if err != nil {
		return result, err
	}

	// SELECT_CHANGED_ISSUES, RECONCILE_VECTOR_INDEX
	if err := e.reconcile(ctx, repo.ID, changed, &result); err != nil {
		return result, err
	}

	// LOG_WATERMARK
	// The store only treats updated_at strictly after the watermark as an update, and timestamps
	// have second precision. An edit in the start second must still count, so log the second before.
	result.Watermark = startedAt.Add(-time.Second)
	if watermark != nil && watermark.After(result.Watermark) {
		result.Watermark = *watermark
	}
	result.Duration = e.now().Sub(start)

	if err := e.logs.Append(ctx, e.logEntry(repo.ID, result)); err != nil {
		return result, syncerr.Store("append sync log", err)
	}

	logger.InfoContext(ctx, "sync complete",
		"new", result.New,
		"updated", result.Updated,
		"redundant", result.Redundant,
		"reconciled", result.Reconciled,
		"reconcile_failed", result.ReconcileFailed,
		"watermark", models.FormatTimestamp(result.Watermark),
		"duration", result.Duration,
	)
	return result, nil
}

// Reconcile repairs the vector index of a repository without fetching or logging.
func (e *Engine) Reconcile(ctx context.Context, repo Repo) (Result, error) {
	logger := contextutil.LoggerFromContext(ctx).With("repo", repo.Name.FullName())
	ctx = contextutil.WithLogger(ctx, logger)

	start := e.now()
	var result Result

	count, err := e.issues.Count(ctx, repo.ID)
	if err != nil {
		return result, syncerr.Store("count issues", err)
	}
	result.BeforeCount = count
	result.AfterCount = count

	err = e.reconcile(ctx, repo.ID, nil, &result)
	result.Duration = e.now().Sub(start)
	return result, err
}

// fetchSince returns the fetch filter: the override if given, else the buffered watermark.
func (e *Engine) fetchSince(watermark, override *time.Time) *time.Time {
	if override != nil {
		since := models.NormalizeTime(*override)
		return &since
	}
	if watermark == nil {
		return nil
	}
	since := watermark.Add(-e.cfg.WatermarkBuffer)
	return &since
}

// fetchAndCommit runs the fetcher in a goroutine and commits each page before taking the next.
// It returns the ids of every issue written as new or updated.
func (e *Engine) fetchAndCommit(ctx context.Context, repoID int64, req github.FetchRequest, watermark *time.Time, result *Result) ([]int64, error) {
	logger := contextutil.LoggerFromContext(ctx)

	fetchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	pages := make(chan github.Page, e.cfg.PageBuffer)
	fetchErr := make(chan error, 1)
	go func() {
		fetchErr <- e.source.Fetch(fetchCtx, req, pages)
	}()

	// stop cancels the fetch and waits for it to close the channel
	stop := func() {
		cancel()
		for range pages {
		}
		<-fetchErr
	}

	// An issue edited mid-fetch moves up the listing and can show up again on a later page.
	// The newer copy is written, but the issue is counted once.
	seen := make(map[int64]struct{})
	var changed []int64
	for page := range pages {
		if err := ctx.Err(); err != nil {
			stop()
			return changed, err
		}

		result.Pages++
		result.Skipped += page.Skipped
		result.Redundant += page.Skipped
		if len(page.Issues) == 0 {
			continue
		}

		fresh, repeats := splitRepeats(page.Issues, seen)
		var counted storage.BatchResult
		for _, part := range []struct {
			issues []models.Issue
			count  bool
		}{{fresh, true}, {repeats, false}} {
			if len(part.issues) == 0 {
				continue
			}
			batch, err := e.issues.UpsertBatch(ctx, repoID, part.issues, watermark)
			if err != nil {
				stop()
				return changed, syncerr.Store(fmt.Sprintf("commit page %d", page.Number), err)
			}
			if part.count {
				counted = batch
			}
			result.AfterCount = batch.AfterCount
			changed = append(changed, batch.Changed...)
		}

		result.New += counted.New
		result.Updated += counted.Updated
		result.Redundant += counted.Redundant

		logger.DebugContext(ctx, "committed page",
			"page", page.Number,
			"new", counted.New,
			"updated", counted.Updated,
			"redundant", counted.Redundant,
			"repeated", len(repeats),
			"skipped", page.Skipped,
		)
	}

	if err := <-fetchErr; err != nil {
		return changed, err
	}
	return changed, nil
}

// splitRepeats separates issues already seen in this run from fresh ones and marks the fresh ones seen.
func splitRepeats(issues []models.Issue, seen map[int64]struct{}) (fresh, repeats []models.Issue) {
	for _, issue := range issues {
		if _, ok := seen[issue.ID]; ok {
			repeats = append(repeats, issue)
			continue
		}
		seen[issue.ID] = struct{}{}
		fresh = append(fresh, issue)
	}
	return fresh, repeats
}

type candidate struct {
	id   int64
	debt bool
}

// reconcile rebuilds the index entries of every issue whose index state disagrees with the store.
func (e *Engine) reconcile(ctx context.Context, repoID int64, changed []int64, result *Result) error {
	logger := contextutil.LoggerFromContext(ctx)

	candidates, err := e.selectCandidates(ctx, repoID, changed)
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		logger.DebugContext(ctx, "index up to date")
		return nil
	}
	logger.InfoContext(ctx, "reconciling vector index", "issues", len(candidates))

	var stats indexer.StatsCollector
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return err
		}

		chunks, err := e.reconcileIssue(ctx, c.id)
		if err != nil {
			result.ReconcileFailed++
			logger.ErrorContext(ctx, "failed to reconcile issue", "issue_id", c.id, "error", err)
			continue
		}

		stats.Add(chunks)
		result.Reconciled++
		if c.debt {
			result.DebtRepaired++
		}
	}
	result.Chunks = stats.Stats()
	return nil
}

// selectCandidates returns every issue whose index state is missing, stale or from another index version.
// Issues not changed by this run are marked as debt.
func (e *Engine) selectCandidates(ctx context.Context, repoID int64, changed []int64) ([]candidate, error) {
	versions, err := e.issues.Versions(ctx, repoID)
	if err != nil {
		return nil, syncerr.Store("load issue versions", err)
	}
	if len(versions) == 0 {
		return nil, nil
	}

	ids := make([]int64, len(versions))
	for i, v := range versions {
		ids[i] = v.ID
	}
	states, err := e.index.IndexedVersions(ctx, ids)
	if err != nil {
		return nil, syncerr.Reconciliation("load index states", err)
	}

	changedSet := make(map[int64]struct{}, len(changed))
	for _, id := range changed {
		changedSet[id] = struct{}{}
	}

	version := e.index.Version()
	var candidates []candidate
	for _, v := range versions {
		if state, ok := states[v.ID]; ok && state.Matches(v.UpdatedAt, version) {
			continue
		}
		_, wasChanged := changedSet[v.ID]
		candidates = append(candidates, candidate{id: v.ID, debt: !wasChanged})
	}
	return candidates, nil
}

// reconcileIssue replaces every chunk of one issue. The old chunks are deleted before the new ones
// are inserted, and the state is written last.
func (e *Engine) reconcileIssue(ctx context.Context, issueID int64) ([]indexer.Chunk, error) {
	issue, err := e.issues.Get(ctx, issueID)
	if err != nil {
		return nil, syncerr.Reconciliation("load issue", err)
	}

	chunks := e.chunker.Chunk(*issue)

	if err := e.index.DeleteIssue(ctx, issueID); err != nil {
		return nil, syncerr.Reconciliation("delete chunks", err)
	}
	if err := e.index.Insert(ctx, chunks); err != nil {
		return nil, syncerr.Reconciliation("insert chunks", err)
	}
	if err := e.index.MarkIndexed(ctx, issueID, issue.UpdatedAt, len(chunks)); err != nil {
		return nil, syncerr.Reconciliation("mark indexed", err)
	}
	return chunks, nil
}

func (e *Engine) logEntry(repoID int64, result Result) *storage.SyncLogEntry {
	entry := &storage.SyncLogEntry{
		RepositoryID:    repoID,
		Timestamp:       result.Watermark,
		NewCount:        result.New,
		UpdatedCount:    result.Updated,
		RedundantCount:  result.Redundant,
		BeforeCount:     result.BeforeCount,
		AfterCount:      result.AfterCount,
		Duration:        result.Duration,
		Reconciled:      result.Reconciled,
		ReconcileFailed: result.ReconcileFailed,
		DebtRepaired:    result.DebtRepaired,
	}
	if rate := result.Rate; rate != nil {
		remaining, limit, reset := rate.Remaining, rate.Limit, rate.Reset
		entry.RateRemaining = &remaining
		entry.RateLimit = &limit
		entry.RateReset = &reset
	}
	return entry
}

func formatOptional(t *time.Time) string {
	if t == nil {
		return "none"
	}
	return models.FormatTimestamp(*t)
}
