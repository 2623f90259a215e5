package service

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_sync_service.go -package=mocks issuesync/internal/service SyncService

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"issuesync/internal/contextutil"
	"issuesync/internal/indexer"
	"issuesync/internal/models"
	"issuesync/internal/rag"
	"issuesync/internal/storage"
	"issuesync/internal/syncer"
	"issuesync/internal/vectorstore"
)

const (
	// DefaultLogLimit is how many sync log rows Logs returns when no limit is given.
	DefaultLogLimit   = 20
	mostCommentedSize = 5
)

// SyncOptions adjust a single sync.
type SyncOptions struct {
	// Since replaces the stored watermark as the fetch filter.
	Since *time.Time
}

// Status describes what is stored for a repository.
type Status struct {
	Repository    string                `json:"repository" yaml:"repository"`
	Issues        int                   `json:"issues" yaml:"issues"`
	Comments      int                   `json:"comments" yaml:"comments"`
	Chunks        int                   `json:"chunks" yaml:"chunks"`
	Collection    string                `json:"collection" yaml:"collection"`
	IndexVersion  string                `json:"index_version" yaml:"index_version"`
	LatestUpdate  *time.Time            `json:"latest_update,omitempty" yaml:"latest_update,omitempty"`
	LastSync      *LogEntry             `json:"last_sync,omitempty" yaml:"last_sync,omitempty"`
	MostCommented []storage.CommentStat `json:"most_commented" yaml:"most_commented"`
	DatabasePath  string                `json:"database_path" yaml:"database_path"`
}

// LogEntry is the presentation form of one sync log row.
type LogEntry struct {
	Watermark       time.Time  `json:"watermark" yaml:"watermark"`
	New             int        `json:"new" yaml:"new"`
	Updated         int        `json:"updated" yaml:"updated"`
	Redundant       int        `json:"redundant" yaml:"redundant"`
	BeforeCount     int        `json:"before_count" yaml:"before_count"`
	AfterCount      int        `json:"after_count" yaml:"after_count"`
	Reconciled      int        `json:"reconciled" yaml:"reconciled"`
	ReconcileFailed int        `json:"reconcile_failed" yaml:"reconcile_failed"`
	DebtRepaired    int        `json:"debt_repaired" yaml:"debt_repaired"`
	Duration        string     `json:"duration" yaml:"duration"`
	RateRemaining   *int       `json:"rate_remaining,omitempty" yaml:"rate_remaining,omitempty"`
	RateLimit       *int       `json:"rate_limit,omitempty" yaml:"rate_limit,omitempty"`
	RateReset       *time.Time `json:"rate_reset,omitempty" yaml:"rate_reset,omitempty"`
}

// SyncService runs and inspects repository synchronizations.
type SyncService interface {
	// Sync fetches changes since the last sync and reconciles the index.
	Sync(ctx context.Context, repo string, opts SyncOptions) (syncer.Result, error)
	// Reconcile repairs index debt without fetching.
	Reconcile(ctx context.Context, repo string) (syncer.Result, error)
	// Status reports stored counts and the latest sync.
	Status(ctx context.Context, repo string) (Status, error)
	// Logs returns the most recent sync log rows, newest first.
	Logs(ctx context.Context, repo string, limit int) ([]LogEntry, error)
	// Ask answers a question from the repository's indexed issues.
	Ask(ctx context.Context, repo string, req rag.AskRequest) (rag.AskResponse, error)
}

// Options configure a Manager.
type Options struct {
	// DataDir holds one SQLite file per repository under sqlite/.
	DataDir          string
	CollectionPrefix string
	VectorSize       int
	EmbeddingModel   string
	Chunk            indexer.ChunkParams
	Engine           syncer.Config
}

// Deps are the external services a Manager drives.
type Deps struct {
	VectorStore vectorstore.VectorStore
	Embedder    indexer.Embedder
	Source      syncer.Source
	Generator   rag.Generator
}

// Manager implements SyncService. Each repository gets its own database file and collection,
// opened on first use and kept open until Close.
type Manager struct {
	opts    Options
	deps    Deps
	chunker *indexer.IssueChunker
	version string

	mu      sync.Mutex
	handles map[string]*repoHandle
	locks   map[string]*sync.Mutex
}

type repoHandle struct {
	name   models.RepoName
	dbPath string
	db     *sql.DB
	repoID int64
	issues *storage.IssueRepo
	logs   *storage.SyncLogRepo
	index  *indexer.Index
}

// NewManager validates the chunk parameters and creates a Manager.
func NewManager(opts Options, deps Deps) (*Manager, error) {
	splitter, err := indexer.NewSplitter(opts.Chunk.Size, opts.Chunk.Overlap)
	if err != nil {
		return nil, &ValidationError{Field: "chunk_size", Message: err.Error()}
	}
	return &Manager{
		opts:    opts,
		deps:    deps,
		chunker: indexer.NewIssueChunker(splitter, opts.Chunk.ContextChars),
		version: indexer.IndexVersion(opts.Chunk, opts.EmbeddingModel),
		handles: make(map[string]*repoHandle),
		locks:   make(map[string]*sync.Mutex),
	}, nil
}

// Sync fetches changes since the last sync and reconciles the index.
func (m *Manager) Sync(ctx context.Context, repo string, opts SyncOptions) (syncer.Result, error) {
	h, unlock, err := m.acquire(ctx, repo)
	if err != nil {
		return syncer.Result{}, err
	}
	defer unlock()

	return m.engine(h).Run(ctx, syncer.Repo{ID: h.repoID, Name: h.name}, syncer.RunOptions{Since: opts.Since})
}

// Reconcile repairs index debt without fetching.
func (m *Manager) Reconcile(ctx context.Context, repo string) (syncer.Result, error) {
	h, unlock, err := m.acquire(ctx, repo)
	if err != nil {
		return syncer.Result{}, err
	}
	defer unlock()

	return m.engine(h).Reconcile(ctx, syncer.Repo{ID: h.repoID, Name: h.name})
}

// Status reports stored counts and the latest sync.
func (m *Manager) Status(ctx context.Context, repo string) (Status, error) {
	h, err := m.open(ctx, repo, false)
	if err != nil {
		return Status{}, err
	}

	status := Status{
		Repository:   h.name.FullName(),
		Collection:   h.index.Collection(),
		IndexVersion: m.version,
		DatabasePath: h.dbPath,
	}
	if status.Issues, err = h.issues.Count(ctx, h.repoID); err != nil {
		return Status{}, WrapError(err, "count issues")
	}
	if status.Comments, err = h.issues.CommentCount(ctx, h.repoID); err != nil {
		return Status{}, WrapError(err, "count comments")
	}
	if status.LatestUpdate, err = h.issues.MaxUpdatedAt(ctx, h.repoID); err != nil {
		return Status{}, WrapError(err, "latest update")
	}
	if status.MostCommented, err = h.issues.MostCommented(ctx, h.repoID, mostCommentedSize); err != nil {
		return Status{}, WrapError(err, "most commented issues")
	}
	if status.Chunks, err = h.index.Count(ctx); err != nil {
		return Status{}, fmt.Errorf("%w: count chunks: %w", ErrExternalService, err)
	}

	latest, err := h.logs.Latest(ctx, h.repoID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return Status{}, WrapError(err, "latest sync")
	default:
		entry := toLogEntry(*latest)
		status.LastSync = &entry
	}
	return status, nil
}

// Logs returns the most recent sync log rows, newest first.
func (m *Manager) Logs(ctx context.Context, repo string, limit int) ([]LogEntry, error) {
	if limit < 0 {
		return nil, &ValidationError{Field: "limit", Message: "must not be negative"}
	}
	if limit == 0 {
		limit = DefaultLogLimit
	}

	h, err := m.open(ctx, repo, false)
	if err != nil {
		return nil, err
	}
	rows, err := h.logs.List(ctx, h.repoID, limit)
	if err != nil {
		return nil, err
	}
	entries := make([]LogEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, toLogEntry(row))
	}
	return entries, nil
}

// Ask answers a question from the repository's indexed issues.
func (m *Manager) Ask(ctx context.Context, repo string, req rag.AskRequest) (rag.AskResponse, error) {
	logger := contextutil.LoggerFromContext(ctx)

	if err := validateAsk(req); err != nil {
		logger.WarnContext(ctx, "invalid ask request", "error", err)
		return rag.AskResponse{}, err
	}

	h, err := m.open(ctx, repo, false)
	if err != nil {
		return rag.AskResponse{}, err
	}

	engine := rag.NewEngine(h.index, m.deps.Generator, h.name.FullName())
	resp, err := engine.Ask(ctx, req)
	if err != nil {
		if errors.Is(err, rag.ErrEmptyQuestion) {
			return rag.AskResponse{}, &ValidationError{Field: "question", Message: "cannot be empty"}
		}
		return rag.AskResponse{}, fmt.Errorf("%w: %w", ErrExternalService, err)
	}
	return resp, nil
}

// Close closes every open repository database.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for key, h := range m.handles {
		if err := h.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", key, err))
		}
		delete(m.handles, key)
	}
	return errors.Join(errs...)
}

func (m *Manager) engine(h *repoHandle) *syncer.Engine {
	return syncer.NewEngine(h.issues, h.logs, m.deps.Source, h.index, m.chunker, m.opts.Engine)
}

// acquire opens the repository and takes its sync lock, failing fast when it is held.
func (m *Manager) acquire(ctx context.Context, repo string) (*repoHandle, func(), error) {
	name, err := parseRepo(repo)
	if err != nil {
		return nil, nil, err
	}

	m.mu.Lock()
	lock, ok := m.locks[name.Slug()]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[name.Slug()] = lock
	}
	m.mu.Unlock()

	if !lock.TryLock() {
		return nil, nil, fmt.Errorf("%w: %s", ErrSyncInProgress, name.FullName())
	}

	h, err := m.open(ctx, repo, true)
	if err != nil {
		lock.Unlock()
		return nil, nil, err
	}
	if err := h.index.EnsureCollections(ctx, m.opts.VectorSize); err != nil {
		lock.Unlock()
		return nil, nil, fmt.Errorf("%w: %w", ErrExternalService, err)
	}
	return h, lock.Unlock, nil
}

// open returns the cached handle for repo, opening its database on first use.
// Without create, a repository that has never been synced is ErrNotFound.
func (m *Manager) open(ctx context.Context, repo string, create bool) (*repoHandle, error) {
	name, err := parseRepo(repo)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if h, ok := m.handles[name.Slug()]; ok {
		return h, nil
	}

	path, err := storage.PathFor(m.opts.DataDir, name.Slug())
	if err != nil {
		return nil, err
	}
	if !create {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s has not been synced", ErrNotFound, name.FullName())
		}
	}

	db, err := storage.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}
	if err := storage.Migrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate database %s: %w", path, err)
	}
	repository, err := storage.NewRepositoryRepo(db).GetOrCreateByName(ctx, name.FullName())
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	h := &repoHandle{
		name:   name,
		dbPath: path,
		db:     db,
		repoID: repository.ID,
		issues: storage.NewIssueRepo(db),
		logs:   storage.NewSyncLogRepo(db),
		index:  indexer.NewIndex(m.deps.VectorStore, m.deps.Embedder, m.opts.CollectionPrefix+name.Slug(), m.version),
	}
	m.handles[name.Slug()] = h
	contextutil.LoggerFromContext(ctx).DebugContext(ctx, "opened repository", "repo", name.FullName(), "path", path)
	return h, nil
}

func parseRepo(repo string) (models.RepoName, error) {
	name, err := models.ParseRepoName(repo)
	if err != nil {
		return models.RepoName{}, &ValidationError{Field: "repo", Message: err.Error()}
	}
	return name, nil
}

func validateAsk(req rag.AskRequest) error {
	switch req.State {
	case "", "open", "closed":
	default:
		return &ValidationError{Field: "state", Message: "must be open or closed"}
	}
	switch req.Kind {
	case "", string(indexer.KindIssue), string(indexer.KindComment):
	default:
		return &ValidationError{Field: "kind", Message: "must be issue or comment"}
	}
	switch req.Detail {
	case "", "brief", "normal", "detailed":
	default:
		return &ValidationError{Field: "detail", Message: "must be brief, normal or detailed"}
	}
	if req.K < 0 {
		return &ValidationError{Field: "k", Message: "must not be negative"}
	}
	return nil
}

func toLogEntry(row storage.SyncLogEntry) LogEntry {
	return LogEntry{
		Watermark:       row.Timestamp,
		New:             row.NewCount,
		Updated:         row.UpdatedCount,
		Redundant:       row.RedundantCount,
		BeforeCount:     row.BeforeCount,
		AfterCount:      row.AfterCount,
		Reconciled:      row.Reconciled,
		ReconcileFailed: row.ReconcileFailed,
		DebtRepaired:    row.DebtRepaired,
		Duration:        row.Duration.Round(time.Millisecond).String(),
		RateRemaining:   row.RateRemaining,
		RateLimit:       row.RateLimit,
		RateReset:       row.RateReset,
	}
}
