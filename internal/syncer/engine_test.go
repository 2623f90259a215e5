package syncer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/mock/gomock"

	"issuesync/internal/github"
	"issuesync/internal/indexer"
	"issuesync/internal/models"
	"issuesync/internal/storage"
	"issuesync/internal/storage/mocks"
	"issuesync/internal/syncerr"
)

func init() {
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

const testCollection = "golang_go"

var t0 = time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

func day(n int) time.Time {
	return time.Date(2024, 1, n, 12, 0, 0, 0, time.UTC)
}

func fixtureIssue(number int, updated time.Time, body string, comments ...models.Comment) models.Issue {
	return models.Issue{
		ID:            int64(1000 + number),
		Number:        number,
		Title:         fmt.Sprintf("Issue number %d", number),
		Body:          body,
		State:         "open",
		Author:        models.StringPtr("gopher"),
		URL:           fmt.Sprintf("https://github.com/golang/go/issues/%d", number),
		CreatedAt:     day(1),
		UpdatedAt:     updated,
		Labels:        []string{"NeedsInvestigation"},
		CommentsCount: len(comments),
		Comments:      comments,
	}
}

func fixtureComment(id int64, body string) models.Comment {
	return models.Comment{ID: id, Author: models.StringPtr("reviewer"), Body: body, CreatedAt: day(2), UpdatedAt: day(2)}
}

var longBody = strings.Repeat("The scheduler stalls under heavy load. ", 12)

type harness struct {
	t        *testing.T
	db       *sql.DB
	issues   *storage.IssueRepo
	logs     *storage.SyncLogRepo
	repo     Repo
	store    *memStore
	embedder *fakeEmbedder
	source   *fakeSource
	index    *indexer.Index
	chunker  *indexer.IssueChunker
	cfg      Config
	now      time.Time
}

func newHarness(t *testing.T, remote ...models.Issue) *harness {
	t.Helper()
	ctx := context.Background()

	db, err := storage.New(filepath.Join(t.TempDir(), "golang_go.db"))
	if err != nil {
		t.Fatalf("storage.New() error = %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	if err := storage.Migrate(db); err != nil {
		t.Fatalf("storage.Migrate() error = %v", err)
	}

	repository, err := storage.NewRepositoryRepo(db).GetOrCreateByName(ctx, "golang/go")
	if err != nil {
		t.Fatalf("GetOrCreateByName() error = %v", err)
	}

	splitter, err := indexer.NewSplitter(120, 20)
	if err != nil {
		t.Fatalf("NewSplitter() error = %v", err)
	}

	store := newMemStore()
	embedder := &fakeEmbedder{}
	return &harness{
		t:        t,
		db:       db,
		issues:   storage.NewIssueRepo(db),
		logs:     storage.NewSyncLogRepo(db),
		repo:     Repo{ID: repository.ID, Name: models.RepoName{Owner: "golang", Name: "go"}},
		store:    store,
		embedder: embedder,
		source:   newFakeSource(remote...),
		index:    indexer.NewIndex(store, embedder, testCollection, "v1"),
		chunker:  indexer.NewIssueChunker(splitter, 40),
		cfg:      Config{PageSize: 2, IncludeComments: true},
		now:      t0,
	}
}

func (h *harness) engine() *Engine {
	return NewEngine(h.issues, h.logs, h.source, h.index, h.chunker, h.cfg, WithClock(func() time.Time { return h.now }))
}

func (h *harness) run(opts RunOptions) Result {
	h.t.Helper()
	result, err := h.engine().Run(context.Background(), h.repo, opts)
	if err != nil {
		h.t.Fatalf("Run() error = %v", err)
	}
	return result
}

// assertIndexExact checks that the index holds exactly the chunks of every stored issue.
func (h *harness) assertIndexExact() {
	h.t.Helper()
	ctx := context.Background()

	versions, err := h.issues.Versions(ctx, h.repo.ID)
	if err != nil {
		h.t.Fatalf("Versions() error = %v", err)
	}

	total := 0
	for _, v := range versions {
		issue, err := h.issues.Get(ctx, v.ID)
		if err != nil {
			h.t.Fatalf("Get(%d) error = %v", v.ID, err)
		}
		want := len(h.chunker.Chunk(*issue))
		total += want

		got, err := h.index.CountIssue(ctx, v.ID)
		if err != nil {
			h.t.Fatalf("CountIssue() error = %v", err)
		}
		if got != want {
			h.t.Errorf("issue #%d has %d chunks, want %d", v.Number, got, want)
		}
	}

	got, err := h.index.Count(ctx)
	if err != nil {
		h.t.Fatalf("Count() error = %v", err)
	}
	if got != total {
		h.t.Errorf("index holds %d chunks, want %d", got, total)
	}

	states, err := h.index.IndexedVersions(ctx, idsOf(versions))
	if err != nil {
		h.t.Fatalf("IndexedVersions() error = %v", err)
	}
	for _, v := range versions {
		if state, ok := states[v.ID]; !ok || !state.Matches(v.UpdatedAt, h.index.Version()) {
			h.t.Errorf("issue #%d index state = %+v, want updated_at %s", v.Number, state, v.UpdatedAt)
		}
	}
}

func idsOf(versions []storage.IssueVersion) []int64 {
	ids := make([]int64, len(versions))
	for i, v := range versions {
		ids[i] = v.ID
	}
	return ids
}

// snapshot renders the stored issues and comments, local insert times excluded.
func (h *harness) snapshot() string {
	h.t.Helper()
	var b strings.Builder
	queries := []string{
		`SELECT id, number, title, body, state, updated_at, comments_count FROM issues ORDER BY id`,
		`SELECT id, issue_id, body, updated_at, '', '', '' FROM comments ORDER BY id`,
		`SELECT issue_id, label_id, '', '', '', '', '' FROM issue_labels ORDER BY issue_id, label_id`,
	}
	for _, query := range queries {
		rows, err := h.db.Query(query)
		if err != nil {
			h.t.Fatalf("snapshot query error = %v", err)
		}
		for rows.Next() {
			cols := make([]string, 7)
			ptrs := make([]any, len(cols))
			for i := range cols {
				ptrs[i] = &cols[i]
			}
			if err := rows.Scan(ptrs...); err != nil {
				h.t.Fatalf("snapshot scan error = %v", err)
			}
			b.WriteString(strings.Join(cols, "|"))
			b.WriteString("\n")
		}
		_ = rows.Close()
	}
	return b.String()
}

// points renders the chunk collection as id and text.
func (h *harness) points() string {
	var b strings.Builder
	for _, p := range h.store.points(testCollection) {
		fmt.Fprintf(&b, "%s %v\n", p.ID, p.Meta["text"])
	}
	return b.String()
}

func TestEngine_Run_InitialAndIdempotent(t *testing.T) {
	h := newHarness(t,
		fixtureIssue(1, day(3), "Short report.", fixtureComment(11, "Confirmed on linux.")),
		fixtureIssue(2, day(4), longBody),
		fixtureIssue(3, day(5), ""),
	)
	h.source.rate = &github.RateSnapshot{Remaining: 4990, Limit: 5000, Reset: t0.Add(time.Hour)}

	first := h.run(RunOptions{})
	if first.New != 3 || first.Updated != 0 || first.Redundant != 0 {
		t.Errorf("first run classified %d/%d/%d, want 3/0/0", first.New, first.Updated, first.Redundant)
	}
	if first.BeforeCount != 0 || first.AfterCount != 3 {
		t.Errorf("first run counts %d -> %d, want 0 -> 3", first.BeforeCount, first.AfterCount)
	}
	if first.Reconciled != 3 || first.DebtRepaired != 0 || first.ReconcileFailed != 0 {
		t.Errorf("first run reconciled %d (debt %d, failed %d), want 3 (0, 0)", first.Reconciled, first.DebtRepaired, first.ReconcileFailed)
	}
	if first.Since != nil {
		t.Errorf("first run Since = %v, want nil", first.Since)
	}
	if want := t0.Add(-time.Second); !first.Watermark.Equal(want) {
		t.Errorf("first run Watermark = %v, want %v", first.Watermark, want)
	}
	if first.Chunks.Count == 0 {
		t.Error("first run recorded no chunk stats")
	}
	h.assertIndexExact()

	dbBefore, pointsBefore := h.snapshot(), h.points()

	h.now = t0.Add(time.Hour)
	second := h.run(RunOptions{})
	if second.New+second.Updated+second.Redundant != 0 || second.Reconciled != 0 {
		t.Errorf("second run = %+v, want no work", second)
	}
	if second.AfterCount != 3 {
		t.Errorf("second run AfterCount = %d, want 3", second.AfterCount)
	}

	// Refetching everything is still a no-op: every issue is short-circuited
	epoch := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	h.now = t0.Add(2 * time.Hour)
	third := h.run(RunOptions{Since: &epoch})
	if third.Redundant != 3 || third.Skipped != 3 || third.New != 0 || third.Updated != 0 {
		t.Errorf("third run classified %d/%d/%d (skipped %d), want 0/0/3 (3)", third.New, third.Updated, third.Redundant, third.Skipped)
	}
	if third.Reconciled != 0 {
		t.Errorf("third run Reconciled = %d, want 0", third.Reconciled)
	}

	if got := h.snapshot(); got != dbBefore {
		t.Errorf("relational store changed by no-op runs:\n%s\nwant:\n%s", got, dbBefore)
	}
	if got := h.points(); got != pointsBefore {
		t.Errorf("vector index changed by no-op runs")
	}

	entries, err := h.logs.List(context.Background(), h.repo.ID, 10)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("len(entries) = %d, want 3", len(entries))
	}
	if entries[2].RateRemaining == nil || *entries[2].RateRemaining != 4990 {
		t.Errorf("first entry RateRemaining = %v, want 4990", entries[2].RateRemaining)
	}
}

func TestEngine_Run_Classification(t *testing.T) {
	h := newHarness(t,
		fixtureIssue(3, day(3), "Original report for three."),
		fixtureIssue(5, day(5), "Original report for five."),
	)
	h.run(RunOptions{})

	h.source.put(
		fixtureIssue(3, t0.Add(24*time.Hour), "Rewritten report for three.", fixtureComment(31, "Now with a comment.")),
		fixtureIssue(7, t0.Add(48*time.Hour), "Brand new issue seven."),
	)
	h.now = t0.Add(96 * time.Hour)
	result := h.run(RunOptions{})

	if result.New != 1 || result.Updated != 1 || result.Redundant != 0 {
		t.Errorf("classified %d/%d/%d, want 1/1/0", result.New, result.Updated, result.Redundant)
	}
	if result.BeforeCount != 2 || result.AfterCount != 3 {
		t.Errorf("counts %d -> %d, want 2 -> 3", result.BeforeCount, result.AfterCount)
	}
	if result.Reconciled != 2 || result.DebtRepaired != 0 {
		t.Errorf("Reconciled = %d (debt %d), want 2 (0)", result.Reconciled, result.DebtRepaired)
	}
	if strings.Contains(h.points(), "Original report for three") {
		t.Error("stale chunk of issue #3 left in the index")
	}
	h.assertIndexExact()
}

func TestEngine_Run_ShrinkingIssueLeavesNoStaleChunks(t *testing.T) {
	h := newHarness(t, fixtureIssue(1, day(3), longBody, fixtureComment(11, longBody)))
	h.run(RunOptions{})

	before, err := h.index.CountIssue(context.Background(), 1001)
	if err != nil {
		t.Fatalf("CountIssue() error = %v", err)
	}
	if before < 4 {
		t.Fatalf("long issue produced %d chunks, want several", before)
	}

	h.source.put(fixtureIssue(1, t0.Add(time.Hour), "Closed as duplicate."))
	h.now = t0.Add(2 * time.Hour)
	h.run(RunOptions{})

	after, err := h.index.CountIssue(context.Background(), 1001)
	if err != nil {
		t.Fatalf("CountIssue() error = %v", err)
	}
	if after != 1 {
		t.Errorf("issue has %d chunks after shrinking, want 1", after)
	}
	h.assertIndexExact()
}

func TestEngine_Run_ResumesAfterFetchFailure(t *testing.T) {
	remote := []models.Issue{
		fixtureIssue(1, day(1), "One.", fixtureComment(11, "First comment.")),
		fixtureIssue(2, day(2), longBody),
		fixtureIssue(3, day(3), "Three."),
		fixtureIssue(4, day(4), "Four.", fixtureComment(41, "Another comment.")),
		fixtureIssue(5, day(5), "Five."),
	}

	h := newHarness(t, remote...)
	h.source.failAfter = 1

	_, err := h.engine().Run(context.Background(), h.repo, RunOptions{})
	if err == nil {
		t.Fatal("Run() error = nil, want fetch error")
	}
	if syncerr.IsLocalStore(err) {
		t.Errorf("fetch failure reported as local store error: %v", err)
	}

	ctx := context.Background()
	if n, _ := h.issues.Count(ctx, h.repo.ID); n != 2 {
		t.Errorf("after interrupted run store holds %d issues, want the 2 of the first page", n)
	}
	if entries, _ := h.logs.List(ctx, h.repo.ID, 10); len(entries) != 0 {
		t.Errorf("interrupted run logged %d entries, want 0", len(entries))
	}
	if n, _ := h.index.Count(ctx); n != 0 {
		t.Errorf("interrupted run indexed %d chunks, want 0", n)
	}

	h.source.failAfter = 0
	h.now = t0.Add(time.Hour)
	resumed := h.run(RunOptions{})
	if resumed.Since != nil {
		t.Errorf("resumed run Since = %v, want a full fetch", resumed.Since)
	}
	if resumed.New != 3 || resumed.Skipped != 2 {
		t.Errorf("resumed run new %d skipped %d, want 3 and 2", resumed.New, resumed.Skipped)
	}
	if resumed.Reconciled != 5 || resumed.DebtRepaired != 2 {
		t.Errorf("resumed run reconciled %d (debt %d), want 5 (2)", resumed.Reconciled, resumed.DebtRepaired)
	}
	h.assertIndexExact()

	clean := newHarness(t, remote...)
	clean.run(RunOptions{})

	if got, want := h.snapshot(), clean.snapshot(); got != want {
		t.Errorf("resumed store differs from uninterrupted run:\n%s\nwant:\n%s", got, want)
	}
	if got, want := h.points(), clean.points(); got != want {
		t.Errorf("resumed index differs from uninterrupted run")
	}
}

func TestEngine_Run_EditInStartSecondIsWritten(t *testing.T) {
	h := newHarness(t, fixtureIssue(1, day(1), "Original body."))
	h.now = t0.Add(300 * time.Millisecond)
	h.run(RunOptions{})

	// Edited after the run listed the repository, within the same second it started
	h.source.put(fixtureIssue(1, t0.Add(700*time.Millisecond), "Edited body."))

	h.now = t0.Add(time.Hour)
	second := h.run(RunOptions{})
	if second.Updated != 1 || second.Redundant != 0 {
		t.Errorf("second run updated %d redundant %d, want 1 and 0", second.Updated, second.Redundant)
	}

	issue, err := h.issues.Get(context.Background(), 1001)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if issue.Body != "Edited body." {
		t.Errorf("stored body = %q, want the edit", issue.Body)
	}
	h.assertIndexExact()
}

func TestEngine_Run_IssueRepeatedAcrossPagesCountsOnce(t *testing.T) {
	h := newHarness(t)
	edited := fixtureIssue(2, day(6), "Edited mid-fetch.")
	source := &scriptedSource{pages: [][]models.Issue{
		{fixtureIssue(3, day(3), "Three."), fixtureIssue(2, day(2), "Two.")},
		{edited, fixtureIssue(1, day(1), "One.")},
	}}
	engine := NewEngine(h.issues, h.logs, source, h.index, h.chunker, h.cfg, WithClock(func() time.Time { return h.now }))

	result, err := engine.Run(context.Background(), h.repo, RunOptions{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.New != 3 || result.Updated != 0 || result.AfterCount != 3 {
		t.Errorf("Run() new %d updated %d after %d, want 3, 0 and 3", result.New, result.Updated, result.AfterCount)
	}

	entries, err := h.logs.List(context.Background(), h.repo.ID, 10)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(entries) != 1 || entries[0].NewCount != 3 || entries[0].UpdatedCount != 0 {
		t.Errorf("logged entries = %+v, want one with 3 new and 0 updated", entries)
	}

	issue, err := h.issues.Get(context.Background(), edited.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if issue.Body != edited.Body {
		t.Errorf("stored body = %q, want the later copy %q", issue.Body, edited.Body)
	}
	h.assertIndexExact()
}

// cancellingStore cancels the run once the first page is committed.
type cancellingStore struct {
	storage.IssueStore
	cancel context.CancelFunc
}

func (s *cancellingStore) UpsertBatch(ctx context.Context, repoID int64, issues []models.Issue, watermark *time.Time) (storage.BatchResult, error) {
	result, err := s.IssueStore.UpsertBatch(ctx, repoID, issues, watermark)
	s.cancel()
	return result, err
}

func TestEngine_Run_CancelledBetweenPages(t *testing.T) {
	remote := []models.Issue{
		fixtureIssue(1, day(1), "One.", fixtureComment(11, "First comment.")),
		fixtureIssue(2, day(2), longBody),
		fixtureIssue(3, day(3), "Three."),
		fixtureIssue(4, day(4), "Four.", fixtureComment(41, "Another comment.")),
		fixtureIssue(5, day(5), "Five."),
	}
	h := newHarness(t, remote...)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := &cancellingStore{IssueStore: h.issues, cancel: cancel}
	engine := NewEngine(store, h.logs, h.source, h.index, h.chunker, h.cfg, WithClock(func() time.Time { return h.now }))

	_, err := engine.Run(ctx, h.repo, RunOptions{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}

	bg := context.Background()
	if n, _ := h.issues.Count(bg, h.repo.ID); n != 2 {
		t.Errorf("after cancelled run store holds %d issues, want the 2 of the first page", n)
	}
	if entries, _ := h.logs.List(bg, h.repo.ID, 10); len(entries) != 0 {
		t.Errorf("cancelled run logged %d entries, want 0", len(entries))
	}
	if n, _ := h.index.Count(bg); n != 0 {
		t.Errorf("cancelled run indexed %d chunks, want 0", n)
	}

	h.now = t0.Add(time.Hour)
	resumed := h.run(RunOptions{})
	if resumed.New != 3 || resumed.Skipped != 2 {
		t.Errorf("resumed run new %d skipped %d, want 3 and 2", resumed.New, resumed.Skipped)
	}
	if entries, _ := h.logs.List(bg, h.repo.ID, 10); len(entries) != 1 {
		t.Errorf("resumed run left %d log entries, want 1", len(entries))
	}
	h.assertIndexExact()

	clean := newHarness(t, remote...)
	clean.run(RunOptions{})

	if got, want := h.snapshot(), clean.snapshot(); got != want {
		t.Errorf("resumed store differs from uninterrupted run:\n%s\nwant:\n%s", got, want)
	}
	if got, want := h.points(), clean.points(); got != want {
		t.Errorf("resumed index differs from uninterrupted run")
	}
}

func TestEngine_Run_ReconcileFailureBecomesDebt(t *testing.T) {
	h := newHarness(t,
		fixtureIssue(1, day(1), "Healthy issue."),
		fixtureIssue(2, day(2), "Contains poison text."),
	)
	h.embedder.setFailOn("poison")

	first := h.run(RunOptions{})
	if first.Reconciled != 1 || first.ReconcileFailed != 1 {
		t.Errorf("first run reconciled %d failed %d, want 1 and 1", first.Reconciled, first.ReconcileFailed)
	}
	latest, err := h.logs.Latest(context.Background(), h.repo.ID)
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if latest.ReconcileFailed != 1 {
		t.Errorf("logged ReconcileFailed = %d, want 1", latest.ReconcileFailed)
	}

	h.embedder.setFailOn("")
	h.now = t0.Add(time.Hour)
	second := h.run(RunOptions{})
	if second.New+second.Updated != 0 {
		t.Errorf("second run fetched changes: %+v", second)
	}
	if second.Reconciled != 1 || second.DebtRepaired != 1 {
		t.Errorf("second run reconciled %d (debt %d), want 1 (1)", second.Reconciled, second.DebtRepaired)
	}
	h.assertIndexExact()
}

func TestEngine_Run_Watermark(t *testing.T) {
	override := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name          string
		buffer        time.Duration
		secondNow     time.Time
		opts          RunOptions
		wantSince     time.Time
		wantWatermark time.Time
	}{
		{
			name:          "since equals prior watermark",
			secondNow:     t0.Add(time.Hour),
			wantSince:     t0.Add(-time.Second),
			wantWatermark: t0.Add(time.Hour - time.Second),
		},
		{
			name:          "buffer moves since back",
			buffer:        time.Hour,
			secondNow:     t0.Add(time.Hour),
			wantSince:     t0.Add(-time.Hour - time.Second),
			wantWatermark: t0.Add(time.Hour - time.Second),
		},
		{
			name:          "clock behind keeps watermark",
			secondNow:     t0.Add(-time.Hour),
			wantSince:     t0.Add(-time.Second),
			wantWatermark: t0.Add(-time.Second),
		},
		{
			name:          "since override",
			secondNow:     t0.Add(time.Hour),
			opts:          RunOptions{Since: &override},
			wantSince:     override,
			wantWatermark: t0.Add(time.Hour - time.Second),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, fixtureIssue(1, day(1), "One."))
			h.cfg.WatermarkBuffer = tt.buffer
			h.run(RunOptions{})

			h.now = tt.secondNow
			result := h.run(tt.opts)

			since := h.source.lastRequest().Since
			if since == nil || !since.Equal(tt.wantSince) {
				t.Errorf("fetch since = %v, want %v", since, tt.wantSince)
			}
			if !result.Watermark.Equal(tt.wantWatermark) {
				t.Errorf("Watermark = %v, want %v", result.Watermark, tt.wantWatermark)
			}

			latest, err := h.logs.LatestWatermark(context.Background(), h.repo.ID)
			if err != nil {
				t.Fatalf("LatestWatermark() error = %v", err)
			}
			if first := t0.Add(-time.Second); latest == nil || latest.Before(first) {
				t.Errorf("LatestWatermark() = %v, went below the first watermark %v", latest, first)
			}
		})
	}
}

func TestEngine_Run_StoreErrorAbortsRun(t *testing.T) {
	ctrl := gomock.NewController(t)
	issues := mocks.NewMockIssueStore(ctrl)
	logs := mocks.NewMockSyncLogStore(ctrl)

	source := newFakeSource(
		fixtureIssue(1, day(1), "One."),
		fixtureIssue(2, day(2), "Two."),
		fixtureIssue(3, day(3), "Three."),
		fixtureIssue(4, day(4), "Four."),
		fixtureIssue(5, day(5), "Five."),
	)

	logs.EXPECT().LatestWatermark(gomock.Any(), int64(1)).Return(nil, nil)
	logs.EXPECT().Latest(gomock.Any(), int64(1)).Return(nil, storage.ErrNotFound)
	issues.EXPECT().KnownNumbers(gomock.Any(), int64(1)).Return(map[int]struct{}{}, nil)
	issues.EXPECT().KnownFingerprints(gomock.Any(), int64(1)).Return(map[string]struct{}{}, nil)
	issues.EXPECT().UpsertBatch(gomock.Any(), int64(1), gomock.Len(1), nil).
		Return(storage.BatchResult{}, syncerr.Store("upsert issue #5", errors.New("disk I/O error")))
	// No Versions, no Append: the run stops at the failed page

	splitter, err := indexer.NewSplitter(indexer.DefaultChunkSize, indexer.DefaultChunkOverlap)
	if err != nil {
		t.Fatalf("NewSplitter() error = %v", err)
	}
	engine := NewEngine(issues, logs, source,
		indexer.NewIndex(newMemStore(), &fakeEmbedder{}, testCollection, "v1"),
		indexer.NewIssueChunker(splitter, indexer.DefaultIssueContextChars),
		Config{PageSize: 1, PageBuffer: 1},
		WithClock(func() time.Time { return t0 }),
	)

	result, err := engine.Run(context.Background(), Repo{ID: 1, Name: models.RepoName{Owner: "golang", Name: "go"}}, RunOptions{})
	if !syncerr.IsLocalStore(err) {
		t.Fatalf("Run() error = %v, want local store error", err)
	}
	if result.Pages != 1 {
		t.Errorf("Pages = %d, want 1", result.Pages)
	}
}

func TestEngine_Reconcile_IndexVersionChange(t *testing.T) {
	h := newHarness(t,
		fixtureIssue(1, day(1), "One.", fixtureComment(11, "A comment.")),
		fixtureIssue(2, day(2), longBody),
	)
	h.run(RunOptions{})
	pointsBefore := h.points()

	unchanged, err := h.engine().Reconcile(context.Background(), h.repo)
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if unchanged.Reconciled != 0 {
		t.Errorf("Reconcile() with a current index reconciled %d issues, want 0", unchanged.Reconciled)
	}

	h.index = indexer.NewIndex(h.store, h.embedder, testCollection, "v2")
	repaired, err := h.engine().Reconcile(context.Background(), h.repo)
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if repaired.Reconciled != 2 || repaired.DebtRepaired != 2 {
		t.Errorf("Reconcile() reconciled %d (debt %d), want 2 (2)", repaired.Reconciled, repaired.DebtRepaired)
	}
	if repaired.AfterCount != 2 {
		t.Errorf("AfterCount = %d, want 2", repaired.AfterCount)
	}
	h.assertIndexExact()

	if got := h.points(); got != pointsBefore {
		t.Error("rebuilding with identical chunking changed the chunk set")
	}
	if entries, _ := h.logs.List(context.Background(), h.repo.ID, 10); len(entries) != 1 {
		t.Errorf("Reconcile() logged entries: got %d, want 1", len(entries))
	}
}
