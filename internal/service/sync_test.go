package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/mock/gomock"

	"issuesync/internal/github"
	"issuesync/internal/indexer"
	"issuesync/internal/llm"
	"issuesync/internal/models"
	"issuesync/internal/rag"
	"issuesync/internal/syncer"
	"issuesync/internal/vectorstore"
	"issuesync/internal/vectorstore/mocks"
)

func init() {
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

type fakeEmbedder struct{}

func (fakeEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = []float32{float32(len(text)), 1}
	}
	return out, nil
}

// pageSource sends its issues as a single page.
type pageSource struct {
	mu       sync.Mutex
	issues   []models.Issue
	requests int
}

func (s *pageSource) Fetch(ctx context.Context, req github.FetchRequest, pages chan<- github.Page) error {
	defer close(pages)
	s.mu.Lock()
	s.requests++
	s.mu.Unlock()

	page := github.Page{Number: 1}
	for _, issue := range s.issues {
		if _, ok := req.KnownFingerprints[issue.Fingerprint()]; ok {
			page.Skipped++
			continue
		}
		page.New++
		page.Issues = append(page.Issues, issue)
	}
	select {
	case pages <- page:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *pageSource) LastRate() *github.RateSnapshot {
	return nil
}

type fakeGenerator struct {
	answer string
}

func (g fakeGenerator) ChatWithMessages(context.Context, []llm.Message, llm.ChatParams) (string, error) {
	return g.answer, nil
}

func (g fakeGenerator) StreamChat(_ context.Context, _ []llm.Message, _ llm.ChatParams, callback func(string) error) error {
	return callback(g.answer)
}

func newTestManager(t *testing.T, store vectorstore.VectorStore, source syncer.Source) (*Manager, string) {
	t.Helper()
	dataDir := t.TempDir()
	m, err := NewManager(Options{
		DataDir:          dataDir,
		CollectionPrefix: "test_",
		VectorSize:       2,
		EmbeddingModel:   "test-embed",
		Chunk:            indexer.ChunkParams{Size: 200, Overlap: 20, ContextChars: 40},
		Engine:           syncer.Config{IncludeComments: true},
	}, Deps{
		VectorStore: store,
		Embedder:    fakeEmbedder{},
		Source:      source,
		Generator:   fakeGenerator{answer: "Clearing the cache fixes it, see #12."},
	})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	t.Cleanup(func() {
		if err := m.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	})
	return m, dataDir
}

func TestNewManager_InvalidChunkParams(t *testing.T) {
	_, err := NewManager(Options{Chunk: indexer.ChunkParams{Size: 10, Overlap: 10}}, Deps{})
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("NewManager() error = %v, want ErrInvalidInput", err)
	}
}

func TestManager_InvalidRepository(t *testing.T) {
	ctrl := gomock.NewController(t)
	m, _ := newTestManager(t, mocks.NewMockVectorStore(ctrl), &pageSource{})
	ctx := context.Background()

	if _, err := m.Sync(ctx, "not-a-repo", SyncOptions{}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Sync() error = %v, want ErrInvalidInput", err)
	}
	if _, err := m.Status(ctx, "a/b/c"); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Status() error = %v, want ErrInvalidInput", err)
	}
	if _, err := m.Logs(ctx, "golang/go", -1); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Logs() error = %v, want ErrInvalidInput", err)
	}
}

func TestManager_UnsyncedRepository(t *testing.T) {
	ctrl := gomock.NewController(t)
	m, dataDir := newTestManager(t, mocks.NewMockVectorStore(ctrl), &pageSource{})
	ctx := context.Background()

	if _, err := m.Status(ctx, "golang/go"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Status() error = %v, want ErrNotFound", err)
	}
	if _, err := m.Ask(ctx, "golang/go", rag.AskRequest{Question: "why?"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Ask() error = %v, want ErrNotFound", err)
	}
	if _, err := os.Stat(filepath.Join(dataDir, "sqlite", "golang_go.db")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("read-only calls should not create a database, stat error = %v", err)
	}
}

func TestManager_SyncInProgress(t *testing.T) {
	ctrl := gomock.NewController(t)
	m, _ := newTestManager(t, mocks.NewMockVectorStore(ctrl), &pageSource{})

	held := &sync.Mutex{}
	held.Lock()
	m.locks["golang_go"] = held

	for _, repo := range []string{"golang/go", "https://github.com/golang/go.git"} {
		if _, err := m.Sync(context.Background(), repo, SyncOptions{}); !errors.Is(err, ErrSyncInProgress) {
			t.Errorf("Sync(%q) error = %v, want ErrSyncInProgress", repo, err)
		}
	}
	if _, err := m.Reconcile(context.Background(), "golang/go"); !errors.Is(err, ErrSyncInProgress) {
		t.Errorf("Reconcile() error = %v, want ErrSyncInProgress", err)
	}
}

func TestManager_SyncStatusLogsAsk(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockVectorStore(ctrl)

	updated := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	source := &pageSource{issues: []models.Issue{
		{
			ID: 5012, Number: 12, Title: "cmd/go: stale build cache", Body: "Builds reuse stale objects.", State: "open",
			URL: "https://github.com/golang/go/issues/12", CreatedAt: updated.Add(-time.Hour), UpdatedAt: updated,
			CommentsCount: 1,
			Comments: []models.Comment{
				{ID: 9001, Author: models.StringPtr("rsc"), Body: "go clean -cache works around it.", CreatedAt: updated, UpdatedAt: updated},
			},
		},
		{
			ID: 5013, Number: 13, Title: "x/net: flaky test", Body: "TestDial times out.", State: "closed",
			URL: "https://github.com/golang/go/issues/13", CreatedAt: updated.Add(-time.Hour), UpdatedAt: updated.Add(-time.Minute),
		},
	}}
	m, dataDir := newTestManager(t, store, source)
	ctx := context.Background()

	store.EXPECT().EnsureCollection(gomock.Any(), "test_golang_go", 2).Return(nil)
	store.EXPECT().EnsureCollection(gomock.Any(), "test_golang_go_state", 1).Return(nil)
	store.EXPECT().Get(gomock.Any(), "test_golang_go_state", gomock.Len(2)).Return(nil, nil)
	store.EXPECT().Delete(gomock.Any(), "test_golang_go_state", gomock.Len(1)).Return(nil).Times(2)
	store.EXPECT().DeleteByFilter(gomock.Any(), "test_golang_go", gomock.Any()).Return(nil).Times(2)
	// Issue 12 has a body chunk and a comment chunk; issue 13 only a body chunk
	store.EXPECT().Upsert(gomock.Any(), "test_golang_go", gomock.Len(2)).Return(nil)
	store.EXPECT().Upsert(gomock.Any(), "test_golang_go", gomock.Len(1)).Return(nil)
	store.EXPECT().Upsert(gomock.Any(), "test_golang_go_state", gomock.Len(1)).Return(nil).Times(2)

	result, err := m.Sync(ctx, "https://github.com/golang/go", SyncOptions{})
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if result.New != 2 || result.Reconciled != 2 || result.AfterCount != 2 {
		t.Errorf("Sync() = %+v, want 2 new, 2 reconciled", result)
	}
	if _, err := os.Stat(filepath.Join(dataDir, "sqlite", "golang_go.db")); err != nil {
		t.Errorf("expected database file: %v", err)
	}

	store.EXPECT().Count(gomock.Any(), "test_golang_go", gomock.Nil()).Return(3, nil)

	status, err := m.Status(ctx, "golang/go.git")
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if status.Repository != "golang/go" || status.Issues != 2 || status.Comments != 1 || status.Chunks != 3 {
		t.Errorf("Status() = %+v", status)
	}
	if status.Collection != "test_golang_go" || status.LatestUpdate == nil || !status.LatestUpdate.Equal(updated) {
		t.Errorf("Status() collection %q, latest update %v", status.Collection, status.LatestUpdate)
	}
	if status.LastSync == nil || status.LastSync.New != 2 || status.LastSync.Reconciled != 2 {
		t.Errorf("Status() last sync = %+v", status.LastSync)
	}
	if len(status.MostCommented) == 0 || status.MostCommented[0].Number != 12 {
		t.Errorf("Status() most commented = %+v", status.MostCommented)
	}

	logs, err := m.Logs(ctx, "golang/go", 0)
	if err != nil {
		t.Fatalf("Logs() error = %v", err)
	}
	if len(logs) != 1 || logs[0].AfterCount != 2 {
		t.Errorf("Logs() = %+v, want one entry", logs)
	}

	store.EXPECT().Search(gomock.Any(), "test_golang_go", gomock.Any(), gomock.Any(), map[string]any{"state": "open"}).
		Return([]vectorstore.SearchResult{{
			PointID: "p1",
			Score:   0.9,
			Meta: map[string]any{
				"chunk_id": "5012_issue_0", "issue_number": int64(12), "title": "cmd/go: stale build cache",
				"kind": "issue", "text": "Builds reuse stale objects.",
			},
		}}, nil)

	resp, err := m.Ask(ctx, "golang/go", rag.AskRequest{Question: "How do I fix a stale build cache?", State: "open"})
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if !strings.Contains(resp.Answer, "#12") || len(resp.References) != 1 || !resp.References[0].Cited {
		t.Errorf("Ask() = %+v", resp)
	}

	if _, err := m.Ask(ctx, "golang/go", rag.AskRequest{Question: "x", State: "pending"}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Ask() with bad state error = %v, want ErrInvalidInput", err)
	}
	if _, err := m.Ask(ctx, "golang/go", rag.AskRequest{Question: "  "}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Ask() with blank question error = %v, want ErrInvalidInput", err)
	}
}
