package indexer

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/mock/gomock"

	"issuesync/internal/vectorstore"
	"issuesync/internal/vectorstore/mocks"
)

type fakeEmbedder struct {
	calls [][]string
	err   error
}

func (f *fakeEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	f.calls = append(f.calls, texts)
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = []float32{float32(len(text)), 1}
	}
	return out, nil
}

func TestIndex_Collections(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockVectorStore(ctrl)
	ix := NewIndex(store, &fakeEmbedder{}, "issues_golang_go", "v1")

	if got := ix.StateCollection(); got != "issues_golang_go_state" {
		t.Errorf("StateCollection() = %s", got)
	}

	gomock.InOrder(
		store.EXPECT().EnsureCollection(gomock.Any(), "issues_golang_go", 768).Return(nil),
		store.EXPECT().EnsureCollection(gomock.Any(), "issues_golang_go_state", 1).Return(nil),
	)
	if err := ix.EnsureCollections(context.Background(), 768); err != nil {
		t.Fatalf("EnsureCollections() error = %v", err)
	}
}

func TestIndex_DeleteIssue(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockVectorStore(ctrl)
	ix := NewIndex(store, &fakeEmbedder{}, "issues", "v1")

	gomock.InOrder(
		store.EXPECT().Delete(gomock.Any(), "issues_state", []string{statePointID(7)}).Return(nil),
		store.EXPECT().DeleteByFilter(gomock.Any(), "issues", map[string]any{"issue_id": int64(7)}).Return(nil),
	)
	if err := ix.DeleteIssue(context.Background(), 7); err != nil {
		t.Fatalf("DeleteIssue() error = %v", err)
	}
}

func TestIndex_DeleteIssue_StateFailureKeepsChunks(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockVectorStore(ctrl)
	ix := NewIndex(store, &fakeEmbedder{}, "issues", "v1")

	store.EXPECT().Delete(gomock.Any(), "issues_state", gomock.Any()).Return(errors.New("unavailable"))
	if err := ix.DeleteIssue(context.Background(), 7); err == nil {
		t.Fatal("DeleteIssue() error = nil, want error")
	}
}

func TestIndex_Insert(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockVectorStore(ctrl)
	embedder := &fakeEmbedder{}
	ix := NewIndex(store, embedder, "issues", "v1")
	ix.batchSize = 2

	created := time.Date(2024, 1, 10, 8, 0, 0, 0, time.UTC)
	chunks := []Chunk{
		{ID: "1_issue_0", IssueID: 1, IssueNumber: 10, Kind: KindIssue, SourceID: 1, Total: 1, Text: "a", CreatedAt: created, UpdatedAt: created},
		{ID: "5_comment_0", IssueID: 1, IssueNumber: 10, Kind: KindComment, SourceID: 5, Total: 2, Text: "bb", Author: "bob", CreatedAt: created, UpdatedAt: created},
		{ID: "5_comment_1", IssueID: 1, IssueNumber: 10, Kind: KindComment, SourceID: 5, Index: 1, Total: 2, Text: "ccc", CreatedAt: created, UpdatedAt: created},
	}

	var upserted []vectorstore.Point
	store.EXPECT().Upsert(gomock.Any(), "issues", gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, points []vectorstore.Point) error {
			upserted = append(upserted, points...)
			return nil
		}).Times(2)

	if err := ix.Insert(context.Background(), chunks); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	if len(embedder.calls) != 2 || len(embedder.calls[0]) != 2 || len(embedder.calls[1]) != 1 {
		t.Errorf("embedder batches = %v, want [2 1]", embedder.calls)
	}
	if len(upserted) != 3 {
		t.Fatalf("upserted %d points, want 3", len(upserted))
	}

	p := upserted[1]
	if p.ID != ChunkPointID("5_comment_0") {
		t.Errorf("point ID = %s, want %s", p.ID, ChunkPointID("5_comment_0"))
	}
	if len(p.Vec) != 2 || p.Vec[0] != 2 {
		t.Errorf("point vector = %v", p.Vec)
	}
	wantMeta := map[string]any{
		"chunk_id":     "5_comment_0",
		"issue_id":     int64(1),
		"issue_number": int64(10),
		"kind":         "comment",
		"source_id":    int64(5),
		"chunk_index":  int64(0),
		"total_chunks": int64(2),
		"author":       "bob",
		"created_at":   "2024-01-10 08:00:00",
		"text":         "bb",
	}
	for key, want := range wantMeta {
		if got := p.Meta[key]; got != want {
			t.Errorf("Meta[%s] = %v (%T), want %v (%T)", key, got, got, want, want)
		}
	}
}

func TestIndex_Insert_EmbeddingFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockVectorStore(ctrl)
	ix := NewIndex(store, &fakeEmbedder{err: errors.New("model not loaded")}, "issues", "v1")

	// No Upsert expected
	if err := ix.Insert(context.Background(), []Chunk{{ID: "1_issue_0", Text: "a"}}); err == nil {
		t.Fatal("Insert() error = nil, want error")
	}
}

func TestIndex_MarkIndexedAndVersions(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockVectorStore(ctrl)
	ix := NewIndex(store, &fakeEmbedder{}, "issues", "v1")
	updated := time.Date(2024, 1, 12, 9, 30, 0, 0, time.UTC)

	var saved vectorstore.Point
	store.EXPECT().Upsert(gomock.Any(), "issues_state", gomock.Len(1)).
		DoAndReturn(func(_ context.Context, _ string, points []vectorstore.Point) error {
			saved = points[0]
			return nil
		})
	if err := ix.MarkIndexed(context.Background(), 3, updated, 4); err != nil {
		t.Fatalf("MarkIndexed() error = %v", err)
	}
	if saved.ID != statePointID(3) {
		t.Errorf("state point ID = %s", saved.ID)
	}

	store.EXPECT().Get(gomock.Any(), "issues_state", []string{statePointID(3), statePointID(4)}).
		Return([]vectorstore.Point{
			saved,
			{ID: "broken", Meta: map[string]any{"updated_at": "never"}},
		}, nil)

	states, err := ix.IndexedVersions(context.Background(), []int64{3, 4})
	if err != nil {
		t.Fatalf("IndexedVersions() error = %v", err)
	}
	if len(states) != 1 {
		t.Fatalf("len(states) = %d, want 1", len(states))
	}
	state := states[3]
	if !state.Matches(updated, "v1") {
		t.Errorf("state %+v does not match %s/v1", state, updated)
	}
	if state.Matches(updated, "v2") {
		t.Error("state matches a different index version")
	}
	if state.ChunkCount != 4 {
		t.Errorf("ChunkCount = %d, want 4", state.ChunkCount)
	}
}

func TestIndex_CountAndSearch(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockVectorStore(ctrl)
	embedder := &fakeEmbedder{}
	ix := NewIndex(store, embedder, "issues", "v1")
	ctx := context.Background()

	store.EXPECT().Count(gomock.Any(), "issues", nil).Return(12, nil)
	store.EXPECT().Count(gomock.Any(), "issues", map[string]any{"issue_id": int64(3)}).Return(4, nil)

	if n, err := ix.Count(ctx); err != nil || n != 12 {
		t.Errorf("Count() = %d, %v, want 12", n, err)
	}
	if n, err := ix.CountIssue(ctx, 3); err != nil || n != 4 {
		t.Errorf("CountIssue() = %d, %v, want 4", n, err)
	}

	filters := map[string]any{"state": "open"}
	store.EXPECT().Search(gomock.Any(), "issues", []float32{5, 1}, 3, filters).
		Return([]vectorstore.SearchResult{{PointID: "p", Score: 0.9}}, nil)

	results, err := ix.Search(ctx, "crash", 3, filters)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 1 || results[0].PointID != "p" {
		t.Errorf("Search() = %+v", results)
	}
}

func TestMetaInt64(t *testing.T) {
	meta := map[string]any{"a": int64(1), "b": 2, "c": float64(3), "d": "4"}
	tests := []struct {
		key    string
		want   int64
		wantOK bool
	}{
		{key: "a", want: 1, wantOK: true},
		{key: "b", want: 2, wantOK: true},
		{key: "c", want: 3, wantOK: true},
		{key: "d", wantOK: false},
		{key: "missing", wantOK: false},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got, ok := MetaInt64(meta, tt.key)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("MetaInt64(%s) = %d, %v, want %d, %v", tt.key, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}
