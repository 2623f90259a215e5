package indexer

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"issuesync/internal/contextutil"
	"issuesync/internal/models"
	"issuesync/internal/vectorstore"
)

const (
	// DefaultEmbedBatchSize is how many chunks are embedded per request.
	DefaultEmbedBatchSize = 32
	stateBatchSize        = 256
	stateCollectionSuffix = "_state"
)

// Embedder turns texts into vectors, one per text, in order.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Index keeps the chunks of each issue in a vector collection and the indexed version of
// each issue in a companion state collection.
//
// Replacing an issue is DeleteIssue followed by Insert and MarkIndexed. Writes wait for Qdrant
// to apply them, but a reader can still observe the issue with no chunks between the delete
// and the insert.
type Index struct {
	store      vectorstore.VectorStore
	embedder   Embedder
	collection string
	version    string
	batchSize  int
}

// NewIndex creates an Index over collection. version is stored with every issue state.
func NewIndex(store vectorstore.VectorStore, embedder Embedder, collection, version string) *Index {
	return &Index{
		store:      store,
		embedder:   embedder,
		collection: collection,
		version:    version,
		batchSize:  DefaultEmbedBatchSize,
	}
}

// Collection returns the name of the chunk collection.
func (ix *Index) Collection() string {
	return ix.collection
}

// StateCollection returns the name of the state collection.
func (ix *Index) StateCollection() string {
	return ix.collection + stateCollectionSuffix
}

// Version returns the index version new states are written with.
func (ix *Index) Version() string {
	return ix.version
}

// EnsureCollections creates both collections if they do not exist.
func (ix *Index) EnsureCollections(ctx context.Context, vectorSize int) error {
	if err := ix.store.EnsureCollection(ctx, ix.collection, vectorSize); err != nil {
		return fmt.Errorf("chunk collection: %w", err)
	}
	// State points carry a constant one-dimensional vector
	if err := ix.store.EnsureCollection(ctx, ix.StateCollection(), 1); err != nil {
		return fmt.Errorf("state collection: %w", err)
	}
	return nil
}

// DeleteIssue removes the issue's state and then every chunk tagged with its id.
// The state goes first so an interrupted delete leaves the issue marked for repair.
func (ix *Index) DeleteIssue(ctx context.Context, issueID int64) error {
	if err := ix.store.Delete(ctx, ix.StateCollection(), []string{statePointID(issueID)}); err != nil {
		return fmt.Errorf("failed to delete index state of issue %d: %w", issueID, err)
	}
	if err := ix.store.DeleteByFilter(ctx, ix.collection, map[string]any{"issue_id": issueID}); err != nil {
		return fmt.Errorf("failed to delete chunks of issue %d: %w", issueID, err)
	}
	return nil
}

// Insert embeds chunks in batches and upserts them under deterministic point ids.
func (ix *Index) Insert(ctx context.Context, chunks []Chunk) error {
	logger := contextutil.LoggerFromContext(ctx)

	for start := 0; start < len(chunks); start += ix.batchSize {
		end := min(start+ix.batchSize, len(chunks))
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, chunk := range batch {
			texts[i] = chunk.Text
		}

		embeddings, err := ix.embedder.EmbedTexts(ctx, texts)
		if err != nil {
			return fmt.Errorf("failed to generate embeddings: %w", err)
		}
		if len(embeddings) != len(batch) {
			return fmt.Errorf("embedding count mismatch: expected %d, got %d", len(batch), len(embeddings))
		}

		points := make([]vectorstore.Point, len(batch))
		for i, chunk := range batch {
			points[i] = vectorstore.Point{
				ID:   ChunkPointID(chunk.ID),
				Vec:  embeddings[i],
				Meta: chunkPayload(chunk),
			}
		}

		if err := ix.store.Upsert(ctx, ix.collection, points); err != nil {
			return fmt.Errorf("failed to upsert vectors: %w", err)
		}
		logger.DebugContext(ctx, "inserted chunk batch", "collection", ix.collection, "count", len(batch))
	}
	return nil
}

// MarkIndexed records that the index holds chunkCount chunks of the issue at updatedAt.
func (ix *Index) MarkIndexed(ctx context.Context, issueID int64, updatedAt time.Time, chunkCount int) error {
	point := vectorstore.Point{
		ID:  statePointID(issueID),
		Vec: []float32{1},
		Meta: map[string]any{
			"issue_id":      issueID,
			"updated_at":    models.FormatTimestamp(updatedAt),
			"chunk_count":   int64(chunkCount),
			"index_version": ix.version,
		},
	}
	if err := ix.store.Upsert(ctx, ix.StateCollection(), []vectorstore.Point{point}); err != nil {
		return fmt.Errorf("failed to record index state of issue %d: %w", issueID, err)
	}
	return nil
}

// IndexedVersions returns the stored state of each given issue. Issues never indexed are absent.
func (ix *Index) IndexedVersions(ctx context.Context, issueIDs []int64) (map[int64]IndexState, error) {
	states := make(map[int64]IndexState, len(issueIDs))
	for start := 0; start < len(issueIDs); start += stateBatchSize {
		end := min(start+stateBatchSize, len(issueIDs))

		ids := make([]string, 0, end-start)
		for _, id := range issueIDs[start:end] {
			ids = append(ids, statePointID(id))
		}

		points, err := ix.store.Get(ctx, ix.StateCollection(), ids)
		if err != nil {
			return nil, fmt.Errorf("failed to load index states: %w", err)
		}
		for _, p := range points {
			state, err := parseState(p.Meta)
			if err != nil {
				// Unreadable state is the same as no state: the issue gets rebuilt
				contextutil.LoggerFromContext(ctx).WarnContext(ctx, "ignoring malformed index state", "point_id", p.ID, "error", err)
				continue
			}
			states[state.IssueID] = state
		}
	}
	return states, nil
}

// Count returns the total number of chunks.
func (ix *Index) Count(ctx context.Context) (int, error) {
	return ix.store.Count(ctx, ix.collection, nil)
}

// CountIssue returns the number of chunks of one issue.
func (ix *Index) CountIssue(ctx context.Context, issueID int64) (int, error) {
	return ix.store.Count(ctx, ix.collection, map[string]any{"issue_id": issueID})
}

// Search embeds query and returns the k nearest chunks matching filters.
func (ix *Index) Search(ctx context.Context, query string, k int, filters map[string]any) ([]vectorstore.SearchResult, error) {
	embeddings, err := ix.embedder.EmbedTexts(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(embeddings) != 1 {
		return nil, fmt.Errorf("expected 1 query embedding, got %d", len(embeddings))
	}
	return ix.store.Search(ctx, ix.collection, embeddings[0], k, filters)
}

// ChunkPointID maps a chunk id to its stable point id.
func ChunkPointID(chunkID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(chunkID)).String()
}

func statePointID(issueID int64) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("issue-state-"+strconv.FormatInt(issueID, 10))).String()
}

func chunkPayload(chunk Chunk) map[string]any {
	return map[string]any{
		"chunk_id":     chunk.ID,
		"issue_id":     chunk.IssueID,
		"issue_number": int64(chunk.IssueNumber),
		"kind":         string(chunk.Kind),
		"source_id":    chunk.SourceID,
		"chunk_index":  int64(chunk.Index),
		"total_chunks": int64(chunk.Total),
		"title":        chunk.Title,
		"url":          chunk.URL,
		"state":        chunk.State,
		"author":       chunk.Author,
		"created_at":   models.FormatTimestamp(chunk.CreatedAt),
		"updated_at":   models.FormatTimestamp(chunk.UpdatedAt),
		"text":         chunk.Text,
	}
}

func parseState(meta map[string]any) (IndexState, error) {
	issueID, ok := MetaInt64(meta, "issue_id")
	if !ok {
		return IndexState{}, fmt.Errorf("missing issue_id")
	}
	raw, _ := meta["updated_at"].(string)
	updatedAt, err := models.ParseTimestamp(raw)
	if err != nil {
		return IndexState{}, err
	}
	count, _ := MetaInt64(meta, "chunk_count")
	version, _ := meta["index_version"].(string)

	return IndexState{
		IssueID:    issueID,
		UpdatedAt:  updatedAt,
		ChunkCount: int(count),
		Version:    version,
	}, nil
}

// MetaInt64 reads an integer payload value whatever numeric type it decoded as.
func MetaInt64(meta map[string]any, key string) (int64, bool) {
	switch v := meta[key].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	default:
		return 0, false
	}
}
