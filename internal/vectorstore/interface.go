package vectorstore

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_vector_store.go -package=mocks issuesync/internal/vectorstore VectorStore

import "context"

// Point represents a vector point with metadata.
type Point struct {
	ID   string
	Vec  []float32
	Meta map[string]any
}

// SearchResult represents a search result from vector search.
type SearchResult struct {
	PointID string
	Score   float32
	Meta    map[string]any
}

// VectorStore defines the interface for vector storage operations.
//
// Filters are exact-match conditions on payload keys, combined with AND.
// Integer values match integer payloads, everything else matches as a keyword.
type VectorStore interface {
	// Upsert inserts or updates points in the collection and waits for the write to be applied.
	Upsert(ctx context.Context, collection string, points []Point) error

	// Search performs a similarity search with optional filters.
	Search(ctx context.Context, collection string, query []float32, k int, filters map[string]any) ([]SearchResult, error)

	// Delete removes points by their IDs.
	Delete(ctx context.Context, collection string, ids []string) error

	// DeleteByFilter removes every point matching filters. Empty filters are rejected.
	DeleteByFilter(ctx context.Context, collection string, filters map[string]any) error

	// Count returns the exact number of points matching filters (all points if filters is empty).
	Count(ctx context.Context, collection string, filters map[string]any) (int, error)

	// Get returns the points with the given IDs. Missing IDs are omitted; vectors are not loaded.
	Get(ctx context.Context, collection string, ids []string) ([]Point, error)

	// CollectionExists checks if a collection exists.
	CollectionExists(ctx context.Context, collection string) (bool, error)

	// EnsureCollection creates the collection if missing and validates its vector size otherwise.
	EnsureCollection(ctx context.Context, collection string, vectorSize int) error
}
