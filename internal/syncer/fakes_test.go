package syncer

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"issuesync/internal/github"
	"issuesync/internal/models"
	"issuesync/internal/vectorstore"
)

// memStore is an in-memory vectorstore.VectorStore with equality filters.
type memStore struct {
	mu          sync.Mutex
	collections map[string]map[string]vectorstore.Point
}

func newMemStore() *memStore {
	return &memStore{collections: make(map[string]map[string]vectorstore.Point)}
}

func (s *memStore) collection(name string) map[string]vectorstore.Point {
	c, ok := s.collections[name]
	if !ok {
		c = make(map[string]vectorstore.Point)
		s.collections[name] = c
	}
	return c
}

func (s *memStore) Upsert(_ context.Context, collection string, points []vectorstore.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.collection(collection)
	for _, p := range points {
		c[p.ID] = p
	}
	return nil
}

func (s *memStore) Search(_ context.Context, collection string, _ []float32, k int, filters map[string]any) ([]vectorstore.SearchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var results []vectorstore.SearchResult
	for _, p := range s.sorted(collection) {
		if matchesFilters(p.Meta, filters) {
			results = append(results, vectorstore.SearchResult{PointID: p.ID, Score: 1, Meta: p.Meta})
		}
		if len(results) == k {
			break
		}
	}
	return results, nil
}

func (s *memStore) Delete(_ context.Context, collection string, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.collection(collection)
	for _, id := range ids {
		delete(c, id)
	}
	return nil
}

func (s *memStore) DeleteByFilter(_ context.Context, collection string, filters map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.collection(collection)
	for id, p := range c {
		if matchesFilters(p.Meta, filters) {
			delete(c, id)
		}
	}
	return nil
}

func (s *memStore) Count(_ context.Context, collection string, filters map[string]any) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, p := range s.collection(collection) {
		if matchesFilters(p.Meta, filters) {
			n++
		}
	}
	return n, nil
}

func (s *memStore) Get(_ context.Context, collection string, ids []string) ([]vectorstore.Point, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.collection(collection)
	var points []vectorstore.Point
	for _, id := range ids {
		if p, ok := c[id]; ok {
			points = append(points, p)
		}
	}
	return points, nil
}

func (s *memStore) CollectionExists(_ context.Context, collection string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.collections[collection]
	return ok, nil
}

func (s *memStore) EnsureCollection(_ context.Context, collection string, _ int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collection(collection)
	return nil
}

// points returns a snapshot of a collection ordered by point id.
func (s *memStore) points(collection string) []vectorstore.Point {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sorted(collection)
}

func (s *memStore) sorted(collection string) []vectorstore.Point {
	c := s.collection(collection)
	points := make([]vectorstore.Point, 0, len(c))
	for _, p := range c {
		points = append(points, p)
	}
	sort.Slice(points, func(i, j int) bool { return points[i].ID < points[j].ID })
	return points
}

func matchesFilters(meta, filters map[string]any) bool {
	for key, want := range filters {
		if fmt.Sprint(meta[key]) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}

// fakeEmbedder fails any batch containing failOn.
type fakeEmbedder struct {
	mu     sync.Mutex
	failOn string
}

func (f *fakeEmbedder) setFailOn(s string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failOn = s
}

func (f *fakeEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if f.failOn != "" && strings.Contains(text, f.failOn) {
			return nil, fmt.Errorf("embedding service unavailable")
		}
		out[i] = []float32{float32(len(text)), 1}
	}
	return out, nil
}

// fakeSource serves a repository's issues the way the GitHub fetcher does:
// updated_at at or after since, newest first, known fingerprints skipped.
type fakeSource struct {
	mu        sync.Mutex
	issues    map[int]models.Issue
	requests  []github.FetchRequest
	failAfter int // pages sent before failing, 0 never fails
	rate      *github.RateSnapshot
}

func newFakeSource(issues ...models.Issue) *fakeSource {
	s := &fakeSource{issues: make(map[int]models.Issue)}
	s.put(issues...)
	return s
}

func (s *fakeSource) put(issues ...models.Issue) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, issue := range issues {
		s.issues[issue.Number] = issue
	}
}

func (s *fakeSource) lastRequest() github.FetchRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[len(s.requests)-1]
}

func (s *fakeSource) Fetch(ctx context.Context, req github.FetchRequest, pages chan<- github.Page) error {
	defer close(pages)

	s.mu.Lock()
	s.requests = append(s.requests, req)
	var matching []models.Issue
	for _, issue := range s.issues {
		if req.Since == nil || !issue.UpdatedAt.Before(*req.Since) {
			matching = append(matching, issue)
		}
	}
	failAfter := s.failAfter
	s.mu.Unlock()

	sort.Slice(matching, func(i, j int) bool {
		if matching[i].UpdatedAt.Equal(matching[j].UpdatedAt) {
			return matching[i].Number > matching[j].Number
		}
		return matching[i].UpdatedAt.After(matching[j].UpdatedAt)
	})

	start := 0
	for number := 1; ; number++ {
		if failAfter > 0 && number > failAfter {
			return fmt.Errorf("list issues page %d: status 502", number)
		}

		end := min(start+req.PageSize, len(matching))
		page := github.Page{Number: number}
		for _, issue := range matching[start:end] {
			if _, ok := req.KnownFingerprints[issue.Fingerprint()]; ok {
				page.Skipped++
				continue
			}
			if _, ok := req.KnownNumbers[issue.Number]; ok {
				page.Updated++
			} else {
				page.New++
			}
			page.Issues = append(page.Issues, issue)
		}

		select {
		case pages <- page:
		case <-ctx.Done():
			return ctx.Err()
		}

		start = end
		if start >= len(matching) {
			return nil
		}
	}
}

func (s *fakeSource) LastRate() *github.RateSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rate
}

// scriptedSource sends fixed pages whatever the request.
type scriptedSource struct {
	pages [][]models.Issue
}

func (s *scriptedSource) Fetch(ctx context.Context, _ github.FetchRequest, pages chan<- github.Page) error {
	defer close(pages)
	for i, issues := range s.pages {
		select {
		case pages <- github.Page{Number: i + 1, Issues: issues}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (s *scriptedSource) LastRate() *github.RateSnapshot {
	return nil
}
