package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"issuesync/internal/contextutil"
	"issuesync/internal/llm"
	"issuesync/internal/vectorstore"
)

const (
	minAutoK     = 3
	defaultAutoK = 6
	maxAutoK     = 12

	// candidateMultiplier widens the vector search so reranking has something to choose from.
	candidateMultiplier = 3
	maxCandidates       = 50

	noResultsAnswer = "I couldn't find any relevant issues or comments to answer this question."
)

// ErrEmptyQuestion is returned for a blank question.
var ErrEmptyQuestion = errors.New("question is required")

// Searcher finds the chunks nearest to a query.
type Searcher interface {
	Search(ctx context.Context, query string, k int, filters map[string]any) ([]vectorstore.SearchResult, error)
}

// Generator produces an answer from a conversation.
type Generator interface {
	ChatWithMessages(ctx context.Context, messages []llm.Message, params llm.ChatParams) (string, error)
	StreamChat(ctx context.Context, messages []llm.Message, params llm.ChatParams, callback func(chunk string) error) error
}

// Engine answers questions over one repository's indexed issues.
type Engine interface {
	Ask(ctx context.Context, req AskRequest) (AskResponse, error)
}

type ragEngine struct {
	searcher  Searcher
	generator Generator
	repo      string
}

// NewEngine creates a new RAG engine for the repository named repo.
func NewEngine(searcher Searcher, generator Generator, repo string) Engine {
	return &ragEngine{
		searcher:  searcher,
		generator: generator,
		repo:      repo,
	}
}

// Ask retrieves the most relevant chunks, reranks them and asks the model to answer from them.
func (e *ragEngine) Ask(ctx context.Context, req AskRequest) (AskResponse, error) {
	logger := contextutil.LoggerFromContext(ctx)

	question := strings.TrimSpace(req.Question)
	if question == "" {
		return AskResponse{}, ErrEmptyQuestion
	}

	filters := make(map[string]any)
	if req.State != "" {
		filters["state"] = req.State
	}
	if req.Kind != "" {
		filters["kind"] = req.Kind
	}

	k := clampUserProvidedK(req.K)
	if k == 0 {
		k = determineAutoK(question, len(filters) > 0, req.Detail)
	}

	logger.InfoContext(ctx, "RAG query started", "repo", e.repo, "k", k, "filters", filters)

	results, err := e.searcher.Search(ctx, question, min(k*candidateMultiplier, maxCandidates), filters)
	if err != nil {
		logger.ErrorContext(ctx, "failed to search index", "error", err)
		return AskResponse{}, fmt.Errorf("failed to search index: %w", err)
	}

	candidates := rerank(question, results)
	if len(candidates) > k {
		candidates = candidates[:k]
	}
	logger.DebugContext(ctx, "reranked candidates", "results", len(results), "kept", len(candidates))

	var debug *DebugInfo
	if req.Debug {
		debug = buildDebugInfo(k, filters, candidates)
	}

	if len(candidates) == 0 {
		logger.InfoContext(ctx, "no search results found")
		return AskResponse{Answer: noResultsAnswer, References: []Reference{}, Debug: debug}, nil
	}

	messages := []llm.Message{
		{Role: "system", Content: e.systemPrompt(req.Detail)},
		{Role: "user", Content: fmt.Sprintf("%s\n\n%s", question, formatContext(candidates))},
	}
	params := llm.ChatParams{Temperature: 0.2}

	var answer string
	if req.OnToken != nil {
		var b strings.Builder
		err = e.generator.StreamChat(ctx, messages, params, func(token string) error {
			b.WriteString(token)
			return req.OnToken(token)
		})
		answer = b.String()
	} else {
		answer, err = e.generator.ChatWithMessages(ctx, messages, params)
	}
	if err != nil {
		logger.ErrorContext(ctx, "failed to get LLM response", "error", err)
		return AskResponse{}, fmt.Errorf("failed to get LLM response: %w", err)
	}

	references := make([]Reference, 0, len(candidates))
	for _, c := range candidates {
		references = append(references, Reference{
			IssueNumber: c.issueNumber,
			Title:       c.title,
			URL:         c.url,
			Kind:        c.kind,
			ChunkID:     c.chunkID,
		})
	}
	unknown := markCited(answer, references)
	if len(unknown) > 0 {
		logger.WarnContext(ctx, "answer cites issues that were not retrieved", "numbers", unknown)
	}
	if debug != nil {
		debug.UnknownCitations = unknown
	}

	logger.InfoContext(ctx, "RAG query completed", "chunks_used", len(candidates), "answer_length", len(answer))
	return AskResponse{Answer: answer, References: references, Debug: debug}, nil
}

func (e *ragEngine) systemPrompt(detail string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You answer questions about the GitHub issues of %s. ", e.repo)
	b.WriteString("Use only the issue and comment excerpts in the context. ")
	b.WriteString("If they do not contain the answer, say so. ")
	b.WriteString("Cite the issues you rely on by number, like #123.")
	switch detail {
	case "brief":
		b.WriteString(" Keep the answer to two or three sentences.")
	case "detailed":
		b.WriteString(" Give a thorough answer that covers every relevant issue.")
	}
	return b.String()
}

func formatContext(candidates []candidate) string {
	var b strings.Builder
	b.WriteString("--- Context from issues ---\n\n")
	for _, c := range candidates {
		fmt.Fprintf(&b, "[#%d %s] (%s)\n%s\n\n", c.issueNumber, c.title, c.kind, c.text)
	}
	b.WriteString("--- End Context ---")
	return b.String()
}

func buildDebugInfo(k int, filters map[string]any, candidates []candidate) *DebugInfo {
	chunks := make([]RetrievedChunk, 0, len(candidates))
	for i, c := range candidates {
		chunks = append(chunks, RetrievedChunk{
			ChunkID:      c.chunkID,
			IssueNumber:  c.issueNumber,
			Title:        c.title,
			ScoreVector:  float64(c.vectorScore),
			ScoreLexical: float64(c.lexicalScore),
			ScoreFinal:   float64(c.finalScore),
			Text:         c.text,
			Rank:         i + 1,
		})
	}
	return &DebugInfo{K: k, Filters: filters, RetrievedChunks: chunks}
}

var broadQueryTerms = []string{"overview", "summarize", "summary", "all ", "every", "common", "recurring", "list ", "trends"}

// determineAutoK picks how many chunks to retrieve from the shape of the question.
func determineAutoK(question string, filtered bool, detail string) int {
	switch detail {
	case "brief":
		return minAutoK
	case "detailed":
		return maxAutoK
	}

	k := defaultAutoK
	lower := strings.ToLower(question) + " "
	for _, term := range broadQueryTerms {
		if strings.Contains(lower, term) {
			k += 3
			break
		}
	}
	if len(strings.Fields(question)) > 15 {
		k++
	}
	if filtered {
		k--
	}
	return min(max(k, minAutoK), maxAutoK)
}

// clampUserProvidedK keeps an explicit k in range. Zero means automatic.
func clampUserProvidedK(k int) int {
	if k <= 0 {
		return 0
	}
	return min(max(k, minAutoK), maxAutoK)
}
