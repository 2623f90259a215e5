package rag

import (
	"sort"
	"strings"
	"unicode"

	"issuesync/internal/indexer"
	"issuesync/internal/vectorstore"
)

const (
	lexicalLengthScale = float32(10.0)
	maxLexicalScore    = float32(0.4)
	titleMatchBonus    = float32(0.1)
)

var lexicalStopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {}, "but": {}, "by": {},
	"does": {}, "for": {}, "from": {}, "has": {}, "have": {}, "how": {}, "in": {}, "is": {}, "it": {},
	"of": {}, "on": {}, "or": {}, "the": {}, "to": {}, "was": {}, "were": {}, "what": {}, "why": {},
	"with": {},
}

// candidate is a search hit with the payload fields the answer needs.
type candidate struct {
	chunkID     string
	issueNumber int
	title       string
	url         string
	kind        string
	text        string

	vectorScore  float32
	lexicalScore float32
	finalScore   float32
}

// rerank blends vector and lexical scores, drops repeated chunks and sorts best first.
func rerank(query string, results []vectorstore.SearchResult) []candidate {
	seen := make(map[string]struct{}, len(results))
	candidates := make([]candidate, 0, len(results))
	for _, r := range results {
		c := newCandidate(r)
		if _, dup := seen[c.chunkID]; dup {
			continue
		}
		seen[c.chunkID] = struct{}{}

		c.lexicalScore = lexicalScore(query, c.text, c.title)
		c.finalScore = c.vectorScore + c.lexicalScore
		candidates = append(candidates, c)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].finalScore > candidates[j].finalScore
	})
	return candidates
}

func newCandidate(r vectorstore.SearchResult) candidate {
	c := candidate{vectorScore: r.Score}
	c.chunkID, _ = r.Meta["chunk_id"].(string)
	if c.chunkID == "" {
		c.chunkID = r.PointID
	}
	number, _ := indexer.MetaInt64(r.Meta, "issue_number")
	c.issueNumber = int(number)
	c.title, _ = r.Meta["title"].(string)
	c.url, _ = r.Meta["url"].(string)
	c.kind, _ = r.Meta["kind"].(string)
	c.text, _ = r.Meta["text"].(string)
	return c
}

// lexicalScore computes a lightweight lexical relevance score for a chunk relative to a query.
// The score stays in [0, maxLexicalScore] so it can be blended with vector scores.
func lexicalScore(query, chunkText, title string) float32 {
	queryTokens := filterStopwords(tokenize(query))
	if len(queryTokens) == 0 {
		return 0
	}

	chunkTokens := tokenize(chunkText)
	if len(chunkTokens) == 0 {
		return 0
	}

	chunkFreq := make(map[string]int, len(chunkTokens))
	for _, token := range chunkTokens {
		chunkFreq[token]++
	}

	var rawMatches int
	for _, token := range queryTokens {
		rawMatches += chunkFreq[token]
	}

	score := (float32(rawMatches) / (1 + float32(len(chunkTokens)))) * lexicalLengthScale

	if titleTokens := tokenize(title); len(titleTokens) > 0 {
		titleSet := make(map[string]struct{}, len(titleTokens))
		for _, token := range titleTokens {
			titleSet[token] = struct{}{}
		}
		var titleMatches int
		for _, token := range queryTokens {
			if _, ok := titleSet[token]; ok {
				titleMatches++
			}
		}
		score += float32(titleMatches) * titleMatchBonus
	}

	return min(max(score, 0), maxLexicalScore)
}

func tokenize(text string) []string {
	if text == "" {
		return nil
	}

	var builder strings.Builder
	builder.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			builder.WriteRune(r)
		} else {
			builder.WriteRune(' ')
		}
	}
	tokens := strings.Fields(builder.String())
	if len(tokens) == 0 {
		return nil
	}
	return tokens
}

func filterStopwords(tokens []string) []string {
	result := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if _, isStop := lexicalStopwords[token]; isStop {
			continue
		}
		result = append(result, token)
	}
	if len(result) == 0 {
		return nil
	}
	return result
}
