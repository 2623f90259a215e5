package indexer

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"unicode/utf8"
)

const (
	// ChunkerVersion is the version identifier for the chunker implementation.
	// Update this when chunking logic changes significantly.
	ChunkerVersion = "v2.0"
	// RunesPerToken is an approximation for token counting (4 chars per token).
	RunesPerToken = 4.0
)

// ChunkParams are the parameters that shape every chunk.
type ChunkParams struct {
	Size         int
	Overlap      int
	ContextChars int
}

// IndexVersion hashes the chunker version, chunk parameters and embedding model.
// Any change in them makes every indexed issue stale.
func IndexVersion(params ChunkParams, embeddingModel string) string {
	input := fmt.Sprintf("%s|%s|size=%d|overlap=%d|context=%d",
		ChunkerVersion, embeddingModel, params.Size, params.Overlap, params.ContextChars)
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:])[:16] // 16 hex chars = 64 bits
}

// ChunkTokenStats contains statistics about token counts in chunks.
type ChunkTokenStats struct {
	// Count is the number of chunks measured.
	Count int `json:"count" yaml:"count"`
	// Min is the minimum token count across all chunks.
	Min int `json:"min" yaml:"min"`
	// Max is the maximum token count across all chunks.
	Max int `json:"max" yaml:"max"`
	// Mean is the mean token count across all chunks.
	Mean float64 `json:"mean" yaml:"mean"`
	// P95 is the 95th percentile token count.
	P95 int `json:"p95" yaml:"p95"`
}

// StatsCollector accumulates approximate token counts across reconciled issues.
type StatsCollector struct {
	tokenCounts []int
}

// Add records the chunks of one issue.
func (c *StatsCollector) Add(chunks []Chunk) {
	for _, chunk := range chunks {
		c.tokenCounts = append(c.tokenCounts, EstimateTokens(chunk.Text))
	}
}

// Stats returns the statistics of everything added so far.
func (c *StatsCollector) Stats() ChunkTokenStats {
	return computeTokenStats(c.tokenCounts)
}

// EstimateTokens approximates the token count of text from its rune count, at least 1.
func EstimateTokens(text string) int {
	tokens := int(math.Round(float64(utf8.RuneCountInString(text)) / RunesPerToken))
	if tokens < 1 {
		return 1
	}
	return tokens
}

// computeTokenStats computes min, max, mean, and p95 from token counts.
func computeTokenStats(tokenCounts []int) ChunkTokenStats {
	if len(tokenCounts) == 0 {
		return ChunkTokenStats{}
	}

	sorted := make([]int, len(tokenCounts))
	copy(sorted, tokenCounts)
	sort.Ints(sorted)

	sum := 0
	for _, count := range sorted {
		sum += count
	}
	mean := float64(sum) / float64(len(sorted))

	p95Index := int(math.Ceil(float64(len(sorted))*0.95)) - 1
	if p95Index < 0 {
		p95Index = 0
	}

	return ChunkTokenStats{
		Count: len(sorted),
		Min:   sorted[0],
		Max:   sorted[len(sorted)-1],
		Mean:  math.Round(mean*100) / 100, // Round to 2 decimal places
		P95:   sorted[p95Index],
	}
}
