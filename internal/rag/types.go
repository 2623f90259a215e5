package rag

// AskRequest represents a question over a repository's issues.
type AskRequest struct {
	// Question is the user's question to answer.
	Question string `json:"question"`
	// State limits retrieval to open or closed issues. Empty searches both.
	State string `json:"state,omitempty"`
	// Kind limits retrieval to issue bodies or comments. Empty searches both.
	Kind string `json:"kind,omitempty"`
	// K optionally specifies the desired chunk count. Zero selects it from the question.
	K int `json:"k,omitempty"`
	// Detail optionally hints at answer length ("brief", "normal", "detailed").
	Detail string `json:"detail,omitempty"`
	// Debug returns the retrieved chunks with their scores.
	Debug bool `json:"debug,omitempty"`

	// OnToken, when set, streams the answer as it is generated.
	OnToken func(token string) error `json:"-"`
}

// Reference is an issue chunk used to answer.
type Reference struct {
	IssueNumber int    `json:"issue_number"`
	Title       string `json:"title"`
	URL         string `json:"url"`
	Kind        string `json:"kind"`
	ChunkID     string `json:"chunk_id"`
	// Cited is true when the answer mentions the issue number.
	Cited bool `json:"cited"`
}

// AskResponse represents the answer to a question.
type AskResponse struct {
	Answer     string      `json:"answer"`
	References []Reference `json:"references"`
	Debug      *DebugInfo  `json:"debug,omitempty"`
}

// DebugInfo contains retrieval details.
type DebugInfo struct {
	K               int              `json:"k"`
	Filters         map[string]any   `json:"filters,omitempty"`
	RetrievedChunks []RetrievedChunk `json:"retrieved_chunks"`
	// UnknownCitations are issue numbers the answer cites that were not retrieved.
	UnknownCitations []int `json:"unknown_citations,omitempty"`
}

// RetrievedChunk is a retrieved chunk with its scores.
type RetrievedChunk struct {
	ChunkID      string  `json:"chunk_id"`
	IssueNumber  int     `json:"issue_number"`
	Title        string  `json:"title"`
	ScoreVector  float64 `json:"score_vector"`
	ScoreLexical float64 `json:"score_lexical,omitempty"`
	ScoreFinal   float64 `json:"score_final"`
	Text         string  `json:"text"`
	// Rank is 1-based, after reranking.
	Rank int `json:"rank"`
}
