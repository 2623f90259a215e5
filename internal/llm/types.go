package llm

// Message is a single message in a chat conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatParams holds parameters for chat completion requests.
type ChatParams struct {
	// Model overrides the client's default model when set.
	Model string

	// MaxTokens caps the generated tokens. Zero leaves it to the server.
	MaxTokens int

	// Temperature controls randomness. Zero leaves it to the server.
	Temperature float32
}
