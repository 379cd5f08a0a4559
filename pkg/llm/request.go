package llm

// ChatRequest represents a chat completion request (OpenAI-compatible).
type ChatRequest struct {
	Model       string    `json:"model"`                 // Model name (e.g., "llama-3.1-8b-instant")
	Temperature *float64  `json:"temperature,omitempty"` // Sampling temperature, nil lets the proxy apply its default
	Messages    []Message `json:"messages"`              // Conversation history, system turn first
	Stream      bool      `json:"stream"`                // Whether to stream the answer as framed deltas
}

// Float64 returns a pointer to v, for optional request fields.
func Float64(v float64) *float64 {
	return &v
}
