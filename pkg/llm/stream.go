package llm

// StreamDone is the payload of the sentinel frame that terminates a stream.
const StreamDone = "[DONE]"

// StreamFramePrefix prefixes every frame of a streamed response.
const StreamFramePrefix = "data:"

// StreamChunk represents a single JSON fragment in a streaming response.
type StreamChunk struct {
	ID      string         `json:"id,omitempty"`
	Model   string         `json:"model,omitempty"`
	Choices []StreamChoice `json:"choices"`
}

// StreamChoice carries the incremental delta for one candidate.
type StreamChoice struct {
	Index        int    `json:"index"`
	Delta        Delta  `json:"delta"`
	FinishReason string `json:"finish_reason,omitempty"`
}

// Delta is the incremental piece of an assistant message.
type Delta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

// Token returns the incremental content carried by the chunk, or "" when absent.
func (c *StreamChunk) Token() string {
	if c == nil || len(c.Choices) == 0 {
		return ""
	}
	return c.Choices[0].Delta.Content
}
