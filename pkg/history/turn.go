// Package history owns the ordered list of conversation turns and assembles
// budgeted snapshots of it for outbound completion requests.
package history

import (
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/papercomputeco/studio/pkg/llm"
)

// Role tags the author of a Turn.
type Role string

const (
	RoleSystem    Role = llm.RoleSystem
	RoleUser      Role = llm.RoleUser
	RoleAssistant Role = llm.RoleAssistant
	RoleTool      Role = llm.RoleTool
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant, RoleTool:
		return true
	}
	return false
}

// charsPerToken is the character-length heuristic behind EstimateSize.
const charsPerToken = 4

// EstimateSize approximates the token weight of text as one token per four
// characters, rounded up. It is not a tokenizer.
func EstimateSize(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + charsPerToken - 1) / charsPerToken
}

// Turn is one committed message of a conversation. Turns are values and are
// never mutated once appended.
type Turn struct {
	Role      Role
	Content   string
	Timestamp time.Time
	Metadata  map[string]string
}

// NewTurn creates a Turn stamped with the current time at millisecond precision,
// which is the precision of the persisted layout.
func NewTurn(role Role, content string) Turn {
	return Turn{
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC().Truncate(time.Millisecond),
	}
}

// Size is the estimated weight of the turn's content.
func (t Turn) Size() int {
	return EstimateSize(t.Content)
}

// Message converts the turn to its wire form.
func (t Turn) Message() llm.Message {
	return llm.Message{Role: string(t.Role), Content: t.Content}
}

type turnJSON struct {
	Role     Role              `json:"role"`
	Content  string            `json:"content"`
	TS       int64             `json:"ts"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// MarshalJSON encodes the turn as {role, content, ts, metadata} with ts in unix milliseconds.
func (t Turn) MarshalJSON() ([]byte, error) {
	return json.Marshal(turnJSON{
		Role:     t.Role,
		Content:  t.Content,
		TS:       t.Timestamp.UnixMilli(),
		Metadata: t.Metadata,
	})
}

// UnmarshalJSON decodes the layout produced by MarshalJSON.
func (t *Turn) UnmarshalJSON(data []byte) error {
	var raw turnJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if !raw.Role.Valid() {
		return fmt.Errorf("unknown role %q", raw.Role)
	}
	t.Role = raw.Role
	t.Content = raw.Content
	t.Timestamp = time.UnixMilli(raw.TS).UTC()
	t.Metadata = raw.Metadata
	return nil
}

// Messages converts a snapshot to wire messages.
func Messages(turns []Turn) []llm.Message {
	msgs := make([]llm.Message, len(turns))
	for i, t := range turns {
		msgs[i] = t.Message()
	}
	return msgs
}
