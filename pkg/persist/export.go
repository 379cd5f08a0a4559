package persist

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/papercomputeco/studio/pkg/history"
)

// DefaultExportFile is where exports go when no file is named.
const DefaultExportFile = "chat-export.json"

// ExportTimeLayout renders timestamps as UTC ISO 8601 with milliseconds.
const ExportTimeLayout = "2006-01-02T15:04:05.000Z07:00"

// ExportedTurn is one entry of an export document.
type ExportedTurn struct {
	Role    history.Role `json:"role"`
	Content string       `json:"content"`
	Time    string       `json:"time"`
}

// Export writes the user and assistant turns as an indented JSON array. The
// system turn is configuration, not conversation, and is left out.
func Export(w io.Writer, turns []history.Turn) error {
	out := make([]ExportedTurn, 0, len(turns))
	for _, t := range turns {
		if t.Role == history.RoleSystem {
			continue
		}
		out = append(out, ExportedTurn{
			Role:    t.Role,
			Content: t.Content,
			Time:    t.Timestamp.UTC().Format(ExportTimeLayout),
		})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("encoding export: %w", err)
	}
	return nil
}
