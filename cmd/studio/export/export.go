package exportcmder

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/studio/cmd/studio/sqlitepath"
	"github.com/papercomputeco/studio/pkg/history"
	"github.com/papercomputeco/studio/pkg/persist"
)

const exportLongDesc string = `Export the stored conversation as JSON.

Writes an array of {role, content, time} objects. The file defaults to
chat-export.json; use "-" to write to standard output.

Examples:
  studio export
  studio export notes/today.json
  studio export - | jq '.[].content'`

const exportShortDesc string = "Export the stored conversation as JSON"

type exportCommander struct {
	sqlitePath string
}

func NewExportCmd() *cobra.Command {
	cmder := &exportCommander{}

	cmd := &cobra.Command{
		Use:   "export [file]",
		Short: exportShortDesc,
		Long:  exportLongDesc,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := persist.DefaultExportFile
			if len(args) == 1 {
				target = args[0]
			}
			return cmder.run(cmd.Context(), cmd, target)
		},
	}

	cmd.Flags().StringVarP(&cmder.sqlitePath, "sqlite", "s", "", "Path to SQLite database")

	return cmd
}

func (c *exportCommander) run(ctx context.Context, cmd *cobra.Command, target string) error {
	dbPath, err := sqlitepath.ResolveSQLitePath(c.sqlitePath)
	if err != nil {
		return fmt.Errorf("could not resolve database: %w", err)
	}

	repo, driver, err := sqlitepath.OpenRepository(ctx, dbPath, nil)
	if err != nil {
		return err
	}
	defer driver.Close()

	turns, _, err := repo.LoadConversation(ctx)
	if err != nil {
		return fmt.Errorf("could not load conversation: %w", err)
	}

	if target == "-" {
		return persist.Export(cmd.OutOrStdout(), turns)
	}

	n, err := WriteFile(target, turns)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Exported %d turns to %s\n", n, target)
	return nil
}

// WriteFile exports turns to path and reports how many turns were written.
func WriteFile(path string, turns []history.Turn) (int, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("could not create %s: %w", path, err)
	}

	if err := persist.Export(f, turns); err != nil {
		f.Close()
		return 0, err
	}
	if err := f.Close(); err != nil {
		return 0, fmt.Errorf("could not write %s: %w", path, err)
	}
	return countExported(turns), nil
}

func countExported(turns []history.Turn) int {
	n := 0
	for _, t := range turns {
		if t.Role != history.RoleSystem {
			n++
		}
	}
	return n
}

