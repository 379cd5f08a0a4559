package clearcmder

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/studio/cmd/studio/sqlitepath"
	"github.com/papercomputeco/studio/pkg/history"
	"github.com/papercomputeco/studio/pkg/persona"
)

const clearLongDesc string = `Clear the stored conversation.

The conversation is reset to its system turn only. Preferences are kept
unless --all is given.

Examples:
  studio clear
  studio clear --all --sqlite /tmp/studio.db`

const clearShortDesc string = "Clear the stored conversation"

type clearCommander struct {
	sqlitePath string
	all        bool
}

func NewClearCmd() *cobra.Command {
	cmder := &clearCommander{}

	cmd := &cobra.Command{
		Use:   "clear",
		Short: clearShortDesc,
		Long:  clearLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd.Context(), cmd)
		},
	}

	cmd.Flags().StringVarP(&cmder.sqlitePath, "sqlite", "s", "", "Path to SQLite database")
	cmd.Flags().BoolVar(&cmder.all, "all", false, "Also forget model, persona, temperature and theme")

	return cmd
}

func (c *clearCommander) run(ctx context.Context, cmd *cobra.Command) error {
	dbPath, err := sqlitepath.ResolveSQLitePath(c.sqlitePath)
	if err != nil {
		return fmt.Errorf("could not resolve database: %w", err)
	}

	repo, driver, err := sqlitepath.OpenRepository(ctx, dbPath, nil)
	if err != nil {
		return err
	}
	defer driver.Close()

	if c.all {
		if err := repo.Clear(ctx); err != nil {
			return fmt.Errorf("could not clear %s: %w", dbPath, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Cleared conversation and preferences in %s\n", dbPath)
		return nil
	}

	turns, ok, err := repo.LoadConversation(ctx)
	if err != nil {
		return fmt.Errorf("could not load conversation: %w", err)
	}

	system := persona.MustSystemPrompt(persona.Default)
	if ok && len(turns) > 0 && turns[0].Role == history.RoleSystem {
		system = turns[0].Content
	}

	hist := history.New(system, nil)
	if err := repo.SaveConversation(ctx, hist.Turns()); err != nil {
		return fmt.Errorf("could not save conversation: %w", err)
	}

	removed := 0
	if ok {
		for _, t := range turns {
			if t.Role != history.RoleSystem {
				removed++
			}
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d turns from %s\n", removed, dbPath)
	return nil
}
