package historycmder

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/papercomputeco/studio/cmd/studio/sqlitepath"
	"github.com/papercomputeco/studio/pkg/history"
)

const historyLongDesc string = `Show the stored conversation.

Turns are rendered as markdown. Use --raw to print the markdown source and
--system to include the persona instructions.

Examples:
  studio history
  studio history --last 4
  studio history --raw > conversation.md`

const historyShortDesc string = "Show the stored conversation"

const defaultWrap = 80

type historyCommander struct {
	sqlitePath string
	raw        bool
	system     bool
	last       int
}

func NewHistoryCmd() *cobra.Command {
	cmder := &historyCommander{}

	cmd := &cobra.Command{
		Use:   "history",
		Short: historyShortDesc,
		Long:  historyLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd.Context(), cmd)
		},
	}

	cmd.Flags().StringVarP(&cmder.sqlitePath, "sqlite", "s", "", "Path to SQLite database")
	cmd.Flags().BoolVar(&cmder.raw, "raw", false, "Print markdown without rendering")
	cmd.Flags().BoolVar(&cmder.system, "system", false, "Include the system turn")
	cmd.Flags().IntVarP(&cmder.last, "last", "n", 0, "Only show the last n turns")

	return cmd
}

func (c *historyCommander) run(ctx context.Context, cmd *cobra.Command) error {
	dbPath, err := sqlitepath.ResolveSQLitePath(c.sqlitePath)
	if err != nil {
		return fmt.Errorf("could not resolve database: %w", err)
	}

	repo, driver, err := sqlitepath.OpenRepository(ctx, dbPath, nil)
	if err != nil {
		return err
	}
	defer driver.Close()

	turns, ok, err := repo.LoadConversation(ctx)
	if err != nil {
		return fmt.Errorf("could not load conversation: %w", err)
	}

	turns = c.filter(turns)
	if !ok || len(turns) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No conversation stored yet.")
		return nil
	}

	doc := Markdown(turns)
	if c.raw {
		_, err := io.WriteString(cmd.OutOrStdout(), doc)
		return err
	}

	rendered, err := render(cmd.OutOrStdout(), doc)
	if err != nil {
		return fmt.Errorf("could not render conversation: %w", err)
	}
	_, err = io.WriteString(cmd.OutOrStdout(), rendered)
	return err
}

func (c *historyCommander) filter(turns []history.Turn) []history.Turn {
	out := make([]history.Turn, 0, len(turns))
	for _, t := range turns {
		if t.Role == history.RoleSystem && !c.system {
			continue
		}
		out = append(out, t)
	}
	if c.last > 0 && len(out) > c.last {
		out = out[len(out)-c.last:]
	}
	return out
}

// Markdown lays turns out as one section per turn.
func Markdown(turns []history.Turn) string {
	var b strings.Builder
	for i, t := range turns {
		if i > 0 {
			b.WriteString("\n---\n\n")
		}
		fmt.Fprintf(&b, "### %s · %s", t.Role, t.Timestamp.Local().Format("2006-01-02 15:04"))
		if model := t.Metadata["model"]; model != "" {
			fmt.Fprintf(&b, " · `%s`", model)
		}
		b.WriteString("\n\n")
		b.WriteString(strings.TrimSpace(t.Content))
		b.WriteString("\n")
	}
	return b.String()
}

// render styles doc for out. Output that is not a terminal gets the plain
// style and the default width.
func render(out io.Writer, doc string) (string, error) {
	style := glamour.WithStylePath("notty")
	width := defaultWrap

	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		style = glamour.WithAutoStyle()
		if w, _, err := term.GetSize(int(f.Fd())); err == nil && w > 0 {
			width = w
		}
	}

	renderer, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(width))
	if err != nil {
		return "", err
	}
	return renderer.Render(doc)
}
