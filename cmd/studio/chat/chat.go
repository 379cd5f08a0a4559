package chatcmder

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/papercomputeco/studio/cmd/studio/sqlitepath"
	"github.com/papercomputeco/studio/pkg/config"
	"github.com/papercomputeco/studio/pkg/history"
	"github.com/papercomputeco/studio/pkg/logger"
	"github.com/papercomputeco/studio/pkg/persist"
	"github.com/papercomputeco/studio/pkg/persona"
	"github.com/papercomputeco/studio/pkg/session"
	"github.com/papercomputeco/studio/pkg/transport"
)

const chatLongDesc string = `Chat with the assistant in the terminal.

Answers stream in as they are generated. The conversation and your
preferences are stored locally and restored on the next run. Type /help
for the available commands. Ctrl-C stops an answer in progress; press it
again while idle to quit.

Examples:
  studio chat
  studio chat --persona code --model llama-3.1-70b
  studio chat --endpoint http://localhost:8080/api/chat --config studio.toml`

const chatShortDesc string = "Chat with the assistant"

type chatCommander struct {
	configPath  string
	sqlitePath  string
	endpoint    string
	model       string
	persona     string
	temperature float64
	theme       string
	budget      int
	evict       bool
	noStream    bool
	debug       bool
}

func NewChatCmd() *cobra.Command {
	cmder := &chatCommander{}

	cmd := &cobra.Command{
		Use:   "chat",
		Short: chatShortDesc,
		Long:  chatLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd.Context(), cmd)
		},
	}

	cmd.Flags().StringVarP(&cmder.configPath, "config", "c", "", "Path to a TOML config file")
	cmd.Flags().StringVarP(&cmder.sqlitePath, "sqlite", "s", "", "Path to SQLite database")
	cmd.Flags().StringVar(&cmder.endpoint, "endpoint", "", "Chat completion endpoint (proxy or upstream)")
	cmd.Flags().StringVarP(&cmder.model, "model", "m", "", "Model name")
	cmd.Flags().StringVarP(&cmder.persona, "persona", "p", "", "Persona: "+strings.Join(persona.Names(), ", "))
	cmd.Flags().Float64VarP(&cmder.temperature, "temperature", "t", 0, "Sampling temperature")
	cmd.Flags().StringVar(&cmder.theme, "theme", "", "Color theme: "+strings.Join(themeNames(), ", "))
	cmd.Flags().IntVar(&cmder.budget, "budget", 0, "Estimated token budget per request")
	cmd.Flags().BoolVar(&cmder.evict, "evict", true, "Drop the oldest turns so the stored conversation stays within the budget")
	cmd.Flags().BoolVar(&cmder.noStream, "no-stream", false, "Wait for the whole answer instead of streaming")
	cmd.Flags().BoolVar(&cmder.debug, "debug", false, "Enable debug logging on stderr")

	return cmd
}

func (c *chatCommander) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Default()
	if c.configPath != "" {
		loaded, err := config.Load(c.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	cfg.ApplyEnvOverrides()

	flags := cmd.Flags()
	if flags.Changed("sqlite") {
		cfg.Storage.SQLitePath = c.sqlitePath
	}
	if flags.Changed("endpoint") {
		cfg.Client.Endpoint = c.endpoint
	}
	if flags.Changed("budget") {
		cfg.Client.TokenBudget = c.budget
	}
	if flags.Changed("evict") {
		cfg.Client.EvictCommitted = c.evict
	}
	if c.noStream {
		cfg.Client.Stream = false
	}
	if c.debug {
		cfg.Debug = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// preferences merges, lowest to highest precedence: the config file, the
// stored preferences and explicit flags.
func (c *chatCommander) preferences(ctx context.Context, cmd *cobra.Command, cfg *config.Config, repo *persist.Repository) (persist.Preferences, error) {
	prefs, err := repo.LoadPreferences(ctx, persist.Preferences{
		Model:       cfg.Client.Model,
		Persona:     cfg.Client.Persona,
		Temperature: cfg.Client.Temperature,
		Theme:       cfg.Client.Theme,
	})
	if err != nil {
		return prefs, err
	}

	flags := cmd.Flags()
	if flags.Changed("model") {
		prefs.Model = c.model
	}
	if flags.Changed("persona") {
		if !persona.Valid(c.persona) {
			return prefs, &persona.UnknownError{Name: c.persona}
		}
		prefs.Persona = c.persona
	}
	if flags.Changed("temperature") {
		if c.temperature < 0 || c.temperature > 2 {
			return prefs, fmt.Errorf("temperature %v is outside [0, 2]", c.temperature)
		}
		prefs.Temperature = c.temperature
	}
	if flags.Changed("theme") {
		if _, ok := palettes[c.theme]; !ok {
			return prefs, fmt.Errorf("unknown theme %q", c.theme)
		}
		prefs.Theme = c.theme
	}
	return prefs, nil
}

func (c *chatCommander) run(ctx context.Context, cmd *cobra.Command) error {
	cfg, err := c.loadConfig(cmd)
	if err != nil {
		return err
	}

	var log *zap.Logger
	if cfg.Debug {
		log = logger.NewLoggerTo(cmd.ErrOrStderr(), true)
	} else {
		log = logger.NewQuietLogger(cmd.ErrOrStderr())
	}
	defer log.Sync()

	dbPath, err := sqlitepath.ResolveSQLitePath(cfg.Storage.SQLitePath)
	if err != nil {
		return fmt.Errorf("could not resolve database: %w", err)
	}
	repo, driver, err := sqlitepath.OpenRepository(ctx, dbPath, log)
	if err != nil {
		return err
	}
	defer driver.Close()

	prefs, err := c.preferences(ctx, cmd, cfg, repo)
	if err != nil {
		return err
	}
	if err := repo.SavePreferences(ctx, prefs); err != nil {
		log.Warn("could not save preferences", zap.Error(err))
	}

	system := persona.MustSystemPrompt(prefs.Persona)
	var hist *history.History
	if turns, ok, err := repo.LoadConversation(ctx); err != nil {
		return fmt.Errorf("could not load conversation: %w", err)
	} else if ok {
		hist = history.Restore(system, turns, log)
	} else {
		hist = history.New(system, log)
	}

	client := transport.NewClient(cfg.Client.Endpoint,
		transport.WithRetryBase(cfg.Client.RetryBase()),
		transport.WithLogger(log),
	)

	out := cmd.OutOrStdout()
	sink := newTerminalSink(out, prefs.Theme)

	sess := session.New(hist, client, sink, session.Options{
		Model:          prefs.Model,
		Temperature:    prefs.Temperature,
		Budget:         cfg.Client.TokenBudget,
		EvictCommitted: cfg.Client.EvictCommitted,
		Stream:         cfg.Client.Stream,
		Timeout:        cfg.Client.Timeout(),
		MaxRetries:     cfg.Client.MaxRetries,
		Persister:      repo,
	}, log)

	log.Debug("chat session started",
		zap.String("session_id", sess.ID()),
		zap.String("endpoint", cfg.Client.Endpoint),
		zap.String("db", dbPath),
		zap.Int("restored_turns", hist.Len()-1),
	)

	r := &repl{
		sess:  sess,
		repo:  repo,
		sink:  sink,
		prefs: prefs,
		out:   out,
		log:   log,
	}
	return r.loop(ctx, cmd.InOrStdin())
}

// repl reads lines and dispatches them either to a slash command or to the
// session as a new turn.
type repl struct {
	sess  *session.Session
	repo  *persist.Repository
	sink  *terminalSink
	prefs persist.Preferences
	out   io.Writer
	log   *zap.Logger
}

func (r *repl) loop(ctx context.Context, in io.Reader) error {
	ctx, quit := context.WithCancel(ctx)
	defer quit()

	// Ctrl-C stops the answer in progress, or quits when nothing is in flight.
	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt)
	defer signal.Stop(interrupts)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-interrupts:
				if !r.sess.Cancel() {
					quit()
					return
				}
			}
		}
	}()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	interactive := isTerminal(in)
	if interactive {
		r.sink.notice("%s · %s · temperature %.2f · /help for commands", r.prefs.Model, r.prefs.Persona, r.prefs.Temperature)
	}

	for {
		if interactive {
			r.sink.prompt()
		}

		var line string
		select {
		case <-ctx.Done():
			return nil
		case l, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(l)
		}

		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			done, err := r.command(ctx, line)
			if err != nil {
				r.sink.notice("%v", err)
			}
			if done {
				return nil
			}
			continue
		}

		_, err := r.sess.Submit(ctx, line)
		switch {
		case err == nil, errors.Is(err, session.ErrCanceled):
		case errors.Is(err, session.ErrBusy):
			r.sink.notice("still answering, press Ctrl-C to stop")
		default:
			var verr *session.ValidationError
			if errors.As(err, &verr) {
				r.sink.notice("%v", err)
			}
			// Terminal transport failures were already reported by the sink.
		}
	}
}

func isTerminal(in io.Reader) bool {
	f, ok := in.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
