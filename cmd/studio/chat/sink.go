package chatcmder

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/papercomputeco/studio/pkg/history"
	"github.com/papercomputeco/studio/pkg/llm"
	"github.com/papercomputeco/studio/pkg/session"
	"github.com/papercomputeco/studio/pkg/transport"
)

type palette struct {
	user, assistant, meta, err string
}

var palettes = map[string]palette{
	"vsc":    {user: "#CE9178", assistant: "#9CDCFE", meta: "#6A9955", err: "#F44747"},
	"github": {user: "#8250DF", assistant: "#0969DA", meta: "#6E7781", err: "#CF222E"},
	"cyber":  {user: "#FF00E4", assistant: "#00FFC6", meta: "#7A7AFF", err: "#FF3864"},
}

// themeNames lists the known themes in sorted order.
func themeNames() []string {
	names := make([]string, 0, len(palettes))
	for name := range palettes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type theme struct {
	name      string
	user      lipgloss.Style
	assistant lipgloss.Style
	meta      lipgloss.Style
	err       lipgloss.Style
}

func newTheme(r *lipgloss.Renderer, name string) (theme, bool) {
	p, ok := palettes[name]
	if !ok {
		return theme{}, false
	}
	return theme{
		name:      name,
		user:      r.NewStyle().Foreground(lipgloss.Color(p.user)).Bold(true),
		assistant: r.NewStyle().Foreground(lipgloss.Color(p.assistant)),
		meta:      r.NewStyle().Foreground(lipgloss.Color(p.meta)).Faint(true),
		err:       r.NewStyle().Foreground(lipgloss.Color(p.err)).Bold(true),
	}, true
}

// terminalSink renders session events as a transcript.
type terminalSink struct {
	mu       sync.Mutex
	out      io.Writer
	renderer *lipgloss.Renderer
	theme    theme
}

var _ session.Sink = (*terminalSink)(nil)

func newTerminalSink(out io.Writer, themeName string) *terminalSink {
	r := lipgloss.NewRenderer(out)
	t, ok := newTheme(r, themeName)
	if !ok {
		t, _ = newTheme(r, "vsc")
	}
	return &terminalSink{out: out, renderer: r, theme: t}
}

func (s *terminalSink) setTheme(name string) bool {
	t, ok := newTheme(s.renderer, name)
	if !ok {
		return false
	}
	s.mu.Lock()
	s.theme = t
	s.mu.Unlock()
	return true
}

func (s *terminalSink) OnState(from, to session.State) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case to == session.Sending:
		fmt.Fprint(s.out, s.theme.meta.Render("assistant ›")+" ")
	case to == session.Committed:
		fmt.Fprintln(s.out)
	case to == session.Idle && from.InFlight():
		fmt.Fprintln(s.out)
		fmt.Fprintln(s.out, s.theme.meta.Render("(stopped)"))
	}
}

func (s *terminalSink) OnTurn(turn history.Turn) {
	if turn.Role != history.RoleAssistant {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	meta := fmt.Sprintf("%s · %d tokens", turn.Timestamp.Local().Format("15:04"), turn.Size())
	if model := turn.Metadata["model"]; model != "" {
		meta = model + " · " + meta
	}
	fmt.Fprintln(s.out, s.theme.meta.Render(meta))
}

func (s *terminalSink) OnToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprint(s.out, s.theme.assistant.Render(token))
}

func (s *terminalSink) OnError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintln(s.out)
	fmt.Fprintln(s.out, s.theme.err.Render("error: "+describeError(err)))
}

// notice prints an informational line between turns.
func (s *terminalSink) notice(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintln(s.out, s.theme.meta.Render(fmt.Sprintf(format, args...)))
}

func (s *terminalSink) prompt() {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprint(s.out, s.theme.user.Render("you ›")+" ")
}

// describeError turns a terminal turn failure into a message for people.
func describeError(err error) string {
	var timeout *transport.TimeoutError
	if errors.As(err, &timeout) {
		return timeout.Error()
	}

	var status *transport.StatusError
	if errors.As(err, &status) {
		msg := strings.TrimSpace(status.Body)
		var body llm.ErrorResponse
		if json.Unmarshal([]byte(msg), &body) == nil && body.Error != "" {
			msg = body.Error
		}
		attempts := 1
		var terr *transport.TransportError
		if errors.As(err, &terr) {
			attempts = terr.Attempts
		}
		if msg == "" {
			return fmt.Sprintf("server returned status %d (%d attempts)", status.Status, attempts)
		}
		return fmt.Sprintf("server returned status %d: %s (%d attempts)", status.Status, msg, attempts)
	}

	var terr *transport.TransportError
	if errors.As(err, &terr) {
		return fmt.Sprintf("could not reach the server after %d attempts: %v", terr.Attempts, terr.Cause)
	}
	return err.Error()
}
