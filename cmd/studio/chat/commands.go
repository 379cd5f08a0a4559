package chatcmder

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	exportcmder "github.com/papercomputeco/studio/cmd/studio/export"
	"github.com/papercomputeco/studio/pkg/persist"
	"github.com/papercomputeco/studio/pkg/persona"
)

const helpText = `Commands:
  /persona <name>   switch persona (%s)
  /model <name>     switch model
  /temp <value>     set temperature between 0 and 2
  /theme <name>     switch color theme (%s)
  /clear            forget the conversation
  /export [file]    write the conversation as JSON (default %s)
  /note <text>      add a line to your notes
  /notes [clear]    show or clear your notes
  /help             show this help
  /quit             leave the chat`

// command runs a slash command. done reports that the chat should end.
func (r *repl) command(ctx context.Context, line string) (done bool, err error) {
	fields := strings.Fields(line)
	name, args := strings.TrimPrefix(fields[0], "/"), fields[1:]

	switch name {
	case "quit", "exit":
		return true, nil

	case "help":
		r.sink.notice(helpText,
			strings.Join(persona.Names(), ", "),
			strings.Join(themeNames(), ", "),
			persist.DefaultExportFile,
		)
		return false, nil

	case "persona":
		if len(args) != 1 {
			return false, fmt.Errorf("usage: /persona <%s>", strings.Join(persona.Names(), "|"))
		}
		prompt, err := persona.SystemPrompt(args[0])
		if err != nil {
			return false, err
		}
		r.prefs.Persona = args[0]
		r.sess.SetPersona(ctx, prompt)
		r.sink.notice("persona set to %s", args[0])

	case "model":
		if len(args) != 1 {
			return false, fmt.Errorf("usage: /model <name>")
		}
		r.prefs.Model = args[0]
		r.sess.SetModel(args[0])
		r.sink.notice("model set to %s", args[0])

	case "temp", "temperature":
		if len(args) != 1 {
			return false, fmt.Errorf("usage: /temp <0..2>")
		}
		t, err := strconv.ParseFloat(args[0], 64)
		if err != nil || t < 0 || t > 2 {
			return false, fmt.Errorf("temperature must be a number between 0 and 2, got %q", args[0])
		}
		r.prefs.Temperature = t
		r.sess.SetTemperature(t)
		r.sink.notice("temperature set to %.2f", t)

	case "theme":
		if len(args) != 1 || !r.sink.setTheme(args[0]) {
			return false, fmt.Errorf("usage: /theme <%s>", strings.Join(themeNames(), "|"))
		}
		r.prefs.Theme = args[0]
		r.sink.notice("theme set to %s", args[0])

	case "clear":
		if err := r.sess.Reset(ctx); err != nil {
			return false, err
		}
		r.sink.notice("conversation cleared")
		return false, nil

	case "export":
		target := persist.DefaultExportFile
		if len(args) > 0 {
			target = args[0]
		}
		n, err := exportcmder.WriteFile(target, r.sess.History().Turns())
		if err != nil {
			return false, err
		}
		r.sink.notice("exported %d turns to %s", n, target)
		return false, nil

	case "note":
		text := strings.TrimSpace(strings.TrimPrefix(line, fields[0]))
		if text == "" {
			return false, fmt.Errorf("usage: /note <text>")
		}
		notes, err := r.repo.LoadNotes(ctx)
		if err != nil {
			return false, err
		}
		if notes != "" {
			notes += "\n"
		}
		if err := r.repo.SaveNotes(ctx, notes+text); err != nil {
			return false, fmt.Errorf("could not save notes: %w", err)
		}
		r.sink.notice("note saved")
		return false, nil

	case "notes":
		switch {
		case len(args) == 0:
			notes, err := r.repo.LoadNotes(ctx)
			if err != nil {
				return false, err
			}
			if notes == "" {
				r.sink.notice("no notes yet, add one with /note <text>")
			} else {
				r.sink.notice("%s", notes)
			}
		case len(args) == 1 && args[0] == "clear":
			if err := r.repo.SaveNotes(ctx, ""); err != nil {
				return false, fmt.Errorf("could not clear notes: %w", err)
			}
			r.sink.notice("notes cleared")
		default:
			return false, fmt.Errorf("usage: /notes [clear]")
		}
		return false, nil

	default:
		return false, fmt.Errorf("unknown command /%s, try /help", name)
	}

	if err := r.repo.SavePreferences(ctx, r.prefs); err != nil {
		return false, fmt.Errorf("could not save preferences: %w", err)
	}
	return false, nil
}
