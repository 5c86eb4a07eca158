package cli

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/dmitrijs2005/kopfkino/internal/common"
	"github.com/dmitrijs2005/kopfkino/internal/draft"
	"github.com/dmitrijs2005/kopfkino/internal/models"
)

const editHelp = `Edit commands:
  set <field> <value>   change a field; JSON arrays and objects are decoded
  show                  print the draft
  status                print the draft and save state
  save                  create a new record
  delete                delete the record
  shots                 list the shots of a scene
  shot <subcommand>     add, set, delete or move a shot of a scene
  done                  leave the editor`

// editLoop runs the nested REPL of one open session. Changes to existing
// records autosave in the background; new records are written by "save".
func (a *App) editLoop(ctx context.Context, s *draft.Session) error {
	c := s.Collection()
	for {
		a.printf("%s %s> ", c.Name, s.ID())
		line, err := a.reader.ReadString('\n')
		if err != nil && line == "" {
			return a.finishEdit(ctx, s)
		}
		line = strings.TrimSpace(line)
		cmd, rest, _ := strings.Cut(line, " ")
		if cmd == "" {
			continue
		}

		switch cmd {
		case "help":
			a.println(editHelp)

		case "set":
			field, raw, _ := strings.Cut(strings.TrimSpace(rest), " ")
			if field == "" {
				a.println("Usage: set <field> <value>")
				continue
			}
			v, err := parseFieldValue(raw)
			if err != nil {
				a.println("Error:", err)
				continue
			}
			if err := s.SetField(field, v); err != nil {
				if errors.Is(err, common.ErrUnknownField) {
					a.printf("Unknown field %q, fields: %s\n", field, strings.Join(c.Fields, ", "))
					continue
				}
				return err
			}

		case "show":
			a.showView(c, s.State())

		case "shots":
			a.printShots(s)

		case "shot":
			a.shotCommand(s, rest)

		case "status":
			a.showStatus(s.State())

		case "save":
			if !s.State().IsNew {
				a.println("Already saved, changes autosave")
				continue
			}
			if err := s.Create(ctx); err != nil {
				a.println("Error:", err)
				continue
			}
			a.printf("Created %s %s\n", c.Name, s.ID())

		case "delete":
			err := s.Delete(ctx, a.confirmer())
			if errors.Is(err, common.ErrNotConfirmed) {
				a.println("Cancelled")
				continue
			}
			if err != nil {
				a.println("Error:", err)
				continue
			}
			a.printf("Deleted %s %s\n", c.Name, s.ID())
			return nil

		case "done", "back", "exit", "quit":
			return a.finishEdit(ctx, s)

		default:
			a.println("Unknown command:", cmd)
		}
	}
}

// finishEdit waits for pending autosaves before the session is closed.
func (a *App) finishEdit(ctx context.Context, s *draft.Session) error {
	v := s.State()
	if v.IsNew {
		if v.State == draft.Dirty {
			a.println("New record was not saved, discarded")
		}
		return nil
	}
	if v.State == draft.Clean {
		return nil
	}

	a.println("Waiting for autosave...")
	a.waitUntil(ctx, func() bool {
		v := s.State()
		return v.State == draft.Clean || v.Status == draft.StatusError
	})
	v = s.State()
	switch {
	case v.Status == draft.StatusError:
		a.println("Autosave failed:", v.Err)
	case v.State == draft.Dirty:
		a.println("Changes not confirmed by the server yet")
	default:
		a.println("Saved")
	}
	return nil
}

func (a *App) showView(c models.Collection, v draft.View) {
	a.printf("%s %s [%s, %s]\n", c.Name, v.ID, v.State, v.Status)
	for _, name := range c.Fields {
		val, ok := v.Fields[name]
		if !ok {
			continue
		}
		a.printf("  %s: %s\n", name, formatValue(val))
	}
}

func (a *App) showStatus(v draft.View) {
	a.printf("%s, %s\n", v.State, v.Status)
	if v.Err != nil {
		a.println("  last error:", v.Err)
	}
}

func formatValue(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "?"
	}
	return string(b)
}
