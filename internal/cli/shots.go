package cli

import (
	"strconv"
	"strings"

	"github.com/dmitrijs2005/kopfkino/internal/draft"
	"github.com/dmitrijs2005/kopfkino/internal/models"
)

const shotUsage = `Usage:
  shot add <name>
  shot set <id> <field> <value>
  shot delete <id>
  shot move <from> <to>`

// shotCommand runs one "shot ..." line of the scene editor.
func (a *App) shotCommand(s *draft.Session, rest string) {
	args := strings.Fields(rest)
	if len(args) == 0 {
		a.println(shotUsage)
		return
	}

	var err error
	switch args[0] {
	case "add":
		name := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(rest), "add"))
		var id string
		if id, err = s.AddShot(models.Shot{Name: name}); err == nil {
			a.printf("Added shot %s\n", id)
		}

	case "set":
		if len(args) < 4 {
			a.println(shotUsage)
			return
		}
		raw := strings.TrimSpace(rest)
		for _, arg := range args[:3] {
			raw = strings.TrimSpace(strings.TrimPrefix(raw, arg))
		}
		err = s.UpdateShot(args[1], models.Fields{args[2]: parseShotValue(args[2], raw)})

	case "delete":
		if len(args) != 2 {
			a.println(shotUsage)
			return
		}
		err = s.DeleteShot(args[1])

	case "move":
		if len(args) != 3 {
			a.println(shotUsage)
			return
		}
		from, err1 := strconv.Atoi(args[1])
		to, err2 := strconv.Atoi(args[2])
		if err1 != nil || err2 != nil {
			a.println(shotUsage)
			return
		}
		err = s.MoveShot(from, to)

	default:
		a.println(shotUsage)
		return
	}

	if err != nil {
		a.println("Error:", err)
	}
}

func (a *App) printShots(s *draft.Session) {
	shots, err := s.Shots()
	if err != nil {
		a.println("Error:", err)
		return
	}
	if len(shots) == 0 {
		a.println("No shots")
		return
	}
	for i, sh := range shots {
		a.printf("%3d  %s  %s\n", i, sh.ID, sh.Name)
	}
}

// parseShotValue keeps text fields as typed and decodes the others as JSON.
func parseShotValue(field, raw string) any {
	switch field {
	case "length", "audio":
		return parseSettingValue(raw)
	default:
		return raw
	}
}
