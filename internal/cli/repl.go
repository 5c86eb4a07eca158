package cli

import (
	"bufio"
	"context"
	"fmt"
	"strconv"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	Projects(ctx context.Context) error
	Use(ctx context.Context, id string) error
	NewProject(ctx context.Context) error
	List(ctx context.Context, collection string) error
	New(ctx context.Context, collection string) error
	Edit(ctx context.Context, collection, id string) error
	Delete(ctx context.Context, collection, id string) error
	Move(ctx context.Context, collection string, from, to int) error
	Settings(ctx context.Context, args []string) error
}

const helpText = `Available commands:
  projects                        list projects
  use <id>                        switch the active project
  newproject                      create a project
  list <collection>               list locations, characters or scenes
  new <collection>                create a record
  edit <collection> <id>          edit a record (autosaves)
  delete <collection> <id>        delete a record or project
  move <collection> <from> <to>   move a record to another position
  settings [<field> <value>]      show or change settings
  exit | quit                     leave the program`

// runREPL starts a simple read–eval–print loop for the kopfkino CLI.
//
// It reads a line from reader, parses the first token as the command, and
// dispatches to methods on 'a'. Malformed commands print their usage and
// errors returned by handlers are reported without leaving the loop. The loop
// exits on EOF, when ctx is done, or when the user types "exit" or "quit".
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader) {
	for ctx.Err() == nil {
		printlnFn(fmt.Sprintf("kopfkino %s> ", statusFn()))
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		var cmdErr error
		switch cmd {
		case "help":
			printlnFn(helpText)

		case "projects":
			cmdErr = a.Projects(ctx)

		case "use":
			if len(args) != 1 {
				printlnFn("Usage: use <id>")
				continue
			}
			cmdErr = a.Use(ctx, args[0])

		case "newproject":
			cmdErr = a.NewProject(ctx)

		case "l", "list":
			if len(args) != 1 {
				printlnFn("Usage: list <collection>")
				continue
			}
			cmdErr = a.List(ctx, args[0])

		case "new":
			if len(args) != 1 {
				printlnFn("Usage: new <collection>")
				continue
			}
			cmdErr = a.New(ctx, args[0])

		case "edit":
			if len(args) != 2 {
				printlnFn("Usage: edit <collection> <id>")
				continue
			}
			cmdErr = a.Edit(ctx, args[0], args[1])

		case "delete":
			if len(args) != 2 {
				printlnFn("Usage: delete <collection> <id>")
				continue
			}
			cmdErr = a.Delete(ctx, args[0], args[1])

		case "move":
			if len(args) != 3 {
				printlnFn("Usage: move <collection> <from> <to>")
				continue
			}
			from, err1 := strconv.Atoi(args[1])
			to, err2 := strconv.Atoi(args[2])
			if err1 != nil || err2 != nil {
				printlnFn("Usage: move <collection> <from> <to>")
				continue
			}
			cmdErr = a.Move(ctx, args[0], from, to)

		case "settings":
			cmdErr = a.Settings(ctx, args)

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}

		if cmdErr != nil {
			printlnFn("Error:", cmdErr)
		}
	}
}
