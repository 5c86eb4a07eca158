package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dmitrijs2005/kopfkino/internal/config"
	"github.com/dmitrijs2005/kopfkino/internal/draft"
	"github.com/dmitrijs2005/kopfkino/internal/logging"
	"github.com/dmitrijs2005/kopfkino/internal/models"
	"github.com/dmitrijs2005/kopfkino/internal/scope"
	"github.com/dmitrijs2005/kopfkino/internal/workspace"
)

var (
	errNoProject      = errors.New("no active project, use 'projects' and 'use <id>'")
	errNotInteractive = errors.New("stdin is not a terminal, rerun with -y to confirm destructive actions")
)

type App struct {
	config      *config.Config
	ws          *workspace.Workspace
	log         logging.Logger
	reader      *bufio.Reader
	out         io.Writer
	interactive bool
	// loadTimeout bounds waiting for the first snapshot of a collection.
	loadTimeout time.Duration
}

func NewApp(c *config.Config, ws *workspace.Workspace, log logging.Logger) *App {
	if log == nil {
		log = logging.Nop()
	}
	return &App{
		config:      c,
		ws:          ws,
		log:         log,
		reader:      bufio.NewReader(os.Stdin),
		out:         os.Stdout,
		interactive: isTerminal(int(os.Stdin.Fd())),
		loadTimeout: 5 * time.Second,
	}
}

// Run blocks in the REPL until the user exits or stdin ends.
func (a *App) Run(ctx context.Context) {
	a.println("Welcome to kopfkino (type 'help' for commands)")
	runREPL(ctx, a, a.getStatus, a.reader)
}

func (a *App) getStatus() string {
	p, ok := a.ws.Active()
	if !ok {
		return "(no project)"
	}
	return fmt.Sprintf("(%s)", p.Label(models.Projects))
}

func (a *App) println(args ...any) {
	fmt.Fprintln(a.out, args...)
}

func (a *App) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}

func (a *App) scope() (*scope.Scope, error) {
	sc := a.ws.Scope()
	if sc == nil {
		return nil, errNoProject
	}
	return sc, nil
}

// confirmer is the gate in front of every delete.
func (a *App) confirmer() draft.Confirmer {
	return draft.ConfirmFunc(func(ctx context.Context, prompt string) (bool, error) {
		if a.config.AssumeYes {
			return true, nil
		}
		if !a.interactive {
			return false, errNotInteractive
		}
		return Confirm(a.reader, prompt, a.out)
	})
}

// waitUntil polls cond until it holds or the load timeout passes.
func (a *App) waitUntil(ctx context.Context, cond func() bool) bool {
	ctx, cancel := context.WithTimeout(ctx, a.loadTimeout)
	defer cancel()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		if cond() {
			return true
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return cond()
		}
	}
}
