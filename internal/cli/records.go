package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/kopfkino/internal/common"
	"github.com/dmitrijs2005/kopfkino/internal/draft"
	"github.com/dmitrijs2005/kopfkino/internal/models"
	"github.com/dmitrijs2005/kopfkino/internal/ordering"
)

// collection resolves a scoped collection by name.
func collection(name string) (models.Collection, error) {
	c, ok := models.Lookup(name)
	if !ok || !c.Scoped {
		return models.Collection{}, fmt.Errorf("unknown collection %q (locations, characters, scenes)", name)
	}
	return c, nil
}

func (a *App) List(ctx context.Context, name string) error {
	if name == models.Projects.Name {
		return a.Projects(ctx)
	}
	c, err := collection(name)
	if err != nil {
		return err
	}
	st, err := a.openOrdered(ctx, c)
	if err != nil {
		return err
	}
	defer st.Close()

	a.printItems(c, st.Items())
	return nil
}

func (a *App) Move(ctx context.Context, name string, from, to int) error {
	c, err := collection(name)
	if err != nil {
		return err
	}
	st, err := a.openOrdered(ctx, c)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.Move(ctx, from, to); err != nil {
		return err
	}
	a.printItems(c, st.Items())
	return nil
}

func (a *App) New(ctx context.Context, name string) error {
	c, err := collection(name)
	if err != nil {
		return err
	}
	sc, err := a.scope()
	if err != nil {
		return err
	}
	s, err := draft.Open(ctx, sc, c, draft.NewID)
	if err != nil {
		return err
	}
	defer s.Close()

	a.printf("New %s %s. Set fields, then 'save'.\n", c.Name, s.ID())
	return a.editLoop(ctx, s)
}

func (a *App) Edit(ctx context.Context, name, id string) error {
	c, err := collection(name)
	if err != nil {
		return err
	}
	s, err := a.openExisting(ctx, c, id)
	if err != nil {
		return err
	}
	defer s.Close()

	a.showView(c, s.State())
	return a.editLoop(ctx, s)
}

func (a *App) Delete(ctx context.Context, name, id string) error {
	var err error
	if name == models.Projects.Name {
		err = a.ws.DeleteProject(ctx, id, a.confirmer())
	} else {
		err = a.deleteRecord(ctx, name, id)
	}
	if errors.Is(err, common.ErrNotConfirmed) {
		a.println("Cancelled")
		return nil
	}
	if err != nil {
		return err
	}
	a.printf("Deleted %s %s\n", name, id)
	return nil
}

func (a *App) deleteRecord(ctx context.Context, name, id string) error {
	c, err := collection(name)
	if err != nil {
		return err
	}
	s, err := a.openExisting(ctx, c, id)
	if err != nil {
		return err
	}
	defer s.Close()
	return s.Delete(ctx, a.confirmer())
}

func (a *App) openOrdered(ctx context.Context, c models.Collection) (*ordering.Store, error) {
	sc, err := a.scope()
	if err != nil {
		return nil, err
	}
	st, err := ordering.Open(ctx, sc, c)
	if err != nil {
		return nil, err
	}
	if !a.waitUntil(ctx, st.Loaded) {
		st.Close()
		return nil, fmt.Errorf("list %s: timed out waiting for data", c.Name)
	}
	return st, nil
}

// openExisting opens a session and waits until the record shows up.
func (a *App) openExisting(ctx context.Context, c models.Collection, id string) (*draft.Session, error) {
	sc, err := a.scope()
	if err != nil {
		return nil, err
	}
	if id == draft.NewID {
		return nil, fmt.Errorf("open %s: use 'new %s' to create a record", c.Name, c.Name)
	}
	s, err := draft.Open(ctx, sc, c, id)
	if err != nil {
		return nil, err
	}
	if !a.waitUntil(ctx, func() bool { return s.State().Exists }) {
		s.Close()
		return nil, fmt.Errorf("open %s/%s: %w", c.Name, id, common.ErrNotFound)
	}
	return s, nil
}

func (a *App) printItems(c models.Collection, items []models.Record) {
	if len(items) == 0 {
		a.printf("No %s yet\n", c.Name)
		return
	}
	for i, r := range items {
		a.printf("%3d  %s  %s\n", i, r.ID, r.Label(c))
	}
}

