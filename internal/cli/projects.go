package cli

import (
	"context"

	"github.com/dmitrijs2005/kopfkino/internal/models"
)

func (a *App) Projects(ctx context.Context) error {
	projects := a.ws.Projects()
	if len(projects) == 0 {
		a.println("No projects yet")
		return nil
	}
	active, _ := a.ws.Active()
	for _, p := range projects {
		mark := " "
		if p.ID == active.ID {
			mark = "*"
		}
		a.printf("%s %s  %s\n", mark, p.ID, p.Label(models.Projects))
	}
	return nil
}

func (a *App) Use(ctx context.Context, id string) error {
	if err := a.ws.Select(id); err != nil {
		return err
	}
	p, _ := a.ws.Active()
	a.printf("Switched to %s\n", p.Label(models.Projects))
	return nil
}

func (a *App) NewProject(ctx context.Context) error {
	name, err := GetSimpleText(a.reader, "Project name", a.out)
	if err != nil {
		return err
	}
	description, err := GetSimpleText(a.reader, "Description (optional)", a.out)
	if err != nil {
		return err
	}
	url, err := GetSimpleText(a.reader, "URL (optional)", a.out)
	if err != nil {
		return err
	}

	id, err := a.ws.CreateProject(ctx, name, description, url)
	if err != nil {
		return err
	}
	a.printf("Created project %s (%s)\n", name, id)
	return nil
}
