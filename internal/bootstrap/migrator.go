// Package bootstrap makes sure a tenant has at least one project. The first
// time a tenant is seen with no projects, a default project is created and
// every record that predates projects is moved into it.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/kopfkino/internal/logging"
	"github.com/dmitrijs2005/kopfkino/internal/models"
	"github.com/dmitrijs2005/kopfkino/internal/remote"
	"github.com/dmitrijs2005/kopfkino/internal/timex"
)

const (
	DefaultProjectName        = "Default Project"
	DefaultProjectDescription = "Your existing work"
)

type Migrator struct {
	src    remote.Source
	tenant string
	clock  timex.Clock
	log    logging.Logger
	newID  func() string
}

func NewMigrator(src remote.Source, tenant string, clock timex.Clock, log logging.Logger) *Migrator {
	if clock == nil {
		clock = timex.Real
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Migrator{
		src:    src,
		tenant: tenant,
		clock:  clock,
		log:    log.With("tenant", tenant),
		newID:  uuid.NewString,
	}
}

// Run creates the default project and adopts scope-less records into it
// when projects is empty. It returns the id of the created project, or ""
// when projects already existed.
//
// Two clients racing on an empty tenant may both create a default project;
// the duplicates are kept.
func (m *Migrator) Run(ctx context.Context, projects []models.Record) (string, error) {
	if len(projects) > 0 {
		return "", nil
	}

	now := m.clock.Now().UnixMilli()
	fields, err := models.Encode(models.Project{
		Name:        DefaultProjectName,
		Description: DefaultProjectDescription,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return "", fmt.Errorf("bootstrap: %w", err)
	}

	id := m.newID()
	if err := m.src.Upsert(ctx, models.Projects.Name, m.tenant, models.Record{ID: id, Fields: fields}); err != nil {
		return "", fmt.Errorf("bootstrap: create default project: %w", err)
	}
	m.log.Info(ctx, "default project created", "project", id)

	n, err := m.AdoptOrphans(ctx, id)
	if err != nil {
		return id, err
	}
	m.log.Info(ctx, "legacy records adopted", "project", id, "count", n)
	return id, nil
}

// AdoptOrphans assigns scopeID to every record of every scoped collection
// that has no scope yet, one batch per collection. Records that already
// carry a scope are never touched, so running it again is harmless.
func (m *Migrator) AdoptOrphans(ctx context.Context, scopeID string) (int, error) {
	total := 0
	for _, c := range models.ScopedCollections() {
		recs, err := m.src.Fetch(ctx, remote.Query{Tenant: m.tenant, Collection: c.Name, AllScopes: true})
		if err != nil {
			return total, fmt.Errorf("bootstrap: scan %s: %w", c.Name, err)
		}

		var patches []remote.Patch
		for _, r := range recs {
			if r.ScopeID == "" {
				patches = append(patches, remote.Patch{ID: r.ID, ScopeID: models.StringPtr(scopeID)})
			}
		}
		if len(patches) == 0 {
			continue
		}
		if err := m.src.BatchUpdate(ctx, c.Name, m.tenant, patches); err != nil {
			return total, fmt.Errorf("bootstrap: adopt %s: %w", c.Name, err)
		}
		m.log.Debug(ctx, "adopted records", "collection", c.Name, "count", len(patches))
		total += len(patches)
	}
	return total, nil
}
