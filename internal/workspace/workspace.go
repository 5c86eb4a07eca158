// Package workspace is the tenant-level context of the client. It follows
// the tenant's projects and settings, bootstraps a default project for a
// tenant that has none, keeps track of the active project and owns the
// scope.Scope of that project.
package workspace

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/kopfkino/internal/bootstrap"
	"github.com/dmitrijs2005/kopfkino/internal/common"
	"github.com/dmitrijs2005/kopfkino/internal/draft"
	"github.com/dmitrijs2005/kopfkino/internal/logging"
	"github.com/dmitrijs2005/kopfkino/internal/models"
	"github.com/dmitrijs2005/kopfkino/internal/remote"
	"github.com/dmitrijs2005/kopfkino/internal/scope"
	"github.com/dmitrijs2005/kopfkino/internal/timex"
)

type Params struct {
	Tenant string
	Source remote.Source
	Clock  timex.Clock
	Logger logging.Logger
	// StatePath is the JSON file remembering the active project. Empty
	// disables persistence.
	StatePath string

	AutosaveDelay time.Duration
	SavedDisplay  time.Duration
}

type Workspace struct {
	p        Params
	log      logging.Logger
	migrator *bootstrap.Migrator

	ctx    context.Context
	cancel context.CancelFunc

	projectsSub *remote.Subscription
	settingsSub *remote.Subscription

	mu        sync.Mutex
	projects  []models.Record
	activeID  string
	active    *scope.Scope
	settings  models.Settings
	err       error
	closed    bool
	ready     chan struct{}
	readyOnce sync.Once
}

// Open subscribes to the tenant's projects and settings. The first projects
// snapshot decides the active project; WaitReady blocks until then.
func Open(ctx context.Context, p Params) (*Workspace, error) {
	if p.Clock == nil {
		p.Clock = timex.Real
	}
	if p.Logger == nil {
		p.Logger = logging.Nop()
	}

	activeID, err := loadActive(p.StatePath, p.Tenant)
	if err != nil {
		p.Logger.Warn(ctx, "ignoring local state", "err", err)
	}

	wctx, cancel := context.WithCancel(context.Background())
	w := &Workspace{
		p:        p,
		log:      p.Logger.With("tenant", p.Tenant),
		migrator: bootstrap.NewMigrator(p.Source, p.Tenant, p.Clock, p.Logger),
		ctx:      wctx,
		cancel:   cancel,
		activeID: activeID,
		settings: models.DefaultSettings(),
		ready:    make(chan struct{}),
	}

	w.settingsSub, err = remote.SubscribeSingleton(ctx, p.Source, p.Tenant, models.SettingsKey, w.onSettings)
	if err != nil {
		cancel()
		return nil, &common.SubscriptionError{Collection: models.Singletons.Name, Err: err}
	}

	q := remote.Query{Tenant: p.Tenant, Collection: models.Projects.Name, AllScopes: true}
	w.projectsSub, err = p.Source.Subscribe(ctx, q, w.onProjects)
	if err != nil {
		w.settingsSub.Close()
		cancel()
		return nil, &common.SubscriptionError{Collection: models.Projects.Name, Err: err}
	}
	return w, nil
}

// WaitReady blocks until the first projects snapshot was handled.
func (w *Workspace) WaitReady(ctx context.Context) error {
	select {
	case <-w.ready:
		return w.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the bootstrap failure that left the workspace without a
// project, if any. It is fatal: nothing can be edited without a project.
func (w *Workspace) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

func (w *Workspace) Projects() []models.Record {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]models.Record, len(w.projects))
	for i, r := range w.projects {
		out[i] = r.Clone()
	}
	return out
}

// Active returns the active project.
func (w *Workspace) Active() (models.Record, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	r, ok := models.Find(w.projects, w.activeID)
	if !ok {
		return models.Record{}, false
	}
	return r.Clone(), true
}

// Scope returns the context of the active project, or nil when none is
// selected.
func (w *Workspace) Scope() *scope.Scope {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.active
}

// Select makes id the active project. An empty id clears the selection.
func (w *Workspace) Select(id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return common.ErrClosed
	}
	if id != "" {
		if _, ok := models.Find(w.projects, id); !ok {
			return fmt.Errorf("select project %s: %w", id, common.ErrNotFound)
		}
	}
	w.setActiveLocked(id)
	return nil
}

// CreateProject writes a new project and makes it active.
func (w *Workspace) CreateProject(ctx context.Context, name, description, url string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", &common.ValidationError{Field: "name"}
	}
	now := w.p.Clock.Now().UnixMilli()
	fields, err := models.Encode(models.Project{
		Name: name, Description: description, URL: url, CreatedAt: now, UpdatedAt: now,
	})
	if err != nil {
		return "", err
	}

	id := uuid.NewString()
	if err := w.p.Source.Upsert(ctx, models.Projects.Name, w.p.Tenant, models.Record{ID: id, Fields: fields}); err != nil {
		return "", &common.CommitError{Op: "create", Collection: models.Projects.Name, ID: id, Err: err}
	}
	w.log.Info(ctx, "project created", "project", id)

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := models.Find(w.projects, id); !ok {
		// The snapshot has not arrived yet; show the project right away.
		w.projects = append(w.projects, models.Record{ID: id, Fields: fields})
	}
	w.setActiveLocked(id)
	return id, nil
}

// DeleteProject removes a project after c confirms. Records of the project
// are left in place.
func (w *Workspace) DeleteProject(ctx context.Context, id string, c draft.Confirmer) error {
	r, ok := w.find(id)
	if !ok {
		return fmt.Errorf("delete project %s: %w", id, common.ErrNotFound)
	}

	yes, err := c.Confirm(ctx, fmt.Sprintf("Delete project %q?", r.Label(models.Projects)))
	if err != nil {
		return fmt.Errorf("confirm delete: %w", err)
	}
	if !yes {
		return common.ErrNotConfirmed
	}

	if err := w.p.Source.Delete(ctx, models.Projects.Name, w.p.Tenant, id); err != nil {
		return &common.CommitError{Op: "delete", Collection: models.Projects.Name, ID: id, Err: err}
	}
	w.log.Info(ctx, "project deleted", "project", id)
	return nil
}

// Settings returns the tenant's settings, or the defaults if none were
// saved.
func (w *Workspace) Settings() models.Settings {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.settings
}

func (w *Workspace) SaveSettings(ctx context.Context, s models.Settings) error {
	fields, err := models.Encode(s)
	if err != nil {
		return err
	}
	if err := remote.SaveSingleton(ctx, w.p.Source, w.p.Tenant, models.SettingsKey, fields); err != nil {
		return &common.CommitError{Op: "save", Collection: models.Singletons.Name, ID: models.SettingsKey, Err: err}
	}
	w.mu.Lock()
	w.settings = s
	w.mu.Unlock()
	return nil
}

// Close ends the subscriptions and the active scope.
func (w *Workspace) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	active := w.active
	w.active = nil
	w.mu.Unlock()

	w.cancel()
	w.projectsSub.Close()
	w.settingsSub.Close()
	if active != nil {
		active.Close()
	}
}

func (w *Workspace) find(id string) (models.Record, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return models.Find(w.projects, id)
}

func (w *Workspace) onProjects(snap remote.Snapshot) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.projects = snap.Records

	if len(snap.Records) == 0 {
		w.mu.Unlock()
		w.bootstrap()
		w.markReady()
		return
	}

	if _, ok := models.Find(snap.Records, w.activeID); !ok {
		if len(snap.Records) == 1 {
			w.setActiveLocked(snap.Records[0].ID)
		} else {
			// Several projects and none of them chosen: the user picks.
			w.setActiveLocked("")
		}
	} else if w.active == nil {
		w.setActiveLocked(w.activeID)
	}
	w.mu.Unlock()
	w.markReady()
}

func (w *Workspace) bootstrap() {
	id, err := w.migrator.Run(w.ctx, nil)

	w.mu.Lock()
	defer w.mu.Unlock()
	if err != nil {
		w.err = fmt.Errorf("bootstrap default project: %w", err)
		w.log.Error(w.ctx, "bootstrap failed", "err", err)
		return
	}
	if w.closed {
		return
	}
	w.err = nil
	w.setActiveLocked(id)
}

func (w *Workspace) onSettings(f models.Fields, ok bool) {
	s := models.DefaultSettings()
	if ok {
		var err error
		if s, err = models.SettingsFrom(f); err != nil {
			w.log.Warn(w.ctx, "invalid settings, using defaults", "err", err)
			s = models.DefaultSettings()
		}
	}
	w.mu.Lock()
	w.settings = s
	w.mu.Unlock()
}

// setActiveLocked switches the active project, replacing its scope.
func (w *Workspace) setActiveLocked(id string) {
	if id == w.activeID && (id == "") == (w.active == nil) {
		return
	}
	if w.active != nil {
		w.active.Close()
		w.active = nil
	}
	w.activeID = id
	if id != "" {
		w.active = scope.New(scope.Params{
			Tenant:        w.p.Tenant,
			ScopeID:       id,
			Source:        w.p.Source,
			Clock:         w.p.Clock,
			Logger:        w.p.Logger,
			AutosaveDelay: w.p.AutosaveDelay,
			SavedDisplay:  w.p.SavedDisplay,
		})
	}
	if err := saveActive(w.p.StatePath, w.p.Tenant, id); err != nil {
		w.log.Warn(w.ctx, "active project not persisted", "err", err)
	}
	w.log.Debug(w.ctx, "active project", "project", id)
}

func (w *Workspace) markReady() {
	w.readyOnce.Do(func() { close(w.ready) })
}
