package workspace

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/kopfkino/internal/bootstrap"
	"github.com/dmitrijs2005/kopfkino/internal/common"
	"github.com/dmitrijs2005/kopfkino/internal/draft"
	"github.com/dmitrijs2005/kopfkino/internal/models"
	"github.com/dmitrijs2005/kopfkino/internal/remote"
	"github.com/dmitrijs2005/kopfkino/internal/remote/memory"
)

func open(t *testing.T, src remote.Source, statePath string) *Workspace {
	t.Helper()
	w, err := Open(context.Background(), Params{Tenant: "t1", Source: src, StatePath: statePath})
	require.NoError(t, err)
	t.Cleanup(w.Close)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, w.WaitReady(ctx))
	return w
}

func project(t *testing.T, src remote.Source, id, name string) {
	t.Helper()
	f, err := models.Encode(models.Project{Name: name})
	require.NoError(t, err)
	require.NoError(t, src.Upsert(context.Background(), "projects", "t1", models.Record{ID: id, Fields: f}))
}

func yes() draft.Confirmer {
	return draft.ConfirmFunc(func(context.Context, string) (bool, error) { return true, nil })
}

func no() draft.Confirmer {
	return draft.ConfirmFunc(func(context.Context, string) (bool, error) { return false, nil })
}

func TestOpen_BootstrapsEmptyTenant(t *testing.T) {
	ctx := context.Background()
	src := memory.NewStore()
	defer src.Close()
	for _, id := range []string{"l1", "l2", "l3"} {
		require.NoError(t, src.Upsert(ctx, "locations", "t1", models.Record{ID: id}))
	}

	w := open(t, src, "")

	active, ok := w.Active()
	require.Eventually(t, func() bool {
		active, ok = w.Active()
		return ok
	}, time.Second, time.Millisecond)
	assert.Equal(t, bootstrap.DefaultProjectName, active.Label(models.Projects))
	require.NotNil(t, w.Scope())
	assert.Equal(t, active.ID, w.Scope().ID())

	recs, err := src.Fetch(ctx, remote.Query{Tenant: "t1", Collection: "locations", ScopeID: active.ID})
	require.NoError(t, err)
	assert.Len(t, recs, 3)

	require.Eventually(t, func() bool { return len(w.Projects()) == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	all, err := src.Fetch(ctx, remote.Query{Tenant: "t1", Collection: "projects", AllScopes: true})
	require.NoError(t, err)
	assert.Len(t, all, 1, "bootstrap runs once")
}

func TestOpen_SingleProjectIsSelected(t *testing.T) {
	src := memory.NewStore()
	defer src.Close()
	project(t, src, "p1", "Short film")

	w := open(t, src, "")
	active, ok := w.Active()
	require.True(t, ok)
	assert.Equal(t, "p1", active.ID)
}

func TestOpen_SeveralProjectsAndPersistedSelection(t *testing.T) {
	src := memory.NewStore()
	defer src.Close()
	project(t, src, "p1", "One")
	project(t, src, "p2", "Two")
	state := filepath.Join(t.TempDir(), "state.json")

	w := open(t, src, state)
	_, ok := w.Active()
	assert.False(t, ok, "with several projects the user picks")
	assert.Nil(t, w.Scope())

	assert.ErrorIs(t, w.Select("nope"), common.ErrNotFound)
	require.NoError(t, w.Select("p2"))
	assert.Equal(t, "p2", w.Scope().ID())
	w.Close()

	again := open(t, src, state)
	active, ok := again.Active()
	require.True(t, ok)
	assert.Equal(t, "p2", active.ID)
	require.NotNil(t, again.Scope())
}

func TestOpen_InvalidSelectionIsCleared(t *testing.T) {
	src := memory.NewStore()
	defer src.Close()
	project(t, src, "p1", "One")
	project(t, src, "p2", "Two")
	state := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, saveActive(state, "t1", "gone"))

	w := open(t, src, state)
	_, ok := w.Active()
	assert.False(t, ok)

	id, err := loadActive(state, "t1")
	require.NoError(t, err)
	assert.Empty(t, id)
}

func TestCreateAndDeleteProject(t *testing.T) {
	ctx := context.Background()
	src := memory.NewStore()
	defer src.Close()
	project(t, src, "p1", "One")

	w := open(t, src, "")

	_, err := w.CreateProject(ctx, "  ", "", "")
	assert.ErrorIs(t, err, common.ErrValidation)

	id, err := w.CreateProject(ctx, "Two", "second", "https://example.org")
	require.NoError(t, err)
	active, ok := w.Active()
	require.True(t, ok)
	assert.Equal(t, id, active.ID)
	assert.Equal(t, id, w.Scope().ID())

	require.Eventually(t, func() bool { return len(w.Projects()) == 2 }, time.Second, time.Millisecond)

	assert.ErrorIs(t, w.DeleteProject(ctx, id, no()), common.ErrNotConfirmed)
	assert.Len(t, w.Projects(), 2)

	require.NoError(t, w.DeleteProject(ctx, id, yes()))
	require.Eventually(t, func() bool {
		a, ok := w.Active()
		return ok && a.ID == "p1"
	}, time.Second, time.Millisecond, "the only remaining project is selected")

	assert.ErrorIs(t, w.DeleteProject(ctx, "missing", yes()), common.ErrNotFound)
}

func TestSettings(t *testing.T) {
	ctx := context.Background()
	src := memory.NewStore()
	defer src.Close()
	project(t, src, "p1", "One")

	w := open(t, src, "")
	assert.Equal(t, models.DefaultSettings(), w.Settings())

	seed := 42
	want := models.Settings{AspectRatio: models.AspectSquare, CustomSeed: &seed}
	require.NoError(t, w.SaveSettings(ctx, want))
	require.Eventually(t, func() bool {
		s := w.Settings()
		return s.AspectRatio == models.AspectSquare && s.CustomSeed != nil
	}, time.Second, time.Millisecond)
	assert.Equal(t, want, w.Settings())

	other := open(t, src, "")
	require.Eventually(t, func() bool {
		s := other.Settings()
		return s.AspectRatio == models.AspectSquare && s.CustomSeed != nil && *s.CustomSeed == 42 && !s.UseRandomSeed
	}, time.Second, time.Millisecond)
}

func TestSettings_PartialDocumentKeepsDefaults(t *testing.T) {
	ctx := context.Background()
	src := memory.NewStore()
	defer src.Close()
	project(t, src, "p1", "One")
	require.NoError(t, remote.SaveSingleton(ctx, src, "t1", models.SettingsKey, models.Fields{"aspectRatio": "1:1"}))

	w := open(t, src, "")
	require.Eventually(t, func() bool { return w.Settings().AspectRatio == models.AspectSquare }, time.Second, time.Millisecond)
	assert.True(t, w.Settings().UseRandomSeed)

	require.NoError(t, remote.SaveSingleton(ctx, src, "t1", models.SettingsKey, models.Fields{"useRandomSeed": "sometimes"}))
	require.Eventually(t, func() bool { return w.Settings() == models.DefaultSettings() }, time.Second, time.Millisecond,
		"an unreadable document falls back to the defaults")
}

type failingUpserts struct {
	*memory.Store
}

func (failingUpserts) Upsert(context.Context, string, string, models.Record) error {
	return errors.New("read-only replica")
}

func TestOpen_BootstrapFailureIsFatal(t *testing.T) {
	mem := memory.NewStore()
	defer mem.Close()

	w, err := Open(context.Background(), Params{Tenant: "t1", Source: failingUpserts{mem}})
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err = w.WaitReady(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read-only replica")
	assert.Nil(t, w.Scope())
}
