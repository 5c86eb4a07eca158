package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/kopfkino/internal/common"
	"github.com/dmitrijs2005/kopfkino/internal/models"
	"github.com/dmitrijs2005/kopfkino/internal/remote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu    sync.Mutex
	snaps []remote.Snapshot
}

func (r *recorder) handle(s remote.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, s)
}

func (r *recorder) last() (remote.Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.snaps) == 0 {
		return remote.Snapshot{}, false
	}
	return r.snaps[len(r.snaps)-1], true
}

func (r *recorder) lastIDs() []string {
	s, ok := r.last()
	if !ok {
		return nil
	}
	return models.IDs(s.Records)
}

func loc(id, scope, name string) models.Record {
	return models.Record{ID: id, ScopeID: scope, Fields: models.Fields{"name": name}}
}

func TestStore_SubscribeDeliversInitialAndChanges(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	defer s.Close()

	require.NoError(t, s.Upsert(ctx, "locations", "t1", loc("a", "p1", "Attic")))

	rec := &recorder{}
	sub, err := s.Subscribe(ctx, remote.Query{Tenant: "t1", Collection: "locations", ScopeID: "p1"}, rec.handle)
	require.NoError(t, err)
	defer sub.Close()

	require.Eventually(t, func() bool { return len(rec.lastIDs()) == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, s.Upsert(ctx, "locations", "t1", loc("b", "p1", "Barn")))
	require.NoError(t, s.Upsert(ctx, "locations", "t1", loc("c", "p2", "Cellar")))
	require.NoError(t, s.Upsert(ctx, "locations", "t2", loc("d", "p1", "Other tenant")))

	require.Eventually(t, func() bool {
		ids := rec.lastIDs()
		return len(ids) == 2 && ids[0] == "a" && ids[1] == "b"
	}, time.Second, 5*time.Millisecond)
}

func TestStore_ArrivalOrderSurvivesUpdates(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	defer s.Close()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.Upsert(ctx, "scenes", "t1", loc(id, "p1", id)))
	}
	require.NoError(t, s.Upsert(ctx, "scenes", "t1", loc("a", "p1", "renamed")))

	got, err := s.Fetch(ctx, remote.Query{Tenant: "t1", Collection: "scenes", ScopeID: "p1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, models.IDs(got))
	assert.Equal(t, "renamed", got[0].Fields.String("name"))
}

func TestStore_BatchUpdateIsPartialAndAtomic(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	defer s.Close()

	require.NoError(t, s.Upsert(ctx, "characters", "t1", models.Record{
		ID: "x", ScopeID: "p1", Fields: models.Fields{"name": "Ada", "comment": "lead"},
	}))
	require.NoError(t, s.Upsert(ctx, "characters", "t1", loc("y", "p1", "Bo")))

	err := s.BatchUpdate(ctx, "characters", "t1", []remote.Patch{
		{ID: "x", Order: models.IntPtr(1)},
		{ID: "missing", Order: models.IntPtr(0)},
	})
	require.ErrorIs(t, err, common.ErrNotFound)

	got, err := s.Fetch(ctx, remote.Query{Tenant: "t1", Collection: "characters", ScopeID: "p1"})
	require.NoError(t, err)
	assert.Nil(t, got[0].Order, "failed batch must not apply any patch")

	require.NoError(t, s.BatchUpdate(ctx, "characters", "t1", []remote.Patch{
		{ID: "x", Order: models.IntPtr(1)},
		{ID: "y", Order: models.IntPtr(0), Fields: models.Fields{"comment": "sidekick"}},
	}))

	got, err = s.Fetch(ctx, remote.Query{Tenant: "t1", Collection: "characters", ScopeID: "p1"})
	require.NoError(t, err)
	assert.Equal(t, 1, *got[0].Order)
	assert.Equal(t, "lead", got[0].Fields.String("comment"))
	assert.Equal(t, "Ada", got[0].Fields.String("name"))
	assert.Equal(t, 0, *got[1].Order)
	assert.Equal(t, "sidekick", got[1].Fields.String("comment"))
}

func TestStore_AllScopesIncludesLegacy(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	defer s.Close()

	require.NoError(t, s.Upsert(ctx, "locations", "t1", loc("legacy", "", "Old")))
	require.NoError(t, s.Upsert(ctx, "locations", "t1", loc("new", "p1", "New")))

	all, err := s.Fetch(ctx, remote.Query{Tenant: "t1", Collection: "locations", AllScopes: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"legacy", "new"}, models.IDs(all))

	scoped, err := s.Fetch(ctx, remote.Query{Tenant: "t1", Collection: "locations", ScopeID: "p1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"new"}, models.IDs(scoped))
}

func TestStore_DeleteAndClose(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	require.NoError(t, s.Upsert(ctx, "locations", "t1", loc("a", "p1", "A")))
	require.NoError(t, s.Delete(ctx, "locations", "t1", "a"))
	require.NoError(t, s.Delete(ctx, "locations", "t1", "a"), "deleting twice is fine")

	got, err := s.Fetch(ctx, remote.Query{Tenant: "t1", Collection: "locations", ScopeID: "p1"})
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, s.Close())
	assert.True(t, errors.Is(s.Upsert(ctx, "locations", "t1", loc("b", "p1", "B")), common.ErrClosed))
	_, err = s.Subscribe(ctx, remote.Query{Tenant: "t1", Collection: "locations"}, func(remote.Snapshot) {})
	assert.ErrorIs(t, err, common.ErrSubscription)
}

func TestSingleton(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	defer s.Close()

	type state struct {
		fields models.Fields
		ok     bool
	}
	var mu sync.Mutex
	var seen []state

	sub, err := remote.SubscribeSingleton(ctx, s, "t1", models.SettingsKey, func(f models.Fields, ok bool) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, state{f, ok})
	})
	require.NoError(t, err)
	defer sub.Close()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) > 0 && !seen[len(seen)-1].ok
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, remote.SaveSingleton(ctx, s, "t1", models.SettingsKey, models.Fields{"aspectRatio": "1:1"}))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		last := seen[len(seen)-1]
		return last.ok && last.fields.String("aspectRatio") == "1:1"
	}, time.Second, 5*time.Millisecond)
}
