package redisstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/kopfkino/internal/common"
	"github.com/dmitrijs2005/kopfkino/internal/models"
	"github.com/dmitrijs2005/kopfkino/internal/remote"
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

func (r *recorder) lastRecords() []models.Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.snaps) == 0 {
		return nil
	}
	return r.snaps[len(r.snaps)-1].Records
}

func (r *recorder) lastIDs() []string {
	return models.IDs(r.lastRecords())
}

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	s, err := Open(context.Background(), "redis://"+mr.Addr(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func loc(id, scope, name string) models.Record {
	return models.Record{ID: id, ScopeID: scope, Fields: models.Fields{"name": name}}
}

func TestOpen_BadURL(t *testing.T) {
	_, err := Open(context.Background(), "not-a-url", nil)
	require.Error(t, err)
}

func TestOpen_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := Open(context.Background(), "redis://"+addr, nil)
	require.Error(t, err)
}

func TestStore_UpsertFetchKeepsArrivalOrder(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	for _, id := range []string{"c", "a", "b"} {
		require.NoError(t, s.Upsert(ctx, "scenes", "t1", loc(id, "p1", id)))
	}
	// Rewriting a record must not move it.
	require.NoError(t, s.Upsert(ctx, "scenes", "t1", loc("c", "p1", "renamed")))

	got, err := s.Fetch(ctx, remote.Query{Tenant: "t1", Collection: "scenes", ScopeID: "p1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a", "b"}, models.IDs(got))
	assert.Equal(t, "renamed", got[0].Fields.String("name"))
}

func TestStore_UpsertRejectsEmptyID(t *testing.T) {
	s, _ := newTestStore(t)
	err := s.Upsert(context.Background(), "scenes", "t1", models.Record{})
	require.Error(t, err)
}

func TestStore_FetchFiltersScope(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	require.NoError(t, s.Upsert(ctx, "locations", "t1", loc("a", "p1", "Attic")))
	require.NoError(t, s.Upsert(ctx, "locations", "t1", loc("b", "", "Legacy")))
	require.NoError(t, s.Upsert(ctx, "locations", "t1", loc("c", "p2", "Cellar")))
	require.NoError(t, s.Upsert(ctx, "locations", "t2", loc("d", "p1", "Other tenant")))

	scoped, err := s.Fetch(ctx, remote.Query{Tenant: "t1", Collection: "locations", ScopeID: "p1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, models.IDs(scoped))

	legacy, err := s.Fetch(ctx, remote.Query{Tenant: "t1", Collection: "locations"})
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, models.IDs(legacy))

	all, err := s.Fetch(ctx, remote.Query{Tenant: "t1", Collection: "locations", AllScopes: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, models.IDs(all))
}

func TestStore_SubscribeFollowsChanges(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	require.NoError(t, s.Upsert(ctx, "locations", "t1", loc("a", "p1", "Attic")))

	rec := &recorder{}
	sub, err := s.Subscribe(ctx, remote.Query{Tenant: "t1", Collection: "locations", ScopeID: "p1"}, rec.handle)
	require.NoError(t, err)
	defer sub.Close()

	require.Eventually(t, func() bool { return len(rec.lastIDs()) == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, s.Upsert(ctx, "locations", "t1", loc("b", "p1", "Barn")))
	require.Eventually(t, func() bool {
		ids := rec.lastIDs()
		return len(ids) == 2 && ids[1] == "b"
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, s.Delete(ctx, "locations", "t1", "a"))
	require.Eventually(t, func() bool {
		ids := rec.lastIDs()
		return len(ids) == 1 && ids[0] == "b"
	}, 2*time.Second, 5*time.Millisecond)
}

func TestStore_LostNotificationStreamFailsSubscriptions(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	rec := &recorder{}
	sub, err := s.Subscribe(ctx, remote.Query{Tenant: "t1", Collection: "locations", ScopeID: "p1"}, rec.handle)
	require.NoError(t, err)

	require.NoError(t, s.pubsub.Close())

	select {
	case <-sub.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("subscription still open after the notification stream ended")
	}
	assert.ErrorIs(t, sub.Err(), errStreamClosed)
}

func TestStore_CloseEndsSubscriptionsWithoutError(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	s, err := Open(ctx, "redis://"+mr.Addr(), nil)
	require.NoError(t, err)

	sub, err := s.Subscribe(ctx, remote.Query{Tenant: "t1", Collection: "locations", ScopeID: "p1"}, func(remote.Snapshot) {})
	require.NoError(t, err)

	require.NoError(t, s.Close())
	<-sub.Done()
	assert.NoError(t, sub.Err())
}

func TestStore_SubscribeSeesOtherWriters(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestStore(t)

	other, err := Open(ctx, "redis://"+mr.Addr(), nil)
	require.NoError(t, err)
	defer other.Close()

	rec := &recorder{}
	sub, err := s.Subscribe(ctx, remote.Query{Tenant: "t1", Collection: "characters", ScopeID: "p1"}, rec.handle)
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, other.Upsert(ctx, "characters", "t1", models.Record{
		ID: "x", ScopeID: "p1", Fields: models.Fields{"name": "Ada"},
	}))

	require.Eventually(t, func() bool {
		recs := rec.lastRecords()
		return len(recs) == 1 && recs[0].Fields.String("name") == "Ada"
	}, 2*time.Second, 5*time.Millisecond)
}

func TestStore_BatchUpdateMergesPatches(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	require.NoError(t, s.Upsert(ctx, "scenes", "t1", models.Record{
		ID: "a", ScopeID: "p1", Fields: models.Fields{"title": "Open", "notes": "keep"},
	}))
	require.NoError(t, s.Upsert(ctx, "scenes", "t1", loc("b", "p1", "b")))

	err := s.BatchUpdate(ctx, "scenes", "t1", []remote.Patch{
		{ID: "a", Order: models.IntPtr(1), Fields: models.Fields{"title": "Opening"}},
		{ID: "b", Order: models.IntPtr(0)},
	})
	require.NoError(t, err)

	got, err := s.Fetch(ctx, remote.Query{Tenant: "t1", Collection: "scenes", ScopeID: "p1"})
	require.NoError(t, err)
	require.Len(t, got, 2)

	a, _ := models.Find(got, "a")
	require.NotNil(t, a.Order)
	assert.Equal(t, 1, *a.Order)
	assert.Equal(t, "Opening", a.Fields.String("title"))
	assert.Equal(t, "keep", a.Fields.String("notes"))

	b, _ := models.Find(got, "b")
	require.NotNil(t, b.Order)
	assert.Equal(t, 0, *b.Order)
}

func TestStore_BatchUpdateIsAtomic(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	require.NoError(t, s.Upsert(ctx, "scenes", "t1", loc("a", "p1", "a")))

	err := s.BatchUpdate(ctx, "scenes", "t1", []remote.Patch{
		{ID: "a", Order: models.IntPtr(3)},
		{ID: "missing", Order: models.IntPtr(4)},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrNotFound))

	got, err := s.Fetch(ctx, remote.Query{Tenant: "t1", Collection: "scenes", ScopeID: "p1"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Nil(t, got[0].Order)
}

func TestStore_BatchUpdateEmpty(t *testing.T) {
	s, _ := newTestStore(t)
	require.NoError(t, s.BatchUpdate(context.Background(), "scenes", "t1", nil))
}

func TestStore_BatchUpdateMovesScope(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	require.NoError(t, s.Upsert(ctx, "locations", "t1", loc("a", "", "Legacy")))
	require.NoError(t, s.BatchUpdate(ctx, "locations", "t1", []remote.Patch{
		{ID: "a", ScopeID: models.StringPtr("p1")},
	}))

	got, err := s.Fetch(ctx, remote.Query{Tenant: "t1", Collection: "locations", ScopeID: "p1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, models.IDs(got))
}

func TestStore_DeleteMissingIsNoop(t *testing.T) {
	s, _ := newTestStore(t)
	require.NoError(t, s.Delete(context.Background(), "scenes", "t1", "nope"))
}

func TestStore_FetchBadDocument(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestStore(t)

	mr.HSet(key("t1", "scenes"), "a", "{not json")

	_, err := s.Fetch(ctx, remote.Query{Tenant: "t1", Collection: "scenes", AllScopes: true})
	require.Error(t, err)

	_, err = s.Subscribe(ctx, remote.Query{Tenant: "t1", Collection: "scenes", AllScopes: true}, func(remote.Snapshot) {})
	var subErr *common.SubscriptionError
	require.ErrorAs(t, err, &subErr)
	assert.Equal(t, "scenes", subErr.Collection)
}

func TestStore_SingletonRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	require.NoError(t, remote.SaveSingleton(ctx, s, "t1", models.SettingsKey, models.Fields{"theme": "dark"}))

	got := make(chan models.Fields, 4)
	sub, err := remote.SubscribeSingleton(ctx, s, "t1", models.SettingsKey, func(f models.Fields, ok bool) {
		if ok {
			got <- f
		}
	})
	require.NoError(t, err)
	defer sub.Close()

	select {
	case f := <-got:
		assert.Equal(t, "dark", f.String("theme"))
	case <-time.After(2 * time.Second):
		t.Fatal("no singleton snapshot")
	}
}
