// Package memory is an in-process remote.Source. Every write publishes a
// fresh snapshot to the matching subscriptions before it returns.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dmitrijs2005/kopfkino/internal/common"
	"github.com/dmitrijs2005/kopfkino/internal/models"
	"github.com/dmitrijs2005/kopfkino/internal/remote"
)

type row struct {
	rec models.Record
	seq uint64
}

type Store struct {
	mu     sync.Mutex
	tables map[string]map[string]*row
	seq    uint64
	broker *remote.Broker
	closed bool
}

var _ remote.Source = (*Store)(nil)

func NewStore() *Store {
	return &Store{tables: make(map[string]map[string]*row), broker: remote.NewBroker()}
}

func (s *Store) Subscribe(ctx context.Context, q remote.Query, h remote.Handler) (*remote.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, &common.SubscriptionError{Collection: q.Collection, Err: common.ErrClosed}
	}
	sub := s.broker.Add(q, h)
	sub.Deliver(s.snapshotLocked(q))
	return sub, nil
}

func (s *Store) Fetch(ctx context.Context, q remote.Query) ([]models.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, common.ErrClosed
	}
	return s.snapshotLocked(q), nil
}

func (s *Store) Upsert(ctx context.Context, collection, tenant string, rec models.Record) error {
	if rec.ID == "" {
		return fmt.Errorf("upsert %s: empty id", collection)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return common.ErrClosed
	}

	t := s.tableLocked(tenant, collection)
	if existing, ok := t[rec.ID]; ok {
		existing.rec = rec.Clone()
	} else {
		s.seq++
		t[rec.ID] = &row{rec: rec.Clone(), seq: s.seq}
	}
	s.publishLocked(tenant, collection)
	return nil
}

func (s *Store) Delete(ctx context.Context, collection, tenant, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return common.ErrClosed
	}

	t := s.tableLocked(tenant, collection)
	if _, ok := t[id]; !ok {
		return nil
	}
	delete(t, id)
	s.publishLocked(tenant, collection)
	return nil
}

func (s *Store) BatchUpdate(ctx context.Context, collection, tenant string, patches []remote.Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return common.ErrClosed
	}
	if len(patches) == 0 {
		return nil
	}

	t := s.tableLocked(tenant, collection)
	for _, p := range patches {
		if _, ok := t[p.ID]; !ok {
			return fmt.Errorf("patch %s/%s: %w", collection, p.ID, common.ErrNotFound)
		}
	}
	for _, p := range patches {
		p.Apply(&t[p.ID].rec)
	}
	s.publishLocked(tenant, collection)
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.broker.CloseAll()
	return nil
}

func (s *Store) tableLocked(tenant, collection string) map[string]*row {
	key := remote.Key(tenant, collection)
	t, ok := s.tables[key]
	if !ok {
		t = make(map[string]*row)
		s.tables[key] = t
	}
	return t
}

func (s *Store) snapshotLocked(q remote.Query) []models.Record {
	t := s.tables[remote.Key(q.Tenant, q.Collection)]
	rows := make([]*row, 0, len(t))
	for _, r := range t {
		if q.Matches(r.rec) {
			rows = append(rows, r)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].seq < rows[j].seq })

	out := make([]models.Record, len(rows))
	for i, r := range rows {
		out[i] = r.rec.Clone()
	}
	return out
}

// publishLocked runs under s.mu so every subscription sees writes in the
// order they were applied.
func (s *Store) publishLocked(tenant, collection string) {
	for _, sub := range s.broker.Matching(tenant, collection) {
		sub.Deliver(s.snapshotLocked(sub.Query()))
	}
}
