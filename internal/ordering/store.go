// Package ordering keeps the visible order of a scoped collection. The
// persisted integer order of each record decides the position; records that
// were never ordered follow in arrival order.
//
// Reordering is optimistic: the visible list changes at once and the new
// positions are written in one batch that touches only the order field. The
// visible list is replaced only by a newer snapshot, never patched.
package ordering

import (
	"context"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/kopfkino/internal/common"
	"github.com/dmitrijs2005/kopfkino/internal/logging"
	"github.com/dmitrijs2005/kopfkino/internal/models"
	"github.com/dmitrijs2005/kopfkino/internal/remote"
	"github.com/dmitrijs2005/kopfkino/internal/scope"
)

type Store struct {
	sc       *scope.Scope
	coll     models.Collection
	log      logging.Logger
	unlisten func()

	mu      sync.Mutex
	items   []models.Record
	loaded  bool
	closed  bool
	updates chan []models.Record
}

// Open starts an ordered view of collection c in sc.
func Open(ctx context.Context, sc *scope.Scope, c models.Collection) (*Store, error) {
	if !c.Ordered {
		return nil, fmt.Errorf("ordering %s: collection is not ordered", c.Name)
	}
	feed, err := sc.Feed(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("ordering %s: %w", c.Name, err)
	}

	s := &Store{
		sc:      sc,
		coll:    c,
		log:     sc.Logger().With("collection", c.Name),
		updates: make(chan []models.Record, 1),
	}
	s.unlisten = feed.Listen(func(snap remote.Snapshot) { s.Apply(snap.Records) })
	return s, nil
}

// Items returns the visible records in order.
func (s *Store) Items() []models.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneAll(s.items)
}

// Loaded reports whether a snapshot has arrived yet.
func (s *Store) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded
}

// Updates delivers the visible list after every change. Only the newest
// undelivered list is kept. The channel is closed by Close.
func (s *Store) Updates() <-chan []models.Record { return s.updates }

// Apply replaces the visible list with a sorted snapshot.
func (s *Store) Apply(records []models.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.items = Sort(records)
	s.loaded = true
	s.publishLocked()
}

// Reorder shows ids as the new order right away and persists each record's
// position as its order. ids must be a permutation of the visible records.
// A failed write is returned but the visible order is kept.
func (s *Store) Reorder(ctx context.Context, ids []string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return common.ErrClosed
	}
	if err := checkPermutation(s.items, ids); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("reorder %s: %w", s.coll.Name, err)
	}

	byID := make(map[string]models.Record, len(s.items))
	for _, r := range s.items {
		byID[r.ID] = r
	}
	next := make([]models.Record, len(ids))
	patches := make([]remote.Patch, len(ids))
	for i, id := range ids {
		r := byID[id].Clone()
		r.Order = models.IntPtr(i)
		next[i] = r
		patches[i] = remote.Patch{ID: id, Order: models.IntPtr(i)}
	}
	s.items = next
	s.publishLocked()
	s.mu.Unlock()

	if err := s.sc.Source().BatchUpdate(ctx, s.coll.Name, s.sc.Tenant(), patches); err != nil {
		s.log.Warn(ctx, "reorder not persisted", "ids", ids, "err", err)
		return &common.CommitError{Op: "reorder", Collection: s.coll.Name, Err: err}
	}
	s.log.Debug(ctx, "reorder persisted", "count", len(ids))
	return nil
}

// Move reorders by moving the record at index from to index to.
func (s *Store) Move(ctx context.Context, from, to int) error {
	s.mu.Lock()
	ids := models.IDs(s.items)
	s.mu.Unlock()

	moved, err := ArrayMove(ids, from, to)
	if err != nil {
		return fmt.Errorf("move %s: %w", s.coll.Name, err)
	}
	return s.Reorder(ctx, moved)
}

// Close stops following the feed.
func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.updates)
	s.mu.Unlock()
	s.unlisten()
}

func (s *Store) publishLocked() {
	items := cloneAll(s.items)
	select {
	case <-s.updates:
	default:
	}
	s.updates <- items
}

func cloneAll(records []models.Record) []models.Record {
	out := make([]models.Record, len(records))
	for i, r := range records {
		out[i] = r.Clone()
	}
	return out
}
