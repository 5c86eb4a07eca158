// Package remote defines the contract of the real-time document store the
// client syncs with, plus the subscription plumbing shared by its backends.
//
// A Source pushes a full Snapshot of a query's scope on subscribe and after
// every change. Writes are whole-record upserts, deletes, or batched partial
// patches; there is no version check, so the last writer wins for the fields
// a write touches.
package remote

import (
	"context"
	"time"

	"github.com/dmitrijs2005/kopfkino/internal/models"
)

// Query selects the records of one collection for one tenant.
type Query struct {
	Tenant     string
	Collection string
	// ScopeID restricts the query to one project. Ignored when AllScopes is set.
	ScopeID string
	// AllScopes returns every record, including legacy scope-less ones.
	AllScopes bool
}

// Matches reports whether r belongs to the query's scope.
func (q Query) Matches(r models.Record) bool {
	return q.AllScopes || r.ScopeID == q.ScopeID
}

// Snapshot is the full content of a query at one point in time. Records are
// in arrival order: the order in which they were first written.
type Snapshot struct {
	Query   Query
	Records []models.Record
	// Seq increases with every snapshot delivered on one subscription.
	Seq uint64
	At  time.Time
}

// Patch is a partial update of one record. Nil pointers and absent fields
// are left untouched.
type Patch struct {
	ID      string
	Order   *int
	ScopeID *string
	Fields  models.Fields
}

// Apply merges p into r.
func (p Patch) Apply(r *models.Record) {
	if p.Order != nil {
		r.Order = models.IntPtr(*p.Order)
	}
	if p.ScopeID != nil {
		r.ScopeID = *p.ScopeID
	}
	if len(p.Fields) > 0 && r.Fields == nil {
		r.Fields = models.Fields{}
	}
	for k, v := range p.Fields.Clone() {
		r.Fields[k] = v
	}
}

// Handler receives snapshots of one subscription, in order, on a dedicated
// goroutine.
type Handler func(Snapshot)

// Source is the remote collection store.
type Source interface {
	// Subscribe starts a push stream for q. The first snapshot is delivered
	// right after subscribing.
	Subscribe(ctx context.Context, q Query, h Handler) (*Subscription, error)

	// Fetch reads the current content of q once.
	Fetch(ctx context.Context, q Query) ([]models.Record, error)

	// Upsert writes a whole record.
	Upsert(ctx context.Context, collection, tenant string, rec models.Record) error

	// Delete removes a record. Deleting a missing record is not an error.
	Delete(ctx context.Context, collection, tenant, id string) error

	// BatchUpdate applies partial patches atomically. If any patched record
	// is missing the whole batch fails with common.ErrNotFound.
	BatchUpdate(ctx context.Context, collection, tenant string, patches []Patch) error

	Close() error
}
