package draft

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/kopfkino/internal/common"
	"github.com/dmitrijs2005/kopfkino/internal/models"
)

// Confirmer is the blocking yes/no gate in front of destructive actions.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, prompt string) (bool, error)

func (f ConfirmFunc) Confirm(ctx context.Context, prompt string) (bool, error) {
	return f(ctx, prompt)
}

// Create writes a new draft to the remote store right away, bypassing the
// debounce. The label field is required.
func (s *Session) Create(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return common.ErrClosed
	}
	if !s.isNew {
		s.mu.Unlock()
		return &common.ValidationError{Field: "id", Reason: "already exists"}
	}
	if s.fields.Blank(s.coll.LabelField) {
		s.mu.Unlock()
		return &common.ValidationError{Field: s.coll.LabelField}
	}

	rec := models.Record{ID: s.id, ScopeID: s.sc.ID(), Fields: s.fields.Pick(s.coll.Fields)}
	epoch := s.epoch
	s.status = StatusSaving
	s.err = nil
	s.publishLocked()
	s.mu.Unlock()

	err := s.sc.Source().Upsert(ctx, s.coll.Name, s.sc.Tenant(), rec)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		ce := &common.CommitError{Op: "create", Collection: s.coll.Name, ID: rec.ID, Err: err}
		s.log.Error(ctx, "create failed", "id", rec.ID, "err", err)
		if !s.closed && epoch == s.epoch {
			s.status = StatusError
			s.err = ce
			s.publishLocked()
		}
		return ce
	}
	s.log.Info(ctx, "record created", "id", rec.ID, "label", rec.Label(s.coll))
	if s.closed || epoch != s.epoch {
		return nil
	}

	s.isNew = false
	s.mirror = rec.Fields.Clone()
	if s.fields.EqualOn(rec.Fields, s.coll.Fields) {
		s.status = StatusSaved
		s.armSavedTimerLocked()
	} else {
		// Edits made while the create was in flight go through autosave.
		s.status = StatusIdle
		for _, g := range s.coll.GroupNames() {
			s.scheduleLocked(g)
		}
	}
	s.publishLocked()
	return nil
}

// Delete removes the record after c confirms. A refusal returns
// common.ErrNotConfirmed without touching the remote store. On success the
// session is closed.
func (s *Session) Delete(ctx context.Context, c Confirmer) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return common.ErrClosed
	}
	id, isNew := s.id, s.isNew
	label := s.fields.String(s.coll.LabelField)
	s.mu.Unlock()

	ok, err := c.Confirm(ctx, fmt.Sprintf("Delete %s %q?", s.coll.Name, label))
	if err != nil {
		return fmt.Errorf("confirm delete: %w", err)
	}
	if !ok {
		return common.ErrNotConfirmed
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return common.ErrClosed
	}
	if s.id != id {
		s.mu.Unlock()
		return fmt.Errorf("delete %s/%s: session moved to another record", s.coll.Name, id)
	}
	s.debouncer.CancelAll()
	s.stopSavedTimerLocked()
	// Drop results of autosaves still in flight.
	s.epoch++
	s.inFlight, s.followUp = false, false
	s.mu.Unlock()

	if !isNew {
		if err := s.sc.Source().Delete(ctx, s.coll.Name, s.sc.Tenant(), id); err != nil {
			ce := &common.CommitError{Op: "delete", Collection: s.coll.Name, ID: id, Err: err}
			s.log.Error(ctx, "delete failed", "id", id, "err", err)
			s.mu.Lock()
			if !s.closed {
				s.status = StatusError
				s.err = ce
				s.publishLocked()
			}
			s.mu.Unlock()
			return ce
		}
		s.log.Info(ctx, "record deleted", "id", id)
	}

	s.Close()
	return nil
}
