package draft

import (
	"context"

	"github.com/dmitrijs2005/kopfkino/internal/common"
	"github.com/dmitrijs2005/kopfkino/internal/models"
	"github.com/dmitrijs2005/kopfkino/internal/remote"
)

// scheduleLocked re-arms the debounced commit of one field group. Drafts of
// records that do not exist yet are only written by Create.
func (s *Session) scheduleLocked(group string) {
	if s.isNew {
		return
	}
	epoch := s.epoch
	s.debouncer.Trigger(group, func() { s.settle(group, epoch) })
}

// settle copies the quiesced values of group into the debounced mirror and
// commits if the mirror now differs from the remote record.
func (s *Session) settle(group string, epoch uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || epoch != s.epoch {
		return
	}

	for _, name := range s.coll.GroupFields(group) {
		if v, ok := s.fields[name]; ok {
			s.mirror.Set(name, v)
		} else {
			delete(s.mirror, name)
		}
	}
	s.maybeCommitLocked()
}

func (s *Session) maybeCommitLocked() {
	ctx := context.Background()

	if s.state != Dirty || s.isNew {
		return
	}
	if s.inFlight {
		// One commit at a time keeps writes in order; resolve runs the rest.
		s.followUp = true
		return
	}
	if s.mirror.Blank(s.coll.LabelField) {
		s.log.Debug(ctx, "autosave suppressed: label is blank", "id", s.id, "field", s.coll.LabelField)
		return
	}
	if s.remote != nil && s.mirror.EqualOn(s.remote.Fields, s.coll.Fields) {
		s.log.Debug(ctx, "autosave skipped: no changes", "id", s.id)
		return
	}

	s.commitSeq++
	seq, epoch, id := s.commitSeq, s.epoch, s.id
	committed := s.mirror.Pick(s.coll.Fields)

	s.stopSavedTimerLocked()
	s.status = StatusSaving
	s.err = nil
	s.inFlight = true
	s.publishLocked()

	go s.commit(id, seq, epoch, committed)
}

// commit writes only the editable fields, so it never overwrites a
// concurrent order update of the same record.
func (s *Session) commit(id string, seq, epoch uint64, committed models.Fields) {
	ctx := context.Background()
	patch := remote.Patch{ID: id, Fields: committed}
	err := s.sc.Source().BatchUpdate(ctx, s.coll.Name, s.sc.Tenant(), []remote.Patch{patch})
	s.resolve(id, seq, epoch, committed, err)
}

// resolve classifies a finished commit against the draft as it is now and
// starts the commit that was held back while this one was in flight.
func (s *Session) resolve(id string, seq, epoch uint64, committed models.Fields, err error) {
	ctx := context.Background()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || epoch != s.epoch {
		s.log.Debug(ctx, "commit result discarded", "id", id, "seq", seq, "err", err)
		return
	}
	s.inFlight = false
	defer s.followUpLocked()
	if seq != s.commitSeq {
		return
	}

	if err != nil {
		s.status = StatusError
		s.err = &common.CommitError{Op: "autosave", Collection: s.coll.Name, ID: id, Err: err}
		s.log.Error(ctx, "autosave failed", "id", id, "err", err)
		s.publishLocked()
		return
	}

	if s.fields.EqualOn(committed, s.coll.Fields) {
		s.status = StatusSaved
		s.armSavedTimerLocked()
		s.log.Debug(ctx, "autosave committed", "id", id, "seq", seq)
	} else {
		// The user kept typing; the newer edits have their own cycle.
		s.status = StatusIdle
		s.log.Debug(ctx, "autosave superseded by newer edits", "id", id, "seq", seq)
	}
	s.publishLocked()
}

func (s *Session) followUpLocked() {
	if !s.followUp {
		return
	}
	s.followUp = false
	s.maybeCommitLocked()
}

func (s *Session) armSavedTimerLocked() {
	s.stopSavedTimerLocked()
	epoch, seq := s.epoch, s.commitSeq
	s.savedTimer = s.sc.Clock().AfterFunc(s.sc.SavedDisplay(), func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed || s.epoch != epoch || s.commitSeq != seq || s.status != StatusSaved {
			return
		}
		s.status = StatusIdle
		s.savedTimer = nil
		s.publishLocked()
	})
}

func (s *Session) stopSavedTimerLocked() {
	if s.savedTimer != nil {
		s.savedTimer.Stop()
		s.savedTimer = nil
	}
}
