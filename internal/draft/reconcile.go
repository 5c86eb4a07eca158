package draft

import (
	"context"

	"github.com/dmitrijs2005/kopfkino/internal/models"
)

// OnRemoteSnapshot reconciles the draft with a full snapshot of its
// collection. A Clean draft adopts the remote record. A Dirty draft is never
// modified; it turns Clean once the remote record matches it field by field.
//
// Snapshots may be stale, duplicated or arrive before the commit they
// reflect; none of that is assumed away here.
func (s *Session) OnRemoteSnapshot(records []models.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.adoptLocked(records)
	s.publishLocked()
}

func (s *Session) adoptLocked(records []models.Record) {
	rec, ok := models.Find(records, s.id)
	if !ok {
		s.remote = nil
		return
	}
	r := rec.Clone()
	s.remote = &r
	// The record exists remotely, so it is no longer a new draft.
	s.isNew = false

	switch s.state {
	case Clean:
		s.fields = r.Fields.Pick(s.coll.Fields)
		s.mirror = s.fields.Clone()
	case Dirty:
		if !s.fields.EqualOn(r.Fields, s.coll.Fields) {
			s.log.Debug(context.Background(), "remote differs from dirty draft, keeping local edits",
				"id", s.id, "diff", s.fields.DiffOn(r.Fields, s.coll.Fields))
			s.rearmLocked(r.Fields)
			return
		}
		s.state = Clean
		s.mirror = s.fields.Clone()
		s.debouncer.CancelAll()
		if s.status == StatusError {
			s.status = StatusIdle
			s.err = nil
		}
	}
}

// rearmLocked schedules another commit for every group that still differs
// from theirs when nothing else would write it. A snapshot older than the
// last commit would otherwise leave the draft Dirty with no save pending.
// Failed commits are left alone until the next edit.
func (s *Session) rearmLocked(theirs models.Fields) {
	if s.inFlight || s.status == StatusError {
		return
	}
	for _, g := range s.coll.GroupNames() {
		if s.debouncer.Pending(g) || s.fields.EqualOn(theirs, s.coll.GroupFields(g)) {
			continue
		}
		s.scheduleLocked(g)
	}
}
