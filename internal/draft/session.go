// Package draft implements the per-record editing session: a local working
// copy of a record's editable fields that autosaves after a quiet period and
// reconciles itself against the live remote snapshots of its collection.
//
// A session is driven by two event sources only. Local edits (SetField,
// MarkDirty) mark the draft Dirty and re-arm the debounced commit of the
// edited field group. Remote snapshots (OnRemoteSnapshot) either overwrite a
// Clean draft or, for a Dirty one, confirm it once the remote caught up.
//
// Errors never escape autosave: a failed commit shows up as StatusError in
// the View and is retried by the next edit.
package draft

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/kopfkino/internal/common"
	"github.com/dmitrijs2005/kopfkino/internal/logging"
	"github.com/dmitrijs2005/kopfkino/internal/models"
	"github.com/dmitrijs2005/kopfkino/internal/remote"
	"github.com/dmitrijs2005/kopfkino/internal/scope"
	"github.com/dmitrijs2005/kopfkino/internal/timex"
)

// NewID opens a draft for a record that does not exist yet.
const NewID = "new"

// View is a point-in-time copy of a session's state.
type View struct {
	ID     string
	IsNew  bool
	Fields models.Fields
	State  State
	Status SaveStatus
	// Err is the last commit error while Status is StatusError.
	Err error
	// Exists reports whether the record was present in the latest snapshot.
	Exists bool
}

type Session struct {
	sc        *scope.Scope
	coll      models.Collection
	log       logging.Logger
	debouncer *timex.Debouncer
	feed      *scope.Feed
	unlisten  func()

	mu    sync.Mutex
	id    string
	isNew bool
	// epoch changes whenever the session switches records; results of
	// commits started under an older epoch are dropped.
	epoch  uint64
	fields models.Fields
	// mirror holds the debounced value of every editable field.
	mirror models.Fields
	remote *models.Record
	state  State
	status SaveStatus
	err    error

	commitSeq  uint64
	savedTimer timex.Timer
	closed     bool

	// inFlight is set while an autosave commit runs; followUp records that
	// another one became due meanwhile.
	inFlight bool
	followUp bool

	updates chan View
}

// Open starts a session on record id of collection c. Passing NewID starts a
// draft for a new record with a freshly generated id.
func Open(ctx context.Context, sc *scope.Scope, c models.Collection, id string) (*Session, error) {
	feed, err := sc.Feed(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("open %s/%s: %w", c.Name, id, err)
	}

	s := &Session{
		sc:        sc,
		coll:      c,
		log:       sc.Logger().With("collection", c.Name),
		debouncer: timex.NewDebouncer(sc.Clock(), sc.AutosaveDelay()),
		feed:      feed,
		updates:   make(chan View, 1),
	}
	s.mu.Lock()
	s.resetLocked(id)
	s.mu.Unlock()

	// Listen replays the latest snapshot, which populates the draft.
	s.unlisten = feed.Listen(func(snap remote.Snapshot) { s.OnRemoteSnapshot(snap.Records) })
	return s, nil
}

// SetField changes one editable field of the draft and re-arms autosave for
// the field's group. The draft becomes Dirty even if value equals the
// current one.
func (s *Session) SetField(name string, value any) error {
	if !s.coll.Editable(name) {
		return fmt.Errorf("set %s on %s: %w", name, s.coll.Name, common.ErrUnknownField)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return common.ErrClosed
	}

	s.setFieldLocked(name, value)
	return nil
}

func (s *Session) setFieldLocked(name string, value any) {
	s.fields.Set(name, value)
	s.state = Dirty
	s.scheduleLocked(s.coll.GroupOf(name))
	s.publishLocked()
}

// MarkDirty flags the draft as holding unconfirmed edits and re-arms
// autosave for every field group.
func (s *Session) MarkDirty() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.state = Dirty
	for _, g := range s.coll.GroupNames() {
		s.scheduleLocked(g)
	}
	s.publishLocked()
}

// Navigate switches the session to another record. Unsaved edits of the
// current record are discarded and the new record is adopted from the
// latest snapshot regardless of the previous state.
func (s *Session) Navigate(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if s.state == Dirty {
		s.log.Debug(context.Background(), "discarding unsaved edits", "id", s.id)
	}
	s.resetLocked(id)
	if snap, ok := s.feed.Latest(); ok {
		s.adoptLocked(snap.Records)
	}
	s.publishLocked()
}

// Close cancels pending autosaves and stops listening for snapshots. A
// commit still in flight is allowed to finish but its result is dropped.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.debouncer.Stop()
	s.stopSavedTimerLocked()
	close(s.updates)
	s.mu.Unlock()

	if s.unlisten != nil {
		s.unlisten()
	}
}

// State returns a copy of the current state.
func (s *Session) State() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

// Updates delivers a View after every state change. Only the newest
// undelivered View is kept. The channel is closed by Close.
func (s *Session) Updates() <-chan View { return s.updates }

func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

func (s *Session) Collection() models.Collection { return s.coll }

func (s *Session) resetLocked(id string) {
	s.debouncer.CancelAll()
	s.stopSavedTimerLocked()
	s.epoch++
	s.inFlight, s.followUp = false, false
	s.isNew = id == NewID
	s.id = id
	if s.isNew {
		s.id = uuid.NewString()
	}
	s.fields = models.Fields{}
	s.mirror = models.Fields{}
	s.remote = nil
	s.state = Clean
	s.status = StatusIdle
	s.err = nil
}

func (s *Session) viewLocked() View {
	return View{
		ID:     s.id,
		IsNew:  s.isNew,
		Fields: s.fields.Pick(s.coll.Fields),
		State:  s.state,
		Status: s.status,
		Err:    s.err,
		Exists: s.remote != nil,
	}
}

func (s *Session) publishLocked() {
	if s.closed {
		return
	}
	v := s.viewLocked()
	select {
	case <-s.updates:
	default:
	}
	s.updates <- v
}
