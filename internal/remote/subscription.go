package remote

import (
	"sync"
	"time"

	"github.com/dmitrijs2005/kopfkino/internal/models"
)

// Subscription delivers snapshots to its handler. Only the newest
// undelivered snapshot is kept: a slow handler sees fewer snapshots, never
// stale ones after fresh ones.
type Subscription struct {
	query   Query
	handler Handler
	onClose func()

	mu      sync.Mutex
	pending *Snapshot
	seq     uint64
	err     error

	wake      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewSubscription starts the delivery goroutine. onClose, if set, runs once
// when the subscription is closed.
func NewSubscription(q Query, h Handler, onClose func()) *Subscription {
	s := &Subscription{
		query:   q,
		handler: h,
		onClose: onClose,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go s.loop()
	return s
}

func (s *Subscription) Query() Query { return s.query }

// Deliver queues a snapshot of records. It never blocks.
func (s *Subscription) Deliver(records []models.Record) {
	s.mu.Lock()
	select {
	case <-s.done:
		s.mu.Unlock()
		return
	default:
	}
	s.seq++
	s.pending = &Snapshot{Query: s.query, Records: records, Seq: s.seq, At: time.Now()}
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Fail terminates the subscription with err.
func (s *Subscription) Fail(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
	s.Close()
}

// Err returns the error that terminated the subscription, if any.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Done is closed once the subscription stops delivering.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Close stops delivery. It is safe to call from inside the handler.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		close(s.done)
		s.pending = nil
		s.mu.Unlock()
		if s.onClose != nil {
			s.onClose()
		}
	})
}

func (s *Subscription) loop() {
	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}

		s.mu.Lock()
		snap := s.pending
		s.pending = nil
		s.mu.Unlock()

		if snap == nil {
			continue
		}
		select {
		case <-s.done:
			return
		default:
		}
		s.handler(*snap)
	}
}
