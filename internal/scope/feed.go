package scope

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/kopfkino/internal/common"
	"github.com/dmitrijs2005/kopfkino/internal/logging"
	"github.com/dmitrijs2005/kopfkino/internal/models"
	"github.com/dmitrijs2005/kopfkino/internal/remote"
)

// Listener receives feed snapshots in delivery order. It must not call
// Listen on the same feed.
type Listener func(remote.Snapshot)

// Feed fans the snapshots of one subscription out to any number of
// listeners and remembers the latest one.
type Feed struct {
	collection models.Collection
	log        logging.Logger
	sub        *remote.Subscription

	// deliverMu serialises delivery and the replay done by Listen, so a
	// listener never sees an older snapshot after a newer one.
	deliverMu sync.Mutex

	mu        sync.Mutex
	latest    *remote.Snapshot
	listeners map[uint64]Listener
	nextID    uint64
}

func newFeed(c models.Collection, log logging.Logger) *Feed {
	return &Feed{collection: c, log: log, listeners: make(map[uint64]Listener)}
}

func (f *Feed) start(sub *remote.Subscription) {
	f.sub = sub
	go func() {
		<-sub.Done()
		if err := sub.Err(); err != nil {
			f.log.Error(context.Background(), "subscription failed",
				"err", &common.SubscriptionError{Collection: f.collection.Name, Err: err})
		}
	}()
}

func (f *Feed) Collection() models.Collection { return f.collection }

// Latest returns the most recent snapshot, if one has arrived.
func (f *Feed) Latest() (remote.Snapshot, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.latest == nil {
		return remote.Snapshot{}, false
	}
	return *f.latest, true
}

// Listen registers l and replays the latest snapshot to it before
// returning. The returned func unregisters l; a delivery already in
// progress may still reach it once.
func (f *Feed) Listen(l Listener) (cancel func()) {
	f.deliverMu.Lock()
	defer f.deliverMu.Unlock()

	f.mu.Lock()
	f.nextID++
	id := f.nextID
	f.listeners[id] = l
	latest := f.latest
	f.mu.Unlock()

	if latest != nil {
		l(*latest)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.listeners, id)
			f.mu.Unlock()
		})
	}
}

// Err returns the error that ended the underlying subscription, if any.
func (f *Feed) Err() error {
	if f.sub == nil {
		return nil
	}
	if err := f.sub.Err(); err != nil {
		return &common.SubscriptionError{Collection: f.collection.Name, Err: err}
	}
	return nil
}

func (f *Feed) deliver(s remote.Snapshot) {
	f.deliverMu.Lock()
	defer f.deliverMu.Unlock()

	f.mu.Lock()
	f.latest = &s
	ls := make([]Listener, 0, len(f.listeners))
	for _, l := range f.listeners {
		ls = append(ls, l)
	}
	f.mu.Unlock()

	for _, l := range ls {
		l(s)
	}
}

func (f *Feed) close() {
	f.mu.Lock()
	f.listeners = make(map[uint64]Listener)
	f.mu.Unlock()
	if f.sub != nil {
		f.sub.Close()
	}
}
