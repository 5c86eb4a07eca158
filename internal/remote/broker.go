package remote

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/dmitrijs2005/kopfkino/internal/models"
)

// FetchFunc reads the current content of a query.
type FetchFunc func(ctx context.Context, q Query) ([]models.Record, error)

// Broker keeps the live subscriptions of a backend, grouped by tenant and
// collection, and refreshes them when a change is observed.
type Broker struct {
	mu   sync.Mutex
	subs map[string]map[*Subscription]struct{}
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[string]map[*Subscription]struct{})}
}

// Key identifies a (tenant, collection) pair in notification payloads.
func Key(tenant, collection string) string {
	return tenant + "/" + collection
}

// SplitKey is the inverse of Key. Collection names never contain '/'.
func SplitKey(key string) (tenant, collection string, ok bool) {
	i := strings.LastIndex(key, "/")
	if i <= 0 || i == len(key)-1 {
		return "", "", false
	}
	return key[:i], key[i+1:], true
}

// Add registers a subscription; closing it unregisters it.
func (b *Broker) Add(q Query, h Handler) *Subscription {
	key := Key(q.Tenant, q.Collection)
	var sub *Subscription
	sub = NewSubscription(q, h, func() { b.remove(key, sub) })

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs[key] == nil {
		b.subs[key] = make(map[*Subscription]struct{})
	}
	b.subs[key][sub] = struct{}{}
	return sub
}

func (b *Broker) remove(key string, sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs[key], sub)
	if len(b.subs[key]) == 0 {
		delete(b.subs, key)
	}
}

// Matching returns the subscriptions of one tenant and collection.
func (b *Broker) Matching(tenant, collection string) []*Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	set := b.subs[Key(tenant, collection)]
	out := make([]*Subscription, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	return out
}

// Refresh re-reads every matching subscription's query and delivers the
// result. Failed reads are returned joined; the subscriptions stay open.
func (b *Broker) Refresh(ctx context.Context, tenant, collection string, fetch FetchFunc) error {
	var errs []error
	for _, sub := range b.Matching(tenant, collection) {
		records, err := fetch(ctx, sub.Query())
		if err != nil {
			errs = append(errs, err)
			continue
		}
		sub.Deliver(records)
	}
	return errors.Join(errs...)
}

// FailAll terminates every subscription with err.
func (b *Broker) FailAll(err error) {
	for _, s := range b.all() {
		s.Fail(err)
	}
}

// CloseAll closes every subscription.
func (b *Broker) CloseAll() {
	for _, s := range b.all() {
		s.Close()
	}
}

func (b *Broker) all() []*Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []*Subscription
	for _, set := range b.subs {
		for s := range set {
			out = append(out, s)
		}
	}
	return out
}
