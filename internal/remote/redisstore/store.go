// Package redisstore is a remote.Source backed by Redis. Each tenant and
// collection is one hash of JSON documents keyed by record id; writes run
// in MULTI/EXEC transactions and announce themselves on a pub/sub channel
// that refreshes the matching subscriptions.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrijs2005/kopfkino/internal/common"
	"github.com/dmitrijs2005/kopfkino/internal/logging"
	"github.com/dmitrijs2005/kopfkino/internal/models"
	"github.com/dmitrijs2005/kopfkino/internal/remote"
)

const (
	// Channel carries "tenant/collection" payloads for every change.
	Channel = "kopfkino:changes"

	prefix     = "kopfkino:records:"
	seqKey     = "kopfkino:seq"
	maxRetries = 16
)

var errStreamClosed = errors.New("notification channel closed")

// doc is the stored form of a record.
type doc struct {
	ID      string        `json:"id"`
	ScopeID string        `json:"projectId,omitempty"`
	Order   *int          `json:"order,omitempty"`
	Fields  models.Fields `json:"fields,omitempty"`
	Seq     int64         `json:"seq"`
}

func (d doc) record() models.Record {
	return models.Record{ID: d.ID, ScopeID: d.ScopeID, Order: d.Order, Fields: d.Fields}.Clone()
}

type Store struct {
	client *redis.Client
	broker *remote.Broker
	log    logging.Logger

	refreshMu sync.Mutex

	pubsub  *redis.PubSub
	done    chan struct{}
	closing atomic.Bool
}

var _ remote.Source = (*Store)(nil)

// Open connects to redisURL and starts following change notifications.
func Open(ctx context.Context, redisURL string, log logging.Logger) (*Store, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	s, err := NewWithClient(ctx, client, log)
	if err != nil {
		client.Close()
		return nil, err
	}
	return s, nil
}

// NewWithClient builds a store on an existing client. The store owns the
// client from now on.
func NewWithClient(ctx context.Context, client *redis.Client, log logging.Logger) (*Store, error) {
	if log == nil {
		log = logging.Nop()
	}
	s := &Store{
		client: client,
		broker: remote.NewBroker(),
		log:    log.With("backend", "redis"),
		done:   make(chan struct{}),
	}

	s.pubsub = client.Subscribe(ctx, Channel)
	// Wait for the subscription to be confirmed so no change is missed.
	if _, err := s.pubsub.Receive(ctx); err != nil {
		s.pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", Channel, err)
	}
	go s.listen()
	return s, nil
}

func key(tenant, collection string) string {
	return prefix + remote.Key(tenant, collection)
}

func (s *Store) Subscribe(ctx context.Context, q remote.Query, h remote.Handler) (*remote.Subscription, error) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	sub := s.broker.Add(q, h)
	records, err := s.Fetch(ctx, q)
	if err != nil {
		sub.Close()
		return nil, &common.SubscriptionError{Collection: q.Collection, Err: err}
	}
	sub.Deliver(records)
	return sub, nil
}

func (s *Store) Fetch(ctx context.Context, q remote.Query) ([]models.Record, error) {
	raw, err := s.client.HGetAll(ctx, key(q.Tenant, q.Collection)).Result()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", q.Collection, err)
	}

	docs := make([]doc, 0, len(raw))
	for id, v := range raw {
		var d doc
		if err := json.Unmarshal([]byte(v), &d); err != nil {
			return nil, fmt.Errorf("decode %s/%s: %w", q.Collection, id, err)
		}
		docs = append(docs, d)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Seq < docs[j].Seq })

	out := []models.Record{}
	for _, d := range docs {
		r := d.record()
		if q.Matches(r) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Store) Upsert(ctx context.Context, collection, tenant string, rec models.Record) error {
	if rec.ID == "" {
		return fmt.Errorf("upsert %s: empty id", collection)
	}
	k := key(tenant, collection)
	return s.transact(ctx, k, func(tx *redis.Tx) (func(redis.Pipeliner) error, error) {
		seq, err := existingSeq(ctx, tx, k, rec.ID)
		if err != nil {
			return nil, err
		}
		if seq == 0 {
			if seq, err = s.client.Incr(ctx, seqKey).Result(); err != nil {
				return nil, fmt.Errorf("next seq: %w", err)
			}
		}
		r := rec.Clone()
		b, err := json.Marshal(doc{ID: r.ID, ScopeID: r.ScopeID, Order: r.Order, Fields: r.Fields, Seq: seq})
		if err != nil {
			return nil, fmt.Errorf("encode %s/%s: %w", collection, rec.ID, err)
		}
		return func(p redis.Pipeliner) error {
			p.HSet(ctx, k, rec.ID, b)
			p.Publish(ctx, Channel, remote.Key(tenant, collection))
			return nil
		}, nil
	})
}

func (s *Store) Delete(ctx context.Context, collection, tenant, id string) error {
	k := key(tenant, collection)
	n, err := s.client.HDel(ctx, k, id).Result()
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	if n == 0 {
		return nil
	}
	if err := s.client.Publish(ctx, Channel, remote.Key(tenant, collection)).Err(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// BatchUpdate applies every patch in one MULTI/EXEC. The hash is watched,
// so a concurrent write makes the transaction retry on fresh data.
func (s *Store) BatchUpdate(ctx context.Context, collection, tenant string, patches []remote.Patch) error {
	if len(patches) == 0 {
		return nil
	}
	k := key(tenant, collection)
	ids := make([]string, len(patches))
	for i, p := range patches {
		ids[i] = p.ID
	}

	return s.transact(ctx, k, func(tx *redis.Tx) (func(redis.Pipeliner) error, error) {
		vals, err := tx.HMGet(ctx, k, ids...).Result()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", collection, err)
		}

		docs := make(map[string]*doc, len(ids))
		for i, v := range vals {
			str, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("patch %s/%s: %w", collection, ids[i], common.ErrNotFound)
			}
			if _, seen := docs[ids[i]]; seen {
				continue
			}
			var d doc
			if err := json.Unmarshal([]byte(str), &d); err != nil {
				return nil, fmt.Errorf("decode %s/%s: %w", collection, ids[i], err)
			}
			docs[ids[i]] = &d
		}

		for _, p := range patches {
			d := docs[p.ID]
			r := d.record()
			p.Apply(&r)
			d.ScopeID, d.Order, d.Fields = r.ScopeID, r.Order, r.Fields
		}

		values := make([]any, 0, 2*len(docs))
		for id, d := range docs {
			b, err := json.Marshal(d)
			if err != nil {
				return nil, fmt.Errorf("encode %s/%s: %w", collection, id, err)
			}
			values = append(values, id, b)
		}
		return func(p redis.Pipeliner) error {
			p.HSet(ctx, k, values...)
			p.Publish(ctx, Channel, remote.Key(tenant, collection))
			return nil
		}, nil
	})
}

// Refresh re-reads every subscription of tenant and collection.
func (s *Store) Refresh(ctx context.Context, tenant, collection string) error {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()
	return s.broker.Refresh(ctx, tenant, collection, s.Fetch)
}

func (s *Store) Close() error {
	s.closing.Store(true)
	err := s.pubsub.Close()
	<-s.done
	s.broker.CloseAll()
	return errors.Join(err, s.client.Close())
}

// transact runs prepare under WATCH k and executes the commands it returns
// in MULTI/EXEC, retrying when k changed in between.
func (s *Store) transact(ctx context.Context, k string, prepare func(tx *redis.Tx) (func(redis.Pipeliner) error, error)) error {
	txf := func(tx *redis.Tx) error {
		cmds, err := prepare(tx)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, cmds)
		return err
	}

	for i := 0; i < maxRetries; i++ {
		err := s.client.Watch(ctx, txf, k)
		if errors.Is(err, redis.TxFailedErr) {
			s.log.Debug(ctx, "transaction conflict, retrying", "key", k, "attempt", i+1)
			continue
		}
		return err
	}
	return fmt.Errorf("transaction on %s: too many conflicts", k)
}

func existingSeq(ctx context.Context, tx *redis.Tx, k, id string) (int64, error) {
	v, err := tx.HGet(ctx, k, id).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", id, err)
	}
	var d doc
	if err := json.Unmarshal([]byte(v), &d); err != nil {
		return 0, fmt.Errorf("decode %s: %w", id, err)
	}
	return d.Seq, nil
}

func (s *Store) listen() {
	defer close(s.done)
	ctx := context.Background()

	for msg := range s.pubsub.Channel() {
		tenant, collection, ok := remote.SplitKey(msg.Payload)
		if !ok {
			s.log.Warn(ctx, "malformed notification", "payload", msg.Payload)
			continue
		}
		if err := s.Refresh(ctx, tenant, collection); err != nil {
			s.log.Error(ctx, "refresh failed", "tenant", tenant, "collection", collection, "err", err)
		}
	}

	if !s.closing.Load() {
		s.log.Error(ctx, "notification stream failed", "err", errStreamClosed)
		s.broker.FailAll(errStreamClosed)
	}
}
