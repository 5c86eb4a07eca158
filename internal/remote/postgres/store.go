// Package postgres is a remote.Source backed by PostgreSQL. Records of every
// collection live in one table as JSONB documents; each write notifies the
// kopfkino_records channel and a LISTEN connection refreshes the matching
// subscriptions.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/dmitrijs2005/kopfkino/internal/common"
	"github.com/dmitrijs2005/kopfkino/internal/dbx"
	"github.com/dmitrijs2005/kopfkino/internal/logging"
	"github.com/dmitrijs2005/kopfkino/internal/models"
	"github.com/dmitrijs2005/kopfkino/internal/remote"
)

// Channel carries "tenant/collection" payloads for every change.
const Channel = "kopfkino_records"

type Store struct {
	db     *sql.DB
	broker *remote.Broker
	log    logging.Logger

	// refreshMu orders initial fetches and notification refreshes so a
	// subscription never receives an older read after a newer one.
	refreshMu sync.Mutex

	stopListen context.CancelFunc
	listenDone chan struct{}
}

var _ remote.Source = (*Store)(nil)

// New wraps an open database. Without a listener (see Open) subscriptions
// only receive their initial snapshot and explicit Refresh calls.
func New(db *sql.DB, log logging.Logger) *Store {
	if log == nil {
		log = logging.Nop()
	}
	return &Store{db: db, broker: remote.NewBroker(), log: log.With("backend", "postgres")}
}

// Open connects to dsn, migrates the schema and starts listening for
// change notifications.
func Open(ctx context.Context, dsn string, log logging.Logger) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}
	if err := RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("listener connect error: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+Channel); err != nil {
		conn.Close(ctx)
		db.Close()
		return nil, fmt.Errorf("listen error: %w", err)
	}

	s := New(db, log)
	lctx, cancel := context.WithCancel(context.Background())
	s.stopListen = cancel
	s.listenDone = make(chan struct{})
	go s.listen(lctx, conn)
	return s, nil
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

const (
	selectAll = `SELECT id, scope_id, ord, fields FROM records
		WHERE tenant_id = $1 AND collection = $2
		ORDER BY seq`
	selectScoped = `SELECT id, scope_id, ord, fields FROM records
		WHERE tenant_id = $1 AND collection = $2 AND scope_id = $3
		ORDER BY seq`
	selectLegacy = `SELECT id, scope_id, ord, fields FROM records
		WHERE tenant_id = $1 AND collection = $2 AND scope_id IS NULL
		ORDER BY seq`
)

// Fetch returns the records of q in insertion order.
func (s *Store) Fetch(ctx context.Context, q remote.Query) ([]models.Record, error) {
	var (
		rows *sql.Rows
		err  error
	)
	switch {
	case q.AllScopes:
		rows, err = s.db.QueryContext(ctx, selectAll, q.Tenant, q.Collection)
	case q.ScopeID == "":
		rows, err = s.db.QueryContext(ctx, selectLegacy, q.Tenant, q.Collection)
	default:
		rows, err = s.db.QueryContext(ctx, selectScoped, q.Tenant, q.Collection, q.ScopeID)
	}
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", q.Collection, err)
	}
	defer rows.Close()

	result := []models.Record{}
	for rows.Next() {
		var (
			r      models.Record
			scope  sql.NullString
			ord    sql.NullInt64
			fields []byte
		)
		if err := rows.Scan(&r.ID, &scope, &ord, &fields); err != nil {
			return nil, fmt.Errorf("scan %s: %w", q.Collection, err)
		}
		r.ScopeID = scope.String
		if ord.Valid {
			r.Order = models.IntPtr(int(ord.Int64))
		}
		if len(fields) > 0 {
			if err := json.Unmarshal(fields, &r.Fields); err != nil {
				return nil, fmt.Errorf("decode %s/%s: %w", q.Collection, r.ID, err)
			}
		}
		if r.Fields == nil {
			r.Fields = models.Fields{}
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("select %s: %w", q.Collection, err)
	}
	return result, nil
}

func (s *Store) Upsert(ctx context.Context, collection, tenant string, rec models.Record) error {
	fields, err := encodeFields(rec.Fields)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO records (tenant_id, collection, id, scope_id, ord, fields)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb)
		ON CONFLICT (tenant_id, collection, id)
		DO UPDATE SET
			scope_id = EXCLUDED.scope_id,
			ord = EXCLUDED.ord,
			fields = EXCLUDED.fields,
			updated_at = now()`

	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := tx.ExecContext(ctx, query,
			tenant, collection, rec.ID, nullString(rec.ScopeID), nullInt(rec.Order), fields); err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		return notify(ctx, tx, tenant, collection)
	})
}

func (s *Store) Delete(ctx context.Context, collection, tenant, id string) error {
	query := `DELETE FROM records WHERE tenant_id = $1 AND collection = $2 AND id = $3`

	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		res, err := tx.ExecContext(ctx, query, tenant, collection, id)
		if err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		n, err := dbx.RowsAffected(res)
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		return notify(ctx, tx, tenant, collection)
	})
}

// BatchUpdate applies every patch in one transaction. Fields are merged
// into the stored document with the jsonb || operator.
func (s *Store) BatchUpdate(ctx context.Context, collection, tenant string, patches []remote.Patch) error {
	if len(patches) == 0 {
		return nil
	}
	query := `
		UPDATE records SET
			ord = COALESCE($4, ord),
			scope_id = COALESCE($5, scope_id),
			fields = fields || $6::jsonb,
			updated_at = now()
		WHERE tenant_id = $1 AND collection = $2 AND id = $3`

	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		for _, p := range patches {
			fields, err := encodeFields(p.Fields)
			if err != nil {
				return err
			}
			var scope sql.NullString
			if p.ScopeID != nil {
				scope = nullString(*p.ScopeID)
			}
			res, err := tx.ExecContext(ctx, query, tenant, collection, p.ID, nullInt(p.Order), scope, fields)
			if err != nil {
				return fmt.Errorf("db error: %w", err)
			}
			n, err := dbx.RowsAffected(res)
			if err != nil {
				return err
			}
			if n == 0 {
				return fmt.Errorf("patch %s/%s: %w", collection, p.ID, common.ErrNotFound)
			}
		}
		return notify(ctx, tx, tenant, collection)
	})
}

// Refresh re-reads every subscription of tenant and collection.
func (s *Store) Refresh(ctx context.Context, tenant, collection string) error {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()
	return s.broker.Refresh(ctx, tenant, collection, s.Fetch)
}

func (s *Store) Close() error {
	if s.stopListen != nil {
		s.stopListen()
		<-s.listenDone
	}
	s.broker.CloseAll()
	return s.db.Close()
}

func (s *Store) listen(ctx context.Context, conn *pgx.Conn) {
	defer close(s.listenDone)
	defer conn.Close(context.Background())

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			if errors.Is(ctx.Err(), context.Canceled) {
				return
			}
			s.log.Error(ctx, "notification stream failed", "err", err)
			s.broker.FailAll(err)
			return
		}
		s.handleNotification(ctx, n.Payload)
	}
}

func (s *Store) handleNotification(ctx context.Context, payload string) {
	tenant, collection, ok := remote.SplitKey(payload)
	if !ok {
		s.log.Warn(ctx, "malformed notification", "payload", payload)
		return
	}
	if err := s.Refresh(ctx, tenant, collection); err != nil {
		s.log.Error(ctx, "refresh failed", "tenant", tenant, "collection", collection, "err", err)
	}
}

func notify(ctx context.Context, tx dbx.DBTX, tenant, collection string) error {
	if _, err := tx.ExecContext(ctx, `SELECT pg_notify($1, $2)`, Channel, remote.Key(tenant, collection)); err != nil {
		return fmt.Errorf("notify error: %w", err)
	}
	return nil
}

func encodeFields(f models.Fields) (string, error) {
	if f == nil {
		return "{}", nil
	}
	b, err := json.Marshal(f)
	if err != nil {
		return "", fmt.Errorf("encode fields: %w", err)
	}
	return string(b), nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(i *int) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*i), Valid: true}
}
