package remote

import (
	"context"

	"github.com/dmitrijs2005/kopfkino/internal/models"
)

// SubscribeSingleton streams one scope-independent document. fn receives
// (nil, false) while the document does not exist.
func SubscribeSingleton(ctx context.Context, src Source, tenant, key string, fn func(models.Fields, bool)) (*Subscription, error) {
	q := Query{Tenant: tenant, Collection: models.Singletons.Name, AllScopes: true}
	return src.Subscribe(ctx, q, func(s Snapshot) {
		r, ok := models.Find(s.Records, key)
		if !ok {
			fn(nil, false)
			return
		}
		fn(r.Fields.Clone(), true)
	})
}

// SaveSingleton overwrites a scope-independent document.
func SaveSingleton(ctx context.Context, src Source, tenant, key string, f models.Fields) error {
	return src.Upsert(ctx, models.Singletons.Name, tenant, models.Record{ID: key, Fields: f})
}
