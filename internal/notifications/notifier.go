// Package notifications turns domain events into persisted per-user
// notifications. Delivery is best effort: callers log failures and move on.
package notifications

import (
	"context"
	"log/slog"

	"github.com/geocoder89/synergysphere/internal/cache"
	"github.com/geocoder89/synergysphere/internal/domain/notification"
	"github.com/geocoder89/synergysphere/internal/observability"
)

type Notifier interface {
	Notify(ctx context.Context, reqs ...notification.CreateRequest) error
}

type Store interface {
	CreateMany(ctx context.Context, items []notification.Notification) error
}

// StoreNotifier persists notifications and drops the cached unread count of
// every recipient so the next read recomputes it. Once the rows are stored a
// cache failure is only logged: the cached count expires on its own TTL.
type StoreNotifier struct {
	store   Store
	counter cache.Counter
	prom    *observability.Prom
}

func NewStoreNotifier(store Store, counter cache.Counter, prom *observability.Prom) *StoreNotifier {
	return &StoreNotifier{store: store, counter: counter, prom: prom}
}

func (n *StoreNotifier) Notify(ctx context.Context, reqs ...notification.CreateRequest) error {
	items := make([]notification.Notification, 0, len(reqs))
	keys := make([]string, 0, len(reqs))
	seen := make(map[string]struct{}, len(reqs))

	for _, req := range reqs {
		if req.UserID == "" {
			continue
		}

		items = append(items, notification.New(req))

		if _, ok := seen[req.UserID]; !ok {
			seen[req.UserID] = struct{}{}
			keys = append(keys, cache.UnreadCountKey(req.UserID))
		}
	}

	if len(items) == 0 {
		return nil
	}

	if err := n.store.CreateMany(ctx, items); err != nil {
		return err
	}

	if n.prom != nil {
		for _, it := range items {
			n.prom.NotificationsCreated.WithLabelValues(string(it.Type)).Inc()
		}
	}

	if n.counter != nil {
		if err := n.counter.Delete(ctx, keys...); err != nil {
			if n.prom != nil {
				n.prom.UnreadCacheLookups.WithLabelValues("invalidate_error").Inc()
			}
			slog.WarnContext(ctx, "unread count invalidation failed",
				"recipients", len(keys),
				"err", err,
			)
		}
	}

	return nil
}
