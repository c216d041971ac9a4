package notifications

import (
	"context"
	"errors"
	"log/slog"

	"github.com/geocoder89/synergysphere/internal/cache"
	"github.com/geocoder89/synergysphere/internal/domain/notification"
	"github.com/geocoder89/synergysphere/internal/observability"
)

// LogNotifier is the outermost layer handlers talk to. It never returns an
// error: failures are logged and counted, and the triggering request goes on.
type LogNotifier struct {
	inner Notifier
	log   *slog.Logger
	prom  *observability.Prom
}

func NewLogNotifier(inner Notifier, log *slog.Logger, prom *observability.Prom) *LogNotifier {
	if log == nil {
		log = slog.Default()
	}
	return &LogNotifier{inner: inner, log: log, prom: prom}
}

func (n *LogNotifier) Notify(ctx context.Context, reqs ...notification.CreateRequest) error {
	if len(reqs) == 0 {
		return nil
	}

	err := n.inner.Notify(ctx, reqs...)
	if err == nil {
		n.log.DebugContext(ctx, "notifications created",
			"type", string(reqs[0].Type),
			"count", len(reqs),
		)
		return nil
	}

	reason := "store_error"
	if errors.Is(err, ErrCircuitOpen) {
		reason = "circuit_open"
	}

	if n.prom != nil {
		n.prom.NotificationFailures.WithLabelValues(reason).Inc()
	}

	n.log.WarnContext(ctx, "notifications dropped",
		"type", string(reqs[0].Type),
		"count", len(reqs),
		"reason", reason,
		"err", err,
	)

	return nil
}

// Chain builds the notifier stack used by the API.
func Chain(store Store, counter cache.Counter, cfg ProtectedNotifierConfig, log *slog.Logger, prom *observability.Prom) *LogNotifier {
	if log == nil {
		log = slog.Default()
	}

	hook := cfg.OnStateChange
	cfg.OnStateChange = func(from, to string) {
		log.Warn("notification circuit changed state", "from", from, "to", to)
		prom.SetNotifierCircuit(to)
		if hook != nil {
			hook(from, to)
		}
	}
	prom.SetNotifierCircuit(stateClosed)

	return NewLogNotifier(
		NewProtectedNotifier(NewStoreNotifier(store, counter, prom), cfg),
		log,
		prom,
	)
}
