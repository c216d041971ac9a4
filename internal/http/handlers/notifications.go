package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/geocoder89/synergysphere/internal/cache"
	"github.com/geocoder89/synergysphere/internal/domain/notification"
	"github.com/geocoder89/synergysphere/internal/http/middlewares"
	"github.com/geocoder89/synergysphere/internal/observability"
	"github.com/gin-gonic/gin"
)

const (
	defaultNotificationsLimit = 20
	maxNotificationsLimit     = 100
)

type NotificationStore interface {
	ListForUser(ctx context.Context, userID string, page, limit int) ([]notification.Notification, int, error)
	MarkRead(ctx context.Context, id, userID string) (notification.Notification, error)
	MarkAllRead(ctx context.Context, userID string) (int64, error)
	UnreadCount(ctx context.Context, userID string) (int64, error)
}

type NotificationsHandler struct {
	store   NotificationStore
	counter cache.Counter
	prom    *observability.Prom
}

func NewNotificationsHandler(store NotificationStore, counter cache.Counter, prom *observability.Prom) *NotificationsHandler {
	return &NotificationsHandler{store: store, counter: counter, prom: prom}
}

func (h *NotificationsHandler) List(ctx *gin.Context) {
	userID, _ := middlewares.UserIDFromContext(ctx)

	page, ok := positiveQueryInt(ctx, "page", 1, 0)
	if !ok {
		return
	}
	limit, ok := positiveQueryInt(ctx, "limit", defaultNotificationsLimit, maxNotificationsLimit)
	if !ok {
		return
	}

	cctx, cancel := dbContext(ctx)
	defer cancel()

	items, total, err := h.store.ListForUser(cctx, userID, page, limit)
	if err != nil {
		RespondInternal(ctx, "Could not list notifications", err)
		return
	}

	RespondOK(ctx, http.StatusOK, "Notifications retrieved", notification.NewPage(items, page, limit, total))
}

// UnreadCount is served from the counter cache when possible. Writers drop
// the entry, so a hit is never staler than the cache TTL.
func (h *NotificationsHandler) UnreadCount(ctx *gin.Context) {
	userID, _ := middlewares.UserIDFromContext(ctx)
	key := cache.UnreadCountKey(userID)

	cctx, cancel := dbContext(ctx)
	defer cancel()

	if n, ok, err := h.counter.GetInt(cctx, key); err == nil && ok {
		h.observeLookup("hit")
		RespondOK(ctx, http.StatusOK, "Unread count retrieved", gin.H{"count": n})
		return
	}
	h.observeLookup("miss")

	n, err := h.store.UnreadCount(cctx, userID)
	if err != nil {
		RespondInternal(ctx, "Could not count notifications", err)
		return
	}

	if err := h.counter.SetInt(cctx, key, n); err != nil {
		_ = ctx.Error(err)
	}

	RespondOK(ctx, http.StatusOK, "Unread count retrieved", gin.H{"count": n})
}

// MarkRead succeeds again for an already-read notification.
func (h *NotificationsHandler) MarkRead(ctx *gin.Context) {
	userID, _ := middlewares.UserIDFromContext(ctx)

	cctx, cancel := dbContext(ctx)
	defer cancel()

	n, err := h.store.MarkRead(cctx, ctx.Param("id"), userID)
	if err != nil {
		respondDomainError(ctx, err, "Could not update notification")
		return
	}

	h.invalidate(ctx, cctx, userID)

	RespondOK(ctx, http.StatusOK, "Notification marked as read", n)
}

func (h *NotificationsHandler) MarkAllRead(ctx *gin.Context) {
	userID, _ := middlewares.UserIDFromContext(ctx)

	cctx, cancel := dbContext(ctx)
	defer cancel()

	updated, err := h.store.MarkAllRead(cctx, userID)
	if err != nil {
		RespondInternal(ctx, "Could not update notifications", err)
		return
	}

	h.invalidate(ctx, cctx, userID)

	RespondOK(ctx, http.StatusOK, "All notifications marked as read", gin.H{"updated": updated})
}

func (h *NotificationsHandler) invalidate(ctx *gin.Context, cctx context.Context, userID string) {
	if err := h.counter.Delete(cctx, cache.UnreadCountKey(userID)); err != nil {
		_ = ctx.Error(err)
	}
}

func (h *NotificationsHandler) observeLookup(result string) {
	if h.prom != nil {
		h.prom.UnreadCacheLookups.WithLabelValues(result).Inc()
	}
}

// positiveQueryInt parses ?name=, defaulting to def and clamping to ceiling
// when ceiling > 0. It writes a 400 for anything that is not a positive integer.
func positiveQueryInt(ctx *gin.Context, name string, def, ceiling int) (int, bool) {
	v := ctx.Query(name)
	if v == "" {
		return def, true
	}

	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		RespondBadRequest(ctx, "Invalid "+name, gin.H{name: "must be a positive integer"})
		return 0, false
	}

	if ceiling > 0 && n > ceiling {
		n = ceiling
	}

	return n, true
}
