package handlers_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/geocoder89/synergysphere/internal/cache"
	"github.com/geocoder89/synergysphere/internal/domain/notification"
	"github.com/geocoder89/synergysphere/internal/http/handlers"
	"github.com/gin-gonic/gin"
)

type memNotifications struct {
	mu          sync.Mutex
	items       map[string]notification.Notification
	countCalls  int
	listedPage  int
	listedLimit int
}

func newMemNotifications(items ...notification.Notification) *memNotifications {
	m := &memNotifications{items: make(map[string]notification.Notification)}
	for _, n := range items {
		m.items[n.ID] = n
	}
	return m
}

func (m *memNotifications) ListForUser(_ context.Context, userID string, page, limit int) ([]notification.Notification, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listedPage, m.listedLimit = page, limit

	out := make([]notification.Notification, 0)
	for _, n := range m.items {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out, len(out), nil
}

func (m *memNotifications) MarkRead(_ context.Context, id, userID string) (notification.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, ok := m.items[id]
	if !ok || n.UserID != userID {
		return notification.Notification{}, notification.ErrNotFound
	}
	n.IsRead = true
	m.items[id] = n
	return n, nil
}

func (m *memNotifications) MarkAllRead(_ context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var updated int64
	for id, n := range m.items {
		if n.UserID == userID && !n.IsRead {
			n.IsRead = true
			m.items[id] = n
			updated++
		}
	}
	return updated, nil
}

func (m *memNotifications) UnreadCount(_ context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.countCalls++

	var n int64
	for _, item := range m.items {
		if item.UserID == userID && !item.IsRead {
			n++
		}
	}
	return n, nil
}

func newNotificationsRouter(store *memNotifications, counter cache.Counter, actor string) *gin.Engine {
	h := handlers.NewNotificationsHandler(store, counter, nil)

	r := gin.New()
	r.Use(asUser(actor))
	r.GET("/notifications", h.List)
	r.GET("/notifications/unread-count", h.UnreadCount)
	r.PUT("/notifications/mark-all-read", h.MarkAllRead)
	r.PUT("/notifications/:id/read", h.MarkRead)
	return r
}

func seedNotifications() *memNotifications {
	return newMemNotifications(
		notification.Notification{ID: "n-1", UserID: "u-1", Type: notification.TypeTaskAssigned},
		notification.Notification{ID: "n-2", UserID: "u-1", Type: notification.TypeMessagePosted},
		notification.Notification{ID: "n-3", UserID: "u-2", Type: notification.TypeMessagePosted},
	)
}

func unreadCount(t *testing.T, r http.Handler) int64 {
	t.Helper()

	w, env := doJSON(t, r, http.MethodGet, "/notifications/unread-count", "")
	if w.Code != http.StatusOK {
		t.Fatalf("unread-count got %d", w.Code)
	}
	return mustData[map[string]int64](t, env)["count"]
}

func TestUnreadCount_CachedAndInvalidated(t *testing.T) {
	store := seedNotifications()
	r := newNotificationsRouter(store, cache.New(time.Minute), "u-1")

	if got := unreadCount(t, r); got != 2 {
		t.Fatalf("got %d, want 2", got)
	}
	if got := unreadCount(t, r); got != 2 {
		t.Fatalf("got %d, want 2", got)
	}
	if store.countCalls != 1 {
		t.Fatalf("second read should be served from cache, store hit %d times", store.countCalls)
	}

	w, _ := doJSON(t, r, http.MethodPut, "/notifications/n-1/read", "")
	if w.Code != http.StatusOK {
		t.Fatalf("mark read got %d", w.Code)
	}

	if got := unreadCount(t, r); got != 1 {
		t.Fatalf("got %d after mark read, want 1", got)
	}
}

func TestMarkRead_Idempotent(t *testing.T) {
	r := newNotificationsRouter(seedNotifications(), cache.New(time.Minute), "u-1")

	for i := 0; i < 2; i++ {
		w, env := doJSON(t, r, http.MethodPut, "/notifications/n-1/read", "")
		if w.Code != http.StatusOK {
			t.Fatalf("attempt %d got %d", i+1, w.Code)
		}
		if !mustData[notification.Notification](t, env).IsRead {
			t.Fatalf("attempt %d: notification not read", i+1)
		}
	}
}

func TestMarkRead_OtherUsersNotificationIsNotFound(t *testing.T) {
	r := newNotificationsRouter(seedNotifications(), cache.New(time.Minute), "u-1")

	w, env := doJSON(t, r, http.MethodPut, "/notifications/n-3/read", "")
	if w.Code != http.StatusNotFound || env.Error.Code != "not_found" {
		t.Fatalf("got %d %q, want 404", w.Code, env.Error.Code)
	}
}

func TestMarkAllRead(t *testing.T) {
	store := seedNotifications()
	r := newNotificationsRouter(store, cache.New(time.Minute), "u-1")

	w, env := doJSON(t, r, http.MethodPut, "/notifications/mark-all-read", "")
	if w.Code != http.StatusOK {
		t.Fatalf("got %d", w.Code)
	}
	if got := mustData[map[string]int64](t, env)["updated"]; got != 2 {
		t.Fatalf("updated %d, want 2", got)
	}
	if got := unreadCount(t, r); got != 0 {
		t.Fatalf("unread %d, want 0", got)
	}
}

func TestNotificationsList_Paging(t *testing.T) {
	store := seedNotifications()
	r := newNotificationsRouter(store, cache.New(time.Minute), "u-1")

	w, env := doJSON(t, r, http.MethodGet, "/notifications?page=2&limit=1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("got %d", w.Code)
	}
	if store.listedPage != 2 || store.listedLimit != 1 {
		t.Fatalf("page %d limit %d", store.listedPage, store.listedLimit)
	}

	got := mustData[notification.Page](t, env)
	if got.Pagination.Total != 2 || got.Pagination.TotalPages != 2 {
		t.Fatalf("unexpected pagination: %+v", got.Pagination)
	}

	w, _ = doJSON(t, r, http.MethodGet, "/notifications?page=-1", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("negative page got %d", w.Code)
	}
}

type failingCounter struct{}

func (failingCounter) GetInt(context.Context, string) (int64, bool, error) {
	return 0, false, errors.New("redis down")
}
func (failingCounter) SetInt(context.Context, string, int64) error { return errors.New("redis down") }
func (failingCounter) Delete(context.Context, ...string) error     { return errors.New("redis down") }

func TestUnreadCount_CacheOutageFallsBackToStore(t *testing.T) {
	r := newNotificationsRouter(seedNotifications(), failingCounter{}, "u-1")

	if got := unreadCount(t, r); got != 2 {
		t.Fatalf("got %d, want 2", got)
	}

	w, _ := doJSON(t, r, http.MethodPut, "/notifications/n-1/read", "")
	if w.Code != http.StatusOK {
		t.Fatalf("mark read with cache outage got %d", w.Code)
	}
}

func TestHealth(t *testing.T) {
	down := errors.New("down")

	tests := []struct {
		name       string
		checks     map[string]handlers.Check
		wantStatus int
	}{
		{name: "all up", checks: map[string]handlers.Check{
			"postgres": func(context.Context) error { return nil },
		}, wantStatus: http.StatusOK},
		{name: "redis down", checks: map[string]handlers.Check{
			"postgres": func(context.Context) error { return nil },
			"redis":    func(context.Context) error { return down },
		}, wantStatus: http.StatusServiceUnavailable},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := handlers.NewHealthHandler(tc.checks)
			r := gin.New()
			r.GET("/healthz", h.Healthz)
			r.GET("/readyz", h.Readyz)

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
			if w.Code != http.StatusOK {
				t.Fatalf("healthz got %d", w.Code)
			}

			w = httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
			if w.Code != tc.wantStatus {
				t.Fatalf("readyz got %d, want %d", w.Code, tc.wantStatus)
			}
		})
	}
}

func TestRespondOKWithETag_NotModified(t *testing.T) {
	r := gin.New()
	r.GET("/x", func(ctx *gin.Context) {
		handlers.RespondOKWithETag(ctx, "ok", gin.H{"n": 1})
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	etag := w.Header().Get("ETag")
	if w.Code != http.StatusOK || etag == "" {
		t.Fatalf("got %d etag %q", w.Code, etag)
	}

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("If-None-Match", etag)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotModified {
		t.Fatalf("got %d, want 304", w.Code)
	}
}

func TestReadyz_ShuttingDown(t *testing.T) {
	draining := false
	h := handlers.NewHealthHandler(map[string]handlers.Check{
		"postgres": func(context.Context) error { return nil },
	}).WithShutdownSignal(func() bool { return draining })

	r := gin.New()
	r.GET("/readyz", h.Readyz)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("got %d before shutdown", w.Code)
	}

	draining = true
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("got %d while draining, want 503", w.Code)
	}
}
