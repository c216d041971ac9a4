package notifications

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/geocoder89/synergysphere/internal/cache"
	"github.com/geocoder89/synergysphere/internal/domain/notification"
	"github.com/geocoder89/synergysphere/internal/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu    sync.Mutex
	items []notification.Notification
	err   error
	calls int
}

func (f *fakeStore) CreateMany(_ context.Context, items []notification.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return f.err
	}
	f.items = append(f.items, items...)
	return nil
}

func TestStoreNotifier_PersistsAndInvalidates(t *testing.T) {
	store := &fakeStore{}
	counter := cache.New(time.Minute)
	ctx := context.Background()

	require.NoError(t, counter.SetInt(ctx, cache.UnreadCountKey("u1"), 4))
	require.NoError(t, counter.SetInt(ctx, cache.UnreadCountKey("u3"), 1))

	n := NewStoreNotifier(store, counter, nil)

	err := n.Notify(ctx,
		notification.MessagePosted("u1", "p1", "hello"),
		notification.MessagePosted("u2", "p1", "hello"),
		notification.CreateRequest{Type: notification.TypeMessagePosted, Message: "nobody"},
	)
	require.NoError(t, err)

	require.Len(t, store.items, 2)
	assert.Equal(t, "u1", store.items[0].UserID)
	assert.False(t, store.items[0].IsRead)
	assert.NotEmpty(t, store.items[0].ID)

	_, ok, _ := counter.GetInt(ctx, cache.UnreadCountKey("u1"))
	assert.False(t, ok, "recipient cache entry should be dropped")

	_, ok, _ = counter.GetInt(ctx, cache.UnreadCountKey("u3"))
	assert.True(t, ok, "non-recipient cache entry should survive")
}

func TestStoreNotifier_NothingToSend(t *testing.T) {
	store := &fakeStore{}
	n := NewStoreNotifier(store, nil, nil)

	require.NoError(t, n.Notify(context.Background()))
	assert.Equal(t, 0, store.calls)
}

func TestProtectedNotifier_OpensAndRecovers(t *testing.T) {
	store := &fakeStore{err: errors.New("db down")}
	clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	p := NewProtectedNotifier(NewStoreNotifier(store, nil, nil), ProtectedNotifierConfig{
		FailureThreshold: 2,
		Cooldown:         time.Minute,
	})
	p.now = func() time.Time { return clock }

	req := notification.TaskAssigned("u1", "p1", "Write docs")
	ctx := context.Background()

	assert.Error(t, p.Notify(ctx, req))
	assert.Equal(t, stateClosed, p.State())
	assert.Error(t, p.Notify(ctx, req))
	assert.Equal(t, stateOpen, p.State())

	assert.ErrorIs(t, p.Notify(ctx, req), ErrCircuitOpen)
	assert.Equal(t, 2, store.calls)

	clock = clock.Add(2 * time.Minute)
	store.err = nil

	require.NoError(t, p.Notify(ctx, req))
	assert.Equal(t, stateClosed, p.State())
	assert.Len(t, store.items, 1)
}

func TestProtectedNotifier_FailedTrialReopens(t *testing.T) {
	store := &fakeStore{err: errors.New("db down")}
	clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	p := NewProtectedNotifier(NewStoreNotifier(store, nil, nil), ProtectedNotifierConfig{
		FailureThreshold: 1,
		Cooldown:         time.Second,
	})
	p.now = func() time.Time { return clock }

	req := notification.TaskAssigned("u1", "p1", "t")
	_ = p.Notify(context.Background(), req)
	require.Equal(t, stateOpen, p.State())

	clock = clock.Add(2 * time.Second)
	_ = p.Notify(context.Background(), req)
	assert.Equal(t, stateOpen, p.State())
}

func TestProtectedNotifier_ReportsTransitions(t *testing.T) {
	store := &fakeStore{err: errors.New("db down")}
	clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	var seen []string
	p := NewProtectedNotifier(NewStoreNotifier(store, nil, nil), ProtectedNotifierConfig{
		FailureThreshold: 1,
		Cooldown:         time.Second,
		OnStateChange:    func(from, to string) { seen = append(seen, from+">"+to) },
	})
	p.now = func() time.Time { return clock }

	req := notification.TaskAssigned("u1", "p1", "t")
	_ = p.Notify(context.Background(), req)

	clock = clock.Add(2 * time.Second)
	store.err = nil
	require.NoError(t, p.Notify(context.Background(), req))

	assert.Equal(t, []string{"closed>open", "open>half_open", "half_open>closed"}, seen)
}

func TestProtectedNotifier_CallerCancelIsNotAFailure(t *testing.T) {
	p := NewProtectedNotifier(blockingNotifier{}, ProtectedNotifierConfig{FailureThreshold: 1, Timeout: time.Minute})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, p.Notify(ctx, notification.TaskAssigned("u1", "p1", "t")), context.Canceled)
	assert.Equal(t, stateClosed, p.State())
}

func TestChain_ExportsCircuitState(t *testing.T) {
	prom := observability.NewProm(prometheus.NewRegistry())
	store := &fakeStore{err: errors.New("db down")}

	n := Chain(store, nil, ProtectedNotifierConfig{FailureThreshold: 1, Cooldown: time.Hour}, nil, prom)
	assert.Equal(t, float64(1), testutil.ToFloat64(prom.NotifierCircuit.WithLabelValues("closed")))

	_ = n.Notify(context.Background(), notification.TaskAssigned("u1", "p1", "t"))

	assert.Equal(t, float64(0), testutil.ToFloat64(prom.NotifierCircuit.WithLabelValues("closed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(prom.NotifierCircuit.WithLabelValues("open")))
}

type blockingNotifier struct{}

func (blockingNotifier) Notify(ctx context.Context, _ ...notification.CreateRequest) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestProtectedNotifier_Timeout(t *testing.T) {
	p := NewProtectedNotifier(blockingNotifier{}, ProtectedNotifierConfig{Timeout: 20 * time.Millisecond})

	start := time.Now()
	err := p.Notify(context.Background(), notification.TaskAssigned("u1", "p1", "t"))

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestLogNotifier_SwallowsAndCounts(t *testing.T) {
	prom := observability.NewProm(prometheus.NewRegistry())
	store := &fakeStore{err: errors.New("db down")}

	n := Chain(store, nil, ProtectedNotifierConfig{FailureThreshold: 1, Cooldown: time.Hour}, nil, prom)
	req := notification.ProjectInvited("u1", "p1", "Apollo")

	assert.NoError(t, n.Notify(context.Background(), req))
	assert.NoError(t, n.Notify(context.Background(), req))

	assert.Equal(t, float64(1), testutil.ToFloat64(prom.NotificationFailures.WithLabelValues("store_error")))
	assert.Equal(t, float64(1), testutil.ToFloat64(prom.NotificationFailures.WithLabelValues("circuit_open")))
}

func TestChain_Success(t *testing.T) {
	prom := observability.NewProm(prometheus.NewRegistry())
	store := &fakeStore{}

	n := Chain(store, cache.New(time.Minute), ProtectedNotifierConfig{}, nil, prom)

	require.NoError(t, n.Notify(context.Background(), notification.TaskCompleted("u1", "p1", "Ship it")))
	assert.Len(t, store.items, 1)
	assert.Equal(t, float64(1), testutil.ToFloat64(prom.NotificationsCreated.WithLabelValues("TASK_COMPLETED")))
}

type downCounter struct{}

func (downCounter) GetInt(context.Context, string) (int64, bool, error) {
	return 0, false, errors.New("redis down")
}
func (downCounter) SetInt(context.Context, string, int64) error { return errors.New("redis down") }
func (downCounter) Delete(context.Context, ...string) error     { return errors.New("redis down") }

func TestChain_CacheOutageDoesNotTripCircuit(t *testing.T) {
	prom := observability.NewProm(prometheus.NewRegistry())
	store := &fakeStore{}

	n := Chain(store, downCounter{}, ProtectedNotifierConfig{FailureThreshold: 5, Cooldown: time.Hour}, nil, prom)

	for i := 0; i < 10; i++ {
		require.NoError(t, n.Notify(context.Background(), notification.TaskAssigned("u1", "p1", "t")))
	}

	assert.Equal(t, 10, store.calls)
	assert.Len(t, store.items, 10)
	assert.Equal(t, float64(1), testutil.ToFloat64(prom.NotifierCircuit.WithLabelValues("closed")))
	assert.Equal(t, float64(0), testutil.ToFloat64(prom.NotificationFailures.WithLabelValues("store_error")))
	assert.Equal(t, float64(0), testutil.ToFloat64(prom.NotificationFailures.WithLabelValues("circuit_open")))
	assert.Equal(t, float64(10), testutil.ToFloat64(prom.UnreadCacheLookups.WithLabelValues("invalidate_error")))
}

func TestStoreNotifier_CacheErrorAfterPersistIsNotAFailure(t *testing.T) {
	store := &fakeStore{}
	n := NewStoreNotifier(store, downCounter{}, nil)

	require.NoError(t, n.Notify(context.Background(), notification.MessagePosted("u1", "p1", "hi")))
	assert.Len(t, store.items, 1)
}
