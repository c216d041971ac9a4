package notifications

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/geocoder89/synergysphere/internal/domain/notification"
)

var ErrCircuitOpen = errors.New("circuit breaker open")

type ProtectedNotifierConfig struct {
	Timeout          time.Duration // hard timeout per call
	FailureThreshold int           // consecutive failures to open circuit
	Cooldown         time.Duration // how long to stay open before half-open
	HalfOpenMaxCalls int           // allow N trial calls in half-open

	// OnStateChange is called outside the lock after every transition.
	OnStateChange func(from, to string)
}

const (
	stateClosed   = "closed"
	stateOpen     = "open"
	stateHalfOpen = "half_open"
)

// ProtectedNotifier bounds how long a triggering request can be held up by a
// struggling notification store, and stops calling it for a while once it
// keeps failing.
type ProtectedNotifier struct {
	inner Notifier
	cfg   ProtectedNotifierConfig
	mu    sync.Mutex
	now   func() time.Time

	state string

	consecutiveFailures int
	openedAt            time.Time
	halfOpenInFlight    int
}

func NewProtectedNotifier(inner Notifier, cfg ProtectedNotifierConfig) *ProtectedNotifier {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 15 * time.Second
	}
	if cfg.HalfOpenMaxCalls <= 0 {
		cfg.HalfOpenMaxCalls = 1
	}

	return &ProtectedNotifier{
		inner: inner,
		cfg:   cfg,
		now:   time.Now,
		state: stateClosed,
	}
}

func (n *ProtectedNotifier) Notify(ctx context.Context, reqs ...notification.CreateRequest) error {
	allowed, from, to := n.allowRequest()
	n.emit(from, to)
	if !allowed {
		return ErrCircuitOpen
	}

	callCtx, cancel := context.WithTimeout(ctx, n.cfg.Timeout)
	defer cancel()

	err := n.inner.Notify(callCtx, reqs...)

	// the caller giving up says nothing about the store's health
	if err != nil && ctx.Err() != nil {
		n.release()
		return err
	}

	n.emit(n.afterRequest(err))
	return err
}

func (n *ProtectedNotifier) emit(from, to string) {
	if from != to && n.cfg.OnStateChange != nil {
		n.cfg.OnStateChange(from, to)
	}
}

func (n *ProtectedNotifier) State() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

// allowRequest reports whether a call may proceed, plus the state before and
// after the check.
func (n *ProtectedNotifier) allowRequest() (bool, string, string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	from := n.state

	switch n.state {
	case stateOpen:
		if n.now().Sub(n.openedAt) < n.cfg.Cooldown {
			return false, from, from
		}
		n.state = stateHalfOpen
		n.halfOpenInFlight = 1
		return true, from, n.state
	case stateHalfOpen:
		if n.halfOpenInFlight >= n.cfg.HalfOpenMaxCalls {
			return false, from, from
		}
		n.halfOpenInFlight++
		return true, from, from
	default:
		return true, from, from
	}
}

func (n *ProtectedNotifier) release() {
	n.mu.Lock()
	if n.state == stateHalfOpen && n.halfOpenInFlight > 0 {
		n.halfOpenInFlight--
	}
	n.mu.Unlock()
}

func (n *ProtectedNotifier) afterRequest(err error) (string, string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	from := n.state
	if n.state == stateHalfOpen && n.halfOpenInFlight > 0 {
		n.halfOpenInFlight--
	}

	if err == nil {
		n.consecutiveFailures = 0
		n.state = stateClosed
		return from, n.state
	}

	n.consecutiveFailures++

	// a failed trial reopens immediately
	if n.state == stateHalfOpen || n.consecutiveFailures >= n.cfg.FailureThreshold {
		n.state = stateOpen
		n.openedAt = n.now()
	}

	return from, n.state
}
