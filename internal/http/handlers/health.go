package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Check pings one dependency.
type Check func(ctx context.Context) error

type HealthHandler struct {
	checks       map[string]Check
	shuttingDown func() bool
}

func NewHealthHandler(checks map[string]Check) *HealthHandler {
	return &HealthHandler{checks: checks, shuttingDown: func() bool { return false }}
}

// WithShutdownSignal makes Readyz fail once isShuttingDown reports true, so
// load balancers stop routing before the server closes.
func (h *HealthHandler) WithShutdownSignal(isShuttingDown func() bool) *HealthHandler {
	if isShuttingDown != nil {
		h.shuttingDown = isShuttingDown
	}
	return h
}

func (h *HealthHandler) Healthz(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Readyz reports 503 while any dependency is unreachable.
func (h *HealthHandler) Readyz(ctx *gin.Context) {
	if h.shuttingDown() {
		ctx.JSON(http.StatusServiceUnavailable, gin.H{"status": "shutting_down"})
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), time.Second)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(h.checks))

	for name, check := range h.checks {
		if err := check(cctx); err != nil {
			status = http.StatusServiceUnavailable
			results[name] = "down"
			continue
		}
		results[name] = "up"
	}

	state := "ready"
	if status != http.StatusOK {
		state = "not_ready"
	}

	ctx.JSON(status, gin.H{"status": state, "checks": results})
}
