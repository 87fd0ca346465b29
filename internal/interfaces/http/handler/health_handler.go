package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/dreschagin/install-monitor/internal/interfaces/http/middleware"
)

const readinessTimeout = 3 * time.Second

// Pinger is a dependency whose reachability gates readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	startedAt  time.Time
	scheduler  MonitorScheduler
	dependency map[string]Pinger
}

// NewHealthHandler; scheduler may be nil when scheduling is disabled.
func NewHealthHandler(scheduler MonitorScheduler, dependencies map[string]Pinger) *HealthHandler {
	if dependencies == nil {
		dependencies = map[string]Pinger{}
	}
	return &HealthHandler{
		startedAt:  time.Now(),
		scheduler:  scheduler,
		dependency: dependencies,
	}
}

func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"uptime": time.Since(h.startedAt).Round(time.Second).String(),
	})
}

// Readyz fails when a dependency is unreachable or the scheduler is not running.
// Failing monitors are reported but do not make the service unready.
func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	checks := make(map[string]string, len(h.dependency)+1)
	ready := true

	for name, dep := range h.dependency {
		if err := dep.Ping(ctx); err != nil {
			checks[name] = err.Error()
			ready = false
			continue
		}
		checks[name] = "ok"
	}

	response := map[string]any{"checks": checks}
	if h.scheduler != nil {
		snapshot := h.scheduler.Snapshot()
		if snapshot.Running {
			checks["scheduler"] = "ok"
		} else {
			checks["scheduler"] = "not running"
			ready = false
		}
		if failing := snapshot.Failing(); len(failing) > 0 {
			response["failing_monitors"] = failing
		}
	}

	status := http.StatusOK
	response["status"] = "ready"
	if !ready {
		status = http.StatusServiceUnavailable
		response["status"] = "not ready"
	}
	middleware.WriteJSON(w, status, response)
}
