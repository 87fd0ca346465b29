package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/dreschagin/install-monitor/internal/interfaces/http/middleware"
	"github.com/dreschagin/install-monitor/internal/scheduler"
	"github.com/dreschagin/install-monitor/pkg/logger"
)

// MonitorScheduler is the part of the scheduler the API exposes.
type MonitorScheduler interface {
	Snapshot() scheduler.Snapshot
	RunNow(ctx context.Context, name string) (scheduler.MonitorSnapshot, error)
}

type MonitorHandler struct {
	scheduler MonitorScheduler
	logger    *logger.Logger
}

func NewMonitorHandler(s MonitorScheduler, log *logger.Logger) *MonitorHandler {
	return &MonitorHandler{scheduler: s, logger: log}
}

type runMonitorResponse struct {
	Status  string                    `json:"status"`
	Monitor scheduler.MonitorSnapshot `json:"monitor"`
	Error   string                    `json:"error,omitempty"`
}

// ListMonitors возвращает мониторы и результат их последнего запуска
func (h *MonitorHandler) ListMonitors(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, h.scheduler.Snapshot())
}

// RunMonitor запускает монитор вне расписания. A failed probe is still a 200:
// the run happened and its result is in the body.
func (h *MonitorHandler) RunMonitor(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	name := strings.TrimSpace(r.PathValue("name"))
	if name == "" {
		middleware.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "monitor name is required"})
		return
	}

	snapshot, err := h.scheduler.RunNow(r.Context(), name)
	switch {
	case errors.Is(err, scheduler.ErrUnknownMonitor):
		middleware.WriteJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case err != nil:
		h.logger.Warn("On-demand monitor run failed", "monitor", name, "error", err.Error())
		middleware.WriteJSON(w, http.StatusOK, runMonitorResponse{Status: "failed", Monitor: snapshot, Error: err.Error()})
	default:
		middleware.WriteJSON(w, http.StatusOK, runMonitorResponse{Status: "ok", Monitor: snapshot})
	}
}
