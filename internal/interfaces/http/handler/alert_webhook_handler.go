package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/dreschagin/install-monitor/internal/application/dto"
	"github.com/dreschagin/install-monitor/internal/domain/failure"
	"github.com/dreschagin/install-monitor/internal/interfaces/http/middleware"
	"github.com/dreschagin/install-monitor/pkg/logger"
)

const maxAlertPayloadBytes = 1 << 20

// AlertWorkflow turns an alert webhook body into incident tickets.
type AlertWorkflow interface {
	Run(ctx context.Context, payload []byte) (*dto.TicketBatchResultDTO, error)
}

// AlertWebhookHandler принимает уведомления Grafana и создает тикеты
type AlertWebhookHandler struct {
	workflow AlertWorkflow
	logger   *logger.Logger
}

func NewAlertWebhookHandler(workflow AlertWorkflow, log *logger.Logger) *AlertWebhookHandler {
	return &AlertWebhookHandler{workflow: workflow, logger: log}
}

type alertWebhookResponse struct {
	Message string                     `json:"message"`
	Count   int                        `json:"count"`
	IDs     []int                      `json:"ids"`
	Created []dto.CreatedTicketDTO     `json:"created"`
	Skipped []dto.SkippedEvaluationDTO `json:"skipped"`
	Error   string                     `json:"error,omitempty"`
}

func (h *AlertWebhookHandler) HandleGrafanaAlert(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxAlertPayloadBytes))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			middleware.WriteJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "alert payload is too large"})
			return
		}
		middleware.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "failed to read request body"})
		return
	}

	result, err := h.workflow.Run(r.Context(), body)
	status := statusForError(err)
	if err != nil {
		h.logger.Error("Alert webhook failed", err, "status", status)
	}

	if result == nil {
		middleware.WriteJSON(w, status, map[string]string{"error": err.Error()})
		return
	}

	response := alertWebhookResponse{
		Message: result.Summary(),
		Count:   result.Count(),
		IDs:     result.IDs(),
		Created: result.Created,
		Skipped: result.Skipped,
	}
	if err != nil {
		response.Error = err.Error()
	}
	middleware.WriteJSON(w, status, response)
}

// statusForError maps the failure taxonomy onto HTTP status codes.
func statusForError(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, failure.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, failure.ErrFatal), errors.Is(err, failure.ErrTrackerUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
