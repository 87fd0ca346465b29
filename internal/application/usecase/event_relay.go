package usecase

import (
	"context"
	"time"

	"github.com/dreschagin/install-monitor/internal/application/dto"
	"github.com/dreschagin/install-monitor/internal/application/port"
	"github.com/dreschagin/install-monitor/pkg/logger"
)

const eventPublishTimeout = 5 * time.Second

// EventRelay forwards failed probes and created tickets to the event bus.
// Publishing is best effort: failures are logged and never reach the probe or the webhook.
type EventRelay struct {
	publisher port.EventPublisher
	logger    *logger.Logger
}

func NewEventRelay(publisher port.EventPublisher, log *logger.Logger) *EventRelay {
	return &EventRelay{publisher: publisher, logger: log}
}

func (r *EventRelay) ObserveProbe(ctx context.Context, outcome dto.ProbeOutcomeDTO) {
	if outcome.Succeeded {
		return
	}
	r.publish(ctx, port.SubjectProbeFailed, outcome.EventID, outcome)
}

func (r *EventRelay) TicketCreated(ctx context.Context, event dto.IncidentCreatedEventDTO) {
	r.publish(ctx, port.SubjectIncidentCreated, event.EventID, event)
}

// EvaluationSkipped is not published; skips are visible in metrics and the live feed.
func (r *EventRelay) EvaluationSkipped(context.Context, dto.SkippedEvaluationDTO) {}

func (r *EventRelay) publish(ctx context.Context, subject, eventID string, event interface{}) {
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), eventPublishTimeout)
	defer cancel()

	if err := r.publisher.PublishEvent(pubCtx, subject, event); err != nil {
		r.logger.Error("Failed to publish event", err, "subject", subject, "event_id", eventID)
	}
}
