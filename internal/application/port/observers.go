package port

import (
	"context"

	"github.com/dreschagin/install-monitor/internal/application/dto"
)

// ProbeObserver receives every finished probe. Implementations must not block.
type ProbeObserver interface {
	ObserveProbe(ctx context.Context, outcome dto.ProbeOutcomeDTO)
}

// TicketObserver receives ticket workflow events.
type TicketObserver interface {
	TicketCreated(ctx context.Context, event dto.IncidentCreatedEventDTO)
	EvaluationSkipped(ctx context.Context, skipped dto.SkippedEvaluationDTO)
}
