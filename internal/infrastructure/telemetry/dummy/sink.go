// Package dummy provides a telemetry sink for local development that only logs rows.
package dummy

import (
	"context"
	"time"

	"github.com/dreschagin/install-monitor/internal/domain/schema"
	"github.com/dreschagin/install-monitor/pkg/logger"
)

// Sink waits for delay to imitate ingestion latency and then drops the row.
type Sink struct {
	delay  time.Duration
	logger *logger.Logger
}

func NewSink(delay time.Duration, log *logger.Logger) *Sink {
	return &Sink{delay: delay, logger: log}
}

func (s *Sink) InsertRow(ctx context.Context, table schema.Table, record any) error {
	if _, err := table.Document(record); err != nil {
		return err
	}

	if s.delay > 0 {
		timer := time.NewTimer(s.delay)
		defer timer.Stop()

		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	s.logger.Debug("Dummy sink dropped row", "table", table.Name)
	return nil
}

func (s *Sink) Close(context.Context) error {
	return nil
}
