package port

import (
	"context"

	"github.com/dreschagin/install-monitor/internal/domain/schema"
)

// TelemetrySink appends rows to column-oriented telemetry tables.
type TelemetrySink interface {
	// InsertRow writes one record through the column mapping of table.
	// Failures must carry enough detail to be logged.
	InsertRow(ctx context.Context, table schema.Table, record any) error

	// Close flushes buffered rows and releases connections.
	Close(ctx context.Context) error
}
