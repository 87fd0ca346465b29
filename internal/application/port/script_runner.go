package port

import (
	"context"

	"github.com/dreschagin/install-monitor/internal/domain/entity"
)

// ScriptRunner runs the platform install script.
type ScriptRunner interface {
	// ExecuteInstallScript appends args to the script invocation and returns once both
	// output streams are drained. An error means the process could not be run at all.
	ExecuteInstallScript(ctx context.Context, args string) (entity.ScriptExecutionResult, error)
}
