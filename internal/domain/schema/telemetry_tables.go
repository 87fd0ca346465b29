package schema

import "github.com/dreschagin/install-monitor/internal/domain/entity"

const (
	TableURLAccessLogs  = "UrlAccessLogs"
	TableScriptExecLogs = "ScriptExecLogs"
)

// TelemetryTables registers both probe tables.
func TelemetryTables() (*Registry, error) {
	registry := NewRegistry()

	if _, err := registry.Register(TableURLAccessLogs, entity.URLCheckRecord{}); err != nil {
		return nil, err
	}
	if _, err := registry.Register(TableScriptExecLogs, entity.ScriptExecutionRecord{}); err != nil {
		return nil, err
	}

	return registry, nil
}
