package entity

import (
	"fmt"
	"strings"
	"time"

	"github.com/dreschagin/install-monitor/internal/domain/failure"
)

// URLCheckRecord is one row of the UrlAccessLogs table.
// Exactly one of HTTPResponseCode and Error describes the outcome.
type URLCheckRecord struct {
	MonitorName      string    `json:"monitor_name"`
	Timestamp        time.Time `json:"timestamp"`
	RequestedURL     string    `json:"requested_url"`
	HTTPResponseCode *int      `json:"http_response_code"`
	Error            *string   `json:"error"`
}

// NewURLCheckResponse records a request that completed with the given status code.
func NewURLCheckResponse(monitorName, url string, statusCode int, at time.Time) (URLCheckRecord, error) {
	if err := validateProbeIdentity(monitorName, url); err != nil {
		return URLCheckRecord{}, err
	}

	code := statusCode
	return URLCheckRecord{
		MonitorName:      monitorName,
		Timestamp:        at.UTC(),
		RequestedURL:     url,
		HTTPResponseCode: &code,
	}, nil
}

// NewURLCheckTransportFailure records a request that never produced a response.
func NewURLCheckTransportFailure(monitorName, url string, cause error, at time.Time) (URLCheckRecord, error) {
	if err := validateProbeIdentity(monitorName, url); err != nil {
		return URLCheckRecord{}, err
	}
	if cause == nil {
		return URLCheckRecord{}, fmt.Errorf("%w: transport failure requires a cause", failure.ErrInvalidInput)
	}

	text := cause.Error()
	if strings.TrimSpace(text) == "" {
		text = "unknown transport error"
	}

	return URLCheckRecord{
		MonitorName:  monitorName,
		Timestamp:    at.UTC(),
		RequestedURL: url,
		Error:        &text,
	}, nil
}

// Succeeded reports whether the recorded status code is 2xx.
func (r URLCheckRecord) Succeeded() bool {
	return r.HTTPResponseCode != nil && *r.HTTPResponseCode >= 200 && *r.HTTPResponseCode < 300
}

// ScriptExecutionRecord is one row of the ScriptExecLogs table. An empty Error means success.
type ScriptExecutionRecord struct {
	MonitorName string    `json:"monitor_name"`
	Timestamp   time.Time `json:"timestamp"`
	ScriptName  string    `json:"script_name"`
	CmdArgs     string    `json:"cmd_args"`
	Error       string    `json:"error"`
}

func NewScriptExecutionRecord(monitorName, scriptName, cmdArgs, errText string, at time.Time) (ScriptExecutionRecord, error) {
	if strings.TrimSpace(monitorName) == "" {
		return ScriptExecutionRecord{}, fmt.Errorf("%w: monitor name is required", failure.ErrInvalidInput)
	}

	return ScriptExecutionRecord{
		MonitorName: monitorName,
		Timestamp:   at.UTC(),
		ScriptName:  scriptName,
		CmdArgs:     cmdArgs,
		Error:       errText,
	}, nil
}

func validateProbeIdentity(monitorName, url string) error {
	if strings.TrimSpace(monitorName) == "" {
		return fmt.Errorf("%w: monitor name is required", failure.ErrInvalidInput)
	}
	if strings.TrimSpace(url) == "" {
		return fmt.Errorf("%w: url is required", failure.ErrInvalidInput)
	}
	return nil
}
