package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dreschagin/install-monitor/internal/application/dto"
	"github.com/dreschagin/install-monitor/internal/application/port"
	"github.com/dreschagin/install-monitor/internal/domain/entity"
	"github.com/dreschagin/install-monitor/internal/domain/failure"
	"github.com/dreschagin/install-monitor/internal/domain/schema"
	"github.com/dreschagin/install-monitor/internal/domain/service"
	"github.com/dreschagin/install-monitor/internal/domain/valueobject"
	"github.com/dreschagin/install-monitor/pkg/logger"
)

const (
	dryRunFlag            = "-DryRun"
	defaultIngestTimeout  = 30 * time.Second
	parsePrimaryURLPrefix = "Failed to parse primary url from the following DryRun execution output: "
)

type ProbeReporterConfig struct {
	// IngestTimeout bounds one telemetry write. Ingestion ignores cancellation of the probe context.
	IngestTimeout time.Duration
}

// ProbeReporter runs URL and dry-run probes and records one telemetry row per outcome.
type ProbeReporter struct {
	client    *http.Client
	sink      port.TelemetrySink
	scripts   port.ScriptRunner
	tables    *schema.Registry
	observers []port.ProbeObserver
	config    ProbeReporterConfig
	logger    *logger.Logger
	now       func() time.Time
}

func NewProbeReporter(
	client *http.Client,
	sink port.TelemetrySink,
	scripts port.ScriptRunner,
	tables *schema.Registry,
	config ProbeReporterConfig,
	log *logger.Logger,
) *ProbeReporter {
	if client == nil {
		client = http.DefaultClient
	}
	if config.IngestTimeout <= 0 {
		config.IngestTimeout = defaultIngestTimeout
	}

	return &ProbeReporter{
		client:  client,
		sink:    sink,
		scripts: scripts,
		tables:  tables,
		config:  config,
		logger:  log,
		now:     time.Now,
	}
}

// AddObserver registers an observer notified after every probe.
func (r *ProbeReporter) AddObserver(o port.ProbeObserver) {
	if o != nil {
		r.observers = append(r.observers, o)
	}
}

// RunMonitor dispatches the monitor to the probe matching its kind.
func (r *ProbeReporter) RunMonitor(ctx context.Context, monitor entity.Monitor) error {
	switch monitor.Kind {
	case valueobject.MonitorKindURL:
		return r.CheckAndReport(ctx, monitor.Name, monitor.URL)
	case valueobject.MonitorKindDryRun:
		return r.ExecuteDryRunCheckAndReport(ctx, monitor.Name, monitor.Args)
	default:
		return fmt.Errorf("%w: monitor %s has unknown kind %q", failure.ErrInvalidInput, monitor.Name, monitor.Kind)
	}
}

// CheckAndReport requests url, records the status code or transport error and then
// reports the outcome. A non-2xx status is a probe failure even though the call completed.
// A failed telemetry write is joined to the probe error and never replaces it.
func (r *ProbeReporter) CheckAndReport(ctx context.Context, monitorName, url string) error {
	if strings.TrimSpace(monitorName) == "" {
		return fmt.Errorf("%w: monitor name is required", failure.ErrInvalidInput)
	}
	if strings.TrimSpace(url) == "" {
		return fmt.Errorf("%w: url is required", failure.ErrInvalidInput)
	}

	log := r.logger.With("monitor_name", monitorName, "url", url)
	started := r.now()

	statusCode, reqErr := r.fetch(ctx, url)
	finished := r.now()

	outcome := dto.ProbeOutcomeDTO{
		EventID:     uuid.NewString(),
		MonitorName: monitorName,
		Kind:        string(valueobject.MonitorKindURL),
		Target:      url,
		Duration:    finished.Sub(started),
		FinishedAt:  finished.UTC(),
	}

	if reqErr != nil {
		record, err := entity.NewURLCheckTransportFailure(monitorName, url, reqErr, finished)
		if err != nil {
			return err
		}

		probeErr := fmt.Errorf("%w: request to %s failed: %w", failure.ErrProbeFailed, url, reqErr)
		log.Error("URL check failed", reqErr)

		sinkErr := r.ingest(ctx, log, record)
		outcome.Error = reqErr.Error()
		r.notify(ctx, outcome)

		return errors.Join(probeErr, sinkErr)
	}

	record, err := entity.NewURLCheckResponse(monitorName, url, statusCode, finished)
	if err != nil {
		return err
	}
	sinkErr := r.ingest(ctx, log, record)

	outcome.StatusCode = record.HTTPResponseCode
	outcome.Succeeded = record.Succeeded()

	if !record.Succeeded() {
		probeErr := fmt.Errorf("%w: Download failed with status code %d. Monitor: %s", failure.ErrProbeFailed, statusCode, monitorName)
		log.Warn("URL check returned a failure status", "status_code", statusCode)

		outcome.Error = probeErr.Error()
		r.notify(ctx, outcome)
		return errors.Join(probeErr, sinkErr)
	}

	log.Info("URL check succeeded", "status_code", statusCode, "duration", outcome.Duration)
	r.notify(ctx, outcome)
	return sinkErr
}

// ExecuteDryRunCheckAndReport runs the install script with -DryRun, records script
// errors and unparsable output, and otherwise checks the primary payload URL it reported.
func (r *ProbeReporter) ExecuteDryRunCheckAndReport(ctx context.Context, monitorName, args string) error {
	if strings.TrimSpace(monitorName) == "" {
		return fmt.Errorf("%w: monitor name is required", failure.ErrInvalidInput)
	}
	if r.scripts == nil {
		return fmt.Errorf("%w: script runner is not configured", failure.ErrFatal)
	}

	log := r.logger.With("monitor_name", monitorName)
	cmdArgs := strings.TrimSpace(dryRunFlag + " " + args)
	started := r.now()

	result, runErr := r.scripts.ExecuteInstallScript(ctx, cmdArgs)
	if runErr != nil {
		// The process never produced output; record the launch error in place of stderr.
		result.Stderr = runErr.Error()
	}

	if result.Failed() {
		log.Error("Install script reported an error", nil, "script", result.ScriptName, "args", cmdArgs)
		return r.reportScriptFailure(ctx, log, monitorName, result.ScriptName, cmdArgs, result.Stderr, started)
	}

	parsed := service.ParseDryRunOutput(result.Stdout)
	if !parsed.HasPrimary() {
		log.Warn("Primary URL is missing from dry run output", "script", result.ScriptName, "args", cmdArgs)
		return r.reportScriptFailure(ctx, log, monitorName, result.ScriptName, cmdArgs, parsePrimaryURLPrefix+result.Stdout, started)
	}

	log.Debug("Dry run reported payload URLs", "primary", parsed.PrimaryURL, "legacy", parsed.LegacyURL)
	return r.CheckAndReport(ctx, monitorName, parsed.PrimaryURL)
}

func (r *ProbeReporter) fetch(ctx context.Context, url string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return 0, err
	}
	// Only the status line matters; the body is never read.
	_ = resp.Body.Close()

	return resp.StatusCode, nil
}

func (r *ProbeReporter) reportScriptFailure(
	ctx context.Context,
	log *logger.Logger,
	monitorName, scriptName, cmdArgs, errText string,
	started time.Time,
) error {
	finished := r.now()

	record, err := entity.NewScriptExecutionRecord(monitorName, scriptName, cmdArgs, errText, finished)
	if err != nil {
		return err
	}
	sinkErr := r.ingest(ctx, log, record)

	r.notify(ctx, dto.ProbeOutcomeDTO{
		EventID:     uuid.NewString(),
		MonitorName: monitorName,
		Kind:        string(valueobject.MonitorKindDryRun),
		Target:      cmdArgs,
		Error:       errText,
		Duration:    finished.Sub(started),
		FinishedAt:  finished.UTC(),
	})

	probeErr := fmt.Errorf("%w: %s %s: %s", failure.ErrProbeFailed, scriptName, cmdArgs, firstLine(errText))
	return errors.Join(probeErr, sinkErr)
}

// ingest writes record on a context detached from probe cancellation so that a
// cancelled probe still leaves its row behind.
func (r *ProbeReporter) ingest(ctx context.Context, log *logger.Logger, record any) error {
	if r.sink == nil {
		return fmt.Errorf("%w: no sink configured", failure.ErrSinkUnavailable)
	}

	table, err := r.tables.TableFor(record)
	if err != nil {
		log.Error("Telemetry record has no table", err)
		return err
	}

	ingestCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.config.IngestTimeout)
	defer cancel()

	if err := r.sink.InsertRow(ingestCtx, table, record); err != nil {
		log.Error("Failed to ingest telemetry row", err, "table", table.Name)
		return fmt.Errorf("%w: insert into %s: %w", failure.ErrSinkUnavailable, table.Name, err)
	}

	log.Debug("Telemetry row ingested", "table", table.Name)
	return nil
}

func (r *ProbeReporter) notify(ctx context.Context, outcome dto.ProbeOutcomeDTO) {
	for _, o := range r.observers {
		o.ObserveProbe(ctx, outcome)
	}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return strings.TrimSpace(s[:idx])
	}
	return s
}
