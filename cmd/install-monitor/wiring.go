package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/dreschagin/install-monitor/internal/application/port"
	"github.com/dreschagin/install-monitor/internal/application/usecase"
	"github.com/dreschagin/install-monitor/internal/domain/schema"
	"github.com/dreschagin/install-monitor/internal/infrastructure/awsutil"
	"github.com/dreschagin/install-monitor/internal/infrastructure/installscript"
	cwSink "github.com/dreschagin/install-monitor/internal/infrastructure/telemetry/cloudwatch"
	"github.com/dreschagin/install-monitor/internal/infrastructure/telemetry/dummy"
	ddbSink "github.com/dreschagin/install-monitor/internal/infrastructure/telemetry/dynamodb"
	"github.com/dreschagin/install-monitor/internal/infrastructure/telemetry/postgres"
	"github.com/dreschagin/install-monitor/pkg/config"
	"github.com/dreschagin/install-monitor/pkg/logger"
)

// telemetry is the sink selected by TELEMETRY_SINK. pinger is set when the sink
// has a connection worth checking in /readyz.
type telemetry struct {
	sink   port.TelemetrySink
	pinger interface{ Ping(context.Context) error }
}

func awsOptions(cfg *config.Config) awsutil.Options {
	return awsutil.Options{
		Region:          cfg.AWS.Region,
		Endpoint:        cfg.AWS.Endpoint,
		AccessKeyID:     cfg.AWS.AccessKeyID,
		SecretAccessKey: cfg.AWS.SecretAccessKey,
	}
}

func newTelemetry(ctx context.Context, cfg *config.Config, tables *schema.Registry, log *logger.Logger) (*telemetry, error) {
	switch cfg.Telemetry.Sink {
	case config.SinkDummy:
		log.Warn("Telemetry sink is dummy, rows are only logged")
		return &telemetry{sink: dummy.NewSink(cfg.Telemetry.DummyDelay, log)}, nil

	case config.SinkPostgres:
		db, err := postgres.Open(ctx, cfg.Database.DSN(), postgres.PoolConfig{
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		})
		if err != nil {
			return nil, err
		}
		sink := postgres.NewSink(db, tables)
		if err := sink.EnsureSchema(ctx, tables); err != nil {
			_ = sink.Close(ctx)
			return nil, err
		}
		log.Info("Telemetry sink connected", "sink", config.SinkPostgres, "database", cfg.Database.Database)
		return &telemetry{sink: sink, pinger: sink}, nil

	case config.SinkDynamoDB:
		sink, err := ddbSink.NewSink(ctx, ddbSink.Config{
			AWS:       awsOptions(cfg),
			TableName: cfg.DynamoDB.Table,
			TTL:       cfg.DynamoDB.TTL,
		})
		if err != nil {
			return nil, err
		}
		log.Info("Telemetry sink initialized", "sink", config.SinkDynamoDB, "table", cfg.DynamoDB.Table)
		return &telemetry{sink: sink}, nil

	case config.SinkCloudWatch:
		sink, err := cwSink.NewSink(ctx, cwSink.Config{
			AWS:          awsOptions(cfg),
			LogGroupName: cfg.CloudWatch.TelemetryLogGroup,
			StreamPrefix: cfg.Telemetry.Database,
			AutoCreate:   cfg.CloudWatch.AutoCreate,
		})
		if err != nil {
			return nil, err
		}
		log.Info("Telemetry sink initialized", "sink", config.SinkCloudWatch, "log_group", cfg.CloudWatch.TelemetryLogGroup)
		return &telemetry{sink: sink}, nil

	default:
		return nil, fmt.Errorf("unsupported telemetry sink: %s", cfg.Telemetry.Sink)
	}
}

func newProbeReporter(cfg *config.Config, sink port.TelemetrySink, tables *schema.Registry, log *logger.Logger) *usecase.ProbeReporter {
	scripts := installscript.NewRunner(installscript.Config{
		Shell:      cfg.Probe.ScriptShell,
		ScriptURL:  cfg.Probe.ScriptURL,
		ScriptPath: cfg.Probe.ScriptPath,
		Timeout:    cfg.Probe.ScriptTimeout,
	}, log)

	return usecase.NewProbeReporter(
		&http.Client{Timeout: cfg.Probe.HTTPTimeout},
		sink,
		scripts,
		tables,
		usecase.ProbeReporterConfig{IngestTimeout: cfg.Telemetry.IngestTimeout},
		log,
	)
}
