package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	// Application
	"github.com/dreschagin/install-monitor/internal/application/port"
	"github.com/dreschagin/install-monitor/internal/application/usecase"

	// Domain
	"github.com/dreschagin/install-monitor/internal/domain/schema"
	"github.com/dreschagin/install-monitor/internal/domain/service"

	// Infrastructure
	redisLock "github.com/dreschagin/install-monitor/internal/infrastructure/cache/redis"
	natsInfra "github.com/dreschagin/install-monitor/internal/infrastructure/messaging/nats"
	"github.com/dreschagin/install-monitor/internal/infrastructure/notification/teams"
	wsInfra "github.com/dreschagin/install-monitor/internal/infrastructure/notification/websocket"
	"github.com/dreschagin/install-monitor/internal/infrastructure/observability/cloudwatch"
	"github.com/dreschagin/install-monitor/internal/infrastructure/observability/metrics"
	s3storage "github.com/dreschagin/install-monitor/internal/infrastructure/storage/s3"
	"github.com/dreschagin/install-monitor/internal/infrastructure/tracker/azuredevops"

	// Interfaces
	httpInterface "github.com/dreschagin/install-monitor/internal/interfaces/http"
	"github.com/dreschagin/install-monitor/internal/interfaces/http/handler"
	"github.com/dreschagin/install-monitor/internal/scheduler"

	// Shared
	"github.com/dreschagin/install-monitor/pkg/config"
	"github.com/dreschagin/install-monitor/pkg/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler and the HTTP API until interrupted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

type observer interface {
	port.ProbeObserver
	port.TicketObserver
}

func runServe(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// 1. Загружаем конфигурацию
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// 2. Инициализируем logger
	log := logger.New(cfg.Log.Level)
	log.Info("Starting install monitor", "sink", cfg.Telemetry.Sink)

	// CloudWatch Logs Publisher
	if cfg.CloudWatch.LogsEnabled {
		logsPublisher, initErr := cloudwatch.NewLogsPublisher(ctx, cloudwatch.LogsPublisherConfig{
			AWS:           awsOptions(cfg),
			LogGroupName:  cfg.CloudWatch.LogGroup,
			LogStreamName: cfg.CloudWatch.LogStream,
			FlushInterval: cfg.CloudWatch.FlushInterval,
			AutoCreate:    cfg.CloudWatch.AutoCreate,
		})
		if initErr != nil {
			return fmt.Errorf("failed to initialize CloudWatch logs publisher: %w", initErr)
		}
		log.SetLogPublisher(logsPublisher)
		defer closeWithTimeout(log, "CloudWatch logs publisher", logsPublisher.Close)
		log.Info("CloudWatch logs publisher initialized", "log_group", cfg.CloudWatch.LogGroup)
	} else {
		log.Warn("CloudWatch logs publishing is disabled")
	}

	// 3. Загружаем мониторы
	monitors, err := config.LoadMonitors(cfg.Monitors.File)
	if err != nil {
		return err
	}
	log.Info("Monitors loaded", "count", len(monitors), "file", cfg.Monitors.File)

	// 4. Dependency Injection - Infrastructure Layer

	tables, err := schema.TelemetryTables()
	if err != nil {
		return err
	}

	tel, err := newTelemetry(ctx, cfg, tables, log)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry sink: %w", err)
	}
	defer closeWithTimeout(log, "telemetry sink", tel.sink.Close)

	dependencies := map[string]handler.Pinger{}
	if tel.pinger != nil {
		dependencies[cfg.Telemetry.Sink] = tel.pinger
	}

	// WebSocket Hub
	hub := wsInfra.NewHub(log)
	observers := []observer{hub}

	// Prometheus
	var promMetrics *metrics.Metrics
	if cfg.Metrics.Enabled {
		registry := prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		promMetrics = metrics.New(registry)
		observers = append(observers, promMetrics)
	} else {
		log.Warn("Prometheus metrics endpoint is disabled")
	}

	// CloudWatch Metrics Publisher
	if cfg.CloudWatch.MetricsEnabled {
		metricsPublisher, initErr := cloudwatch.NewMetricsPublisher(ctx, cloudwatch.MetricsPublisherConfig{
			AWS:               awsOptions(cfg),
			Namespace:         cfg.CloudWatch.MetricsNamespace,
			DefaultDimensions: map[string]string{"Environment": cfg.CloudWatch.Environment},
			FlushInterval:     cfg.CloudWatch.MetricsFlushPeriod,
		}, log)
		if initErr != nil {
			return fmt.Errorf("failed to initialize CloudWatch metrics publisher: %w", initErr)
		}
		defer closeWithTimeout(log, "CloudWatch metrics publisher", metricsPublisher.Close)
		observers = append(observers, metricsPublisher)
		log.Info("CloudWatch metrics publisher initialized", "namespace", cfg.CloudWatch.MetricsNamespace)
	} else {
		log.Warn("CloudWatch metrics publishing is disabled")
	}

	// NATS Event Publisher
	if cfg.NATS.Enabled {
		publisher, initErr := natsInfra.NewPublisher(cfg.NATS.URL, cfg.NATS.Stream,
			[]string{port.SubjectProbeFailed, port.SubjectIncidentCreated}, log)
		if initErr != nil {
			return fmt.Errorf("failed to connect to NATS: %w", initErr)
		}
		defer publisher.Close()
		dependencies["nats"] = publisher
		observers = append(observers, usecase.NewEventRelay(publisher, log))
	} else {
		log.Warn("NATS event publishing is disabled")
	}

	// 5. Dependency Injection - Application Layer (Use Cases)

	reporter := newProbeReporter(cfg, tel.sink, tables, log)
	for _, o := range observers {
		reporter.AddObserver(o)
	}

	sched, err := scheduler.New(reporter, monitors, scheduler.Config{RunTimeout: cfg.Monitors.RunTimeout}, log)
	if err != nil {
		return err
	}

	// Без планировщика readiness не зависит от него
	var healthScheduler handler.MonitorScheduler
	if cfg.Monitors.SchedulerEnabled {
		healthScheduler = sched
	}

	handlers := httpInterface.Handlers{
		Health:    handler.NewHealthHandler(healthScheduler, dependencies),
		Monitors:  handler.NewMonitorHandler(sched, log),
		WebSocket: handler.NewWebSocketHandler(hub, cfg.Security.AllowedOrigins, httpInterface.AuthConfig(cfg.Security, promMetrics), log),
	}

	if cfg.Tracker.Enabled {
		workflow, closeWorkflow, initErr := newTicketWorkflow(ctx, cfg, dependencies, observers, log)
		if initErr != nil {
			return initErr
		}
		defer closeWorkflow()
		handlers.Alerts = handler.NewAlertWebhookHandler(workflow, log)
	} else {
		log.Warn("Ticket tracker is disabled, Grafana alert webhook is not registered")
	}

	// 6. Dependency Injection - Interfaces Layer (HTTP)

	router := httpInterface.NewRouter(handlers, promMetrics, cfg.Security, cfg.RateLimit, log)

	// 7. Запускаем фоновые процессы

	go hub.Run(ctx)
	log.Info("WebSocket hub started")

	schedulerDone := make(chan struct{})
	if cfg.Monitors.SchedulerEnabled {
		go func() {
			defer close(schedulerDone)
			sched.Start(ctx)
		}()
	} else {
		close(schedulerDone)
		log.Warn("Monitor scheduler is disabled, monitors run only on demand")
	}

	// 8. Настраиваем HTTP сервер

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Канал для получения сигналов ОС
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	serverErr := make(chan error, 1)
	go func() {
		log.Info("HTTP server starting", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// 9. Ожидаем сигнал для graceful shutdown

	select {
	case <-sigChan:
		log.Info("Shutdown signal received, starting graceful shutdown...")
	case err = <-serverErr:
		log.Error("HTTP server failed", err)
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
		log.Error("Server shutdown error", shutdownErr)
	}

	// Останавливаем планировщик и ждем текущие проверки
	cancel()
	select {
	case <-schedulerDone:
	case <-shutdownCtx.Done():
		log.Warn("Monitor runs still in flight at shutdown")
	}

	log.Info("Server stopped gracefully")
	return err
}

// newTicketWorkflow wires the tracker and the optional lock, archive and Teams
// notifier. The returned func releases what it opened.
func newTicketWorkflow(
	ctx context.Context,
	cfg *config.Config,
	dependencies map[string]handler.Pinger,
	observers []observer,
	log *logger.Logger,
) (*usecase.IncidentTicketWorkflow, func(), error) {
	closers := []func(){}
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	tracker, err := azuredevops.NewClient(azuredevops.Config{
		BaseURL:      cfg.Tracker.BaseURL,
		PAT:          cfg.Tracker.PAT,
		WorkItemType: cfg.Tracker.WorkItemType,
		Timeout:      cfg.Tracker.Timeout,
	}, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize Azure DevOps client: %w", err)
	}

	format, err := service.FormatByName(cfg.Incident.Format)
	if err != nil {
		return nil, nil, err
	}

	workflow := usecase.NewIncidentTicketWorkflow(tracker, service.NewIncidentSerializer(nil), usecase.IncidentTicketConfig{
		Project:       cfg.Tracker.Project,
		AreaPath:      cfg.Tracker.AreaPath,
		Tags:          cfg.Tracker.Tags,
		LockTTL:       cfg.Incident.LockTTL,
		ArchivePrefix: cfg.S3.KeyPrefix,
	}, log)
	for _, o := range observers {
		workflow.AddObserver(o)
	}

	// Redis lock
	if cfg.Redis.Enabled {
		lock, lockErr := redisLock.NewTicketLock(redisLock.Options{
			Host:      cfg.Redis.Host,
			Port:      cfg.Redis.Port,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
		})
		if lockErr != nil {
			closeAll()
			return nil, nil, fmt.Errorf("failed to connect to Redis: %w", lockErr)
		}
		closers = append(closers, func() { _ = lock.Close() })
		dependencies["redis"] = lock
		workflow.WithLock(lock)
		log.Info("Redis ticket lock enabled", "host", cfg.Redis.Host)
	} else {
		log.Warn("Redis is disabled, concurrent alerts may create duplicate tickets")
	}

	// S3 archive
	if cfg.S3.Enabled {
		archive, archiveErr := s3storage.NewIncidentArchive(ctx, s3storage.Config{
			AWS:          awsOptions(cfg),
			Bucket:       cfg.S3.Bucket,
			UsePathStyle: cfg.S3.UsePathStyle,
			URLMode:      s3storage.URLMode(cfg.S3.URLMode),
			PresignedTTL: cfg.S3.PresignedTTL,
		})
		if archiveErr != nil {
			closeAll()
			return nil, nil, fmt.Errorf("failed to initialize incident archive: %w", archiveErr)
		}
		workflow.WithArchive(archive, format)
		log.Info("Incident archive enabled", "bucket", cfg.S3.Bucket, "format", cfg.Incident.Format)
	} else {
		log.Warn("S3 incident archive is disabled")
	}

	// Teams
	if cfg.Teams.Enabled() {
		connector, teamsErr := teams.NewConnector(cfg.Teams.WebhookURL, 0)
		if teamsErr != nil {
			closeAll()
			return nil, nil, teamsErr
		}
		workflow.WithNotifier(connector)
	} else {
		log.Warn("Teams notifications are disabled")
	}

	log.Info("Incident ticket workflow initialized", "project", cfg.Tracker.Project, "area_path", cfg.Tracker.AreaPath)
	return workflow, closeAll, nil
}

func closeWithTimeout(log *logger.Logger, name string, closeFn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := closeFn(ctx); err != nil {
		log.Error("Failed to close "+name, err)
	}
}
