package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dreschagin/install-monitor/internal/domain/entity"
	"github.com/dreschagin/install-monitor/internal/domain/schema"
	"github.com/dreschagin/install-monitor/internal/scheduler"
	"github.com/dreschagin/install-monitor/pkg/config"
	"github.com/dreschagin/install-monitor/pkg/logger"
)

var runCmd = &cobra.Command{
	Use:   "run [monitor]",
	Short: "Run one monitor, or every enabled monitor, once and exit",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := ""
		if len(args) == 1 {
			name = args[0]
		}
		return runOnce(cmd.Context(), name)
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured monitors",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		sched, _, err := loadScheduler(cmd.Context(), false)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tKIND\tSCHEDULE\tTARGET\tDISABLED")
		for _, m := range sched.Snapshot().Monitors {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\n", m.Name, m.Kind, m.Schedule, m.Target, m.Disabled)
		}
		return w.Flush()
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check configuration and the monitors file without running anything",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		sched, _, err := loadScheduler(cmd.Context(), false)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "configuration is valid, %d monitors\n", len(sched.Monitors()))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd, listCmd, validateCmd)
}

func runOnce(ctx context.Context, name string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	sched, closeSink, err := loadScheduler(ctx, true)
	if err != nil {
		return err
	}
	defer closeSink()

	if name == "" {
		return sched.RunAll(ctx)
	}

	snapshot, err := sched.RunNow(ctx, name)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "%s ok in %s\n", snapshot.Name, snapshot.LastDuration)
	return nil
}

type noopRunner struct{}

func (noopRunner) RunMonitor(context.Context, entity.Monitor) error { return nil }

// loadScheduler builds a scheduler over the configured monitors. With withSink the
// runner writes to the configured telemetry sink; otherwise monitors are only validated.
func loadScheduler(ctx context.Context, withSink bool) (*scheduler.Scheduler, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	log := logger.New(cfg.Log.Level)

	monitors, err := config.LoadMonitors(cfg.Monitors.File)
	if err != nil {
		return nil, nil, err
	}

	tables, err := schema.TelemetryTables()
	if err != nil {
		return nil, nil, err
	}

	closeSink := func() {}
	var runner scheduler.MonitorRunner = noopRunner{}
	if withSink {
		tel, err := newTelemetry(ctx, cfg, tables, log)
		if err != nil {
			return nil, nil, err
		}
		closeSink = func() {
			if err := tel.sink.Close(context.Background()); err != nil {
				log.Error("Failed to close telemetry sink", err)
			}
		}
		runner = newProbeReporter(cfg, tel.sink, tables, log)
	}

	sched, err := scheduler.New(runner, monitors, scheduler.Config{RunTimeout: cfg.Monitors.RunTimeout}, log)
	if err != nil {
		closeSink()
		return nil, nil, err
	}
	return sched, closeSink, nil
}
