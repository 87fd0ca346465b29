package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dreschagin/install-monitor/internal/domain/entity"
	"github.com/dreschagin/install-monitor/internal/domain/valueobject"
	"github.com/dreschagin/install-monitor/pkg/logger"
)

var ErrUnknownMonitor = errors.New("unknown monitor")

const defaultRunTimeout = 5 * time.Minute

// MonitorRunner runs a single probe for a monitor.
type MonitorRunner interface {
	RunMonitor(ctx context.Context, monitor entity.Monitor) error
}

type Config struct {
	// RunTimeout bounds one monitor run, including ingestion.
	RunTimeout time.Duration
}

type monitorState struct {
	monitor entity.Monitor
	entryID cron.EntryID
	runMu   sync.Mutex

	runs         int
	failures     int
	lastRunAt    time.Time
	lastDuration time.Duration
	lastError    string
}

// Scheduler runs monitors on their cron schedules and keeps the result of each last run.
type Scheduler struct {
	runner     MonitorRunner
	log        *logger.Logger
	cron       *cron.Cron
	runTimeout time.Duration

	order  []string
	states map[string]*monitorState

	mu        sync.RWMutex
	baseCtx   context.Context
	startedAt time.Time
	running   bool
}

// New validates every schedule up front; disabled monitors are listed but never scheduled.
func New(runner MonitorRunner, monitors []entity.Monitor, cfg Config, log *logger.Logger) (*Scheduler, error) {
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = defaultRunTimeout
	}

	cronLog := cronLogger{log: log}
	s := &Scheduler{
		runner:     runner,
		log:        log,
		runTimeout: cfg.RunTimeout,
		states:     make(map[string]*monitorState, len(monitors)),
		baseCtx:    context.Background(),
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLocation(time.UTC),
			cron.WithLogger(cronLog),
			cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
		),
	}

	for _, m := range monitors {
		if _, dup := s.states[m.Name]; dup {
			return nil, fmt.Errorf("duplicate monitor %q", m.Name)
		}
		if err := m.Kind.Validate(); err != nil {
			return nil, fmt.Errorf("monitor %s: %w", m.Name, err)
		}

		schedule := m.Schedule
		if schedule == "" {
			schedule = entity.DefaultMonitorSchedule
			m.Schedule = schedule
		}

		state := &monitorState{monitor: m}
		if !m.Disabled {
			name := m.Name
			id, err := s.cron.AddFunc(schedule, func() { s.scheduledRun(name) })
			if err != nil {
				return nil, fmt.Errorf("monitor %s: invalid schedule %q: %w", m.Name, schedule, err)
			}
			state.entryID = id
		}

		s.states[m.Name] = state
		s.order = append(s.order, m.Name)
	}

	return s, nil
}

// Start runs the cron loop until ctx is cancelled and waits for in-flight runs.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.baseCtx = ctx
	s.startedAt = time.Now()
	s.running = true
	s.mu.Unlock()

	s.cron.Start()
	s.log.Info("Monitor scheduler started", "monitors", len(s.order))

	<-ctx.Done()

	stopped := s.cron.Stop()
	<-stopped.Done()

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	s.log.Info("Monitor scheduler stopped")
}

// RunNow runs one monitor immediately, waiting for a scheduled run of it to finish first.
func (s *Scheduler) RunNow(ctx context.Context, name string) (MonitorSnapshot, error) {
	state, ok := s.states[name]
	if !ok {
		return MonitorSnapshot{}, fmt.Errorf("%w: %s", ErrUnknownMonitor, name)
	}

	err := s.run(ctx, state)
	return s.snapshotOf(state), err
}

// RunAll runs every enabled monitor once, in definition order.
func (s *Scheduler) RunAll(ctx context.Context) error {
	var errs []error
	for _, name := range s.order {
		state := s.states[name]
		if state.monitor.Disabled {
			continue
		}
		if err := s.run(ctx, state); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
		if ctx.Err() != nil {
			break
		}
	}
	return errors.Join(errs...)
}

func (s *Scheduler) Monitors() []entity.Monitor {
	monitors := make([]entity.Monitor, 0, len(s.order))
	for _, name := range s.order {
		monitors = append(monitors, s.states[name].monitor)
	}
	return monitors
}

func (s *Scheduler) Snapshot() Snapshot {
	s.mu.RLock()
	snapshot := Snapshot{StartedAt: s.startedAt, Running: s.running}
	s.mu.RUnlock()

	snapshot.Monitors = make([]MonitorSnapshot, 0, len(s.order))
	for _, name := range s.order {
		snapshot.Monitors = append(snapshot.Monitors, s.snapshotOf(s.states[name]))
	}
	return snapshot
}

func (s *Scheduler) scheduledRun(name string) {
	s.mu.RLock()
	ctx := s.baseCtx
	s.mu.RUnlock()

	// Errors are recorded in the snapshot and logged by the runner.
	_ = s.run(ctx, s.states[name])
}

func (s *Scheduler) run(ctx context.Context, state *monitorState) error {
	state.runMu.Lock()
	defer state.runMu.Unlock()

	runCtx, cancel := context.WithTimeout(ctx, s.runTimeout)
	defer cancel()

	started := time.Now()
	err := s.runner.RunMonitor(runCtx, state.monitor)
	duration := time.Since(started)

	s.mu.Lock()
	state.runs++
	state.lastRunAt = started.UTC()
	state.lastDuration = duration
	state.lastError = ""
	if err != nil {
		state.failures++
		state.lastError = err.Error()
	}
	s.mu.Unlock()

	if err != nil {
		s.log.Warn("Monitor run failed", "monitor", state.monitor.Name, "duration", duration.String(), "error", err.Error())
		return err
	}

	s.log.Debug("Monitor run succeeded", "monitor", state.monitor.Name, "duration", duration.String())
	return nil
}

func (s *Scheduler) snapshotOf(state *monitorState) MonitorSnapshot {
	m := state.monitor
	target := m.URL
	if m.Kind == valueobject.MonitorKindDryRun {
		target = m.Args
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := MonitorSnapshot{
		Name:         m.Name,
		Kind:         m.Kind.String(),
		Target:       target,
		Schedule:     m.Schedule,
		Disabled:     m.Disabled,
		Runs:         state.runs,
		Failures:     state.failures,
		LastRunAt:    state.lastRunAt,
		LastDuration: state.lastDuration,
		LastError:    state.lastError,
	}
	if state.entryID != 0 {
		snapshot.NextRunAt = s.cron.Entry(state.entryID).Next
	}
	return snapshot
}

// cronLogger adapts the service logger to cron.Logger.
type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error("cron: "+msg, err, keysAndValues...)
}
