package scheduler

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dreschagin/install-monitor/internal/domain/entity"
	"github.com/dreschagin/install-monitor/internal/domain/valueobject"
	"github.com/dreschagin/install-monitor/pkg/logger"
)

type mockRunner struct {
	mu    sync.Mutex
	calls []string
	errs  map[string]error
	ran   chan string
}

func (m *mockRunner) RunMonitor(ctx context.Context, monitor entity.Monitor) error {
	m.mu.Lock()
	m.calls = append(m.calls, monitor.Name)
	err := m.errs[monitor.Name]
	m.mu.Unlock()

	if m.ran != nil {
		select {
		case m.ran <- monitor.Name:
		default:
		}
	}
	return err
}

func (m *mockRunner) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func testMonitors() []entity.Monitor {
	return []entity.Monitor{
		{Name: "download_sh", Kind: valueobject.MonitorKindURL, URL: "https://dot.net/v1/dotnet-install.sh"},
		{Name: "dry_run_LTS", Kind: valueobject.MonitorKindDryRun, Args: "-c LTS", Schedule: "0 0 * * * *"},
		{Name: "disabled", Kind: valueobject.MonitorKindDryRun, Args: "-c 3.1", Disabled: true},
	}
}

func TestRunNowRecordsSnapshot(t *testing.T) {
	runner := &mockRunner{errs: map[string]error{"dry_run_LTS": errors.New("probe failed")}}
	s, err := New(runner, testMonitors(), Config{}, logger.New("error"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	snap, err := s.RunNow(context.Background(), "download_sh")
	if err != nil {
		t.Fatalf("RunNow() error = %v", err)
	}
	if snap.Runs != 1 || snap.Failures != 0 || !snap.Healthy() || snap.LastRunAt.IsZero() {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if snap.Target != "https://dot.net/v1/dotnet-install.sh" || snap.Schedule != entity.DefaultMonitorSchedule {
		t.Fatalf("unexpected snapshot %+v", snap)
	}

	snap, err = s.RunNow(context.Background(), "dry_run_LTS")
	if err == nil {
		t.Fatal("expected run error")
	}
	if snap.Failures != 1 || snap.LastError != "probe failed" || snap.Target != "-c LTS" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}

	failing := s.Snapshot().Failing()
	if len(failing) != 1 || failing[0] != "dry_run_LTS" {
		t.Fatalf("Failing() = %v", failing)
	}
}

func TestRunNowUnknownMonitor(t *testing.T) {
	s, _ := New(&mockRunner{}, testMonitors(), Config{}, logger.New("error"))

	_, err := s.RunNow(context.Background(), "nope")
	if !errors.Is(err, ErrUnknownMonitor) {
		t.Fatalf("expected ErrUnknownMonitor, got %v", err)
	}
}

func TestRunAllSkipsDisabledAndJoinsErrors(t *testing.T) {
	runner := &mockRunner{errs: map[string]error{
		"download_sh": errors.New("404"),
		"dry_run_LTS": errors.New("stderr"),
	}}
	s, _ := New(runner, testMonitors(), Config{}, logger.New("error"))

	err := s.RunAll(context.Background())
	if err == nil {
		t.Fatal("expected joined error")
	}
	if !strings.Contains(err.Error(), "download_sh: 404") || !strings.Contains(err.Error(), "dry_run_LTS: stderr") {
		t.Fatalf("unexpected error %q", err)
	}
	if runner.callCount() != 2 {
		t.Fatalf("expected 2 runs, got %d", runner.callCount())
	}
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name     string
		monitors []entity.Monitor
		wantErr  string
	}{
		{
			name:     "bad schedule",
			monitors: []entity.Monitor{{Name: "a", Kind: valueobject.MonitorKindURL, URL: "u", Schedule: "every day"}},
			wantErr:  "invalid schedule",
		},
		{
			name:     "bad kind",
			monitors: []entity.Monitor{{Name: "a", Kind: "ftp"}},
			wantErr:  "invalid monitor kind",
		},
		{
			name: "duplicate",
			monitors: []entity.Monitor{
				{Name: "a", Kind: valueobject.MonitorKindURL, URL: "u"},
				{Name: "a", Kind: valueobject.MonitorKindURL, URL: "u"},
			},
			wantErr: `duplicate monitor "a"`,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(&mockRunner{}, tc.monitors, Config{}, logger.New("error"))
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestStartRunsScheduledMonitors(t *testing.T) {
	runner := &mockRunner{ran: make(chan string, 1)}
	monitors := []entity.Monitor{
		{Name: "every_second", Kind: valueobject.MonitorKindURL, URL: "u", Schedule: "* * * * * *"},
		{Name: "disabled", Kind: valueobject.MonitorKindURL, URL: "u", Schedule: "* * * * * *", Disabled: true},
	}
	s, err := New(runner, monitors, Config{}, logger.New("error"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	select {
	case name := <-runner.ran:
		if name != "every_second" {
			t.Fatalf("unexpected monitor run %q", name)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("scheduled monitor did not run")
	}

	snap := s.Snapshot()
	if !snap.Running {
		t.Fatal("expected scheduler to report running")
	}
	if snap.Monitors[0].NextRunAt.IsZero() {
		t.Error("expected next run time for scheduled monitor")
	}
	if !snap.Monitors[1].NextRunAt.IsZero() {
		t.Error("disabled monitor must not be scheduled")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	if s.Snapshot().Running {
		t.Fatal("expected scheduler to report stopped")
	}
}
