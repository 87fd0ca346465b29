package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dreschagin/install-monitor/internal/application/dto"
	"github.com/dreschagin/install-monitor/internal/application/port"
	"github.com/dreschagin/install-monitor/internal/domain/failure"
	"github.com/dreschagin/install-monitor/internal/domain/service"
	"github.com/dreschagin/install-monitor/internal/domain/valueobject"
	"github.com/dreschagin/install-monitor/pkg/logger"
)

// mockTracker keeps created tickets open so that later deliveries see them.
type mockTracker struct {
	project   *port.Project
	open      []port.Ticket
	created   []port.CreateTicketRequest
	nextID    int
	findErr   error
	createNil bool
}

func newMockTracker() *mockTracker {
	return &mockTracker{project: &port.Project{ID: "p1", Name: "devdiv"}, nextID: 100}
}

func (m *mockTracker) GetProject(_ context.Context, name string) (*port.Project, error) {
	if m.project == nil || m.project.Name != name {
		return nil, nil
	}
	return m.project, nil
}

func (m *mockTracker) FindOpenTicket(_ context.Context, _ port.Project, title, _ string) (*port.Ticket, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	for _, t := range m.open {
		if t.Title == title {
			found := t
			return &found, nil
		}
	}
	return nil, nil
}

func (m *mockTracker) CreateTicket(_ context.Context, _ port.Project, req port.CreateTicketRequest) (*port.Ticket, error) {
	m.created = append(m.created, req)
	if m.createNil {
		return nil, nil
	}
	m.nextID++
	ticket := port.Ticket{ID: m.nextID, Title: req.Title, State: "To Do", URL: "https://tracker.example/" + req.Title}
	m.open = append(m.open, ticket)
	return &ticket, nil
}

type mockLock struct {
	held     map[string]string
	unlocked []string
}

func (m *mockLock) TryLock(_ context.Context, key string, _ time.Duration) (string, bool, error) {
	if m.held == nil {
		m.held = make(map[string]string)
	}
	if _, ok := m.held[key]; ok {
		return "", false, nil
	}
	m.held[key] = "token-" + key
	return m.held[key], true, nil
}

func (m *mockLock) Unlock(_ context.Context, key, token string) error {
	if m.held[key] == token {
		delete(m.held, key)
		m.unlocked = append(m.unlocked, key)
	}
	return nil
}

type mockArchive struct {
	keys   []string
	bodies []string
}

func (m *mockArchive) PutObject(_ context.Context, key, _ string, body []byte) (string, error) {
	m.keys = append(m.keys, key)
	m.bodies = append(m.bodies, string(body))
	return "https://archive.example/" + key, nil
}

type mockNotifier struct {
	cards []string
	err   error
}

func (m *mockNotifier) SendIncidentCard(_ context.Context, title, _, _ string) error {
	m.cards = append(m.cards, title)
	return m.err
}

type recordingTicketObserver struct {
	created []dto.IncidentCreatedEventDTO
	skipped []dto.SkippedEvaluationDTO
}

func (o *recordingTicketObserver) TicketCreated(_ context.Context, e dto.IncidentCreatedEventDTO) {
	o.created = append(o.created, e)
}

func (o *recordingTicketObserver) EvaluationSkipped(_ context.Context, s dto.SkippedEvaluationDTO) {
	o.skipped = append(o.skipped, s)
}

func newTestWorkflow(tracker *mockTracker) *IncidentTicketWorkflow {
	wf := NewIncidentTicketWorkflow(tracker, service.NewIncidentSerializer(nil), IncidentTicketConfig{
		Project:  "devdiv",
		AreaPath: `DevDiv\NET Tools\install-scripts-incidents`,
	}, logger.New("error"))
	wf.now = func() time.Time { return time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC) }
	return wf
}

const alertingPayload = `{
  "title": "[Alerting] install script download",
  "message": "404 on primary URL",
  "ruleName": "install scripts",
  "state": "alerting",
  "evalMatches": [
    {"value": 1, "metric": "failures", "tags": {"monitor_name": "download_sh"}}
  ]
}`

func TestIncidentTicketWorkflow_CreatesTicket(t *testing.T) {
	tracker := newMockTracker()
	observer := &recordingTicketObserver{}
	wf := newTestWorkflow(tracker).AddObserver(observer)

	res, err := wf.Run(context.Background(), []byte(alertingPayload))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Count() != 1 {
		t.Fatalf("expected 1 ticket, got %d", res.Count())
	}

	req := tracker.created[0]
	if req.Title != "#download_sh# 404 on primary URL" {
		t.Fatalf("unexpected title %q", req.Title)
	}
	if req.AreaPath != `DevDiv\NET Tools\install-scripts-incidents` {
		t.Fatalf("unexpected area path %q", req.AreaPath)
	}

	incident, err := service.NewIncidentSerializer(nil).FromText(req.Description)
	if err != nil {
		t.Fatalf("description is not an incident: %v", err)
	}
	if incident.HowDetected != valueobject.DetectedByMonitoring {
		t.Fatalf("unexpected detection %q", incident.HowDetected)
	}
	if len(incident.Symptoms) != 1 || !strings.Contains(incident.Symptoms[0].Details.Description, "404 on primary URL") {
		t.Fatalf("unexpected symptoms %+v", incident.Symptoms)
	}
	if !strings.Contains(req.Description, `"how-detected": "monitoring"`) {
		t.Fatalf("description should carry stable tags: %s", req.Description)
	}

	if len(observer.created) != 1 || observer.created[0].TicketID != res.Created[0].ID {
		t.Fatalf("unexpected created events %+v", observer.created)
	}
	if got := res.Summary(); got != "1 work items were created with IDs 101" {
		t.Fatalf("Summary() = %q", got)
	}
}

func TestIncidentTicketWorkflow_SecondDeliveryIsDuplicate(t *testing.T) {
	tracker := newMockTracker()
	wf := newTestWorkflow(tracker)

	if _, err := wf.Run(context.Background(), []byte(alertingPayload)); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}

	res, err := wf.Run(context.Background(), []byte(alertingPayload))
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	if res.Count() != 0 {
		t.Fatalf("expected no new tickets, got %d", res.Count())
	}
	if len(res.Skipped) != 1 || res.Skipped[0].Reason != dto.SkipReasonDuplicate {
		t.Fatalf("unexpected skipped %+v", res.Skipped)
	}
	if len(tracker.created) != 1 {
		t.Fatalf("tracker should have one ticket, got %d", len(tracker.created))
	}
}

func TestIncidentTicketWorkflow_SkipsEvaluationWithoutMonitorName(t *testing.T) {
	tracker := newMockTracker()
	wf := newTestWorkflow(tracker)

	payload := `{
	  "message": "timeout",
	  "state": "alerting",
	  "evalMatches": [
	    {"value": 1, "metric": "a", "tags": {"host": "agent-1"}},
	    null,
	    {"value": 2, "metric": "b", "tags": {"monitor_name": "dry_run_LTS"}}
	  ]
	}`

	res, err := wf.Run(context.Background(), []byte(payload))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Count() != 1 || res.Created[0].MonitorName != "dry_run_LTS" {
		t.Fatalf("unexpected created %+v", res.Created)
	}
	if len(res.Skipped) != 2 || res.Skipped[0].Index != 0 || res.Skipped[1].Index != 1 {
		t.Fatalf("unexpected skipped %+v", res.Skipped)
	}
}

func TestIncidentTicketWorkflow_DefaultMessage(t *testing.T) {
	tracker := newMockTracker()
	wf := newTestWorkflow(tracker)

	payload := `{"state": "alerting", "evalMatches": [{"tags": {"monitor_name": "download_ps1"}}]}`
	if _, err := wf.Run(context.Background(), []byte(payload)); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if tracker.created[0].Title != "#download_ps1# Alert triggered" {
		t.Fatalf("unexpected title %q", tracker.created[0].Title)
	}
}

func TestIncidentTicketWorkflow_InputErrors(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		wantErr string
	}{
		{name: "empty", payload: "  ", wantErr: "alert payload is empty"},
		{name: "malformed", payload: "{not json", wantErr: "malformed alert payload"},
		{name: "missing state", payload: `{"message": "x"}`, wantErr: "invalid alert payload"},
		{name: "ok state", payload: `{"state": "ok", "evalMatches": []}`, wantErr: `alert state is "ok"`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tracker := newMockTracker()
			_, err := newTestWorkflow(tracker).Run(context.Background(), []byte(tc.payload))
			if !errors.Is(err, failure.ErrInvalidInput) {
				t.Fatalf("expected invalid input, got %v", err)
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error containing %q, got %q", tc.wantErr, err.Error())
			}
			if len(tracker.created) != 0 {
				t.Fatalf("no tickets expected")
			}
		})
	}
}

func TestIncidentTicketWorkflow_MissingProjectIsFatal(t *testing.T) {
	tracker := newMockTracker()
	tracker.project = nil

	_, err := newTestWorkflow(tracker).Run(context.Background(), []byte(alertingPayload))
	if !errors.Is(err, failure.ErrFatal) {
		t.Fatalf("expected fatal error, got %v", err)
	}
	if !strings.Contains(err.Error(), `The project "devdiv" was not found`) {
		t.Fatalf("unexpected error %q", err.Error())
	}
}

func TestIncidentTicketWorkflow_CreateReturningNothingAbortsBatch(t *testing.T) {
	tracker := newMockTracker()
	tracker.createNil = true

	payload := `{"message": "m", "state": "alerting", "evalMatches": [
	  {"tags": {"monitor_name": "a"}},
	  {"tags": {"monitor_name": "b"}}
	]}`

	res, err := newTestWorkflow(tracker).Run(context.Background(), []byte(payload))
	if !errors.Is(err, failure.ErrFatal) {
		t.Fatalf("expected fatal error, got %v", err)
	}
	if !strings.Contains(err.Error(), "Failed to create a new work item.") {
		t.Fatalf("unexpected error %q", err.Error())
	}
	if res == nil || res.Count() != 0 {
		t.Fatalf("expected empty partial result, got %+v", res)
	}
	if len(tracker.created) != 1 {
		t.Fatalf("batch should stop after the first failure, got %d create calls", len(tracker.created))
	}
}

func TestIncidentTicketWorkflow_TrackerErrorSkipsEvaluation(t *testing.T) {
	tracker := newMockTracker()
	tracker.findErr = errors.New("503 Service Unavailable")

	res, err := newTestWorkflow(tracker).Run(context.Background(), []byte(alertingPayload))
	if !errors.Is(err, failure.ErrTrackerUnavailable) {
		t.Fatalf("expected tracker error, got %v", err)
	}
	if len(res.Skipped) != 1 || res.Skipped[0].Reason != dto.SkipReasonTracker {
		t.Fatalf("unexpected skipped %+v", res.Skipped)
	}
}

func TestIncidentTicketWorkflow_LockedTitleIsSkipped(t *testing.T) {
	tracker := newMockTracker()
	lock := &mockLock{held: map[string]string{"ticket:#download_sh# 404 on primary URL": "other"}}
	wf := newTestWorkflow(tracker).WithLock(lock)

	res, err := wf.Run(context.Background(), []byte(alertingPayload))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Count() != 0 || res.Skipped[0].Reason != dto.SkipReasonLocked {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestIncidentTicketWorkflow_LockReleasedAfterCreate(t *testing.T) {
	tracker := newMockTracker()
	lock := &mockLock{}
	wf := newTestWorkflow(tracker).WithLock(lock)

	if _, err := wf.Run(context.Background(), []byte(alertingPayload)); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(lock.unlocked) != 1 || len(lock.held) != 0 {
		t.Fatalf("lock was not released: held=%v unlocked=%v", lock.held, lock.unlocked)
	}
}

func TestIncidentTicketWorkflow_ArchiveAndNotify(t *testing.T) {
	tracker := newMockTracker()
	archive := &mockArchive{}
	notifier := &mockNotifier{err: errors.New("webhook gone")}
	wf := newTestWorkflow(tracker).
		WithArchive(archive, service.YAMLFormat{}).
		WithNotifier(notifier)

	res, err := wf.Run(context.Background(), []byte(alertingPayload))
	if err != nil {
		t.Fatalf("notifier failure must not fail the batch: %v", err)
	}

	wantKey := "incidents/download_sh/2026/03/01/20260301T100000Z.yaml"
	if len(archive.keys) != 1 || archive.keys[0] != wantKey {
		t.Fatalf("unexpected archive keys %v", archive.keys)
	}
	if !strings.Contains(archive.bodies[0], "how-detected: monitoring") {
		t.Fatalf("unexpected archive body %s", archive.bodies[0])
	}
	if res.Created[0].ArchiveURL != "https://archive.example/"+wantKey {
		t.Fatalf("unexpected archive url %q", res.Created[0].ArchiveURL)
	}
	if len(notifier.cards) != 1 {
		t.Fatalf("expected one card, got %d", len(notifier.cards))
	}
}
