package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/dreschagin/install-monitor/internal/application/dto"
	"github.com/dreschagin/install-monitor/internal/application/port"
	"github.com/dreschagin/install-monitor/internal/domain/entity"
	"github.com/dreschagin/install-monitor/internal/domain/failure"
	"github.com/dreschagin/install-monitor/internal/domain/service"
	"github.com/dreschagin/install-monitor/pkg/logger"
)

// DefaultAlertMessage replaces an empty alert message in titles and incidents.
const DefaultAlertMessage = "Alert triggered"

const defaultTicketLockTTL = 2 * time.Minute

type IncidentTicketConfig struct {
	Project       string
	AreaPath      string
	Tags          []string
	LockTTL       time.Duration
	ArchivePrefix string
}

// IncidentTicketWorkflow turns alerting notifications into deduplicated incident tickets.
type IncidentTicketWorkflow struct {
	tracker    port.TicketTracker
	serializer *service.IncidentSerializer
	lock       port.TicketLock
	archive    port.IncidentArchive
	archiveFmt *service.IncidentSerializer
	notifier   port.IncidentNotifier
	observers  []port.TicketObserver
	validate   *validator.Validate
	config     IncidentTicketConfig
	logger     *logger.Logger
	now        func() time.Time
}

func NewIncidentTicketWorkflow(
	tracker port.TicketTracker,
	serializer *service.IncidentSerializer,
	config IncidentTicketConfig,
	log *logger.Logger,
) *IncidentTicketWorkflow {
	if serializer == nil {
		serializer = service.NewIncidentSerializer(nil)
	}
	if config.LockTTL <= 0 {
		config.LockTTL = defaultTicketLockTTL
	}

	return &IncidentTicketWorkflow{
		tracker:    tracker,
		serializer: serializer,
		validate:   validator.New(),
		config:     config,
		logger:     log,
		now:        time.Now,
	}
}

// WithLock serializes duplicate-check-then-create per ticket title.
func (w *IncidentTicketWorkflow) WithLock(lock port.TicketLock) *IncidentTicketWorkflow {
	w.lock = lock
	return w
}

// WithArchive stores a snapshot of every filed incident, encoded with format.
func (w *IncidentTicketWorkflow) WithArchive(archive port.IncidentArchive, format service.IncidentFormat) *IncidentTicketWorkflow {
	w.archive = archive
	w.archiveFmt = service.NewIncidentSerializer(format)
	return w
}

func (w *IncidentTicketWorkflow) WithNotifier(notifier port.IncidentNotifier) *IncidentTicketWorkflow {
	w.notifier = notifier
	return w
}

func (w *IncidentTicketWorkflow) AddObserver(o port.TicketObserver) *IncidentTicketWorkflow {
	if o != nil {
		w.observers = append(w.observers, o)
	}
	return w
}

// TicketTitle is deterministic so that repeated alerts find the ticket they opened.
func TicketTitle(monitorName, message string) string {
	return fmt.Sprintf("#%s# %s", monitorName, message)
}

// Run decodes an alert webhook body and files tickets for it.
func (w *IncidentTicketWorkflow) Run(ctx context.Context, payload []byte) (*dto.TicketBatchResultDTO, error) {
	if len(bytes.TrimSpace(payload)) == 0 {
		return nil, fmt.Errorf("%w: alert payload is empty", failure.ErrInvalidInput)
	}

	var alert dto.AlertNotificationDTO
	if err := json.Unmarshal(payload, &alert); err != nil {
		return nil, fmt.Errorf("%w: malformed alert payload: %w", failure.ErrInvalidInput, err)
	}

	return w.Process(ctx, alert)
}

// Process files one ticket per alerting evaluation that has no open duplicate.
// Evaluations without a monitor_name tag are skipped. A missing project or a create
// call that returns nothing aborts the batch; the tickets created so far are returned.
func (w *IncidentTicketWorkflow) Process(ctx context.Context, alert dto.AlertNotificationDTO) (*dto.TicketBatchResultDTO, error) {
	if err := w.validate.Struct(alert); err != nil {
		return nil, fmt.Errorf("%w: invalid alert payload: %w", failure.ErrInvalidInput, err)
	}
	if !alert.State.IsAlerting() {
		return nil, fmt.Errorf("%w: alert state is %q, only alerting notifications open tickets", failure.ErrInvalidInput, alert.State)
	}

	project, err := w.tracker.GetProject(ctx, w.config.Project)
	if err != nil {
		return nil, fmt.Errorf("%w: get project %s: %w", failure.ErrTrackerUnavailable, w.config.Project, err)
	}
	if project == nil {
		return nil, fmt.Errorf("%w: The project %q was not found or you do not have permission to access it.", failure.ErrFatal, w.config.Project)
	}

	message := DefaultAlertMessage
	if alert.Message != nil && strings.TrimSpace(*alert.Message) != "" {
		message = strings.TrimSpace(*alert.Message)
	}

	result := &dto.TicketBatchResultDTO{
		Created: make([]dto.CreatedTicketDTO, 0),
		Skipped: make([]dto.SkippedEvaluationDTO, 0),
	}

	var trackerErrs []error
	for idx, eval := range alert.EvalMatches {
		monitorName, ok := eval.MonitorName()
		if !ok {
			w.logger.Warn("Skipping evaluation without monitor_name tag", "index", idx, "rule", alert.RuleName)
			w.skip(ctx, result, dto.SkippedEvaluationDTO{Index: idx, Reason: dto.SkipReasonInvalid})
			continue
		}

		log := w.logger.With("monitor_name", monitorName, "index", idx)
		created, reason, err := w.fileTicket(ctx, log, *project, monitorName, message)
		switch {
		case errors.Is(err, failure.ErrFatal):
			return result, err
		case err != nil:
			log.Error("Ticket tracker call failed", err)
			trackerErrs = append(trackerErrs, err)
			w.skip(ctx, result, dto.SkippedEvaluationDTO{Index: idx, MonitorName: monitorName, Reason: dto.SkipReasonTracker})
		case created == nil:
			w.skip(ctx, result, dto.SkippedEvaluationDTO{Index: idx, MonitorName: monitorName, Reason: reason})
		default:
			result.Created = append(result.Created, *created)
		}
	}

	w.logger.Info(result.Summary(), "skipped", len(result.Skipped))
	return result, errors.Join(trackerErrs...)
}

func (w *IncidentTicketWorkflow) fileTicket(
	ctx context.Context,
	log *logger.Logger,
	project port.Project,
	monitorName, message string,
) (*dto.CreatedTicketDTO, string, error) {
	title := TicketTitle(monitorName, message)

	if w.lock != nil {
		key := "ticket:" + title
		token, acquired, err := w.lock.TryLock(ctx, key, w.config.LockTTL)
		switch {
		case err != nil:
			log.Warn("Ticket lock unavailable, continuing without it", "error", err.Error())
		case !acquired:
			log.Info("Another delivery is filing this ticket", "title", title)
			return nil, dto.SkipReasonLocked, nil
		default:
			defer func() {
				if err := w.lock.Unlock(context.WithoutCancel(ctx), key, token); err != nil {
					log.Warn("Failed to release ticket lock", "error", err.Error())
				}
			}()
		}
	}

	existing, err := w.tracker.FindOpenTicket(ctx, project, title, w.config.AreaPath)
	if err != nil {
		return nil, "", fmt.Errorf("%w: duplicate search for %q: %w", failure.ErrTrackerUnavailable, title, err)
	}
	if existing != nil {
		log.Info("Open ticket already exists", "ticket_id", existing.ID, "state", existing.State)
		return nil, dto.SkipReasonDuplicate, nil
	}

	incident, description, err := w.serializer.IncidentDescription(monitorName, message, w.now())
	if err != nil {
		return nil, "", err
	}

	ticket, err := w.tracker.CreateTicket(ctx, project, port.CreateTicketRequest{
		AreaPath:    w.config.AreaPath,
		Title:       title,
		Description: description,
		Tags:        w.config.Tags,
	})
	if err != nil {
		return nil, "", fmt.Errorf("%w: create ticket %q: %w", failure.ErrTrackerUnavailable, title, err)
	}
	if ticket == nil {
		return nil, "", fmt.Errorf("%w: Failed to create a new work item.", failure.ErrFatal)
	}

	log.Info("Ticket created", "ticket_id", ticket.ID, "url", ticket.URL)

	created := &dto.CreatedTicketDTO{
		ID:          ticket.ID,
		Title:       title,
		URL:         ticket.URL,
		MonitorName: monitorName,
		ArchiveURL:  w.archiveIncident(ctx, log, incident),
	}

	if w.notifier != nil {
		if err := w.notifier.SendIncidentCard(ctx, title, message, ticket.URL); err != nil {
			log.Error("Failed to send incident card", err, "ticket_id", ticket.ID)
		}
	}

	event := dto.IncidentCreatedEventDTO{
		EventID:     uuid.NewString(),
		MonitorName: monitorName,
		TicketID:    ticket.ID,
		TicketURL:   ticket.URL,
		Title:       title,
		ArchiveURL:  created.ArchiveURL,
		CreatedAt:   w.now().UTC(),
	}
	for _, o := range w.observers {
		o.TicketCreated(ctx, event)
	}

	return created, "", nil
}

// archiveIncident returns the snapshot URL, or "" when archiving is off or failed.
func (w *IncidentTicketWorkflow) archiveIncident(ctx context.Context, log *logger.Logger, incident entity.Incident) string {
	if w.archive == nil {
		return ""
	}

	text, err := w.archiveFmt.ToText(incident)
	if err != nil {
		log.Error("Failed to encode incident snapshot", err)
		return ""
	}

	format := w.archiveFmt.Format().Name()
	key := w.archiveKey(incident, format)

	url, err := w.archive.PutObject(ctx, key, archiveContentType(format), []byte(text))
	if err != nil {
		log.Error("Failed to archive incident snapshot", err, "key", key)
		return ""
	}
	return url
}

func (w *IncidentTicketWorkflow) archiveKey(incident entity.Incident, ext string) string {
	prefix := strings.Trim(w.config.ArchivePrefix, "/")
	if prefix == "" {
		prefix = "incidents"
	}

	occurred := incident.OccurrenceDate.UTC()
	return fmt.Sprintf("%s/%s/%s/%s.%s",
		prefix,
		incident.MonitorName,
		occurred.Format("2006/01/02"),
		occurred.Format("20060102T150405Z"),
		ext,
	)
}

func (w *IncidentTicketWorkflow) skip(ctx context.Context, result *dto.TicketBatchResultDTO, skipped dto.SkippedEvaluationDTO) {
	result.Skipped = append(result.Skipped, skipped)
	for _, o := range w.observers {
		o.EvaluationSkipped(ctx, skipped)
	}
}

func archiveContentType(format string) string {
	if format == "yaml" {
		return "application/yaml"
	}
	return "application/json"
}
