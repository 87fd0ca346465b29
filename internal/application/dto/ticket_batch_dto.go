package dto

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// CreatedTicketDTO describes one ticket opened for an alerting monitor.
type CreatedTicketDTO struct {
	ID          int    `json:"id"`
	Title       string `json:"title"`
	URL         string `json:"url,omitempty"`
	MonitorName string `json:"monitor_name"`
	ArchiveURL  string `json:"archive_url,omitempty"`
}

// SkippedEvaluationDTO describes an evaluation that produced no ticket.
type SkippedEvaluationDTO struct {
	Index       int    `json:"index"`
	MonitorName string `json:"monitor_name,omitempty"`
	Reason      string `json:"reason"`
}

const (
	SkipReasonInvalid   = "invalid"
	SkipReasonDuplicate = "duplicate"
	SkipReasonLocked    = "locked"
	SkipReasonTracker   = "tracker_error"
)

// TicketBatchResultDTO is the outcome of processing one alert notification.
type TicketBatchResultDTO struct {
	Created []CreatedTicketDTO     `json:"created"`
	Skipped []SkippedEvaluationDTO `json:"skipped"`
}

func (r *TicketBatchResultDTO) Count() int {
	return len(r.Created)
}

// IDs returns the created ticket IDs in creation order.
func (r *TicketBatchResultDTO) IDs() []int {
	ids := make([]int, len(r.Created))
	for i, t := range r.Created {
		ids[i] = t.ID
	}
	return ids
}

// Summary is the plain text answer returned to the alerting system.
func (r *TicketBatchResultDTO) Summary() string {
	ids := make([]string, len(r.Created))
	for i, t := range r.Created {
		ids[i] = strconv.Itoa(t.ID)
	}
	return fmt.Sprintf("%d work items were created with IDs %s", r.Count(), strings.Join(ids, ", "))
}

// IncidentCreatedEventDTO is published after a ticket is created.
type IncidentCreatedEventDTO struct {
	EventID     string    `json:"event_id"`
	MonitorName string    `json:"monitor_name"`
	TicketID    int       `json:"ticket_id"`
	TicketURL   string    `json:"ticket_url,omitempty"`
	Title       string    `json:"title"`
	ArchiveURL  string    `json:"archive_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
