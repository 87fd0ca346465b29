package dto

import (
	"time"
)

// ProbeOutcomeDTO describes a finished probe for observers (metrics, live feed, events).
type ProbeOutcomeDTO struct {
	EventID     string        `json:"event_id"`
	MonitorName string        `json:"monitor_name"`
	Kind        string        `json:"kind"`
	Target      string        `json:"target"`
	StatusCode  *int          `json:"status_code,omitempty"`
	Error       string        `json:"error,omitempty"`
	Succeeded   bool          `json:"succeeded"`
	Duration    time.Duration `json:"duration_ns"`
	FinishedAt  time.Time     `json:"finished_at"`
}

// Outcome returns the metric label for the probe result.
func (p ProbeOutcomeDTO) Outcome() string {
	switch {
	case p.Succeeded:
		return "success"
	case p.StatusCode != nil:
		return "http_error"
	default:
		return "error"
	}
}
