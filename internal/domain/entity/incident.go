package entity

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dreschagin/install-monitor/internal/domain/failure"
	"github.com/dreschagin/install-monitor/internal/domain/valueobject"
)

// MonitoringFailureLabel is attached to symptoms of incidents opened by alerts.
const MonitoringFailureLabel = "monitoring failure"

// CommonContent is the free-text part shared by symptoms, impacts and root causes.
type CommonContent struct {
	Description string   `json:"description" yaml:"description"`
	Labels      []string `json:"labels" yaml:"labels"`
}

type Symptom struct {
	Details CommonContent `json:"details" yaml:"details"`
}

type Impact struct {
	Script  valueobject.ImpactedScript `json:"impacted-script" yaml:"impacted-script"`
	Details CommonContent              `json:"details" yaml:"details"`
}

type RootCause struct {
	Category valueobject.RootCauseCategory `json:"category" yaml:"category"`
	Details  CommonContent                 `json:"details" yaml:"details"`
}

type RecoveryStep struct {
	Step               string `json:"recovery-step" yaml:"recovery-step"`
	RequiredCodeChange bool   `json:"code-changes" yaml:"code-changes"`
}

// Incident is the postmortem document embedded into every ticket.
// The tags are read by BI tooling and must stay stable.
type Incident struct {
	MonitorName    string                      `json:"monitor-name" yaml:"monitor-name"`
	Symptoms       []Symptom                   `json:"symptoms" yaml:"symptoms"`
	HowDetected    valueobject.DetectionMethod `json:"how-detected" yaml:"how-detected"`
	Impacts        []Impact                    `json:"impact" yaml:"impact"`
	RootCauses     []RootCause                 `json:"root-cause" yaml:"root-cause"`
	RecoverySteps  []RecoveryStep              `json:"recovery-steps" yaml:"recovery-steps"`
	OccurrenceDate time.Time                   `json:"occurrence-date" yaml:"occurrence-date"`
	RecoveryDate   time.Time                   `json:"recovery-date" yaml:"recovery-date"`
}

// NewMonitoringIncident builds the incident filed for an alerting monitor:
// detected by monitoring, occurring now, with the alert message as its only symptom.
func NewMonitoringIncident(monitorName, alertMessage string, now time.Time) (Incident, error) {
	incident := Incident{
		MonitorName: monitorName,
		HowDetected: valueobject.DetectedByMonitoring,
		Symptoms: []Symptom{
			{Details: CommonContent{
				Description: alertMessage,
				Labels:      []string{MonitoringFailureLabel},
			}},
		},
		OccurrenceDate: now.UTC(),
	}

	if err := incident.Validate(); err != nil {
		return Incident{}, err
	}

	return incident.Normalize(), nil
}

// Validate checks the fields that must always be set.
func (i Incident) Validate() error {
	var errs []error

	if strings.TrimSpace(i.MonitorName) == "" {
		errs = append(errs, errors.New("monitor name is required"))
	}
	if err := i.HowDetected.Validate(); err != nil {
		errs = append(errs, err)
	}
	for idx, impact := range i.Impacts {
		if err := impact.Script.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("impact #%d: %w", idx, err))
		}
	}
	for idx, cause := range i.RootCauses {
		if err := cause.Category.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("root cause #%d: %w", idx, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: invalid incident: %w", failure.ErrInvalidInput, errors.Join(errs...))
	}
	return nil
}

// Normalize returns a copy where every list is non-nil.
func (i Incident) Normalize() Incident {
	out := i
	out.Symptoms = make([]Symptom, len(i.Symptoms))
	for idx, s := range i.Symptoms {
		s.Details = s.Details.normalize()
		out.Symptoms[idx] = s
	}
	out.Impacts = make([]Impact, len(i.Impacts))
	for idx, imp := range i.Impacts {
		imp.Details = imp.Details.normalize()
		out.Impacts[idx] = imp
	}
	out.RootCauses = make([]RootCause, len(i.RootCauses))
	for idx, rc := range i.RootCauses {
		rc.Details = rc.Details.normalize()
		out.RootCauses[idx] = rc
	}
	out.RecoverySteps = append(make([]RecoveryStep, 0, len(i.RecoverySteps)), i.RecoverySteps...)
	return out
}

// Equal compares field by field; timestamps are compared as instants.
func (i Incident) Equal(other Incident) bool {
	if i.MonitorName != other.MonitorName ||
		i.HowDetected != other.HowDetected ||
		!i.OccurrenceDate.Equal(other.OccurrenceDate) ||
		!i.RecoveryDate.Equal(other.RecoveryDate) {
		return false
	}

	if len(i.Symptoms) != len(other.Symptoms) ||
		len(i.Impacts) != len(other.Impacts) ||
		len(i.RootCauses) != len(other.RootCauses) ||
		len(i.RecoverySteps) != len(other.RecoverySteps) {
		return false
	}

	for idx := range i.Symptoms {
		if !i.Symptoms[idx].Details.equal(other.Symptoms[idx].Details) {
			return false
		}
	}
	for idx := range i.Impacts {
		a, b := i.Impacts[idx], other.Impacts[idx]
		if a.Script != b.Script || !a.Details.equal(b.Details) {
			return false
		}
	}
	for idx := range i.RootCauses {
		a, b := i.RootCauses[idx], other.RootCauses[idx]
		if a.Category != b.Category || !a.Details.equal(b.Details) {
			return false
		}
	}
	for idx := range i.RecoverySteps {
		if i.RecoverySteps[idx] != other.RecoverySteps[idx] {
			return false
		}
	}

	return true
}

func (i Incident) String() string {
	return fmt.Sprintf("%s: %d symptoms", i.MonitorName, len(i.Symptoms))
}

func (c CommonContent) normalize() CommonContent {
	c.Labels = append(make([]string, 0, len(c.Labels)), c.Labels...)
	return c
}

func (c CommonContent) equal(other CommonContent) bool {
	if c.Description != other.Description || len(c.Labels) != len(other.Labels) {
		return false
	}
	for idx := range c.Labels {
		if c.Labels[idx] != other.Labels[idx] {
			return false
		}
	}
	return true
}
