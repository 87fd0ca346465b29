package service

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/dreschagin/install-monitor/internal/domain/entity"
	"github.com/dreschagin/install-monitor/internal/domain/failure"
)

// IncidentFormat is the text encoding used for incident documents.
type IncidentFormat interface {
	Name() string
	Marshal(incident entity.Incident) ([]byte, error)
	Unmarshal(data []byte, incident *entity.Incident) error
}

// JSONFormat writes indented JSON. It is the format ticket descriptions use.
type JSONFormat struct{}

func (JSONFormat) Name() string { return "json" }

func (JSONFormat) Marshal(incident entity.Incident) ([]byte, error) {
	return json.MarshalIndent(incident, "", "  ")
}

func (JSONFormat) Unmarshal(data []byte, incident *entity.Incident) error {
	return json.Unmarshal(data, incident)
}

// YAMLFormat is used for archived snapshots meant to be read by people.
type YAMLFormat struct{}

func (YAMLFormat) Name() string { return "yaml" }

func (YAMLFormat) Marshal(incident entity.Incident) ([]byte, error) {
	return yaml.Marshal(incident)
}

func (YAMLFormat) Unmarshal(data []byte, incident *entity.Incident) error {
	return yaml.Unmarshal(data, incident)
}

// FormatByName returns the format registered under name.
func FormatByName(name string) (IncidentFormat, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "json":
		return JSONFormat{}, nil
	case "yaml", "yml":
		return YAMLFormat{}, nil
	default:
		return nil, fmt.Errorf("unsupported incident format: %s", name)
	}
}

// IncidentSerializer converts incidents to and from text (Domain Service)
type IncidentSerializer struct {
	format IncidentFormat
}

// NewIncidentSerializer falls back to JSON when format is nil.
func NewIncidentSerializer(format IncidentFormat) *IncidentSerializer {
	if format == nil {
		format = JSONFormat{}
	}
	return &IncidentSerializer{format: format}
}

func (s *IncidentSerializer) Format() IncidentFormat {
	return s.format
}

// ToText validates the incident and encodes it. Nil lists are written as empty lists.
func (s *IncidentSerializer) ToText(incident entity.Incident) (string, error) {
	if err := incident.Validate(); err != nil {
		return "", err
	}

	data, err := s.format.Marshal(incident.Normalize())
	if err != nil {
		return "", fmt.Errorf("failed to encode incident as %s: %w", s.format.Name(), err)
	}
	return string(data), nil
}

// FromText decodes an incident. Blank text is rejected.
func (s *IncidentSerializer) FromText(text string) (entity.Incident, error) {
	if strings.TrimSpace(text) == "" {
		return entity.Incident{}, fmt.Errorf("%w: incident text is empty", failure.ErrInvalidInput)
	}

	var incident entity.Incident
	if err := s.format.Unmarshal([]byte(text), &incident); err != nil {
		return entity.Incident{}, fmt.Errorf("%w: failed to decode %s incident: %w", failure.ErrInvalidInput, s.format.Name(), err)
	}
	if err := incident.Validate(); err != nil {
		return entity.Incident{}, err
	}

	return incident.Normalize(), nil
}

// IncidentDescription builds and encodes the incident filed for an alerting monitor.
func (s *IncidentSerializer) IncidentDescription(monitorName, alertMessage string, now time.Time) (entity.Incident, string, error) {
	incident, err := entity.NewMonitoringIncident(monitorName, alertMessage, now)
	if err != nil {
		return entity.Incident{}, "", err
	}

	text, err := s.ToText(incident)
	if err != nil {
		return entity.Incident{}, "", err
	}
	return incident, text, nil
}
