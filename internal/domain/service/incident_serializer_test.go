package service

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dreschagin/install-monitor/internal/domain/entity"
	"github.com/dreschagin/install-monitor/internal/domain/failure"
	"github.com/dreschagin/install-monitor/internal/domain/valueobject"
)

func fullIncident() entity.Incident {
	return entity.Incident{
		MonitorName: "dry_run_LTS",
		HowDetected: valueobject.DetectedByCustomer,
		Symptoms: []entity.Symptom{
			{Details: entity.CommonContent{Description: "install fails with 404", Labels: []string{"download", "ps1"}}},
		},
		Impacts: []entity.Impact{
			{Script: valueobject.ImpactedBoth, Details: entity.CommonContent{Description: "LTS installs broken", Labels: []string{}}},
		},
		RootCauses: []entity.RootCause{
			{Category: valueobject.RootCauseUnavailableResource, Details: entity.CommonContent{Description: "CDN purge", Labels: []string{"cdn"}}},
		},
		RecoverySteps: []entity.RecoveryStep{
			{Step: "republish payload", RequiredCodeChange: false},
			{Step: "add fallback feed", RequiredCodeChange: true},
		},
		OccurrenceDate: time.Date(2026, 2, 8, 12, 0, 0, 0, time.UTC),
		RecoveryDate:   time.Date(2026, 2, 8, 15, 30, 0, 0, time.UTC),
	}
}

func TestIncidentSerializerRoundTrip(t *testing.T) {
	formats := []IncidentFormat{JSONFormat{}, YAMLFormat{}}

	for _, format := range formats {
		t.Run(format.Name(), func(t *testing.T) {
			serializer := NewIncidentSerializer(format)
			original := fullIncident()

			text, err := serializer.ToText(original)
			if err != nil {
				t.Fatalf("ToText failed: %v", err)
			}

			decoded, err := serializer.FromText(text)
			if err != nil {
				t.Fatalf("FromText failed: %v", err)
			}

			if !decoded.Equal(original.Normalize()) {
				t.Fatalf("round trip mismatch:\n got  %+v\n want %+v", decoded, original)
			}
		})
	}
}

func TestIncidentSerializerUsesStableTags(t *testing.T) {
	text, err := NewIncidentSerializer(nil).ToText(fullIncident())
	if err != nil {
		t.Fatalf("ToText failed: %v", err)
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &doc); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}

	for _, tag := range []string{"monitor-name", "symptoms", "how-detected", "impact", "root-cause", "recovery-steps", "occurrence-date", "recovery-date"} {
		if _, ok := doc[tag]; !ok {
			t.Errorf("missing tag %q in %s", tag, text)
		}
	}
	for _, nested := range []string{`"impacted-script"`, `"recovery-step"`, `"code-changes"`, `"labels"`} {
		if !strings.Contains(text, nested) {
			t.Errorf("missing nested tag %s", nested)
		}
	}
}

func TestIncidentSerializerWritesEmptyLists(t *testing.T) {
	text, err := NewIncidentSerializer(JSONFormat{}).ToText(entity.Incident{
		MonitorName: "download_sh",
		HowDetected: valueobject.DetectedOther,
	})
	if err != nil {
		t.Fatalf("ToText failed: %v", err)
	}
	if strings.Contains(text, "null") {
		t.Fatalf("lists must not be null: %s", text)
	}
}

func TestIncidentSerializerRejectsBlankText(t *testing.T) {
	for _, text := range []string{"", "   ", "\n\t"} {
		_, err := NewIncidentSerializer(nil).FromText(text)
		if !errors.Is(err, failure.ErrInvalidInput) {
			t.Fatalf("FromText(%q): expected invalid input, got %v", text, err)
		}
	}
}

func TestIncidentSerializerRejectsMalformedText(t *testing.T) {
	_, err := NewIncidentSerializer(nil).FromText("{not json")
	if !errors.Is(err, failure.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestIncidentDescription(t *testing.T) {
	now := time.Date(2026, 2, 8, 12, 0, 0, 0, time.UTC)

	incident, text, err := NewIncidentSerializer(nil).IncidentDescription("download_sh", "404 on primary URL", now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(text, `"how-detected": "monitoring"`) {
		t.Fatalf("unexpected description: %s", text)
	}
	if incident.Symptoms[0].Details.Description != "404 on primary URL" {
		t.Fatalf("unexpected symptom %+v", incident.Symptoms[0])
	}
}

func TestFormatByName(t *testing.T) {
	if f, err := FormatByName("YAML"); err != nil || f.Name() != "yaml" {
		t.Fatalf("FormatByName(YAML) = %v, %v", f, err)
	}
	if _, err := FormatByName("xml"); err == nil {
		t.Fatal("expected error for xml")
	}
}
