package cloudwatch

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/dreschagin/install-monitor/internal/domain/entity"
	"github.com/dreschagin/install-monitor/internal/domain/schema"
)

func TestRowEvent(t *testing.T) {
	at := time.Date(2026, 2, 7, 12, 30, 0, 0, time.UTC)
	table, err := schema.NewTable(schema.TableScriptExecLogs, entity.ScriptExecutionRecord{})
	if err != nil {
		t.Fatalf("NewTable() error = %v", err)
	}
	record, _ := entity.NewScriptExecutionRecord("dry_run_LTS", "dotnet-install.sh", "-DryRun -c LTS", "boom", at)

	values, err := table.Project(record)
	if err != nil {
		t.Fatalf("Project() error = %v", err)
	}

	event, err := rowEvent(values, time.Now())
	if err != nil {
		t.Fatalf("rowEvent() error = %v", err)
	}
	if *event.Timestamp != at.UnixMilli() {
		t.Fatalf("expected row timestamp, got %d", *event.Timestamp)
	}

	var decoded map[string]any
	if err := json.Unmarshal([]byte(*event.Message), &decoded); err != nil {
		t.Fatalf("message is not JSON: %v", err)
	}
	if decoded["cmd_args"] != "-DryRun -c LTS" || decoded["error"] != "boom" {
		t.Fatalf("unexpected message %v", decoded)
	}
}

func TestRowEventFallbackTimestamp(t *testing.T) {
	fallback := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	event, err := rowEvent(map[string]any{"monitor_name": "m"}, fallback)
	if err != nil {
		t.Fatalf("rowEvent() error = %v", err)
	}
	if *event.Timestamp != fallback.UnixMilli() {
		t.Fatalf("expected fallback timestamp, got %d", *event.Timestamp)
	}
}

func TestStreamName(t *testing.T) {
	s := &Sink{streamPrefix: "install-monitor/"}
	if got := s.streamName(schema.TableURLAccessLogs); got != "install-monitor/UrlAccessLogs" {
		t.Fatalf("unexpected stream %q", got)
	}
}
