package schema

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dreschagin/install-monitor/internal/domain/entity"
	"github.com/dreschagin/install-monitor/internal/domain/failure"
)

func TestResolveURLCheckRecord(t *testing.T) {
	columns, err := Resolve(entity.URLCheckRecord{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []ColumnMapping{
		{Column: "monitor_name", Path: "$.monitor_name", Type: ColumnString},
		{Column: "timestamp", Path: "$.timestamp", Type: ColumnDateTime},
		{Column: "requested_url", Path: "$.requested_url", Type: ColumnString},
		{Column: "http_response_code", Path: "$.http_response_code", Type: ColumnInt, Nullable: true},
		{Column: "error", Path: "$.error", Type: ColumnString, Nullable: true},
	}

	if len(columns) != len(want) {
		t.Fatalf("expected %d columns, got %d: %+v", len(want), len(columns), columns)
	}
	for i := range want {
		if columns[i] != want[i] {
			t.Errorf("column %d = %+v, want %+v", i, columns[i], want[i])
		}
	}
}

func TestResolveSkipsIgnoredAndUnexported(t *testing.T) {
	type row struct {
		Name     string `json:"name"`
		Internal string `json:"-"`
		hidden   string
		Plain    float64
	}

	columns, err := Resolve(&row{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(columns) != 2 || columns[0].Column != "name" || columns[1].Column != "Plain" || columns[1].Type != ColumnReal {
		t.Fatalf("unexpected columns %+v", columns)
	}
}

func TestResolveRejectsNonObjectTypes(t *testing.T) {
	tests := []struct {
		name   string
		record any
		want   string
	}{
		{name: "string", record: "row", want: "string"},
		{name: "slice", record: []int{1}, want: "[]int"},
		{name: "time", record: time.Now(), want: "time.Time"},
		{name: "nil", record: nil, want: "nil record"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Resolve(tc.record)
			if !errors.Is(err, failure.ErrSchema) {
				t.Fatalf("expected schema error, got %v", err)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %q", tc.want, err.Error())
			}
		})
	}
}

func TestTableProject(t *testing.T) {
	table, err := NewTable(TableURLAccessLogs, entity.URLCheckRecord{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	record, _ := entity.NewURLCheckResponse("download_ps1", "https://dot.net/v1/dotnet-install.ps1", 404, at)

	values, err := table.Project(record)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if values["monitor_name"] != "download_ps1" {
		t.Errorf("monitor_name = %v", values["monitor_name"])
	}
	if values["http_response_code"] != json.Number("404") {
		t.Errorf("http_response_code = %#v", values["http_response_code"])
	}
	if values["error"] != nil {
		t.Errorf("error = %#v, want nil", values["error"])
	}
	if values["timestamp"] != "2026-03-01T10:00:00Z" {
		t.Errorf("timestamp = %v", values["timestamp"])
	}
}

func TestTableRejectsForeignRecord(t *testing.T) {
	table, _ := NewTable(TableURLAccessLogs, entity.URLCheckRecord{})

	_, err := table.Project(entity.ScriptExecutionRecord{MonitorName: "m"})
	if !errors.Is(err, failure.ErrSchema) {
		t.Fatalf("expected schema error, got %v", err)
	}
}

func TestRegistry(t *testing.T) {
	registry, err := TelemetryTables()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	table, err := registry.TableFor(&entity.ScriptExecutionRecord{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if table.Name != TableScriptExecLogs {
		t.Fatalf("table = %s, want %s", table.Name, TableScriptExecLogs)
	}
	if got := strings.Join(table.ColumnNames(), ","); got != "monitor_name,timestamp,script_name,cmd_args,error" {
		t.Fatalf("columns = %s", got)
	}

	if _, err := registry.Register("Other", entity.URLCheckRecord{}); !errors.Is(err, failure.ErrSchema) {
		t.Fatalf("expected duplicate registration error, got %v", err)
	}
	if _, err := registry.TableFor(struct{ A string }{}); !errors.Is(err, failure.ErrSchema) {
		t.Fatalf("expected unregistered type error, got %v", err)
	}
	if len(registry.Tables()) != 2 {
		t.Fatalf("expected 2 tables, got %d", len(registry.Tables()))
	}
}
