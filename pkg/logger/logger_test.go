package logger

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
)

type recordingPublisher struct {
	mu      sync.Mutex
	entries []Entry
}

func (p *recordingPublisher) Publish(_ context.Context, entry Entry) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries = append(p.entries, entry)
	return nil
}

func TestLoggerFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "warn")

	log.Info("hidden")
	log.Warn("shown", "monitor_name", "download_sh")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info line should be filtered, got %q", out)
	}
	if !strings.Contains(out, "[WARN] shown | monitor_name=download_sh") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestWithCarriesFieldsAndPublisher(t *testing.T) {
	var buf bytes.Buffer
	pub := &recordingPublisher{}

	root := NewWithWriter(&buf, "debug")
	root.SetLogPublisher(pub)

	child := root.With("monitor_name", "dry_run_LTS")
	child.Error("probe failed", errTest("boom"), "attempt", 2)

	if !strings.Contains(buf.String(), "monitor_name=dry_run_LTS attempt=2 error=boom") {
		t.Fatalf("child fields missing: %q", buf.String())
	}
	if len(pub.entries) != 1 {
		t.Fatalf("expected 1 published entry, got %d", len(pub.entries))
	}

	entry := pub.entries[0]
	if entry.Level != "ERROR" || entry.Message != "probe failed" {
		t.Fatalf("unexpected entry %+v", entry)
	}
	if entry.Fields["monitor_name"] != "dry_run_LTS" || entry.Fields["error"] != "boom" {
		t.Fatalf("unexpected fields %+v", entry.Fields)
	}
}

func TestParseLevelDefaultsToInfo(t *testing.T) {
	if got := parseLevel(""); got != INFO {
		t.Fatalf("parseLevel(\"\") = %v, want INFO", got)
	}
}

type errTest string

func (e errTest) Error() string { return string(e) }
