package nats

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/dreschagin/install-monitor/pkg/logger"
)

func TestPublishEventRejectsCancelledContext(t *testing.T) {
	p := &Publisher{logger: logger.New("error")}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := p.PublishEvent(ctx, "install_monitor.probe.failed", map[string]string{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestPublishEventMarshalError(t *testing.T) {
	p := &Publisher{logger: logger.New("error")}

	err := p.PublishEvent(context.Background(), "install_monitor.probe.failed", make(chan int))
	if err == nil || !strings.Contains(err.Error(), "failed to marshal event") {
		t.Fatalf("expected marshal error, got %v", err)
	}
}

func TestDisconnectedPublisher(t *testing.T) {
	p := &Publisher{logger: logger.New("error")}

	if err := p.Ping(context.Background()); err == nil {
		t.Fatal("expected ping error without connection")
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
}
