package cloudwatch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"

	"github.com/dreschagin/install-monitor/internal/domain/schema"
	"github.com/dreschagin/install-monitor/internal/infrastructure/awsutil"
	observability "github.com/dreschagin/install-monitor/internal/infrastructure/observability/cloudwatch"
)

type Config struct {
	AWS          awsutil.Options
	LogGroupName string
	// StreamPrefix is prepended to the table name to form the log stream name.
	StreamPrefix string
	AutoCreate   bool
}

// Sink implements port.TelemetrySink on CloudWatch Logs: one log stream per table,
// one event per row holding the projected columns as JSON. Logs Insights queries read
// the columns as fields.
type Sink struct {
	client       *cloudwatchlogs.Client
	logGroupName string
	streamPrefix string
	autoCreate   bool

	mu      sync.Mutex
	streams map[string]bool
}

func NewSink(ctx context.Context, cfg Config) (*Sink, error) {
	if strings.TrimSpace(cfg.LogGroupName) == "" {
		return nil, fmt.Errorf("log group name is required")
	}

	awsCfg, err := awsutil.LoadConfig(ctx, cfg.AWS)
	if err != nil {
		return nil, fmt.Errorf("failed to build AWS config: %w", err)
	}

	return &Sink{
		client:       cloudwatchlogs.NewFromConfig(awsCfg),
		logGroupName: cfg.LogGroupName,
		streamPrefix: cfg.StreamPrefix,
		autoCreate:   cfg.AutoCreate,
		streams:      make(map[string]bool),
	}, nil
}

func (s *Sink) InsertRow(ctx context.Context, table schema.Table, record any) error {
	values, err := table.Project(record)
	if err != nil {
		return err
	}

	event, err := rowEvent(values, time.Now())
	if err != nil {
		return fmt.Errorf("failed to encode %s row: %w", table.Name, err)
	}

	stream := s.streamName(table.Name)
	if err := s.ensureStream(ctx, stream); err != nil {
		return err
	}

	_, err = s.client.PutLogEvents(ctx, &cloudwatchlogs.PutLogEventsInput{
		LogGroupName:  aws.String(s.logGroupName),
		LogStreamName: aws.String(stream),
		LogEvents:     []types.InputLogEvent{event},
	})
	if err != nil {
		return fmt.Errorf("failed to put %s row: %w", table.Name, err)
	}
	return nil
}

func (s *Sink) Close(context.Context) error {
	return nil
}

func (s *Sink) streamName(table string) string {
	return s.streamPrefix + table
}

func (s *Sink) ensureStream(ctx context.Context, stream string) error {
	if !s.autoCreate {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.streams[stream] {
		return nil
	}
	if err := observability.EnsureLogGroupAndStream(ctx, s.client, s.logGroupName, stream); err != nil {
		return err
	}
	s.streams[stream] = true
	return nil
}

// rowEvent stamps the event with the row's own timestamp column when it has one.
func rowEvent(values map[string]any, fallback time.Time) (types.InputLogEvent, error) {
	raw, err := json.Marshal(values)
	if err != nil {
		return types.InputLogEvent{}, err
	}

	at := fallback
	if ts, ok := values["timestamp"].(string); ok {
		if parsed, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			at = parsed
		}
	}

	return types.InputLogEvent{
		Message:   aws.String(string(raw)),
		Timestamp: aws.Int64(at.UnixMilli()),
	}, nil
}
