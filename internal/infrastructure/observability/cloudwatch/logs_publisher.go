package cloudwatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"

	"github.com/dreschagin/install-monitor/internal/infrastructure/awsutil"
	"github.com/dreschagin/install-monitor/pkg/logger"
)

const (
	// CloudWatch Logs limits
	maxLogEventsPerRequest = 10000
	maxLogEventSize        = 256000 // 256 KB

	// Entries beyond this are dropped until the next flush
	maxBufferedLogEntries = 10 * maxLogEventsPerRequest
)

// LogsPublisherConfig holds configuration for CloudWatch logs publishing.
type LogsPublisherConfig struct {
	AWS           awsutil.Options
	LogGroupName  string
	LogStreamName string
	BufferSize    int // Buffer size that triggers an early flush
	FlushInterval time.Duration
	AutoCreate    bool // Automatically create log group/stream if missing
}

// LogsPublisher ships application log entries to AWS CloudWatch Logs.
// It implements logger.Publisher; Publish never performs network I/O.
type LogsPublisher struct {
	client        *cloudwatchlogs.Client
	logGroupName  string
	logStreamName string

	buffer     []logger.Entry
	bufferSize int
	dropped    int
	mu         sync.Mutex

	flushMu       sync.Mutex
	sequenceToken *string

	flushTicker *time.Ticker
	flushNow    chan struct{}
	stopCh      chan struct{}
	wg          sync.WaitGroup
}

// NewLogsPublisher creates a new CloudWatch logs publisher.
func NewLogsPublisher(ctx context.Context, cfg LogsPublisherConfig) (*LogsPublisher, error) {
	if cfg.LogGroupName == "" {
		return nil, fmt.Errorf("log group name is required")
	}
	if cfg.LogStreamName == "" {
		return nil, fmt.Errorf("log stream name is required")
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 50
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}

	awsCfg, err := awsutil.LoadConfig(ctx, cfg.AWS)
	if err != nil {
		return nil, fmt.Errorf("failed to build AWS config: %w", err)
	}

	p := &LogsPublisher{
		client:        cloudwatchlogs.NewFromConfig(awsCfg),
		logGroupName:  cfg.LogGroupName,
		logStreamName: cfg.LogStreamName,
		buffer:        make([]logger.Entry, 0, cfg.BufferSize),
		bufferSize:    cfg.BufferSize,
		flushTicker:   time.NewTicker(cfg.FlushInterval),
		flushNow:      make(chan struct{}, 1),
		stopCh:        make(chan struct{}),
	}

	if cfg.AutoCreate {
		if err := EnsureLogGroupAndStream(ctx, p.client, p.logGroupName, p.logStreamName); err != nil {
			return nil, fmt.Errorf("failed to create log group/stream: %w", err)
		}
	}

	p.wg.Add(1)
	go p.flushLoop()

	return p, nil
}

// Publish buffers entry and wakes the flush loop when the buffer is full.
func (p *LogsPublisher) Publish(_ context.Context, entry logger.Entry) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.buffer) >= maxBufferedLogEntries {
		p.dropped++
		return nil
	}

	p.buffer = append(p.buffer, entry)

	if len(p.buffer) >= p.bufferSize {
		select {
		case p.flushNow <- struct{}{}:
		default:
		}
	}

	return nil
}

// Flush forces immediate publication of all buffered log entries.
func (p *LogsPublisher) Flush(ctx context.Context) error {
	p.flushMu.Lock()
	defer p.flushMu.Unlock()

	entries, dropped := p.drain()
	if dropped > 0 {
		entries = append(entries, logger.Entry{
			Timestamp: time.Now().UTC(),
			Level:     "WARN",
			Message:   "Log entries dropped, CloudWatch buffer was full",
			Fields:    map[string]interface{}{"dropped": dropped},
		})
	}
	if len(entries) == 0 {
		return nil
	}

	events := buildLogEvents(entries)

	// Publish in chunks (CloudWatch Logs limit: 10,000 events/request)
	for i := 0; i < len(events); i += maxLogEventsPerRequest {
		end := min(i+maxLogEventsPerRequest, len(events))
		if err := p.publishLogEventsWithRetry(ctx, events[i:end]); err != nil {
			return fmt.Errorf("failed to publish chunk: %w", err)
		}
	}

	return nil
}

// Close stops the background flush goroutine and flushes remaining logs.
func (p *LogsPublisher) Close(ctx context.Context) error {
	close(p.stopCh)
	p.flushTicker.Stop()
	p.wg.Wait()

	return p.Flush(ctx)
}

func (p *LogsPublisher) drain() ([]logger.Entry, int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	entries := p.buffer
	dropped := p.dropped
	p.buffer = make([]logger.Entry, 0, p.bufferSize)
	p.dropped = 0
	return entries, dropped
}

// flushLoop runs in a background goroutine and flushes the buffer periodically.
func (p *LogsPublisher) flushLoop() {
	defer p.wg.Done()

	for {
		select {
		case <-p.flushTicker.C:
		case <-p.flushNow:
		case <-p.stopCh:
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		// Failed batches are dropped; logging the failure would feed back into this publisher.
		_ = p.Flush(ctx)
		cancel()
	}
}

func (p *LogsPublisher) publishLogEventsWithRetry(ctx context.Context, events []types.InputLogEvent) error {
	var lastErr error
	backoff := initialBackoff

	for attempt := 0; attempt < maxRetries; attempt++ {
		output, err := p.client.PutLogEvents(ctx, &cloudwatchlogs.PutLogEventsInput{
			LogGroupName:  aws.String(p.logGroupName),
			LogStreamName: aws.String(p.logStreamName),
			LogEvents:     events,
			SequenceToken: p.sequenceToken,
		})
		if err == nil {
			p.sequenceToken = output.NextSequenceToken
			return nil
		}

		var invalidSeqErr *types.InvalidSequenceTokenException
		if errors.As(err, &invalidSeqErr) {
			p.sequenceToken = invalidSeqErr.ExpectedSequenceToken
			continue
		}

		lastErr = err
		if attempt < maxRetries-1 {
			select {
			case <-time.After(backoff):
				backoff *= 2
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	return fmt.Errorf("failed after %d retries: %w", maxRetries, lastErr)
}

// buildLogEvents converts entries to events in chronological order, as PutLogEvents requires.
func buildLogEvents(entries []logger.Entry) []types.InputLogEvent {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})

	events := make([]types.InputLogEvent, 0, len(entries))
	for _, entry := range entries {
		event, err := convertToLogEvent(entry)
		if err != nil {
			// Skip malformed entries but don't fail the entire batch
			continue
		}
		events = append(events, event)
	}
	return events
}

// convertToLogEvent converts a logger entry to a structured JSON log event.
func convertToLogEvent(entry logger.Entry) (types.InputLogEvent, error) {
	logData := map[string]interface{}{
		"timestamp": entry.Timestamp.Format(time.RFC3339Nano),
		"level":     entry.Level,
		"message":   entry.Message,
	}
	if len(entry.Fields) > 0 {
		logData["fields"] = entry.Fields
	}

	messageJSON, err := json.Marshal(logData)
	if err != nil {
		return types.InputLogEvent{}, fmt.Errorf("failed to marshal log entry: %w", err)
	}

	return types.InputLogEvent{
		Message:   aws.String(truncateEvent(string(messageJSON))),
		Timestamp: aws.Int64(entry.Timestamp.UnixMilli()),
	}, nil
}

func truncateEvent(message string) string {
	if len(message) > maxLogEventSize {
		return message[:maxLogEventSize-3] + "..."
	}
	return message
}

// EnsureLogGroupAndStream creates the log group and stream if they don't exist.
func EnsureLogGroupAndStream(ctx context.Context, client *cloudwatchlogs.Client, group, stream string) error {
	var alreadyExists *types.ResourceAlreadyExistsException

	_, err := client.CreateLogGroup(ctx, &cloudwatchlogs.CreateLogGroupInput{
		LogGroupName: aws.String(group),
	})
	if err != nil && !errors.As(err, &alreadyExists) {
		return fmt.Errorf("failed to create log group: %w", err)
	}

	_, err = client.CreateLogStream(ctx, &cloudwatchlogs.CreateLogStreamInput{
		LogGroupName:  aws.String(group),
		LogStreamName: aws.String(stream),
	})
	if err != nil && !errors.As(err, &alreadyExists) {
		return fmt.Errorf("failed to create log stream: %w", err)
	}

	return nil
}
