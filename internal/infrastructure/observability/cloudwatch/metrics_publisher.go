package cloudwatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"github.com/dreschagin/install-monitor/internal/application/dto"
	"github.com/dreschagin/install-monitor/internal/infrastructure/awsutil"
	"github.com/dreschagin/install-monitor/pkg/logger"
)

const (
	// CloudWatch limits
	maxMetricsPerRequest = 1000
	maxRetries           = 3
	initialBackoff       = 100 * time.Millisecond

	maxBufferedMetrics = 10 * maxMetricsPerRequest
)

const (
	MetricProbeSuccess   = "ProbeSuccess"
	MetricProbeFailure   = "ProbeFailure"
	MetricProbeLatency   = "ProbeLatency"
	MetricTicketsCreated = "TicketsCreated"
	MetricTicketsSkipped = "TicketsSkipped"
)

// MetricsPublisherConfig holds configuration for CloudWatch metrics publishing.
type MetricsPublisherConfig struct {
	AWS               awsutil.Options
	Namespace         string            // CloudWatch namespace (e.g., "InstallMonitor/Probes")
	DefaultDimensions map[string]string // Default dimensions added to all metrics
	BufferSize        int               // Buffer size that triggers an early flush
	FlushInterval     time.Duration     // Automatic flush interval
	StorageResolution int32             // Storage resolution in seconds (1 or 60)
}

// MetricsPublisher turns probe and ticket events into CloudWatch metrics.
// It implements port.ProbeObserver and port.TicketObserver.
type MetricsPublisher struct {
	client            *cloudwatch.Client
	namespace         string
	defaultDimensions map[string]string
	storageResolution int32

	buffer     []types.MetricDatum
	bufferSize int
	mu         sync.Mutex
	flushMu    sync.Mutex

	logger      *logger.Logger
	flushTicker *time.Ticker
	flushNow    chan struct{}
	stopCh      chan struct{}
	wg          sync.WaitGroup
}

// NewMetricsPublisher creates a new CloudWatch metrics publisher.
func NewMetricsPublisher(ctx context.Context, cfg MetricsPublisherConfig, log *logger.Logger) (*MetricsPublisher, error) {
	if cfg.Namespace == "" {
		return nil, fmt.Errorf("namespace is required")
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 10 * time.Second
	}

	awsCfg, err := awsutil.LoadConfig(ctx, cfg.AWS)
	if err != nil {
		return nil, fmt.Errorf("failed to build AWS config: %w", err)
	}

	p := newMetricsPublisher(cfg, log)
	p.client = cloudwatch.NewFromConfig(awsCfg)
	p.flushTicker = time.NewTicker(cfg.FlushInterval)

	p.wg.Add(1)
	go p.flushLoop()

	return p, nil
}

func newMetricsPublisher(cfg MetricsPublisherConfig, log *logger.Logger) *MetricsPublisher {
	if cfg.StorageResolution != 1 && cfg.StorageResolution != 60 {
		cfg.StorageResolution = 60 // Default to standard resolution
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 100
	}

	return &MetricsPublisher{
		namespace:         cfg.Namespace,
		defaultDimensions: cfg.DefaultDimensions,
		storageResolution: cfg.StorageResolution,
		buffer:            make([]types.MetricDatum, 0, cfg.BufferSize),
		bufferSize:        cfg.BufferSize,
		logger:            log,
		flushNow:          make(chan struct{}, 1),
		stopCh:            make(chan struct{}),
	}
}

// ObserveProbe records success/failure counts and latency per monitor.
func (p *MetricsPublisher) ObserveProbe(_ context.Context, outcome dto.ProbeOutcomeDTO) {
	p.add(probeData(outcome, p.datum)...)
}

func (p *MetricsPublisher) TicketCreated(_ context.Context, event dto.IncidentCreatedEventDTO) {
	p.add(p.datum(MetricTicketsCreated, 1, types.StandardUnitCount, event.CreatedAt, map[string]string{
		"Monitor": event.MonitorName,
	}))
}

func (p *MetricsPublisher) EvaluationSkipped(_ context.Context, skipped dto.SkippedEvaluationDTO) {
	p.add(p.datum(MetricTicketsSkipped, 1, types.StandardUnitCount, time.Now().UTC(), map[string]string{
		"Reason": skipped.Reason,
	}))
}

// Flush forces immediate publication of all buffered metrics.
func (p *MetricsPublisher) Flush(ctx context.Context) error {
	p.flushMu.Lock()
	defer p.flushMu.Unlock()

	p.mu.Lock()
	data := p.buffer
	p.buffer = make([]types.MetricDatum, 0, p.bufferSize)
	p.mu.Unlock()

	// Publish in chunks (CloudWatch limit: 1000 metrics/request)
	for i := 0; i < len(data); i += maxMetricsPerRequest {
		end := min(i+maxMetricsPerRequest, len(data))
		if err := p.publishBatchWithRetry(ctx, data[i:end]); err != nil {
			return fmt.Errorf("failed to publish chunk: %w", err)
		}
	}

	return nil
}

// Close stops the background flush goroutine and flushes remaining metrics.
func (p *MetricsPublisher) Close(ctx context.Context) error {
	close(p.stopCh)
	if p.flushTicker != nil {
		p.flushTicker.Stop()
	}
	p.wg.Wait()

	return p.Flush(ctx)
}

func (p *MetricsPublisher) add(data ...types.MetricDatum) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.buffer)+len(data) > maxBufferedMetrics {
		p.logger.Warn("CloudWatch metrics buffer full, dropping data", "count", len(data))
		return
	}
	p.buffer = append(p.buffer, data...)

	if len(p.buffer) >= p.bufferSize {
		select {
		case p.flushNow <- struct{}{}:
		default:
		}
	}
}

func (p *MetricsPublisher) flushLoop() {
	defer p.wg.Done()

	for {
		select {
		case <-p.flushTicker.C:
		case <-p.flushNow:
		case <-p.stopCh:
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := p.Flush(ctx); err != nil {
			p.logger.Error("Failed to flush CloudWatch metrics", err)
		}
		cancel()
	}
}

// publishBatchWithRetry publishes a batch of metrics with exponential backoff retry.
func (p *MetricsPublisher) publishBatchWithRetry(ctx context.Context, data []types.MetricDatum) error {
	var lastErr error
	backoff := initialBackoff

	for attempt := 0; attempt < maxRetries; attempt++ {
		_, err := p.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
			Namespace:  aws.String(p.namespace),
			MetricData: data,
		})
		if err == nil {
			return nil
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

type datumFunc func(name string, value float64, unit types.StandardUnit, at time.Time, dims map[string]string) types.MetricDatum

func probeData(outcome dto.ProbeOutcomeDTO, datum datumFunc) []types.MetricDatum {
	dims := map[string]string{
		"Monitor": outcome.MonitorName,
		"Kind":    outcome.Kind,
	}

	success, failure := 0.0, 1.0
	if outcome.Succeeded {
		success, failure = 1, 0
	}

	return []types.MetricDatum{
		datum(MetricProbeSuccess, success, types.StandardUnitCount, outcome.FinishedAt, dims),
		datum(MetricProbeFailure, failure, types.StandardUnitCount, outcome.FinishedAt, dims),
		datum(MetricProbeLatency, float64(outcome.Duration.Milliseconds()), types.StandardUnitMilliseconds, outcome.FinishedAt, dims),
	}
}

// datum builds one MetricDatum with the default dimensions followed by dims.
func (p *MetricsPublisher) datum(name string, value float64, unit types.StandardUnit, at time.Time, dims map[string]string) types.MetricDatum {
	dimensions := make([]types.Dimension, 0, len(p.defaultDimensions)+len(dims))
	for key, val := range p.defaultDimensions {
		dimensions = append(dimensions, types.Dimension{Name: aws.String(key), Value: aws.String(val)})
	}
	for key, val := range dims {
		if val == "" {
			continue
		}
		dimensions = append(dimensions, types.Dimension{Name: aws.String(key), Value: aws.String(val)})
	}

	if at.IsZero() {
		at = time.Now().UTC()
	}

	d := types.MetricDatum{
		MetricName: aws.String(name),
		Value:      aws.Float64(value),
		Unit:       unit,
		Timestamp:  aws.Time(at),
		Dimensions: dimensions,
	}
	if p.storageResolution > 0 {
		d.StorageResolution = aws.Int32(p.storageResolution)
	}
	return d
}
