package dynamodb

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/dreschagin/install-monitor/internal/domain/schema"
	"github.com/dreschagin/install-monitor/internal/infrastructure/awsutil"
)

const (
	attrPK        = "PK"
	attrSK        = "SK"
	attrTable     = "table_name"
	attrExpiresAt = "expires_at"

	monitorColumn   = "monitor_name"
	timestampColumn = "timestamp"
)

type Config struct {
	AWS       awsutil.Options
	TableName string
	TTL       time.Duration // zero keeps rows forever
}

// Sink implements port.TelemetrySink on a single DynamoDB table.
// Rows are keyed PK=<table>#<monitor>, SK=<timestamp>#<uuid>, so one Query returns a
// monitor's history in time order.
type Sink struct {
	client    *dynamodb.Client
	tableName string
	ttl       time.Duration
	now       func() time.Time
}

func NewSink(ctx context.Context, cfg Config) (*Sink, error) {
	if strings.TrimSpace(cfg.TableName) == "" {
		return nil, fmt.Errorf("dynamodb table name is required")
	}

	awsCfg, err := awsutil.LoadConfig(ctx, cfg.AWS)
	if err != nil {
		return nil, fmt.Errorf("failed to create aws config for dynamodb: %w", err)
	}

	return &Sink{
		client:    dynamodb.NewFromConfig(awsCfg),
		tableName: strings.TrimSpace(cfg.TableName),
		ttl:       cfg.TTL,
		now:       time.Now,
	}, nil
}

func (s *Sink) InsertRow(ctx context.Context, table schema.Table, record any) error {
	values, err := table.Project(record)
	if err != nil {
		return err
	}

	item, err := s.toItem(table.Name, values)
	if err != nil {
		return err
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &s.tableName,
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("dynamodb put item into %s failed: %w", table.Name, err)
	}
	return nil
}

func (s *Sink) Close(context.Context) error {
	return nil
}

func (s *Sink) toItem(tableName string, values map[string]any) (map[string]types.AttributeValue, error) {
	monitor, _ := values[monitorColumn].(string)
	if monitor == "" {
		monitor = "unknown"
	}

	ts, _ := values[timestampColumn].(string)
	if ts == "" {
		ts = s.now().UTC().Format(time.RFC3339Nano)
	}

	item := map[string]types.AttributeValue{
		attrPK:    &types.AttributeValueMemberS{Value: buildPK(tableName, monitor)},
		attrSK:    &types.AttributeValueMemberS{Value: buildSK(ts, uuid.NewString())},
		attrTable: &types.AttributeValueMemberS{Value: tableName},
	}

	for column, value := range values {
		attr, err := toAttribute(value)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", column, err)
		}
		item[column] = attr
	}

	if s.ttl > 0 {
		expiresAt := s.now().Add(s.ttl).Unix()
		item[attrExpiresAt] = &types.AttributeValueMemberN{Value: strconv.FormatInt(expiresAt, 10)}
	}

	return item, nil
}

func toAttribute(value any) (types.AttributeValue, error) {
	switch v := value.(type) {
	case nil:
		return &types.AttributeValueMemberNULL{Value: true}, nil
	case string:
		return &types.AttributeValueMemberS{Value: v}, nil
	case json.Number:
		return &types.AttributeValueMemberN{Value: v.String()}, nil
	case bool:
		return &types.AttributeValueMemberBOOL{Value: v}, nil
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return &types.AttributeValueMemberS{Value: string(raw)}, nil
	}
}

func buildPK(table, monitor string) string {
	return table + "#" + monitor
}

func buildSK(timestamp, id string) string {
	return timestamp + "#" + id
}
