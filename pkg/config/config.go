package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Telemetry sink names accepted in TELEMETRY_SINK.
const (
	SinkDummy      = "dummy"
	SinkPostgres   = "postgres"
	SinkCloudWatch = "cloudwatch"
	SinkDynamoDB   = "dynamodb"
)

type Config struct {
	Server     ServerConfig
	Log        LogConfig
	Security   SecurityConfig
	RateLimit  RateLimitConfig
	Telemetry  TelemetryConfig
	Database   DatabaseConfig
	DynamoDB   DynamoDBConfig
	CloudWatch CloudWatchConfig
	AWS        AWSConfig
	Tracker    TrackerConfig
	Incident   IncidentConfig
	Redis      RedisConfig
	NATS       NATSConfig
	S3         S3Config
	Teams      TeamsConfig
	Monitors   MonitorsConfig
	Probe      ProbeConfig
	Metrics    MetricsConfig
}

type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

type LogConfig struct {
	Level string
}

type SecurityConfig struct {
	AllowedOrigins []string
	AuthEnabled    bool
	AuthToken      string
}

// RateLimitConfig limits the alert webhook.
type RateLimitConfig struct {
	RPS   float64
	Burst int
}

type TelemetryConfig struct {
	Sink string
	// Database is the logical telemetry database; the postgres sink uses it as the default DB name.
	Database      string
	DummyDelay    time.Duration
	IngestTimeout time.Duration
}

type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

type DynamoDBConfig struct {
	Table string
	TTL   time.Duration
}

type CloudWatchConfig struct {
	LogsEnabled        bool
	LogGroup           string
	LogStream          string
	TelemetryLogGroup  string
	MetricsEnabled     bool
	MetricsNamespace   string
	Environment        string
	AutoCreate         bool
	FlushInterval      time.Duration
	MetricsFlushPeriod time.Duration
}

// AWSConfig is shared by every AWS-backed component.
type AWSConfig struct {
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

type TrackerConfig struct {
	Enabled      bool
	BaseURL      string
	Project      string
	AreaPath     string
	PAT          string
	WorkItemType string
	Tags         []string
	Timeout      time.Duration
}

type IncidentConfig struct {
	Format  string
	LockTTL time.Duration
}

type RedisConfig struct {
	Enabled   bool
	Host      string
	Port      string
	Password  string
	DB        int
	KeyPrefix string
}

type NATSConfig struct {
	Enabled bool
	URL     string
	Stream  string
}

type S3Config struct {
	Enabled      bool
	Bucket       string
	UsePathStyle bool
	KeyPrefix    string
	URLMode      string
	PresignedTTL time.Duration
}

type TeamsConfig struct {
	WebhookURL string
}

func (c TeamsConfig) Enabled() bool {
	return strings.TrimSpace(c.WebhookURL) != ""
}

type MonitorsConfig struct {
	File             string
	SchedulerEnabled bool
	RunTimeout       time.Duration
}

type ProbeConfig struct {
	HTTPTimeout   time.Duration
	ScriptShell   string
	ScriptPath    string
	ScriptURL     string
	ScriptTimeout time.Duration
}

// MetricsConfig controls the Prometheus /metrics endpoint.
type MetricsConfig struct {
	Enabled bool
}

func Load() (*Config, error) {
	// Загружаем .env файл (игнорируем ошибку если файла нет)
	_ = godotenv.Load()

	var errs []error
	duration := func(key, fallback string) time.Duration {
		value, err := parseDuration(getEnv(key, fallback))
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid %s: %w", key, err))
		}
		return value
	}
	integer := func(key string, fallback int) int {
		value, err := getEnvInt(key, fallback)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid %s: %w", key, err))
		}
		return value
	}

	rps, err := strconv.ParseFloat(getEnv("WEBHOOK_RATE_LIMIT_RPS", "5"), 64)
	if err != nil {
		errs = append(errs, fmt.Errorf("invalid WEBHOOK_RATE_LIMIT_RPS: %w", err))
	}

	telemetryDatabase := getEnv("TELEMETRY_DATABASE", "dotnet_install_monitoring")

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnv("SERVER_PORT", "8080"),
			ReadTimeout:     duration("SERVER_READ_TIMEOUT", "10s"),
			WriteTimeout:    duration("SERVER_WRITE_TIMEOUT", "60s"),
			IdleTimeout:     duration("SERVER_IDLE_TIMEOUT", "60s"),
			ShutdownTimeout: duration("SHUTDOWN_TIMEOUT", "30s"),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Security: SecurityConfig{
			AllowedOrigins: splitCSV(getEnv("ALLOWED_ORIGINS", "http://localhost:8080,http://127.0.0.1:8080")),
			AuthEnabled:    getEnvBool("AUTH_ENABLED", false),
			AuthToken:      getEnv("AUTH_BEARER_TOKEN", ""),
		},
		RateLimit: RateLimitConfig{
			RPS:   rps,
			Burst: integer("WEBHOOK_RATE_LIMIT_BURST", 10),
		},
		Telemetry: TelemetryConfig{
			Sink:          strings.ToLower(getEnv("TELEMETRY_SINK", SinkDummy)),
			Database:      telemetryDatabase,
			DummyDelay:    duration("TELEMETRY_DUMMY_DELAY", "2s"),
			IngestTimeout: duration("TELEMETRY_INGEST_TIMEOUT", "30s"),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", "postgres"),
			Database:        getEnv("DB_NAME", telemetryDatabase),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    integer("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    integer("DB_MAX_IDLE_CONNS", 2),
			ConnMaxLifetime: 5 * time.Minute,
			ConnMaxIdleTime: 10 * time.Minute,
		},
		DynamoDB: DynamoDBConfig{
			Table: getEnv("DYNAMODB_TABLE", "install-monitor-telemetry"),
			TTL:   duration("DYNAMODB_TTL", "0s"),
		},
		CloudWatch: CloudWatchConfig{
			LogsEnabled:        getEnvBool("CLOUDWATCH_LOGS_ENABLED", false),
			LogGroup:           getEnv("CLOUDWATCH_LOG_GROUP", "/install-monitor/app"),
			LogStream:          getEnv("CLOUDWATCH_LOG_STREAM", hostnameOr("install-monitor")),
			TelemetryLogGroup:  getEnv("CLOUDWATCH_TELEMETRY_LOG_GROUP", "/install-monitor/telemetry"),
			MetricsEnabled:     getEnvBool("CLOUDWATCH_METRICS_ENABLED", false),
			MetricsNamespace:   getEnv("CLOUDWATCH_METRICS_NAMESPACE", "InstallMonitor/Probes"),
			Environment:        getEnv("ENVIRONMENT", "development"),
			AutoCreate:         getEnvBool("CLOUDWATCH_AUTO_CREATE", true),
			FlushInterval:      duration("CLOUDWATCH_LOGS_FLUSH_INTERVAL", "5s"),
			MetricsFlushPeriod: duration("CLOUDWATCH_METRICS_FLUSH_INTERVAL", "60s"),
		},
		AWS: AWSConfig{
			Region:          getEnv("AWS_REGION", "us-east-1"),
			Endpoint:        getEnv("AWS_ENDPOINT", ""),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
		},
		Tracker: TrackerConfig{
			Enabled:      getEnvBool("TRACKER_ENABLED", true),
			BaseURL:      getEnv("TRACKER_BASE_URL", "https://devdiv.visualstudio.com/DefaultCollection/"),
			Project:      getEnv("TRACKER_PROJECT", "devdiv"),
			AreaPath:     getEnv("TRACKER_AREA_PATH", `DevDiv\NET Tools\install-scripts-incidents`),
			PAT:          getEnv("TRACKER_PAT", ""),
			WorkItemType: getEnv("TRACKER_WORK_ITEM_TYPE", "Task"),
			Tags:         splitCSV(getEnv("TRACKER_TAGS", "")),
			Timeout:      duration("TRACKER_TIMEOUT", "15s"),
		},
		Incident: IncidentConfig{
			Format:  getEnv("INCIDENT_FORMAT", "json"),
			LockTTL: duration("INCIDENT_LOCK_TTL", "2m"),
		},
		Redis: RedisConfig{
			Enabled:   getEnvBool("REDIS_ENABLED", false),
			Host:      getEnv("REDIS_HOST", "localhost"),
			Port:      getEnv("REDIS_PORT", "6379"),
			Password:  getEnv("REDIS_PASSWORD", ""),
			DB:        integer("REDIS_DB", 0),
			KeyPrefix: getEnv("REDIS_KEY_PREFIX", "install-monitor"),
		},
		NATS: NATSConfig{
			Enabled: getEnvBool("NATS_ENABLED", false),
			URL:     getEnv("NATS_URL", "nats://localhost:4222"),
			Stream:  getEnv("NATS_STREAM", "INSTALL_MONITOR"),
		},
		S3: S3Config{
			Enabled:      getEnvBool("S3_ENABLED", false),
			Bucket:       getEnv("S3_BUCKET", ""),
			UsePathStyle: getEnvBool("S3_USE_PATH_STYLE", false),
			KeyPrefix:    getEnv("S3_KEY_PREFIX", "incidents"),
			URLMode:      getEnv("S3_URL_MODE", "presigned"),
			PresignedTTL: duration("S3_PRESIGNED_TTL", "168h"),
		},
		Teams: TeamsConfig{
			WebhookURL: getEnv("TEAMS_WEBHOOK_URL", ""),
		},
		Monitors: MonitorsConfig{
			File:             getEnv("MONITORS_FILE", ""),
			SchedulerEnabled: getEnvBool("SCHEDULER_ENABLED", true),
			RunTimeout:       duration("MONITOR_RUN_TIMEOUT", "5m"),
		},
		Probe: ProbeConfig{
			HTTPTimeout:   duration("PROBE_HTTP_TIMEOUT", "60s"),
			ScriptShell:   getEnv("INSTALL_SCRIPT_SHELL", ""),
			ScriptPath:    getEnv("INSTALL_SCRIPT_PATH", ""),
			ScriptURL:     getEnv("INSTALL_SCRIPT_URL", ""),
			ScriptTimeout: duration("INSTALL_SCRIPT_TIMEOUT", "5m"),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvBool("METRICS_ENABLED", true),
		},
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks cross-field constraints that single env lookups cannot.
func (c *Config) Validate() error {
	switch c.Telemetry.Sink {
	case SinkDummy, SinkPostgres, SinkCloudWatch, SinkDynamoDB:
	default:
		return fmt.Errorf("invalid TELEMETRY_SINK %q: expected one of %s, %s, %s, %s",
			c.Telemetry.Sink, SinkDummy, SinkPostgres, SinkCloudWatch, SinkDynamoDB)
	}

	if c.Security.AuthEnabled && c.Security.AuthToken == "" {
		return fmt.Errorf("AUTH_BEARER_TOKEN is required when AUTH_ENABLED=true")
	}
	if c.RateLimit.RPS <= 0 || c.RateLimit.Burst <= 0 {
		return fmt.Errorf("WEBHOOK_RATE_LIMIT_RPS and WEBHOOK_RATE_LIMIT_BURST must be positive")
	}
	if c.Tracker.Enabled && strings.TrimSpace(c.Tracker.Project) == "" {
		return fmt.Errorf("TRACKER_PROJECT is required when TRACKER_ENABLED=true")
	}
	if c.S3.Enabled && c.S3.Bucket == "" {
		return fmt.Errorf("S3_BUCKET is required when S3_ENABLED=true")
	}

	switch strings.ToLower(c.Incident.Format) {
	case "json", "yaml", "yml":
	default:
		return fmt.Errorf("invalid INCIDENT_FORMAT %q", c.Incident.Format)
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}

	return parsed
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	return strconv.Atoi(value)
}

func splitCSV(raw string) []string {
	items := make([]string, 0)
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

func parseDuration(s string) (time.Duration, error) {
	return time.ParseDuration(s)
}

func hostnameOr(fallback string) string {
	if name, err := os.Hostname(); err == nil && name != "" {
		return name
	}
	return fallback
}
