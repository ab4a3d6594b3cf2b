// Package config provides the domain model for service configuration.
package config

import "time"

// Config represents the complete promote configuration.
type Config struct {
	// Name is a human-readable name for this deployment.
	Name string `json:"name" yaml:"name"`
	// Version is the configuration schema version.
	Version string `json:"version" yaml:"version"`

	// Workflow contains lifecycle settings.
	Workflow WorkflowConfig `json:"workflow,omitempty" yaml:"workflow,omitempty"`
	// Storage selects and configures the request store.
	Storage StorageConfig `json:"storage,omitempty" yaml:"storage,omitempty"`
	// Resilience wraps the request store with retries and a breaker.
	Resilience ResilienceConfig `json:"resilience,omitempty" yaml:"resilience,omitempty"`
	// Reviewers is the reviewer roster per level.
	Reviewers ReviewersConfig `json:"reviewers,omitempty" yaml:"reviewers,omitempty"`
	// Snapshot configures the project snapshot source.
	Snapshot SnapshotConfig `json:"snapshot,omitempty" yaml:"snapshot,omitempty"`
	// Notification contains notification settings.
	Notification NotificationConfig `json:"notification,omitempty" yaml:"notification,omitempty"`
	// Publish configures where approved snapshots are written.
	Publish PublishConfig `json:"publish,omitempty" yaml:"publish,omitempty"`
	// Server configures the HTTP API.
	Server ServerConfig `json:"server,omitempty" yaml:"server,omitempty"`
	// Logging configures structured logging.
	Logging LoggingConfig `json:"logging,omitempty" yaml:"logging,omitempty"`
	// Telemetry configures tracing and metrics export.
	Telemetry TelemetryConfig `json:"telemetry,omitempty" yaml:"telemetry,omitempty"`
}

// WorkflowConfig contains lifecycle settings.
type WorkflowConfig struct {
	// CompletenessThreshold is the minimum completeness to submit (default 80).
	CompletenessThreshold int `json:"completeness_threshold,omitempty" yaml:"completeness_threshold,omitempty"`
	// Escalation decides when a level1 approval goes to level2.
	Escalation EscalationConfig `json:"escalation,omitempty" yaml:"escalation,omitempty"`
	// TokenHistory is how many idempotency tokens are kept per request.
	TokenHistory int `json:"token_history,omitempty" yaml:"token_history,omitempty"`
	// CASRetries bounds re-evaluation after a lost optimistic write.
	CASRetries int `json:"cas_retries,omitempty" yaml:"cas_retries,omitempty"`
	// Router selects the router implementation (table, statechart).
	Router string `json:"router,omitempty" yaml:"router,omitempty"`
}

// Escalation modes.
const (
	EscalateAlways = "always"
	EscalateNever  = "never"
	EscalateAmount = "amount"
)

// EscalationConfig selects the escalation policy.
type EscalationConfig struct {
	// Mode is always, never or amount (default always).
	Mode string `json:"mode,omitempty" yaml:"mode,omitempty"`
	// AmountThreshold is the amount at or above which level2 is required.
	AmountThreshold int64 `json:"amount_threshold,omitempty" yaml:"amount_threshold,omitempty"`
}

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
	DriverBadger   = "badger"
	DriverMongoDB  = "mongodb"
	DriverDynamoDB = "dynamodb"
)

// StorageConfig selects the request store.
type StorageConfig struct {
	// Driver is the backend name (default memory).
	Driver   string         `json:"driver,omitempty" yaml:"driver,omitempty"`
	SQLite   SQLiteConfig   `json:"sqlite,omitempty" yaml:"sqlite,omitempty"`
	Postgres PostgresConfig `json:"postgres,omitempty" yaml:"postgres,omitempty"`
	Redis    RedisConfig    `json:"redis,omitempty" yaml:"redis,omitempty"`
	Badger   BadgerConfig   `json:"badger,omitempty" yaml:"badger,omitempty"`
	MongoDB  MongoDBConfig  `json:"mongodb,omitempty" yaml:"mongodb,omitempty"`
	DynamoDB DynamoDBConfig `json:"dynamodb,omitempty" yaml:"dynamodb,omitempty"`
}

// SQLiteConfig configures the SQLite store.
type SQLiteConfig struct {
	DSN string `json:"dsn" yaml:"dsn"`
}

// PostgresConfig configures the PostgreSQL store.
type PostgresConfig struct {
	// DSN is the connection string.
	DSN string `json:"dsn" yaml:"dsn"`
	// Schema is the schema holding the tables (default public).
	Schema string `json:"schema,omitempty" yaml:"schema,omitempty"`
	// MaxConns caps the pool size.
	MaxConns int32 `json:"max_conns,omitempty" yaml:"max_conns,omitempty"`
}

// RedisConfig configures the Redis store.
type RedisConfig struct {
	Address   string `json:"address" yaml:"address"`
	Password  string `json:"password,omitempty" yaml:"password,omitempty"`
	DB        int    `json:"db,omitempty" yaml:"db,omitempty"`
	KeyPrefix string `json:"key_prefix,omitempty" yaml:"key_prefix,omitempty"`
}

// BadgerConfig configures the embedded Badger store.
type BadgerConfig struct {
	Dir      string `json:"dir,omitempty" yaml:"dir,omitempty"`
	InMemory bool   `json:"in_memory,omitempty" yaml:"in_memory,omitempty"`
}

// MongoDBConfig configures the MongoDB store.
type MongoDBConfig struct {
	URI        string `json:"uri" yaml:"uri"`
	Database   string `json:"database" yaml:"database"`
	Collection string `json:"collection,omitempty" yaml:"collection,omitempty"`
}

// DynamoDBConfig configures the DynamoDB store.
type DynamoDBConfig struct {
	Region   string `json:"region,omitempty" yaml:"region,omitempty"`
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	Table    string `json:"table" yaml:"table"`
	// CreateTable creates the table and its indexes on startup if missing.
	CreateTable bool `json:"create_table,omitempty" yaml:"create_table,omitempty"`
}

// ResilienceConfig configures the resilient store decorator.
type ResilienceConfig struct {
	// Enabled wraps the store.
	Enabled bool `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	// Timeout bounds each store call.
	Timeout Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	// Retry configures read retries.
	Retry RetryConfig `json:"retry,omitempty" yaml:"retry,omitempty"`
	// CircuitBreaker configures the breaker around the store.
	CircuitBreaker CircuitBreakerConfig `json:"circuit_breaker,omitempty" yaml:"circuit_breaker,omitempty"`
}

// RetryConfig configures retry behavior.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts.
	MaxAttempts int `json:"max_attempts,omitempty" yaml:"max_attempts,omitempty"`
	// InitialDelay is the first retry delay.
	InitialDelay Duration `json:"initial_delay,omitempty" yaml:"initial_delay,omitempty"`
	// Multiplier is the backoff multiplier.
	Multiplier float64 `json:"multiplier,omitempty" yaml:"multiplier,omitempty"`
}

// CircuitBreakerConfig configures circuit breaker behavior.
type CircuitBreakerConfig struct {
	// Threshold is consecutive failures before opening.
	Threshold int `json:"threshold,omitempty" yaml:"threshold,omitempty"`
	// Timeout is how long the circuit stays open.
	Timeout Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// ReviewersConfig lists reviewers per level.
type ReviewersConfig struct {
	Level1 []string `json:"level1,omitempty" yaml:"level1,omitempty"`
	Level2 []string `json:"level2,omitempty" yaml:"level2,omitempty"`
}

// IsEmpty reports whether no reviewers are configured.
func (r ReviewersConfig) IsEmpty() bool {
	return len(r.Level1) == 0 && len(r.Level2) == 0
}

// SnapshotConfig configures the data-capture system client.
type SnapshotConfig struct {
	// URL is the base URL; snapshots are fetched from URL/projects/{id}/snapshot.
	URL string `json:"url,omitempty" yaml:"url,omitempty"`
	// Timeout bounds each fetch.
	Timeout Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	// Token is sent as a bearer token.
	Token string `json:"token,omitempty" yaml:"token,omitempty"`
}

// NotificationConfig contains notification settings.
type NotificationConfig struct {
	// Enabled enables notifications.
	Enabled bool `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	// Log writes every event to the structured log.
	Log bool `json:"log,omitempty" yaml:"log,omitempty"`
	// Endpoints is the list of webhook endpoints.
	Endpoints []EndpointConfig `json:"endpoints,omitempty" yaml:"endpoints,omitempty"`
	// Batching configures event batching.
	Batching BatchingConfig `json:"batching,omitempty" yaml:"batching,omitempty"`
	// EventFilter filters events globally.
	EventFilter []string `json:"event_filter,omitempty" yaml:"event_filter,omitempty"`
}

// EndpointConfig configures a webhook endpoint.
type EndpointConfig struct {
	Name        string            `json:"name,omitempty" yaml:"name,omitempty"`
	URL         string            `json:"url" yaml:"url"`
	Enabled     bool              `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	Secret      string            `json:"secret,omitempty" yaml:"secret,omitempty"`
	Headers     map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	EventFilter []string          `json:"event_filter,omitempty" yaml:"event_filter,omitempty"`
}

// BatchingConfig configures event batching.
type BatchingConfig struct {
	Enabled bool     `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	MaxSize int      `json:"max_size,omitempty" yaml:"max_size,omitempty"`
	MaxWait Duration `json:"max_wait,omitempty" yaml:"max_wait,omitempty"`
}

// Publish drivers.
const (
	PublishNone       = "none"
	PublishFilesystem = "filesystem"
	PublishS3         = "s3"
	PublishGCS        = "gcs"
	PublishAzure      = "azblob"
)

// PublishConfig configures the approved-snapshot publisher.
type PublishConfig struct {
	// Driver is none, filesystem, s3, gcs or azblob.
	Driver string `json:"driver,omitempty" yaml:"driver,omitempty"`
	// Dir is the root directory for the filesystem driver.
	Dir string `json:"dir,omitempty" yaml:"dir,omitempty"`
	// Bucket is the bucket or container name.
	Bucket string `json:"bucket,omitempty" yaml:"bucket,omitempty"`
	// Prefix is prepended to every object key.
	Prefix string `json:"prefix,omitempty" yaml:"prefix,omitempty"`
	// Region is the S3 region.
	Region string `json:"region,omitempty" yaml:"region,omitempty"`
	// Endpoint overrides the S3 endpoint (MinIO, localstack).
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	// AccessKeyID and SecretAccessKey are static S3 credentials. The
	// default AWS credential chain is used when empty.
	AccessKeyID     string `json:"access_key_id,omitempty" yaml:"access_key_id,omitempty"`
	SecretAccessKey string `json:"secret_access_key,omitempty" yaml:"secret_access_key,omitempty"`
	// AccountURL is the Azure storage account URL.
	AccountURL string `json:"account_url,omitempty" yaml:"account_url,omitempty"`
	// ConnectionString is an Azure storage connection string; it takes
	// precedence over AccountURL.
	ConnectionString string `json:"connection_string,omitempty" yaml:"connection_string,omitempty"`
	// CredentialsFile is a GCS service-account key file.
	CredentialsFile string `json:"credentials_file,omitempty" yaml:"credentials_file,omitempty"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr         string   `json:"addr,omitempty" yaml:"addr,omitempty"`
	ReadTimeout  Duration `json:"read_timeout,omitempty" yaml:"read_timeout,omitempty"`
	WriteTimeout Duration `json:"write_timeout,omitempty" yaml:"write_timeout,omitempty"`

	// RateLimit is the sustained requests per second allowed per actor.
	// Zero disables limiting.
	RateLimit int `json:"rate_limit,omitempty" yaml:"rate_limit,omitempty"`
	RateBurst int `json:"rate_burst,omitempty" yaml:"rate_burst,omitempty"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level is trace, debug, info, warn or error.
	Level string `json:"level,omitempty" yaml:"level,omitempty"`
	// Format is json or console.
	Format string `json:"format,omitempty" yaml:"format,omitempty"`
}

// Telemetry exporters.
const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
	ExporterOTLP   = "otlp"
)

// TelemetryConfig configures tracing export.
type TelemetryConfig struct {
	// Exporter is none, stdout or otlp.
	Exporter string `json:"exporter,omitempty" yaml:"exporter,omitempty"`
	// Endpoint is the OTLP gRPC collector address.
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	// Insecure disables TLS towards the collector.
	Insecure bool `json:"insecure,omitempty" yaml:"insecure,omitempty"`
	// ServiceName overrides the reported service name.
	ServiceName string `json:"service_name,omitempty" yaml:"service_name,omitempty"`
}

// Duration is a time.Duration that supports JSON/YAML string representation.
type Duration time.Duration

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Or returns d, or def when d is zero.
func (d Duration) Or(def time.Duration) time.Duration {
	if d == 0 {
		return def
	}
	return time.Duration(d)
}
