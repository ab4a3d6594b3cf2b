package config

import (
	"errors"
	"fmt"
	"strings"
)

// Errors returned while loading a configuration file.
var (
	ErrConfigNotFound    = errors.New("config: file not found")
	ErrInvalidFormat     = errors.New("config: malformed file")
	ErrUnsupportedFormat = errors.New("config: unsupported file extension")
	ErrValidationFailed  = errors.New("config: validation failed")
	ErrMissingEnvVar     = errors.New("config: required environment variable not set")
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	// Path is the dotted path to the invalid field.
	Path string
	// Message describes the validation error.
	Message string
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("%d validation errors:\n  - %s", len(e), strings.Join(msgs, "\n  - "))
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validator validates promote configuration.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate validates the configuration and returns any errors.
func (v *Validator) Validate(config *Config) ValidationErrors {
	v.errors = nil

	v.validateRequired(config)
	v.validateWorkflow(config)
	v.validateStorage(config)
	v.validateResilience(config)
	v.validateReviewers(config)
	v.validateNotification(config)
	v.validatePublish(config)
	v.validateLogging(config)
	v.validateTelemetry(config)

	return v.errors
}

func (v *Validator) addError(path, message string) {
	v.errors = append(v.errors, ValidationError{Path: path, Message: message})
}

func (v *Validator) validateRequired(config *Config) {
	if config.Name == "" {
		v.addError("name", "name is required")
	}
	if config.Version == "" {
		v.addError("version", "version is required")
	}
}

func (v *Validator) validateWorkflow(config *Config) {
	w := config.Workflow
	if w.CompletenessThreshold < 0 || w.CompletenessThreshold > 100 {
		v.addError("workflow.completeness_threshold", "must be between 0 and 100")
	}
	if w.TokenHistory < 0 {
		v.addError("workflow.token_history", "token_history must be non-negative")
	}
	if w.CASRetries < 0 {
		v.addError("workflow.cas_retries", "cas_retries must be non-negative")
	}

	switch w.Escalation.Mode {
	case "", EscalateAlways, EscalateNever:
	case EscalateAmount:
		if w.Escalation.AmountThreshold <= 0 {
			v.addError("workflow.escalation.amount_threshold", "amount_threshold must be positive for amount mode")
		}
	default:
		v.addError("workflow.escalation.mode", fmt.Sprintf("invalid mode: %s", w.Escalation.Mode))
	}

	switch w.Router {
	case "", "table", "statechart":
	default:
		v.addError("workflow.router", fmt.Sprintf("invalid router: %s", w.Router))
	}
}

func (v *Validator) validateStorage(config *Config) {
	s := config.Storage
	switch s.Driver {
	case "", DriverMemory:
	case DriverSQLite:
		if s.SQLite.DSN == "" {
			v.addError("storage.sqlite.dsn", "dsn is required")
		}
	case DriverPostgres:
		if s.Postgres.DSN == "" {
			v.addError("storage.postgres.dsn", "dsn is required")
		}
	case DriverRedis:
		if s.Redis.Address == "" {
			v.addError("storage.redis.address", "address is required")
		}
	case DriverBadger:
		if s.Badger.Dir == "" && !s.Badger.InMemory {
			v.addError("storage.badger.dir", "dir is required unless in_memory is set")
		}
	case DriverMongoDB:
		if s.MongoDB.URI == "" {
			v.addError("storage.mongodb.uri", "uri is required")
		}
		if s.MongoDB.Database == "" {
			v.addError("storage.mongodb.database", "database is required")
		}
	case DriverDynamoDB:
		if s.DynamoDB.Table == "" {
			v.addError("storage.dynamodb.table", "table is required")
		}
	default:
		v.addError("storage.driver", fmt.Sprintf("unknown driver: %s", s.Driver))
	}
}

func (v *Validator) validateResilience(config *Config) {
	r := config.Resilience
	if !r.Enabled {
		return
	}
	if r.Retry.MaxAttempts < 0 {
		v.addError("resilience.retry.max_attempts", "max_attempts must be non-negative")
	}
	if r.Retry.Multiplier != 0 && r.Retry.Multiplier < 1 {
		v.addError("resilience.retry.multiplier", "multiplier must be >= 1")
	}
	if r.CircuitBreaker.Threshold < 0 {
		v.addError("resilience.circuit_breaker.threshold", "threshold must be non-negative")
	}
}

func (v *Validator) validateReviewers(config *Config) {
	check := func(path string, names []string) {
		seen := make(map[string]bool, len(names))
		for i, name := range names {
			if strings.TrimSpace(name) == "" {
				v.addError(fmt.Sprintf("%s[%d]", path, i), "reviewer name is empty")
				continue
			}
			if seen[name] {
				v.addError(fmt.Sprintf("%s[%d]", path, i), fmt.Sprintf("duplicate reviewer: %s", name))
			}
			seen[name] = true
		}
	}
	check("reviewers.level1", config.Reviewers.Level1)
	check("reviewers.level2", config.Reviewers.Level2)
}

func (v *Validator) validateNotification(config *Config) {
	if !config.Notification.Enabled {
		return
	}

	for i, ep := range config.Notification.Endpoints {
		path := fmt.Sprintf("notification.endpoints[%d]", i)
		if ep.URL == "" {
			v.addError(path+".url", "URL is required")
		}
		for _, t := range ep.EventFilter {
			if !strings.HasPrefix(t, "promotion.") {
				v.addError(path+".event_filter", fmt.Sprintf("unknown event type: %s", t))
			}
		}
	}

	for _, t := range config.Notification.EventFilter {
		if !strings.HasPrefix(t, "promotion.") {
			v.addError("notification.event_filter", fmt.Sprintf("unknown event type: %s", t))
		}
	}

	if config.Notification.Batching.Enabled && config.Notification.Batching.MaxSize <= 0 {
		v.addError("notification.batching.max_size", "max_size must be positive when enabled")
	}
}

func (v *Validator) validatePublish(config *Config) {
	p := config.Publish
	switch p.Driver {
	case "", PublishNone:
	case PublishFilesystem:
		if p.Dir == "" {
			v.addError("publish.dir", "dir is required for the filesystem driver")
		}
	case PublishS3, PublishGCS:
		if p.Bucket == "" {
			v.addError("publish.bucket", "bucket is required")
		}
	case PublishAzure:
		if p.AccountURL == "" && p.ConnectionString == "" {
			v.addError("publish.account_url", "account_url or connection_string is required")
		}
		if p.Bucket == "" {
			v.addError("publish.bucket", "bucket (container) is required")
		}
	default:
		v.addError("publish.driver", fmt.Sprintf("unknown driver: %s", p.Driver))
	}
}

func (v *Validator) validateLogging(config *Config) {
	switch strings.ToLower(config.Logging.Level) {
	case "", "trace", "debug", "info", "warn", "warning", "error":
	default:
		v.addError("logging.level", fmt.Sprintf("invalid level: %s", config.Logging.Level))
	}
	switch config.Logging.Format {
	case "", "json", "console":
	default:
		v.addError("logging.format", fmt.Sprintf("invalid format: %s", config.Logging.Format))
	}
}

func (v *Validator) validateTelemetry(config *Config) {
	switch config.Telemetry.Exporter {
	case "", ExporterNone, ExporterStdout:
	case ExporterOTLP:
		if config.Telemetry.Endpoint == "" {
			v.addError("telemetry.endpoint", "endpoint is required for the otlp exporter")
		}
	default:
		v.addError("telemetry.exporter", fmt.Sprintf("unknown exporter: %s", config.Telemetry.Exporter))
	}
}
