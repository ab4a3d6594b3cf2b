package config

import (
	"encoding/json"

	domainconfig "github.com/felixgeelhaar/promote/domain/config"
	"github.com/felixgeelhaar/promote/domain/promotion"
)

// JSONSchema represents a JSON Schema document.
type JSONSchema struct {
	Schema               string                 `json:"$schema,omitempty"`
	ID                   string                 `json:"$id,omitempty"`
	Title                string                 `json:"title,omitempty"`
	Description          string                 `json:"description,omitempty"`
	Type                 string                 `json:"type,omitempty"`
	Properties           map[string]*JSONSchema `json:"properties,omitempty"`
	Required             []string               `json:"required,omitempty"`
	Items                *JSONSchema            `json:"items,omitempty"`
	AdditionalProperties *JSONSchema            `json:"additionalProperties,omitempty"`
	Enum                 []string               `json:"enum,omitempty"`
	Default              any                    `json:"default,omitempty"`
	Minimum              *float64               `json:"minimum,omitempty"`
	Maximum              *float64               `json:"maximum,omitempty"`
	Format               string                 `json:"format,omitempty"`
}

func object(desc string, props map[string]*JSONSchema, required ...string) *JSONSchema {
	return &JSONSchema{Type: "object", Description: desc, Properties: props, Required: required}
}

func str(desc string) *JSONSchema {
	return &JSONSchema{Type: "string", Description: desc}
}

func enum(desc string, def string, values ...string) *JSONSchema {
	return &JSONSchema{Type: "string", Description: desc, Enum: values, Default: def}
}

func duration(desc, def string) *JSONSchema {
	s := &JSONSchema{Type: "string", Format: "duration", Description: desc}
	if def != "" {
		s.Default = def
	}
	return s
}

func integer(desc string, minimum float64, def any) *JSONSchema {
	return &JSONSchema{Type: "integer", Description: desc, Minimum: &minimum, Default: def}
}

func boolean(desc string) *JSONSchema {
	return &JSONSchema{Type: "boolean", Description: desc, Default: false}
}

func stringList(desc string) *JSONSchema {
	return &JSONSchema{Type: "array", Description: desc, Items: &JSONSchema{Type: "string"}}
}

func eventTypes(desc string) *JSONSchema {
	return &JSONSchema{
		Type:        "array",
		Description: desc,
		Items: &JSONSchema{Type: "string", Enum: []string{
			string(promotion.EventCreated),
			string(promotion.EventSubmitted),
			string(promotion.EventWithdrawn),
			string(promotion.EventEscalated),
			string(promotion.EventApproved),
			string(promotion.EventRejected),
			string(promotion.EventReturned),
			string(promotion.EventDeleted),
		}},
	}
}

// GenerateSchema generates a JSON Schema for the promote configuration.
func GenerateSchema() *JSONSchema {
	root := object("Configuration of the promote approval service", map[string]*JSONSchema{
		"name":         str("A human-readable name for this deployment"),
		"version":      {Type: "string", Description: "The configuration schema version", Default: "1.0"},
		"workflow":     workflowSchema(),
		"storage":      storageSchema(),
		"resilience":   resilienceSchema(),
		"reviewers":    reviewersSchema(),
		"snapshot":     snapshotSchema(),
		"notification": notificationSchema(),
		"publish":      publishSchema(),
		"server":       serverSchema(),
		"logging":      loggingSchema(),
		"telemetry":    telemetrySchema(),
	}, "name", "version")
	root.Schema = "https://json-schema.org/draft/2020-12/schema"
	root.ID = "https://github.com/felixgeelhaar/promote/promote-config.schema.json"
	root.Title = "Promote Configuration"
	return root
}

func workflowSchema() *JSONSchema {
	threshold := integer("Minimum completeness (0-100) required to submit", 0, promotion.DefaultCompletenessThreshold)
	maximum := 100.0
	threshold.Maximum = &maximum

	return object("Lifecycle settings", map[string]*JSONSchema{
		"completeness_threshold": threshold,
		"escalation": object("When a level1 approval requires level2 review", map[string]*JSONSchema{
			"mode": enum("Escalation policy", domainconfig.EscalateAlways,
				domainconfig.EscalateAlways, domainconfig.EscalateNever, domainconfig.EscalateAmount),
			"amount_threshold": integer("Amount at or above which level2 is required (amount mode)", 1, nil),
		}),
		"token_history": integer("Idempotency tokens remembered per request", 0, promotion.DefaultTokenHistory),
		"cas_retries":   integer("Re-evaluations after a lost optimistic write", 0, nil),
		"router":        enum("Review router implementation", RouterTable, RouterTable, RouterStatechart),
	})
}

func storageSchema() *JSONSchema {
	return object("Request store", map[string]*JSONSchema{
		"driver": enum("Storage backend", domainconfig.DriverMemory,
			domainconfig.DriverMemory, domainconfig.DriverSQLite, domainconfig.DriverPostgres,
			domainconfig.DriverRedis, domainconfig.DriverBadger, domainconfig.DriverMongoDB,
			domainconfig.DriverDynamoDB),
		"sqlite": object("SQLite settings", map[string]*JSONSchema{
			"dsn": str("Data source name"),
		}),
		"postgres": object("PostgreSQL settings", map[string]*JSONSchema{
			"dsn":       str("Connection string"),
			"schema":    str("Schema holding the tables"),
			"max_conns": integer("Pool size", 1, nil),
		}),
		"redis": object("Redis settings", map[string]*JSONSchema{
			"address":    str("host:port"),
			"password":   str("Password"),
			"db":         integer("Database number", 0, 0),
			"key_prefix": str("Prefix for every key"),
		}),
		"badger": object("Embedded Badger settings", map[string]*JSONSchema{
			"dir":       str("Data directory"),
			"in_memory": boolean("Keep data in memory only"),
		}),
		"mongodb": object("MongoDB settings", map[string]*JSONSchema{
			"uri":        str("Connection URI"),
			"database":   str("Database name"),
			"collection": str("Collection name"),
		}),
		"dynamodb": object("DynamoDB settings", map[string]*JSONSchema{
			"region":       str("AWS region"),
			"endpoint":     {Type: "string", Format: "uri", Description: "Endpoint override (local DynamoDB)"},
			"table":        str("Table name"),
			"create_table": boolean("Create the table and indexes on startup"),
		}),
	})
}

func resilienceSchema() *JSONSchema {
	return object("Retries and circuit breaking around the request store", map[string]*JSONSchema{
		"enabled": boolean("Wrap the store"),
		"timeout": duration("Per-call timeout", "10s"),
		"retry": object("Read retries", map[string]*JSONSchema{
			"max_attempts":  integer("Maximum attempts", 1, 3),
			"initial_delay": duration("First retry delay", "50ms"),
			"multiplier":    {Type: "number", Description: "Backoff multiplier", Default: 2.0},
		}),
		"circuit_breaker": object("Breaker settings", map[string]*JSONSchema{
			"threshold": integer("Consecutive failures before opening", 1, 5),
			"timeout":   duration("How long the circuit stays open", "30s"),
		}),
	})
}

func reviewersSchema() *JSONSchema {
	return object("Reviewer roster; empty lets anyone but the applicant review", map[string]*JSONSchema{
		"level1": stringList("First-level reviewers"),
		"level2": stringList("Escalated-level reviewers"),
	})
}

func snapshotSchema() *JSONSchema {
	return object("Data-capture system client", map[string]*JSONSchema{
		"url":     {Type: "string", Format: "uri", Description: "Base URL; snapshots are read from {url}/projects/{id}/snapshot"},
		"timeout": duration("Per-request timeout", "10s"),
		"token":   str("Bearer token"),
	})
}

func notificationSchema() *JSONSchema {
	endpoint := object("", map[string]*JSONSchema{
		"name":    str("Human-readable name"),
		"url":     {Type: "string", Format: "uri", Description: "Webhook URL"},
		"enabled": {Type: "boolean", Default: true},
		"secret":  str("HMAC signing secret"),
		"headers": {
			Type:                 "object",
			Description:          "Additional HTTP headers",
			AdditionalProperties: &JSONSchema{Type: "string"},
		},
		"event_filter": eventTypes("Event types to send"),
	}, "url")

	return object("Lifecycle event delivery", map[string]*JSONSchema{
		"enabled":   boolean("Enable notifications"),
		"log":       boolean("Write every event to the log"),
		"endpoints": {Type: "array", Description: "Webhook endpoints", Items: endpoint},
		"batching": object("Event batching", map[string]*JSONSchema{
			"enabled":  boolean("Batch events per endpoint"),
			"max_size": integer("Events per batch", 1, 50),
			"max_wait": duration("Maximum time an event waits", "2s"),
		}),
		"event_filter": eventTypes("Global event type filter"),
	})
}

func publishSchema() *JSONSchema {
	return object("Where approved snapshots are written", map[string]*JSONSchema{
		"driver": enum("Publisher backend", domainconfig.PublishNone,
			domainconfig.PublishNone, domainconfig.PublishFilesystem, domainconfig.PublishS3,
			domainconfig.PublishGCS, domainconfig.PublishAzure),
		"dir":               str("Root directory (filesystem)"),
		"bucket":            str("Bucket or container"),
		"prefix":            str("Key prefix"),
		"region":            str("AWS region (s3)"),
		"endpoint":          {Type: "string", Format: "uri", Description: "Endpoint override (s3, gcs)"},
		"access_key_id":     str("Static access key (s3)"),
		"secret_access_key": str("Static secret key (s3)"),
		"account_url":       {Type: "string", Format: "uri", Description: "Storage account URL (azblob)"},
		"connection_string": str("Storage connection string (azblob)"),
		"credentials_file":  str("Service-account key file (gcs)"),
	})
}

func serverSchema() *JSONSchema {
	return object("HTTP API", map[string]*JSONSchema{
		"addr":          {Type: "string", Description: "Listen address", Default: ":8080"},
		"read_timeout":  duration("Request read timeout", "15s"),
		"write_timeout": duration("Response write timeout", "30s"),
		"rate_limit":    integer("Requests per second per actor; 0 disables limiting", 0, 0),
		"rate_burst":    integer("Burst allowance per actor", 0, nil),
	})
}

func loggingSchema() *JSONSchema {
	return object("Structured logging", map[string]*JSONSchema{
		"level":  enum("Minimum level", "info", "trace", "debug", "info", "warn", "error"),
		"format": enum("Output format", "json", "json", "console"),
	})
}

func telemetrySchema() *JSONSchema {
	return object("OpenTelemetry export", map[string]*JSONSchema{
		"exporter": enum("Trace exporter", domainconfig.ExporterNone,
			domainconfig.ExporterNone, domainconfig.ExporterStdout, domainconfig.ExporterOTLP),
		"endpoint":     str("OTLP gRPC collector address"),
		"insecure":     boolean("Disable TLS towards the collector"),
		"service_name": {Type: "string", Description: "Reported service name", Default: "promote"},
	})
}

// SchemaJSON returns the JSON Schema as a JSON string.
func SchemaJSON() (string, error) {
	data, err := json.MarshalIndent(GenerateSchema(), "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
