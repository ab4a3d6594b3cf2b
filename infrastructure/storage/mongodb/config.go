// Package mongodb provides a MongoDB-backed promotion request store.
package mongodb

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/felixgeelhaar/promote/domain/config"
	"github.com/felixgeelhaar/promote/domain/promotion"
)

// DefaultCollection holds promotion requests unless configured otherwise.
const DefaultCollection = "promotion_requests"

// Config contains MongoDB connection configuration.
type Config struct {
	URI        string
	Database   string
	Collection string

	// ConnectTimeout bounds the initial connect and ping.
	ConnectTimeout time.Duration

	// QueryTimeout bounds every store operation.
	QueryTimeout time.Duration

	MaxPoolSize uint64

	// CASRetries bounds version-conflict retries per mutation.
	CASRetries int
}

// DefaultConfig returns the configuration used by `storage.driver: mongodb`.
func DefaultConfig() Config {
	return Config{
		URI:            "mongodb://localhost:27017",
		Database:       "promote",
		Collection:     DefaultCollection,
		ConnectTimeout: 10 * time.Second,
		QueryTimeout:   30 * time.Second,
		MaxPoolSize:    100,
		CASRetries:     5,
	}
}

// FromSettings maps the storage.mongodb section over DefaultConfig.
func FromSettings(s config.MongoDBConfig, casRetries int) Config {
	cfg := DefaultConfig()
	if s.URI != "" {
		cfg.URI = s.URI
	}
	if s.Database != "" {
		cfg.Database = s.Database
	}
	if s.Collection != "" {
		cfg.Collection = s.Collection
	}
	if casRetries > 0 {
		cfg.CASRetries = casRetries
	}
	return cfg
}

// Client wraps a MongoDB client with configuration.
type Client struct {
	client   *mongo.Client
	database *mongo.Database
	config   Config
}

// NewClient connects to MongoDB and pings the server.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	clientOpts := options.Client().
		ApplyURI(cfg.URI).
		SetMaxPoolSize(cfg.MaxPoolSize)

	connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, clientOpts)
	if err != nil {
		return nil, errors.Join(promotion.ErrStoreUnavailable, err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer pingCancel()

	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, errors.Join(promotion.ErrStoreUnavailable, err)
	}

	return &Client{
		client:   client,
		database: client.Database(cfg.Database),
		config:   cfg,
	}, nil
}

// Database returns the configured database.
func (c *Client) Database() *mongo.Database {
	return c.database
}

// Collection returns a collection from the database.
func (c *Client) Collection(name string) *mongo.Collection {
	return c.database.Collection(name)
}

// Close disconnects from MongoDB.
func (c *Client) Close(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}

// CollectionName returns the configured collection name.
func (c *Client) CollectionName() string {
	if c.config.Collection == "" {
		return DefaultCollection
	}
	return c.config.Collection
}

// CreateIndexes creates the (applicant, status) and (level, status)
// indexes plus the time index used for listing.
func (c *Client) CreateIndexes(ctx context.Context, collectionName string) error {
	if collectionName == "" {
		collectionName = c.CollectionName()
	}

	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "applicant", Value: 1},
				{Key: "status", Value: 1},
			},
		},
		{
			Keys: bson.D{
				{Key: "current_level", Value: 1},
				{Key: "status", Value: 1},
			},
		},
		{
			Keys: bson.D{
				{Key: "created_at", Value: -1},
			},
		},
	}

	_, err := c.Collection(collectionName).Indexes().CreateMany(ctx, indexes)
	return err
}
