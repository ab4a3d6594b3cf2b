package mongodb_test

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/promote/domain/config"
	"github.com/felixgeelhaar/promote/domain/promotion"
	"github.com/felixgeelhaar/promote/infrastructure/storage/mongodb"
	"github.com/felixgeelhaar/promote/infrastructure/storage/storetest"
)

func TestRequestStoreIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping mongodb integration test in short mode")
	}

	uri := setupMongo(t)
	ctx := context.Background()

	client, err := mongodb.NewClient(ctx, mongodb.FromSettings(config.MongoDBConfig{URI: uri, Database: "promote_it"}, 0))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close(context.Background()) })

	var n atomic.Int64
	storetest.Run(t, func(t *testing.T) promotion.Store {
		collection := fmt.Sprintf("requests_%d", n.Add(1))
		require.NoError(t, client.CreateIndexes(ctx, collection))
		return mongodb.NewRequestStore(client, collection)
	})
}

func setupMongo(t *testing.T) string {
	t.Helper()

	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Skipf("docker unavailable: %v", err)
	}
	if err := pool.Client.Ping(); err != nil {
		t.Skipf("docker unavailable: %v", err)
	}
	pool.MaxWait = 2 * time.Minute

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "mongo",
		Tag:        "7",
	}, func(hc *docker.HostConfig) {
		hc.AutoRemove = true
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Purge(resource) })

	uri := "mongodb://localhost:" + resource.GetPort("27017/tcp")

	require.NoError(t, pool.Retry(func() error {
		c, err := mongodb.NewClient(context.Background(), mongodb.FromSettings(config.MongoDBConfig{URI: uri}, 0))
		if err != nil {
			return err
		}
		return c.Close(context.Background())
	}))

	return uri
}
