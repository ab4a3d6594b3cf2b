package publish

import (
	"context"
	"fmt"

	"github.com/felixgeelhaar/promote/domain/config"
)

// NewFromConfig builds the publisher selected by cfg. It returns nil when
// publishing is disabled.
func NewFromConfig(ctx context.Context, cfg config.PublishConfig) (*Publisher, error) {
	var (
		bucket Bucket
		err    error
	)

	switch cfg.Driver {
	case "", config.PublishNone:
		return nil, nil
	case config.PublishFilesystem:
		bucket, err = NewFilesystemBucket(cfg.Dir)
	case config.PublishS3:
		bucket, err = NewS3Bucket(ctx, S3Config{
			Bucket:          cfg.Bucket,
			Region:          cfg.Region,
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretAccessKey,
			Endpoint:        cfg.Endpoint,
		})
	case config.PublishGCS:
		bucket, err = NewGCSBucket(ctx, GCSConfig{
			Bucket:          cfg.Bucket,
			CredentialsFile: cfg.CredentialsFile,
			Endpoint:        cfg.Endpoint,
		})
	case config.PublishAzure:
		bucket, err = NewAzureBucket(AzureConfig{
			Container:        cfg.Bucket,
			AccountURL:       cfg.AccountURL,
			ConnectionString: cfg.ConnectionString,
		})
	default:
		return nil, fmt.Errorf("publish: unknown driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	return NewPublisher(bucket, cfg.Prefix), nil
}
