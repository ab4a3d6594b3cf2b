package publish

import (
	"context"
	"errors"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blockblob"
)

// AzureConfig configures the Azure Blob Storage container.
type AzureConfig struct {
	Container        string
	AccountURL       string // e.g. https://<account>.blob.core.windows.net/
	ConnectionString string // optional; takes precedence over AccountURL
}

// AzureBucket writes objects to an Azure Blob Storage container.
type AzureBucket struct {
	client    *azblob.Client
	container string
}

// NewAzureBucket creates a container client. Without a connection string
// the default Azure credential chain is used.
func NewAzureBucket(cfg AzureConfig) (*AzureBucket, error) {
	if cfg.Container == "" {
		return nil, errors.New("azure container name is required")
	}

	var (
		client *azblob.Client
		err    error
	)
	switch {
	case cfg.ConnectionString != "":
		client, err = azblob.NewClientFromConnectionString(cfg.ConnectionString, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create client from connection string: %w", err)
		}
	case cfg.AccountURL != "":
		cred, cerr := azidentity.NewDefaultAzureCredential(nil)
		if cerr != nil {
			return nil, fmt.Errorf("failed to create default credential: %w", cerr)
		}
		client, err = azblob.NewClient(cfg.AccountURL, cred, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create client with default credential: %w", err)
		}
	default:
		return nil, errors.New("account URL or connection string is required")
	}

	return &AzureBucket{client: client, container: cfg.Container}, nil
}

// Name implements Bucket.
func (b *AzureBucket) Name() string {
	return "azblob://" + b.container
}

// Put implements Bucket.
func (b *AzureBucket) Put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := b.client.UploadBuffer(ctx, b.container, key, data, &blockblob.UploadBufferOptions{
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: &contentType},
	})
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) {
			return fmt.Errorf("failed to upload blob: %s (status %d): %w", respErr.ErrorCode, respErr.StatusCode, err)
		}
		return fmt.Errorf("failed to upload blob: %w", err)
	}
	return nil
}
