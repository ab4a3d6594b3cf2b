package publish

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// FilesystemBucket stores objects as files below a root directory.
type FilesystemBucket struct {
	root string
}

// NewFilesystemBucket creates the root directory if needed.
func NewFilesystemBucket(root string) (*FilesystemBucket, error) {
	if err := os.MkdirAll(root, 0750); err != nil {
		return nil, fmt.Errorf("failed to create publish directory: %w", err)
	}
	return &FilesystemBucket{root: root}, nil
}

// Name implements Bucket.
func (b *FilesystemBucket) Name() string {
	return "file://" + b.root
}

// Put writes the object through a temporary file and a rename, so readers
// never observe a partial document.
func (b *FilesystemBucket) Put(ctx context.Context, key string, data []byte, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	target := filepath.Join(b.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(target), 0750); err != nil {
		return fmt.Errorf("failed to create object directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".publish-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to write object: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to close object: %w", err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to move object into place: %w", err)
	}
	return nil
}
