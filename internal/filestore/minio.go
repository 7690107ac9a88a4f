// Package filestore stores step file attachments as binary blobs keyed by
// file identifier.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ErrNotFound is returned when a file identifier has no stored blob.
var ErrNotFound = errors.New("file not found")

// Options configures the object-store connection.
type Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// MinioStore keeps file blobs in a single bucket, one object per file id.
type MinioStore struct {
	client *minio.Client
	bucket string
}

// NewMinioStore connects to the object store and creates the bucket if it
// does not exist yet.
func NewMinioStore(ctx context.Context, opts Options) (*MinioStore, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("connect object store: %w", err)
	}

	exists, err := client.BucketExists(ctx, opts.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, opts.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}
	return &MinioStore{client: client, bucket: opts.Bucket}, nil
}

// Put stores a blob under the file id, replacing any previous content.
func (s *MinioStore) Put(ctx context.Context, fileID, contentType string, size int64, blob io.Reader) error {
	_, err := s.client.PutObject(ctx, s.bucket, fileID, blob, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("store file %s: %w", fileID, err)
	}
	return nil
}

// Get opens a stored blob for reading. The caller closes the reader.
func (s *MinioStore) Get(ctx context.Context, fileID string) (io.ReadCloser, string, error) {
	object, err := s.client.GetObject(ctx, s.bucket, fileID, minio.GetObjectOptions{})
	if err != nil {
		return nil, "", fmt.Errorf("open file %s: %w", fileID, err)
	}
	// GetObject is lazy; Stat forces the first request so a missing key
	// surfaces here instead of on first read.
	info, err := object.Stat()
	if err != nil {
		object.Close()
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, "", ErrNotFound
		}
		return nil, "", fmt.Errorf("stat file %s: %w", fileID, err)
	}
	return object, info.ContentType, nil
}

// Delete removes a stored blob. Deleting an unknown id is not an error.
func (s *MinioStore) Delete(ctx context.Context, fileID string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, fileID, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("delete file %s: %w", fileID, err)
	}
	return nil
}
