package archive

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	gcs "cloud.google.com/go/storage"
)

// Sink delivers a finished archive somewhere and reports where.
type Sink interface {
	Put(ctx context.Context, name string, data []byte) (string, error)
}

// FileSink writes archives into a local directory.
type FileSink struct {
	Dir string
}

// Put writes data to Dir/name.
func (s FileSink) Put(_ context.Context, name string, data []byte) (string, error) {
	dir := s.Dir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", fmt.Errorf("failed to create export directory: %w", err)
	}

	target := filepath.Join(dir, filepath.Base(name))
	if err := os.WriteFile(target, data, 0600); err != nil {
		return "", fmt.Errorf("failed to write archive: %w", err)
	}
	return target, nil
}

// objectWriter is the part of the Cloud Storage client a GCSSink needs.
type objectWriter interface {
	NewWriter(ctx context.Context, bucket, object string) objectUpload
}

type objectUpload interface {
	Write(p []byte) (int, error)
	Close() error
}

type gcsClient struct {
	client *gcs.Client
}

func (c gcsClient) NewWriter(ctx context.Context, bucket, object string) objectUpload {
	w := c.client.Bucket(bucket).Object(object).NewWriter(ctx)
	w.ContentType = "application/zip"
	return w
}

// GCSSink uploads archives to a Cloud Storage bucket.
type GCSSink struct {
	bucket string
	prefix string
	client objectWriter
}

// NewGCSSink constructs a GCSSink backed by the provided Cloud Storage client.
func NewGCSSink(client *gcs.Client, bucket, prefix string) (*GCSSink, error) {
	if client == nil {
		return nil, errors.New("gcs sink: client is required")
	}
	return newGCSSink(gcsClient{client: client}, bucket, prefix)
}

func newGCSSink(client objectWriter, bucket, prefix string) (*GCSSink, error) {
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errors.New("gcs sink: bucket is required")
	}
	return &GCSSink{bucket: bucket, prefix: strings.Trim(prefix, "/"), client: client}, nil
}

// Put uploads data and returns its gs:// URL.
func (s *GCSSink) Put(ctx context.Context, name string, data []byte) (string, error) {
	object := path.Base(name)
	if s.prefix != "" {
		object = s.prefix + "/" + object
	}

	w := s.client.NewWriter(ctx, s.bucket, object)
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("gcs sink: failed to upload %s: %w", object, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("gcs sink: failed to finalize %s: %w", object, err)
	}
	return "gs://" + s.bucket + "/" + object, nil
}
