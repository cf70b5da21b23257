package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCS stores objects in one Cloud Storage bucket and hands out V4 signed
// GET URLs.
type GCS struct {
	client *storage.Client
	bucket string
	ttl    time.Duration
	logger *slog.Logger
}

func NewGCS(ctx context.Context, bucket string, ttl time.Duration, logger *slog.Logger, opts ...option.ClientOption) (*GCS, error) {
	if bucket == "" {
		return nil, fmt.Errorf("missing storage bucket name")
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}

	opts = append(opts, option.WithScopes(storage.ScopeReadWrite))
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	return &GCS{
		client: client,
		bucket: bucket,
		ttl:    ttl,
		logger: logger.With("component", "blobstore.gcs", "bucket", bucket),
	}, nil
}

func (g *GCS) Close() error {
	return g.client.Close()
}

func (g *GCS) Upload(ctx context.Context, path string, r io.Reader) (Object, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := g.client.Bucket(g.bucket).Object(path).NewWriter(ctx)
	if ct := ContentTypeFor(path); ct != "" {
		w.ContentType = ct
	}
	n, err := io.Copy(w, r)
	if err != nil {
		_ = w.Close()
		return Object{}, fmt.Errorf("failed to write data to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return Object{}, fmt.Errorf("failed to close GCS writer: %w", err)
	}

	g.logger.Debug("object uploaded", "path", path, "bytes", n)
	return Object{Path: path, Size: n, ContentType: w.ContentType}, nil
}

func (g *GCS) DownloadURL(ctx context.Context, path string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	bkt := g.client.Bucket(g.bucket)
	if _, err := bkt.Object(path).Attrs(ctx); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return "", fmt.Errorf("%s: %w", path, ErrNotFound)
		}
		return "", fmt.Errorf("stat %s: %w", path, err)
	}

	url, err := bkt.SignedURL(path, &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  http.MethodGet,
		Expires: time.Now().Add(g.ttl),
	})
	if err != nil {
		return "", fmt.Errorf("sign %s: %w", path, err)
	}
	return url, nil
}
