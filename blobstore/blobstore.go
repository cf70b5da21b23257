// Package blobstore uploads path-addressed objects and resolves them to
// short-lived download URLs.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
)

var (
	ErrNotFound = errors.New("object not found")
	ErrBadPath  = errors.New("invalid object path")
)

// Object describes an uploaded blob.
type Object struct {
	Path        string
	Size        int64
	ContentType string
}

type Store interface {
	Upload(ctx context.Context, path string, r io.Reader) (Object, error)
	DownloadURL(ctx context.Context, path string) (string, error)
}

// ProductImagePath is where a product's images live, relative paths included.
// Paths that resolve outside products/{id}/ are rejected.
func ProductImagePath(productID, relative string) (string, error) {
	if productID == "" || strings.Contains(productID, "/") || productID == "." || productID == ".." {
		return "", fmt.Errorf("%w: product id %q", ErrBadPath, productID)
	}
	prefix := path.Join("products", productID) + "/"
	p := path.Join(prefix, strings.TrimPrefix(relative, "/"))
	if !strings.HasPrefix(p, prefix) {
		return "", fmt.Errorf("%w: %q", ErrBadPath, relative)
	}
	return p, nil
}

func ProfileImagePath(userID string) string {
	return path.Join("users", userID, "profile.jpg")
}

// ContentTypeFor guesses a content type from the object name.
func ContentTypeFor(key string) string {
	s := strings.ToLower(strings.TrimSpace(key))
	if i := strings.Index(s, "?"); i >= 0 {
		s = s[:i]
	}
	switch {
	case strings.HasSuffix(s, ".png"):
		return "image/png"
	case strings.HasSuffix(s, ".jpg"), strings.HasSuffix(s, ".jpeg"):
		return "image/jpeg"
	case strings.HasSuffix(s, ".webp"):
		return "image/webp"
	case strings.HasSuffix(s, ".gif"):
		return "image/gif"
	case strings.HasSuffix(s, ".svg"):
		return "image/svg+xml"
	case strings.HasSuffix(s, ".json"):
		return "application/json"
	default:
		return ""
	}
}
