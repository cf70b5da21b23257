package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
)

// Memory keeps objects in process. Its download URLs point at BaseURL, which
// can be served by Handler.
type Memory struct {
	BaseURL string

	mu      sync.RWMutex
	objects map[string][]byte
}

func NewMemory(baseURL string) *Memory {
	return &Memory{BaseURL: strings.TrimSuffix(baseURL, "/"), objects: make(map[string][]byte)}
}

func (m *Memory) Upload(ctx context.Context, path string, r io.Reader) (Object, error) {
	if err := ctx.Err(); err != nil {
		return Object{}, err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return Object{}, fmt.Errorf("read upload: %w", err)
	}
	m.mu.Lock()
	m.objects[path] = data
	m.mu.Unlock()
	return Object{Path: path, Size: int64(len(data)), ContentType: ContentTypeFor(path)}, nil
}

func (m *Memory) DownloadURL(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.RLock()
	_, ok := m.objects[path]
	m.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	return m.BaseURL + "/" + path + "?token=memory", nil
}

// Object returns the stored bytes for path.
func (m *Memory) Object(path string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[path]
	return data, ok
}

// Handler serves stored objects by path.
func (m *Memory) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, ok := m.Object(strings.TrimPrefix(r.URL.Path, "/"))
		if !ok {
			http.NotFound(w, r)
			return
		}
		if ct := ContentTypeFor(r.URL.Path); ct != "" {
			w.Header().Set("Content-Type", ct)
		}
		_, _ = io.Copy(w, bytes.NewReader(data))
	})
}
