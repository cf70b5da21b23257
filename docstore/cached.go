package docstore

import (
	"context"
	"fmt"
	"log/slog"
)

// Cached writes every successful remote read and write through to a local
// Cache and answers GetCached from that cache alone.
type Cached struct {
	remote Store
	cache  Cache
	logger *slog.Logger
}

func NewCached(remote Store, cache Cache, logger *slog.Logger) *Cached {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cached{
		remote: remote,
		cache:  cache,
		logger: logger.With("component", "docstore.cached"),
	}
}

func (c *Cached) Get(ctx context.Context, path string) (Document, error) {
	doc, err := c.remote.Get(ctx, path)
	if err != nil {
		return Document{}, err
	}
	c.put(ctx, doc)
	return doc, nil
}

func (c *Cached) GetCached(ctx context.Context, path string) (Document, error) {
	if _, _, err := Split(path); err != nil {
		return Document{}, err
	}
	doc, ok, err := c.cache.Lookup(ctx, path)
	if err != nil {
		return Document{}, fmt.Errorf("cache lookup %s: %w", path, err)
	}
	if !ok {
		return Document{}, fmt.Errorf("%s: %w", path, ErrNotCached)
	}
	return doc, nil
}

func (c *Cached) Query(ctx context.Context, q Query) ([]Document, error) {
	docs, err := c.remote.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	for _, d := range docs {
		c.put(ctx, d)
	}
	return docs, nil
}

func (c *Cached) Subscribe(ctx context.Context, q Query, fn Listener) (func(), error) {
	return c.remote.Subscribe(ctx, q, func(docs []Document, err error) {
		if err == nil {
			for _, d := range docs {
				c.put(ctx, d)
			}
		}
		fn(docs, err)
	})
}

func (c *Cached) Set(ctx context.Context, path string, data any) error {
	if err := c.remote.Set(ctx, path, data); err != nil {
		return err
	}
	c.putData(ctx, path, data)
	return nil
}

func (c *Cached) Add(ctx context.Context, collection string, data any) (string, error) {
	id, err := c.remote.Add(ctx, collection, data)
	if err != nil {
		return "", err
	}
	c.putData(ctx, Join(collection, id), data)
	return id, nil
}

func (c *Cached) putData(ctx context.Context, path string, data any) {
	_, id, err := Split(path)
	if err != nil {
		return
	}
	d, err := ToData(data)
	if err != nil {
		c.logger.Warn("cache encode failed", "path", path, "error", err)
		return
	}
	c.put(ctx, Document{ID: id, Path: path, Data: d})
}

// put never fails the caller; a stale cache only costs a later cache miss.
func (c *Cached) put(ctx context.Context, doc Document) {
	if err := c.cache.Put(context.WithoutCancel(ctx), doc); err != nil {
		c.logger.Warn("cache write failed", "path", doc.Path, "error", err)
	}
}
