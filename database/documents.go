package database

import (
	"appcommerce/docstore"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ==================== DOCUMENT CACHE ====================

// DocumentCache stores remote documents locally so cache-only reads work
// without a network round trip. It implements docstore.Cache.
type DocumentCache struct {
	db     *DB
	maxAge time.Duration
}

// NewDocumentCache returns a cache whose entries expire after maxAge.
// A zero maxAge keeps entries forever.
func NewDocumentCache(db *DB, maxAge time.Duration) *DocumentCache {
	return &DocumentCache{db: db, maxAge: maxAge}
}

var _ docstore.Cache = (*DocumentCache)(nil)

// Put inserts or replaces the cached copy of doc
func (c *DocumentCache) Put(ctx context.Context, doc docstore.Document) error {
	coll, id, err := docstore.Split(doc.Path)
	if err != nil {
		return err
	}
	data, err := json.Marshal(doc.Data)
	if err != nil {
		return fmt.Errorf("encode %s: %w", doc.Path, err)
	}

	_, err = c.db.ExecContext(ctx, `
		INSERT INTO documents (path, collection, doc_id, data, cached_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			data = excluded.data,
			cached_at = excluded.cached_at
	`, doc.Path, coll, id, string(data), time.Now().UTC())
	return err
}

// Lookup returns the cached copy of path, if present and fresh
func (c *DocumentCache) Lookup(ctx context.Context, path string) (docstore.Document, bool, error) {
	var id, raw string
	var cachedAt time.Time

	err := c.db.QueryRowContext(ctx, `
		SELECT doc_id, data, cached_at
		FROM documents WHERE path = ?
	`, path).Scan(&id, &raw, &cachedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return docstore.Document{}, false, nil
	}
	if err != nil {
		return docstore.Document{}, false, err
	}

	if c.maxAge > 0 && time.Since(cachedAt) > c.maxAge {
		return docstore.Document{}, false, nil
	}

	var data map[string]any
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return docstore.Document{}, false, fmt.Errorf("decode cached %s: %w", path, err)
	}

	return docstore.Document{ID: id, Path: path, Data: data}, true, nil
}

// Evict removes entries cached before cutoff and reports how many went
func (c *DocumentCache) Evict(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := c.db.ExecContext(ctx, `DELETE FROM documents WHERE cached_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
