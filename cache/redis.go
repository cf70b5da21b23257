// Package cache provides a Redis-backed docstore.Cache for deployments that
// share one document cache between several API instances.
package cache

import (
	"appcommerce/docstore"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const keyPrefix = "appcommerce:doc:"

type entry struct {
	ID   string         `json:"id"`
	Data map[string]any `json:"data"`
}

type Redis struct {
	rdb *goredis.Client
	ttl time.Duration
}

var _ docstore.Cache = (*Redis)(nil)

// NewRedis connects to addr and pings it. Entries expire after ttl; zero
// keeps them until evicted by Redis.
func NewRedis(ctx context.Context, addr string, ttl time.Duration) (*Redis, error) {
	if addr == "" {
		return nil, fmt.Errorf("missing redis address")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &Redis{rdb: rdb, ttl: ttl}, nil
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(rdb *goredis.Client, ttl time.Duration) *Redis {
	return &Redis{rdb: rdb, ttl: ttl}
}

func Key(path string) string {
	return keyPrefix + path
}

func (r *Redis) Put(ctx context.Context, doc docstore.Document) error {
	raw, err := json.Marshal(entry{ID: doc.ID, Data: doc.Data})
	if err != nil {
		return err
	}
	return r.rdb.Set(ctx, Key(doc.Path), raw, r.ttl).Err()
}

func (r *Redis) Lookup(ctx context.Context, path string) (docstore.Document, bool, error) {
	raw, err := r.rdb.Get(ctx, Key(path)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return docstore.Document{}, false, nil
	}
	if err != nil {
		return docstore.Document{}, false, err
	}

	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return docstore.Document{}, false, fmt.Errorf("decode cached %s: %w", path, err)
	}
	return docstore.Document{ID: e.ID, Path: path, Data: e.Data}, true, nil
}

func (r *Redis) Close() error {
	if r == nil || r.rdb == nil {
		return nil
	}
	return r.rdb.Close()
}
