package services

import (
	"appcommerce/docstore"
	"appcommerce/imagecache"
	"appcommerce/live"
	"context"
	"fmt"
	"log/slog"
)

// subscribeList keeps a live list in step with a collection query until the
// value is closed. A subscription error ends it, keeping the last list.
func subscribeList[T any](parent context.Context, store docstore.Store, q docstore.Query, logger *slog.Logger) *live.Live[[]T] {
	ctx, out := live.Start[[]T](parent)

	stop, err := store.Subscribe(ctx, q, func(docs []docstore.Document, err error) {
		if err != nil {
			logger.Warn("subscription ended", "collection", q.Collection, "error", err)
			out.Reject(fmt.Errorf("%s: %w", q.Collection, err))
			return
		}
		items, err := docstore.DecodeAll[T](docs)
		if err != nil {
			out.Reject(err)
			return
		}
		out.Publish(items)
	})
	if err != nil {
		out.Reject(fmt.Errorf("subscribe %s: %w", q.Collection, err))
		return out
	}
	context.AfterFunc(ctx, stop)
	return out
}

// resolveInto shows the placeholder on target, resolves path to a download
// URL and loads it. It publishes the URL as soon as it is known; an image that
// then fails to load fails the value but keeps the URL.
func resolveInto(parent context.Context, blobs BlobStore, images ImageLoader, path string, target imagecache.Target, req imagecache.Request) *live.Live[string] {
	ctx, out := live.Start[string](parent)
	if !req.Placeholder.Empty() {
		target.SetImage(req.Placeholder)
	}

	go func() {
		url, err := blobs.DownloadURL(ctx, path)
		if err != nil {
			if ctx.Err() == nil && !req.Error.Empty() {
				target.SetImage(req.Error)
			}
			out.Reject(fmt.Errorf("resolve %s: %w", path, err))
			return
		}
		out.Publish(url)

		load := req
		load.Placeholder = imagecache.Image{}
		if err := images.Load(ctx, url, target, load); err != nil {
			out.Reject(fmt.Errorf("load %s: %w", path, err))
			return
		}
		out.Complete()
	}()
	return out
}
