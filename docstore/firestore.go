package docstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Firestore is the production Store. The server SDK keeps no local cache,
// so GetCached always misses; wrap it in Cached for cache-only reads.
type Firestore struct {
	client *firestore.Client
	logger *slog.Logger
}

func NewFirestore(ctx context.Context, projectID string, logger *slog.Logger, opts ...option.ClientOption) (*Firestore, error) {
	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Firestore{client: client, logger: logger.With("component", "docstore.firestore")}, nil
}

func (f *Firestore) Close() error {
	return f.client.Close()
}

func (f *Firestore) doc(path string) (*firestore.DocumentRef, error) {
	if _, _, err := Split(path); err != nil {
		return nil, err
	}
	ref := f.client.Doc(path)
	if ref == nil {
		return nil, fmt.Errorf("%w: %q", ErrBadPath, path)
	}
	return ref, nil
}

func (f *Firestore) query(q Query) (firestore.Query, error) {
	coll := f.client.Collection(q.Collection)
	if coll == nil {
		return firestore.Query{}, fmt.Errorf("%w: %q", ErrBadPath, q.Collection)
	}
	query := coll.Query
	for _, flt := range q.Filters {
		query = query.Where(flt.Field, "==", flt.Value)
	}
	return query, nil
}

func (f *Firestore) Get(ctx context.Context, path string) (Document, error) {
	ref, err := f.doc(path)
	if err != nil {
		return Document{}, err
	}
	snap, err := ref.Get(ctx)
	if status.Code(err) == codes.NotFound {
		return Document{}, fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	if err != nil {
		return Document{}, fmt.Errorf("get %s: %w", path, err)
	}
	return fromSnapshot(snap), nil
}

func (f *Firestore) GetCached(ctx context.Context, path string) (Document, error) {
	return Document{}, fmt.Errorf("%s: %w", path, ErrNotCached)
}

func (f *Firestore) Query(ctx context.Context, q Query) ([]Document, error) {
	query, err := f.query(q)
	if err != nil {
		return nil, err
	}
	it := query.Documents(ctx)
	defer it.Stop()

	var docs []Document
	for {
		snap, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", q.Collection, err)
		}
		docs = append(docs, fromSnapshot(snap))
	}
	return docs, nil
}

func (f *Firestore) Subscribe(ctx context.Context, q Query, fn Listener) (func(), error) {
	query, err := f.query(q)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	it := query.Snapshots(ctx)

	go func() {
		defer it.Stop()
		for {
			qs, err := it.Next()
			if err != nil {
				if ctx.Err() != nil || status.Code(err) == codes.Canceled || errors.Is(err, iterator.Done) {
					return
				}
				f.logger.Warn("subscription ended", "collection", q.Collection, "error", err)
				fn(nil, fmt.Errorf("subscribe %s: %w", q.Collection, err))
				return
			}

			snaps, err := qs.Documents.GetAll()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				fn(nil, fmt.Errorf("read snapshot %s: %w", q.Collection, err))
				return
			}
			docs := make([]Document, 0, len(snaps))
			for _, s := range snaps {
				docs = append(docs, fromSnapshot(s))
			}
			fn(docs, nil)
		}
	}()

	return cancel, nil
}

func (f *Firestore) Set(ctx context.Context, path string, data any) error {
	ref, err := f.doc(path)
	if err != nil {
		return err
	}
	d, err := ToData(data)
	if err != nil {
		return err
	}
	if _, err := ref.Set(ctx, d); err != nil {
		return fmt.Errorf("set %s: %w", path, err)
	}
	return nil
}

func (f *Firestore) Add(ctx context.Context, collection string, data any) (string, error) {
	coll := f.client.Collection(collection)
	if coll == nil {
		return "", fmt.Errorf("%w: %q", ErrBadPath, collection)
	}
	d, err := ToData(data)
	if err != nil {
		return "", err
	}
	ref, _, err := coll.Add(ctx, d)
	if err != nil {
		return "", fmt.Errorf("add to %s: %w", collection, err)
	}
	return ref.ID, nil
}

func fromSnapshot(s *firestore.DocumentSnapshot) Document {
	return Document{
		ID:   s.Ref.ID,
		Path: refPath(s.Ref),
		Data: normalizeRefs(s.Data()).(map[string]any),
	}
}

// refPath strips the "projects/.../documents/" prefix from a reference.
func refPath(ref *firestore.DocumentRef) string {
	const marker = "/documents/"
	if i := strings.Index(ref.Path, marker); i >= 0 {
		return ref.Path[i+len(marker):]
	}
	return ref.Path
}

// normalizeRefs replaces document references with their relative paths so
// data decodes into plain strings.
func normalizeRefs(v any) any {
	switch t := v.(type) {
	case *firestore.DocumentRef:
		if t == nil {
			return nil
		}
		return refPath(t)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = normalizeRefs(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalizeRefs(e)
		}
		return out
	default:
		return v
	}
}
