// Package docstore is the document database boundary: path-addressed
// documents, equality-filtered collection queries, live subscriptions and a
// local cache for reads that must not hit the network.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
)

var (
	ErrNotFound  = errors.New("document not found")
	ErrNotCached = errors.New("document not in local cache")
	ErrBadPath   = errors.New("invalid document path")
)

// Document is a read-only snapshot. ID is the store key and always wins
// over any "id" field inside Data.
type Document struct {
	ID   string
	Path string
	Data map[string]any
}

// DecodeTo fills v from the document data and then sets v's ID field, if it
// has one, to the document key.
func (d Document) DecodeTo(v any) error {
	raw, err := json.Marshal(d.Data)
	if err != nil {
		return fmt.Errorf("encode %s: %w", d.Path, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode %s: %w", d.Path, err)
	}
	setID(v, d.ID)
	return nil
}

func setID(v any, id string) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return
	}
	rv = rv.Elem()
	if rv.Kind() != reflect.Struct {
		return
	}
	f := rv.FieldByName("ID")
	if f.IsValid() && f.CanSet() && f.Kind() == reflect.String {
		f.SetString(id)
	}
}

// Filter is an equality predicate on one field.
type Filter struct {
	Field string
	Value any
}

type Query struct {
	Collection string
	Filters    []Filter
}

// Matches reports whether d belongs to the query's collection and satisfies
// every filter.
func (q Query) Matches(d Document) bool {
	coll, _, err := Split(d.Path)
	if err != nil || coll != q.Collection {
		return false
	}
	for _, f := range q.Filters {
		got, ok := d.Data[f.Field]
		if !ok || !equalValues(got, f.Value) {
			return false
		}
	}
	return true
}

func equalValues(a, b any) bool {
	na, errA := normalize(a)
	nb, errB := normalize(b)
	if errA != nil || errB != nil {
		return reflect.DeepEqual(a, b)
	}
	return reflect.DeepEqual(na, nb)
}

func normalize(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	err = json.Unmarshal(raw, &out)
	return out, err
}

// Listener receives every snapshot of a subscription. A non-nil err is
// terminal: no further snapshots follow it.
type Listener func(docs []Document, err error)

type Store interface {
	Get(ctx context.Context, path string) (Document, error)
	// GetCached reads from the local cache only and returns ErrNotCached on a miss.
	GetCached(ctx context.Context, path string) (Document, error)
	Query(ctx context.Context, q Query) ([]Document, error)
	// Subscribe delivers the current result and then one snapshot per change
	// until stop is called or ctx ends.
	Subscribe(ctx context.Context, q Query, fn Listener) (stop func(), err error)
	Set(ctx context.Context, path string, data any) error
	// Add creates a document with a store-generated key and returns the key.
	Add(ctx context.Context, collection string, data any) (string, error)
}

// Cache is the local document cache behind Cached.
type Cache interface {
	Put(ctx context.Context, doc Document) error
	Lookup(ctx context.Context, path string) (Document, bool, error)
}

// Join builds a path from alternating collection and document segments.
func Join(parts ...string) string {
	return strings.Join(parts, "/")
}

// Split returns the parent collection path and the document key of path.
func Split(path string) (collection, id string, err error) {
	path = strings.Trim(path, "/")
	segs := strings.Split(path, "/")
	if len(segs) < 2 || len(segs)%2 != 0 {
		return "", "", fmt.Errorf("%w: %q", ErrBadPath, path)
	}
	for _, s := range segs {
		if s == "" {
			return "", "", fmt.Errorf("%w: %q", ErrBadPath, path)
		}
	}
	return strings.Join(segs[:len(segs)-1], "/"), segs[len(segs)-1], nil
}

// ToData converts a struct or map into document data.
func ToData(v any) (map[string]any, error) {
	if m, ok := v.(map[string]any); ok {
		return m, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DecodeAll decodes every document into a new T, assigning keys as IDs.
func DecodeAll[T any](docs []Document) ([]T, error) {
	out := make([]T, 0, len(docs))
	for _, d := range docs {
		var v T
		if err := d.DecodeTo(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
