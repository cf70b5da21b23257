package docstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

type memListener struct {
	q  Query
	fn Listener
}

// Memory is an in-process Store. Documents read or written through it are
// also recorded in its local cache, the way a client SDK caches what it has
// seen; Seed writes data without caching it.
//
// Listeners run synchronously on the writing goroutine and must not write
// back to the same store.
type Memory struct {
	mu        sync.RWMutex
	docs      map[string]map[string]any
	cached    map[string]bool
	listeners map[uint64]memListener
	nextID    uint64

	// deliverMu keeps snapshot delivery in write order.
	deliverMu sync.Mutex
}

func NewMemory() *Memory {
	return &Memory{
		docs:      make(map[string]map[string]any),
		cached:    make(map[string]bool),
		listeners: make(map[uint64]memListener),
	}
}

// Seed stores data at path as if it had been written by another client.
func (m *Memory) Seed(path string, data any) error {
	if _, _, err := Split(path); err != nil {
		return err
	}
	d, err := ToData(data)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.docs[path] = copyData(d)
	m.mu.Unlock()

	m.notify(path)
	return nil
}

func (m *Memory) Get(ctx context.Context, path string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	_, id, err := Split(path)
	if err != nil {
		return Document{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.docs[path]
	if !ok {
		return Document{}, fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	m.cached[path] = true
	return Document{ID: id, Path: path, Data: copyData(data)}, nil
}

func (m *Memory) GetCached(ctx context.Context, path string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	_, id, err := Split(path)
	if err != nil {
		return Document{}, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.docs[path]
	if !ok || !m.cached[path] {
		return Document{}, fmt.Errorf("%s: %w", path, ErrNotCached)
	}
	return Document{ID: id, Path: path, Data: copyData(data)}, nil
}

func (m *Memory) Query(ctx context.Context, q Query) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	docs := m.queryLocked(q)
	for _, d := range docs {
		m.cached[d.Path] = true
	}
	return docs, nil
}

func (m *Memory) queryLocked(q Query) []Document {
	var out []Document
	for path, data := range m.docs {
		_, id, _ := Split(path)
		d := Document{ID: id, Path: path, Data: data}
		if q.Matches(d) {
			d.Data = copyData(data)
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

func (m *Memory) Subscribe(ctx context.Context, q Query, fn Listener) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.deliverMu.Lock()
	m.mu.Lock()
	m.nextID++
	id := m.nextID
	m.listeners[id] = memListener{q: q, fn: fn}
	docs := m.queryLocked(q)
	m.mu.Unlock()
	fn(docs, nil)
	m.deliverMu.Unlock()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.listeners, id)
			m.mu.Unlock()
		})
	}
	context.AfterFunc(ctx, stop)
	return stop, nil
}

func (m *Memory) Set(ctx context.Context, path string, data any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, _, err := Split(path); err != nil {
		return err
	}
	d, err := ToData(data)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.docs[path] = copyData(d)
	m.cached[path] = true
	m.mu.Unlock()

	m.notify(path)
	return nil
}

func (m *Memory) Add(ctx context.Context, collection string, data any) (string, error) {
	id := uuid.New().String()
	if err := m.Set(ctx, Join(collection, id), data); err != nil {
		return "", err
	}
	return id, nil
}

// Listeners returns the number of open subscriptions.
func (m *Memory) Listeners() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.listeners)
}

func (m *Memory) notify(path string) {
	coll, _, err := Split(path)
	if err != nil {
		return
	}

	m.deliverMu.Lock()
	defer m.deliverMu.Unlock()

	type delivery struct {
		fn   Listener
		docs []Document
	}
	var pending []delivery

	m.mu.RLock()
	for _, l := range m.listeners {
		if l.q.Collection != coll {
			continue
		}
		pending = append(pending, delivery{fn: l.fn, docs: m.queryLocked(l.q)})
	}
	m.mu.RUnlock()

	for _, p := range pending {
		p.fn(p.docs, nil)
	}
}

func copyData(d map[string]any) map[string]any {
	out := make(map[string]any, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}
