// Package live holds observable values that are filled in by asynchronous
// producers and read by any number of consumers.
//
// A Live is owned by one request chain. The producer calls Publish, Fail and
// Complete; the consumer reads with Current, Next, Watch or Await and disposes
// of the value with Close. Once closed, every producer call is a no-op, so
// late completions from the store never reach a discarded consumer.
package live

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrClosed is returned to consumers of a value that was disposed of
	// before its producer completed.
	ErrClosed = errors.New("live: closed")
	// ErrDone is returned by Next when the producer completed and no newer
	// version will be published.
	ErrDone = errors.New("live: no further updates")
)

// Result is a discriminated success or failure. A failed Result may still
// carry the last good Value.
type Result[T any] struct {
	Value T
	Err   error
}

func (r Result[T]) OK() bool { return r.Err == nil }

type Live[T any] struct {
	mu        sync.Mutex
	cur       Result[T]
	has       bool
	version   uint64
	completed bool
	closed    bool
	changed   chan struct{}
	done      chan struct{}
	cancel    context.CancelFunc
}

// New returns an empty value. cancel, if non-nil, is called once when the
// value is completed or closed and should stop whatever feeds it.
func New[T any](cancel context.CancelFunc) *Live[T] {
	return &Live[T]{
		changed: make(chan struct{}),
		done:    make(chan struct{}),
		cancel:  cancel,
	}
}

// Start derives a cancellable context from parent and ties it to a new value.
// The producer should use the returned context for every upstream call.
func Start[T any](parent context.Context) (context.Context, *Live[T]) {
	ctx, cancel := context.WithCancel(parent)
	return ctx, New[T](cancel)
}

// Resolved returns a value that already completed with r.
func Resolved[T any](r Result[T]) *Live[T] {
	l := New[T](nil)
	l.set(r)
	l.Complete()
	return l
}

// Publish replaces the current value. It reports false if the value no
// longer accepts updates.
func (l *Live[T]) Publish(v T) bool {
	return l.set(Result[T]{Value: v})
}

// Fail records err while keeping the last published value.
func (l *Live[T]) Fail(err error) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.setLocked(Result[T]{Value: l.cur.Value, Err: err})
}

// PublishResult replaces the current value and error together.
func (l *Live[T]) PublishResult(r Result[T]) bool {
	return l.set(r)
}

func (l *Live[T]) set(r Result[T]) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.setLocked(r)
}

// setLocked is set for callers that already hold mu.
func (l *Live[T]) setLocked(r Result[T]) bool {
	if l.closed || l.completed {
		return false
	}
	l.cur = r
	l.has = true
	l.version++
	l.broadcast()
	return true
}

// broadcast wakes every waiter. Caller holds mu.
func (l *Live[T]) broadcast() {
	close(l.changed)
	l.changed = make(chan struct{})
}

// Complete marks the current value as final.
func (l *Live[T]) Complete() {
	l.mu.Lock()
	if l.closed || l.completed {
		l.mu.Unlock()
		return
	}
	l.completed = true
	close(l.done)
	l.broadcast()
	cancel := l.cancel
	l.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// Resolve publishes v and completes.
func (l *Live[T]) Resolve(v T) {
	l.Publish(v)
	l.Complete()
}

// Reject fails with err and completes.
func (l *Live[T]) Reject(err error) {
	l.Fail(err)
	l.Complete()
}

// Close disposes of the value and cancels its producer. Safe to call more
// than once and after Complete.
func (l *Live[T]) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	if !l.completed {
		close(l.done)
		l.broadcast()
	}
	cancel := l.cancel
	l.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// Closed reports whether Close has been called.
func (l *Live[T]) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// Current returns the latest result and whether anything was published.
func (l *Live[T]) Current() (Result[T], bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cur, l.has
}

// Version counts publications. It never changes after Close.
func (l *Live[T]) Version() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.version
}

// Changed returns a channel that is closed on the next publication, Complete
// or Close.
func (l *Live[T]) Changed() <-chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.changed
}

// Done is closed once the value is completed or closed.
func (l *Live[T]) Done() <-chan struct{} {
	return l.done
}

// Next blocks until a version newer than after is available and returns it.
// It returns ErrDone or ErrClosed once nothing newer can arrive.
func (l *Live[T]) Next(ctx context.Context, after uint64) (Result[T], uint64, error) {
	for {
		l.mu.Lock()
		if l.version > after && !l.closed {
			r, v := l.cur, l.version
			l.mu.Unlock()
			return r, v, nil
		}
		if l.closed {
			v := l.version
			l.mu.Unlock()
			return Result[T]{}, v, ErrClosed
		}
		if l.completed {
			v := l.version
			l.mu.Unlock()
			return Result[T]{}, v, ErrDone
		}
		ch := l.changed
		l.mu.Unlock()

		select {
		case <-ctx.Done():
			return Result[T]{}, after, ctx.Err()
		case <-ch:
		}
	}
}

// Watch calls fn for every publication, starting with the current one, until
// fn returns false, the value finishes, or ctx ends.
func (l *Live[T]) Watch(ctx context.Context, fn func(Result[T]) bool) error {
	var seen uint64
	for {
		r, v, err := l.Next(ctx, seen)
		if errors.Is(err, ErrDone) {
			return nil
		}
		if err != nil {
			return err
		}
		seen = v
		if !fn(r) {
			return nil
		}
	}
}

// Await blocks until the producer completes and returns the final result.
func (l *Live[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case <-l.done:
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.completed {
		return l.cur.Value, ErrClosed
	}
	return l.cur.Value, l.cur.Err
}
