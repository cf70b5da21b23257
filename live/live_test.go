package live

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLive_PublishAndCurrent(t *testing.T) {
	l := New[int](nil)

	_, ok := l.Current()
	assert.False(t, ok)

	assert.True(t, l.Publish(1))
	assert.True(t, l.Publish(2))

	r, ok := l.Current()
	require.True(t, ok)
	assert.Equal(t, 2, r.Value)
	assert.NoError(t, r.Err)
	assert.Equal(t, uint64(2), l.Version())
}

func TestLive_FailKeepsLastValue(t *testing.T) {
	l := New[string](nil)
	l.Publish("cached")

	boom := errors.New("boom")
	l.Fail(boom)

	r, _ := l.Current()
	assert.Equal(t, "cached", r.Value)
	assert.ErrorIs(t, r.Err, boom)
	assert.False(t, r.OK())
}

func TestLive_FailNeverRestoresOlderValue(t *testing.T) {
	l := New[int](nil)
	ctx := context.Background()
	l.Publish(0)

	const n = 500
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 1; i <= n; i++ {
			l.Publish(i)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			l.Fail(errors.New("flaky"))
		}
	}()

	done := make(chan []int)
	go func() {
		var seen []int
		var v uint64
		for {
			r, next, err := l.Next(ctx, v)
			if err != nil {
				done <- seen
				return
			}
			seen = append(seen, r.Value)
			v = next
		}
	}()

	wg.Wait()
	l.Complete()
	seen := <-done

	for i := 1; i < len(seen); i++ {
		require.GreaterOrEqual(t, seen[i], seen[i-1], "value went backwards at snapshot %d", i)
	}
	r, _ := l.Current()
	assert.Equal(t, n, r.Value)
}

func TestLive_CloseMakesProducerNoop(t *testing.T) {
	cancelled := false
	l := New[int](func() { cancelled = true })
	l.Publish(1)

	l.Close()
	assert.True(t, cancelled)
	assert.True(t, l.Closed())

	assert.False(t, l.Publish(2))
	assert.False(t, l.Fail(errors.New("late")))
	l.Complete()

	r, _ := l.Current()
	assert.Equal(t, 1, r.Value)
	assert.NoError(t, r.Err)
	assert.Equal(t, uint64(1), l.Version())

	select {
	case <-l.Done():
	default:
		t.Fatal("Done should be closed after Close")
	}

	// second Close must not panic
	l.Close()
}

func TestLive_CompleteStopsUpdates(t *testing.T) {
	l := New[int](nil)
	l.Resolve(7)

	assert.False(t, l.Publish(8))

	v, err := l.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestLive_AwaitRejected(t *testing.T) {
	l := New[int](nil)
	boom := errors.New("boom")

	go func() {
		time.Sleep(10 * time.Millisecond)
		l.Reject(boom)
	}()

	_, err := l.Await(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestLive_AwaitClosedBeforeCompletion(t *testing.T) {
	l := New[int](nil)
	l.Publish(3)
	l.Close()

	v, err := l.Await(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
	assert.Equal(t, 3, v)
}

func TestLive_AwaitContextTimeout(t *testing.T) {
	l := New[int](nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := l.Await(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLive_NextSeesEveryVersionInOrder(t *testing.T) {
	l := New[int](nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(1)
	var got []int
	ack := make(chan struct{})
	go func() {
		defer wg.Done()
		_ = l.Watch(ctx, func(r Result[int]) bool {
			got = append(got, r.Value)
			ack <- struct{}{}
			return r.Value < 3
		})
	}()

	for i := 1; i <= 3; i++ {
		l.Publish(i)
		// publications between reads are conflated, so wait for each one
		<-ack
	}
	wg.Wait()

	assert.Equal(t, []int{1, 2, 3}, got)
}

func TestLive_NextAfterCompletion(t *testing.T) {
	l := New[int](nil)
	l.Resolve(1)

	r, v, err := l.Next(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, r.Value)

	_, _, err = l.Next(context.Background(), v)
	assert.ErrorIs(t, err, ErrDone)
}

func TestLive_StartCancelsContextOnClose(t *testing.T) {
	ctx, l := Start[int](context.Background())
	l.Close()

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context not cancelled")
	}
}

func TestResolved(t *testing.T) {
	boom := errors.New("boom")
	l := Resolved(Result[int]{Value: 4, Err: boom})

	v, err := l.Await(context.Background())
	assert.Equal(t, 4, v)
	assert.ErrorIs(t, err, boom)
}

func TestLive_ChangedClosesOnPublish(t *testing.T) {
	l := New[int](nil)
	ch := l.Changed()

	select {
	case <-ch:
		t.Fatal("changed before publish")
	default:
	}

	l.Publish(1)
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("changed not closed after publish")
	}
	assert.NotEqual(t, ch, l.Changed())
}
