// Package prefetch keeps the local document cache warm so cache-only reads
// succeed after a cold start.
package prefetch

import (
	"appcommerce/docstore"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Cleanup is a housekeeping step run after every refresh
type Cleanup struct {
	Name string
	Run  func(ctx context.Context) (int64, error)
}

// Worker refreshes whole collections through a caching store on an adaptive
// interval: the base interval while refreshes succeed, doubling up to the max
// interval while they fail.
type Worker struct {
	store           docstore.Store
	collections     []string
	cleanups        []Cleanup
	logger          *slog.Logger
	baseInterval    time.Duration
	maxInterval     time.Duration
	currentInterval time.Duration
	running         bool
	mu              sync.Mutex
	stopChan        chan struct{}
	done            chan struct{}
}

// NewWorker creates a new prefetch worker for the given collections
func NewWorker(store docstore.Store, collections []string, baseInterval time.Duration, logger *slog.Logger) *Worker {
	if baseInterval <= 0 {
		baseInterval = 5 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		store:           store,
		collections:     collections,
		logger:          logger.With("component", "prefetch"),
		baseInterval:    baseInterval,
		maxInterval:     6 * baseInterval,
		currentInterval: baseInterval,
	}
}

// AddCleanup registers a housekeeping step. Call before Start.
func (w *Worker) AddCleanup(c Cleanup) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.cleanups = append(w.cleanups, c)
}

// Start begins the background refresh loop
func (w *Worker) Start() {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.stopChan = make(chan struct{})
	w.done = make(chan struct{})
	w.mu.Unlock()

	w.logger.Info("starting prefetch worker", "collections", w.collections, "interval", w.baseInterval)
	go w.run()
}

// Stop halts the loop and waits for an in-flight refresh to finish
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.stopChan)
	done := w.done
	w.mu.Unlock()

	<-done
	w.logger.Info("prefetch worker stopped")
}

// Interval returns the current refresh interval
func (w *Worker) Interval() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.currentInterval
}

func (w *Worker) run() {
	defer close(w.done)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-w.stopChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	// Run immediately on start
	w.tick(ctx)

	timer := time.NewTimer(w.Interval())
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			w.tick(ctx)
			timer.Reset(w.Interval())
		case <-ctx.Done():
			return
		}
	}
}

func (w *Worker) tick(ctx context.Context) {
	err := w.RefreshNow(ctx)
	if ctx.Err() != nil {
		return
	}

	w.mu.Lock()
	prev := w.currentInterval
	w.currentInterval = nextInterval(prev, w.baseInterval, w.maxInterval, err == nil)
	next := w.currentInterval
	w.mu.Unlock()

	if err != nil {
		w.logger.Warn("prefetch failed", "error", err, "next_in", next)
	} else if prev != next {
		w.logger.Info("prefetch recovered, reset interval", "interval", next)
	}

	w.runCleanups(ctx)
}

// nextInterval resets to base on success and doubles, capped at max, on failure
func nextInterval(current, base, max time.Duration, ok bool) time.Duration {
	if ok {
		return base
	}
	next := current * 2
	if next > max {
		next = max
	}
	return next
}

// RefreshNow reads every configured collection once
func (w *Worker) RefreshNow(ctx context.Context) error {
	for _, coll := range w.collections {
		ctx, cancel := context.WithTimeout(ctx, time.Minute)
		docs, err := w.store.Query(ctx, docstore.Query{Collection: coll})
		cancel()
		if err != nil {
			return fmt.Errorf("refresh %s: %w", coll, err)
		}
		w.logger.Debug("collection refreshed", "collection", coll, "documents", len(docs))
	}
	return nil
}

func (w *Worker) runCleanups(ctx context.Context) {
	w.mu.Lock()
	cleanups := append([]Cleanup(nil), w.cleanups...)
	w.mu.Unlock()

	for _, c := range cleanups {
		n, err := c.Run(ctx)
		if err != nil {
			w.logger.Warn("cleanup failed", "cleanup", c.Name, "error", err)
			continue
		}
		if n > 0 {
			w.logger.Info("cleanup removed entries", "cleanup", c.Name, "removed", n)
		}
	}
}
