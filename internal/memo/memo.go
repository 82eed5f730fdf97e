// Package memo caches the result of a zero-argument load for the life of the
// process. Only successes are kept: a failed load is reported to every caller
// waiting on it and the next call tries again.
package memo

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// LoadFunc produces the value to cache.
type LoadFunc[T any] func(ctx context.Context) (T, error)

// Loader is a single-initialization cache around a LoadFunc.
type Loader[T any] struct {
	load  LoadFunc[T]
	group singleflight.Group
	now   func() time.Time

	mu       sync.RWMutex
	value    T
	loaded   bool
	loadedAt time.Time
}

// New wraps load.
func New[T any](load LoadFunc[T]) *Loader[T] {
	return &Loader[T]{load: load, now: time.Now}
}

// Get returns the cached value, loading it first if needed. Concurrent first
// calls share a single load. The shared load does not inherit ctx
// cancellation, so one caller giving up never fails the others; ctx only
// bounds how long this caller waits.
func (l *Loader[T]) Get(ctx context.Context) (T, error) {
	var zero T
	if v, ok := l.cached(); ok {
		return v, nil
	}

	loadCtx := context.WithoutCancel(ctx)
	ch := l.group.DoChan("load", func() (any, error) {
		if v, ok := l.cached(); ok {
			return v, nil
		}
		v, err := l.load(loadCtx)
		if err != nil {
			return nil, err
		}
		l.mu.Lock()
		l.value, l.loaded, l.loadedAt = v, true, l.now()
		l.mu.Unlock()
		return v, nil
	})

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	}
}

// Reset drops the cached value so the next Get loads again.
func (l *Loader[T]) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	var zero T
	l.value, l.loaded, l.loadedAt = zero, false, time.Time{}
}

// LoadedAt reports when the cached value was produced.
func (l *Loader[T]) LoadedAt() (time.Time, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.loadedAt, l.loaded
}

func (l *Loader[T]) cached() (T, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.value, l.loaded
}
