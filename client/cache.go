package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"reflect"
	"sync"
)

// Patch is the partial-update shape for T; the types package provides one
// per kind (*types.TaskPatch for types.Task, and so on).
type Patch[T any] interface {
	Apply(*T) error
}

type invalidator interface {
	path() string
	Invalidate()
	Refresh(ctx context.Context) error
	snapshot() (string, json.RawMessage, error)
	restore(json.RawMessage) error
}

// Collection is the per-kind cache: the fetched items, a loading flag, and
// the last error. Reads refetch when the cache is stale; mutations apply
// optimistically and revert on failure. A change notification for the kind
// always invalidates, regardless of which session caused it.
type Collection[T any] struct {
	client   *Client
	resource string

	mu      sync.Mutex
	items   []T
	loaded  bool
	stale   bool
	loading bool
	lastErr error
}

func newCollection[T any](c *Client, resource string) *Collection[T] {
	return &Collection[T]{client: c, resource: resource}
}

func (col *Collection[T]) path() string { return "/api/" + col.resource }

// Items returns the cached collection, fetching first if it was never
// loaded or a notification marked it stale.
func (col *Collection[T]) Items(ctx context.Context) ([]T, error) {
	col.mu.Lock()
	needFetch := !col.loaded || col.stale
	col.mu.Unlock()

	if needFetch {
		if err := col.Refresh(ctx); err != nil {
			return nil, err
		}
	}

	col.mu.Lock()
	defer col.mu.Unlock()
	return append([]T(nil), col.items...), nil
}

// Refresh refetches unconditionally. It is a pure read; running it any
// number of times with no intervening mutation leaves the cache identical.
func (col *Collection[T]) Refresh(ctx context.Context) error {
	col.mu.Lock()
	col.loading = true
	col.mu.Unlock()

	var items []T
	err := col.client.do(ctx, http.MethodGet, col.path(), nil, &items)

	col.mu.Lock()
	defer col.mu.Unlock()
	col.loading = false
	col.lastErr = err
	if err != nil {
		return err
	}
	if items == nil {
		items = []T{}
	}
	col.items = items
	col.loaded = true
	col.stale = false
	return nil
}

// Invalidate marks the cache stale; the next read refetches. Notification
// payloads are never merged in directly, the refetch is the source of truth.
func (col *Collection[T]) Invalidate() {
	col.mu.Lock()
	defer col.mu.Unlock()
	col.stale = true
}

// Loading reports whether a fetch is in flight.
func (col *Collection[T]) Loading() bool {
	col.mu.Lock()
	defer col.mu.Unlock()
	return col.loading
}

// Err returns the last fetch error, if any.
func (col *Collection[T]) Err() error {
	col.mu.Lock()
	defer col.mu.Unlock()
	return col.lastErr
}

// Get fetches a single resource by id, bypassing the cache.
func (col *Collection[T]) Get(ctx context.Context, id string) (T, error) {
	var item T
	err := col.client.do(ctx, http.MethodGet, col.path()+"/"+id, nil, &item)
	return item, err
}

// Range queries by the kind's primary timestamp, bypassing the cache. Bounds
// are YYYY-MM-DD dates or RFC 3339 timestamps, inclusive on both ends. Only
// events and focus sessions support it.
func (col *Collection[T]) Range(ctx context.Context, start, end string) ([]T, error) {
	var items []T
	q := url.Values{"startDate": {start}, "endDate": {end}}
	err := col.client.do(ctx, http.MethodGet, col.path()+"/range?"+q.Encode(), nil, &items)
	return items, err
}

// Create posts the new resource. The local guess is appended immediately;
// when the server responds, the guess is replaced by the authoritative
// document, and on failure it is rolled back and the cache marked stale so
// the next read resyncs.
func (col *Collection[T]) Create(ctx context.Context, item T) (T, error) {
	prev := col.optimistic(func(items []T) []T {
		return append(items, item)
	})

	var created T
	err := col.client.do(ctx, http.MethodPost, col.path(), item, &created)
	if err != nil {
		col.revert(prev)
		return created, err
	}

	col.reconcile(func(it T) bool { return reflect.DeepEqual(it, item) }, created)
	return created, nil
}

// Update applies the patch to the cached copy immediately, then sends the
// partial update. On failure the pre-optimistic state comes back and the
// cache resyncs; on success the server's document replaces the guess.
func (col *Collection[T]) Update(ctx context.Context, id string, patch Patch[T], match func(T) bool) (T, error) {
	prev := col.optimistic(func(items []T) []T {
		for i := range items {
			if match(items[i]) {
				patch.Apply(&items[i])
				break
			}
		}
		return items
	})

	var updated T
	err := col.client.do(ctx, http.MethodPut, col.path()+"/"+id, patch, &updated)
	if err != nil {
		col.revert(prev)
		return updated, err
	}

	col.reconcile(match, updated)
	return updated, nil
}

// Delete removes the resource optimistically; on failure the cache rolls
// back and resyncs.
func (col *Collection[T]) Delete(ctx context.Context, id string, match func(T) bool) error {
	prev := col.optimistic(func(items []T) []T {
		kept := items[:0]
		for _, it := range items {
			if !match(it) {
				kept = append(kept, it)
			}
		}
		return kept
	})

	if err := col.client.do(ctx, http.MethodDelete, col.path()+"/"+id, nil, nil); err != nil {
		col.revert(prev)
		return err
	}
	return nil
}

// reconcile swaps the server's document in for the cached entry find
// identifies. A refetch may have replaced the slice while the request was in
// flight; when the entry is gone, the cache goes stale instead of clobbering
// whatever sits at its old position.
func (col *Collection[T]) reconcile(find func(T) bool, server T) {
	col.mu.Lock()
	defer col.mu.Unlock()
	for i := range col.items {
		if find(col.items[i]) {
			col.items[i] = server
			return
		}
	}
	col.stale = true
}

// optimistic applies a local mutation and returns the pre-mutation items for
// revert.
func (col *Collection[T]) optimistic(mutate func([]T) []T) []T {
	col.mu.Lock()
	defer col.mu.Unlock()
	prev := append([]T(nil), col.items...)
	col.items = mutate(append([]T(nil), col.items...))
	return prev
}

// revert restores the pre-optimistic state and marks the cache stale: the
// optimistic guess is never silently kept after a failed mutation.
func (col *Collection[T]) revert(prev []T) {
	col.mu.Lock()
	defer col.mu.Unlock()
	col.items = prev
	col.stale = true
}

func (col *Collection[T]) snapshot() (string, json.RawMessage, error) {
	col.mu.Lock()
	defer col.mu.Unlock()
	items := col.items
	if items == nil {
		items = []T{}
	}
	raw, err := json.Marshal(items)
	return col.resource, raw, err
}

func (col *Collection[T]) restore(raw json.RawMessage) error {
	var items []T
	if err := json.Unmarshal(raw, &items); err != nil {
		return err
	}
	col.mu.Lock()
	defer col.mu.Unlock()
	col.items = items
	col.loaded = true
	col.stale = false
	return nil
}
