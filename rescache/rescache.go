// Package rescache implements a reference counted cache of created
// resources, such as geometry or images uploaded to a GPU.
//
// An item is created the first time it is acquired and then shared by every
// later acquirer. When the last reference is released the item is not freed
// right away. Instead it is given a time after which it may be removed. If
// the item is acquired again before then, the removal is cancelled and the
// existing item is reused. Periodically the owner calls DrainExpired to
// collect the items whose time has passed and free them.
//
// The delay avoids destroying and recreating a resource when references come
// and go in quick bursts, e.g. a render graph that touches the same mesh every
// frame. The length of the delay is chosen by the caller on each release;
// the cache does not store it.
//
// A Cache is not safe for concurrent use. It is meant to be owned by the one
// goroutine that also owns the underlying device.
package rescache

import (
	"sort"
	"time"
)

// Cache maps string keys to created payloads of type T.
type Cache[T any] struct {
	items map[string]*item[T]
}

type item[T any] struct {
	payload  T
	refcount int

	// zero unless the refcount is zero, in which case this is the time
	// after which the item may be drained.
	unloadAt time.Time
}

// Evicted is an item removed from the cache. The caller is responsible for
// releasing whatever Payload holds.
type Evicted[T any] struct {
	Key     string
	Payload T
}

// New returns an empty cache.
func New[T any]() *Cache[T] {
	return &Cache[T]{items: make(map[string]*item[T])}
}

// InsertOrIncrement returns the payload for key. If key is present its
// reference count is incremented and any pending removal is cancelled; the
// payload is not rebuilt. Otherwise factory is called to create it and the
// result is stored with a reference count of one. If factory returns an
// error nothing is stored.
func (c *Cache[T]) InsertOrIncrement(key string, factory func() (T, error)) (T, error) {
	if it, ok := c.items[key]; ok {
		it.refcount++
		it.unloadAt = time.Time{}
		return it.payload, nil
	}
	payload, err := factory()
	if err != nil {
		var zero T
		return zero, err
	}
	c.items[key] = &item[T]{payload: payload, refcount: 1}
	return payload, nil
}

// Decrement releases one reference to key and returns the remaining count.
// When the count reaches zero the item is scheduled for removal at unloadAt
// instead of being removed. ok is false if key is not in the cache, which
// means a release without a matching acquire.
//
// Releasing an item whose count is already zero changes nothing; in
// particular its scheduled time is not moved. A zero unloadAt schedules the
// item for the next drain.
func (c *Cache[T]) Decrement(key string, unloadAt time.Time) (remaining int, ok bool) {
	it, ok := c.items[key]
	if !ok {
		return 0, false
	}
	if it.refcount == 0 {
		return 0, true
	}
	it.refcount--
	if it.refcount == 0 {
		it.unloadAt = unloadAt
	}
	return it.refcount, true
}

// DrainExpired removes and returns every unreferenced item whose scheduled
// time is at or before now. Items that were acquired again before their time
// came are not returned. The result is sorted by key.
func (c *Cache[T]) DrainExpired(now time.Time) []Evicted[T] {
	var result []Evicted[T]
	for key, it := range c.items {
		if it.refcount != 0 || it.unloadAt.After(now) {
			continue
		}
		result = append(result, Evicted[T]{Key: key, Payload: it.payload})
		delete(c.items, key)
	}
	sortEvicted(result)
	return result
}

// DrainAll removes and returns every item, referenced or not. It is meant for
// shutting down the owner of the cache.
func (c *Cache[T]) DrainAll() []Evicted[T] {
	result := make([]Evicted[T], 0, len(c.items))
	for key, it := range c.items {
		result = append(result, Evicted[T]{Key: key, Payload: it.payload})
	}
	c.items = make(map[string]*item[T])
	sortEvicted(result)
	return result
}

// Len returns the number of items in the cache, scheduled ones included.
func (c *Cache[T]) Len() int {
	return len(c.items)
}

// Contains returns true if key is in the cache. It does not change the
// reference count.
func (c *Cache[T]) Contains(key string) bool {
	_, ok := c.items[key]
	return ok
}

// Refcount returns the reference count of key.
func (c *Cache[T]) Refcount(key string) (int, bool) {
	it, ok := c.items[key]
	if !ok {
		return 0, false
	}
	return it.refcount, true
}

// UnloadAt returns the time key is scheduled to be removed. scheduled is
// false while the item is referenced or absent.
func (c *Cache[T]) UnloadAt(key string) (when time.Time, scheduled bool) {
	it, ok := c.items[key]
	if !ok || it.refcount != 0 {
		return time.Time{}, false
	}
	return it.unloadAt, true
}

func sortEvicted[T any](list []Evicted[T]) {
	sort.Slice(list, func(i, j int) bool { return list[i].Key < list[j].Key })
}
