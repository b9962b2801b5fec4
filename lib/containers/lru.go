// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package containers

import (
	lru "github.com/hashicorp/golang-lru"
)

// LRUCache is a fixed-size cache that evicts the entries that have
// gone longest without use (with some weight given to frequency of
// use).  It is safe for concurrent use.  A zero LRUCache is not
// usable; it must be initialized with NewLRUCache.
type LRUCache[K comparable, V any] struct {
	inner *lru.ARCCache
}

// NewLRUCache returns a cache holding at most size entries.  It
// panics if size is not positive.
func NewLRUCache[K comparable, V any](size int) *LRUCache[K, V] {
	inner, err := lru.NewARC(size)
	if err != nil {
		panic(err)
	}
	return &LRUCache[K, V]{inner: inner}
}

func (c *LRUCache[K, V]) Add(key K, value V) { c.inner.Add(key, value) }
func (c *LRUCache[K, V]) Remove(key K)       { c.inner.Remove(key) }
func (c *LRUCache[K, V]) Len() int           { return c.inner.Len() }

func (c *LRUCache[K, V]) Get(key K) (value V, ok bool) {
	untyped, ok := c.inner.Get(key)
	if ok {
		//nolint:forcetypeassert // Typed wrapper around untyped lib.
		value = untyped.(V)
	}
	return value, ok
}

// GetOrElse returns the cached value for key, first populating it
// with fn() if it is not present.  If another goroutine populates the
// same key concurrently, either value may win.
func (c *LRUCache[K, V]) GetOrElse(key K, fn func() V) V {
	if value, ok := c.Get(key); ok {
		return value
	}
	value := fn()
	c.Add(key, value)
	return value
}
