// Rowlens - Incremental Unsupervised Analytics for Tabular Data
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rowlens

package store

import (
	"context"
	"errors"
	"time"

	"github.com/tomtom215/rowlens/internal/analytics"
	"github.com/tomtom215/rowlens/internal/cache"
	"github.com/tomtom215/rowlens/internal/metrics"
)

// ErrNoHistory is returned by CachedStore when the wrapped store keeps no versions.
var ErrNoHistory = errors.New("store keeps no version history")

// CachedStore serves Get from an LRU of model copies and writes through to
// the wrapped store. Callers always receive their own copy.
type CachedStore struct {
	inner Store
	lru   *cache.LRU[string, *analytics.Model]
}

// NewCachedStore wraps inner with a cache of capacity models kept for ttl.
func NewCachedStore(inner Store, capacity int, ttl time.Duration) *CachedStore {
	return &CachedStore{
		inner: inner,
		lru:   cache.NewLRU[string, *analytics.Model](capacity, ttl),
	}
}

// Get returns the cached model or loads it from the wrapped store.
func (c *CachedStore) Get(ctx context.Context, key string) (*analytics.Model, error) {
	if m, ok := c.lru.Get(key); ok {
		metrics.StoreCacheHits.Inc()
		return m.Clone(), nil
	}
	metrics.StoreCacheMisses.Inc()

	m, err := c.inner.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	c.lru.Add(key, m.Clone())
	return m, nil
}

// Put writes through and refreshes the cache only after the write succeeded.
func (c *CachedStore) Put(ctx context.Context, m *analytics.Model) error {
	if err := c.inner.Put(ctx, m); err != nil {
		c.lru.Remove(m.Key)
		return err
	}
	c.lru.Add(m.Key, m.Clone())
	return nil
}

// Delete removes key from the wrapped store and the cache.
func (c *CachedStore) Delete(ctx context.Context, key string) error {
	c.lru.Remove(key)
	return c.inner.Delete(ctx, key)
}

// List is served by the wrapped store.
func (c *CachedStore) List(ctx context.Context) ([]Meta, error) {
	return c.inner.List(ctx)
}

// Versions delegates to the wrapped store's history.
func (c *CachedStore) Versions(ctx context.Context, key string) ([]Meta, error) {
	h, ok := c.inner.(History)
	if !ok {
		return nil, ErrNoHistory
	}
	return h.Versions(ctx, key)
}

// GetVersion delegates to the wrapped store's history.
func (c *CachedStore) GetVersion(ctx context.Context, key string, version int) (*analytics.Model, error) {
	h, ok := c.inner.(History)
	if !ok {
		return nil, ErrNoHistory
	}
	return h.GetVersion(ctx, key, version)
}

// Maintain drops expired cache entries and maintains the wrapped store.
func (c *CachedStore) Maintain(ctx context.Context) error {
	c.lru.CleanupExpired()
	if m, ok := c.inner.(Maintainer); ok {
		return m.Maintain(ctx)
	}
	return nil
}

// Close closes the wrapped store.
func (c *CachedStore) Close() error {
	c.lru.Clear()
	return c.inner.Close()
}
