// Rowlens - Incremental Unsupervised Analytics for Tabular Data
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rowlens

package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tomtom215/rowlens/internal/analytics"
)

const backendMemory = "memory"

// MemoryStore keeps deep copies of models in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	retain   int
	now      func() time.Time
	versions map[string][]memoryEntry // ascending by version
}

type memoryEntry struct {
	model *analytics.Model
	meta  Meta
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore(retainVersions int) *MemoryStore {
	if retainVersions < 0 {
		retainVersions = 0
	}
	return &MemoryStore{
		retain:   retainVersions,
		now:      time.Now,
		versions: make(map[string][]memoryEntry),
	}
}

// Get returns a copy of the current model.
func (s *MemoryStore) Get(ctx context.Context, key string) (m *analytics.Model, err error) {
	defer func(start time.Time) { observe(backendMemory, "get", start, err) }(time.Now())

	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.versions[key]
	if len(entries) == 0 {
		return nil, ErrNotFound
	}
	return entries[len(entries)-1].model.Clone(), nil
}

// GetVersion returns a copy of one retained version.
func (s *MemoryStore) GetVersion(ctx context.Context, key string, version int) (m *analytics.Model, err error) {
	defer func(start time.Time) { observe(backendMemory, "get_version", start, err) }(time.Now())

	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.versions[key] {
		if e.model.Version == version {
			return e.model.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

// Put stores a copy of m.
func (s *MemoryStore) Put(ctx context.Context, m *analytics.Model) (err error) {
	defer func(start time.Time) { observe(backendMemory, "put", start, err) }(time.Now())

	if err := checkModel(m); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry := memoryEntry{model: m.Clone(), meta: MetaOf(m, s.now())}
	entries := s.versions[m.Key]

	i := sort.Search(len(entries), func(i int) bool { return entries[i].model.Version >= m.Version })
	switch {
	case i < len(entries) && entries[i].model.Version == m.Version:
		entries[i] = entry
	default:
		entries = append(entries, memoryEntry{})
		copy(entries[i+1:], entries[i:])
		entries[i] = entry
	}

	if keep := s.retain + 1; len(entries) > keep {
		entries = append([]memoryEntry(nil), entries[len(entries)-keep:]...)
	}
	s.versions[m.Key] = entries
	return nil
}

// Delete drops key and its history.
func (s *MemoryStore) Delete(ctx context.Context, key string) (err error) {
	defer func(start time.Time) { observe(backendMemory, "delete", start, err) }(time.Now())

	if err := ValidateKey(key); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.versions[key]; !ok {
		return ErrNotFound
	}
	delete(s.versions, key)
	return nil
}

// List returns the metadata of every current model.
func (s *MemoryStore) List(ctx context.Context) (metas []Meta, err error) {
	defer func(start time.Time) { observe(backendMemory, "list", start, err) }(time.Now())

	s.mu.RLock()
	defer s.mu.RUnlock()

	metas = make([]Meta, 0, len(s.versions))
	for _, entries := range s.versions {
		metas = append(metas, entries[len(entries)-1].meta)
	}
	sort.Slice(metas, func(i, j int) bool { return metas[i].Key < metas[j].Key })
	return metas, nil
}

// Versions lists retained versions, newest first.
func (s *MemoryStore) Versions(ctx context.Context, key string) (metas []Meta, err error) {
	defer func(start time.Time) { observe(backendMemory, "versions", start, err) }(time.Now())

	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.versions[key]
	if len(entries) == 0 {
		return nil, ErrNotFound
	}
	for i := len(entries) - 1; i >= 0; i-- {
		metas = append(metas, entries[i].meta)
	}
	return metas, nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}
