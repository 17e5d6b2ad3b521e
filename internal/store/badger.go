// Rowlens - Incremental Unsupervised Analytics for Tabular Data
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rowlens

package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/rowlens/internal/analytics"
)

// Key prefixes for BadgerDB storage
const (
	modelKeyPrefix   = "model:"
	metaKeyPrefix    = "meta:"
	versionKeyPrefix = "version:"
)

const (
	backendBadger  = "badger"
	gcDiscardRatio = 0.5
)

// BadgerStore keeps models in BadgerDB.
//
//	model:<key>              current model (JSON)
//	meta:<key>               Meta of the current model (JSON)
//	version:<key>@<version>  retained versions (JSON, zero-padded version)
type BadgerStore struct {
	db     *badger.DB
	retain int
	logger zerolog.Logger
	now    func() time.Time
}

// OpenBadger opens (or creates) a BadgerDB at path. An empty path opens an
// in-memory database.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func OpenBadger(path string, retainVersions int, logger zerolog.Logger) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger model store: %w", err)
	}
	return NewBadgerStore(db, retainVersions, logger), nil
}

// NewBadgerStore wraps an open database. retainVersions is the number of
// previous versions kept next to the current one.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewBadgerStore(db *badger.DB, retainVersions int, logger zerolog.Logger) *BadgerStore {
	if retainVersions < 0 {
		retainVersions = 0
	}
	return &BadgerStore{
		db:     db,
		retain: retainVersions,
		logger: logger.With().Str("component", "badger_store").Logger(),
		now:    time.Now,
	}
}

func versionPrefix(key string) []byte {
	return []byte(versionKeyPrefix + key + "@")
}

func versionKey(key string, version int) []byte {
	return []byte(fmt.Sprintf("%s%s@%010d", versionKeyPrefix, key, version))
}

// Get returns the current model for key.
func (s *BadgerStore) Get(ctx context.Context, key string) (m *analytics.Model, err error) {
	defer func(start time.Time) { observe(backendBadger, "get", start, err) }(time.Now())

	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	return s.read([]byte(modelKeyPrefix + key))
}

// GetVersion returns a retained version of key.
func (s *BadgerStore) GetVersion(ctx context.Context, key string, version int) (m *analytics.Model, err error) {
	defer func(start time.Time) { observe(backendBadger, "get_version", start, err) }(time.Now())

	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	return s.read(versionKey(key, version))
}

func (s *BadgerStore) read(k []byte) (*analytics.Model, error) {
	var model analytics.Model

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(k)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get model: %w", err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &model)
		})
	})
	if err != nil {
		return nil, err
	}
	return &model, nil
}

// Put stores m as the current model, records it in the history and prunes
// versions beyond the retention.
func (s *BadgerStore) Put(ctx context.Context, m *analytics.Model) (err error) {
	defer func(start time.Time) { observe(backendBadger, "put", start, err) }(time.Now())

	if err := checkModel(m); err != nil {
		return err
	}

	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal model: %w", err)
	}
	meta := MetaOf(m, s.now())
	meta.SizeBytes = int64(len(data))
	metaData, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal meta: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(modelKeyPrefix+m.Key), data); err != nil {
			return fmt.Errorf("set model: %w", err)
		}
		if err := txn.Set([]byte(metaKeyPrefix+m.Key), metaData); err != nil {
			return fmt.Errorf("set meta: %w", err)
		}
		if err := txn.Set(versionKey(m.Key, m.Version), data); err != nil {
			return fmt.Errorf("set version: %w", err)
		}
		return s.prune(txn, m.Key)
	})
}

// prune keeps the newest retain+1 version entries of key.
func (s *BadgerStore) prune(txn *badger.Txn, key string) error {
	keys := versionKeys(txn, key)
	if len(keys) <= s.retain+1 {
		return nil
	}
	// Keys sort ascending by zero-padded version; the oldest come first.
	for _, k := range keys[:len(keys)-s.retain-1] {
		if err := txn.Delete(k); err != nil {
			return fmt.Errorf("prune version: %w", err)
		}
	}
	return nil
}

func versionKeys(txn *badger.Txn, key string) [][]byte {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()

	var keys [][]byte
	prefix := versionPrefix(key)
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	return keys
}

// Delete removes the model, its metadata and its history.
func (s *BadgerStore) Delete(ctx context.Context, key string) (err error) {
	defer func(start time.Time) { observe(backendBadger, "delete", start, err) }(time.Now())

	if err := ValidateKey(key); err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		modelKey := []byte(modelKeyPrefix + key)
		if _, err := txn.Get(modelKey); errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		} else if err != nil {
			return fmt.Errorf("get model: %w", err)
		}

		toDelete := append(versionKeys(txn, key), modelKey, []byte(metaKeyPrefix+key))
		for _, k := range toDelete {
			if err := txn.Delete(k); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("delete model: %w", err)
			}
		}
		return nil
	})
}

// List returns the metadata of every current model.
func (s *BadgerStore) List(ctx context.Context) (metas []Meta, err error) {
	defer func(start time.Time) { observe(backendBadger, "list", start, err) }(time.Now())

	err = s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(metaKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var meta Meta
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &meta)
			})
			if err != nil {
				s.logger.Warn().Err(err).Str("key", string(it.Item().Key())).Msg("skipping unreadable model metadata")
				continue
			}
			metas = append(metas, meta)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	return metas, nil
}

// Versions lists the retained versions of key, newest first.
func (s *BadgerStore) Versions(ctx context.Context, key string) (metas []Meta, err error) {
	defer func(start time.Time) { observe(backendBadger, "versions", start, err) }(time.Now())

	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	err = s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := versionPrefix(key)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			var model analytics.Model
			if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &model) }); err != nil {
				return fmt.Errorf("decode version %s: %w", item.Key(), err)
			}
			meta := MetaOf(&model, time.Time{})
			meta.SizeBytes = item.ValueSize()
			metas = append(metas, meta)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(metas) == 0 {
		return nil, ErrNotFound
	}

	sort.Slice(metas, func(i, j int) bool { return metas[i].Version > metas[j].Version })
	return metas, nil
}

// Maintain runs value log garbage collection until nothing is left to rewrite.
func (s *BadgerStore) Maintain(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := s.db.RunValueLogGC(gcDiscardRatio)
		if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrGCInMemoryMode) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("run GC: %w", err)
		}
	}
}

// Close closes the database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}
