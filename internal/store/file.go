// Rowlens - Incremental Unsupervised Analytics for Tabular Data
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rowlens

package store

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/rowlens/internal/analytics"
)

const (
	backendFile   = "file"
	fileExtension = ".gob.gz"
)

// storedFile is the on-disk format: gob-encoded metadata next to the
// gzip-compressed JSON model. The checksum covers the uncompressed JSON.
type storedFile struct {
	Meta           Meta
	CompressedData []byte
}

// FileStore keeps every version of a model as {table}.{kind}_v{version}.gob.gz
// in one directory.
type FileStore struct {
	baseDir string
	retain  int
	logger  zerolog.Logger
	now     func() time.Time

	mu sync.RWMutex
	// versions holds the retained versions per key, ascending.
	versions map[string][]int
}

// NewFileStore opens baseDir, creating it if needed, and indexes existing files.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewFileStore(baseDir string, retainVersions int, logger zerolog.Logger) (*FileStore, error) {
	if err := os.MkdirAll(baseDir, 0o750); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}
	if retainVersions < 0 {
		retainVersions = 0
	}

	s := &FileStore{
		baseDir:  baseDir,
		retain:   retainVersions,
		logger:   logger.With().Str("component", "file_store").Logger(),
		now:      time.Now,
		versions: make(map[string][]int),
	}
	if err := s.scan(); err != nil {
		return nil, fmt.Errorf("scan existing models: %w", err)
	}
	return s, nil
}

func (s *FileStore) scan() error {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		key, version, ok := parseFilename(entry.Name())
		if !ok {
			continue
		}
		s.versions[key] = append(s.versions[key], version)
	}
	for key := range s.versions {
		sort.Ints(s.versions[key])
	}
	return nil
}

// fileBase maps "orders/anomaly" to "orders.anomaly". Keys are validated
// identifiers, so neither part contains a dot.
func fileBase(key string) string {
	return strings.Replace(key, "/", ".", 1)
}

func (s *FileStore) path(key string, version int) string {
	return filepath.Join(s.baseDir, fmt.Sprintf("%s_v%d%s", fileBase(key), version, fileExtension))
}

// parseFilename extracts the key and version from "orders.anomaly_v3.gob.gz".
func parseFilename(name string) (key string, version int, ok bool) {
	base, found := strings.CutSuffix(name, fileExtension)
	if !found {
		return "", 0, false
	}
	idx := strings.LastIndex(base, "_v")
	if idx < 0 {
		return "", 0, false
	}
	version, err := strconv.Atoi(base[idx+2:])
	if err != nil {
		return "", 0, false
	}
	key = strings.Replace(base[:idx], ".", "/", 1)
	if ValidateKey(key) != nil {
		return "", 0, false
	}
	return key, version, true
}

func (s *FileStore) latest(key string) (int, bool) {
	vs := s.versions[key]
	if len(vs) == 0 {
		return 0, false
	}
	return vs[len(vs)-1], true
}

// Get loads the newest version of key.
func (s *FileStore) Get(ctx context.Context, key string) (m *analytics.Model, err error) {
	defer func(start time.Time) { observe(backendFile, "get", start, err) }(time.Now())

	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	version, ok := s.latest(key)
	if !ok {
		return nil, ErrNotFound
	}
	return s.load(key, version)
}

// GetVersion loads one retained version of key.
func (s *FileStore) GetVersion(ctx context.Context, key string, version int) (m *analytics.Model, err error) {
	defer func(start time.Time) { observe(backendFile, "get_version", start, err) }(time.Now())

	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.load(key, version)
}

func (s *FileStore) readFile(key string, version int) (*storedFile, error) {
	f, err := os.Open(s.path(key, version))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("open model file: %w", err)
	}
	defer func() { _ = f.Close() }() //nolint:errcheck // error on close after read is not actionable

	var sf storedFile
	if err := gob.NewDecoder(f).Decode(&sf); err != nil {
		return nil, fmt.Errorf("read model file: %w", err)
	}
	return &sf, nil
}

func (s *FileStore) load(key string, version int) (*analytics.Model, error) {
	sf, err := s.readFile(key, version)
	if err != nil {
		return nil, err
	}

	gzr, err := gzip.NewReader(bytes.NewReader(sf.CompressedData))
	if err != nil {
		return nil, fmt.Errorf("decompress model: %w", err)
	}
	defer func() { _ = gzr.Close() }() //nolint:errcheck // error on gzip close after read is not actionable

	raw, err := io.ReadAll(gzr)
	if err != nil {
		return nil, fmt.Errorf("read decompressed data: %w", err)
	}

	hash := sha256.Sum256(raw)
	if checksum := hex.EncodeToString(hash[:]); checksum != sf.Meta.Checksum {
		return nil, fmt.Errorf("checksum mismatch: expected %s, got %s", sf.Meta.Checksum, checksum)
	}

	var model analytics.Model
	if err := json.Unmarshal(raw, &model); err != nil {
		return nil, fmt.Errorf("decode model: %w", err)
	}
	return &model, nil
}

// Put writes m as version m.Version of m.Key, replacing an existing file of
// the same version, then prunes old versions.
func (s *FileStore) Put(ctx context.Context, m *analytics.Model) (err error) {
	defer func(start time.Time) { observe(backendFile, "put", start, err) }(time.Now())

	if err := checkModel(m); err != nil {
		return err
	}

	raw, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode model: %w", err)
	}

	var compressed bytes.Buffer
	gzw := gzip.NewWriter(&compressed)
	if _, err := gzw.Write(raw); err != nil {
		return fmt.Errorf("compress model: %w", err)
	}
	if err := gzw.Close(); err != nil {
		return fmt.Errorf("finalize compression: %w", err)
	}

	hash := sha256.Sum256(raw)
	meta := MetaOf(m, s.now())
	meta.Checksum = hex.EncodeToString(hash[:])
	meta.SizeBytes = int64(compressed.Len())

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writeAtomic(s.path(m.Key, m.Version), storedFile{Meta: meta, CompressedData: compressed.Bytes()}); err != nil {
		return err
	}

	vs := s.versions[m.Key]
	if i := sort.SearchInts(vs, m.Version); i == len(vs) || vs[i] != m.Version {
		vs = append(vs, 0)
		copy(vs[i+1:], vs[i:])
		vs[i] = m.Version
	}
	s.versions[m.Key] = s.prune(m.Key, vs)
	return nil
}

// writeAtomic writes to a temp file in the same directory and renames it
// into place so readers never see a partial model.
//
//nolint:gocritic // storedFile passed by value is acceptable for this write operation
func (s *FileStore) writeAtomic(path string, sf storedFile) error {
	tmp, err := os.CreateTemp(s.baseDir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create model file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }() //nolint:errcheck // temp file is gone after a successful rename

	if err := gob.NewEncoder(tmp).Encode(sf); err != nil {
		_ = tmp.Close() //nolint:errcheck // already failing
		return fmt.Errorf("write model file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close model file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename model file: %w", err)
	}
	return nil
}

// prune removes all but the newest retain+1 versions. Must hold mu.
func (s *FileStore) prune(key string, vs []int) []int {
	keep := s.retain + 1
	if len(vs) <= keep {
		return vs
	}
	for _, v := range vs[:len(vs)-keep] {
		if err := os.Remove(s.path(key, v)); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn().Err(err).Str("key", key).Int("version", v).Msg("failed to prune model version")
		}
	}
	return append([]int(nil), vs[len(vs)-keep:]...)
}

// Delete removes every version of key.
func (s *FileStore) Delete(ctx context.Context, key string) (err error) {
	defer func(start time.Time) { observe(backendFile, "delete", start, err) }(time.Now())

	if err := ValidateKey(key); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	vs, ok := s.versions[key]
	if !ok {
		return ErrNotFound
	}
	for _, v := range vs {
		if err := os.Remove(s.path(key, v)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("delete model: %w", err)
		}
	}
	delete(s.versions, key)
	return nil
}

// List reads the metadata of the newest version of every key.
func (s *FileStore) List(ctx context.Context) (metas []Meta, err error) {
	defer func(start time.Time) { observe(backendFile, "list", start, err) }(time.Now())

	s.mu.RLock()
	defer s.mu.RUnlock()

	metas = make([]Meta, 0, len(s.versions))
	for key := range s.versions {
		version, _ := s.latest(key)
		sf, err := s.readFile(key, version)
		if err != nil {
			s.logger.Warn().Err(err).Str("key", key).Msg("skipping unreadable model file")
			continue
		}
		metas = append(metas, sf.Meta)
	}
	sort.Slice(metas, func(i, j int) bool { return metas[i].Key < metas[j].Key })
	return metas, nil
}

// Versions lists retained versions of key, newest first.
func (s *FileStore) Versions(ctx context.Context, key string) (metas []Meta, err error) {
	defer func(start time.Time) { observe(backendFile, "versions", start, err) }(time.Now())

	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	vs := s.versions[key]
	if len(vs) == 0 {
		return nil, ErrNotFound
	}
	for i := len(vs) - 1; i >= 0; i-- {
		sf, err := s.readFile(key, vs[i])
		if err != nil {
			return nil, err
		}
		metas = append(metas, sf.Meta)
	}
	return metas, nil
}

// Maintain removes temp files left behind by interrupted writes.
func (s *FileStore) Maintain(ctx context.Context) error {
	matches, err := filepath.Glob(filepath.Join(s.baseDir, ".tmp-*"))
	if err != nil {
		return err
	}
	cutoff := s.now().Add(-time.Hour)
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(path); err != nil {
			s.logger.Warn().Err(err).Str("path", path).Msg("failed to remove stale temp file")
		}
	}
	return nil
}

// Close is a no-op; every write is already on disk.
func (s *FileStore) Close() error {
	return nil
}
