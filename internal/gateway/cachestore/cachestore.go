// Package cachestore provides named response caches backed by Badger. Each
// cache holds full HTTP responses keyed by canonical request path; a whole
// cache can be dropped in one sweep, which is how stale asset generations
// are evicted.
package cachestore

import (
	"encoding/json/v2"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
)

// ErrNotFound indicates no cached response under the given cache and key.
var ErrNotFound = errors.New("cache entry not found")

// Key layout.
const (
	entryPrefix = "c:" // c:<cache>:<path> -> Entry
	namePrefix  = "n:" // n:<cache> -> marker
)

// Entry is one cached response.
type Entry struct {
	Status  int               `json:"status"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    []byte            `json:"body"`
}

// Store is a collection of named response caches in one Badger database.
type Store struct {
	db     *badger.DB
	logger *slog.Logger
}

// Open opens (or creates) the cache database at the given path.
func Open(path string, logger *slog.Logger) (*Store, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	opts.CompactL0OnClose = true

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache db: %w", err)
	}

	if logger != nil {
		logger.Info("cache store opened", "path", path)
	}
	return &Store{db: db, logger: logger}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the cached response stored under cache/key.
func (s *Store) Get(cache, key string) (*Entry, error) {
	var entry Entry
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(entryKey(cache, key))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrNotFound
			}
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &entry)
		})
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// Put stores a response under cache/key, registering the cache name if it is
// new. Overwrites any existing entry for the same key.
func (s *Store) Put(cache, key string, entry *Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(namePrefix+cache), nil); err != nil {
			return err
		}
		return txn.Set(entryKey(cache, key), data)
	})
}

// Names lists the registered cache names.
func (s *Store) Names() ([]string, error) {
	var names []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(namePrefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			names = append(names, string(it.Item().Key()[len(namePrefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return names, nil
}

// DeleteCache drops an entire named cache: every entry under it plus its
// name registration. Deleting a cache that does not exist is a no-op.
func (s *Store) DeleteCache(cache string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(entryPrefix + cache + ":")

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			key := it.Item().KeyCopy(nil)
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return txn.Delete([]byte(namePrefix + cache))
	})
	if err != nil {
		return fmt.Errorf("delete cache %q: %w", cache, err)
	}

	if s.logger != nil {
		s.logger.Info("cache deleted", "cache", cache)
	}
	return nil
}

func entryKey(cache, key string) []byte {
	return []byte(entryPrefix + cache + ":" + key)
}
