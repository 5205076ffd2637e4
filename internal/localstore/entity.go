package localstore

import (
	"context"
	"encoding/json/v2"
	"errors"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"
)

// Entity provides generic persistence operations for one record type.
//
// Records live under prefix+primaryKey. Secondary index entries live under
// prefix+"idx:"+name+":"+value+":"+primaryKey and map back to the primary
// key, so an index value may be shared by many records.
type Entity[T any] struct {
	store   *Store
	prefix  string
	key     func(*T) string
	indexes []Index[T]
}

// Index defines a secondary index on an entity.
type Index[T any] struct {
	name   string
	keyGen func(*T) string
}

// NewEntity creates a new Entity instance for type T.
// The key function derives the primary key from a record.
func NewEntity[T any](s *Store, prefix string, key func(*T) string) *Entity[T] {
	return &Entity[T]{
		store:  s,
		prefix: prefix,
		key:    key,
	}
}

// WithIndex adds a non-unique secondary index to the entity.
func (e *Entity[T]) WithIndex(name string, keyGen func(*T) string) *Entity[T] {
	e.indexes = append(e.indexes, Index[T]{name: name, keyGen: keyGen})
	return e
}

// Put upserts a record by primary key, maintaining index entries. Storing a
// record whose indexed values changed removes the stale index entries.
// On a degraded store the write is silently dropped.
func (e *Entity[T]) Put(ctx context.Context, entity *T) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.store.db == nil {
		return nil
	}

	id := e.key(entity)
	data, err := json.Marshal(entity)
	if err != nil {
		return fmt.Errorf("failed to marshal entity: %w", err)
	}

	return e.store.db.Update(func(txn *badger.Txn) error {
		key := []byte(e.prefix + id)

		// Remove index entries belonging to the previous version, if any.
		item, err := txn.Get(key)
		switch {
		case err == nil:
			var old T
			err = item.Value(func(val []byte) error {
				return json.Unmarshal(val, &old)
			})
			if err != nil {
				return fmt.Errorf("failed to unmarshal previous version: %w", err)
			}
			for _, idx := range e.indexes {
				idxKey := e.indexKey(idx.name, idx.keyGen(&old), id)
				if err := txn.Delete([]byte(idxKey)); err != nil {
					return fmt.Errorf("failed to delete stale index entry: %w", err)
				}
			}
		case errors.Is(err, badger.ErrKeyNotFound):
			// First write for this key.
		default:
			return fmt.Errorf("failed to check existing key: %w", err)
		}

		if err := txn.Set(key, data); err != nil {
			return fmt.Errorf("failed to set key: %w", err)
		}

		for _, idx := range e.indexes {
			idxKey := e.indexKey(idx.name, idx.keyGen(entity), id)
			if err := txn.Set([]byte(idxKey), []byte(id)); err != nil {
				return fmt.Errorf("failed to set index entry: %w", err)
			}
		}

		return nil
	})
}

// Get retrieves a record by primary key.
// Returns ErrNotFound if the record does not exist or the store is degraded.
func (e *Entity[T]) Get(ctx context.Context, id string) (*T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if e.store.db == nil {
		return nil, ErrNotFound
	}

	var entity T
	err := e.store.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(e.prefix + id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to get key: %w", err)
		}

		return item.Value(func(val []byte) error {
			if err := json.Unmarshal(val, &entity); err != nil {
				return fmt.Errorf("failed to unmarshal entity: %w", err)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return &entity, nil
}

// GetAll returns all records in primary key order.
// An empty namespace (or degraded store) yields an empty slice, not an error.
func (e *Entity[T]) GetAll(ctx context.Context) ([]*T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if e.store.db == nil {
		return []*T{}, nil
	}

	results := []*T{}
	err := e.store.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(e.prefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek([]byte(e.prefix)); it.ValidForPrefix([]byte(e.prefix)); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			// Skip index entries.
			if e.isIndexKey(it.Item().Key()) {
				continue
			}

			var entity T
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &entity)
			})
			if err != nil {
				return err
			}
			results = append(results, &entity)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return results, nil
}

// QueryByIndex returns all records whose indexed field equals value, in
// primary key order. No matches yields an empty slice.
func (e *Entity[T]) QueryByIndex(ctx context.Context, indexName, value string) ([]*T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if e.store.db == nil {
		return []*T{}, nil
	}

	scanPrefix := []byte(e.prefix + "idx:" + indexName + ":" + value + ":")

	var ids []string
	err := e.store.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = scanPrefix
		opts.PrefetchValues = true

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(scanPrefix); it.ValidForPrefix(scanPrefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				ids = append(ids, string(val))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	results := make([]*T, 0, len(ids))
	for _, id := range ids {
		entity, err := e.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			// Index entry outlived its record; skip rather than fail the query.
			continue
		}
		if err != nil {
			return nil, err
		}
		results = append(results, entity)
	}

	return results, nil
}

// Last returns the record with the highest primary key.
// Returns ErrNotFound when the namespace is empty or the store is degraded.
func (e *Entity[T]) Last(ctx context.Context) (*T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if e.store.db == nil {
		return nil, ErrNotFound
	}

	var entity T
	found := false

	err := e.store.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(e.prefix)
		opts.Reverse = true

		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration starts just past the end of the prefix range.
		// 0xff sorts after every key byte our prefixes use.
		seek := append([]byte(e.prefix), 0xff)
		for it.Seek(seek); it.ValidForPrefix([]byte(e.prefix)); it.Next() {
			if e.isIndexKey(it.Item().Key()) {
				continue
			}
			found = true
			return it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &entity)
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotFound
	}

	return &entity, nil
}

// Delete deletes a record by primary key, removing its index entries.
// Idempotent: deleting an absent record is not an error.
func (e *Entity[T]) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.store.db == nil {
		return nil
	}

	return e.store.db.Update(func(txn *badger.Txn) error {
		key := []byte(e.prefix + id)

		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to get key: %w", err)
		}

		var entity T
		err = item.Value(func(val []byte) error {
			return json.Unmarshal(val, &entity)
		})
		if err != nil {
			return fmt.Errorf("failed to unmarshal entity: %w", err)
		}

		for _, idx := range e.indexes {
			idxKey := e.indexKey(idx.name, idx.keyGen(&entity), id)
			if err := txn.Delete([]byte(idxKey)); err != nil {
				return fmt.Errorf("failed to delete index entry: %w", err)
			}
		}

		if err := txn.Delete(key); err != nil {
			return fmt.Errorf("failed to delete key: %w", err)
		}

		return nil
	})
}

// indexKey builds the key for one index entry.
func (e *Entity[T]) indexKey(name, value, id string) string {
	return e.prefix + "idx:" + name + ":" + value + ":" + id
}

// isIndexKey reports whether a raw key under this prefix is an index entry.
func (e *Entity[T]) isIndexKey(key []byte) bool {
	k := string(key)
	if len(k) <= len(e.prefix) {
		return false
	}
	return strings.HasPrefix(k[len(e.prefix):], "idx:")
}
