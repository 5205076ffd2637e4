package localstore

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// schemaVersion is the current schema version. Migrations run cumulatively
// from the stored version up to this value.
const schemaVersion = 2

const (
	schemaVersionKey = "meta:schema_version"
	reviewSeqKey     = "meta:seq:review_local"
	namespaceKeyFmt  = "meta:namespace:%s"
)

// migrate runs schema migrations through a fallthrough switch keyed by the
// stored version. Each case upgrades one version and falls through to the
// next, so opening an old store applies every step in order. Opening a
// fresh store runs all of them.
func (s *Store) migrate() error {
	current, err := s.readSchemaVersion()
	if err != nil {
		return err
	}

	if current > schemaVersion {
		return fmt.Errorf("store schema version %d is newer than supported version %d", current, schemaVersion)
	}
	if current == schemaVersion {
		return nil
	}

	switch current {
	case 0:
		// v1: restaurants, keyed by the unique server ID.
		if err := s.registerNamespace("restaurant"); err != nil {
			return fmt.Errorf("migrate to v1: %w", err)
		}
		fallthrough
	case 1:
		// v2: reviews with an auto-generated surrogate key and a
		// non-unique index on restaurant, plus the pending-sync queue.
		if err := s.registerNamespace("review"); err != nil {
			return fmt.Errorf("migrate to v2: %w", err)
		}
		if err := s.registerNamespace("pending"); err != nil {
			return fmt.Errorf("migrate to v2: %w", err)
		}
	}

	if err := s.writeSchemaVersion(schemaVersion); err != nil {
		return err
	}

	if s.logger != nil {
		s.logger.Info("schema migrated",
			"from_version", current,
			"to_version", schemaVersion)
	}

	return nil
}

// readSchemaVersion returns the stored schema version, or 0 for a fresh store.
func (s *Store) readSchemaVersion() (int, error) {
	var version int
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(schemaVersionKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			version = 0
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			v, err := strconv.Atoi(string(val))
			if err != nil {
				return fmt.Errorf("corrupt schema version %q: %w", val, err)
			}
			version = v
			return nil
		})
	})
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return version, nil
}

func (s *Store) writeSchemaVersion(version int) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(schemaVersionKey), []byte(strconv.Itoa(version)))
	})
	if err != nil {
		return fmt.Errorf("write schema version: %w", err)
	}
	return nil
}

// registerNamespace records that a namespace exists. Badger has no table
// DDL; the marker makes each migration step observable and idempotent.
func (s *Store) registerNamespace(name string) error {
	key := []byte(fmt.Sprintf(namespaceKeyFmt, name))
	return s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if err == nil {
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(key, []byte(time.Now().UTC().Format(time.RFC3339)))
	})
}

// SchemaVersion returns the stored schema version (0 on a degraded store).
func (s *Store) SchemaVersion() (int, error) {
	if s.db == nil {
		return 0, nil
	}
	return s.readSchemaVersion()
}
