// Package localstore provides the on-device persistent mirror of catalog
// data, backed by Badger. It holds restaurants keyed by their server ID,
// reviews keyed by a store-assigned surrogate ID with a secondary index on
// restaurant, and the pending-sync queue entries.
package localstore

import (
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"

	"github.com/dineatlas/dineatlas-client/internal/domain"
)

// reviewSeqBandwidth is the number of surrogate IDs leased from Badger at a
// time. Small because review volume is low and unused leases are lost on
// close.
const reviewSeqBandwidth = 32

// Store wraps a Badger database instance.
//
// A Store may be degraded: when the database cannot be opened, every read
// resolves to an empty result and every write is silently dropped, so
// callers never need capability-detection branches beyond construction.
type Store struct {
	db        *badger.DB
	logger    *slog.Logger
	reviewSeq *badger.Sequence

	// Generic entities
	Restaurants    *Entity[domain.Restaurant]
	Reviews        *Entity[domain.Review]
	PendingReviews *Entity[domain.PendingReview]
}

// Open opens (or creates) the store at the given path and runs schema
// migrations. Returns an error if the database cannot be opened.
func Open(path string, logger *slog.Logger) (*Store, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil            // Disable Badger's internal logging
	opts.SyncWrites = true       // Ensure writes are synced to disk to prevent corruption on crashes
	opts.CompactL0OnClose = true // Compact L0 tables on close for faster startup

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}

	store := &Store{
		db:     db,
		logger: logger,
	}

	if err := store.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("schema migration: %w", err)
	}

	seq, err := db.GetSequence([]byte(reviewSeqKey), reviewSeqBandwidth)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to open review sequence: %w", err)
	}
	store.reviewSeq = seq

	store.initEntities()

	if logger != nil {
		logger.Info("local store opened", "path", path)
	}

	return store, nil
}

// OpenOrDegrade opens the store at path, falling back to a degraded no-op
// store when the database is unusable. The degraded store never errors on
// ordinary operations: reads come back empty, writes are dropped.
func OpenOrDegrade(path string, logger *slog.Logger) *Store {
	store, err := Open(path, logger)
	if err == nil {
		return store
	}

	if logger != nil {
		logger.Warn("local store unavailable, degrading to network-primary",
			"path", path,
			"error", err)
	}

	degraded := &Store{logger: logger}
	degraded.initEntities()
	return degraded
}

// Available reports whether the store has a usable database behind it.
func (s *Store) Available() bool {
	return s.db != nil
}

// Close gracefully closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	if s.logger != nil {
		s.logger.Info("closing local store")
	}
	if s.reviewSeq != nil {
		if err := s.reviewSeq.Release(); err != nil && s.logger != nil {
			s.logger.Warn("failed to release review sequence", "error", err)
		}
	}
	return s.db.Close()
}

// NextLocalID returns the next surrogate review ID. IDs are monotonically
// increasing and start at 1. On a degraded store it returns 0 (the write
// that would use it is dropped anyway).
func (s *Store) NextLocalID() (int64, error) {
	if s.db == nil {
		return 0, nil
	}
	n, err := s.reviewSeq.Next()
	if err != nil {
		return 0, fmt.Errorf("next review id: %w", err)
	}
	// Badger sequences start at 0; surrogate IDs start at 1.
	return int64(n) + 1, nil
}

// initEntities initializes the generic entities on the store.
func (s *Store) initEntities() {
	// Restaurants are keyed by their server ID, which is unique and
	// stable across store and server.
	s.Restaurants = NewEntity[domain.Restaurant](s, "restaurant:",
		func(r *domain.Restaurant) string { return Key(r.ID) })

	// Reviews are keyed by the surrogate LocalID; the restaurant index is
	// non-unique (many reviews per restaurant).
	s.Reviews = NewEntity[domain.Review](s, "review:",
		func(r *domain.Review) string { return Key(r.LocalID) }).
		WithIndex("restaurant", func(r *domain.Review) string {
			return Key(r.RestaurantID)
		})

	// Pending sync entries are keyed by their registration tag.
	s.PendingReviews = NewEntity[domain.PendingReview](s, "pending:",
		func(p *domain.PendingReview) string { return p.Tag })
}

// Key formats a numeric ID as a fixed-width store key so lexicographic
// ordering matches numeric ordering (required for Last and index scans).
func Key(id int64) string {
	return fmt.Sprintf("%012d", id)
}
