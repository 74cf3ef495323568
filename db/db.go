// Package db persists the watcher's processed block ledger and the off-chain
// photo hash mappings written alongside batch creation.
package db

import (
	"log/slog"

	"github.com/bits-and-blooms/bitset"
)

const (
	DBTypeBolt = "bolt"

	defaultPath = "db/ayur_trace_db"
)

type (
	// MappingStore is a persistent string map from a batch photo hash to the
	// IPFS content hash of the uploaded photo.
	MappingStore interface {
		GetMapping(photoHash string) (string, bool, error)
		PutMapping(photoHash string, ipfsHash string) error
	}

	// MetaStore keeps free-form off-chain metadata per batch, such as labels or
	// notes that are not worth a ledger write.
	MetaStore interface {
		GetBatchMeta(batchID string) (map[string]any, bool, error)
		// MergeBatchMeta overwrites the given keys and keeps the others.
		MergeBatchMeta(batchID string, meta map[string]any) (map[string]any, error)
	}

	// BlockStore tracks which ledger blocks the watcher has processed.
	BlockStore interface {
		// GetLowerBound returns the lowest block number being tracked.
		GetLowerBound() (uint64, error)
		SetLowerBound(uint64) error

		// GetUpperBound returns the highest block number seen, 0 when none was recorded.
		GetUpperBound() (uint64, error)
		SetUpperBound(uint64) error

		// SetValue marks a block number as processed.
		SetValue(uint64) error

		// GetMissingValuesBitSet returns a bitset with a bit set for every
		// unprocessed block between the two bounds, inclusive.
		GetMissingValuesBitSet(uint64, uint64) (*bitset.BitSet, error)

		// Cleanup removes processed block entries below the lower bound.
		Cleanup() error
	}

	// DB is the local store of the service.
	DB interface {
		MappingStore
		MetaStore
		BlockStore
		Close() error
	}

	// DBOpts contains configuration options for creating a new DB instance.
	DBOpts struct {
		Logg   *slog.Logger // Structured logger
		DBType string       // Database implementation type ("bolt")
		Path   string       // Database file path
	}
)

// New creates a new DB instance based on the provided options.
func New(o DBOpts) (DB, error) {
	path := o.Path
	if path == "" {
		path = defaultPath
	}

	switch o.DBType {
	case DBTypeBolt:
	default:
		o.Logg.Warn("unknown db type, using default bolt implementation", "db_type", o.DBType)
	}

	return NewBoltDB(path)
}
