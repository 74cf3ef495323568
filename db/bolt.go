package db

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bits-and-blooms/bitset"
	bolt "go.etcd.io/bbolt"
)

const (
	dbFileMode  = 0600
	openTimeout = 2 * time.Second

	blocksBucket   = "blocks"
	mappingsBucket = "mappings"
	metaBucket     = "batch_meta"

	upperBoundKey = "upper"
	lowerBoundKey = "lower"
)

// BigEndian keys keep cursor order equal to block order.
var sortableOrder = binary.BigEndian

type boltDB struct {
	db *bolt.DB
}

// NewBoltDB opens (creating if needed) the bolt file at path.
func NewBoltDB(path string) (DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := bolt.Open(path, dbFileMode, &bolt.Options{Timeout: openTimeout})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{blocksBucket, mappingsBucket, metaBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", name, err)
			}
		}
		return nil
	}); err != nil {
		db.Close()
		return nil, err
	}

	return &boltDB{
		db: db,
	}, nil
}

func (d *boltDB) Close() error {
	return d.db.Close()
}

func (d *boltDB) view(bucket string, fn func(*bolt.Bucket) error) error {
	return d.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return fmt.Errorf("bucket %s not found", bucket)
		}
		return fn(b)
	})
}

func (d *boltDB) update(bucket string, fn func(*bolt.Bucket) error) error {
	return d.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return fmt.Errorf("bucket %s not found", bucket)
		}
		return fn(b)
	})
}

func (d *boltDB) getUint64(k string) (uint64, error) {
	var v uint64
	err := d.view(blocksBucket, func(b *bolt.Bucket) error {
		if raw := b.Get([]byte(k)); len(raw) == 8 {
			v = unmarshalUint64(raw)
		}
		return nil
	})
	return v, err
}

func (d *boltDB) setUint64(k string, v uint64) error {
	return d.update(blocksBucket, func(b *bolt.Bucket) error {
		return b.Put([]byte(k), marshalUint64(v))
	})
}

func unmarshalUint64(b []byte) uint64 {
	return sortableOrder.Uint64(b)
}

func marshalUint64(v uint64) []byte {
	b := make([]byte, 8)
	sortableOrder.PutUint64(b, v)
	return b
}

func (d *boltDB) GetMapping(photoHash string) (string, bool, error) {
	var (
		v  string
		ok bool
	)
	err := d.view(mappingsBucket, func(b *bolt.Bucket) error {
		if raw := b.Get([]byte(photoHash)); raw != nil {
			v, ok = string(raw), true
		}
		return nil
	})
	if err != nil {
		return "", false, fmt.Errorf("failed to read mapping: %w", err)
	}
	return v, ok, nil
}

func (d *boltDB) PutMapping(photoHash string, ipfsHash string) error {
	if photoHash == "" {
		return fmt.Errorf("empty photo hash")
	}
	return d.update(mappingsBucket, func(b *bolt.Bucket) error {
		return b.Put([]byte(photoHash), []byte(ipfsHash))
	})
}

func (d *boltDB) GetBatchMeta(batchID string) (map[string]any, bool, error) {
	var meta map[string]any
	err := d.view(metaBucket, func(b *bolt.Bucket) error {
		raw := b.Get([]byte(batchID))
		if raw == nil {
			return nil
		}
		return json.Unmarshal(raw, &meta)
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to read batch meta: %w", err)
	}
	return meta, meta != nil, nil
}

func (d *boltDB) MergeBatchMeta(batchID string, meta map[string]any) (map[string]any, error) {
	if batchID == "" {
		return nil, fmt.Errorf("empty batch id")
	}

	merged := make(map[string]any)
	err := d.update(metaBucket, func(b *bolt.Bucket) error {
		if raw := b.Get([]byte(batchID)); raw != nil {
			if err := json.Unmarshal(raw, &merged); err != nil {
				return err
			}
		}
		for k, v := range meta {
			merged[k] = v
		}

		raw, err := json.Marshal(merged)
		if err != nil {
			return err
		}
		return b.Put([]byte(batchID), raw)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to write batch meta: %w", err)
	}
	return merged, nil
}

func (d *boltDB) SetLowerBound(v uint64) error {
	return d.setUint64(lowerBoundKey, v)
}

func (d *boltDB) GetLowerBound() (uint64, error) {
	return d.getUint64(lowerBoundKey)
}

func (d *boltDB) SetUpperBound(v uint64) error {
	return d.setUint64(upperBoundKey, v)
}

func (d *boltDB) GetUpperBound() (uint64, error) {
	return d.getUint64(upperBoundKey)
}

func (d *boltDB) SetValue(v uint64) error {
	return d.update(blocksBucket, func(b *bolt.Bucket) error {
		return b.Put(marshalUint64(v), nil)
	})
}

// GetMissingValuesBitSet starts with every block of the range set and clears
// the ones recorded as processed.
func (d *boltDB) GetMissingValuesBitSet(lowerBound uint64, upperBound uint64) (*bitset.BitSet, error) {
	var b bitset.BitSet
	if upperBound < lowerBound {
		return &b, nil
	}

	err := d.view(blocksBucket, func(bucket *bolt.Bucket) error {
		for i := lowerBound; i <= upperBound; i++ {
			b.Set(uint(i))
		}

		upperRaw := marshalUint64(upperBound)
		c := bucket.Cursor()
		for k, _ := c.Seek(marshalUint64(lowerBound)); k != nil && bytes.Compare(k, upperRaw) <= 0; k, _ = c.Next() {
			// bound keys are not 8 bytes long
			if len(k) == 8 {
				b.Clear(uint(unmarshalUint64(k)))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &b, nil
}

func (d *boltDB) Cleanup() error {
	lowerBound, err := d.GetLowerBound()
	if err != nil {
		return err
	}
	if lowerBound == 0 {
		return nil
	}

	target := marshalUint64(lowerBound - 1)

	return d.update(blocksBucket, func(bucket *bolt.Bucket) error {
		var stale [][]byte
		c := bucket.Cursor()
		for k, _ := c.First(); k != nil && bytes.Compare(k, target) <= 0; k, _ = c.Next() {
			if len(k) == 8 {
				stale = append(stale, append([]byte(nil), k...))
			}
		}

		for _, k := range stale {
			if err := bucket.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}
