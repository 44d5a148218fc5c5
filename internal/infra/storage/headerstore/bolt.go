// Package headerstore persists the reorg monitor's header buffer in a bbolt file.
package headerstore

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/vietddude/reorgscan/internal/core/domain"
)

var bucketHeaders = []byte("headers")

// BoltStore keeps one key per block number, big-endian so cursor order is block order.
type BoltStore struct {
	db *bolt.DB
}

// Open opens or creates the store at path.
func Open(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open header store %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketHeaders)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create bucket: %w", err)
	}
	return &BoltStore{db: db}, nil
}

// Save replaces the stored headers.
func (s *BoltStore) Save(ctx context.Context, headers []domain.BlockHeader) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bucketHeaders); err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
			return err
		}
		b, err := tx.CreateBucket(bucketHeaders)
		if err != nil {
			return err
		}
		for _, h := range headers {
			val, err := json.Marshal(h)
			if err != nil {
				return err
			}
			if err := b.Put(blockKey(h.Number), val); err != nil {
				return err
			}
		}
		return nil
	})
}

// Load returns the stored headers in block order.
func (s *BoltStore) Load(ctx context.Context) ([]domain.BlockHeader, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var headers []domain.BlockHeader
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketHeaders)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var h domain.BlockHeader
			if err := json.Unmarshal(v, &h); err != nil {
				return fmt.Errorf("decode header %d: %w", binary.BigEndian.Uint64(k), err)
			}
			headers = append(headers, h)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return headers, nil
}

// Close releases the file lock.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func blockKey(n uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, n)
	return key
}
