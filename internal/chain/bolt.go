package chain

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"

	bolt "go.etcd.io/bbolt"
)

var blocksBucket = []byte("blocks")

// BoltStore persists blocks to an embedded bbolt database. It is the
// durable backend for single-node deployments that do not run PostgreSQL.
// Keys are 8-byte big-endian indices so a cursor walk yields ascending order.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore creates a BoltStore on an open bbolt database.
func NewBoltStore(db *bolt.DB) *BoltStore {
	return &BoltStore{db: db}
}

// indexKey converts a block index to its storage key.
func indexKey(index int) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(index))
	return key
}

// InitSchema implements Store.
func (s *BoltStore) InitSchema(_ context.Context) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(blocksBucket)
		return err
	})
}

// InsertBlock implements Store. bbolt serialises writers, so a single
// Update transaction is sufficient for atomicity.
func (s *BoltStore) InsertBlock(_ context.Context, b *Block) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(blocksBucket)
		if bucket == nil {
			return fmt.Errorf("blocks bucket missing; InitSchema not run")
		}
		key := indexKey(b.Index)
		if bucket.Get(key) != nil {
			return fmt.Errorf("insert block %d: %w", b.Index, ErrDuplicateIndex)
		}
		value, err := json.Marshal(b)
		if err != nil {
			return fmt.Errorf("marshal block %d: %w", b.Index, err)
		}
		return bucket.Put(key, value)
	})
}

// AllBlocks implements Store.
func (s *BoltStore) AllBlocks(_ context.Context) ([]*Block, error) {
	var out []*Block
	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(blocksBucket)
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(_, value []byte) error {
			b := &Block{}
			if err := json.Unmarshal(value, b); err != nil {
				return fmt.Errorf("unmarshal block: %w", err)
			}
			out = append(out, b)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateBlockHashes implements Store.
func (s *BoltStore) UpdateBlockHashes(_ context.Context, index int, previousHash, hash string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(blocksBucket)
		if bucket == nil {
			return fmt.Errorf("update block %d: blocks bucket missing", index)
		}
		key := indexKey(index)
		value := bucket.Get(key)
		if value == nil {
			return fmt.Errorf("update block %d hashes: not found", index)
		}
		b := &Block{}
		if err := json.Unmarshal(value, b); err != nil {
			return fmt.Errorf("unmarshal block %d: %w", index, err)
		}
		b.PreviousHash = previousHash
		b.Hash = hash
		updated, err := json.Marshal(b)
		if err != nil {
			return fmt.Errorf("marshal block %d: %w", index, err)
		}
		return bucket.Put(key, updated)
	})
}

// IsEmpty implements Store.
func (s *BoltStore) IsEmpty(_ context.Context) (bool, error) {
	empty := true
	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(blocksBucket)
		if bucket == nil {
			return nil
		}
		key, _ := bucket.Cursor().First()
		empty = key == nil
		return nil
	})
	return empty, err
}
