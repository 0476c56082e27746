package chain

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore is an in-memory, thread-safe Store implementation.
// It is primarily useful for testing and for ephemeral deployments
// that do not require persistence across restarts.
type MemoryStore struct {
	mu     sync.RWMutex
	blocks map[int]*Block
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blocks: make(map[int]*Block)}
}

// InitSchema implements Store.
func (s *MemoryStore) InitSchema(_ context.Context) error { return nil }

// InsertBlock implements Store.
func (s *MemoryStore) InsertBlock(_ context.Context, b *Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.blocks[b.Index]; exists {
		return fmt.Errorf("insert block %d: %w", b.Index, ErrDuplicateIndex)
	}
	cp := *b
	s.blocks[b.Index] = &cp
	return nil
}

// AllBlocks implements Store.
func (s *MemoryStore) AllBlocks(_ context.Context) ([]*Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Block, 0, len(s.blocks))
	for _, b := range s.blocks {
		cp := *b
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

// UpdateBlockHashes implements Store.
func (s *MemoryStore) UpdateBlockHashes(_ context.Context, index int, previousHash, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.blocks[index]
	if !ok {
		return fmt.Errorf("update block %d: not found", index)
	}
	b.PreviousHash = previousHash
	b.Hash = hash
	return nil
}

// IsEmpty implements Store.
func (s *MemoryStore) IsEmpty(_ context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blocks) == 0, nil
}
