package chain

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrChainInvalid is returned by Append while the chain is marked compromised.
var ErrChainInvalid = errors.New("chain integrity is compromised")

// ErrNoGenesis is returned when an operation requires a genesis block and none exists.
var ErrNoGenesis = errors.New("no genesis block")

// ErrBlockNotFound is returned for lookups of an index outside the chain.
var ErrBlockNotFound = errors.New("block not found")

// VerifyError reports the first block failing integrity verification.
type VerifyError struct {
	Index int
	Kind  string // "previous_hash" or "hash"
}

func (e *VerifyError) Error() string {
	return fmt.Sprintf("block %d: %s mismatch", e.Index, e.Kind)
}

// Chain owns the authoritative in-memory block sequence, mirrored to a Store.
//
// On load, each block's hashes are recomputed from its own fields and the
// previous block's recomputed hash. Stored rows that diverge — typically rows
// written by an older digest algorithm — are overwritten once with the
// canonical values. After that one-time repair any mismatch found by Verify
// is treated as corruption, which disables Append until a re-verify passes.
type Chain struct {
	mu      sync.RWMutex
	store   Store
	blocks  []*Block
	invalid bool
	logger  *zap.Logger
	now     func() time.Time
}

// Load reconstructs the chain from the store. The store schema is created
// if missing; legacy rows are re-canonicalised as described above.
func Load(ctx context.Context, store Store, logger *zap.Logger) (*Chain, error) {
	c := &Chain{store: store, logger: logger, now: time.Now}
	if err := store.InitSchema(ctx); err != nil {
		return nil, fmt.Errorf("init chain schema: %w", err)
	}
	if err := c.load(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Chain) load(ctx context.Context) error {
	rows, err := c.store.AllBlocks(ctx)
	if err != nil {
		return fmt.Errorf("load blocks: %w", err)
	}

	blocks := make([]*Block, 0, len(rows))
	expectedPrev := GenesisPrevHash
	needsRepair := false
	for _, row := range rows {
		b := newBlock(row.Index, row.Timestamp, row.Data, expectedPrev)
		if row.PreviousHash != expectedPrev || row.Hash != b.Hash {
			needsRepair = true
		}
		blocks = append(blocks, b)
		expectedPrev = b.Hash
	}

	if needsRepair {
		for _, b := range blocks {
			if err := c.store.UpdateBlockHashes(ctx, b.Index, b.PreviousHash, b.Hash); err != nil {
				return fmt.Errorf("repair block %d: %w", b.Index, err)
			}
		}
		c.logger.Warn("legacy block hashes re-canonicalised",
			zap.Int("blocks", len(blocks)),
		)
	}

	c.mu.Lock()
	c.blocks = blocks
	c.invalid = false
	c.mu.Unlock()
	return nil
}

// CreateGenesis creates block 0 if the chain is empty. If a chain is already
// loaded it is a no-op; if the store holds blocks the chain reloads from it
// instead of creating a new genesis.
func (c *Chain) CreateGenesis(ctx context.Context) (*Block, error) {
	c.mu.Lock()
	if len(c.blocks) > 0 {
		genesis := c.blocks[0]
		c.mu.Unlock()
		c.logger.Info("genesis block already exists", zap.String("hash", genesis.Hash))
		cp := *genesis
		return &cp, nil
	}
	c.mu.Unlock()

	empty, err := c.store.IsEmpty(ctx)
	if err != nil {
		return nil, fmt.Errorf("check store: %w", err)
	}
	if !empty {
		if err := c.load(ctx); err != nil {
			return nil, err
		}
		c.mu.RLock()
		cp := *c.blocks[0]
		c.mu.RUnlock()
		return &cp, nil
	}

	c.mu.Lock()
	if len(c.blocks) > 0 { // raced with another creator
		cp := *c.blocks[0]
		c.mu.Unlock()
		return &cp, nil
	}

	genesis := newBlock(0, stamp(c.now()), GenesisData, GenesisPrevHash)
	err = c.store.InsertBlock(ctx, genesis)
	if err == nil {
		c.blocks = append(c.blocks, genesis)
		c.mu.Unlock()
		c.logger.Info("genesis block created", zap.String("hash", genesis.Hash))
		cp := *genesis
		return &cp, nil
	}
	c.mu.Unlock()

	// A duplicate index means another creator persisted genesis between the
	// emptiness check and the insert; adopt its chain.
	if !errors.Is(err, ErrDuplicateIndex) {
		return nil, fmt.Errorf("persist genesis: %w", err)
	}
	if err := c.load(ctx); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.blocks) == 0 {
		return nil, ErrNoGenesis
	}
	cp := *c.blocks[0]
	return &cp, nil
}

// Append creates a new tail block carrying data and persists it.
// It fails with ErrChainInvalid while the chain is marked compromised and
// with ErrNoGenesis before a genesis block exists. Appends are serialised;
// a concurrent Verify never observes a half-written tail.
func (c *Chain) Append(ctx context.Context, data string) (*Block, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.invalid {
		return nil, ErrChainInvalid
	}
	if len(c.blocks) == 0 {
		return nil, ErrNoGenesis
	}

	tail := c.blocks[len(c.blocks)-1]
	b := newBlock(tail.Index+1, stamp(c.now()), data, tail.Hash)
	if err := c.store.InsertBlock(ctx, b); err != nil {
		return nil, fmt.Errorf("persist block %d: %w", b.Index, err)
	}
	c.blocks = append(c.blocks, b)

	c.logger.Info("block appended",
		zap.Int("index", b.Index),
		zap.String("hash", b.Hash),
	)
	cp := *b
	return &cp, nil
}

// Verify walks the whole chain from genesis, checking each block's stored
// hash against a fresh recomputation and its linkage to the previous block.
// The result is recorded: a failure marks the chain invalid (sticky until a
// later Verify passes or the chain is reloaded) and disables Append.
// Every call re-walks the full chain; nothing is cached between calls since
// any block may have been tampered with out of band.
func (c *Chain) Verify() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.blocks) == 0 {
		c.invalid = true
		return ErrNoGenesis
	}

	prevHash := GenesisPrevHash
	for _, b := range c.blocks {
		if b.PreviousHash != prevHash {
			c.invalid = true
			return &VerifyError{Index: b.Index, Kind: "previous_hash"}
		}
		if ComputeHash(b.Index, b.Timestamp, b.Data, b.PreviousHash) != b.Hash {
			c.invalid = true
			return &VerifyError{Index: b.Index, Kind: "hash"}
		}
		prevHash = b.Hash
	}
	c.invalid = false
	return nil
}

// Valid reports the current integrity flag without re-walking the chain.
func (c *Chain) Valid() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.invalid
}

// Len returns the number of blocks.
func (c *Chain) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.blocks)
}

// GetByIndex returns a copy of the block at the given index.
func (c *Chain) GetByIndex(index int) (*Block, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if index < 0 || index >= len(c.blocks) {
		return nil, ErrBlockNotFound
	}
	cp := *c.blocks[index]
	return &cp, nil
}

// Blocks returns a copy of the full chain in index order.
func (c *Chain) Blocks() []*Block {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Block, len(c.blocks))
	for i, b := range c.blocks {
		cp := *b
		out[i] = &cp
	}
	return out
}

// Tamper mutates a block's payload in place without recomputing its hash and
// without persisting the change, then marks the chain invalid immediately.
// It exists so operators can demonstrate corruption detection; it is the only
// post-append mutation path. The genesis block cannot be tampered.
func (c *Chain) Tamper(index int, newData string) error {
	if newData == "" {
		return errors.New("tamper data cannot be empty")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if index == 0 {
		return errors.New("cannot tamper genesis block")
	}
	if index < 0 || index >= len(c.blocks) {
		return ErrBlockNotFound
	}
	c.blocks[index].Data = newData
	c.invalid = true
	c.logger.Warn("block tampered", zap.Int("index", index))
	return nil
}
