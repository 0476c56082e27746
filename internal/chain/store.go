package chain

import (
	"context"
	"errors"
)

// ErrDuplicateIndex is returned when inserting a block whose index is already persisted.
var ErrDuplicateIndex = errors.New("block index already exists")

// Store is the durable block table backing a Chain. Implementations must make
// each operation atomic; they carry no transactional coupling to the wallet
// store, which is why the transfer orchestrator compensates on append failure.
type Store interface {
	// InitSchema creates the block table if it does not exist. Idempotent.
	InitSchema(ctx context.Context) error

	// InsertBlock persists a block. Returns ErrDuplicateIndex if the index exists.
	InsertBlock(ctx context.Context, b *Block) error

	// AllBlocks returns every persisted block in ascending index order.
	AllBlocks(ctx context.Context) ([]*Block, error)

	// UpdateBlockHashes overwrites the stored previous_hash and hash of a block
	// in place. Used only by the one-time legacy-hash repair on load.
	UpdateBlockHashes(ctx context.Context, index int, previousHash, hash string) error

	// IsEmpty reports whether no blocks are persisted.
	IsEmpty(ctx context.Context) (bool, error)
}
