package chain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// TimeLayout is the second-precision timestamp format stored in every block.
const TimeLayout = "2006-01-02 15:04:05"

// GenesisPrevHash is the previous-hash value anchoring the genesis block.
const GenesisPrevHash = "0"

// GenesisData is the payload of block 0.
const GenesisData = "Genesis Block"

// Block is a single ledger entry. Blocks are immutable once appended;
// the only post-append mutation path is the Chain.Tamper test hook.
type Block struct {
	Index        int    `json:"index"`
	Timestamp    string `json:"timestamp"`
	Data         string `json:"data"`
	PreviousHash string `json:"previous_hash"`
	Hash         string `json:"hash"`
}

// ComputeHash returns the canonical SHA-256 hex digest of a block's fields.
func ComputeHash(index int, timestamp, data, previousHash string) string {
	h := sha256.New()
	fmt.Fprintf(h, "%d|%s|%s|%s", index, timestamp, data, previousHash)
	return hex.EncodeToString(h.Sum(nil))
}

// newBlock builds a block and stamps its canonical hash.
func newBlock(index int, timestamp, data, previousHash string) *Block {
	b := &Block{
		Index:        index,
		Timestamp:    timestamp,
		Data:         data,
		PreviousHash: previousHash,
	}
	b.Hash = ComputeHash(b.Index, b.Timestamp, b.Data, b.PreviousHash)
	return b
}

// stamp formats t in the ledger's timestamp layout.
func stamp(t time.Time) string {
	return t.Format(TimeLayout)
}
