package chain_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"

	"github.com/svwenlabs/svwen-ledger/internal/chain"
)

var ctx = context.Background()

func newChain(t *testing.T) *chain.Chain {
	t.Helper()
	c, err := chain.Load(ctx, chain.NewMemoryStore(), zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestCreateGenesis(t *testing.T) {
	c := newChain(t)

	genesis, err := c.CreateGenesis(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if genesis.Index != 0 {
		t.Errorf("genesis index: got %d, want 0", genesis.Index)
	}
	if genesis.PreviousHash != chain.GenesisPrevHash {
		t.Errorf("genesis previous hash: got %q, want %q", genesis.PreviousHash, chain.GenesisPrevHash)
	}
	if genesis.Data != chain.GenesisData {
		t.Errorf("genesis data: got %q, want %q", genesis.Data, chain.GenesisData)
	}
	want := chain.ComputeHash(0, genesis.Timestamp, genesis.Data, genesis.PreviousHash)
	if genesis.Hash != want {
		t.Errorf("genesis hash: got %q, want %q", genesis.Hash, want)
	}
}

func TestCreateGenesis_idempotent(t *testing.T) {
	c := newChain(t)

	first, err := c.CreateGenesis(ctx)
	if err != nil {
		t.Fatal(err)
	}
	second, err := c.CreateGenesis(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if first.Hash != second.Hash {
		t.Errorf("second CreateGenesis returned a different block: %q vs %q", first.Hash, second.Hash)
	}
	if c.Len() != 1 {
		t.Errorf("chain length: got %d, want 1", c.Len())
	}
}

// alwaysEmptyStore claims to hold no blocks regardless of inserts, forcing
// CreateGenesis down the insert path even when another chain already
// persisted a genesis block.
type alwaysEmptyStore struct{ chain.Store }

func (s alwaysEmptyStore) IsEmpty(context.Context) (bool, error) { return true, nil }

func TestCreateGenesis_adoptsExistingOnInsertConflict(t *testing.T) {
	store := chain.NewMemoryStore()

	loser, err := chain.Load(ctx, alwaysEmptyStore{store}, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	winner, err := chain.Load(ctx, store, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	created, err := winner.CreateGenesis(ctx)
	if err != nil {
		t.Fatal(err)
	}

	// The loser's insert hits ErrDuplicateIndex and must adopt the winner's
	// genesis instead of failing.
	adopted, err := loser.CreateGenesis(ctx)
	if err != nil {
		t.Fatalf("CreateGenesis after losing the insert: %v", err)
	}
	if adopted.Hash != created.Hash {
		t.Errorf("adopted genesis hash %q, want winner's %q", adopted.Hash, created.Hash)
	}
	if loser.Len() != 1 {
		t.Errorf("loser chain length: got %d, want 1", loser.Len())
	}
	if _, err := loser.Append(ctx, "after adoption"); err != nil {
		t.Errorf("Append after adopting genesis: %v", err)
	}
}

func TestAppend_chainsCorrectly(t *testing.T) {
	c := newChain(t)
	genesis, _ := c.CreateGenesis(ctx)

	b1, err := c.Append(ctx, "first")
	if err != nil {
		t.Fatal(err)
	}
	b2, err := c.Append(ctx, "second")
	if err != nil {
		t.Fatal(err)
	}

	if b1.PreviousHash != genesis.Hash {
		t.Errorf("b1.PreviousHash=%q, want genesis hash %q", b1.PreviousHash, genesis.Hash)
	}
	if b2.PreviousHash != b1.Hash {
		t.Errorf("chain broken: b2.PreviousHash=%q, want b1.Hash=%q", b2.PreviousHash, b1.Hash)
	}
	if b2.Index != 2 {
		t.Errorf("b2 index: got %d, want 2", b2.Index)
	}
	if err := c.Verify(); err != nil {
		t.Errorf("Verify() failed on valid chain: %v", err)
	}
}

func TestAppend_withoutGenesis(t *testing.T) {
	c := newChain(t)
	if _, err := c.Append(ctx, "orphan"); !errors.Is(err, chain.ErrNoGenesis) {
		t.Errorf("Append without genesis: got %v, want ErrNoGenesis", err)
	}
}

func TestVerify_emptyChain(t *testing.T) {
	c := newChain(t)
	if err := c.Verify(); !errors.Is(err, chain.ErrNoGenesis) {
		t.Errorf("Verify on empty chain: got %v, want ErrNoGenesis", err)
	}
	if c.Valid() {
		t.Error("empty chain should be marked invalid after Verify")
	}
}

func TestTamper_detectedAndSticky(t *testing.T) {
	c := newChain(t)
	c.CreateGenesis(ctx) //nolint:errcheck
	c.Append(ctx, "a")   //nolint:errcheck
	c.Append(ctx, "b")   //nolint:errcheck

	if err := c.Tamper(1, "forged"); err != nil {
		t.Fatal(err)
	}
	if c.Valid() {
		t.Error("chain should be invalid immediately after Tamper")
	}

	err := c.Verify()
	var verr *chain.VerifyError
	if !errors.As(err, &verr) {
		t.Fatalf("Verify after tamper: got %v, want *VerifyError", err)
	}
	if verr.Index != 1 {
		t.Errorf("VerifyError index: got %d, want 1", verr.Index)
	}

	// Append stays disabled while invalid.
	if _, err := c.Append(ctx, "c"); !errors.Is(err, chain.ErrChainInvalid) {
		t.Errorf("Append on invalid chain: got %v, want ErrChainInvalid", err)
	}
}

func TestTamper_guards(t *testing.T) {
	c := newChain(t)
	c.CreateGenesis(ctx) //nolint:errcheck
	c.Append(ctx, "a")   //nolint:errcheck

	if err := c.Tamper(0, "forged"); err == nil {
		t.Error("tampering genesis should fail")
	}
	if err := c.Tamper(1, ""); err == nil {
		t.Error("tampering with empty data should fail")
	}
	if err := c.Tamper(9, "forged"); !errors.Is(err, chain.ErrBlockNotFound) {
		t.Errorf("tampering missing index: got %v, want ErrBlockNotFound", err)
	}
}

func TestGetByIndex(t *testing.T) {
	c := newChain(t)
	c.CreateGenesis(ctx) //nolint:errcheck
	b1, _ := c.Append(ctx, "payload")

	got, err := c.GetByIndex(1)
	if err != nil {
		t.Fatal(err)
	}
	if got.Hash != b1.Hash {
		t.Errorf("GetByIndex(1): got hash %q, want %q", got.Hash, b1.Hash)
	}
	if _, err := c.GetByIndex(5); !errors.Is(err, chain.ErrBlockNotFound) {
		t.Errorf("GetByIndex(5): got %v, want ErrBlockNotFound", err)
	}
}

func TestLoad_repairsLegacyHashes(t *testing.T) {
	store := chain.NewMemoryStore()

	// Simulate rows written by an older digest algorithm: payloads are intact
	// but hashes do not match the canonical recomputation.
	rows := []*chain.Block{
		{Index: 0, Timestamp: "2024-01-01 00:00:00", Data: chain.GenesisData, PreviousHash: chain.GenesisPrevHash, Hash: "legacy0"},
		{Index: 1, Timestamp: "2024-01-01 00:00:01", Data: "payload", PreviousHash: "legacy0", Hash: "legacy1"},
	}
	for _, row := range rows {
		if err := store.InsertBlock(ctx, row); err != nil {
			t.Fatal(err)
		}
	}

	c, err := chain.Load(ctx, store, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Verify(); err != nil {
		t.Fatalf("Verify() after repair: %v", err)
	}

	// The store rows must have been rewritten with canonical hashes too.
	repaired, err := store.AllBlocks(ctx)
	if err != nil {
		t.Fatal(err)
	}
	for _, b := range repaired {
		want := chain.ComputeHash(b.Index, b.Timestamp, b.Data, b.PreviousHash)
		if b.Hash != want {
			t.Errorf("block %d not repaired in store: hash %q, want %q", b.Index, b.Hash, want)
		}
	}
}

func TestLoad_reloadResetsInvalid(t *testing.T) {
	store := chain.NewMemoryStore()
	c, err := chain.Load(ctx, store, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	c.CreateGenesis(ctx)  //nolint:errcheck
	c.Append(ctx, "a")    //nolint:errcheck
	c.Tamper(1, "forged") //nolint:errcheck

	// Tamper never reaches the store, so a fresh load sees the clean rows.
	fresh, err := chain.Load(ctx, store, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if err := fresh.Verify(); err != nil {
		t.Errorf("reloaded chain should verify: %v", err)
	}
}

func TestBoltStore_roundTrip(t *testing.T) {
	db, err := bolt.Open(filepath.Join(t.TempDir(), "chain.db"), 0o600, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close() //nolint:errcheck

	store := chain.NewBoltStore(db)
	c, err := chain.Load(ctx, store, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	c.CreateGenesis(ctx) //nolint:errcheck
	b1, err := c.Append(ctx, "bolt payload")
	if err != nil {
		t.Fatal(err)
	}

	// A second chain over the same database sees the same blocks.
	c2, err := chain.Load(ctx, store, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if c2.Len() != 2 {
		t.Fatalf("reloaded chain length: got %d, want 2", c2.Len())
	}
	got, err := c2.GetByIndex(1)
	if err != nil {
		t.Fatal(err)
	}
	if got.Hash != b1.Hash || got.Data != "bolt payload" {
		t.Errorf("reloaded block mismatch: %+v", got)
	}
	if err := c2.Verify(); err != nil {
		t.Errorf("Verify() on reloaded bolt chain: %v", err)
	}
}

func TestBoltStore_duplicateIndex(t *testing.T) {
	db, err := bolt.Open(filepath.Join(t.TempDir(), "chain.db"), 0o600, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close() //nolint:errcheck

	store := chain.NewBoltStore(db)
	if err := store.InitSchema(ctx); err != nil {
		t.Fatal(err)
	}

	b := &chain.Block{Index: 0, Timestamp: "2024-01-01 00:00:00", Data: "x", PreviousHash: "0", Hash: "h"}
	if err := store.InsertBlock(ctx, b); err != nil {
		t.Fatal(err)
	}
	if err := store.InsertBlock(ctx, b); !errors.Is(err, chain.ErrDuplicateIndex) {
		t.Errorf("duplicate insert: got %v, want ErrDuplicateIndex", err)
	}
}
