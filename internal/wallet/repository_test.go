package wallet_test

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"testing"

	bolt "go.etcd.io/bbolt"

	"github.com/svwenlabs/svwen-ledger/internal/wallet"
)

var ctx = context.Background()

// repoFactory builds a fresh Repository for each subtest so the suite runs
// against every backend.
type repoFactory func(t *testing.T) wallet.Repository

func memoryRepo(t *testing.T) wallet.Repository {
	t.Helper()
	return wallet.NewMemoryRepository()
}

func boltRepo(t *testing.T) wallet.Repository {
	t.Helper()
	db, err := bolt.Open(filepath.Join(t.TempDir(), "wallet.db"), 0o600, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck

	repo := wallet.NewBoltRepository(db)
	if err := repo.InitSchema(ctx); err != nil {
		t.Fatal(err)
	}
	return repo
}

func backends(t *testing.T, run func(t *testing.T, newRepo repoFactory)) {
	t.Run("memory", func(t *testing.T) { run(t, memoryRepo) })
	t.Run("bolt", func(t *testing.T) { run(t, boltRepo) })
}

func TestCreateAccountWithWallet(t *testing.T) {
	backends(t, func(t *testing.T, newRepo repoFactory) {
		repo := newRepo(t)

		a, w, err := repo.CreateAccountWithWallet(ctx, "alice", "hash", wallet.RoleUser, 500)
		if err != nil {
			t.Fatal(err)
		}
		if a.Username != "alice" || a.Role != wallet.RoleUser {
			t.Errorf("account: %+v", a)
		}
		if len(w.Address) != 32 {
			t.Errorf("wallet address length: got %d, want 32 hex chars", len(w.Address))
		}
		if w.AccountID != a.ID || w.Balance != 500 {
			t.Errorf("wallet: %+v", w)
		}

		if _, _, err := repo.CreateAccountWithWallet(ctx, "alice", "hash2", wallet.RoleUser, 0); !errors.Is(err, wallet.ErrDuplicateUsername) {
			t.Errorf("duplicate username: got %v, want ErrDuplicateUsername", err)
		}
	})
}

func TestLookups(t *testing.T) {
	backends(t, func(t *testing.T, newRepo repoFactory) {
		repo := newRepo(t)
		a, w, err := repo.CreateAccountWithWallet(ctx, "bob", "hash", wallet.RoleTester, 100)
		if err != nil {
			t.Fatal(err)
		}

		byID, err := repo.GetAccountByID(ctx, a.ID)
		if err != nil || byID.Username != "bob" {
			t.Errorf("GetAccountByID: %+v, %v", byID, err)
		}
		byName, err := repo.GetAccountByUsername(ctx, "bob")
		if err != nil || byName.ID != a.ID {
			t.Errorf("GetAccountByUsername: %+v, %v", byName, err)
		}
		if byName.Role != wallet.RoleTester {
			t.Errorf("role: got %q, want tester", byName.Role)
		}
		byAcct, err := repo.GetWalletByAccount(ctx, a.ID)
		if err != nil || byAcct.Address != w.Address {
			t.Errorf("GetWalletByAccount: %+v, %v", byAcct, err)
		}
		byAddr, err := repo.GetWalletByAddress(ctx, w.Address)
		if err != nil || byAddr.AccountID != a.ID {
			t.Errorf("GetWalletByAddress: %+v, %v", byAddr, err)
		}

		if _, err := repo.GetAccountByID(ctx, 9999); !errors.Is(err, wallet.ErrNotFound) {
			t.Errorf("missing account: got %v, want ErrNotFound", err)
		}
		if _, err := repo.GetWalletByAddress(ctx, "nope"); !errors.Is(err, wallet.ErrNotFound) {
			t.Errorf("missing wallet: got %v, want ErrNotFound", err)
		}
	})
}

func TestFindWalletsByUsernameSubstring(t *testing.T) {
	backends(t, func(t *testing.T, newRepo repoFactory) {
		repo := newRepo(t)
		_, w1, _ := repo.CreateAccountWithWallet(ctx, "alice", "h", wallet.RoleUser, 0)
		_, w2, _ := repo.CreateAccountWithWallet(ctx, "malice", "h", wallet.RoleUser, 0)
		repo.CreateAccountWithWallet(ctx, "bob", "h", wallet.RoleUser, 0) //nolint:errcheck

		got, err := repo.FindWalletsByUsernameSubstring(ctx, "LICE")
		if err != nil {
			t.Fatal(err)
		}
		want := []string{w1.Address, w2.Address}
		sort.Strings(got)
		sort.Strings(want)
		if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
			t.Errorf("substring match: got %v, want %v", got, want)
		}

		empty, err := repo.FindWalletsByUsernameSubstring(ctx, "   ")
		if err != nil {
			t.Fatal(err)
		}
		if len(empty) != 0 {
			t.Errorf("empty query should match nothing, got %v", empty)
		}
	})
}

func TestFindWalletsByUsernameSubstring_literalMatch(t *testing.T) {
	backends(t, func(t *testing.T, newRepo repoFactory) {
		repo := newRepo(t)
		_, w1, _ := repo.CreateAccountWithWallet(ctx, "odd%name", "h", wallet.RoleUser, 0)
		repo.CreateAccountWithWallet(ctx, "oddXname", "h", wallet.RoleUser, 0) //nolint:errcheck
		repo.CreateAccountWithWallet(ctx, "plain", "h", wallet.RoleUser, 0)    //nolint:errcheck

		// "%" and "_" are ordinary characters in the query, never wildcards.
		got, err := repo.FindWalletsByUsernameSubstring(ctx, "d%n")
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 1 || got[0] != w1.Address {
			t.Errorf("literal %% match: got %v, want only %v", got, w1.Address)
		}

		got, err = repo.FindWalletsByUsernameSubstring(ctx, "odd_name")
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 0 {
			t.Errorf("literal _ should not act as a wildcard, got %v", got)
		}
	})
}

func TestTransferBalance(t *testing.T) {
	backends(t, func(t *testing.T, newRepo repoFactory) {
		repo := newRepo(t)
		sender, _, _ := repo.CreateAccountWithWallet(ctx, "sender", "h", wallet.RoleUser, 1000)
		_, recvWallet, _ := repo.CreateAccountWithWallet(ctx, "receiver", "h", wallet.RoleUser, 0)

		result, err := repo.TransferBalance(ctx, sender.ID, recvWallet.Address, 250.5)
		if err != nil {
			t.Fatal(err)
		}
		if result.SenderBalance != 749.5 {
			t.Errorf("sender balance: got %v, want 749.5", result.SenderBalance)
		}
		if result.ReceiverBalance != 250.5 {
			t.Errorf("receiver balance: got %v, want 250.5", result.ReceiverBalance)
		}

		// Balances are durable, not just reported.
		w, err := repo.GetWalletByAccount(ctx, sender.ID)
		if err != nil || w.Balance != 749.5 {
			t.Errorf("stored sender balance: %+v, %v", w, err)
		}
	})
}

func TestTransferBalance_checkOrder(t *testing.T) {
	backends(t, func(t *testing.T, newRepo repoFactory) {
		repo := newRepo(t)
		sender, senderWallet, _ := repo.CreateAccountWithWallet(ctx, "sender", "h", wallet.RoleUser, 100)
		_, recvWallet, _ := repo.CreateAccountWithWallet(ctx, "receiver", "h", wallet.RoleUser, 0)

		if _, err := repo.TransferBalance(ctx, 9999, recvWallet.Address, 10); !errors.Is(err, wallet.ErrSenderWalletNotFound) {
			t.Errorf("unknown sender: got %v, want ErrSenderWalletNotFound", err)
		}
		if _, err := repo.TransferBalance(ctx, sender.ID, "missing", 10); !errors.Is(err, wallet.ErrReceiverWalletNotFound) {
			t.Errorf("unknown receiver: got %v, want ErrReceiverWalletNotFound", err)
		}
		if _, err := repo.TransferBalance(ctx, sender.ID, recvWallet.Address, 0); !errors.Is(err, wallet.ErrInvalidAmount) {
			t.Errorf("zero amount: got %v, want ErrInvalidAmount", err)
		}
		if _, err := repo.TransferBalance(ctx, sender.ID, recvWallet.Address, 100.01); !errors.Is(err, wallet.ErrInsufficientBalance) {
			t.Errorf("overdraft: got %v, want ErrInsufficientBalance", err)
		}
		if _, err := repo.TransferBalance(ctx, sender.ID, senderWallet.Address, 10); !errors.Is(err, wallet.ErrSelfTransfer) {
			t.Errorf("self transfer: got %v, want ErrSelfTransfer", err)
		}

		// Receiver-missing wins over amount validity: check order is fixed.
		if _, err := repo.TransferBalance(ctx, sender.ID, "missing", -5); !errors.Is(err, wallet.ErrReceiverWalletNotFound) {
			t.Errorf("check order: got %v, want ErrReceiverWalletNotFound before ErrInvalidAmount", err)
		}

		// Failed transfers leave balances untouched.
		w, _ := repo.GetWalletByAccount(ctx, sender.ID)
		if w.Balance != 100 {
			t.Errorf("sender balance after failed transfers: got %v, want 100", w.Balance)
		}
	})
}

func TestReverseTransfer(t *testing.T) {
	backends(t, func(t *testing.T, newRepo repoFactory) {
		repo := newRepo(t)
		sender, _, _ := repo.CreateAccountWithWallet(ctx, "sender", "h", wallet.RoleUser, 1000)
		_, recvWallet, _ := repo.CreateAccountWithWallet(ctx, "receiver", "h", wallet.RoleUser, 0)

		if _, err := repo.TransferBalance(ctx, sender.ID, recvWallet.Address, 400); err != nil {
			t.Fatal(err)
		}
		if err := repo.ReverseTransfer(ctx, sender.ID, recvWallet.Address, 400); err != nil {
			t.Fatal(err)
		}

		sw, _ := repo.GetWalletByAccount(ctx, sender.ID)
		rw, _ := repo.GetWalletByAddress(ctx, recvWallet.Address)
		if sw.Balance != 1000 || rw.Balance != 0 {
			t.Errorf("balances after reversal: sender %v, receiver %v", sw.Balance, rw.Balance)
		}
	})
}
