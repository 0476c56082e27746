package wallet

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strings"

	bolt "go.etcd.io/bbolt"
)

var (
	accountsBucket     = []byte("accounts")      // id (8-byte BE) → Account JSON
	accountNamesBucket = []byte("account_names") // username → id (8-byte BE)
	walletsBucket      = []byte("wallets")       // address → Wallet JSON
	walletAddrsBucket  = []byte("wallet_addrs")  // account id (8-byte BE) → address
)

// BoltRepository persists accounts and wallets to an embedded bbolt database.
// bbolt serialises write transactions, which gives TransferBalance its
// mutual-exclusion guarantee for free.
type BoltRepository struct {
	db *bolt.DB
}

// NewBoltRepository creates a BoltRepository on an open bbolt database.
func NewBoltRepository(db *bolt.DB) *BoltRepository {
	return &BoltRepository{db: db}
}

// InitSchema creates all buckets. Idempotent.
func (r *BoltRepository) InitSchema(_ context.Context) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{accountsBucket, accountNamesBucket, walletsBucket, walletAddrsBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
}

func idKey(id int64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(id))
	return key
}

// CreateAccountWithWallet implements Repository.
func (r *BoltRepository) CreateAccountWithWallet(_ context.Context, username, passwordHash, role string, initialBalance float64) (*Account, *Wallet, error) {
	var a *Account
	var w *Wallet
	err := r.db.Update(func(tx *bolt.Tx) error {
		accounts := tx.Bucket(accountsBucket)
		names := tx.Bucket(accountNamesBucket)
		wallets := tx.Bucket(walletsBucket)
		addrs := tx.Bucket(walletAddrsBucket)

		if names.Get([]byte(username)) != nil {
			return ErrDuplicateUsername
		}

		address := ""
		for i := 0; i < addressAttempts; i++ {
			candidate, err := newAddress()
			if err != nil {
				return fmt.Errorf("generate address: %w", err)
			}
			if wallets.Get([]byte(candidate)) == nil {
				address = candidate
				break
			}
		}
		if address == "" {
			return ErrAddressExhausted
		}

		seq, err := accounts.NextSequence()
		if err != nil {
			return fmt.Errorf("next account id: %w", err)
		}
		a = &Account{ID: int64(seq), Username: username, PasswordHash: passwordHash, Role: role}
		w = &Wallet{Address: address, AccountID: a.ID, Balance: initialBalance}

		accountJSON, err := json.Marshal(a)
		if err != nil {
			return err
		}
		walletJSON, err := json.Marshal(w)
		if err != nil {
			return err
		}
		if err := accounts.Put(idKey(a.ID), accountJSON); err != nil {
			return err
		}
		if err := names.Put([]byte(username), idKey(a.ID)); err != nil {
			return err
		}
		if err := wallets.Put([]byte(address), walletJSON); err != nil {
			return err
		}
		return addrs.Put(idKey(a.ID), []byte(address))
	})
	if err != nil {
		return nil, nil, err
	}
	return a, w, nil
}

// GetAccountByID implements Repository.
func (r *BoltRepository) GetAccountByID(_ context.Context, id int64) (*Account, error) {
	a := &Account{}
	err := r.db.View(func(tx *bolt.Tx) error {
		value := tx.Bucket(accountsBucket).Get(idKey(id))
		if value == nil {
			return ErrNotFound
		}
		return json.Unmarshal(value, a)
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// GetAccountByUsername implements Repository.
func (r *BoltRepository) GetAccountByUsername(_ context.Context, username string) (*Account, error) {
	a := &Account{}
	err := r.db.View(func(tx *bolt.Tx) error {
		idRaw := tx.Bucket(accountNamesBucket).Get([]byte(username))
		if idRaw == nil {
			return ErrNotFound
		}
		value := tx.Bucket(accountsBucket).Get(idRaw)
		if value == nil {
			return ErrNotFound
		}
		return json.Unmarshal(value, a)
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// GetWalletByAccount implements Repository.
func (r *BoltRepository) GetWalletByAccount(_ context.Context, accountID int64) (*Wallet, error) {
	w := &Wallet{}
	err := r.db.View(func(tx *bolt.Tx) error {
		addr := tx.Bucket(walletAddrsBucket).Get(idKey(accountID))
		if addr == nil {
			return ErrNotFound
		}
		value := tx.Bucket(walletsBucket).Get(addr)
		if value == nil {
			return ErrNotFound
		}
		return json.Unmarshal(value, w)
	})
	if err != nil {
		return nil, err
	}
	return w, nil
}

// GetWalletByAddress implements Repository.
func (r *BoltRepository) GetWalletByAddress(_ context.Context, address string) (*Wallet, error) {
	w := &Wallet{}
	err := r.db.View(func(tx *bolt.Tx) error {
		value := tx.Bucket(walletsBucket).Get([]byte(address))
		if value == nil {
			return ErrNotFound
		}
		return json.Unmarshal(value, w)
	})
	if err != nil {
		return nil, err
	}
	return w, nil
}

// FindWalletsByUsernameSubstring implements Repository.
func (r *BoltRepository) FindWalletsByUsernameSubstring(_ context.Context, query string) ([]string, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil, nil
	}
	var out []string
	err := r.db.View(func(tx *bolt.Tx) error {
		addrs := tx.Bucket(walletAddrsBucket)
		return tx.Bucket(accountNamesBucket).ForEach(func(username, idRaw []byte) error {
			if strings.Contains(strings.ToLower(string(username)), q) {
				if addr := addrs.Get(idRaw); addr != nil {
					out = append(out, string(addr))
				}
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// TransferBalance implements Repository.
func (r *BoltRepository) TransferBalance(_ context.Context, senderAccountID int64, receiverAddress string, amount float64) (*TransferResult, error) {
	var result *TransferResult
	err := r.db.Update(func(tx *bolt.Tx) error {
		wallets := tx.Bucket(walletsBucket)

		senderAddr := tx.Bucket(walletAddrsBucket).Get(idKey(senderAccountID))
		if senderAddr == nil {
			return ErrSenderWalletNotFound
		}
		sender := &Wallet{}
		if err := json.Unmarshal(wallets.Get(senderAddr), sender); err != nil {
			return fmt.Errorf("unmarshal sender wallet: %w", err)
		}

		receiverRaw := wallets.Get([]byte(receiverAddress))
		if receiverRaw == nil {
			return ErrReceiverWalletNotFound
		}
		receiver := &Wallet{}
		if err := json.Unmarshal(receiverRaw, receiver); err != nil {
			return fmt.Errorf("unmarshal receiver wallet: %w", err)
		}

		if amount <= 0 {
			return ErrInvalidAmount
		}
		if sender.Balance < amount {
			return ErrInsufficientBalance
		}
		if receiver.AccountID == senderAccountID {
			return ErrSelfTransfer
		}

		sender.Balance -= amount
		receiver.Balance += amount
		if err := putWallet(wallets, sender); err != nil {
			return err
		}
		if err := putWallet(wallets, receiver); err != nil {
			return err
		}

		result = &TransferResult{
			SenderWalletAddress:   sender.Address,
			ReceiverWalletAddress: receiver.Address,
			SenderBalance:         sender.Balance,
			ReceiverBalance:       receiver.Balance,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ReverseTransfer implements Repository.
func (r *BoltRepository) ReverseTransfer(_ context.Context, senderAccountID int64, receiverAddress string, amount float64) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		wallets := tx.Bucket(walletsBucket)

		senderAddr := tx.Bucket(walletAddrsBucket).Get(idKey(senderAccountID))
		if senderAddr == nil {
			return ErrSenderWalletNotFound
		}
		sender := &Wallet{}
		if err := json.Unmarshal(wallets.Get(senderAddr), sender); err != nil {
			return fmt.Errorf("unmarshal sender wallet: %w", err)
		}
		receiverRaw := wallets.Get([]byte(receiverAddress))
		if receiverRaw == nil {
			return ErrReceiverWalletNotFound
		}
		receiver := &Wallet{}
		if err := json.Unmarshal(receiverRaw, receiver); err != nil {
			return fmt.Errorf("unmarshal receiver wallet: %w", err)
		}

		sender.Balance += amount
		receiver.Balance -= amount
		if err := putWallet(wallets, sender); err != nil {
			return err
		}
		return putWallet(wallets, receiver)
	})
}

func putWallet(bucket *bolt.Bucket, w *Wallet) error {
	value, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("marshal wallet %s: %w", w.Address, err)
	}
	return bucket.Put([]byte(w.Address), value)
}
