package wallet

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// MemoryRepository is an in-memory, thread-safe Repository implementation
// for testing and development.
type MemoryRepository struct {
	mu          sync.Mutex
	nextID      int64
	accounts    map[int64]*Account
	byUsername  map[string]int64
	wallets     map[string]*Wallet // by address
	walletAddrs map[int64]string   // account id → address
}

// NewMemoryRepository creates an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		nextID:      1,
		accounts:    make(map[int64]*Account),
		byUsername:  make(map[string]int64),
		wallets:     make(map[string]*Wallet),
		walletAddrs: make(map[int64]string),
	}
}

// CreateAccountWithWallet implements Repository.
func (r *MemoryRepository) CreateAccountWithWallet(_ context.Context, username, passwordHash, role string, initialBalance float64) (*Account, *Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byUsername[username]; exists {
		return nil, nil, ErrDuplicateUsername
	}

	address := ""
	for i := 0; i < addressAttempts; i++ {
		candidate, err := newAddress()
		if err != nil {
			return nil, nil, fmt.Errorf("generate address: %w", err)
		}
		if _, taken := r.wallets[candidate]; !taken {
			address = candidate
			break
		}
	}
	if address == "" {
		return nil, nil, ErrAddressExhausted
	}

	a := &Account{ID: r.nextID, Username: username, PasswordHash: passwordHash, Role: role}
	w := &Wallet{Address: address, AccountID: a.ID, Balance: initialBalance}
	r.nextID++
	r.accounts[a.ID] = a
	r.byUsername[username] = a.ID
	r.wallets[address] = w
	r.walletAddrs[a.ID] = address

	ac, wc := *a, *w
	return &ac, &wc, nil
}

// GetAccountByID implements Repository.
func (r *MemoryRepository) GetAccountByID(_ context.Context, id int64) (*Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

// GetAccountByUsername implements Repository.
func (r *MemoryRepository) GetAccountByUsername(_ context.Context, username string) (*Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byUsername[username]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r.accounts[id]
	return &cp, nil
}

// GetWalletByAccount implements Repository.
func (r *MemoryRepository) GetWalletByAccount(_ context.Context, accountID int64) (*Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	addr, ok := r.walletAddrs[accountID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r.wallets[addr]
	return &cp, nil
}

// GetWalletByAddress implements Repository.
func (r *MemoryRepository) GetWalletByAddress(_ context.Context, address string) (*Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.wallets[address]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *w
	return &cp, nil
}

// FindWalletsByUsernameSubstring implements Repository.
func (r *MemoryRepository) FindWalletsByUsernameSubstring(_ context.Context, query string) ([]string, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for username, id := range r.byUsername {
		if strings.Contains(strings.ToLower(username), q) {
			out = append(out, r.walletAddrs[id])
		}
	}
	return out, nil
}

// TransferBalance implements Repository.
func (r *MemoryRepository) TransferBalance(_ context.Context, senderAccountID int64, receiverAddress string, amount float64) (*TransferResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	senderAddr, ok := r.walletAddrs[senderAccountID]
	if !ok {
		return nil, ErrSenderWalletNotFound
	}
	sender := r.wallets[senderAddr]

	receiver, ok := r.wallets[receiverAddress]
	if !ok {
		return nil, ErrReceiverWalletNotFound
	}

	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if sender.Balance < amount {
		return nil, ErrInsufficientBalance
	}
	if receiver.AccountID == senderAccountID {
		return nil, ErrSelfTransfer
	}

	sender.Balance -= amount
	receiver.Balance += amount
	return &TransferResult{
		SenderWalletAddress:   sender.Address,
		ReceiverWalletAddress: receiver.Address,
		SenderBalance:         sender.Balance,
		ReceiverBalance:       receiver.Balance,
	}, nil
}

// ReverseTransfer implements Repository.
func (r *MemoryRepository) ReverseTransfer(_ context.Context, senderAccountID int64, receiverAddress string, amount float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	senderAddr, ok := r.walletAddrs[senderAccountID]
	if !ok {
		return ErrSenderWalletNotFound
	}
	receiver, ok := r.wallets[receiverAddress]
	if !ok {
		return ErrReceiverWalletNotFound
	}

	r.wallets[senderAddr].Balance += amount
	receiver.Balance -= amount
	return nil
}
