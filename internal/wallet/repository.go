package wallet

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
)

// ErrNotFound is returned when an account or wallet lookup finds no matching record.
var ErrNotFound = errors.New("not found")

// ErrDuplicateUsername is returned when creating an account with a taken username.
var ErrDuplicateUsername = errors.New("username already taken")

// ErrSenderWalletNotFound is returned when the transfer sender has no wallet.
var ErrSenderWalletNotFound = errors.New("sender wallet not found")

// ErrReceiverWalletNotFound is returned when the receiver address resolves to no wallet.
var ErrReceiverWalletNotFound = errors.New("receiver wallet not found")

// ErrInvalidAmount is returned for non-positive transfer amounts.
var ErrInvalidAmount = errors.New("amount must be positive")

// ErrInsufficientBalance is returned when the sender's balance is below the amount.
var ErrInsufficientBalance = errors.New("insufficient balance")

// ErrSelfTransfer is returned when sender and receiver resolve to the same account.
var ErrSelfTransfer = errors.New("cannot send to your own wallet")

// ErrAddressExhausted is returned when wallet address generation runs out of attempts.
var ErrAddressExhausted = errors.New("could not generate unique wallet address")

// addressAttempts bounds the collision-retry loop for address generation.
const addressAttempts = 100

// Repository is the account/wallet ledger. Every operation is individually
// durable and atomic; TransferBalance updates both wallet rows as one unit.
//
// The check order inside TransferBalance is part of the contract: sender
// existence, then receiver existence, then amount validity, then balance
// sufficiency, then the self-transfer check.
type Repository interface {
	CreateAccountWithWallet(ctx context.Context, username, passwordHash, role string, initialBalance float64) (*Account, *Wallet, error)
	GetAccountByID(ctx context.Context, id int64) (*Account, error)
	GetAccountByUsername(ctx context.Context, username string) (*Account, error)
	GetWalletByAccount(ctx context.Context, accountID int64) (*Wallet, error)
	GetWalletByAddress(ctx context.Context, address string) (*Wallet, error)

	// FindWalletsByUsernameSubstring returns the wallet addresses of accounts
	// whose username contains the query, case-insensitively. An empty query
	// returns no rows rather than all rows.
	FindWalletsByUsernameSubstring(ctx context.Context, query string) ([]string, error)

	// TransferBalance debits the sender and credits the receiver atomically.
	TransferBalance(ctx context.Context, senderAccountID int64, receiverAddress string, amount float64) (*TransferResult, error)

	// ReverseTransfer credits the sender and debits the receiver by amount.
	// It is the compensating operation for a transfer whose chain append
	// failed; callers treat its failure as best-effort and only log it.
	ReverseTransfer(ctx context.Context, senderAccountID int64, receiverAddress string, amount float64) error
}

// newAddress returns a fresh 32-hex-char wallet address candidate.
func newAddress() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
