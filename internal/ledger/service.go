package ledger

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/svwenlabs/svwen-ledger/internal/auth"
	"github.com/svwenlabs/svwen-ledger/internal/chain"
	"github.com/svwenlabs/svwen-ledger/internal/wallet"
)

// Service orchestrates transfers across the two independent durable
// resources: the wallet ledger and the block chain. The two are not jointly
// transactional, so a transfer is a two-phase operation — balance mutation
// first, chain append second — with a compensating reverse transfer whenever
// the second phase fails. Balance and chain never diverge permanently.
type Service struct {
	chain   *chain.Chain
	wallets wallet.Repository
	tokens  *auth.TokenIssuer
	logger  *zap.Logger
	now     func() time.Time
}

// NewService creates a Service.
func NewService(c *chain.Chain, wallets wallet.Repository, tokens *auth.TokenIssuer, logger *zap.Logger) *Service {
	return &Service{
		chain:   c,
		wallets: wallets,
		tokens:  tokens,
		logger:  logger,
		now:     time.Now,
	}
}

// Session is an authenticated caller: the account behind a verified token
// plus its wallet.
type Session struct {
	Account *wallet.Account
	Wallet  *wallet.Wallet
}

// LoginResult is returned by Login.
type LoginResult struct {
	Token    string `json:"token"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// Profile describes the authenticated caller.
type Profile struct {
	ID            int64   `json:"id"`
	Username      string  `json:"username"`
	Role          string  `json:"role"`
	WalletAddress string  `json:"wallet_address"`
	Balance       float64 `json:"balance"`
}

// TransferReceipt is returned by a successful SendValue.
type TransferReceipt struct {
	TxHash                string  `json:"tx_hash"`
	SenderWalletAddress   string  `json:"sender_wallet_address"`
	ReceiverWalletAddress string  `json:"receiver_wallet_address"`
	ReceiverUsername      string  `json:"receiver_username,omitempty"`
	Amount                string  `json:"amount"`
	SenderBalance         float64 `json:"sender_balance"`
	Timestamp             string  `json:"timestamp"`
	BlockIndex            int     `json:"block_index"`
}

// Transaction is one chain record involving the caller's wallet.
type Transaction struct {
	BlockIndex int               `json:"block_index"`
	BlockHash  string            `json:"block_hash"`
	Timestamp  string            `json:"timestamp"`
	Record     map[string]string `json:"tx"`
}

// Login checks username/password credentials and issues a session token.
// Unknown usernames and wrong passwords are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	account, err := s.wallets.GetAccountByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, wallet.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, &Error{CodeInternal, err.Error()}
	}
	if !auth.VerifyPassword(password, account.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(account.ID, account.Username, account.Role)
	if err != nil {
		return nil, &Error{CodeInternal, err.Error()}
	}
	return &LoginResult{Token: token, Username: account.Username, Role: account.Role}, nil
}

// authenticate verifies a session token and resolves the account and wallet
// behind it. Claims that no longer match the stored account fail too.
func (s *Service) authenticate(ctx context.Context, token string) (*Session, error) {
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return nil, ErrUnauthorized
	}
	account, err := s.wallets.GetAccountByID(ctx, claims.UID)
	if err != nil {
		return nil, ErrUnauthorized
	}
	if account.Username != claims.Username || account.Role != claims.Role {
		return nil, ErrUnauthorized
	}
	w, err := s.wallets.GetWalletByAccount(ctx, account.ID)
	if err != nil {
		return nil, ErrUnauthorized
	}
	return &Session{Account: account, Wallet: w}, nil
}

// requireTester authenticates and additionally demands the tester role.
func (s *Service) requireTester(ctx context.Context, token string) (*Session, error) {
	sess, err := s.authenticate(ctx, token)
	if err != nil {
		return nil, err
	}
	if sess.Account.Role != wallet.RoleTester {
		return nil, ErrForbidden
	}
	return sess, nil
}

// Me returns the authenticated caller's profile.
func (s *Service) Me(ctx context.Context, token string) (*Profile, error) {
	sess, err := s.authenticate(ctx, token)
	if err != nil {
		return nil, err
	}
	return &Profile{
		ID:            sess.Account.ID,
		Username:      sess.Account.Username,
		Role:          sess.Account.Role,
		WalletAddress: sess.Wallet.Address,
		Balance:       sess.Wallet.Balance,
	}, nil
}

// SendValue transfers amount from the authenticated sender to the wallet at
// receiverAddress and records the transfer on the chain.
//
// The chain is re-verified first: transfers are refused outright once the
// ledger is known corrupted. If the chain append fails after the balance
// mutation succeeded, the mutation is reversed best-effort and the transfer
// reports LEDGER_APPEND_FAILED.
func (s *Service) SendValue(ctx context.Context, token, receiverAddress, amount string) (*TransferReceipt, error) {
	sess, err := s.authenticate(ctx, token)
	if err != nil {
		return nil, err
	}

	dec, amountStr, err := NormalizeAmount(amount)
	if err != nil {
		return nil, err
	}

	receiver := strings.TrimSpace(receiverAddress)
	if receiver == "" {
		return nil, ErrEmptyReceiver
	}

	if err := s.chain.Verify(); err != nil {
		s.logger.Warn("transfer refused: chain integrity check failed", zap.Error(err))
		return nil, ErrIntegrityCompromised
	}

	result, err := s.wallets.TransferBalance(ctx, sess.Account.ID, receiver, dec.InexactFloat64())
	if err != nil {
		return nil, mapTransferErr(err)
	}

	timestamp := s.now().Format(chain.TimeLayout)
	txHash := TransactionHash(result.SenderWalletAddress, result.ReceiverWalletAddress, amountStr, timestamp)
	data := FormatRecord(txHash, result.SenderWalletAddress, result.ReceiverWalletAddress, amountStr, timestamp)

	block, err := s.chain.Append(ctx, data)
	if err != nil {
		s.logger.Error("chain append failed, reversing transfer",
			zap.Int64("sender_id", sess.Account.ID),
			zap.String("receiver", result.ReceiverWalletAddress),
			zap.String("amount", amountStr),
			zap.Error(err),
		)
		if revErr := s.wallets.ReverseTransfer(ctx, sess.Account.ID, result.ReceiverWalletAddress, dec.InexactFloat64()); revErr != nil {
			s.logger.Error("compensating reverse transfer failed",
				zap.Int64("sender_id", sess.Account.ID),
				zap.Error(revErr),
			)
		}
		return nil, ErrLedgerAppendFailed
	}

	s.logger.Info("transfer recorded",
		zap.String("tx_hash", txHash),
		zap.Int("block_index", block.Index),
		zap.String("amount", amountStr),
	)
	return &TransferReceipt{
		TxHash:                txHash,
		SenderWalletAddress:   result.SenderWalletAddress,
		ReceiverWalletAddress: result.ReceiverWalletAddress,
		Amount:                amountStr,
		SenderBalance:         result.SenderBalance,
		Timestamp:             timestamp,
		BlockIndex:            block.Index,
	}, nil
}

// SendValueToUsername resolves the receiver's wallet via their username and
// then performs a regular SendValue.
func (s *Service) SendValueToUsername(ctx context.Context, token, receiverUsername, amount string) (*TransferReceipt, error) {
	username := strings.TrimSpace(receiverUsername)
	if username == "" {
		return nil, ErrEmptyReceiver
	}
	account, err := s.wallets.GetAccountByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, wallet.ErrNotFound) {
			return nil, ErrReceiverNotFound
		}
		return nil, &Error{CodeInternal, err.Error()}
	}
	w, err := s.wallets.GetWalletByAccount(ctx, account.ID)
	if err != nil {
		if errors.Is(err, wallet.ErrNotFound) {
			return nil, ErrReceiverNotFound
		}
		return nil, &Error{CodeInternal, err.Error()}
	}

	receipt, err := s.SendValue(ctx, token, w.Address, amount)
	if err != nil {
		return nil, err
	}
	receipt.ReceiverUsername = username
	return receipt, nil
}

// MyTransactions returns every chain record whose From or To wallet is the
// caller's, in chain order.
func (s *Service) MyTransactions(ctx context.Context, token string) ([]Transaction, error) {
	sess, err := s.authenticate(ctx, token)
	if err != nil {
		return nil, err
	}
	return s.collectTransactions(sess.Wallet.Address, func(map[string]string) bool { return true }), nil
}

// SearchTransactions filters the caller's transactions by a case-insensitive
// substring match against the record fields, or by wallets belonging to
// users whose username matches the query.
func (s *Service) SearchTransactions(ctx context.Context, token, query string) ([]Transaction, error) {
	sess, err := s.authenticate(ctx, token)
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil, ErrEmptyQuery
	}

	addrs, err := s.wallets.FindWalletsByUsernameSubstring(ctx, q)
	if err != nil {
		return nil, &Error{CodeInternal, err.Error()}
	}
	matched := make(map[string]bool, len(addrs))
	for _, a := range addrs {
		matched[a] = true
	}

	return s.collectTransactions(sess.Wallet.Address, func(record map[string]string) bool {
		haystack := strings.ToLower(strings.Join([]string{
			record[recordKeyTxHash],
			record[recordKeyFrom],
			record[recordKeyTo],
			record[recordKeyAmount],
			record[recordKeyTime],
			record[recordKeyType],
		}, " "))
		return strings.Contains(haystack, q) || matched[record[recordKeyFrom]] || matched[record[recordKeyTo]]
	}), nil
}

// collectTransactions walks the chain, keeping non-genesis records that
// involve walletAddr and pass the filter.
func (s *Service) collectTransactions(walletAddr string, keep func(map[string]string) bool) []Transaction {
	txs := make([]Transaction, 0)
	for _, b := range s.chain.Blocks() {
		if b.Index == 0 {
			continue
		}
		record := ParseRecord(b.Data)
		if record[recordKeyFrom] != walletAddr && record[recordKeyTo] != walletAddr {
			continue
		}
		if !keep(record) {
			continue
		}
		txs = append(txs, Transaction{
			BlockIndex: b.Index,
			BlockHash:  b.Hash,
			Timestamp:  b.Timestamp,
			Record:     record,
		})
	}
	return txs
}

// ChainBlocks returns the full chain for an authenticated caller.
func (s *Service) ChainBlocks(ctx context.Context, token string) ([]*chain.Block, error) {
	if _, err := s.authenticate(ctx, token); err != nil {
		return nil, err
	}
	return s.chain.Blocks(), nil
}

// ChainBlock returns a single block by index for an authenticated caller.
func (s *Service) ChainBlock(ctx context.Context, token string, index int) (*chain.Block, error) {
	if _, err := s.authenticate(ctx, token); err != nil {
		return nil, err
	}
	b, err := s.chain.GetByIndex(index)
	if err != nil {
		return nil, ErrBlockNotFound
	}
	return b, nil
}

// VerifyChain re-walks the whole chain. Tester role required.
// The report names the first failing block and the mismatch kind.
func (s *Service) VerifyChain(ctx context.Context, token string) (bool, string, error) {
	if _, err := s.requireTester(ctx, token); err != nil {
		return false, "", err
	}
	if err := s.chain.Verify(); err != nil {
		return false, err.Error(), nil
	}
	return true, "", nil
}

// TamperBlock mutates a block's payload in memory without fixing its hash,
// so a subsequent verify demonstrates corruption detection. Tester role
// required; the genesis block is off limits.
func (s *Service) TamperBlock(ctx context.Context, token string, index int, newData string) error {
	if _, err := s.requireTester(ctx, token); err != nil {
		return err
	}
	if index == 0 {
		return ErrTamperGenesis
	}
	if strings.TrimSpace(newData) == "" {
		return ErrTamperEmptyData
	}
	if err := s.chain.Tamper(index, strings.TrimSpace(newData)); err != nil {
		if errors.Is(err, chain.ErrBlockNotFound) {
			return ErrBlockNotFound
		}
		return &Error{CodeInternal, err.Error()}
	}
	return nil
}

// IntegrityStatus reports the chain's current validity flag without
// re-walking it. Tester role required.
func (s *Service) IntegrityStatus(ctx context.Context, token string) (bool, error) {
	if _, err := s.requireTester(ctx, token); err != nil {
		return false, err
	}
	return s.chain.Valid(), nil
}

// mapTransferErr maps wallet-layer sentinel errors onto the taxonomy.
func mapTransferErr(err error) error {
	switch {
	case errors.Is(err, wallet.ErrSenderWalletNotFound):
		return ErrSenderNotFound
	case errors.Is(err, wallet.ErrReceiverWalletNotFound):
		return ErrReceiverNotFound
	case errors.Is(err, wallet.ErrInvalidAmount):
		return ErrInvalidAmount
	case errors.Is(err, wallet.ErrInsufficientBalance):
		return ErrInsufficientBalance
	case errors.Is(err, wallet.ErrSelfTransfer):
		return ErrSelfTransfer
	default:
		return &Error{CodeInternal, err.Error()}
	}
}
