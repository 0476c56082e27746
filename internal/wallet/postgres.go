package wallet

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// transferLockKey is a stable PostgreSQL advisory lock key serialising
// balance mutations so no two concurrent transfers observe a stale balance.
const transferLockKey = int64(7_731_450_220)

// PostgresRepository persists accounts and wallets to PostgreSQL.
// It implements the Repository interface.
type PostgresRepository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresRepository creates a PostgresRepository backed by the given pool.
func NewPostgresRepository(pool *pgxpool.Pool, logger *zap.Logger) *PostgresRepository {
	return &PostgresRepository{pool: pool, logger: logger}
}

// InitSchema creates the accounts and wallets tables if they do not exist.
// Idempotent; cmd/migrate owns the canonical schema for server deployments.
func (r *PostgresRepository) InitSchema(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS accounts (
			id            BIGSERIAL PRIMARY KEY,
			username      TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			role          TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS wallets (
			address    TEXT PRIMARY KEY,
			account_id BIGINT NOT NULL UNIQUE REFERENCES accounts(id) ON DELETE CASCADE,
			balance    DOUBLE PRECISION NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("create ledger tables: %w", err)
	}
	return nil
}

// CreateAccountWithWallet implements Repository. Account and wallet are
// inserted in one transaction; the wallet address is collision-checked
// inside that transaction with a bounded retry loop.
func (r *PostgresRepository) CreateAccountWithWallet(ctx context.Context, username, passwordHash, role string, initialBalance float64) (*Account, *Wallet, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	a := &Account{Username: username, PasswordHash: passwordHash, Role: role}
	if err := tx.QueryRow(ctx,
		`INSERT INTO accounts (username, password_hash, role) VALUES ($1, $2, $3) RETURNING id`,
		username, passwordHash, role,
	).Scan(&a.ID); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, nil, ErrDuplicateUsername
		}
		return nil, nil, fmt.Errorf("insert account: %w", err)
	}

	address := ""
	for i := 0; i < addressAttempts; i++ {
		candidate, err := newAddress()
		if err != nil {
			return nil, nil, fmt.Errorf("generate address: %w", err)
		}
		var taken bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM wallets WHERE address = $1)`, candidate,
		).Scan(&taken); err != nil {
			return nil, nil, fmt.Errorf("check address: %w", err)
		}
		if !taken {
			address = candidate
			break
		}
	}
	if address == "" {
		return nil, nil, ErrAddressExhausted
	}

	w := &Wallet{Address: address, AccountID: a.ID, Balance: initialBalance}
	if _, err := tx.Exec(ctx,
		`INSERT INTO wallets (address, account_id, balance) VALUES ($1, $2, $3)`,
		w.Address, w.AccountID, w.Balance,
	); err != nil {
		return nil, nil, fmt.Errorf("insert wallet: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("commit account creation: %w", err)
	}

	r.logger.Info("account created",
		zap.Int64("id", a.ID),
		zap.String("username", a.Username),
		zap.String("role", a.Role),
	)
	return a, w, nil
}

// GetAccountByID implements Repository.
func (r *PostgresRepository) GetAccountByID(ctx context.Context, id int64) (*Account, error) {
	return r.scanAccount(ctx,
		`SELECT id, username, password_hash, role FROM accounts WHERE id = $1`, id)
}

// GetAccountByUsername implements Repository.
func (r *PostgresRepository) GetAccountByUsername(ctx context.Context, username string) (*Account, error) {
	return r.scanAccount(ctx,
		`SELECT id, username, password_hash, role FROM accounts WHERE username = $1`, username)
}

func (r *PostgresRepository) scanAccount(ctx context.Context, q string, args ...any) (*Account, error) {
	a := &Account{}
	if err := r.pool.QueryRow(ctx, q, args...).Scan(&a.ID, &a.Username, &a.PasswordHash, &a.Role); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan account: %w", err)
	}
	return a, nil
}

// GetWalletByAccount implements Repository.
func (r *PostgresRepository) GetWalletByAccount(ctx context.Context, accountID int64) (*Wallet, error) {
	return r.scanWallet(ctx,
		`SELECT address, account_id, balance FROM wallets WHERE account_id = $1`, accountID)
}

// GetWalletByAddress implements Repository.
func (r *PostgresRepository) GetWalletByAddress(ctx context.Context, address string) (*Wallet, error) {
	return r.scanWallet(ctx,
		`SELECT address, account_id, balance FROM wallets WHERE address = $1`, address)
}

func (r *PostgresRepository) scanWallet(ctx context.Context, q string, args ...any) (*Wallet, error) {
	w := &Wallet{}
	if err := r.pool.QueryRow(ctx, q, args...).Scan(&w.Address, &w.AccountID, &w.Balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan wallet: %w", err)
	}
	return w, nil
}

// likeEscaper neutralises LIKE metacharacters so the query matches literally,
// the same contract the memory and bolt backends implement with
// strings.Contains.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// FindWalletsByUsernameSubstring implements Repository.
func (r *PostgresRepository) FindWalletsByUsernameSubstring(ctx context.Context, query string) ([]string, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT w.address
		FROM accounts a
		JOIN wallets w ON w.account_id = a.id
		WHERE lower(a.username) LIKE '%' || $1 || '%' ESCAPE '\'`, likeEscaper.Replace(q))
	if err != nil {
		return nil, fmt.Errorf("search wallets: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var addr string
		if err := rows.Scan(&addr); err != nil {
			return nil, fmt.Errorf("scan wallet address: %w", err)
		}
		out = append(out, addr)
	}
	return out, rows.Err()
}

// TransferBalance implements Repository. Both row updates happen in a single
// transaction guarded by an advisory lock, so concurrent transfers execute
// as if under mutual exclusion.
func (r *PostgresRepository) TransferBalance(ctx context.Context, senderAccountID int64, receiverAddress string, amount float64) (*TransferResult, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", transferLockKey); err != nil {
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}

	var senderAddr string
	var senderBalance float64
	if err := tx.QueryRow(ctx,
		`SELECT address, balance FROM wallets WHERE account_id = $1`, senderAccountID,
	).Scan(&senderAddr, &senderBalance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSenderWalletNotFound
		}
		return nil, fmt.Errorf("load sender wallet: %w", err)
	}

	var receiverAccountID int64
	var receiverBalance float64
	if err := tx.QueryRow(ctx,
		`SELECT account_id, balance FROM wallets WHERE address = $1`, receiverAddress,
	).Scan(&receiverAccountID, &receiverBalance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrReceiverWalletNotFound
		}
		return nil, fmt.Errorf("load receiver wallet: %w", err)
	}

	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if senderBalance < amount {
		return nil, ErrInsufficientBalance
	}
	if receiverAccountID == senderAccountID {
		return nil, ErrSelfTransfer
	}

	newSender := senderBalance - amount
	newReceiver := receiverBalance + amount
	if _, err := tx.Exec(ctx,
		`UPDATE wallets SET balance = $2 WHERE account_id = $1`, senderAccountID, newSender,
	); err != nil {
		return nil, fmt.Errorf("debit sender: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`UPDATE wallets SET balance = $2 WHERE address = $1`, receiverAddress, newReceiver,
	); err != nil {
		return nil, fmt.Errorf("credit receiver: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transfer: %w", err)
	}

	return &TransferResult{
		SenderWalletAddress:   senderAddr,
		ReceiverWalletAddress: receiverAddress,
		SenderBalance:         newSender,
		ReceiverBalance:       newReceiver,
	}, nil
}

// ReverseTransfer implements Repository.
func (r *PostgresRepository) ReverseTransfer(ctx context.Context, senderAccountID int64, receiverAddress string, amount float64) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", transferLockKey); err != nil {
		return fmt.Errorf("acquire advisory lock: %w", err)
	}

	var senderBalance float64
	if err := tx.QueryRow(ctx,
		`SELECT balance FROM wallets WHERE account_id = $1`, senderAccountID,
	).Scan(&senderBalance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrSenderWalletNotFound
		}
		return fmt.Errorf("load sender wallet: %w", err)
	}
	var receiverBalance float64
	if err := tx.QueryRow(ctx,
		`SELECT balance FROM wallets WHERE address = $1`, receiverAddress,
	).Scan(&receiverBalance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrReceiverWalletNotFound
		}
		return fmt.Errorf("load receiver wallet: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE wallets SET balance = $2 WHERE account_id = $1`, senderAccountID, senderBalance+amount,
	); err != nil {
		return fmt.Errorf("credit sender: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`UPDATE wallets SET balance = $2 WHERE address = $1`, receiverAddress, receiverBalance-amount,
	); err != nil {
		return fmt.Errorf("debit receiver: %w", err)
	}

	return tx.Commit(ctx)
}
