// Package client provides the Go SDK for the SVWEN ledger HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// APIError is the decoded error envelope returned by the ledger API.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s (HTTP %d)", e.Code, e.Message, e.StatusCode)
}

// LoginResult is the response of Login.
type LoginResult struct {
	Token    string `json:"token"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// Profile is the response of Me.
type Profile struct {
	ID            int64   `json:"id"`
	Username      string  `json:"username"`
	Role          string  `json:"role"`
	WalletAddress string  `json:"wallet_address"`
	Balance       float64 `json:"balance"`
}

// TransferReceipt is the response of Send and SendByUsername.
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

// Block is a chain block as served by the API.
type Block struct {
	Index        int    `json:"index"`
	Timestamp    string `json:"timestamp"`
	Data         string `json:"data"`
	PreviousHash string `json:"previous_hash"`
	Hash         string `json:"hash"`
}

// VerifyResult is the response of Verify.
type VerifyResult struct {
	Valid  bool   `json:"valid"`
	Report string `json:"report,omitempty"`
}

// Client talks to a ledger server.
type Client struct {
	base       string
	httpClient *http.Client
	token      string
}

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithToken attaches a session token to every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// New creates a Client for the ledger server at base.
func New(base string, opts ...Option) (*Client, error) {
	base = strings.TrimRight(base, "/")
	if base == "" {
		return nil, fmt.Errorf("server base URL is required")
	}
	c := &Client{
		base:       base,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// SetToken replaces the session token used for subsequent requests.
func (c *Client) SetToken(token string) { c.token = token }

// Login authenticates and stores the returned token on the client.
func (c *Client) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	var out LoginResult
	err := c.do(ctx, http.MethodPost, "/api/v1/auth/login",
		map[string]string{"username": username, "password": password}, &out)
	if err != nil {
		return nil, err
	}
	c.token = out.Token
	return &out, nil
}

// Me fetches the authenticated caller's profile.
func (c *Client) Me(ctx context.Context) (*Profile, error) {
	var out Profile
	if err := c.do(ctx, http.MethodGet, "/api/v1/me", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Send transfers amount to the wallet at receiverAddress.
func (c *Client) Send(ctx context.Context, receiverAddress, amount string) (*TransferReceipt, error) {
	var out TransferReceipt
	err := c.do(ctx, http.MethodPost, "/api/v1/transfers",
		map[string]string{"receiver_wallet_address": receiverAddress, "amount": amount}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// SendByUsername transfers amount to the wallet owned by receiverUsername.
func (c *Client) SendByUsername(ctx context.Context, receiverUsername, amount string) (*TransferReceipt, error) {
	var out TransferReceipt
	err := c.do(ctx, http.MethodPost, "/api/v1/transfers/by-username",
		map[string]string{"receiver_username": receiverUsername, "amount": amount}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Transactions lists the caller's chain records.
func (c *Client) Transactions(ctx context.Context) ([]Transaction, error) {
	var out struct {
		Transactions []Transaction `json:"transactions"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/transactions", nil, &out); err != nil {
		return nil, err
	}
	return out.Transactions, nil
}

// SearchTransactions filters the caller's chain records by query.
func (c *Client) SearchTransactions(ctx context.Context, query string) ([]Transaction, error) {
	var out struct {
		Transactions []Transaction `json:"transactions"`
	}
	path := "/api/v1/transactions/search?q=" + url.QueryEscape(query)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Transactions, nil
}

// Chain fetches the full block chain.
func (c *Client) Chain(ctx context.Context) ([]Block, error) {
	var out struct {
		Blocks []Block `json:"blocks"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/chain", nil, &out); err != nil {
		return nil, err
	}
	return out.Blocks, nil
}

// Block fetches a single block by index.
func (c *Client) Block(ctx context.Context, index int) (*Block, error) {
	var out Block
	if err := c.do(ctx, http.MethodGet, "/api/v1/chain/"+strconv.Itoa(index), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Verify re-walks the chain server-side. Tester role required.
func (c *Client) Verify(ctx context.Context) (*VerifyResult, error) {
	var out VerifyResult
	if err := c.do(ctx, http.MethodGet, "/api/v1/admin/verify", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Tamper mutates a block's payload server-side (in memory only).
// Tester role required.
func (c *Client) Tamper(ctx context.Context, index int, data string) error {
	return c.do(ctx, http.MethodPost, "/api/v1/admin/tamper",
		map[string]any{"index": index, "data": data}, nil)
}

// Integrity reports the cached chain validity flag. Tester role required.
func (c *Client) Integrity(ctx context.Context) (bool, error) {
	var out struct {
		Valid bool `json:"valid"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/admin/integrity", nil, &out); err != nil {
		return false, err
	}
	return out.Valid, nil
}

// do performs one API request, decoding the error envelope on failure.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var envelope struct {
			Error APIError `json:"error"`
		}
		if err := json.Unmarshal(data, &envelope); err == nil && envelope.Error.Code != "" {
			envelope.Error.StatusCode = resp.StatusCode
			return &envelope.Error
		}
		return fmt.Errorf("%s %s: HTTP %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(data)))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
