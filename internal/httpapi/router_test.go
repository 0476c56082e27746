package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/svwenlabs/svwen-ledger/internal/auth"
	"github.com/svwenlabs/svwen-ledger/internal/chain"
	"github.com/svwenlabs/svwen-ledger/internal/httpapi"
	"github.com/svwenlabs/svwen-ledger/internal/ledger"
	"github.com/svwenlabs/svwen-ledger/internal/wallet"
)

type testServer struct {
	srv  *httptest.Server
	repo *wallet.MemoryRepository
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()

	c, err := chain.Load(ctx, chain.NewMemoryStore(), zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.CreateGenesis(ctx); err != nil {
		t.Fatal(err)
	}

	repo := wallet.NewMemoryRepository()
	tokens := auth.NewTokenIssuer(bytes.Repeat([]byte{3}, 32), time.Hour)
	svc := ledger.NewService(c, repo, tokens, zap.NewNop())
	router := httpapi.NewRouter(svc, httpapi.RouterConfig{}, zap.NewNop())

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &testServer{srv: srv, repo: repo}
}

// seedUser creates an account with a real password hash.
func (ts *testServer) seedUser(t *testing.T, username, password, role string, balance float64) *wallet.Wallet {
	t.Helper()
	hash, err := auth.HashPassword(password)
	if err != nil {
		t.Fatal(err)
	}
	_, w, err := ts.repo.CreateAccountWithWallet(context.Background(), username, hash, role, balance)
	if err != nil {
		t.Fatal(err)
	}
	return w
}

func (ts *testServer) request(t *testing.T, method, path, token string, body any) (*http.Response, map[string]json.RawMessage) {
	t.Helper()

	var reqBody *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reqBody = bytes.NewReader(b)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, ts.srv.URL+path, reqBody)
	if err != nil {
		t.Fatal(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var fields map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&fields); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp, fields
}

func errorCode(t *testing.T, fields map[string]json.RawMessage) string {
	t.Helper()
	var envelope struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(fields["error"], &envelope); err != nil {
		t.Fatalf("decode error envelope: %v", err)
	}
	return envelope.Code
}

func (ts *testServer) login(t *testing.T, username, password string) string {
	t.Helper()
	resp, fields := ts.request(t, http.MethodPost, "/api/v1/auth/login", "",
		map[string]string{"username": username, "password": password})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status: %d", resp.StatusCode)
	}
	var token string
	if err := json.Unmarshal(fields["token"], &token); err != nil {
		t.Fatal(err)
	}
	return token
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)
	resp, err := http.Get(ts.srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthz status: %d", resp.StatusCode)
	}
}

func TestLoginAndMe(t *testing.T) {
	ts := newTestServer(t)
	w := ts.seedUser(t, "alice", "s3cret", wallet.RoleUser, 500)

	token := ts.login(t, "alice", "s3cret")

	resp, fields := ts.request(t, http.MethodGet, "/api/v1/me", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("me status: %d", resp.StatusCode)
	}
	var addr string
	if err := json.Unmarshal(fields["wallet_address"], &addr); err != nil {
		t.Fatal(err)
	}
	if addr != w.Address {
		t.Errorf("wallet address: got %q, want %q", addr, w.Address)
	}

	// Bad credentials get the envelope with UNAUTHORIZED.
	resp, fields = ts.request(t, http.MethodPost, "/api/v1/auth/login", "",
		map[string]string{"username": "alice", "password": "wrong"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("bad login status: %d", resp.StatusCode)
	}
	if code := errorCode(t, fields); code != "UNAUTHORIZED" {
		t.Errorf("bad login code: %q", code)
	}

	// Missing token on a protected route.
	resp, fields = ts.request(t, http.MethodGet, "/api/v1/me", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("me without token status: %d", resp.StatusCode)
	}
	if code := errorCode(t, fields); code != "UNAUTHORIZED" {
		t.Errorf("me without token code: %q", code)
	}
}

func TestTransferFlow(t *testing.T) {
	ts := newTestServer(t)
	ts.seedUser(t, "alice", "pw", wallet.RoleUser, 1000)
	bobWallet := ts.seedUser(t, "bob", "pw", wallet.RoleUser, 0)

	token := ts.login(t, "alice", "pw")

	resp, fields := ts.request(t, http.MethodPost, "/api/v1/transfers", token,
		map[string]string{"receiver_wallet_address": bobWallet.Address, "amount": "250.50"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("transfer status: %d", resp.StatusCode)
	}
	var amount string
	if err := json.Unmarshal(fields["amount"], &amount); err != nil {
		t.Fatal(err)
	}
	if amount != "250.50" {
		t.Errorf("amount: got %q, want 250.50", amount)
	}

	// Insufficient balance surfaces as a 409 with its own code.
	resp, fields = ts.request(t, http.MethodPost, "/api/v1/transfers", token,
		map[string]string{"receiver_wallet_address": bobWallet.Address, "amount": "100000"})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("overdraft status: %d", resp.StatusCode)
	}
	if code := errorCode(t, fields); code != "INSUFFICIENT_BALANCE" {
		t.Errorf("overdraft code: %q", code)
	}

	// Transfer by username.
	resp, _ = ts.request(t, http.MethodPost, "/api/v1/transfers/by-username", token,
		map[string]string{"receiver_username": "bob", "amount": "10"})
	if resp.StatusCode != http.StatusCreated {
		t.Errorf("by-username status: %d", resp.StatusCode)
	}

	// Transaction listing sees both transfers.
	resp, fields = ts.request(t, http.MethodGet, "/api/v1/transactions", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("transactions status: %d", resp.StatusCode)
	}
	var count int
	if err := json.Unmarshal(fields["count"], &count); err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Errorf("transaction count: got %d, want 2", count)
	}

	// Chain shows genesis plus two transfer blocks.
	resp, fields = ts.request(t, http.MethodGet, "/api/v1/chain", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("chain status: %d", resp.StatusCode)
	}
	var length int
	if err := json.Unmarshal(fields["length"], &length); err != nil {
		t.Fatal(err)
	}
	if length != 3 {
		t.Errorf("chain length: got %d, want 3", length)
	}
}

func TestAdminRoutes_roleGated(t *testing.T) {
	ts := newTestServer(t)
	ts.seedUser(t, "alice", "pw", wallet.RoleUser, 1000)
	bobWallet := ts.seedUser(t, "bob", "pw", wallet.RoleUser, 0)
	ts.seedUser(t, "tester", "pw", wallet.RoleTester, 0)

	userToken := ts.login(t, "alice", "pw")
	testerToken := ts.login(t, "tester", "pw")

	// Plain users are rejected.
	resp, fields := ts.request(t, http.MethodGet, "/api/v1/admin/verify", userToken, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("verify as user status: %d", resp.StatusCode)
	}
	if code := errorCode(t, fields); code != "FORBIDDEN" {
		t.Errorf("verify as user code: %q", code)
	}

	// Create a block to tamper with.
	resp, _ = ts.request(t, http.MethodPost, "/api/v1/transfers", userToken,
		map[string]string{"receiver_wallet_address": bobWallet.Address, "amount": "5"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("transfer status: %d", resp.StatusCode)
	}

	// Verify passes, tamper, verify fails, integrity reflects it.
	resp, fields = ts.request(t, http.MethodGet, "/api/v1/admin/verify", testerToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("verify status: %d", resp.StatusCode)
	}
	var valid bool
	json.Unmarshal(fields["valid"], &valid) //nolint:errcheck
	if !valid {
		t.Error("fresh chain should verify")
	}

	resp, _ = ts.request(t, http.MethodPost, "/api/v1/admin/tamper", testerToken,
		map[string]any{"index": 1, "data": "forged"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("tamper status: %d", resp.StatusCode)
	}

	resp, fields = ts.request(t, http.MethodGet, "/api/v1/admin/verify", testerToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("re-verify status: %d", resp.StatusCode)
	}
	json.Unmarshal(fields["valid"], &valid) //nolint:errcheck
	if valid {
		t.Error("tampered chain should not verify")
	}

	resp, fields = ts.request(t, http.MethodGet, "/api/v1/admin/integrity", testerToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("integrity status: %d", resp.StatusCode)
	}
	json.Unmarshal(fields["valid"], &valid) //nolint:errcheck
	if valid {
		t.Error("integrity flag should be false after tamper")
	}

	// Transfers are refused while the chain is compromised.
	resp, fields = ts.request(t, http.MethodPost, "/api/v1/transfers", userToken,
		map[string]string{"receiver_wallet_address": bobWallet.Address, "amount": "5"})
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("transfer on tampered chain status: %d", resp.StatusCode)
	}
	if code := errorCode(t, fields); code != "INTEGRITY_COMPROMISED" {
		t.Errorf("transfer on tampered chain code: %q", code)
	}
}
