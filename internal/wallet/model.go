package wallet

// Account roles. Role is stored as a free string so future roles need no migration.
const (
	RoleUser   = "user"
	RoleTester = "tester"
)

// Account is a user identity holding exactly one wallet.
type Account struct {
	ID           int64  `json:"id"`
	Username     string `json:"username"`
	PasswordHash string `json:"-"`
	Role         string `json:"role"`
}

// Wallet holds the balance attached 1:1 to an account. The address is an
// opaque random token, collision-checked at creation.
type Wallet struct {
	Address   string  `json:"address"`
	AccountID int64   `json:"account_id"`
	Balance   float64 `json:"balance"`
}

// TransferResult reports the post-transfer state of both wallets.
type TransferResult struct {
	SenderWalletAddress   string
	ReceiverWalletAddress string
	SenderBalance         float64
	ReceiverBalance       float64
}
