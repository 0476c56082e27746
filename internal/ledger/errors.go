package ledger

// Code is a stable, user-visible error code.
type Code string

const (
	CodeUnauthorized         Code = "UNAUTHORIZED"
	CodeForbidden            Code = "FORBIDDEN"
	CodeNotFound             Code = "NOT_FOUND"
	CodeInvalidInput         Code = "INVALID_INPUT"
	CodeConflict             Code = "CONFLICT"
	CodeInsufficientBalance  Code = "INSUFFICIENT_BALANCE"
	CodeIntegrityCompromised Code = "INTEGRITY_COMPROMISED"
	CodeExhausted            Code = "EXHAUSTED"
	CodeLedgerAppendFailed   Code = "LEDGER_APPEND_FAILED"
	CodeInternal             Code = "INTERNAL"
)

// Error is a taxonomy error: a stable code plus a human-readable message.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string { return string(e.Code) + ": " + e.Message }

// Sentinel errors returned by the Service. Compare with errors.Is, or
// extract the code with errors.As for transport mapping.
var (
	ErrUnauthorized         = &Error{CodeUnauthorized, "invalid or expired session"}
	ErrForbidden            = &Error{CodeForbidden, "operation requires the tester role"}
	ErrReceiverNotFound     = &Error{CodeNotFound, "receiver wallet not found"}
	ErrSenderNotFound       = &Error{CodeNotFound, "sender wallet not found"}
	ErrBlockNotFound        = &Error{CodeNotFound, "block not found"}
	ErrInvalidAmount        = &Error{CodeInvalidInput, "amount must be a positive decimal"}
	ErrEmptyQuery           = &Error{CodeInvalidInput, "query cannot be empty"}
	ErrEmptyReceiver        = &Error{CodeInvalidInput, "receiver is required"}
	ErrInvalidCredentials   = &Error{CodeUnauthorized, "invalid credentials"}
	ErrSelfTransfer         = &Error{CodeConflict, "cannot send to your own wallet"}
	ErrInsufficientBalance  = &Error{CodeInsufficientBalance, "insufficient balance"}
	ErrIntegrityCompromised = &Error{CodeIntegrityCompromised, "ledger integrity check failed"}
	ErrLedgerAppendFailed   = &Error{CodeLedgerAppendFailed, "ledger rejected the transaction; transfer was reversed"}
	ErrTamperGenesis        = &Error{CodeInvalidInput, "cannot tamper genesis block"}
	ErrTamperEmptyData      = &Error{CodeInvalidInput, "tamper data cannot be empty"}
)
