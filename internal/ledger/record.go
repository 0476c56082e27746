package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Record keys used in chain block payloads.
const (
	recordKeyTxHash = "TxHash"
	recordKeyFrom   = "From"
	recordKeyTo     = "To"
	recordKeyAmount = "Amount"
	recordKeyType   = "Type"
	recordKeyTime   = "Time"
)

// TypeTransfer is the record type of a balance transfer.
const TypeTransfer = "TRANSFER"

// FormatRecord builds the pipe-delimited key=value payload stored in a block.
func FormatRecord(txHash, from, to, amount, timestamp string) string {
	return fmt.Sprintf("%s=%s | %s=%s | %s=%s | %s=%s | %s=%s | %s=%s",
		recordKeyTxHash, txHash,
		recordKeyFrom, from,
		recordKeyTo, to,
		recordKeyAmount, amount,
		recordKeyType, TypeTransfer,
		recordKeyTime, timestamp,
	)
}

// ParseRecord splits a pipe-delimited key=value payload into a map.
// Parsing is permissive: key order is not significant, unknown keys are
// kept, and segments without "=" are ignored.
func ParseRecord(data string) map[string]string {
	out := make(map[string]string)
	for _, part := range strings.Split(data, "|") {
		part = strings.TrimSpace(part)
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		out[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return out
}

// TransactionHash computes the SHA-256 hex digest identifying a transfer.
func TransactionHash(senderWallet, receiverWallet, amount, timestamp string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%s", senderWallet, receiverWallet, amount, timestamp)))
	return hex.EncodeToString(sum[:])
}
