package auth

import (
	"crypto/rand"
	"fmt"
	"os"
)

// secretLen is the size of the process-wide HMAC signing secret.
const secretLen = 32

// LoadOrCreateSecret returns the signing secret persisted at path, creating
// a fresh 32-byte secret on first use. It is called once at startup; the
// returned secret is process-wide configuration, not lazy singleton state.
// A persisted file shorter than 32 bytes is treated as absent and replaced.
func LoadOrCreateSecret(path string) ([]byte, error) {
	if existing, err := os.ReadFile(path); err == nil && len(existing) >= secretLen {
		return existing, nil
	} else if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read secret file: %w", err)
	}

	secret := make([]byte, secretLen)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generate secret: %w", err)
	}
	if err := os.WriteFile(path, secret, 0o600); err != nil {
		return nil, fmt.Errorf("write secret file: %w", err)
	}
	return secret, nil
}
