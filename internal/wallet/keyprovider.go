package wallet

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"os"
	"strings"
)

// EnvKeyProvider resolves an agent's signer by treating domain.Agent's
// EncryptedSigner column as the name of an environment variable holding a
// hex-encoded private key, rather than performing any decryption itself.
// Real key custody (HSM-backed or KMS-wrapped signer material) is an
// external capability (spec.md §1 Out of scope); this provider exists so
// the core has one concrete wallet.KeyProvider to run against in a single
// process, the same direct-private-key shape the teacher's hyperliquid
// provider takes via cfg.PrivateKey rather than a vault lookup.
type EnvKeyProvider struct{}

// NewEnvKeyProvider constructs an EnvKeyProvider.
func NewEnvKeyProvider() EnvKeyProvider {
	return EnvKeyProvider{}
}

// Decrypt reads the hex private key from the environment variable named by
// encryptedSigner. An empty or unset variable is an error: callers must not
// silently run with no signer.
func (EnvKeyProvider) Decrypt(_ context.Context, encryptedSigner string) (*ecdsa.PrivateKey, error) {
	name := strings.TrimSpace(encryptedSigner)
	if name == "" {
		return nil, fmt.Errorf("wallet: empty signer reference")
	}
	raw, ok := os.LookupEnv(name)
	if !ok || strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("wallet: env var %s not set", name)
	}
	signer, err := NewSignerFromHex(raw)
	if err != nil {
		return nil, fmt.Errorf("wallet: decrypt via %s: %w", name, err)
	}
	return signer.key, nil
}
