// Package wallet implements the account-abstracted wallet boundary: a
// per-agent signer over a decrypted private key, and a bundler client that
// wraps calldata into a signed user-operation envelope for submission.
// Wallet creation and key encryption/decryption are external capabilities
// (spec.md §1 Out of scope) — this package only signs with key material it
// is handed, the same separation the teacher draws around Signer in
// pkg/exchange/hyperliquid/auth.go.
package wallet

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	mathhex "github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// KeyProvider decrypts an agent's stored signer material (domain.Agent's
// EncryptedSigner column) into a usable private key. Encryption is treated
// as an external capability the core depends on through this narrow
// interface, never implemented here.
type KeyProvider interface {
	Decrypt(ctx context.Context, encryptedSigner string) (*ecdsa.PrivateKey, error)
}

// Signer signs digests and EIP-712 typed-data hashes on behalf of one
// agent's smart-account, mirroring the shape of the teacher's
// PrivateKeySigner without the Hyperliquid-specific message construction.
type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewSigner wraps an already-decrypted private key.
func NewSigner(key *ecdsa.PrivateKey) (*Signer, error) {
	if key == nil {
		return nil, errors.New("wallet: nil signing key")
	}
	return &Signer{key: key, address: crypto.PubkeyToAddress(key.PublicKey)}, nil
}

// NewSignerFromHex builds a Signer from a hex-encoded private key, the same
// entry point as the teacher's NewPrivateKeySigner.
func NewSignerFromHex(privateKeyHex string) (*Signer, error) {
	keyHex := strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x")
	if keyHex == "" {
		return nil, errors.New("wallet: empty private key")
	}
	key, err := crypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("wallet: decode private key: %w", err)
	}
	return NewSigner(key)
}

// Address returns the smart-account signer's address.
func (s *Signer) Address() common.Address {
	return s.address
}

// Sign produces a 65-byte (r, s, v) ECDSA signature over a 32-byte digest.
func (s *Signer) Sign(digest []byte) ([]byte, error) {
	if s == nil || s.key == nil {
		return nil, errors.New("wallet: signer not initialized")
	}
	if len(digest) != 32 {
		return nil, fmt.Errorf("wallet: expected 32-byte digest, got %d bytes", len(digest))
	}
	sig, err := crypto.Sign(digest, s.key)
	if err != nil {
		return nil, fmt.Errorf("wallet: sign digest: %w", err)
	}
	// crypto.Sign returns v in {0,1}; user-operation verification contracts
	// universally expect the Ethereum-style {27,28} convention.
	sig[64] += 27
	return sig, nil
}

// userOpDomainName/Version name the EIP-712 domain the arena's
// account-abstraction entry point verifies signatures against. The chain id
// and entry point address (the verifying contract) are passed to
// HashUserOperation per call since they vary per deployment (spec.md §6:
// the smart-contract surface is an ABI plus a documented semantic model,
// not a fixed address).
const (
	userOpDomainName    = "MoltiArenaUserOperation"
	userOpDomainVersion = "1"
)

// HashUserOperation computes the EIP-712 digest for a user operation
// (sender, target, calldata, nonce), grounded on the teacher's
// buildEIP712Message/typedDataHash flow but over a UserOperation primary
// type instead of Hyperliquid's Agent/connectionId action envelope.
func HashUserOperation(chainID int64, entryPoint common.Address, sender, target common.Address, callData []byte, nonce int64) ([]byte, error) {
	domain := apitypes.TypedDataDomain{
		Name:              userOpDomainName,
		Version:           userOpDomainVersion,
		ChainId:           mathhex.NewHexOrDecimal256(chainID),
		VerifyingContract: entryPoint.Hex(),
	}
	message := map[string]interface{}{
		"sender":   sender.Hex(),
		"target":   target.Hex(),
		"callData": "0x" + common.Bytes2Hex(callData),
		"nonce":    mathhex.NewHexOrDecimal256(nonce),
	}
	typedData := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"UserOperation": {
				{Name: "sender", Type: "address"},
				{Name: "target", Type: "address"},
				{Name: "callData", Type: "bytes"},
				{Name: "nonce", Type: "uint256"},
			},
		},
		PrimaryType: "UserOperation",
		Domain:      domain,
		Message:     message,
	}
	return typedDataHash(typedData)
}

func typedDataHash(td apitypes.TypedData) ([]byte, error) {
	domainSeparator, err := td.HashStruct("EIP712Domain", td.Domain.Map())
	if err != nil {
		return nil, fmt.Errorf("wallet: hash domain: %w", err)
	}
	messageHash, err := td.HashStruct(td.PrimaryType, td.Message)
	if err != nil {
		return nil, fmt.Errorf("wallet: hash primary type: %w", err)
	}
	raw := make([]byte, 0, 2+len(domainSeparator)+len(messageHash))
	raw = append(raw, 0x19, 0x01)
	raw = append(raw, domainSeparator...)
	raw = append(raw, messageHash...)
	return crypto.Keccak256(raw), nil
}
