package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/moltiarena/core/pkg/retry"
)

const defaultBundlerTimeout = 15 * time.Second

// userOperation is the msgpack-encoded envelope submitted to the bundler,
// mirroring the teacher's ExchangeRequest{Action, Nonce, Signature} shape
// but carrying raw contract calldata instead of a Hyperliquid action.
type userOperation struct {
	Sender     common.Address `msgpack:"sender"`
	Target     common.Address `msgpack:"target"`
	CallData   []byte         `msgpack:"callData"`
	Nonce      int64          `msgpack:"nonce"`
	ChainID    int64          `msgpack:"chainId"`
	EntryPoint common.Address `msgpack:"entryPoint"`
	Signature  []byte         `msgpack:"signature"`
}

type submitResponse struct {
	TxHash string `json:"txHash"`
	Error  string `json:"error,omitempty"`
}

// BundlerClient submits signed user operations on behalf of agent smart
// accounts. The bundler itself is an external service (spec.md §1 Out of
// scope); this client only shapes and signs the envelope it expects.
type BundlerClient struct {
	url        string
	httpClient *http.Client
	retry      *retry.Handler
	chainID    int64
	entryPoint common.Address
}

// Config configures a BundlerClient.
type Config struct {
	URL        string
	ChainID    int64
	EntryPoint common.Address
	Timeout    time.Duration
	MaxRetries int
}

// NewBundlerClient constructs a client bound to one bundler URL, chain, and
// account-abstraction entry point.
func NewBundlerClient(cfg Config) *BundlerClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultBundlerTimeout
	}
	return &BundlerClient{
		url:        cfg.URL,
		httpClient: &http.Client{Timeout: timeout},
		retry:      retry.New(retry.Config{MaxRetries: cfg.MaxRetries}),
		chainID:    cfg.ChainID,
		entryPoint: cfg.EntryPoint,
	}
}

// Submit signs (sender, target, callData, nonce) with signer and submits it
// to the bundler, retrying transient failures per pkg/retry's
// substring-classified policy. sender is the agent's smart-account address
// (domain.Agent.SmartAccount) -- distinct from signer's own address, which
// is the owner key that authorizes the smart account, not the account
// itself. A distinct idempotency key is generated per call and attached as
// a header so a retried submission after a dropped response is deduplicated
// by the bundler rather than double-executed (spec.md §9: "at-most-once
// user-visible trade commits ... with an idempotent recovery path").
func (b *BundlerClient) Submit(ctx context.Context, signer *Signer, sender, target common.Address, callData []byte, nonce int64) (common.Hash, error) {
	digest, err := HashUserOperation(b.chainID, b.entryPoint, sender, target, callData, nonce)
	if err != nil {
		return common.Hash{}, fmt.Errorf("wallet: hash user operation: %w", err)
	}
	sig, err := signer.Sign(digest)
	if err != nil {
		return common.Hash{}, fmt.Errorf("wallet: sign user operation: %w", err)
	}

	op := userOperation{
		Sender:     sender,
		Target:     target,
		CallData:   callData,
		Nonce:      nonce,
		ChainID:    b.chainID,
		EntryPoint: b.entryPoint,
		Signature:  sig,
	}
	payload, err := msgpack.Marshal(op)
	if err != nil {
		return common.Hash{}, fmt.Errorf("wallet: encode user operation: %w", err)
	}

	idempotencyKey := uuid.NewString()
	var txHash common.Hash
	err = b.retry.Do(ctx, func() error {
		hash, submitErr := b.post(ctx, payload, idempotencyKey)
		if submitErr != nil {
			return submitErr
		}
		txHash = hash
		return nil
	})
	if err != nil {
		return common.Hash{}, err
	}
	return txHash, nil
}

func (b *BundlerClient) post(ctx context.Context, payload []byte, idempotencyKey string) (common.Hash, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url, bytes.NewReader(payload))
	if err != nil {
		return common.Hash{}, fmt.Errorf("wallet: build bundler request: %w", err)
	}
	req.Header.Set("Content-Type", "application/msgpack")
	req.Header.Set("Idempotency-Key", idempotencyKey)

	resp, err := b.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return common.Hash{}, ctx.Err()
		}
		return common.Hash{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return common.Hash{}, fmt.Errorf("wallet: read bundler response: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= 300 {
		return common.Hash{}, fmt.Errorf("wallet: bundler http status %d: %s", resp.StatusCode, string(body))
	}

	var out submitResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return common.Hash{}, fmt.Errorf("wallet: decode bundler response: %w", err)
	}
	if out.Error != "" {
		return common.Hash{}, fmt.Errorf("wallet: bundler rejected user operation: %s", out.Error)
	}
	if len(out.TxHash) != 66 {
		return common.Hash{}, fmt.Errorf("wallet: bundler returned malformed tx hash %q", out.TxHash)
	}
	return common.HexToHash(out.TxHash), nil
}
