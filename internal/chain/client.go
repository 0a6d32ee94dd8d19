// Package chain implements the read/write EVM boundary: a read-only
// ethclient wrapper for contract views and receipts, an ABI-bound Call/Send
// pair for the operator wallet's arena-lifecycle transactions, and
// revert-reason decoding for terminal-external errors (spec.md §7).
package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Client wraps a single chain id / RPC URL pair, exactly the "read-only
// client (contract reads, receipts)" spec.md §6 describes. An operator
// wallet signs arena-lifecycle transactions directly through it; agent
// transactions go through internal/wallet's bundler instead.
type Client struct {
	eth     *ethclient.Client
	chainID *big.Int
}

// NewClient dials the RPC endpoint and pins the expected chain id.
func NewClient(ctx context.Context, rpcURL string, chainID int64) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("chain: dial %s: %w", rpcURL, err)
	}
	return &Client{eth: eth, chainID: big.NewInt(chainID)}, nil
}

// Close releases the underlying RPC connection.
func (c *Client) Close() {
	if c != nil && c.eth != nil {
		c.eth.Close()
	}
}

// Call performs an eth_call against contract.method(args...) at the latest
// block and unpacks the return values per the supplied ABI, the same
// calling convention as ChoSanghyuk-blackholedex's contractclient.Call.
func (c *Client) Call(ctx context.Context, contract common.Address, contractABI abi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	input, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("chain: pack %s: %w", method, err)
	}

	out, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: input}, nil)
	if err != nil {
		return nil, fmt.Errorf("chain: call %s: %w", method, err)
	}

	values, err := contractABI.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("chain: unpack %s: %w", method, err)
	}
	return values, nil
}

// SendSigned packs contract.method(args...), signs it with the operator key,
// and broadcasts it. Used only for arena-lifecycle calls the operator wallet
// signs directly (createEpoch, endEpoch, setPendingRewardsBatch,
// sweepUnclaimedRewards) — agent executeTrade/autoRenewEpoch calls go
// through the bundler instead.
func (c *Client) SendSigned(ctx context.Context, operatorKey *ecdsa.PrivateKey, contract common.Address, contractABI abi.ABI, method string, args ...interface{}) (common.Hash, error) {
	input, err := contractABI.Pack(method, args...)
	if err != nil {
		return common.Hash{}, fmt.Errorf("chain: pack %s: %w", method, err)
	}

	from := crypto.PubkeyToAddress(operatorKey.PublicKey)
	nonce, err := c.eth.PendingNonceAt(ctx, from)
	if err != nil {
		return common.Hash{}, fmt.Errorf("chain: nonce for %s: %w", method, err)
	}

	gasTipCap, err := c.eth.SuggestGasTipCap(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("chain: gas tip cap: %w", err)
	}
	head, err := c.eth.HeaderByNumber(ctx, nil)
	if err != nil {
		return common.Hash{}, fmt.Errorf("chain: head header: %w", err)
	}
	gasFeeCap := new(big.Int).Add(gasTipCap, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))

	gasLimit, err := c.eth.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &contract, Data: input})
	if err != nil {
		return common.Hash{}, fmt.Errorf("chain: estimate gas for %s: %w", method, err)
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   c.chainID,
		Nonce:     nonce,
		GasTipCap: gasTipCap,
		GasFeeCap: gasFeeCap,
		Gas:       gasLimit,
		To:        &contract,
		Data:      input,
	})

	signer := types.LatestSignerForChainID(c.chainID)
	signedTx, err := types.SignTx(tx, signer, operatorKey)
	if err != nil {
		return common.Hash{}, fmt.Errorf("chain: sign %s: %w", method, err)
	}

	if err := c.eth.SendTransaction(ctx, signedTx); err != nil {
		return common.Hash{}, fmt.Errorf("chain: send %s: %w", method, err)
	}
	return signedTx.Hash(), nil
}

// pollInterval is how often WaitMined re-checks for a receipt.
const pollInterval = 500 * time.Millisecond

// WaitMined blocks until a transaction receipt is available or ctx expires.
func (c *Client) WaitMined(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		receipt, err := c.eth.TransactionReceipt(ctx, txHash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("chain: receipt for %s: %w", txHash, err)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// NativeBalance reads owner's native MON balance at the latest block, the
// input to the Tick Engine's per-trade gas-threshold guard (spec.md §4.5
// step 6b) and the Epoch Controller's own gas checks before broadcasting.
func (c *Client) NativeBalance(ctx context.Context, owner common.Address) (*big.Int, error) {
	bal, err := c.eth.BalanceAt(ctx, owner, nil)
	if err != nil {
		return nil, fmt.Errorf("chain: native balance of %s: %w", owner, err)
	}
	return bal, nil
}

// ChainID returns the pinned chain id.
func (c *Client) ChainID() *big.Int {
	return new(big.Int).Set(c.chainID)
}

// Eth exposes the underlying ethclient for callers (internal/wallet's
// bundler, internal/ingest) that need raw reads it doesn't wrap.
func (c *Client) Eth() *ethclient.Client {
	return c.eth
}

// DecodeRevert walks err's cause chain for hex revert data and decodes it
// against contractABI's custom errors, per spec.md §4.6's "decode the
// revert (InsufficientAgentBalance, NotRegistered, EpochNotFound, ...) into
// a human reason" requirement. Returns "" if no known revert is found.
func DecodeRevert(err error, contractABI abi.ABI) string {
	if err == nil {
		return ""
	}
	var dataErr interface{ ErrorData() interface{} }
	if !errors.As(err, &dataErr) {
		return ""
	}
	raw, ok := dataErr.ErrorData().(string)
	if !ok || raw == "" {
		return ""
	}
	data := common.FromHex(raw)
	if len(data) < 4 {
		return ""
	}
	for name, abiErr := range contractABI.Errors {
		if string(data[:4]) == string(abiErr.ID[:4]) {
			return name
		}
	}
	return ""
}
