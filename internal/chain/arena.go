package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/moltiarena/core/internal/domain"
)

// arenaABIJSON is the minimal ABI surface spec.md §6 documents: epoch
// lifecycle, trade execution, reward distribution, and the read views the
// Tick Engine and Epoch Controller depend on. Mirrors
// ChoSanghyuk-blackholedex's pattern of loading a fixed ABI once and binding
// a contractclient to it, except the ABI here is a literal instead of a
// Hardhat-artifact file since there is no deployed-artifacts directory in
// this domain.
const arenaABIJSON = `[
	{"type":"function","name":"createEpoch","stateMutability":"nonpayable","inputs":[
		{"name":"arenaId","type":"uint256"},{"name":"startSec","type":"uint256"},{"name":"endSec","type":"uint256"}
	],"outputs":[]},
	{"type":"function","name":"autoRenewEpoch","stateMutability":"nonpayable","inputs":[
		{"name":"agentId","type":"uint256"},{"name":"arenaId","type":"uint256"},{"name":"epochId","type":"uint256"}
	],"outputs":[]},
	{"type":"function","name":"endEpoch","stateMutability":"nonpayable","inputs":[
		{"name":"arenaId","type":"uint256"},{"name":"epochId","type":"uint256"}
	],"outputs":[]},
	{"type":"function","name":"setPendingRewardsBatch","stateMutability":"nonpayable","inputs":[
		{"name":"arenaId","type":"uint256"},{"name":"epochId","type":"uint256"},
		{"name":"agentIds","type":"uint256[]"},{"name":"amountsWei","type":"uint256[]"}
	],"outputs":[]},
	{"type":"function","name":"sweepUnclaimedRewards","stateMutability":"nonpayable","inputs":[
		{"name":"arenaId","type":"uint256"},{"name":"epochId","type":"uint256"},{"name":"agentIds","type":"uint256[]"}
	],"outputs":[]},
	{"type":"function","name":"getPendingReward","stateMutability":"view","inputs":[
		{"name":"arenaId","type":"uint256"},{"name":"epochId","type":"uint256"},{"name":"agentId","type":"uint256"}
	],"outputs":[{"name":"amountWei","type":"uint256"}]},
	{"type":"function","name":"rewardPool","stateMutability":"view","inputs":[
		{"name":"arenaId","type":"uint256"},{"name":"epochId","type":"uint256"}
	],"outputs":[{"name":"amountWei","type":"uint256"}]},
	{"type":"function","name":"executeTrade","stateMutability":"nonpayable","inputs":[
		{"name":"agentId","type":"uint256"},{"name":"arenaId","type":"uint256"},{"name":"epochId","type":"uint256"},
		{"name":"action","type":"uint8"},{"name":"sizePctWei","type":"uint256"},
		{"name":"buyAmountWei","type":"uint256"},{"name":"priceWei","type":"uint256"},{"name":"tick","type":"uint256"}
	],"outputs":[]},
	{"type":"function","name":"getPortfolio","stateMutability":"view","inputs":[
		{"name":"agentId","type":"uint256"},{"name":"arenaId","type":"uint256"}
	],"outputs":[{"name":"moltiLocked","type":"uint256"},{"name":"tokenUnits","type":"uint256"}]},
	{"type":"function","name":"nextEpochId","stateMutability":"view","inputs":[
		{"name":"arenaId","type":"uint256"}
	],"outputs":[{"name":"id","type":"uint256"}]},
	{"type":"function","name":"epochs","stateMutability":"view","inputs":[
		{"name":"arenaId","type":"uint256"},{"name":"epochId","type":"uint256"}
	],"outputs":[
		{"name":"startSec","type":"uint256"},{"name":"endSec","type":"uint256"},{"name":"ended","type":"bool"}
	]},
	{"type":"event","name":"EpochCreated","inputs":[
		{"name":"arenaId","type":"uint256","indexed":true},{"name":"epochId","type":"uint256","indexed":true}
	],"anonymous":false},
	{"type":"error","name":"InsufficientAgentBalance","inputs":[]},
	{"type":"error","name":"NotRegistered","inputs":[]},
	{"type":"error","name":"EpochNotFound","inputs":[]},
	{"type":"error","name":"EpochAlreadyEnded","inputs":[]},
	{"type":"error","name":"AgentNotFound","inputs":[]},
	{"type":"error","name":"ArenaNotFound","inputs":[]}
]`

// ArenaContract binds a single arena contract deployment (spec.md §6's
// "smart-contract surface") to a Client, the same
// client+address+abi shape as ChoSanghyuk-blackholedex's NewContractClient.
type ArenaContract struct {
	client  *Client
	address common.Address
	abi     abi.ABI
}

// NewArenaContract parses the fixed ABI once and binds it to address.
func NewArenaContract(client *Client, address common.Address) (*ArenaContract, error) {
	parsed, err := abi.JSON(strings.NewReader(arenaABIJSON))
	if err != nil {
		return nil, fmt.Errorf("chain: parse arena abi: %w", err)
	}
	return &ArenaContract{client: client, address: address, abi: parsed}, nil
}

// CreateEpoch is an operator-signed arena-lifecycle transaction (spec.md §6:
// "An operator wallet signs arena-lifecycle transactions directly").
func (a *ArenaContract) CreateEpoch(ctx context.Context, operatorKey *ecdsa.PrivateKey, onChainArenaID int64, startSec, endSec int64) (common.Hash, error) {
	return a.client.SendSigned(ctx, operatorKey, a.address, a.abi, "createEpoch",
		big.NewInt(onChainArenaID), big.NewInt(startSec), big.NewInt(endSec))
}

// EndEpoch ends the given epoch. Callers should treat EpochAlreadyEnded
// reverts as success per spec.md §4.6 step 2.
func (a *ArenaContract) EndEpoch(ctx context.Context, operatorKey *ecdsa.PrivateKey, onChainArenaID, onChainEpochID int64) (common.Hash, error) {
	return a.client.SendSigned(ctx, operatorKey, a.address, a.abi, "endEpoch",
		big.NewInt(onChainArenaID), big.NewInt(onChainEpochID))
}

// SetPendingRewardsBatch stakes each winner's pending reward for claiming.
func (a *ArenaContract) SetPendingRewardsBatch(ctx context.Context, operatorKey *ecdsa.PrivateKey, onChainArenaID, onChainEpochID int64, onChainAgentIDs []int64, amountsWei []*big.Int) (common.Hash, error) {
	ids := make([]*big.Int, len(onChainAgentIDs))
	for i, id := range onChainAgentIDs {
		ids[i] = big.NewInt(id)
	}
	return a.client.SendSigned(ctx, operatorKey, a.address, a.abi, "setPendingRewardsBatch",
		big.NewInt(onChainArenaID), big.NewInt(onChainEpochID), ids, amountsWei)
}

// SweepUnclaimedRewards reclaims rewards whose 30-day claim window (spec.md
// §4.6) has passed without a claim.
func (a *ArenaContract) SweepUnclaimedRewards(ctx context.Context, operatorKey *ecdsa.PrivateKey, onChainArenaID, onChainEpochID int64, onChainAgentIDs []int64) (common.Hash, error) {
	ids := make([]*big.Int, len(onChainAgentIDs))
	for i, id := range onChainAgentIDs {
		ids[i] = big.NewInt(id)
	}
	return a.client.SendSigned(ctx, operatorKey, a.address, a.abi, "sweepUnclaimedRewards",
		big.NewInt(onChainArenaID), big.NewInt(onChainEpochID), ids)
}

// GetPortfolio reads the authoritative on-chain (moltiLocked, tokenUnits)
// pair, spec.md §4.5 step 3's source of truth for reconciliation.
func (a *ArenaContract) GetPortfolio(ctx context.Context, onChainAgentID, onChainArenaID int64) (moltiLockedWei, tokenUnitsWei *big.Int, err error) {
	out, err := a.client.Call(ctx, a.address, a.abi, "getPortfolio",
		big.NewInt(onChainAgentID), big.NewInt(onChainArenaID))
	if err != nil {
		return nil, nil, err
	}
	if len(out) != 2 {
		return nil, nil, fmt.Errorf("chain: getPortfolio: unexpected output shape %v", out)
	}
	locked, ok1 := out[0].(*big.Int)
	units, ok2 := out[1].(*big.Int)
	if !ok1 || !ok2 {
		return nil, nil, fmt.Errorf("chain: getPortfolio: unexpected output types %v", out)
	}
	return locked, units, nil
}

// NextEpochID reads nextEpochId(arenaId), the fallback source for the new
// epoch id when the EpochCreated event cannot be parsed from the receipt
// (spec.md §4.6 step 3: "fallback: read nextEpochId - 1").
func (a *ArenaContract) NextEpochID(ctx context.Context, onChainArenaID int64) (int64, error) {
	out, err := a.client.Call(ctx, a.address, a.abi, "nextEpochId", big.NewInt(onChainArenaID))
	if err != nil {
		return 0, err
	}
	id, ok := out[0].(*big.Int)
	if !ok {
		return 0, fmt.Errorf("chain: nextEpochId: unexpected output %v", out)
	}
	return id.Int64(), nil
}

// EpochView is the on-chain epochs(arenaId, epochId) view.
type EpochView struct {
	StartSec int64
	EndSec   int64
	Ended    bool
}

// GetEpoch reads epochs(arenaId, epochId).
func (a *ArenaContract) GetEpoch(ctx context.Context, onChainArenaID, onChainEpochID int64) (EpochView, error) {
	out, err := a.client.Call(ctx, a.address, a.abi, "epochs", big.NewInt(onChainArenaID), big.NewInt(onChainEpochID))
	if err != nil {
		return EpochView{}, err
	}
	if len(out) != 3 {
		return EpochView{}, fmt.Errorf("chain: epochs: unexpected output shape %v", out)
	}
	start, ok1 := out[0].(*big.Int)
	end, ok2 := out[1].(*big.Int)
	ended, ok3 := out[2].(bool)
	if !ok1 || !ok2 || !ok3 {
		return EpochView{}, fmt.Errorf("chain: epochs: unexpected output types %v", out)
	}
	return EpochView{StartSec: start.Int64(), EndSec: end.Int64(), Ended: ended}, nil
}

// RewardPool reads the epoch's total on-chain reward pool, the input to the
// Epoch Controller's winner-split computation (spec.md §4.6 step 1).
func (a *ArenaContract) RewardPool(ctx context.Context, onChainArenaID, onChainEpochID int64) (*big.Int, error) {
	out, err := a.client.Call(ctx, a.address, a.abi, "rewardPool", big.NewInt(onChainArenaID), big.NewInt(onChainEpochID))
	if err != nil {
		return nil, err
	}
	pool, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("chain: rewardPool: unexpected output %v", out)
	}
	return pool, nil
}

// ParseEpochCreated extracts the new on-chain epoch id from a createEpoch
// receipt's EpochCreated(arenaId, epochId) log, per spec.md §4.6 step 3.
// Returns ok=false if no matching log is present.
func (a *ArenaContract) ParseEpochCreated(receipt *types.Receipt) (epochID int64, ok bool) {
	eventABI, found := a.abi.Events["EpochCreated"]
	if !found {
		return 0, false
	}
	for _, log := range receipt.Logs {
		if log.Address != a.address || len(log.Topics) < 3 {
			continue
		}
		if log.Topics[0] != eventABI.ID {
			continue
		}
		id := new(big.Int).SetBytes(log.Topics[2].Bytes())
		return id.Int64(), true
	}
	return 0, false
}

// ExecuteTradeCalldata packs executeTrade(...) for submission through the
// agent's account-abstracted wallet (internal/wallet's bundler), since
// trade execution is signed by the agent's smart account, not the operator
// key — unlike every other method on this type.
func (a *ArenaContract) ExecuteTradeCalldata(onChainAgentID, onChainArenaID, onChainEpochID int64, action domain.Action, sizePctWei, buyAmountWei, priceWei *big.Int, tick int64) ([]byte, error) {
	return a.abi.Pack("executeTrade",
		big.NewInt(onChainAgentID), big.NewInt(onChainArenaID), big.NewInt(onChainEpochID),
		uint8(action), sizePctWei, buyAmountWei, priceWei, big.NewInt(tick))
}

// AutoRenewEpochCalldata packs autoRenewEpoch(...) for bundler submission
// through the agent's smart account (spec.md §4.6's "Auto-renewal per
// agent").
func (a *ArenaContract) AutoRenewEpochCalldata(onChainAgentID, onChainArenaID, onChainEpochID int64) ([]byte, error) {
	return a.abi.Pack("autoRenewEpoch", big.NewInt(onChainAgentID), big.NewInt(onChainArenaID), big.NewInt(onChainEpochID))
}

// Address returns the bound contract address, used by internal/wallet's
// bundler to target the user operation.
func (a *ArenaContract) Address() common.Address {
	return a.address
}

// DecodeRevertReason decodes a failed-call error against this contract's
// ABI into a human-readable reason, or "" if none is recognized.
func (a *ArenaContract) DecodeRevertReason(err error) string {
	return DecodeRevert(err, a.abi)
}
