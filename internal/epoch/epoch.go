// Package epoch implements the Epoch Controller: a once-per-minute
// scheduler that keeps each arena's on-chain epoch lifecycle in sync with
// the database, fans out auto-renewal to registered agents, and computes
// and submits the linear-weighted winner-split reward distribution once an
// epoch ends. Grounded on internal/chain's ABI-bound Call/Send pair and
// pkg/retry's shared transaction-send retry policy; the teacher has no
// epoch/reward concept to generalize from.
package epoch

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/zeromicro/go-zero/core/logx"

	"github.com/moltiarena/core/internal/chain"
	"github.com/moltiarena/core/internal/domain"
	"github.com/moltiarena/core/internal/model"
	"github.com/moltiarena/core/internal/money"
	"github.com/moltiarena/core/internal/wallet"
	"github.com/moltiarena/core/pkg/retry"
)

const (
	schedulerInterval  = time.Minute
	dailyActionWindow  = 2 * time.Minute
	defaultClaimWindow = 30 * 24 * time.Hour
	txMaxRetries       = 3
	txLinearBackoff    = 2 * time.Second
)

// defaultRenewalFeeWei is spec.md §4.6's default renewal fee, 100 MOLTI.
var defaultRenewalFeeWei = money.ToWei18(100)

// maxApproveAmount is the infinite-approval amount issued once per agent per
// token, the same "approve max uint256 once" idiom most ERC20-spending
// integrations use to avoid re-approving every renewal.
var maxApproveAmount = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// Deps wires every collaborator the Epoch Controller needs.
type Deps struct {
	Arenas      *model.ArenasModel
	ArenaRegs   *model.ArenaRegistrationsModel
	Epochs      *model.EpochsModel
	EpochRegs   *model.EpochRegistrationsModel
	Agents      *model.AgentsModel
	Leaderboard *model.LeaderboardModel
	Arena       *chain.ArenaContract
	MoltiToken  *chain.ERC20Contract
	Chain       *chain.Client
	Keys        wallet.KeyProvider
	Bundler     *wallet.BundlerClient
	Nonces      wallet.NonceSource
	// Operator signs arena-lifecycle transactions directly (spec.md §6: "An
	// operator wallet signs arena-lifecycle transactions directly"),
	// distinct from wallet.KeyProvider, which decrypts per-agent
	// smart-account signers.
	Operator *ecdsa.PrivateKey

	// EpochDuration is the epoch length. Values under 24h select demo mode
	// (clock-anchored from the transition moment); 24h or more selects
	// daily mode (anchored to 00:00 UTC).
	EpochDuration time.Duration
	RenewalFeeWei *big.Int
	ClaimWindow   time.Duration
}

// Controller runs the scheduler described by spec.md §4.6.
type Controller struct {
	deps Deps

	mu            sync.Mutex
	transitioning bool
	lastDailyRun  string // YYYY-MM-DD, the daily-mode "already ran today" flag
}

// New constructs a Controller, filling in documented defaults.
func New(deps Deps) *Controller {
	if deps.RenewalFeeWei == nil {
		deps.RenewalFeeWei = defaultRenewalFeeWei
	}
	if deps.ClaimWindow <= 0 {
		deps.ClaimWindow = defaultClaimWindow
	}
	return &Controller{deps: deps}
}

func (c *Controller) demoMode() bool {
	return c.deps.EpochDuration > 0 && c.deps.EpochDuration < 24*time.Hour
}

func txRetryHandler() *retry.Handler {
	return retry.New(retry.Config{MaxRetries: txMaxRetries, InitialBackoff: txLinearBackoff, Linear: true})
}

// Run drives the once-per-minute scheduler until ctx is canceled.
func (c *Controller) Run(ctx context.Context) error {
	logx.WithContext(ctx).Infof("epoch: scheduler starting demoMode=%v duration=%s", c.demoMode(), c.deps.EpochDuration)
	ticker := time.NewTicker(schedulerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logx.WithContext(ctx).Infof("epoch: scheduler stopping: %v", ctx.Err())
			return ctx.Err()
		case <-ticker.C:
			c.Tick(ctx)
		}
	}
}

// Tick runs one scheduler pass, a no-op outside the action window.
func (c *Controller) Tick(ctx context.Context) {
	now := time.Now().UTC()
	if !c.shouldAct(now) {
		return
	}

	c.mu.Lock()
	if c.transitioning {
		c.mu.Unlock()
		return
	}
	c.transitioning = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.transitioning = false
		if !c.demoMode() {
			c.lastDailyRun = now.Format("2006-01-02")
		}
		c.mu.Unlock()
	}()

	arenas, err := c.deps.Arenas.WithActiveRegistration(ctx)
	if err != nil {
		logx.WithContext(ctx).Errorf("epoch: load arenas: %v", err)
		return
	}
	for _, arena := range arenas {
		if err := c.processArena(ctx, now, arena); err != nil {
			logx.WithContext(ctx).Errorf("epoch: arena=%d: %v", arena.ID, err)
		}
	}
}

// shouldAct reports whether this minute falls within the action window: in
// demo mode, every minute; in daily mode, only the first two minutes past
// 00:00 UTC, and only once per calendar day.
func (c *Controller) shouldAct(now time.Time) bool {
	if c.demoMode() {
		return true
	}
	if now.Hour() != 0 || now.Minute() >= int(dailyActionWindow.Minutes()) {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastDailyRun != now.Format("2006-01-02")
}

// processArena is spec.md §4.6's per-arena on-chain-source-of-truth flow.
func (c *Controller) processArena(ctx context.Context, now time.Time, arena domain.Arena) error {
	if arena.OnChainID == nil {
		return nil
	}
	onChainArenaID := *arena.OnChainID

	toEnd, active, err := c.epochPhase(ctx, onChainArenaID)
	if err != nil {
		return fmt.Errorf("epoch phase: %w", err)
	}

	if toEnd != nil {
		if err := c.endEpochFlow(ctx, arena, onChainArenaID, *toEnd); err != nil {
			return fmt.Errorf("end epoch %d: %w", *toEnd, err)
		}
		active = nil
	}

	if active == nil {
		if err := c.maybeCreateEpoch(ctx, now, arena, onChainArenaID); err != nil {
			return fmt.Errorf("create epoch: %w", err)
		}
	}
	return nil
}

// epochPhase derives {toEnd, active} from the on-chain epochs() view, since
// this ABI exposes nextEpochId/epochs rather than a single combined
// getEpochPhase view (spec.md §4.6 step 1).
func (c *Controller) epochPhase(ctx context.Context, onChainArenaID int64) (toEnd, active *int64, err error) {
	nextID, err := c.deps.Arena.NextEpochID(ctx, onChainArenaID)
	if err != nil {
		return nil, nil, err
	}
	latestID := nextID - 1
	if latestID < 0 {
		return nil, nil, nil
	}

	view, err := c.deps.Arena.GetEpoch(ctx, onChainArenaID, latestID)
	if err != nil {
		return nil, nil, err
	}
	if view.Ended {
		return nil, nil, nil
	}
	if time.Now().Unix() >= view.EndSec {
		id := latestID
		return &id, nil, nil
	}
	id := latestID
	return nil, &id, nil
}

// endEpochFlow ensures the DB row exists, ends the epoch on-chain (treating
// EpochAlreadyEnded as success), marks it ended, and attempts reward
// distribution.
func (c *Controller) endEpochFlow(ctx context.Context, arena domain.Arena, onChainArenaID, onChainEpochID int64) error {
	epochRow, err := c.deps.Epochs.ByOnChainID(ctx, arena.ID, onChainEpochID)
	if err != nil {
		return fmt.Errorf("load epoch row: %w", err)
	}
	if epochRow == nil {
		view, verr := c.deps.Arena.GetEpoch(ctx, onChainArenaID, onChainEpochID)
		if verr != nil {
			return fmt.Errorf("read epoch view: %w", verr)
		}
		id, cerr := c.deps.Epochs.Create(ctx, domain.Epoch{
			ArenaID:        arena.ID,
			OnChainEpochID: onChainEpochID,
			StartAt:        time.Unix(view.StartSec, 0).UTC(),
			EndAt:          time.Unix(view.EndSec, 0).UTC(),
			Status:         domain.EpochActive,
		})
		if cerr != nil {
			return fmt.Errorf("persist missing epoch row: %w", cerr)
		}
		epochRow = &domain.Epoch{
			ID: id, ArenaID: arena.ID, OnChainEpochID: onChainEpochID,
			StartAt: time.Unix(view.StartSec, 0).UTC(), EndAt: time.Unix(view.EndSec, 0).UTC(),
			Status: domain.EpochActive,
		}
	}

	err = txRetryHandler().Do(ctx, func() error {
		_, sendErr := c.deps.Arena.EndEpoch(ctx, c.deps.Operator, onChainArenaID, onChainEpochID)
		return sendErr
	})
	if err != nil && c.deps.Arena.DecodeRevertReason(err) != "EpochAlreadyEnded" {
		return fmt.Errorf("endEpoch: %w", err)
	}

	if err := c.deps.Epochs.MarkEnded(ctx, epochRow.ID); err != nil {
		return fmt.Errorf("mark ended: %w", err)
	}
	epochRow.Status = domain.EpochEnded

	if err := c.distributeRewards(ctx, arena, onChainArenaID, *epochRow); err != nil {
		// Distribution failures leave rewardsDistributedAt null and are
		// retried on the controller's next trigger (spec.md §7).
		logx.WithContext(ctx).Errorf("epoch: distribute rewards arena=%d epoch=%d: %v", onChainArenaID, onChainEpochID, err)
	}
	return nil
}

// maybeCreateEpoch checks that the arena has at least one active
// registration in the database, then creates a new epoch and fans out
// auto-renewal to every registered agent (spec.md §4.6 step 3). It does
// not query on-chain registrations and does not check that the previous
// epoch has ended.
func (c *Controller) maybeCreateEpoch(ctx context.Context, now time.Time, arena domain.Arena, onChainArenaID int64) error {
	activeCount, err := c.deps.ArenaRegs.CountActiveForArena(ctx, arena.ID)
	if err != nil {
		return fmt.Errorf("count active registrations: %w", err)
	}
	if activeCount == 0 {
		return nil
	}

	startSec, endSec := c.nextEpochWindow(now)

	var txHash common.Hash
	err = txRetryHandler().Do(ctx, func() error {
		hash, sendErr := c.deps.Arena.CreateEpoch(ctx, c.deps.Operator, onChainArenaID, startSec, endSec)
		if sendErr == nil {
			txHash = hash
		}
		return sendErr
	})
	if err != nil {
		return fmt.Errorf("createEpoch: %w", err)
	}

	newEpochID, ok, err := c.resolveNewEpochID(ctx, onChainArenaID, txHash)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("could not resolve new epoch id for arena=%d", onChainArenaID)
	}

	dbID, err := c.deps.Epochs.Create(ctx, domain.Epoch{
		ArenaID:        arena.ID,
		OnChainEpochID: newEpochID,
		StartAt:        time.Unix(startSec, 0).UTC(),
		EndAt:          time.Unix(endSec, 0).UTC(),
		Status:         domain.EpochActive,
	})
	if err != nil {
		return fmt.Errorf("persist new epoch: %w", err)
	}

	missing, err := c.deps.EpochRegs.MissingAgents(ctx, arena.ID, dbID)
	if err != nil {
		return fmt.Errorf("list missing agents for fan-out: %w", err)
	}
	epochRow := domain.Epoch{
		ID: dbID, ArenaID: arena.ID, OnChainEpochID: newEpochID,
		StartAt: time.Unix(startSec, 0).UTC(), EndAt: time.Unix(endSec, 0).UTC(), Status: domain.EpochActive,
	}
	return c.CatchUpRenew(ctx, arena, epochRow, missing)
}

// resolveNewEpochID parses EpochCreated from the createEpoch receipt,
// falling back to nextEpochId-1 per spec.md §4.6 step 3.
func (c *Controller) resolveNewEpochID(ctx context.Context, onChainArenaID int64, txHash common.Hash) (int64, bool, error) {
	receipt, err := c.deps.Chain.WaitMined(ctx, txHash)
	if err != nil {
		return 0, false, fmt.Errorf("wait for createEpoch receipt: %w", err)
	}
	if id, ok := c.deps.Arena.ParseEpochCreated(receipt); ok {
		return id, true, nil
	}
	nextID, err := c.deps.Arena.NextEpochID(ctx, onChainArenaID)
	if err != nil {
		return 0, false, fmt.Errorf("fallback nextEpochId: %w", err)
	}
	return nextID - 1, nextID > 0, nil
}

// nextEpochWindow computes the [start, end) window for a new epoch: demo
// mode is clock-anchored from now; daily mode is anchored to 00:00 UTC.
func (c *Controller) nextEpochWindow(now time.Time) (startSec, endSec int64) {
	if c.demoMode() {
		return now.Unix(), now.Add(c.deps.EpochDuration).Unix()
	}
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return start.Unix(), start.Add(24 * time.Hour).Unix()
}

// CatchUpRenew implements the engine.EpochRenewer interface: on-chain
// renewal for agents the Tick Engine found missing an EpochRegistration row
// (spec.md §4.5 step 2), and the fan-out step after creating a new epoch.
func (c *Controller) CatchUpRenew(ctx context.Context, arena domain.Arena, epoch domain.Epoch, missingAgentIDs []int64) error {
	for _, agentID := range missingAgentIDs {
		if err := c.renewAgent(ctx, arena, epoch, agentID); err != nil {
			logx.WithContext(ctx).Errorf("epoch: renew agent=%d arena=%d epoch=%d: %v", agentID, arena.ID, epoch.ID, err)
		}
	}
	return nil
}

// renewAgent is the "Auto-renewal per agent" flow of spec.md §4.6.
func (c *Controller) renewAgent(ctx context.Context, arena domain.Arena, epoch domain.Epoch, agentID int64) error {
	agent, err := c.deps.Agents.FindByID(ctx, agentID)
	if err != nil {
		return fmt.Errorf("load agent: %w", err)
	}
	if agent == nil || agent.OnChainID == nil || agent.SmartAccount == "" || arena.OnChainID == nil {
		return nil
	}
	smartAccount := common.HexToAddress(agent.SmartAccount)

	balance, err := c.deps.MoltiToken.BalanceOf(ctx, smartAccount)
	if err != nil {
		return fmt.Errorf("read MOLTI balance: %w", err)
	}
	if balance.Cmp(c.deps.RenewalFeeWei) < 0 {
		logx.WithContext(ctx).Infof("epoch: agent=%d below renewal fee, skipping renewal", agentID)
		return nil
	}

	if err := c.ensureAllowance(ctx, agent, smartAccount); err != nil {
		return fmt.Errorf("ensure allowance: %w", err)
	}

	calldata, err := c.deps.Arena.AutoRenewEpochCalldata(*agent.OnChainID, *arena.OnChainID, epoch.OnChainEpochID)
	if err != nil {
		return fmt.Errorf("pack autoRenewEpoch: %w", err)
	}
	if err := c.submitAgentOp(ctx, agent, smartAccount, c.deps.Arena.Address(), calldata); err != nil {
		if reason := c.deps.Arena.DecodeRevertReason(err); reason != "" {
			return fmt.Errorf("autoRenewEpoch reverted: %s", reason)
		}
		return fmt.Errorf("autoRenewEpoch: %w", err)
	}

	return c.deps.EpochRegs.Create(ctx, epoch.ID, agentID)
}

// ensureAllowance issues a one-time infinite-approval user operation if the
// arena contract cannot yet pull the renewal fee from the agent's wallet.
func (c *Controller) ensureAllowance(ctx context.Context, agent *domain.Agent, smartAccount common.Address) error {
	allowance, err := c.deps.MoltiToken.Allowance(ctx, smartAccount, c.deps.Arena.Address())
	if err != nil {
		return fmt.Errorf("read allowance: %w", err)
	}
	if allowance.Cmp(c.deps.RenewalFeeWei) >= 0 {
		return nil
	}
	calldata, err := c.deps.MoltiToken.ApproveCalldata(c.deps.Arena.Address(), maxApproveAmount)
	if err != nil {
		return fmt.Errorf("pack approve: %w", err)
	}
	return c.submitAgentOp(ctx, agent, smartAccount, c.deps.MoltiToken.Address(), calldata)
}

// submitAgentOp decrypts the agent's signer, assigns the next nonce, and
// submits calldata against target through the bundler.
func (c *Controller) submitAgentOp(ctx context.Context, agent *domain.Agent, sender, target common.Address, calldata []byte) error {
	key, err := c.deps.Keys.Decrypt(ctx, agent.EncryptedSigner)
	if err != nil {
		return fmt.Errorf("decrypt signer: %w", err)
	}
	signer, err := wallet.NewSigner(key)
	if err != nil {
		return fmt.Errorf("build signer: %w", err)
	}
	nonce, err := c.deps.Nonces.NextNonce(ctx, sender)
	if err != nil {
		return fmt.Errorf("next nonce: %w", err)
	}
	_, err = c.deps.Bundler.Submit(ctx, signer, sender, target, calldata, nonce)
	return err
}

// distributeRewards implements spec.md §4.6's reward-distribution flow,
// idempotent via rewardsDistributedAt.
func (c *Controller) distributeRewards(ctx context.Context, arena domain.Arena, onChainArenaID int64, epoch domain.Epoch) error {
	if epoch.RewardsDistributedAt != nil {
		return nil
	}

	pool, err := c.deps.Arena.RewardPool(ctx, onChainArenaID, epoch.OnChainEpochID)
	if err != nil {
		return fmt.Errorf("read reward pool: %w", err)
	}
	if pool.Sign() <= 0 {
		return nil
	}

	snap, err := c.deps.Leaderboard.Latest(ctx, arena.ID, epoch.ID)
	if err != nil {
		return fmt.Errorf("load leaderboard: %w", err)
	}
	if snap == nil || len(snap.Rankings) == 0 {
		return nil
	}

	rows := append([]domain.LeaderboardRow(nil), snap.Rankings...)
	sort.Slice(rows, func(i, j int) bool { return rows[i].Rank < rows[j].Rank })
	rankedAgentIDs := make([]int64, len(rows))
	for i, row := range rows {
		rankedAgentIDs[i] = row.AgentID
	}

	splits := winnerSplit(pool, rankedAgentIDs)
	if len(splits) == 0 {
		return nil
	}

	onChainIDs := make([]int64, len(splits))
	amounts := make([]*big.Int, len(splits))
	for i, s := range splits {
		winner, werr := c.deps.Agents.FindByID(ctx, s.AgentID)
		if werr != nil {
			return fmt.Errorf("load winner agent=%d: %w", s.AgentID, werr)
		}
		if winner == nil || winner.OnChainID == nil {
			return fmt.Errorf("winner agent=%d missing on-chain id", s.AgentID)
		}
		onChainIDs[i] = *winner.OnChainID
		amounts[i] = s.AmountWei
	}

	var txHash common.Hash
	err = txRetryHandler().Do(ctx, func() error {
		hash, sendErr := c.deps.Arena.SetPendingRewardsBatch(ctx, c.deps.Operator, onChainArenaID, epoch.OnChainEpochID, onChainIDs, amounts)
		if sendErr == nil {
			txHash = hash
		}
		return sendErr
	})
	if err != nil {
		return fmt.Errorf("setPendingRewardsBatch: %w", err)
	}

	stamped, err := c.deps.Epochs.MarkRewardsDistributed(ctx, epoch.ID, txHash.Hex(), time.Now())
	if err != nil {
		return fmt.Errorf("mark rewards distributed: %w", err)
	}
	if !stamped {
		return nil
	}
	for _, s := range splits {
		if err := c.deps.EpochRegs.SetPendingReward(ctx, epoch.ID, s.AgentID, s.AmountWei.String()); err != nil {
			logx.WithContext(ctx).Errorf("epoch: persist pending reward agent=%d: %v", s.AgentID, err)
		}
	}
	return nil
}

// winnerShare is one winner's wei-denominated reward slice.
type winnerShare struct {
	AgentID   int64
	AmountWei *big.Int
}

// winnerSplit selects the top ceil(0.30*n) ranked agents and assigns
// linear-weighted shares (weights k, k-1, ..., 1); the floor-division
// remainder is added to rank 1 so the total equals pool exactly (spec.md
// §4.6 step 3, scenario S5: pool=1000 over 10 ranked agents yields
// [501, 333, 166]). Extracted as a pure function for direct testability.
func winnerSplit(pool *big.Int, rankedAgentIDs []int64) []winnerShare {
	n := len(rankedAgentIDs)
	if n == 0 || pool == nil || pool.Sign() <= 0 {
		return nil
	}
	k := int(math.Ceil(0.30 * float64(n)))
	if k < 1 {
		k = 1
	}
	if k > n {
		k = n
	}

	sumWeights := big.NewInt(int64(k * (k + 1) / 2))
	shares := make([]*big.Int, k)
	distributed := big.NewInt(0)
	for i := 0; i < k; i++ {
		weight := big.NewInt(int64(k - i))
		share := new(big.Int).Mul(pool, weight)
		share.Div(share, sumWeights)
		shares[i] = share
		distributed.Add(distributed, share)
	}
	remainder := new(big.Int).Sub(pool, distributed)
	shares[0].Add(shares[0], remainder)

	out := make([]winnerShare, k)
	for i := 0; i < k; i++ {
		out[i] = winnerShare{AgentID: rankedAgentIDs[i], AmountWei: shares[i]}
	}
	return out
}

// Sweep reclaims unclaimed rewards once the 30-day claim window (spec.md
// §4.6) has passed, idempotent via rewardsSweptAt. Run and Tick do not call
// it; a caller invokes it per ended, reward-distributed epoch.
func (c *Controller) Sweep(ctx context.Context, arena domain.Arena, epoch domain.Epoch) error {
	if arena.OnChainID == nil || epoch.RewardsDistributedAt == nil || epoch.RewardsSweptAt != nil {
		return nil
	}
	if time.Since(epoch.EndAt) < c.deps.ClaimWindow {
		return nil
	}

	unclaimed, err := c.deps.EpochRegs.UnclaimedForEpoch(ctx, epoch.ID)
	if err != nil {
		return fmt.Errorf("list unclaimed registrations: %w", err)
	}
	if len(unclaimed) == 0 {
		return nil
	}

	var onChainIDs []int64
	for _, reg := range unclaimed {
		agent, aerr := c.deps.Agents.FindByID(ctx, reg.AgentID)
		if aerr != nil || agent == nil || agent.OnChainID == nil {
			continue
		}
		onChainIDs = append(onChainIDs, *agent.OnChainID)
	}
	if len(onChainIDs) == 0 {
		return nil
	}

	err = txRetryHandler().Do(ctx, func() error {
		_, sendErr := c.deps.Arena.SweepUnclaimedRewards(ctx, c.deps.Operator, *arena.OnChainID, epoch.OnChainEpochID, onChainIDs)
		return sendErr
	})
	if err != nil {
		return fmt.Errorf("sweepUnclaimedRewards: %w", err)
	}

	if _, err := c.deps.Epochs.MarkRewardsSwept(ctx, epoch.ID, time.Now()); err != nil {
		return fmt.Errorf("mark rewards swept: %w", err)
	}
	return nil
}
