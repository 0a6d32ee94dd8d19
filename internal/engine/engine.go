// Package engine implements the Tick Engine: the per-tick loop that loads
// the active (agent, arena) workset, prepares context, asks the Model
// Gateway for decisions, applies guardrails, executes on-chain trades
// through the bundler, and commits the resulting state atomically. Grounded
// on the teacher's pkg/manager.Manager.RunTradingLoop ticker+select shape,
// generalized from one trader-driven cycle to the whole active workset.
package engine

import (
	"context"
	"database/sql"
	"math/big"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/zeromicro/go-zero/core/logx"
	"golang.org/x/sync/errgroup"

	"github.com/moltiarena/core/internal/chain"
	"github.com/moltiarena/core/internal/domain"
	"github.com/moltiarena/core/internal/guardrails"
	"github.com/moltiarena/core/internal/ledger"
	"github.com/moltiarena/core/internal/model"
	"github.com/moltiarena/core/internal/money"
	"github.com/moltiarena/core/internal/repo"
	"github.com/moltiarena/core/internal/wallet"
	"github.com/moltiarena/core/pkg/journal"
	"github.com/moltiarena/core/pkg/planner"
)

// gasThresholdWei is the minimum native MON balance an agent's smart
// account must hold before the engine will submit a BUY/SELL user
// operation on its behalf (spec.md §4.5 step 6b). 1 MON by default.
var gasThresholdWei = money.ToWei18(1.0)

// defaultAgentConcurrency bounds how many agents are processed in parallel
// within one tick (spec.md §5: "across distinct agents, execution may
// proceed concurrently, subject to an upstream concurrency budget").
const defaultAgentConcurrency = 4

// SnapshotSource serves the most recently computed market snapshot for a
// token. Satisfied by *internal/aggregator.Aggregator's Latest method; the
// engine never drives its own aggregation tick (spec.md §5: three
// independent long-lived loops).
type SnapshotSource interface {
	Latest(token string) (domain.MarketSnapshot, bool)
}

// EpochRenewer performs the on-chain catch-up renewal for agents missing an
// EpochRegistration row. Implemented by internal/epoch; the engine only
// delegates to it (spec.md §4.5 step 2).
type EpochRenewer interface {
	CatchUpRenew(ctx context.Context, arena domain.Arena, epoch domain.Epoch, missingAgentIDs []int64) error
}

// MemoryNotifier tells an external memory subsystem that an agent completed
// a tick, so it can index the tick's decisions. Best-effort: a failure here
// never blocks or rolls back the tick's committed state (spec.md §4.5 step
// 7).
type MemoryNotifier interface {
	NotifyAgentTick(ctx context.Context, agentID, tick int64) error
}

// Deps wires every collaborator the Tick Engine needs. All fields are
// required except Memory, Renewer and Journal, which may be nil to run the
// engine without those side effects (e.g. in tests).
type Deps struct {
	Arenas      *model.ArenasModel
	Agents      *model.AgentsModel
	Epochs      *model.EpochsModel
	EpochRegs   *model.EpochRegistrationsModel
	Portfolios  *model.PortfoliosModel
	Trades      *model.TradesModel
	Decisions   *model.DecisionsModel
	Leaderboard *model.LeaderboardModel
	TickRepo    *repo.TickRepo
	Snapshots   SnapshotSource
	Planner     *planner.Client
	Arena       *chain.ArenaContract
	MoltiToken  *chain.ERC20Contract
	Chain       *chain.Client
	Keys        wallet.KeyProvider
	Bundler     *wallet.BundlerClient
	Nonces      wallet.NonceSource
	Renewer     EpochRenewer
	Memory      MemoryNotifier
	Journal     *journal.Writer
	Concurrency int
}

// Engine runs the per-tick trading loop described by spec.md §4.5.
type Engine struct {
	deps   Deps
	tick   int64
	tickMu sync.Mutex
}

// New constructs an Engine. Concurrency defaults to defaultAgentConcurrency
// when unset.
func New(deps Deps) *Engine {
	if deps.Concurrency <= 0 {
		deps.Concurrency = defaultAgentConcurrency
	}
	return &Engine{deps: deps}
}

// Run drives the self-rescheduling tick loop until ctx is canceled, the
// same ticker+select shape as the teacher's RunTradingLoop: the next
// ticker.C read only happens after the previous tick's work finishes, so
// ticks never overlap.
func (e *Engine) Run(ctx context.Context, interval time.Duration) error {
	logx.WithContext(ctx).Infof("engine: tick loop starting interval=%s", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logx.WithContext(ctx).Infof("engine: tick loop stopping: %v", ctx.Err())
			return ctx.Err()
		case <-ticker.C:
			e.Tick(ctx)
		}
	}
}

// Tick runs one complete pass of the 8-step tick procedure and returns the
// tick number it just ran, for logging and tests.
func (e *Engine) Tick(ctx context.Context) int64 {
	e.tickMu.Lock()
	e.tick++
	tick := e.tick
	e.tickMu.Unlock()

	start := time.Now()

	// Step 1: load the workset -- every arena with at least one active
	// registration, and every agent actively registered to each.
	arenas, err := e.deps.Arenas.WithActiveRegistration(ctx)
	if err != nil {
		logx.WithContext(ctx).Errorf("engine: tick=%d load arenas failed: %v", tick, err)
		return tick
	}

	activeAgentsByArena := make(map[int64][]domain.Agent, len(arenas))
	for _, arena := range arenas {
		agents, err := e.deps.Agents.ActiveForArena(ctx, arena.ID)
		if err != nil {
			logx.WithContext(ctx).Errorf("engine: tick=%d load agents arena=%d failed: %v", tick, arena.ID, err)
			continue
		}
		activeAgentsByArena[arena.ID] = agents
	}

	// Step 2: catch-up renewals for agents missing an EpochRegistration.
	for _, arena := range arenas {
		e.catchUpRenew(ctx, tick, arena)
	}

	// Step 3: per-(agent, arena) context preparation.
	contexts := make([]agentContext, 0)
	for _, arena := range arenas {
		for _, agent := range activeAgentsByArena[arena.ID] {
			actx, ok := e.buildContext(ctx, tick, arena, agent)
			if !ok {
				continue
			}
			contexts = append(contexts, actx)
		}
	}

	// Step 4: group by agent, arenas sorted ascending within each group.
	grouped := groupByAgent(contexts)

	agentIDs := make([]int64, 0, len(grouped))
	for id := range grouped {
		agentIDs = append(agentIDs, id)
	}
	sort.Slice(agentIDs, func(i, j int) bool { return agentIDs[i] < agentIDs[j] })

	// Steps 5-7: one planner call and per-decision execution per agent,
	// bounded by the configured concurrency budget.
	sem := make(chan struct{}, e.deps.Concurrency)
	var wg sync.WaitGroup
	for _, agentID := range agentIDs {
		actxs := grouped[agentID]
		wg.Add(1)
		sem <- struct{}{}
		go func(actxs []agentContext) {
			defer wg.Done()
			defer func() { <-sem }()
			e.processAgent(ctx, tick, actxs)
		}(actxs)
	}
	wg.Wait()

	// Step 8: leaderboard snapshot, one per arena in the workset.
	for _, arena := range arenas {
		e.computeLeaderboard(ctx, tick, arena)
	}

	logx.WithContext(ctx).Infof("engine: tick=%d complete agents=%d duration=%s", tick, len(grouped), time.Since(start))
	return tick
}

// agentContext is everything processDecision needs for one (agent, arena)
// pair, assembled once in step 3 and never re-fetched mid-tick.
type agentContext struct {
	agent     domain.Agent
	arena     domain.Arena
	epoch     domain.Epoch
	profile   domain.Profile
	snapshot  domain.MarketSnapshot
	portfolio domain.Portfolio
}

func groupByAgent(contexts []agentContext) map[int64][]agentContext {
	out := make(map[int64][]agentContext)
	for _, actx := range contexts {
		out[actx.agent.ID] = append(out[actx.agent.ID], actx)
	}
	for id := range out {
		group := out[id]
		sort.Slice(group, func(i, j int) bool { return group[i].arena.ID < group[j].arena.ID })
		out[id] = group
	}
	return out
}

// catchUpRenew checks for a shortfall between active registrations and
// EpochRegistration rows for the arena's current epoch and delegates the
// renewal to the Epoch Controller (spec.md §4.5 step 2).
func (e *Engine) catchUpRenew(ctx context.Context, tick int64, arena domain.Arena) {
	if e.deps.Renewer == nil {
		return
	}
	epoch, err := e.deps.Epochs.CurrentActive(ctx, arena.ID, time.Now())
	if err != nil {
		logx.WithContext(ctx).Errorf("engine: tick=%d catch-up arena=%d load epoch failed: %v", tick, arena.ID, err)
		return
	}
	if epoch == nil {
		return
	}
	missing, err := e.deps.EpochRegs.MissingAgents(ctx, arena.ID, epoch.ID)
	if err != nil {
		logx.WithContext(ctx).Errorf("engine: tick=%d catch-up arena=%d missing-agents failed: %v", tick, arena.ID, err)
		return
	}
	if len(missing) == 0 {
		return
	}
	if err := e.deps.Renewer.CatchUpRenew(ctx, arena, *epoch, missing); err != nil {
		logx.WithContext(ctx).Errorf("engine: tick=%d catch-up arena=%d renew failed agents=%v err=%v", tick, arena.ID, missing, err)
	}
}

// buildContext assembles one (agent, arena) context, skipping silently
// (with a logged reason) on any of the gating conditions spec.md §4.5 step
// 3 lists: missing on-chain ids, invalid profile, no portfolio yet, no
// active epoch, no epoch registration, no market snapshot, or a failed
// on-chain read.
func (e *Engine) buildContext(ctx context.Context, tick int64, arena domain.Arena, agent domain.Agent) (agentContext, bool) {
	logger := logx.WithContext(ctx)

	if agent.OnChainID == nil || arena.OnChainID == nil {
		logger.Infof("engine: tick=%d skip agent=%d arena=%d: not yet on-chain indexed", tick, agent.ID, arena.ID)
		return agentContext{}, false
	}
	smartAccount := strings.TrimSpace(agent.SmartAccount)
	if smartAccount == "" || !common.IsHexAddress(smartAccount) {
		logger.Infof("engine: tick=%d skip agent=%d arena=%d: no smart account", tick, agent.ID, arena.ID)
		return agentContext{}, false
	}
	if strings.TrimSpace(agent.EncryptedSigner) == "" {
		logger.Infof("engine: tick=%d skip agent=%d arena=%d: no signer material", tick, agent.ID, arena.ID)
		return agentContext{}, false
	}

	profile, err := domain.ParseProfile(agent.ProfileJSON)
	if err != nil {
		logger.Infof("engine: tick=%d skip agent=%d arena=%d: invalid profile: %v", tick, agent.ID, arena.ID, err)
		return agentContext{}, false
	}

	portfolioRow, err := e.deps.Portfolios.Find(ctx, agent.ID, arena.ID)
	if err != nil {
		logger.Errorf("engine: tick=%d skip agent=%d arena=%d: load portfolio failed: %v", tick, agent.ID, arena.ID, err)
		return agentContext{}, false
	}
	if portfolioRow == nil {
		logger.Infof("engine: tick=%d skip agent=%d arena=%d: no portfolio yet", tick, agent.ID, arena.ID)
		return agentContext{}, false
	}

	epoch, err := e.deps.Epochs.CurrentActive(ctx, arena.ID, time.Now())
	if err != nil {
		logger.Errorf("engine: tick=%d skip agent=%d arena=%d: load epoch failed: %v", tick, agent.ID, arena.ID, err)
		return agentContext{}, false
	}
	if epoch == nil {
		logger.Infof("engine: tick=%d skip agent=%d arena=%d: no active epoch", tick, agent.ID, arena.ID)
		return agentContext{}, false
	}

	registered, err := e.deps.EpochRegs.Exists(ctx, epoch.ID, agent.ID)
	if err != nil {
		logger.Errorf("engine: tick=%d skip agent=%d arena=%d: epoch registration lookup failed: %v", tick, agent.ID, arena.ID, err)
		return agentContext{}, false
	}
	if !registered {
		logger.Infof("engine: tick=%d skip agent=%d arena=%d: not registered for epoch=%d", tick, agent.ID, arena.ID, epoch.ID)
		return agentContext{}, false
	}

	snapshot, ok := e.deps.Snapshots.Latest(arena.TokenAddress)
	if !ok {
		logger.Infof("engine: tick=%d skip agent=%d arena=%d: no market snapshot yet", tick, agent.ID, arena.ID)
		return agentContext{}, false
	}

	owner := common.HexToAddress(smartAccount)
	var moltiLockedWei, tokenUnitsWei, walletWei *big.Int
	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		var err error
		moltiLockedWei, tokenUnitsWei, err = e.deps.Arena.GetPortfolio(gctx, *agent.OnChainID, *arena.OnChainID)
		return err
	})
	group.Go(func() error {
		var err error
		walletWei, err = e.deps.MoltiToken.BalanceOf(gctx, owner)
		return err
	})
	if err := group.Wait(); err != nil {
		logger.Errorf("engine: tick=%d skip agent=%d arena=%d: on-chain read failed: %v", tick, agent.ID, arena.ID, err)
		return agentContext{}, false
	}

	portfolio := domain.Portfolio{
		AgentID:          agent.ID,
		ArenaID:          arena.ID,
		CashMon:          money.FromWei18(walletWei),
		TokenUnits:       money.FromWei18(tokenUnitsWei),
		MoltiLocked:      money.FromWei18(moltiLockedWei),
		AvgEntryPrice:    portfolioRow.AvgEntryPrice,
		InitialCapital:   portfolioRow.InitialCapital,
		TradesThisWindow: portfolioRow.TradesThisWindow,
		LastTradeTick:    portfolioRow.LastTradeTick,
	}

	return agentContext{
		agent:     agent,
		arena:     arena,
		epoch:     *epoch,
		profile:   profile,
		snapshot:  snapshot,
		portfolio: portfolio,
	}, true
}

// processAgent runs one multi-arena planner call for agentID's contexts and
// executes the resulting per-arena decisions in order (spec.md §4.5 steps
// 5-7).
func (e *Engine) processAgent(ctx context.Context, tick int64, actxs []agentContext) {
	if len(actxs) == 0 {
		return
	}
	agent := actxs[0].agent

	arenaInputs := make([]planner.ArenaInput, len(actxs))
	for i, actx := range actxs {
		arenaInputs[i] = planner.ArenaInput{Arena: actx.arena, Portfolio: actx.portfolio, Snapshot: actx.snapshot}
	}

	decisions := e.deps.Planner.DecideTrades(ctx, agent, tick, arenaInputs)
	if len(decisions) != len(actxs) {
		logx.WithContext(ctx).Errorf("engine: tick=%d agent=%d planner returned %d decisions for %d arenas, holding all", tick, agent.ID, len(decisions), len(actxs))
		decisions = make([]domain.Decision, len(actxs))
		for i := range decisions {
			decisions[i] = domain.Decision{Action: domain.ActionHold, Reason: "model_error"}
		}
	}

	for i, actx := range actxs {
		e.processDecision(ctx, tick, actx, decisions[i])
	}

	if e.deps.Memory != nil {
		if err := e.deps.Memory.NotifyAgentTick(ctx, agent.ID, tick); err != nil {
			logx.WithContext(ctx).Errorf("engine: tick=%d agent=%d memory notify failed: %v", tick, agent.ID, err)
		}
	}
}

// processDecision runs step 6 of the tick procedure for one (agent, arena)
// pair: guardrails, the gas-threshold gate, on-chain execution, and the
// atomic commit.
func (e *Engine) processDecision(ctx context.Context, tick int64, actx agentContext, proposed domain.Decision) {
	logger := logx.WithContext(ctx)

	snap := guardrails.Snapshot{Tick: tick, Price: actx.snapshot.Price, Events1h: actx.snapshot.Events1h, Volume1h: actx.snapshot.Volume1h}
	pf := guardrails.Portfolio{
		CashMon:          actx.portfolio.CashMon,
		TokenUnits:       actx.portfolio.TokenUnits,
		TradesThisWindow: actx.portfolio.TradesThisWindow,
		LastTradeTick:    actx.portfolio.LastTradeTick,
	}
	final := guardrails.Apply(snap, pf, actx.profile, proposed)
	pnlPct := actx.portfolio.PnLPct(actx.snapshot.Price)

	smartAccount := common.HexToAddress(actx.agent.SmartAccount)

	if final.Action != domain.ActionHold {
		nativeWei, err := e.deps.Chain.NativeBalance(ctx, smartAccount)
		if err != nil {
			logger.Errorf("engine: tick=%d agent=%d arena=%d gas balance read failed: %v", tick, actx.agent.ID, actx.arena.ID, err)
			return
		}
		if nativeWei.Cmp(gasThresholdWei) < 0 {
			decisionID, err := e.deps.Decisions.InsertPending(ctx, domain.AgentDecision{
				AgentID: actx.agent.ID, ArenaID: actx.arena.ID, Tick: tick,
				Action: final.Action, SizePct: final.SizePct, Confidence: final.Confidence, Reason: "insufficient_gas",
				Price: actx.snapshot.Price, PnLPctAtDecision: pnlPct, Status: domain.DecisionSkippedNoGas,
			})
			if err != nil {
				logger.Errorf("engine: tick=%d agent=%d arena=%d insert skipped_no_gas decision failed: %v", tick, actx.agent.ID, actx.arena.ID, err)
				return
			}
			if err := e.deps.TickRepo.FinalizeSkipped(ctx, decisionID, domain.DecisionSkippedNoGas); err != nil {
				logger.Errorf("engine: tick=%d agent=%d arena=%d finalize skipped_no_gas failed: %v", tick, actx.agent.ID, actx.arena.ID, err)
			}
			return
		}
	}

	status := domain.DecisionSuccess
	if final.Action != domain.ActionHold {
		status = domain.DecisionPending
	}
	decisionID, err := e.deps.Decisions.InsertPending(ctx, domain.AgentDecision{
		AgentID: actx.agent.ID, ArenaID: actx.arena.ID, Tick: tick,
		Action: final.Action, SizePct: final.SizePct, Confidence: final.Confidence, Reason: final.Reason,
		Price: actx.snapshot.Price, PnLPctAtDecision: pnlPct, Status: status,
	})
	if err != nil {
		logger.Errorf("engine: tick=%d agent=%d arena=%d insert decision failed: %v", tick, actx.agent.ID, actx.arena.ID, err)
		return
	}
	if final.Action == domain.ActionHold {
		return
	}

	walletMoltiWei := money.ToWei18(actx.portfolio.CashMon)
	buyAmountWei := big.NewInt(0)
	if final.Action == domain.ActionBuy {
		buyAmountWei = money.MulWei(walletMoltiWei, final.SizePct)
		if buyAmountWei.Sign() == 0 {
			if err := e.deps.TickRepo.FinalizeSkipped(ctx, decisionID, domain.DecisionFailed); err != nil {
				logger.Errorf("engine: tick=%d agent=%d arena=%d finalize zero-buy failed: %v", tick, actx.agent.ID, actx.arena.ID, err)
			}
			return
		}
	}

	sizePctWei := money.ToWei18(final.SizePct)
	priceWei := money.ToWei18(actx.snapshot.Price)

	calldata, err := e.deps.Arena.ExecuteTradeCalldata(*actx.agent.OnChainID, *actx.arena.OnChainID, actx.epoch.OnChainEpochID, final.Action, sizePctWei, buyAmountWei, priceWei, tick)
	if err != nil {
		logger.Errorf("engine: tick=%d agent=%d arena=%d pack executeTrade failed: %v", tick, actx.agent.ID, actx.arena.ID, err)
		e.finalizeFailed(ctx, decisionID, tick, actx)
		return
	}

	key, err := e.deps.Keys.Decrypt(ctx, actx.agent.EncryptedSigner)
	if err != nil {
		logger.Errorf("engine: tick=%d agent=%d arena=%d decrypt signer failed: %v", tick, actx.agent.ID, actx.arena.ID, err)
		e.finalizeFailed(ctx, decisionID, tick, actx)
		return
	}
	signer, err := wallet.NewSigner(key)
	if err != nil {
		logger.Errorf("engine: tick=%d agent=%d arena=%d build signer failed: %v", tick, actx.agent.ID, actx.arena.ID, err)
		e.finalizeFailed(ctx, decisionID, tick, actx)
		return
	}

	nonce, err := e.deps.Nonces.NextNonce(ctx, smartAccount)
	if err != nil {
		logger.Errorf("engine: tick=%d agent=%d arena=%d next nonce failed: %v", tick, actx.agent.ID, actx.arena.ID, err)
		e.finalizeFailed(ctx, decisionID, tick, actx)
		return
	}

	txHash, err := e.deps.Bundler.Submit(ctx, signer, smartAccount, e.deps.Arena.Address(), calldata, nonce)
	if err != nil {
		reason := e.deps.Arena.DecodeRevertReason(err)
		if reason == "" {
			reason = err.Error()
		}
		logger.Errorf("engine: tick=%d agent=%d arena=%d bundler submit failed reason=%s", tick, actx.agent.ID, actx.arena.ID, reason)
		e.finalizeFailed(ctx, decisionID, tick, actx)
		return
	}

	// Step 6g: wait for the transaction to actually land before trusting
	// anything it was supposed to do — Bundler.Submit only confirms the
	// bundler accepted the user operation over HTTP, not that it executed.
	receipt, err := e.deps.Chain.WaitMined(ctx, txHash)
	if err != nil {
		logger.Errorf("engine: tick=%d agent=%d arena=%d tx=%s wait for receipt failed: %v", tick, actx.agent.ID, actx.arena.ID, txHash.Hex(), err)
		e.finalizeFailed(ctx, decisionID, tick, actx)
		return
	}
	if receipt.Status != gethtypes.ReceiptStatusSuccessful {
		logger.Errorf("engine: tick=%d agent=%d arena=%d tx=%s reverted on-chain", tick, actx.agent.ID, actx.arena.ID, txHash.Hex())
		e.finalizeFailed(ctx, decisionID, tick, actx)
		return
	}

	// Step 6h: re-read authoritative on-chain state now that the receipt
	// is observed.
	var moltiLockedWei, tokenUnitsWei, newWalletWei *big.Int
	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		var err error
		moltiLockedWei, tokenUnitsWei, err = e.deps.Arena.GetPortfolio(gctx, *actx.agent.OnChainID, *actx.arena.OnChainID)
		return err
	})
	group.Go(func() error {
		var err error
		newWalletWei, err = e.deps.MoltiToken.BalanceOf(gctx, smartAccount)
		return err
	})
	if err := group.Wait(); err != nil {
		logger.Errorf("engine: tick=%d agent=%d arena=%d tx=%s landed but reconciliation read failed: %v", tick, actx.agent.ID, actx.arena.ID, txHash.Hex(), err)
		return
	}

	ledgerState := ledger.State{
		CashMon:          actx.portfolio.CashMon,
		TokenUnits:       actx.portfolio.TokenUnits,
		AvgEntryPrice:    actx.portfolio.AvgEntryPrice,
		TradesThisWindow: actx.portfolio.TradesThisWindow,
		LastTradeTick:    actx.portfolio.LastTradeTick,
	}
	result := ledger.ExecutePaperTrade(tick, actx.agent.ID, actx.arena.ID, ledgerState, actx.snapshot.Price, final)

	nextPortfolio := domain.Portfolio{
		AgentID:          actx.agent.ID,
		ArenaID:          actx.arena.ID,
		CashMon:          money.FromWei18(newWalletWei),
		TokenUnits:       money.FromWei18(tokenUnitsWei),
		MoltiLocked:      money.FromWei18(moltiLockedWei),
		AvgEntryPrice:    result.Next.AvgEntryPrice,
		InitialCapital:   actx.portfolio.InitialCapital,
		TradesThisWindow: result.Next.TradesThisWindow,
		LastTradeTick:    result.Next.LastTradeTick,
	}

	var trade *domain.Trade
	if result.Trade != nil {
		t := *result.Trade
		t.TxHash = txHash.Hex()
		trade = &t
	}

	if err := e.deps.TickRepo.CommitTrade(ctx, nextPortfolio, trade, decisionID, domain.DecisionSuccess, txHash.Hex()); err != nil {
		logger.Errorf("engine: tick=%d agent=%d arena=%d tx=%s commit failed: %v", tick, actx.agent.ID, actx.arena.ID, txHash.Hex(), err)
		return
	}
	e.logCycle(tick, actx, proposed, final, txHash.Hex(), true, "")
}

func (e *Engine) finalizeFailed(ctx context.Context, decisionID, tick int64, actx agentContext) {
	if err := e.deps.TickRepo.FinalizeSkipped(ctx, decisionID, domain.DecisionFailed); err != nil {
		logx.WithContext(ctx).Errorf("engine: tick=%d agent=%d arena=%d finalize failed-decision failed: %v", tick, actx.agent.ID, actx.arena.ID, err)
	}
}

// logCycle writes an optional audit record for one (agent, arena, tick)
// decision cycle. Journal is nil by default; when unset this is a no-op,
// since the audit trail is a supplementary capability, not a correctness
// requirement of the tick procedure itself.
func (e *Engine) logCycle(tick int64, actx agentContext, proposed, final domain.Decision, txHash string, success bool, errMsg string) {
	if e.deps.Journal == nil {
		return
	}
	rec := &journal.CycleRecord{
		AgentID:         actx.agent.ID,
		ArenaID:         actx.arena.ID,
		Tick:            tick,
		ProposedAction:  proposed.Action.String(),
		ProposedSizePct: proposed.SizePct,
		FinalAction:     final.Action.String(),
		FinalSizePct:    final.SizePct,
		FinalReason:     final.Reason,
		TxHash:          txHash,
		Success:         success,
		ErrorMessage:    errMsg,
	}
	if _, err := e.deps.Journal.WriteCycle(rec); err != nil {
		logx.Errorf("engine: tick=%d agent=%d arena=%d journal write failed: %v", tick, actx.agent.ID, actx.arena.ID, err)
	}
}

// clamp01 bounds x to [0, 1].
func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

// computeLeaderboard implements spec.md §4.5 step 8's points-based scoring:
// points = 0.50*normVolume + 0.35*normPnl + 0.15*normTrades, ranked
// descending by points with ties broken by ascending agent id.
func (e *Engine) computeLeaderboard(ctx context.Context, tick int64, arena domain.Arena) {
	logger := logx.WithContext(ctx)

	epoch, err := e.deps.Epochs.CurrentActive(ctx, arena.ID, time.Now())
	if err != nil {
		logger.Errorf("engine: tick=%d leaderboard arena=%d load epoch failed: %v", tick, arena.ID, err)
		return
	}
	if epoch == nil {
		return
	}

	agents, err := e.deps.Agents.ActiveForArena(ctx, arena.ID)
	if err != nil {
		logger.Errorf("engine: tick=%d leaderboard arena=%d load agents failed: %v", tick, arena.ID, err)
		return
	}
	if len(agents) == 0 {
		return
	}

	volumes, err := e.deps.Trades.VolumeAndCountByEpoch(ctx, arena.ID, nullTime(epoch.StartAt), nullTime(epoch.EndAt))
	if err != nil {
		logger.Errorf("engine: tick=%d leaderboard arena=%d volume lookup failed: %v", tick, arena.ID, err)
		return
	}

	snapshot, _ := e.deps.Snapshots.Latest(arena.TokenAddress)

	candidates := make([]leaderboardCandidate, 0, len(agents))
	for _, agent := range agents {
		registered, err := e.deps.EpochRegs.Exists(ctx, epoch.ID, agent.ID)
		if err != nil || !registered {
			continue
		}
		portfolioRow, err := e.deps.Portfolios.Find(ctx, agent.ID, arena.ID)
		if err != nil || portfolioRow == nil {
			continue
		}
		av := volumes[agent.ID]
		candidates = append(candidates, leaderboardCandidate{agentID: agent.ID, portfolio: *portfolioRow, volume: av.Volume, tradeCount: av.TradeCount})
	}
	if len(candidates) == 0 {
		return
	}

	rows := scoreAndRank(candidates, snapshot.Price)

	snap := domain.LeaderboardSnapshot{ArenaID: arena.ID, EpochID: epoch.ID, Tick: tick, Rankings: rows}
	if err := e.deps.Leaderboard.Insert(ctx, snap); err != nil {
		logger.Errorf("engine: tick=%d leaderboard arena=%d insert failed: %v", tick, arena.ID, err)
	}
}

// leaderboardCandidate is one agent's raw inputs to the points formula.
type leaderboardCandidate struct {
	agentID    int64
	portfolio  domain.Portfolio
	volume     float64
	tradeCount int
}

// scoreAndRank computes each candidate's points -- 0.50*normVolume +
// 0.35*normPnl + 0.15*normTrades, with an agent that traded nothing this
// epoch forced to the neutral normPnl=0.5 (points=0.175) rather than a
// possibly-stale PnL read -- and ranks descending by points, ties broken
// by ascending agent id (spec.md §4.5 step 8, §9 "Points scoring and
// ties"). Pure: no I/O, so it is the one piece of step 8 tested directly.
func scoreAndRank(candidates []leaderboardCandidate, markPrice float64) []domain.LeaderboardRow {
	maxVolume, maxTrades := 0.0, 0
	for _, c := range candidates {
		if c.volume > maxVolume {
			maxVolume = c.volume
		}
		if c.tradeCount > maxTrades {
			maxTrades = c.tradeCount
		}
	}

	rows := make([]domain.LeaderboardRow, 0, len(candidates))
	for _, c := range candidates {
		equity := c.portfolio.Equity(markPrice)
		pnlPct := c.portfolio.PnLPct(markPrice)

		normVol := 0.0
		if maxVolume > 0 {
			normVol = c.volume / maxVolume
		}
		normTrades := 0.0
		if maxTrades > 0 {
			normTrades = float64(c.tradeCount) / float64(maxTrades)
		}
		var normPnl float64
		if c.volume == 0 && c.tradeCount == 0 {
			normPnl = 0.5
		} else {
			normPnl = clamp01((pnlPct + 50) / 100)
		}

		points := 0.50*normVol + 0.35*normPnl + 0.15*normTrades

		rows = append(rows, domain.LeaderboardRow{
			AgentID:     c.agentID,
			Equity:      equity,
			PnLPct:      pnlPct,
			CashMon:     c.portfolio.CashMon,
			TokenUnits:  c.portfolio.TokenUnits,
			MoltiLocked: c.portfolio.MoltiLocked,
			Volume:      c.volume,
			TradeCount:  c.tradeCount,
			Points:      points,
		})
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Points != rows[j].Points {
			return rows[i].Points > rows[j].Points
		}
		return rows[i].AgentID < rows[j].AgentID
	})
	for i := range rows {
		rows[i].Rank = i + 1
	}
	return rows
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: true}
}
