package svc

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx driver
	"github.com/zeromicro/go-zero/core/stores/sqlx"

	"github.com/moltiarena/core/internal/aggregator"
	"github.com/moltiarena/core/internal/cache/keys"
	"github.com/moltiarena/core/internal/chain"
	"github.com/moltiarena/core/internal/config"
	"github.com/moltiarena/core/internal/engine"
	"github.com/moltiarena/core/internal/epoch"
	"github.com/moltiarena/core/internal/eventstore"
	"github.com/moltiarena/core/internal/ingest"
	"github.com/moltiarena/core/internal/model"
	"github.com/moltiarena/core/internal/repo"
	"github.com/moltiarena/core/internal/wallet"
	"github.com/moltiarena/core/pkg/planner"
)

// ServiceContext wires every component's dependencies once at process
// startup, the same single-construction-point shape as the teacher's
// ServiceContext, generalized from LLM/exchange/market providers to the
// chain client, wallet, model gateway, and the per-component Deps structs
// the Tick Engine and Epoch Controller consume directly.
type ServiceContext struct {
	Config config.Config

	DBConn sqlx.SqlConn

	Arenas      *model.ArenasModel
	ArenaRegs   *model.ArenaRegistrationsModel
	Agents      *model.AgentsModel
	Epochs      *model.EpochsModel
	EpochRegs   *model.EpochRegistrationsModel
	Portfolios  *model.PortfoliosModel
	Trades      *model.TradesModel
	Decisions   *model.DecisionsModel
	Leaderboard *model.LeaderboardModel
	Events      *model.MarketEventsModel

	Chain      *chain.Client
	Arena      *chain.ArenaContract
	MoltiToken *chain.ERC20Contract

	Bundler *wallet.BundlerClient
	Nonces  wallet.NonceSource
	Keys    wallet.KeyProvider

	Planner *planner.Client

	EventStore *eventstore.Store
	Aggregator *aggregator.Aggregator
	Ingest     *ingest.Stream

	TickRepo *repo.TickRepo

	Engine *engine.Engine
	Epoch  *epoch.Controller
}

// NewServiceContext dials the chain, opens the database, and constructs
// every component's Deps from the loaded config. Startup failures are
// fatal: this mirrors the teacher's log.Fatalf-on-misconfiguration
// convention rather than returning a partially wired context.
func NewServiceContext(ctx context.Context, c config.Config) *ServiceContext {
	svc := &ServiceContext{Config: c}

	conn := sqlx.NewSqlConn("pgx", c.Postgres.DataSource)
	svc.DBConn = conn
	svc.Arenas = model.NewArenasModel(conn)
	svc.ArenaRegs = model.NewArenaRegistrationsModel(conn)
	svc.Agents = model.NewAgentsModel(conn)
	svc.Epochs = model.NewEpochsModel(conn)
	svc.EpochRegs = model.NewEpochRegistrationsModel(conn)
	svc.Portfolios = model.NewPortfoliosModel(conn)
	svc.Trades = model.NewTradesModel(conn)
	svc.Decisions = model.NewDecisionsModel(conn)
	svc.Leaderboard = model.NewLeaderboardModel(conn)
	svc.Events = model.NewMarketEventsModel(conn)

	svc.TickRepo = repo.NewTickRepo(conn, svc.Decisions)

	chainClient, err := chain.NewClient(ctx, c.Chain.RPCURL, c.Chain.ChainID)
	if err != nil {
		log.Fatalf("failed to dial chain rpc: %v", err)
	}
	svc.Chain = chainClient

	arenaContract, err := chain.NewArenaContract(chainClient, common.HexToAddress(c.Chain.ArenaAddress))
	if err != nil {
		log.Fatalf("failed to bind arena contract: %v", err)
	}
	svc.Arena = arenaContract

	moltiToken, err := chain.NewERC20Contract(chainClient, common.HexToAddress(c.Chain.MoltiTokenAddress))
	if err != nil {
		log.Fatalf("failed to bind molti token contract: %v", err)
	}
	svc.MoltiToken = moltiToken

	svc.Bundler = wallet.NewBundlerClient(wallet.Config{
		URL:        c.Bundler.URL,
		ChainID:    c.Chain.ChainID,
		EntryPoint: common.HexToAddress(c.Bundler.EntryPoint),
		Timeout:    c.Bundler.Timeout,
		MaxRetries: c.Bundler.MaxRetries,
	})
	svc.Nonces = wallet.NewInMemoryNonceSource()
	svc.Keys = wallet.NewEnvKeyProvider()

	if c.Planner.Value != nil {
		plannerClient, err := planner.NewClient(*c.Planner.Value)
		if err != nil {
			log.Fatalf("failed to construct model gateway client: %v", err)
		}
		svc.Planner = plannerClient
	}

	// Redis is optional: eventstore.Store tolerates a nil cache.Cache and
	// falls back to querying the event model directly.
	svc.EventStore = eventstore.New(svc.Events, nil, keys.NewTTLSet(c.TTL))
	svc.Aggregator = aggregator.New(svc.EventStore)
	if strings.TrimSpace(c.Ingest.URL) != "" {
		svc.Ingest = ingest.New(c.Ingest.URL, svc.Aggregator)
	}

	operatorKey, err := loadOperatorKey(c.Bundler.OperatorKeyEnv)
	if err != nil {
		log.Fatalf("failed to load operator signing key: %v", err)
	}

	renewalFee, ok := new(big.Int).SetString(strings.TrimSpace(c.Epoch.RenewalFeeWei), 10)
	if !ok {
		log.Fatalf("failed to parse epoch.renewalFeeWei %q", c.Epoch.RenewalFeeWei)
	}

	epochController := epoch.New(epoch.Deps{
		Arenas:        svc.Arenas,
		ArenaRegs:     svc.ArenaRegs,
		Epochs:        svc.Epochs,
		EpochRegs:     svc.EpochRegs,
		Agents:        svc.Agents,
		Leaderboard:   svc.Leaderboard,
		Arena:         svc.Arena,
		MoltiToken:    svc.MoltiToken,
		Chain:         svc.Chain,
		Keys:          svc.Keys,
		Bundler:       svc.Bundler,
		Nonces:        svc.Nonces,
		Operator:      operatorKey,
		EpochDuration: c.Epoch.Duration,
		RenewalFeeWei: renewalFee,
		ClaimWindow:   c.Epoch.ClaimWindow,
	})
	svc.Epoch = epochController

	svc.Engine = engine.New(engine.Deps{
		Arenas:      svc.Arenas,
		Agents:      svc.Agents,
		Epochs:      svc.Epochs,
		EpochRegs:   svc.EpochRegs,
		Portfolios:  svc.Portfolios,
		Trades:      svc.Trades,
		Decisions:   svc.Decisions,
		Leaderboard: svc.Leaderboard,
		TickRepo:    svc.TickRepo,
		Snapshots:   svc.Aggregator,
		Planner:     svc.Planner,
		Arena:       svc.Arena,
		MoltiToken:  svc.MoltiToken,
		Chain:       svc.Chain,
		Keys:        svc.Keys,
		Bundler:     svc.Bundler,
		Nonces:      svc.Nonces,
		Renewer:     svc.Epoch,
		Concurrency: c.Engine.Concurrency,
	})

	return svc
}

// loadOperatorKey resolves the operator's raw signing key from the
// environment variable config.BundlerConf.OperatorKeyEnv names. The
// operator key signs arena-lifecycle transactions directly (spec.md §6)
// and is kept separate from wallet.KeyProvider, which resolves per-agent
// smart-account signers.
func loadOperatorKey(envVar string) (*ecdsa.PrivateKey, error) {
	name := strings.TrimSpace(envVar)
	if name == "" {
		return nil, fmt.Errorf("svc: operator key env var name not configured")
	}
	raw, ok := os.LookupEnv(name)
	if !ok || strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("svc: env var %s not set", name)
	}
	keyHex := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	key, err := crypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("svc: decode operator key: %w", err)
	}
	return key, nil
}
