package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/zeromicro/go-zero/core/conf"
	"github.com/zeromicro/go-zero/core/stores/cache"

	"github.com/moltiarena/core/pkg/confkit"
	plannerpkg "github.com/moltiarena/core/pkg/planner"
)

type CacheTTL struct {
	Short  int `json:",default=10"` // seconds
	Medium int `json:",default=60"`
	Long   int `json:",default=300"`
}

// PostgresConf mirrors goctl style database settings while allowing pool tuning.
type PostgresConf struct {
	DataSource  string        `json:",optional"`
	MaxOpen     int           `json:",default=10"`
	MaxIdle     int           `json:",default=5"`
	MaxLifetime time.Duration `json:",default=5m"`
}

// ChainConf points the chain client at one EVM RPC endpoint and the arena's
// deployed contracts.
type ChainConf struct {
	RPCURL            string `json:",optional"`
	ChainID           int64  `json:",default=10143"` // Monad testnet
	ArenaAddress      string `json:",optional"`
	MoltiTokenAddress string `json:",optional"`
}

// BundlerConf configures the account-abstraction bundler HTTP client and
// names the env var holding the operator's raw signing key (spec.md §6:
// "an operator wallet signs arena-lifecycle transactions directly" —
// distinct from per-agent smart-account signers, which KeyProvider
// decrypts out of band).
type BundlerConf struct {
	URL            string        `json:",optional"`
	EntryPoint     string        `json:",optional"`
	Timeout        time.Duration `json:",default=10s"`
	MaxRetries     int           `json:",default=3"`
	OperatorKeyEnv string        `json:",default=OPERATOR_PRIVATE_KEY"`
}

// IngestConf points the ingest subscriber at the external token-event feed.
type IngestConf struct {
	URL string `json:",optional"`
}

// EngineConf tunes the Tick Engine's loop.
type EngineConf struct {
	TickInterval time.Duration `json:",default=15s"`
	Concurrency  int           `json:",default=8"`
}

// EpochConf tunes the Epoch Controller's lifecycle scheduling. Duration
// under 24h selects demo mode; 24h or more selects daily mode (spec.md
// §4.6).
type EpochConf struct {
	Duration      time.Duration `json:",default=24h"`
	RenewalFeeWei string        `json:",default=100000000000000000000"`
	ClaimWindow   time.Duration `json:",default=720h"` // 30 days
}

type Config struct {
	// Env indicates the running environment: test | dev | prod
	// Defaults to test and is reported by IsTestEnv; the Model Gateway and
	// the bundler are configured the same way in every environment.
	Env      string          `json:",default=test"`
	Postgres PostgresConf    `json:",optional"`
	Cache    cache.CacheConf `json:",optional"`
	TTL      CacheTTL        `json:",optional"`

	Chain   ChainConf   `json:",optional"`
	Bundler BundlerConf `json:",optional"`
	Ingest  IngestConf  `json:",optional"`
	Engine  EngineConf  `json:",optional"`
	Epoch   EpochConf   `json:",optional"`

	Planner confkit.Section[plannerpkg.Config] `json:",optional"`

	mainPath string
	baseDir  string
}

const defaultConfigRelativePath = "etc/moltiarena.yaml"

var (
	configFileFlag = flag.String("f", defaultConfigRelativePath, "the config file")
)

func init() {
	confkit.LoadDotenvOnce()
}

func ConfigFile() string {
	candidate := defaultConfigRelativePath
	if configFileFlag != nil {
		if trimmed := strings.TrimSpace(*configFileFlag); trimmed != "" {
			candidate = trimmed
		}
	}

	if resolved, ok := resolveConfigPath(candidate); ok {
		return resolved
	}
	return candidate
}

func OverrideConfigFile(path string) (restore func()) {
	prev := ConfigFile()
	if configFileFlag != nil {
		*configFileFlag = path
	}
	return func() {
		if configFileFlag != nil {
			*configFileFlag = prev
		}
	}
}

func (c *Config) IsTestEnv() bool {
	return c.Env == "test" || c.Env == ""
}

func resolveConfigPath(path string) (string, bool) {
	if path == "" {
		return "", false
	}
	if filepath.IsAbs(path) {
		if fileExists(path) {
			return path, true
		}
		return "", false
	}

	startDirs := make([]string, 0, 3)
	if cwd, err := os.Getwd(); err == nil {
		startDirs = append(startDirs, cwd)
	}
	if exePath, err := os.Executable(); err == nil {
		startDirs = append(startDirs, filepath.Dir(exePath))
	}

	seen := make(map[string]struct{}, len(startDirs))
	for _, dir := range startDirs {
		dir = filepath.Clean(dir)
		if dir == "" {
			continue
		}
		if _, ok := seen[dir]; ok {
			continue
		}
		seen[dir] = struct{}{}
		if resolved, ok := searchUpwards(dir, path); ok {
			return resolved, true
		}
	}

	return "", false
}

func searchUpwards(start, rel string) (string, bool) {
	dir := filepath.Clean(start)
	for {
		candidate := filepath.Join(dir, rel)
		if fileExists(candidate) {
			return candidate, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

func MustLoad() *Config {
	path := ConfigFile()
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}
	return cfg
}

func Load(path string) (*Config, error) {
	confkit.LoadDotenvOnce()

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path %s: %w", path, err)
	}

	var cfg Config
	if err := conf.Load(absPath, &cfg, conf.UseEnv()); err != nil {
		return nil, fmt.Errorf("load config %s: %w", absPath, err)
	}

	cfg.mainPath = absPath
	cfg.baseDir = filepath.Dir(absPath)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.hydrateSections(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Env)) {
	case "", "test", "dev", "prod":
		if strings.TrimSpace(c.Env) == "" {
			c.Env = "test"
		}
	default:
		return errors.New("config: env must be one of test|dev|prod")
	}
	if c.Epoch.Duration <= 0 {
		return errors.New("config: epoch.duration must be positive")
	}
	return c.validateTTL()
}

func (c *Config) validateTTL() error {
	if c.TTL.Short <= 0 {
		return errors.New("config: ttl.short must be positive")
	}
	if c.TTL.Medium <= 0 {
		return errors.New("config: ttl.medium must be positive")
	}
	if c.TTL.Long <= 0 {
		return errors.New("config: ttl.long must be positive")
	}
	return nil
}

func (c *Config) hydrateSections() error {
	base := c.baseDir

	if err := c.Planner.Hydrate(base, plannerpkg.LoadConfig); err != nil {
		return fmt.Errorf("load planner config: %w", err)
	}
	return nil
}

func (c *Config) MainPath() string {
	return c.mainPath
}

func (c *Config) BaseDir() string {
	return c.baseDir
}
