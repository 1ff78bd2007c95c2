// Package config implements the process interface (§6.2): CLI flags,
// environment overrides, and a YAML config file, with precedence
// CLI > environment > file. Grounded on the teacher's cmd/client
// flag-parse-then-load shape, generalized from a single --config flag
// into the full flag/env/file merge spec §6.2 requires.
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cyclicarb/arbengine/orchestrator"
)

// Config is the fully resolved process configuration, per spec §6.2.
type Config struct {
	Mode             string   `yaml:"mode"`
	TickMs           int      `yaml:"tick_ms"`
	MaxHops          int      `yaml:"max_hops"`
	MinProfitUSD     float64  `yaml:"min_profit_usd"`
	MaxSlippageBps   float64  `yaml:"max_slippage_bps"`
	MaxImpactBps     float64  `yaml:"max_impact_bps"`
	Chains           []uint64 `yaml:"chains"`
	DexAllow         []string `yaml:"dex_allow"`
	ManualWindowMs   int      `yaml:"manual_window_ms"`
	Test             bool     `yaml:"test"`

	MaxFlashloanPercentTVL float64 `yaml:"max_flashloan_percent_tvl"`
	StalenessLimitPriceS   float64 `yaml:"staleness_limit_price"`
	ChainEndpoints         map[uint64][]string `yaml:"chain_endpoints"`
	OracleEndpoints        []string            `yaml:"oracle_endpoints"`

	// NativeGasTokens maps a chain id to the TokenRef representing that
	// chain's native gas currency (e.g. ETH on chain 1), letting the
	// process convert a fetched wei gas price into a path's source-token
	// base units via each token's configured USDPrice.
	NativeGasTokens map[uint64]TokenRef `yaml:"native_gas_tokens"`

	// Tokens seeds the token.Registry's identity interning (spec §3);
	// SourceTokens seeds Phase B's per-token pathfinder fan-out (spec
	// §4.7), by symbol reference into Tokens; Pools seeds the initial
	// pool.Registry contents, since pool discovery itself is out of scope
	// (spec §6.1's adapter boundary).
	Tokens       []TokenSeed `yaml:"tokens"`
	SourceTokens []TokenRef  `yaml:"source_tokens"`
	Pools        []PoolSeed  `yaml:"pools"`
}

// TokenRef identifies a TokenSeed by its (chain, symbol) pair — the form
// convenient to hand-author in YAML, resolved against the admitted
// token.Registry at startup.
type TokenRef struct {
	ChainID uint64 `yaml:"chain_id"`
	Symbol  string `yaml:"symbol"`
}

// TokenSeed is the YAML-file representation of a single token.Token, used
// to bootstrap the token.Registry at startup.
type TokenSeed struct {
	ChainID  uint64 `yaml:"chain_id"`
	Address  string `yaml:"address"`
	Symbol   string `yaml:"symbol"`
	Decimals uint8  `yaml:"decimals"`

	// USDPrice is a configured reference USD rate for this token, standing
	// in for the out-of-scope USD-price adapter (spec §6.1); it backs both
	// the evaluator's tokenUSD conversion and the wei-to-source-token gas
	// conversion.
	USDPrice float64 `yaml:"usd_price"`
}

// PoolSeed is the YAML-file representation of a single pool.Pool, used to
// bootstrap the registry at startup. Tokens reference TokenSeed symbols on
// the same chain (resolved to interned ids by cmd/arbengine at startup);
// Reserves are decimal strings since YAML/JSON have no native big-integer
// type.
type PoolSeed struct {
	ID       uint64   `yaml:"id"`
	ChainID  uint64   `yaml:"chain_id"`
	Kind     string   `yaml:"kind"`
	Address  string   `yaml:"address"`
	Tokens   []string `yaml:"tokens"`
	Reserves []string `yaml:"reserves"`
	FeeBps   uint32   `yaml:"fee_bps"`
}

// Default returns the literal defaults named across spec §4 and §6.2.
func Default() Config {
	return Config{
		Mode:                   "SIMULATION",
		TickMs:                 10,
		MaxHops:                5,
		MinProfitUSD:           0,
		MaxSlippageBps:         500,
		MaxImpactBps:           300,
		ManualWindowMs:         5000,
		MaxFlashloanPercentTVL: 30,
		StalenessLimitPriceS:   12,
	}
}

// ConfigError wraps any failure resolving the process configuration, per
// spec §6.2's exit code 64.
type ConfigError struct {
	Detail string
}

func (e *ConfigError) Error() string { return fmt.Sprintf("config: %s", e.Detail) }

// Load resolves Config from, in ascending precedence, a YAML file, process
// environment variables, and CLI flags (args, typically os.Args[1:]).
func Load(args []string, getenv func(string) string) (Config, error) {
	cfg := Default()

	fs := flag.NewFlagSet("arbengine", flag.ContinueOnError)
	configPath := fs.String("config", "config.yaml", "path to the YAML configuration file")
	mode := fs.String("mode", "", "execution mode: SIMULATION or LIVE")
	tickMs := fs.Int("tick-ms", 0, "tick interval in milliseconds")
	maxHops := fs.Int("max-hops", 0, "maximum path hop count")
	minProfitUSD := fs.Float64("min-profit-usd", -1, "minimum net profit in USD to approve an opportunity")
	maxSlippageBps := fs.Float64("max-slippage-bps", -1, "maximum aggregated slippage in basis points")
	maxImpactBps := fs.Float64("max-impact-bps", -1, "maximum single-leg market impact in basis points")
	chains := fs.String("chains", "", "comma-separated chain ids")
	dexAllow := fs.String("dex-allow", "", "comma-separated allowed dex kinds")
	manualWindowMs := fs.Int("manual-window-ms", 0, "LIVE-mode manual decision window in milliseconds")
	test := fs.Bool("test", false, "run one Phase A data refresh (no path search or evaluation) and exit")

	if err := fs.Parse(args); err != nil {
		return Config{}, &ConfigError{Detail: err.Error()}
	}

	if data, err := os.ReadFile(*configPath); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, &ConfigError{Detail: fmt.Sprintf("parse %s: %v", *configPath, err)}
		}
	}

	applyEnv(&cfg, getenv)

	if *mode != "" {
		cfg.Mode = *mode
	}
	if *tickMs != 0 {
		cfg.TickMs = *tickMs
	}
	if *maxHops != 0 {
		cfg.MaxHops = *maxHops
	}
	if *minProfitUSD >= 0 {
		cfg.MinProfitUSD = *minProfitUSD
	}
	if *maxSlippageBps >= 0 {
		cfg.MaxSlippageBps = *maxSlippageBps
	}
	if *maxImpactBps >= 0 {
		cfg.MaxImpactBps = *maxImpactBps
	}
	if *chains != "" {
		cfg.Chains = parseUint64CSV(*chains)
	}
	if *dexAllow != "" {
		cfg.DexAllow = strings.Split(*dexAllow, ",")
	}
	if *manualWindowMs != 0 {
		cfg.ManualWindowMs = *manualWindowMs
	}
	if *test {
		cfg.Test = true
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv overlays the environment variables spec §6.2 names onto cfg.
// Environment supersedes the config file but is itself superseded by CLI
// flags, applied after this call in Load.
func applyEnv(cfg *Config, getenv func(string) string) {
	if v := getenv("MIN_PROFIT_USD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.MinProfitUSD = f
		}
	}
	if v := getenv("MAX_FLASHLOAN_PERCENT_TVL"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.MaxFlashloanPercentTVL = f
		}
	}
	if v := getenv("STALENESS_LIMIT_PRICE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.StalenessLimitPriceS = f
		}
	}
}

func parseUint64CSV(s string) []uint64 {
	parts := strings.Split(s, ",")
	out := make([]uint64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if n, err := strconv.ParseUint(p, 10, 64); err == nil {
			out = append(out, n)
		}
	}
	return out
}

// validate enforces the invariants a malformed config would otherwise
// only surface as a confusing runtime failure, matching the teacher's
// Config.validate() idiom.
func (c Config) validate() error {
	if c.Mode != "SIMULATION" && c.Mode != "LIVE" {
		return &ConfigError{Detail: fmt.Sprintf("mode must be SIMULATION or LIVE, got %q", c.Mode)}
	}
	if c.TickMs <= 0 {
		return &ConfigError{Detail: "tick_ms must be positive"}
	}
	if c.MaxHops < 2 {
		return &ConfigError{Detail: "max_hops must be at least 2"}
	}
	return nil
}

// OrchestratorConfig projects the process Config into orchestrator.Config.
func (c Config) OrchestratorConfig() orchestrator.Config {
	cfg := orchestrator.DefaultConfig()
	cfg.TickInterval = time.Duration(c.TickMs) * time.Millisecond
	return cfg
}
