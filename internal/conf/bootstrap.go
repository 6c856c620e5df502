// Package conf provides configuration management using Viper.
// It supports loading configuration from YAML files and environment variables.
package conf

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"
	"google.golang.org/protobuf/types/known/durationpb"
)

var (
	addressPattern    = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)
	privateKeyPattern = regexp.MustCompile(`^(0x)?[a-fA-F0-9]{64}$`)
)

// NewBootstrap creates and initializes a Bootstrap configuration.
// It loads configuration from the specified config file path, applies defaults,
// and allows overrides from environment variables prefixed with ORACLEGATE_.
//
// Configuration priority: Environment variables > Config file > Defaults
//
// Compatibility environment variables (without prefix):
//   - ENVIRONMENT: testnet or production
//   - REDIS_ADDR, MYSQL_DSN: durable store connections
//   - GOLDSKY_ENDPOINT, SEPOLIA_RPC, ARBITRUM_RPC, BASE_RPC, OPTIMISM_RPC: data providers
//   - LIT_PKP_PUBLIC_KEY, DEV_WALLET_PRIVATE_KEY: signers
//   - CLAUDE_API_KEY: analyzer
//   - ORACLE_ADDRESS, ORACLE_SIGNER_KEY, ORACLE_RPC: oracle contract
func NewBootstrap(configPath string) (*Bootstrap, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("ORACLEGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("app.environment", "ENVIRONMENT", "ORACLEGATE_APP_ENVIRONMENT")
	_ = v.BindEnv("data.redis.addr", "REDIS_ADDR", "ORACLEGATE_DATA_REDIS_ADDR")
	_ = v.BindEnv("data.database.source", "MYSQL_DSN", "ORACLEGATE_DATA_DATABASE_SOURCE")
	_ = v.BindEnv("provider.goldsky.endpoint", "GOLDSKY_ENDPOINT", "ORACLEGATE_PROVIDER_GOLDSKY_ENDPOINT")
	for _, chain := range rpcChains {
		_ = v.BindEnv("provider.rpc.endpoints."+chain, strings.ToUpper(chain)+"_RPC")
	}
	_ = v.BindEnv("signer.lit.pkp_public_key", "LIT_PKP_PUBLIC_KEY", "ORACLEGATE_SIGNER_LIT_PKP_PUBLIC_KEY")
	_ = v.BindEnv("signer.dev_wallet.private_key", "DEV_WALLET_PRIVATE_KEY", "ORACLEGATE_SIGNER_DEV_WALLET_PRIVATE_KEY")
	_ = v.BindEnv("analyzer.claude.api_key", "CLAUDE_API_KEY", "ORACLEGATE_ANALYZER_CLAUDE_API_KEY")
	_ = v.BindEnv("oracle.address", "ORACLE_ADDRESS", "ORACLEGATE_ORACLE_ADDRESS")
	_ = v.BindEnv("oracle.private_key", "ORACLE_SIGNER_KEY", "ORACLEGATE_ORACLE_PRIVATE_KEY")
	_ = v.BindEnv("oracle.rpc_url", "ORACLE_RPC", "ORACLEGATE_ORACLE_RPC_URL")
	_ = v.BindEnv("server.http.admin_token", "ADMIN_TOKEN", "ORACLEGATE_SERVER_HTTP_ADMIN_TOKEN")

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
	}

	bc := &Bootstrap{
		App: &App{
			Name:         v.GetString("app.name"),
			Environment:  strings.ToLower(v.GetString("app.environment")),
			SourceModule: v.GetString("app.source_module"),
		},
		Server: &Server{
			Http: &Server_HTTP{
				Network:    v.GetString("server.http.network"),
				Addr:       v.GetString("server.http.addr"),
				Timeout:    durationpb.New(v.GetDuration("server.http.timeout")),
				AdminToken: v.GetString("server.http.admin_token"),
			},
		},
		Data: &Data{
			Store: &Data_Store{
				Driver: strings.ToLower(v.GetString("data.store.driver")),
			},
			Database: &Data_Database{
				Driver: v.GetString("data.database.driver"),
				Source: v.GetString("data.database.source"),
			},
			Redis: &Data_Redis{
				Network:      v.GetString("data.redis.network"),
				Addr:         v.GetString("data.redis.addr"),
				Password:     v.GetString("data.redis.password"),
				DB:           v.GetInt("data.redis.db"),
				ReadTimeout:  durationpb.New(v.GetDuration("data.redis.read_timeout")),
				WriteTimeout: durationpb.New(v.GetDuration("data.redis.write_timeout")),
			},
		},
		Resilience: &Resilience{
			CircuitBreaker: &Resilience_CircuitBreaker{
				Threshold: v.GetInt32("resilience.circuit_breaker.threshold"),
				Cooldown:  durationpb.New(v.GetDuration("resilience.circuit_breaker.cooldown")),
			},
			Retry: &Resilience_Retry{
				MaxRetries:   v.GetInt32("resilience.retry.max_retries"),
				InitialDelay: durationpb.New(v.GetDuration("resilience.retry.initial_delay")),
				Multiplier:   v.GetFloat64("resilience.retry.multiplier"),
				MaxDelay:     durationpb.New(v.GetDuration("resilience.retry.max_delay")),
			},
			RateLimit: &Resilience_RateLimit{
				Window: durationpb.New(v.GetDuration("resilience.rate_limit.window")),
			},
		},
		Provider: &Provider{
			Goldsky: &Provider_Goldsky{
				Endpoint: v.GetString("provider.goldsky.endpoint"),
				Timeout:  durationpb.New(v.GetDuration("provider.goldsky.timeout")),
				ProxyUrl: v.GetString("provider.goldsky.proxy_url"),
			},
			Rpc: &Provider_RPC{
				Endpoints: rpcEndpoints(v),
				Timeout:   durationpb.New(v.GetDuration("provider.rpc.timeout")),
				CacheSize: v.GetInt("provider.rpc.cache_size"),
			},
		},
		Signer: &Signer{
			Lit: &Signer_Lit{
				PkpPublicKey:   v.GetString("signer.lit.pkp_public_key"),
				ActionEndpoint: v.GetString("signer.lit.action_endpoint"),
				Timeout:        durationpb.New(v.GetDuration("signer.lit.timeout")),
				ProxyUrl:       v.GetString("signer.lit.proxy_url"),
			},
			DevWallet: &Signer_DevWallet{
				PrivateKey: v.GetString("signer.dev_wallet.private_key"),
			},
		},
		Analyzer: &Analyzer{
			Claude: &Analyzer_Claude{
				ApiKey:              v.GetString("analyzer.claude.api_key"),
				Endpoint:            v.GetString("analyzer.claude.endpoint"),
				Model:               v.GetString("analyzer.claude.model"),
				MaxTokens:           v.GetInt32("analyzer.claude.max_tokens"),
				Timeout:             durationpb.New(v.GetDuration("analyzer.claude.timeout")),
				ConfidenceThreshold: v.GetFloat64("analyzer.claude.confidence_threshold"),
				ProxyUrl:            v.GetString("analyzer.claude.proxy_url"),
			},
		},
		Oracle: &Oracle{
			Enabled:    v.GetBool("oracle.enabled"),
			RpcUrl:     v.GetString("oracle.rpc_url"),
			Address:    v.GetString("oracle.address"),
			PrivateKey: v.GetString("oracle.private_key"),
			ChainId:    v.GetInt64("oracle.chain_id"),
			Timeout:    durationpb.New(v.GetDuration("oracle.timeout")),
		},
		Log: &Log{
			Level:      v.GetString("log.level"),
			Format:     v.GetString("log.format"),
			Env:        v.GetString("log.env"),
			OutputFile: v.GetString("log.output_file"),
		},
	}

	if err := Validate(bc); err != nil {
		return nil, err
	}

	return bc, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "OracleGate")
	v.SetDefault("app.environment", EnvTestnet)
	v.SetDefault("app.source_module", "API_Gateway")

	v.SetDefault("server.http.network", "tcp")
	v.SetDefault("server.http.addr", ":8080")
	v.SetDefault("server.http.timeout", 5*time.Minute)

	v.SetDefault("data.store.driver", StoreMemory)
	v.SetDefault("data.database.driver", "mysql")
	v.SetDefault("data.redis.network", "tcp")
	v.SetDefault("data.redis.addr", "127.0.0.1:6379")
	v.SetDefault("data.redis.db", 0)
	v.SetDefault("data.redis.read_timeout", 200*time.Millisecond)
	v.SetDefault("data.redis.write_timeout", 200*time.Millisecond)

	v.SetDefault("resilience.circuit_breaker.threshold", 3)
	v.SetDefault("resilience.circuit_breaker.cooldown", time.Minute)
	v.SetDefault("resilience.retry.max_retries", 2)
	v.SetDefault("resilience.retry.initial_delay", 500*time.Millisecond)
	v.SetDefault("resilience.retry.multiplier", 2.0)
	v.SetDefault("resilience.retry.max_delay", 5*time.Second)
	v.SetDefault("resilience.rate_limit.window", time.Hour)

	v.SetDefault("provider.goldsky.endpoint", "")
	v.SetDefault("provider.goldsky.timeout", 10*time.Second)
	v.SetDefault("provider.rpc.timeout", 10*time.Second)
	v.SetDefault("provider.rpc.cache_size", 16)

	v.SetDefault("signer.lit.action_endpoint", "https://serrano.litgateway.com/api/v1/execute")
	v.SetDefault("signer.lit.timeout", 5*time.Second)

	v.SetDefault("analyzer.claude.endpoint", "https://api.anthropic.com/v1/messages")
	v.SetDefault("analyzer.claude.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("analyzer.claude.max_tokens", 4096)
	v.SetDefault("analyzer.claude.timeout", 60*time.Second)
	v.SetDefault("analyzer.claude.confidence_threshold", 0.5)

	v.SetDefault("oracle.enabled", false)
	v.SetDefault("oracle.chain_id", 11155111)
	v.SetDefault("oracle.timeout", 2*time.Minute)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Validate checks that all required configuration fields are present and valid.
// It returns an error listing all problems at once.
func Validate(bc *Bootstrap) error {
	var problems []string

	if bc.App == nil || (bc.App.Environment != EnvTestnet && bc.App.Environment != EnvProduction) {
		problems = append(problems, "app.environment must be testnet or production (ENVIRONMENT)")
	}

	if bc.Data == nil || bc.Data.Store == nil {
		problems = append(problems, "data.store.driver")
	} else {
		switch bc.Data.Store.Driver {
		case StoreMemory:
		case StoreRedis:
			if bc.Data.Redis == nil || bc.Data.Redis.Addr == "" {
				problems = append(problems, "data.redis.addr (REDIS_ADDR) is required for the redis store")
			}
		case StoreMySQL:
			if bc.Data.Database == nil || bc.Data.Database.Source == "" {
				problems = append(problems, "data.database.source (MYSQL_DSN) is required for the mysql store")
			}
		default:
			problems = append(problems, fmt.Sprintf("data.store.driver %q is not one of memory, redis, mysql", bc.Data.Store.Driver))
		}
	}

	if r := bc.Resilience; r != nil && r.CircuitBreaker != nil && r.CircuitBreaker.Threshold <= 0 {
		problems = append(problems, "resilience.circuit_breaker.threshold must be positive")
	}
	if r := bc.Resilience; r != nil && r.Retry != nil && r.Retry.MaxRetries < 0 {
		problems = append(problems, "resilience.retry.max_retries must not be negative")
	}

	if s := bc.Signer; s != nil && s.DevWallet != nil && s.DevWallet.PrivateKey != "" &&
		!privateKeyPattern.MatchString(s.DevWallet.PrivateKey) {
		problems = append(problems, "signer.dev_wallet.private_key must be a 32-byte hex key")
	}

	if o := bc.Oracle; o != nil && o.Enabled {
		if !addressPattern.MatchString(o.Address) {
			problems = append(problems, "oracle.address (ORACLE_ADDRESS) must be a 20-byte hex address")
		}
		if !privateKeyPattern.MatchString(o.PrivateKey) {
			problems = append(problems, "oracle.private_key (ORACLE_SIGNER_KEY) must be a 32-byte hex key")
		}
		if o.RpcUrl == "" {
			problems = append(problems, "oracle.rpc_url (ORACLE_RPC) is required when the oracle is enabled")
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, ", "))
	}

	return nil
}

// rpcChains are the chains with a <CHAIN>_RPC endpoint alias.
var rpcChains = []string{"sepolia", "arbitrum", "base", "optimism"}

// rpcEndpoints merges the per-chain keys over the endpoints map. Env-bound
// nested keys are not visible through GetStringMapString unless the map is
// also present in the config file.
func rpcEndpoints(v *viper.Viper) map[string]string {
	endpoints := v.GetStringMapString("provider.rpc.endpoints")
	if endpoints == nil {
		endpoints = make(map[string]string)
	}
	for _, chain := range rpcChains {
		if url := v.GetString("provider.rpc.endpoints." + chain); url != "" {
			endpoints[chain] = url
		}
	}
	return endpoints
}
