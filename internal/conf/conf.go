package conf

import (
	"google.golang.org/protobuf/types/known/durationpb"
)

// Environment values accepted by App.Environment.
const (
	EnvTestnet    = "testnet"
	EnvProduction = "production"
)

// Store drivers accepted by Data_Store.Driver.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
	StoreMySQL  = "mysql"
)

// Bootstrap is the root configuration object.
type Bootstrap struct {
	App        *App
	Server     *Server
	Data       *Data
	Resilience *Resilience
	Provider   *Provider
	Signer     *Signer
	Analyzer   *Analyzer
	Oracle     *Oracle
	Log        *Log
}

// App holds process-wide settings.
type App struct {
	Name        string
	Environment string
	// SourceModule is reported in every execution context unless the caller overrides it.
	SourceModule string
}

type Server struct {
	Http *Server_HTTP
}

type Server_HTTP struct {
	Network string
	Addr    string
	Timeout *durationpb.Duration
	// AdminToken guards the circuit reset endpoint; empty disables the check.
	AdminToken string
}

type Data struct {
	Store    *Data_Store
	Database *Data_Database
	Redis    *Data_Redis
}

type Data_Store struct {
	Driver string
}

type Data_Database struct {
	Driver string
	Source string
}

type Data_Redis struct {
	Network      string
	Addr         string
	Password     string
	DB           int
	ReadTimeout  *durationpb.Duration
	WriteTimeout *durationpb.Duration
}

// Resilience configures breakers, retries and the per-key rate limiter.
type Resilience struct {
	CircuitBreaker *Resilience_CircuitBreaker
	Retry          *Resilience_Retry
	RateLimit      *Resilience_RateLimit
}

type Resilience_CircuitBreaker struct {
	Threshold int32
	Cooldown  *durationpb.Duration
}

type Resilience_Retry struct {
	MaxRetries   int32
	InitialDelay *durationpb.Duration
	Multiplier   float64
	MaxDelay     *durationpb.Duration
}

type Resilience_RateLimit struct {
	Window *durationpb.Duration
}

// Provider configures the primary (GraphQL) and fallback (RPC) data providers.
type Provider struct {
	Goldsky *Provider_Goldsky
	Rpc     *Provider_RPC
}

type Provider_Goldsky struct {
	Endpoint string
	Timeout  *durationpb.Duration
	ProxyUrl string
}

type Provider_RPC struct {
	// Endpoints maps chain name to JSON-RPC URL.
	Endpoints map[string]string
	Timeout   *durationpb.Duration
	// CacheSize bounds the number of dialed RPC clients kept open.
	CacheSize int
}

type Signer struct {
	Lit       *Signer_Lit
	DevWallet *Signer_DevWallet
}

type Signer_Lit struct {
	PkpPublicKey   string
	ActionEndpoint string
	Timeout        *durationpb.Duration
	ProxyUrl       string
}

type Signer_DevWallet struct {
	PrivateKey string
}

type Analyzer struct {
	Claude *Analyzer_Claude
}

type Analyzer_Claude struct {
	ApiKey              string
	Endpoint            string
	Model               string
	MaxTokens           int32
	Timeout             *durationpb.Duration
	ConfidenceThreshold float64
	ProxyUrl            string
}

// Oracle configures the on-chain oracle contract. When Enabled is false the
// oracleUpdate step is skipped.
type Oracle struct {
	Enabled    bool
	RpcUrl     string
	Address    string
	PrivateKey string
	ChainId    int64
	Timeout    *durationpb.Duration
}

type Log struct {
	Level      string
	Format     string
	Env        string
	OutputFile string
}
