package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0644))
	return configPath
}

func TestNewBootstrap_Defaults(t *testing.T) {
	configPath := writeConfig(t, `server:
  http:
    addr: :8080
`)

	bc, err := NewBootstrap(configPath)
	require.NoError(t, err)
	require.NotNil(t, bc)

	assert.Equal(t, EnvTestnet, bc.App.Environment)
	assert.Equal(t, "API_Gateway", bc.App.SourceModule)

	assert.Equal(t, ":8080", bc.Server.Http.Addr)
	assert.Equal(t, "tcp", bc.Server.Http.Network)
	assert.Equal(t, 5*time.Minute, bc.Server.Http.Timeout.AsDuration())

	assert.Equal(t, StoreMemory, bc.Data.Store.Driver)
	assert.Equal(t, 200*time.Millisecond, bc.Data.Redis.ReadTimeout.AsDuration())

	assert.Equal(t, int32(3), bc.Resilience.CircuitBreaker.Threshold)
	assert.Equal(t, time.Minute, bc.Resilience.CircuitBreaker.Cooldown.AsDuration())
	assert.Equal(t, int32(2), bc.Resilience.Retry.MaxRetries)
	assert.Equal(t, 500*time.Millisecond, bc.Resilience.Retry.InitialDelay.AsDuration())
	assert.Equal(t, 2.0, bc.Resilience.Retry.Multiplier)
	assert.Equal(t, 5*time.Second, bc.Resilience.Retry.MaxDelay.AsDuration())
	assert.Equal(t, time.Hour, bc.Resilience.RateLimit.Window.AsDuration())

	assert.Equal(t, 10*time.Second, bc.Provider.Goldsky.Timeout.AsDuration())
	assert.Equal(t, 5*time.Second, bc.Signer.Lit.Timeout.AsDuration())
	assert.Equal(t, 60*time.Second, bc.Analyzer.Claude.Timeout.AsDuration())
	assert.False(t, bc.Oracle.Enabled)

	assert.Equal(t, "info", bc.Log.Level)
	assert.Equal(t, "json", bc.Log.Format)
}

func TestNewBootstrap_EnvOverrides(t *testing.T) {
	tests := []struct {
		name        string
		envVars     map[string]string
		expectedVal func(*Bootstrap) bool
		description string
	}{
		{
			name: "override_http_addr",
			envVars: map[string]string{
				"ORACLEGATE_SERVER_HTTP_ADDR": ":9999",
			},
			expectedVal: func(bc *Bootstrap) bool {
				return bc.Server.Http.Addr == ":9999"
			},
			description: "ORACLEGATE_SERVER_HTTP_ADDR should override default :8080",
		},
		{
			name: "environment_alias",
			envVars: map[string]string{
				"ENVIRONMENT": "PRODUCTION",
			},
			expectedVal: func(bc *Bootstrap) bool {
				return bc.App.Environment == EnvProduction
			},
			description: "ENVIRONMENT should select production, case-insensitively",
		},
		{
			name: "redis_store",
			envVars: map[string]string{
				"ORACLEGATE_DATA_STORE_DRIVER": "redis",
				"REDIS_ADDR":                   "redis.example.com:6379",
			},
			expectedVal: func(bc *Bootstrap) bool {
				return bc.Data.Store.Driver == StoreRedis && bc.Data.Redis.Addr == "redis.example.com:6379"
			},
			description: "REDIS_ADDR alias should feed the redis store",
		},
		{
			name: "rpc_endpoint_alias",
			envVars: map[string]string{
				"SEPOLIA_RPC": "https://sepolia.example.com",
			},
			expectedVal: func(bc *Bootstrap) bool {
				return bc.Provider.Rpc.Endpoints["sepolia"] == "https://sepolia.example.com"
			},
			description: "SEPOLIA_RPC should populate the sepolia endpoint",
		},
		{
			name: "override_log_level",
			envVars: map[string]string{
				"ORACLEGATE_LOG_LEVEL": "debug",
			},
			expectedVal: func(bc *Bootstrap) bool {
				return bc.Log.Level == "debug"
			},
			description: "ORACLEGATE_LOG_LEVEL should override default info",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := writeConfig(t, `server:
  http:
    addr: :8080
`)
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			bc, err := NewBootstrap(configPath)
			require.NoError(t, err, tt.description)
			require.NotNil(t, bc)

			assert.True(t, tt.expectedVal(bc), tt.description)
		})
	}
}

func TestNewBootstrap_InvalidConfig(t *testing.T) {
	tests := []struct {
		name        string
		envVars     map[string]string
		expectedErr string
	}{
		{
			name:        "unknown_environment",
			envVars:     map[string]string{"ENVIRONMENT": "staging"},
			expectedErr: "app.environment",
		},
		{
			name:        "unknown_store",
			envVars:     map[string]string{"ORACLEGATE_DATA_STORE_DRIVER": "etcd"},
			expectedErr: "data.store.driver",
		},
		{
			name:        "mysql_without_dsn",
			envVars:     map[string]string{"ORACLEGATE_DATA_STORE_DRIVER": "mysql"},
			expectedErr: "MYSQL_DSN",
		},
		{
			name:        "oracle_enabled_without_address",
			envVars:     map[string]string{"ORACLEGATE_ORACLE_ENABLED": "true"},
			expectedErr: "ORACLE_ADDRESS",
		},
		{
			name:        "bad_dev_wallet_key",
			envVars:     map[string]string{"DEV_WALLET_PRIVATE_KEY": "0x1234"},
			expectedErr: "signer.dev_wallet.private_key",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := writeConfig(t, "log:\n  level: info\n")
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			bc, err := NewBootstrap(configPath)
			require.Error(t, err)
			assert.Nil(t, bc)
			assert.Contains(t, err.Error(), tt.expectedErr)
		})
	}
}

func TestNewBootstrap_OracleEnabledListsAllProblems(t *testing.T) {
	configPath := writeConfig(t, `oracle:
  enabled: true
`)

	_, err := NewBootstrap(configPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "oracle.address")
	assert.Contains(t, err.Error(), "oracle.private_key")
	assert.Contains(t, err.Error(), "oracle.rpc_url")
}

func TestNewBootstrap_MissingFile(t *testing.T) {
	_, err := NewBootstrap(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestNewBootstrap_NoFile(t *testing.T) {
	bc, err := NewBootstrap("")
	require.NoError(t, err)
	assert.Equal(t, "OracleGate", bc.App.Name)
}

func TestNewBootstrap_RPCEndpointAliasesMergeWithFile(t *testing.T) {
	configPath := writeConfig(t, `provider:
  rpc:
    endpoints:
      base: https://base.from-file.example.com
      sepolia: https://sepolia.from-file.example.com
`)
	t.Setenv("ARBITRUM_RPC", "https://arbitrum.example.com")
	t.Setenv("SEPOLIA_RPC", "https://sepolia.from-env.example.com")

	bc, err := NewBootstrap(configPath)
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"base":     "https://base.from-file.example.com",
		"sepolia":  "https://sepolia.from-env.example.com",
		"arbitrum": "https://arbitrum.example.com",
	}, bc.Provider.Rpc.Endpoints)
}

func TestNewBootstrap_RPCEndpointAliasesWithoutFile(t *testing.T) {
	t.Setenv("OPTIMISM_RPC", "https://optimism.example.com")
	t.Setenv("BASE_RPC", "https://base.example.com")

	bc, err := NewBootstrap("")
	require.NoError(t, err)

	assert.Equal(t, "https://optimism.example.com", bc.Provider.Rpc.Endpoints["optimism"])
	assert.Equal(t, "https://base.example.com", bc.Provider.Rpc.Endpoints["base"])
	assert.NotContains(t, bc.Provider.Rpc.Endpoints, "sepolia")
}
