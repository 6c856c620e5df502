package biz

import (
	"testing"

	"OracleGate/internal/conf"
	"OracleGate/internal/data"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Well-known throwaway development key, never funded.
const testDevKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func newWiringBreakers() *CircuitBreakerUsecase {
	return NewCircuitBreakerUsecase(nil, newMemoryCircuitRepo(), nil, nil, testLogger)
}

func TestNewSigners(t *testing.T) {
	lit, err := data.NewLitSigner(nil, testLogger)
	require.NoError(t, err)
	breakers := newWiringBreakers()
	withKey := &conf.Signer{DevWallet: &conf.Signer_DevWallet{PrivateKey: testDevKey}}

	tests := []struct {
		name         string
		env          string
		signer       *conf.Signer
		wantFallback bool
	}{
		{"testnet with dev key", conf.EnvTestnet, withKey, true},
		{"testnet without dev key", conf.EnvTestnet, nil, false},
		{"production ignores dev key", conf.EnvProduction, withKey, false},
		{"testnet with bad key", conf.EnvTestnet, &conf.Signer{DevWallet: &conf.Signer_DevWallet{PrivateKey: "0xnothex"}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewSigners(&conf.App{Environment: tt.env}, tt.signer, nil, breakers, lit, nil, testLogger)
			assert.Equal(t, data.LitSignerName, f.Primary().Name())
			assert.Same(t, breakers.Get(BreakerLit), f.Breaker())
			if tt.wantFallback {
				require.NotNil(t, f.Fallback())
				assert.Equal(t, data.DevWalletSignerName, f.Fallback().Name())
			} else {
				assert.Nil(t, f.Fallback())
			}
		})
	}
}

func TestNewAnalyzers_RulesWithoutClaude(t *testing.T) {
	f := NewAnalyzers(nil, nil, newWiringBreakers(), nil, nil, testLogger)
	_, ok := f.GetAnalyzer("any").(*RulesAnalyzer)
	assert.True(t, ok)
}

func TestNewProviders_BreakersPerSource(t *testing.T) {
	breakers := newWiringBreakers()
	goldsky, err := data.NewGoldskySource(nil, testLogger)
	require.NoError(t, err)
	rpc, cleanup, err := data.NewRPCSource(nil, testLogger)
	require.NoError(t, err)
	defer cleanup()

	f := NewProviders(nil, nil, breakers, goldsky, rpc, nil, testLogger)
	assert.Same(t, breakers.Get(BreakerGoldsky), f.Primary().Breaker())
	assert.Same(t, breakers.Get(BreakerAlchemy), f.Fallback().Breaker())
}

func TestNewOracleContract_DisabledIsNilInterface(t *testing.T) {
	assert.True(t, NewOracleContract(nil) == nil)
}
