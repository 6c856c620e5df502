package data

import (
	"context"
	"fmt"
	"sync"
	"time"

	"OracleGate/internal/conf"
	"OracleGate/internal/model"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/go-kratos/kratos/v2/log"
	lru "github.com/hashicorp/golang-lru/v2"
)

// RPCProviderName is reported in ProviderMetadata.Provider.
const RPCProviderName = "Alchemy"

const defaultRPCCacheSize = 16

// RPCSource is the fallback chain source. It reads the latest block number
// and the balance of the address derived from the key over JSON-RPC.
type RPCSource struct {
	endpoints map[string]string
	now       func() time.Time
	logger    *log.Helper

	mu      sync.Mutex
	clients *lru.Cache[string, *ethclient.Client]
}

// NewRPCSource creates the JSON-RPC chain source. Clients are dialed lazily per
// chain and kept in a bounded LRU; evicted clients are closed.
func NewRPCSource(c *conf.Provider, logger log.Logger) (*RPCSource, func(), error) {
	helper := log.NewHelper(log.With(logger, "module", "data/rpc"))

	endpoints := map[string]string{}
	size := defaultRPCCacheSize
	if c != nil && c.Rpc != nil {
		for chain, url := range c.Rpc.Endpoints {
			if url != "" {
				endpoints[chain] = url
			}
		}
		if c.Rpc.CacheSize > 0 {
			size = c.Rpc.CacheSize
		}
	}

	clients, err := lru.NewWithEvict(size, func(chain string, client *ethclient.Client) {
		helper.Debugw("msg", "closing rpc client", "chain", chain)
		client.Close()
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create rpc client cache: %w", err)
	}

	s := &RPCSource{
		endpoints: endpoints,
		now:       time.Now,
		logger:    helper,
		clients:   clients,
	}

	cleanup := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.clients.Purge()
	}
	return s, cleanup, nil
}

func (s *RPCSource) Name() string {
	return RPCProviderName
}

// FetchChain returns {chain, blockNumber, balance, timestamp} for one chain.
// The balance is read for the first 20 bytes of the key.
func (s *RPCSource) FetchChain(ctx context.Context, q *model.ProviderQuery, chain string) (map[string]interface{}, error) {
	client, err := s.client(ctx, chain)
	if err != nil {
		return nil, err
	}

	blockNumber, err := client.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: eth_blockNumber: %w", chain, err)
	}

	balance, err := client.BalanceAt(ctx, addressFromKey(q.Key), nil)
	if err != nil {
		return nil, fmt.Errorf("%s: eth_getBalance: %w", chain, err)
	}

	return map[string]interface{}{
		"chain":       chain,
		"blockNumber": blockNumber,
		"balance":     balance.String(),
		"timestamp":   s.now().UTC().Format(time.RFC3339Nano),
	}, nil
}

func (s *RPCSource) client(ctx context.Context, chain string) (*ethclient.Client, error) {
	url, ok := s.endpoints[chain]
	if !ok {
		return nil, fmt.Errorf("no RPC endpoint configured for chain: %s", chain)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if client, ok := s.clients.Get(chain); ok {
		return client, nil
	}

	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("%s: dial rpc: %w", chain, err)
	}
	s.clients.Add(chain, client)
	return client, nil
}

// addressFromKey takes the first 20 bytes of a 0x-prefixed key, right-padding
// short keys with zeros.
func addressFromKey(key string) common.Address {
	hex := key
	if len(hex) > 42 {
		hex = hex[:42]
	}
	for len(hex) < 42 {
		hex += "0"
	}
	return common.HexToAddress(hex)
}
