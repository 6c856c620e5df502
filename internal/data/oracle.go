package data

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"OracleGate/internal/conf"
	"OracleGate/internal/model"
	"OracleGate/pkg/payload"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/go-kratos/kratos/v2/log"
)

// oracleABI covers the two oracle methods the gateway calls.
const oracleABI = `[
  {"type":"function","name":"updateData","stateMutability":"nonpayable","outputs":[],
   "inputs":[{"name":"key","type":"bytes32"},{"name":"value","type":"bytes"},{"name":"schemaHash","type":"bytes32"}]},
  {"type":"function","name":"sendResponse","stateMutability":"nonpayable","outputs":[],
   "inputs":[{"name":"messageId","type":"bytes32"},{"name":"key","type":"bytes32"}]}
]`

// oracleBackend is what the contract binding needs from the chain.
type oracleBackend interface {
	bind.ContractBackend
	bind.DeployBackend
}

// OracleClient submits oracle transactions with a local key.
type OracleClient struct {
	contract *bind.BoundContract
	backend  oracleBackend
	key      *ecdsa.PrivateKey
	chainID  *big.Int
	address  common.Address
	logger   *log.Helper
}

// NewOracleClient dials the oracle chain. It returns nil without an error
// when the oracle is disabled, which makes the workflow skip on-chain steps.
func NewOracleClient(c *conf.Oracle, logger log.Logger) (*OracleClient, func(), error) {
	helper := log.NewHelper(log.With(logger, "module", "data/oracle"))
	noop := func() {}

	if c == nil || !c.Enabled {
		helper.Infow("msg", "oracle disabled, on-chain steps will be skipped")
		return nil, noop, nil
	}

	ctx := context.Background()
	if d := c.Timeout.AsDuration(); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	client, err := ethclient.DialContext(ctx, c.RpcUrl)
	if err != nil {
		return nil, noop, fmt.Errorf("failed to dial oracle rpc: %w", err)
	}

	oc, err := newOracleClient(client, c.Address, c.PrivateKey, big.NewInt(c.ChainId), logger)
	if err != nil {
		client.Close()
		return nil, noop, err
	}

	helper.Infow("msg", "oracle client ready", "address", oc.address.Hex(), "chain_id", c.ChainId)
	return oc, client.Close, nil
}

func newOracleClient(backend oracleBackend, address, privateKey string, chainID *big.Int, logger log.Logger) (*OracleClient, error) {
	parsed, err := abi.JSON(strings.NewReader(oracleABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse oracle abi: %w", err)
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid oracle private key: %w", err)
	}

	addr := common.HexToAddress(address)
	return &OracleClient{
		contract: bind.NewBoundContract(addr, parsed, backend, backend, backend),
		backend:  backend,
		key:      key,
		chainID:  chainID,
		address:  addr,
		logger:   log.NewHelper(log.With(logger, "module", "data/oracle")),
	}, nil
}

// UpdateData submits updateData(key, value, schemaHash). value is 0x hex.
func (c *OracleClient) UpdateData(ctx context.Context, key, value, schemaHash string) (model.PendingTx, error) {
	keyBytes, err := payload.ToBytes32(key)
	if err != nil {
		return nil, fmt.Errorf("oracle key: %w", err)
	}
	schemaBytes, err := payload.ToBytes32(schemaHash)
	if err != nil {
		return nil, fmt.Errorf("oracle schemaHash: %w", err)
	}
	valueBytes, err := hexutil.Decode(value)
	if err != nil {
		return nil, fmt.Errorf("oracle value: %w", err)
	}
	return c.transact(ctx, "updateData", keyBytes, valueBytes, schemaBytes)
}

// SendResponse submits sendResponse(messageId, key).
func (c *OracleClient) SendResponse(ctx context.Context, messageID, key string) (model.PendingTx, error) {
	idBytes, err := payload.ToBytes32(messageID)
	if err != nil {
		return nil, fmt.Errorf("oracle messageId: %w", err)
	}
	keyBytes, err := payload.ToBytes32(key)
	if err != nil {
		return nil, fmt.Errorf("oracle key: %w", err)
	}
	return c.transact(ctx, "sendResponse", idBytes, keyBytes)
}

func (c *OracleClient) transact(ctx context.Context, method string, args ...interface{}) (model.PendingTx, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(c.key, c.chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to create transactor: %w", err)
	}
	opts.Context = ctx

	tx, err := c.contract.Transact(opts, method, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}

	c.logger.Infow("msg", "oracle transaction submitted", "method", method, "tx_hash", tx.Hash().Hex())
	return &pendingTx{tx: tx, backend: c.backend}, nil
}

type pendingTx struct {
	tx      *types.Transaction
	backend bind.DeployBackend
}

func (p *pendingTx) Hash() string {
	return p.tx.Hash().Hex()
}

// Wait blocks until the transaction is mined or ctx is done.
func (p *pendingTx) Wait(ctx context.Context) (*model.Receipt, error) {
	receipt, err := bind.WaitMined(ctx, p.backend, p.tx)
	if err != nil {
		return nil, fmt.Errorf("waiting for %s: %w", p.Hash(), err)
	}
	return &model.Receipt{Status: receipt.Status, GasUsed: receipt.GasUsed}, nil
}
