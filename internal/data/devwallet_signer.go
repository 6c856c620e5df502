package data

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"
	"time"

	"OracleGate/internal/conf"
	"OracleGate/internal/model"
	"OracleGate/pkg/payload"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/go-kratos/kratos/v2/log"
)

const DevWalletSignerName = "DevWallet"

// ErrDevWalletInProduction is returned when a dev wallet is requested in production.
var ErrDevWalletInProduction = errors.New("DevWalletSigner cannot be used in production")

// DevWalletSigner signs with a local private key. It exists for testnet only.
type DevWalletSigner struct {
	key     *ecdsa.PrivateKey
	address string
	now     func() time.Time
	logger  *log.Helper
}

// NewDevWalletSigner refuses to build in production regardless of the key.
func NewDevWalletSigner(environment, privateKey string, logger log.Logger) (*DevWalletSigner, error) {
	if environment == conf.EnvProduction {
		return nil, ErrDevWalletInProduction
	}
	if privateKey == "" {
		return nil, fmt.Errorf("dev wallet private key is not configured")
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid dev wallet private key: %w", err)
	}

	return &DevWalletSigner{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey).Hex(),
		now:     time.Now,
		logger:  log.NewHelper(log.With(logger, "module", "data/devwallet_signer")),
	}, nil
}

func (s *DevWalletSigner) Name() string {
	return DevWalletSignerName
}

// Address returns the checksummed wallet address.
func (s *DevWalletSigner) Address() string {
	return s.address
}

// Sign produces an EIP-191 personal signature over the payload digest, with V
// in {27, 28}.
func (s *DevWalletSigner) Sign(_ context.Context, p *model.SignPayload) (*model.SignerOutput, error) {
	start := s.now()

	digest, err := payload.Digest(p.Key, p.Value, p.SchemaHash, p.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("failed to hash sign payload: %w", err)
	}

	sig, err := crypto.Sign(accounts.TextHash(digest.Bytes()), s.key)
	if err != nil {
		return nil, fmt.Errorf("dev wallet sign: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27

	signingTime := s.now().Sub(start).Milliseconds()
	s.logger.Infow("msg", "dev wallet signing completed", "key", p.Key, "signing_time_ms", signingTime)

	return &model.SignerOutput{
		Signature:     hexutil.Encode(sig),
		SigningTimeMs: signingTime,
		PublicKey:     s.address,
	}, nil
}
