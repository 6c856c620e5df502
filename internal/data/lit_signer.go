package data

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"time"

	"OracleGate/internal/conf"
	"OracleGate/internal/model"
	"OracleGate/pkg/httpclient"
	"OracleGate/pkg/payload"

	"github.com/go-kratos/kratos/v2/log"
)

const (
	LitSignerName = "Lit"
	litSigName    = "chainmesh_sig"
)

var signaturePattern = regexp.MustCompile(`^0x[a-fA-F0-9]{130}$`)

type litSignRequest struct {
	PkpPublicKey string `json:"pkpPublicKey"`
	ToSign       string `json:"toSign"`
	SigName      string `json:"sigName"`
}

type litSignResponse struct {
	Signature string `json:"signature"`
}

// LitSigner asks a Lit action endpoint to threshold-sign the payload digest
// with the configured PKP.
type LitSigner struct {
	pkpPublicKey string
	endpoint     string
	client       *http.Client
	now          func() time.Time
	logger       *log.Helper
}

func NewLitSigner(c *conf.Signer, logger log.Logger) (*LitSigner, error) {
	var cfg conf.Signer_Lit
	if c != nil && c.Lit != nil {
		cfg = *c.Lit
	}

	client, err := httpclient.New(cfg.ProxyUrl, cfg.Timeout.AsDuration())
	if err != nil {
		return nil, fmt.Errorf("failed to create lit http client: %w", err)
	}

	return &LitSigner{
		pkpPublicKey: cfg.PkpPublicKey,
		endpoint:     cfg.ActionEndpoint,
		client:       client,
		now:          time.Now,
		logger:       log.NewHelper(log.With(logger, "module", "data/lit_signer")),
	}, nil
}

func (s *LitSigner) Name() string {
	return LitSignerName
}

// Sign posts the digest and checks that a 65-byte hex signature came back.
func (s *LitSigner) Sign(ctx context.Context, p *model.SignPayload) (*model.SignerOutput, error) {
	start := s.now()
	if s.pkpPublicKey == "" {
		return nil, fmt.Errorf("lit pkp public key is not configured")
	}

	digest, err := payload.Digest(p.Key, p.Value, p.SchemaHash, p.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("failed to hash sign payload: %w", err)
	}

	req := litSignRequest{
		PkpPublicKey: s.pkpPublicKey,
		ToSign:       digest.Hex(),
		SigName:      litSigName,
	}
	var resp litSignResponse
	if err := httpclient.PostJSON(ctx, s.client, s.endpoint, nil, req, &resp); err != nil {
		return nil, fmt.Errorf("lit sign request: %w", err)
	}

	if resp.Signature == "" {
		return nil, errors.New("invalid or missing signature from Lit Protocol")
	}
	if !signaturePattern.MatchString(resp.Signature) {
		return nil, fmt.Errorf("invalid signature format: %s...", truncate(resp.Signature, 20))
	}

	signingTime := s.now().Sub(start).Milliseconds()
	s.logger.Infow("msg", "lit signing completed", "key", p.Key, "signing_time_ms", signingTime)

	return &model.SignerOutput{
		Signature:     resp.Signature,
		SigningTimeMs: signingTime,
		PublicKey:     s.pkpPublicKey,
	}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
