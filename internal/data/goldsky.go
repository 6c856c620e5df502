package data

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"OracleGate/internal/conf"
	"OracleGate/internal/model"
	"OracleGate/pkg/httpclient"

	"github.com/go-kratos/kratos/v2/log"
)

// GoldskyProviderName is reported in ProviderMetadata.Provider.
const GoldskyProviderName = "Goldsky"

const goldskyRecordsQuery = `query GetData($key: String!, $chains: [String!]!) {
  records(where: { key: $key, chains: $chains }) {
    key
    value
    chain
    timestamp
    blockNumber
  }
}`

type graphQLRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables"`
}

type graphQLError struct {
	Message string `json:"message"`
}

type graphQLResponse struct {
	Data   map[string]interface{} `json:"data"`
	Errors []graphQLError         `json:"errors"`
}

// GoldskySource is the primary chain source. It queries an indexed GraphQL
// endpoint, one request per chain.
type GoldskySource struct {
	endpoint string
	client   *http.Client
	logger   *log.Helper
}

// NewGoldskySource creates the GraphQL chain source. An empty endpoint is
// accepted; every fetch then fails so the fallback provider takes over.
func NewGoldskySource(c *conf.Provider, logger log.Logger) (*GoldskySource, error) {
	helper := log.NewHelper(log.With(logger, "module", "data/goldsky"))

	var cfg conf.Provider_Goldsky
	if c != nil && c.Goldsky != nil {
		cfg = *c.Goldsky
	}

	client, err := httpclient.New(cfg.ProxyUrl, cfg.Timeout.AsDuration())
	if err != nil {
		return nil, fmt.Errorf("failed to create goldsky http client: %w", err)
	}

	if cfg.Endpoint == "" {
		helper.Warnw("msg", "goldsky endpoint not configured, primary provider will always fail over")
	}

	return &GoldskySource{
		endpoint: cfg.Endpoint,
		client:   client,
		logger:   helper,
	}, nil
}

func (s *GoldskySource) Name() string {
	return GoldskyProviderName
}

// FetchChain runs the records query for one chain. GraphQL-level errors are
// joined into a single error.
func (s *GoldskySource) FetchChain(ctx context.Context, q *model.ProviderQuery, chain string) (map[string]interface{}, error) {
	if s.endpoint == "" {
		return nil, fmt.Errorf("goldsky endpoint is not configured")
	}

	req := graphQLRequest{
		Query: goldskyRecordsQuery,
		Variables: map[string]interface{}{
			"key":    q.Key,
			"chains": []string{chain},
		},
	}

	var resp graphQLResponse
	if err := httpclient.PostJSON(ctx, s.client, s.endpoint, nil, req, &resp); err != nil {
		return nil, fmt.Errorf("goldsky query for %s: %w", chain, err)
	}

	if len(resp.Errors) > 0 {
		msgs := make([]string, 0, len(resp.Errors))
		for _, e := range resp.Errors {
			msgs = append(msgs, e.Message)
		}
		return nil, fmt.Errorf("GraphQL errors: %s", strings.Join(msgs, "; "))
	}

	out := make(map[string]interface{}, len(resp.Data)+1)
	for k, v := range resp.Data {
		out[k] = v
	}
	out["chain"] = chain

	s.logger.Debugw("msg", "goldsky chain query completed", "chain", chain, "key", q.Key)
	return out, nil
}
