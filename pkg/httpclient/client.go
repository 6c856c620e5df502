// Package httpclient builds outbound HTTP clients for the data provider, signer
// and analyzer collaborators, with optional SOCKS5 or HTTP proxying.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/net/proxy"
)

// New returns an HTTP client that honours proxyURL (socks5, http or https).
// An empty proxyURL gives a direct client.
func New(proxyURL string, timeout time.Duration) (*http.Client, error) {
	if proxyURL == "" {
		return &http.Client{
			Timeout: timeout,
		}, nil
	}

	parsedProxy, err := url.Parse(proxyURL)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy URL: %w", err)
	}

	switch parsedProxy.Scheme {
	case "socks5":
		return newSOCKS5Client(parsedProxy, timeout)
	case "http", "https":
		return &http.Client{
			Transport: &http.Transport{
				Proxy: http.ProxyURL(parsedProxy),
			},
			Timeout: timeout,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported proxy scheme: %s", parsedProxy.Scheme)
	}
}

func newSOCKS5Client(proxyURL *url.URL, timeout time.Duration) (*http.Client, error) {
	var auth *proxy.Auth
	if proxyURL.User != nil {
		password, _ := proxyURL.User.Password()
		auth = &proxy.Auth{
			User:     proxyURL.User.Username(),
			Password: password,
		}
	}

	dialer, err := proxy.SOCKS5("tcp", proxyURL.Host, auth, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
	}

	transport := &http.Transport{}
	if cd, ok := dialer.(proxy.ContextDialer); ok {
		transport.DialContext = cd.DialContext
	} else {
		transport.Dial = dialer.Dial //nolint:staticcheck
	}

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}, nil
}

// StatusError is returned by PostJSON for non-2xx responses. Its message
// carries the status code so callers can classify 429 and 503 responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Body)
}

// maxErrorBody bounds how much of an error response is kept in StatusError.
const maxErrorBody = 512

// PostJSON marshals in, posts it to endpoint with the given headers and decodes
// a 2xx response body into out.
func PostJSON(ctx context.Context, client *http.Client, endpoint string, headers map[string]string, in, out interface{}) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{StatusCode: resp.StatusCode, Body: string(b)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
