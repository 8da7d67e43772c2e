package fetch

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"golang.org/x/net/http2"
	"golang.org/x/sync/semaphore"

	"github.com/freshwatch/freshwatch/node/internal/config"
)

// Gateway is a Subsystem backed by an HTTP block gateway.
type Gateway struct {
	endpoint string
	client   *http.Client
	inFlight *semaphore.Weighted
	backoff  BackoffPolicy
}

// NewGateway builds a Gateway from cfg. The HTTP client is built once and
// reused for every request.
func NewGateway(cfg config.GatewayConfig) (*Gateway, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("fetch: gateway endpoint is required")
	}
	if cfg.MaxInFlight <= 0 {
		return nil, fmt.Errorf("fetch: max_in_flight must be positive, got %d", cfg.MaxInFlight)
	}
	return &Gateway{
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		client:   buildHTTPClient(cfg),
		inFlight: semaphore.NewWeighted(int64(cfg.MaxInFlight)),
		backoff: BackoffPolicy{
			Initial:    cfg.Backoff.Initial,
			Max:        cfg.Backoff.Max,
			Multiplier: cfg.Backoff.Multiplier,
		},
	}, nil
}

// Backoff implements Subsystem.
func (g *Gateway) Backoff() BackoffPolicy { return g.backoff }

// Probe implements Subsystem with a HEAD request.
func (g *Gateway) Probe(ctx context.Context, uri string) error {
	resp, err := g.do(ctx, http.MethodHead, uri)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// FetchContent implements Subsystem with a GET request whose decoded body is
// counted and discarded.
func (g *Gateway) FetchContent(ctx context.Context, uri string) (Content, error) {
	resp, err := g.do(ctx, http.MethodGet, uri)
	if err != nil {
		return Content{}, err
	}
	defer resp.Body.Close()

	n, err := decodeBody(resp.Body, resp.Header.Get("Content-Encoding"))
	if err != nil {
		return Content{}, fmt.Errorf("fetch %s: %w", uri, err)
	}
	slog.Debug("fetch: content retrieved", "uri", uri, "bytes", n)
	return Content{
		URI:         uri,
		ContentType: resp.Header.Get("Content-Type"),
		Size:        n,
	}, nil
}

// do issues one request, holding an in-flight slot until the response
// headers arrive. Non-200 responses are turned into errors.
func (g *Gateway) do(ctx context.Context, method, uri string) (*http.Response, error) {
	if err := g.inFlight.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("fetch %s: %w", uri, err)
	}
	defer g.inFlight.Release(1)

	req, err := http.NewRequestWithContext(ctx, method, g.endpoint+"/"+uri, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: build request: %w", uri, err)
	}
	req.Header.Set("Accept-Encoding", acceptEncoding)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", uri, err)
	}
	switch resp.StatusCode {
	case http.StatusOK:
		return resp, nil
	case http.StatusNotFound, http.StatusGone:
		resp.Body.Close()
		return nil, fmt.Errorf("fetch %s: %w", uri, ErrNotFound)
	default:
		resp.Body.Close()
		return nil, fmt.Errorf("fetch %s: unexpected status %d", uri, resp.StatusCode)
	}
}

// authRoundTripper injects the gateway bearer token into every request.
type authRoundTripper struct {
	base  http.RoundTripper
	token string
}

func (t *authRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.token != "" {
		req = req.Clone(req.Context())
		req.Header.Set("Authorization", "Bearer "+t.token)
	}
	return t.base.RoundTrip(req)
}

// buildHTTPClient constructs the gateway client for cfg's transport settings.
func buildHTTPClient(cfg config.GatewayConfig) *http.Client {
	var base http.RoundTripper
	switch {
	case cfg.HTTP2 && strings.HasPrefix(cfg.Endpoint, "http://"):
		// Prior-knowledge HTTP/2 over cleartext.
		base = &http2.Transport{
			AllowHTTP: true,
			DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, network, addr)
			},
		}
	case cfg.HTTP2:
		base = &http2.Transport{
			TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
		}
	default:
		base = &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConnsPerHost: cfg.MaxInFlight,
		}
	}

	return &http.Client{
		Transport: &authRoundTripper{base: base, token: cfg.Token()},
		Timeout:   cfg.Timeout,
	}
}
