// Package client provides the upstream HTTP client used to reach proxy targets.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"corsproxy/internal/config"
	"corsproxy/internal/metrics"
	"corsproxy/internal/model"
)

// Failure kinds reported by Classify.
const (
	FailureTimeout    = "timeout"
	FailureCanceled   = "canceled"
	FailureDNS        = "dns"
	FailureConnection = "connection"
	FailureOther      = "other"
)

// HostMatcher decides whether a hostname may be contacted.
type HostMatcher interface {
	Match(host string) bool
}

// UpstreamClient sends requests to allowlisted target hosts.
type UpstreamClient struct {
	httpClient   *http.Client
	targets      HostMatcher
	maxRedirects int
	logger       *slog.Logger
	metrics      *metrics.Metrics
}

// NewUpstreamClient creates an UpstreamClient with connection pooling and timeouts.
// Redirects are followed up to upstream.max_redirects, and only while every hop
// stays on a host the target patterns allow; the first disallowed hop is returned
// to the caller as-is. The metrics parameter is optional; pass nil to disable
// upstream metrics recording.
func NewUpstreamClient(cfg *config.Config, wl *config.Whitelist, logger *slog.Logger, m *metrics.Metrics) *UpstreamClient {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        cfg.Upstream.IdleConnections,
		MaxIdleConnsPerHost: cfg.Upstream.IdleConnections,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout: 10 * time.Second,
		// Accept-Encoding is the caller's business; bodies are relayed as received.
		DisableCompression: true,
	}

	c := &UpstreamClient{
		targets:      wl.Targets,
		maxRedirects: cfg.Upstream.MaxRedirects,
		logger:       logger.With("component", "upstream_client"),
		metrics:      m,
	}
	c.httpClient = &http.Client{
		Transport:     transport,
		Timeout:       time.Duration(cfg.Upstream.TimeoutSeconds) * time.Second,
		CheckRedirect: c.checkRedirect,
	}
	return c
}

func (c *UpstreamClient) checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) > c.maxRedirects {
		return fmt.Errorf("stopped after %d redirects", c.maxRedirects)
	}
	if !c.targets.Match(req.URL.Hostname()) {
		c.logger.Warn("redirect to disallowed host not followed",
			"host", req.URL.Hostname(),
			"hops", len(via),
		)
		return http.ErrUseLastResponse
	}
	return nil
}

// Do executes an HTTP request against the target and buffers the whole response.
// The body is sent only when non-nil. Any status code is a successful result;
// only transport failures are returned as errors.
func (c *UpstreamClient) Do(ctx context.Context, method, url string, header http.Header, body []byte) (*model.ProxyResponse, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	req.Header = header

	c.logger.Debug("upstream request",
		"method", req.Method,
		"host", req.URL.Host,
		"path", req.URL.Path,
	)

	start := time.Now()
	method = metrics.NormalizeMethod(req.Method)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observeFailure(method, start, err)
		return nil, fmt.Errorf("upstream request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		c.observeFailure(method, start, err)
		return nil, fmt.Errorf("read upstream body: %w", err)
	}

	if c.metrics != nil {
		c.metrics.UpstreamDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
		c.metrics.UpstreamResponses.WithLabelValues(method, strconv.Itoa(resp.StatusCode)).Inc()
	}

	return &model.ProxyResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
	}, nil
}

func (c *UpstreamClient) observeFailure(method string, start time.Time, err error) {
	if c.metrics == nil {
		return
	}
	c.metrics.UpstreamDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	c.metrics.UpstreamFailures.WithLabelValues(Classify(err)).Inc()
}

// Classify names the kind of transport failure behind err.
func Classify(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return FailureTimeout
	}
	if errors.Is(err, context.Canceled) {
		return FailureCanceled
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return FailureDNS
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return FailureTimeout
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return FailureConnection
	}

	return FailureOther
}
