// Package service implements the core proxy forwarding logic.
package service

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"corsproxy/internal/client"
	"corsproxy/internal/config"
	"corsproxy/internal/metrics"
	"corsproxy/internal/model"
)

// Rejections. Each is returned before any upstream call is made.
var (
	ErrMissingTarget    = errors.New("target url query parameter is required")
	ErrInvalidTarget    = errors.New("invalid target url")
	ErrDomainNotAllowed = errors.New("target domain not allowed")
)

// excludedRequestHeaders are never forwarded upstream: they describe the
// inbound connection, identify the calling page, or stop being true once
// the request is re-sent to a different host.
var excludedRequestHeaders = []string{
	"Host",
	"Origin",
	"Referer",
	"Content-Length",
}

// hopByHopHeaders are scoped to a single connection and are not relayed
// in either direction.
var hopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"TE",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// corsHeaderPrefix marks upstream response headers that would compete with
// the proxy's own CORS policy.
const corsHeaderPrefix = "access-control-"

var (
	requestDenySet  = canonicalSet(excludedRequestHeaders, hopByHopHeaders)
	responseDenySet = canonicalSet(hopByHopHeaders)
)

// ProxyService validates proxy requests and forwards them to allowlisted targets.
type ProxyService struct {
	client  *client.UpstreamClient
	targets client.HostMatcher
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewProxyService creates a ProxyService. The metrics parameter is optional.
func NewProxyService(c *client.UpstreamClient, wl *config.Whitelist, logger *slog.Logger, m *metrics.Metrics) *ProxyService {
	return &ProxyService{
		client:  c,
		targets: wl.Targets,
		logger:  logger.With("component", "proxy_service"),
		metrics: m,
	}
}

// Forward authorizes the request's target and, if allowed, performs exactly one
// upstream call. Upstream responses of any status are returned as results; the
// returned error is either one of the rejection sentinels (no upstream call was
// made) or a transport failure.
func (s *ProxyService) Forward(pr *model.ProxyRequest) (*model.ProxyResponse, error) {
	target, err := s.ResolveTarget(pr.Target)
	if err != nil {
		s.countRejection(err)
		return nil, err
	}

	header := FilterRequestHeaders(pr.Header)

	var body []byte
	if pr.Method != http.MethodGet && pr.Body != nil {
		body, err = io.ReadAll(pr.Body)
		if err != nil {
			return nil, fmt.Errorf("read request body: %w", err)
		}
	}

	s.logger.Debug("forwarding request",
		"method", pr.Method,
		"host", target.Host,
		"path", target.Path,
		"body_bytes", len(body),
	)

	resp, err := s.client.Do(pr.Ctx, pr.Method, target.String(), header, body)
	if err != nil {
		return nil, fmt.Errorf("forward to upstream: %w", err)
	}

	resp.Header = FilterResponseHeaders(resp.Header)
	return resp, nil
}

// ResolveTarget parses raw as an absolute http(s) URL and checks its hostname
// against the target patterns.
func (s *ProxyService) ResolveTarget(raw string) (*url.URL, error) {
	if raw == "" {
		return nil, ErrMissingTarget
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTarget, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return nil, fmt.Errorf("%w: scheme %q", ErrInvalidTarget, u.Scheme)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("%w: no host", ErrInvalidTarget)
	}

	if !s.targets.Match(u.Hostname()) {
		return nil, fmt.Errorf("%w: %s", ErrDomainNotAllowed, u.Hostname())
	}
	return u, nil
}

func (s *ProxyService) countRejection(err error) {
	if s.metrics == nil {
		return
	}
	reason := "invalid_target"
	switch {
	case errors.Is(err, ErrMissingTarget):
		reason = "missing_target"
	case errors.Is(err, ErrDomainNotAllowed):
		reason = "domain_not_allowed"
	}
	s.metrics.ProxyRejections.WithLabelValues(reason).Inc()
}

// FilterRequestHeaders returns a copy of src without the excluded and
// hop-by-hop headers. src is not modified.
func FilterRequestHeaders(src http.Header) http.Header {
	dst := make(http.Header, len(src))
	for key, vals := range src {
		if requestDenySet[http.CanonicalHeaderKey(key)] {
			continue
		}
		dst[key] = slices.Clone(vals)
	}
	return dst
}

// FilterResponseHeaders returns a copy of src without Access-Control-*
// and hop-by-hop headers.
func FilterResponseHeaders(src http.Header) http.Header {
	dst := make(http.Header, len(src))
	for key, vals := range src {
		if strings.HasPrefix(strings.ToLower(key), corsHeaderPrefix) {
			continue
		}
		if responseDenySet[http.CanonicalHeaderKey(key)] {
			continue
		}
		dst[key] = slices.Clone(vals)
	}
	return dst
}

func canonicalSet(lists ...[]string) map[string]bool {
	set := make(map[string]bool)
	for _, list := range lists {
		for _, h := range list {
			set[http.CanonicalHeaderKey(h)] = true
		}
	}
	return set
}
