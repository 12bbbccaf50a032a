package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"github.com/labstack/echo/v4"

	"corsproxy/internal/client"
	"corsproxy/internal/model"
	"corsproxy/internal/service"
)

// TargetParam is the query parameter carrying the URL to forward to.
const TargetParam = "url"

// Client-facing error messages.
const (
	msgMissingTarget    = "Target URL is required as a query parameter"
	msgInvalidTarget    = "Invalid URL provided"
	msgDomainNotAllowed = "Domain not allowed for proxying"
	msgProxyFailed      = "Proxy request failed"
)

// userinfoPattern matches the password part of credentials embedded in URLs.
var userinfoPattern = regexp.MustCompile(`(://[^/:@\s"]+:)[^/@\s"]+@`)

// ProxyHandler forwards requests to the target named by the url query parameter.
type ProxyHandler struct {
	service *service.ProxyService
	logger  *slog.Logger
}

// NewProxyHandler creates a ProxyHandler.
func NewProxyHandler(svc *service.ProxyService, logger *slog.Logger) *ProxyHandler {
	return &ProxyHandler{
		service: svc,
		logger:  logger.With("component", "proxy_handler"),
	}
}

// Handle proxies the request and relays the upstream status, headers and body.
func (h *ProxyHandler) Handle(c echo.Context) error {
	req := c.Request()

	pr := &model.ProxyRequest{
		Ctx:    req.Context(),
		Method: req.Method,
		Target: c.QueryParam(TargetParam),
		Header: req.Header,
		Body:   req.Body,
	}

	resp, err := h.service.Forward(pr)
	if err != nil {
		return h.mapError(c, err)
	}

	relayHeaders(c.Response().Header(), resp.Header)

	c.Response().WriteHeader(resp.StatusCode)
	if len(resp.Body) == 0 {
		return nil
	}
	if _, err := c.Response().Write(resp.Body); err != nil {
		// Status is already on the wire; the client sees a truncated body.
		h.logger.Error("writing response body",
			"err", err,
			"status", resp.StatusCode,
			"bytes", len(resp.Body),
		)
	}
	return nil
}

// relayHeaders copies upstream headers over the proxy's. Vary is merged
// token by token and the proxy's request id is kept so it matches the log line.
func relayHeaders(dst, src http.Header) {
	for key, vals := range src {
		switch http.CanonicalHeaderKey(key) {
		case echo.HeaderVary:
			mergeVary(dst, vals)
			continue
		case echo.HeaderXRequestID:
			if dst.Get(echo.HeaderXRequestID) != "" {
				continue
			}
		}
		dst.Del(key)
		for _, v := range vals {
			dst.Add(key, v)
		}
	}
}

func mergeVary(dst http.Header, vals []string) {
	seen := make(map[string]bool)
	for _, v := range dst.Values(echo.HeaderVary) {
		for _, tok := range strings.Split(v, ",") {
			seen[strings.ToLower(strings.TrimSpace(tok))] = true
		}
	}
	for _, v := range vals {
		var add []string
		for _, tok := range strings.Split(v, ",") {
			tok = strings.TrimSpace(tok)
			if tok == "" || seen[strings.ToLower(tok)] {
				continue
			}
			seen[strings.ToLower(tok)] = true
			add = append(add, tok)
		}
		if len(add) > 0 {
			dst.Add(echo.HeaderVary, strings.Join(add, ", "))
		}
	}
}

func (h *ProxyHandler) mapError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, service.ErrMissingTarget):
		h.logger.Debug("proxy request rejected", "err", err)
		return c.JSON(http.StatusBadRequest, map[string]string{"error": msgMissingTarget})

	case errors.Is(err, service.ErrInvalidTarget):
		h.logger.Debug("proxy request rejected", "err", sanitizeError(err))
		return c.JSON(http.StatusBadRequest, map[string]string{"error": msgInvalidTarget})

	case errors.Is(err, service.ErrDomainNotAllowed):
		h.logger.Info("proxy target not allowed", "err", err)
		return c.JSON(http.StatusForbidden, map[string]string{"error": msgDomainNotAllowed})
	}

	message := sanitizeError(err)
	h.logger.Error("proxy error",
		"err", message,
		"kind", client.Classify(err),
		"method", c.Request().Method,
	)

	return c.JSON(http.StatusInternalServerError, map[string]string{
		"error":   msgProxyFailed,
		"message": message,
	})
}

// sanitizeError redacts passwords from URLs embedded in error messages.
func sanitizeError(err error) string {
	return userinfoPattern.ReplaceAllString(err.Error(), "${1}[REDACTED]@")
}
