package middleware

import (
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"

	"corsproxy/internal/config"
	"corsproxy/internal/metrics"
	"corsproxy/internal/pattern"
)

// Fixed CORS response values.
const (
	NullOrigin       = "null"
	AllowMethods     = "GET, POST, PUT, PATCH, DELETE, OPTIONS"
	AllowHeaders     = "Content-Type, Authorization"
	AllowCredentials = "true"
)

// Origin decisions, also used as metric label values.
const (
	OriginAllowed   = "allowed"
	OriginDenied    = "denied"
	OriginAbsent    = "absent"
	OriginMalformed = "malformed"
)

// AllowedOrigin returns the Access-Control-Allow-Origin value for origin and
// the decision behind it. Only an origin whose hostname matches one of the
// patterns is echoed back; every other case, including an unparseable
// origin, yields "null".
func AllowedOrigin(origins *pattern.List, origin string) (string, string) {
	if origin == "" {
		return NullOrigin, OriginAbsent
	}
	u, err := url.Parse(origin)
	if err != nil || u.Scheme == "" || u.Hostname() == "" {
		return NullOrigin, OriginMalformed
	}
	if !origins.Match(u.Hostname()) {
		return NullOrigin, OriginDenied
	}
	return origin, OriginAllowed
}

// CORS returns an Echo middleware that sets the proxy's CORS headers on every
// response and answers preflight requests itself. The metrics parameter is
// optional.
func CORS(wl *config.Whitelist, m *metrics.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			h := c.Response().Header()

			allowed, decision := AllowedOrigin(wl.Origins, req.Header.Get(echo.HeaderOrigin))
			if m != nil {
				m.OriginDecisions.WithLabelValues(decision).Inc()
			}

			h.Set(echo.HeaderAccessControlAllowOrigin, allowed)
			h.Set(echo.HeaderAccessControlAllowMethods, AllowMethods)
			h.Set(echo.HeaderAccessControlAllowHeaders, AllowHeaders)
			h.Set(echo.HeaderAccessControlAllowCredentials, AllowCredentials)
			h.Add(echo.HeaderVary, echo.HeaderOrigin)

			if req.Method == http.MethodOptions {
				return c.NoContent(http.StatusOK)
			}
			return next(c)
		}
	}
}
