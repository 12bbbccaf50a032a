package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"corsproxy/internal/config"
	"corsproxy/internal/metrics"
)

// RegisterRoutes wires all route handlers onto the Echo instance.
// The metrics endpoint is registered only when metrics are enabled and m is non-nil.
func RegisterRoutes(e *echo.Echo, cfg *config.Config, m *metrics.Metrics, proxy *ProxyHandler, health *HealthHandler) {
	getOrHead := []string{http.MethodGet, http.MethodHead}
	e.Match(getOrHead, "/health", health.Health)
	e.Match(getOrHead, "/status", health.Status)

	e.Any("/proxy", proxy.Handle)
	e.Any("/proxy/", proxy.Handle)

	if cfg.Metrics.Enabled && m != nil {
		e.GET(cfg.Metrics.Path, echo.WrapHandler(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})))
	}
}
