package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"corsproxy/internal/config"
)

// Version is a string type for dependency injection of the build version.
type Version string

// HealthHandler serves health and status endpoints.
type HealthHandler struct {
	cfg       *config.Config
	whitelist *config.Whitelist
	version   Version
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(cfg *config.Config, wl *config.Whitelist, v Version) *HealthHandler {
	return &HealthHandler{cfg: cfg, whitelist: wl, version: v}
}

// Health returns a simple OK response for liveness probes.
func (h *HealthHandler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// statusResponse is the body of GET /status.
type statusResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Mode    string `json:"mode"`
	Origins int    `json:"origins"`
	Domains int    `json:"domains"`
}

// Status reports the build version and how many patterns are loaded.
// The patterns themselves are not disclosed.
func (h *HealthHandler) Status(c echo.Context) error {
	return c.JSON(http.StatusOK, statusResponse{
		Status:  "ok",
		Version: string(h.version),
		Mode:    h.cfg.Mode,
		Origins: h.whitelist.Origins.Len(),
		Domains: h.whitelist.Targets.Len(),
	})
}
