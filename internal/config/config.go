// Package config handles environment, CLI and TOML configuration loading and validation.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	toml "github.com/pelletier/go-toml/v2"

	"corsproxy/internal/pattern"
)

// Deployment modes.
const (
	ModeServer = "server"
	ModeLambda = "lambda"
)

// configSearchPaths lists paths checked in order when no explicit config is given.
var configSearchPaths = []string{
	"/etc/corsproxy/config.toml",
	"configs/config.toml",
}

// reservedRoutes are served by the proxy itself and cannot host metrics.
var reservedRoutes = []string{"/proxy", "/health", "/status"}

// CLI holds command-line arguments parsed by Kong.
type CLI struct {
	Config             string           `kong:"short='c',help='Path to TOML config file.',env='CONFIG_PATH'"`
	Host               string           `kong:"help='Listen host (overrides config).',env='HOST'"`
	Port               int              `kong:"short='p',help='Listen port (overrides config).',env='PORT'"`
	Mode               string           `kong:"help='Deployment mode: server|lambda (overrides config).',env='DEPLOY_MODE'"`
	WhitelistedOrigins string           `kong:"name='whitelisted-origins',help='Comma-separated hostname patterns allowed as CORS origins.',env='WHITELISTED_ORIGINS'"`
	AllowedDomains     string           `kong:"name='proxy-allowed-domains',help='Comma-separated hostname patterns allowed as proxy targets.',env='PROXY_ALLOWED_DOMAINS'"`
	LogLevel           string           `kong:"help='Log level: debug|info|warn|error (overrides config).',env='LOG_LEVEL'"`
	Version            kong.VersionFlag `kong:"help='Print version and exit.'"`
}

// Config is the top-level application configuration.
type Config struct {
	Mode     string         `toml:"mode"`
	Server   ServerConfig   `toml:"server"`
	CORS     CORSConfig     `toml:"cors"`
	Proxy    ProxyConfig    `toml:"proxy"`
	Upstream UpstreamConfig `toml:"upstream"`
	Log      LogConfig      `toml:"log"`
	Metrics  MetricsConfig  `toml:"metrics"`

	filePath string // resolved config file path (unexported)
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"` // 0 means "use default" (3000)
}

// CORSConfig holds the caller origin patterns.
type CORSConfig struct {
	Origins []string `toml:"origins"`
}

// ProxyConfig holds the forwarding target patterns.
type ProxyConfig struct {
	AllowedDomains []string `toml:"allowed_domains"`
}

// UpstreamConfig holds upstream connection settings.
type UpstreamConfig struct {
	TimeoutSeconds  int `toml:"timeout_seconds"`
	IdleConnections int `toml:"idle_connections"`
	MaxRedirects    int `toml:"max_redirects"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Whitelist is the immutable pair of pattern lists consulted on every request.
type Whitelist struct {
	Origins *pattern.List
	Targets *pattern.List
}

// LoadEnvFile loads KEY=VALUE pairs from path into the process environment.
// Variables that are already set are left alone, and a missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: load %s: %w", path, err)
	}
	return nil
}

// Load reads the optional TOML config file and applies CLI/env overrides.
// When no explicit path is given (via --config or CONFIG_PATH), it searches
// /etc/corsproxy/config.toml then configs/config.toml; finding neither is fine
// because the environment alone is a complete configuration.
func Load(cli *CLI) (*Config, error) {
	var cfg Config

	path := cli.Config
	if path == "" {
		path = findConfig()
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
		cfg.filePath = path
	}

	cfg.applyCLI(cli)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}

	cfg.setDefaults()
	return &cfg, nil
}

// applyCLI overrides config values with non-zero CLI flags.
func (c *Config) applyCLI(cli *CLI) {
	if cli.Host != "" {
		c.Server.Host = cli.Host
	}
	if cli.Port != 0 {
		c.Server.Port = cli.Port
	}
	if cli.Mode != "" {
		c.Mode = cli.Mode
	}
	if cli.WhitelistedOrigins != "" {
		c.CORS.Origins = strings.Split(cli.WhitelistedOrigins, ",")
	}
	if cli.AllowedDomains != "" {
		c.Proxy.AllowedDomains = strings.Split(cli.AllowedDomains, ",")
	}
	if cli.LogLevel != "" {
		c.Log.Level = cli.LogLevel
	}
}

func (c *Config) validate() error {
	// Both lists are required; an empty list would silently deny everything.
	if pattern.NewList(c.CORS.Origins).Len() == 0 {
		return fmt.Errorf("no CORS origin patterns: set WHITELISTED_ORIGINS or cors.origins")
	}
	if pattern.NewList(c.Proxy.AllowedDomains).Len() == 0 {
		return fmt.Errorf("no proxy target patterns: set PROXY_ALLOWED_DOMAINS or proxy.allowed_domains")
	}

	switch strings.ToLower(c.Mode) {
	case ModeServer, ModeLambda, "":
		// valid
	default:
		return fmt.Errorf("mode must be one of: server, lambda; got %q", c.Mode)
	}

	// Numeric bounds.
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 0-65535; got %d", c.Server.Port)
	}
	if c.Upstream.TimeoutSeconds < 0 {
		return fmt.Errorf("upstream.timeout_seconds must be non-negative; got %d", c.Upstream.TimeoutSeconds)
	}
	if c.Upstream.IdleConnections < 0 {
		return fmt.Errorf("upstream.idle_connections must be non-negative; got %d", c.Upstream.IdleConnections)
	}
	if c.Upstream.MaxRedirects < 0 {
		return fmt.Errorf("upstream.max_redirects must be non-negative; got %d", c.Upstream.MaxRedirects)
	}

	// Log fields.
	level := strings.ToLower(c.Log.Level)
	switch level {
	case "debug", "info", "warn", "error", "":
		// valid
	default:
		return fmt.Errorf("log.level must be one of: debug, info, warn, error; got %q", c.Log.Level)
	}
	format := strings.ToLower(c.Log.Format)
	switch format {
	case "json", "text", "":
		// valid
	default:
		return fmt.Errorf("log.format must be one of: json, text; got %q", c.Log.Format)
	}

	// Metrics path validation (only when metrics are enabled).
	if c.Metrics.Enabled && c.Metrics.Path != "" {
		p := c.Metrics.Path
		if p[0] != '/' {
			return fmt.Errorf("metrics.path must start with '/'; got %q", p)
		}
		for _, reserved := range reservedRoutes {
			if p == reserved || strings.HasPrefix(p, reserved+"/") {
				return fmt.Errorf("metrics.path %q conflicts with reserved route %q", p, reserved)
			}
		}
	}

	return nil
}

// setDefaults fills zero-valued fields with sensible defaults.
// For integer fields, zero means "unset" because TOML cannot distinguish
// between an explicit 0 and an omitted key. max_redirects = 0 therefore
// still follows the default number of redirects.
func (c *Config) setDefaults() {
	c.Mode = strings.ToLower(c.Mode)
	if c.Mode == "" {
		c.Mode = ModeServer
	}
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 3000
	}
	if c.Upstream.TimeoutSeconds == 0 {
		c.Upstream.TimeoutSeconds = 30
	}
	if c.Upstream.IdleConnections == 0 {
		c.Upstream.IdleConnections = 100
	}
	if c.Upstream.MaxRedirects == 0 {
		c.Upstream.MaxRedirects = 10
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// Whitelist compiles the configured origin and target patterns.
func (c *Config) Whitelist() *Whitelist {
	return &Whitelist{
		Origins: pattern.NewList(c.CORS.Origins),
		Targets: pattern.NewList(c.Proxy.AllowedDomains),
	}
}

// findConfig returns the first config path that exists, or empty string.
func findConfig() string {
	return findConfigInPaths(configSearchPaths)
}

// findConfigInPaths returns the first path that exists on disk, or empty string.
func findConfigInPaths(paths []string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Addr returns the server listen address as host:port.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// WarnBroadPatterns logs every pattern that admits hosts anyone can register.
func (w *Whitelist) WarnBroadPatterns(logger *slog.Logger) {
	for _, p := range w.Origins.Broad() {
		logger.Warn("origin pattern covers a public suffix; any site under it passes CORS", "pattern", p)
	}
	for _, p := range w.Targets.Broad() {
		logger.Warn("target pattern covers a public suffix; the proxy can reach any host under it", "pattern", p)
	}
}

// FilePath returns the TOML file the config was read from, or empty when
// the configuration came from the environment alone.
func (c *Config) FilePath() string {
	return c.filePath
}
