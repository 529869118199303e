// Package transport builds and configures the shared *http.Client used
// by every client executor instance, and applies a manifest's
// authentication scheme to outgoing requests.
package transport

import (
	"crypto/tls"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"golang.org/x/net/http2"
)

// Config tunes the underlying HTTP transport. Zero values fall back to
// environment overrides and then to hard defaults, following the
// teacher's convention of env-overridable timeouts for the ambient HTTP
// client.
type Config struct {
	DialTimeout         time.Duration
	ResponseHeaderTimeout time.Duration
	IdleConnTimeout     time.Duration
	MaxIdleConnsPerHost int
	DisableHTTP2        bool
}

const (
	envDialTimeout     = "AIPROTOCOL_DIAL_TIMEOUT_MS"
	envIdleConnTimeout = "AIPROTOCOL_IDLE_CONN_TIMEOUT_MS"
	envMaxIdlePerHost  = "AIPROTOCOL_MAX_IDLE_CONNS_PER_HOST"
)

// NewClient builds an *http.Client tuned for long-lived streaming
// connections: generous idle timeouts, HTTP/2 enabled by default via
// golang.org/x/net/http2 so providers that multiplex over h2 don't pay
// a new-connection cost per request.
func NewClient(cfg Config) *http.Client {
	cfg = applyDefaults(cfg)

	dialer := &net.Dialer{Timeout: cfg.DialTimeout}
	base := &http.Transport{
		DialContext:           dialer.DialContext,
		ResponseHeaderTimeout: cfg.ResponseHeaderTimeout,
		IdleConnTimeout:       cfg.IdleConnTimeout,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		Proxy:                 http.ProxyFromEnvironment,
		TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
	}

	var rt http.RoundTripper = base
	if !cfg.DisableHTTP2 {
		if h2, err := http2.ConfigureTransports(base); err == nil && h2 != nil {
			h2.ReadIdleTimeout = 30 * time.Second
		}
		rt = base
	}

	return &http.Client{Transport: rt}
}

func applyDefaults(cfg Config) Config {
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = envDurationMs(envDialTimeout, 10*time.Second)
	}
	if cfg.ResponseHeaderTimeout == 0 {
		cfg.ResponseHeaderTimeout = 60 * time.Second
	}
	if cfg.IdleConnTimeout == 0 {
		cfg.IdleConnTimeout = envDurationMs(envIdleConnTimeout, 90*time.Second)
	}
	if cfg.MaxIdleConnsPerHost == 0 {
		cfg.MaxIdleConnsPerHost = envInt(envMaxIdlePerHost, 32)
	}
	return cfg
}

func envDurationMs(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	ms, err := strconv.Atoi(v)
	if err != nil || ms <= 0 {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
