package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/tal-sch/Emergency-Subscription-Client-Server/internal/protocol/session"
	"github.com/tal-sch/Emergency-Subscription-Client-Server/internal/transport"
)

type appConfig struct {
	Session            session.Config
	Transport          transport.Options
	MaxConnectAttempts int
	MetricsAddr        string
}

type fileConfig struct {
	Transport          string `toml:"transport"`
	WSPath             string `toml:"ws_path"`
	ConnectTimeout     string `toml:"connect_timeout"`
	ReceiptTimeout     string `toml:"receipt_timeout"`
	LogoutTimeout      string `toml:"logout_timeout"`
	WriteTimeout       string `toml:"write_timeout"`
	HostHeader         string `toml:"host_header"`
	MaxFrameBytes      uint64 `toml:"max_frame_bytes"`
	MaxConnectAttempts int    `toml:"max_connect_attempts"`
	MetricsAddr        string `toml:"metrics_addr"`
}

func defaultAppConfig() appConfig {
	cfg := appConfig{
		Session:            session.DefaultConfig(),
		Transport:          transport.DefaultOptions(),
		MaxConnectAttempts: 1,
	}
	cfg.syncTransport()
	return cfg
}

// syncTransport copies the session timeouts the dialers also enforce.
func (c *appConfig) syncTransport() {
	c.Transport.ConnectTimeout = c.Session.ConnectTimeout
	c.Transport.WriteTimeout = c.Session.WriteTimeout
}

func loadAppConfig(path string) (appConfig, error) {
	cfg := defaultAppConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return appConfig{}, fmt.Errorf("load client config: %w", err)
	}

	if meta.IsDefined("transport") {
		cfg.Transport.Kind = strings.TrimSpace(raw.Transport)
		if _, err := transport.NewDialer(cfg.Transport); err != nil {
			return appConfig{}, fmt.Errorf("parse transport: %w", err)
		}
	}

	if meta.IsDefined("ws_path") {
		cfg.Transport.WSPath = strings.TrimSpace(raw.WSPath)
	}

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"connect_timeout", raw.ConnectTimeout, &cfg.Session.ConnectTimeout},
		{"receipt_timeout", raw.ReceiptTimeout, &cfg.Session.ReceiptTimeout},
		{"logout_timeout", raw.LogoutTimeout, &cfg.Session.LogoutTimeout},
		{"write_timeout", raw.WriteTimeout, &cfg.Session.WriteTimeout},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return appConfig{}, fmt.Errorf("parse %s: %w", d.key, err)
		}
		if v <= 0 {
			return appConfig{}, fmt.Errorf("parse %s: must be positive", d.key)
		}
		*d.dst = v
	}

	if meta.IsDefined("host_header") {
		cfg.Session.Host = strings.TrimSpace(raw.HostHeader)
	}

	if meta.IsDefined("max_frame_bytes") {
		cfg.Transport.Limits.MaxFrameBytes = raw.MaxFrameBytes
	}

	if meta.IsDefined("max_connect_attempts") {
		cfg.MaxConnectAttempts = raw.MaxConnectAttempts
	}

	if meta.IsDefined("metrics_addr") {
		cfg.MetricsAddr = strings.TrimSpace(raw.MetricsAddr)
	}

	cfg.Session = cfg.Session.WithDefaults()
	cfg.syncTransport()
	return cfg, nil
}
