package session

import (
	"strings"
	"time"

	"github.com/tal-sch/Emergency-Subscription-Client-Server/internal/protocol"
)

// BackoffConfig defines retry backoff behavior for callers that retry login.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// Config defines session timeouts and CONNECT defaults.
type Config struct {
	ConnectTimeout time.Duration
	ReceiptTimeout time.Duration
	LogoutTimeout  time.Duration
	WriteTimeout   time.Duration
	// Host is the virtual host sent in CONNECT.
	Host    string
	Backoff BackoffConfig
}

func DefaultConfig() Config {
	return Config{
		ConnectTimeout: 5 * time.Second,
		ReceiptTimeout: 10 * time.Second,
		LogoutTimeout:  5 * time.Second,
		WriteTimeout:   5 * time.Second,
		Host:           protocol.DefaultHost,
		Backoff: BackoffConfig{
			InitialDelay: 250 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     5 * time.Second,
			Jitter:       true,
		},
	}
}

// WithDefaults fills zero fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = def.ConnectTimeout
	}
	if c.ReceiptTimeout <= 0 {
		c.ReceiptTimeout = def.ReceiptTimeout
	}
	if c.LogoutTimeout <= 0 {
		c.LogoutTimeout = def.LogoutTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if strings.TrimSpace(c.Host) == "" {
		c.Host = def.Host
	}
	if c.Backoff.InitialDelay <= 0 {
		c.Backoff = def.Backoff
	}
	return c
}
