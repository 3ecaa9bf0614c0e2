package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tal-sch/Emergency-Subscription-Client-Server/internal/protocol"
	"github.com/tal-sch/Emergency-Subscription-Client-Server/internal/testutil/testlog"
	"github.com/tal-sch/Emergency-Subscription-Client-Server/internal/transport"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppConfigExample(t *testing.T) {
	testlog.Start(t)
	cfg, err := loadAppConfig("ex.config.toml")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Transport.Kind != transport.KindWebSocket || cfg.Transport.WSPath != "/stomp" {
		t.Fatalf("unexpected transport: %+v", cfg.Transport)
	}
	if cfg.Session.ConnectTimeout != 3*time.Second || cfg.Transport.ConnectTimeout != 3*time.Second {
		t.Fatalf("unexpected connect timeout: session=%v transport=%v", cfg.Session.ConnectTimeout, cfg.Transport.ConnectTimeout)
	}
	if cfg.Session.ReceiptTimeout != 8*time.Second || cfg.Session.LogoutTimeout != 2*time.Second {
		t.Fatalf("unexpected timeouts: %+v", cfg.Session)
	}
	if cfg.Session.WriteTimeout != 4*time.Second || cfg.Transport.WriteTimeout != 4*time.Second {
		t.Fatalf("unexpected write timeout: %+v", cfg)
	}
	if cfg.Session.Host != protocol.DefaultHost {
		t.Fatalf("unexpected host: %q", cfg.Session.Host)
	}
	if cfg.Transport.Limits.MaxFrameBytes != 65536 {
		t.Fatalf("unexpected max frame bytes: %d", cfg.Transport.Limits.MaxFrameBytes)
	}
	if cfg.MaxConnectAttempts != 3 || cfg.MetricsAddr != "127.0.0.1:9464" {
		t.Fatalf("unexpected attempts=%d metrics=%q", cfg.MaxConnectAttempts, cfg.MetricsAddr)
	}
}

func TestLoadAppConfigDefaults(t *testing.T) {
	testlog.Start(t)
	cfg, err := loadAppConfig(writeConfig(t, "# empty\n"))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	def := defaultAppConfig()
	if cfg.Session.ReceiptTimeout != def.Session.ReceiptTimeout || cfg.Transport.Kind != transport.KindTCP {
		t.Fatalf("defaults not kept: %+v", cfg)
	}
	if cfg.MaxConnectAttempts != 1 || cfg.MetricsAddr != "" {
		t.Fatalf("unexpected attempts=%d metrics=%q", cfg.MaxConnectAttempts, cfg.MetricsAddr)
	}
}

func TestLoadAppConfigErrors(t *testing.T) {
	testlog.Start(t)
	if _, err := loadAppConfig(writeConfig(t, "receipt_timeout = \"soon\"\n")); err == nil {
		t.Fatalf("expected duration error")
	}
	if _, err := loadAppConfig(writeConfig(t, "logout_timeout = \"-1s\"\n")); err == nil {
		t.Fatalf("expected non-positive duration error")
	}
	if _, err := loadAppConfig(writeConfig(t, "transport = \"udp\"\n")); !errors.Is(err, transport.ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
	if _, err := loadAppConfig(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatalf("expected missing file error")
	}
}
