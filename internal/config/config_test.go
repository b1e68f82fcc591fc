package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/rdgram/internal/protocol/frame"
	"github.com/danmuck/rdgram/internal/testutil/testlog"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaultsWhenKeysMissing(t *testing.T) {
	testlog.Start(t)
	cfg, err := Load(writeConfig(t, "mode = \"serve\"\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.ListenAddr != "localhost:9000" {
		t.Fatalf("unexpected listen: %q", cfg.Server.ListenAddr)
	}
	if cfg.Server.Session.HandshakeWait != time.Second || cfg.Server.Session.MaxAttempts != 3 {
		t.Fatalf("unexpected session defaults: %+v", cfg.Server.Session)
	}
	if cfg.Server.Session.MTU != frame.MTU {
		t.Fatalf("unexpected mtu: %d", cfg.Server.Session.MTU)
	}
	if cfg.PayloadSize != frame.MTU+120 {
		t.Fatalf("unexpected payload size: %d", cfg.PayloadSize)
	}
}

func TestLoadOverrides(t *testing.T) {
	testlog.Start(t)
	body := `
mode = "send"
log_level = "debug"
local = "127.0.0.1:0"
remote = "127.0.0.1:9100"
payload_size = 4000
send_interval = "10ms"
idle_timeout = "30s"

[session]
handshake_wait = "250ms"
ack_timeout = "500ms"
max_attempts = 5
retry_count = 2
mtu = 512
max_dial_attempts = 4
backoff_initial = "100ms"
backoff_max = "1s"
backoff_jitter = false
`
	cfg, err := Load(writeConfig(t, body))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Mode != ModeSend || cfg.LogLevel != "debug" {
		t.Fatalf("unexpected mode/level: %q %q", cfg.Mode, cfg.LogLevel)
	}
	if cfg.RemoteAddr != "127.0.0.1:9100" || cfg.LocalAddr != "127.0.0.1:0" {
		t.Fatalf("unexpected addrs: %q %q", cfg.LocalAddr, cfg.RemoteAddr)
	}
	if cfg.PayloadSize != 4000 || cfg.SendInterval != 10*time.Millisecond {
		t.Fatalf("unexpected payload/interval: %d %v", cfg.PayloadSize, cfg.SendInterval)
	}
	if cfg.Server.IdleTimeout != 30*time.Second {
		t.Fatalf("unexpected idle timeout: %v", cfg.Server.IdleTimeout)
	}
	s := cfg.Server.Session
	if s.HandshakeWait != 250*time.Millisecond || s.AckTimeout != 500*time.Millisecond {
		t.Fatalf("unexpected waits: %+v", s)
	}
	if s.MaxAttempts != 5 || s.RetryCount != 2 || s.MTU != 512 || s.MaxDialAttempts != 4 {
		t.Fatalf("unexpected counts: %+v", s)
	}
	if s.Backoff.InitialDelay != 100*time.Millisecond || s.Backoff.MaxDelay != time.Second || s.Backoff.Jitter {
		t.Fatalf("unexpected backoff: %+v", s.Backoff)
	}
	if s.Backoff.Multiplier != 2.0 {
		t.Fatalf("multiplier should keep its default: %v", s.Backoff.Multiplier)
	}
}

func TestLoadRejectsBadInput(t *testing.T) {
	testlog.Start(t)
	cases := map[string]string{
		"unknown mode":     "mode = \"broadcast\"\n",
		"unknown key":      "mode = \"serve\"\nbogus = 1\n",
		"bad duration":     "[session]\nhandshake_wait = \"soon\"\n",
		"oversized mtu":    "[session]\nmtu = 9000\n",
		"missing remote":   "mode = \"recv\"\nremote = \"\"\n",
		"negative payload": "payload_size = -1\n",
	}
	for name, body := range cases {
		if _, err := Load(writeConfig(t, body)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestTemplateRoundTripsThroughLoad(t *testing.T) {
	testlog.Start(t)
	for _, mode := range []Mode{ModeServe, ModeSend, ModeRecv, ModeDemo} {
		path := filepath.Join(t.TempDir(), "config.toml")
		if err := WriteTemplate(path, mode, false); err != nil {
			t.Fatalf("write template %s: %v", mode, err)
		}
		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("load template %s: %v", mode, err)
		}
		want := DefaultNodeConfig()
		if cfg.Mode != mode || cfg.Server.Session != want.Server.Session {
			t.Fatalf("template %s did not round trip: %+v", mode, cfg)
		}
	}
}

func TestWriteTemplateRefusesOverwrite(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := WriteTemplate(path, ModeServe, false); err != nil {
		t.Fatalf("write: %v", err)
	}
	err := WriteTemplate(path, ModeSend, false)
	if err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Fatalf("expected overwrite refusal, got %v", err)
	}
	if err := WriteTemplate(path, ModeSend, true); err != nil {
		t.Fatalf("forced write: %v", err)
	}
	if _, err := Template(Mode("bogus")); err == nil {
		t.Fatalf("expected unknown mode error")
	}
}
