package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/rdgram/internal/protocol/frame"
	"github.com/danmuck/rdgram/internal/server"
)

// Mode selects what the rdgram process does.
type Mode string

const (
	ModeServe Mode = "serve"
	ModeSend  Mode = "send"
	ModeRecv  Mode = "recv"
	ModeDemo  Mode = "demo"
)

// NodeConfig is the resolved runtime configuration.
type NodeConfig struct {
	Mode         Mode
	LogLevel     string
	LocalAddr    string
	RemoteAddr   string
	PayloadSize  int
	SendInterval time.Duration
	Server       server.Config
}

// FileConfig is the on-disk TOML shape. Durations are strings.
type FileConfig struct {
	Mode         string   `toml:"mode"`
	LogLevel     string   `toml:"log_level"`
	Listen       string   `toml:"listen"`
	Local        string   `toml:"local"`
	Remote       string   `toml:"remote"`
	AdminAddr    string   `toml:"admin_addr"`
	CorsOrigins  []string `toml:"cors_origins"`
	PayloadSize  int      `toml:"payload_size"`
	SendInterval string   `toml:"send_interval"`
	IdleTimeout  string   `toml:"idle_timeout"`

	Session FileSession `toml:"session"`
}

type FileSession struct {
	HandshakeWait   string `toml:"handshake_wait"`
	AckTimeout      string `toml:"ack_timeout"`
	MaxAttempts     int    `toml:"max_attempts"`
	RetryCount      int    `toml:"retry_count"`
	MTU             int    `toml:"mtu"`
	MaxDialAttempts int    `toml:"max_dial_attempts"`
	BackoffInitial  string `toml:"backoff_initial"`
	BackoffMax      string `toml:"backoff_max"`
	BackoffJitter   bool   `toml:"backoff_jitter"`
}

func DefaultNodeConfig() NodeConfig {
	return NodeConfig{
		Mode:         ModeServe,
		LogLevel:     "info",
		LocalAddr:    "localhost:0",
		RemoteAddr:   "localhost:9000",
		PayloadSize:  frame.MTU + 120,
		SendInterval: time.Millisecond,
		Server:       server.DefaultConfig(),
	}
}

// Load reads path and overlays every key it defines onto DefaultNodeConfig.
func Load(path string) (NodeConfig, error) {
	cfg := DefaultNodeConfig()

	var raw FileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return NodeConfig{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return NodeConfig{}, fmt.Errorf("config parse failed (%s): unknown key %q", path, undecoded[0].String())
	}

	if meta.IsDefined("mode") {
		cfg.Mode = Mode(strings.ToLower(strings.TrimSpace(raw.Mode)))
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if meta.IsDefined("listen") {
		cfg.Server.ListenAddr = strings.TrimSpace(raw.Listen)
	}
	if meta.IsDefined("local") {
		cfg.LocalAddr = strings.TrimSpace(raw.Local)
	}
	if meta.IsDefined("remote") {
		cfg.RemoteAddr = strings.TrimSpace(raw.Remote)
	}
	if meta.IsDefined("admin_addr") {
		cfg.Server.AdminAddr = strings.TrimSpace(raw.AdminAddr)
	}
	if meta.IsDefined("cors_origins") {
		cfg.Server.CorsOrigins = raw.CorsOrigins
	}
	if meta.IsDefined("payload_size") {
		cfg.PayloadSize = raw.PayloadSize
		cfg.Server.PayloadSize = raw.PayloadSize
	}
	if err := setDuration(meta, "send_interval", raw.SendInterval, &cfg.SendInterval); err != nil {
		return NodeConfig{}, err
	}
	if meta.IsDefined("send_interval") {
		cfg.Server.SendInterval = cfg.SendInterval
	}
	if err := setDuration(meta, "idle_timeout", raw.IdleTimeout, &cfg.Server.IdleTimeout); err != nil {
		return NodeConfig{}, err
	}

	sess := &cfg.Server.Session
	if err := setDuration(meta, "session.handshake_wait", raw.Session.HandshakeWait, &sess.HandshakeWait); err != nil {
		return NodeConfig{}, err
	}
	if err := setDuration(meta, "session.ack_timeout", raw.Session.AckTimeout, &sess.AckTimeout); err != nil {
		return NodeConfig{}, err
	}
	if meta.IsDefined("session", "max_attempts") {
		sess.MaxAttempts = raw.Session.MaxAttempts
	}
	if meta.IsDefined("session", "retry_count") {
		sess.RetryCount = raw.Session.RetryCount
	}
	if meta.IsDefined("session", "mtu") {
		sess.MTU = raw.Session.MTU
	}
	if meta.IsDefined("session", "max_dial_attempts") {
		sess.MaxDialAttempts = raw.Session.MaxDialAttempts
	}
	if err := setDuration(meta, "session.backoff_initial", raw.Session.BackoffInitial, &sess.Backoff.InitialDelay); err != nil {
		return NodeConfig{}, err
	}
	if err := setDuration(meta, "session.backoff_max", raw.Session.BackoffMax, &sess.Backoff.MaxDelay); err != nil {
		return NodeConfig{}, err
	}
	if meta.IsDefined("session", "backoff_jitter") {
		sess.Backoff.Jitter = raw.Session.BackoffJitter
	}

	if err := Validate(cfg); err != nil {
		return NodeConfig{}, err
	}
	return cfg, nil
}

// setDuration parses raw into out when the dotted key is defined.
func setDuration(meta toml.MetaData, key, raw string, out *time.Duration) error {
	if !meta.IsDefined(strings.Split(key, ".")...) {
		return nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("parse %s: %w", key, err)
	}
	*out = d
	return nil
}

func Validate(cfg NodeConfig) error {
	switch cfg.Mode {
	case ModeServe, ModeDemo:
		if strings.TrimSpace(cfg.Server.ListenAddr) == "" {
			return fmt.Errorf("%s config missing listen", cfg.Mode)
		}
	case ModeSend, ModeRecv:
		if strings.TrimSpace(cfg.RemoteAddr) == "" {
			return fmt.Errorf("%s config missing remote", cfg.Mode)
		}
		if strings.TrimSpace(cfg.LocalAddr) == "" {
			return fmt.Errorf("%s config missing local", cfg.Mode)
		}
	default:
		return fmt.Errorf("unknown mode: %q", cfg.Mode)
	}
	if cfg.PayloadSize < 0 {
		return fmt.Errorf("payload_size must not be negative")
	}
	if cfg.SendInterval < 0 || cfg.Server.IdleTimeout < 0 {
		return fmt.Errorf("intervals must not be negative")
	}
	if err := cfg.Server.Session.Validate(); err != nil {
		return err
	}
	return nil
}
