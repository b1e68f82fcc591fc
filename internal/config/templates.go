package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// DefaultFileConfig mirrors DefaultNodeConfig in its on-disk shape.
func DefaultFileConfig() FileConfig {
	d := DefaultNodeConfig()
	s := d.Server.Session
	return FileConfig{
		Mode:         string(d.Mode),
		LogLevel:     d.LogLevel,
		Listen:       d.Server.ListenAddr,
		Local:        d.LocalAddr,
		Remote:       d.RemoteAddr,
		AdminAddr:    d.Server.AdminAddr,
		CorsOrigins:  d.Server.CorsOrigins,
		PayloadSize:  d.PayloadSize,
		SendInterval: d.SendInterval.String(),
		IdleTimeout:  "0s",
		Session: FileSession{
			HandshakeWait:   s.HandshakeWait.String(),
			AckTimeout:      s.AckTimeout.String(),
			MaxAttempts:     s.MaxAttempts,
			RetryCount:      s.RetryCount,
			MTU:             s.MTU,
			MaxDialAttempts: s.MaxDialAttempts,
			BackoffInitial:  s.Backoff.InitialDelay.String(),
			BackoffMax:      s.Backoff.MaxDelay.String(),
			BackoffJitter:   s.Backoff.Jitter,
		},
	}
}

// Template renders the default config with mode overridden.
func Template(mode Mode) (string, error) {
	fc := DefaultFileConfig()
	switch mode {
	case ModeServe, ModeSend, ModeRecv, ModeDemo:
		fc.Mode = string(mode)
	default:
		return "", fmt.Errorf("unknown config mode: %s", mode)
	}
	out, err := toml.Marshal(fc)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func WriteTemplate(path string, mode Mode, overwrite bool) error {
	template, err := Template(mode)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}
