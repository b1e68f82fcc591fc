package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/danmuck/rdgram/internal/protocol/channel"
	"github.com/danmuck/rdgram/internal/protocol/frame"
)

var ErrInvalidConfig = errors.New("session: invalid config")

// BackoffConfig defines redial backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// Config defines handshake and stop-and-wait defaults.
type Config struct {
	// HandshakeWait bounds each hello reply wait.
	HandshakeWait time.Duration
	// AckTimeout is installed on channels built by the acceptor.
	AckTimeout time.Duration
	// MaxAttempts is the hello budget for originator handshakes.
	MaxAttempts int
	// RetryCount is the per-fragment budget used by drivers that do not pass
	// their own.
	RetryCount int
	MTU        int
	// MaxDialAttempts bounds Dialer redials; zero redials forever.
	MaxDialAttempts int
	Backoff         BackoffConfig
}

// DefaultConfig returns the wire defaults: 1s waits, 3 attempts, 1320 byte MTU.
func DefaultConfig() Config {
	return Config{
		HandshakeWait:   channel.DefaultHandshakeWait,
		AckTimeout:      time.Second,
		MaxAttempts:     3,
		RetryCount:      3,
		MTU:             frame.MTU,
		MaxDialAttempts: 0,
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
	d := DefaultConfig()
	if c.HandshakeWait <= 0 {
		c.HandshakeWait = d.HandshakeWait
	}
	if c.AckTimeout <= 0 {
		c.AckTimeout = d.AckTimeout
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.RetryCount <= 0 {
		c.RetryCount = d.RetryCount
	}
	if c.MTU <= 0 {
		c.MTU = d.MTU
	}
	if c.Backoff == (BackoffConfig{}) {
		c.Backoff = d.Backoff
	}
	return c
}

func (c Config) Validate() error {
	if c.HandshakeWait <= 0 {
		return fmt.Errorf("%w: handshake wait must be positive", ErrInvalidConfig)
	}
	if c.AckTimeout <= 0 {
		return fmt.Errorf("%w: ack timeout must be positive", ErrInvalidConfig)
	}
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("%w: max attempts must be positive", ErrInvalidConfig)
	}
	if c.RetryCount <= 0 {
		return fmt.Errorf("%w: retry count must be positive", ErrInvalidConfig)
	}
	if c.MTU <= 0 || c.MTU > frame.MTU {
		return fmt.Errorf("%w: mtu must be in 1..%d", ErrInvalidConfig, frame.MTU)
	}
	if c.MaxDialAttempts < 0 {
		return fmt.Errorf("%w: max dial attempts must not be negative", ErrInvalidConfig)
	}
	return nil
}
