package session

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/danmuck/rdgram/internal/protocol"
	"github.com/danmuck/rdgram/internal/protocol/channel"
	"github.com/rs/zerolog/log"
)

// Dialer repeats originator handshakes with backoff until one succeeds.
// Only ErrHandshakeFailed is retried; a protocol mismatch or an unusable
// address ends the dial.
type Dialer struct {
	cfg Config

	mu  sync.Mutex
	rng *rand.Rand
}

func NewDialer(cfg Config) *Dialer {
	return &Dialer{
		cfg: cfg.WithDefaults(),
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (d *Dialer) DialSender(ctx context.Context, local, remote string) (*Sender, error) {
	ch, err := d.dial(ctx, RoleSend, local, remote)
	if err != nil {
		return nil, err
	}
	return &Sender{ch: ch, cfg: d.cfg}, nil
}

func (d *Dialer) DialReceiver(ctx context.Context, local, remote string) (*Receiver, error) {
	ch, err := d.dial(ctx, RoleReceive, local, remote)
	if err != nil {
		return nil, err
	}
	return &Receiver{ch: ch, cfg: d.cfg}, nil
}

func (d *Dialer) dial(ctx context.Context, role Role, local, remote string) (*channel.Channel, error) {
	var attempt int
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		attempt++
		ch, err := originate(local, remote, role, d.cfg.MaxAttempts, d.cfg)
		if err == nil {
			return ch, nil
		}
		log.Warn().Int("attempt", attempt).Str("role", role.String()).Str("remote", remote).Err(err).Msg("session: dial failed")
		if !errors.Is(err, protocol.ErrHandshakeFailed) || !d.shouldRetry(attempt) {
			return nil, err
		}
		if err := d.sleepBackoff(ctx, attempt); err != nil {
			return nil, err
		}
	}
}

func (d *Dialer) shouldRetry(attempt int) bool {
	if d.cfg.MaxDialAttempts <= 0 {
		return true
	}
	return attempt < d.cfg.MaxDialAttempts
}

func (d *Dialer) sleepBackoff(ctx context.Context, attempt int) error {
	d.mu.Lock()
	delay := NextBackoffDelay(d.cfg.Backoff, attempt, d.rng)
	d.mu.Unlock()
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
