package session

import (
	"fmt"
	"time"

	"github.com/danmuck/rdgram/internal/observability"
	"github.com/danmuck/rdgram/internal/protocol"
	"github.com/danmuck/rdgram/internal/protocol/channel"
	"github.com/danmuck/rdgram/internal/protocol/frame"
	"github.com/rs/zerolog/log"
)

// Sender is the send role of a session: stop-and-wait, one ack per fragment.
type Sender struct {
	ch  *channel.Channel
	cfg Config
}

// ConnectSender binds local and handshakes with remote as an originator that
// will push data.
func ConnectSender(local, remote string, maxAttempts int, cfg Config) (*Sender, error) {
	cfg = cfg.WithDefaults()
	ch, err := originate(local, remote, RoleSend, maxAttempts, cfg)
	if err != nil {
		return nil, err
	}
	return &Sender{ch: ch, cfg: cfg}, nil
}

// Send fragments buf into MTU sized pieces and delivers them in order, each
// with up to retry transmissions. It returns len(buf) once every fragment is
// acknowledged; any fragment failure aborts the call with no partial count.
func (s *Sender) Send(buf []byte, retry int) (int, error) {
	frags := frame.Split(buf, s.cfg.MTU)
	var sent int
	for i, frag := range frags {
		n, err := s.sendFragment(frag, retry)
		if err != nil {
			return 0, fmt.Errorf("fragment %d/%d: %w", i+1, len(frags), err)
		}
		sent += n
	}
	return sent, nil
}

func (s *Sender) sendFragment(frag []byte, retry int) (int, error) {
	var ack [1]byte
	for remaining := retry; remaining > 0; remaining-- {
		if _, err := s.ch.SendFixed(frag); err != nil {
			observability.RecordFragmentRetry()
			log.Debug().Int("remaining", remaining-1).Err(err).Msg("session: fragment write failed")
			continue
		}
		n, err := s.ch.RecvFixed(ack[:])
		if err != nil {
			observability.RecordFragmentRetry()
			log.Debug().Int("remaining", remaining-1).Err(err).Msg("session: fragment unacknowledged")
			continue
		}
		if n < 1 || !frame.IsAck(ack[0]) {
			observability.RecordProtocolMismatch("fragment")
			return 0, fmt.Errorf("%w: ack %d != %d", protocol.ErrProtocolMismatch, ack[0], frame.Ack)
		}
		observability.RecordFragmentAcked(len(frag))
		return len(frag), nil
	}
	return 0, fmt.Errorf("%w: no ack after %d attempts", protocol.ErrDeliveryFailed, retry)
}

// SetRetryTimeout bounds each acknowledgment wait. Zero waits forever.
func (s *Sender) SetRetryTimeout(d time.Duration) {
	s.ch.SetTimeout(d)
}

func (s *Sender) Session() Session {
	return Session{Role: RoleSend, Sender: s}
}

func (s *Sender) Close() error {
	return s.ch.Close()
}

func originate(local, remote string, role Role, maxAttempts int, cfg Config) (*channel.Channel, error) {
	hello, err := role.Hello()
	if err != nil {
		return nil, err
	}
	ch, err := channel.Bind(local)
	if err != nil {
		return nil, err
	}
	raddr, err := channel.ResolveRemote(remote)
	if err != nil {
		_ = ch.Close()
		return nil, err
	}
	ch.SetHandshakeWait(cfg.HandshakeWait)

	start := time.Now()
	_, peer, err := ch.DiscoverPeerAndFix(hello, raddr, maxAttempts)
	if err != nil {
		observability.RecordHandshake(role.String(), "failed", time.Since(start))
		_ = ch.Close()
		return nil, err
	}
	observability.RecordHandshake(role.String(), "ok", time.Since(start))
	log.Debug().
		Str("role", role.String()).
		Str("local", ch.LocalAddr().String()).
		Str("rendezvous", raddr.String()).
		Str("peer", peer.String()).
		Msg("session: handshake complete")
	return ch, nil
}
