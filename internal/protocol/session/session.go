package session

import (
	"fmt"
	"net"

	"github.com/danmuck/rdgram/internal/protocol"
	"github.com/danmuck/rdgram/internal/protocol/channel"
)

// Session is one fixed channel paired with one role. Exactly one of Sender
// and Receiver is set when Role is not RoleNone; the zero Session means no
// session was established.
type Session struct {
	Role     Role
	Sender   *Sender
	Receiver *Receiver
}

// Attach wraps an already fixed channel in the stream for role. A sender's
// ack wait is bounded by cfg.AckTimeout; a receiver blocks until data arrives.
func Attach(ch *channel.Channel, role Role, cfg Config) (Session, error) {
	cfg = cfg.WithDefaults()
	if !ch.Fixed() {
		return Session{}, protocol.ErrPeerNotFixed
	}
	switch role {
	case RoleSend:
		ch.SetTimeout(cfg.AckTimeout)
		return Session{Role: RoleSend, Sender: &Sender{ch: ch, cfg: cfg}}, nil
	case RoleReceive:
		ch.SetTimeout(0)
		return Session{Role: RoleReceive, Receiver: &Receiver{ch: ch, cfg: cfg}}, nil
	default:
		return Session{}, fmt.Errorf("%w: cannot attach %s", protocol.ErrInvalidRole, role)
	}
}

func (s Session) Established() bool {
	return s.Role != RoleNone
}

func (s Session) LocalAddr() *net.UDPAddr {
	if ch := s.channel(); ch != nil {
		return ch.LocalAddr()
	}
	return nil
}

func (s Session) PeerAddr() *net.UDPAddr {
	if ch := s.channel(); ch != nil {
		return ch.Peer()
	}
	return nil
}

// Close releases the session's private channel. No teardown is signalled to
// the peer.
func (s Session) Close() error {
	if ch := s.channel(); ch != nil {
		return ch.Close()
	}
	return nil
}

func (s Session) channel() *channel.Channel {
	switch {
	case s.Sender != nil:
		return s.Sender.ch
	case s.Receiver != nil:
		return s.Receiver.ch
	default:
		return nil
	}
}
