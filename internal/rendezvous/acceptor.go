// Package rendezvous owns the well-known channel where handshakes arrive and
// hands every accepted peer a freshly bound private channel.
package rendezvous

import (
	"fmt"
	"net"
	"time"

	"github.com/danmuck/rdgram/internal/observability"
	"github.com/danmuck/rdgram/internal/protocol/channel"
	"github.com/danmuck/rdgram/internal/protocol/frame"
	"github.com/danmuck/rdgram/internal/protocol/session"
	"github.com/rs/zerolog/log"
)

// Acceptor owns the rendezvous channel. Accept is not safe for concurrent
// use; callers serialize it.
type Acceptor struct {
	ch   *channel.Channel
	cfg  session.Config
	host net.IP
	zone string
}

// Listen binds the rendezvous channel on addr.
func Listen(addr string, cfg session.Config) (*Acceptor, error) {
	ch, err := channel.Bind(addr)
	if err != nil {
		return nil, err
	}
	local := ch.LocalAddr()
	return &Acceptor{
		ch:   ch,
		cfg:  cfg.WithDefaults(),
		host: local.IP,
		zone: local.Zone,
	}, nil
}

func (a *Acceptor) Addr() *net.UDPAddr {
	return a.ch.LocalAddr()
}

// Accept waits for one role hello and completes the handoff onto a new
// private channel. A hello that decodes to no known role yields the zero
// Session and a nil error so Accept can simply be called again.
func (a *Acceptor) Accept() (session.Session, error) {
	var hello [1]byte
	n, src, err := a.ch.RecvFromAny(hello[:])
	if err != nil {
		return session.Session{}, fmt.Errorf("rendezvous: read hello: %w", err)
	}

	private, err := channel.BindUDPAddr(&net.UDPAddr{IP: a.host, Port: 0, Zone: a.zone})
	if err != nil {
		return session.Session{}, err
	}

	code := frame.RoleUnrecognized
	if n > 0 {
		code = frame.DecodeRole(hello[0])
	}
	role := session.AcceptorRole(code)
	if role == session.RoleNone {
		_ = private.Close()
		observability.RecordAccepted(role.String())
		log.Debug().Str("src", src.String()).Uint8("hello", hello[0]).Msg("rendezvous: unrecognized hello")
		return session.Session{}, nil
	}

	private.Fix(src)
	sess, err := session.Attach(private, role, a.cfg)
	if err != nil {
		_ = private.Close()
		return session.Session{}, err
	}
	if _, err := private.SendTo([]byte{frame.Ack}, src); err != nil {
		_ = private.Close()
		return session.Session{}, fmt.Errorf("rendezvous: ack %s: %w", src, err)
	}

	observability.RecordAccepted(role.String())
	log.Info().
		Str("peer", src.String()).
		Str("peer_role", code.String()).
		Str("role", role.String()).
		Str("private", private.LocalAddr().String()).
		Msg("rendezvous: session accepted")
	return sess, nil
}

// SetTimeout bounds the hello wait in Accept. Zero blocks forever.
func (a *Acceptor) SetTimeout(d time.Duration) {
	a.ch.SetTimeout(d)
}

// Close releases the rendezvous channel and unblocks a pending Accept.
// Sessions already handed out keep their private channels.
func (a *Acceptor) Close() error {
	return a.ch.Close()
}
