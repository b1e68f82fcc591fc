package session

import (
	"fmt"
	"time"

	"github.com/danmuck/rdgram/internal/observability"
	"github.com/danmuck/rdgram/internal/protocol/channel"
	"github.com/danmuck/rdgram/internal/protocol/frame"
)

// Receiver is the receive role of a session.
type Receiver struct {
	ch  *channel.Channel
	cfg Config
}

// ConnectReceiver binds local and handshakes with remote as an originator that
// will pull data.
func ConnectReceiver(local, remote string, maxAttempts int, cfg Config) (*Receiver, error) {
	cfg = cfg.WithDefaults()
	ch, err := originate(local, remote, RoleReceive, maxAttempts, cfg)
	if err != nil {
		return nil, err
	}
	return &Receiver{ch: ch, cfg: cfg}, nil
}

// Recv blocks for one datagram, copies it into buf and acknowledges it to
// whichever address sent it. Datagrams longer than buf are truncated. The
// source is not checked against the fixed peer.
//
// If the acknowledgment cannot be written, n reports the bytes already
// copied into buf alongside the error.
func (r *Receiver) Recv(buf []byte) (int, error) {
	n, src, err := r.ch.RecvFromAny(buf)
	if err != nil {
		return 0, err
	}
	if _, err := r.ch.SendTo([]byte{frame.Ack}, src); err != nil {
		return n, fmt.Errorf("session: ack to %s: %w", src, err)
	}
	observability.RecordReceived(n)
	return n, nil
}

// SetTimeout bounds each Recv. Zero waits forever.
func (r *Receiver) SetTimeout(d time.Duration) {
	r.ch.SetTimeout(d)
}

func (r *Receiver) Session() Session {
	return Session{Role: RoleReceive, Receiver: r}
}

func (r *Receiver) Close() error {
	return r.ch.Close()
}
