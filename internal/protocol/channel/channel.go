// Package channel wraps one bound UDP socket that may be fixed to a single
// peer after a handshake.
package channel

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/danmuck/rdgram/internal/observability"
	"github.com/danmuck/rdgram/internal/protocol"
	"github.com/danmuck/rdgram/internal/protocol/frame"
	"github.com/rs/zerolog/log"
)

// DefaultHandshakeWait bounds each reply wait in DiscoverPeerAndFix.
const DefaultHandshakeWait = time.Second

// Channel owns one datagram endpoint. An unfixed channel talks to any address
// per call; a fixed channel locks SendFixed/RecvFixed to one peer.
type Channel struct {
	conn *net.UDPConn

	mu            sync.RWMutex
	peer          *net.UDPAddr
	timeout       time.Duration
	handshakeWait time.Duration
}

// Bind resolves addr and binds a new channel on it.
func Bind(addr string) (*Channel, error) {
	laddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve %q: %v", protocol.ErrAddressUnavailable, addr, err)
	}
	return BindUDPAddr(laddr)
}

func BindUDPAddr(laddr *net.UDPAddr) (*Channel, error) {
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, fmt.Errorf("%w: bind %s: %v", protocol.ErrAddressUnavailable, laddr, err)
	}
	return &Channel{conn: conn, handshakeWait: DefaultHandshakeWait}, nil
}

// ResolveRemote resolves a peer address the way Bind resolves local ones.
func ResolveRemote(addr string) (*net.UDPAddr, error) {
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve %q: %v", protocol.ErrAddressUnavailable, addr, err)
	}
	return raddr, nil
}

func (c *Channel) LocalAddr() *net.UDPAddr {
	return c.conn.LocalAddr().(*net.UDPAddr)
}

// Peer returns the fixed peer or nil.
func (c *Channel) Peer() *net.UDPAddr {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.peer
}

func (c *Channel) Fixed() bool {
	return c.Peer() != nil
}

// Fix locks the channel to addr.
func (c *Channel) Fix(addr *net.UDPAddr) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.peer = cloneAddr(addr)
}

// SetTimeout bounds every subsequent blocking receive. Zero blocks forever.
func (c *Channel) SetTimeout(d time.Duration) {
	if d < 0 {
		d = 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timeout = d
}

func (c *Channel) Timeout() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.timeout
}

// SetHandshakeWait changes the per-attempt reply wait of DiscoverPeerAndFix.
func (c *Channel) SetHandshakeWait(d time.Duration) {
	if d <= 0 {
		d = DefaultHandshakeWait
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handshakeWait = d
}

// DiscoverPeerAndFix sends hello to remote until a one byte reply arrives or
// maxAttempts silent waits are used up. A reply other than the ack is a
// protocol mismatch and is not retried. On success the channel is fixed to the
// reply's source, which may differ from remote.
//
// The handshake wait stays installed as the channel timeout afterwards.
func (c *Channel) DiscoverPeerAndFix(hello byte, remote *net.UDPAddr, maxAttempts int) (int, *net.UDPAddr, error) {
	c.mu.RLock()
	wait := c.handshakeWait
	c.mu.RUnlock()

	hb := []byte{hello}
	var reply [1]byte
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		observability.RecordHandshakeAttempt()
		if _, err := c.conn.WriteToUDP(hb, remote); err != nil {
			log.Debug().Int("attempt", attempt).Str("remote", remote.String()).Err(err).Msg("channel: hello write failed")
			continue
		}
		c.SetTimeout(wait)
		n, src, err := c.RecvFromAny(reply[:])
		if err != nil {
			log.Debug().Int("attempt", attempt).Str("remote", remote.String()).Err(err).Msg("channel: hello unanswered")
			continue
		}
		if n < 1 || !frame.IsAck(reply[0]) {
			observability.RecordProtocolMismatch("handshake")
			return 0, nil, fmt.Errorf("%w: ack %d != %d from %s", protocol.ErrProtocolMismatch, reply[0], frame.Ack, src)
		}
		c.Fix(src)
		return len(hb), cloneAddr(src), nil
	}
	return 0, nil, fmt.Errorf("%w: no ack from %s after %d attempts", protocol.ErrHandshakeFailed, remote, maxAttempts)
}

// SendFixed writes buf to the fixed peer.
func (c *Channel) SendFixed(buf []byte) (int, error) {
	peer := c.Peer()
	if peer == nil {
		return 0, protocol.ErrPeerNotFixed
	}
	return c.conn.WriteToUDP(buf, peer)
}

// RecvFixed reads the next datagram from the fixed peer. Datagrams from other
// sources are dropped; the channel timeout covers the whole wait.
func (c *Channel) RecvFixed(buf []byte) (int, error) {
	peer := c.Peer()
	if peer == nil {
		return 0, protocol.ErrPeerNotFixed
	}
	if err := c.armDeadline(); err != nil {
		return 0, err
	}
	for {
		n, src, err := c.conn.ReadFromUDP(buf)
		if err != nil {
			return 0, err
		}
		if sameAddr(src, peer) {
			return n, nil
		}
		log.Debug().Str("peer", peer.String()).Str("src", src.String()).Msg("channel: dropped datagram from stray source")
	}
}

// RecvFromAny reads the next datagram from any source.
func (c *Channel) RecvFromAny(buf []byte) (int, *net.UDPAddr, error) {
	if err := c.armDeadline(); err != nil {
		return 0, nil, err
	}
	return c.conn.ReadFromUDP(buf)
}

func (c *Channel) SendTo(buf []byte, addr *net.UDPAddr) (int, error) {
	return c.conn.WriteToUDP(buf, addr)
}

func (c *Channel) Close() error {
	return c.conn.Close()
}

// IsTimeout reports whether err came from an elapsed channel timeout.
func IsTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func (c *Channel) armDeadline() error {
	d := c.Timeout()
	if d <= 0 {
		return c.conn.SetReadDeadline(time.Time{})
	}
	return c.conn.SetReadDeadline(time.Now().Add(d))
}

func sameAddr(a, b *net.UDPAddr) bool {
	if a == nil || b == nil {
		return false
	}
	return a.Port == b.Port && a.IP.Equal(b.IP)
}

func cloneAddr(a *net.UDPAddr) *net.UDPAddr {
	if a == nil {
		return nil
	}
	ip := make(net.IP, len(a.IP))
	copy(ip, a.IP)
	return &net.UDPAddr{IP: ip, Port: a.Port, Zone: a.Zone}
}
