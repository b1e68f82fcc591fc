// Package udptest provides scripted loopback UDP peers for protocol tests.
package udptest

import (
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// Reply decides the answer to one inbound datagram. Returning nil stays silent.
type Reply func(n int, payload []byte) []byte

// Peer is a loopback UDP socket that answers every datagram with Reply and
// records what it saw.
type Peer struct {
	conn  *net.UDPConn
	reply Reply

	received atomic.Int64
	mu       sync.Mutex
	payloads [][]byte
	done     chan struct{}
}

// Silent never answers.
func Silent() Reply {
	return func(int, []byte) []byte { return nil }
}

// Always answers every datagram with b.
func Always(b byte) Reply {
	return func(int, []byte) []byte { return []byte{b} }
}

// After stays silent for the first n datagrams, then answers with b.
func After(n int, b byte) Reply {
	var seen atomic.Int64
	return func(int, []byte) []byte {
		if seen.Add(1) <= int64(n) {
			return nil
		}
		return []byte{b}
	}
}

func NewPeer(t testing.TB, reply Reply) *Peer {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	if err != nil {
		t.Fatalf("udptest: listen: %v", err)
	}
	p := &Peer{conn: conn, reply: reply, done: make(chan struct{})}
	go p.loop()
	t.Cleanup(p.Close)
	return p
}

func (p *Peer) Addr() *net.UDPAddr {
	return p.conn.LocalAddr().(*net.UDPAddr)
}

// Received returns how many datagrams arrived so far.
func (p *Peer) Received() int {
	return int(p.received.Load())
}

// Payloads returns copies of every datagram in arrival order.
func (p *Peer) Payloads() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([][]byte, len(p.payloads))
	copy(out, p.payloads)
	return out
}

// WaitReceived polls until at least n datagrams arrived or d elapses.
func (p *Peer) WaitReceived(n int, d time.Duration) bool {
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if p.Received() >= n {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return p.Received() >= n
}

func (p *Peer) Close() {
	select {
	case <-p.done:
	default:
		close(p.done)
		_ = p.conn.Close()
	}
}

func (p *Peer) loop() {
	buf := make([]byte, 64*1024)
	for {
		n, src, err := p.conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		pkt := make([]byte, n)
		copy(pkt, buf[:n])
		p.mu.Lock()
		p.payloads = append(p.payloads, pkt)
		p.mu.Unlock()
		p.received.Add(1)
		if out := p.reply(n, pkt); out != nil {
			_, _ = p.conn.WriteToUDP(out, src)
		}
	}
}
