package channel

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/danmuck/rdgram/internal/protocol"
	"github.com/danmuck/rdgram/internal/protocol/frame"
	"github.com/danmuck/rdgram/internal/testutil/testlog"
	"github.com/danmuck/rdgram/internal/testutil/udptest"
)

func bindLoopback(t *testing.T) *Channel {
	t.Helper()
	ch, err := Bind("127.0.0.1:0")
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	t.Cleanup(func() { _ = ch.Close() })
	ch.SetHandshakeWait(50 * time.Millisecond)
	return ch
}

func TestBindUnresolvableAddress(t *testing.T) {
	testlog.Start(t)
	_, err := Bind("not-a-host.invalid:bogus")
	if !errors.Is(err, protocol.ErrAddressUnavailable) {
		t.Fatalf("expected ErrAddressUnavailable, got %v", err)
	}
}

func TestBindAddressInUse(t *testing.T) {
	testlog.Start(t)
	first := bindLoopback(t)
	_, err := BindUDPAddr(first.LocalAddr())
	if !errors.Is(err, protocol.ErrAddressUnavailable) {
		t.Fatalf("expected ErrAddressUnavailable, got %v", err)
	}
}

func TestDiscoverPeerAndFixAdoptsReplySource(t *testing.T) {
	testlog.Start(t)
	ch := bindLoopback(t)

	rendezvous, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen rendezvous: %v", err)
	}
	defer rendezvous.Close()
	private, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen private: %v", err)
	}
	defer private.Close()

	go func() {
		buf := make([]byte, 1)
		_, src, err := rendezvous.ReadFromUDP(buf)
		if err != nil {
			return
		}
		_, _ = private.WriteToUDP([]byte{frame.Ack}, src)
	}()

	n, peer, err := ch.DiscoverPeerAndFix(frame.CodeSend, rendezvous.LocalAddr().(*net.UDPAddr), 3)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if n != 1 {
		t.Fatalf("unexpected bytes sent=%d", n)
	}
	want := private.LocalAddr().(*net.UDPAddr)
	if peer.Port != want.Port || !ch.Fixed() || ch.Peer().Port != want.Port {
		t.Fatalf("peer not re-fixed to private channel: got=%v want=%v", peer, want)
	}
	if ch.Timeout() != 50*time.Millisecond {
		t.Fatalf("handshake wait not installed as timeout: %v", ch.Timeout())
	}
}

func TestDiscoverPeerAndFixMismatchIsNotRetried(t *testing.T) {
	testlog.Start(t)
	ch := bindLoopback(t)
	peer := udptest.NewPeer(t, udptest.Always(7))

	_, _, err := ch.DiscoverPeerAndFix(frame.CodeReceive, peer.Addr(), 5)
	if !errors.Is(err, protocol.ErrProtocolMismatch) {
		t.Fatalf("expected ErrProtocolMismatch, got %v", err)
	}
	if got := peer.Received(); got != 1 {
		t.Fatalf("mismatch consumed retries: hellos=%d", got)
	}
	if ch.Fixed() {
		t.Fatalf("channel must stay unfixed after mismatch")
	}
}

func TestDiscoverPeerAndFixExhaustsAttempts(t *testing.T) {
	testlog.Start(t)
	ch := bindLoopback(t)
	peer := udptest.NewPeer(t, udptest.Silent())

	_, _, err := ch.DiscoverPeerAndFix(frame.CodeSend, peer.Addr(), 3)
	if !errors.Is(err, protocol.ErrHandshakeFailed) {
		t.Fatalf("expected ErrHandshakeFailed, got %v", err)
	}
	if !peer.WaitReceived(3, time.Second) || peer.Received() != 3 {
		t.Fatalf("expected exactly 3 hellos, got %d", peer.Received())
	}
}

func TestDiscoverPeerAndFixRecoversAfterSilence(t *testing.T) {
	testlog.Start(t)
	ch := bindLoopback(t)
	peer := udptest.NewPeer(t, udptest.After(2, frame.Ack))

	if _, _, err := ch.DiscoverPeerAndFix(frame.CodeSend, peer.Addr(), 3); err != nil {
		t.Fatalf("discover: %v", err)
	}
	if peer.Received() != 3 {
		t.Fatalf("expected 3 hellos, got %d", peer.Received())
	}
}

func TestDiscoverPeerAndFixZeroAttempts(t *testing.T) {
	testlog.Start(t)
	ch := bindLoopback(t)
	peer := udptest.NewPeer(t, udptest.Always(frame.Ack))
	if _, _, err := ch.DiscoverPeerAndFix(frame.CodeSend, peer.Addr(), 0); !errors.Is(err, protocol.ErrHandshakeFailed) {
		t.Fatalf("expected ErrHandshakeFailed, got %v", err)
	}
}

func TestFixedIORequiresPeer(t *testing.T) {
	testlog.Start(t)
	ch := bindLoopback(t)
	if _, err := ch.SendFixed([]byte("x")); !errors.Is(err, protocol.ErrPeerNotFixed) {
		t.Fatalf("expected ErrPeerNotFixed, got %v", err)
	}
	if _, err := ch.RecvFixed(make([]byte, 1)); !errors.Is(err, protocol.ErrPeerNotFixed) {
		t.Fatalf("expected ErrPeerNotFixed, got %v", err)
	}
}

func TestRecvFixedDropsStraySources(t *testing.T) {
	testlog.Start(t)
	a := bindLoopback(t)
	b := bindLoopback(t)
	stray := bindLoopback(t)
	a.Fix(b.LocalAddr())
	a.SetTimeout(time.Second)

	if _, err := stray.SendTo([]byte("stray"), a.LocalAddr()); err != nil {
		t.Fatalf("stray send: %v", err)
	}
	b.Fix(a.LocalAddr())
	if _, err := b.SendFixed([]byte("peer")); err != nil {
		t.Fatalf("peer send: %v", err)
	}

	buf := make([]byte, 16)
	n, err := a.RecvFixed(buf)
	if err != nil {
		t.Fatalf("recv fixed: %v", err)
	}
	if string(buf[:n]) != "peer" {
		t.Fatalf("unexpected payload %q", buf[:n])
	}
}

func TestRecvTimeout(t *testing.T) {
	testlog.Start(t)
	ch := bindLoopback(t)
	ch.SetTimeout(20 * time.Millisecond)
	_, _, err := ch.RecvFromAny(make([]byte, 1))
	if !IsTimeout(err) {
		t.Fatalf("expected timeout, got %v", err)
	}
}
