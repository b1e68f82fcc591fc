package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/danmuck/rdgram/internal/config"
	"github.com/danmuck/rdgram/internal/protocol"
	"github.com/danmuck/rdgram/internal/protocol/frame"
	"github.com/danmuck/rdgram/internal/protocol/session"
	"github.com/danmuck/rdgram/internal/rendezvous"
	"github.com/danmuck/rdgram/internal/testutil/testlog"
	"github.com/danmuck/rdgram/internal/testutil/udptest"
)

func TestResolveConfigModeFlagOverridesFile(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("mode = \"serve\"\nremote = \"127.0.0.1:9100\"\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := resolveConfig(path, "RECV")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cfg.Mode != config.ModeRecv || cfg.RemoteAddr != "127.0.0.1:9100" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if _, err := resolveConfig("", "bogus"); err == nil {
		t.Fatalf("expected unknown mode error")
	}
	cfg, err = resolveConfig("", "")
	if err != nil || cfg.Mode != config.ModeServe {
		t.Fatalf("expected default serve mode, got %q err=%v", cfg.Mode, err)
	}
}

func TestRunSendFeedsAcceptor(t *testing.T) {
	testlog.Start(t)
	cfg := config.DefaultNodeConfig()
	cfg.Mode = config.ModeSend
	cfg.LocalAddr = "127.0.0.1:0"
	cfg.Server.Session.HandshakeWait = 200 * time.Millisecond
	cfg.Server.Session.AckTimeout = 200 * time.Millisecond

	a, err := rendezvous.Listen("127.0.0.1:0", cfg.Server.Session)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer a.Close()
	a.SetTimeout(2 * time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- runSend(ctx, cfg, a.Addr().String(), false)
	}()

	sess, err := a.Accept()
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	defer sess.Close()
	if sess.Role != session.RoleReceive {
		t.Fatalf("unexpected role %v", sess.Role)
	}
	sess.Receiver.SetTimeout(2 * time.Second)

	buf := make([]byte, frame.MTU)
	total := 0
	for total < cfg.PayloadSize {
		n, err := sess.Receiver.Recv(buf)
		if err != nil {
			t.Fatalf("recv: %v", err)
		}
		total += n
	}
	if total != frame.MTU+120 {
		t.Fatalf("unexpected first transfer size %d", total)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatalf("runSend did not stop on cancel")
	}
}

func TestRunDemoReturnsWhenDialFails(t *testing.T) {
	testlog.Start(t)
	cfg := config.DefaultNodeConfig()
	cfg.Mode = config.ModeDemo
	cfg.Server.ListenAddr = "127.0.0.1:0"
	cfg.LocalAddr = "256.0.0.1:0"

	done := make(chan error, 1)
	go func() {
		done <- runDemo(context.Background(), cfg)
	}()
	select {
	case err := <-done:
		if !errors.Is(err, protocol.ErrAddressUnavailable) {
			t.Fatalf("expected ErrAddressUnavailable, got %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("runDemo did not return after the sender failed")
	}
}

func TestRunSendKeepsGoingAfterFailedSend(t *testing.T) {
	testlog.Start(t)
	var seen atomic.Int64
	peer := udptest.NewPeer(t, func(int, []byte) []byte {
		if seen.Add(1) == 1 {
			return []byte{frame.Ack}
		}
		return nil
	})

	cfg := config.DefaultNodeConfig()
	cfg.LocalAddr = "127.0.0.1:0"
	cfg.PayloadSize = 10
	cfg.Server.Session.HandshakeWait = 50 * time.Millisecond
	cfg.Server.Session.RetryCount = 2

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- runSend(ctx, cfg, peer.Addr().String(), true)
	}()

	// hello, two failed sends of two transmissions each, then a third send
	if !peer.WaitReceived(6, 2*time.Second) {
		t.Fatalf("send loop stopped after a failed send: datagrams=%d", peer.Received())
	}
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("runSend did not stop on cancel")
	}
}
