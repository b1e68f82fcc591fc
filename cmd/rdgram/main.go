package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/danmuck/rdgram/internal/config"
	"github.com/danmuck/rdgram/internal/logging"
	"github.com/danmuck/rdgram/internal/protocol/frame"
	"github.com/danmuck/rdgram/internal/protocol/session"
	"github.com/danmuck/rdgram/internal/server"
	"github.com/rs/zerolog/log"
)

func main() {
	path := flag.String("config", "", "config path (defaults apply when empty)")
	mode := flag.String("mode", "", "run mode: serve|send|recv|demo (overrides config)")
	debug := flag.Bool("debug", false, "force debug logging")
	flag.Parse()

	logging.ConfigureRuntime()
	cfg, err := resolveConfig(*path, *mode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rdgram: %v\n", err)
		os.Exit(2)
	}
	if *debug {
		logging.SetLevel("debug")
	} else if cfg.LogLevel != "" && os.Getenv(logging.EnvLogLevel) == "" {
		logging.SetLevel(cfg.LogLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "rdgram: %v\n", err)
		os.Exit(1)
	}
}

// resolveConfig loads path when set and applies the mode flag on top.
func resolveConfig(path, mode string) (config.NodeConfig, error) {
	cfg := config.DefaultNodeConfig()
	if strings.TrimSpace(path) != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return config.NodeConfig{}, err
		}
		cfg = loaded
	}
	if m := strings.ToLower(strings.TrimSpace(mode)); m != "" {
		cfg.Mode = config.Mode(m)
	}
	if err := config.Validate(cfg); err != nil {
		return config.NodeConfig{}, err
	}
	return cfg, nil
}

func run(ctx context.Context, cfg config.NodeConfig) error {
	log.Info().Str("mode", string(cfg.Mode)).Msg("rdgram: starting")
	switch cfg.Mode {
	case config.ModeServe:
		return server.New(cfg.Server).Run(ctx)
	case config.ModeSend:
		return runSend(ctx, cfg, cfg.RemoteAddr, false)
	case config.ModeRecv:
		return runRecv(ctx, cfg)
	case config.ModeDemo:
		return runDemo(ctx, cfg)
	default:
		return fmt.Errorf("unknown mode: %q", cfg.Mode)
	}
}

// runDemo hosts an acceptor and feeds it from a local sender until ctx ends.
// Failed sends are logged and retried; a failed dial stops the demo.
func runDemo(ctx context.Context, cfg config.NodeConfig) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	srv := server.New(cfg.Server)
	if err := srv.Listen(); err != nil {
		return err
	}
	served := make(chan error, 1)
	go func() {
		served <- srv.Serve(ctx)
	}()
	if strings.TrimSpace(cfg.Server.AdminAddr) != "" {
		go func() {
			if err := srv.ServeAdmin(ctx); err != nil {
				log.Error().Err(err).Msg("rdgram: admin stopped")
			}
		}()
	}

	sendErr := runSend(ctx, cfg, srv.Addr().String(), true)
	cancel()
	if err := <-served; err != nil {
		return err
	}
	return sendErr
}

// runSend dials remote and pushes cfg.PayloadSize bytes every
// cfg.SendInterval. With keepGoing a failed Send is logged and the loop
// continues; otherwise it ends the run.
func runSend(ctx context.Context, cfg config.NodeConfig, remote string, keepGoing bool) error {
	snd, err := session.NewDialer(cfg.Server.Session).DialSender(ctx, cfg.LocalAddr, remote)
	if err != nil {
		return err
	}
	defer snd.Close()
	log.Info().Str("peer", snd.Session().PeerAddr().String()).Msg("rdgram: sender established")

	payload := make([]byte, max(cfg.PayloadSize, 0))
	retry := cfg.Server.Session.RetryCount
	for ctx.Err() == nil {
		n, err := snd.Send(payload, retry)
		switch {
		case err == nil:
			log.Debug().Int("len", n).Msg("rdgram: sent")
		case ctx.Err() != nil:
			return ctx.Err()
		case keepGoing:
			log.Warn().Err(err).Msg("rdgram: send failed")
		default:
			return err
		}
		if !sleepCtx(ctx, cfg.SendInterval) {
			break
		}
	}
	return ctx.Err()
}

func runRecv(ctx context.Context, cfg config.NodeConfig) error {
	rcv, err := session.NewDialer(cfg.Server.Session).DialReceiver(ctx, cfg.LocalAddr, cfg.RemoteAddr)
	if err != nil {
		return err
	}
	defer rcv.Close()
	stop := context.AfterFunc(ctx, func() { _ = rcv.Close() })
	defer stop()
	log.Info().Str("peer", rcv.Session().PeerAddr().String()).Msg("rdgram: receiver established")

	// Recv blocks until data or ctx closes the channel.
	rcv.SetTimeout(0)
	buf := make([]byte, frame.MTU)
	for {
		n, err := rcv.Recv(buf)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		log.Info().Int("len", n).Msg("rdgram: received")
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
