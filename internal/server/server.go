// Package server drives a rendezvous acceptor: one goroutine per accepted
// session, plus an admin HTTP surface for health, sessions and metrics.
package server

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/rdgram/internal/observability"
	"github.com/danmuck/rdgram/internal/protocol/channel"
	"github.com/danmuck/rdgram/internal/protocol/frame"
	"github.com/danmuck/rdgram/internal/protocol/session"
	"github.com/danmuck/rdgram/internal/rendezvous"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

var ErrNotListening = errors.New("server: not listening")

// Config configures the dispatch loop and the admin surface.
type Config struct {
	Name        string
	ListenAddr  string
	AdminAddr   string
	CorsOrigins []string
	Session     session.Config
	// PayloadSize is what accepted send-role sessions push to their peer.
	PayloadSize int
	// SendInterval repeats the push; zero sends once and closes the session.
	SendInterval time.Duration
	// IdleTimeout closes receive-role sessions that see no data; zero keeps
	// them until shutdown.
	IdleTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Name:        "rdgram",
		ListenAddr:  "localhost:9000",
		CorsOrigins: []string{"http://localhost:3000"},
		Session:     session.DefaultConfig(),
		PayloadSize: 100,
	}
}

// Server owns the acceptor and every session it hands out.
type Server struct {
	cfg      Config
	registry *Registry
	router   *gin.Engine
	started  time.Time

	mu       sync.Mutex
	acceptor *rendezvous.Acceptor
	wg       sync.WaitGroup

	acceptErrors atomic.Uint64
	rngMu        sync.Mutex
	rng          *rand.Rand
}

func New(cfg Config) *Server {
	cfg.Session = cfg.Session.WithDefaults()
	if strings.TrimSpace(cfg.Name) == "" {
		cfg.Name = "rdgram"
	}
	s := &Server{
		cfg:      cfg,
		registry: NewRegistry(),
		started:  time.Now(),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	s.router = s.newRouter()
	return s
}

func (s *Server) Registry() *Registry {
	return s.registry
}

func (s *Server) Router() *gin.Engine {
	return s.router
}

// Listen binds the rendezvous channel.
func (s *Server) Listen() error {
	a, err := rendezvous.Listen(s.cfg.ListenAddr, s.cfg.Session)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.acceptor = a
	s.mu.Unlock()
	log.Info().Str("addr", a.Addr().String()).Msg("server: rendezvous listening")
	return nil
}

// Addr is the bound rendezvous address, or nil before Listen.
func (s *Server) Addr() *net.UDPAddr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.acceptor == nil {
		return nil
	}
	return s.acceptor.Addr()
}

// Run binds, starts the admin surface when configured, and serves until ctx
// is cancelled.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	adminErr := make(chan error, 1)
	if strings.TrimSpace(s.cfg.AdminAddr) != "" {
		go func() {
			adminErr <- s.ServeAdmin(ctx)
		}()
	}
	if err := s.Serve(ctx); err != nil {
		return err
	}
	select {
	case err := <-adminErr:
		return err
	default:
		return nil
	}
}

// Serve runs the accept loop until ctx is cancelled. Accept calls are
// serialized here; each established session is driven on its own goroutine.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	a := s.acceptor
	s.mu.Unlock()
	if a == nil {
		return ErrNotListening
	}

	stop := context.AfterFunc(ctx, func() { _ = a.Close() })
	defer stop()
	defer s.wg.Wait()

	var failures int
	for {
		sess, err := a.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			failures++
			s.acceptErrors.Add(1)
			log.Error().Err(err).Int("failures", failures).Msg("server: accept failed")
			if !s.pauseAfterAcceptError(ctx, failures) {
				return nil
			}
			continue
		}
		failures = 0
		if !sess.Established() {
			continue
		}
		e := s.registry.add(sess, time.Now())
		s.wg.Add(1)
		go s.drive(ctx, sess, e)
	}
}

// pauseAfterAcceptError backs off before the next Accept. It reports false
// when ctx ends first.
func (s *Server) pauseAfterAcceptError(ctx context.Context, failures int) bool {
	s.rngMu.Lock()
	delay := session.NextBackoffDelay(s.cfg.Session.Backoff, failures, s.rng)
	s.rngMu.Unlock()
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// AcceptErrors counts failed Accept calls since New.
func (s *Server) AcceptErrors() uint64 {
	return s.acceptErrors.Load()
}

func (s *Server) drive(ctx context.Context, sess session.Session, e *entry) {
	defer s.wg.Done()
	observability.SessionOpened()
	release := context.AfterFunc(ctx, func() { _ = sess.Close() })
	defer func() {
		release()
		_ = sess.Close()
		s.registry.remove(e.info.ID)
		observability.SessionClosed()
		log.Debug().Uint64("session", e.info.ID).Msg("server: session closed")
	}()

	switch sess.Role {
	case session.RoleReceive:
		s.driveReceive(ctx, sess.Receiver, e)
	case session.RoleSend:
		s.driveSend(ctx, sess.Sender, e)
	}
}

func (s *Server) driveReceive(ctx context.Context, r *session.Receiver, e *entry) {
	if s.cfg.IdleTimeout > 0 {
		r.SetTimeout(s.cfg.IdleTimeout)
	}
	buf := make([]byte, frame.MTU)
	for ctx.Err() == nil {
		n, err := r.Recv(buf)
		if err != nil {
			if channel.IsTimeout(err) {
				log.Info().Uint64("session", e.info.ID).Msg("server: receive session idle")
				return
			}
			if ctx.Err() == nil {
				e.fail(err)
				log.Warn().Uint64("session", e.info.ID).Err(err).Msg("server: recv failed")
			}
			return
		}
		e.record(n)
		log.Debug().Uint64("session", e.info.ID).Int("len", n).Msg("server: recv")
	}
}

func (s *Server) driveSend(ctx context.Context, snd *session.Sender, e *entry) {
	payload := make([]byte, max(s.cfg.PayloadSize, 0))
	for {
		n, err := snd.Send(payload, s.cfg.Session.RetryCount)
		if err != nil {
			if ctx.Err() == nil {
				e.fail(err)
				log.Warn().Uint64("session", e.info.ID).Err(err).Msg("server: send failed")
			}
			return
		}
		e.record(n)
		log.Debug().Uint64("session", e.info.ID).Int("len", n).Msg("server: sent")
		if s.cfg.SendInterval <= 0 {
			return
		}
		timer := time.NewTimer(s.cfg.SendInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// ServeAdmin serves the admin router on cfg.AdminAddr until ctx is cancelled.
func (s *Server) ServeAdmin(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.AdminAddr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	stop := context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	})
	defer stop()

	log.Info().Str("addr", s.cfg.AdminAddr).Msg("server: admin listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
