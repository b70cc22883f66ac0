package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/danmuck/cardtable/internal/cards"
	"github.com/danmuck/cardtable/internal/game"
	"github.com/danmuck/cardtable/internal/observability"
	"github.com/danmuck/cardtable/internal/protocol"
	"github.com/danmuck/cardtable/internal/protocol/session"
	"github.com/danmuck/cardtable/internal/registry"
	"github.com/rs/zerolog/log"
)

// DefaultRetention is how long an offline session is kept for a rejoin.
const DefaultRetention = 2 * time.Minute

// Card server configuration.
type ServiceConfig struct {
	ListenAddr      string
	AdminListenAddr string
	NodeName        string
	Retention       time.Duration
	ReapInterval    time.Duration
	Game            game.Config
	Session         session.Config
}

func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		ListenAddr:      ":7777",
		AdminListenAddr: "",
		NodeName:        "cardserver",
		Retention:       DefaultRetention,
		ReapInterval:    10 * time.Second,
		Game:            game.DefaultConfig(),
		Session:         session.DefaultConfig(),
	}
}

// Service owns the listener, the registry, the game engine and every
// connection handler.
type Service struct {
	cfg    ServiceConfig
	reg    *registry.Registry
	engine *game.Engine
	bcast  *Broadcaster

	connsMu sync.Mutex
	conns   map[net.Conn]struct{}
	wg      sync.WaitGroup

	clients atomic.Int64
	started time.Time
}

func NewService() *Service {
	return NewServiceWithConfig(DefaultServiceConfig())
}

func NewServiceWithConfig(cfg ServiceConfig) *Service {
	def := DefaultServiceConfig()
	if strings.TrimSpace(cfg.ListenAddr) == "" {
		cfg.ListenAddr = def.ListenAddr
	}
	if strings.TrimSpace(cfg.NodeName) == "" {
		cfg.NodeName = def.NodeName
	}
	if cfg.Retention <= 0 {
		cfg.Retention = def.Retention
	}
	if cfg.ReapInterval <= 0 {
		cfg.ReapInterval = def.ReapInterval
	}
	cfg.Session = cfg.Session.WithDefaults()

	gen := cards.NewGenerator()
	reg := registry.New(gen, cfg.Session.LockTimeout)
	bcast := NewBroadcaster(reg)
	return &Service{
		cfg:     cfg,
		reg:     reg,
		engine:  game.New(reg, gen, bcast, cfg.Game),
		bcast:   bcast,
		conns:   make(map[net.Conn]struct{}),
		started: time.Now(),
	}
}

func (s *Service) Registry() *registry.Registry {
	return s.reg
}

func (s *Service) Engine() *game.Engine {
	return s.engine
}

// Run binds the configured listeners and serves until SIGINT or SIGTERM.
// Listener failures are returned before anything is started.
func (s *Service) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", s.cfg.ListenAddr, err)
	}
	var adminLn net.Listener
	if addr := strings.TrimSpace(s.cfg.AdminListenAddr); addr != "" {
		adminLn, err = net.Listen("tcp", addr)
		if err != nil {
			_ = ln.Close()
			return fmt.Errorf("server: admin listen %s: %w", addr, err)
		}
	}
	log.Info().Str("addr", ln.Addr().String()).Str("node", s.cfg.NodeName).Msg("card server listening")

	adminErr := make(chan error, 1)
	if adminLn != nil {
		go func() {
			adminErr <- s.ServeAdmin(ctx, adminLn)
		}()
	}
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.Serve(ctx, ln)
	}()
	select {
	case err := <-serveErr:
		return err
	case err := <-adminErr:
		if err != nil {
			stop()
			<-serveErr
			return err
		}
		return <-serveErr
	}
}

// Serve accepts player connections on ln until ctx ends, then ends every
// session and waits, bounded by the close timeout, for handlers to finish.
func (s *Service) Serve(ctx context.Context, ln net.Listener) error {
	defer ln.Close()
	stopListener := context.AfterFunc(ctx, func() {
		_ = ln.Close()
	})
	defer stopListener()

	reapCtx, stopReaper := context.WithCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.reap(reapCtx)
	}()

	var acceptErr error
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, net.ErrClosed) {
				acceptErr = err
			}
			break
		}
		s.trackConn(conn)
		s.wg.Add(1)
		go s.handleConn(ctx, conn)
	}
	stopReaper()
	s.shutdown()
	return acceptErr
}

func (s *Service) shutdown() {
	n := s.bcast.Broadcast(game.All, protocol.ConnectionEnd{Reason: "server shutdown"})
	log.Info().Int("notified", n).Msg("card server shutting down")
	if !s.waitHandlers(s.cfg.Session.CloseTimeout) {
		log.Warn().Msg("handlers still running after close timeout, forcing connections closed")
		s.closeAllConns()
		_ = s.reg.CloseAll(time.Now())
		s.waitHandlers(s.cfg.Session.CloseTimeout)
	}
}

func (s *Service) waitHandlers(d time.Duration) bool {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(d):
		return false
	}
}

// handleConn runs the join handshake and then the per-connection receive
// loop. Packets from one connection are handled strictly in order.
func (s *Service) handleConn(ctx context.Context, conn net.Conn) {
	defer s.wg.Done()
	defer s.untrackConn(conn)
	defer conn.Close()
	remote := conn.RemoteAddr().String()
	observability.ConnectionOpened()
	active := s.clients.Add(1)
	log.Debug().Str("remote", remote).Int64("active_clients", active).Msg("client connected")
	defer func() {
		observability.ConnectionClosed()
		remaining := s.clients.Add(-1)
		log.Debug().Str("remote", remote).Int64("active_clients", remaining).Msg("client disconnected")
	}()

	pc := protocol.NewConn(conn, s.cfg.Session.HandshakeTimeout, s.cfg.Session.WriteTimeout)
	link, player, ok := s.handshake(ctx, pc)
	if !ok {
		return
	}
	defer link.Close()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		link.run()
	}()
	logger := log.With().Uint32("player_id", player.ID).Str("remote", remote).Logger()

	pc.SetReadTimeout(s.cfg.Session.SessionDeadAfter)
	for {
		pkt, err := pc.Receive(context.Background())
		if err != nil {
			switch {
			case protocol.KindOf(err) != protocol.KindSocketFailed:
				logger.Warn().Err(err).Msg("malformed packet, closing connection")
			case protocol.IsTimeout(err):
				logger.Info().Dur("dead_after", s.cfg.Session.SessionDeadAfter).Msg("session went silent, disconnecting")
			default:
				logger.Debug().Err(err).Msg("connection lost")
			}
			s.disconnect(player.ID, link)
			return
		}
		observability.RecordPacket("in", pkt.Type().String())

		switch p := pkt.(type) {
		case protocol.ActionUpdate:
			if err := s.engine.Act(player.ID, p); err != nil && !errors.Is(err, game.ErrRejected) {
				logger.Error().Err(err).Msg("action failed")
			}
		case protocol.ChatMessage:
			from := player.ID
			p.From = &from
			s.bcast.Broadcast(game.All, p)
		case protocol.StartGame:
			if err := s.engine.Start(player.ID); err != nil && !errors.Is(err, game.ErrRejected) {
				logger.Error().Err(err).Msg("start failed")
			}
		case protocol.Heartbeat:
		case protocol.ConnectionEnd:
			if p.Abandon {
				if err := s.engine.Abandon(player.ID); err != nil {
					logger.Error().Err(err).Msg("abandon failed")
				}
			} else {
				s.disconnect(player.ID, link)
			}
			logger.Debug().Bool("abandon", p.Abandon).Str("reason", p.Reason).Msg("client ended session")
			return
		case protocol.Unsupported:
			logger.Warn().Uint16("tag", uint16(p.Tag)).Msg("skipping unsupported packet")
		default:
			logger.Warn().Str("type", pkt.Type().String()).Msg("skipping unexpected packet")
		}
	}
}

// handshake reads the Join, admits the player through the engine and
// answers rejections directly on the connection.
func (s *Service) handshake(ctx context.Context, pc *protocol.Conn) (*peerLink, registry.Player, bool) {
	hsCtx, cancel := context.WithTimeout(ctx, s.cfg.Session.HandshakeTimeout)
	defer cancel()
	join, err := protocol.ReceiveAs[protocol.Join](hsCtx, pc)
	if err != nil {
		log.Debug().Err(err).Str("remote", pc.RemoteAddr()).Msg("join handshake failed")
		if protocol.KindOf(err) == protocol.KindDeserializationFailed {
			_ = pc.Send(hsCtx, protocol.RejectJoin(protocol.JoinInvalid))
		}
		return nil, registry.Player{}, false
	}

	link := newPeerLink(pc, s.cfg.Session.OutboundQueue, s.cfg.Session.HeartbeatInterval)
	var player registry.Player
	if join.Rejoin != nil {
		player, err = s.engine.Rejoin(*join.Rejoin, link)
	} else {
		player, _, err = s.engine.Join(join, link)
	}
	if err != nil {
		reason := joinReason(err)
		log.Info().Err(err).Str("remote", pc.RemoteAddr()).Str("reason", string(reason)).Msg("join rejected")
		if sendErr := pc.Send(hsCtx, protocol.RejectJoin(reason)); sendErr != nil {
			log.Debug().Err(sendErr).Msg("join rejection not delivered")
		}
		return nil, registry.Player{}, false
	}
	return link, player, true
}

func (s *Service) disconnect(id uint32, link *peerLink) {
	if err := s.engine.Disconnect(id, link); err != nil {
		log.Error().Err(err).Uint32("player_id", id).Msg("disconnect failed")
	}
}

func joinReason(err error) protocol.JoinReason {
	switch {
	case errors.Is(err, registry.ErrGameInProgress):
		return protocol.JoinGameInProgress
	case errors.Is(err, registry.ErrInvalidCredentials):
		return protocol.JoinInvalidCredentials
	case errors.Is(err, registry.ErrInvalidJoin):
		return protocol.JoinInvalid
	default:
		return protocol.JoinServerBusy
	}
}

// reap abandons sessions that stayed offline past the retention window.
func (s *Service) reap(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.ReapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.reapExpired(now)
		}
	}
}

func (s *Service) reapExpired(now time.Time) int {
	ids, err := s.reg.Expired(s.cfg.Retention, now)
	if err != nil {
		log.Error().Err(err).Msg("retention scan failed")
		return 0
	}
	for _, id := range ids {
		if err := s.engine.Abandon(id); err != nil && !errors.Is(err, registry.ErrUnknownPlayer) {
			log.Error().Err(err).Uint32("player_id", id).Msg("retention abandon failed")
			continue
		}
		log.Info().Uint32("player_id", id).Dur("retention", s.cfg.Retention).Msg("offline session expired")
	}
	return len(ids)
}

// ServeAdmin serves the admin HTTP routes on ln until ctx ends.
func (s *Service) ServeAdmin(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.AdminRouter(),
		ReadHeaderTimeout: s.cfg.Session.HandshakeTimeout,
	}
	stop := context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Session.CloseTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	})
	defer stop()
	log.Info().Str("addr", ln.Addr().String()).Msg("admin http listening")
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Service) trackConn(conn net.Conn) {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	s.conns[conn] = struct{}{}
}

func (s *Service) untrackConn(conn net.Conn) {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	delete(s.conns, conn)
}

func (s *Service) closeAllConns() {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	for conn := range s.conns {
		_ = conn.Close()
		delete(s.conns, conn)
	}
}
