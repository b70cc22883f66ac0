package client

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/cardtable/internal/cards"
	"github.com/danmuck/cardtable/internal/protocol"
	"github.com/danmuck/cardtable/internal/protocol/session"
	"github.com/rs/zerolog/log"
)

var (
	ErrAddressRequired = errors.New("client: server address required")
	ErrNameRequired    = errors.New("client: player name required")
	ErrJoinRejected    = errors.New("client: join rejected")
	ErrNotConnected    = errors.New("client: not connected")
	ErrSessionClosed   = errors.New("client: session closed")
	ErrServerEnded     = errors.New("client: server ended the session")
)

// JoinError carries the reason the server gave for refusing a join.
type JoinError struct {
	Reason protocol.JoinReason
}

func (e *JoinError) Error() string {
	return fmt.Sprintf("client: join rejected: %s", e.Reason)
}

func (e *JoinError) Is(target error) bool {
	return target == ErrJoinRejected
}

type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateAwaitingJoinStatus
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAwaitingJoinStatus:
		return "awaiting_join_status"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

type Config struct {
	Address         string
	Name            string
	Personalization protocol.Personalization
	// Credentials, when set, resume a previous identity instead of joining
	// as a new player.
	Credentials        *protocol.Credentials
	Session            session.Config
	MaxConnectAttempts int
	Resolver           *net.Resolver
}

func DefaultConfig() Config {
	return Config{
		Session:            session.DefaultConfig(),
		MaxConnectAttempts: 5,
	}
}

// Session is one player's connection to a card server. Events are delivered
// to the Handler from a single receive loop in arrival order.
type Session struct {
	cfg     Config
	handler Handler
	rng     *rand.Rand

	state   atomic.Int32
	running atomic.Bool

	mu    sync.Mutex
	conn  *protocol.Conn
	creds *protocol.Credentials
	done  chan struct{}

	closing   chan struct{}
	closeOnce sync.Once
}

func New(cfg Config, h Handler) (*Session, error) {
	if strings.TrimSpace(cfg.Address) == "" {
		return nil, ErrAddressRequired
	}
	if strings.TrimSpace(cfg.Name) == "" {
		return nil, ErrNameRequired
	}
	if h == nil {
		h = NopHandler{}
	}
	if cfg.Resolver == nil {
		cfg.Resolver = net.DefaultResolver
	}
	cfg.Session = cfg.Session.WithDefaults()
	s := &Session{
		cfg:     cfg,
		handler: h,
		closing: make(chan struct{}),
		rng:     rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x636c69656e74)),
	}
	if cfg.Credentials != nil {
		creds := *cfg.Credentials
		s.creds = &creds
	}
	return s, nil
}

func (s *Session) State() State {
	return State(s.state.Load())
}

// Credentials returns the id and access code needed to rejoin later.
func (s *Session) Credentials() (protocol.Credentials, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.creds == nil {
		return protocol.Credentials{}, false
	}
	return *s.creds, true
}

// Connect dials the server, retrying with backoff, and performs the join
// handshake. A refused join is returned as a *JoinError and is not retried.
// Close aborts a Connect in progress.
func (s *Session) Connect(ctx context.Context) error {
	if !s.state.CompareAndSwap(int32(StateDisconnected), int32(StateConnecting)) {
		return fmt.Errorf("client: connect from state %s", s.State())
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.closing:
			cancel()
		case <-ctx.Done():
		}
	}()

	attempt := 0
	for {
		attempt++
		raw, err := s.dial(ctx)
		if err == nil {
			var pc *protocol.Conn
			pc, err = s.join(ctx, raw)
			if err == nil {
				err = s.start(pc)
				if err == nil {
					return nil
				}
			}
			_ = raw.Close()
		}
		if s.State() == StateClosed {
			return closedDuring(err)
		}
		log.Warn().Err(err).Int("attempt", attempt).Str("addr", s.cfg.Address).Msg("connect attempt failed")
		if errors.Is(err, ErrJoinRejected) || !s.shouldRetry(attempt) {
			s.state.CompareAndSwap(int32(StateAwaitingJoinStatus), int32(StateDisconnected))
			s.state.CompareAndSwap(int32(StateConnecting), int32(StateDisconnected))
			return err
		}
		s.state.CompareAndSwap(int32(StateAwaitingJoinStatus), int32(StateConnecting))
		if err := session.SleepBackoff(ctx, s.cfg.Session.Backoff, attempt, s.rng); err != nil {
			if !s.state.CompareAndSwap(int32(StateConnecting), int32(StateDisconnected)) {
				return closedDuring(err)
			}
			return err
		}
	}
}

func closedDuring(err error) error {
	if errors.Is(err, ErrSessionClosed) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrSessionClosed, err)
}

func (s *Session) shouldRetry(attempt int) bool {
	if s.cfg.MaxConnectAttempts <= 0 {
		return true
	}
	return attempt < s.cfg.MaxConnectAttempts
}

// dial resolves the address, literal or by name, and connects to the first
// reachable result.
func (s *Session) dial(ctx context.Context) (net.Conn, error) {
	host, port, err := net.SplitHostPort(s.cfg.Address)
	if err != nil {
		return nil, err
	}
	addrs := []string{host}
	if net.ParseIP(host) == nil {
		lookupCtx, cancel := context.WithTimeout(ctx, s.cfg.Session.ConnectTimeout)
		addrs, err = s.cfg.Resolver.LookupHost(lookupCtx, host)
		cancel()
		if err != nil {
			return nil, err
		}
	}
	dialer := net.Dialer{Timeout: s.cfg.Session.ConnectTimeout}
	var lastErr error
	for _, addr := range addrs {
		conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(addr, port))
		if err == nil {
			return conn, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func (s *Session) join(ctx context.Context, raw net.Conn) (*protocol.Conn, error) {
	if !s.state.CompareAndSwap(int32(StateConnecting), int32(StateAwaitingJoinStatus)) {
		return nil, ErrSessionClosed
	}
	pc := protocol.NewConn(raw, s.cfg.Session.HandshakeTimeout, s.cfg.Session.WriteTimeout)
	hsCtx, cancel := context.WithTimeout(ctx, s.cfg.Session.HandshakeTimeout)
	defer cancel()

	req := protocol.Join{Name: s.cfg.Name, Personalization: s.cfg.Personalization}
	if creds, ok := s.Credentials(); ok {
		req.Rejoin = &creds
	}
	if err := pc.Send(hsCtx, req); err != nil {
		return nil, err
	}
	status, err := protocol.ReceiveAs[protocol.JoinStatus](hsCtx, pc)
	if err != nil {
		return nil, err
	}
	if !status.Accepted {
		return nil, &JoinError{Reason: status.Reason}
	}
	s.mu.Lock()
	creds := *status.Credentials
	s.creds = &creds
	s.mu.Unlock()
	log.Info().Uint32("player_id", creds.PlayerID).Bool("rejoin", req.Rejoin != nil).Msg("joined card server")
	return pc, nil
}

// start publishes pc and launches the receive loop unless Close won the race
// for the state.
func (s *Session) start(pc *protocol.Conn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.state.CompareAndSwap(int32(StateAwaitingJoinStatus), int32(StateConnected)) {
		return ErrSessionClosed
	}
	pc.SetReadTimeout(s.cfg.Session.SessionDeadAfter)
	done := make(chan struct{})
	s.conn = pc
	s.done = done
	s.running.Store(true)
	go s.receiveLoop(pc, done)
	return nil
}

// receiveLoop is the only reader of pc.
func (s *Session) receiveLoop(pc *protocol.Conn, done chan struct{}) {
	var cause error
	for s.running.Load() {
		pkt, err := pc.Receive(context.Background())
		if err != nil {
			if s.running.Load() {
				cause = err
			}
			break
		}
		if end, ok := pkt.(protocol.ConnectionEnd); ok {
			cause = fmt.Errorf("%w: %s", ErrServerEnded, end.Reason)
			break
		}
		s.dispatch(pc, pkt)
	}
	s.running.Store(false)
	s.state.Store(int32(StateClosed))
	_ = pc.Close()
	close(done)
	s.handler.OnClosed(cause)
}

func (s *Session) dispatch(pc *protocol.Conn, pkt protocol.Packet) {
	switch p := pkt.(type) {
	case protocol.ChatMessage:
		s.handler.OnChat(p)
	case protocol.NewPlayerData:
		s.handler.OnPlayerJoined(p.Player)
	case protocol.PlayerUpdate:
		s.handler.OnPlayers(p)
	case protocol.CardsUpdate:
		s.handler.OnHand(p.Hand)
	case protocol.TurnUpdate:
		s.handler.OnTurn(p)
	case protocol.GameMessage:
		s.handler.OnGameMessage(p)
	case protocol.GameEnd:
		s.handler.OnGameEnd(p)
	case protocol.Heartbeat:
		if err := pc.Send(context.Background(), protocol.Heartbeat{}); err != nil {
			log.Debug().Err(err).Msg("heartbeat reply failed")
		}
	case protocol.Unsupported:
		log.Warn().Uint16("tag", uint16(p.Tag)).Msg("skipping unsupported packet")
	default:
		log.Warn().Str("type", pkt.Type().String()).Msg("skipping unexpected packet")
	}
}

func (s *Session) send(p protocol.Packet) error {
	s.mu.Lock()
	pc := s.conn
	s.mu.Unlock()
	switch {
	case s.State() == StateClosed:
		return ErrSessionClosed
	case pc == nil:
		return ErrNotConnected
	case s.State() != StateConnected:
		return ErrSessionClosed
	}
	return pc.Send(context.Background(), p)
}

func (s *Session) SendChat(text string) error {
	return s.send(protocol.ChatMessage{Text: text})
}

// PlayCard plays cardID. chosen is required for special cards.
func (s *Session) PlayCard(cardID uint32, chosen *cards.Color) error {
	return s.send(protocol.PlayAction(cardID, chosen))
}

func (s *Session) Draw() error {
	return s.send(protocol.DrawAction())
}

func (s *Session) Pass() error {
	return s.send(protocol.PassAction())
}

func (s *Session) CallBluff() error {
	return s.send(protocol.CallBluffAction())
}

// Act sends a prepared turn action.
func (s *Session) Act(a protocol.ActionUpdate) error {
	if err := a.Validate(); err != nil {
		return err
	}
	return s.send(a)
}

func (s *Session) StartGame() error {
	return s.send(protocol.StartGame{})
}

// Leave gives up this identity for good and closes the session.
func (s *Session) Leave() error {
	err := s.end(protocol.ConnectionEnd{Reason: "player left", Abandon: true})
	s.mu.Lock()
	s.creds = nil
	s.mu.Unlock()
	return err
}

// Close ends the session but keeps the identity on the server for a rejoin.
// It is safe to call more than once.
func (s *Session) Close() error {
	return s.end(protocol.ConnectionEnd{Reason: "client closed"})
}

func (s *Session) end(notice protocol.ConnectionEnd) error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closing)
		s.mu.Lock()
		prev := State(s.state.Swap(int32(StateClosed)))
		s.running.Store(false)
		pc := s.conn
		done := s.done
		s.mu.Unlock()
		if pc == nil {
			return
		}
		if prev == StateConnected {
			if sendErr := pc.Send(context.Background(), notice); sendErr != nil {
				log.Debug().Err(sendErr).Msg("connection end not delivered")
			}
		}
		err = pc.Close()
		if errors.Is(err, net.ErrClosed) {
			err = nil
		}
		select {
		case <-done:
		case <-time.After(s.cfg.Session.CloseTimeout):
			log.Warn().Dur("timeout", s.cfg.Session.CloseTimeout).Msg("receive loop did not stop in time")
		}
	})
	return err
}
