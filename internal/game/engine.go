package game

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/danmuck/cardtable/internal/cards"
	"github.com/danmuck/cardtable/internal/observability"
	"github.com/danmuck/cardtable/internal/protocol"
	"github.com/danmuck/cardtable/internal/registry"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type Config struct {
	// MinPlayers is the online count needed before the host may start.
	MinPlayers int
	// AutoStartPlayers starts a match as soon as this many players are
	// online. Zero disables it.
	AutoStartPlayers int
}

func DefaultConfig() Config {
	return Config{MinPlayers: 2}
}

// Engine is the authoritative rule engine and the front door of the
// registry. Every mutation runs under one mutex.
type Engine struct {
	mu  sync.Mutex
	reg *registry.Registry
	gen *cards.Generator
	out Emitter
	cfg Config

	newMatchID func() string
	now        func() time.Time

	phase     Phase
	m         *match
	startedAt time.Time
	changed   map[uint32]struct{}
}

func New(reg *registry.Registry, gen *cards.Generator, out Emitter, cfg Config) *Engine {
	if gen == nil {
		gen = cards.NewGenerator()
	}
	if cfg.MinPlayers < 2 {
		cfg.MinPlayers = 2
	}
	return &Engine{
		reg:        reg,
		gen:        gen,
		out:        out,
		cfg:        cfg,
		newMatchID: func() string { return uuid.NewString() },
		now:        time.Now,
		phase:      PhaseWaiting,
		changed:    make(map[uint32]struct{}),
	}
}

func (e *Engine) Phase() Phase {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phase
}

// Join admits a new player. The registry queues the accepted JoinStatus on
// link, so the hand and roster follow it.
func (e *Engine) Join(req protocol.Join, link registry.Link) (registry.Player, uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.phase == PhaseInProgress {
		observability.RecordJoin("new", "game_in_progress")
		return registry.Player{}, 0, registry.ErrGameInProgress
	}
	p, code, err := e.reg.Join(req, link)
	if err != nil {
		observability.RecordJoin("new", "rejected")
		return registry.Player{}, 0, err
	}
	observability.RecordJoin("new", "accepted")
	log.Info().Uint32("player_id", p.ID).Str("name", p.Name).Msg("player joined")

	e.emitHandLocked(p.ID)
	e.emit(All, protocol.NewPlayerData{Player: p.Info()})
	e.emitRosterLocked()
	e.maybeAutoStartLocked()
	return p, code, nil
}

// Rejoin restores a retained identity. During a match only players dealt
// into it may come back.
func (e *Engine) Rejoin(creds protocol.Credentials, link registry.Link) (registry.Player, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.phase == PhaseInProgress && !e.m.has(creds.PlayerID) {
		observability.RecordJoin("rejoin", "game_in_progress")
		return registry.Player{}, registry.ErrGameInProgress
	}
	p, err := e.reg.Rejoin(creds, link)
	if err != nil {
		observability.RecordJoin("rejoin", "rejected")
		return registry.Player{}, err
	}
	observability.RecordJoin("rejoin", "accepted")
	log.Info().Uint32("player_id", p.ID).Msg("player rejoined")

	e.emitHandLocked(p.ID)
	e.emitRosterLocked()
	if e.m != nil {
		if err := e.skipOfflineLocked(); err != nil {
			return p, err
		}
		if err := e.flushLocked(); err != nil {
			return p, err
		}
	}
	return p, nil
}

// Abandon removes id for good, pulling it out of a running match.
func (e *Engine) Abandon(id uint32) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.reg.Abandon(id); err != nil {
		return err
	}
	log.Info().Uint32("player_id", id).Msg("player abandoned")
	if e.m != nil {
		if err := e.removeSeatLocked(id); err != nil {
			return err
		}
	}
	e.emitRosterLocked()
	return e.settleLocked()
}

// Disconnect marks id offline if link is still current. A disconnected turn
// holder loses the turn.
func (e *Engine) Disconnect(id uint32, link registry.Link) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	changed, err := e.reg.Disconnect(id, link, e.now())
	if err != nil || !changed {
		return err
	}
	log.Info().Uint32("player_id", id).Msg("player offline")
	e.emitRosterLocked()
	if e.m == nil || !e.m.has(id) {
		return nil
	}
	if e.m.currentID() == id {
		e.m.drawn = nil
		if err := e.skipOfflineLocked(); err != nil {
			return err
		}
	}
	return e.flushLocked()
}

// Start begins a match on behalf of id, who must be the host.
func (e *Engine) Start(id uint32) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	err := e.tryStartLocked(id)
	if err != nil {
		e.rejectedLocked(id, err)
	}
	return err
}

func (e *Engine) tryStartLocked(id uint32) error {
	if e.phase != PhaseWaiting {
		return reject(ReasonCannotStart, "a match is already running")
	}
	online, err := e.onlinePlayersLocked()
	if err != nil {
		return err
	}
	if len(online) < e.cfg.MinPlayers {
		return reject(ReasonCannotStart, "need %d players online, have %d", e.cfg.MinPlayers, len(online))
	}
	if online[0].ID != id {
		return reject(ReasonCannotStart, "only the host (player %d) can start", online[0].ID)
	}
	return e.startLocked(online)
}

func (e *Engine) maybeAutoStartLocked() {
	if e.cfg.AutoStartPlayers <= 0 || e.phase != PhaseWaiting {
		return
	}
	online, err := e.onlinePlayersLocked()
	if err != nil || len(online) < max(e.cfg.AutoStartPlayers, e.cfg.MinPlayers) {
		return
	}
	if err := e.startLocked(online); err != nil {
		log.Error().Err(err).Msg("auto start failed")
	}
}

func (e *Engine) startLocked(online []registry.Player) error {
	m := &match{
		id:    e.newMatchID(),
		names: make(map[uint32]string, len(online)),
		dir:   protocol.LeftToRight,
		table: e.gen.PickNormalRandom(),
	}
	for _, p := range online {
		m.seats = append(m.seats, seat{id: p.ID})
		m.names[p.ID] = p.Name
	}
	m.active = m.table.Color
	e.m = m
	e.phase = PhaseInProgress
	e.startedAt = e.now()
	observability.RecordMatchStarted()
	log.Info().Str("match_id", m.id).Int("players", len(m.seats)).Msg("match started")

	e.emitRosterLocked()
	e.emit(All, protocol.GameMessage{
		Level: protocol.LevelInfo,
		Text:  fmt.Sprintf("match started with %d players", len(m.seats)),
	})
	return e.flushLocked()
}

// Act applies one turn action from id. Rejections are reported to id only and
// returned as *Rejection.
func (e *Engine) Act(id uint32, a protocol.ActionUpdate) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	err := a.Validate()
	if err != nil {
		err = reject(ReasonInvalidAction, "malformed action")
	} else {
		switch a.Action {
		case protocol.ActionCallBluff:
			err = e.callBluffLocked(id)
		case protocol.ActionDraw:
			err = e.drawLocked(id)
		case protocol.ActionPlay:
			err = e.playLocked(id, *a.CardID, a.ChosenColor)
		case protocol.ActionPass:
			err = e.passLocked(id)
		}
	}
	if err != nil {
		e.rejectedLocked(id, err)
		return err
	}
	return e.settleLocked()
}

// settleLocked publishes the outcome of an accepted mutation and closes the
// match once it is decided.
func (e *Engine) settleLocked() error {
	if e.m == nil {
		return nil
	}
	if err := e.flushLocked(); err != nil {
		return err
	}
	if e.m.over {
		return e.endMatchLocked()
	}
	return nil
}

func (e *Engine) endMatchLocked() error {
	m := e.m
	e.phase = PhaseEnded
	e.emit(All, protocol.GameEnd{MatchID: m.id, Standings: slices.Clone(m.standings)})
	observability.RecordMatchEnded(e.now().Sub(e.startedAt))
	log.Info().Str("match_id", m.id).Int("ranked", len(m.standings)).Msg("match ended")

	e.m = nil
	e.phase = PhaseWaiting
	clear(e.changed)
	if err := e.reg.DealAll(); err != nil {
		return err
	}
	targets, err := e.reg.Online()
	if err != nil {
		return err
	}
	for _, t := range targets {
		e.emitHandLocked(t.ID)
	}
	e.emitRosterLocked()
	return nil
}

// State returns a snapshot for inspection.
func (e *Engine) State() TurnState {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := TurnState{Phase: e.phase.String()}
	m := e.m
	if m == nil || len(m.seats) == 0 {
		return st
	}
	st.MatchID = m.id
	for _, s := range m.seats {
		st.Order = append(st.Order, s.id)
		if s.finished {
			st.Finished = append(st.Finished, s.id)
		}
	}
	cur := m.currentID()
	table := m.table
	st.CurrentPlayer = &cur
	st.Direction = m.dir
	st.TableCard = &table
	st.ActiveColor = m.active
	st.PendingDraw = m.pending
	st.BluffCallable = m.bluff != nil && m.pending > 0
	st.Standings = slices.Clone(m.standings)
	return st
}

func (e *Engine) emit(to Target, p protocol.Packet) {
	if e.out != nil {
		e.out.Emit(to, p)
	}
}

func (e *Engine) rejectedLocked(id uint32, err error) {
	var r *Rejection
	if !errors.As(err, &r) {
		log.Error().Err(err).Uint32("player_id", id).Msg("game action failed")
		return
	}
	observability.RecordRejection(string(r.Reason))
	log.Debug().Uint32("player_id", id).Str("reason", string(r.Reason)).Msg(r.Text)
	e.emit(To(id), protocol.GameMessage{Level: protocol.LevelError, Reason: string(r.Reason), Text: r.Text})
}

func (e *Engine) infoLocked(format string, args ...any) {
	e.emit(All, protocol.GameMessage{Level: protocol.LevelInfo, Text: fmt.Sprintf(format, args...)})
}

func (e *Engine) emitHandLocked(id uint32) {
	hand, err := e.reg.Hand(id)
	if err != nil {
		log.Error().Err(err).Uint32("player_id", id).Msg("hand lookup failed")
		return
	}
	e.emit(To(id), protocol.CardsUpdate{Hand: hand})
}

func (e *Engine) emitRosterLocked() {
	players, err := e.reg.Snapshot()
	if err != nil {
		log.Error().Err(err).Msg("roster snapshot failed")
		return
	}
	infos := make([]protocol.PlayerInfo, 0, len(players))
	for _, p := range players {
		infos = append(infos, p.Info())
	}
	e.emit(All, protocol.PlayerUpdate{Phase: e.phase.String(), Players: infos})
}

// flushLocked sends private hands to every player whose hand changed and the
// public turn state to everyone.
func (e *Engine) flushLocked() error {
	ids := make([]uint32, 0, len(e.changed))
	for id := range e.changed {
		ids = append(ids, id)
	}
	clear(e.changed)
	slices.Sort(ids)
	for _, id := range ids {
		e.emitHandLocked(id)
	}
	if e.m == nil || len(e.m.seats) == 0 {
		return nil
	}
	tu, err := e.turnUpdateLocked()
	if err != nil {
		return err
	}
	e.emit(All, tu)
	return nil
}

func (e *Engine) turnUpdateLocked() (protocol.TurnUpdate, error) {
	m := e.m
	players, err := e.reg.Snapshot()
	if err != nil {
		return protocol.TurnUpdate{}, err
	}
	sizes := make(map[uint32]int, len(players))
	for _, p := range players {
		sizes[p.ID] = p.HandSize
	}
	tu := protocol.TurnUpdate{
		MatchID:       m.id,
		TableCard:     m.table,
		ActiveColor:   m.active,
		Direction:     m.dir,
		CurrentPlayer: m.currentID(),
		HandSizes:     make([]protocol.HandCount, 0, len(m.seats)),
	}
	for _, s := range m.seats {
		tu.HandSizes = append(tu.HandSizes, protocol.HandCount{PlayerID: s.id, Count: sizes[s.id]})
	}
	if m.pending > 0 {
		pending := m.pending
		tu.PendingDraw = &pending
		tu.BluffCallable = m.bluff != nil
	}
	return tu, nil
}

func (e *Engine) onlinePlayersLocked() ([]registry.Player, error) {
	players, err := e.reg.Snapshot()
	if err != nil {
		return nil, err
	}
	online := players[:0]
	for _, p := range players {
		if p.Online {
			online = append(online, p)
		}
	}
	return online, nil
}
